package helper

import (
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"

	"github.com/fadendb/faden-go/livestore"
)

// TableNamePeople is the table the shared fixtures write to.
const TableNamePeople = "people"

// DefaultFixtureAge is the age every person fixture starts with.
const DefaultFixtureAge = 30

// WritableEngine is the uniform write surface the storage engines share.
// The read-side livestore.StorageEngine contract does not carry writes, so
// arrangement helpers take this wider interface.
type WritableEngine interface {
	livestore.StorageEngine
	InsertRow(table string, payload []byte) (livestore.RowKeyUint, livestore.VersionUint, error)
	UpdateRow(table string, key livestore.RowKeyUint, payload []byte) (livestore.VersionUint, error)
	RowCount(table string) int
}

type personFixture struct {
	Name string `json:"name"`
	City string `json:"city"`
	Age  int    `json:"age"`
}

// FixturePersonJSON builds the JSON payload for one person record.
func FixturePersonJSON(name string, city string, age int) []byte {
	payload, err := jsoniter.ConfigFastest.Marshal(personFixture{Name: name, City: city, Age: age})
	if err != nil {
		panic(err) // struct marshaling cannot fail
	}

	return payload
}

// GivenPersonInserted writes one person record and returns its stable key.
func GivenPersonInserted(t testing.TB, engine WritableEngine, name string, city string) livestore.RowKeyUint {
	key, _, err := engine.InsertRow(TableNamePeople, FixturePersonJSON(name, city, DefaultFixtureAge))
	assert.NoError(t, err, "error in arranging test data")

	return key
}

// GivenPeopleInserted writes one person record per name, all in the same city,
// and returns the keys in insertion order.
func GivenPeopleInserted(t testing.TB, engine WritableEngine, city string, names ...string) []livestore.RowKeyUint {
	keys := make([]livestore.RowKeyUint, 0, len(names))
	for _, name := range names {
		keys = append(keys, GivenPersonInserted(t, engine, name, city))
	}

	return keys
}

// GivenPersonUpdated replaces the payload of an existing person record.
func GivenPersonUpdated(t testing.TB, engine WritableEngine, key livestore.RowKeyUint, name string, city string, age int) {
	_, err := engine.UpdateRow(TableNamePeople, key, FixturePersonJSON(name, city, age))
	assert.NoError(t, err, "error in arranging test data")
}

// GivenPersonRemoved erases an existing person record.
func GivenPersonRemoved(t testing.TB, engine WritableEngine, key livestore.RowKeyUint) {
	_, err := engine.RemoveRow(TableNamePeople, key)
	assert.NoError(t, err, "error in arranging test data")
}

// QueryPeopleInCity builds the query the shared fixtures are matched by.
func QueryPeopleInCity(city string) livestore.QuerySpec {
	return livestore.NewQuery(TableNamePeople).MatchField("city", city)
}

// QueryAllPeople builds an unfiltered query over the fixture table.
func QueryAllPeople() livestore.QuerySpec {
	return livestore.NewQuery(TableNamePeople)
}
