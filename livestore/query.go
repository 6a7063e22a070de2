package livestore

import (
	jsoniter "github.com/json-iterator/go"
)

// QuerySpec describes a query the storage engines understand: a scan over one
// table, optionally narrowed to records whose payload field equals a string
// value, with an optional result limit. Richer predicates and sort orders are
// the business of a query layer on top; the engines only need this carrier.
//
// A QuerySpec is an immutable value; the builder methods return copies.
type QuerySpec struct {
	table  string
	field  string
	equals string
	limit  int
}

// NewQuery starts a query over the given table.
func NewQuery(table string) QuerySpec {
	return QuerySpec{table: table}
}

// MatchField narrows the query to records whose payload field equals value.
func (q QuerySpec) MatchField(field string, value string) QuerySpec {
	q.field = field
	q.equals = value

	return q
}

// Limited caps the number of matching records; zero or negative means no cap.
func (q QuerySpec) Limited(n int) QuerySpec {
	if n < 0 {
		n = 0
	}
	q.limit = n

	return q
}

// Validate reports whether the spec can be executed by an engine.
func (q QuerySpec) Validate() error {
	if q.table == "" {
		return ErrEmptyTableName
	}

	return nil
}

// Table returns the table the query scans.
func (q QuerySpec) Table() string {
	return q.table
}

// Limit returns the result cap, zero meaning unlimited.
func (q QuerySpec) Limit() int {
	return q.limit
}

// HasFieldMatch reports whether the query narrows on a payload field.
func (q QuerySpec) HasFieldMatch() bool {
	return q.field != ""
}

// FieldMatch returns the payload field and value the query narrows on.
// Both are empty when the query has no field predicate.
func (q QuerySpec) FieldMatch() (field string, value string) {
	return q.field, q.equals
}

// Matches evaluates the field predicate against a record payload.
// A query without a field predicate matches every record.
func (q QuerySpec) Matches(payload []byte) bool {
	if q.field == "" {
		return true
	}

	value := jsoniter.ConfigFastest.Get(payload, q.field)
	if value.ValueType() == jsoniter.InvalidValue {
		return false
	}

	return value.ToString() == q.equals
}
