package badgerengine_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fadendb/faden-go/livestore"
	. "github.com/fadendb/faden-go/livestore/badgerengine"
)

func Test_InsertRow_When_EngineIsInMemory(t *testing.T) {
	// setup
	engine, err := NewInMemoryEngine()
	assert.NoError(t, err, "creating the engine failed")
	defer func() { _ = engine.Close() }()

	// act
	key, version, err := engine.InsertRow("people", []byte(`{"name": "Ada"}`))

	// assert
	assert.NoError(t, err, "error in inserting the row")
	assert.Equal(t, livestore.RowKeyUint(1), key, "first key should be 1")
	assert.Equal(t, livestore.VersionUint(1), version, "first commit should be version 1")

	payload, err := engine.ReadRow("people", key)
	assert.NoError(t, err, "error in reading the row back")
	assert.JSONEq(t, `{"name": "Ada"}`, string(payload), "the payload should round-trip")
}

func Test_UpdateRow_When_RowExists(t *testing.T) {
	// setup
	engine, err := NewInMemoryEngine()
	assert.NoError(t, err, "creating the engine failed")
	defer func() { _ = engine.Close() }()

	// arrange
	key, insertVersion, err := engine.InsertRow("people", []byte(`{"name": "Ada"}`))
	assert.NoError(t, err, "error in inserting the row")

	// act
	updateVersion, err := engine.UpdateRow("people", key, []byte(`{"name": "Grace"}`))

	// assert
	assert.NoError(t, err, "error in updating the row")
	assert.Greater(t, updateVersion, insertVersion, "an update should advance the version")

	rowVersion, live := engine.RowVersion("people", key)
	assert.True(t, live, "the row should still be live")
	assert.Equal(t, updateVersion, rowVersion, "the row version should be the update commit")
}

func Test_RemoveRow_When_RowIsInTheMiddle(t *testing.T) {
	// setup
	engine, err := NewInMemoryEngine()
	assert.NoError(t, err, "creating the engine failed")
	defer func() { _ = engine.Close() }()

	// arrange
	first, _, err := engine.InsertRow("people", []byte(`{"name": "Ada"}`))
	assert.NoError(t, err, "error in inserting the first row")
	middle, _, err := engine.InsertRow("people", []byte(`{"name": "Grace"}`))
	assert.NoError(t, err, "error in inserting the middle row")
	last, _, err := engine.InsertRow("people", []byte(`{"name": "Edsger"}`))
	assert.NoError(t, err, "error in inserting the last row")

	// act
	_, err = engine.RemoveRow("people", middle)

	// assert
	assert.NoError(t, err, "error in removing the middle row")
	assert.False(t, engine.RowAttached("people", middle), "the removed row should be detached")
	assert.Equal(t, 2, engine.RowCount("people"), "two rows should remain")

	result, err := engine.ExecuteQuery(context.Background(), livestore.NewQuery("people"))
	assert.NoError(t, err, "error in querying after the removal")
	assert.Equal(t, []livestore.RowKeyUint{first, last}, result.Keys,
		"the last row should have moved into the freed slot")
}

func Test_RemoveRow_When_RowDoesNotExist(t *testing.T) {
	// setup
	engine, err := NewInMemoryEngine()
	assert.NoError(t, err, "creating the engine failed")
	defer func() { _ = engine.Close() }()

	// act
	_, err = engine.RemoveRow("people", 42)

	// assert
	assert.ErrorIs(t, err, livestore.ErrRowNotFound, "expected the row not found error")
}

func Test_ExecuteQuery_When_FieldPredicateNarrowsTheScan(t *testing.T) {
	// setup
	engine, err := NewInMemoryEngine()
	assert.NoError(t, err, "creating the engine failed")
	defer func() { _ = engine.Close() }()

	// arrange
	ada, _, err := engine.InsertRow("people", []byte(`{"name": "Ada", "role": "engineer"}`))
	assert.NoError(t, err, "error in inserting the first row")
	_, _, err = engine.InsertRow("people", []byte(`{"name": "Grace", "role": "admiral"}`))
	assert.NoError(t, err, "error in inserting the second row")
	edsger, version, err := engine.InsertRow("people", []byte(`{"name": "Edsger", "role": "engineer"}`))
	assert.NoError(t, err, "error in inserting the third row")

	// act
	result, err := engine.ExecuteQuery(context.Background(), livestore.NewQuery("people").MatchField("role", "engineer"))

	// assert
	assert.NoError(t, err, "error in executing the query")
	assert.Equal(t, []livestore.RowKeyUint{ada, edsger}, result.Keys, "only the matching rows should be returned")
	assert.Equal(t, version, result.Version, "the result should carry the head version")
}

func Test_Engine_When_ReopenedFromDisk(t *testing.T) {
	// setup
	cfg := DefaultConfig()
	cfg.Path = t.TempDir()
	cfg.SyncWrites = false
	cfg.GCInterval = 0

	engine, err := NewEngine(cfg)
	assert.NoError(t, err, "creating the engine failed")

	// arrange
	key, version, err := engine.InsertRow("people", []byte(`{"name": "Ada"}`))
	assert.NoError(t, err, "error in inserting the row")
	assert.NoError(t, engine.Close(), "error in closing the engine")

	// act
	reopened, err := NewEngine(cfg)
	assert.NoError(t, err, "reopening the engine failed")
	defer func() { _ = reopened.Close() }()

	// assert
	assert.Equal(t, version, reopened.CurrentVersion(), "the version counter should survive a reopen")
	assert.True(t, reopened.RowAttached("people", key), "the row should survive a reopen")

	payload, err := reopened.ReadRow("people", key)
	assert.NoError(t, err, "error in reading the row after the reopen")
	assert.JSONEq(t, `{"name": "Ada"}`, string(payload), "the payload should survive a reopen")
}

func Test_Close_When_CalledTwice(t *testing.T) {
	// setup
	engine, err := NewInMemoryEngine()
	assert.NoError(t, err, "creating the engine failed")

	// act + assert
	assert.NoError(t, engine.Close(), "the first close should succeed")
	assert.NoError(t, engine.Close(), "the second close should be a no-op")

	_, _, err = engine.InsertRow("people", []byte(`{}`))
	assert.ErrorIs(t, err, livestore.ErrEngineClosed, "a closed engine should reject writes")
}

func Test_NewEngineFromDB_When_DatabaseIsNil(t *testing.T) {
	// act
	_, err := NewEngineFromDB(nil)

	// assert
	assert.ErrorIs(t, err, ErrNilDatabase, "expected the nil database error")
}

func Test_NewEngine_When_PathIsMissing(t *testing.T) {
	// act
	_, err := NewEngine(Config{})

	// assert
	assert.ErrorIs(t, err, ErrPathRequired, "expected the path required error")
}

func Test_LoadConfig_When_FileOverridesDefaults(t *testing.T) {
	// arrange
	path := filepath.Join(t.TempDir(), "store.yaml")
	content := []byte("path: /var/lib/store\nsync_writes: false\ngc_interval: 30s\ngc_discard_ratio: 0.7\n")
	assert.NoError(t, os.WriteFile(path, content, 0o600), "error in writing the config file")

	// act
	cfg, err := LoadConfig(path)

	// assert
	assert.NoError(t, err, "error in loading the config")
	assert.Equal(t, "/var/lib/store", cfg.Path, "the path should come from the file")
	assert.False(t, cfg.SyncWrites, "sync_writes should come from the file")
	assert.Equal(t, 30*time.Second, cfg.GCInterval, "gc_interval should come from the file")
	assert.Equal(t, 0.7, cfg.GCDiscardRatio, "gc_discard_ratio should come from the file")
}

func Test_LoadConfig_When_FieldsAreAbsent(t *testing.T) {
	// arrange
	path := filepath.Join(t.TempDir(), "store.yaml")
	assert.NoError(t, os.WriteFile(path, []byte("path: /var/lib/store\n"), 0o600), "error in writing the config file")

	// act
	cfg, err := LoadConfig(path)

	// assert
	assert.NoError(t, err, "error in loading the config")
	assert.True(t, cfg.SyncWrites, "absent sync_writes should keep the default")
	assert.Equal(t, 5*time.Minute, cfg.GCInterval, "absent gc_interval should keep the default")
}

func Test_LoadConfig_When_GCIntervalIsMalformed(t *testing.T) {
	// arrange
	path := filepath.Join(t.TempDir(), "store.yaml")
	content := []byte("path: /var/lib/store\ngc_interval: soon\n")
	assert.NoError(t, os.WriteFile(path, content, 0o600), "error in writing the config file")

	// act
	_, err := LoadConfig(path)

	// assert
	assert.Error(t, err, "a malformed duration should fail the load")
}
