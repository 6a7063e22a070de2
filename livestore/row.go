package livestore

// RowRef is a live reference to one stored record: the table plus the stable,
// engine-assigned record key. Slot positions within a table change when
// another record is removed (compaction moves the last record into the freed
// slot); keys never do, so a RowRef stays pointed at the same record.
//
// A RowRef is confined to the goroutine of the session that produced it.
type RowRef struct {
	table   string
	key     RowKeyUint
	invalid bool
}

// invalidRow is the permanent sentinel an entity holds after removal.
// There is exactly one instance so identity comparison suffices.
var invalidRow = &RowRef{invalid: true}

func newRowRef(table string, key RowKeyUint) *RowRef {
	return &RowRef{table: table, key: key}
}

// Table returns the table the record lives in. Empty for the invalid sentinel.
func (r *RowRef) Table() string {
	return r.table
}

// Key returns the stable record key. Zero for the invalid sentinel.
func (r *RowRef) Key() RowKeyUint {
	return r.key
}
