package livestore

// ChangeSetState classifies what a delivered change set means to a consumer.
type ChangeSetState int

const (
	// StateInitial marks the first callback after listener registration. The
	// carried diff spans "query registered" to "first result produced" and so
	// reflects scheduling latency, not an application-level change.
	StateInitial ChangeSetState = iota + 1

	// StateUpdate marks a change caused by a write committed after the first
	// callback.
	StateUpdate

	// StateError marks a failed computation; the collection must not be
	// treated as a usable snapshot.
	StateError
)

func (s ChangeSetState) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateUpdate:
		return "update"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// ChangeSet is an immutable, classified description of what changed between
// two deliveries of a live collection: positional insertions, deletions and
// modifications, their contiguous-range equivalents, an optional error, and
// the state classification. Everything is computed once at construction and
// never mutated afterwards.
//
// Classification priority: a non-nil error always wins (StateError), then the
// first-callback flag (StateInitial), otherwise StateUpdate.
//
// The diff accessors pass the raw diff through structurally uniformly for
// every state, including Initial. Consumers decide per State whether to
// surface the deltas; gating on State before reading them is the intended
// contract. Callers must not modify returned slices.
type ChangeSet struct {
	state              ChangeSetState
	diff               Diff
	insertionRanges    []Range
	deletionRanges     []Range
	modificationRanges []Range
	err                error
}

func newChangeSet(diff Diff, firstCallback bool, err error) *ChangeSet {
	state := StateUpdate
	switch {
	case err != nil:
		state = StateError
	case firstCallback:
		state = StateInitial
	}

	return &ChangeSet{
		state:              state,
		diff:               diff,
		insertionRanges:    coalesceRanges(diff.Insertions),
		deletionRanges:     coalesceRanges(diff.Deletions),
		modificationRanges: coalesceRanges(diff.Modifications),
		err:                err,
	}
}

// State returns the classification computed at construction.
func (cs *ChangeSet) State() ChangeSetState {
	return cs.state
}

// Error returns the failure behind an Error-classified change set, else nil.
func (cs *ChangeSet) Error() error {
	return cs.err
}

// IsCompleteResult reports whether the collection backing this notification
// is a materialized, usable snapshot: true for Initial and Update, false for
// Error.
func (cs *ChangeSet) IsCompleteResult() bool {
	return cs.state == StateInitial || cs.state == StateUpdate
}

// Insertions returns the positions, in the new ordering, of appeared records.
func (cs *ChangeSet) Insertions() []int {
	return cs.diff.Insertions
}

// Deletions returns the positions, in the old ordering, of vanished records.
func (cs *ChangeSet) Deletions() []int {
	return cs.diff.Deletions
}

// Modifications returns the positions, in the new ordering, of surviving
// records whose payload was written between the two snapshots.
func (cs *ChangeSet) Modifications() []int {
	return cs.diff.Modifications
}

// InsertionRanges returns Insertions coalesced into contiguous ranges.
func (cs *ChangeSet) InsertionRanges() []Range {
	return cs.insertionRanges
}

// DeletionRanges returns Deletions coalesced into contiguous ranges.
func (cs *ChangeSet) DeletionRanges() []Range {
	return cs.deletionRanges
}

// ModificationRanges returns Modifications coalesced into contiguous ranges.
func (cs *ChangeSet) ModificationRanges() []Range {
	return cs.modificationRanges
}
