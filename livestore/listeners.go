package livestore

import (
	"slices"
)

// ChangeListener receives change notifications for a single entity, invoked
// on the owning goroutine: once when an async query completes, and on every
// Session.Refresh that finds the entity's record written or detached.
//
// Listeners are registered by identity, so a listener value must be
// comparable (a pointer receiver is the usual shape). Wrap a plain function
// with NewChangeListenerFunc to give it an identity.
type ChangeListener interface {
	OnChange(e *Entity)
}

// CollectionChangeListener receives a live collection together with the
// classified change set describing what changed, invoked on the owning
// goroutine. The same identity rules as for ChangeListener apply.
type CollectionChangeListener interface {
	OnChange(results *Results, changes *ChangeSet)
}

// ChangeListenerFunc adapts a function to ChangeListener. Every call to
// NewChangeListenerFunc yields a distinct identity, even for the same
// function, so keep the returned value around for removal.
type ChangeListenerFunc struct {
	fn func(e *Entity)
}

// NewChangeListenerFunc wraps fn as a registrable ChangeListener.
func NewChangeListenerFunc(fn func(e *Entity)) *ChangeListenerFunc {
	return &ChangeListenerFunc{fn: fn}
}

func (l *ChangeListenerFunc) OnChange(e *Entity) {
	l.fn(e)
}

// CollectionChangeListenerFunc adapts a function to CollectionChangeListener
// with the same identity semantics as ChangeListenerFunc.
type CollectionChangeListenerFunc struct {
	fn func(results *Results, changes *ChangeSet)
}

// NewCollectionChangeListenerFunc wraps fn as a registrable CollectionChangeListener.
func NewCollectionChangeListenerFunc(fn func(results *Results, changes *ChangeSet)) *CollectionChangeListenerFunc {
	return &CollectionChangeListenerFunc{fn: fn}
}

func (l *CollectionChangeListenerFunc) OnChange(results *Results, changes *ChangeSet) {
	l.fn(results, changes)
}

// listenerSet is an ordered set with identity-based membership and
// copy-on-write mutation: add and remove build a fresh backing slice, so a
// snapshot taken at the start of a notification pass keeps iterating the
// listeners registered at that moment no matter what the callbacks do to the
// registry. Insertion order is notification order.
//
// The set is goroutine-confined; the open-session checks guarding every
// operation live on the owning handle.
type listenerSet[L comparable] struct {
	items []L
}

// add registers l unless it is already present; reports whether it was added.
func (s *listenerSet[L]) add(l L) bool {
	if slices.Contains(s.items, l) {
		return false
	}

	next := make([]L, len(s.items), len(s.items)+1)
	copy(next, s.items)
	s.items = append(next, l)

	return true
}

// remove deletes l by identity; reports whether it was present.
func (s *listenerSet[L]) remove(l L) bool {
	idx := slices.Index(s.items, l)
	if idx < 0 {
		return false
	}

	next := make([]L, 0, len(s.items)-1)
	next = append(next, s.items[:idx]...)
	next = append(next, s.items[idx+1:]...)
	s.items = next

	return true
}

// removeAll drops every registered listener.
func (s *listenerSet[L]) removeAll() {
	s.items = nil
}

// snapshot returns the slice a notification pass iterates. Mutations replace
// the backing slice instead of editing it, so the snapshot stays immutable.
func (s *listenerSet[L]) snapshot() []L {
	return s.items
}

func (s *listenerSet[L]) len() int {
	return len(s.items)
}
