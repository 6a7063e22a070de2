package helper

import (
	"sync"

	"github.com/fadendb/faden-go/livestore"
)

// Ensure the listener spies implement the notification interfaces
var (
	_ livestore.ChangeListener           = (*EntityListenerSpy)(nil)
	_ livestore.CollectionChangeListener = (*CollectionListenerSpy)(nil)
)

// EntityNotification represents a captured single-object change notification.
type EntityNotification struct {
	Entity  *livestore.Entity
	IsValid bool
}

// EntityListenerSpy is a test double that captures entity change notifications.
type EntityListenerSpy struct {
	mu            sync.Mutex
	notifications []EntityNotification
}

// NewEntityListenerSpy creates a new EntityListenerSpy.
func NewEntityListenerSpy() *EntityListenerSpy {
	return &EntityListenerSpy{
		notifications: make([]EntityNotification, 0),
	}
}

// OnChange implements livestore.ChangeListener interface.
func (s *EntityListenerSpy) OnChange(entity *livestore.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validity is captured at delivery time because it can change afterwards
	s.notifications = append(s.notifications, EntityNotification{
		Entity:  entity,
		IsValid: entity.IsValid(),
	})
}

// GetNotificationCount returns the number of captured notifications.
func (s *EntityListenerSpy) GetNotificationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.notifications)
}

// GetNotifications returns a copy of all captured notifications.
func (s *EntityListenerSpy) GetNotifications() []EntityNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	notifications := make([]EntityNotification, len(s.notifications))
	copy(notifications, s.notifications)

	return notifications
}

// Reset clears all captured notifications.
func (s *EntityListenerSpy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = s.notifications[:0]
}

// CollectionNotification represents a captured collection change notification.
type CollectionNotification struct {
	Keys    []livestore.RowKeyUint
	State   livestore.ChangeSetState
	Changes *livestore.ChangeSet
}

// CollectionListenerSpy is a test double that captures collection change notifications.
type CollectionListenerSpy struct {
	mu            sync.Mutex
	notifications []CollectionNotification
}

// NewCollectionListenerSpy creates a new CollectionListenerSpy.
func NewCollectionListenerSpy() *CollectionListenerSpy {
	return &CollectionListenerSpy{
		notifications: make([]CollectionNotification, 0),
	}
}

// OnChange implements livestore.CollectionChangeListener interface.
func (s *CollectionListenerSpy) OnChange(results *livestore.Results, changes *livestore.ChangeSet) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The key snapshot is captured at delivery time because later refreshes mutate the collection
	s.notifications = append(s.notifications, CollectionNotification{
		Keys:    results.Keys(),
		State:   changes.State(),
		Changes: changes,
	})
}

// GetNotificationCount returns the number of captured notifications.
func (s *CollectionListenerSpy) GetNotificationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.notifications)
}

// GetNotifications returns a copy of all captured notifications.
func (s *CollectionListenerSpy) GetNotifications() []CollectionNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	notifications := make([]CollectionNotification, len(s.notifications))
	copy(notifications, s.notifications)

	return notifications
}

// Reset clears all captured notifications.
func (s *CollectionListenerSpy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = s.notifications[:0]
}
