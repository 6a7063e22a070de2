package livestore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/fadendb/faden-go/livestore" //nolint:revive
	"github.com/fadendb/faden-go/livestore/memoryengine"
	. "github.com/fadendb/faden-go/testutil/livestore/helper" //nolint:revive
)

func Test_Entity_Payload_ReadsFromLiveStorage(t *testing.T) {
	// setup
	engine, err := memoryengine.New()
	assert.NoError(t, err, "error in creating the engine")

	session, err := OpenSession(engine)
	assert.NoError(t, err, "error in opening the session")
	defer session.Close()

	// arrange
	key := GivenPersonInserted(t, engine, "Alice", "Berlin")

	entity, err := session.Find(QueryPeopleInCity("Berlin"))
	assert.NoError(t, err, "error in arranging test data")

	// Payload reads the head, so a later write is visible immediately.
	GivenPersonUpdated(t, engine, key, "Alice", "Hamburg", 31)

	// act
	payload, err := entity.Payload()

	// assert
	assert.NoError(t, err)
	assert.JSONEq(t, `{"name":"Alice","city":"Hamburg","age":31}`, string(payload))
}

func Test_Entity_Decode_UnmarshalsThePayload(t *testing.T) {
	// setup
	engine, err := memoryengine.New()
	assert.NoError(t, err, "error in creating the engine")

	session, err := OpenSession(engine)
	assert.NoError(t, err, "error in opening the session")
	defer session.Close()

	// arrange
	GivenPersonInserted(t, engine, "Alice", "Berlin")

	entity, err := session.Find(QueryPeopleInCity("Berlin"))
	assert.NoError(t, err, "error in arranging test data")

	// act
	var person struct {
		Name string `json:"name"`
		City string `json:"city"`
		Age  int    `json:"age"`
	}
	err = entity.Decode(&person)

	// assert
	assert.NoError(t, err)
	assert.Equal(t, "Alice", person.Name)
	assert.Equal(t, "Berlin", person.City)
	assert.Equal(t, DefaultFixtureAge, person.Age)
}

func Test_Entity_Payload_When_EntityIsUnbound(t *testing.T) {
	// setup
	engine, err := memoryengine.New()
	assert.NoError(t, err, "error in creating the engine")

	// arrange: the manual dispatcher keeps the handle unbound
	dispatcher := NewManualDispatcher()
	session, err := OpenSession(engine, WithDispatcher(dispatcher))
	assert.NoError(t, err, "error in opening the session")
	defer session.Close()

	entity, err := session.FindFirstAsync(QueryAllPeople())
	assert.NoError(t, err, "error in arranging test data")

	// act
	payload, err := entity.Payload()

	// assert
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Nil(t, payload)
	assert.Nil(t, entity.Row(), "an undelivered async entity has no row reference yet")
}

func Test_Entity_Remove_DetachesTheRecord(t *testing.T) {
	// setup
	engine, err := memoryengine.New()
	assert.NoError(t, err, "error in creating the engine")

	session, err := OpenSession(engine)
	assert.NoError(t, err, "error in opening the session")
	defer session.Close()

	// arrange
	key := GivenPersonInserted(t, engine, "Alice", "Berlin")

	entity, err := session.Find(QueryPeopleInCity("Berlin"))
	assert.NoError(t, err, "error in arranging test data")

	// act
	err = entity.Remove()

	// assert
	assert.NoError(t, err)
	assert.False(t, entity.IsValid(), "a removed entity is permanently invalid")
	assert.False(t, engine.RowAttached(TableNamePeople, key))
	assert.Equal(t, 0, engine.RowCount(TableNamePeople))
}

func Test_Entity_Remove_When_AlreadyRemoved(t *testing.T) {
	// setup
	engine, err := memoryengine.New()
	assert.NoError(t, err, "error in creating the engine")

	session, err := OpenSession(engine)
	assert.NoError(t, err, "error in opening the session")
	defer session.Close()

	// arrange
	GivenPersonInserted(t, engine, "Alice", "Berlin")

	entity, err := session.Find(QueryPeopleInCity("Berlin"))
	assert.NoError(t, err, "error in arranging test data")
	assert.NoError(t, entity.Remove(), "error in arranging test data")

	// act
	err = entity.Remove()

	// assert
	assert.ErrorIs(t, err, ErrInvalidState)
}

func Test_Entity_Remove_When_EntityIsUnbound(t *testing.T) {
	// setup
	engine, err := memoryengine.New()
	assert.NoError(t, err, "error in creating the engine")

	dispatcher := NewManualDispatcher()
	session, err := OpenSession(engine, WithDispatcher(dispatcher))
	assert.NoError(t, err, "error in opening the session")
	defer session.Close()

	// arrange
	entity, err := session.FindFirstAsync(QueryAllPeople())
	assert.NoError(t, err, "error in arranging test data")

	// act
	err = entity.Remove()

	// assert
	assert.ErrorIs(t, err, ErrInvalidState)
}

func Test_Entity_Remove_CompactsTheLastRecordIntoTheFreedSlot(t *testing.T) {
	// setup
	engine, err := memoryengine.New()
	assert.NoError(t, err, "error in creating the engine")

	session, err := OpenSession(engine)
	assert.NoError(t, err, "error in opening the session")
	defer session.Close()

	// arrange
	keys := GivenPeopleInserted(t, engine, "Berlin", "Alice", "Bob", "Carol")

	first, err := session.Find(NewQuery(TableNamePeople).MatchField("name", "Alice"))
	assert.NoError(t, err, "error in arranging test data")

	// act
	err = first.Remove()

	// assert: Carol moved into Alice's slot, keys stayed stable
	assert.NoError(t, err)
	results, err := session.FindAll(QueryAllPeople())
	assert.NoError(t, err)
	assert.Equal(t, []uint64{keys[2], keys[1]}, results.Keys())
}

func Test_Entity_Load_When_TheEntityWasRemoved(t *testing.T) {
	// setup
	engine, err := memoryengine.New()
	assert.NoError(t, err, "error in creating the engine")

	session, err := OpenSession(engine)
	assert.NoError(t, err, "error in opening the session")
	defer session.Close()

	// arrange
	GivenPersonInserted(t, engine, "Alice", "Berlin")

	entity, err := session.Find(QueryPeopleInCity("Berlin"))
	assert.NoError(t, err, "error in arranging test data")
	assert.NoError(t, entity.Remove(), "error in arranging test data")

	// act
	err = entity.Load(context.Background())

	// assert
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.False(t, entity.IsValid(), "a failed load must not revive the entity")
}

func Test_Entity_IsValid_When_SessionIsClosed(t *testing.T) {
	// setup
	engine, err := memoryengine.New()
	assert.NoError(t, err, "error in creating the engine")

	session, err := OpenSession(engine)
	assert.NoError(t, err, "error in opening the session")

	// arrange
	GivenPersonInserted(t, engine, "Alice", "Berlin")

	entity, err := session.Find(QueryPeopleInCity("Berlin"))
	assert.NoError(t, err, "error in arranging test data")
	assert.True(t, entity.IsValid())

	// act
	session.Close()

	// assert
	assert.False(t, entity.IsValid(), "closing the session invalidates every handle bound to it")
}

func Test_Entity_IsValid_When_TheRecordWasDetachedInStorage(t *testing.T) {
	// setup
	engine, err := memoryengine.New()
	assert.NoError(t, err, "error in creating the engine")

	session, err := OpenSession(engine)
	assert.NoError(t, err, "error in opening the session")
	defer session.Close()

	// arrange
	key := GivenPersonInserted(t, engine, "Alice", "Berlin")

	entity, err := session.Find(QueryPeopleInCity("Berlin"))
	assert.NoError(t, err, "error in arranging test data")

	// act: the record vanishes underneath the entity
	GivenPersonRemoved(t, engine, key)

	// assert
	assert.False(t, entity.IsValid(), "validity is a live check against storage")
}

func Test_Entity_ChangeListener_When_TheRecordIsModified(t *testing.T) {
	// setup
	engine, err := memoryengine.New()
	assert.NoError(t, err, "error in creating the engine")

	session, err := OpenSession(engine)
	assert.NoError(t, err, "error in opening the session")
	defer session.Close()

	// arrange
	key := GivenPersonInserted(t, engine, "Alice", "Berlin")

	entity, err := session.Find(QueryPeopleInCity("Berlin"))
	assert.NoError(t, err, "error in arranging test data")

	listener := NewEntityListenerSpy()
	assert.NoError(t, entity.AddChangeListener(listener), "error in registering the listener")

	// act
	GivenPersonUpdated(t, engine, key, "Alice", "Hamburg", 31)
	assert.NoError(t, session.Refresh())

	// assert
	assert.Equal(t, 1, listener.GetNotificationCount())
	assert.True(t, listener.GetNotifications()[0].IsValid)

	// act: a refresh without a write must stay silent
	assert.NoError(t, session.Refresh())

	// assert
	assert.Equal(t, 1, listener.GetNotificationCount(), "no notification without a new commit")
}

func Test_Entity_ChangeListener_When_TheRecordIsDetached(t *testing.T) {
	// setup
	engine, err := memoryengine.New()
	assert.NoError(t, err, "error in creating the engine")

	session, err := OpenSession(engine)
	assert.NoError(t, err, "error in opening the session")
	defer session.Close()

	// arrange
	key := GivenPersonInserted(t, engine, "Alice", "Berlin")

	entity, err := session.Find(QueryPeopleInCity("Berlin"))
	assert.NoError(t, err, "error in arranging test data")

	listener := NewEntityListenerSpy()
	assert.NoError(t, entity.AddChangeListener(listener), "error in registering the listener")

	// act
	GivenPersonRemoved(t, engine, key)
	assert.NoError(t, session.Refresh())

	// assert
	assert.Equal(t, 1, listener.GetNotificationCount())
	assert.False(t, listener.GetNotifications()[0].IsValid, "the detachment notification carries an invalid entity")

	// act: the detachment is reported exactly once
	assert.NoError(t, session.Refresh())

	// assert
	assert.Equal(t, 1, listener.GetNotificationCount())
}

func Test_Entity_ChangeListener_NotifiedWhenTheAsyncQueryCompletes(t *testing.T) {
	// setup
	engine, err := memoryengine.New()
	assert.NoError(t, err, "error in creating the engine")

	// arrange
	key := GivenPersonInserted(t, engine, "Alice", "Berlin")

	dispatcher := NewManualDispatcher()
	session, err := OpenSession(engine, WithDispatcher(dispatcher))
	assert.NoError(t, err, "error in opening the session")
	defer session.Close()

	entity, err := session.FindFirstAsync(QueryPeopleInCity("Berlin"))
	assert.NoError(t, err)

	listener := NewEntityListenerSpy()
	assert.NoError(t, entity.AddChangeListener(listener), "error in registering the listener")

	// act
	dispatcher.RunPending()
	assert.Equal(t, 0, listener.GetNotificationCount(), "resolution alone must not notify")

	assert.NoError(t, session.Refresh())

	// assert
	assert.Equal(t, 1, listener.GetNotificationCount())
	assert.True(t, listener.GetNotifications()[0].IsValid)
	assert.Equal(t, key, entity.Row().Key())
}

func Test_Entity_AddChangeListener_IsIdempotentPerListener(t *testing.T) {
	// setup
	engine, err := memoryengine.New()
	assert.NoError(t, err, "error in creating the engine")

	session, err := OpenSession(engine)
	assert.NoError(t, err, "error in opening the session")
	defer session.Close()

	// arrange
	key := GivenPersonInserted(t, engine, "Alice", "Berlin")

	entity, err := session.Find(QueryPeopleInCity("Berlin"))
	assert.NoError(t, err, "error in arranging test data")

	listener := NewEntityListenerSpy()
	assert.NoError(t, entity.AddChangeListener(listener))
	assert.NoError(t, entity.AddChangeListener(listener)) // registering again is a no-op

	// act
	GivenPersonUpdated(t, engine, key, "Alice", "Hamburg", 31)
	assert.NoError(t, session.Refresh())

	// assert
	assert.Equal(t, 1, listener.GetNotificationCount(), "identity registration must not double-notify")
}

func Test_Entity_RemoveChangeListener_StopsNotifications(t *testing.T) {
	// setup
	engine, err := memoryengine.New()
	assert.NoError(t, err, "error in creating the engine")

	session, err := OpenSession(engine)
	assert.NoError(t, err, "error in opening the session")
	defer session.Close()

	// arrange
	key := GivenPersonInserted(t, engine, "Alice", "Berlin")

	entity, err := session.Find(QueryPeopleInCity("Berlin"))
	assert.NoError(t, err, "error in arranging test data")

	listener := NewEntityListenerSpy()
	assert.NoError(t, entity.AddChangeListener(listener))

	// act
	assert.NoError(t, entity.RemoveChangeListener(listener))
	GivenPersonUpdated(t, engine, key, "Alice", "Hamburg", 31)
	assert.NoError(t, session.Refresh())

	// assert
	assert.Equal(t, 0, listener.GetNotificationCount())
}

func Test_Entity_ChangeListener_When_ListenerIsNil(t *testing.T) {
	// setup
	engine, err := memoryengine.New()
	assert.NoError(t, err, "error in creating the engine")

	session, err := OpenSession(engine)
	assert.NoError(t, err, "error in opening the session")
	defer session.Close()

	// arrange
	GivenPersonInserted(t, engine, "Alice", "Berlin")

	entity, err := session.Find(QueryPeopleInCity("Berlin"))
	assert.NoError(t, err, "error in arranging test data")

	// act + assert
	assert.ErrorIs(t, entity.AddChangeListener(nil), ErrNilListener)
	assert.ErrorIs(t, entity.RemoveChangeListener(nil), ErrNilListener)
}

func Test_Entity_ChangeListener_MayRemoveItselfDuringNotification(t *testing.T) {
	// setup
	engine, err := memoryengine.New()
	assert.NoError(t, err, "error in creating the engine")

	session, err := OpenSession(engine)
	assert.NoError(t, err, "error in opening the session")
	defer session.Close()

	// arrange
	key := GivenPersonInserted(t, engine, "Alice", "Berlin")

	entity, err := session.Find(QueryPeopleInCity("Berlin"))
	assert.NoError(t, err, "error in arranging test data")

	selfRemovingCalls := 0
	var selfRemoving *ChangeListenerFunc
	selfRemoving = NewChangeListenerFunc(func(e *Entity) {
		selfRemovingCalls++
		assert.NoError(t, e.RemoveChangeListener(selfRemoving))
	})
	surviving := NewEntityListenerSpy()

	assert.NoError(t, entity.AddChangeListener(selfRemoving))
	assert.NoError(t, entity.AddChangeListener(surviving))

	// act: both listeners see the first change, only the survivor sees the second
	GivenPersonUpdated(t, engine, key, "Alice", "Hamburg", 31)
	assert.NoError(t, session.Refresh())

	GivenPersonUpdated(t, engine, key, "Alice", "Munich", 32)
	assert.NoError(t, session.Refresh())

	// assert
	assert.Equal(t, 1, selfRemovingCalls, "a listener removing itself is still notified for the current pass")
	assert.Equal(t, 2, surviving.GetNotificationCount(), "mutation during notification must not skip other listeners")
}

func Test_Entity_RemoveAllChangeListeners(t *testing.T) {
	// setup
	engine, err := memoryengine.New()
	assert.NoError(t, err, "error in creating the engine")

	session, err := OpenSession(engine)
	assert.NoError(t, err, "error in opening the session")
	defer session.Close()

	// arrange
	key := GivenPersonInserted(t, engine, "Alice", "Berlin")

	entity, err := session.Find(QueryPeopleInCity("Berlin"))
	assert.NoError(t, err, "error in arranging test data")

	first := NewEntityListenerSpy()
	second := NewEntityListenerSpy()
	assert.NoError(t, entity.AddChangeListener(first))
	assert.NoError(t, entity.AddChangeListener(second))

	// act
	assert.NoError(t, entity.RemoveAllChangeListeners())
	GivenPersonUpdated(t, engine, key, "Alice", "Hamburg", 31)
	assert.NoError(t, session.Refresh())

	// assert
	assert.Equal(t, 0, first.GetNotificationCount())
	assert.Equal(t, 0, second.GetNotificationCount())
}
