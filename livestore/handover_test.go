package livestore

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func Test_HandoverToken_CarriesTheResultIdentity(t *testing.T) {
	// arrange
	spec := NewQuery("people")
	queryID := uuid.New()
	result := QueryResult{Version: 7, Keys: []RowKeyUint{3, 1, 4}}

	// act
	token := newHandoverToken(spec, result, queryID)

	// assert
	assert.Equal(t, VersionUint(7), token.Version())
	assert.Equal(t, queryID, token.QueryID())
	assert.Equal(t, 3, token.Len())
}

func Test_HandoverToken_CopiesTheKeys(t *testing.T) {
	// arrange
	result := QueryResult{Version: 1, Keys: []RowKeyUint{10, 20}}

	// act
	token := newHandoverToken(NewQuery("people"), result, uuid.New())
	result.Keys[0] = 99

	// assert
	assert.Equal(t, RowKeyUint(10), token.keys[0], "the token must not alias the worker's result slice")
}

func Test_HandoverToken_Consume_SucceedsExactlyOnce(t *testing.T) {
	// arrange
	token := newHandoverToken(NewQuery("people"), QueryResult{}, uuid.New())

	// act + assert
	assert.NoError(t, token.consume())
	assert.ErrorIs(t, token.consume(), ErrHandoverConsumed)
}

func Test_HandoverToken_Release_MakesTheTokenConsumableAgain(t *testing.T) {
	// arrange
	token := newHandoverToken(NewQuery("people"), QueryResult{}, uuid.New())
	assert.NoError(t, token.consume())

	// act
	token.release()

	// assert
	assert.NoError(t, token.consume(), "a released token supports a later import attempt")
}

func Test_PendingQuery_StartsUnresolved(t *testing.T) {
	pq := newPendingQuery()

	assert.False(t, pq.resolved())
}

func Test_PendingQuery_Resolve_PublishesTheOutcome(t *testing.T) {
	// arrange
	pq := newPendingQuery()
	token := newHandoverToken(NewQuery("people"), QueryResult{Version: 2}, uuid.New())

	// act
	pq.resolve(token, nil)

	// assert
	assert.True(t, pq.resolved())

	gotToken, err := pq.outcome()
	assert.NoError(t, err)
	assert.Same(t, token, gotToken)
}

func Test_PendingQuery_Resolve_IgnoresCallsAfterTheFirst(t *testing.T) {
	// arrange
	pq := newPendingQuery()
	first := newHandoverToken(NewQuery("people"), QueryResult{}, uuid.New())
	second := newHandoverToken(NewQuery("people"), QueryResult{}, uuid.New())

	// act
	pq.resolve(first, nil)
	pq.resolve(second, assert.AnError)

	// assert
	gotToken, err := pq.outcome()
	assert.NoError(t, err)
	assert.Same(t, first, gotToken)
}

func Test_PendingQuery_Await_ReturnsTheOutcomeFromAnotherGoroutine(t *testing.T) {
	// arrange
	pq := newPendingQuery()
	token := newHandoverToken(NewQuery("people"), QueryResult{Version: 3}, uuid.New())

	go pq.resolve(token, nil)

	// act
	gotToken, err := pq.await(context.Background())

	// assert
	assert.NoError(t, err)
	assert.Same(t, token, gotToken)
}

func Test_PendingQuery_Await_When_TheContextIsCanceled(t *testing.T) {
	// arrange
	pq := newPendingQuery()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// act
	gotToken, err := pq.await(ctx)

	// assert
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, gotToken)
	assert.False(t, pq.resolved(), "cancellation must not resolve the future")
}

func Test_PendingQuery_Resolve_WithAnError(t *testing.T) {
	// arrange
	pq := newPendingQuery()

	// act
	pq.resolve(nil, assert.AnError)

	// assert
	gotToken, err := pq.outcome()
	assert.ErrorIs(t, err, assert.AnError)
	assert.Nil(t, gotToken)
}
