package livestore_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fadendb/faden-go/livestore"
)

func Test_BoundedDispatcher_Submit_NeverBlocksTheCaller(t *testing.T) {
	// setup
	dispatcher := livestore.NewBoundedDispatcher(1)

	release := make(chan struct{})

	var completed atomic.Int32

	var wg sync.WaitGroup

	// act: submit more jobs than the dispatcher has slots while every slot is
	// held; reaching the wait proves no Submit call blocked
	wg.Add(3)

	for i := 0; i < 3; i++ {
		dispatcher.Submit(func() {
			defer wg.Done()
			<-release
			completed.Add(1)
		})
	}

	close(release)
	wg.Wait()

	// assert
	assert.Equal(t, int32(3), completed.Load(), "every submitted job must eventually run")
}

func Test_BoundedDispatcher_EnforcesTheConcurrencyBound(t *testing.T) {
	// setup
	dispatcher := livestore.NewBoundedDispatcher(2)

	started := make(chan struct{}, 4)
	release := make(chan struct{})

	var wg sync.WaitGroup

	// act
	wg.Add(4)

	for i := 0; i < 4; i++ {
		dispatcher.Submit(func() {
			defer wg.Done()
			started <- struct{}{}
			<-release
		})
	}

	// assert: exactly the bound starts; the rest stay parked on the semaphore
	// while the running jobs hold their slots
	<-started
	<-started
	assert.Empty(t, started, "a third job must not start while both slots are held")

	close(release)
	wg.Wait()
	assert.Len(t, started, 2, "the parked jobs run once slots free up")
}

func Test_NewBoundedDispatcher_When_SizeIsNotPositive_StillRunsJobs(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{name: "zero size", size: 0},
		{name: "negative size", size: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// setup
			dispatcher := livestore.NewBoundedDispatcher(tt.size)

			done := make(chan struct{})

			// act
			dispatcher.Submit(func() { close(done) })

			// assert
			<-done
		})
	}
}
