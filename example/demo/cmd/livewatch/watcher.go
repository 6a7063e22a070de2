package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/fadendb/faden-go/livestore"
)

// taskWatcher follows the open tasks through a live query: it dispatches one
// asynchronous query, registers a collection listener, and then refreshes its
// session on a fixed interval so completions and change sets get delivered.
type taskWatcher struct {
	engine          storageEngine
	refreshInterval time.Duration
	sessionOptions  []livestore.Option

	deliveries int
	refreshes  int
}

func newTaskWatcher(engine storageEngine, refreshInterval time.Duration, sessionOptions []livestore.Option) *taskWatcher {
	return &taskWatcher{
		engine:          engine,
		refreshInterval: refreshInterval,
		sessionOptions:  sessionOptions,
	}
}

// Run drives the watch loop until the context ends. The session is opened
// here because sessions are confined to the goroutine that opened them.
func (w *taskWatcher) Run(ctx context.Context) error {
	session, err := livestore.OpenSession(w.engine, w.sessionOptions...)
	if err != nil {
		return fmt.Errorf("open watcher session: %w", err)
	}
	defer session.Close()

	results, err := session.FindAllAsync(
		livestore.NewQuery(tableTasks).MatchField("status", "open"),
		livestore.WithCallback(&livestore.QueryCallback{
			OnResults: func(res *livestore.Results) {
				log.Printf("watch query loaded: %d open tasks at version %d", res.Len(), res.Version())
			},
			OnError: func(err error) {
				log.Printf("watch query failed: %v", err)
			},
		}),
	)
	if err != nil {
		return fmt.Errorf("dispatch watch query: %w", err)
	}

	listener := livestore.NewCollectionChangeListenerFunc(func(res *livestore.Results, changes *livestore.ChangeSet) {
		w.deliveries++

		if changes.State() == livestore.StateError {
			log.Printf("change set error: %v", changes.Error())
			return
		}

		log.Printf("change set %s: %d open tasks (+%d -%d ~%d)",
			changes.State(), res.Len(),
			len(changes.Insertions()), len(changes.Deletions()), len(changes.Modifications()))
	})

	if err := results.AddChangeListener(listener); err != nil {
		return fmt.Errorf("register change listener: %w", err)
	}

	ticker := time.NewTicker(w.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := session.Refresh(); err != nil {
				return fmt.Errorf("refresh watcher session: %w", err)
			}

			w.refreshes++
		}
	}
}

func (w *taskWatcher) LogStats() {
	log.Printf("watcher stats: %d change sets delivered over %d refreshes", w.deliveries, w.refreshes)
}
