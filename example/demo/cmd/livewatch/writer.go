package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/fadendb/faden-go/livestore"
)

const tableTasks = "tasks"

type task struct {
	Title  string `json:"title"`
	Status string `json:"status"`
}

type openTask struct {
	key   livestore.RowKeyUint
	title string
}

// taskWriter simulates application write load: it keeps inserting open tasks,
// marks some of them done, and removes finished ones through its own session.
type taskWriter struct {
	engine         storageEngine
	interval       time.Duration
	sessionOptions []livestore.Option

	openTasks []openTask
	seq       int

	inserted int
	updated  int
	removed  int
}

func newTaskWriter(engine storageEngine, interval time.Duration, sessionOptions []livestore.Option) *taskWriter {
	return &taskWriter{
		engine:         engine,
		interval:       interval,
		sessionOptions: sessionOptions,
	}
}

// Run drives the write loop until the context ends. The session is opened
// here because sessions are confined to the goroutine that opened them.
func (w *taskWriter) Run(ctx context.Context) error {
	session, err := livestore.OpenSession(w.engine, w.sessionOptions...)
	if err != nil {
		return fmt.Errorf("open writer session: %w", err)
	}
	defer session.Close()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.step(session); err != nil {
				return fmt.Errorf("writer step: %w", err)
			}
		}
	}
}

func (w *taskWriter) step(session *livestore.Session) error {
	action := rand.Intn(10) //nolint:gosec // demo load, weak random is fine

	switch {
	case action < 6 || len(w.openTasks) == 0:
		return w.insertTask()
	case action < 9:
		return w.completeTask()
	default:
		return w.removeFinishedTask(session)
	}
}

func (w *taskWriter) insertTask() error {
	w.seq++
	title := fmt.Sprintf("task-%d", w.seq)

	payload, err := jsoniter.ConfigFastest.Marshal(task{Title: title, Status: "open"})
	if err != nil {
		return err
	}

	key, _, err := w.engine.InsertRow(tableTasks, payload)
	if err != nil {
		return err
	}

	w.openTasks = append(w.openTasks, openTask{key: key, title: title})
	w.inserted++

	return nil
}

func (w *taskWriter) completeTask() error {
	next := w.openTasks[0]
	w.openTasks = w.openTasks[1:]

	payload, err := jsoniter.ConfigFastest.Marshal(task{Title: next.title, Status: "done"})
	if err != nil {
		return err
	}

	if _, err := w.engine.UpdateRow(tableTasks, next.key, payload); err != nil {
		return err
	}

	w.updated++

	return nil
}

// removeFinishedTask goes through the session API on purpose: find a done
// task at the engine head and remove it via its entity handle.
func (w *taskWriter) removeFinishedTask(session *livestore.Session) error {
	entity, err := session.Find(livestore.NewQuery(tableTasks).MatchField("status", "done"))
	if errors.Is(err, livestore.ErrRowNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := entity.Remove(); err != nil {
		return err
	}

	w.removed++

	return nil
}

func (w *taskWriter) LogStats() {
	log.Printf("writer stats: %d inserted, %d completed, %d removed", w.inserted, w.updated, w.removed)
}
