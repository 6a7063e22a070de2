// Package main runs a demonstration of the live store: a writer goroutine
// keeps inserting, completing and removing task records on a shared storage
// engine while a watcher goroutine follows an asynchronous live query on its
// own session and logs every delivered change set.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/fadendb/faden-go/livestore"
	"github.com/fadendb/faden-go/livestore/badgerengine"
	"github.com/fadendb/faden-go/livestore/memoryengine"
	"github.com/fadendb/faden-go/livestore/promadapters"
	"github.com/fadendb/faden-go/livestore/sqliteengine"
	"github.com/fadendb/faden-go/testutil/livestore/config"
)

const (
	defaultWriteInterval   = 80 * time.Millisecond
	defaultRefreshInterval = 250 * time.Millisecond
)

// Config carries the demo settings, resolved from flags on top of the
// FADEN_* environment (see testutil/livestore/config).
type Config struct {
	Engine          string
	WriteInterval   time.Duration
	RefreshInterval time.Duration
	RunFor          time.Duration
	MetricsAddr     string
	Verbose         bool
}

// storageEngine is the write surface the demo needs on top of the query
// contract; all bundled engines provide it.
type storageEngine interface {
	livestore.StorageEngine
	InsertRow(table string, payload []byte) (livestore.RowKeyUint, livestore.VersionUint, error)
	UpdateRow(table string, key livestore.RowKeyUint, payload []byte) (livestore.VersionUint, error)
}

func main() {
	cfg := parseFlags()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.RunFor > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.RunFor)
		defer cancel()
	}

	logger := newLogger(cfg.Verbose)

	engine, cleanup, err := buildEngine(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to build the %s engine: %v", cfg.Engine, err)
	}
	defer cleanup()

	sessionOptions := []livestore.Option{livestore.WithLogger(logger)}
	if cfg.MetricsAddr != "" {
		sessionOptions = append(sessionOptions, livestore.WithMetrics(promadapters.NewMetricsCollector(nil)))
	}

	writer := newTaskWriter(engine, cfg.WriteInterval, sessionOptions)
	watcher := newTaskWatcher(engine, cfg.RefreshInterval, sessionOptions)

	group, groupCtx := errgroup.WithContext(ctx)

	if cfg.MetricsAddr != "" {
		group.Go(func() error { return serveMetrics(groupCtx, cfg.MetricsAddr) })
	}

	group.Go(func() error { return writer.Run(groupCtx) })
	group.Go(func() error { return watcher.Run(groupCtx) })

	log.Printf("live store demo started: engine=%s write_interval=%v refresh_interval=%v",
		cfg.Engine, cfg.WriteInterval, cfg.RefreshInterval)
	if cfg.MetricsAddr != "" {
		log.Printf("metrics exposed on http://%s/metrics", cfg.MetricsAddr)
	}
	log.Printf("Press Ctrl+C to stop...")

	err = group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		log.Fatalf("Demo failed: %v", err)
	}

	writer.LogStats()
	watcher.LogStats()
	log.Printf("live store demo stopped")
}

func parseFlags() Config {
	config.LoadEnv()

	var (
		engine          = flag.String("engine", config.DemoEngine(), "Storage engine: memory, badger or sqlite")
		writeInterval   = flag.Duration("write-interval", defaultWriteInterval, "Interval between writer actions")
		refreshInterval = flag.Duration("refresh-interval", defaultRefreshInterval, "Interval between watcher refreshes")
		runFor          = flag.Duration("run-for", 0, "Stop after this duration (0 runs until a signal)")
		metricsAddr     = flag.String("metrics-addr", config.MetricsAddr(), "Prometheus listen address (empty disables metrics)")
		verbose         = flag.Bool("verbose", false, "Log at debug level")
	)

	flag.Parse()

	return Config{
		Engine:          *engine,
		WriteInterval:   *writeInterval,
		RefreshInterval: *refreshInterval,
		RunFor:          *runFor,
		MetricsAddr:     *metricsAddr,
		Verbose:         *verbose,
	}
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func buildEngine(ctx context.Context, cfg Config, logger *slog.Logger) (storageEngine, func(), error) {
	switch cfg.Engine {
	case "memory":
		engine, err := memoryengine.New(memoryengine.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}

		return engine, func() { _ = engine.Close() }, nil

	case "badger":
		engine, err := buildBadgerEngine(logger)
		if err != nil {
			return nil, nil, err
		}

		return engine, func() { _ = engine.Close() }, nil

	case "sqlite":
		db, err := sql.Open("sqlite3", config.SQLiteDSN())
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite database: %w", err)
		}
		// An in-memory SQLite database exists per connection; one connection
		// keeps every session on the same data.
		db.SetMaxOpenConns(1)

		engine, err := sqliteengine.NewEngineFromSQLDB(db, sqliteengine.WithLogger(logger))
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}

		if err := engine.InitSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}

		return engine, func() { _ = db.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown engine %q (want memory, badger or sqlite)", cfg.Engine)
	}
}

func buildBadgerEngine(logger *slog.Logger) (*badgerengine.Engine, error) {
	if file := config.BadgerConfigFile(); file != "" {
		badgerCfg, err := badgerengine.LoadConfig(file)
		if err != nil {
			return nil, err
		}

		return badgerengine.NewEngine(badgerCfg, badgerengine.WithLogger(logger))
	}

	if path := config.BadgerPath(); path != "" {
		badgerCfg := badgerengine.DefaultConfig()
		badgerCfg.Path = path

		return badgerengine.NewEngine(badgerCfg, badgerengine.WithLogger(logger))
	}

	return badgerengine.NewInMemoryEngine(badgerengine.WithLogger(logger))
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}

	return nil
}
