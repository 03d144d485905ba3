// Package runtime assembles the engine: it opens the Pebble store, loads
// the queue registry and runs the background sweeper. Everything a server
// or an embedded consumer needs hangs off the Runtime.
package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/quillmq/quill/internal/config"
	"github.com/quillmq/quill/internal/registry"
	pebblestore "github.com/quillmq/quill/internal/storage/pebble"
	"github.com/quillmq/quill/pkg/log"
)

// Options configures a Runtime.
type Options struct {
	// DataDir is the Pebble database directory. Defaults to the platform
	// data dir when empty.
	DataDir string
	// Fsync selects WAL durability. Defaults to a short group-commit window.
	Fsync pebblestore.FsyncMode
	// Config carries the engine defaults and sweeper settings.
	Config config.Config
	// Logger for the engine components. Required.
	Logger log.Logger
}

// Runtime is a fully assembled engine instance.
type Runtime struct {
	db      *pebblestore.DB
	reg     *registry.Registry
	sweeper *registry.Sweeper
	logger  log.Logger
}

// Open builds and starts a Runtime. The sweeper runs until Close.
func Open(opts Options) (*Runtime, error) {
	if opts.DataDir == "" {
		opts.DataDir = config.DefaultDataDir()
	}

	db, err := pebblestore.Open(pebblestore.Options{DataDir: opts.DataDir, Fsync: opts.Fsync})
	if err != nil {
		return nil, fmt.Errorf("open store at %s: %w", opts.DataDir, err)
	}

	reg, err := registry.Open(db, opts.Config, opts.Logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open registry: %w", err)
	}

	sweeper := registry.NewSweeper(reg,
		time.Duration(opts.Config.SweepIntervalMs)*time.Millisecond,
		opts.Config.SweepBatch,
		opts.Logger)
	sweeper.Start()

	opts.Logger.Info("runtime started", log.Str("dataDir", opts.DataDir))
	return &Runtime{db: db, reg: reg, sweeper: sweeper, logger: opts.Logger}, nil
}

// Registry returns the queue registry.
func (r *Runtime) Registry() *registry.Registry { return r.reg }

// CheckHealth verifies the store answers reads.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if _, err := r.db.Get([]byte("health/ping")); err != nil && !pebblestore.IsNotFound(err) {
		return err
	}
	return nil
}

// Close stops the sweeper and closes the store.
func (r *Runtime) Close() error {
	r.sweeper.Stop()
	err := r.db.Close()
	r.logger.Info("runtime stopped")
	return err
}
