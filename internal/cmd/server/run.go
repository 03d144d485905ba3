// Package serverrun boots the engine and its HTTP control plane for the
// `quill server start` command.
package serverrun

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/quillmq/quill/internal/config"
	"github.com/quillmq/quill/internal/runtime"
	httpserver "github.com/quillmq/quill/internal/server/http"
	queuesvc "github.com/quillmq/quill/internal/services/queues"
	pebblestore "github.com/quillmq/quill/internal/storage/pebble"
	"github.com/quillmq/quill/pkg/log"
)

type Options struct {
	DataDir  string
	HTTPAddr string
	Fsync    pebblestore.FsyncMode
	Config   config.Config
	Logger   log.Logger
}

// Run starts the engine and HTTP server and blocks until ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	// Layer a local signal context over the provided one so callers that
	// pass a plain context still get clean shutdown on SIGINT/SIGTERM.
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.DataDir == "" {
		opts.DataDir = config.DefaultDataDir()
	}
	storeDir := filepath.Join(opts.DataDir, "store")

	rt, err := runtime.Open(runtime.Options{
		DataDir: storeDir,
		Fsync:   opts.Fsync,
		Config:  opts.Config,
		Logger:  opts.Logger,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	opts.Logger.Info("starting quill server",
		log.Str("http", opts.HTTPAddr),
		log.Str("dataDir", opts.DataDir),
	)

	svc := queuesvc.New(rt, opts.Config, opts.Logger)
	hsrv := httpserver.New(rt, svc, opts.Logger)
	defer hsrv.Close()
	return hsrv.ListenAndServe(sctx, opts.HTTPAddr)
}
