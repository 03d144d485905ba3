package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/quillmq/quill/internal/config"
	"github.com/quillmq/quill/internal/queue"
	pebblestore "github.com/quillmq/quill/internal/storage/pebble"
	"github.com/quillmq/quill/pkg/id"
	"github.com/quillmq/quill/pkg/log"
)

const cfgPrefix = "qcfg/"

const fifoSuffix = ".fifo"

// ErrInvalidQueueName is returned when a queue name fails validation.
var ErrInvalidQueueName = errors.New("invalid queue name")

// ErrInvalidRedrive is returned when a redrive policy is malformed or its
// target is unsuitable.
var ErrInvalidRedrive = errors.New("invalid redrive policy")

// ErrQueueExists is returned when a queue is re-created with a configuration
// that differs from the existing one.
var ErrQueueExists = errors.New("queue exists with a different configuration")

// Registry owns all queues of a database. Queue handles are cached for the
// process lifetime; configuration is persisted under qcfg/{name}.
type Registry struct {
	db       *pebblestore.DB
	defaults config.Config
	ids      *id.Generator
	logger   log.Logger
	nameRe   *regexp.Regexp

	mu     sync.RWMutex
	queues map[string]*queue.Queue
}

// Open loads every persisted queue configuration, opens the queues and wires
// dead-letter targets.
func Open(db *pebblestore.DB, defaults config.Config, logger log.Logger) (*Registry, error) {
	nameRe, err := regexp.Compile(defaults.QueueNameRegex)
	if err != nil {
		return nil, fmt.Errorf("compile queue name regex: %w", err)
	}
	r := &Registry{
		db:       db,
		defaults: defaults,
		ids:      id.NewGenerator(),
		logger:   logger.With(log.Component("registry")),
		nameRe:   nameRe,
		queues:   make(map[string]*queue.Queue),
	}

	lo := []byte(cfgPrefix)
	hi := append(append([]byte{}, lo...), 0xFF)
	iter, err := db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	for ok := iter.First(); ok; ok = iter.Next() {
		var cfg queue.Config
		if err := json.Unmarshal(iter.Value(), &cfg); err != nil {
			r.logger.Warn("skipping unreadable queue config", log.Str("key", string(iter.Key())), log.Err(err))
			continue
		}
		r.queues[cfg.Name] = queue.Open(db, cfg, r.ids)
	}

	for name, q := range r.queues {
		rd := q.Config().Redrive
		if rd == nil {
			continue
		}
		target, ok := r.queues[rd.TargetQueue]
		if !ok {
			r.logger.Warn("dead-letter target missing, redrive disabled",
				log.Str("queue", name), log.Str("target", rd.TargetQueue))
			continue
		}
		q.SetDeadLetter(target)
	}
	r.logger.Info("registry opened", log.Int("queues", len(r.queues)))
	return r, nil
}

// Create ensures a queue with the given configuration exists. Re-creating a
// queue with the same configuration returns the existing queue; a differing
// configuration is rejected with ErrQueueExists. Zero durations take the
// engine defaults; FIFO queue names must carry the .fifo suffix and standard
// names must not.
func (r *Registry) Create(ctx context.Context, cfg queue.Config) (*queue.Queue, error) {
	if cfg.Kind == "" {
		cfg.Kind = queue.KindStandard
	}
	if !r.nameRe.MatchString(cfg.Name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidQueueName, cfg.Name)
	}
	if fifo := strings.HasSuffix(cfg.Name, fifoSuffix); fifo != (cfg.Kind == queue.KindFIFO) {
		return nil, fmt.Errorf("%w: %q must end in %q exactly when the queue is fifo", ErrInvalidQueueName, cfg.Name, fifoSuffix)
	}
	if cfg.VisibilityTimeoutMs <= 0 {
		cfg.VisibilityTimeoutMs = r.defaults.DefaultVisibilityTimeoutMs
	}
	if cfg.RetentionPeriodMs <= 0 {
		cfg.RetentionPeriodMs = r.defaults.DefaultRetentionPeriodMs
	}
	if cfg.DedupWindowMs <= 0 {
		cfg.DedupWindowMs = r.defaults.DefaultDedupWindowMs
	}
	if cfg.CreatedAtMs <= 0 {
		cfg.CreatedAtMs = time.Now().UnixMilli()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.queues[cfg.Name]; ok {
		if !sameConfig(existing.Config(), cfg) {
			return nil, fmt.Errorf("%q: %w", cfg.Name, ErrQueueExists)
		}
		return existing, nil
	}

	var target *queue.Queue
	if rd := cfg.Redrive; rd != nil {
		if rd.MaxReceiveCount < 1 {
			return nil, fmt.Errorf("%w: maxReceiveCount must be >= 1", ErrInvalidRedrive)
		}
		t, ok := r.queues[rd.TargetQueue]
		if !ok {
			return nil, fmt.Errorf("%w: target %q: %w", ErrInvalidRedrive, rd.TargetQueue, queue.ErrQueueNotFound)
		}
		if t.Kind() != cfg.Kind {
			return nil, fmt.Errorf("%w: target %q kind mismatch", ErrInvalidRedrive, rd.TargetQueue)
		}
		target = t
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	if err := r.db.Set([]byte(cfgPrefix+cfg.Name), raw); err != nil {
		return nil, err
	}

	q := queue.Open(r.db, cfg, r.ids)
	if target != nil {
		q.SetDeadLetter(target)
	}
	r.queues[cfg.Name] = q
	r.logger.Info("queue created", log.Str("queue", cfg.Name), log.Str("kind", string(cfg.Kind)))
	return q, nil
}

// sameConfig compares the caller-visible parts of two configurations.
// CreatedAtMs is assigned at creation and ignored.
func sameConfig(a, b queue.Config) bool {
	if a.Kind != b.Kind ||
		a.VisibilityTimeoutMs != b.VisibilityTimeoutMs ||
		a.RetentionPeriodMs != b.RetentionPeriodMs ||
		a.DedupWindowMs != b.DedupWindowMs {
		return false
	}
	if (a.Redrive == nil) != (b.Redrive == nil) {
		return false
	}
	return a.Redrive == nil || *a.Redrive == *b.Redrive
}

// Get returns the queue with the given name.
func (r *Registry) Get(name string) (*queue.Queue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.queues[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, queue.ErrQueueNotFound)
	}
	return q, nil
}

// List returns the configurations of all queues whose name starts with
// prefix, sorted by name. An empty prefix lists everything.
func (r *Registry) List(prefix string) []queue.Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []queue.Config
	for name, q := range r.queues {
		if prefix != "" && !strings.HasPrefix(name, prefix) {
			continue
		}
		out = append(out, q.Config())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// All returns a snapshot of the open queues.
func (r *Registry) All() []*queue.Queue {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*queue.Queue, 0, len(r.queues))
	for _, q := range r.queues {
		out = append(out, q)
	}
	return out
}

// Delete removes a queue, its configuration and all of its data. A queue
// that another queue's redrive policy targets cannot be deleted.
func (r *Registry) Delete(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.queues[name]
	if !ok {
		return fmt.Errorf("%q: %w", name, queue.ErrQueueNotFound)
	}
	for other, oq := range r.queues {
		if other == name {
			continue
		}
		if rd := oq.Config().Redrive; rd != nil && rd.TargetQueue == name {
			return fmt.Errorf("%q is the dead-letter target of %q: %w", name, other, queue.ErrQueueReferenced)
		}
	}
	if err := q.Purge(ctx); err != nil {
		return err
	}
	if err := r.db.Delete([]byte(cfgPrefix + name)); err != nil {
		return err
	}
	delete(r.queues, name)
	r.logger.Info("queue deleted", log.Str("queue", name))
	return nil
}
