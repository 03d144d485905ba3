package registry

import (
	"context"
	"math/rand"
	"time"

	"github.com/quillmq/quill/pkg/log"
)

// Sweeper drives the time-based work of every queue in a registry: promoting
// due delayed messages, expiring leases (including redrive), dropping closed
// dedup windows and enforcing retention. One sweeper runs per engine.
type Sweeper struct {
	reg      *Registry
	interval time.Duration
	batch    int
	logger   log.Logger

	stop chan struct{}
	done chan struct{}
}

// NewSweeper builds a sweeper over the registry. interval and batch fall
// back to sane values when zero.
func NewSweeper(reg *Registry, interval time.Duration, batch int, logger log.Logger) *Sweeper {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	if batch <= 0 {
		batch = 1024
	}
	return &Sweeper{
		reg:      reg,
		interval: interval,
		batch:    batch,
		logger:   logger.With(log.Component("sweeper")),
	}
}

// Start runs the background loop. Ticks are jittered so multiple engines on
// one host do not align their compaction-heavy work. Start and Stop are not
// safe for concurrent use; the owning runtime calls them from one goroutine.
func (s *Sweeper) Start() {
	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		for {
			select {
			case <-s.stop:
				return
			case <-time.After(s.interval + time.Duration(rng.Int63n(int64(s.interval/10+1)))):
				s.Tick(context.Background(), time.Now().UnixMilli())
			}
		}
	}()
}

// Stop halts the background loop and waits for the in-flight tick.
func (s *Sweeper) Stop() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
	s.stop = nil
	s.done = nil
}

// Tick sweeps every queue once. Errors are logged and do not stop the pass;
// a queue with a failing sweep is retried on the next tick.
func (s *Sweeper) Tick(ctx context.Context, nowMs int64) {
	for _, q := range s.reg.All() {
		if _, err := q.PromoteDue(ctx, nowMs, s.batch); err != nil {
			s.logger.Warn("promote due failed", log.Str("queue", q.Name()), log.Err(err))
		}
		if _, err := q.ExpireLeases(ctx, nowMs, s.batch); err != nil {
			s.logger.Warn("expire leases failed", log.Str("queue", q.Name()), log.Err(err))
		}
		if _, err := q.ExpireDedup(ctx, nowMs, s.batch); err != nil {
			s.logger.Warn("expire dedup failed", log.Str("queue", q.Name()), log.Err(err))
		}
		if _, err := q.EnforceRetention(ctx, nowMs, s.batch); err != nil {
			s.logger.Warn("retention sweep failed", log.Str("queue", q.Name()), log.Err(err))
		}
	}
}
