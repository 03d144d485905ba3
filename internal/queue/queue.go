package queue

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/quillmq/quill/internal/storage/pebble"
	"github.com/quillmq/quill/pkg/id"
)

// Queue is a single named queue backed by a shared Pebble database. All
// state-changing operations take the queue mutex; operations that may
// dead-letter also take the target queue's mutex (see lockForRedrive).
type Queue struct {
	db  *pebblestore.DB
	cfg Config
	ids *id.Generator

	mu     sync.Mutex
	notify chan struct{}

	// dlq is wired by the registry when cfg.Redrive is set.
	dlq *Queue
}

// Open initializes a Queue over the shared database. The ID generator is
// shared across queues so message IDs stay unique and time-ordered
// process-wide.
func Open(db *pebblestore.DB, cfg Config, ids *id.Generator) *Queue {
	return &Queue{db: db, cfg: cfg, ids: ids, notify: make(chan struct{})}
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.cfg.Name }

// Kind returns the queue delivery mode.
func (q *Queue) Kind() Kind { return q.cfg.Kind }

// Config returns the queue configuration.
func (q *Queue) Config() Config { return q.cfg }

// SetDeadLetter wires the dead-letter target. Called by the registry after
// all queues are open.
func (q *Queue) SetDeadLetter(d *Queue) { q.dlq = d }

// lockForRedrive locks this queue and, when a dead-letter target is wired,
// the target as well. Locks are taken in lexicographic name order so two
// queues pointing at each other cannot deadlock. Returns the unlock func.
func (q *Queue) lockForRedrive() func() {
	d := q.dlq
	if d == nil || d == q {
		q.mu.Lock()
		return q.mu.Unlock
	}
	first, second := q, d
	if d.cfg.Name < q.cfg.Name {
		first, second = d, q
	}
	first.mu.Lock()
	second.mu.Lock()
	return func() {
		second.mu.Unlock()
		first.mu.Unlock()
	}
}

// notifyLocked wakes every waiter blocked in WaitForSend. Callers hold q.mu.
func (q *Queue) notifyLocked() {
	close(q.notify)
	q.notify = make(chan struct{})
}

// WaitForSend blocks until a message becomes available for delivery on this
// queue, the duration elapses, or ctx is done. Returns true when woken by a
// send or promotion. No queue lock is held while waiting.
func (q *Queue) WaitForSend(ctx context.Context, d time.Duration) bool {
	q.mu.Lock()
	ch := q.notify
	q.mu.Unlock()
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return false
	case <-ch:
		return true
	}
}

type dedupRecord struct {
	ID          string `json:"id"`
	ExpiresAtMs int64  `json:"expiresAtMs"`
}

// contentDedupKey derives the deduplication key for FIFO sends that do not
// supply one: the hex SHA-256 of the body.
func contentDedupKey(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Send enqueues a message. Delayed messages are indexed by due time and
// promoted by the sweeper (or opportunistically at receive). On a FIFO queue
// a group is required, and a send whose dedup key matches an unexpired
// record returns the original message ID without enqueueing.
// If nowMs <= 0, time.Now().UnixMilli() is used.
func (q *Queue) Send(ctx context.Context, in SendInput, nowMs int64) (id.ID, error) {
	if nowMs <= 0 {
		nowMs = time.Now().UnixMilli()
	}

	fifo := q.cfg.Kind == KindFIFO
	dedupKey := in.DedupKey
	if fifo {
		if in.Group == "" {
			return id.ID{}, ErrMissingGroupID
		}
		if dedupKey == "" {
			dedupKey = contentDedupKey(in.Body)
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if fifo {
		if existing, err := q.db.Get(dedupRecordKey(q.cfg.Name, dedupKey)); err == nil {
			var rec dedupRecord
			if json.Unmarshal(existing, &rec) == nil && rec.ExpiresAtMs > nowMs {
				return id.Parse(rec.ID)
			}
		}
	}

	msgID := q.ids.NextAt(nowMs)
	val, err := encodeRecord(msgHeader{Attrs: in.Attributes, Group: in.Group, DedupKey: dedupKey}, in.Body)
	if err != nil {
		return id.ID{}, fmt.Errorf("encode message: %w", err)
	}

	b := q.db.NewBatch()
	defer b.Close()

	if err := b.Set(msgKey(q.cfg.Name, msgID), val, nil); err != nil {
		return id.ID{}, err
	}
	if in.DelayMs > 0 {
		if err := b.Set(delayKey(q.cfg.Name, nowMs+in.DelayMs, msgID), []byte(in.Group), nil); err != nil {
			return id.ID{}, err
		}
	} else if fifo {
		if err := b.Set(groupKey(q.cfg.Name, in.Group, msgID), encodeCount(0), nil); err != nil {
			return id.ID{}, err
		}
	} else {
		if err := b.Set(readyKey(q.cfg.Name, msgID), encodeCount(0), nil); err != nil {
			return id.ID{}, err
		}
	}
	if fifo {
		rec, err := json.Marshal(dedupRecord{ID: msgID.String(), ExpiresAtMs: nowMs + q.cfg.DedupWindowMs})
		if err != nil {
			return id.ID{}, err
		}
		if err := b.Set(dedupRecordKey(q.cfg.Name, dedupKey), rec, nil); err != nil {
			return id.ID{}, err
		}
		if err := b.Set(dedupIdxKey(q.cfg.Name, nowMs+q.cfg.DedupWindowMs, dedupKey), nil, nil); err != nil {
			return id.ID{}, err
		}
	}

	if err := q.db.CommitBatch(ctx, b); err != nil {
		return id.ID{}, err
	}
	if in.DelayMs <= 0 {
		q.notifyLocked()
	}
	return msgID, nil
}

// encodeCount encodes a receive count as the 4-byte value of an
// availability index entry.
func encodeCount(rc uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], rc)
	return buf[:]
}

func decodeCount(val []byte) uint32 {
	if len(val) < 4 {
		return 0
	}
	return binary.BigEndian.Uint32(val[:4])
}

// Purge removes all messages, leases and dedup state of the queue in one
// range delete. Issued receipt handles become invalid.
func (q *Queue) Purge(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	start, end := keyRange(queuePrefix(q.cfg.Name))
	return q.db.DeleteRange(start, end)
}

// Stats counts the live availability, in-flight and delayed messages.
func (q *Queue) Stats() (Stats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	ready, err := q.countPrefix(prefixReady)
	if err != nil {
		return Stats{}, err
	}
	grouped, err := q.countPrefix(prefixGroup)
	if err != nil {
		return Stats{}, err
	}
	leases, err := q.countPrefix(prefixLease)
	if err != nil {
		return Stats{}, err
	}
	delayed, err := q.countPrefix(prefixDelay)
	if err != nil {
		return Stats{}, err
	}

	// FIFO availability entries stay in place while the group head is
	// leased, so in-flight messages are subtracted back out.
	available := ready + grouped
	if q.cfg.Kind == KindFIFO {
		available -= leases
		if available < 0 {
			available = 0
		}
	}
	return Stats{Available: available, InFlight: leases, Delayed: delayed}, nil
}

func (q *Queue) countPrefix(prefix string) (int, error) {
	lo, hi := scanPrefix(q.cfg.Name, prefix)
	iter, err := q.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	n := 0
	for ok := iter.First(); ok; ok = iter.Next() {
		n++
	}
	return n, nil
}
