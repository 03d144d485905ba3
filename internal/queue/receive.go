package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"github.com/quillmq/quill/pkg/id"
)

// Receive leases up to max available messages for visibilityMs milliseconds.
// An empty result is not an error. Messages at or over the redrive policy's
// maximum receive count are moved to the dead-letter queue instead of being
// delivered. On FIFO queues at most one message per group is in flight, and
// groups deliver strictly in ID (arrival) order.
// If nowMs <= 0, time.Now().UnixMilli() is used.
func (q *Queue) Receive(ctx context.Context, max int, visibilityMs int64, nowMs int64) ([]Message, error) {
	if nowMs <= 0 {
		nowMs = time.Now().UnixMilli()
	}
	if max <= 0 {
		max = 1
	}
	if visibilityMs <= 0 {
		visibilityMs = q.cfg.VisibilityTimeoutMs
	}

	unlock := q.lockForRedrive()
	defer unlock()

	// Pull due delayed messages in before scanning availability so a
	// receive right after the due time does not depend on sweeper timing.
	if _, err := q.promoteDueLocked(ctx, nowMs, max*4); err != nil {
		return nil, err
	}

	b := q.db.NewBatch()
	defer b.Close()

	var (
		msgs      []Message
		deadMoved int
		mutated   bool
	)

	scan := func() error {
		if q.cfg.Kind == KindFIFO {
			return q.receiveFIFOLocked(b, max, visibilityMs, nowMs, &msgs, &deadMoved, &mutated)
		}
		return q.receiveStandardLocked(b, max, visibilityMs, nowMs, &msgs, &deadMoved, &mutated)
	}
	if err := scan(); err != nil {
		return nil, err
	}

	if !mutated {
		return nil, nil
	}
	if err := q.db.CommitBatch(ctx, b); err != nil {
		return nil, err
	}
	if deadMoved > 0 && q.dlq != nil && q.dlq != q {
		q.dlq.notifyLocked()
	}
	return msgs, nil
}

func (q *Queue) receiveStandardLocked(b *pebble.Batch, max int, visibilityMs, nowMs int64, msgs *[]Message, deadMoved *int, mutated *bool) error {
	lo, hi := scanPrefix(q.cfg.Name, prefixReady)
	iter, err := q.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return err
	}
	defer iter.Close()

	for ok := iter.First(); ok && len(*msgs) < max; ok = iter.Next() {
		msgID, okID := idFromKeySuffix(iter.Key())
		if !okID {
			continue
		}
		raw, errGet := q.db.Get(msgKey(q.cfg.Name, msgID))
		if errGet != nil {
			// availability entry without a record (retention dropped it)
			if err := b.Delete(iter.Key(), nil); err != nil {
				return err
			}
			*mutated = true
			continue
		}
		h, body, errDec := decodeRecord(raw)
		if errDec != nil {
			if err := b.Delete(iter.Key(), nil); err != nil {
				return err
			}
			if err := b.Delete(msgKey(q.cfg.Name, msgID), nil); err != nil {
				return err
			}
			*mutated = true
			continue
		}
		rc := decodeCount(iter.Value())
		if q.redriveDue(rc) {
			if err := q.moveToDLQLocked(b, msgID, h.Group, raw); err != nil {
				return err
			}
			if err := b.Delete(iter.Key(), nil); err != nil {
				return err
			}
			if err := b.Delete(msgKey(q.cfg.Name, msgID), nil); err != nil {
				return err
			}
			*deadMoved++
			*mutated = true
			continue
		}
		m, err := q.grantLocked(b, msgID, h, body, rc+1, nowMs+visibilityMs)
		if err != nil {
			return err
		}
		if err := b.Delete(iter.Key(), nil); err != nil {
			return err
		}
		*msgs = append(*msgs, m)
		*mutated = true
	}
	return nil
}

func (q *Queue) receiveFIFOLocked(b *pebble.Batch, max int, visibilityMs, nowMs int64, msgs *[]Message, deadMoved *int, mutated *bool) error {
	lo, hi := scanPrefix(q.cfg.Name, prefixGroup)
	iter, err := q.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return err
	}
	defer iter.Close()

	// Entries sort by group then ID, so the first entry seen per group is
	// its head. Once a group is leased (here or previously) the rest of its
	// entries are skipped.
	var skipGroup string
	var haveSkip bool
	for ok := iter.First(); ok && len(*msgs) < max; ok = iter.Next() {
		group, okG := groupFromGroupKey(q.cfg.Name, iter.Key())
		if !okG {
			continue
		}
		if haveSkip && group == skipGroup {
			continue
		}
		if _, errGet := q.db.Get(groupLockKey(q.cfg.Name, group)); errGet == nil {
			skipGroup, haveSkip = group, true
			continue
		}
		msgID, okID := idFromKeySuffix(iter.Key())
		if !okID {
			continue
		}
		raw, errGet := q.db.Get(msgKey(q.cfg.Name, msgID))
		if errGet != nil {
			if err := b.Delete(iter.Key(), nil); err != nil {
				return err
			}
			*mutated = true
			continue
		}
		h, body, errDec := decodeRecord(raw)
		if errDec != nil {
			if err := b.Delete(iter.Key(), nil); err != nil {
				return err
			}
			if err := b.Delete(msgKey(q.cfg.Name, msgID), nil); err != nil {
				return err
			}
			*mutated = true
			continue
		}
		rc := decodeCount(iter.Value())
		if q.redriveDue(rc) {
			// Dead-letter the head; the next entry of this group becomes
			// eligible on the following iteration.
			if err := q.moveToDLQLocked(b, msgID, group, raw); err != nil {
				return err
			}
			if err := b.Delete(iter.Key(), nil); err != nil {
				return err
			}
			if err := b.Delete(msgKey(q.cfg.Name, msgID), nil); err != nil {
				return err
			}
			*deadMoved++
			*mutated = true
			continue
		}
		// The availability entry stays in place while leased so the group
		// keeps its order; only the count value and the group lock change.
		if err := b.Set(iter.Key(), encodeCount(rc+1), nil); err != nil {
			return err
		}
		if err := b.Set(groupLockKey(q.cfg.Name, group), msgID.Bytes(), nil); err != nil {
			return err
		}
		m, err := q.grantLocked(b, msgID, h, body, rc+1, nowMs+visibilityMs)
		if err != nil {
			return err
		}
		*msgs = append(*msgs, m)
		*mutated = true
		skipGroup, haveSkip = group, true
	}
	return nil
}

// redriveDue reports whether a message with the given receive count must be
// dead-lettered instead of delivered.
func (q *Queue) redriveDue(rc uint32) bool {
	return q.dlq != nil && q.cfg.Redrive != nil && int(rc) >= q.cfg.Redrive.MaxReceiveCount
}

// moveToDLQLocked writes the raw message record into the dead-letter queue
// with its receive count reset. Both queue locks are held; the caller
// removes the source keys in the same batch, so the move commits atomically.
func (q *Queue) moveToDLQLocked(b *pebble.Batch, msgID id.ID, group string, raw []byte) error {
	d := q.dlq
	if err := b.Set(msgKey(d.cfg.Name, msgID), raw, nil); err != nil {
		return err
	}
	if d.cfg.Kind == KindFIFO {
		return b.Set(groupKey(d.cfg.Name, group, msgID), encodeCount(0), nil)
	}
	return b.Set(readyKey(d.cfg.Name, msgID), encodeCount(0), nil)
}

// grantLocked writes the lease, expiry index and receipt lookup for a
// delivery and returns the message handed to the consumer.
func (q *Queue) grantLocked(b *pebble.Batch, msgID id.ID, h msgHeader, body []byte, rc uint32, expiresMs int64) (Message, error) {
	receipt := uuid.NewString()
	lr := leaseRecord{Receipt: receipt, ExpiresAtMs: expiresMs, ReceiveCount: int(rc), Group: h.Group}
	raw, err := json.Marshal(lr)
	if err != nil {
		return Message{}, err
	}
	if err := b.Set(leaseKey(q.cfg.Name, msgID), raw, nil); err != nil {
		return Message{}, err
	}
	if err := b.Set(leaseIdxKey(q.cfg.Name, expiresMs, msgID), nil, nil); err != nil {
		return Message{}, err
	}
	if err := b.Set(receiptKey(q.cfg.Name, receipt), msgID.Bytes(), nil); err != nil {
		return Message{}, err
	}
	return Message{
		ID:            msgID,
		Body:          body,
		Attributes:    h.Attrs,
		Group:         h.Group,
		ReceiptHandle: receipt,
		ReceiveCount:  int(rc),
		EnqueuedAtMs:  msgID.TimeMs(),
		ExpiresAtMs:   expiresMs,
	}, nil
}
