package queue

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/quillmq/quill/pkg/id"
)

// leaseRecord is the JSON value stored under lease/{id} while a message is
// in flight.
type leaseRecord struct {
	Receipt      string `json:"receipt"`
	ExpiresAtMs  int64  `json:"expiresAtMs"`
	ReceiveCount int    `json:"receiveCount"`
	Group        string `json:"group,omitempty"`
}

// lookupLeaseLocked resolves a receipt handle to its live lease. Any
// mismatch, including a lease that already expired, reports
// ErrInvalidReceiptHandle. Callers hold q.mu.
func (q *Queue) lookupLeaseLocked(receipt string, nowMs int64) (id.ID, leaseRecord, error) {
	idBytes, err := q.db.Get(receiptKey(q.cfg.Name, receipt))
	if err != nil {
		return id.ID{}, leaseRecord{}, ErrInvalidReceiptHandle
	}
	msgID, err := id.FromBytes(idBytes)
	if err != nil {
		return id.ID{}, leaseRecord{}, ErrInvalidReceiptHandle
	}
	raw, err := q.db.Get(leaseKey(q.cfg.Name, msgID))
	if err != nil {
		return id.ID{}, leaseRecord{}, ErrInvalidReceiptHandle
	}
	var lr leaseRecord
	if err := json.Unmarshal(raw, &lr); err != nil {
		return id.ID{}, leaseRecord{}, ErrInvalidReceiptHandle
	}
	if lr.Receipt != receipt || nowMs >= lr.ExpiresAtMs {
		return id.ID{}, leaseRecord{}, ErrInvalidReceiptHandle
	}
	return msgID, lr, nil
}

// Delete acknowledges a message, removing it permanently. The receipt must
// match the live lease and the lease must not have expired.
// If nowMs <= 0, time.Now().UnixMilli() is used.
func (q *Queue) Delete(ctx context.Context, receipt string, nowMs int64) error {
	if nowMs <= 0 {
		nowMs = time.Now().UnixMilli()
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	msgID, lr, err := q.lookupLeaseLocked(receipt, nowMs)
	if err != nil {
		return err
	}

	b := q.db.NewBatch()
	defer b.Close()
	if err := b.Delete(msgKey(q.cfg.Name, msgID), nil); err != nil {
		return err
	}
	if err := q.clearLeaseLocked(b, msgID, lr); err != nil {
		return err
	}
	fifo := q.cfg.Kind == KindFIFO
	if fifo {
		if err := b.Delete(groupKey(q.cfg.Name, lr.Group, msgID), nil); err != nil {
			return err
		}
		if err := b.Delete(groupLockKey(q.cfg.Name, lr.Group), nil); err != nil {
			return err
		}
	}
	if err := q.db.CommitBatch(ctx, b); err != nil {
		return err
	}
	if fifo {
		// the next message of the group is deliverable now
		q.notifyLocked()
	}
	return nil
}

// ChangeVisibility moves the lease expiry to nowMs+visibilityMs. A
// visibilityMs of zero (or less) releases the message immediately: it
// returns to availability and, on FIFO queues, the group unblocks. The
// receipt handle remains valid across an extension.
// If nowMs <= 0, time.Now().UnixMilli() is used.
func (q *Queue) ChangeVisibility(ctx context.Context, receipt string, visibilityMs, nowMs int64) error {
	if nowMs <= 0 {
		nowMs = time.Now().UnixMilli()
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	msgID, lr, err := q.lookupLeaseLocked(receipt, nowMs)
	if err != nil {
		return err
	}

	b := q.db.NewBatch()
	defer b.Close()

	if visibilityMs <= 0 {
		if err := q.releaseLocked(b, msgID, lr); err != nil {
			return err
		}
		if err := q.db.CommitBatch(ctx, b); err != nil {
			return err
		}
		q.notifyLocked()
		return nil
	}

	newExpiry := nowMs + visibilityMs
	updated := lr
	updated.ExpiresAtMs = newExpiry
	raw, err := json.Marshal(updated)
	if err != nil {
		return err
	}
	if err := b.Delete(leaseIdxKey(q.cfg.Name, lr.ExpiresAtMs, msgID), nil); err != nil {
		return err
	}
	if err := b.Set(leaseIdxKey(q.cfg.Name, newExpiry, msgID), nil, nil); err != nil {
		return err
	}
	if err := b.Set(leaseKey(q.cfg.Name, msgID), raw, nil); err != nil {
		return err
	}
	return q.db.CommitBatch(ctx, b)
}

// clearLeaseLocked removes the lease record, its expiry index entry and the
// receipt lookup.
func (q *Queue) clearLeaseLocked(b *pebble.Batch, msgID id.ID, lr leaseRecord) error {
	if err := b.Delete(leaseKey(q.cfg.Name, msgID), nil); err != nil {
		return err
	}
	if err := b.Delete(leaseIdxKey(q.cfg.Name, lr.ExpiresAtMs, msgID), nil); err != nil {
		return err
	}
	return b.Delete(receiptKey(q.cfg.Name, lr.Receipt), nil)
}

// releaseLocked returns a leased message to availability with its receive
// count preserved. FIFO availability entries were never removed, so only the
// group lock is lifted there.
func (q *Queue) releaseLocked(b *pebble.Batch, msgID id.ID, lr leaseRecord) error {
	if err := q.clearLeaseLocked(b, msgID, lr); err != nil {
		return err
	}
	if q.cfg.Kind == KindFIFO {
		return b.Delete(groupLockKey(q.cfg.Name, lr.Group), nil)
	}
	return b.Set(readyKey(q.cfg.Name, msgID), encodeCount(uint32(lr.ReceiveCount)), nil)
}

// ExpireLeases sweeps leases whose expiry passed, re-offering their messages
// or dead-lettering them per the redrive policy. Returns the number of
// leases processed. If nowMs <= 0, time.Now().UnixMilli() is used.
func (q *Queue) ExpireLeases(ctx context.Context, nowMs int64, max int) (int, error) {
	if nowMs <= 0 {
		nowMs = time.Now().UnixMilli()
	}
	unlock := q.lockForRedrive()
	defer unlock()

	prefix := queuePrefix(q.cfg.Name) + prefixLeaseIdx
	lo, hi := keyRange(prefix)
	iter, err := q.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	b := q.db.NewBatch()
	defer b.Close()

	var (
		processed int
		deadMoved int
		mutated   bool
	)
	for ok := iter.First(); ok; ok = iter.Next() {
		k := iter.Key()
		if len(k) < len(prefix)+8+16 {
			continue
		}
		exp := int64(binary.BigEndian.Uint64(k[len(prefix) : len(prefix)+8]))
		if exp > nowMs {
			break
		}
		msgID, okID := idFromKeySuffix(k)
		if !okID {
			continue
		}
		raw, errGet := q.db.Get(leaseKey(q.cfg.Name, msgID))
		if errGet != nil {
			if err := b.Delete(k, nil); err != nil {
				return processed, err
			}
			mutated = true
			continue
		}
		var lr leaseRecord
		if err := json.Unmarshal(raw, &lr); err != nil || lr.ExpiresAtMs > nowMs {
			if err := b.Delete(k, nil); err != nil {
				return processed, err
			}
			mutated = true
			continue
		}
		if q.redriveDue(uint32(lr.ReceiveCount)) {
			msgRaw, errMsg := q.db.Get(msgKey(q.cfg.Name, msgID))
			if errMsg == nil {
				if err := q.moveToDLQLocked(b, msgID, lr.Group, msgRaw); err != nil {
					return processed, err
				}
				deadMoved++
			}
			if err := b.Delete(msgKey(q.cfg.Name, msgID), nil); err != nil {
				return processed, err
			}
			if err := q.clearLeaseLocked(b, msgID, lr); err != nil {
				return processed, err
			}
			if q.cfg.Kind == KindFIFO {
				if err := b.Delete(groupKey(q.cfg.Name, lr.Group, msgID), nil); err != nil {
					return processed, err
				}
				if err := b.Delete(groupLockKey(q.cfg.Name, lr.Group), nil); err != nil {
					return processed, err
				}
			}
		} else {
			if err := q.releaseLocked(b, msgID, lr); err != nil {
				return processed, err
			}
		}
		processed++
		mutated = true
		if max > 0 && processed >= max {
			break
		}
	}

	if !mutated {
		return 0, nil
	}
	if err := q.db.CommitBatch(ctx, b); err != nil {
		return processed, err
	}
	if processed > deadMoved {
		q.notifyLocked()
	}
	if deadMoved > 0 && q.dlq != nil && q.dlq != q {
		q.dlq.notifyLocked()
	}
	return processed, nil
}
