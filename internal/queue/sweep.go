package queue

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/cockroachdb/pebble"
)

// PromoteDue moves delayed messages whose due time passed into the
// availability index. Returns the number promoted.
// If nowMs <= 0, time.Now().UnixMilli() is used.
func (q *Queue) PromoteDue(ctx context.Context, nowMs int64, max int) (int, error) {
	if nowMs <= 0 {
		nowMs = time.Now().UnixMilli()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	n, err := q.promoteDueLocked(ctx, nowMs, max)
	if err != nil {
		return n, err
	}
	if n > 0 {
		q.notifyLocked()
	}
	return n, nil
}

func (q *Queue) promoteDueLocked(ctx context.Context, nowMs int64, max int) (int, error) {
	prefix := queuePrefix(q.cfg.Name) + prefixDelay
	lo, hi := keyRange(prefix)
	iter, err := q.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	b := q.db.NewBatch()
	defer b.Close()

	promoted := 0
	for ok := iter.First(); ok; ok = iter.Next() {
		k := iter.Key()
		if len(k) < len(prefix)+8+16 {
			continue
		}
		due := int64(binary.BigEndian.Uint64(k[len(prefix) : len(prefix)+8]))
		if due > nowMs {
			break
		}
		msgID, okID := idFromKeySuffix(k)
		if !okID {
			continue
		}
		group := string(iter.Value())
		if err := b.Delete(k, nil); err != nil {
			return promoted, err
		}
		if q.cfg.Kind == KindFIFO && group != "" {
			if err := b.Set(groupKey(q.cfg.Name, group, msgID), encodeCount(0), nil); err != nil {
				return promoted, err
			}
		} else {
			if err := b.Set(readyKey(q.cfg.Name, msgID), encodeCount(0), nil); err != nil {
				return promoted, err
			}
		}
		promoted++
		if max > 0 && promoted >= max {
			break
		}
	}
	if promoted == 0 {
		return 0, nil
	}
	return promoted, q.db.CommitBatch(ctx, b)
}

// ExpireDedup drops deduplication records whose window closed. Returns the
// number removed. If nowMs <= 0, time.Now().UnixMilli() is used.
func (q *Queue) ExpireDedup(ctx context.Context, nowMs int64, max int) (int, error) {
	if nowMs <= 0 {
		nowMs = time.Now().UnixMilli()
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	prefix := queuePrefix(q.cfg.Name) + prefixDedupIdx
	lo, hi := keyRange(prefix)
	iter, err := q.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	b := q.db.NewBatch()
	defer b.Close()

	removed := 0
	for ok := iter.First(); ok; ok = iter.Next() {
		k := iter.Key()
		if len(k) < len(prefix)+8 {
			continue
		}
		exp := int64(binary.BigEndian.Uint64(k[len(prefix) : len(prefix)+8]))
		if exp > nowMs {
			break
		}
		key := string(k[len(prefix)+8:])
		if err := b.Delete(k, nil); err != nil {
			return removed, err
		}
		// A resend after expiry re-creates the record under the same key
		// with a fresh window; only drop it when the live record is the
		// one this index entry tracked.
		if raw, errGet := q.db.Get(dedupRecordKey(q.cfg.Name, key)); errGet == nil {
			var rec dedupRecord
			if json.Unmarshal(raw, &rec) == nil && rec.ExpiresAtMs <= nowMs {
				if err := b.Delete(dedupRecordKey(q.cfg.Name, key), nil); err != nil {
					return removed, err
				}
			}
		}
		removed++
		if max > 0 && removed >= max {
			break
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, q.db.CommitBatch(ctx, b)
}

// EnforceRetention drops messages older than the queue's retention period.
// Message keys sort by enqueue time, so the scan stops at the first record
// still inside the window. In-flight messages are left to their lease; delay
// entries of dropped messages are removed in the same batch.
// Returns the number dropped. If nowMs <= 0, time.Now().UnixMilli() is used.
func (q *Queue) EnforceRetention(ctx context.Context, nowMs int64, max int) (int, error) {
	if nowMs <= 0 {
		nowMs = time.Now().UnixMilli()
	}
	if q.cfg.RetentionPeriodMs <= 0 {
		return 0, nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	prefix := queuePrefix(q.cfg.Name) + prefixMsg
	lo, hi := keyRange(prefix)
	iter, err := q.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	b := q.db.NewBatch()
	defer b.Close()

	dropped := 0
	for ok := iter.First(); ok; ok = iter.Next() {
		msgID, okID := idFromKeySuffix(iter.Key())
		if !okID {
			continue
		}
		if msgID.TimeMs()+q.cfg.RetentionPeriodMs > nowMs {
			break
		}
		if _, errGet := q.db.Get(leaseKey(q.cfg.Name, msgID)); errGet == nil {
			continue
		}
		if err := b.Delete(iter.Key(), nil); err != nil {
			return dropped, err
		}
		if err := b.Delete(readyKey(q.cfg.Name, msgID), nil); err != nil {
			return dropped, err
		}
		if h, _, errDec := decodeRecord(iter.Value()); errDec == nil && h.Group != "" {
			if err := b.Delete(groupKey(q.cfg.Name, h.Group, msgID), nil); err != nil {
				return dropped, err
			}
		}
		dropped++
		if max > 0 && dropped >= max {
			break
		}
	}

	// The delay index is keyed by due time, not enqueue time, so expired
	// IDs are filtered per entry.
	cleaned := 0
	dlo, dhi := scanPrefix(q.cfg.Name, prefixDelay)
	diter, err := q.db.NewIter(&pebble.IterOptions{LowerBound: dlo, UpperBound: dhi})
	if err != nil {
		return dropped, err
	}
	defer diter.Close()
	for ok := diter.First(); ok; ok = diter.Next() {
		msgID, okID := idFromKeySuffix(diter.Key())
		if !okID {
			continue
		}
		if msgID.TimeMs()+q.cfg.RetentionPeriodMs > nowMs {
			continue
		}
		if err := b.Delete(diter.Key(), nil); err != nil {
			return dropped, err
		}
		cleaned++
		if max > 0 && cleaned >= max {
			break
		}
	}

	if dropped == 0 && cleaned == 0 {
		return 0, nil
	}
	return dropped, q.db.CommitBatch(ctx, b)
}
