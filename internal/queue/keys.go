package queue

import (
	"encoding/binary"

	"github.com/quillmq/quill/pkg/id"
)

// Key prefixes under q/{name}/
const (
	prefixMsg       = "msg/"   // message records
	prefixReady     = "ready/" // availability index (standard)
	prefixGroup     = "grp/"   // availability index (fifo, per group)
	prefixGroupLock = "gl/"    // group lock while leased
	prefixDelay     = "delay/" // delayed message index
	prefixLease     = "lease/" // active leases
	prefixLeaseIdx  = "lidx/"  // lease expiry index
	prefixReceipt   = "rcpt/"  // receipt handle lookup
	prefixDedup     = "dedup/" // dedup records
	prefixDedupIdx  = "didx/"  // dedup expiry index
)

// queuePrefix returns the base prefix for a queue.
// Format: q/{name}/
func queuePrefix(name string) string {
	return "q/" + name + "/"
}

// msgKey returns the message record key.
// Format: q/{name}/msg/{id}
func msgKey(name string, msgID id.ID) []byte {
	prefix := queuePrefix(name) + prefixMsg
	key := make([]byte, len(prefix)+16)
	copy(key, prefix)
	copy(key[len(prefix):], msgID[:])
	return key
}

// readyKey returns the standard availability index key.
// Format: q/{name}/ready/{id}
func readyKey(name string, msgID id.ID) []byte {
	prefix := queuePrefix(name) + prefixReady
	key := make([]byte, len(prefix)+16)
	copy(key, prefix)
	copy(key[len(prefix):], msgID[:])
	return key
}

// groupKey returns the FIFO availability index key.
// Format: q/{name}/grp/{group}/{id}
func groupKey(name, group string, msgID id.ID) []byte {
	prefix := queuePrefix(name) + prefixGroup + group + "/"
	key := make([]byte, len(prefix)+16)
	copy(key, prefix)
	copy(key[len(prefix):], msgID[:])
	return key
}

// groupLockKey returns the group lock key. The value is the leased message ID.
// Format: q/{name}/gl/{group}
func groupLockKey(name, group string) []byte {
	return []byte(queuePrefix(name) + prefixGroupLock + group)
}

// delayKey returns the delay index key. The value holds the group, if any.
// Format: q/{name}/delay/{due_ms}/{id}
func delayKey(name string, dueMs int64, msgID id.ID) []byte {
	prefix := queuePrefix(name) + prefixDelay
	key := make([]byte, len(prefix)+8+16)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], uint64(dueMs))
	copy(key[len(prefix)+8:], msgID[:])
	return key
}

// leaseKey returns the lease record key.
// Format: q/{name}/lease/{id}
func leaseKey(name string, msgID id.ID) []byte {
	prefix := queuePrefix(name) + prefixLease
	key := make([]byte, len(prefix)+16)
	copy(key, prefix)
	copy(key[len(prefix):], msgID[:])
	return key
}

// leaseIdxKey returns the lease expiry index key.
// Format: q/{name}/lidx/{expires_ms}/{id}
func leaseIdxKey(name string, expiresMs int64, msgID id.ID) []byte {
	prefix := queuePrefix(name) + prefixLeaseIdx
	key := make([]byte, len(prefix)+8+16)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], uint64(expiresMs))
	copy(key[len(prefix)+8:], msgID[:])
	return key
}

// receiptKey returns the receipt lookup key. The value is the message ID.
// Format: q/{name}/rcpt/{receipt}
func receiptKey(name, receipt string) []byte {
	return []byte(queuePrefix(name) + prefixReceipt + receipt)
}

// dedupRecordKey returns the dedup record key.
// Format: q/{name}/dedup/{key}
func dedupRecordKey(name, key string) []byte {
	return []byte(queuePrefix(name) + prefixDedup + key)
}

// dedupIdxKey returns the dedup expiry index key.
// Format: q/{name}/didx/{expires_ms}/{key}
func dedupIdxKey(name string, expiresMs int64, key string) []byte {
	prefix := queuePrefix(name) + prefixDedupIdx
	out := make([]byte, len(prefix)+8+len(key))
	copy(out, prefix)
	binary.BigEndian.PutUint64(out[len(prefix):], uint64(expiresMs))
	copy(out[len(prefix)+8:], key)
	return out
}

// keyRange returns start and end keys for scanning a prefix.
// The end key is exclusive (prefix + 0xFF suffix).
func keyRange(prefix string) ([]byte, []byte) {
	start := []byte(prefix)
	end := make([]byte, len(prefix)+1)
	copy(end, prefix)
	end[len(prefix)] = 0xFF
	return start, end
}

// scanPrefix returns the scan range for a sub-prefix of a queue.
func scanPrefix(name, prefix string) ([]byte, []byte) {
	return keyRange(queuePrefix(name) + prefix)
}

// idFromKeySuffix extracts the trailing 16-byte message ID from an index key.
func idFromKeySuffix(key []byte) (id.ID, bool) {
	if len(key) < 16 {
		return id.ID{}, false
	}
	var out id.ID
	copy(out[:], key[len(key)-16:])
	return out, true
}

// groupFromGroupKey extracts the group from a grp/ index key. The group is
// everything between the prefix and the trailing "/{id}", so group names may
// themselves contain slashes.
func groupFromGroupKey(name string, key []byte) (string, bool) {
	prefix := queuePrefix(name) + prefixGroup
	if len(key) < len(prefix)+1+16 {
		return "", false
	}
	return string(key[len(prefix) : len(key)-17]), true
}
