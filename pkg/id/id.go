package id

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"math"
	"sync"
	"time"
)

// ID is a 128-bit, lexicographically sortable message identifier encoded as
// 16 bytes big-endian: [8 bytes ms_timestamp][8 bytes sequence]. Sorting IDs
// byte-wise therefore sorts them by creation time, which the queue key
// layout relies on.
type ID [16]byte

// Bytes returns the raw 16-byte representation.
func (i ID) Bytes() []byte { b := make([]byte, 16); copy(b, i[:]); return b }

// String returns the lowercase hex form.
func (i ID) String() string { return hex.EncodeToString(i[:]) }

// TimeMs returns the creation timestamp embedded in the ID, in milliseconds
// since the Unix epoch.
func (i ID) TimeMs() int64 { return int64(binary.BigEndian.Uint64(i[0:8])) }

// IsZero reports whether the ID is the zero value.
func (i ID) IsZero() bool { return i == ID{} }

// Compare returns -1, 0, 1 based on byte-wise comparison.
func (i ID) Compare(other ID) int {
	for idx := 0; idx < 16; idx++ {
		if i[idx] < other[idx] {
			return -1
		}
		if i[idx] > other[idx] {
			return 1
		}
	}
	return 0
}

// Parse decodes a 32-character hex string into an ID.
func Parse(s string) (ID, error) {
	var out ID
	if len(s) != 32 {
		return out, errors.New("id: expected 32 hex characters")
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

// FromBytes copies a raw 16-byte slice into an ID.
func FromBytes(b []byte) (ID, error) {
	var out ID
	if len(b) != 16 {
		return out, errors.New("id: expected 16 bytes")
	}
	copy(out[:], b)
	return out, nil
}

// Generator produces monotonically increasing IDs per process.
type Generator struct {
	mu       sync.Mutex
	lastMs   int64
	sequence uint64
}

// NewGenerator creates a new Generator.
func NewGenerator() *Generator { return &Generator{} }

// Next returns a new ID stamped with the current wall clock.
func (g *Generator) Next() ID { return g.NextAt(time.Now().UnixMilli()) }

// NextAt returns a new ID stamped with the given time. If the clock goes
// backwards relative to the previous call, the previous timestamp is reused
// and the sequence incremented, preserving monotonic ordering.
func (g *Generator) NextAt(ms int64) ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	if ms < g.lastMs {
		ms = g.lastMs
	}
	if ms == g.lastMs {
		if g.sequence == math.MaxUint64 {
			// sequence exhausted within one millisecond; step the clock
			ms++
			g.sequence = 0
		} else {
			g.sequence++
		}
	} else {
		g.sequence = 0
	}

	g.lastMs = ms
	var out ID
	binary.BigEndian.PutUint64(out[0:8], uint64(ms))
	binary.BigEndian.PutUint64(out[8:16], g.sequence)
	return out
}
