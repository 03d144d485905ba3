package queue

import (
	"bytes"
	"testing"

	"github.com/quillmq/quill/pkg/id"
)

func TestGroupFromGroupKey(t *testing.T) {
	gen := id.NewGenerator()
	msgID := gen.NextAt(1000)

	for _, group := range []string{"g1", "tenant/42/orders"} {
		key := groupKey("orders.fifo", group, msgID)
		got, ok := groupFromGroupKey("orders.fifo", key)
		if !ok || got != group {
			t.Fatalf("group = %q ok=%v, want %q", got, ok, group)
		}
		back, ok := idFromKeySuffix(key)
		if !ok || back != msgID {
			t.Fatalf("id round trip failed for group %q", group)
		}
	}
}

func TestDelayKeysSortByDueTime(t *testing.T) {
	gen := id.NewGenerator()
	early := delayKey("q1", 1000, gen.NextAt(500))
	late := delayKey("q1", 2000, gen.NextAt(400))
	if bytes.Compare(early, late) >= 0 {
		t.Fatalf("delay keys must sort by due time")
	}
}

func TestKeyRangeCoversPrefixOnly(t *testing.T) {
	lo, hi := scanPrefix("a", prefixReady)
	inside := readyKey("a", id.NewGenerator().NextAt(1))
	if bytes.Compare(inside, lo) < 0 || bytes.Compare(inside, hi) >= 0 {
		t.Fatalf("ready key outside its scan range")
	}
	other := readyKey("b", id.NewGenerator().NextAt(1))
	if bytes.Compare(other, lo) >= 0 && bytes.Compare(other, hi) < 0 {
		t.Fatalf("scan range leaks into other queues")
	}
}
