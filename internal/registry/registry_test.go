package registry

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/quillmq/quill/internal/config"
	"github.com/quillmq/quill/internal/queue"
	pebblestore "github.com/quillmq/quill/internal/storage/pebble"
	"github.com/quillmq/quill/pkg/log"
)

func testLogger() log.Logger {
	return log.New(log.WithWriter(io.Discard))
}

func openTestDB(t *testing.T) *pebblestore.DB {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeNever})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func openTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := Open(openTestDB(t), config.Default(), testLogger())
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	return r
}

func TestCreateGetList(t *testing.T) {
	ctx := context.Background()
	r := openTestRegistry(t)

	q, err := r.Create(ctx, queue.Config{Name: "orders"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if q.Kind() != queue.KindStandard {
		t.Fatalf("default kind = %q", q.Kind())
	}
	if q.Config().VisibilityTimeoutMs != config.Default().DefaultVisibilityTimeoutMs {
		t.Fatalf("defaults not applied: %+v", q.Config())
	}

	// re-creating with the same configuration returns the same handle
	again, err := r.Create(ctx, queue.Config{Name: "orders"})
	if err != nil || again != q {
		t.Fatalf("create must be idempotent: %v", err)
	}
	// a differing configuration is rejected
	if _, err := r.Create(ctx, queue.Config{Name: "orders", VisibilityTimeoutMs: 99}); !errors.Is(err, ErrQueueExists) {
		t.Fatalf("visibility mismatch: want ErrQueueExists, got %v", err)
	}

	if _, err := r.Create(ctx, queue.Config{Name: "billing.fifo", Kind: queue.KindFIFO}); err != nil {
		t.Fatalf("create fifo: %v", err)
	}
	if _, err := r.Create(ctx, queue.Config{
		Name:    "orders",
		Redrive: &queue.RedrivePolicy{TargetQueue: "billing.fifo", MaxReceiveCount: 1},
	}); !errors.Is(err, ErrQueueExists) {
		t.Fatalf("redrive mismatch: want ErrQueueExists, got %v", err)
	}

	got, err := r.Get("orders")
	if err != nil || got != q {
		t.Fatalf("get: %v", err)
	}
	if _, err := r.Get("nope"); !errors.Is(err, queue.ErrQueueNotFound) {
		t.Fatalf("get missing: %v", err)
	}

	all := r.List("")
	if len(all) != 2 || all[0].Name != "billing.fifo" || all[1].Name != "orders" {
		t.Fatalf("list: %+v", all)
	}
	if got := r.List("ord"); len(got) != 1 || got[0].Name != "orders" {
		t.Fatalf("list prefix: %+v", got)
	}
}

func TestNameValidation(t *testing.T) {
	ctx := context.Background()
	r := openTestRegistry(t)

	cases := []queue.Config{
		{Name: "has spaces"},
		{Name: ""},
		// fifo kind without suffix, and suffix without fifo kind
		{Name: "plain", Kind: queue.KindFIFO},
		{Name: "x.fifo", Kind: queue.KindStandard},
	}
	for _, cfg := range cases {
		if _, err := r.Create(ctx, cfg); !errors.Is(err, ErrInvalidQueueName) {
			t.Fatalf("%+v: want ErrInvalidQueueName, got %v", cfg, err)
		}
	}
}

func TestRedriveValidationAndWiring(t *testing.T) {
	ctx := context.Background()
	r := openTestRegistry(t)

	// target must exist
	_, err := r.Create(ctx, queue.Config{
		Name:    "work",
		Redrive: &queue.RedrivePolicy{TargetQueue: "work-dlq", MaxReceiveCount: 1},
	})
	if !errors.Is(err, ErrInvalidRedrive) {
		t.Fatalf("missing target: %v", err)
	}

	if _, err := r.Create(ctx, queue.Config{Name: "work-dlq"}); err != nil {
		t.Fatalf("create dlq: %v", err)
	}

	// kind must match
	_, err = r.Create(ctx, queue.Config{
		Name:    "work.fifo",
		Kind:    queue.KindFIFO,
		Redrive: &queue.RedrivePolicy{TargetQueue: "work-dlq", MaxReceiveCount: 1},
	})
	if !errors.Is(err, ErrInvalidRedrive) {
		t.Fatalf("kind mismatch: %v", err)
	}

	src, err := r.Create(ctx, queue.Config{
		Name:    "work",
		Redrive: &queue.RedrivePolicy{TargetQueue: "work-dlq", MaxReceiveCount: 1},
	})
	if err != nil {
		t.Fatalf("create src: %v", err)
	}

	// wired end to end: one failed delivery dead-letters the message
	if _, err := src.Send(ctx, queue.SendInput{Body: []byte("poison")}, 1000); err != nil {
		t.Fatalf("send: %v", err)
	}
	if msgs, err := src.Receive(ctx, 1, 1000, 2000); err != nil || len(msgs) != 1 {
		t.Fatalf("receive: %v", err)
	}
	if n, err := src.ExpireLeases(ctx, 3000, 0); err != nil || n != 1 {
		t.Fatalf("expire: n=%d err=%v", n, err)
	}
	dlq, _ := r.Get("work-dlq")
	st, _ := dlq.Stats()
	if st.Available != 1 {
		t.Fatalf("dlq stats: %+v", st)
	}
}

func TestDeleteProtectsDLQTargets(t *testing.T) {
	ctx := context.Background()
	r := openTestRegistry(t)

	if _, err := r.Create(ctx, queue.Config{Name: "work-dlq"}); err != nil {
		t.Fatalf("create dlq: %v", err)
	}
	if _, err := r.Create(ctx, queue.Config{
		Name:    "work",
		Redrive: &queue.RedrivePolicy{TargetQueue: "work-dlq", MaxReceiveCount: 3},
	}); err != nil {
		t.Fatalf("create src: %v", err)
	}

	if err := r.Delete(ctx, "work-dlq"); !errors.Is(err, queue.ErrQueueReferenced) {
		t.Fatalf("want ErrQueueReferenced, got %v", err)
	}
	if err := r.Delete(ctx, "work"); err != nil {
		t.Fatalf("delete source: %v", err)
	}
	if err := r.Delete(ctx, "work-dlq"); err != nil {
		t.Fatalf("delete dlq after source: %v", err)
	}
	if err := r.Delete(ctx, "work-dlq"); !errors.Is(err, queue.ErrQueueNotFound) {
		t.Fatalf("double delete: %v", err)
	}
}

func TestReopenRestoresQueues(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	r1, err := Open(db, config.Default(), testLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := r1.Create(ctx, queue.Config{Name: "work-dlq"}); err != nil {
		t.Fatalf("create dlq: %v", err)
	}
	src, err := r1.Create(ctx, queue.Config{
		Name:    "work",
		Redrive: &queue.RedrivePolicy{TargetQueue: "work-dlq", MaxReceiveCount: 1},
	})
	if err != nil {
		t.Fatalf("create src: %v", err)
	}
	if _, err := src.Send(ctx, queue.SendInput{Body: []byte("persist")}, 1000); err != nil {
		t.Fatalf("send: %v", err)
	}

	// a second registry over the same database sees the queues, the data
	// and the dead-letter wiring
	r2, err := Open(db, config.Default(), testLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	src2, err := r2.Get("work")
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	msgs, err := src2.Receive(ctx, 1, 1000, 2000)
	if err != nil || len(msgs) != 1 || string(msgs[0].Body) != "persist" {
		t.Fatalf("receive after reopen: %v (%v)", msgs, err)
	}
	if n, err := src2.ExpireLeases(ctx, 3000, 0); err != nil || n != 1 {
		t.Fatalf("expire after reopen: n=%d err=%v", n, err)
	}
	dlq2, _ := r2.Get("work-dlq")
	st, _ := dlq2.Stats()
	if st.Available != 1 {
		t.Fatalf("redrive not wired after reopen: %+v", st)
	}
}
