package registry

import (
	"context"
	"testing"
	"time"

	"github.com/quillmq/quill/internal/queue"
)

func TestTickDrivesQueueMaintenance(t *testing.T) {
	ctx := context.Background()
	r := openTestRegistry(t)
	s := NewSweeper(r, 0, 0, testLogger())

	q, err := r.Create(ctx, queue.Config{Name: "jobs"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := q.Send(ctx, queue.SendInput{Body: []byte("delayed"), DelayMs: 5000}, 1000); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := q.Send(ctx, queue.SendInput{Body: []byte("leased")}, 1001); err != nil {
		t.Fatalf("send: %v", err)
	}
	if msgs, err := q.Receive(ctx, 1, 2000, 1500); err != nil || len(msgs) != 1 {
		t.Fatalf("receive: %v", err)
	}

	// before anything is due
	s.Tick(ctx, 2000)
	st, _ := q.Stats()
	if st.Delayed != 1 || st.InFlight != 1 {
		t.Fatalf("early tick changed state: %+v", st)
	}

	// lease expiry and delay promotion both land in one tick
	s.Tick(ctx, 7000)
	st, _ = q.Stats()
	if st.Delayed != 0 || st.InFlight != 0 || st.Available != 2 {
		t.Fatalf("after tick: %+v", st)
	}
}

func TestSweeperStartStop(t *testing.T) {
	ctx := context.Background()
	r := openTestRegistry(t)

	q, err := r.Create(ctx, queue.Config{Name: "jobs"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := q.Send(ctx, queue.SendInput{Body: []byte("soon"), DelayMs: 10}, 0); err != nil {
		t.Fatalf("send: %v", err)
	}

	s := NewSweeper(r, 10*time.Millisecond, 0, testLogger())
	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for {
		st, err := q.Stats()
		if err != nil {
			t.Fatalf("stats: %v", err)
		}
		if st.Available == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("sweeper never promoted the delayed message: %+v", st)
		}
		time.Sleep(5 * time.Millisecond)
	}

	s.Stop()
	// Stop is idempotent
	s.Stop()
}
