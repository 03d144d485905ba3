package pebblestore

import (
	"testing"

	"github.com/cockroachdb/pebble"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(Options{DataDir: t.TempDir(), Fsync: FsyncModeNever})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSetGetDelete(t *testing.T) {
	db := openTestDB(t)
	if err := db.Set([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := db.Get([]byte("k"))
	if err != nil || string(got) != "v" {
		t.Fatalf("get: %v %q", err, got)
	}
	if err := db.Delete([]byte("k")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, err = db.Get([]byte("k"))
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteRange(t *testing.T) {
	db := openTestDB(t)
	for _, k := range []string{"a/1", "a/2", "b/1"} {
		if err := db.Set([]byte(k), []byte("x")); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	if err := db.DeleteRange([]byte("a/"), []byte("a/\xff")); err != nil {
		t.Fatalf("delete range: %v", err)
	}
	it, err := db.NewIter(&pebble.IterOptions{LowerBound: []byte("a/"), UpperBound: []byte("a/\xff")})
	if err != nil {
		t.Fatalf("iter: %v", err)
	}
	defer it.Close()
	if it.First() {
		t.Fatalf("expected a/ range to be empty, found %q", it.Key())
	}
	if _, err := db.Get([]byte("b/1")); err != nil {
		t.Fatalf("b/1 should survive: %v", err)
	}
}
