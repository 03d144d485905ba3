package queue

import (
	"bytes"
	"errors"
	"testing"
)

func TestRecordRoundTrip(t *testing.T) {
	h := msgHeader{
		Attrs:    map[string]Attribute{"kind": {Type: AttrString, Value: "vip"}},
		Group:    "g1",
		DedupKey: "op-1",
	}
	body := []byte(`{"amount": 42}`)

	raw, err := encodeRecord(h, body)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, gotBody, err := decodeRecord(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(gotBody, body) {
		t.Fatalf("body = %q", gotBody)
	}
	if got.Group != "g1" || got.DedupKey != "op-1" {
		t.Fatalf("header = %+v", got)
	}
	if a := got.Attrs["kind"]; a.Type != AttrString || a.Value != "vip" {
		t.Fatalf("attrs = %+v", got.Attrs)
	}
}

func TestRecordDetectsCorruption(t *testing.T) {
	raw, err := encodeRecord(msgHeader{}, []byte("payload"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	raw[len(raw)-6] ^= 0xFF
	if _, _, err := decodeRecord(raw); !errors.Is(err, errCorruptRecord) {
		t.Fatalf("want corrupt record error, got %v", err)
	}
	if _, _, err := decodeRecord([]byte{1, 2}); !errors.Is(err, errCorruptRecord) {
		t.Fatalf("short input: want corrupt record error, got %v", err)
	}
}
