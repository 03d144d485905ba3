package queue

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/cel-go/cel"
)

// peekFilter wraps a compiled CEL program evaluated against ready messages.
// When disabled (empty expression), Eval always returns true.
type peekFilter struct {
	prog    cel.Program
	enabled bool
}

func newPeekFilter(expr string) (peekFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return peekFilter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("group", cel.StringType),
		cel.Variable("receive_count", cel.IntType),
		cel.Variable("enqueued_ms", cel.IntType),
		cel.Variable("size", cel.IntType),
		cel.Variable("text", cel.StringType),
		// Parsed JSON body (map/list/values) for field filtering
		cel.Variable("body", cel.DynType),
		// Message attribute values keyed by attribute name
		cel.Variable("attrs", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return peekFilter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return peekFilter{}, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return peekFilter{}, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return peekFilter{}, err
	}
	return peekFilter{prog: prog, enabled: true}, nil
}

// Eval evaluates the compiled expression against a message. When disabled,
// returns true.
func (f peekFilter) Eval(m Message, nowMs int64) bool {
	if !f.enabled {
		return true
	}
	var jsonObj any
	_ = json.Unmarshal(m.Body, &jsonObj)
	attrs := map[string]string{}
	for k, a := range m.Attributes {
		attrs[k] = a.Value
	}
	out, _, err := f.prog.Eval(map[string]any{
		"id":            m.ID.String(),
		"group":         m.Group,
		"receive_count": int64(m.ReceiveCount),
		"enqueued_ms":   m.EnqueuedAtMs,
		"size":          int64(len(m.Body)),
		"text":          string(m.Body),
		"body":          jsonObj,
		"attrs":         attrs,
		"now_ms":        nowMs,
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

// Peek lists up to limit available messages without leasing them, optionally
// narrowed by a CEL filter expression. In-flight and delayed messages are
// not shown. If nowMs <= 0, time.Now().UnixMilli() is used.
func (q *Queue) Peek(ctx context.Context, limit int, filterExpr string, nowMs int64) ([]Message, error) {
	if nowMs <= 0 {
		nowMs = time.Now().UnixMilli()
	}
	if limit <= 0 {
		limit = 10
	}
	filter, err := newPeekFilter(filterExpr)
	if err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	prefix := prefixReady
	if q.cfg.Kind == KindFIFO {
		prefix = prefixGroup
	}
	lo, hi := scanPrefix(q.cfg.Name, prefix)
	iter, err := q.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var msgs []Message
	for ok := iter.First(); ok && len(msgs) < limit; ok = iter.Next() {
		msgID, okID := idFromKeySuffix(iter.Key())
		if !okID {
			continue
		}
		if q.cfg.Kind == KindFIFO {
			// grp/ entries include the leased head of each group
			if _, errGet := q.db.Get(leaseKey(q.cfg.Name, msgID)); errGet == nil {
				continue
			}
		}
		raw, errGet := q.db.Get(msgKey(q.cfg.Name, msgID))
		if errGet != nil {
			continue
		}
		h, body, errDec := decodeRecord(raw)
		if errDec != nil {
			continue
		}
		m := Message{
			ID:           msgID,
			Body:         body,
			Attributes:   h.Attrs,
			Group:        h.Group,
			ReceiveCount: int(decodeCount(iter.Value())),
			EnqueuedAtMs: msgID.TimeMs(),
		}
		if !filter.Eval(m, nowMs) {
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}
