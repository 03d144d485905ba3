package queues

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/quillmq/quill/internal/config"
	"github.com/quillmq/quill/internal/queue"
	"github.com/quillmq/quill/internal/runtime"
	"github.com/quillmq/quill/pkg/log"
)

// maxBatchEntries bounds send-batch and delete-batch calls.
const maxBatchEntries = 10

// pollSlice bounds how long a long-poll waits between availability checks,
// so sweeper-promoted messages are picked up without a send notification.
const pollSlice = 250 * time.Millisecond

// Service validates and orchestrates queue operations.
type Service struct {
	rt     *runtime.Runtime
	cfg    config.Config
	logger log.Logger
}

// New creates the service over a runtime.
func New(rt *runtime.Runtime, cfg config.Config, logger log.Logger) *Service {
	return &Service{rt: rt, cfg: cfg, logger: logger.With(log.Component("queues"))}
}

// CreateQueue ensures a queue exists and returns its effective configuration.
func (s *Service) CreateQueue(ctx context.Context, req CreateQueueRequest) (queue.Config, error) {
	kind, err := parseKind(req.Kind)
	if err != nil {
		return queue.Config{}, err
	}
	q, err := s.rt.Registry().Create(ctx, queue.Config{
		Name:                req.Name,
		Kind:                kind,
		VisibilityTimeoutMs: clamp(req.VisibilityTimeoutMs, s.cfg.MaxVisibilityTimeoutMs),
		RetentionPeriodMs:   req.RetentionPeriodMs,
		DedupWindowMs:       req.DedupWindowMs,
		Redrive:             req.Redrive,
	})
	if err != nil {
		return queue.Config{}, err
	}
	return q.Config(), nil
}

// ListQueues returns configuration and counters for every queue whose name
// starts with prefix.
func (s *Service) ListQueues(prefix string) ([]QueueAttributes, error) {
	var out []QueueAttributes
	for _, cfg := range s.rt.Registry().List(prefix) {
		attrs, err := s.GetQueueAttributes(cfg.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, attrs)
	}
	return out, nil
}

// GetQueueAttributes returns one queue's configuration and counters.
func (s *Service) GetQueueAttributes(name string) (QueueAttributes, error) {
	q, err := s.rt.Registry().Get(name)
	if err != nil {
		return QueueAttributes{}, err
	}
	st, err := q.Stats()
	if err != nil {
		return QueueAttributes{}, err
	}
	return QueueAttributes{Config: q.Config(), Stats: st}, nil
}

// DeleteQueue removes a queue and its data.
func (s *Service) DeleteQueue(ctx context.Context, name string) error {
	return s.rt.Registry().Delete(ctx, name)
}

// PurgeQueue clears a queue's messages without removing the queue.
func (s *Service) PurgeQueue(ctx context.Context, name string) error {
	q, err := s.rt.Registry().Get(name)
	if err != nil {
		return err
	}
	if err := q.Purge(ctx); err != nil {
		return err
	}
	s.logger.Info("queue purged", log.Str("queue", name))
	return nil
}

// Send validates and enqueues one message.
func (s *Service) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	q, err := s.rt.Registry().Get(req.Queue)
	if err != nil {
		return SendResult{}, err
	}
	in, err := s.validateEntry(req.SendEntry)
	if err != nil {
		return SendResult{}, err
	}
	msgID, err := q.Send(ctx, in, 0)
	if err != nil {
		return SendResult{}, err
	}
	s.logger.Debug("message sent", log.Str("queue", req.Queue), log.Str("id", msgID.String()))
	return SendResult{ID: msgID.String()}, nil
}

// SendBatch enqueues up to ten messages. Entries succeed or fail
// independently; the call itself only fails for an unknown queue or an
// out-of-range batch.
func (s *Service) SendBatch(ctx context.Context, req SendBatchRequest) (SendBatchResult, error) {
	if len(req.Entries) == 0 || len(req.Entries) > maxBatchEntries {
		return SendBatchResult{}, fmt.Errorf("%d entries: %w", len(req.Entries), queue.ErrBatchTooLarge)
	}
	q, err := s.rt.Registry().Get(req.Queue)
	if err != nil {
		return SendBatchResult{}, err
	}
	results := make([]SendBatchEntryResult, len(req.Entries))
	for i, entry := range req.Entries {
		results[i].Index = i
		in, err := s.validateEntry(entry)
		if err != nil {
			results[i].Error = err.Error()
			continue
		}
		msgID, err := q.Send(ctx, in, 0)
		if err != nil {
			results[i].Error = err.Error()
			continue
		}
		results[i].ID = msgID.String()
	}
	return SendBatchResult{Results: results}, nil
}

// Receive leases up to req.Max messages, long-polling for up to req.WaitMs
// when nothing is available. No queue lock is held while waiting.
func (s *Service) Receive(ctx context.Context, req ReceiveRequest) ([]ReceivedMessage, error) {
	q, err := s.rt.Registry().Get(req.Queue)
	if err != nil {
		return nil, err
	}
	max := req.Max
	if max <= 0 {
		max = 1
	}
	if max > maxBatchEntries {
		max = maxBatchEntries
	}
	vis := clamp(req.VisibilityTimeoutMs, s.cfg.MaxVisibilityTimeoutMs)
	wait := clamp(req.WaitMs, s.cfg.MaxWaitMs)

	deadline := time.Now().Add(time.Duration(wait) * time.Millisecond)
	for {
		msgs, err := q.Receive(ctx, max, vis, 0)
		if err != nil {
			return nil, err
		}
		if len(msgs) > 0 {
			out := make([]ReceivedMessage, len(msgs))
			for i, m := range msgs {
				out[i] = toReceived(m)
			}
			return out, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		slice := pollSlice
		if remaining < slice {
			slice = remaining
		}
		q.WaitForSend(ctx, slice)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

// Delete acknowledges one message.
func (s *Service) Delete(ctx context.Context, req DeleteRequest) error {
	q, err := s.rt.Registry().Get(req.Queue)
	if err != nil {
		return err
	}
	return q.Delete(ctx, req.ReceiptHandle, 0)
}

// DeleteBatch acknowledges up to ten messages independently.
func (s *Service) DeleteBatch(ctx context.Context, req DeleteBatchRequest) (DeleteBatchResult, error) {
	if len(req.ReceiptHandles) == 0 || len(req.ReceiptHandles) > maxBatchEntries {
		return DeleteBatchResult{}, fmt.Errorf("%d entries: %w", len(req.ReceiptHandles), queue.ErrBatchTooLarge)
	}
	q, err := s.rt.Registry().Get(req.Queue)
	if err != nil {
		return DeleteBatchResult{}, err
	}
	results := make([]DeleteBatchEntryResult, len(req.ReceiptHandles))
	for i, receipt := range req.ReceiptHandles {
		results[i].Index = i
		if err := q.Delete(ctx, receipt, 0); err != nil {
			results[i].Error = err.Error()
		}
	}
	return DeleteBatchResult{Results: results}, nil
}

// ChangeVisibility adjusts a lease; zero releases the message immediately.
func (s *Service) ChangeVisibility(ctx context.Context, req ChangeVisibilityRequest) error {
	q, err := s.rt.Registry().Get(req.Queue)
	if err != nil {
		return err
	}
	vis := req.VisibilityTimeoutMs
	if vis > s.cfg.MaxVisibilityTimeoutMs {
		vis = s.cfg.MaxVisibilityTimeoutMs
	}
	return q.ChangeVisibility(ctx, req.ReceiptHandle, vis, 0)
}

// Peek lists available messages without leasing them.
func (s *Service) Peek(ctx context.Context, req PeekRequest) ([]ReceivedMessage, error) {
	q, err := s.rt.Registry().Get(req.Queue)
	if err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 || limit > 100 {
		limit = maxBatchEntries
	}
	msgs, err := q.Peek(ctx, limit, req.Filter, 0)
	if err != nil {
		return nil, err
	}
	out := make([]ReceivedMessage, len(msgs))
	for i, m := range msgs {
		out[i] = toReceived(m)
	}
	return out, nil
}

// validateEntry checks a send entry and converts it to engine input. The
// delivery delay is clamped to the configured maximum.
func (s *Service) validateEntry(e SendEntry) (queue.SendInput, error) {
	if e.Body == "" {
		return queue.SendInput{}, fmt.Errorf("empty body: %w", queue.ErrMalformedMessage)
	}
	for name, attr := range e.Attributes {
		switch attr.Type {
		case queue.AttrString:
		case queue.AttrNumber:
			if _, err := strconv.ParseFloat(attr.Value, 64); err != nil {
				return queue.SendInput{}, fmt.Errorf("attribute %q is not a number: %w", name, queue.ErrMalformedMessage)
			}
		default:
			return queue.SendInput{}, fmt.Errorf("attribute %q has unsupported type %q: %w", name, attr.Type, queue.ErrMalformedMessage)
		}
	}
	return queue.SendInput{
		Body:       []byte(e.Body),
		Attributes: e.Attributes,
		Group:      e.Group,
		DedupKey:   e.DedupKey,
		DelayMs:    clamp(e.DelayMs, s.cfg.MaxDelayMs),
	}, nil
}

func parseKind(s string) (queue.Kind, error) {
	switch queue.Kind(s) {
	case "", queue.KindStandard:
		return queue.KindStandard, nil
	case queue.KindFIFO:
		return queue.KindFIFO, nil
	}
	return "", fmt.Errorf("unknown queue kind %q: %w", s, queue.ErrMalformedMessage)
}

func clamp(v, max int64) int64 {
	if v > max {
		return max
	}
	if v < 0 {
		return 0
	}
	return v
}
