package queues

import "github.com/quillmq/quill/internal/queue"

// CreateQueueRequest creates (or ensures) a queue.
type CreateQueueRequest struct {
	Name                string               `json:"name"`
	Kind                string               `json:"kind,omitempty"`
	VisibilityTimeoutMs int64                `json:"visibilityTimeoutMs,omitempty"`
	RetentionPeriodMs   int64                `json:"retentionPeriodMs,omitempty"`
	DedupWindowMs       int64                `json:"dedupWindowMs,omitempty"`
	Redrive             *queue.RedrivePolicy `json:"redrive,omitempty"`
}

// QueueAttributes combines a queue's configuration with its live counters.
type QueueAttributes struct {
	Config queue.Config `json:"config"`
	Stats  queue.Stats  `json:"stats"`
}

// SendEntry is one message of a send or send-batch call.
type SendEntry struct {
	Body       string                     `json:"body"`
	Attributes map[string]queue.Attribute `json:"attributes,omitempty"`
	Group      string                     `json:"group,omitempty"`
	DedupKey   string                     `json:"dedupKey,omitempty"`
	DelayMs    int64                      `json:"delayMs,omitempty"`
}

// SendRequest sends a single message.
type SendRequest struct {
	Queue string `json:"queue"`
	SendEntry
}

// SendResult reports the ID assigned to a sent message.
type SendResult struct {
	ID string `json:"id"`
}

// SendBatchRequest sends up to ten messages; entries succeed or fail
// independently.
type SendBatchRequest struct {
	Queue   string      `json:"queue"`
	Entries []SendEntry `json:"entries"`
}

// SendBatchEntryResult is the per-entry outcome of a send batch.
type SendBatchEntryResult struct {
	Index int    `json:"index"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

// SendBatchResult carries the outcomes of every entry, in request order.
type SendBatchResult struct {
	Results []SendBatchEntryResult `json:"results"`
}

// ReceiveRequest leases messages, optionally long-polling until WaitMs
// elapses.
type ReceiveRequest struct {
	Queue               string `json:"queue"`
	Max                 int    `json:"max,omitempty"`
	VisibilityTimeoutMs int64  `json:"visibilityTimeoutMs,omitempty"`
	WaitMs              int64  `json:"waitMs,omitempty"`
}

// ReceivedMessage is a leased (or peeked) message.
type ReceivedMessage struct {
	ID            string                     `json:"id"`
	Body          string                     `json:"body"`
	Attributes    map[string]queue.Attribute `json:"attributes,omitempty"`
	Group         string                     `json:"group,omitempty"`
	ReceiptHandle string                     `json:"receiptHandle,omitempty"`
	ReceiveCount  int                        `json:"receiveCount"`
	EnqueuedAtMs  int64                      `json:"enqueuedAtMs"`
	ExpiresAtMs   int64                      `json:"expiresAtMs,omitempty"`
}

// DeleteRequest acknowledges one message.
type DeleteRequest struct {
	Queue         string `json:"queue"`
	ReceiptHandle string `json:"receiptHandle"`
}

// DeleteBatchRequest acknowledges up to ten messages independently.
type DeleteBatchRequest struct {
	Queue          string   `json:"queue"`
	ReceiptHandles []string `json:"receiptHandles"`
}

// DeleteBatchEntryResult is the per-entry outcome of a delete batch.
type DeleteBatchEntryResult struct {
	Index int    `json:"index"`
	Error string `json:"error,omitempty"`
}

// DeleteBatchResult carries the outcomes of every entry, in request order.
type DeleteBatchResult struct {
	Results []DeleteBatchEntryResult `json:"results"`
}

// ChangeVisibilityRequest adjusts a lease. Zero releases the message.
type ChangeVisibilityRequest struct {
	Queue               string `json:"queue"`
	ReceiptHandle       string `json:"receiptHandle"`
	VisibilityTimeoutMs int64  `json:"visibilityTimeoutMs"`
}

// PeekRequest lists available messages without leasing them.
type PeekRequest struct {
	Queue  string `json:"queue"`
	Limit  int    `json:"limit,omitempty"`
	Filter string `json:"filter,omitempty"`
}

func toReceived(m queue.Message) ReceivedMessage {
	return ReceivedMessage{
		ID:            m.ID.String(),
		Body:          string(m.Body),
		Attributes:    m.Attributes,
		Group:         m.Group,
		ReceiptHandle: m.ReceiptHandle,
		ReceiveCount:  m.ReceiveCount,
		EnqueuedAtMs:  m.EnqueuedAtMs,
		ExpiresAtMs:   m.ExpiresAtMs,
	}
}
