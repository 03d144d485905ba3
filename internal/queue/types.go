package queue

import "github.com/quillmq/quill/pkg/id"

// Kind selects the delivery mode of a queue.
type Kind string

const (
	// KindStandard delivers at-least-once without ordering guarantees.
	KindStandard Kind = "standard"
	// KindFIFO delivers in order within a message group, one in-flight
	// message per group, with deduplication.
	KindFIFO Kind = "fifo"
)

// Attribute types accepted on message attributes.
const (
	AttrString = "String"
	AttrNumber = "Number"
)

// Attribute is a typed metadata value attached to a message.
type Attribute struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// RedrivePolicy routes messages that exceed MaxReceiveCount to a
// dead-letter queue.
type RedrivePolicy struct {
	TargetQueue     string `json:"targetQueue"`
	MaxReceiveCount int    `json:"maxReceiveCount"`
}

// Config is the persisted per-queue configuration.
type Config struct {
	Name                string         `json:"name"`
	Kind                Kind           `json:"kind"`
	VisibilityTimeoutMs int64          `json:"visibilityTimeoutMs"`
	RetentionPeriodMs   int64          `json:"retentionPeriodMs"`
	DedupWindowMs       int64          `json:"dedupWindowMs"`
	Redrive             *RedrivePolicy `json:"redrive,omitempty"`
	CreatedAtMs         int64          `json:"createdAtMs"`
}

// Message is a received or peeked message.
type Message struct {
	ID            id.ID
	Body          []byte
	Attributes    map[string]Attribute
	Group         string
	ReceiptHandle string
	ReceiveCount  int
	EnqueuedAtMs  int64
	// ExpiresAtMs is the lease expiry for received messages; zero for peeks.
	ExpiresAtMs int64
}

// Stats are the live counters of a queue.
type Stats struct {
	Available int `json:"available"`
	InFlight  int `json:"inFlight"`
	Delayed   int `json:"delayed"`
}

// SendInput carries the parameters of a single send.
type SendInput struct {
	Body       []byte
	Attributes map[string]Attribute
	Group      string
	DedupKey   string
	DelayMs    int64
}
