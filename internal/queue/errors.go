package queue

import "errors"

var (
	// ErrQueueNotFound is returned when an operation names an unknown queue.
	ErrQueueNotFound = errors.New("queue not found")

	// ErrMissingGroupID is returned when sending to a FIFO queue without a
	// message group.
	ErrMissingGroupID = errors.New("message group required for fifo queue")

	// ErrInvalidReceiptHandle is returned when a receipt handle does not
	// match a live lease, including handles whose lease already expired.
	ErrInvalidReceiptHandle = errors.New("invalid receipt handle")

	// ErrBatchTooLarge is returned when a batch operation exceeds the
	// per-call entry limit.
	ErrBatchTooLarge = errors.New("batch exceeds maximum entries")

	// ErrMalformedMessage is returned for messages that fail validation,
	// such as an empty body or an unsupported attribute type.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrQueueReferenced is returned when deleting a queue that another
	// queue's redrive policy targets.
	ErrQueueReferenced = errors.New("queue is a dead-letter target of another queue")
)
