// Package queue implements a lease-based message queue with standard and
// FIFO delivery modes on top of Pebble.
//
// Standard queues deliver messages at-least-once in roughly arrival order.
// FIFO queues deliver strictly in order within a message group, with at most
// one in-flight message per group and content/key deduplication within a
// configurable window. Consumers hold messages under a visibility lease and
// must delete them with the receipt handle issued at receive time; leases
// that expire return the message to availability with its receive count
// intact, and a redrive policy moves messages that exceed their maximum
// receive count into a dead-letter queue.
//
// # Keyspace
//
// All keys are prefixed with q/{name}/:
//
//	msg/{id}                 - Message record (header | body | crc)
//	ready/{id}               - Availability index, standard queues (value: receive count)
//	grp/{group}/{id}         - Availability index, FIFO queues (value: receive count)
//	gl/{group}               - Group lock while a message of the group is leased
//	delay/{due_ms}/{id}      - Delayed message index (value: group, if FIFO)
//	lease/{id}               - Active lease (JSON: receipt, expiry, count, group)
//	lidx/{expires_ms}/{id}   - Lease expiry index for sweeping
//	rcpt/{receipt}           - Receipt handle to message ID lookup
//	dedup/{key}              - Deduplication record (JSON: id, expiry)
//	didx/{expires_ms}/{key}  - Deduplication expiry index
//
// Message IDs embed their enqueue time, so msg/ keys sort by arrival and the
// retention sweep can stop at the first unexpired record.
//
// # Message Lifecycle
//
//  1. Send: record written, indexed ready/grp or delay
//  2. Receive: availability consumed, lease + receipt issued, count incremented
//  3. Delete: record and lease removed (receipt must match and be unexpired)
//  4. Expiry: lease swept, message re-offered or dead-lettered per redrive policy
//
// Cross-queue dead-letter moves commit in a single batch; callers hold both
// queue locks in lexicographic name order, so the move is atomic and
// deadlock-free.
package queue
