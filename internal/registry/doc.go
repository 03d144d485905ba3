// Package registry manages the set of queues in a database: persisted queue
// configurations, the open-queue cache, dead-letter wiring, and the
// background sweeper that drives delayed delivery and lease expiry.
//
// Queue configurations are stored as JSON under qcfg/{name}, outside the
// per-queue keyspace, so purging a queue never touches its configuration.
package registry
