// Package pebblestore wraps Pebble with the fsync policy and batch helpers
// the queue engine relies on. All engine state lives in a single Pebble
// keyspace; atomicity across indexes comes from committing one batch.
package pebblestore
