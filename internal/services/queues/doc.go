// Package queues is the service layer over the queue engine: it validates
// requests, applies the configured clamps and defaults, fans batch calls out
// to per-entry outcomes and implements long-polling receive. The HTTP server
// and the CLI both speak to queues through this package.
package queues
