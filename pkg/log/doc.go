// Package log provides the structured logging used across quill.
//
// Components receive a Logger and attach context with With and the Field
// helpers (F, Str, Int, Err, Component). Output format and level are chosen
// at process start; stdlib log output (e.g. Pebble's) can be redirected
// through RedirectStdLog so the process emits a single stream.
package log
