// Package id provides time-ordered 128-bit identifiers for queue messages.
//
// IDs embed their creation time in the high 8 bytes, so a byte-wise sorted
// index of IDs is also sorted by enqueue time. The low 8 bytes carry a
// per-process sequence that disambiguates IDs created within the same
// millisecond.
package id
