// Package offline provides the offline-aware entity facades. Each facade
// attempts the authoritative network call first and, when the server is
// unreachable, serves the encrypted local replica instead, queueing the
// mutation for the sync orchestrator to replay.
package offline

import "sync/atomic"

// TempIDs allocates strictly decreasing negative identifiers for entities
// created while offline. The ids are unique within the local store's
// lifetime only and are never sent to the server; the server-assigned id
// replaces them once the corresponding create mutation is acknowledged.
type TempIDs struct {
	last atomic.Int64
}

// NewTempIDs creates an allocator starting at -1.
func NewTempIDs() *TempIDs {
	return &TempIDs{}
}

// Next returns the next temporary id.
func (t *TempIDs) Next() int64 {
	return t.last.Add(-1)
}
