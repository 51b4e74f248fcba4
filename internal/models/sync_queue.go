package models

import "encoding/json"

// Operation is the kind of mutation a sync queue item carries.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// Valid reports whether the operation is one of the known kinds.
func (op Operation) Valid() bool {
	switch op {
	case OperationCreate, OperationUpdate, OperationDelete:
		return true
	}
	return false
}

// SyncQueueItem represents a pending mutation awaiting transmission to the
// server. Queue order is insertion order; the orchestrator processes items
// in ascending Timestamp to preserve the causal ordering of a single
// entity's mutation history (a create is applied before a later update on
// the same temporary id).
type SyncQueueItem struct {
	ID         string          `db:"id" json:"id"`
	Timestamp  int64           `db:"timestamp" json:"timestamp"` // unix milliseconds
	Operation  Operation       `db:"operation" json:"operation"`
	EntityType EntityType      `db:"entity_type" json:"entity_type"`
	EntityID   int64           `db:"entity_id" json:"entity_id"`
	Data       json.RawMessage `db:"data" json:"data,omitempty"`
	RetryCount int             `db:"retry_count" json:"retry_count"`
	Error      string          `db:"error" json:"error,omitempty"`
}

// TableName returns the table name for SyncQueueItem.
func (SyncQueueItem) TableName() string {
	return "sync_queue"
}

// MaxRetries is the number of attempts a queue item is given before it is
// dropped as permanently failed.
const MaxRetries = 3
