package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"

	apperrors "github.com/notehub/notehub-client/internal/errors"
	"github.com/notehub/notehub-client/internal/models"
)

// AddToSyncQueue appends a pending mutation. The item id, timestamp and
// retry count are assigned here; timestamps are strictly increasing so
// insertion order and processing order coincide.
func (s *Store) AddToSyncQueue(ctx context.Context, op models.Operation, entityType models.EntityType, entityID int64, data json.RawMessage) (*models.SyncQueueItem, error) {
	if err := s.validateSession(ctx); err != nil {
		return nil, err
	}
	if !op.Valid() {
		return nil, apperrors.Newf(apperrors.ErrInvalid, "unknown operation %q", op)
	}
	if !entityType.Valid() {
		return nil, apperrors.Newf(apperrors.ErrInvalid, "unknown entity type %q", entityType)
	}

	item := &models.SyncQueueItem{
		ID:         uuid.New().String(),
		Timestamp:  s.queueTimestamp(),
		Operation:  op,
		EntityType: entityType,
		EntityID:   entityID,
		Data:       data,
		RetryCount: 0,
	}

	err := s.execContext(ctx,
		"INSERT INTO sync_queue (id, timestamp, operation, entity_type, entity_id, data, retry_count, error) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		item.ID, item.Timestamp, string(item.Operation), string(item.EntityType),
		item.EntityID, nullableString(item.Data), item.RetryCount, item.Error)
	if err != nil {
		return nil, err
	}

	s.log.Debug("mutation queued", map[string]interface{}{
		"operation":   item.Operation,
		"entity_type": item.EntityType,
		"entity_id":   item.EntityID,
	})
	return item, nil
}

// GetSyncQueue returns all pending items in ascending timestamp order.
func (s *Store) GetSyncQueue(ctx context.Context) ([]models.SyncQueueItem, error) {
	if err := s.validateSession(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, timestamp, operation, entity_type, entity_id, data, retry_count, error FROM sync_queue ORDER BY timestamp ASC")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "list sync queue", err)
	}
	defer rows.Close()

	var items []models.SyncQueueItem
	for rows.Next() {
		var item models.SyncQueueItem
		var op, entityType string
		var data sql.NullString
		if err := rows.Scan(&item.ID, &item.Timestamp, &op, &entityType, &item.EntityID, &data, &item.RetryCount, &item.Error); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrDatabase, "scan sync queue item", err)
		}
		item.Operation = models.Operation(op)
		item.EntityType = models.EntityType(entityType)
		if data.Valid && data.String != "" {
			item.Data = json.RawMessage(data.String)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "iterate sync queue", err)
	}
	return items, nil
}

// RemoveSyncQueueItem deletes a processed item.
func (s *Store) RemoveSyncQueueItem(ctx context.Context, id string) error {
	if err := s.validateSession(ctx); err != nil {
		return err
	}
	return s.execContext(ctx, "DELETE FROM sync_queue WHERE id = ?", id)
}

// UpdateSyncQueueItem persists the retry counter and last error of item.
func (s *Store) UpdateSyncQueueItem(ctx context.Context, item *models.SyncQueueItem) error {
	if err := s.validateSession(ctx); err != nil {
		return err
	}
	return s.execContext(ctx,
		"UPDATE sync_queue SET retry_count = ?, error = ? WHERE id = ?",
		item.RetryCount, item.Error, item.ID)
}

// RemapQueueEntityID rewrites the entity id of every pending item for one
// entity. Called after a create-sync replaces a temporary id with the
// server-assigned one, so later queued mutations never carry the temp id
// to the server.
func (s *Store) RemapQueueEntityID(ctx context.Context, entityType models.EntityType, oldID, newID int64) error {
	if err := s.validateSession(ctx); err != nil {
		return err
	}
	return s.execContext(ctx,
		"UPDATE sync_queue SET entity_id = ? WHERE entity_type = ? AND entity_id = ?",
		newID, string(entityType), oldID)
}

// ClearSyncQueue removes every pending item.
func (s *Store) ClearSyncQueue(ctx context.Context) error {
	if err := s.validateSession(ctx); err != nil {
		return err
	}
	return s.execContext(ctx, "DELETE FROM sync_queue")
}

// PendingCount returns the number of queued mutations.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	if err := s.validateSession(ctx); err != nil {
		return 0, err
	}
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sync_queue").Scan(&count); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrDatabase, "count sync queue", err)
	}
	return count, nil
}

func nullableString(data json.RawMessage) interface{} {
	if len(data) == 0 {
		return nil
	}
	return string(data)
}
