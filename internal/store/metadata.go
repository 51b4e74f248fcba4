package store

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	apperrors "github.com/notehub/notehub-client/internal/errors"
)

// GetMetadata returns the value stored under key, or "" when absent.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	if err := s.validateSession(ctx); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getMetadataLocked(ctx, key)
}

// SetMetadata stores value under key, replacing any previous value.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	if err := s.validateSession(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setMetadataLocked(ctx, key, value)
}

func (s *Store) getMetadataLocked(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrDatabase, "get metadata "+key, err)
	}
	return value, nil
}

func (s *Store) setMetadataLocked(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value",
		key, value)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "set metadata "+key, err)
	}
	return nil
}

// GetLastSyncTime returns the completion time of the last successful sync,
// or nil when no sync has completed yet.
func (s *Store) GetLastSyncTime(ctx context.Context) (*time.Time, error) {
	value, err := s.GetMetadata(ctx, metaLastSync)
	if err != nil {
		return nil, err
	}
	if value == "" {
		return nil, nil
	}
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "parse last sync time", err)
	}
	t := time.UnixMilli(ms)
	return &t, nil
}

// SetLastSyncTime records the completion time of a successful sync.
func (s *Store) SetLastSyncTime(ctx context.Context, t time.Time) error {
	return s.SetMetadata(ctx, metaLastSync, strconv.FormatInt(t.UnixMilli(), 10))
}
