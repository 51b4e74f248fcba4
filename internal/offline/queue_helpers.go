package offline

import (
	"context"

	"github.com/notehub/notehub-client/internal/models"
	"github.com/notehub/notehub-client/internal/store"
)

// dropQueuedMutations removes every queued mutation targeting one entity.
// Used when a temp-id entity is deleted before its create ever synced.
func dropQueuedMutations(ctx context.Context, s *store.Store, entityType models.EntityType, entityID int64) error {
	items, err := s.GetSyncQueue(ctx)
	if err != nil {
		return err
	}
	for _, item := range items {
		if item.EntityType == entityType && item.EntityID == entityID {
			if err := s.RemoveSyncQueueItem(ctx, item.ID); err != nil {
				return err
			}
		}
	}
	return nil
}
