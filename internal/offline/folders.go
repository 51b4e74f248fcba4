package offline

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/notehub/notehub-client/internal/api"
	"github.com/notehub/notehub-client/internal/connectivity"
	apperrors "github.com/notehub/notehub-client/internal/errors"
	"github.com/notehub/notehub-client/internal/logging"
	"github.com/notehub/notehub-client/internal/models"
	"github.com/notehub/notehub-client/internal/store"
)

// FolderService is the offline-aware facade over the folder resource.
type FolderService struct {
	api     api.FolderAPI
	store   *store.Store
	monitor *connectivity.Monitor
	tempIDs *TempIDs
	log     logging.Logger
}

// NewFolderService creates a FolderService.
func NewFolderService(a api.FolderAPI, s *store.Store, m *connectivity.Monitor, ids *TempIDs, log logging.Logger) *FolderService {
	return &FolderService{api: a, store: s, monitor: m, tempIDs: ids, log: log.Component("folders")}
}

// List returns all folders, name-sorted.
func (svc *FolderService) List(ctx context.Context) ([]models.Folder, error) {
	if svc.monitor.IsOnline() {
		folders, err := svc.api.ListFolders(ctx)
		if err == nil {
			if cacheErr := svc.store.SaveFolders(ctx, folders); cacheErr != nil {
				svc.log.WarnErr("caching server folders failed", cacheErr)
			}
			return folders, nil
		}
		if !apperrors.IsNetwork(err) {
			return nil, err
		}
		svc.log.WarnErr("server list failed, serving local replica", err)
	}

	folders, err := svc.store.GetAllFolders(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(folders, func(i, j int) bool { return folders[i].Name < folders[j].Name })
	return folders, nil
}

// Get returns one folder by id.
func (svc *FolderService) Get(ctx context.Context, id int64) (*models.Folder, error) {
	if svc.monitor.IsOnline() && !models.IsTempID(id) {
		folder, err := svc.api.GetFolder(ctx, id)
		if err == nil {
			if cacheErr := svc.store.SaveFolder(ctx, folder); cacheErr != nil {
				svc.log.WarnErr("caching server folder failed", cacheErr)
			}
			return folder, nil
		}
		if !apperrors.IsNetwork(err) {
			return nil, err
		}
		svc.log.WarnErr("server get failed, serving local replica", err)
	}
	return svc.store.GetFolder(ctx, id)
}

// Create creates a folder, synthesizing a temp-id record offline.
func (svc *FolderService) Create(ctx context.Context, in models.FolderInput) (*models.Folder, error) {
	if svc.monitor.IsOnline() {
		folder, err := svc.api.CreateFolder(ctx, in)
		if err == nil {
			if cacheErr := svc.store.SaveFolder(ctx, folder); cacheErr != nil {
				svc.log.WarnErr("caching created folder failed", cacheErr)
			}
			return folder, nil
		}
		if !apperrors.IsNetwork(err) {
			return nil, err
		}
		svc.log.WarnErr("server create failed, creating locally", err)
	}

	now := time.Now().UTC()
	folder := &models.Folder{
		ID:        svc.tempIDs.Next(),
		Name:      in.Name,
		ParentID:  in.ParentID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := svc.store.SaveFolder(ctx, folder); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "encode create payload", err)
	}
	if _, err := svc.store.AddToSyncQueue(ctx, models.OperationCreate, models.EntityFolder, folder.ID, payload); err != nil {
		return nil, err
	}
	return folder, nil
}

// Update applies a partial update, shallow-merging offline.
func (svc *FolderService) Update(ctx context.Context, id int64, patch models.FolderPatch) (*models.Folder, error) {
	if svc.monitor.IsOnline() && !models.IsTempID(id) {
		folder, err := svc.api.UpdateFolder(ctx, id, patch)
		if err == nil {
			if cacheErr := svc.store.SaveFolder(ctx, folder); cacheErr != nil {
				svc.log.WarnErr("caching updated folder failed", cacheErr)
			}
			return folder, nil
		}
		if !apperrors.IsNetwork(err) {
			return nil, err
		}
		svc.log.WarnErr("server update failed, updating locally", err)
	}

	folder, err := svc.store.GetFolder(ctx, id)
	if err != nil {
		return nil, err
	}
	patch.Apply(folder)
	folder.UpdatedAt = time.Now().UTC()
	if err := svc.store.SaveFolder(ctx, folder); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(patch)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "encode update payload", err)
	}
	if _, err := svc.store.AddToSyncQueue(ctx, models.OperationUpdate, models.EntityFolder, id, payload); err != nil {
		return nil, err
	}
	return folder, nil
}

// Delete removes a folder locally regardless of network outcome.
func (svc *FolderService) Delete(ctx context.Context, id int64) error {
	deletedOnServer := false
	if svc.monitor.IsOnline() && !models.IsTempID(id) {
		err := svc.api.DeleteFolder(ctx, id)
		switch {
		case err == nil, apperrors.Is(err, apperrors.ErrNotFound):
			deletedOnServer = true
		case !apperrors.IsNetwork(err):
			return err
		default:
			svc.log.WarnErr("server delete failed, deleting locally", err)
		}
	}

	if err := svc.store.DeleteFolder(ctx, id); err != nil {
		return err
	}
	if models.IsTempID(id) {
		return dropQueuedMutations(ctx, svc.store, models.EntityFolder, id)
	}
	if !deletedOnServer {
		if _, err := svc.store.AddToSyncQueue(ctx, models.OperationDelete, models.EntityFolder, id, nil); err != nil {
			return err
		}
	}
	return nil
}
