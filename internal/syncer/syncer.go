// Package syncer drains the pending-mutation queue against the server and
// refreshes the local replica, reporting progress to status subscribers.
package syncer

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/notehub/notehub-client/internal/api"
	"github.com/notehub/notehub-client/internal/connectivity"
	apperrors "github.com/notehub/notehub-client/internal/errors"
	"github.com/notehub/notehub-client/internal/logging"
	"github.com/notehub/notehub-client/internal/models"
	"github.com/notehub/notehub-client/internal/store"
)

// Status is the orchestrator state published to subscribers.
type Status struct {
	IsSyncing    bool       `json:"is_syncing"`
	PendingCount int        `json:"pending_count"`
	LastSyncTime *time.Time `json:"last_sync_time,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// Syncer coordinates queue draining and snapshot refresh. Sync runs are
// serialized: a call while a run is in flight is a logged no-op, never
// queued.
type Syncer struct {
	api     api.API
	store   *store.Store
	monitor *connectivity.Monitor
	log     logging.Logger

	mu          sync.Mutex
	syncing     bool
	lastErr     string
	subscribers map[int]func(Status)
	nextSubID   int
	unwatch     func()
}

// New builds a Syncer. Call Start to arm the connectivity trigger.
func New(a api.API, s *store.Store, m *connectivity.Monitor, log logging.Logger) *Syncer {
	return &Syncer{
		api:         a,
		store:       s,
		monitor:     m,
		log:         log.Component("syncer"),
		subscribers: make(map[int]func(Status)),
	}
}

// Start subscribes to the connectivity monitor so that every transition to
// online kicks off a sync run in the background.
func (sy *Syncer) Start(ctx context.Context) {
	sy.mu.Lock()
	defer sy.mu.Unlock()
	if sy.unwatch != nil {
		return
	}
	first := true
	sy.unwatch = sy.monitor.Subscribe(func(online bool) {
		// The subscription replays the current state immediately; only
		// genuine offline->online transitions trigger a run.
		if first {
			first = false
			return
		}
		if !online {
			return
		}
		go func() {
			if err := sy.Sync(ctx); err != nil {
				sy.log.WarnErr("connectivity-triggered sync failed", err)
			}
		}()
	})
}

// Destroy detaches the connectivity trigger and drops all subscribers.
func (sy *Syncer) Destroy() {
	sy.mu.Lock()
	defer sy.mu.Unlock()
	if sy.unwatch != nil {
		sy.unwatch()
		sy.unwatch = nil
	}
	sy.subscribers = make(map[int]func(Status))
}

// Subscribe registers cb for status changes and invokes it immediately with
// the current status. The returned function unsubscribes.
func (sy *Syncer) Subscribe(ctx context.Context, cb func(Status)) func() {
	sy.mu.Lock()
	id := sy.nextSubID
	sy.nextSubID++
	sy.subscribers[id] = cb
	sy.mu.Unlock()

	cb(sy.CurrentStatus(ctx))

	return func() {
		sy.mu.Lock()
		defer sy.mu.Unlock()
		delete(sy.subscribers, id)
	}
}

// CurrentStatus recomputes the status from the store.
func (sy *Syncer) CurrentStatus(ctx context.Context) Status {
	sy.mu.Lock()
	st := Status{IsSyncing: sy.syncing, Error: sy.lastErr}
	sy.mu.Unlock()

	if count, err := sy.store.PendingCount(ctx); err == nil {
		st.PendingCount = count
	}
	if last, err := sy.store.GetLastSyncTime(ctx); err == nil {
		st.LastSyncTime = last
	}
	return st
}

func (sy *Syncer) notify(ctx context.Context) {
	st := sy.CurrentStatus(ctx)
	sy.mu.Lock()
	cbs := make([]func(Status), 0, len(sy.subscribers))
	for _, cb := range sy.subscribers {
		cbs = append(cbs, cb)
	}
	sy.mu.Unlock()
	for _, cb := range cbs {
		cb(st)
	}
}

// Sync drains the queue and refreshes the local snapshot. It is a logged
// no-op when offline or when another run is already in flight.
func (sy *Syncer) Sync(ctx context.Context) error {
	if !sy.monitor.IsOnline() {
		sy.log.Debug("sync skipped: offline")
		return nil
	}

	sy.mu.Lock()
	if sy.syncing {
		sy.mu.Unlock()
		sy.log.Debug("sync skipped: already in progress")
		return nil
	}
	sy.syncing = true
	sy.lastErr = ""
	sy.mu.Unlock()

	sy.notify(ctx)
	err := sy.run(ctx)

	sy.mu.Lock()
	sy.syncing = false
	if err != nil {
		sy.lastErr = err.Error()
	}
	sy.mu.Unlock()

	sy.notify(ctx)
	return err
}

func (sy *Syncer) run(ctx context.Context) error {
	if err := sy.drainQueue(ctx); err != nil {
		return err
	}
	if err := sy.refreshSnapshot(ctx); err != nil {
		return err
	}
	if err := sy.store.SetLastSyncTime(ctx, time.Now().UTC()); err != nil {
		return err
	}
	return nil
}

// idRemap records a temporary id superseded by a server-assigned id during
// a drain, so later queued mutations on the same entity are retargeted.
type idRemap struct {
	entityType models.EntityType
	from, to   int64
}

// localFault reports storage-side failures: the server never saw the
// mutation, so the item keeps its retry budget and the drain aborts for
// the next attempt.
func localFault(err error) bool {
	switch apperrors.CodeOf(err) {
	case apperrors.ErrDatabase, apperrors.ErrCryptoFailed, apperrors.ErrNotInitialized,
		apperrors.ErrNoActiveSession, apperrors.ErrInternal:
		return true
	}
	return false
}

// drainQueue processes pending mutations sequentially in timestamp order.
// Server rejections bump the retry counter; storage failures abort the
// drain with the item untouched.
func (sy *Syncer) drainQueue(ctx context.Context) error {
	items, err := sy.store.GetSyncQueue(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	sy.log.Info("draining sync queue", map[string]interface{}{"pending": len(items)})

	for i := range items {
		item := &items[i]
		rm, err := sy.processItem(ctx, item)
		if err != nil {
			if localFault(err) {
				sy.log.WarnErr("drain aborted on local storage fault", err, map[string]interface{}{
					"item_id": item.ID,
				})
				return err
			}
			item.RetryCount++
			item.Error = err.Error()
			if item.RetryCount >= models.MaxRetries {
				sy.log.Error("dropping permanently failed mutation", err, map[string]interface{}{
					"item_id":     item.ID,
					"operation":   item.Operation,
					"entity_type": item.EntityType,
					"entity_id":   item.EntityID,
					"retries":     item.RetryCount,
				})
				if err := sy.store.RemoveSyncQueueItem(ctx, item.ID); err != nil {
					return err
				}
				continue
			}
			sy.log.WarnErr("mutation failed, will retry", err, map[string]interface{}{
				"item_id": item.ID,
				"retries": item.RetryCount,
			})
			if err := sy.store.UpdateSyncQueueItem(ctx, item); err != nil {
				return err
			}
			continue
		}
		if err := sy.store.RemoveSyncQueueItem(ctx, item.ID); err != nil {
			return err
		}
		if rm != nil {
			// Retarget the rest of this drain's snapshot; persisted items
			// were already rewritten by RemapQueueEntityID.
			for j := i + 1; j < len(items); j++ {
				if items[j].EntityType == rm.entityType && items[j].EntityID == rm.from {
					items[j].EntityID = rm.to
				}
			}
		}
	}
	return nil
}

func (sy *Syncer) processItem(ctx context.Context, item *models.SyncQueueItem) (*idRemap, error) {
	switch item.EntityType {
	case models.EntityNote:
		return sy.processNote(ctx, item)
	case models.EntityTask:
		return sy.processTask(ctx, item)
	case models.EntityFolder:
		return sy.processFolder(ctx, item)
	default:
		return nil, apperrors.Newf(apperrors.ErrInvalid, "unknown entity type %q", item.EntityType)
	}
}

func (sy *Syncer) processNote(ctx context.Context, item *models.SyncQueueItem) (*idRemap, error) {
	switch item.Operation {
	case models.OperationCreate:
		var input models.NoteInput
		if err := json.Unmarshal(item.Data, &input); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInvalid, "decode queued note create", err)
		}
		note, err := sy.api.CreateNote(ctx, input)
		if err != nil {
			return nil, err
		}
		if err := sy.store.SaveNote(ctx, note); err != nil {
			return nil, err
		}
		// The temp-id record is superseded by the server row, and any
		// still-queued mutations on it are retargeted to the server id.
		if models.IsTempID(item.EntityID) {
			if err := sy.store.DeleteNote(ctx, item.EntityID); err != nil {
				return nil, err
			}
			if err := sy.store.RemapQueueEntityID(ctx, models.EntityNote, item.EntityID, note.ID); err != nil {
				return nil, err
			}
			return &idRemap{entityType: models.EntityNote, from: item.EntityID, to: note.ID}, nil
		}
		return nil, nil
	case models.OperationUpdate:
		var patch models.NotePatch
		if err := json.Unmarshal(item.Data, &patch); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInvalid, "decode queued note update", err)
		}
		note, err := sy.api.UpdateNote(ctx, item.EntityID, patch)
		if err != nil {
			return nil, err
		}
		return nil, sy.store.SaveNote(ctx, note)
	case models.OperationDelete:
		err := sy.api.DeleteNote(ctx, item.EntityID)
		if err != nil && apperrors.CodeOf(err) != apperrors.ErrNotFound {
			return nil, err
		}
		return nil, sy.store.DeleteNote(ctx, item.EntityID)
	default:
		return nil, apperrors.Newf(apperrors.ErrInvalid, "unknown operation %q", item.Operation)
	}
}

func (sy *Syncer) processTask(ctx context.Context, item *models.SyncQueueItem) (*idRemap, error) {
	switch item.Operation {
	case models.OperationCreate:
		var input models.TaskInput
		if err := json.Unmarshal(item.Data, &input); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInvalid, "decode queued task create", err)
		}
		task, err := sy.api.CreateTask(ctx, input)
		if err != nil {
			return nil, err
		}
		if err := sy.store.SaveTask(ctx, task); err != nil {
			return nil, err
		}
		if models.IsTempID(item.EntityID) {
			if err := sy.store.DeleteTask(ctx, item.EntityID); err != nil {
				return nil, err
			}
			if err := sy.store.RemapQueueEntityID(ctx, models.EntityTask, item.EntityID, task.ID); err != nil {
				return nil, err
			}
			return &idRemap{entityType: models.EntityTask, from: item.EntityID, to: task.ID}, nil
		}
		return nil, nil
	case models.OperationUpdate:
		var patch models.TaskPatch
		if err := json.Unmarshal(item.Data, &patch); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInvalid, "decode queued task update", err)
		}
		task, err := sy.api.UpdateTask(ctx, item.EntityID, patch)
		if err != nil {
			return nil, err
		}
		return nil, sy.store.SaveTask(ctx, task)
	case models.OperationDelete:
		err := sy.api.DeleteTask(ctx, item.EntityID)
		if err != nil && apperrors.CodeOf(err) != apperrors.ErrNotFound {
			return nil, err
		}
		return nil, sy.store.DeleteTask(ctx, item.EntityID)
	default:
		return nil, apperrors.Newf(apperrors.ErrInvalid, "unknown operation %q", item.Operation)
	}
}

func (sy *Syncer) processFolder(ctx context.Context, item *models.SyncQueueItem) (*idRemap, error) {
	switch item.Operation {
	case models.OperationCreate:
		var input models.FolderInput
		if err := json.Unmarshal(item.Data, &input); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInvalid, "decode queued folder create", err)
		}
		folder, err := sy.api.CreateFolder(ctx, input)
		if err != nil {
			return nil, err
		}
		if err := sy.store.SaveFolder(ctx, folder); err != nil {
			return nil, err
		}
		if models.IsTempID(item.EntityID) {
			if err := sy.store.DeleteFolder(ctx, item.EntityID); err != nil {
				return nil, err
			}
			if err := sy.store.RemapQueueEntityID(ctx, models.EntityFolder, item.EntityID, folder.ID); err != nil {
				return nil, err
			}
			return &idRemap{entityType: models.EntityFolder, from: item.EntityID, to: folder.ID}, nil
		}
		return nil, nil
	case models.OperationUpdate:
		var patch models.FolderPatch
		if err := json.Unmarshal(item.Data, &patch); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInvalid, "decode queued folder update", err)
		}
		folder, err := sy.api.UpdateFolder(ctx, item.EntityID, patch)
		if err != nil {
			return nil, err
		}
		return nil, sy.store.SaveFolder(ctx, folder)
	case models.OperationDelete:
		err := sy.api.DeleteFolder(ctx, item.EntityID)
		if err != nil && apperrors.CodeOf(err) != apperrors.ErrNotFound {
			return nil, err
		}
		return nil, sy.store.DeleteFolder(ctx, item.EntityID)
	default:
		return nil, apperrors.Newf(apperrors.ErrInvalid, "unknown operation %q", item.Operation)
	}
}

// refreshSnapshot pulls the full current lists in parallel. A per-resource
// fetch failure degrades to an empty page rather than aborting the refresh;
// all three pages are persisted in one transaction.
func (sy *Syncer) refreshSnapshot(ctx context.Context) error {
	var (
		wg      sync.WaitGroup
		notes   []models.Note
		tasks   []models.Task
		folders []models.Folder
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		got, err := sy.api.ListNotes(ctx, api.NoteFilter{})
		if err != nil {
			sy.log.WarnErr("note refresh failed", err)
			return
		}
		notes = got
	}()
	go func() {
		defer wg.Done()
		got, err := sy.api.ListTasks(ctx, api.TaskFilter{})
		if err != nil {
			sy.log.WarnErr("task refresh failed", err)
			return
		}
		tasks = got
	}()
	go func() {
		defer wg.Done()
		got, err := sy.api.ListFolders(ctx)
		if err != nil {
			sy.log.WarnErr("folder refresh failed", err)
			return
		}
		folders = got
	}()
	wg.Wait()

	return sy.store.SaveSnapshot(ctx, notes, tasks, folders)
}
