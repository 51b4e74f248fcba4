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

// TaskService is the offline-aware facade over the task resource.
type TaskService struct {
	api     api.TaskAPI
	store   *store.Store
	monitor *connectivity.Monitor
	tempIDs *TempIDs
	log     logging.Logger
}

// NewTaskService creates a TaskService.
func NewTaskService(a api.TaskAPI, s *store.Store, m *connectivity.Monitor, ids *TempIDs, log logging.Logger) *TaskService {
	return &TaskService{api: a, store: s, monitor: m, tempIDs: ids, log: log.Component("tasks")}
}

// List returns tasks matching f.
func (svc *TaskService) List(ctx context.Context, f api.TaskFilter) ([]models.Task, error) {
	if svc.monitor.IsOnline() {
		tasks, err := svc.api.ListTasks(ctx, f)
		if err == nil {
			if cacheErr := svc.store.SaveTasks(ctx, tasks); cacheErr != nil {
				svc.log.WarnErr("caching server tasks failed", cacheErr)
			}
			return tasks, nil
		}
		if !apperrors.IsNetwork(err) {
			return nil, err
		}
		svc.log.WarnErr("server list failed, serving local replica", err)
	}

	all, err := svc.store.GetAllTasks(ctx)
	if err != nil {
		return nil, err
	}
	return filterTasks(all, f), nil
}

// Get returns one task by id.
func (svc *TaskService) Get(ctx context.Context, id int64) (*models.Task, error) {
	if svc.monitor.IsOnline() && !models.IsTempID(id) {
		task, err := svc.api.GetTask(ctx, id)
		if err == nil {
			if cacheErr := svc.store.SaveTask(ctx, task); cacheErr != nil {
				svc.log.WarnErr("caching server task failed", cacheErr)
			}
			return task, nil
		}
		if !apperrors.IsNetwork(err) {
			return nil, err
		}
		svc.log.WarnErr("server get failed, serving local replica", err)
	}
	return svc.store.GetTask(ctx, id)
}

// Create creates a task, synthesizing a temp-id record offline.
func (svc *TaskService) Create(ctx context.Context, in models.TaskInput) (*models.Task, error) {
	if svc.monitor.IsOnline() {
		task, err := svc.api.CreateTask(ctx, in)
		if err == nil {
			if cacheErr := svc.store.SaveTask(ctx, task); cacheErr != nil {
				svc.log.WarnErr("caching created task failed", cacheErr)
			}
			return task, nil
		}
		if !apperrors.IsNetwork(err) {
			return nil, err
		}
		svc.log.WarnErr("server create failed, creating locally", err)
	}

	now := time.Now().UTC()
	task := &models.Task{
		ID:          svc.tempIDs.Next(),
		Title:       in.Title,
		Description: in.Description,
		DueDate:     in.DueDate,
		Priority:    in.Priority,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if task.Priority == "" {
		task.Priority = models.PriorityMedium
	}

	if err := svc.store.SaveTask(ctx, task); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "encode create payload", err)
	}
	if _, err := svc.store.AddToSyncQueue(ctx, models.OperationCreate, models.EntityTask, task.ID, payload); err != nil {
		return nil, err
	}
	return task, nil
}

// Update applies a partial update, shallow-merging offline.
func (svc *TaskService) Update(ctx context.Context, id int64, patch models.TaskPatch) (*models.Task, error) {
	if svc.monitor.IsOnline() && !models.IsTempID(id) {
		task, err := svc.api.UpdateTask(ctx, id, patch)
		if err == nil {
			if cacheErr := svc.store.SaveTask(ctx, task); cacheErr != nil {
				svc.log.WarnErr("caching updated task failed", cacheErr)
			}
			return task, nil
		}
		if !apperrors.IsNetwork(err) {
			return nil, err
		}
		svc.log.WarnErr("server update failed, updating locally", err)
	}

	task, err := svc.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	patch.Apply(task)
	task.UpdatedAt = time.Now().UTC()
	if err := svc.store.SaveTask(ctx, task); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(patch)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "encode update payload", err)
	}
	if _, err := svc.store.AddToSyncQueue(ctx, models.OperationUpdate, models.EntityTask, id, payload); err != nil {
		return nil, err
	}
	return task, nil
}

// Delete removes a task locally regardless of network outcome.
func (svc *TaskService) Delete(ctx context.Context, id int64) error {
	deletedOnServer := false
	if svc.monitor.IsOnline() && !models.IsTempID(id) {
		err := svc.api.DeleteTask(ctx, id)
		switch {
		case err == nil, apperrors.Is(err, apperrors.ErrNotFound):
			deletedOnServer = true
		case !apperrors.IsNetwork(err):
			return err
		default:
			svc.log.WarnErr("server delete failed, deleting locally", err)
		}
	}

	if err := svc.store.DeleteTask(ctx, id); err != nil {
		return err
	}
	if models.IsTempID(id) {
		return dropQueuedMutations(ctx, svc.store, models.EntityTask, id)
	}
	if !deletedOnServer {
		if _, err := svc.store.AddToSyncQueue(ctx, models.OperationDelete, models.EntityTask, id, nil); err != nil {
			return err
		}
	}
	return nil
}

// ToggleCompleted flips the completed flag.
func (svc *TaskService) ToggleCompleted(ctx context.Context, id int64) (*models.Task, error) {
	current, err := svc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	v := !current.Completed
	return svc.Update(ctx, id, models.TaskPatch{Completed: &v})
}

// filterTasks applies the server's task list semantics locally: optional
// completion and priority filters, incomplete-first then due-date order.
func filterTasks(tasks []models.Task, f api.TaskFilter) []models.Task {
	out := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		if f.Completed != nil && t.Completed != *f.Completed {
			continue
		}
		if f.Priority != "" && t.Priority != f.Priority {
			continue
		}
		out = append(out, t)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Completed != out[j].Completed {
			return !out[i].Completed
		}
		di, dj := out[i].DueDate, out[j].DueDate
		switch {
		case di != nil && dj != nil:
			return di.Before(*dj)
		case di != nil:
			return true
		case dj != nil:
			return false
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}
