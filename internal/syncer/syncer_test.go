package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notehub/notehub-client/internal/api"
	"github.com/notehub/notehub-client/internal/connectivity"
	apperrors "github.com/notehub/notehub-client/internal/errors"
	"github.com/notehub/notehub-client/internal/logging"
	"github.com/notehub/notehub-client/internal/models"
	"github.com/notehub/notehub-client/internal/store"
)

// fakeAPI records calls and serves canned responses. Setting failNotes (and
// friends) makes the relevant calls fail with a network error.
type fakeAPI struct {
	mu    sync.Mutex
	calls []string

	nextID int64

	notes   []models.Note
	tasks   []models.Task
	folders []models.Folder

	failNotes   bool
	failTasks   bool
	failFolders bool

	noteDeleteErr error
	noteUpdateErr error
}

func (f *fakeAPI) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeAPI) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAPI) noteErr() error {
	if f.failNotes {
		return apperrors.New(apperrors.ErrNetwork, "note endpoint down")
	}
	return nil
}

func (f *fakeAPI) ListNotes(ctx context.Context, _ api.NoteFilter) ([]models.Note, error) {
	f.record("notes.list")
	if err := f.noteErr(); err != nil {
		return nil, err
	}
	return f.notes, nil
}

func (f *fakeAPI) GetNote(ctx context.Context, id int64) (*models.Note, error) {
	f.record(fmt.Sprintf("notes.get:%d", id))
	return nil, apperrors.New(apperrors.ErrNotFound, "not served by fake")
}

func (f *fakeAPI) CreateNote(ctx context.Context, in models.NoteInput) (*models.Note, error) {
	f.record("notes.create:" + in.Title)
	if err := f.noteErr(); err != nil {
		return nil, err
	}
	f.nextID++
	now := time.Now().UTC()
	n := models.Note{ID: f.nextID, Title: in.Title, Body: in.Body, Tags: in.Tags, CreatedAt: now, UpdatedAt: now}
	return &n, nil
}

func (f *fakeAPI) UpdateNote(ctx context.Context, id int64, patch models.NotePatch) (*models.Note, error) {
	f.record(fmt.Sprintf("notes.update:%d", id))
	if f.noteUpdateErr != nil {
		return nil, f.noteUpdateErr
	}
	if err := f.noteErr(); err != nil {
		return nil, err
	}
	n := models.Note{ID: id, UpdatedAt: time.Now().UTC()}
	patch.Apply(&n)
	return &n, nil
}

func (f *fakeAPI) DeleteNote(ctx context.Context, id int64) error {
	f.record(fmt.Sprintf("notes.delete:%d", id))
	if f.noteDeleteErr != nil {
		return f.noteDeleteErr
	}
	return f.noteErr()
}

func (f *fakeAPI) taskErr() error {
	if f.failTasks {
		return apperrors.New(apperrors.ErrNetwork, "task endpoint down")
	}
	return nil
}

func (f *fakeAPI) ListTasks(ctx context.Context, _ api.TaskFilter) ([]models.Task, error) {
	f.record("tasks.list")
	if err := f.taskErr(); err != nil {
		return nil, err
	}
	return f.tasks, nil
}

func (f *fakeAPI) GetTask(ctx context.Context, id int64) (*models.Task, error) {
	f.record(fmt.Sprintf("tasks.get:%d", id))
	return nil, apperrors.New(apperrors.ErrNotFound, "not served by fake")
}

func (f *fakeAPI) CreateTask(ctx context.Context, in models.TaskInput) (*models.Task, error) {
	f.record("tasks.create:" + in.Title)
	if err := f.taskErr(); err != nil {
		return nil, err
	}
	f.nextID++
	now := time.Now().UTC()
	t := models.Task{ID: f.nextID, Title: in.Title, Priority: in.Priority, CreatedAt: now, UpdatedAt: now}
	return &t, nil
}

func (f *fakeAPI) UpdateTask(ctx context.Context, id int64, patch models.TaskPatch) (*models.Task, error) {
	f.record(fmt.Sprintf("tasks.update:%d", id))
	if err := f.taskErr(); err != nil {
		return nil, err
	}
	t := models.Task{ID: id, UpdatedAt: time.Now().UTC()}
	patch.Apply(&t)
	return &t, nil
}

func (f *fakeAPI) DeleteTask(ctx context.Context, id int64) error {
	f.record(fmt.Sprintf("tasks.delete:%d", id))
	return f.taskErr()
}

func (f *fakeAPI) folderErr() error {
	if f.failFolders {
		return apperrors.New(apperrors.ErrNetwork, "folder endpoint down")
	}
	return nil
}

func (f *fakeAPI) ListFolders(ctx context.Context) ([]models.Folder, error) {
	f.record("folders.list")
	if err := f.folderErr(); err != nil {
		return nil, err
	}
	return f.folders, nil
}

func (f *fakeAPI) GetFolder(ctx context.Context, id int64) (*models.Folder, error) {
	f.record(fmt.Sprintf("folders.get:%d", id))
	return nil, apperrors.New(apperrors.ErrNotFound, "not served by fake")
}

func (f *fakeAPI) CreateFolder(ctx context.Context, in models.FolderInput) (*models.Folder, error) {
	f.record("folders.create:" + in.Name)
	if err := f.folderErr(); err != nil {
		return nil, err
	}
	f.nextID++
	now := time.Now().UTC()
	fo := models.Folder{ID: f.nextID, Name: in.Name, CreatedAt: now, UpdatedAt: now}
	return &fo, nil
}

func (f *fakeAPI) UpdateFolder(ctx context.Context, id int64, patch models.FolderPatch) (*models.Folder, error) {
	f.record(fmt.Sprintf("folders.update:%d", id))
	if err := f.folderErr(); err != nil {
		return nil, err
	}
	fo := models.Folder{ID: id, UpdatedAt: time.Now().UTC()}
	patch.Apply(&fo)
	return &fo, nil
}

func (f *fakeAPI) DeleteFolder(ctx context.Context, id int64) error {
	f.record(fmt.Sprintf("folders.delete:%d", id))
	return f.folderErr()
}

var _ api.API = (*fakeAPI)(nil)

func newFixture(t *testing.T, online bool) (*Syncer, *fakeAPI, *store.Store, *connectivity.Monitor) {
	t.Helper()
	session := &api.StaticSession{User: &models.User{ID: 1}, Token: "tok"}
	s := store.New(":memory:", session, logging.Nop())
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(func() { s.Close() })

	monitor := connectivity.NewMonitor("http://unused", logging.Nop(), connectivity.WithInitialState(online))
	fake := &fakeAPI{nextID: 100}
	sy := New(fake, s, monitor, logging.Nop())
	t.Cleanup(sy.Destroy)
	return sy, fake, s, monitor
}

func mustJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestSync_offline_isNoOp(t *testing.T) {
	sy, fake, s, _ := newFixture(t, false)
	ctx := context.Background()

	_, err := s.AddToSyncQueue(ctx, models.OperationCreate, models.EntityNote, -1,
		mustJSON(t, models.NoteInput{Title: "a"}))
	require.NoError(t, err)

	require.NoError(t, sy.Sync(ctx))
	assert.Empty(t, fake.recorded())

	count, _ := s.PendingCount(ctx)
	assert.Equal(t, 1, count, "queue untouched while offline")
}

func TestSync_reentrant_isNoOp(t *testing.T) {
	sy, fake, _, _ := newFixture(t, true)

	sy.mu.Lock()
	sy.syncing = true
	sy.mu.Unlock()

	require.NoError(t, sy.Sync(context.Background()))
	assert.Empty(t, fake.recorded())
}

func TestSync_drainsQueueInTimestampOrder(t *testing.T) {
	sy, fake, s, _ := newFixture(t, true)
	ctx := context.Background()

	_, err := s.AddToSyncQueue(ctx, models.OperationCreate, models.EntityNote, -1,
		mustJSON(t, models.NoteInput{Title: "first"}))
	require.NoError(t, err)
	title := "second"
	_, err = s.AddToSyncQueue(ctx, models.OperationUpdate, models.EntityTask, 7,
		mustJSON(t, models.TaskPatch{Title: &title}))
	require.NoError(t, err)
	_, err = s.AddToSyncQueue(ctx, models.OperationDelete, models.EntityFolder, 9, nil)
	require.NoError(t, err)

	require.NoError(t, sy.Sync(ctx))

	calls := fake.recorded()
	require.GreaterOrEqual(t, len(calls), 3)
	assert.Equal(t, "notes.create:first", calls[0])
	assert.Equal(t, "tasks.update:7", calls[1])
	assert.Equal(t, "folders.delete:9", calls[2])

	count, err := s.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSync_createReconcilesTempID(t *testing.T) {
	sy, _, s, _ := newFixture(t, true)
	ctx := context.Background()

	// Simulate an offline create: temp record plus queued input.
	temp := models.Note{ID: -1, Title: "draft", UpdatedAt: time.Now().UTC()}
	require.NoError(t, s.SaveNote(ctx, &temp))
	_, err := s.AddToSyncQueue(ctx, models.OperationCreate, models.EntityNote, -1,
		mustJSON(t, models.NoteInput{Title: "draft"}))
	require.NoError(t, err)

	require.NoError(t, sy.Sync(ctx))

	_, err = s.GetNote(ctx, -1)
	assert.Equal(t, apperrors.ErrNotFound, apperrors.CodeOf(err), "temp record must not survive reconciliation")

	note, err := s.GetNote(ctx, 101)
	require.NoError(t, err)
	assert.Equal(t, "draft", note.Title)
}

func TestSync_queuedEditsFollowCreateToServerID(t *testing.T) {
	sy, fake, s, _ := newFixture(t, true)
	ctx := context.Background()

	// Offline session: a draft is created and then edited before the first
	// sync, so both mutations sit in the queue under the temp id.
	temp := models.Note{ID: -1, Title: "draft", UpdatedAt: time.Now().UTC()}
	require.NoError(t, s.SaveNote(ctx, &temp))
	_, err := s.AddToSyncQueue(ctx, models.OperationCreate, models.EntityNote, -1,
		mustJSON(t, models.NoteInput{Title: "draft"}))
	require.NoError(t, err)
	title := "edited"
	_, err = s.AddToSyncQueue(ctx, models.OperationUpdate, models.EntityNote, -1,
		mustJSON(t, models.NotePatch{Title: &title}))
	require.NoError(t, err)

	require.NoError(t, sy.Sync(ctx))

	calls := fake.recorded()
	require.GreaterOrEqual(t, len(calls), 2)
	assert.Equal(t, "notes.create:draft", calls[0])
	assert.Equal(t, "notes.update:101", calls[1], "queued edit must target the server id")
	for _, call := range calls {
		assert.NotContains(t, call, "-1", "temp ids never reach the server")
	}

	count, err := s.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	note, err := s.GetNote(ctx, 101)
	require.NoError(t, err)
	assert.Equal(t, "edited", note.Title)
}

func TestSync_retriesThenDropsAfterThreeFailures(t *testing.T) {
	sy, fake, s, _ := newFixture(t, true)
	ctx := context.Background()

	fake.failNotes = true
	_, err := s.AddToSyncQueue(ctx, models.OperationDelete, models.EntityNote, 5, nil)
	require.NoError(t, err)

	for attempt := 1; attempt <= models.MaxRetries; attempt++ {
		require.NoError(t, sy.Sync(ctx))
		items, err := s.GetSyncQueue(ctx)
		require.NoError(t, err)
		if attempt < models.MaxRetries {
			require.Len(t, items, 1, "attempt %d keeps the item", attempt)
			assert.Equal(t, attempt, items[0].RetryCount)
			assert.Contains(t, items[0].Error, "note endpoint down")
		} else {
			assert.Empty(t, items, "third failure drops the item")
		}
	}
}

func TestSync_storageFaultKeepsRetryBudget(t *testing.T) {
	sy, fake, s, _ := newFixture(t, true)
	ctx := context.Background()

	title := "edited"
	_, err := s.AddToSyncQueue(ctx, models.OperationUpdate, models.EntityNote, 5,
		mustJSON(t, models.NotePatch{Title: &title}))
	require.NoError(t, err)
	fake.noteUpdateErr = apperrors.New(apperrors.ErrDatabase, "disk I/O error")

	err = sy.Sync(ctx)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrDatabase, apperrors.CodeOf(err))

	items, err := s.GetSyncQueue(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1, "a storage fault must not evict the mutation")
	assert.Zero(t, items[0].RetryCount, "only server rejections consume the retry budget")
}

func TestLocalFault_classifiesByCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"database", apperrors.New(apperrors.ErrDatabase, "x"), true},
		{"crypto", apperrors.New(apperrors.ErrCryptoFailed, "x"), true},
		{"no session", apperrors.New(apperrors.ErrNoActiveSession, "x"), true},
		{"network", apperrors.New(apperrors.ErrNetwork, "x"), false},
		{"validation", apperrors.New(apperrors.ErrValidation, "x"), false},
		{"not found", apperrors.New(apperrors.ErrNotFound, "x"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, localFault(tt.err))
		})
	}
}

func TestSync_deleteMissingOnServerCountsAsSuccess(t *testing.T) {
	sy, fake, s, _ := newFixture(t, true)
	ctx := context.Background()

	_, err := s.AddToSyncQueue(ctx, models.OperationDelete, models.EntityNote, 5, nil)
	require.NoError(t, err)
	fake.noteDeleteErr = apperrors.New(apperrors.ErrNotFound, "already gone")

	require.NoError(t, sy.Sync(ctx))
	count, err := s.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSync_refreshPersistsSnapshotAndLastSyncTime(t *testing.T) {
	sy, fake, s, _ := newFixture(t, true)
	ctx := context.Background()

	now := time.Now().UTC()
	fake.notes = []models.Note{{ID: 1, Title: "n", UpdatedAt: now}}
	fake.tasks = []models.Task{{ID: 2, Title: "t", UpdatedAt: now}}
	fake.folders = []models.Folder{{ID: 3, Name: "f", UpdatedAt: now}}

	require.NoError(t, sy.Sync(ctx))

	notes, err := s.GetAllNotes(ctx)
	require.NoError(t, err)
	assert.Len(t, notes, 1)
	tasks, err := s.GetAllTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
	folders, err := s.GetAllFolders(ctx)
	require.NoError(t, err)
	assert.Len(t, folders, 1)

	last, err := s.GetLastSyncTime(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.WithinDuration(t, time.Now().UTC(), *last, 5*time.Second)
}

func TestSync_partialRefreshFailureDegradesToEmptyPage(t *testing.T) {
	sy, fake, s, _ := newFixture(t, true)
	ctx := context.Background()

	now := time.Now().UTC()
	fake.tasks = []models.Task{{ID: 2, Title: "t", UpdatedAt: now}}
	fake.failNotes = true

	require.NoError(t, sy.Sync(ctx))

	tasks, err := s.GetAllTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, 1, "a failing resource must not block the others")
}

func TestSubscribe_deliversCurrentStatusImmediately(t *testing.T) {
	sy, _, s, _ := newFixture(t, true)
	ctx := context.Background()

	_, err := s.AddToSyncQueue(ctx, models.OperationDelete, models.EntityNote, 5, nil)
	require.NoError(t, err)

	var got []Status
	off := sy.Subscribe(ctx, func(st Status) { got = append(got, st) })
	defer off()

	require.Len(t, got, 1)
	assert.False(t, got[0].IsSyncing)
	assert.Equal(t, 1, got[0].PendingCount)
}

func TestSync_notifiesStartAndFinish(t *testing.T) {
	sy, _, _, _ := newFixture(t, true)
	ctx := context.Background()

	var got []Status
	off := sy.Subscribe(ctx, func(st Status) { got = append(got, st) })
	defer off()
	got = nil

	require.NoError(t, sy.Sync(ctx))

	require.Len(t, got, 2)
	assert.True(t, got[0].IsSyncing)
	assert.False(t, got[1].IsSyncing)
	assert.NotNil(t, got[1].LastSyncTime)
}

func TestStart_onlineTransitionTriggersSync(t *testing.T) {
	sy, fake, s, monitor := newFixture(t, false)
	ctx := context.Background()

	_, err := s.AddToSyncQueue(ctx, models.OperationDelete, models.EntityNote, 5, nil)
	require.NoError(t, err)

	sy.Start(ctx)
	monitor.SetOnline(true)

	assert.Eventually(t, func() bool {
		count, err := s.PendingCount(ctx)
		return err == nil && count == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.NotEmpty(t, fake.recorded())
}
