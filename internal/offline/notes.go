package offline

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/notehub/notehub-client/internal/api"
	"github.com/notehub/notehub-client/internal/connectivity"
	apperrors "github.com/notehub/notehub-client/internal/errors"
	"github.com/notehub/notehub-client/internal/logging"
	"github.com/notehub/notehub-client/internal/models"
	"github.com/notehub/notehub-client/internal/store"
)

// NoteService is the offline-aware facade over the note resource. Its
// method signatures match the online-only API so callers stay agnostic to
// connectivity.
type NoteService struct {
	api     api.NoteAPI
	store   *store.Store
	monitor *connectivity.Monitor
	tempIDs *TempIDs
	log     logging.Logger
}

// NewNoteService creates a NoteService.
func NewNoteService(a api.NoteAPI, s *store.Store, m *connectivity.Monitor, ids *TempIDs, log logging.Logger) *NoteService {
	return &NoteService{api: a, store: s, monitor: m, tempIDs: ids, log: log.Component("notes")}
}

// List returns notes matching f, from the server when reachable and from
// the local replica otherwise. Filter semantics are identical on both
// paths, so online and offline results are shape-compatible.
func (svc *NoteService) List(ctx context.Context, f api.NoteFilter) ([]models.Note, error) {
	if svc.monitor.IsOnline() {
		notes, err := svc.api.ListNotes(ctx, f)
		if err == nil {
			// Cache-aside write-through of the authoritative page.
			if cacheErr := svc.store.SaveNotes(ctx, notes); cacheErr != nil {
				svc.log.WarnErr("caching server notes failed", cacheErr)
			}
			return notes, nil
		}
		if !apperrors.IsNetwork(err) {
			return nil, err
		}
		svc.log.WarnErr("server list failed, serving local replica", err)
	}

	all, err := svc.store.GetAllNotes(ctx)
	if err != nil {
		return nil, err
	}
	return filterNotes(all, f), nil
}

// Get returns one note by id.
func (svc *NoteService) Get(ctx context.Context, id int64) (*models.Note, error) {
	if svc.monitor.IsOnline() && !models.IsTempID(id) {
		note, err := svc.api.GetNote(ctx, id)
		if err == nil {
			if cacheErr := svc.store.SaveNote(ctx, note); cacheErr != nil {
				svc.log.WarnErr("caching server note failed", cacheErr)
			}
			return note, nil
		}
		if !apperrors.IsNetwork(err) {
			return nil, err
		}
		svc.log.WarnErr("server get failed, serving local replica", err)
	}
	return svc.store.GetNote(ctx, id)
}

// Create creates a note. Offline, a full note object is synthesized under a
// temporary negative id and the original input payload is queued so the
// server assigns its own defaults on replay.
func (svc *NoteService) Create(ctx context.Context, in models.NoteInput) (*models.Note, error) {
	if svc.monitor.IsOnline() {
		note, err := svc.api.CreateNote(ctx, in)
		if err == nil {
			if cacheErr := svc.store.SaveNote(ctx, note); cacheErr != nil {
				svc.log.WarnErr("caching created note failed", cacheErr)
			}
			return note, nil
		}
		if !apperrors.IsNetwork(err) {
			return nil, err
		}
		svc.log.WarnErr("server create failed, creating locally", err)
	}

	now := time.Now().UTC()
	note := &models.Note{
		ID:        svc.tempIDs.Next(),
		Title:     in.Title,
		Body:      in.Body,
		Tags:      in.Tags,
		Pinned:    in.Pinned,
		Favorite:  in.Favorite,
		FolderID:  in.FolderID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if note.Title == "" {
		note.Title = "Untitled"
	}
	if note.Tags == nil {
		note.Tags = []string{}
	}

	if err := svc.store.SaveNote(ctx, note); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "encode create payload", err)
	}
	if _, err := svc.store.AddToSyncQueue(ctx, models.OperationCreate, models.EntityNote, note.ID, payload); err != nil {
		return nil, err
	}
	return note, nil
}

// Update applies a partial update. Offline, the patch is shallow-merged
// onto the stored record; a missing record is a NOT_FOUND error since that
// indicates a usage bug, not a transient condition.
func (svc *NoteService) Update(ctx context.Context, id int64, patch models.NotePatch) (*models.Note, error) {
	if svc.monitor.IsOnline() && !models.IsTempID(id) {
		note, err := svc.api.UpdateNote(ctx, id, patch)
		if err == nil {
			if cacheErr := svc.store.SaveNote(ctx, note); cacheErr != nil {
				svc.log.WarnErr("caching updated note failed", cacheErr)
			}
			return note, nil
		}
		if !apperrors.IsNetwork(err) {
			return nil, err
		}
		svc.log.WarnErr("server update failed, updating locally", err)
	}

	note, err := svc.store.GetNote(ctx, id)
	if err != nil {
		return nil, err
	}
	patch.Apply(note)
	note.UpdatedAt = time.Now().UTC()
	if err := svc.store.SaveNote(ctx, note); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(patch)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "encode update payload", err)
	}
	if _, err := svc.store.AddToSyncQueue(ctx, models.OperationUpdate, models.EntityNote, id, payload); err != nil {
		return nil, err
	}
	return note, nil
}

// Delete removes a note. The local record goes away regardless of whether
// the server call succeeded; offline the delete is queued.
func (svc *NoteService) Delete(ctx context.Context, id int64) error {
	deletedOnServer := false
	if svc.monitor.IsOnline() && !models.IsTempID(id) {
		err := svc.api.DeleteNote(ctx, id)
		switch {
		case err == nil, apperrors.Is(err, apperrors.ErrNotFound):
			deletedOnServer = true
		case !apperrors.IsNetwork(err):
			return err
		default:
			svc.log.WarnErr("server delete failed, deleting locally", err)
		}
	}

	if err := svc.store.DeleteNote(ctx, id); err != nil {
		return err
	}
	if models.IsTempID(id) {
		// The entity never reached the server; dropping its queued
		// mutations is the whole delete.
		return dropQueuedMutations(ctx, svc.store, models.EntityNote, id)
	}
	if !deletedOnServer {
		if _, err := svc.store.AddToSyncQueue(ctx, models.OperationDelete, models.EntityNote, id, nil); err != nil {
			return err
		}
	}
	return nil
}

// ToggleFavorite flips the favorite flag.
func (svc *NoteService) ToggleFavorite(ctx context.Context, id int64) (*models.Note, error) {
	return svc.toggle(ctx, id, func(n *models.Note) models.NotePatch {
		v := !n.Favorite
		return models.NotePatch{Favorite: &v}
	})
}

// TogglePin flips the pinned flag.
func (svc *NoteService) TogglePin(ctx context.Context, id int64) (*models.Note, error) {
	return svc.toggle(ctx, id, func(n *models.Note) models.NotePatch {
		v := !n.Pinned
		return models.NotePatch{Pinned: &v}
	})
}

// ToggleArchive flips the archived flag.
func (svc *NoteService) ToggleArchive(ctx context.Context, id int64) (*models.Note, error) {
	return svc.toggle(ctx, id, func(n *models.Note) models.NotePatch {
		v := !n.Archived
		return models.NotePatch{Archived: &v}
	})
}

func (svc *NoteService) toggle(ctx context.Context, id int64, makePatch func(*models.Note) models.NotePatch) (*models.Note, error) {
	current, err := svc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return svc.Update(ctx, id, makePatch(current))
}

// filterNotes applies the server's list semantics to the local replica:
// the default view hides archived notes, favorites are unarchived
// favorites, search is a case-insensitive substring across title, body and
// tags, and the tag filter is an exact match.
func filterNotes(notes []models.Note, f api.NoteFilter) []models.Note {
	out := make([]models.Note, 0, len(notes))
	search := strings.ToLower(strings.TrimSpace(f.Search))

	for _, n := range notes {
		switch f.View {
		case "archived":
			if !n.Archived {
				continue
			}
		case "favorites":
			if !n.Favorite || n.Archived {
				continue
			}
		default: // "all"
			if n.Archived {
				continue
			}
		}

		if f.Tag != "" && !containsTag(n.Tags, f.Tag) {
			continue
		}

		if search != "" {
			if !strings.Contains(strings.ToLower(n.Title), search) &&
				!strings.Contains(strings.ToLower(n.Body), search) &&
				!tagsMatch(n.Tags, search) {
				continue
			}
		}

		out = append(out, n)
	}

	// Pinned notes first, then most recently updated.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Pinned != out[j].Pinned {
			return out[i].Pinned
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func tagsMatch(tags []string, search string) bool {
	for _, t := range tags {
		if strings.Contains(strings.ToLower(t), search) {
			return true
		}
	}
	return false
}
