// Package api defines the contract this layer has with the NoteHub REST
// server and the session provider, plus an HTTP implementation. The key
// property the rest of the layer depends on is that network-class failures
// are distinguishable from validation failures, so the facade falls back to
// the local replica only when the server was unreachable.
package api

import (
	"context"

	"github.com/notehub/notehub-client/internal/models"
)

// NoteFilter mirrors the server's list query parameters. The offline path
// applies the same semantics against the local replica.
type NoteFilter struct {
	// View selects a subset: "all" (default), "favorites", "archived".
	View string
	// Search is a case-insensitive substring match on title, body and tags.
	Search string
	// Tag filters to notes carrying the exact tag.
	Tag string
}

// TaskFilter mirrors the server's task list query parameters.
type TaskFilter struct {
	// Completed filters by completion state when non-nil.
	Completed *bool
	// Priority filters to one of low|medium|high when set.
	Priority string
}

// NoteAPI is the authoritative note resource.
type NoteAPI interface {
	ListNotes(ctx context.Context, f NoteFilter) ([]models.Note, error)
	GetNote(ctx context.Context, id int64) (*models.Note, error)
	CreateNote(ctx context.Context, in models.NoteInput) (*models.Note, error)
	UpdateNote(ctx context.Context, id int64, patch models.NotePatch) (*models.Note, error)
	DeleteNote(ctx context.Context, id int64) error
}

// TaskAPI is the authoritative task resource.
type TaskAPI interface {
	ListTasks(ctx context.Context, f TaskFilter) ([]models.Task, error)
	GetTask(ctx context.Context, id int64) (*models.Task, error)
	CreateTask(ctx context.Context, in models.TaskInput) (*models.Task, error)
	UpdateTask(ctx context.Context, id int64, patch models.TaskPatch) (*models.Task, error)
	DeleteTask(ctx context.Context, id int64) error
}

// FolderAPI is the authoritative folder resource.
type FolderAPI interface {
	ListFolders(ctx context.Context) ([]models.Folder, error)
	GetFolder(ctx context.Context, id int64) (*models.Folder, error)
	CreateFolder(ctx context.Context, in models.FolderInput) (*models.Folder, error)
	UpdateFolder(ctx context.Context, id int64, patch models.FolderPatch) (*models.Folder, error)
	DeleteFolder(ctx context.Context, id int64) error
}

// API bundles all three resources; *Client satisfies it.
type API interface {
	NoteAPI
	TaskAPI
	FolderAPI
}

// SessionProvider exposes the stored authenticated session. The store uses
// it to bind the replica to a user; the HTTP client and websocket channel
// use it for the bearer token.
type SessionProvider interface {
	// StoredUser returns the authenticated user, or false if none.
	StoredUser() (*models.User, bool)
	// StoredToken returns the session token, or false if none.
	StoredToken() (string, bool)
}

// StaticSession is a SessionProvider with fixed values. Used by tests and
// by the daemon after login.
type StaticSession struct {
	User  *models.User
	Token string
}

// StoredUser implements SessionProvider.
func (s *StaticSession) StoredUser() (*models.User, bool) {
	if s == nil || s.User == nil {
		return nil, false
	}
	return s.User, true
}

// StoredToken implements SessionProvider.
func (s *StaticSession) StoredToken() (string, bool) {
	if s == nil || s.Token == "" {
		return "", false
	}
	return s.Token, true
}
