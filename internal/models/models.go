// Package models provides data model definitions for the NoteHub client.
package models

import "time"

// EntityType identifies the kind of entity a record or mutation refers to.
type EntityType string

const (
	EntityNote   EntityType = "note"
	EntityTask   EntityType = "task"
	EntityFolder EntityType = "folder"
)

// Valid reports whether the entity type is one of the known kinds.
func (t EntityType) Valid() bool {
	switch t {
	case EntityNote, EntityTask, EntityFolder:
		return true
	}
	return false
}

// Priority levels for tasks. The server defaults to medium when unset.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Note represents a note as seen by the client.
// Server-assigned ids are positive; offline-created notes carry a
// temporary negative id until the create mutation is acknowledged.
type Note struct {
	ID        int64     `db:"id" json:"id"`
	Title     string    `db:"title" json:"title"`
	Body      string    `db:"body" json:"body"`
	Tags      []string  `db:"tags" json:"tags"`
	Pinned    bool      `db:"pinned" json:"pinned"`
	Archived  bool      `db:"archived" json:"archived"`
	Favorite  bool      `db:"favorite" json:"favorite"`
	FolderID  *int64    `db:"folder_id" json:"folder_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for Note.
func (Note) TableName() string {
	return "notes"
}

// Task represents a to-do item.
type Task struct {
	ID          int64      `db:"id" json:"id"`
	Title       string     `db:"title" json:"title"`
	Description string     `db:"description" json:"description"`
	Completed   bool       `db:"completed" json:"completed"`
	DueDate     *time.Time `db:"due_date" json:"due_date,omitempty"`
	Priority    string     `db:"priority" json:"priority"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for Task.
func (Task) TableName() string {
	return "tasks"
}

// Folder groups notes into a tree. Folder names are not considered
// sensitive and are stored in the clear.
type Folder struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	ParentID  *int64    `db:"parent_id" json:"parent_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for Folder.
func (Folder) TableName() string {
	return "folders"
}

// User is the authenticated account the local replica is bound to.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Theme    string `json:"theme,omitempty"`
}

// IsTempID reports whether id is a client-synthesized temporary id.
func IsTempID(id int64) bool {
	return id < 0
}
