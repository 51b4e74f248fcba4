package models

import "time"

// NoteInput is the payload for creating a note. Zero-valued fields are left
// for the server to default; the offline path synthesizes the same defaults
// locally (title "Untitled", empty body).
type NoteInput struct {
	Title    string   `json:"title,omitempty"`
	Body     string   `json:"body,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Pinned   bool     `json:"pinned,omitempty"`
	Favorite bool     `json:"favorite,omitempty"`
	FolderID *int64   `json:"folder_id,omitempty"`
}

// NotePatch is a partial update for a note. Nil fields are untouched; the
// offline path applies the patch as a shallow merge onto the stored record.
type NotePatch struct {
	Title    *string   `json:"title,omitempty"`
	Body     *string   `json:"body,omitempty"`
	Tags     *[]string `json:"tags,omitempty"`
	Pinned   *bool     `json:"pinned,omitempty"`
	Archived *bool     `json:"archived,omitempty"`
	Favorite *bool     `json:"favorite,omitempty"`
	FolderID *int64    `json:"folder_id,omitempty"`
}

// Apply merges the patch onto n in place and returns n.
func (p NotePatch) Apply(n *Note) *Note {
	if p.Title != nil {
		n.Title = *p.Title
	}
	if p.Body != nil {
		n.Body = *p.Body
	}
	if p.Tags != nil {
		n.Tags = *p.Tags
	}
	if p.Pinned != nil {
		n.Pinned = *p.Pinned
	}
	if p.Archived != nil {
		n.Archived = *p.Archived
	}
	if p.Favorite != nil {
		n.Favorite = *p.Favorite
	}
	if p.FolderID != nil {
		n.FolderID = p.FolderID
	}
	return n
}

// TaskInput is the payload for creating a task.
type TaskInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Priority    string     `json:"priority,omitempty"`
}

// TaskPatch is a partial update for a task.
type TaskPatch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Completed   *bool      `json:"completed,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Priority    *string    `json:"priority,omitempty"`
}

// Apply merges the patch onto t in place and returns t.
func (p TaskPatch) Apply(t *Task) *Task {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.DueDate != nil {
		t.DueDate = p.DueDate
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	return t
}

// FolderInput is the payload for creating a folder.
type FolderInput struct {
	Name     string `json:"name"`
	ParentID *int64 `json:"parent_id,omitempty"`
}

// FolderPatch is a partial update for a folder.
type FolderPatch struct {
	Name     *string `json:"name,omitempty"`
	ParentID *int64  `json:"parent_id,omitempty"`
}

// Apply merges the patch onto f in place and returns f.
func (p FolderPatch) Apply(f *Folder) *Folder {
	if p.Name != nil {
		f.Name = *p.Name
	}
	if p.ParentID != nil {
		f.ParentID = p.ParentID
	}
	return f
}
