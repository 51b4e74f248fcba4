package models

import (
	"testing"
	"time"
)

func TestEntityTypeValid(t *testing.T) {
	tests := []struct {
		in   EntityType
		want bool
	}{
		{EntityNote, true},
		{EntityTask, true},
		{EntityFolder, true},
		{EntityType("memo"), false},
		{EntityType(""), false},
	}
	for _, tt := range tests {
		if got := tt.in.Valid(); got != tt.want {
			t.Errorf("EntityType(%q).Valid() = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestOperationValid(t *testing.T) {
	tests := []struct {
		in   Operation
		want bool
	}{
		{OperationCreate, true},
		{OperationUpdate, true},
		{OperationDelete, true},
		{Operation("upsert"), false},
	}
	for _, tt := range tests {
		if got := tt.in.Valid(); got != tt.want {
			t.Errorf("Operation(%q).Valid() = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestIsTempID(t *testing.T) {
	tests := []struct {
		id   int64
		want bool
	}{
		{-1, true},
		{-999, true},
		{0, false},
		{1, false},
	}
	for _, tt := range tests {
		if got := IsTempID(tt.id); got != tt.want {
			t.Errorf("IsTempID(%d) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestNotePatchApply(t *testing.T) {
	note := Note{
		ID:    1,
		Title: "before",
		Body:  "body",
		Tags:  []string{"a"},
	}

	title := "after"
	pinned := true
	patch := NotePatch{Title: &title, Pinned: &pinned}
	patch.Apply(&note)

	if note.Title != "after" {
		t.Errorf("Title = %q, want %q", note.Title, "after")
	}
	if !note.Pinned {
		t.Error("Pinned not applied")
	}
	if note.Body != "body" {
		t.Errorf("Body changed by unrelated patch: %q", note.Body)
	}
	if len(note.Tags) != 1 || note.Tags[0] != "a" {
		t.Errorf("Tags changed by unrelated patch: %v", note.Tags)
	}
}

func TestTaskPatchApply(t *testing.T) {
	due := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	task := Task{ID: 1, Title: "t", Priority: PriorityLow}

	completed := true
	patch := TaskPatch{Completed: &completed, DueDate: &due}
	patch.Apply(&task)

	if !task.Completed {
		t.Error("Completed not applied")
	}
	if task.DueDate == nil || !task.DueDate.Equal(due) {
		t.Errorf("DueDate = %v, want %v", task.DueDate, due)
	}
	if task.Priority != PriorityLow {
		t.Errorf("Priority changed by unrelated patch: %q", task.Priority)
	}
}

func TestFolderPatchApply(t *testing.T) {
	folder := Folder{ID: 1, Name: "inbox"}

	name := "archive"
	parent := int64(5)
	patch := FolderPatch{Name: &name, ParentID: &parent}
	patch.Apply(&folder)

	if folder.Name != "archive" {
		t.Errorf("Name = %q, want %q", folder.Name, "archive")
	}
	if folder.ParentID == nil || *folder.ParentID != 5 {
		t.Errorf("ParentID = %v, want 5", folder.ParentID)
	}
}
