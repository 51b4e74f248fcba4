// Package events provides the in-process typed event bus that decouples the
// real-time transport from UI consumers. Each event name carries exactly one
// payload type, so subscribers never see loosely typed data.
package events

import "sync"

// Type names an event on the bus.
type Type string

const (
	TypeNoteUpdated      Type = "note-updated"
	TypeNoteDeleted      Type = "note-deleted"
	TypeTaskUpdated      Type = "task-updated"
	TypeFolderChanged    Type = "folder-changed"
	TypePresence         Type = "presence"
	TypeRoomMembers      Type = "room-members"
	TypeConnectionStatus Type = "connection-status"
)

// Event is the discriminated union of bus payloads.
type Event interface {
	EventType() Type
}

// NoteUpdated is a remote edit to a note, carrying only changed fields.
type NoteUpdated struct {
	NoteID   int64
	Fields   map[string]interface{}
	Version  int64
	SenderID int64
}

// EventType implements Event.
func (NoteUpdated) EventType() Type { return TypeNoteUpdated }

// NoteDeleted is a remote note deletion.
type NoteDeleted struct {
	NoteID int64
}

// EventType implements Event.
func (NoteDeleted) EventType() Type { return TypeNoteDeleted }

// TaskUpdated is a remote edit to a task.
type TaskUpdated struct {
	TaskID   int64
	Fields   map[string]interface{}
	Version  int64
	SenderID int64
}

// EventType implements Event.
func (TaskUpdated) EventType() Type { return TypeTaskUpdated }

// FolderOp distinguishes folder lifecycle events pushed by the server.
type FolderOp string

const (
	FolderCreated FolderOp = "created"
	FolderUpdated FolderOp = "updated"
	FolderDeleted FolderOp = "deleted"
)

// FolderChanged is a remote folder create, rename/move or delete.
type FolderChanged struct {
	Op       FolderOp
	FolderID int64
	Name     string
	ParentID *int64
}

// EventType implements Event.
func (FolderChanged) EventType() Type { return TypeFolderChanged }

// Presence reports another user joining or leaving a room.
type Presence struct {
	RoomID string
	UserID int64
	Joined bool
}

// EventType implements Event.
func (Presence) EventType() Type { return TypePresence }

// RoomMembers is the membership snapshot sent when joining a room.
type RoomMembers struct {
	RoomID  string
	UserIDs []int64
}

// EventType implements Event.
func (RoomMembers) EventType() Type { return TypeRoomMembers }

// ConnectionStatusChanged reports channel state transitions.
type ConnectionStatusChanged struct {
	Status string // connected | connecting | disconnected | error
}

// EventType implements Event.
func (ConnectionStatusChanged) EventType() Type { return TypeConnectionStatus }

// Bus is a minimal publish/subscribe fan-out. Emit runs handlers
// synchronously in subscription order.
type Bus struct {
	mu       sync.Mutex
	handlers map[Type]map[int]func(Event)
	nextID   int
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[Type]map[int]func(Event))}
}

// On registers a handler for one event type. The returned function removes
// the registration.
func (b *Bus) On(t Type, handler func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers[t] == nil {
		b.handlers[t] = make(map[int]func(Event))
	}
	id := b.nextID
	b.nextID++
	b.handlers[t][id] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers[t], id)
	}
}

// Emit delivers ev to every handler registered for its type.
func (b *Bus) Emit(ev Event) {
	b.mu.Lock()
	hs := make([]func(Event), 0, len(b.handlers[ev.EventType()]))
	for _, h := range b.handlers[ev.EventType()] {
		hs = append(hs, h)
	}
	b.mu.Unlock()

	for _, h := range hs {
		h(ev)
	}
}

// Reset drops every subscription. Called on channel disconnect.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[Type]map[int]func(Event))
}

// On is the typed subscription helper: the handler receives the concrete
// payload type instead of the Event interface.
func On[T Event](b *Bus, handler func(T)) func() {
	var zero T
	return b.On(zero.EventType(), func(ev Event) {
		if payload, ok := ev.(T); ok {
			handler(payload)
		}
	})
}
