// Package realtime maintains the persistent websocket channel used for
// collaborative editing: authenticated connect, per-document rooms,
// fire-and-forget update intents and fan-out of server-pushed events.
package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/notehub/notehub-client/internal/api"
	apperrors "github.com/notehub/notehub-client/internal/errors"
	"github.com/notehub/notehub-client/internal/events"
	"github.com/notehub/notehub-client/internal/logging"
)

// State is the channel connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

const (
	// DefaultHandshakeTimeout bounds the dial plus auth exchange.
	DefaultHandshakeTimeout = 10 * time.Second
	// reconnectInitialDelay is the first reconnect backoff interval.
	reconnectInitialDelay = time.Second
	// maxReconnectAttempts caps the reconnect loop before giving up.
	maxReconnectAttempts = 5
)

// wireMessage is the envelope for every frame in both directions.
type wireMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Channel is the auto-reconnecting websocket client. The zero value is not
// usable; construct with NewChannel.
type Channel struct {
	url     string
	session api.SessionProvider
	bus     *events.Bus
	dialer  *websocket.Dialer
	log     logging.Logger

	mu     sync.Mutex
	state  State
	conn   *websocket.Conn
	rooms  map[string]struct{}
	cancel context.CancelFunc

	writeMu sync.Mutex
}

// Option customizes a Channel.
type Option func(*Channel)

// WithDialer overrides the websocket dialer, mainly for tests.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Channel) { c.dialer = d }
}

// NewChannel builds a Channel targeting url (ws:// or wss://). Events are
// published on bus.
func NewChannel(url string, session api.SessionProvider, bus *events.Bus, log logging.Logger, opts ...Option) *Channel {
	c := &Channel{
		url:     url,
		session: session,
		bus:     bus,
		dialer:  &websocket.Dialer{HandshakeTimeout: DefaultHandshakeTimeout},
		log:     log.Component("realtime"),
		state:   StateDisconnected,
		rooms:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Bus exposes the event bus for subscribers.
func (c *Channel) Bus() *events.Bus { return c.bus }

func (c *Channel) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()

	c.log.Debug("channel state changed", map[string]interface{}{"state": string(s)})
	c.bus.Emit(events.ConnectionStatusChanged{Status: string(s)})
}

// Connect dials the server, authenticates with the session token and starts
// the read loop. An authentication rejection is permanent; transport
// failures after a successful connect trigger the reconnect loop.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	c.setState(StateConnecting)
	conn, err := c.dial(ctx)
	if err != nil {
		c.setState(StateError)
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setState(StateConnected)

	go c.readLoop(ctx, conn)
	return nil
}

// dial performs one dial plus auth exchange.
func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	token, ok := c.session.StoredToken()
	if !ok {
		return nil, apperrors.New(apperrors.ErrNoActiveSession, "no session token for channel auth")
	}

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrNetwork, "dial channel", err)
	}

	auth, _ := json.Marshal(map[string]string{"token": token})
	if err := conn.WriteJSON(wireMessage{Type: "auth", Data: auth}); err != nil {
		conn.Close()
		return nil, apperrors.Wrap(apperrors.ErrNetwork, "send auth", err)
	}

	// The server answers auth before any other traffic. A close or an
	// explicit error frame here means the token was rejected.
	conn.SetReadDeadline(time.Now().Add(DefaultHandshakeTimeout))
	var reply wireMessage
	if err := conn.ReadJSON(&reply); err != nil {
		conn.Close()
		return nil, apperrors.Wrap(apperrors.ErrChannelAuth, "authentication rejected", err)
	}
	if reply.Type != "auth_ok" {
		conn.Close()
		return nil, apperrors.Newf(apperrors.ErrChannelAuth, "authentication rejected: %s", reply.Type)
	}
	conn.SetReadDeadline(time.Time{})
	return conn, nil
}

// readLoop consumes frames until the connection drops or ctx is cancelled.
func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var msg wireMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.WarnErr("channel read failed", err)
			c.handleDrop(ctx)
			return
		}
		c.dispatch(msg)
	}
}

// handleDrop clears connection state and runs the reconnect loop. Joined
// rooms are forgotten; callers re-join after reconnection.
func (c *Channel) handleDrop(ctx context.Context) {
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.rooms = make(map[string]struct{})
	c.mu.Unlock()
	c.setState(StateError)

	policy := backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(backoff.WithInitialInterval(reconnectInitialDelay)),
		maxReconnectAttempts), ctx)

	conn, err := backoff.RetryWithData(func() (*websocket.Conn, error) {
		c.setState(StateConnecting)
		conn, err := c.dial(ctx)
		if err != nil {
			c.setState(StateError)
			if apperrors.CodeOf(err) == apperrors.ErrChannelAuth ||
				apperrors.CodeOf(err) == apperrors.ErrNoActiveSession {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return conn, nil
	}, policy)
	if err != nil {
		c.log.Error("channel reconnect exhausted", err)
		c.setState(StateError)
		return
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setState(StateConnected)
	go c.readLoop(ctx, conn)
}

// Disconnect tears down the connection, stops any reconnect attempt and
// clears all event-bus subscriptions.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.rooms = make(map[string]struct{})
	c.mu.Unlock()

	c.setState(StateDisconnected)
	c.bus.Reset()
}

// send writes one frame if connected; otherwise the frame is dropped.
func (c *Channel) send(msg wireMessage) {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.Unlock()
	if !connected || conn == nil {
		c.log.Debug("frame dropped: not connected", map[string]interface{}{"type": msg.Type})
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(msg); err != nil {
		c.log.WarnErr("channel write failed", err, map[string]interface{}{"type": msg.Type})
	}
}

// JoinRoom requests membership in a document room. Fire-and-forget: dropped
// when not connected, idempotent while connected.
func (c *Channel) JoinRoom(roomID string) {
	c.mu.Lock()
	if c.state != StateConnected || c.conn == nil {
		// Not a member until the frame can go out, so a join after the
		// channel connects is not suppressed.
		c.mu.Unlock()
		c.log.Debug("join dropped, channel not connected", map[string]interface{}{"room": roomID})
		return
	}
	if _, ok := c.rooms[roomID]; ok {
		c.mu.Unlock()
		return
	}
	c.rooms[roomID] = struct{}{}
	c.mu.Unlock()

	data, _ := json.Marshal(map[string]string{"room": roomID})
	c.send(wireMessage{Type: "join_room", Data: data})
}

// LeaveRoom withdraws from a document room.
func (c *Channel) LeaveRoom(roomID string) {
	c.mu.Lock()
	delete(c.rooms, roomID)
	c.mu.Unlock()

	data, _ := json.Marshal(map[string]string{"room": roomID})
	c.send(wireMessage{Type: "leave_room", Data: data})
}

// UpdateIntent is the payload of a fire-and-forget local edit broadcast.
// Durability is the sync queue's job; this is notification only.
type UpdateIntent struct {
	Room       string                 `json:"room"`
	EntityType string                 `json:"entity_type"`
	EntityID   int64                  `json:"entity_id"`
	Fields     map[string]interface{} `json:"fields"`
	Version    int64                  `json:"version,omitempty"`
}

// SendUpdate broadcasts changed fields to a room without waiting for an
// acknowledgment.
func (c *Channel) SendUpdate(intent UpdateIntent) {
	data, err := json.Marshal(intent)
	if err != nil {
		c.log.WarnErr("encode update intent", err)
		return
	}
	c.send(wireMessage{Type: "update", Data: data})
}

// =====================================================
// Inbound dispatch
// =====================================================

type noteUpdatedPayload struct {
	NoteID   int64                  `json:"note_id"`
	Fields   map[string]interface{} `json:"fields"`
	Version  int64                  `json:"version"`
	SenderID int64                  `json:"sender_id"`
}

type noteDeletedPayload struct {
	NoteID int64 `json:"note_id"`
}

type taskUpdatedPayload struct {
	TaskID   int64                  `json:"task_id"`
	Fields   map[string]interface{} `json:"fields"`
	Version  int64                  `json:"version"`
	SenderID int64                  `json:"sender_id"`
}

type folderPayload struct {
	FolderID int64  `json:"folder_id"`
	Name     string `json:"name"`
	ParentID *int64 `json:"parent_id"`
}

type presencePayload struct {
	Room   string `json:"room"`
	UserID int64  `json:"user_id"`
}

type roomMembersPayload struct {
	Room    string  `json:"room"`
	UserIDs []int64 `json:"user_ids"`
}

// dispatch decodes one server frame and fans it out on the bus. Unknown
// frame types are logged and skipped so protocol additions do not break
// older clients.
func (c *Channel) dispatch(msg wireMessage) {
	switch msg.Type {
	case "note-updated":
		var p noteUpdatedPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			c.log.WarnErr("decode note-updated", err)
			return
		}
		c.bus.Emit(events.NoteUpdated{NoteID: p.NoteID, Fields: p.Fields, Version: p.Version, SenderID: p.SenderID})
	case "note-deleted":
		var p noteDeletedPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			c.log.WarnErr("decode note-deleted", err)
			return
		}
		c.bus.Emit(events.NoteDeleted{NoteID: p.NoteID})
	case "task-updated":
		var p taskUpdatedPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			c.log.WarnErr("decode task-updated", err)
			return
		}
		c.bus.Emit(events.TaskUpdated{TaskID: p.TaskID, Fields: p.Fields, Version: p.Version, SenderID: p.SenderID})
	case "folder-created", "folder-updated", "folder-deleted":
		var p folderPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			c.log.WarnErr("decode folder event", err)
			return
		}
		op := events.FolderCreated
		switch msg.Type {
		case "folder-updated":
			op = events.FolderUpdated
		case "folder-deleted":
			op = events.FolderDeleted
		}
		c.bus.Emit(events.FolderChanged{Op: op, FolderID: p.FolderID, Name: p.Name, ParentID: p.ParentID})
	case "user-joined", "user-left":
		var p presencePayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			c.log.WarnErr("decode presence event", err)
			return
		}
		c.bus.Emit(events.Presence{RoomID: p.Room, UserID: p.UserID, Joined: msg.Type == "user-joined"})
	case "room-members":
		var p roomMembersPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			c.log.WarnErr("decode room-members", err)
			return
		}
		c.bus.Emit(events.RoomMembers{RoomID: p.Room, UserIDs: p.UserIDs})
	default:
		c.log.Debug("unknown channel frame", map[string]interface{}{"type": msg.Type})
	}
}
