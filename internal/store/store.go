// Package store provides the durable, per-user-isolated local replica used
// while offline. It persists notes, tasks, folders, the sync queue and
// metadata in SQLite, encrypting sensitive fields with a key derived from
// the active session. A session user-id mismatch wipes all local state
// before continuing, so a shared device never leaks one account's data to
// another.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/notehub/notehub-client/internal/api"
	"github.com/notehub/notehub-client/internal/crypto"
	apperrors "github.com/notehub/notehub-client/internal/errors"
	"github.com/notehub/notehub-client/internal/logging"
)

const (
	dbFileName     = "notehub.db"
	metaBoundUser  = "bound_user_id"
	metaLastSync   = "last_sync_time"
	inMemoryTarget = ":memory:"
)

// Store is the encrypted local replica. All exported methods validate the
// active session before touching data.
type Store struct {
	mu      sync.Mutex
	db      *sql.DB
	dataDir string
	session api.SessionProvider
	log     logging.Logger

	initialized bool
	cipher      *crypto.Cipher
	cipherUser  int64
	encEnabled  bool

	lastQueueTS int64
}

// New creates a Store rooted at dataDir. Pass ":memory:" as dataDir for an
// ephemeral store (tests). Init must be called before any other operation.
func New(dataDir string, session api.SessionProvider, log logging.Logger) *Store {
	return &Store{
		dataDir:    dataDir,
		session:    session,
		log:        log.Component("store"),
		encEnabled: true,
	}
}

// Init opens or creates the persistent store. It is idempotent: calling it
// twice neither recreates nor clears existing tables. If a session is
// already present the replica is bound to that user.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}

	dsn := inMemoryTarget
	if s.dataDir != inMemoryTarget {
		if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
			return apperrors.Wrap(apperrors.ErrDatabase, "create data directory", err)
		}
		dsn = filepath.Join(s.dataDir, dbFileName)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "open database", err)
	}

	// SQLite supports a single writer; serialize through one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return apperrors.Wrap(apperrors.ErrDatabase, "enable WAL mode", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return apperrors.Wrap(apperrors.ErrDatabase, "enable foreign keys", err)
	}

	if err := createSchema(ctx, db); err != nil {
		db.Close()
		return err
	}

	s.db = db
	s.initialized = true

	// Bind the replica to the current user when a session already exists.
	// Without a session the store stays unbound; operations will fail with
	// NO_ACTIVE_SESSION until one appears.
	if user, ok := s.session.StoredUser(); ok {
		if err := s.validateSessionLocked(ctx); err != nil {
			return err
		}
		s.log.Info("local store initialized", map[string]interface{}{"user_id": user.ID})
	} else {
		s.log.Info("local store initialized without session")
	}

	return nil
}

func createSchema(ctx context.Context, db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS notes (
			id INTEGER PRIMARY KEY,
			payload TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id INTEGER PRIMARY KEY,
			payload TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS folders (
			id INTEGER PRIMARY KEY,
			payload TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sync_queue (
			id TEXT PRIMARY KEY,
			timestamp INTEGER NOT NULL,
			operation TEXT NOT NULL CHECK(operation IN ('create','update','delete')),
			entity_type TEXT NOT NULL CHECK(entity_type IN ('note','task','folder')),
			entity_id INTEGER NOT NULL,
			data TEXT,
			retry_count INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sync_queue_timestamp ON sync_queue(timestamp);`,
		`CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return apperrors.Wrap(apperrors.ErrDatabase, "create schema", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	s.initialized = false
	s.cipher = nil
	return err
}

// EncryptionEnabled reports whether sensitive fields are being encrypted.
// The store runs degraded (plaintext) only when no session key is
// available.
func (s *Store) EncryptionEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.encEnabled && s.cipher != nil
}

// validateSession checks initialization and session state, wiping the
// replica on a user mismatch. Callers hold no locks.
func (s *Store) validateSession(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validateSessionLocked(ctx)
}

func (s *Store) validateSessionLocked(ctx context.Context) error {
	if !s.initialized {
		return apperrors.New(apperrors.ErrNotInitialized, "store used before Init")
	}

	user, ok := s.session.StoredUser()
	if !ok {
		return apperrors.New(apperrors.ErrNoActiveSession, "no authenticated user")
	}
	token, ok := s.session.StoredToken()
	if !ok {
		return apperrors.New(apperrors.ErrNoActiveSession, "no session token")
	}

	bound, err := s.getMetadataLocked(ctx, metaBoundUser)
	if err != nil {
		return err
	}

	switch {
	case bound == "":
		// First operation under this account: bind it.
		if err := s.setMetadataLocked(ctx, metaBoundUser, strconv.FormatInt(user.ID, 10)); err != nil {
			return err
		}
	case bound != strconv.FormatInt(user.ID, 10):
		// Different account on the same device. Treat as a security
		// condition: purge everything before serving the new user.
		s.log.Warn("session user mismatch, wiping local data", map[string]interface{}{
			"bound_user": bound,
			"new_user":   user.ID,
		})
		if err := s.clearAllLocked(ctx); err != nil {
			return err
		}
		if err := s.setMetadataLocked(ctx, metaBoundUser, strconv.FormatInt(user.ID, 10)); err != nil {
			return err
		}
		s.cipher = nil
	}

	if s.cipher == nil || s.cipherUser != user.ID {
		cipher, err := crypto.NewCipher(crypto.DeriveUserKey(user.ID, token))
		if err != nil {
			// Degraded mode: keep working unencrypted but make it observable.
			s.log.Error("session key derivation failed, encryption disabled", err)
			s.encEnabled = false
		} else {
			s.cipher = cipher
			s.cipherUser = user.ID
			s.encEnabled = true
		}
	}

	return nil
}

// ClearAll wipes every store: entities, sync queue and metadata. Used on
// logout and on session-mismatch detection.
func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return apperrors.New(apperrors.ErrNotInitialized, "store used before Init")
	}
	if err := s.clearAllLocked(ctx); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM metadata"); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "clear metadata", err)
	}
	s.cipher = nil
	s.cipherUser = 0
	return nil
}

// clearAllLocked wipes entities and the queue but keeps metadata so the
// caller controls rebinding.
func (s *Store) clearAllLocked(ctx context.Context) error {
	for _, table := range []string{"notes", "tasks", "folders", "sync_queue"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return apperrors.Wrap(apperrors.ErrDatabase, "wipe "+table, err)
		}
	}
	s.log.Info("local entity stores wiped")
	return nil
}

// queueTimestamp returns a strictly increasing unix-millisecond timestamp,
// so two enqueues within the same millisecond keep their insertion order.
func (s *Store) queueTimestamp() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UnixMilli()
	if now <= s.lastQueueTS {
		now = s.lastQueueTS + 1
	}
	s.lastQueueTS = now
	return now
}

func (s *Store) execContext(ctx context.Context, query string, args ...interface{}) error {
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, fmt.Sprintf("exec %q", query), err)
	}
	return nil
}
