package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/notehub/notehub-client/internal/errors"
	"github.com/notehub/notehub-client/internal/models"
)

// Sensitive fields per entity. Folder names stay in the clear so the tree
// can render without a session key.
var (
	noteSecretFields = []string{"title", "body", "tags"}
	taskSecretFields = []string{"title", "description"}
)

// sealFields encrypts the named top-level JSON fields of raw. With
// encryption unavailable the payload is stored as-is.
func (s *Store) sealFields(raw []byte, fields []string) ([]byte, error) {
	s.mu.Lock()
	cipher := s.cipher
	s.mu.Unlock()
	if cipher == nil || len(fields) == 0 {
		return raw, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCryptoFailed, "decode record for sealing", err)
	}
	for _, f := range fields {
		val, ok := obj[f]
		if !ok || string(val) == "null" {
			continue
		}
		enc, err := cipher.EncryptString(string(val))
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrCryptoFailed, "encrypt field "+f, err)
		}
		sealed, err := json.Marshal(enc)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrCryptoFailed, "encode sealed field "+f, err)
		}
		obj[f] = sealed
	}
	return json.Marshal(obj)
}

// openFields decrypts the named fields of raw. A field that fails to
// decrypt (legacy plaintext record, key rotation) is returned as-is with
// the failure logged: availability wins over strict confidentiality here.
func (s *Store) openFields(raw []byte, fields []string) []byte {
	s.mu.Lock()
	cipher := s.cipher
	s.mu.Unlock()
	if cipher == nil || len(fields) == 0 {
		return raw
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return raw
	}
	changed := false
	for _, f := range fields {
		val, ok := obj[f]
		if !ok {
			continue
		}
		var sealed string
		if err := json.Unmarshal(val, &sealed); err != nil {
			// Not a string: legacy plaintext value (e.g. a tags array).
			continue
		}
		plain, err := cipher.DecryptString(sealed)
		if err != nil {
			s.log.Warn("field decryption failed, returning record as stored", map[string]interface{}{"field": f})
			continue
		}
		obj[f] = json.RawMessage(plain)
		changed = true
	}
	if !changed {
		return raw
	}
	out, err := json.Marshal(obj)
	if err != nil {
		return raw
	}
	return out
}

// saveRecord upserts one row inside tx (or directly when tx is nil).
func (s *Store) saveRecord(ctx context.Context, tx *sql.Tx, table string, id int64, payload []byte, updatedAt time.Time) error {
	query := fmt.Sprintf(
		"INSERT INTO %s (id, payload, updated_at) VALUES (?, ?, ?) ON CONFLICT(id) DO UPDATE SET payload=excluded.payload, updated_at=excluded.updated_at",
		table)
	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, id, string(payload), updatedAt.UnixMilli())
	} else {
		_, err = s.db.ExecContext(ctx, query, id, string(payload), updatedAt.UnixMilli())
	}
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "save "+table+" record", err)
	}
	return nil
}

func (s *Store) getRecord(ctx context.Context, table string, id int64) ([]byte, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT payload FROM %s WHERE id = ?", table), id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "%s %d not found", table, id)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "get "+table+" record", err)
	}
	return []byte(payload), nil
}

func (s *Store) getAllRecords(ctx context.Context, table string) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT payload FROM %s ORDER BY updated_at DESC", table))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "list "+table+" records", err)
	}
	defer rows.Close()

	var payloads [][]byte
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrDatabase, "scan "+table+" record", err)
		}
		payloads = append(payloads, []byte(payload))
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "iterate "+table+" records", err)
	}
	return payloads, nil
}

func (s *Store) deleteRecord(ctx context.Context, table string, id int64) error {
	return s.execContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", table), id)
}

// =====================================================
// Notes
// =====================================================

// SaveNote persists a single note.
func (s *Store) SaveNote(ctx context.Context, note *models.Note) error {
	if err := s.validateSession(ctx); err != nil {
		return err
	}
	raw, err := json.Marshal(note)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "encode note", err)
	}
	sealed, err := s.sealFields(raw, noteSecretFields)
	if err != nil {
		return err
	}
	return s.saveRecord(ctx, nil, "notes", note.ID, sealed, note.UpdatedAt)
}

// SaveNotes persists a batch of notes atomically: either every note in the
// batch is written or none is, so a concurrent reader never observes a
// half-cached server page.
func (s *Store) SaveNotes(ctx context.Context, notes []models.Note) error {
	if err := s.validateSession(ctx); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "begin batch", err)
	}
	defer tx.Rollback()

	for i := range notes {
		raw, err := json.Marshal(&notes[i])
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInternal, "encode note", err)
		}
		sealed, err := s.sealFields(raw, noteSecretFields)
		if err != nil {
			return err
		}
		if err := s.saveRecord(ctx, tx, "notes", notes[i].ID, sealed, notes[i].UpdatedAt); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "commit batch", err)
	}
	return nil
}

// GetNote returns one note by id.
func (s *Store) GetNote(ctx context.Context, id int64) (*models.Note, error) {
	if err := s.validateSession(ctx); err != nil {
		return nil, err
	}
	raw, err := s.getRecord(ctx, "notes", id)
	if err != nil {
		return nil, err
	}
	var note models.Note
	if err := json.Unmarshal(s.openFields(raw, noteSecretFields), &note); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "decode note", err)
	}
	return &note, nil
}

// GetAllNotes returns every locally stored note, newest first.
func (s *Store) GetAllNotes(ctx context.Context) ([]models.Note, error) {
	if err := s.validateSession(ctx); err != nil {
		return nil, err
	}
	payloads, err := s.getAllRecords(ctx, "notes")
	if err != nil {
		return nil, err
	}
	notes := make([]models.Note, 0, len(payloads))
	for _, raw := range payloads {
		var note models.Note
		if err := json.Unmarshal(s.openFields(raw, noteSecretFields), &note); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternal, "decode note", err)
		}
		notes = append(notes, note)
	}
	return notes, nil
}

// DeleteNote removes a note by id. Deleting an absent note is not an error.
func (s *Store) DeleteNote(ctx context.Context, id int64) error {
	if err := s.validateSession(ctx); err != nil {
		return err
	}
	return s.deleteRecord(ctx, "notes", id)
}

// =====================================================
// Tasks
// =====================================================

// SaveTask persists a single task.
func (s *Store) SaveTask(ctx context.Context, task *models.Task) error {
	if err := s.validateSession(ctx); err != nil {
		return err
	}
	raw, err := json.Marshal(task)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "encode task", err)
	}
	sealed, err := s.sealFields(raw, taskSecretFields)
	if err != nil {
		return err
	}
	return s.saveRecord(ctx, nil, "tasks", task.ID, sealed, task.UpdatedAt)
}

// SaveTasks persists a batch of tasks in one transaction.
func (s *Store) SaveTasks(ctx context.Context, tasks []models.Task) error {
	if err := s.validateSession(ctx); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "begin batch", err)
	}
	defer tx.Rollback()

	for i := range tasks {
		raw, err := json.Marshal(&tasks[i])
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInternal, "encode task", err)
		}
		sealed, err := s.sealFields(raw, taskSecretFields)
		if err != nil {
			return err
		}
		if err := s.saveRecord(ctx, tx, "tasks", tasks[i].ID, sealed, tasks[i].UpdatedAt); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "commit batch", err)
	}
	return nil
}

// GetTask returns one task by id.
func (s *Store) GetTask(ctx context.Context, id int64) (*models.Task, error) {
	if err := s.validateSession(ctx); err != nil {
		return nil, err
	}
	raw, err := s.getRecord(ctx, "tasks", id)
	if err != nil {
		return nil, err
	}
	var task models.Task
	if err := json.Unmarshal(s.openFields(raw, taskSecretFields), &task); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "decode task", err)
	}
	return &task, nil
}

// GetAllTasks returns every locally stored task, newest first.
func (s *Store) GetAllTasks(ctx context.Context) ([]models.Task, error) {
	if err := s.validateSession(ctx); err != nil {
		return nil, err
	}
	payloads, err := s.getAllRecords(ctx, "tasks")
	if err != nil {
		return nil, err
	}
	tasks := make([]models.Task, 0, len(payloads))
	for _, raw := range payloads {
		var task models.Task
		if err := json.Unmarshal(s.openFields(raw, taskSecretFields), &task); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternal, "decode task", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// DeleteTask removes a task by id.
func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	if err := s.validateSession(ctx); err != nil {
		return err
	}
	return s.deleteRecord(ctx, "tasks", id)
}

// =====================================================
// Folders
// =====================================================

// SaveFolder persists a single folder.
func (s *Store) SaveFolder(ctx context.Context, folder *models.Folder) error {
	if err := s.validateSession(ctx); err != nil {
		return err
	}
	raw, err := json.Marshal(folder)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "encode folder", err)
	}
	return s.saveRecord(ctx, nil, "folders", folder.ID, raw, folder.UpdatedAt)
}

// SaveFolders persists a batch of folders in one transaction.
func (s *Store) SaveFolders(ctx context.Context, folders []models.Folder) error {
	if err := s.validateSession(ctx); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "begin batch", err)
	}
	defer tx.Rollback()

	for i := range folders {
		raw, err := json.Marshal(&folders[i])
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInternal, "encode folder", err)
		}
		if err := s.saveRecord(ctx, tx, "folders", folders[i].ID, raw, folders[i].UpdatedAt); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "commit batch", err)
	}
	return nil
}

// GetFolder returns one folder by id.
func (s *Store) GetFolder(ctx context.Context, id int64) (*models.Folder, error) {
	if err := s.validateSession(ctx); err != nil {
		return nil, err
	}
	raw, err := s.getRecord(ctx, "folders", id)
	if err != nil {
		return nil, err
	}
	var folder models.Folder
	if err := json.Unmarshal(raw, &folder); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "decode folder", err)
	}
	return &folder, nil
}

// GetAllFolders returns every locally stored folder, newest first.
func (s *Store) GetAllFolders(ctx context.Context) ([]models.Folder, error) {
	if err := s.validateSession(ctx); err != nil {
		return nil, err
	}
	payloads, err := s.getAllRecords(ctx, "folders")
	if err != nil {
		return nil, err
	}
	folders := make([]models.Folder, 0, len(payloads))
	for _, raw := range payloads {
		var folder models.Folder
		if err := json.Unmarshal(raw, &folder); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternal, "decode folder", err)
		}
		folders = append(folders, folder)
	}
	return folders, nil
}

// DeleteFolder removes a folder by id.
func (s *Store) DeleteFolder(ctx context.Context, id int64) error {
	if err := s.validateSession(ctx); err != nil {
		return err
	}
	return s.deleteRecord(ctx, "folders", id)
}

// =====================================================
// Snapshot
// =====================================================

// SaveSnapshot persists refreshed server pages for all three entity types
// in a single transaction, so a reader never observes a half-applied
// refresh.
func (s *Store) SaveSnapshot(ctx context.Context, notes []models.Note, tasks []models.Task, folders []models.Folder) error {
	if err := s.validateSession(ctx); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "begin snapshot", err)
	}
	defer tx.Rollback()

	for i := range notes {
		raw, err := json.Marshal(&notes[i])
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInternal, "encode note", err)
		}
		sealed, err := s.sealFields(raw, noteSecretFields)
		if err != nil {
			return err
		}
		if err := s.saveRecord(ctx, tx, "notes", notes[i].ID, sealed, notes[i].UpdatedAt); err != nil {
			return err
		}
	}
	for i := range tasks {
		raw, err := json.Marshal(&tasks[i])
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInternal, "encode task", err)
		}
		sealed, err := s.sealFields(raw, taskSecretFields)
		if err != nil {
			return err
		}
		if err := s.saveRecord(ctx, tx, "tasks", tasks[i].ID, sealed, tasks[i].UpdatedAt); err != nil {
			return err
		}
	}
	for i := range folders {
		raw, err := json.Marshal(&folders[i])
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInternal, "encode folder", err)
		}
		if err := s.saveRecord(ctx, tx, "folders", folders[i].ID, raw, folders[i].UpdatedAt); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "commit snapshot", err)
	}
	return nil
}
