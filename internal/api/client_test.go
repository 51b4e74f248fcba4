package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/notehub/notehub-client/internal/errors"
	"github.com/notehub/notehub-client/internal/models"
)

func testSession() *StaticSession {
	return &StaticSession{
		User:  &models.User{ID: 7, Username: "alice"},
		Token: "session-token-abc",
	}
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(ClientOptions{BaseURL: srv.URL, Session: testSession()})
	return c, srv
}

func TestListNotes_sendsAuthAndFilter(t *testing.T) {
	var gotAuth, gotQuery string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode([]models.Note{{ID: 1, Title: "A"}})
	}))

	notes, err := c.ListNotes(context.Background(), NoteFilter{View: "favorites", Search: "milk", Tag: "home"})
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "Bearer session-token-abc", gotAuth)
	assert.Contains(t, gotQuery, "view=favorites")
	assert.Contains(t, gotQuery, "q=milk")
	assert.Contains(t, gotQuery, "tag=home")
}

func TestCreateNote_roundtrip(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/notes", r.URL.Path)

		var in models.NoteInput
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))

		now := time.Now().UTC()
		json.NewEncoder(w).Encode(models.Note{
			ID: 42, Title: in.Title, Body: in.Body, CreatedAt: now, UpdatedAt: now,
		})
	}))

	note, err := c.CreateNote(context.Background(), models.NoteInput{Title: "A"})
	require.NoError(t, err)
	assert.Equal(t, int64(42), note.ID)
	assert.Equal(t, "A", note.Title)
}

func TestDo_errorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantCode apperrors.ErrorCode
		network  bool
	}{
		{"validation", http.StatusBadRequest, apperrors.ErrValidation, false},
		{"unauthorized", http.StatusUnauthorized, apperrors.ErrValidation, false},
		{"not found", http.StatusNotFound, apperrors.ErrNotFound, false},
		{"server error", http.StatusInternalServerError, apperrors.ErrServerStatus, true},
		{"bad gateway", http.StatusBadGateway, apperrors.ErrServerStatus, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))

			_, err := c.GetNote(context.Background(), 5)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, apperrors.CodeOf(err))
			assert.Equal(t, tt.network, apperrors.IsNetwork(err),
				"network classification drives the offline fallback")
		})
	}
}

func TestDo_transportFailureIsNetwork(t *testing.T) {
	c := NewClient(ClientOptions{BaseURL: "http://127.0.0.1:1", Session: testSession()})

	_, err := c.ListTasks(context.Background(), TaskFilter{})
	require.Error(t, err)
	assert.True(t, apperrors.IsNetwork(err))
}

func TestDo_validationMessageFromBody(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"message": "title too long"})
	}))

	_, err := c.CreateTask(context.Background(), models.TaskInput{Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "title too long")
}

func TestDeleteFolder_noBody(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "/api/folders/3", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))

	require.NoError(t, c.DeleteFolder(context.Background(), 3))
}

func TestListTasks_filters(t *testing.T) {
	var gotQuery string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode([]models.Task{})
	}))

	done := true
	_, err := c.ListTasks(context.Background(), TaskFilter{Completed: &done, Priority: models.PriorityHigh})
	require.NoError(t, err)
	assert.Contains(t, gotQuery, "completed=true")
	assert.Contains(t, gotQuery, "priority=high")
}
