package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/notehub/notehub-client/internal/errors"
	"github.com/notehub/notehub-client/internal/models"
)

// ClientOptions configures the HTTP client.
type ClientOptions struct {
	BaseURL    string
	Session    SessionProvider
	HTTPClient *http.Client
	UserAgent  string
}

// Client is the HTTP implementation of the NoteHub REST API.
type Client struct {
	baseURL    string
	session    SessionProvider
	httpClient *http.Client
	userAgent  string
}

// NewClient creates a Client for the given server.
func NewClient(opts ClientOptions) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &Client{
		baseURL:    baseURL,
		session:    opts.Session,
		httpClient: httpClient,
		userAgent:  strings.TrimSpace(opts.UserAgent),
	}
}

// errorBody is the server's JSON error envelope.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// do executes a request and decodes the response into out (when non-nil).
// Transport failures and 5xx map to network-class codes; 4xx map to logic
// codes so the facade never falls back offline on a rejected payload.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInternal, "encode request", err)
		}
		body = bytes.NewReader(data)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.session != nil {
		if token, ok := c.session.StoredToken(); ok {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return apperrors.Wrap(apperrors.ErrTimeout, fmt.Sprintf("%s %s timed out", method, path), err)
		}
		return apperrors.Wrap(apperrors.ErrNetwork, fmt.Sprintf("%s %s failed", method, path), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return apperrors.Newf(apperrors.ErrServerStatus, "%s %s returned %d", method, path, resp.StatusCode)
	}
	if resp.StatusCode == http.StatusNotFound {
		return apperrors.Newf(apperrors.ErrNotFound, "%s %s returned 404", method, path)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var eb errorBody
		msg := fmt.Sprintf("%s %s returned %d", method, path, resp.StatusCode)
		if err := json.NewDecoder(resp.Body).Decode(&eb); err == nil {
			if eb.Message != "" {
				msg = eb.Message
			} else if eb.Error != "" {
				msg = eb.Error
			}
		}
		return apperrors.New(apperrors.ErrValidation, msg)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Wrap(apperrors.ErrServerStatus, "decode response", err)
	}
	return nil
}

// =====================================================
// Note operations
// =====================================================

// ListNotes implements NoteAPI.
func (c *Client) ListNotes(ctx context.Context, f NoteFilter) ([]models.Note, error) {
	q := url.Values{}
	if f.View != "" && f.View != "all" {
		q.Set("view", f.View)
	}
	if f.Search != "" {
		q.Set("q", f.Search)
	}
	if f.Tag != "" {
		q.Set("tag", f.Tag)
	}
	var notes []models.Note
	if err := c.do(ctx, http.MethodGet, "/api/notes", q, nil, &notes); err != nil {
		return nil, err
	}
	return notes, nil
}

// GetNote implements NoteAPI.
func (c *Client) GetNote(ctx context.Context, id int64) (*models.Note, error) {
	var note models.Note
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/notes/%d", id), nil, nil, &note); err != nil {
		return nil, err
	}
	return &note, nil
}

// CreateNote implements NoteAPI.
func (c *Client) CreateNote(ctx context.Context, in models.NoteInput) (*models.Note, error) {
	var note models.Note
	if err := c.do(ctx, http.MethodPost, "/api/notes", nil, in, &note); err != nil {
		return nil, err
	}
	return &note, nil
}

// UpdateNote implements NoteAPI.
func (c *Client) UpdateNote(ctx context.Context, id int64, patch models.NotePatch) (*models.Note, error) {
	var note models.Note
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/notes/%d", id), nil, patch, &note); err != nil {
		return nil, err
	}
	return &note, nil
}

// DeleteNote implements NoteAPI.
func (c *Client) DeleteNote(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/notes/%d", id), nil, nil, nil)
}

// =====================================================
// Task operations
// =====================================================

// ListTasks implements TaskAPI.
func (c *Client) ListTasks(ctx context.Context, f TaskFilter) ([]models.Task, error) {
	q := url.Values{}
	if f.Completed != nil {
		q.Set("completed", fmt.Sprintf("%t", *f.Completed))
	}
	if f.Priority != "" {
		q.Set("priority", f.Priority)
	}
	var tasks []models.Task
	if err := c.do(ctx, http.MethodGet, "/api/tasks", q, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// GetTask implements TaskAPI.
func (c *Client) GetTask(ctx context.Context, id int64) (*models.Task, error) {
	var task models.Task
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/tasks/%d", id), nil, nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// CreateTask implements TaskAPI.
func (c *Client) CreateTask(ctx context.Context, in models.TaskInput) (*models.Task, error) {
	var task models.Task
	if err := c.do(ctx, http.MethodPost, "/api/tasks", nil, in, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateTask implements TaskAPI.
func (c *Client) UpdateTask(ctx context.Context, id int64, patch models.TaskPatch) (*models.Task, error) {
	var task models.Task
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/tasks/%d", id), nil, patch, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// DeleteTask implements TaskAPI.
func (c *Client) DeleteTask(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/tasks/%d", id), nil, nil, nil)
}

// =====================================================
// Folder operations
// =====================================================

// ListFolders implements FolderAPI.
func (c *Client) ListFolders(ctx context.Context) ([]models.Folder, error) {
	var folders []models.Folder
	if err := c.do(ctx, http.MethodGet, "/api/folders", nil, nil, &folders); err != nil {
		return nil, err
	}
	return folders, nil
}

// GetFolder implements FolderAPI.
func (c *Client) GetFolder(ctx context.Context, id int64) (*models.Folder, error) {
	var folder models.Folder
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/folders/%d", id), nil, nil, &folder); err != nil {
		return nil, err
	}
	return &folder, nil
}

// CreateFolder implements FolderAPI.
func (c *Client) CreateFolder(ctx context.Context, in models.FolderInput) (*models.Folder, error) {
	var folder models.Folder
	if err := c.do(ctx, http.MethodPost, "/api/folders", nil, in, &folder); err != nil {
		return nil, err
	}
	return &folder, nil
}

// UpdateFolder implements FolderAPI.
func (c *Client) UpdateFolder(ctx context.Context, id int64, patch models.FolderPatch) (*models.Folder, error) {
	var folder models.Folder
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/folders/%d", id), nil, patch, &folder); err != nil {
		return nil, err
	}
	return &folder, nil
}

// DeleteFolder implements FolderAPI.
func (c *Client) DeleteFolder(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/folders/%d", id), nil, nil, nil)
}

var _ API = (*Client)(nil)
