// Package labelstudio triggers Label Studio's cloud-storage connectors.
//
// Every project has an S3 import storage (MinIO bucket of images to label)
// and an S3 export storage (where finished annotations are written). Neither
// syncs on its own; this client lists projects and asks each connector to sync.
package labelstudio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultBaseURL is Label Studio's address inside the compose network.
	DefaultBaseURL = "http://localhost:8080"

	// defaultTimeout is the HTTP client timeout for API calls.
	defaultTimeout = 30 * time.Second
)

// StorageKind selects the import or export connector.
type StorageKind string

const (
	ImportStorage StorageKind = "import"
	ExportStorage StorageKind = "export"
)

// storagePath returns the API path prefix for the connector kind.
func (k StorageKind) storagePath() string {
	if k == ExportStorage {
		return "/api/storages/export/s3"
	}
	return "/api/storages/s3"
}

// Client calls the Label Studio REST API with a user token.
type Client struct {
	httpClient *http.Client
	token      string
	baseURL    string
}

// NewClient creates a Label Studio API client.
func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		token:      token,
		baseURL:    baseURL,
	}
}

// --- API response types ---

type projectList struct {
	Results []project `json:"results"`
}

type project struct {
	ID    int64  `json:"id"`
	Title string `json:"title,omitempty"`
}

type storage struct {
	ID int64 `json:"id"`
}

// StatusError is returned when the API answers with an unexpected status.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d (body: %s)", e.Method, e.Path, e.StatusCode, e.Body)
}

// ListProjects returns the IDs of every project visible to the token.
func (c *Client) ListProjects(ctx context.Context) ([]string, error) {
	var list projectList
	if err := c.getJSON(ctx, "/api/projects", &list); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	ids := make([]string, 0, len(list.Results))
	for _, p := range list.Results {
		ids = append(ids, strconv.FormatInt(p.ID, 10))
	}
	log.Debug().Int("projects", len(ids)).Msg("Label Studio projects listed")
	return ids, nil
}

// SyncImportStorage syncs the project's first S3 import storage.
// It returns false when the project has no import storage.
func (c *Client) SyncImportStorage(ctx context.Context, projectID string) (bool, error) {
	return c.syncStorage(ctx, ImportStorage, projectID)
}

// SyncExportStorage syncs the project's first S3 export storage.
// It returns false when the project has no export storage.
func (c *Client) SyncExportStorage(ctx context.Context, projectID string) (bool, error) {
	return c.syncStorage(ctx, ExportStorage, projectID)
}

func (c *Client) syncStorage(ctx context.Context, kind StorageKind, projectID string) (bool, error) {
	var storages []storage
	listPath := kind.storagePath() + "?project=" + url.QueryEscape(projectID)
	if err := c.getJSON(ctx, listPath, &storages); err != nil {
		return false, fmt.Errorf("list %s storages for project %s: %w", kind, projectID, err)
	}
	if len(storages) == 0 {
		log.Debug().Str("project", projectID).Str("kind", string(kind)).Msg("Project has no storage configured")
		return false, nil
	}

	storageID := storages[0].ID
	syncPath := fmt.Sprintf("%s/%d/sync", kind.storagePath(), storageID)
	if err := c.post(ctx, syncPath); err != nil {
		return false, fmt.Errorf("sync %s storage %d for project %s: %w", kind, storageID, projectID, err)
	}
	log.Info().Str("project", projectID).Str("kind", string(kind)).Int64("storageId", storageID).Msg("Storage sync triggered")
	return true, nil
}

// --- Internal helpers ---

func (c *Client) newRequest(ctx context.Context, method, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do sends req and returns the response body when the status is one of ok.
func (c *Client) do(req *http.Request, ok ...int) ([]byte, error) {
	startTime := time.Now()
	log.Debug().Str("method", req.Method).Str("path", req.URL.Path).Msg("Label Studio API request")

	resp, err := c.httpClient.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		log.Debug().Int("statusCode", 0).Dur("duration", duration).Err(err).Msg("Label Studio API response")
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	log.Debug().Int("statusCode", resp.StatusCode).Dur("duration", duration).Msg("Label Studio API response")

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	for _, code := range ok {
		if resp.StatusCode == code {
			return body, nil
		}
	}
	return nil, &StatusError{
		Method:     req.Method,
		Path:       req.URL.Path,
		StatusCode: resp.StatusCode,
		Body:       truncate(string(body), 200),
	}
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := c.newRequest(ctx, http.MethodGet, path)
	if err != nil {
		return err
	}
	body, err := c.do(req, http.StatusOK)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w (body: %s)", err, truncate(string(body), 200))
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string) error {
	req, err := c.newRequest(ctx, http.MethodPost, path)
	if err != nil {
		return err
	}
	_, err = c.do(req, http.StatusOK, http.StatusCreated, http.StatusNoContent)
	return err
}

// truncate returns the first n characters of s, appending "..." if truncated.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
