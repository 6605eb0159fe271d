// Package jamai is a focused HTTP client for the hosted JamAI Base action
// tables consumed by the clinic assistant. Appending a row to the configured
// chat table triggers generation of its output column; listing rows feeds
// history reconstruction; embedding files keeps the knowledge table current.
//
// There is no official Go SDK, so the client speaks the REST surface
// directly. Responses are decoded from bounded readers and non-2xx upstream
// statuses surface as *HTTPStatusError.
package jamai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the hosted JamAI Base endpoint.
const DefaultBaseURL = "https://api.jamaibase.com"

// tableKind is the generative-table flavor the assistant uses. The clinic
// chat table is an action table.
const tableKind = "action"

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("jamai: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client talks to one JamAI Base project.
type Client struct {
	baseURL    string
	apiKey     string
	projectID  string
	httpClient *http.Client
}

type Option func(*Client)

// WithBaseURL overrides the hosted endpoint (tests point this at a local server).
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	}
}

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Client authenticated with a personal access token and
// scoped to one project.
func NewClient(apiKey, projectID string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("jamai: api key must not be empty")
	}
	if strings.TrimSpace(projectID) == "" {
		return nil, errors.New("jamai: project id must not be empty")
	}
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		projectID:  projectID,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// resolvedHTTPClient returns the configured HTTP client, or a default if none
// was set (e.g. in tests that nil out the field).
func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 60 * time.Second}
}

// addRowsRequest is the request shape for the add-rows endpoint.
type addRowsRequest struct {
	TableID string              `json:"table_id"`
	Data    []map[string]string `json:"data"`
	Stream  bool                `json:"stream"`
}

// AddRowsResponse is the non-streaming response of the add-rows endpoint:
// one entry per appended row carrying the generated output columns.
type AddRowsResponse struct {
	Rows []AddedRow `json:"rows"`
}

// AddRows appends rows to the action table and waits for column generation
// (stream is always false; the assistant reads whole replies).
func (c *Client) AddRows(ctx context.Context, tableID string, rows []map[string]string) (*AddRowsResponse, error) {
	if tableID == "" {
		return nil, errors.New("jamai: table id must not be empty")
	}
	if len(rows) == 0 {
		return nil, errors.New("jamai: no rows to add")
	}

	body, err := json.Marshal(addRowsRequest{TableID: tableID, Data: rows, Stream: false})
	if err != nil {
		return nil, fmt.Errorf("jamai: marshal request: %w", err)
	}

	url := c.baseURL + "/api/v1/gen_tables/" + tableKind + "/rows/add"
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if reqErr != nil {
		return nil, fmt.Errorf("jamai: create request: %w", reqErr)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	raw, err := c.doJSONRequest(req, url)
	if err != nil {
		return nil, fmt.Errorf("jamai: add rows failed: %w", err)
	}

	var payload AddRowsResponse
	if decErr := json.Unmarshal(raw, &payload); decErr != nil {
		return nil, fmt.Errorf("jamai: decode response: %w", decErr)
	}
	return &payload, nil
}

// listRowsResponse is the paginated listing envelope.
type listRowsResponse struct {
	Items []Row `json:"items"`
}

// ListRows returns one page of table rows, already normalized to the Row
// shape regardless of which representation the backend emitted.
func (c *Client) ListRows(ctx context.Context, tableID string, limit, offset int) ([]Row, error) {
	if tableID == "" {
		return nil, errors.New("jamai: table id must not be empty")
	}

	url := c.baseURL + "/api/v1/gen_tables/" + tableKind + "/" + tableID +
		"/rows?limit=" + strconv.Itoa(limit) + "&offset=" + strconv.Itoa(offset)
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if reqErr != nil {
		return nil, fmt.Errorf("jamai: create request: %w", reqErr)
	}
	c.authorize(req)

	raw, err := c.doJSONRequest(req, url)
	if err != nil {
		return nil, fmt.Errorf("jamai: list rows failed: %w", err)
	}

	var payload listRowsResponse
	if decErr := json.Unmarshal(raw, &payload); decErr != nil {
		return nil, fmt.Errorf("jamai: decode response: %w", decErr)
	}
	return payload.Items, nil
}

// EmbedFile uploads a local file into the given knowledge table for
// embedding. The upstream service handles chunking and vectorization.
func (c *Client) EmbedFile(ctx context.Context, tableID, filePath string) error {
	if tableID == "" {
		return errors.New("jamai: table id must not be empty")
	}

	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("jamai: open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return fmt.Errorf("jamai: build multipart: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("jamai: read file: %w", err)
	}
	if err := mw.WriteField("table_id", tableID); err != nil {
		return fmt.Errorf("jamai: build multipart: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("jamai: build multipart: %w", err)
	}

	url := c.baseURL + "/api/v1/gen_tables/" + tableKind + "/embed_file"
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if reqErr != nil {
		return fmt.Errorf("jamai: create request: %w", reqErr)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.authorize(req)

	if _, err := c.doJSONRequest(req, url); err != nil {
		return fmt.Errorf("jamai: embed file failed: %w", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-PROJECT-ID", c.projectID)
}

func (c *Client) doJSONRequest(req *http.Request, url string) ([]byte, error) {
	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		return nil, doErr
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}
