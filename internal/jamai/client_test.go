package jamai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// NewClient
// ---------------------------------------------------------------------------

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient("", "proj")
	require.Error(t, err)

	_, err = NewClient("key", " ")
	require.Error(t, err)

	c, err := NewClient("key", "proj")
	require.NoError(t, err)
	require.Equal(t, DefaultBaseURL, c.baseURL)
}

func TestWithBaseURL_TrimsTrailingSlash(t *testing.T) {
	c, err := NewClient("key", "proj", WithBaseURL("http://localhost:8080/"))
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8080", c.baseURL)
}

// ---------------------------------------------------------------------------
// AddRows
// ---------------------------------------------------------------------------

func TestAddRows_SendsAuthAndPayload(t *testing.T) {
	var gotPath, gotAuth, gotProject string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotProject = r.Header.Get("X-PROJECT-ID")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		_, _ = w.Write([]byte(`{"rows":[{"columns":{"User":{"text":"hi"},"AI":{"text":"hello"}}}]}`))
	}))
	defer srv.Close()

	c, err := NewClient("pat-123", "proj-1", WithBaseURL(srv.URL))
	require.NoError(t, err)

	resp, err := c.AddRows(context.Background(), "clinic-chat", []map[string]string{
		{"User": "hi", "Session ID": "s1", "User Role": "Public"},
	})
	require.NoError(t, err)

	require.Equal(t, "/api/v1/gen_tables/action/rows/add", gotPath)
	require.Equal(t, "Bearer pat-123", gotAuth)
	require.Equal(t, "proj-1", gotProject)
	require.Equal(t, "clinic-chat", gotBody["table_id"])
	require.Equal(t, false, gotBody["stream"])

	require.Len(t, resp.Rows, 1)
	text, ok := resp.Rows[0].Text("AI")
	require.True(t, ok)
	require.Equal(t, "hello", text)
}

func TestAddRows_LastTextFollowsWireOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"rows":[{"columns":{"User":{"text":"q"},"Reasoning":{"text":"..."},"Answer":{"text":"final"}}}]}`))
	}))
	defer srv.Close()

	c, err := NewClient("k", "p", WithBaseURL(srv.URL))
	require.NoError(t, err)

	resp, err := c.AddRows(context.Background(), "t", []map[string]string{{"User": "q"}})
	require.NoError(t, err)
	require.Len(t, resp.Rows, 1)

	_, hasAI := resp.Rows[0].Text("AI")
	require.False(t, hasAI)
	last, ok := resp.Rows[0].LastText()
	require.True(t, ok)
	require.Equal(t, "final", last)
}

func TestAddRows_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "table not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := NewClient("k", "p", WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = c.AddRows(context.Background(), "missing", []map[string]string{{"User": "x"}})
	require.Error(t, err)

	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestAddRows_EmptyArguments(t *testing.T) {
	c, err := NewClient("k", "p")
	require.NoError(t, err)

	_, err = c.AddRows(context.Background(), "", []map[string]string{{"User": "x"}})
	require.Error(t, err)
	_, err = c.AddRows(context.Background(), "t", nil)
	require.Error(t, err)
}

// ---------------------------------------------------------------------------
// ListRows — both row representations
// ---------------------------------------------------------------------------

func TestListRows_NormalizesBareMapRows(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"items":[
			{"Session ID":{"value":"s1"},"User":{"value":"hi"},"AI":{"value":"hello"},"Updated at":"2024-01-02T10:00"},
			{"Session ID":{"value":"s2"},"User":{"value":"yo"},"Created at":"2024-01-01T09:00"}
		]}`))
	}))
	defer srv.Close()

	c, err := NewClient("k", "p", WithBaseURL(srv.URL))
	require.NoError(t, err)

	rows, err := c.ListRows(context.Background(), "clinic-chat", 100, 200)
	require.NoError(t, err)
	require.Equal(t, "limit=100&offset=200", gotQuery)
	require.Len(t, rows, 2)

	require.Equal(t, "s1", rows[0].Text("Session ID"))
	require.Equal(t, "hello", rows[0].Text("AI"))
	require.Equal(t, "2024-01-02T10:00", rows[0].Timestamp())
	require.False(t, rows[0].Has("Updated at"))

	require.Equal(t, "2024-01-01T09:00", rows[1].Timestamp())
}

func TestListRows_NormalizesColumnEnvelopeRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[
			{"columns":{"Session ID":{"text":"s1"},"User":{"text":"hi"},"AI":{"text":"hello"}},
			 "updated_at":"2024-01-02T10:00","created_at":"2024-01-02T09:59"}
		]}`))
	}))
	defer srv.Close()

	c, err := NewClient("k", "p", WithBaseURL(srv.URL))
	require.NoError(t, err)

	rows, err := c.ListRows(context.Background(), "clinic-chat", 100, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "s1", rows[0].Text("Session ID"))
	require.Equal(t, "hi", rows[0].Text("User"))
	require.Equal(t, "2024-01-02T10:00", rows[0].Timestamp())
}

func TestRowTimestamp_Empty(t *testing.T) {
	require.Equal(t, "", Row{}.Timestamp())
}

// ---------------------------------------------------------------------------
// EmbedFile
// ---------------------------------------------------------------------------

func TestEmbedFile_UploadsMultipart(t *testing.T) {
	var gotTableID, gotFilename, gotContent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotTableID = r.FormValue("table_id")
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer func() { _ = f.Close() }()
		gotFilename = hdr.Filename
		raw, _ := io.ReadAll(f)
		gotContent = string(raw)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "sop.md")
	require.NoError(t, os.WriteFile(path, []byte("clinic SOP"), 0o600))

	c, err := NewClient("k", "p", WithBaseURL(srv.URL))
	require.NoError(t, err)

	require.NoError(t, c.EmbedFile(context.Background(), "knowledge", path))
	require.Equal(t, "knowledge", gotTableID)
	require.Equal(t, "sop.md", gotFilename)
	require.Equal(t, "clinic SOP", gotContent)
}

func TestEmbedFile_MissingFile(t *testing.T) {
	c, err := NewClient("k", "p")
	require.NoError(t, err)
	require.Error(t, c.EmbedFile(context.Background(), "knowledge", filepath.Join(t.TempDir(), "nope.pdf")))
}
