package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/caredesk/clinic-assistant/internal/config"
	"github.com/caredesk/clinic-assistant/internal/domain"
	"github.com/caredesk/clinic-assistant/internal/http/middleware"
	"github.com/caredesk/clinic-assistant/internal/jamai"
)

// --- fake hosted-table client satisfying TableClient ---

type fakeTable struct {
	reply string
	rows  []jamai.Row
	err   error
}

func (f *fakeTable) AddRows(_ context.Context, _ string, _ []map[string]string) (*jamai.AddRowsResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	var resp jamai.AddRowsResponse
	var row jamai.AddedRow
	raw, _ := json.Marshal(map[string]any{"columns": map[string]any{"AI": map[string]string{"text": f.reply}}})
	_ = row.UnmarshalJSON(raw)
	resp.Rows = []jamai.AddedRow{row}
	return &resp, nil
}

func (f *fakeTable) ListRows(_ context.Context, _ string, _, _ int) ([]jamai.Row, error) {
	return f.rows, f.err
}

func (f *fakeTable) EmbedFile(_ context.Context, _, _ string) error { return f.err }

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// schema so handlers don't explode on list endpoints
	if err := db.AutoMigrate(&domain.DutyRecord{}, &domain.Booking{}, &domain.Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig(base string) config.Config {
	return config.Config{
		APIBasePath:    base,
		RateRPS:        100,
		RateBurst:      10,
		CORS:           config.CORSConfig{AllowedOrigins: nil}, // triggers AllowAllOrigins branch
		Security:       config.SecurityConfig{EnableHSTS: false, HSTSMaxAge: 0},
		OTEL:           config.OTELConfig{ServiceName: "test-svc"},
		IdempotencyTTL: time.Hour,
		JamAI: config.JamAIConfig{
			TableID:          "clinic-chat",
			KnowledgeTableID: "clinic-docs",
		},
	}
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	db := newTestDB(t, "routerdb")
	RegisterRoutes(r, db, &fakeTable{reply: "hi"}, testConfig("/api/v1"))

	// /health works
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	// CORS (AllowAllOrigins) → header "*"
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}

	// /metrics is wired
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || len(w.Body.Bytes()) == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	// NoRoute → 404
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/nope", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}

	// NoMethod → 405 (POST /health)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	cfg := testConfig("/api/v2")
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	db := newTestDB(t, "routerdb2")
	RegisterRoutes(r, db, &fakeTable{reply: "hi"}, cfg)

	// Any request runs through CORS middleware; header should reflect origin.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://example.com")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
}

func TestRegisterRoutes_ChatEndToEnd(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	db := newTestDB(t, "routerdb_chat")
	RegisterRoutes(r, db, &fakeTable{reply: "Dr. Tan is on duty."}, testConfig("/api/v1"))

	body := `{"message":"who is on duty?","session_id":"s1"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("POST /chat = %d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		SessionID string `json:"session_id"`
		Reply     string `json:"reply"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.SessionID != "s1" || resp.Reply != "Dr. Tan is on duty." {
		t.Fatalf("unexpected chat response: %+v", resp)
	}
}

func TestRegisterRoutes_DutyAndBookings(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	db := newTestDB(t, "routerdb_dty")
	if err := db.Create(&domain.DutyRecord{DoctorName: "Dr. Tan", Day: "Monday", Shift: "AM"}).Error; err != nil {
		t.Fatalf("seed duty: %v", err)
	}
	RegisterRoutes(r, db, &fakeTable{}, testConfig("/api/v1"))

	// Duty roster
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/duty", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte("Dr. Tan")) {
		t.Fatalf("GET /duty = %d body=%s", w.Code, w.Body.String())
	}

	// Create a booking
	body := `{"doctor_name":"Dr. Tan","date":"2999-01-02","time":"09:30","patient_email":"p@x.io"}`
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/bookings", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /bookings = %d body=%s", w.Code, w.Body.String())
	}

	// Staff listing sees the row with the patient column and an ETag.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/bookings", nil)
	req.Header.Set("X-User-Role", "staff")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte("p@x.io")) {
		t.Fatalf("GET /bookings (staff) = %d body=%s", w.Code, w.Body.String())
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("expected ETag on staff listing")
	}

	// Conditional revalidation → 304
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/bookings", nil)
	req.Header.Set("X-User-Role", "staff")
	req.Header.Set("If-None-Match", etag)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", w.Code)
	}

	// Cancel it
	body = `{"doctor_name":"Dr. Tan","date":"2999-01-02","time":"09:30"}`
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/bookings/cancel", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Role", "staff")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("POST /bookings/cancel = %d body=%s", w.Code, w.Body.String())
	}
}

func TestRegisterRoutes_BookingIdempotencyReplay(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	db := newTestDB(t, "routerdb_idem")
	RegisterRoutes(r, db, &fakeTable{}, testConfig("/api/v1"))

	post := func() *httptest.ResponseRecorder {
		body := `{"doctor_name":"Dr. Lee","date":"2999-03-01","time":"14:00","session_id":"sess-7"}`
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-User-Email", "p@x.io")
		req.Header.Set(middleware.HeaderIdempotencyKey, "bk-1")
		req.Header.Set(middleware.HeaderSessionID, "sess-7")
		r.ServeHTTP(w, req)
		return w
	}

	first := post()
	if first.Code != http.StatusCreated {
		t.Fatalf("first POST = %d body=%s", first.Code, first.Body.String())
	}

	second := post()
	if second.Code != http.StatusOK {
		t.Fatalf("replay POST = %d body=%s", second.Code, second.Body.String())
	}
	if second.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("expected Idempotency-Replayed header on retry")
	}

	// Only one row must exist.
	var n int64
	if err := db.Model(&domain.Booking{}).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 booking after replay, got %d", n)
	}
}

func TestRegisterRoutes_KnowledgeUploadRequiresStaff(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	db := newTestDB(t, "routerdb_kn")
	RegisterRoutes(r, db, &fakeTable{}, testConfig("/api/v1"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/knowledge/files", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without staff role, got %d", w.Code)
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// tiny cap to trigger MaxBytesReader
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")) // 12 bytes
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	// "/" and "" should mount at root
	root1 := groupWithPrefix(r, "/")
	root1.GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	root2 := groupWithPrefix(r, "")
	root2.GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })

	// non-root prefix
	api := groupWithPrefix(r, "/api")
	api.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	// Hit all three
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/one", nil)
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "one" {
		t.Fatalf("GET /one got %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/two", nil)
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "two" {
		t.Fatalf("GET /two got %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "pong" {
		t.Fatalf("GET /api/ping got %d %q", rec.Code, rec.Body.String())
	}
}

// Smoke test that a request traverses idempotency + ratelimit + otel + security headers pipeline.
func TestPipeline_Smoke(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	cfg := testConfig("/api/v1")
	cfg.Security = config.SecurityConfig{EnableHSTS: true, HSTSMaxAge: time.Hour} // enabled (but only set on https)
	db := newTestDB(t, "routerdb_smoke")
	RegisterRoutes(r, db, &fakeTable{}, cfg)

	// Any request goes through the middleware stack
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	// simulate https so HSTS could be eligible if middleware checks scheme
	req.URL.Scheme = "https"
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("pipeline GET /health = %d", w.Code)
	}
	// RequestID header should be present (from RequestID middleware)
	if rid := w.Header().Get("X-Request-ID"); rid == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
	// Tracing middleware shouldn't cause errors; nothing to assert here beyond 200.
	_ = context.Background()
}

func TestRegisterRoutes_IdempotencyCallback_ErrorBranch(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	// Make a fresh in-memory DB and migrate normally.
	db, err := gorm.Open(sqlite.Open("file:routerdb_err?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.DutyRecord{}, &domain.Booking{}, &domain.Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	// Wire routes first...
	RegisterRoutes(r, db, &fakeTable{}, testConfig("/api/v1"))

	// ...then force queries to fail by closing the underlying connection.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	_ = sqlDB.Close()

	// Now any repo.GetIdempotency call should error → drives (err != nil) branch.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/health", bytes.NewBufferString("{}"))
	req.Header.Set("X-User-ID", "u1")
	req.Header.Set(middleware.HeaderIdempotencyKey, "force-error")
	r.ServeHTTP(w, req)

	// 405 is expected for POST /health; goal is to exercise the middleware branch.
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}
