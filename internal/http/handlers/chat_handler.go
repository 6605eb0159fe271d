// Chat HTTP handlers.
//
// This file exposes the conversational endpoints:
//   - POST /chat                        (run one assistant turn)
//   - GET  /history/{session_id}        (reconstruct a session transcript)
//   - GET  /duty                        (current duty roster)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses. The assistant flow itself never
// fails with an HTTP error; upstream problems come back as displayable text.
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/caredesk/clinic-assistant/internal/domain"
	"github.com/caredesk/clinic-assistant/internal/repo"
	"github.com/caredesk/clinic-assistant/internal/services"
)

//
// Service contracts (context-aware)
//

// ChatResponder runs one assistant turn and returns displayable text.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ChatResponder interface {
	GetResponse(ctx context.Context, message, contextLabel, sessionID, userEmail string) string
}

// HistoryProvider reconstructs a session transcript.
type HistoryProvider interface {
	GetHistory(ctx context.Context, sessionID string) []domain.ChatTurn
}

// BookingManager defines the booking operations consumed by HTTP handlers.
type BookingManager interface {
	Create(ctx context.Context, doctor, date, appointmentTime, patientEmail string) services.BookingResult
	Cancel(ctx context.Context, doctor, date, appointmentTime, patientEmail string) services.BookingResult
	Upcoming(ctx context.Context, fromDate, patientEmail string) ([]domain.Booking, error)
}

// KnowledgeIngester uploads a reference document for embedding.
type KnowledgeIngester interface {
	EmbedFile(ctx context.Context, path string) error
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for chat, history, duty, bookings, and
// knowledge ingestion. It depends on abstract service interfaces to keep
// transport concerns separate from business logic; the DB handle is used only
// for conditional responses (ETags) and idempotency bookkeeping.
type Handlers struct {
	chatSvc      ChatResponder
	historySvc   HistoryProvider
	bookingSvc   BookingManager
	knowledgeSvc KnowledgeIngester

	db             *gorm.DB
	idempotencyTTL time.Duration
}

// New constructs a Handlers instance bound to the given services.
func New(chat ChatResponder, history HistoryProvider, bookings BookingManager, knowledge KnowledgeIngester, db *gorm.DB, idempotencyTTL time.Duration) *Handlers {
	if idempotencyTTL <= 0 {
		idempotencyTTL = 24 * time.Hour
	}
	return &Handlers{
		chatSvc:        chat,
		historySvc:     history,
		bookingSvc:     bookings,
		knowledgeSvc:   knowledge,
		db:             db,
		idempotencyTTL: idempotencyTTL,
	}
}

// HeaderUserRole carries the caller role set by the frontend gateway.
// Any value equal to "staff" (case-insensitive) selects the staff console.
const HeaderUserRole = "X-User-Role"

// HeaderUserEmail carries the authenticated caller's email, when known.
const HeaderUserEmail = "X-User-Email"

// callerEmail extracts the caller's email from the request, preferring the
// gateway header over an explicit body/query value.
func callerEmail(c *gin.Context, bodyEmail string) string {
	if h := strings.TrimSpace(c.GetHeader(HeaderUserEmail)); h != "" {
		return h
	}
	return strings.TrimSpace(bodyEmail)
}

// isStaff reports whether the request carries the staff role header.
func isStaff(c *gin.Context) bool {
	return strings.EqualFold(strings.TrimSpace(c.GetHeader(HeaderUserRole)), "staff")
}

// userID extracts a stable caller identifier for idempotency bookkeeping:
// email header first, then X-User-ID (tests use it), then "guest".
func userID(c *gin.Context) string {
	if h := strings.TrimSpace(c.GetHeader(HeaderUserEmail)); h != "" {
		return h
	}
	if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
		return h
	}
	return "guest"
}

//
// DTOs
//

// ChatRequest is the JSON payload for one assistant turn.
type ChatRequest struct {
	// Message is the user's text. It must be non-empty.
	Message string `json:"message" binding:"required,min=1"`
	// SessionID groups the turn into a conversation. When blank the server
	// starts a new session and returns its generated id.
	SessionID string `json:"session_id"`
	// ContextLabel names the UI surface (e.g. "Staff Portal"). A label
	// mentioning "staff" selects the staff console.
	ContextLabel string `json:"context_label"`
	// UserEmail optionally identifies the caller; the X-User-Email header
	// takes precedence.
	UserEmail string `json:"user_email"`
}

// ChatResponse is the JSON envelope for an assistant reply.
type ChatResponse struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
}

// HistoryResponse wraps an ordered session transcript.
type HistoryResponse struct {
	SessionID string            `json:"session_id"`
	Turns     []domain.ChatTurn `json:"turns"`
}

// DutyResponse wraps the current duty roster.
type DutyResponse struct {
	Duty []domain.DutyRecord `json:"duty"`
}

//
// Handlers
//

// Chat runs one assistant turn: the message is augmented with live clinic
// context, sent to the hosted table, and any action directive in the reply is
// executed before the final text comes back.
func (h *Handlers) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message is required")
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message is required")
		return
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	label := req.ContextLabel
	if isStaff(c) {
		label = "staff"
	}

	reply := h.chatSvc.GetResponse(c.Request.Context(), message, label, sessionID, callerEmail(c, req.UserEmail))
	ok(c, http.StatusOK, ChatResponse{SessionID: sessionID, Reply: reply})
}

// History returns the ordered transcript of one session. A failed upstream
// fetch still returns 200: the transcript then contains a single synthetic
// assistant turn carrying the diagnostic, which the UI renders as-is.
func (h *Handlers) History(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("session_id"))
	if sessionID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session_id required")
		return
	}
	turns := h.historySvc.GetHistory(c.Request.Context(), sessionID)
	if turns == nil {
		turns = []domain.ChatTurn{}
	}
	ok(c, http.StatusOK, HistoryResponse{SessionID: sessionID, Turns: turns})
}

// Duty returns the full duty roster.
func (h *Handlers) Duty(c *gin.Context) {
	rows, err := repo.ListDuty(c.Request.Context(), h.db)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	if rows == nil {
		rows = []domain.DutyRecord{}
	}
	ok(c, http.StatusOK, DutyResponse{Duty: rows})
}
