// Booking HTTP handlers.
//
// This file exposes REST endpoints for appointment bookings:
//   - GET  /bookings          (list upcoming, ETag support)
//   - POST /bookings          (create, idempotent via Idempotency-Key)
//   - POST /bookings/cancel   (cancel by doctor/date/time)
//
// Visibility follows the chat context rules: staff callers see every booking,
// public callers only their own, and an unidentified public caller sees
// nothing.
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// result exists for (user, session, key), the handler returns the recorded
// booking and sets `Idempotency-Replayed: true`.
package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/caredesk/clinic-assistant/internal/domain"
	"github.com/caredesk/clinic-assistant/internal/http/middleware"
	"github.com/caredesk/clinic-assistant/internal/repo"
	"github.com/caredesk/clinic-assistant/internal/services"
	"github.com/caredesk/clinic-assistant/internal/utils"
)

//
// DTOs
//

// CreateBookingRequest is the JSON payload for creating a booking.
type CreateBookingRequest struct {
	DoctorName string `json:"doctor_name" binding:"required,min=1"`
	// Date in YYYY-MM-DD.
	Date string `json:"date" binding:"required,min=1"`
	// Time in HH:MM.
	Time string `json:"time" binding:"required,min=1"`
	// PatientEmail optionally identifies the patient; the X-User-Email
	// header takes precedence. Anonymous bookings record "Guest".
	PatientEmail string `json:"patient_email"`
	// SessionID scopes the Idempotency-Key, when supplied.
	SessionID string `json:"session_id"`
}

// CancelBookingRequest is the JSON payload for cancelling bookings.
type CancelBookingRequest struct {
	DoctorName   string `json:"doctor_name" binding:"required,min=1"`
	Date         string `json:"date" binding:"required,min=1"`
	Time         string `json:"time" binding:"required,min=1"`
	PatientEmail string `json:"patient_email"`
}

// ListBookingsResponse wraps the upcoming bookings listing.
type ListBookingsResponse struct {
	Bookings []bookingView `json:"bookings"`
}

// bookingView is the public projection of a booking row.
type bookingView struct {
	ID          string `json:"id"`
	DoctorName  string `json:"doctor_name"`
	PatientName string `json:"patient_name,omitempty"`
	Date        string `json:"date"`
	Time        string `json:"time"`
}

//
// Handlers
//

// ListBookings returns upcoming bookings from today onwards. Staff callers
// get every row including the patient column; public callers get their own
// rows only. Supports weak ETag via If-None-Match and may return 304.
func (h *Handlers) ListBookings(c *gin.Context) {
	ctx := c.Request.Context()
	staff := isStaff(c)
	email := callerEmail(c, c.Query("patient_email"))

	if !staff && email == "" {
		// Nothing to show without an identity; empty rather than an error so
		// anonymous UIs can render an unconditional empty state.
		ok(c, http.StatusOK, ListBookingsResponse{Bookings: []bookingView{}})
		return
	}

	patient := ""
	if !staff {
		patient = email
	}
	fromDate := time.Now().UTC().Format("2006-01-02")

	// ETag pre-check (best effort).
	if h.db != nil {
		count, maxTS, err := repo.BookingsStats(ctx, h.db, fromDate, patient)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"bookings:%s:%d:%d"`, patient, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	rows, err := h.bookingSvc.Upcoming(ctx, fromDate, patient)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	// Optional result cap; rows are already ordered soonest-first.
	if limit := utils.AtoiDefault(c.Query("limit"), 0); limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	views := make([]bookingView, 0, len(rows))
	for _, b := range rows {
		v := bookingView{
			ID:         b.ID,
			DoctorName: b.DoctorName,
			Date:       b.Date,
			Time:       b.AppointmentTime,
		}
		if staff {
			v.PatientName = b.PatientName
		}
		views = append(views, v)
	}
	ok(c, http.StatusOK, ListBookingsResponse{Bookings: views})
}

// CreateBooking creates one appointment. With an Idempotency-Key header a
// retried request replays the originally created booking instead of inserting
// a second row.
func (h *Handlers) CreateBooking(c *gin.Context) {
	ctx := c.Request.Context()

	var req CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "doctor_name, date and time are required")
		return
	}

	currentUser := userID(c)
	scope := middleware.SessionScope(c, req.SessionID)

	// Idempotency (replay path) – read validated key if present.
	idemKey, _ := middleware.GetIdempotencyKey(c)
	if idemKey != "" && h.db != nil {
		if rec, err := repo.GetIdempotency(ctx, h.db, currentUser, scope, idemKey, time.Now().UTC()); err == nil && rec != nil {
			if prev, err2 := repo.GetBooking(ctx, h.db, rec.BookingID); err2 == nil {
				c.Header("Idempotency-Replayed", "true")
				ok(c, http.StatusOK, services.BookingResult{Success: true, Data: []domain.Booking{*prev}})
				return
			}
		}
	}

	res := h.bookingSvc.Create(ctx, req.DoctorName, req.Date, req.Time, callerEmail(c, req.PatientEmail))
	if !res.Success {
		fail(c, http.StatusBadRequest, ErrCodeBookingFailed, res.Message)
		return
	}

	// Idempotency (store path) – best effort.
	if idemKey != "" && h.db != nil && len(res.Data) > 0 {
		_, _ = repo.CreateIdempotency(ctx, h.db, currentUser, scope, idemKey, res.Data[0].ID, http.StatusCreated, h.idempotencyTTL)
	}

	ok(c, http.StatusCreated, res)
}

// CancelBooking deletes every booking matching the given doctor/date/time.
// Identified public callers can only cancel their own rows.
func (h *Handlers) CancelBooking(c *gin.Context) {
	var req CancelBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "doctor_name, date and time are required")
		return
	}

	email := ""
	if !isStaff(c) {
		// Staff cancel across all patients; public callers stay scoped.
		email = callerEmail(c, req.PatientEmail)
	}

	res := h.bookingSvc.Cancel(c.Request.Context(), req.DoctorName, req.Date, req.Time, email)
	if !res.Success {
		if strings.Contains(res.Message, "No matching booking") {
			fail(c, http.StatusNotFound, ErrCodeNotFound, res.Message)
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeCancelFailed, res.Message)
		return
	}
	ok(c, http.StatusOK, res)
}
