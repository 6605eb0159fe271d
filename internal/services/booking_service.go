// Package services – BookingService
//
// This file implements BookingService, which owns the two side effects the
// assistant may trigger: creating and cancelling appointments. Outcomes are
// conveyed as a structured BookingResult rather than errors, because every
// caller (directive dispatch, HTTP handlers) renders them into user-facing
// text instead of branching on failure types. Backend errors therefore never
// escape this layer.
package services

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/caredesk/clinic-assistant/internal/domain"
	"github.com/caredesk/clinic-assistant/internal/repo"
)

// Outcome messages. These exact strings reach the UI, so they are fixed here
// rather than composed ad hoc at call sites.
const (
	msgMissingBookingDetails = "Missing required booking details."
	msgMissingCancelDetails  = "Missing required booking details to identify the appointment."
	msgNoMatchingBooking     = "No matching booking found to cancel."
)

// BookingResult is the structured outcome of a booking operation.
type BookingResult struct {
	Success bool             `json:"success"`
	Message string           `json:"message,omitempty"`
	Data    []domain.Booking `json:"data,omitempty"`
}

// BookingService creates and cancels appointments.
type BookingService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
}

// NewBookingService constructs a BookingService over the given DB handle.
func NewBookingService(db *gorm.DB) *BookingService {
	return &BookingService{DB: db}
}

// normalizeDoctor trims and title-cases a doctor name so that a booking made
// as "dr. tan" can later be cancelled as "Dr. Tan". The cases.Caser carries
// transform state and is not safe to share, so each call builds its own.
func normalizeDoctor(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return ""
	}
	return cases.Title(language.English).String(name)
}

// Create inserts one booking row. Doctor, date, and time are all required;
// when any is missing the backend is never contacted. An anonymous caller is
// recorded as "Guest".
func (s *BookingService) Create(ctx context.Context, doctor, date, appointmentTime, patientEmail string) BookingResult {
	tr := otel.Tracer("services/BookingService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(attribute.String("booking.doctor", doctor)),
	)
	defer span.End()

	doctor = normalizeDoctor(doctor)
	date = strings.TrimSpace(date)
	appointmentTime = strings.TrimSpace(appointmentTime)
	if doctor == "" || date == "" || appointmentTime == "" {
		return BookingResult{Success: false, Message: msgMissingBookingDetails}
	}

	patient := strings.TrimSpace(patientEmail)
	if patient == "" {
		patient = domain.GuestPatient
	}

	b, err := repo.CreateBooking(ctx, s.DB, doctor, patient, appointmentTime, date)
	if err != nil {
		return BookingResult{Success: false, Message: err.Error()}
	}
	return BookingResult{Success: true, Data: []domain.Booking{*b}}
}

// Cancel deletes every booking matching the doctor/date/time tuple. When the
// caller is identified, the match is additionally restricted to their own
// rows; an unidentified caller may cancel any matching booking (the staff
// console relies on this).
func (s *BookingService) Cancel(ctx context.Context, doctor, date, appointmentTime, patientEmail string) BookingResult {
	tr := otel.Tracer("services/BookingService")
	ctx, span := tr.Start(ctx, "Cancel",
		trace.WithAttributes(attribute.String("booking.doctor", doctor)),
	)
	defer span.End()

	doctor = normalizeDoctor(doctor)
	date = strings.TrimSpace(date)
	appointmentTime = strings.TrimSpace(appointmentTime)
	if doctor == "" || date == "" || appointmentTime == "" {
		return BookingResult{Success: false, Message: msgMissingCancelDetails}
	}

	deleted, err := repo.DeleteBookingsMatching(ctx, s.DB, doctor, date, appointmentTime, strings.TrimSpace(patientEmail))
	if err != nil {
		return BookingResult{Success: false, Message: err.Error()}
	}
	if len(deleted) == 0 {
		return BookingResult{Success: false, Message: msgNoMatchingBooking}
	}
	return BookingResult{Success: true, Data: deleted}
}

// Upcoming lists bookings from today onwards, optionally limited to one
// patient. Used by the HTTP booking listing, not by directive dispatch.
func (s *BookingService) Upcoming(ctx context.Context, fromDate, patientEmail string) ([]domain.Booking, error) {
	return repo.ListUpcomingBookings(ctx, s.DB, fromDate, strings.TrimSpace(patientEmail))
}
