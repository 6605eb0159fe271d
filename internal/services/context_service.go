// Package services – ContextService
//
// This file implements the ContextService, which renders live clinic data
// into the text blocks appended to every outgoing chat message. The assistant
// has no direct access to the database; whatever it knows about the duty
// roster and upcoming bookings arrives through these blocks.
//
// Failures here are deliberately silent: a context block that cannot be built
// degrades to an empty string (logged at warn level) so the chat itself keeps
// working when the database is unreachable.
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/caredesk/clinic-assistant/internal/domain"
	"github.com/caredesk/clinic-assistant/internal/repo"
)

// ContextService builds the duty and booking context blocks.
type ContextService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB

	// Now is the clock used for the "today onwards" booking filter.
	// Defaults to time.Now when nil (tests pin it).
	Now func() time.Time
}

// NewContextService constructs a ContextService over the given DB handle.
func NewContextService(db *gorm.DB) *ContextService {
	return &ContextService{DB: db, Now: time.Now}
}

func (s *ContextService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// DutyListContext renders the full duty roster. Returns "" when the roster
// is empty or the fetch fails.
func (s *ContextService) DutyListContext(ctx context.Context) string {
	rows, err := repo.ListDuty(ctx, s.DB)
	if err != nil {
		log.Warn().Err(err).Msg("duty list context unavailable")
		return ""
	}
	if len(rows) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n\n--- CURRENT CLINIC DUTY LIST ---\n")
	for _, row := range rows {
		b.WriteString("- ")
		b.WriteString(strings.Join(row.Fields(), ", "))
		b.WriteString("\n")
	}
	b.WriteString("--------------------------------\n")
	return b.String()
}

// BookingListContext renders upcoming bookings for the caller.
//
// Staff callers see every booking from today onwards, including the patient
// column. Public callers see only their own rows, and a public caller with no
// identifier sees nothing at all so the block can never leak another
// patient's appointments.
func (s *ContextService) BookingListContext(ctx context.Context, role, userEmail string) string {
	if role != domain.CallerStaff && userEmail == "" {
		return ""
	}

	patient := ""
	if role != domain.CallerStaff {
		patient = userEmail
	}

	today := s.now().Format("2006-01-02")
	rows, err := repo.ListUpcomingBookings(ctx, s.DB, today, patient)
	if err != nil {
		log.Warn().Err(err).Msg("booking list context unavailable")
		return ""
	}
	if len(rows) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n\n--- UPCOMING BOOKINGS ---\n")
	for _, row := range rows {
		fmt.Fprintf(&b, "- Date: %s, Time: %s, Doctor: %s", row.Date, row.AppointmentTime, row.DoctorName)
		if role == domain.CallerStaff {
			fmt.Fprintf(&b, ", Patient: %s", row.PatientName)
		}
		b.WriteString("\n")
	}
	b.WriteString("-------------------------\n")
	return b.String()
}
