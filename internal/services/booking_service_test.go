package services

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/caredesk/clinic-assistant/internal/domain"
)

func TestNormalizeDoctor_ConcurrentCallers(t *testing.T) {
	// Directive dispatch and the REST handlers normalize doctor names from
	// concurrent requests; the title-caser must not share transform state.
	// Run with -race.
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if got := normalizeDoctor("dr. tan wei ming"); got != "Dr. Tan Wei Ming" {
					t.Errorf("normalizeDoctor = %q", got)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestCreate_MissingFieldsNeverHitBackend(t *testing.T) {
	// A nil DB would panic on any query; the precondition check must return first.
	s := NewBookingService(nil)

	cases := [][3]string{
		{"", "2026-01-01", "10:00"},
		{"Dr. X", "", "10:00"},
		{"Dr. X", "2026-01-01", ""},
		{"  ", "  ", ""},
	}
	for _, c := range cases {
		res := s.Create(context.Background(), c[0], c[1], c[2], "p@x.io")
		if res.Success || res.Message != "Missing required booking details." {
			t.Fatalf("Create(%q,%q,%q) = %+v; want missing-details failure", c[0], c[1], c[2], res)
		}
	}
}

func TestCreate_Success_GuestWhenAnonymous(t *testing.T) {
	db := newServiceDB(t, &domain.Booking{})
	s := NewBookingService(db)

	res := s.Create(context.Background(), "Dr. Tan", "2026-02-14", "09:30", "")
	if !res.Success || len(res.Data) != 1 {
		t.Fatalf("Create = %+v", res)
	}
	if res.Data[0].PatientName != domain.GuestPatient {
		t.Fatalf("anonymous booking must be Guest, got %q", res.Data[0].PatientName)
	}
}

func TestCreate_BackendErrorBecomesFailureResult(t *testing.T) {
	db := newServiceDB(t /* no table */)
	s := NewBookingService(db)

	res := s.Create(context.Background(), "Dr. Tan", "2026-02-14", "09:30", "p@x.io")
	if res.Success || res.Message == "" {
		t.Fatalf("expected failure result with backend message, got %+v", res)
	}
}

func TestCancel_MissingFields(t *testing.T) {
	s := NewBookingService(nil)
	res := s.Cancel(context.Background(), "Dr. X", "", "10:00", "")
	if res.Success || res.Message != "Missing required booking details to identify the appointment." {
		t.Fatalf("Cancel = %+v", res)
	}
}

func TestCancel_NoMatch(t *testing.T) {
	db := newServiceDB(t, &domain.Booking{})
	s := NewBookingService(db)

	res := s.Cancel(context.Background(), "Dr. Ghost", "2026-01-01", "10:00", "")
	if res.Success || res.Message != "No matching booking found to cancel." {
		t.Fatalf("Cancel = %+v", res)
	}
}

func TestCancel_PatientScopeProtectsOtherBookings(t *testing.T) {
	db := newServiceDB(t, &domain.Booking{})
	s := NewBookingService(db)

	if res := s.Create(context.Background(), "Dr. Tan", "2026-02-14", "09:30", "other@x.io"); !res.Success {
		t.Fatalf("seed create: %+v", res)
	}

	// Identified caller cannot cancel someone else's slot.
	res := s.Cancel(context.Background(), "Dr. Tan", "2026-02-14", "09:30", "me@x.io")
	if res.Success {
		t.Fatalf("cross-patient cancel must fail, got %+v", res)
	}

	// Unidentified caller can (staff console path).
	res = s.Cancel(context.Background(), "Dr. Tan", "2026-02-14", "09:30", "")
	if !res.Success || len(res.Data) != 1 {
		t.Fatalf("unscoped cancel = %+v", res)
	}
}

func TestDoctorNameNormalization_CreateThenCancelDifferentCase(t *testing.T) {
	db := newServiceDB(t, &domain.Booking{})
	s := NewBookingService(db)

	if res := s.Create(context.Background(), "dr.  tan", "2026-02-14", "09:30", "me@x.io"); !res.Success {
		t.Fatalf("create: %+v", res)
	}
	res := s.Cancel(context.Background(), "DR. TAN", "2026-02-14", "09:30", "me@x.io")
	if !res.Success {
		t.Fatalf("case-insensitive cancel must match, got %+v", res)
	}
	if got := res.Data[0].DoctorName; got != "Dr. Tan" {
		t.Fatalf("stored doctor name = %q; want normalized", got)
	}
}

func TestUpcoming_TrimsPatientEmail(t *testing.T) {
	db := newServiceDB(t, &domain.Booking{})
	s := NewBookingService(db)

	if res := s.Create(context.Background(), "Dr. Tan", "2026-02-14", "09:30", "me@x.io"); !res.Success {
		t.Fatalf("create: %+v", res)
	}
	rows, err := s.Upcoming(context.Background(), "2026-01-01", "  me@x.io  ")
	if err != nil || len(rows) != 1 {
		t.Fatalf("Upcoming = %v, %v", rows, err)
	}
	if !strings.HasPrefix(rows[0].AppointmentTime, "09:") {
		t.Fatalf("unexpected row: %+v", rows[0])
	}
}
