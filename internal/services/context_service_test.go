package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/caredesk/clinic-assistant/internal/domain"
)

func newServiceDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("svc_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func fixedClock(day string) func() time.Time {
	ts, _ := time.Parse("2006-01-02", day)
	return func() time.Time { return ts }
}

func seedBookingRow(t *testing.T, db *gorm.DB, doctor, patient, tm, date string) {
	t.Helper()
	b := domain.Booking{
		ID: fmt.Sprintf("b-%s-%s-%s", doctor, date, tm), DoctorName: doctor,
		PatientName: patient, AppointmentTime: tm, Date: date,
	}
	if err := db.Create(&b).Error; err != nil {
		t.Fatalf("seed booking: %v", err)
	}
}

func TestDutyListContext_EmptyRoster(t *testing.T) {
	db := newServiceDB(t, &domain.DutyRecord{})
	s := NewContextService(db)
	if got := s.DutyListContext(context.Background()); got != "" {
		t.Fatalf("expected empty context, got %q", got)
	}
}

func TestDutyListContext_FetchErrorIsSilent(t *testing.T) {
	db := newServiceDB(t /* no table */)
	s := NewContextService(db)
	if got := s.DutyListContext(context.Background()); got != "" {
		t.Fatalf("fetch error must yield empty context, got %q", got)
	}
}

func TestDutyListContext_RendersRows(t *testing.T) {
	db := newServiceDB(t, &domain.DutyRecord{})
	if err := db.Create(&domain.DutyRecord{DoctorName: "Dr. Smith", Day: "Monday"}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	got := NewContextService(db).DutyListContext(context.Background())
	if !strings.Contains(got, "--- CURRENT CLINIC DUTY LIST ---") {
		t.Fatalf("missing header: %q", got)
	}
	if !strings.Contains(got, "- day: Monday, doctor_name: Dr. Smith") {
		t.Fatalf("missing row rendering: %q", got)
	}
}

func TestBookingListContext_PublicWithoutEmailLeaksNothing(t *testing.T) {
	db := newServiceDB(t, &domain.Booking{})
	seedBookingRow(t, db, "Dr. A", "someone@x.io", "09:00", "2026-06-01")

	s := NewContextService(db)
	s.Now = fixedClock("2026-05-01")

	if got := s.BookingListContext(context.Background(), domain.CallerPublic, ""); got != "" {
		t.Fatalf("public caller without email must see nothing, got %q", got)
	}
}

func TestBookingListContext_PublicSeesOnlyOwnRows(t *testing.T) {
	db := newServiceDB(t, &domain.Booking{})
	seedBookingRow(t, db, "Dr. A", "me@x.io", "09:00", "2026-06-01")
	seedBookingRow(t, db, "Dr. B", "other@x.io", "10:00", "2026-06-02")

	s := NewContextService(db)
	s.Now = fixedClock("2026-05-01")

	got := s.BookingListContext(context.Background(), domain.CallerPublic, "me@x.io")
	if !strings.Contains(got, "Doctor: Dr. A") || strings.Contains(got, "Dr. B") {
		t.Fatalf("public filter broken: %q", got)
	}
	if strings.Contains(got, "Patient:") {
		t.Fatalf("public rendering must omit patient column: %q", got)
	}
}

func TestBookingListContext_StaffSeesAllWithPatient(t *testing.T) {
	db := newServiceDB(t, &domain.Booking{})
	seedBookingRow(t, db, "Dr. A", "me@x.io", "09:00", "2026-06-01")
	seedBookingRow(t, db, "Dr. B", "other@x.io", "10:00", "2026-06-02")

	s := NewContextService(db)
	s.Now = fixedClock("2026-05-01")

	got := s.BookingListContext(context.Background(), domain.CallerStaff, "")
	if !strings.Contains(got, "Patient: me@x.io") || !strings.Contains(got, "Patient: other@x.io") {
		t.Fatalf("staff rendering incomplete: %q", got)
	}
	if !strings.Contains(got, "--- UPCOMING BOOKINGS ---") {
		t.Fatalf("missing header: %q", got)
	}
}

func TestBookingListContext_PastBookingsExcluded(t *testing.T) {
	db := newServiceDB(t, &domain.Booking{})
	seedBookingRow(t, db, "Dr. Old", "me@x.io", "09:00", "2026-01-01")
	seedBookingRow(t, db, "Dr. New", "me@x.io", "09:00", "2026-06-01")

	s := NewContextService(db)
	s.Now = fixedClock("2026-05-01")

	got := s.BookingListContext(context.Background(), domain.CallerStaff, "")
	if strings.Contains(got, "Dr. Old") || !strings.Contains(got, "Dr. New") {
		t.Fatalf("date filter broken: %q", got)
	}
}

func TestBookingListContext_FetchErrorIsSilent(t *testing.T) {
	db := newServiceDB(t /* no table */)
	s := NewContextService(db)
	if got := s.BookingListContext(context.Background(), domain.CallerStaff, ""); got != "" {
		t.Fatalf("fetch error must yield empty context, got %q", got)
	}
}
