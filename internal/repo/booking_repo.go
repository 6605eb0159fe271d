// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Booking model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated. Business outcomes such as "no
//     matching booking" are conveyed through return values, not errors.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/caredesk/clinic-assistant/internal/domain"
)

// CreateBooking inserts a new booking row. The booking ID is a randomly
// generated UUID and CreatedAt is set to UTC. No slot-uniqueness check is
// performed here: the backend accepts duplicate tuples just like the
// operational contract allows.
func CreateBooking(ctx context.Context, db *gorm.DB, doctor, patient, appointmentTime, date string) (*domain.Booking, error) {
	b := &domain.Booking{
		ID:              uuid.NewString(),
		DoctorName:      doctor,
		PatientName:     patient,
		AppointmentTime: appointmentTime,
		Date:            date,
		CreatedAt:       time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(b).Error; err != nil {
		return nil, err
	}
	return b, nil
}

// ListUpcomingBookings returns bookings whose date is on or after fromDate
// (ISO "YYYY-MM-DD"; the column stores the same format, so a lexical >=
// matches a date >=). When patient is non-empty, results are limited to that
// patient's rows. Ordered by date, then time, for stable rendering.
func ListUpcomingBookings(ctx context.Context, db *gorm.DB, fromDate, patient string) ([]domain.Booking, error) {
	q := db.WithContext(ctx).
		Where("date >= ?", fromDate)
	if patient != "" {
		q = q.Where("patient_name = ?", patient)
	}
	var out []domain.Booking
	err := q.Order("date ASC, appointment_time ASC, id ASC").Find(&out).Error
	return out, err
}

// DeleteBookingsMatching soft-deletes every booking matching the
// doctor/date/time tuple, additionally filtered by patient when non-empty.
// It returns the rows that were deleted; an empty slice with a nil error
// means nothing matched.
//
// Fetch and delete run inside one transaction, and the outcome comes from the
// delete's RowsAffected: a concurrent cancel that wins the race must not leave
// this call reporting rows it never removed.
func DeleteBookingsMatching(ctx context.Context, db *gorm.DB, doctor, date, appointmentTime, patient string) ([]domain.Booking, error) {
	var victims []domain.Booking
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("doctor_name = ? AND date = ? AND appointment_time = ?", doctor, date, appointmentTime)
		if patient != "" {
			q = q.Where("patient_name = ?", patient)
		}

		// Fetch the victims first so callers can report what was cancelled.
		if err := q.Find(&victims).Error; err != nil {
			return err
		}
		if len(victims) == 0 {
			return nil
		}

		ids := make([]string, 0, len(victims))
		for _, v := range victims {
			ids = append(ids, v.ID)
		}
		res := tx.Where("id IN ?", ids).Delete(&domain.Booking{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			victims = nil
		}
		return nil
	})
	if err != nil || len(victims) == 0 {
		return nil, err
	}
	return victims, nil
}

// GetBooking fetches a booking by ID, or ErrNotFound.
func GetBooking(ctx context.Context, db *gorm.DB, id string) (*domain.Booking, error) {
	var b domain.Booking
	if err := db.WithContext(ctx).Where("id = ?", id).First(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}
