// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (e.g., ETag generation) in the HTTP
// layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/caredesk/clinic-assistant/internal/domain"
)

// BookingsStats returns aggregate metadata for upcoming bookings visible to a
// caller: the total number of rows on or after fromDate (optionally limited
// to one patient) and the maximum UpdatedAt among them. When nothing matches,
// count is 0 and maxUpdatedAt is nil.
func BookingsStats(ctx context.Context, db *gorm.DB, fromDate, patient string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Booking{}).Where("date >= ?", fromDate)
	if patient != "" {
		q = q.Where("patient_name = ?", patient)
	}

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
