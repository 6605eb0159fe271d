// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides read access to the duty roster, which is
// maintained by clinic staff outside this application.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/caredesk/clinic-assistant/internal/domain"
)

// ListDuty returns every duty roster row. The roster is small (one row per
// doctor per day) so there is no pagination; callers render all of it into
// the outgoing chat context.
func ListDuty(ctx context.Context, db *gorm.DB) ([]domain.DutyRecord, error) {
	var out []domain.DutyRecord
	err := db.WithContext(ctx).
		Order("id ASC").
		Find(&out).Error
	return out, err
}
