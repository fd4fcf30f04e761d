// Package repo implements the persistence gateway for the review lifecycle
// engine. This file provides the append-only status and track audit trails.
// There are deliberately no update or delete functions here.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/research-review-backend/internal/domain"
)

// AppendStatusHistory inserts one status transition row.
func AppendStatusHistory(ctx context.Context, db *gorm.DB, h *domain.StatusHistory) error {
	return For[domain.StatusHistory](db).Create(ctx, h)
}

// ListStatusHistory returns the transitions of researchID, oldest first.
func ListStatusHistory(ctx context.Context, db *gorm.DB, researchID string) ([]domain.StatusHistory, error) {
	var out []domain.StatusHistory
	err := db.WithContext(ctx).
		Where("research_id = ?", researchID).
		Order("id ASC").
		Find(&out).Error
	return out, translate(err)
}

// LatestStatusHistory returns the most recent transition of researchID or ErrNotFound.
func LatestStatusHistory(ctx context.Context, db *gorm.DB, researchID string) (*domain.StatusHistory, error) {
	var h domain.StatusHistory
	err := db.WithContext(ctx).
		Where("research_id = ?", researchID).
		Order("id DESC").
		First(&h).Error
	if err != nil {
		return nil, translate(err)
	}
	return &h, nil
}

// AppendTrackHistory inserts one track change row.
func AppendTrackHistory(ctx context.Context, db *gorm.DB, h *domain.TrackHistory) error {
	return For[domain.TrackHistory](db).Create(ctx, h)
}

// ListTrackHistory returns the track changes of researchID, oldest first.
func ListTrackHistory(ctx context.Context, db *gorm.DB, researchID string) ([]domain.TrackHistory, error) {
	var out []domain.TrackHistory
	err := db.WithContext(ctx).
		Where("research_id = ?", researchID).
		Order("id ASC").
		Find(&out).Error
	return out, translate(err)
}
