// Package repo implements the persistence gateway for the review lifecycle
// engine. This file provides repository functions for versioned research files.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/research-review-backend/internal/domain"
)

// NextFileVersion returns max(version)+1 over the non-deleted files of
// (researchID, slot), or 1 when there are none. Inactive files still hold
// their number; only soft-deleted rows drop out of the count.
func NextFileVersion(ctx context.Context, db *gorm.DB, researchID, slot string) (int, error) {
	var maxVersion int
	err := For[domain.File](db).Query(ctx).
		Where("research_id = ? AND slot = ?", researchID, slot).
		Select("COALESCE(MAX(version), 0)").
		Scan(&maxVersion).Error
	if err != nil {
		return 0, translate(err)
	}
	return maxVersion + 1, nil
}

// CreateFile inserts a file row.
func CreateFile(ctx context.Context, db *gorm.DB, f *domain.File) error {
	return For[domain.File](db).Create(ctx, f)
}

// GetFile fetches a non-deleted file by id.
func GetFile(ctx context.Context, db *gorm.DB, id string) (*domain.File, error) {
	return For[domain.File](db).Get(ctx, id)
}

// ListFiles returns the non-deleted files of researchID ordered by slot and
// version. Inactive files are only included on request.
func ListFiles(ctx context.Context, db *gorm.DB, researchID string, includeInactive bool) ([]domain.File, error) {
	q := For[domain.File](db).Query(ctx).Where("research_id = ?", researchID)
	if !includeInactive {
		q = q.Where("is_active = ?", true)
	}
	var out []domain.File
	err := q.Order("slot ASC, version ASC").Find(&out).Error
	return out, translate(err)
}

// SoftDeleteFile marks a file as deleted.
func SoftDeleteFile(ctx context.Context, db *gorm.DB, id string) error {
	return For[domain.File](db).SoftDelete(ctx, id)
}

// SetFileActive toggles the visibility flag of a file.
func SetFileActive(ctx context.Context, db *gorm.DB, id string, active bool) error {
	return For[domain.File](db).Update(ctx, id, map[string]any{"is_active": active})
}
