// Package repo implements the persistence gateway for the review lifecycle
// engine. This file provides repository functions for the Research aggregate
// and its Authors.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within a Scope (transaction handle) or on the plain handle.
// They follow the "thin repository" approach: no business rules, only
// persistence and query composition.
//
// Error semantics:
//   - Missing (or soft-deleted) research returns ErrNotFound.
//   - A write against a stale Version returns ErrConflict.
//   - Unique violations return ErrDuplicate; other DB errors are propagated.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/research-review-backend/internal/domain"
)

// CreateResearch inserts a research row without its associations; authors
// and files are written separately so their ordering/versioning rules apply.
func CreateResearch(ctx context.Context, db *gorm.DB, r *domain.Research) error {
	return translate(db.WithContext(ctx).Omit("Authors", "Files").Create(r).Error)
}

// GetResearch fetches an active research by id.
func GetResearch(ctx context.Context, db *gorm.DB, id string) (*domain.Research, error) {
	return For[domain.Research](db).Get(ctx, id)
}

// GetResearchIncludingDeleted fetches a research even if soft-deleted.
func GetResearchIncludingDeleted(ctx context.Context, db *gorm.DB, id string) (*domain.Research, error) {
	return For[domain.Research](db).IncludeDeleted().Get(ctx, id)
}

// GetResearchDetail fetches a research with its authors (by position) and
// its active, non-deleted files (by slot and version).
func GetResearchDetail(ctx context.Context, db *gorm.DB, id string) (*domain.Research, error) {
	var r domain.Research
	err := db.WithContext(ctx).
		Preload("Authors", func(q *gorm.DB) *gorm.DB { return q.Order("position ASC") }).
		Preload("Files", func(q *gorm.DB) *gorm.DB {
			return q.Where("is_active = ? AND review_id IS NULL", true).Order("slot ASC, version ASC")
		}).
		Where("id = ?", id).
		First(&r).Error
	if err != nil {
		return nil, translate(err)
	}
	return &r, nil
}

// UpdateResearchVersioned applies fields to r guarded by r.Version. The
// version is incremented and the audit columns stamped in the same statement.
// When no row matches the expected version, ErrConflict is returned. On
// success r.Version and r.UpdatedAt/UpdatedBy reflect the new row.
func UpdateResearchVersioned(ctx context.Context, db *gorm.DB, r *domain.Research, fields map[string]any, actorID string, now time.Time) error {
	set := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		set[k] = v
	}
	set["version"] = gorm.Expr("version + 1")
	set["updated_by"] = actorID
	set["updated_at"] = now

	res := db.WithContext(ctx).
		Model(&domain.Research{}).
		Where("id = ? AND version = ?", r.ID, r.Version).
		Updates(set)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	r.Version++
	r.UpdatedBy = actorID
	r.UpdatedAt = now
	return nil
}

// SoftDeleteResearch stamps DeletedAt on r, guarded by its version.
func SoftDeleteResearch(ctx context.Context, db *gorm.DB, r *domain.Research, actorID string, now time.Time) error {
	return UpdateResearchVersioned(ctx, db, r, map[string]any{"deleted_at": now}, actorID, now)
}

// ReplaceAuthors removes every author of researchID and inserts authors.
// Authors are replaced wholesale, never patched, so ordering can't end up
// half-updated.
func ReplaceAuthors(ctx context.Context, db *gorm.DB, researchID string, authors []domain.Author) error {
	if err := db.WithContext(ctx).Where("research_id = ?", researchID).Delete(&domain.Author{}).Error; err != nil {
		return translate(err)
	}
	if len(authors) == 0 {
		return nil
	}
	return translate(db.WithContext(ctx).Omit("Research").Create(&authors).Error)
}

// ListAuthors returns the authors of researchID ordered by position.
func ListAuthors(ctx context.Context, db *gorm.DB, researchID string) ([]domain.Author, error) {
	var out []domain.Author
	err := db.WithContext(ctx).
		Where("research_id = ?", researchID).
		Order("position ASC").
		Find(&out).Error
	return out, translate(err)
}
