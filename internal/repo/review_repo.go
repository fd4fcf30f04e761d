// Package repo implements the persistence gateway for the review lifecycle
// engine. This file provides repository functions for the Review model.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/research-review-backend/internal/domain"
)

// ReviewFilter narrows review queries. Empty fields are ignored.
type ReviewFilter struct {
	ResearchID string
	ReviewerID string
	Track      string
}

// CreateReview inserts a review row.
func CreateReview(ctx context.Context, db *gorm.DB, rv *domain.Review) error {
	return For[domain.Review](db).Create(ctx, rv)
}

// GetReview fetches an active review by id.
func GetReview(ctx context.Context, db *gorm.DB, id string) (*domain.Review, error) {
	return For[domain.Review](db).Get(ctx, id)
}

// UpdateOpenReview applies fields to an active review that is not yet
// completed. It returns ErrConflict when the review was completed (or
// removed) since the caller read it, so two final decisions cannot both land.
func UpdateOpenReview(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	res := For[domain.Review](db).Query(ctx).
		Where("id = ? AND is_completed = ?", id, false).
		Updates(fields)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// ActiveReviewExists reports whether an active review binds reviewerID to researchID.
func ActiveReviewExists(ctx context.Context, db *gorm.DB, researchID, reviewerID string) (bool, error) {
	n, err := For[domain.Review](db).Count(ctx, "research_id = ? AND reviewer_id = ?", researchID, reviewerID)
	return n > 0, err
}

// CountActiveReviews returns the number of active reviews of researchID.
func CountActiveReviews(ctx context.Context, db *gorm.DB, researchID string) (int64, error) {
	return For[domain.Review](db).Count(ctx, "research_id = ?", researchID)
}

// CountOpenReviews returns the number of active, incomplete reviews of researchID.
func CountOpenReviews(ctx context.Context, db *gorm.DB, researchID string) (int64, error) {
	return For[domain.Review](db).Count(ctx, "research_id = ? AND is_completed = ?", researchID, false)
}

// ListReviews returns the active reviews of researchID ordered by assignment.
func ListReviews(ctx context.Context, db *gorm.DB, researchID string) ([]domain.Review, error) {
	var out []domain.Review
	err := For[domain.Review](db).Query(ctx).
		Where("research_id = ?", researchID).
		Order("assigned_at ASC, id ASC").
		Find(&out).Error
	return out, translate(err)
}

// ListActiveReviewerIDs returns the reviewers actively assigned to researchID.
func ListActiveReviewerIDs(ctx context.Context, db *gorm.DB, researchID string) ([]string, error) {
	var ids []string
	err := For[domain.Review](db).Query(ctx).
		Where("research_id = ?", researchID).
		Pluck("reviewer_id", &ids).Error
	return ids, translate(err)
}

// openReviews starts a query over incomplete reviews of live, non-terminal
// research, with f applied.
func openReviews(ctx context.Context, db *gorm.DB, f ReviewFilter) *gorm.DB {
	q := For[domain.Review](db).Query(ctx).
		Joins("JOIN research ON research.id = reviews.research_id AND research.deleted_at IS NULL").
		Where("reviews.is_completed = ?", false).
		Where("research.status NOT IN ?", []domain.Status{domain.StatusAccepted, domain.StatusRejected, domain.StatusWithdrawn})
	if f.ResearchID != "" {
		q = q.Where("reviews.research_id = ?", f.ResearchID)
	}
	if f.ReviewerID != "" {
		q = q.Where("reviews.reviewer_id = ?", f.ReviewerID)
	}
	if f.Track != "" {
		q = q.Where("research.track = ?", f.Track)
	}
	return q
}

// OverdueReviews returns incomplete reviews whose deadline is before now.
// Overdue is evaluated at query time and never stored.
func OverdueReviews(ctx context.Context, db *gorm.DB, f ReviewFilter, now time.Time) ([]domain.Review, error) {
	var out []domain.Review
	err := openReviews(ctx, db, f).
		Where("reviews.deadline < ?", now).
		Order("reviews.deadline ASC, reviews.id ASC").
		Find(&out).Error
	return out, translate(err)
}

// ReviewsDueBetween returns incomplete reviews with from <= deadline < to.
func ReviewsDueBetween(ctx context.Context, db *gorm.DB, from, to time.Time) ([]domain.Review, error) {
	var out []domain.Review
	err := openReviews(ctx, db, ReviewFilter{}).
		Where("reviews.deadline >= ? AND reviews.deadline < ?", from, to).
		Order("reviews.deadline ASC, reviews.id ASC").
		Find(&out).Error
	return out, translate(err)
}
