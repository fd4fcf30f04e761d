// Package repo implements the persistence gateway for the review lifecycle
// engine. This file provides small aggregate queries over reviews used for
// score reporting.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/research-review-backend/internal/domain"
)

// ReviewScoreStats returns the mean stored overall score across completed,
// non-deleted reviews of researchID and the number of such reviews.
//
// When no completed review exists, the mean is 0 and completed is 0; callers
// distinguish "no reviews" from "low score" by completed.
//
// The mean is computed in Go over unrounded stored values (avoids AVG()
// type differences between drivers).
func ReviewScoreStats(ctx context.Context, db *gorm.DB, researchID string) (mean float64, completed int64, err error) {
	var scores []float64
	err = For[domain.Review](db).Query(ctx).
		Where("research_id = ? AND is_completed = ? AND overall_score IS NOT NULL", researchID, true).
		Pluck("overall_score", &scores).Error
	if err != nil {
		return 0, 0, translate(err)
	}
	if len(scores) == 0 {
		return 0, 0, nil
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores)), int64(len(scores)), nil
}
