// Package repo implements the persistence gateway for the review lifecycle
// engine. This file provides the notification outbox table operations.
//
// Each function touches exactly one record (or reads a batch), so a
// dispatcher crash between calls leaves every record already processed
// correctly stamped.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/research-review-backend/internal/domain"
)

// CreateNotification inserts an outbox record.
func CreateNotification(ctx context.Context, db *gorm.DB, n *domain.NotificationRecord) error {
	return For[domain.NotificationRecord](db).Create(ctx, n)
}

// GetNotification fetches an outbox record by id.
func GetNotification(ctx context.Context, db *gorm.DB, id string) (*domain.NotificationRecord, error) {
	return For[domain.NotificationRecord](db).Get(ctx, id)
}

// PendingNotifications returns up to limit records eligible for delivery:
// pending or failed with retry_count below maxRetries, oldest first.
func PendingNotifications(ctx context.Context, db *gorm.DB, limit, maxRetries int) ([]domain.NotificationRecord, error) {
	var out []domain.NotificationRecord
	err := db.WithContext(ctx).
		Where("status IN ? AND retry_count < ?",
			[]domain.NotificationStatus{domain.NotificationPending, domain.NotificationFailed}, maxRetries).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&out).Error
	return out, translate(err)
}

// MarkNotificationSent stamps a record as delivered.
func MarkNotificationSent(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	return For[domain.NotificationRecord](db).Update(ctx, id, map[string]any{
		"status":     domain.NotificationSent,
		"sent_at":    at,
		"last_error": "",
	})
}

// MarkNotificationFailed records a delivery failure and bumps retry_count.
func MarkNotificationFailed(ctx context.Context, db *gorm.DB, id, reason string) error {
	return For[domain.NotificationRecord](db).Update(ctx, id, map[string]any{
		"status":      domain.NotificationFailed,
		"last_error":  reason,
		"retry_count": gorm.Expr("retry_count + 1"),
	})
}

// ListNotificationsForResearch returns the outbox records linked to researchID.
func ListNotificationsForResearch(ctx context.Context, db *gorm.DB, researchID string) ([]domain.NotificationRecord, error) {
	var out []domain.NotificationRecord
	err := db.WithContext(ctx).
		Where("research_id = ?", researchID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, translate(err)
}
