// Package repo implements the persistence gateway for the review lifecycle
// engine. This file provides a users table backed identity directory.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/research-review-backend/internal/domain"
)

// UpsertUser inserts or refreshes a user record keyed by id.
func UpsertUser(ctx context.Context, db *gorm.DB, u *domain.User) error {
	return translate(db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "email", "role", "managed_track", "expertise", "updated_at"}),
	}).Create(u).Error)
}

// UserDirectory resolves identities from the users table.
type UserDirectory struct {
	DB *gorm.DB
}

// Lookup resolves id to an Identity or returns ErrNotFound.
func (d UserDirectory) Lookup(ctx context.Context, id string) (domain.Identity, error) {
	u, err := For[domain.User](d.DB).Get(ctx, id)
	if err != nil {
		return domain.Identity{}, err
	}
	return domain.IdentityFromUser(*u), nil
}

// ManagerOf returns the track manager of track, or ok=false when none is set.
func (d UserDirectory) ManagerOf(ctx context.Context, track string) (domain.Identity, bool, error) {
	var u domain.User
	err := For[domain.User](d.DB).Query(ctx).
		Where("role = ? AND managed_track = ?", domain.RoleTrackManager, track).
		Order("id ASC").
		First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Identity{}, false, nil
		}
		return domain.Identity{}, false, translate(err)
	}
	return domain.IdentityFromUser(u), true, nil
}

// Reviewers returns every identity holding the reviewer role.
func (d UserDirectory) Reviewers(ctx context.Context) ([]domain.Identity, error) {
	users, err := For[domain.User](d.DB).Find(ctx, "role = ?", domain.RoleReviewer)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Identity, 0, len(users))
	for _, u := range users {
		out = append(out, domain.IdentityFromUser(u))
	}
	return out, nil
}
