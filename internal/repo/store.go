// Package repo implements the persistence gateway for the review lifecycle
// engine. This file provides Store, a small generic gateway parameterized per
// entity, which centralizes the soft-delete policy.
//
// Every query issued through a Store is active-only by default: rows carrying
// a DeletedAt marker are invisible. IncludeDeleted returns a copy of the store
// that sees them too, for admin and audit paths. Entity-specific queries live
// in the *_repo.go files as free functions built on top of Store.
//
// Usage:
//
//	research, err := repo.For[domain.Research](tx).Get(ctx, id)
//	all, err := repo.For[domain.Review](tx).IncludeDeleted().Find(ctx, "research_id = ?", id)
package repo

import (
	"context"

	"gorm.io/gorm"
)

// Store is the generic persistence gateway for entity type T. A Store is a
// value; it is cheap to create per call and safe to use with a transaction
// handle obtained from a Scope.
type Store[T any] struct {
	db             *gorm.DB
	includeDeleted bool
}

// For returns an active-only Store for T bound to db.
func For[T any](db *gorm.DB) Store[T] {
	return Store[T]{db: db}
}

// IncludeDeleted returns a copy of the store that also sees soft-deleted rows.
func (s Store[T]) IncludeDeleted() Store[T] {
	s.includeDeleted = true
	return s
}

// Query returns a statement scoped to T with the soft-delete policy applied.
func (s Store[T]) Query(ctx context.Context) *gorm.DB {
	q := s.db.WithContext(ctx).Model(new(T))
	if s.includeDeleted {
		q = q.Unscoped()
	}
	return q
}

// Get fetches a record by primary key or returns ErrNotFound.
func (s Store[T]) Get(ctx context.Context, id any) (*T, error) {
	var out T
	if err := s.Query(ctx).Where("id = ?", id).First(&out).Error; err != nil {
		return nil, translate(err)
	}
	return &out, nil
}

// Create inserts v.
func (s Store[T]) Create(ctx context.Context, v *T) error {
	return translate(s.db.WithContext(ctx).Create(v).Error)
}

// Find returns all records matching the condition.
func (s Store[T]) Find(ctx context.Context, query string, args ...any) ([]T, error) {
	var out []T
	err := s.Query(ctx).Where(query, args...).Find(&out).Error
	return out, translate(err)
}

// Count returns the number of records matching the condition.
func (s Store[T]) Count(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	err := s.Query(ctx).Where(query, args...).Count(&n).Error
	return n, translate(err)
}

// Update applies fields to the record with the given id. It returns
// ErrNotFound when no row matched.
func (s Store[T]) Update(ctx context.Context, id any, fields map[string]any) error {
	res := s.Query(ctx).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDelete marks the record as deleted. Entities without a DeletedAt
// field are removed physically by GORM, so callers only use it on
// soft-deletable types.
func (s Store[T]) SoftDelete(ctx context.Context, id any) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(new(T))
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
