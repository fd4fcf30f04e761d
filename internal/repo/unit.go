// Package repo implements the persistence gateway for the review lifecycle
// engine. This file provides the transactional unit: an explicit scope object
// returned by Unit.Begin and threaded through the call chain.
//
// Guarantees:
//   - Every write issued through Scope.DB() is committed together or not at all.
//   - Commit failures trigger an automatic rollback before the error surfaces.
//   - Rollback is idempotent and safe after a failed commit.
//   - Close rolls back a scope that was neither committed nor rolled back, so
//     `defer scope.Close()` releases the scope on every exit path, panics included.
//   - Opening a scope from a context that already carries an open scope fails
//     fast with ErrNestedScope.
package repo

import (
	"context"
	"errors"
	"sync"

	"gorm.io/gorm"
)

var (
	// ErrNestedScope is returned when Begin is called while the context
	// already carries an open scope.
	ErrNestedScope = errors.New("transaction scope already open")

	// ErrScopeClosed is returned when committing a scope that has already
	// been committed or rolled back.
	ErrScopeClosed = errors.New("transaction scope closed")
)

type scopeKey struct{}

type scopeState int

const (
	scopeOpen scopeState = iota
	scopeCommitted
	scopeRolledBack
)

// Unit opens transactional scopes against a database handle.
type Unit struct {
	db *gorm.DB
}

// NewUnit returns a Unit bound to db.
func NewUnit(db *gorm.DB) *Unit { return &Unit{db: db} }

// DB returns the non-transactional handle, for reads outside any scope.
func (u *Unit) DB() *gorm.DB { return u.db }

// Scope is one open transaction.
type Scope struct {
	mu    sync.Mutex
	tx    *gorm.DB
	ctx   context.Context
	state scopeState
}

// Begin opens a new scope. The returned scope's Context must be used for
// every call made on behalf of the operation so nesting can be detected.
func (u *Unit) Begin(ctx context.Context) (*Scope, error) {
	if s, ok := ctx.Value(scopeKey{}).(*Scope); ok && s.isOpen() {
		return nil, ErrNestedScope
	}
	tx := u.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, translate(tx.Error)
	}
	s := &Scope{tx: tx}
	s.ctx = context.WithValue(ctx, scopeKey{}, s)
	return s, nil
}

// Do runs fn inside a new scope and commits when fn returns nil. Any error
// or panic from fn rolls the scope back; panics are re-raised after rollback.
func (u *Unit) Do(ctx context.Context, fn func(s *Scope) error) error {
	s, err := u.Begin(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := fn(s); err != nil {
		return err
	}
	return s.Commit()
}

// Context returns the context carrying this scope.
func (s *Scope) Context() context.Context { return s.ctx }

// DB returns the transaction handle. Repository calls made with it are part
// of the scope.
func (s *Scope) DB() *gorm.DB { return s.tx }

func (s *Scope) isOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == scopeOpen
}

// Commit makes the scope's writes durable. GORM issues statements eagerly,
// so there is nothing buffered to flush; a failing commit is rolled back
// before the error is returned.
func (s *Scope) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != scopeOpen {
		return ErrScopeClosed
	}
	if err := s.tx.Commit().Error; err != nil {
		_ = s.tx.Rollback().Error
		s.state = scopeRolledBack
		return translate(err)
	}
	s.state = scopeCommitted
	return nil
}

// Rollback discards the scope's writes. It is a no-op on a scope that is
// already committed or rolled back.
func (s *Scope) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != scopeOpen {
		return nil
	}
	s.state = scopeRolledBack
	return s.tx.Rollback().Error
}

// Close releases the scope, rolling back if it is still open.
func (s *Scope) Close() {
	_ = s.Rollback()
}

// Committed reports whether the scope was committed.
func (s *Scope) Committed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == scopeCommitted
}
