package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/research-review-backend/internal/domain"
	"github.com/tbourn/research-review-backend/internal/outbox"
)

// IdentityDirectory resolves user ids. Implemented by repo.UserDirectory.
type IdentityDirectory interface {
	Lookup(ctx context.Context, id string) (domain.Identity, error)
	ManagerOf(ctx context.Context, track string) (domain.Identity, bool, error)
	Reviewers(ctx context.Context) ([]domain.Identity, error)
}

// FileStore is the subset of the blob store the services write through.
// Implemented by storage.DiskStore and storage.MinioStore.
type FileStore interface {
	Store(ctx context.Context, data []byte, name, contentType string) (string, error)
	Delete(ctx context.Context, path string) error
}

// Notifier queues notifications. Implemented by *outbox.Outbox.
type Notifier interface {
	Enqueue(ctx context.Context, m outbox.Message) (*domain.NotificationRecord, error)
}

// Clock returns the current time; nil means time.Now.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

// lookupActor resolves the acting identity. An unknown actor is unauthorized.
func lookupActor(ctx context.Context, dir IdentityDirectory, actorID string) (domain.Identity, error) {
	if actorID == "" {
		return domain.Identity{}, unauthorizedf("missing actor")
	}
	id, err := dir.Lookup(ctx, actorID)
	if err != nil {
		if KindOf(fromRepo(err, "actor")) == KindNotFound {
			return domain.Identity{}, unauthorizedf("unknown actor %q", actorID)
		}
		return domain.Identity{}, fromRepo(err, "actor")
	}
	return id, nil
}

// notify enqueues msgs after a commit. Failures are logged and swallowed:
// a queued notification must never undo a committed decision.
func notify(ctx context.Context, n Notifier, msgs ...outbox.Message) {
	if n == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, m := range msgs {
		if m.To.ID == "" && m.To.Email == "" {
			continue
		}
		if _, err := n.Enqueue(ctx, m); err != nil {
			log.Warn().Err(err).
				Str("category", string(m.Category)).
				Str("research_id", m.ResearchID).
				Str("user_id", m.To.ID).
				Msg("notification enqueue failed")
		}
	}
}

// recipient resolves id for addressing. Lookup failures are logged and
// produce an empty identity, which notify skips.
func recipient(ctx context.Context, dir IdentityDirectory, id string) domain.Identity {
	if id == "" || dir == nil {
		return domain.Identity{}
	}
	who, err := dir.Lookup(ctx, id)
	if err != nil {
		log.Warn().Err(err).Str("user_id", id).Msg("notification recipient lookup failed")
		return domain.Identity{}
	}
	return who
}

// canManage reports whether id may take track-manager actions on r.
func canManage(id domain.Identity, r *domain.Research) bool {
	if id.IsAdmin() {
		return true
	}
	if id.Role != domain.RoleTrackManager {
		return false
	}
	if id.Manages(r.TrackValue()) {
		return true
	}
	return r.TrackManagerID != nil && *r.TrackManagerID == id.ID
}

// isOwner reports whether id is the submitter of r or an administrator.
func isOwner(id domain.Identity, r *domain.Research) bool {
	return id.IsAdmin() || r.SubmittedBy == id.ID
}
