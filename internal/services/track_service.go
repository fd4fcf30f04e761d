// Package services – TrackService
//
// TrackService owns Research.Track. Track assignment is independent of the
// status workflow: it never changes status, and it is allowed at any point
// before a terminal status. Every call appends a TrackHistory row, including
// a re-assignment to the current track, which is accepted as a no-op change.
package services

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/research-review-backend/internal/domain"
	"github.com/tbourn/research-review-backend/internal/outbox"
	"github.com/tbourn/research-review-backend/internal/repo"
)

// TrackService assigns research to subject tracks.
type TrackService struct {
	Unit      *repo.Unit
	Directory IdentityDirectory
	Notifier  Notifier
	Now       Clock
}

// AssignTrack sets the track of researchID to track.
//
// Administrators may assign any track; a track manager may assign a track
// when they manage either the current or the target track. The research's
// TrackManagerID follows the manager of the new track, if one is known.
func (s *TrackService) AssignTrack(ctx context.Context, researchID, track, actorID, notes string) (*domain.Research, error) {
	tr := otel.Tracer("services/TrackService")
	ctx, span := tr.Start(ctx, "AssignTrack",
		trace.WithAttributes(
			attribute.String("research.id", researchID),
			attribute.String("actor.id", actorID),
			attribute.String("track", track),
		),
	)
	defer span.End()

	track = strings.TrimSpace(track)
	if track == "" {
		return nil, validationf("track is required")
	}
	actor, err := lookupActor(ctx, s.Directory, actorID)
	if err != nil {
		return nil, err
	}
	manager, hasManager, err := s.Directory.ManagerOf(ctx, track)
	if err != nil {
		return nil, fromRepo(err, "track manager")
	}

	var (
		r       *domain.Research
		from    *string
		changed bool
	)
	err = s.Unit.Do(ctx, func(sc *repo.Scope) error {
		var err error
		r, err = repo.GetResearch(sc.Context(), sc.DB(), researchID)
		if err != nil {
			return fromRepo(err, "research")
		}
		if r.Status.IsTerminal() {
			return fmt.Errorf("%w: research is %s", ErrInvalidTransition, r.Status)
		}
		if !actor.IsAdmin() && !actor.Manages(track) && !canManage(actor, r) {
			return unauthorizedf("only a track manager or an administrator may assign tracks")
		}

		from = r.Track
		changed = r.TrackValue() != track
		now := s.Now.now()
		if changed {
			fields := map[string]any{"track": track, "track_manager_id": nil}
			if hasManager {
				fields["track_manager_id"] = manager.ID
			}
			if err := repo.UpdateResearchVersioned(sc.Context(), sc.DB(), r, fields, actor.ID, now); err != nil {
				return err
			}
			t := track
			r.Track = &t
			r.TrackManagerID = nil
			if hasManager {
				id := manager.ID
				r.TrackManagerID = &id
			}
		}
		to := track
		return repo.AppendTrackHistory(sc.Context(), sc.DB(), &domain.TrackHistory{
			ResearchID: r.ID,
			FromTrack:  from,
			ToTrack:    &to,
			ActorID:    actor.ID,
			Notes:      notes,
			CreatedAt:  now,
		})
	})
	if err != nil {
		span.RecordError(err)
		return nil, fromRepo(err, "research")
	}

	if changed {
		view := outbox.View{ResearchTitle: r.Title, ToTrack: track}
		if from != nil {
			view.FromTrack = *from
		}
		msgs := []outbox.Message{{
			Category:   outbox.CategoryTrackAssigned,
			To:         recipient(ctx, s.Directory, r.SubmittedBy),
			ResearchID: r.ID,
			View:       view,
		}}
		if hasManager && manager.ID != actor.ID {
			msgs = append(msgs, outbox.Message{
				Category: outbox.CategoryTrackAssigned, To: manager, ResearchID: r.ID, View: view,
			})
		}
		notify(ctx, s.Notifier, msgs...)
	}
	return r, nil
}

// GetTrackHistory returns the track changes of researchID, oldest first.
func (s *TrackService) GetTrackHistory(ctx context.Context, researchID string) ([]domain.TrackHistory, error) {
	if _, err := repo.GetResearchIncludingDeleted(ctx, s.Unit.DB(), researchID); err != nil {
		return nil, fromRepo(err, "research")
	}
	rows, err := repo.ListTrackHistory(ctx, s.Unit.DB(), researchID)
	return rows, fromRepo(err, "track history")
}
