// Package services – Workflow
//
// Workflow owns Research.Status. It validates a requested transition against
// the status graph, authorizes the actor for that specific transition, and
// applies the change together with its StatusHistory row inside one
// transactional scope. The status-change notification is queued only after
// the commit and its failure is never reported to the caller.
package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/research-review-backend/internal/domain"
	"github.com/tbourn/research-review-backend/internal/outbox"
	"github.com/tbourn/research-review-backend/internal/repo"
)

// Workflow applies status transitions.
type Workflow struct {
	Unit      *repo.Unit
	Directory IdentityDirectory
	Notifier  Notifier
	Now       Clock
}

// ChangeStatus moves researchID to status to on behalf of actorID.
//
// Failure kinds:
//   - validation: unknown target status.
//   - unauthorized: unknown actor, or actor lacks the role for this transition
//     (submitter for withdrawal and revision resubmission, track manager or
//     administrator otherwise).
//   - not_found: research missing or soft-deleted.
//   - invalid_transition: to is not a successor of the current status; always
//     the case from a terminal status.
//   - conflict: a concurrent write touched the research.
//
// Any persistence failure rolls back both the status update and the history row.
func (w *Workflow) ChangeStatus(ctx context.Context, researchID string, to domain.Status, actorID, notes string) (*domain.Research, error) {
	tr := otel.Tracer("services/Workflow")
	ctx, span := tr.Start(ctx, "ChangeStatus",
		trace.WithAttributes(
			attribute.String("research.id", researchID),
			attribute.String("actor.id", actorID),
			attribute.String("status.to", string(to)),
		),
	)
	defer span.End()

	if !to.Valid() {
		return nil, validationf("unknown status %q", to)
	}
	actor, err := lookupActor(ctx, w.Directory, actorID)
	if err != nil {
		return nil, err
	}

	var (
		r    *domain.Research
		from domain.Status
	)
	err = w.Unit.Do(ctx, func(s *repo.Scope) error {
		var err error
		r, err = repo.GetResearch(s.Context(), s.DB(), researchID)
		if err != nil {
			return fromRepo(err, "research")
		}
		from = r.Status
		if !from.CanTransitionTo(to) {
			return invalidTransition(from, to)
		}
		if err := authorizeTransition(actor, r, to); err != nil {
			return err
		}
		return w.apply(s, r, to, actor.ID, notes)
	})
	if err != nil {
		span.RecordError(err)
		return nil, fromRepo(err, "research")
	}

	w.notifyStatusChanged(ctx, r, from, notes)
	return r, nil
}

// authorizeTransition checks the role required to enter to.
func authorizeTransition(actor domain.Identity, r *domain.Research, to domain.Status) error {
	if to.SubmitterTriggered() {
		if !isOwner(actor, r) {
			return unauthorizedf("only the submitter may move research to %s", to)
		}
		return nil
	}
	if !canManage(actor, r) {
		return unauthorizedf("only the track manager or an administrator may move research to %s", to)
	}
	return nil
}

// apply performs a legal, authorized transition inside s: the versioned
// status update and the history row. Callers check legality and permission.
func (w *Workflow) apply(s *repo.Scope, r *domain.Research, to domain.Status, actorID, notes string) error {
	if !r.Status.CanTransitionTo(to) {
		return invalidTransition(r.Status, to)
	}
	now := w.Now.now()
	from := r.Status
	fields := map[string]any{"status": to}
	if to.IsDecision() {
		fields["decision_date"] = now
	}
	if err := repo.UpdateResearchVersioned(s.Context(), s.DB(), r, fields, actorID, now); err != nil {
		return err
	}
	r.Status = to
	if to.IsDecision() {
		r.DecisionDate = &now
	}
	return repo.AppendStatusHistory(s.Context(), s.DB(), &domain.StatusHistory{
		ResearchID: r.ID,
		FromStatus: &from,
		ToStatus:   to,
		ActorID:    actorID,
		Notes:      notes,
		CreatedAt:  now,
	})
}

func (w *Workflow) notifyStatusChanged(ctx context.Context, r *domain.Research, from domain.Status, notes string) {
	notify(ctx, w.Notifier, outbox.Message{
		Category:   outbox.CategoryStatusChanged,
		To:         recipient(ctx, w.Directory, r.SubmittedBy),
		ResearchID: r.ID,
		View: outbox.View{
			ResearchTitle: r.Title,
			FromStatus:    string(from),
			ToStatus:      string(r.Status),
			Notes:         notes,
		},
	})
}

// GetStatusHistory returns the transitions of researchID, oldest first.
// Soft-deleted research keeps its audit trail readable.
func (w *Workflow) GetStatusHistory(ctx context.Context, researchID string) ([]domain.StatusHistory, error) {
	if _, err := repo.GetResearchIncludingDeleted(ctx, w.Unit.DB(), researchID); err != nil {
		return nil, fromRepo(err, "research")
	}
	rows, err := repo.ListStatusHistory(ctx, w.Unit.DB(), researchID)
	return rows, fromRepo(err, "status history")
}
