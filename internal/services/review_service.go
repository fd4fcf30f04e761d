// Package services – ReviewService
//
// ReviewService orchestrates peer review: assigning reviewers (rejecting a
// second active assignment of the same reviewer), recording draft and final
// decisions, aggregating scores, and reporting overdue reviews.
//
// Status side effects go through Workflow.apply inside the same scope, so
// they carry the same guarantees as an explicit ChangeStatus:
//   - the first reviewer assignment moves a research that has not yet entered
//     review to UnderReview;
//   - the final decision that closes the last open review of a research under
//     review moves it to UnderEvaluation.
package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/research-review-backend/internal/domain"
	"github.com/tbourn/research-review-backend/internal/outbox"
	"github.com/tbourn/research-review-backend/internal/repo"
	"github.com/tbourn/research-review-backend/internal/search"
)

const (
	defaultDeadlineDays = 14
	reviewSlot          = "review"

	defaultScorePrecision = 2
)

// ReviewService implements reviewer assignment and review decisions.
type ReviewService struct {
	Unit      *repo.Unit
	Directory IdentityDirectory
	Files     FileStore
	Notifier  Notifier
	Workflow  *Workflow
	Now       Clock

	// DeadlineDays is used when AssignReviewer is called with 0 days.
	DeadlineDays int
	// ScorePrecision is the number of decimals scores are rounded to for
	// presentation; 0 means defaultScorePrecision.
	ScorePrecision int
}

// DecisionInput is a reviewer's submission. Draft submissions may leave
// scores at 0.
type DecisionInput struct {
	Scores               domain.Scores   `json:"scores"`
	Decision             domain.Decision `json:"decision"`
	Comments             string          `json:"comments"`
	ConfidentialComments string          `json:"confidential_comments"`
	Draft                bool            `json:"is_draft"`
}

// ScoreSummary is the aggregate score of a research item. Average is the
// unrounded mean; Rounded is the presentation value. CompletedReviews
// distinguishes "no reviews yet" from a legitimately low score.
type ScoreSummary struct {
	ResearchID       string  `json:"research_id"`
	Average          float64 `json:"average"`
	Rounded          float64 `json:"rounded"`
	CompletedReviews int64   `json:"completed_reviews"`
}

// ReviewerSuggestion is a ranked reviewer candidate.
type ReviewerSuggestion struct {
	ReviewerID  string   `json:"reviewer_id"`
	DisplayName string   `json:"display_name"`
	Expertise   []string `json:"expertise"`
	Score       float64  `json:"score"`
}

// AssignReviewer creates a review of researchID for reviewerID due in
// deadlineDays days. The actor must manage the research's track or be an
// administrator.
func (s *ReviewService) AssignReviewer(ctx context.Context, researchID, reviewerID string, deadlineDays int, actorID string) (*domain.Review, error) {
	tr := otel.Tracer("services/ReviewService")
	ctx, span := tr.Start(ctx, "AssignReviewer",
		trace.WithAttributes(
			attribute.String("research.id", researchID),
			attribute.String("reviewer.id", reviewerID),
			attribute.String("actor.id", actorID),
		),
	)
	defer span.End()

	if deadlineDays < 0 {
		return nil, validationf("deadline days must not be negative")
	}
	if deadlineDays == 0 {
		deadlineDays = s.DeadlineDays
		if deadlineDays <= 0 {
			deadlineDays = defaultDeadlineDays
		}
	}
	actor, err := lookupActor(ctx, s.Directory, actorID)
	if err != nil {
		return nil, err
	}
	reviewer, err := s.Directory.Lookup(ctx, reviewerID)
	if err != nil {
		if KindOf(fromRepo(err, "reviewer")) == KindNotFound {
			return nil, validationf("unknown reviewer %q", reviewerID)
		}
		return nil, fromRepo(err, "reviewer")
	}
	if reviewer.Role != domain.RoleReviewer {
		return nil, validationf("user %q is not a reviewer", reviewerID)
	}

	var (
		r          *domain.Research
		rv         *domain.Review
		from       domain.Status
		transition bool
	)
	err = s.Unit.Do(ctx, func(sc *repo.Scope) error {
		var err error
		r, err = repo.GetResearch(sc.Context(), sc.DB(), researchID)
		if err != nil {
			return fromRepo(err, "research")
		}
		if !canManage(actor, r) {
			return unauthorizedf("only the track manager or an administrator may assign reviewers")
		}
		if r.Status.IsTerminal() {
			return fmt.Errorf("%w: research is %s", ErrInvalidTransition, r.Status)
		}
		if r.SubmittedBy == reviewer.ID {
			return validationf("the submitter cannot review their own research")
		}
		exists, err := repo.ActiveReviewExists(sc.Context(), sc.DB(), r.ID, reviewer.ID)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s already reviews %s", ErrDuplicateAssignment, reviewer.ID, r.ID)
		}
		active, err := repo.CountActiveReviews(sc.Context(), sc.DB(), r.ID)
		if err != nil {
			return err
		}

		now := s.Now.now()
		rv = &domain.Review{
			ID:         uuid.NewString(),
			ResearchID: r.ID,
			ReviewerID: reviewer.ID,
			Decision:   domain.DecisionNotReviewed,
			AssignedAt: now,
			Deadline:   now.AddDate(0, 0, deadlineDays),
			AssignedBy: actor.ID,
		}
		if err := repo.CreateReview(sc.Context(), sc.DB(), rv); err != nil {
			return err
		}
		// The version bump serializes concurrent assignments to the same
		// research: a racing writer fails the check with ErrConflict.
		fields := map[string]any{}
		later := r.ReviewDeadline == nil || rv.Deadline.After(*r.ReviewDeadline)
		if later {
			fields["review_deadline"] = rv.Deadline
		}
		if err := repo.UpdateResearchVersioned(sc.Context(), sc.DB(), r, fields, actor.ID, now); err != nil {
			return err
		}
		if later {
			d := rv.Deadline
			r.ReviewDeadline = &d
		}

		from = r.Status
		if active == 0 && entersReviewOnFirstAssignment(r.Status) {
			transition = true
			return s.Workflow.apply(sc, r, domain.StatusUnderReview, actor.ID, "first reviewer assigned")
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, fromRepo(err, "review")
	}

	notify(ctx, s.Notifier, outbox.Message{
		Category:   outbox.CategoryReviewAssigned,
		To:         reviewer,
		ResearchID: r.ID,
		View:       outbox.View{ResearchTitle: r.Title, Deadline: rv.Deadline},
	})
	if transition {
		s.Workflow.notifyStatusChanged(ctx, r, from, "")
	}
	return rv, nil
}

func entersReviewOnFirstAssignment(st domain.Status) bool {
	switch st {
	case domain.StatusSubmitted, domain.StatusUnderInitialReview, domain.StatusAssignedForReview:
		return true
	}
	return false
}

// SubmitReviewDecision records the reviewer's scores and decision.
//
// A draft persists partial scores only. A final submission completes the
// review, stores the unrounded overall score, flags requiresReReview for a
// major-revisions decision and notifies the submitter and track manager.
// attachments are stored as review-linked files of the research.
func (s *ReviewService) SubmitReviewDecision(ctx context.Context, reviewID string, in DecisionInput, attachments []Upload, actorID string) (*domain.Review, error) {
	tr := otel.Tracer("services/ReviewService")
	ctx, span := tr.Start(ctx, "SubmitReviewDecision",
		trace.WithAttributes(
			attribute.String("review.id", reviewID),
			attribute.String("actor.id", actorID),
			attribute.Bool("draft", in.Draft),
		),
	)
	defer span.End()

	if err := in.Scores.Validate(in.Draft); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if in.Decision == "" {
		in.Decision = domain.DecisionNotReviewed
	}
	if !in.Decision.Valid() {
		return nil, validationf("unknown decision %q", in.Decision)
	}
	if !in.Draft && in.Decision == domain.DecisionNotReviewed {
		return nil, validationf("a final review requires a decision")
	}
	for i, f := range attachments {
		if strings.TrimSpace(f.Name) == "" || len(f.Data) == 0 {
			return nil, validationf("attachment %d is empty or unnamed", i+1)
		}
		attachments[i].Slot = reviewSlot
	}
	actor, err := lookupActor(ctx, s.Directory, actorID)
	if err != nil {
		return nil, err
	}
	stored, err := storeBlobs(ctx, s.Files, attachments)
	if err != nil {
		return nil, err
	}

	var (
		r          *domain.Research
		rv         *domain.Review
		from       domain.Status
		transition bool
	)
	err = s.Unit.Do(ctx, func(sc *repo.Scope) error {
		var err error
		rv, err = repo.GetReview(sc.Context(), sc.DB(), reviewID)
		if err != nil {
			return fromRepo(err, "review")
		}
		if rv.ReviewerID != actor.ID && !actor.IsAdmin() {
			return unauthorizedf("only the assigned reviewer may submit this review")
		}
		if rv.IsCompleted {
			return fmt.Errorf("%w: review already completed", ErrInvalidTransition)
		}
		r, err = repo.GetResearch(sc.Context(), sc.DB(), rv.ResearchID)
		if err != nil {
			return fromRepo(err, "research")
		}
		if r.Status.IsTerminal() {
			return fmt.Errorf("%w: research is %s", ErrInvalidTransition, r.Status)
		}

		now := s.Now.now()
		fields := map[string]any{
			"originality_score":     in.Scores.Originality,
			"methodology_score":     in.Scores.Methodology,
			"clarity_score":         in.Scores.Clarity,
			"significance_score":    in.Scores.Significance,
			"references_score":      in.Scores.References,
			"decision":              in.Decision,
			"comments":              strings.TrimSpace(in.Comments),
			"confidential_comments": strings.TrimSpace(in.ConfidentialComments),
		}
		if !in.Draft {
			overall := in.Scores.Overall()
			fields["overall_score"] = overall
			fields["is_completed"] = true
			fields["completed_at"] = now
			fields["requires_re_review"] = in.Decision == domain.DecisionMajorRevisionsRequired
		}
		if err := repo.UpdateOpenReview(sc.Context(), sc.DB(), rv.ID, fields); err != nil {
			return err
		}
		if err := addFiles(sc, r.ID, &rv.ID, stored, actor.ID); err != nil {
			return err
		}
		if in.Draft {
			return nil
		}

		open, err := repo.CountOpenReviews(sc.Context(), sc.DB(), r.ID)
		if err != nil {
			return err
		}
		from = r.Status
		if open == 0 && (r.Status == domain.StatusUnderReview || r.Status == domain.StatusRevisionsUnderReview) {
			transition = true
			return s.Workflow.apply(sc, r, domain.StatusUnderEvaluation, actor.ID, "all reviews completed")
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		discardBlobs(ctx, s.Files, stored)
		return nil, fromRepo(err, "review")
	}

	rv, err = repo.GetReview(ctx, s.Unit.DB(), reviewID)
	if err != nil {
		return nil, fromRepo(err, "review")
	}
	if !in.Draft {
		s.notifyCompleted(ctx, r, rv)
		if transition {
			s.Workflow.notifyStatusChanged(ctx, r, from, "")
		}
	}
	return rv, nil
}

func (s *ReviewService) notifyCompleted(ctx context.Context, r *domain.Research, rv *domain.Review) {
	view := outbox.View{
		ResearchTitle: r.Title,
		ReviewerName:  recipient(ctx, s.Directory, rv.ReviewerID).DisplayName,
		Decision:      string(rv.Decision),
	}
	if rv.OverallScore != nil {
		view.OverallScore = strconv.FormatFloat(domain.RoundScore(*rv.OverallScore, s.precision()), 'f', s.precision(), 64)
	}
	msgs := []outbox.Message{{
		Category: outbox.CategoryReviewCompleted, To: recipient(ctx, s.Directory, r.SubmittedBy),
		ResearchID: r.ID, View: view,
	}}
	if mgr := s.trackManager(ctx, r); mgr.ID != "" {
		msgs = append(msgs, outbox.Message{
			Category: outbox.CategoryReviewCompleted, To: mgr, ResearchID: r.ID, View: view,
		})
	}
	notify(ctx, s.Notifier, msgs...)
}

// trackManager resolves the manager of r: the recorded one first, else the
// directory's manager of its track.
func (s *ReviewService) trackManager(ctx context.Context, r *domain.Research) domain.Identity {
	if r.TrackManagerID != nil {
		return recipient(ctx, s.Directory, *r.TrackManagerID)
	}
	if r.TrackValue() == "" {
		return domain.Identity{}
	}
	mgr, ok, err := s.Directory.ManagerOf(ctx, r.TrackValue())
	if err != nil {
		log.Warn().Err(err).Str("research_id", r.ID).Msg("track manager lookup failed")
		return domain.Identity{}
	}
	if !ok {
		return domain.Identity{}
	}
	return mgr
}

func (s *ReviewService) precision() int {
	if s.ScorePrecision <= 0 {
		return defaultScorePrecision
	}
	return s.ScorePrecision
}

// AverageReviewScore returns the mean stored overall score across completed,
// non-deleted reviews of researchID; 0 with CompletedReviews 0 when none.
func (s *ReviewService) AverageReviewScore(ctx context.Context, researchID string) (ScoreSummary, error) {
	tr := otel.Tracer("services/ReviewService")
	ctx, span := tr.Start(ctx, "AverageReviewScore", trace.WithAttributes(attribute.String("research.id", researchID)))
	defer span.End()

	if _, err := repo.GetResearch(ctx, s.Unit.DB(), researchID); err != nil {
		return ScoreSummary{}, fromRepo(err, "research")
	}
	mean, n, err := repo.ReviewScoreStats(ctx, s.Unit.DB(), researchID)
	if err != nil {
		return ScoreSummary{}, fromRepo(err, "reviews")
	}
	return ScoreSummary{
		ResearchID:       researchID,
		Average:          mean,
		Rounded:          domain.RoundScore(mean, s.precision()),
		CompletedReviews: n,
	}, nil
}

// OverdueReviews returns incomplete reviews past their deadline, evaluated
// against the current time.
func (s *ReviewService) OverdueReviews(ctx context.Context, f repo.ReviewFilter) ([]domain.Review, error) {
	out, err := repo.OverdueReviews(ctx, s.Unit.DB(), f, s.Now.now())
	return out, fromRepo(err, "reviews")
}

// ListReviews returns the active reviews of researchID.
func (s *ReviewService) ListReviews(ctx context.Context, researchID string) ([]domain.Review, error) {
	if _, err := repo.GetResearch(ctx, s.Unit.DB(), researchID); err != nil {
		return nil, fromRepo(err, "research")
	}
	out, err := repo.ListReviews(ctx, s.Unit.DB(), researchID)
	return out, fromRepo(err, "reviews")
}

// SuggestReviewers ranks directory reviewers by overlap between their
// expertise and the research's title and keywords. Reviewers already
// assigned and the submitter are excluded.
func (s *ReviewService) SuggestReviewers(ctx context.Context, researchID string, k int) ([]ReviewerSuggestion, error) {
	tr := otel.Tracer("services/ReviewService")
	ctx, span := tr.Start(ctx, "SuggestReviewers", trace.WithAttributes(attribute.String("research.id", researchID)))
	defer span.End()

	r, err := repo.GetResearch(ctx, s.Unit.DB(), researchID)
	if err != nil {
		return nil, fromRepo(err, "research")
	}
	assigned, err := repo.ListActiveReviewerIDs(ctx, s.Unit.DB(), researchID)
	if err != nil {
		return nil, fromRepo(err, "reviews")
	}
	reviewers, err := s.Directory.Reviewers(ctx)
	if err != nil {
		return nil, fromRepo(err, "reviewers")
	}

	byID := make(map[string]domain.Identity, len(reviewers))
	docs := make([]search.Document, 0, len(reviewers))
	for _, rv := range reviewers {
		byID[rv.ID] = rv
		docs = append(docs, search.Document{ID: rv.ID, Text: strings.Join(rv.Expertise, " ")})
	}
	idx := search.NewIndex(docs, search.WithExclude(append(assigned, r.SubmittedBy)...))

	query := r.Title + " " + strings.Join(r.KeywordList(), " ")
	results := idx.TopK(query, k)
	out := make([]ReviewerSuggestion, 0, len(results))
	for _, res := range results {
		who := byID[res.ID]
		out = append(out, ReviewerSuggestion{
			ReviewerID:  who.ID,
			DisplayName: who.DisplayName,
			Expertise:   who.Expertise,
			Score:       res.Score,
		})
	}
	return out, nil
}
