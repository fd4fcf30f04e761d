package domain

import (
	"errors"
	"fmt"
	"math"
)

// Status is the lifecycle state of a Research item.
type Status string

const (
	StatusSubmitted              Status = "submitted"
	StatusUnderInitialReview     Status = "under_initial_review"
	StatusAssignedForReview      Status = "assigned_for_review"
	StatusUnderReview            Status = "under_review"
	StatusUnderEvaluation        Status = "under_evaluation"
	StatusRequiresMinorRevisions Status = "requires_minor_revisions"
	StatusRequiresMajorRevisions Status = "requires_major_revisions"
	StatusRevisionsSubmitted     Status = "revisions_submitted"
	StatusRevisionsUnderReview   Status = "revisions_under_review"
	StatusAccepted               Status = "accepted"
	StatusRejected               Status = "rejected"
	StatusWithdrawn              Status = "withdrawn"
)

// transitions is the legal successor graph. Withdrawn is added to every
// non-terminal state in init.
var transitions = map[Status][]Status{
	StatusSubmitted: {
		StatusUnderInitialReview, StatusAssignedForReview, StatusUnderReview,
	},
	StatusUnderInitialReview: {
		StatusAssignedForReview, StatusUnderReview, StatusRejected,
	},
	StatusAssignedForReview: {
		StatusUnderReview,
	},
	StatusUnderReview: {
		StatusUnderEvaluation, StatusRequiresMinorRevisions, StatusRequiresMajorRevisions,
		StatusAccepted, StatusRejected,
	},
	StatusUnderEvaluation: {
		StatusRequiresMinorRevisions, StatusRequiresMajorRevisions, StatusAccepted, StatusRejected,
	},
	StatusRequiresMinorRevisions: {StatusRevisionsSubmitted},
	StatusRequiresMajorRevisions: {StatusRevisionsSubmitted},
	StatusRevisionsSubmitted:     {StatusRevisionsUnderReview},
	StatusRevisionsUnderReview: {
		StatusUnderReview, StatusUnderEvaluation, StatusRequiresMinorRevisions,
		StatusRequiresMajorRevisions, StatusAccepted, StatusRejected,
	},
	StatusAccepted:  nil,
	StatusRejected:  nil,
	StatusWithdrawn: nil,
}

func init() {
	for from, next := range transitions {
		if !from.IsTerminal() {
			transitions[from] = append(next, StatusWithdrawn)
		}
	}
}

// AllStatuses lists every known status in lifecycle order.
func AllStatuses() []Status {
	return []Status{
		StatusSubmitted, StatusUnderInitialReview, StatusAssignedForReview, StatusUnderReview,
		StatusUnderEvaluation, StatusRequiresMinorRevisions, StatusRequiresMajorRevisions,
		StatusRevisionsSubmitted, StatusRevisionsUnderReview, StatusAccepted, StatusRejected,
		StatusWithdrawn,
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusAccepted || s == StatusRejected || s == StatusWithdrawn
}

// Successors returns the statuses reachable from s in one step.
func (s Status) Successors() []Status {
	out := make([]Status, len(transitions[s]))
	copy(out, transitions[s])
	return out
}

// CanTransitionTo reports whether to is a legal successor of s.
func (s Status) CanTransitionTo(to Status) bool {
	for _, n := range transitions[s] {
		if n == to {
			return true
		}
	}
	return false
}

// SubmitterTriggered reports whether entering s is an action reserved to
// the submitter rather than to track management.
func (s Status) SubmitterTriggered() bool {
	return s == StatusWithdrawn || s == StatusRevisionsSubmitted
}

// IsDecision reports whether s records an editorial decision.
func (s Status) IsDecision() bool {
	switch s {
	case StatusAccepted, StatusRejected, StatusRequiresMinorRevisions, StatusRequiresMajorRevisions:
		return true
	}
	return false
}

// Editable reports whether the submitter may still edit metadata, authors
// and files while in s.
func (s Status) Editable() bool {
	switch s {
	case StatusSubmitted, StatusRequiresMinorRevisions, StatusRequiresMajorRevisions:
		return true
	}
	return false
}

// Role is the authorization role of an identity.
type Role string

const (
	RoleResearcher    Role = "researcher"
	RoleReviewer      Role = "reviewer"
	RoleTrackManager  Role = "track_manager"
	RoleAdministrator Role = "administrator"
)

// Decision is a reviewer's recommended disposition.
type Decision string

const (
	DecisionNotReviewed              Decision = "not_reviewed"
	DecisionAcceptAsIs               Decision = "accept_as_is"
	DecisionAcceptWithMinorRevisions Decision = "accept_with_minor_revisions"
	DecisionMajorRevisionsRequired   Decision = "major_revisions_required"
	DecisionReject                   Decision = "reject"
	DecisionNotSuitableForConference Decision = "not_suitable_for_conference"
)

// Valid reports whether d is a known decision.
func (d Decision) Valid() bool {
	switch d {
	case DecisionNotReviewed, DecisionAcceptAsIs, DecisionAcceptWithMinorRevisions,
		DecisionMajorRevisionsRequired, DecisionReject, DecisionNotSuitableForConference:
		return true
	}
	return false
}

// Score bounds, inclusive.
const (
	MinScore = 1
	MaxScore = 10
)

// ErrScoreOutOfRange is returned for component scores outside [MinScore, MaxScore].
var ErrScoreOutOfRange = errors.New("score out of range")

// Scores are the five component scores of a review.
type Scores struct {
	Originality  int `json:"originality"`
	Methodology  int `json:"methodology"`
	Clarity      int `json:"clarity"`
	Significance int `json:"significance"`
	References   int `json:"references"`
}

// Overall is the arithmetic mean of the four primary components. The
// references score is recorded but not part of the overall figure.
func (s Scores) Overall() float64 {
	return float64(s.Originality+s.Methodology+s.Clarity+s.Significance) / 4
}

// Validate checks every component against the bounds. A draft may leave
// components unset (0); a final submission may not.
func (s Scores) Validate(draft bool) error {
	fields := []struct {
		name string
		v    int
	}{
		{"originality", s.Originality},
		{"methodology", s.Methodology},
		{"clarity", s.Clarity},
		{"significance", s.Significance},
		{"references", s.References},
	}
	for _, f := range fields {
		if draft && f.v == 0 {
			continue
		}
		if f.v < MinScore || f.v > MaxScore {
			return fmt.Errorf("%w: %s=%d (want %d..%d)", ErrScoreOutOfRange, f.name, f.v, MinScore, MaxScore)
		}
	}
	return nil
}

// RoundScore rounds v to the given number of decimals for presentation.
func RoundScore(v float64, precision int) float64 {
	if precision < 0 {
		return v
	}
	p := math.Pow(10, float64(precision))
	return math.Round(v*p) / p
}
