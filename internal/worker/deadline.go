package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/research-review-backend/internal/domain"
	"github.com/tbourn/research-review-backend/internal/outbox"
	"github.com/tbourn/research-review-backend/internal/repo"
)

// Directory resolves reviewer identities for addressing.
type Directory interface {
	Lookup(ctx context.Context, id string) (domain.Identity, error)
}

// Enqueuer queues a notification. Implemented by *outbox.Outbox.
type Enqueuer interface {
	Enqueue(ctx context.Context, m outbox.Message) (*domain.NotificationRecord, error)
}

// DeadlineMonitor raises reminders for reviews due tomorrow and for
// overdue reviews. Every scan re-raises reminders for whatever matches.
type DeadlineMonitor struct {
	DB        *gorm.DB
	Directory Directory
	Outbox    Enqueuer
	Now       func() time.Time
}

// ScanResult summarizes one scan.
type ScanResult struct {
	Upcoming int
	Overdue  int
}

// Tick runs one scan. "Tomorrow" is the UTC calendar day after now.
// Per-review failures are logged and skipped.
func (m *DeadlineMonitor) Tick(ctx context.Context) (ScanResult, error) {
	var res ScanResult
	now := m.now()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	to := from.AddDate(0, 0, 1)

	upcoming, err := repo.ReviewsDueBetween(ctx, m.DB, from, to)
	if err != nil {
		return res, err
	}
	for _, rv := range upcoming {
		if m.remind(ctx, rv, outbox.CategoryDeadlineUpcoming) {
			res.Upcoming++
			reminders.WithLabelValues("upcoming").Inc()
		}
	}

	overdue, err := repo.OverdueReviews(ctx, m.DB, repo.ReviewFilter{}, now)
	if err != nil {
		return res, err
	}
	for _, rv := range overdue {
		if m.remind(ctx, rv, outbox.CategoryDeadlineOverdue) {
			res.Overdue++
			reminders.WithLabelValues("overdue").Inc()
		}
	}
	log.Info().Int("upcoming", res.Upcoming).Int("overdue", res.Overdue).Msg("deadline scan finished")
	return res, nil
}

func (m *DeadlineMonitor) remind(ctx context.Context, rv domain.Review, cat outbox.Category) bool {
	l := log.With().Str("review_id", rv.ID).Str("research_id", rv.ResearchID).Logger()

	r, err := repo.GetResearch(ctx, m.DB, rv.ResearchID)
	if err != nil {
		l.Warn().Err(err).Msg("reminder: research lookup failed")
		return false
	}
	reviewer, err := m.Directory.Lookup(ctx, rv.ReviewerID)
	if err != nil {
		l.Warn().Err(err).Str("user_id", rv.ReviewerID).Msg("reminder: reviewer lookup failed")
		return false
	}
	_, err = m.Outbox.Enqueue(ctx, outbox.Message{
		Category:   cat,
		To:         reviewer,
		ResearchID: r.ID,
		View: outbox.View{
			ResearchTitle: r.Title,
			ReviewerName:  reviewer.DisplayName,
			Deadline:      rv.Deadline,
		},
	})
	if err != nil {
		l.Warn().Err(err).Str("category", string(cat)).Msg("reminder enqueue failed")
		return false
	}
	return true
}

// Loop returns a Loop running Tick on interval.
func (m *DeadlineMonitor) Loop(interval time.Duration, lock TickLock) Loop {
	return Loop{
		Name:     "deadlines",
		Interval: interval,
		Lock:     lock,
		Tick: func(ctx context.Context) error {
			_, err := m.Tick(ctx)
			return err
		},
	}
}

func (m *DeadlineMonitor) now() time.Time {
	if m.Now == nil {
		return time.Now().UTC()
	}
	return m.Now().UTC()
}
