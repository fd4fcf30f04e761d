package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/tbourn/research-review-backend/internal/repo"
)

// Dispatcher defaults.
const (
	DefaultBatchSize  = 10
	DefaultMaxRetries = 3
	maxErrorLen       = 1000
)

// MailTransport delivers a rendered notification. Implemented by
// mailer.SMTPTransport and mailer.LogTransport.
type MailTransport interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// Dispatcher delivers pending outbox records with a bounded retry count.
type Dispatcher struct {
	DB         *gorm.DB
	Transport  MailTransport
	BatchSize  int
	MaxRetries int
	Limiter    *rate.Limiter // nil means unpaced
	Now        func() time.Time
}

// DispatchResult summarizes one tick.
type DispatchResult struct {
	Sent   int
	Failed int
}

// Tick delivers one batch. Each record is stamped independently, so an
// interrupted batch leaves processed records correct.
func (d *Dispatcher) Tick(ctx context.Context) (DispatchResult, error) {
	var res DispatchResult
	batch, retries := d.BatchSize, d.MaxRetries
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	if retries <= 0 {
		retries = DefaultMaxRetries
	}

	recs, err := repo.PendingNotifications(ctx, d.DB, batch, retries)
	if err != nil {
		return res, err
	}
	for _, n := range recs {
		if d.Limiter != nil {
			if err := d.Limiter.Wait(ctx); err != nil {
				return res, err
			}
		}
		l := log.With().Str("notification_id", n.ID).Str("category", n.Category).Logger()

		if sendErr := d.Transport.Send(ctx, n.ToAddress, n.Subject, n.Body); sendErr != nil {
			res.Failed++
			dispatched.WithLabelValues("failed").Inc()
			l.Warn().Err(sendErr).Int("attempt", n.RetryCount+1).Msg("notification delivery failed")
			if err := repo.MarkNotificationFailed(ctx, d.DB, n.ID, truncate(sendErr.Error(), maxErrorLen)); err != nil {
				l.Error().Err(err).Msg("mark notification failed")
			}
			continue
		}
		res.Sent++
		dispatched.WithLabelValues("sent").Inc()
		if err := repo.MarkNotificationSent(ctx, d.DB, n.ID, d.now()); err != nil {
			l.Error().Err(err).Msg("mark notification sent")
		}
	}
	if len(recs) > 0 {
		log.Info().Int("sent", res.Sent).Int("failed", res.Failed).Msg("outbox batch dispatched")
	}
	return res, nil
}

// Loop returns a Loop running Tick on interval.
func (d *Dispatcher) Loop(interval time.Duration, lock TickLock) Loop {
	return Loop{
		Name:     "outbox",
		Interval: interval,
		Lock:     lock,
		Tick: func(ctx context.Context) error {
			_, err := d.Tick(ctx)
			return err
		},
	}
}

func (d *Dispatcher) now() time.Time {
	if d.Now == nil {
		return time.Now().UTC()
	}
	return d.Now().UTC()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
