package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Loop runs Tick immediately and then every Interval until ctx is done.
type Loop struct {
	Name     string
	Interval time.Duration
	Lock     TickLock
	Tick     func(ctx context.Context) error
}

// Run blocks until ctx is cancelled. An in-flight tick is not cancelled; Run
// returns once it has finished.
func (l Loop) Run(ctx context.Context) {
	interval := l.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	logger := log.With().Str("worker", l.Name).Logger()
	logger.Info().Dur("interval", interval).Msg("worker started")

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		l.runOnce(ctx, interval)
		select {
		case <-ctx.Done():
			logger.Info().Msg("worker stopped")
			return
		case <-t.C:
		}
	}
}

func (l Loop) runOnce(ctx context.Context, ttl time.Duration) {
	if ctx.Err() != nil {
		return
	}
	tickCtx := context.WithoutCancel(ctx)

	lock := l.Lock
	if lock == nil {
		lock = NoopLock{}
	}
	release, ok, err := lock.Acquire(tickCtx, l.Name, ttl)
	if err != nil {
		log.Warn().Err(err).Str("worker", l.Name).Msg("tick lock unavailable; skipping")
		return
	}
	if !ok {
		log.Debug().Str("worker", l.Name).Msg("tick held by another replica")
		return
	}
	defer release()

	start := time.Now()
	if err := l.Tick(tickCtx); err != nil {
		log.Error().Err(err).Str("worker", l.Name).Msg("tick failed")
	}
	tickDuration.WithLabelValues(l.Name).Observe(time.Since(start).Seconds())
}
