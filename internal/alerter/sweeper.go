package alerter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/alertline/alertline/internal/metrics"
	"github.com/alertline/alertline/internal/types"
)

// errNotStale aborts an auto-resolve when the alert saw activity after it was listed.
var errNotStale = errors.New("alert is not stale")

// Sweeper resolves active alerts that saw no activity for maxAge.
type Sweeper struct {
	log      zerolog.Logger
	engine   *Engine
	maxAge   time.Duration
	interval time.Duration
}

// NewSweeper creates a sweeper. A zero maxAge disables it.
func NewSweeper(log zerolog.Logger, engine *Engine, maxAge, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		log:      log.With().Str("component", "sweeper").Logger(),
		engine:   engine,
		maxAge:   maxAge,
		interval: interval,
	}
}

// Enabled reports whether auto-resolution is configured.
func (s *Sweeper) Enabled() bool {
	return s.maxAge > 0
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	if !s.Enabled() {
		s.log.Info().Msg("auto-resolve disabled")
		return
	}

	s.log.Info().
		Dur("max_age", s.maxAge).
		Dur("interval", s.interval).
		Msg("auto-resolve sweeper started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Debug().Msg("auto-resolve sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep resolves every stale alert once and returns how many it resolved.
func (s *Sweeper) Sweep(ctx context.Context) int {
	if !s.Enabled() {
		return 0
	}

	now := s.engine.Now()
	message := fmt.Sprintf("auto-resolved after %s without activity", s.maxAge)
	resolved := 0

	for _, a := range s.engine.GetActiveAlerts(types.Filter{}) {
		if ctx.Err() != nil {
			break
		}
		if now.Sub(a.UpdatedAt) <= s.maxAge {
			continue
		}

		_, err := s.engine.resolve(ctx, a.ID, message, metrics.ReasonAuto, s.stale)
		switch {
		case err == nil:
			resolved++
		case errors.Is(err, errNotStale):
			s.log.Debug().Str("alert_id", a.ID).Msg("alert saw activity, skipping auto-resolve")
		case errors.Is(err, ErrInvalidState), errors.Is(err, ErrNotFound):
			// resolved concurrently by a producer
		default:
			s.log.Error().Err(err).Str("alert_id", a.ID).Msg("auto-resolve failed")
		}
	}

	if resolved > 0 {
		s.log.Info().Int("resolved", resolved).Msg("stale alerts auto-resolved")
	}
	return resolved
}

// stale rechecks last activity against the stored alert.
func (s *Sweeper) stale(a *types.Alert, now time.Time) error {
	if now.Sub(a.UpdatedAt) <= s.maxAge {
		return errNotStale
	}
	return nil
}
