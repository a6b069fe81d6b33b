package alerter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/alertline/alertline/internal/metrics"
	"github.com/alertline/alertline/internal/notifier"
	"github.com/alertline/alertline/internal/types"
)

// DefaultEnvironment is assigned when a producer leaves environment empty.
const DefaultEnvironment = "unknown"

// Notifier announces lifecycle transitions. *notifier.Dispatcher implements it.
type Notifier interface {
	NotifyCreated(ctx context.Context, alert types.Alert) notifier.Report
	NotifyResolved(ctx context.Context, alert types.Alert) notifier.Report
}

// CreateRequest is a producer's request to raise an alert
type CreateRequest struct {
	Type            string         `json:"type"`
	Source          string         `json:"source"`
	Severity        types.Severity `json:"severity"`
	Message         string         `json:"message"`
	Details         map[string]any `json:"details,omitempty"`
	Environment     string         `json:"environment,omitempty"`
	RelatedEntities []string       `json:"related_entities,omitempty"`
}

// Outcome describes the effect of a create or resolve call.
type Outcome struct {
	Alert    types.Alert     `json:"alert"`
	Merged   bool            `json:"merged"`
	Delivery notifier.Report `json:"delivery"`
}

// Engine manages the alert lifecycle: NEW -> ACTIVE -> RESOLVED.
type Engine struct {
	logger   zerolog.Logger
	store    Store
	dedup    *Deduplicator
	notifier Notifier
	metrics  *metrics.Metrics
	now      func() time.Time
	newID    func() string

	// mu serializes dedup+insert and resolve check-and-set
	mu sync.Mutex
}

// Option configures an Engine
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator replaces the uuid generator.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) { e.newID = gen }
}

// WithMetrics records lifecycle counters on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates a new alert engine
func NewEngine(logger zerolog.Logger, store Store, window time.Duration, n Notifier, opts ...Option) *Engine {
	e := &Engine{
		logger:   logger.With().Str("component", "alerter").Logger(),
		store:    store,
		dedup:    NewDeduplicator(store, window),
		notifier: n,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Now returns the engine's current time.
func (e *Engine) Now() time.Time {
	return e.now().UTC()
}

// CreateAlert raises an alert, merging it into a fresh duplicate when one exists.
func (e *Engine) CreateAlert(ctx context.Context, req CreateRequest) (types.Alert, error) {
	out, err := e.Create(ctx, req)
	if err != nil {
		return types.Alert{}, err
	}
	return out.Alert, nil
}

// Create is CreateAlert returning whether the request was merged and the
// delivery report. Merges never notify.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (Outcome, error) {
	candidate, err := e.validate(req)
	if err != nil {
		return Outcome{}, err
	}

	e.mu.Lock()
	now := e.Now()
	if existing, ok := e.dedup.FindDuplicate(candidate, now); ok {
		merged, err := e.store.Update(existing.ID, OpMerged, func(a *types.Alert) error {
			a.Count++
			a.UpdatedAt = now
			return nil
		})
		e.mu.Unlock()
		if err != nil {
			return Outcome{}, err
		}

		e.metrics.AlertMerged(string(merged.Severity))
		e.logger.Info().
			Str("alert_id", merged.ID).
			Str("type", merged.Type).
			Str("source", merged.Source).
			Str("severity", string(merged.Severity)).
			Str("environment", merged.Environment).
			Int("count", merged.Count).
			Msg("Alert deduplicated")

		return Outcome{
			Alert:    merged,
			Merged:   true,
			Delivery: notifier.Report{Event: notifier.EventCreated, Skipped: true},
		}, nil
	}

	candidate.ID = e.newID()
	candidate.CreatedAt = now
	candidate.UpdatedAt = now
	if err := e.store.Insert(candidate); err != nil {
		e.mu.Unlock()
		return Outcome{}, err
	}
	e.mu.Unlock()

	e.metrics.AlertCreated(string(candidate.Severity))
	e.logger.Info().
		Str("alert_id", candidate.ID).
		Str("type", candidate.Type).
		Str("source", candidate.Source).
		Str("severity", string(candidate.Severity)).
		Str("environment", candidate.Environment).
		Msg("Alert created")

	created := candidate.Clone()
	report := e.notifier.NotifyCreated(context.WithoutCancel(ctx), created)
	return Outcome{Alert: created, Delivery: report}, nil
}

// ResolveAlert marks an active alert resolved and announces the resolution.
func (e *Engine) ResolveAlert(ctx context.Context, id, message string) (types.Alert, error) {
	out, err := e.Resolve(ctx, id, message)
	if err != nil {
		return types.Alert{}, err
	}
	return out.Alert, nil
}

// Resolve is ResolveAlert returning the delivery report.
func (e *Engine) Resolve(ctx context.Context, id, message string) (Outcome, error) {
	return e.resolve(ctx, id, message, metrics.ReasonManual, nil)
}

// resolve runs guard, when set, against the stored alert under the engine
// lock. A guard error aborts the resolution.
func (e *Engine) resolve(ctx context.Context, id, message, reason string, guard func(a *types.Alert, now time.Time) error) (Outcome, error) {
	e.mu.Lock()
	now := e.Now()
	resolved, err := e.store.Update(id, OpResolved, func(a *types.Alert) error {
		if !a.IsActive() {
			return fmt.Errorf("%w: alert %s is already %s", ErrInvalidState, id, a.Status)
		}
		if guard != nil {
			if err := guard(a, now); err != nil {
				return err
			}
		}
		a.Status = types.StatusResolved
		a.ResolvedAt = &now
		a.UpdatedAt = now
		if message != "" {
			msg := message
			a.ResolutionMessage = &msg
		}
		return nil
	})
	e.mu.Unlock()
	if err != nil {
		return Outcome{}, err
	}

	e.metrics.AlertResolved(string(resolved.Severity), reason)
	e.logger.Info().
		Str("alert_id", resolved.ID).
		Str("type", resolved.Type).
		Str("source", resolved.Source).
		Str("severity", string(resolved.Severity)).
		Str("environment", resolved.Environment).
		Str("reason", reason).
		Dur("duration", now.Sub(resolved.CreatedAt)).
		Msg("Alert resolved")

	report := e.notifier.NotifyResolved(context.WithoutCancel(ctx), resolved)
	return Outcome{Alert: resolved, Delivery: report}, nil
}

// GetActiveAlerts returns active alerts matching every set field of filter.
func (e *Engine) GetActiveAlerts(filter types.Filter) []types.Alert {
	return e.store.ListActive(filter)
}

// GetAlertByID returns the alert with id, active or resolved.
func (e *Engine) GetAlertByID(id string) (types.Alert, bool) {
	return e.store.Get(id)
}

// History returns every recorded lifecycle snapshot in order.
func (e *Engine) History() []HistoryEntry {
	return e.store.History()
}

// ActiveCount returns the number of active alerts.
func (e *Engine) ActiveCount() int {
	return e.store.CountActive()
}

func (e *Engine) validate(req CreateRequest) (types.Alert, error) {
	alertType := strings.TrimSpace(req.Type)
	if alertType == "" {
		return types.Alert{}, fmt.Errorf("%w: type is required", ErrInvalidArgument)
	}
	source := strings.TrimSpace(req.Source)
	if source == "" {
		return types.Alert{}, fmt.Errorf("%w: source is required", ErrInvalidArgument)
	}
	severity, err := types.ParseSeverity(string(req.Severity))
	if err != nil {
		return types.Alert{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	env := strings.TrimSpace(req.Environment)
	if env == "" {
		env = DefaultEnvironment
	}

	a := types.Alert{
		Type:            alertType,
		Source:          source,
		Severity:        severity,
		Environment:     env,
		Message:         req.Message,
		Details:         req.Details,
		RelatedEntities: req.RelatedEntities,
		Status:          types.StatusActive,
		Count:           1,
	}
	return a.Clone(), nil
}
