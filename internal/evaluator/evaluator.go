package evaluator

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/alertline/alertline/internal/alerter"
	"github.com/alertline/alertline/internal/config"
	"github.com/alertline/alertline/internal/types"
)

// Supported metrics
const (
	MetricResponseTime = "response_time"
	MetricErrorRate    = "error_rate"
)

// Alert types raised for each metric
const (
	AlertTypeLatencySpike   = "latency_spike"
	AlertTypeErrorRateSpike = "error_rate_spike"
)

// Observation is one raw measurement reported by a monitor.
// For response_time, Value is a ratio to baseline unless Baseline is set, in
// which case Value is the absolute measurement. For error_rate, Value is a
// fraction in [0, 1].
type Observation struct {
	Metric          string         `json:"metric"`
	Value           float64        `json:"value"`
	Baseline        float64        `json:"baseline,omitempty"`
	Source          string         `json:"source"`
	Environment     string         `json:"environment,omitempty"`
	EnvironmentType string         `json:"environment_type,omitempty"`
	Details         map[string]any `json:"details,omitempty"`
	RelatedEntities []string       `json:"related_entities,omitempty"`
}

// AlertCreator raises alerts. *alerter.Engine implements it.
type AlertCreator interface {
	Create(ctx context.Context, req alerter.CreateRequest) (alerter.Outcome, error)
}

// Evaluator classifies observations against configured thresholds
type Evaluator struct {
	thresholds  config.Thresholds
	sensitivity map[string]config.SensitivityFactors
	creator     AlertCreator
	logger      zerolog.Logger
}

// NewEvaluator creates a new threshold evaluator
func NewEvaluator(cfg *config.Config, creator AlertCreator, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		thresholds:  cfg.Thresholds,
		sensitivity: cfg.EnvironmentSensitivity,
		creator:     creator,
		logger:      logger.With().Str("component", "evaluator").Logger(),
	}
}

// Classify returns the highest severity reached by obs. ok is false when the
// value stays below the warning level.
func (e *Evaluator) Classify(obs Observation) (sev types.Severity, threshold float64, ok bool, err error) {
	levels, value, err := e.levelsFor(obs)
	if err != nil {
		return "", 0, false, err
	}

	switch {
	case value >= levels.Critical:
		return types.SeverityCritical, levels.Critical, true, nil
	case value >= levels.Error:
		return types.SeverityError, levels.Error, true, nil
	case value >= levels.Warning:
		return types.SeverityWarning, levels.Warning, true, nil
	}
	return "", 0, false, nil
}

// Evaluate classifies obs and raises an alert when a threshold is reached.
// The returned bool is false when no alert was raised.
func (e *Evaluator) Evaluate(ctx context.Context, obs Observation) (alerter.Outcome, bool, error) {
	sev, threshold, ok, err := e.Classify(obs)
	if err != nil {
		return alerter.Outcome{}, false, err
	}
	if !ok {
		e.logger.Debug().
			Str("metric", obs.Metric).
			Str("source", obs.Source).
			Float64("value", obs.Value).
			Msg("observation within thresholds")
		return alerter.Outcome{}, false, nil
	}

	details := make(map[string]any, len(obs.Details)+3)
	for k, v := range obs.Details {
		details[k] = v
	}
	details["metric"] = obs.Metric
	details["value"] = obs.Value
	details["threshold"] = threshold
	if obs.Baseline > 0 {
		details["baseline"] = obs.Baseline
	}

	req := alerter.CreateRequest{
		Type:            alertType(obs.Metric),
		Source:          obs.Source,
		Severity:        sev,
		Message:         message(obs, threshold),
		Details:         details,
		Environment:     obs.Environment,
		RelatedEntities: obs.RelatedEntities,
	}
	out, err := e.creator.Create(ctx, req)
	if err != nil {
		return alerter.Outcome{}, false, err
	}

	e.logger.Info().
		Str("metric", obs.Metric).
		Str("source", obs.Source).
		Str("severity", string(sev)).
		Str("alert_id", out.Alert.ID).
		Bool("merged", out.Merged).
		Msg("threshold breached")
	return out, true, nil
}

// levelsFor returns the sensitivity-scaled levels and the comparable value.
func (e *Evaluator) levelsFor(obs Observation) (config.SeverityLevels, float64, error) {
	factors := e.factors(obs)

	switch obs.Metric {
	case MetricResponseTime:
		value := obs.Value
		if obs.Baseline > 0 {
			value = obs.Value / obs.Baseline
		}
		return scale(e.thresholds.ResponseTime, factors.ResponseTime), value, nil
	case MetricErrorRate:
		return scale(e.thresholds.ErrorRate, factors.ErrorRate), obs.Value, nil
	default:
		return config.SeverityLevels{}, 0, fmt.Errorf("%w: unknown metric %q", alerter.ErrInvalidArgument, obs.Metric)
	}
}

// factors looks up sensitivity by environment type, falling back to the
// environment name and then to 1.0.
func (e *Evaluator) factors(obs Observation) config.SensitivityFactors {
	for _, key := range []string{obs.EnvironmentType, obs.Environment} {
		if key == "" {
			continue
		}
		if f, ok := e.sensitivity[strings.ToLower(key)]; ok {
			return f
		}
	}
	return config.SensitivityFactors{ResponseTime: 1.0, ErrorRate: 1.0}
}

func scale(l config.SeverityLevels, factor float64) config.SeverityLevels {
	if factor <= 0 {
		factor = 1.0
	}
	return config.SeverityLevels{
		Warning:  l.Warning * factor,
		Error:    l.Error * factor,
		Critical: l.Critical * factor,
	}
}

func alertType(metric string) string {
	if metric == MetricErrorRate {
		return AlertTypeErrorRateSpike
	}
	return AlertTypeLatencySpike
}

func message(obs Observation, threshold float64) string {
	if obs.Metric == MetricErrorRate {
		return fmt.Sprintf("error rate %.2f%% on %s reached %.2f%%", obs.Value*100, obs.Source, threshold*100)
	}
	ratio := obs.Value
	if obs.Baseline > 0 {
		ratio = obs.Value / obs.Baseline
	}
	return fmt.Sprintf("response time %.2fx baseline on %s reached %.2fx", ratio, obs.Source, threshold)
}
