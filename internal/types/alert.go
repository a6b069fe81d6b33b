package types

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// Severity is the urgency of an alert. Values are wire-stable.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityWarning:  1,
	SeverityError:    2,
	SeverityCritical: 3,
}

// ParseSeverity accepts the wire strings case-insensitively.
func ParseSeverity(raw string) (Severity, error) {
	s := Severity(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := severityRank[s]; !ok {
		return "", fmt.Errorf("unknown severity %q", raw)
	}
	return s, nil
}

// Valid reports whether s is one of the four known severities.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// Rank orders severities by increasing urgency. Unknown values rank below info.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return -1
}

// AtLeast reports whether s is as urgent as other or more.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// Status is the lifecycle state of an alert
type Status string

const (
	StatusActive   Status = "active"
	StatusResolved Status = "resolved"
)

// Signature identifies alerts that describe the same incident.
type Signature struct {
	Type        string
	Source      string
	Severity    Severity
	Environment string
}

func (s Signature) String() string {
	return s.Type + "|" + s.Source + "|" + string(s.Severity) + "|" + s.Environment
}

// Alert represents an active or resolved alert
type Alert struct {
	ID                string         `json:"id"`
	Type              string         `json:"type"`
	Source            string         `json:"source"`
	Severity          Severity       `json:"severity"`
	Environment       string         `json:"environment"`
	Message           string         `json:"message"`
	Details           map[string]any `json:"details"`
	RelatedEntities   []string       `json:"related_entities"`
	Status            Status         `json:"status"`
	Count             int            `json:"count"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	ResolvedAt        *time.Time     `json:"resolved_at,omitempty"`
	ResolutionMessage *string        `json:"resolution_message,omitempty"`
}

// Signature returns the deduplication key of the alert.
func (a *Alert) Signature() Signature {
	return Signature{
		Type:        a.Type,
		Source:      a.Source,
		Severity:    a.Severity,
		Environment: a.Environment,
	}
}

// IsActive reports whether the alert has not been resolved yet.
func (a *Alert) IsActive() bool {
	return a.Status == StatusActive
}

// Clone returns a deep copy. Nested maps and slices inside Details are
// copied too.
func (a Alert) Clone() Alert {
	out := a
	out.Details = cloneDetails(a.Details)
	if out.Details == nil {
		out.Details = map[string]any{}
	}
	out.RelatedEntities = slices.Clone(a.RelatedEntities)
	if out.RelatedEntities == nil {
		out.RelatedEntities = []string{}
	}
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		out.ResolvedAt = &t
	}
	if a.ResolutionMessage != nil {
		m := *a.ResolutionMessage
		out.ResolutionMessage = &m
	}
	return out
}

// Filter selects active alerts. Empty fields match everything.
type Filter struct {
	Environment string
	Severity    Severity
	Source      string
}

// Matches reports whether a satisfies every set field of f.
func (f Filter) Matches(a *Alert) bool {
	if f.Environment != "" && a.Environment != f.Environment {
		return false
	}
	if f.Severity != "" && a.Severity != f.Severity {
		return false
	}
	if f.Source != "" && a.Source != f.Source {
		return false
	}
	return true
}

func cloneDetails(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneDetails(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return slices.Clone(val)
	case map[string]string:
		return maps.Clone(val)
	default:
		return v
	}
}
