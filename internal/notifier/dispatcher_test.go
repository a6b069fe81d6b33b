package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/alertline/alertline/internal/metrics"
	"github.com/alertline/alertline/internal/types"
)

type fakeChannel struct {
	name  string
	err   error
	panic bool
	block bool

	mu          sync.Mutex
	alerts      []types.Alert
	resolutions []types.Alert
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) SendAlert(ctx context.Context, alert types.Alert) error {
	f.mu.Lock()
	f.alerts = append(f.alerts, alert)
	f.mu.Unlock()
	return f.result(ctx)
}

func (f *fakeChannel) SendResolution(ctx context.Context, alert types.Alert) error {
	f.mu.Lock()
	f.resolutions = append(f.resolutions, alert)
	f.mu.Unlock()
	return f.result(ctx)
}

func (f *fakeChannel) result(ctx context.Context) error {
	if f.panic {
		panic("channel exploded")
	}
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

func (f *fakeChannel) alertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.alerts)
}

func (f *fakeChannel) resolutionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.resolutions)
}

func testAlert(sev types.Severity) types.Alert {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return types.Alert{
		ID:          "a-1",
		Type:        "latency_spike",
		Source:      "checkout",
		Severity:    sev,
		Environment: "production",
		Message:     "p99 latency above threshold",
		Details:     map[string]any{"p99_ms": 1800},
		Status:      types.StatusActive,
		Count:       1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func resolvedAlert(sev types.Severity) types.Alert {
	a := testAlert(sev)
	at := a.CreatedAt.Add(10 * time.Minute)
	msg := "rolled back deploy"
	a.Status = types.StatusResolved
	a.ResolvedAt = &at
	a.ResolutionMessage = &msg
	a.UpdatedAt = at
	return a
}

func TestNotifyCreatedSeverityGate(t *testing.T) {
	defer goleak.VerifyNone(t)

	cases := []struct {
		severity types.Severity
		sent     bool
	}{
		{types.SeverityInfo, false},
		{types.SeverityWarning, true},
		{types.SeverityError, true},
		{types.SeverityCritical, true},
	}
	for _, tc := range cases {
		t.Run(string(tc.severity), func(t *testing.T) {
			ch := &fakeChannel{name: "x"}
			d := NewDispatcher(zerolog.Nop(), []Channel{ch}, time.Second, nil)

			report := d.NotifyCreated(context.Background(), testAlert(tc.severity))

			assert.Equal(t, EventCreated, report.Event)
			assert.Equal(t, !tc.sent, report.Skipped)
			if tc.sent {
				assert.Equal(t, 1, ch.alertCount())
				assert.Equal(t, []string{"x"}, report.Attempted)
			} else {
				assert.Zero(t, ch.alertCount())
				assert.Empty(t, report.Attempted)
			}
		})
	}
}

func TestNotifyResolvedSeverityGate(t *testing.T) {
	defer goleak.VerifyNone(t)

	cases := []struct {
		severity types.Severity
		sent     bool
	}{
		{types.SeverityInfo, false},
		{types.SeverityWarning, false},
		{types.SeverityError, true},
		{types.SeverityCritical, true},
	}
	for _, tc := range cases {
		t.Run(string(tc.severity), func(t *testing.T) {
			ch := &fakeChannel{name: "x"}
			d := NewDispatcher(zerolog.Nop(), []Channel{ch}, time.Second, nil)

			report := d.NotifyResolved(context.Background(), resolvedAlert(tc.severity))

			assert.Equal(t, EventResolved, report.Event)
			assert.Equal(t, !tc.sent, report.Skipped)
			if tc.sent {
				assert.Equal(t, 1, ch.resolutionCount())
			} else {
				assert.Zero(t, ch.resolutionCount())
			}
			assert.Zero(t, ch.alertCount())
		})
	}
}

func TestFailingChannelDoesNotStopOthers(t *testing.T) {
	defer goleak.VerifyNone(t)

	x := &fakeChannel{name: "x", err: errors.New("smtp unreachable")}
	y := &fakeChannel{name: "y"}
	z := &fakeChannel{name: "z"}
	d := NewDispatcher(zerolog.Nop(), []Channel{x, y, z}, time.Second, nil)

	report := d.NotifyCreated(context.Background(), testAlert(types.SeverityCritical))

	assert.Equal(t, 1, x.alertCount())
	assert.Equal(t, 1, y.alertCount())
	assert.Equal(t, 1, z.alertCount())
	assert.Equal(t, []string{"x", "y", "z"}, report.Attempted)
	assert.Equal(t, []string{"x"}, report.Failed)
	assert.False(t, report.OK())

	require.Len(t, report.Failures, 1)
	derr := report.Failures[0]
	assert.Equal(t, "x", derr.Channel)
	assert.Equal(t, EventCreated, derr.Event)
	assert.Equal(t, "a-1", derr.AlertID)
	assert.EqualError(t, errors.Unwrap(derr), "smtp unreachable")
}

func TestPanickingChannelIsRecovered(t *testing.T) {
	defer goleak.VerifyNone(t)

	x := &fakeChannel{name: "x", panic: true}
	y := &fakeChannel{name: "y"}
	d := NewDispatcher(zerolog.Nop(), []Channel{x, y}, time.Second, nil)

	var report Report
	require.NotPanics(t, func() {
		report = d.NotifyResolved(context.Background(), resolvedAlert(types.SeverityError))
	})

	assert.Equal(t, 1, y.resolutionCount())
	assert.Equal(t, []string{"x"}, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Contains(t, report.Failures[0].Error(), "panic: channel exploded")
}

func TestSlowChannelTimesOut(t *testing.T) {
	defer goleak.VerifyNone(t)

	slow := &fakeChannel{name: "slow", block: true}
	fast := &fakeChannel{name: "fast"}
	d := NewDispatcher(zerolog.Nop(), []Channel{slow, fast}, 20*time.Millisecond, nil)

	start := time.Now()
	report := d.NotifyCreated(context.Background(), testAlert(types.SeverityWarning))

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, []string{"slow"}, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.ErrorIs(t, report.Failures[0], context.DeadlineExceeded)
	assert.Equal(t, 1, fast.alertCount())
}

func TestNoChannels(t *testing.T) {
	d := NewDispatcher(zerolog.Nop(), nil, 0, nil)

	report := d.NotifyCreated(context.Background(), testAlert(types.SeverityCritical))

	assert.False(t, report.Skipped)
	assert.Empty(t, report.Attempted)
	assert.True(t, report.OK())
	assert.Empty(t, d.Channels())
}

func TestDispatcherRecordsMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	ok := &fakeChannel{name: "ok"}
	bad := &fakeChannel{name: "bad", err: errors.New("boom")}
	d := NewDispatcher(zerolog.Nop(), []Channel{ok, bad}, time.Second, m)

	d.NotifyCreated(context.Background(), testAlert(types.SeverityError))

	assert.InDelta(t, 1, testutil.ToFloat64(m.Notifications.WithLabelValues("ok", "created", metrics.OutcomeSent)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Notifications.WithLabelValues("bad", "created", metrics.OutcomeFailed)), 0)
}
