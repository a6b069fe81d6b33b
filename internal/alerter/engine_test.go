package alerter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alertline/alertline/internal/metrics"
	"github.com/alertline/alertline/internal/notifier"
	"github.com/alertline/alertline/internal/types"
)

type recordingNotifier struct {
	mu       sync.Mutex
	created  []types.Alert
	resolved []types.Alert
}

func (r *recordingNotifier) NotifyCreated(_ context.Context, a types.Alert) notifier.Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, a)
	return notifier.Report{Event: notifier.EventCreated, Attempted: []string{"fake"}}
}

func (r *recordingNotifier) NotifyResolved(_ context.Context, a types.Alert) notifier.Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolved = append(r.resolved, a)
	return notifier.Report{Event: notifier.EventResolved, Attempted: []string{"fake"}}
}

func (r *recordingNotifier) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.created), len(r.resolved)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("alert-%d", n.Add(1))
	}
}

func newTestEngine(t *testing.T, window time.Duration) (*Engine, *recordingNotifier, *testClock) {
	t.Helper()
	n := &recordingNotifier{}
	clock := newTestClock()
	e := NewEngine(zerolog.Nop(), NewMemoryStore(), window, n,
		WithClock(clock.Now),
		WithIDGenerator(sequentialIDs()),
	)
	return e, n, clock
}

func latencySpike() CreateRequest {
	return CreateRequest{
		Type:        "latency_spike",
		Source:      "api-gw",
		Severity:    types.SeverityWarning,
		Message:     "p95 latency 2.3x baseline",
		Details:     map[string]any{"ratio": 2.3},
		Environment: "production",
	}
}

func TestCreateAlertNewRecord(t *testing.T) {
	e, n, clock := newTestEngine(t, 5*time.Minute)

	a, err := e.CreateAlert(context.Background(), latencySpike())
	require.NoError(t, err)

	assert.Equal(t, "alert-1", a.ID)
	assert.Equal(t, types.StatusActive, a.Status)
	assert.Equal(t, 1, a.Count)
	assert.Equal(t, clock.Now(), a.CreatedAt)
	assert.Equal(t, a.CreatedAt, a.UpdatedAt)
	assert.Nil(t, a.ResolvedAt)
	assert.Nil(t, a.ResolutionMessage)
	assert.Equal(t, []string{}, a.RelatedEntities)

	created, _ := n.counts()
	assert.Equal(t, 1, created)
}

func TestDuplicateWithinWindowMerges(t *testing.T) {
	e, n, clock := newTestEngine(t, 5*time.Minute)

	first, err := e.CreateAlert(context.Background(), latencySpike())
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	dup := latencySpike()
	dup.Message = "a different message"
	out, err := e.Create(context.Background(), dup)
	require.NoError(t, err)

	assert.True(t, out.Merged)
	assert.True(t, out.Delivery.Skipped)
	assert.Equal(t, first.ID, out.Alert.ID)
	assert.Equal(t, 2, out.Alert.Count)
	assert.Equal(t, first.CreatedAt, out.Alert.CreatedAt)
	assert.Equal(t, clock.Now(), out.Alert.UpdatedAt)
	assert.Equal(t, "p95 latency 2.3x baseline", out.Alert.Message, "duplicate payload is discarded")

	assert.Len(t, e.GetActiveAlerts(types.Filter{}), 1)
	created, _ := n.counts()
	assert.Equal(t, 1, created, "merges never re-notify")
}

func TestDuplicateAfterWindowCreatesNewRecord(t *testing.T) {
	e, _, clock := newTestEngine(t, 5*time.Minute)

	first, err := e.CreateAlert(context.Background(), latencySpike())
	require.NoError(t, err)

	clock.Advance(5*time.Minute + time.Second)
	second, err := e.CreateAlert(context.Background(), latencySpike())
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 1, second.Count)
	assert.Len(t, e.GetActiveAlerts(types.Filter{}), 2)
}

func TestWindowMeasuredFromCreation(t *testing.T) {
	e, _, clock := newTestEngine(t, 5*time.Minute)

	first, err := e.CreateAlert(context.Background(), latencySpike())
	require.NoError(t, err)

	// a merge refreshes updated_at but not the window anchor
	clock.Advance(4 * time.Minute)
	_, err = e.CreateAlert(context.Background(), latencySpike())
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	third, err := e.CreateAlert(context.Background(), latencySpike())
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
}

func TestDifferentSignatureDoesNotMerge(t *testing.T) {
	e, _, _ := newTestEngine(t, 5*time.Minute)

	_, err := e.CreateAlert(context.Background(), latencySpike())
	require.NoError(t, err)

	other := latencySpike()
	other.Severity = types.SeverityCritical
	out, err := e.Create(context.Background(), other)
	require.NoError(t, err)
	assert.False(t, out.Merged)

	other = latencySpike()
	other.Environment = "staging"
	out, err = e.Create(context.Background(), other)
	require.NoError(t, err)
	assert.False(t, out.Merged)

	assert.Len(t, e.GetActiveAlerts(types.Filter{}), 3)
}

func TestResolvedAlertIsNotMergeTarget(t *testing.T) {
	e, _, _ := newTestEngine(t, 5*time.Minute)

	first, err := e.CreateAlert(context.Background(), latencySpike())
	require.NoError(t, err)
	_, err = e.ResolveAlert(context.Background(), first.ID, "fixed")
	require.NoError(t, err)

	second, err := e.CreateAlert(context.Background(), latencySpike())
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 1, second.Count)
}

func TestZeroWindowDisablesDedup(t *testing.T) {
	e, _, _ := newTestEngine(t, 0)

	a, err := e.CreateAlert(context.Background(), latencySpike())
	require.NoError(t, err)
	b, err := e.CreateAlert(context.Background(), latencySpike())
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
}

func TestCreateAlertValidation(t *testing.T) {
	e, n, _ := newTestEngine(t, 5*time.Minute)

	cases := map[string]func(r *CreateRequest){
		"missing type":     func(r *CreateRequest) { r.Type = "" },
		"blank source":     func(r *CreateRequest) { r.Source = "  " },
		"unknown severity": func(r *CreateRequest) { r.Severity = "fatal" },
		"empty severity":   func(r *CreateRequest) { r.Severity = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := latencySpike()
			mutate(&req)
			_, err := e.CreateAlert(context.Background(), req)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}

	assert.Empty(t, e.History())
	created, _ := n.counts()
	assert.Zero(t, created)
}

func TestCreateAlertNormalizesInput(t *testing.T) {
	e, _, _ := newTestEngine(t, 5*time.Minute)

	req := latencySpike()
	req.Severity = "CRITICAL"
	req.Environment = ""
	a, err := e.CreateAlert(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, types.SeverityCritical, a.Severity)
	assert.Equal(t, DefaultEnvironment, a.Environment)
}

func TestResolveAlert(t *testing.T) {
	e, n, clock := newTestEngine(t, 5*time.Minute)

	req := latencySpike()
	req.Severity = types.SeverityCritical
	a, err := e.CreateAlert(context.Background(), req)
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	resolved, err := e.ResolveAlert(context.Background(), a.ID, "rolled back deploy")
	require.NoError(t, err)

	assert.Equal(t, types.StatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, clock.Now(), *resolved.ResolvedAt)
	assert.Equal(t, clock.Now(), resolved.UpdatedAt)
	require.NotNil(t, resolved.ResolutionMessage)
	assert.Equal(t, "rolled back deploy", *resolved.ResolutionMessage)

	stored, ok := e.GetAlertByID(a.ID)
	require.True(t, ok)
	assert.Equal(t, types.StatusResolved, stored.Status)
	assert.Empty(t, e.GetActiveAlerts(types.Filter{}))

	_, resolutions := n.counts()
	assert.Equal(t, 1, resolutions)
}

func TestResolveWithoutMessage(t *testing.T) {
	e, _, _ := newTestEngine(t, 5*time.Minute)

	a, err := e.CreateAlert(context.Background(), latencySpike())
	require.NoError(t, err)
	resolved, err := e.ResolveAlert(context.Background(), a.ID, "")
	require.NoError(t, err)
	assert.Nil(t, resolved.ResolutionMessage)
}

func TestResolveUnknownID(t *testing.T) {
	e, _, _ := newTestEngine(t, 5*time.Minute)

	_, err := e.ResolveAlert(context.Background(), "nonexistent-id", "")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, e.History())
}

func TestResolveTwiceFailsWithInvalidState(t *testing.T) {
	e, n, clock := newTestEngine(t, 5*time.Minute)

	a, err := e.CreateAlert(context.Background(), latencySpike())
	require.NoError(t, err)
	first, err := e.ResolveAlert(context.Background(), a.ID, "first")
	require.NoError(t, err)

	clock.Advance(time.Minute)
	_, err = e.ResolveAlert(context.Background(), a.ID, "second")
	require.ErrorIs(t, err, ErrInvalidState)

	stored, _ := e.GetAlertByID(a.ID)
	assert.Equal(t, *first.ResolvedAt, *stored.ResolvedAt)
	assert.Equal(t, "first", *stored.ResolutionMessage)
	_, resolutions := n.counts()
	assert.Equal(t, 1, resolutions)
}

func TestGetActiveAlertsFilter(t *testing.T) {
	e, _, _ := newTestEngine(t, 5*time.Minute)
	ctx := context.Background()

	prod, err := e.CreateAlert(ctx, latencySpike())
	require.NoError(t, err)

	staging := latencySpike()
	staging.Environment = "staging"
	_, err = e.CreateAlert(ctx, staging)
	require.NoError(t, err)

	gone := latencySpike()
	gone.Type = "error_rate"
	goneAlert, err := e.CreateAlert(ctx, gone)
	require.NoError(t, err)
	_, err = e.ResolveAlert(ctx, goneAlert.ID, "")
	require.NoError(t, err)

	got := e.GetActiveAlerts(types.Filter{Environment: "production"})
	require.Len(t, got, 1)
	assert.Equal(t, prod.ID, got[0].ID)

	assert.Empty(t, e.GetActiveAlerts(types.Filter{Environment: "production", Severity: types.SeverityCritical}))
	assert.Len(t, e.GetActiveAlerts(types.Filter{Source: "api-gw"}), 2)
	assert.Len(t, e.GetActiveAlerts(types.Filter{}), 2)
}

func TestGetAlertByIDUnknown(t *testing.T) {
	e, _, _ := newTestEngine(t, 5*time.Minute)

	_, ok := e.GetAlertByID("missing")
	assert.False(t, ok)
}

func TestReturnedAlertsAreCopies(t *testing.T) {
	e, _, _ := newTestEngine(t, 5*time.Minute)

	a, err := e.CreateAlert(context.Background(), latencySpike())
	require.NoError(t, err)
	a.Details["ratio"] = 99.0
	a.Status = types.StatusResolved

	stored, ok := e.GetAlertByID(a.ID)
	require.True(t, ok)
	assert.Equal(t, 2.3, stored.Details["ratio"])
	assert.Equal(t, types.StatusActive, stored.Status)
}

func TestStoredDetailsAreIsolatedFromCaller(t *testing.T) {
	e, _, _ := newTestEngine(t, 5*time.Minute)

	inner := map[string]any{"p99": 1}
	req := latencySpike()
	req.Details = map[string]any{"latency": inner}
	a, err := e.CreateAlert(context.Background(), req)
	require.NoError(t, err)

	inner["p99"] = 999

	got, ok := e.GetAlertByID(a.ID)
	require.True(t, ok)
	assert.Equal(t, 1, got.Details["latency"].(map[string]any)["p99"])
}

func TestHistoryRecordsEveryTransition(t *testing.T) {
	e, _, _ := newTestEngine(t, 5*time.Minute)
	ctx := context.Background()

	a, err := e.CreateAlert(ctx, latencySpike())
	require.NoError(t, err)
	_, err = e.CreateAlert(ctx, latencySpike())
	require.NoError(t, err)
	_, err = e.ResolveAlert(ctx, a.ID, "done")
	require.NoError(t, err)

	history := e.History()
	require.Len(t, history, 3)
	assert.Equal(t, OpCreated, history[0].Op)
	assert.Equal(t, 1, history[0].Alert.Count)
	assert.Equal(t, OpMerged, history[1].Op)
	assert.Equal(t, 2, history[1].Alert.Count)
	assert.Equal(t, OpResolved, history[2].Op)
	assert.Equal(t, types.StatusResolved, history[2].Alert.Status)
}

func TestConcurrentIdenticalCreatesInsertOnce(t *testing.T) {
	e, n, _ := newTestEngine(t, 5*time.Minute)

	const workers = 32
	var wg sync.WaitGroup
	ids := make([]string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := e.CreateAlert(context.Background(), latencySpike())
			if err == nil {
				ids[i] = a.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	active := e.GetActiveAlerts(types.Filter{})
	require.Len(t, active, 1)
	assert.Equal(t, workers, active[0].Count)
	created, _ := n.counts()
	assert.Equal(t, 1, created)
}

func TestConcurrentResolveSucceedsOnce(t *testing.T) {
	e, n, _ := newTestEngine(t, 5*time.Minute)

	req := latencySpike()
	req.Severity = types.SeverityError
	a, err := e.CreateAlert(context.Background(), req)
	require.NoError(t, err)

	const workers = 16
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		rejected  atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.ResolveAlert(context.Background(), a.ID, "")
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, ErrInvalidState):
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, int32(workers-1), rejected.Load())
	_, resolutions := n.counts()
	assert.Equal(t, 1, resolutions)
}

func TestEngineRecordsMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	clock := newTestClock()
	e := NewEngine(zerolog.Nop(), NewMemoryStore(), 5*time.Minute, &recordingNotifier{},
		WithClock(clock.Now), WithMetrics(m))
	ctx := context.Background()

	a, err := e.CreateAlert(ctx, latencySpike())
	require.NoError(t, err)
	_, err = e.CreateAlert(ctx, latencySpike())
	require.NoError(t, err)
	_, err = e.ResolveAlert(ctx, a.ID, "")
	require.NoError(t, err)

	assert.InDelta(t, 1, testutil.ToFloat64(m.AlertsCreated.WithLabelValues("warning")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.AlertsMerged.WithLabelValues("warning")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.AlertsResolved.WithLabelValues("warning", metrics.ReasonManual)), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.ActiveAlerts), 0)
}
