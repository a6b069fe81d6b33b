package alerter

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/alertline/alertline/internal/types"
)

func TestSweepResolvesStaleAlerts(t *testing.T) {
	e, n, clock := newTestEngine(t, 5*time.Minute)
	ctx := context.Background()

	stale := latencySpike()
	stale.Severity = types.SeverityCritical
	staleAlert, err := e.CreateAlert(ctx, stale)
	require.NoError(t, err)

	clock.Advance(50 * time.Minute)
	fresh, err := e.CreateAlert(ctx, latencySpike())
	require.NoError(t, err)

	clock.Advance(11 * time.Minute)
	s := NewSweeper(zerolog.Nop(), e, time.Hour, time.Minute)

	assert.Equal(t, 1, s.Sweep(ctx))

	got, _ := e.GetAlertByID(staleAlert.ID)
	assert.Equal(t, types.StatusResolved, got.Status)
	require.NotNil(t, got.ResolutionMessage)
	assert.Equal(t, "auto-resolved after 1h0m0s without activity", *got.ResolutionMessage)

	stillActive, _ := e.GetAlertByID(fresh.ID)
	assert.Equal(t, types.StatusActive, stillActive.Status)

	_, resolutions := n.counts()
	assert.Equal(t, 1, resolutions)
}

func TestSweepUsesLastActivity(t *testing.T) {
	e, _, clock := newTestEngine(t, 2*time.Hour)
	ctx := context.Background()

	a, err := e.CreateAlert(ctx, latencySpike())
	require.NoError(t, err)

	clock.Advance(50 * time.Minute)
	_, err = e.CreateAlert(ctx, latencySpike())
	require.NoError(t, err)

	clock.Advance(20 * time.Minute)
	s := NewSweeper(zerolog.Nop(), e, time.Hour, time.Minute)
	assert.Zero(t, s.Sweep(ctx), "a merge counts as activity")

	got, _ := e.GetAlertByID(a.ID)
	assert.Equal(t, types.StatusActive, got.Status)
}

// racingStore runs afterList once, right after the first ListActive returns.
type racingStore struct {
	*MemoryStore
	afterList func()
}

func (s *racingStore) ListActive(filter types.Filter) []types.Alert {
	out := s.MemoryStore.ListActive(filter)
	if hook := s.afterList; hook != nil {
		s.afterList = nil
		hook()
	}
	return out
}

func TestSweepSkipsAlertMergedAfterListing(t *testing.T) {
	n := &recordingNotifier{}
	clock := newTestClock()
	store := &racingStore{MemoryStore: NewMemoryStore()}
	e := NewEngine(zerolog.Nop(), store, 3*time.Hour, n,
		WithClock(clock.Now),
		WithIDGenerator(sequentialIDs()),
	)
	ctx := context.Background()

	a, err := e.CreateAlert(ctx, latencySpike())
	require.NoError(t, err)

	clock.Advance(61 * time.Minute)
	store.afterList = func() {
		_, err := e.CreateAlert(ctx, latencySpike())
		require.NoError(t, err)
	}

	s := NewSweeper(zerolog.Nop(), e, time.Hour, time.Minute)
	assert.Zero(t, s.Sweep(ctx))

	got, ok := e.GetAlertByID(a.ID)
	require.True(t, ok)
	assert.Equal(t, types.StatusActive, got.Status)
	assert.Equal(t, 2, got.Count)
	assert.Nil(t, got.ResolvedAt)

	_, resolutions := n.counts()
	assert.Zero(t, resolutions)
}

func TestSweepSkipsAlreadyResolved(t *testing.T) {
	e, _, clock := newTestEngine(t, 5*time.Minute)
	ctx := context.Background()

	a, err := e.CreateAlert(ctx, latencySpike())
	require.NoError(t, err)
	_, err = e.ResolveAlert(ctx, a.ID, "manual")
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	s := NewSweeper(zerolog.Nop(), e, time.Hour, time.Minute)
	assert.Zero(t, s.Sweep(ctx))

	got, _ := e.GetAlertByID(a.ID)
	assert.Equal(t, "manual", *got.ResolutionMessage)
}

func TestDisabledSweeper(t *testing.T) {
	defer goleak.VerifyNone(t)

	e, _, clock := newTestEngine(t, 5*time.Minute)
	_, err := e.CreateAlert(context.Background(), latencySpike())
	require.NoError(t, err)
	clock.Advance(24 * time.Hour)

	s := NewSweeper(zerolog.Nop(), e, 0, time.Millisecond)
	assert.False(t, s.Enabled())
	assert.Zero(t, s.Sweep(context.Background()))

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled sweeper did not return")
	}
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	e, _, clock := newTestEngine(t, 5*time.Minute)
	a, err := e.CreateAlert(context.Background(), latencySpike())
	require.NoError(t, err)
	clock.Advance(2 * time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	s := NewSweeper(zerolog.Nop(), e, time.Hour, 5*time.Millisecond)
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		got, _ := e.GetAlertByID(a.ID)
		return got.Status == types.StatusResolved
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
