package alerter

import (
	"time"

	"github.com/alertline/alertline/internal/types"
)

// Deduplicator finds a fresh active alert sharing a candidate's signature.
type Deduplicator struct {
	store  Store
	window time.Duration
}

// NewDeduplicator creates a deduplicator over store. A zero window disables
// matching entirely.
func NewDeduplicator(store Store, window time.Duration) *Deduplicator {
	return &Deduplicator{store: store, window: window}
}

// Window returns the configured deduplication window.
func (d *Deduplicator) Window() time.Duration {
	return d.window
}

// FindDuplicate returns the first active alert whose signature equals the
// candidate's and whose age does not exceed the window. When several match,
// the winner follows store iteration order.
func (d *Deduplicator) FindDuplicate(candidate types.Alert, now time.Time) (types.Alert, bool) {
	if d.window <= 0 {
		return types.Alert{}, false
	}

	want := candidate.Signature()
	var (
		match types.Alert
		found bool
	)
	d.store.Each(func(existing *types.Alert) bool {
		if !existing.IsActive() {
			return true
		}
		if now.Sub(existing.CreatedAt) > d.window {
			return true
		}
		if existing.Signature() != want {
			return true
		}
		match = existing.Clone()
		found = true
		return false
	})
	return match, found
}
