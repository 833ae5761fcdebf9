// Package liveness tracks which devices have reported recently.
//
// Entries live in process memory only: after a restart every device counts
// as disconnected until it reports again.
package liveness

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Notifier receives connect/disconnect transitions. Calls are made outside
// the map lock but are serialized, so a sink sees transitions in the order the
// map changed. A slow notifier delays ingest and sweep, not readers.
type Notifier interface {
	DeviceConnected(deviceID string, at time.Time)
	DeviceDisconnected(deviceID string, lastSeen, at time.Time)
}

type nopNotifier struct{}

func (nopNotifier) DeviceConnected(string, time.Time)             {}
func (nopNotifier) DeviceDisconnected(string, time.Time, time.Time) {}

type Tracker struct {
	// notifyMu orders map mutations together with their notifications.
	notifyMu  sync.Mutex
	mu        sync.RWMutex
	lastSeen  map[string]time.Time
	threshold time.Duration
	now       func() time.Time
	notify    Notifier
}

type Option func(*Tracker)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func WithNotifier(n Notifier) Option {
	return func(t *Tracker) {
		if n != nil {
			t.notify = n
		}
	}
}

func NewTracker(threshold time.Duration, opts ...Option) *Tracker {
	t := &Tracker{
		lastSeen:  make(map[string]time.Time),
		threshold: threshold,
		now:       time.Now,
		notify:    nopNotifier{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) Threshold() time.Duration { return t.threshold }

// Now reads the tracker's clock.
func (t *Tracker) Now() time.Time { return t.now() }

// Touch records a report from deviceID at now, overwriting any earlier
// instant. It returns true when the device had no entry.
func (t *Tracker) Touch(deviceID string, now time.Time) bool {
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()

	t.mu.Lock()
	_, seen := t.lastSeen[deviceID]
	t.lastSeen[deviceID] = now
	t.mu.Unlock()

	if !seen {
		t.notify.DeviceConnected(deviceID, now)
	}
	return !seen
}

// Sweep evicts every device whose last report is more than the threshold
// before now and returns the evicted ids in sorted order.
func (t *Tracker) Sweep(now time.Time) []string {
	type evicted struct {
		id       string
		lastSeen time.Time
	}
	var gone []evicted

	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()

	t.mu.Lock()
	for id, seen := range t.lastSeen {
		if now.Sub(seen) > t.threshold {
			gone = append(gone, evicted{id: id, lastSeen: seen})
			delete(t.lastSeen, id)
		}
	}
	t.mu.Unlock()

	sort.Slice(gone, func(i, j int) bool { return gone[i].id < gone[j].id })
	ids := make([]string, 0, len(gone))
	for _, g := range gone {
		t.notify.DeviceDisconnected(g.id, g.lastSeen, now)
		ids = append(ids, g.id)
	}
	return ids
}

// IsConnected answers from recency, independent of when the last sweep ran.
func (t *Tracker) IsConnected(deviceID string, now time.Time) bool {
	seen, ok := t.LastSeen(deviceID)
	return ok && now.Sub(seen) <= t.threshold
}

func (t *Tracker) LastSeen(deviceID string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	seen, ok := t.lastSeen[deviceID]
	return seen, ok
}

func (t *Tracker) Snapshot() map[string]time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]time.Time, len(t.lastSeen))
	for id, seen := range t.lastSeen {
		out[id] = seen
	}
	return out
}

func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.lastSeen)
}

// Run sweeps every interval until ctx is done.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = t.threshold
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep(t.now())
		}
	}
}
