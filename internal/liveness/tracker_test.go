package liveness

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"
)

type recordingNotifier struct {
	mu           sync.Mutex
	connected    []string
	disconnected []string
}

func (r *recordingNotifier) DeviceConnected(id string, _ time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = append(r.connected, id)
}

func (r *recordingNotifier) DeviceDisconnected(id string, _, _ time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnected = append(r.disconnected, id)
}

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestTouchReportsNewDevicesOnce(t *testing.T) {
	rec := &recordingNotifier{}
	tr := NewTracker(time.Minute, WithNotifier(rec))

	if !tr.Touch("a", t0) {
		t.Fatalf("first touch should be a new device")
	}
	if tr.Touch("a", t0.Add(10*time.Second)) {
		t.Fatalf("second touch should refresh, not connect")
	}
	seen, ok := tr.LastSeen("a")
	if !ok || !seen.Equal(t0.Add(10*time.Second)) {
		t.Fatalf("expected refreshed last-seen, got %v %v", seen, ok)
	}
	if !reflect.DeepEqual(rec.connected, []string{"a"}) {
		t.Fatalf("unexpected connect notifications: %v", rec.connected)
	}
}

func TestSweepThresholdBoundary(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		evicted bool
	}{
		{name: "well within", elapsed: 10 * time.Second, evicted: false},
		{name: "exactly threshold", elapsed: time.Minute, evicted: false},
		{name: "just past threshold", elapsed: time.Minute + time.Millisecond, evicted: true},
		{name: "long gone", elapsed: time.Hour, evicted: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tr := NewTracker(time.Minute)
			tr.Touch("d", t0)
			gone := tr.Sweep(t0.Add(tc.elapsed))
			_, still := tr.LastSeen("d")
			if tc.evicted {
				if still || !reflect.DeepEqual(gone, []string{"d"}) {
					t.Fatalf("expected eviction, got gone=%v still=%v", gone, still)
				}
			} else if !still || len(gone) != 0 {
				t.Fatalf("expected entry kept, got gone=%v still=%v", gone, still)
			}
		})
	}
}

func TestSweepNotifiesSortedAndOnlyStale(t *testing.T) {
	rec := &recordingNotifier{}
	tr := NewTracker(time.Minute, WithNotifier(rec))
	tr.Touch("zeta", t0)
	tr.Touch("alpha", t0)
	tr.Touch("fresh", t0.Add(90*time.Second))

	gone := tr.Sweep(t0.Add(2 * time.Minute))
	if !reflect.DeepEqual(gone, []string{"alpha", "zeta"}) {
		t.Fatalf("unexpected evictions: %v", gone)
	}
	if !reflect.DeepEqual(rec.disconnected, []string{"alpha", "zeta"}) {
		t.Fatalf("unexpected disconnect notifications: %v", rec.disconnected)
	}
	if tr.Len() != 1 {
		t.Fatalf("expected one remaining entry, got %d", tr.Len())
	}

	// Reconnecting after eviction is a new-device transition again.
	if !tr.Touch("alpha", t0.Add(3*time.Minute)) {
		t.Fatalf("expected re-touch after eviction to be new")
	}
}

func TestIsConnectedIgnoresSweepSchedule(t *testing.T) {
	tr := NewTracker(time.Minute)
	tr.Touch("d", t0)

	if !tr.IsConnected("d", t0.Add(time.Minute)) {
		t.Fatalf("expected connected at the threshold")
	}
	// Not swept yet, but already past the threshold.
	if tr.IsConnected("d", t0.Add(90*time.Second)) {
		t.Fatalf("expected disconnected past the threshold before any sweep")
	}
	if tr.IsConnected("unknown", t0) {
		t.Fatalf("unknown device must not be connected")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	tr := NewTracker(time.Minute)
	tr.Touch("d", t0)
	snap := tr.Snapshot()
	delete(snap, "d")
	if tr.Len() != 1 {
		t.Fatalf("mutating snapshot changed tracker state")
	}
}

func TestConcurrentTouchAndSweep(t *testing.T) {
	tr := NewTracker(time.Millisecond)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				tr.Touch(string(rune('a'+i)), t0.Add(time.Duration(j)*time.Millisecond))
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				tr.Sweep(t0.Add(time.Duration(j) * time.Millisecond))
			}
		}()
	}
	wg.Wait()
}

func TestRunSweepsUntilCanceled(t *testing.T) {
	var (
		mu  sync.Mutex
		now = t0
	)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	tr := NewTracker(time.Minute, WithClock(clock))
	tr.Touch("d", t0)

	mu.Lock()
	now = t0.Add(2 * time.Minute)
	mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tr.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for tr.Len() != 0 {
		select {
		case <-deadline:
			t.Fatalf("sweep loop never evicted the stale device")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

// gatedNotifier holds DeviceDisconnected until release is closed.
type gatedNotifier struct {
	mu       sync.Mutex
	events   []string
	entered  chan struct{}
	release  chan struct{}
	gateOnce sync.Once
}

func (g *gatedNotifier) record(ev string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events = append(g.events, ev)
}

func (g *gatedNotifier) DeviceConnected(string, time.Time) { g.record("connected") }

func (g *gatedNotifier) DeviceDisconnected(string, time.Time, time.Time) {
	g.gateOnce.Do(func() {
		close(g.entered)
		<-g.release
	})
	g.record("disconnected")
}

func TestSlowDisconnectIsNotOvertakenByReconnect(t *testing.T) {
	n := &gatedNotifier{entered: make(chan struct{}), release: make(chan struct{})}
	tr := NewTracker(time.Minute, WithNotifier(n))
	tr.Touch("d", t0)

	later := t0.Add(2 * time.Minute)
	sweepDone := make(chan struct{})
	go func() {
		tr.Sweep(later)
		close(sweepDone)
	}()
	<-n.entered

	touchDone := make(chan struct{})
	go func() {
		tr.Touch("d", later)
		close(touchDone)
	}()

	select {
	case <-touchDone:
		t.Fatalf("reconnect notified while the disconnect was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(n.release)
	<-sweepDone
	<-touchDone

	n.mu.Lock()
	defer n.mu.Unlock()
	want := []string{"connected", "disconnected", "connected"}
	if !reflect.DeepEqual(n.events, want) {
		t.Fatalf("expected %v, got %v", want, n.events)
	}
	if !tr.IsConnected("d", later) {
		t.Fatalf("device should be connected after the reconnect")
	}
}

func TestReadersDoNotWaitForSlowNotifier(t *testing.T) {
	n := &gatedNotifier{entered: make(chan struct{}), release: make(chan struct{})}
	tr := NewTracker(time.Minute, WithNotifier(n))
	tr.Touch("d", t0)
	tr.Touch("e", t0.Add(90*time.Second))

	go tr.Sweep(t0.Add(2 * time.Minute))
	<-n.entered
	defer close(n.release)

	done := make(chan struct{})
	go func() {
		_ = tr.IsConnected("e", t0.Add(2*time.Minute))
		_ = tr.Snapshot()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("readers blocked behind a slow notifier")
	}
}
