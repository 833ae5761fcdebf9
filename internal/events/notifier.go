package events

import (
	"log/slog"
	"sync/atomic"
	"time"

	"devicepulse/internal/liveness"
	"devicepulse/internal/observability/metrics"
)

// LogNotifier logs liveness transitions and keeps the connected-devices gauge.
type LogNotifier struct {
	logger    *slog.Logger
	connected atomic.Int64
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) DeviceConnected(deviceID string, at time.Time) {
	metrics.SetDevicesConnected(int(n.connected.Add(1)))
	metrics.LivenessTransition("connected")
	n.logger.Info("new device connected", "device_id", deviceID, "at", at)
}

func (n *LogNotifier) DeviceDisconnected(deviceID string, lastSeen, at time.Time) {
	metrics.SetDevicesConnected(int(n.connected.Add(-1)))
	metrics.LivenessTransition("disconnected")
	n.logger.Info("device disconnected", "device_id", deviceID, "last_seen", lastSeen, "silent_for", at.Sub(lastSeen).String())
}

func (n *LogNotifier) Connected() int64 { return n.connected.Load() }

// Multi fans each transition out to every notifier in order.
type Multi []liveness.Notifier

func (m Multi) DeviceConnected(deviceID string, at time.Time) {
	for _, n := range m {
		n.DeviceConnected(deviceID, at)
	}
}

func (m Multi) DeviceDisconnected(deviceID string, lastSeen, at time.Time) {
	for _, n := range m {
		n.DeviceDisconnected(deviceID, lastSeen, at)
	}
}
