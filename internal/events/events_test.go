package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type fakeChannel struct {
	published []amqp.Publishing
	keys      []string
	err       error
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error { return nil }

func TestAMQPPublisherRoutingAndBody(t *testing.T) {
	ch := &fakeChannel{}
	p := newAMQPPublisher(ch, "devicepulse.liveness", slog.Default())
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	p.DeviceConnected("dev-1", at)
	p.DeviceDisconnected("dev-1", at, at.Add(2*time.Minute))

	if len(ch.keys) != 2 || ch.keys[0] != RoutingKeyConnected || ch.keys[1] != RoutingKeyDisconnected {
		t.Fatalf("unexpected routing keys: %v", ch.keys)
	}
	var evt LivenessEvent
	if err := json.Unmarshal(ch.published[1].Body, &evt); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if evt.DeviceID != "dev-1" || evt.LastSeen == nil || !evt.LastSeen.Equal(at) {
		t.Fatalf("unexpected event: %+v", evt)
	}
	if ch.published[0].ContentType != "application/json" {
		t.Fatalf("unexpected content type %q", ch.published[0].ContentType)
	}
}

func TestAMQPPublishFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	p := newAMQPPublisher(&fakeChannel{err: errors.New("channel closed")}, "x", logger)

	p.DeviceConnected("dev-1", time.Now())

	if !strings.Contains(buf.String(), "amqp publish failed") {
		t.Fatalf("expected publish failure to be logged, got %q", buf.String())
	}
}

func TestMultiAndLogNotifierCount(t *testing.T) {
	var buf bytes.Buffer
	logNotifier := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))
	ch := &fakeChannel{}
	m := Multi{logNotifier, newAMQPPublisher(ch, "x", slog.Default())}
	at := time.Now()

	m.DeviceConnected("a", at)
	m.DeviceConnected("b", at)
	m.DeviceDisconnected("a", at, at.Add(time.Minute))

	if logNotifier.Connected() != 1 {
		t.Fatalf("expected one connected device, got %d", logNotifier.Connected())
	}
	if len(ch.published) != 3 {
		t.Fatalf("expected every transition to reach the publisher, got %d", len(ch.published))
	}
	if !strings.Contains(buf.String(), "device disconnected") {
		t.Fatalf("expected disconnect log line")
	}
}
