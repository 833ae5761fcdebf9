// Package mqtt feeds telemetry published to an MQTT broker into the same
// ingestion path as POST /api/stats.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"devicepulse/internal/dto"
	"devicepulse/internal/observability/metrics"
	"devicepulse/internal/service"

	paho "github.com/eclipse/paho.mqtt.golang"
)

type Ingester interface {
	Ingest(ctx context.Context, in service.IngestInput) (dto.IngestResponse, error)
}

type Config struct {
	BrokerURL string
	Topic     string
	ClientID  string
	Username  string
	Password  string
	// HandleTimeout bounds one message's validation and insert.
	HandleTimeout time.Duration
}

type Subscriber struct {
	client  paho.Client
	topic   string
	ingest  Ingester
	logger  *slog.Logger
	timeout time.Duration
}

func newSubscriber(cfg Config, ing Ingester, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HandleTimeout <= 0 {
		cfg.HandleTimeout = 10 * time.Second
	}
	return &Subscriber{topic: cfg.Topic, ingest: ing, logger: logger, timeout: cfg.HandleTimeout}
}

// Connect dials the broker and subscribes at QoS 1. The subscription is
// renewed on every reconnect.
func Connect(cfg Config, ing Ingester, logger *slog.Logger) (*Subscriber, error) {
	s := newSubscriber(cfg, ing, logger)

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(false)
	opts.SetConnectTimeout(10 * time.Second)
	opts.OnConnect = func(c paho.Client) {
		s.logger.Info("connected to mqtt broker", "broker", cfg.BrokerURL, "topic", s.topic)
		if tok := c.Subscribe(s.topic, 1, s.onMessage); tok.Wait() && tok.Error() != nil {
			s.logger.Error("mqtt subscribe failed", "topic", s.topic, "error", tok.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		s.logger.Warn("mqtt connection lost", "broker", cfg.BrokerURL, "error", err)
	}

	s.client = paho.NewClient(opts)
	if tok := s.client.Connect(); tok.Wait() && tok.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.BrokerURL, tok.Error())
	}
	return s, nil
}

func (s *Subscriber) onMessage(_ paho.Client, msg paho.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	res, err := s.ingest.Ingest(ctx, service.IngestInput{
		Body:         msg.Payload(),
		DeviceIDHint: deviceIDFromTopic(msg.Topic()),
	})
	if err != nil {
		var verr *service.ValidationError
		switch {
		case errors.As(err, &verr):
			metrics.ReportIngested("mqtt", "invalid")
			for _, v := range verr.Violations {
				metrics.ValidationFailure(v.Field)
			}
			s.logger.Warn("mqtt report rejected", "topic", msg.Topic(), "violations", verr.Violations)
		case errors.Is(err, service.ErrInvalidRequest):
			metrics.ReportIngested("mqtt", "invalid")
			s.logger.Warn("mqtt report rejected", "topic", msg.Topic(), "error", err)
		default:
			metrics.ReportIngested("mqtt", "failure")
			s.logger.Error("mqtt report save failed", "topic", msg.Topic(), "error", err)
		}
		return
	}
	metrics.ReportIngested("mqtt", "success")
	s.logger.Debug("mqtt report stored", "topic", msg.Topic(), "device_id", res.DeviceID, "report_id", res.ID)
}

// deviceIDFromTopic returns the last topic level, e.g. "pixel" for
// devicepulse/stats/pixel.
func deviceIDFromTopic(topic string) string {
	i := strings.LastIndexByte(topic, '/')
	last := topic[i+1:]
	if last == "+" || last == "#" {
		return ""
	}
	return last
}

// Close unsubscribes and disconnects, waiting up to quiesce for in-flight work.
func (s *Subscriber) Close(quiesce time.Duration) {
	if s.client == nil {
		return
	}
	if tok := s.client.Unsubscribe(s.topic); tok.WaitTimeout(quiesce) && tok.Error() != nil {
		s.logger.Warn("mqtt unsubscribe failed", "topic", s.topic, "error", tok.Error())
	}
	s.client.Disconnect(uint(quiesce.Milliseconds()))
}
