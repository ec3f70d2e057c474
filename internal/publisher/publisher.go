// Package publisher wraps a NATS JetStream connection for publishing
// canonical event envelopes.
package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/freshhhy/rfq-engine/internal/metrics"
	"github.com/freshhhy/rfq-engine/pkg/model"
)

// JetStream is the subset of nats.JetStreamContext the publisher needs;
// tests substitute a mock.
type JetStream interface {
	PublishMsg(msg *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Publisher publishes envelopes to NATS with JetStream acknowledgement.
type Publisher struct {
	nc      *nats.Conn
	js      JetStream
	service string
	logger  *zap.Logger
}

// New creates a new Publisher with JetStream enabled.
func New(nc *nats.Conn, service string, logger *zap.Logger) (*Publisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	return &Publisher{nc: nc, js: js, service: service, logger: logger}, nil
}

// NewWithJetStream wires an explicit JetStream implementation (tests).
func NewWithJetStream(js JetStream, service string, logger *zap.Logger) *Publisher {
	return &Publisher{js: js, service: service, logger: logger}
}

// PublishEnvelope serializes and publishes an envelope to its subject.
func (p *Publisher) PublishEnvelope(ctx context.Context, env *model.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		p.logger.Error("publisher.marshal_failed",
			zap.String("subject", env.Subject),
			zap.String("event_type", env.EventType),
			zap.Error(err))
		metrics.IncError("publisher", "marshal_failed")
		return err
	}

	msg := &nats.Msg{
		Subject: env.Subject,
		Data:    data,
		Header: nats.Header{
			"event_type":     []string{env.EventType},
			"correlation_id": []string{env.CorrelationID.String()},
			"service":        []string{p.service},
			"content_type":   []string{"application/json"},
			"recipient":      []string{env.Recipient.Channel()},
		},
	}

	start := time.Now()
	_, err = p.js.PublishMsg(msg)
	metrics.ObserveDuration(metrics.NATSMessageLatency.WithLabelValues(env.Subject), start)

	if err != nil {
		p.logger.Error("publisher.publish_failed",
			zap.String("subject", env.Subject),
			zap.String("event_type", env.EventType),
			zap.Error(err))
		metrics.IncNATSMessage(env.Subject, "error")
		return err
	}

	metrics.IncNATSMessage(env.Subject, "ok")
	return nil
}

// PublishRaw publishes an already-serialized envelope, used by the
// outbox dispatcher which stores payloads verbatim.
func (p *Publisher) PublishRaw(ctx context.Context, subject string, data []byte) error {
	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header:  nats.Header{"service": []string{p.service}},
	}

	start := time.Now()
	_, err := p.js.PublishMsg(msg)
	metrics.ObserveDuration(metrics.NATSMessageLatency.WithLabelValues(subject), start)

	if err != nil {
		metrics.IncNATSMessage(subject, "error")
		return err
	}
	metrics.IncNATSMessage(subject, "ok")
	return nil
}

func (p *Publisher) Close() {
	if p.nc != nil && p.nc.IsConnected() {
		p.nc.Close()
	}
}
