// Package notify hands notification jobs (email, SMS) to RabbitMQ for
// the notification workers to deliver. Everything here is best effort:
// a broker outage costs notifications, never domain writes.
package notify

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/freshhhy/rfq-engine/internal/metrics"
	"github.com/freshhhy/rfq-engine/pkg/model"
)

const (
	exchange   = "marketplace.notifications"
	publishTTL = 5 * time.Second
)

// Job is the unit of work handed to the notification workers.
type Job struct {
	Type      string         `json:"type"`
	Recipient model.Party    `json:"recipient"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
}

// Notifier publishes notification jobs to a topic exchange, routed by
// job type (e.g. "quote.accepted" -> vendor email worker).
type Notifier struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *zap.Logger
}

// New connects to RabbitMQ and declares the notification exchange.
func New(url string, logger *zap.Logger) (*Notifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	logger.Info("notify.connected", zap.String("exchange", exchange))
	return &Notifier{conn: conn, channel: ch, logger: logger}, nil
}

func (n *Notifier) Close() {
	if n.channel != nil {
		n.channel.Close()
	}
	if n.conn != nil && !n.conn.IsClosed() {
		n.conn.Close()
	}
}

// QuoteSubmitted tells the buyer a vendor has quoted.
func (n *Notifier) QuoteSubmitted(ctx context.Context, q *model.Quote) {
	n.publish(ctx, Job{
		Type:      "quote.submitted",
		Recipient: model.Buyer(q.BuyerID),
		Data: map[string]any{
			"quote_id":     q.ID,
			"quote_number": q.Number,
			"rfq_id":       q.RFQID,
			"vendor_id":    q.VendorID,
			"final_amount": q.FinalAmount.String(),
		},
	})
}

// QuoteAccepted tells the winning vendor their quote was accepted.
func (n *Notifier) QuoteAccepted(ctx context.Context, q *model.Quote) {
	n.publish(ctx, Job{
		Type:      "quote.accepted",
		Recipient: model.Vendor(q.VendorID),
		Data: map[string]any{
			"quote_id":     q.ID,
			"quote_number": q.Number,
			"rfq_id":       q.RFQID,
			"final_amount": q.FinalAmount.String(),
		},
	})
}

// QuoteRejected tells a losing vendor, with the recorded reason.
func (n *Notifier) QuoteRejected(ctx context.Context, q *model.Quote, reason string) {
	n.publish(ctx, Job{
		Type:      "quote.rejected",
		Recipient: model.Vendor(q.VendorID),
		Data: map[string]any{
			"quote_id":     q.ID,
			"quote_number": q.Number,
			"rfq_id":       q.RFQID,
			"reason":       reason,
		},
	})
}

// RFQCancelled tells every vendor with a live quote that the RFQ is gone.
func (n *Notifier) RFQCancelled(ctx context.Context, rfq *model.RFQ, vendorIDs []string) {
	for _, vendorID := range vendorIDs {
		n.publish(ctx, Job{
			Type:      "rfq.cancelled",
			Recipient: model.Vendor(vendorID),
			Data: map[string]any{
				"rfq_id":     rfq.ID,
				"rfq_number": rfq.Number,
				"reason":     rfq.CancellationReason,
			},
		})
	}
}

func (n *Notifier) publish(ctx context.Context, job Job) {
	job.CreatedAt = time.Now().UTC()

	body, err := json.Marshal(job)
	if err != nil {
		n.logger.Error("notify.marshal_failed", zap.String("type", job.Type), zap.Error(err))
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTTL)
	defer cancel()

	err = n.channel.PublishWithContext(pubCtx, exchange, job.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    job.CreatedAt,
		Body:         body,
	})
	if err != nil {
		n.logger.Warn("notify.publish_failed",
			zap.String("type", job.Type),
			zap.String("recipient", job.Recipient.Channel()),
			zap.Error(err))
		metrics.IncError("notify", "publish_failed")
		return
	}

	n.logger.Debug("notify.published",
		zap.String("type", job.Type),
		zap.String("recipient", job.Recipient.Channel()))
}
