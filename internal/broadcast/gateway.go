// Package broadcast fans RFQ and quote events out to vendor and buyer
// push channels. Domain-significant events (rfq.created, quote.received,
// status changes on quotes and RFQs) go through the outbox table and are
// delivered at least once by the dispatcher; ephemeral presence events
// are published directly, best effort.
//
// Every method on Gateway is fire-and-forget relative to the triggering
// operation: failures are logged and swallowed, never returned, so a
// push outage can never fail RFQ creation or quote submission.
package broadcast

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/freshhhy/rfq-engine/internal/metrics"
	"github.com/freshhhy/rfq-engine/pkg/clock"
	"github.com/freshhhy/rfq-engine/pkg/model"
)

// OutboxStore persists envelopes for at-least-once dispatch.
type OutboxStore interface {
	EnqueueOutbox(ctx context.Context, envs []model.Envelope) error
	EnqueueRFQBroadcast(ctx context.Context, rfqID string, vendorIDs []string, envs []model.Envelope, now time.Time) error
}

// DirectPublisher pushes an envelope straight to NATS, bypassing the
// outbox. Used for presence chatter where loss is acceptable.
type DirectPublisher interface {
	PublishEnvelope(ctx context.Context, env *model.Envelope) error
}

// PresenceSubject is the broadcast subject dashboards subscribe to for
// vendor online/offline transitions.
const PresenceSubject = model.PushSubjectPrefix + ".presence"

// Gateway is the push fan-out boundary between the ledger/tracker and
// the transport.
type Gateway struct {
	outbox OutboxStore
	direct DirectPublisher
	clock  clock.Clock
	logger *zap.Logger
}

func NewGateway(outbox OutboxStore, direct DirectPublisher, clk clock.Clock, logger *zap.Logger) *Gateway {
	return &Gateway{outbox: outbox, direct: direct, clock: clk, logger: logger}
}

// PublishRfqCreated enqueues one rfq.created envelope per matched vendor
// and marks the match rows notified in the same transaction.
func (g *Gateway) PublishRfqCreated(ctx context.Context, rfq *model.RFQ, matches []model.VendorMatch) {
	if len(matches) == 0 {
		return
	}
	now := g.clock.Now()

	envs := make([]model.Envelope, 0, len(matches))
	vendorIDs := make([]string, 0, len(matches))
	for _, m := range matches {
		env, err := model.NewEnvelope(model.EventRFQCreated, model.Vendor(m.VendorID), now, model.RFQCreatedPayload{
			RFQID:        rfq.ID,
			RFQNumber:    rfq.Number,
			BuyerID:      rfq.BuyerID,
			Title:        rfq.Title,
			Items:        rfq.Items,
			DeliveryDate: rfq.DeliveryDate,
			ClosesAt:     rfq.ClosesAt,
			MatchScore:   m.MatchScore,
		})
		if err != nil {
			g.logger.Error("broadcast.rfq_created.marshal_failed",
				zap.String("rfq_id", rfq.ID), zap.Error(err))
			return
		}
		envs = append(envs, env)
		vendorIDs = append(vendorIDs, m.VendorID)
	}

	if err := g.outbox.EnqueueRFQBroadcast(ctx, rfq.ID, vendorIDs, envs, now); err != nil {
		g.logger.Error("broadcast.rfq_created.enqueue_failed",
			zap.String("rfq_id", rfq.ID),
			zap.Int("vendors", len(vendorIDs)),
			zap.Error(err))
		metrics.IncError("broadcast", "rfq_created_enqueue")
		return
	}
	g.logger.Info("broadcast.rfq_created",
		zap.String("rfq_id", rfq.ID),
		zap.Int("vendors", len(vendorIDs)))
}

// PublishQuoteReceived enqueues a quote.received envelope for the buyer,
// carrying the final amount, the validity deadline and any attachment
// metadata.
func (g *Gateway) PublishQuoteReceived(ctx context.Context, q *model.Quote, attachments []model.AttachmentMeta) {
	env, err := model.NewEnvelope(model.EventQuoteReceived, model.Buyer(q.BuyerID), g.clock.Now(), model.QuoteReceivedPayload{
		QuoteID:          q.ID,
		QuoteNumber:      q.Number,
		RFQID:            q.RFQID,
		VendorID:         q.VendorID,
		FinalAmount:      q.FinalAmount,
		ValidityDeadline: q.ValidityDeadline,
		LineItems:        q.LineItems,
		Attachments:      attachments,
	})
	if err != nil {
		g.logger.Error("broadcast.quote_received.marshal_failed",
			zap.String("quote_id", q.ID), zap.Error(err))
		return
	}

	if err := g.outbox.EnqueueOutbox(ctx, []model.Envelope{env}); err != nil {
		g.logger.Error("broadcast.quote_received.enqueue_failed",
			zap.String("quote_id", q.ID), zap.Error(err))
		metrics.IncError("broadcast", "quote_received_enqueue")
		return
	}
	g.logger.Info("broadcast.quote_received",
		zap.String("quote_id", q.ID),
		zap.String("buyer_id", q.BuyerID))
}

// PublishStatusChange enqueues a generic status.changed envelope for a
// specific party.
func (g *Gateway) PublishStatusChange(ctx context.Context, recipient model.Party, payload model.StatusChangedPayload) {
	env, err := model.NewEnvelope(model.EventStatusChanged, recipient, g.clock.Now(), payload)
	if err != nil {
		g.logger.Error("broadcast.status_change.marshal_failed", zap.Error(err))
		return
	}
	if err := g.outbox.EnqueueOutbox(ctx, []model.Envelope{env}); err != nil {
		g.logger.Error("broadcast.status_change.enqueue_failed",
			zap.String("entity_id", payload.EntityID),
			zap.String("new_state", payload.NewState),
			zap.Error(err))
		metrics.IncError("broadcast", "status_change_enqueue")
	}
}

// PublishPresenceChange publishes a vendor presence transition directly
// to the shared presence subject. No outbox: presence is ephemeral and
// the next transition supersedes a lost one.
func (g *Gateway) PublishPresenceChange(ctx context.Context, payload model.StatusChangedPayload) {
	env, err := model.NewEnvelope(model.EventStatusChanged, model.Party{Kind: model.PartyAdmin, ID: "presence"}, g.clock.Now(), payload)
	if err != nil {
		g.logger.Error("broadcast.presence.marshal_failed", zap.Error(err))
		return
	}
	env.Subject = PresenceSubject

	if err := g.direct.PublishEnvelope(ctx, &env); err != nil {
		g.logger.Warn("broadcast.presence.publish_failed",
			zap.String("vendor_id", payload.EntityID),
			zap.Error(err))
	}
}
