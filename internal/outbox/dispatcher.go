// Package outbox drains the persisted event outbox to NATS. Writing the
// envelope row and the domain mutation together, then publishing from
// here, keeps push delivery decoupled from domain transactions: a NATS
// outage delays events instead of failing or rolling back writes.
package outbox

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/freshhhy/rfq-engine/internal/metrics"
	"github.com/freshhhy/rfq-engine/pkg/clock"
	"github.com/freshhhy/rfq-engine/pkg/model"
)

// Store is the outbox persistence contract, satisfied by
// store.HybridStore.
type Store interface {
	DrainOutbox(ctx context.Context, limit int, now time.Time, publish func(model.OutboxEvent) error) (int, error)
	PendingOutbox(ctx context.Context) (int, error)
}

// Publisher delivers a raw serialized envelope to a subject.
type Publisher interface {
	PublishRaw(ctx context.Context, subject string, data []byte) error
}

// Dispatcher periodically drains undispatched outbox rows. Multiple
// replicas can run it concurrently; SKIP LOCKED row claims keep them
// from double-publishing within a drain.
type Dispatcher struct {
	store     Store
	publisher Publisher
	clock     clock.Clock
	interval  time.Duration
	batchSize int
	logger    *zap.Logger
}

func NewDispatcher(store Store, publisher Publisher, clk clock.Clock, interval time.Duration, batchSize int, logger *zap.Logger) *Dispatcher {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Dispatcher{
		store:     store,
		publisher: publisher,
		clock:     clk,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Start runs the drain loop until context cancellation.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("outbox.dispatcher.start",
		zap.Duration("interval", d.interval),
		zap.Int("batch_size", d.batchSize))

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := d.drain(ctx); err != nil {
				d.logger.Warn("outbox.dispatcher.drain_failed", zap.Error(err))
			}
		case <-ctx.Done():
			d.logger.Info("outbox.dispatcher.stopped")
			return
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) error {
	dispatched, err := d.store.DrainOutbox(ctx, d.batchSize, d.clock.Now(), func(ev model.OutboxEvent) error {
		return d.publisher.PublishRaw(ctx, ev.Subject, ev.Payload)
	})
	if err != nil {
		return err
	}

	if dispatched > 0 {
		d.logger.Debug("outbox.dispatcher.drained", zap.Int("dispatched", dispatched))
	}
	if pending, err := d.store.PendingOutbox(ctx); err == nil {
		metrics.OutboxPending.Set(float64(pending))
	}
	return nil
}
