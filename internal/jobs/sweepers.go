// Package jobs hosts the periodic background loops: presence timeouts,
// quote expiry and RFQ closing. Each loop is a plain ticker goroutine
// stopped by context cancellation; all sweeps are safe to run on every
// replica because the underlying store operations are conditional
// updates.
package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// PresenceSweep times out vendors with stale heartbeats. Satisfied by
// presence.Tracker.
type PresenceSweep interface {
	SweepTimeouts(ctx context.Context) ([]string, error)
}

// QuoteSweep expires stale quotes and closes finished RFQs. Satisfied
// by ledger.Ledger.
type QuoteSweep interface {
	ExpireStaleQuotes(ctx context.Context) (int, error)
	CloseExpiredRFQs(ctx context.Context) (int, error)
}

// PresenceSweeper periodically flips silent vendors offline.
type PresenceSweeper struct {
	tracker  PresenceSweep
	interval time.Duration
	logger   *zap.Logger
}

func NewPresenceSweeper(tracker PresenceSweep, interval time.Duration, logger *zap.Logger) *PresenceSweeper {
	return &PresenceSweeper{tracker: tracker, interval: interval, logger: logger}
}

func (s *PresenceSweeper) Start(ctx context.Context) {
	s.logger.Info("jobs.presence_sweeper.start", zap.Duration("interval", s.interval))
	run(ctx, s.interval, func() {
		if _, err := s.tracker.SweepTimeouts(ctx); err != nil {
			s.logger.Warn("jobs.presence_sweeper.failed", zap.Error(err))
		}
	})
	s.logger.Info("jobs.presence_sweeper.stopped")
}

// QuoteExpirySweeper periodically expires quotes past their validity
// deadline. The accept path re-checks deadlines itself; this loop keeps
// stored statuses and vendor notifications current.
type QuoteExpirySweeper struct {
	ledger   QuoteSweep
	interval time.Duration
	logger   *zap.Logger
}

func NewQuoteExpirySweeper(ledger QuoteSweep, interval time.Duration, logger *zap.Logger) *QuoteExpirySweeper {
	return &QuoteExpirySweeper{ledger: ledger, interval: interval, logger: logger}
}

func (s *QuoteExpirySweeper) Start(ctx context.Context) {
	s.logger.Info("jobs.quote_expiry.start", zap.Duration("interval", s.interval))
	run(ctx, s.interval, func() {
		if _, err := s.ledger.ExpireStaleQuotes(ctx); err != nil {
			s.logger.Warn("jobs.quote_expiry.failed", zap.Error(err))
		}
	})
	s.logger.Info("jobs.quote_expiry.stopped")
}

// RFQCloseSweeper closes open RFQs whose quoting window has ended.
type RFQCloseSweeper struct {
	ledger   QuoteSweep
	interval time.Duration
	logger   *zap.Logger
}

func NewRFQCloseSweeper(ledger QuoteSweep, interval time.Duration, logger *zap.Logger) *RFQCloseSweeper {
	return &RFQCloseSweeper{ledger: ledger, interval: interval, logger: logger}
}

func (s *RFQCloseSweeper) Start(ctx context.Context) {
	s.logger.Info("jobs.rfq_close.start", zap.Duration("interval", s.interval))
	run(ctx, s.interval, func() {
		if _, err := s.ledger.CloseExpiredRFQs(ctx); err != nil {
			s.logger.Warn("jobs.rfq_close.failed", zap.Error(err))
		}
	})
	s.logger.Info("jobs.rfq_close.stopped")
}

func run(ctx context.Context, interval time.Duration, tick func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			tick()
		case <-ctx.Done():
			return
		}
	}
}
