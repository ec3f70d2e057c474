package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// DBExecutor is the minimal subset of pgxpool.Pool the refresher needs.
type DBExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// RawPublisher publishes an already-serialized payload to a subject.
// Satisfied by publisher.Publisher.
type RawPublisher interface {
	PublishRaw(ctx context.Context, subject string, data []byte) error
}

// SummaryRefresher periodically refreshes the RFQ daily summary
// materialized view (per-day RFQ, quote and conversion counts backing
// the admin dashboard) and emits a NATS event when recalculation
// completes.
type SummaryRefresher struct {
	logger    *zap.Logger
	db        DBExecutor
	publisher RawPublisher
	interval  time.Duration
}

func NewSummaryRefresher(logger *zap.Logger, db DBExecutor, pub RawPublisher, interval time.Duration) *SummaryRefresher {
	return &SummaryRefresher{
		logger:    logger,
		db:        db,
		publisher: pub,
		interval:  interval,
	}
}

// Start runs the refresh loop (typically every 24h) until ctx is done.
func (r *SummaryRefresher) Start(ctx context.Context) {
	r.logger.Info("jobs.summary_refresher.start", zap.Duration("interval", r.interval))
	run(ctx, r.interval, func() { r.runOnce(ctx) })
	r.logger.Info("jobs.summary_refresher.stopped")
}

func (r *SummaryRefresher) runOnce(ctx context.Context) {
	start := time.Now()

	_, err := r.db.Exec(ctx, `REFRESH MATERIALIZED VIEW CONCURRENTLY marketplace.rfq_daily_summary`)
	if err != nil {
		r.logger.Error("jobs.summary_refresher.refresh_failed", zap.Error(err))
		return
	}

	event, err := json.Marshal(map[string]any{
		"event":       "marketplace.summary.refreshed",
		"timestamp":   time.Now().UTC(),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	if err == nil {
		if err := r.publisher.PublishRaw(ctx, "marketplace.summary.refreshed", event); err != nil {
			r.logger.Warn("jobs.summary_refresher.publish_failed", zap.Error(err))
		}
	}

	r.logger.Info("jobs.summary_refresher.success",
		zap.Duration("duration", time.Since(start)))
}
