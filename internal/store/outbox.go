package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/freshhhy/rfq-engine/pkg/model"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *HybridStore) enqueueOutbox(ctx context.Context, q querier, envs []model.Envelope) error {
	for _, env := range envs {
		payload, err := json.Marshal(env)
		if err != nil {
			return err
		}
		_, err = q.Exec(ctx, `
			INSERT INTO marketplace.outbox (id, subject, event_type, payload, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, env.ID, env.Subject, env.EventType, payload, env.Timestamp)
		if err != nil {
			return err
		}
	}
	return nil
}

// EnqueueOutbox writes envelopes to the outbox for the dispatcher to
// deliver at least once.
func (s *HybridStore) EnqueueOutbox(ctx context.Context, envs []model.Envelope) error {
	if len(envs) == 0 {
		return nil
	}
	tx, err := s.PG.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := s.enqueueOutbox(ctx, tx, envs); err != nil {
		s.logger.Error("store.pg.outbox_enqueue_failed", zap.Error(err))
		return err
	}
	return tx.Commit(ctx)
}

// EnqueueRFQBroadcast writes the per-vendor rfq.created envelopes and
// flips the corresponding match rows to notified in one transaction, so
// a match row is only ever marked notified when its send was recorded.
func (s *HybridStore) EnqueueRFQBroadcast(ctx context.Context, rfqID string, vendorIDs []string, envs []model.Envelope, now time.Time) error {
	tx, err := s.PG.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := s.enqueueOutbox(ctx, tx, envs); err != nil {
		s.logger.Error("store.pg.outbox_enqueue_failed",
			zap.String("rfq_id", rfqID), zap.Error(err))
		return err
	}
	if err := s.markMatchesNotified(ctx, tx, rfqID, vendorIDs, now); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// DrainOutbox locks a batch of undispatched rows with SKIP LOCKED (safe
// to run on every replica), hands each to publish, and records the
// outcome. Failed rows keep their attempt count and are retried on the
// next drain.
func (s *HybridStore) DrainOutbox(ctx context.Context, limit int, now time.Time, publish func(model.OutboxEvent) error) (int, error) {
	tx, err := s.PG.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	rows, err := tx.Query(ctx, `
		SELECT id, subject, event_type, payload, attempts, created_at
		FROM marketplace.outbox
		WHERE dispatched_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return 0, err
	}

	var batch []model.OutboxEvent
	for rows.Next() {
		var ev model.OutboxEvent
		if err := rows.Scan(&ev.ID, &ev.Subject, &ev.EventType, &ev.Payload, &ev.Attempts, &ev.CreatedAt); err != nil {
			rows.Close()
			return 0, err
		}
		batch = append(batch, ev)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	var dispatched int
	for _, ev := range batch {
		if err := publish(ev); err != nil {
			s.logger.Warn("store.pg.outbox_publish_failed",
				zap.String("event_id", ev.ID.String()),
				zap.String("subject", ev.Subject),
				zap.Error(err))
			if _, err := tx.Exec(ctx,
				`UPDATE marketplace.outbox SET attempts = attempts + 1 WHERE id = $1`, ev.ID); err != nil {
				return dispatched, err
			}
			continue
		}
		if _, err := tx.Exec(ctx, `
			UPDATE marketplace.outbox
			SET dispatched_at = $2, attempts = attempts + 1
			WHERE id = $1
		`, ev.ID, now); err != nil {
			return dispatched, err
		}
		dispatched++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return dispatched, nil
}

// PendingOutbox counts rows awaiting dispatch.
func (s *HybridStore) PendingOutbox(ctx context.Context) (int, error) {
	var n int
	err := s.PG.QueryRow(ctx,
		`SELECT COUNT(*) FROM marketplace.outbox WHERE dispatched_at IS NULL`).Scan(&n)
	return n, err
}
