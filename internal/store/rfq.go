package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/freshhhy/rfq-engine/pkg/model"
)

const rfqColumns = `
	id, rfq_number, buyer_id, title, description, items,
	delivery_date, delivery_time, delivery_address,
	status, closes_at, winning_quote_id, cancellation_reason,
	created_at, closed_at`

func scanRFQ(row pgx.Row) (*model.RFQ, error) {
	var r model.RFQ
	err := row.Scan(
		&r.ID, &r.Number, &r.BuyerID, &r.Title, &r.Description, &r.Items,
		&r.DeliveryDate, &r.DeliveryTime, &r.DeliveryAddress,
		&r.Status, &r.ClosesAt, &r.WinningQuoteID, &r.CancellationReason,
		&r.CreatedAt, &r.ClosedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("rfq: %w", model.ErrNotFound)
		}
		return nil, err
	}
	return &r, nil
}

// InsertRFQ persists a newly created RFQ.
func (s *HybridStore) InsertRFQ(ctx context.Context, r *model.RFQ) error {
	_, err := s.PG.Exec(ctx, `
		INSERT INTO marketplace.rfqs (
			id, rfq_number, buyer_id, title, description, items,
			delivery_date, delivery_time, delivery_address,
			status, closes_at, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, r.ID, r.Number, r.BuyerID, r.Title, r.Description, r.Items,
		r.DeliveryDate, r.DeliveryTime, r.DeliveryAddress,
		r.Status, r.ClosesAt, r.CreatedAt)
	if err != nil {
		s.logger.Error("store.pg.insert_rfq_failed",
			zap.String("rfq_id", r.ID), zap.Error(err))
	}
	return err
}

// GetRFQ loads a single RFQ by id.
func (s *HybridStore) GetRFQ(ctx context.Context, id string) (*model.RFQ, error) {
	row := s.PG.QueryRow(ctx, `SELECT `+rfqColumns+` FROM marketplace.rfqs WHERE id = $1`, id)
	return scanRFQ(row)
}

// LoadRFQWithQuotes returns the RFQ and all its quotes in one round trip
// per table, cheapest first.
func (s *HybridStore) LoadRFQWithQuotes(ctx context.Context, id string) (*model.RFQ, []model.Quote, error) {
	r, err := s.GetRFQ(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.PG.Query(ctx, `
		SELECT `+quoteColumns+`
		FROM marketplace.quotes
		WHERE rfq_id = $1
		ORDER BY final_amount ASC, submitted_at ASC
	`, id)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var quotes []model.Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, nil, err
		}
		quotes = append(quotes, *q)
	}
	return r, quotes, rows.Err()
}

// CancelRFQ transitions an open RFQ to cancelled on behalf of its owner.
func (s *HybridStore) CancelRFQ(ctx context.Context, rfqID, buyerID, reason string, now time.Time) (*model.RFQ, error) {
	tx, err := s.PG.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	r, err := scanRFQ(tx.QueryRow(ctx,
		`SELECT `+rfqColumns+` FROM marketplace.rfqs WHERE id = $1 FOR UPDATE`, rfqID))
	if err != nil {
		return nil, err
	}
	if r.BuyerID != buyerID {
		return nil, fmt.Errorf("rfq %s: %w", rfqID, model.ErrUnauthorized)
	}
	if r.Status != model.RFQOpen {
		return nil, fmt.Errorf("rfq %s is %s: %w", rfqID, r.Status, model.ErrInvalidState)
	}

	_, err = tx.Exec(ctx, `
		UPDATE marketplace.rfqs
		SET status = $2, cancellation_reason = $3, closed_at = $4
		WHERE id = $1
	`, rfqID, model.RFQCancelled, reason, now)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	r.Status = model.RFQCancelled
	r.CancellationReason = reason
	r.ClosedAt = &now
	return r, nil
}

// CloseExpiredRFQs closes open RFQs whose closes_at has passed. Submit
// and accept re-check closes_at themselves; this sweep only tidies
// stored status for listings.
func (s *HybridStore) CloseExpiredRFQs(ctx context.Context, now time.Time) (int, error) {
	rows, err := s.PG.Query(ctx, `
		UPDATE marketplace.rfqs
		SET status = 'closed', closed_at = $1
		WHERE status = 'open' AND closes_at < $1
		RETURNING id
	`, now)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var closed int
	for rows.Next() {
		closed++
	}
	return closed, rows.Err()
}
