package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/freshhhy/rfq-engine/pkg/model"
)

const quoteColumns = `
	id, quote_number, rfq_id, vendor_id, buyer_id,
	subtotal, tax_amount, delivery_charge, discount_amount, final_amount,
	line_items, notes, validity_deadline, status, revision_number,
	rejection_reason, submitted_at, accepted_at, rejected_at`

func scanQuote(row pgx.Row) (*model.Quote, error) {
	var q model.Quote
	err := row.Scan(
		&q.ID, &q.Number, &q.RFQID, &q.VendorID, &q.BuyerID,
		&q.Subtotal, &q.TaxAmount, &q.DeliveryCharge, &q.DiscountAmount, &q.FinalAmount,
		&q.LineItems, &q.Notes, &q.ValidityDeadline, &q.Status, &q.RevisionNumber,
		&q.RejectionReason, &q.SubmittedAt, &q.AcceptedAt, &q.RejectedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("quote: %w", model.ErrNotFound)
		}
		return nil, err
	}
	return &q, nil
}

// GetQuote loads a single quote by id.
func (s *HybridStore) GetQuote(ctx context.Context, id string) (*model.Quote, error) {
	row := s.PG.QueryRow(ctx, `SELECT `+quoteColumns+` FROM marketplace.quotes WHERE id = $1`, id)
	return scanQuote(row)
}

// CountVendorQuotes returns how many quotes the vendor has already
// submitted against the RFQ (drives the revision number).
func (s *HybridStore) CountVendorQuotes(ctx context.Context, rfqID, vendorID string) (int, error) {
	var n int
	err := s.PG.QueryRow(ctx, `
		SELECT COUNT(*) FROM marketplace.quotes
		WHERE rfq_id = $1 AND vendor_id = $2
	`, rfqID, vendorID).Scan(&n)
	return n, err
}

// InsertQuote persists a new quote and flips the vendor's match record to
// responded in the same transaction.
func (s *HybridStore) InsertQuote(ctx context.Context, q *model.Quote) error {
	tx, err := s.PG.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, `
		INSERT INTO marketplace.quotes (
			id, quote_number, rfq_id, vendor_id, buyer_id,
			subtotal, tax_amount, delivery_charge, discount_amount, final_amount,
			line_items, notes, validity_deadline, status, revision_number, submitted_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, q.ID, q.Number, q.RFQID, q.VendorID, q.BuyerID,
		q.Subtotal, q.TaxAmount, q.DeliveryCharge, q.DiscountAmount, q.FinalAmount,
		q.LineItems, q.Notes, q.ValidityDeadline, q.Status, q.RevisionNumber, q.SubmittedAt)
	if err != nil {
		s.logger.Error("store.pg.insert_quote_failed",
			zap.String("quote_id", q.ID), zap.Error(err))
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE marketplace.rfq_vendor_matches
		SET vendor_responded = TRUE, responded_at = $3
		WHERE rfq_id = $1 AND vendor_id = $2
	`, q.RFQID, q.VendorID, q.SubmittedAt)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// AcceptResult is the outcome of a successful quote acceptance.
type AcceptResult struct {
	Winner           model.Quote
	RFQ              model.RFQ
	RejectedQuoteIDs []string
}

// AcceptQuote is the critical accept-one transition. Within one
// transaction it locks the RFQ row, validates ownership, status and the
// validity deadline, accepts the winner, rejects every sibling and
// closes the RFQ with the winning quote id. The final UPDATE carries a
// status='open' guard so two racing accepts can never both commit. On a
// serialization conflict the transaction is retried once; a second
// failure surfaces as ErrAlreadyClosed.
func (s *HybridStore) AcceptQuote(ctx context.Context, quoteID, buyerID string, now time.Time) (*AcceptResult, error) {
	res, err := s.acceptQuoteTx(ctx, quoteID, buyerID, now)
	if err != nil && isSerializationFailure(err) {
		s.logger.Warn("store.pg.accept_conflict_retry", zap.String("quote_id", quoteID))
		res, err = s.acceptQuoteTx(ctx, quoteID, buyerID, now)
		if err != nil && isSerializationFailure(err) {
			return nil, fmt.Errorf("accept quote %s: %w", quoteID, model.ErrAlreadyClosed)
		}
	}
	return res, err
}

func (s *HybridStore) acceptQuoteTx(ctx context.Context, quoteID, buyerID string, now time.Time) (*AcceptResult, error) {
	tx, err := s.PG.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	q, err := scanQuote(tx.QueryRow(ctx,
		`SELECT `+quoteColumns+` FROM marketplace.quotes WHERE id = $1`, quoteID))
	if err != nil {
		return nil, err
	}

	// The RFQ row lock serializes concurrent accepts on the same RFQ.
	r, err := scanRFQ(tx.QueryRow(ctx,
		`SELECT `+rfqColumns+` FROM marketplace.rfqs WHERE id = $1 FOR UPDATE`, q.RFQID))
	if err != nil {
		return nil, err
	}

	if r.BuyerID != buyerID {
		return nil, fmt.Errorf("quote %s: %w", quoteID, model.ErrUnauthorized)
	}
	if r.Status != model.RFQOpen {
		return nil, fmt.Errorf("rfq %s is %s: %w", r.ID, r.Status, model.ErrAlreadyClosed)
	}
	if q.Status != model.QuoteSubmitted {
		return nil, fmt.Errorf("quote %s is %s: %w", quoteID, q.Status, model.ErrInvalidState)
	}
	// Authoritative expiry check; the sweep is informational only.
	if !q.ValidAt(now) {
		return nil, fmt.Errorf("quote %s validity deadline passed: %w", quoteID, model.ErrExpired)
	}

	_, err = tx.Exec(ctx, `
		UPDATE marketplace.quotes
		SET status = $2, accepted_at = $3
		WHERE id = $1
	`, quoteID, model.QuoteAccepted, now)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		UPDATE marketplace.quotes
		SET status = $3, rejected_at = $4, rejection_reason = $5
		WHERE rfq_id = $1 AND id <> $2 AND status = 'submitted'
		RETURNING id
	`, q.RFQID, quoteID, model.QuoteRejected, now, model.RejectionAnotherAccepted)
	if err != nil {
		return nil, err
	}
	var rejected []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		rejected = append(rejected, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// CAS guard on the RFQ status: only an open RFQ may close.
	tag, err := tx.Exec(ctx, `
		UPDATE marketplace.rfqs
		SET status = 'closed', winning_quote_id = $2, closed_at = $3
		WHERE id = $1 AND status = 'open'
	`, q.RFQID, quoteID, now)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("rfq %s: %w", q.RFQID, model.ErrAlreadyClosed)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	q.Status = model.QuoteAccepted
	q.AcceptedAt = &now
	r.Status = model.RFQClosed
	r.WinningQuoteID = &quoteID
	r.ClosedAt = &now

	return &AcceptResult{Winner: *q, RFQ: *r, RejectedQuoteIDs: rejected}, nil
}

// ExpireQuotes flips submitted quotes past their validity deadline to
// expired and returns their ids.
func (s *HybridStore) ExpireQuotes(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.PG.Query(ctx, `
		UPDATE marketplace.quotes
		SET status = 'expired'
		WHERE status = 'submitted' AND validity_deadline < $1
		RETURNING id
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 40001 serialization_failure, 40P01 deadlock_detected
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
