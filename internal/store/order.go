package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/freshhhy/rfq-engine/pkg/model"
)

// InsertOrder persists an order and its line items in one transaction.
// The unique index on quote_id is the idempotency guard: a second
// conversion of the same quote surfaces as ErrAlreadyConverted.
func (s *HybridStore) InsertOrder(ctx context.Context, o *model.Order, items []model.OrderItem) error {
	tx, err := s.PG.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, `
		INSERT INTO marketplace.orders (
			id, order_number, quote_id, rfq_id, buyer_id, vendor_id,
			subtotal, tax_amount, delivery_charge, discount_amount, total_amount,
			status, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, o.ID, o.Number, o.QuoteID, o.RFQID, o.BuyerID, o.VendorID,
		o.Subtotal, o.TaxAmount, o.DeliveryCharge, o.DiscountAmount, o.TotalAmount,
		o.Status, o.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("quote %s: %w", o.QuoteID, model.ErrAlreadyConverted)
		}
		s.logger.Error("store.pg.insert_order_failed",
			zap.String("order_id", o.ID), zap.Error(err))
		return err
	}

	for _, item := range items {
		_, err = tx.Exec(ctx, `
			INSERT INTO marketplace.order_items (
				order_id, product_id, description, quantity, unit_price, total_price
			)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, item.OrderID, item.ProductID, item.Description, item.Quantity, item.UnitPrice, item.TotalPrice)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// GetOrderByQuoteID returns the order referencing the quote, or
// ErrNotFound when no conversion has happened yet.
func (s *HybridStore) GetOrderByQuoteID(ctx context.Context, quoteID string) (*model.Order, error) {
	row := s.PG.QueryRow(ctx, `
		SELECT id, order_number, quote_id, rfq_id, buyer_id, vendor_id,
		       subtotal, tax_amount, delivery_charge, discount_amount, total_amount,
		       status, created_at
		FROM marketplace.orders
		WHERE quote_id = $1
	`, quoteID)

	var o model.Order
	err := row.Scan(&o.ID, &o.Number, &o.QuoteID, &o.RFQID, &o.BuyerID, &o.VendorID,
		&o.Subtotal, &o.TaxAmount, &o.DeliveryCharge, &o.DiscountAmount, &o.TotalAmount,
		&o.Status, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order for quote %s: %w", quoteID, model.ErrNotFound)
		}
		return nil, err
	}
	return &o, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
