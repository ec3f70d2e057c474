// Package orders converts accepted quotes into orders. Conversion is
// idempotent per quote: the unique quote_id index makes a repeat call
// fail with ErrAlreadyConverted, and the existing order can always be
// fetched instead.
package orders

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/freshhhy/rfq-engine/pkg/clock"
	"github.com/freshhhy/rfq-engine/pkg/model"
)

// SyntheticItemDescription labels the single fallback line written when
// the accepted quote carried no itemization.
const SyntheticItemDescription = "Items as per quote"

// Store is the persistence contract, satisfied by store.HybridStore.
type Store interface {
	GetQuote(ctx context.Context, id string) (*model.Quote, error)
	InsertOrder(ctx context.Context, o *model.Order, items []model.OrderItem) error
	GetOrderByQuoteID(ctx context.Context, quoteID string) (*model.Order, error)
}

// Payments authorizes payment for a freshly created order. The engine
// ships with a no-op implementation; a real gateway slots in here.
type Payments interface {
	Authorize(ctx context.Context, o *model.Order) error
}

// NopPayments approves everything. Used until a payment gateway is wired.
type NopPayments struct{}

func (NopPayments) Authorize(ctx context.Context, o *model.Order) error { return nil }

// Converter turns accepted quotes into pending orders.
type Converter struct {
	store    Store
	payments Payments
	clock    clock.Clock
	logger   *zap.Logger
}

func NewConverter(store Store, payments Payments, clk clock.Clock, logger *zap.Logger) *Converter {
	if payments == nil {
		payments = NopPayments{}
	}
	return &Converter{store: store, payments: payments, clock: clk, logger: logger}
}

// Convert creates the order for an accepted quote. Monetary fields are
// snapshotted from the quote so later quote edits can never change what
// the buyer owes. Only accepted quotes convert; anything else is
// ErrInvalidState, and a second conversion is ErrAlreadyConverted.
func (c *Converter) Convert(ctx context.Context, quoteID string) (*model.Order, error) {
	q, err := c.store.GetQuote(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if q.Status != model.QuoteAccepted {
		return nil, fmt.Errorf("quote %s is %s, not accepted: %w", quoteID, q.Status, model.ErrInvalidState)
	}

	now := c.clock.Now()
	order := &model.Order{
		ID:             uuid.NewString(),
		Number:         orderNumber(now),
		QuoteID:        q.ID,
		RFQID:          q.RFQID,
		BuyerID:        q.BuyerID,
		VendorID:       q.VendorID,
		Subtotal:       q.Subtotal,
		TaxAmount:      q.TaxAmount,
		DeliveryCharge: q.DeliveryCharge,
		DiscountAmount: q.DiscountAmount,
		TotalAmount:    q.FinalAmount,
		Status:         model.OrderPending,
		CreatedAt:      now,
	}

	items := orderItems(order, q)
	if err := c.store.InsertOrder(ctx, order, items); err != nil {
		return nil, err
	}

	if err := c.payments.Authorize(ctx, order); err != nil {
		// The order stands; payment is retried out of band.
		c.logger.Warn("orders.payment_authorize_failed",
			zap.String("order_id", order.ID),
			zap.String("quote_id", q.ID),
			zap.Error(err))
	}

	c.logger.Info("orders.converted",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.Number),
		zap.String("quote_id", q.ID),
		zap.String("total_amount", order.TotalAmount.String()),
		zap.Int("items", len(items)))
	return order, nil
}

// ByQuote returns the order already created for a quote, if any.
func (c *Converter) ByQuote(ctx context.Context, quoteID string) (*model.Order, error) {
	return c.store.GetOrderByQuoteID(ctx, quoteID)
}

// orderItems copies the quote's line items, or synthesizes a single
// line covering the whole subtotal when the quote had none.
func orderItems(o *model.Order, q *model.Quote) []model.OrderItem {
	if len(q.LineItems) == 0 {
		return []model.OrderItem{{
			OrderID:     o.ID,
			Description: SyntheticItemDescription,
			Quantity:    1,
			UnitPrice:   q.Subtotal,
			TotalPrice:  q.Subtotal,
		}}
	}

	items := make([]model.OrderItem, 0, len(q.LineItems))
	for _, li := range q.LineItems {
		items = append(items, model.OrderItem{
			OrderID:     o.ID,
			ProductID:   li.ProductID,
			Description: li.Description,
			Quantity:    li.Quantity,
			UnitPrice:   li.UnitPrice,
			TotalPrice:  li.Total,
		})
	}
	return items
}

func orderNumber(now time.Time) string {
	id := uuid.New()
	suffix := strings.ToUpper(hex.EncodeToString(id[:2]))
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), suffix)
}
