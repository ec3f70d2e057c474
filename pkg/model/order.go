package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the fulfillment state of an order. Only "pending" is set
// by this service; later progression belongs to fulfillment.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) String() string { return string(s) }

// Order materializes exactly one accepted quote. Monetary fields are
// snapshotted from the quote at acceptance time, not referenced live.
type Order struct {
	ID             string          `json:"id"`
	Number         string          `json:"order_number"`
	QuoteID        string          `json:"quote_id"`
	RFQID          string          `json:"rfq_id"`
	BuyerID        string          `json:"buyer_id"`
	VendorID       string          `json:"vendor_id"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	DeliveryCharge decimal.Decimal `json:"delivery_charge"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Status         OrderStatus     `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
}

// OrderItem is one line of an order, copied from the quote's items or
// synthesized when the quote carried no itemization.
type OrderItem struct {
	OrderID     string          `json:"order_id"`
	ProductID   string          `json:"product_id,omitempty"`
	Description string          `json:"description"`
	Quantity    float64         `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}
