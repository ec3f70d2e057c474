package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// QuoteStatus is the lifecycle state of a vendor quote. All transitions
// out of submitted are terminal.
type QuoteStatus string

const (
	QuoteSubmitted QuoteStatus = "submitted"
	QuoteAccepted  QuoteStatus = "accepted"
	QuoteRejected  QuoteStatus = "rejected"
	QuoteExpired   QuoteStatus = "expired"
)

func (s QuoteStatus) Valid() bool {
	switch s {
	case QuoteSubmitted, QuoteAccepted, QuoteRejected, QuoteExpired:
		return true
	default:
		return false
	}
}

func (s *QuoteStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	status := QuoteStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !status.Valid() {
		return fmt.Errorf("invalid quote status: %s", raw)
	}
	*s = status
	return nil
}

func (s QuoteStatus) String() string { return string(s) }

// RejectionAnotherAccepted is the reason recorded on losing quotes when a
// sibling quote wins the RFQ.
const RejectionAnotherAccepted = "another quote accepted"

// QuoteItem is one priced line of a quote.
type QuoteItem struct {
	ProductID   string          `json:"product_id,omitempty"`
	Description string          `json:"description"`
	Quantity    float64         `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Total       decimal.Decimal `json:"total"`
}

// Quote is a vendor's priced, time-limited response to an RFQ. The
// validity deadline is a point-in-time price commitment and is checked
// both by the expiry sweep and, authoritatively, at accept time.
type Quote struct {
	ID               string          `json:"id"`
	Number           string          `json:"quote_number"`
	RFQID            string          `json:"rfq_id"`
	VendorID         string          `json:"vendor_id"`
	BuyerID          string          `json:"buyer_id"` // denormalized from the RFQ
	Subtotal         decimal.Decimal `json:"subtotal"`
	TaxAmount        decimal.Decimal `json:"tax_amount"`
	DeliveryCharge   decimal.Decimal `json:"delivery_charge"`
	DiscountAmount   decimal.Decimal `json:"discount_amount"`
	FinalAmount      decimal.Decimal `json:"final_amount"`
	LineItems        []QuoteItem     `json:"line_items,omitempty"`
	Notes            string          `json:"notes,omitempty"`
	ValidityDeadline time.Time       `json:"validity_deadline"`
	Status           QuoteStatus     `json:"status"`
	RevisionNumber   int             `json:"revision_number"`
	RejectionReason  string          `json:"rejection_reason,omitempty"`
	SubmittedAt      time.Time       `json:"submitted_at"`
	AcceptedAt       *time.Time      `json:"accepted_at,omitempty"`
	RejectedAt       *time.Time      `json:"rejected_at,omitempty"`
}

// ComputeFinal returns subtotal + tax + delivery - discount.
func (q *Quote) ComputeFinal() decimal.Decimal {
	return q.Subtotal.Add(q.TaxAmount).Add(q.DeliveryCharge).Sub(q.DiscountAmount)
}

// ValidAt reports whether the quote is still within its validity window.
// A quote past its deadline is logically expired even if the expiry sweep
// has not flipped its stored status yet.
func (q *Quote) ValidAt(now time.Time) bool {
	return !now.After(q.ValidityDeadline)
}

// AcceptableAt reports whether the quote can be accepted at the given
// instant, ignoring RFQ-level checks.
func (q *Quote) AcceptableAt(now time.Time) bool {
	return q.Status == QuoteSubmitted && q.ValidAt(now)
}
