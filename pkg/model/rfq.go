package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RFQStatus is the lifecycle state of a request for quote.
// open -> closed (acceptance) and open -> cancelled (buyer) are both terminal.
type RFQStatus string

const (
	RFQOpen      RFQStatus = "open"
	RFQClosed    RFQStatus = "closed"
	RFQCancelled RFQStatus = "cancelled"
)

func (s RFQStatus) Valid() bool {
	switch s {
	case RFQOpen, RFQClosed, RFQCancelled:
		return true
	default:
		return false
	}
}

func (s RFQStatus) Terminal() bool {
	return s == RFQClosed || s == RFQCancelled
}

func (s *RFQStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	status := RFQStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !status.Valid() {
		return fmt.Errorf("invalid rfq status: %s", raw)
	}
	*s = status
	return nil
}

func (s RFQStatus) String() string { return string(s) }

// RFQItem is one requested line of an RFQ. ProductID may be empty for
// free-text items; those never contribute to vendor matching.
type RFQItem struct {
	ProductID   string  `json:"product_id,omitempty"`
	ProductName string  `json:"product_name"`
	Category    string  `json:"category,omitempty"`
	Quantity    float64 `json:"quantity"`
	Unit        string  `json:"unit"`
	Notes       string  `json:"notes,omitempty"`
}

// RFQ is a buyer-initiated request for vendor pricing on a set of items.
// Rows are never deleted, only status-transitioned.
type RFQ struct {
	ID                 string     `json:"id"`
	Number             string     `json:"rfq_number"`
	BuyerID            string     `json:"buyer_id"`
	Title              string     `json:"title"`
	Description        string     `json:"description,omitempty"`
	Items              []RFQItem  `json:"items"`
	DeliveryDate       time.Time  `json:"delivery_date"`
	DeliveryTime       string     `json:"delivery_time,omitempty"`
	DeliveryAddress    string     `json:"delivery_address,omitempty"`
	Status             RFQStatus  `json:"status"`
	ClosesAt           time.Time  `json:"closes_at"`
	WinningQuoteID     *string    `json:"winning_quote_id,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	ClosedAt           *time.Time `json:"closed_at,omitempty"`
}

// OpenAt reports whether the RFQ still accepts quotes at the given instant.
func (r *RFQ) OpenAt(now time.Time) bool {
	return r.Status == RFQOpen && now.Before(r.ClosesAt)
}

// RequestedProductIDs returns the distinct product ids referenced by the
// RFQ's items, in item order. Free-text items are skipped.
func (r *RFQ) RequestedProductIDs() []string {
	seen := make(map[string]struct{}, len(r.Items))
	var ids []string
	for _, item := range r.Items {
		if item.ProductID == "" {
			continue
		}
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}
