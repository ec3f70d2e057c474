package api

import (
	"errors"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/freshhhy/rfq-engine/pkg/model"
)

// RFQItemRequest is one requested line in a create request.
type RFQItemRequest struct {
	ProductID   string  `json:"product_id,omitempty"`
	ProductName string  `json:"product_name"`
	Category    string  `json:"category,omitempty"`
	Quantity    float64 `json:"quantity"`
	Unit        string  `json:"unit"`
	Notes       string  `json:"notes,omitempty"`
}

// RFQCreateRequest is the buyer's create payload.
type RFQCreateRequest struct {
	BuyerID         string           `json:"buyer_id"`
	Title           string           `json:"title"`
	Description     string           `json:"description,omitempty"`
	Items           []RFQItemRequest `json:"items"`
	DeliveryDate    time.Time        `json:"delivery_date"`
	DeliveryTime    string           `json:"delivery_time,omitempty"`
	DeliveryAddress string           `json:"delivery_address,omitempty"`
}

func (r *RFQCreateRequest) Validate() error {
	if r.BuyerID == "" {
		return errors.New("buyer_id is required")
	}
	if r.Title == "" {
		return errors.New("title is required")
	}
	if len(r.Items) == 0 {
		return errors.New("at least one item is required")
	}
	for i, item := range r.Items {
		if item.ProductName == "" {
			return errors.New("items[" + strconv.Itoa(i) + "].product_name is required")
		}
		if item.Quantity <= 0 {
			return errors.New("items[" + strconv.Itoa(i) + "].quantity must be positive")
		}
		if item.Unit == "" {
			return errors.New("items[" + strconv.Itoa(i) + "].unit is required")
		}
	}
	return nil
}

func (r *RFQCreateRequest) Items2Model() []model.RFQItem {
	items := make([]model.RFQItem, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, model.RFQItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Category:    it.Category,
			Quantity:    it.Quantity,
			Unit:        it.Unit,
			Notes:       it.Notes,
		})
	}
	return items
}

// RFQCancelRequest cancels an open RFQ.
type RFQCancelRequest struct {
	BuyerID string `json:"buyer_id"`
	Reason  string `json:"reason,omitempty"`
}

func (r *RFQCancelRequest) Validate() error {
	if r.BuyerID == "" {
		return errors.New("buyer_id is required")
	}
	return nil
}

// QuoteItemRequest is one priced line in a quote submission.
type QuoteItemRequest struct {
	ProductID   string          `json:"product_id,omitempty"`
	Description string          `json:"description"`
	Quantity    float64         `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Total       decimal.Decimal `json:"total"`
}

// QuoteSubmitRequest is the vendor's submission payload. The final
// amount is computed server-side and never accepted from the client.
type QuoteSubmitRequest struct {
	VendorID       string                 `json:"vendor_id"`
	Subtotal       decimal.Decimal        `json:"subtotal"`
	TaxAmount      decimal.Decimal        `json:"tax_amount"`
	DeliveryCharge decimal.Decimal        `json:"delivery_charge"`
	DiscountAmount decimal.Decimal        `json:"discount_amount"`
	LineItems      []QuoteItemRequest     `json:"line_items,omitempty"`
	Notes          string                 `json:"notes,omitempty"`
	Attachments    []model.AttachmentMeta `json:"attachments,omitempty"`
}

func (r *QuoteSubmitRequest) Validate() error {
	if r.VendorID == "" {
		return errors.New("vendor_id is required")
	}
	if r.Subtotal.IsNegative() {
		return errors.New("subtotal must not be negative")
	}
	if r.TaxAmount.IsNegative() || r.DeliveryCharge.IsNegative() || r.DiscountAmount.IsNegative() {
		return errors.New("monetary fields must not be negative")
	}
	for i, li := range r.LineItems {
		if li.Description == "" {
			return errors.New("line_items[" + strconv.Itoa(i) + "].description is required")
		}
		if li.Quantity <= 0 {
			return errors.New("line_items[" + strconv.Itoa(i) + "].quantity must be positive")
		}
	}
	return nil
}

func (r *QuoteSubmitRequest) LineItems2Model() []model.QuoteItem {
	if len(r.LineItems) == 0 {
		return nil
	}
	items := make([]model.QuoteItem, 0, len(r.LineItems))
	for _, li := range r.LineItems {
		items = append(items, model.QuoteItem{
			ProductID:   li.ProductID,
			Description: li.Description,
			Quantity:    li.Quantity,
			UnitPrice:   li.UnitPrice,
			Total:       li.Total,
		})
	}
	return items
}

// QuoteAcceptRequest identifies the accepting buyer.
type QuoteAcceptRequest struct {
	BuyerID string `json:"buyer_id"`
}

func (r *QuoteAcceptRequest) Validate() error {
	if r.BuyerID == "" {
		return errors.New("buyer_id is required")
	}
	return nil
}

// PresenceOnlineRequest marks a vendor online with their product set.
type PresenceOnlineRequest struct {
	SessionToken string   `json:"session_token,omitempty"`
	ProductIDs   []string `json:"product_ids,omitempty"`
}
