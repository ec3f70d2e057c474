package model

import "time"

// VendorMatch links a matching vendor to an RFQ. One row per
// (rfq_id, vendor_id); re-matching overwrites score and matched set.
type VendorMatch struct {
	RFQID             string     `json:"rfq_id"`
	VendorID          string     `json:"vendor_id"`
	MatchedProductIDs []string   `json:"matched_product_ids"`
	MatchScore        float64    `json:"match_score"` // fraction of requested items the vendor can supply, in [0,1]
	IsNotified        bool       `json:"is_notified"`
	VendorResponded   bool       `json:"vendor_responded"`
	NotifiedAt        *time.Time `json:"notified_at,omitempty"`
	RespondedAt       *time.Time `json:"responded_at,omitempty"`
}
