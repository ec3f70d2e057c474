package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types carried by push envelopes.
const (
	EventRFQCreated    = "rfq.created"
	EventQuoteReceived = "quote.received"
	EventStatusChanged = "status.changed"
)

// PushSubjectPrefix is the NATS subject root for push traffic. The full
// subject is push.<kind>.<id>, so the hub can subscribe to "push.>".
const PushSubjectPrefix = "push"

// PushSubject returns the NATS subject for a party's push channel.
func PushSubject(p Party) string {
	return PushSubjectPrefix + "." + string(p.Kind) + "." + p.ID
}

// Envelope is the canonical event envelope. Every message written to the
// outbox or published to NATS follows this format.
type Envelope struct {
	ID            uuid.UUID       `json:"id"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	Subject       string          `json:"subject"`
	EventType     string          `json:"event_type"`
	Version       string          `json:"version"`
	Recipient     Party           `json:"recipient"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope builds an envelope addressed to the recipient's push
// channel with the payload marshalled to JSON.
func NewEnvelope(eventType string, recipient Party, at time.Time, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		ID:            uuid.New(),
		CorrelationID: uuid.New(),
		Subject:       PushSubject(recipient),
		EventType:     eventType,
		Version:       "1.0.0",
		Recipient:     recipient,
		Timestamp:     at.UTC(),
		Payload:       data,
	}, nil
}

// RFQCreatedPayload is pushed to each matched vendor when an RFQ opens.
type RFQCreatedPayload struct {
	RFQID        string    `json:"rfq_id"`
	RFQNumber    string    `json:"rfq_number"`
	BuyerID      string    `json:"buyer_id"`
	Title        string    `json:"title"`
	Items        []RFQItem `json:"items"`
	DeliveryDate time.Time `json:"delivery_date"`
	ClosesAt     time.Time `json:"closes_at"`
	MatchScore   float64   `json:"match_score"`
}

// AttachmentMeta describes a stored quote attachment. Storage itself is
// an external collaborator; only metadata and URLs travel on the wire.
type AttachmentMeta struct {
	Type         string `json:"type"`
	Filename     string `json:"filename"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	FileSize     int64  `json:"file_size,omitempty"`
}

// QuoteReceivedPayload is pushed to the buyer when a vendor quotes.
type QuoteReceivedPayload struct {
	QuoteID          string           `json:"quote_id"`
	QuoteNumber      string           `json:"quote_number"`
	RFQID            string           `json:"rfq_id"`
	VendorID         string           `json:"vendor_id"`
	FinalAmount      decimal.Decimal  `json:"final_amount"`
	ValidityDeadline time.Time        `json:"validity_deadline"`
	LineItems        []QuoteItem      `json:"line_items,omitempty"`
	Attachments      []AttachmentMeta `json:"attachments,omitempty"`
}

// StatusChangedPayload is the generic fan-out for presence, quote and
// RFQ state transitions.
type StatusChangedPayload struct {
	EntityKind string `json:"entity_kind"` // "rfq" | "quote" | "vendor"
	EntityID   string `json:"entity_id"`
	NewState   string `json:"new_state"`
	Reason     string `json:"reason,omitempty"`
}

// OutboxEvent is a persisted envelope awaiting dispatch. Rows are written
// by the broadcast gateway and drained by the outbox dispatcher, which
// gives at-least-once delivery without coupling publishes to the domain
// transaction.
type OutboxEvent struct {
	ID           uuid.UUID  `json:"id"`
	Subject      string     `json:"subject"`
	EventType    string     `json:"event_type"`
	Payload      []byte     `json:"payload"` // serialized Envelope
	Attempts     int        `json:"attempts"`
	CreatedAt    time.Time  `json:"created_at"`
	DispatchedAt *time.Time `json:"dispatched_at,omitempty"`
}
