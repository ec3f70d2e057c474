// Package ledger is the quote lifecycle core: RFQ creation and
// cancellation, quote submission, the accept-one transition and the
// expiry sweeps. It orchestrates the store, the match engine and the
// broadcast gateway; every push or notification failure is absorbed so
// the domain write is the only thing that can fail an operation.
package ledger

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/freshhhy/rfq-engine/internal/metrics"
	"github.com/freshhhy/rfq-engine/internal/store"
	"github.com/freshhhy/rfq-engine/pkg/clock"
	"github.com/freshhhy/rfq-engine/pkg/model"
)

// Store is the persistence contract, satisfied by store.HybridStore.
type Store interface {
	InsertRFQ(ctx context.Context, r *model.RFQ) error
	GetRFQ(ctx context.Context, id string) (*model.RFQ, error)
	LoadRFQWithQuotes(ctx context.Context, id string) (*model.RFQ, []model.Quote, error)
	CancelRFQ(ctx context.Context, rfqID, buyerID, reason string, now time.Time) (*model.RFQ, error)
	CloseExpiredRFQs(ctx context.Context, now time.Time) (int, error)
	GetQuote(ctx context.Context, id string) (*model.Quote, error)
	CountVendorQuotes(ctx context.Context, rfqID, vendorID string) (int, error)
	InsertQuote(ctx context.Context, q *model.Quote) error
	AcceptQuote(ctx context.Context, quoteID, buyerID string, now time.Time) (*store.AcceptResult, error)
	ExpireQuotes(ctx context.Context, now time.Time) ([]string, error)
}

// Matcher finds online vendors for a new RFQ. Satisfied by match.Engine.
type Matcher interface {
	FindMatches(ctx context.Context, rfq *model.RFQ) ([]model.VendorMatch, error)
}

// Gateway fans domain events out to push channels. All methods are
// fire-and-forget. Satisfied by broadcast.Gateway.
type Gateway interface {
	PublishRfqCreated(ctx context.Context, rfq *model.RFQ, matches []model.VendorMatch)
	PublishQuoteReceived(ctx context.Context, q *model.Quote, attachments []model.AttachmentMeta)
	PublishStatusChange(ctx context.Context, recipient model.Party, payload model.StatusChangedPayload)
}

// Notifier enqueues out-of-band notifications (email, SMS). Failures
// stay inside the notifier. Satisfied by notify.Notifier; nil disables.
type Notifier interface {
	QuoteSubmitted(ctx context.Context, q *model.Quote)
	QuoteAccepted(ctx context.Context, q *model.Quote)
	QuoteRejected(ctx context.Context, q *model.Quote, reason string)
	RFQCancelled(ctx context.Context, rfq *model.RFQ, vendorIDs []string)
}

// Ledger drives the RFQ and quote lifecycle.
type Ledger struct {
	store         Store
	matcher       Matcher
	gateway       Gateway
	notifier      Notifier
	clock         clock.Clock
	openWindow    time.Duration // RFQ accepts quotes for this long
	quoteValidity time.Duration // price commitment window per quote
	logger        *zap.Logger
}

func New(st Store, matcher Matcher, gateway Gateway, notifier Notifier, clk clock.Clock, openWindow, quoteValidity time.Duration, logger *zap.Logger) *Ledger {
	return &Ledger{
		store:         st,
		matcher:       matcher,
		gateway:       gateway,
		notifier:      notifier,
		clock:         clk,
		openWindow:    openWindow,
		quoteValidity: quoteValidity,
		logger:        logger,
	}
}

// CreateRFQInput carries the buyer's request. Items must be non-empty;
// product ids are optional per item.
type CreateRFQInput struct {
	BuyerID         string
	Title           string
	Description     string
	Items           []model.RFQItem
	DeliveryDate    time.Time
	DeliveryTime    string
	DeliveryAddress string
}

// SubmitQuoteInput carries a vendor's priced response.
type SubmitQuoteInput struct {
	RFQID          string
	VendorID       string
	Subtotal       decimal.Decimal
	TaxAmount      decimal.Decimal
	DeliveryCharge decimal.Decimal
	DiscountAmount decimal.Decimal
	LineItems      []model.QuoteItem
	Notes          string
	Attachments    []model.AttachmentMeta
}

// CreateRFQ opens a new RFQ, matches it against online vendors and
// broadcasts it to each match. Matching and broadcast failures are
// logged but never fail the creation: the RFQ row is already durable
// and vendors can still discover it through listings.
func (l *Ledger) CreateRFQ(ctx context.Context, in CreateRFQInput) (*model.RFQ, []model.VendorMatch, error) {
	if in.BuyerID == "" {
		return nil, nil, fmt.Errorf("buyer id required: %w", model.ErrInvalidState)
	}
	if len(in.Items) == 0 {
		return nil, nil, fmt.Errorf("rfq needs at least one item: %w", model.ErrInvalidState)
	}

	now := l.clock.Now()
	rfq := &model.RFQ{
		ID:              uuid.NewString(),
		Number:          documentNumber("RFQ", now),
		BuyerID:         in.BuyerID,
		Title:           in.Title,
		Description:     in.Description,
		Items:           in.Items,
		DeliveryDate:    in.DeliveryDate,
		DeliveryTime:    in.DeliveryTime,
		DeliveryAddress: in.DeliveryAddress,
		Status:          model.RFQOpen,
		ClosesAt:        now.Add(l.openWindow),
		CreatedAt:       now,
	}

	if err := l.store.InsertRFQ(ctx, rfq); err != nil {
		return nil, nil, err
	}
	metrics.RFQsCreatedTotal.Inc()

	matches, err := l.matcher.FindMatches(ctx, rfq)
	if err != nil {
		l.logger.Error("ledger.match_failed",
			zap.String("rfq_id", rfq.ID), zap.Error(err))
		metrics.IncError("ledger", "match_failed")
		matches = nil
	}

	l.gateway.PublishRfqCreated(ctx, rfq, matches)

	l.logger.Info("ledger.rfq_created",
		zap.String("rfq_id", rfq.ID),
		zap.String("rfq_number", rfq.Number),
		zap.String("buyer_id", rfq.BuyerID),
		zap.Int("matched_vendors", len(matches)))
	return rfq, matches, nil
}

// GetRFQ returns the RFQ and its quotes, cheapest quote first.
func (l *Ledger) GetRFQ(ctx context.Context, id string) (*model.RFQ, []model.Quote, error) {
	return l.store.LoadRFQWithQuotes(ctx, id)
}

// SubmitQuote records a vendor's quote against an open RFQ. The final
// amount is always recomputed server-side; re-quoting bumps the
// revision number and leaves earlier revisions untouched.
func (l *Ledger) SubmitQuote(ctx context.Context, in SubmitQuoteInput) (*model.Quote, error) {
	now := l.clock.Now()

	rfq, err := l.store.GetRFQ(ctx, in.RFQID)
	if err != nil {
		metrics.QuotesSubmittedTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	if !rfq.OpenAt(now) {
		metrics.QuotesSubmittedTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("rfq %s is not accepting quotes: %w", rfq.ID, model.ErrInvalidState)
	}

	q := &model.Quote{
		ID:             uuid.NewString(),
		Number:         documentNumber("QT", now),
		RFQID:          rfq.ID,
		VendorID:       in.VendorID,
		BuyerID:        rfq.BuyerID,
		Subtotal:       in.Subtotal,
		TaxAmount:      in.TaxAmount,
		DeliveryCharge: in.DeliveryCharge,
		DiscountAmount: in.DiscountAmount,
		LineItems:      in.LineItems,
		Notes:          in.Notes,
		Status:         model.QuoteSubmitted,
		SubmittedAt:    now,
	}
	q.FinalAmount = q.ComputeFinal()
	if q.FinalAmount.IsNegative() {
		metrics.QuotesSubmittedTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("discount exceeds quote total: %w", model.ErrInvalidState)
	}
	q.ValidityDeadline = now.Add(l.quoteValidity)

	prior, err := l.store.CountVendorQuotes(ctx, rfq.ID, in.VendorID)
	if err != nil {
		return nil, err
	}
	q.RevisionNumber = prior + 1

	if err := l.store.InsertQuote(ctx, q); err != nil {
		metrics.QuotesSubmittedTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	metrics.QuotesSubmittedTotal.WithLabelValues("ok").Inc()

	l.gateway.PublishQuoteReceived(ctx, q, in.Attachments)
	if l.notifier != nil {
		l.notifier.QuoteSubmitted(ctx, q)
	}

	l.logger.Info("ledger.quote_submitted",
		zap.String("quote_id", q.ID),
		zap.String("quote_number", q.Number),
		zap.String("rfq_id", q.RFQID),
		zap.String("vendor_id", q.VendorID),
		zap.Int("revision", q.RevisionNumber),
		zap.String("final_amount", q.FinalAmount.String()))
	return q, nil
}

// AcceptQuote accepts a quote on the buyer's behalf. Exactly one quote
// per RFQ can ever win; concurrent accepts lose with ErrAlreadyClosed.
// Status events for the winner, the losers and the RFQ are published
// after the transaction commits.
func (l *Ledger) AcceptQuote(ctx context.Context, quoteID, buyerID string) (*store.AcceptResult, error) {
	start := time.Now()
	res, err := l.store.AcceptQuote(ctx, quoteID, buyerID, l.clock.Now())
	metrics.ObserveDuration(metrics.QuoteAcceptDuration, start)

	if err != nil {
		metrics.IncQuoteAccept(acceptOutcome(err))
		return nil, err
	}
	metrics.IncQuoteAccept("won")

	l.publishAcceptOutcome(ctx, res)

	l.logger.Info("ledger.quote_accepted",
		zap.String("quote_id", res.Winner.ID),
		zap.String("rfq_id", res.RFQ.ID),
		zap.String("buyer_id", buyerID),
		zap.Int("rejected_siblings", len(res.RejectedQuoteIDs)))
	return res, nil
}

// publishAcceptOutcome fans out the post-commit events: accepted to the
// winning vendor, rejected to each losing vendor, closed to the buyer.
// Best effort throughout.
func (l *Ledger) publishAcceptOutcome(ctx context.Context, res *store.AcceptResult) {
	winner := res.Winner

	l.gateway.PublishStatusChange(ctx, model.Vendor(winner.VendorID), model.StatusChangedPayload{
		EntityKind: "quote",
		EntityID:   winner.ID,
		NewState:   model.QuoteAccepted.String(),
	})
	l.gateway.PublishStatusChange(ctx, model.Buyer(res.RFQ.BuyerID), model.StatusChangedPayload{
		EntityKind: "rfq",
		EntityID:   res.RFQ.ID,
		NewState:   model.RFQClosed.String(),
		Reason:     "quote accepted",
	})
	if l.notifier != nil {
		l.notifier.QuoteAccepted(ctx, &winner)
	}

	for _, id := range res.RejectedQuoteIDs {
		loser, err := l.store.GetQuote(ctx, id)
		if err != nil {
			l.logger.Warn("ledger.rejected_quote_load_failed",
				zap.String("quote_id", id), zap.Error(err))
			continue
		}
		l.gateway.PublishStatusChange(ctx, model.Vendor(loser.VendorID), model.StatusChangedPayload{
			EntityKind: "quote",
			EntityID:   loser.ID,
			NewState:   model.QuoteRejected.String(),
			Reason:     model.RejectionAnotherAccepted,
		})
		if l.notifier != nil {
			l.notifier.QuoteRejected(ctx, loser, model.RejectionAnotherAccepted)
		}
	}
}

// CancelRFQ cancels an open RFQ on the owner's behalf and tells every
// vendor with a live quote.
func (l *Ledger) CancelRFQ(ctx context.Context, rfqID, buyerID, reason string) (*model.RFQ, error) {
	rfq, err := l.store.CancelRFQ(ctx, rfqID, buyerID, reason, l.clock.Now())
	if err != nil {
		return nil, err
	}

	_, quotes, loadErr := l.store.LoadRFQWithQuotes(ctx, rfqID)
	if loadErr != nil {
		l.logger.Warn("ledger.cancel_quotes_load_failed",
			zap.String("rfq_id", rfqID), zap.Error(loadErr))
		quotes = nil
	}
	var vendorIDs []string
	for _, q := range quotes {
		if q.Status != model.QuoteSubmitted {
			continue
		}
		vendorIDs = append(vendorIDs, q.VendorID)
		l.gateway.PublishStatusChange(ctx, model.Vendor(q.VendorID), model.StatusChangedPayload{
			EntityKind: "rfq",
			EntityID:   rfqID,
			NewState:   model.RFQCancelled.String(),
			Reason:     reason,
		})
	}
	if l.notifier != nil {
		l.notifier.RFQCancelled(ctx, rfq, vendorIDs)
	}

	l.logger.Info("ledger.rfq_cancelled",
		zap.String("rfq_id", rfqID),
		zap.String("buyer_id", buyerID),
		zap.String("reason", reason))
	return rfq, nil
}

// ExpireStaleQuotes flips submitted quotes past their validity deadline
// to expired and tells each vendor. The accept path re-checks the
// deadline itself, so this sweep existing is a courtesy, not a guard.
func (l *Ledger) ExpireStaleQuotes(ctx context.Context) (int, error) {
	ids, err := l.store.ExpireQuotes(ctx, l.clock.Now())
	if err != nil {
		return 0, err
	}

	for _, id := range ids {
		q, err := l.store.GetQuote(ctx, id)
		if err != nil {
			l.logger.Warn("ledger.expired_quote_load_failed",
				zap.String("quote_id", id), zap.Error(err))
			continue
		}
		l.gateway.PublishStatusChange(ctx, model.Vendor(q.VendorID), model.StatusChangedPayload{
			EntityKind: "quote",
			EntityID:   q.ID,
			NewState:   model.QuoteExpired.String(),
			Reason:     "validity deadline passed",
		})
	}

	if len(ids) > 0 {
		l.logger.Info("ledger.quotes_expired", zap.Int("count", len(ids)))
	}
	return len(ids), nil
}

// CloseExpiredRFQs closes open RFQs whose quoting window has passed.
func (l *Ledger) CloseExpiredRFQs(ctx context.Context) (int, error) {
	closed, err := l.store.CloseExpiredRFQs(ctx, l.clock.Now())
	if err != nil {
		return 0, err
	}
	if closed > 0 {
		l.logger.Info("ledger.rfqs_closed", zap.Int("count", closed))
	}
	return closed, nil
}

// documentNumber builds a human-readable document number like
// RFQ-20260828-4F2A. The suffix comes from a fresh uuid, so collisions
// within a day are as unlikely as uuid prefix collisions; the uuid
// primary key stays the real identity.
func documentNumber(prefix string, now time.Time) string {
	id := uuid.New()
	suffix := strings.ToUpper(hex.EncodeToString(id[:2]))
	return fmt.Sprintf("%s-%s-%s", prefix, now.Format("20060102"), suffix)
}

// acceptOutcome maps an accept error to its metric label.
func acceptOutcome(err error) string {
	switch {
	case errors.Is(err, model.ErrAlreadyClosed):
		return "lost_race"
	case errors.Is(err, model.ErrExpired):
		return "expired"
	case errors.Is(err, model.ErrInvalidState), errors.Is(err, model.ErrUnauthorized), errors.Is(err, model.ErrNotFound):
		return "invalid"
	default:
		return "error"
	}
}
