// Package match scores online vendors against an RFQ's requested
// product set. Scoring is a plain coverage ratio: matched / requested,
// rounded to two decimals. Only vendors currently online are considered;
// a vendor who comes online after matching is not retrofitted.
package match

import (
	"context"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/freshhhy/rfq-engine/pkg/model"
)

// PresenceSource yields the online vendors able to supply at least one
// of the given products. Satisfied by presence.Tracker.
type PresenceSource interface {
	OnlineVendorsWithAnyOf(ctx context.Context, productIDs []string) ([]model.VendorPresence, error)
}

// MatchStore persists vendor-match rows. Satisfied by store.HybridStore.
type MatchStore interface {
	UpsertMatch(ctx context.Context, m model.VendorMatch) error
	ListMatches(ctx context.Context, rfqID string) ([]model.VendorMatch, error)
}

// Engine computes and persists vendor matches for RFQs.
type Engine struct {
	presence PresenceSource
	store    MatchStore
	logger   *zap.Logger
}

func NewEngine(presence PresenceSource, store MatchStore, logger *zap.Logger) *Engine {
	return &Engine{presence: presence, store: store, logger: logger}
}

// Score returns |matched| / |requested| rounded to two decimals.
// A vendor with zero overlap scores 0 and is never matched.
func Score(matched, requested int) float64 {
	if requested == 0 {
		return 0
	}
	return math.Round(float64(matched)/float64(requested)*100) / 100
}

// FindMatches matches the RFQ against currently online vendors and
// persists one row per matching vendor. The result is ordered by score
// descending, vendor id ascending, so repeated runs over the same
// presence snapshot produce the same list. An RFQ whose items carry no
// product ids matches nothing.
func (e *Engine) FindMatches(ctx context.Context, rfq *model.RFQ) ([]model.VendorMatch, error) {
	requested := rfq.RequestedProductIDs()
	if len(requested) == 0 {
		e.logger.Info("match.no_product_ids", zap.String("rfq_id", rfq.ID))
		return nil, nil
	}

	vendors, err := e.presence.OnlineVendorsWithAnyOf(ctx, requested)
	if err != nil {
		return nil, err
	}

	matches := make([]model.VendorMatch, 0, len(vendors))
	for _, v := range vendors {
		matched := v.MatchedProducts(requested)
		if len(matched) == 0 {
			continue
		}
		m := model.VendorMatch{
			RFQID:             rfq.ID,
			VendorID:          v.VendorID,
			MatchedProductIDs: matched,
			MatchScore:        Score(len(matched), len(requested)),
		}
		if err := e.store.UpsertMatch(ctx, m); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].MatchScore != matches[j].MatchScore {
			return matches[i].MatchScore > matches[j].MatchScore
		}
		return matches[i].VendorID < matches[j].VendorID
	})

	e.logger.Info("match.complete",
		zap.String("rfq_id", rfq.ID),
		zap.Int("requested_products", len(requested)),
		zap.Int("matched_vendors", len(matches)))
	return matches, nil
}

// Matches returns the persisted match rows for an RFQ.
func (e *Engine) Matches(ctx context.Context, rfqID string) ([]model.VendorMatch, error) {
	return e.store.ListMatches(ctx, rfqID)
}
