package store

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/freshhhy/rfq-engine/pkg/model"
)

// UpsertMatch writes one vendor-match row keyed (rfq_id, vendor_id).
// Re-matching an RFQ overwrites score and matched set without
// duplicating rows or resetting the notified/responded flags.
func (s *HybridStore) UpsertMatch(ctx context.Context, m model.VendorMatch) error {
	_, err := s.PG.Exec(ctx, `
		INSERT INTO marketplace.rfq_vendor_matches (
			rfq_id, vendor_id, matched_product_ids, match_score,
			is_notified, vendor_responded, updated_at
		)
		VALUES ($1, $2, $3, $4, FALSE, FALSE, NOW())
		ON CONFLICT (rfq_id, vendor_id)
		DO UPDATE SET
			matched_product_ids = EXCLUDED.matched_product_ids,
			match_score = EXCLUDED.match_score,
			updated_at = NOW();
	`, m.RFQID, m.VendorID, m.MatchedProductIDs, m.MatchScore)
	if err != nil {
		s.logger.Error("store.pg.upsert_match_failed",
			zap.String("rfq_id", m.RFQID),
			zap.String("vendor_id", m.VendorID),
			zap.Error(err))
	}
	return err
}

// ListMatches returns the match rows for an RFQ ordered by score
// descending, vendor id ascending.
func (s *HybridStore) ListMatches(ctx context.Context, rfqID string) ([]model.VendorMatch, error) {
	rows, err := s.PG.Query(ctx, `
		SELECT rfq_id, vendor_id, matched_product_ids, match_score,
		       is_notified, vendor_responded, notified_at, responded_at
		FROM marketplace.rfq_vendor_matches
		WHERE rfq_id = $1
		ORDER BY match_score DESC, vendor_id ASC
	`, rfqID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []model.VendorMatch
	for rows.Next() {
		var m model.VendorMatch
		if err := rows.Scan(&m.RFQID, &m.VendorID, &m.MatchedProductIDs, &m.MatchScore,
			&m.IsNotified, &m.VendorResponded, &m.NotifiedAt, &m.RespondedAt); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// MarkMatchesNotified flips is_notified for the given vendors. Called in
// the same transaction as the outbox enqueue via EnqueueRFQBroadcast.
func (s *HybridStore) markMatchesNotified(ctx context.Context, q querier, rfqID string, vendorIDs []string, now time.Time) error {
	_, err := q.Exec(ctx, `
		UPDATE marketplace.rfq_vendor_matches
		SET is_notified = TRUE, notified_at = $3
		WHERE rfq_id = $1 AND vendor_id = ANY($2)
	`, rfqID, vendorIDs, now)
	return err
}
