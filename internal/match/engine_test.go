package match

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/freshhhy/rfq-engine/pkg/model"
)

type fakePresence struct {
	vendors []model.VendorPresence
	err     error
}

func (f *fakePresence) OnlineVendorsWithAnyOf(ctx context.Context, productIDs []string) ([]model.VendorPresence, error) {
	return f.vendors, f.err
}

type fakeMatchStore struct {
	upserts []model.VendorMatch
}

func (f *fakeMatchStore) UpsertMatch(ctx context.Context, m model.VendorMatch) error {
	for i, existing := range f.upserts {
		if existing.RFQID == m.RFQID && existing.VendorID == m.VendorID {
			f.upserts[i] = m
			return nil
		}
	}
	f.upserts = append(f.upserts, m)
	return nil
}

func (f *fakeMatchStore) ListMatches(ctx context.Context, rfqID string) ([]model.VendorMatch, error) {
	var out []model.VendorMatch
	for _, m := range f.upserts {
		if m.RFQID == rfqID {
			out = append(out, m)
		}
	}
	return out, nil
}

func testRFQ(products ...string) *model.RFQ {
	items := make([]model.RFQItem, 0, len(products))
	for _, p := range products {
		items = append(items, model.RFQItem{ProductID: p, ProductName: "item " + p, Quantity: 1, Unit: "kg"})
	}
	return &model.RFQ{
		ID:       "rfq-1",
		Number:   "RFQ-20260828-0001",
		BuyerID:  "buyer-1",
		Status:   model.RFQOpen,
		Items:    items,
		ClosesAt: time.Now().Add(72 * time.Hour),
	}
}

func online(vendorID string, products ...string) model.VendorPresence {
	return model.VendorPresence{
		VendorID:            vendorID,
		IsOnline:            true,
		LastHeartbeat:       time.Now(),
		AvailableProductIDs: products,
	}
}

func TestScore(t *testing.T) {
	assert.Equal(t, 1.0, Score(4, 4))
	assert.Equal(t, 0.5, Score(2, 4))
	assert.Equal(t, 0.33, Score(1, 3))
	assert.Equal(t, 0.67, Score(2, 3))
	assert.Equal(t, 0.0, Score(0, 4))
	assert.Equal(t, 0.0, Score(0, 0))
}

func TestFindMatchesScoresAndOrders(t *testing.T) {
	presence := &fakePresence{vendors: []model.VendorPresence{
		online("vendor-b", "p1"),
		online("vendor-a", "p1", "p2", "p3", "p4"),
		online("vendor-c", "p1", "p2"),
	}}
	store := &fakeMatchStore{}
	engine := NewEngine(presence, store, zap.NewNop())

	matches, err := engine.FindMatches(context.Background(), testRFQ("p1", "p2", "p3", "p4"))
	require.NoError(t, err)
	require.Len(t, matches, 3)

	assert.Equal(t, "vendor-a", matches[0].VendorID)
	assert.Equal(t, 1.0, matches[0].MatchScore)
	assert.Equal(t, []string{"p1", "p2", "p3", "p4"}, matches[0].MatchedProductIDs)

	assert.Equal(t, "vendor-c", matches[1].VendorID)
	assert.Equal(t, 0.5, matches[1].MatchScore)

	assert.Equal(t, "vendor-b", matches[2].VendorID)
	assert.Equal(t, 0.25, matches[2].MatchScore)

	assert.Len(t, store.upserts, 3)
}

func TestFindMatchesTieBreaksByVendorID(t *testing.T) {
	presence := &fakePresence{vendors: []model.VendorPresence{
		online("vendor-z", "p1"),
		online("vendor-a", "p2"),
	}}
	engine := NewEngine(presence, &fakeMatchStore{}, zap.NewNop())

	matches, err := engine.FindMatches(context.Background(), testRFQ("p1", "p2"))
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "vendor-a", matches[0].VendorID)
	assert.Equal(t, "vendor-z", matches[1].VendorID)
}

func TestFindMatchesSkipsZeroOverlap(t *testing.T) {
	presence := &fakePresence{vendors: []model.VendorPresence{
		online("vendor-a", "p9"),
	}}
	store := &fakeMatchStore{}
	engine := NewEngine(presence, store, zap.NewNop())

	matches, err := engine.FindMatches(context.Background(), testRFQ("p1"))
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.Empty(t, store.upserts)
}

func TestFindMatchesFreeTextOnlyRFQ(t *testing.T) {
	rfq := &model.RFQ{
		ID:      "rfq-free",
		BuyerID: "buyer-1",
		Status:  model.RFQOpen,
		Items:   []model.RFQItem{{ProductName: "anything organic", Quantity: 2, Unit: "box"}},
	}
	engine := NewEngine(&fakePresence{}, &fakeMatchStore{}, zap.NewNop())

	matches, err := engine.FindMatches(context.Background(), rfq)
	require.NoError(t, err)
	assert.Nil(t, matches)
}

func TestFindMatchesDuplicateProductIDsCountOnce(t *testing.T) {
	// Two RFQ lines for the same product count as one requested product.
	presence := &fakePresence{vendors: []model.VendorPresence{
		online("vendor-a", "p1"),
	}}
	engine := NewEngine(presence, &fakeMatchStore{}, zap.NewNop())

	rfq := testRFQ("p1", "p1", "p2")
	matches, err := engine.FindMatches(context.Background(), rfq)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, 0.5, matches[0].MatchScore)
}
