package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/freshhhy/rfq-engine/internal/ledger"
	"github.com/freshhhy/rfq-engine/internal/store"
	"github.com/freshhhy/rfq-engine/pkg/model"
)

type stubLedger struct {
	createErr error
	submitErr error
	acceptErr error
	cancelErr error
	accepted  *store.AcceptResult
}

func (s *stubLedger) CreateRFQ(ctx context.Context, in ledger.CreateRFQInput) (*model.RFQ, []model.VendorMatch, error) {
	if s.createErr != nil {
		return nil, nil, s.createErr
	}
	return &model.RFQ{ID: "rfq-1", BuyerID: in.BuyerID, Title: in.Title, Status: model.RFQOpen},
		[]model.VendorMatch{{RFQID: "rfq-1", VendorID: "v1", MatchScore: 1.0}}, nil
}

func (s *stubLedger) GetRFQ(ctx context.Context, id string) (*model.RFQ, []model.Quote, error) {
	if id != "rfq-1" {
		return nil, nil, fmt.Errorf("rfq: %w", model.ErrNotFound)
	}
	return &model.RFQ{ID: id, Status: model.RFQOpen}, nil, nil
}

func (s *stubLedger) SubmitQuote(ctx context.Context, in ledger.SubmitQuoteInput) (*model.Quote, error) {
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	return &model.Quote{ID: "q1", RFQID: in.RFQID, VendorID: in.VendorID, Status: model.QuoteSubmitted}, nil
}

func (s *stubLedger) AcceptQuote(ctx context.Context, quoteID, buyerID string) (*store.AcceptResult, error) {
	if s.acceptErr != nil {
		return nil, s.acceptErr
	}
	return s.accepted, nil
}

func (s *stubLedger) CancelRFQ(ctx context.Context, rfqID, buyerID, reason string) (*model.RFQ, error) {
	if s.cancelErr != nil {
		return nil, s.cancelErr
	}
	return &model.RFQ{ID: rfqID, Status: model.RFQCancelled, CancellationReason: reason}, nil
}

type stubOrders struct {
	convertErr error
}

func (s *stubOrders) Convert(ctx context.Context, quoteID string) (*model.Order, error) {
	if s.convertErr != nil {
		return nil, s.convertErr
	}
	return &model.Order{ID: "o1", QuoteID: quoteID, Status: model.OrderPending}, nil
}

func (s *stubOrders) ByQuote(ctx context.Context, quoteID string) (*model.Order, error) {
	return &model.Order{ID: "o1", QuoteID: quoteID}, nil
}

type stubPresence struct {
	heartbeatErr error
	online       int
}

func (s *stubPresence) MarkOnline(ctx context.Context, vendorID, sessionToken string, productIDs []string) error {
	return nil
}
func (s *stubPresence) MarkOffline(ctx context.Context, vendorID, reason string) error { return nil }
func (s *stubPresence) Heartbeat(ctx context.Context, vendorID string) error {
	return s.heartbeatErr
}
func (s *stubPresence) OnlineVendorCount(ctx context.Context) (int, error) { return s.online, nil }

func newTestApp(l *stubLedger, o *stubOrders, p *stubPresence) *fiber.App {
	app := fiber.New()
	h := NewHandler(zap.NewNop(), l, o, p, nil)

	v1 := app.Group("/api/v1")
	v1.Post("/rfqs", h.CreateRFQ)
	v1.Get("/rfqs/:id", h.GetRFQ)
	v1.Post("/rfqs/:id/cancel", h.CancelRFQ)
	v1.Post("/rfqs/:id/quotes", h.SubmitQuote)
	v1.Post("/quotes/:id/accept", h.AcceptQuote)
	v1.Post("/quotes/:id/convert", h.ConvertQuote)
	v1.Get("/quotes/:id/order", h.GetOrderByQuote)
	v1.Post("/presence/:vendorId/heartbeat", h.VendorHeartbeat)
	v1.Get("/presence/count", h.PresenceCount)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var parsed map[string]any
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &parsed))
	}
	return resp.StatusCode, parsed
}

func TestCreateRFQEndpoint(t *testing.T) {
	app := newTestApp(&stubLedger{}, &stubOrders{}, &stubPresence{})

	status, body := doJSON(t, app, "POST", "/api/v1/rfqs", map[string]any{
		"buyer_id": "buyer-1",
		"title":    "weekly produce",
		"items": []map[string]any{
			{"product_name": "tomatoes", "quantity": 10, "unit": "kg"},
		},
	})
	assert.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, float64(1), body["matched_vendors"])
}

func TestCreateRFQValidationError(t *testing.T) {
	app := newTestApp(&stubLedger{}, &stubOrders{}, &stubPresence{})

	status, body := doJSON(t, app, "POST", "/api/v1/rfqs", map[string]any{
		"buyer_id": "buyer-1",
		"title":    "no items",
		"items":    []map[string]any{},
	})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Contains(t, body["error"], "at least one item")
}

func TestGetRFQNotFound(t *testing.T) {
	app := newTestApp(&stubLedger{}, &stubOrders{}, &stubPresence{})

	status, _ := doJSON(t, app, "GET", "/api/v1/rfqs/nope", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestAcceptQuoteLostRace(t *testing.T) {
	l := &stubLedger{acceptErr: fmt.Errorf("rfq rfq-1: %w", model.ErrAlreadyClosed)}
	app := newTestApp(l, &stubOrders{}, &stubPresence{})

	status, body := doJSON(t, app, "POST", "/api/v1/quotes/q1/accept", map[string]any{"buyer_id": "buyer-1"})
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "quote is no longer available", body["error"])
}

func TestAcceptQuoteExpired(t *testing.T) {
	l := &stubLedger{acceptErr: fmt.Errorf("quote q1: %w", model.ErrExpired)}
	app := newTestApp(l, &stubOrders{}, &stubPresence{})

	status, _ := doJSON(t, app, "POST", "/api/v1/quotes/q1/accept", map[string]any{"buyer_id": "buyer-1"})
	assert.Equal(t, fiber.StatusConflict, status)
}

func TestAcceptQuoteWrongOwner(t *testing.T) {
	l := &stubLedger{acceptErr: fmt.Errorf("quote q1: %w", model.ErrUnauthorized)}
	app := newTestApp(l, &stubOrders{}, &stubPresence{})

	status, _ := doJSON(t, app, "POST", "/api/v1/quotes/q1/accept", map[string]any{"buyer_id": "buyer-2"})
	assert.Equal(t, fiber.StatusForbidden, status)
}

func TestAcceptQuoteSuccess(t *testing.T) {
	winID := "q1"
	l := &stubLedger{accepted: &store.AcceptResult{
		Winner:           model.Quote{ID: winID, Status: model.QuoteAccepted},
		RFQ:              model.RFQ{ID: "rfq-1", Status: model.RFQClosed, WinningQuoteID: &winID},
		RejectedQuoteIDs: []string{"q2"},
	}}
	app := newTestApp(l, &stubOrders{}, &stubPresence{})

	status, body := doJSON(t, app, "POST", "/api/v1/quotes/q1/accept", map[string]any{"buyer_id": "buyer-1"})
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, []any{"q2"}, body["rejected_quotes"])
}

func TestConvertQuoteAlreadyConverted(t *testing.T) {
	o := &stubOrders{convertErr: fmt.Errorf("quote q1: %w", model.ErrAlreadyConverted)}
	app := newTestApp(&stubLedger{}, o, &stubPresence{})

	status, body := doJSON(t, app, "POST", "/api/v1/quotes/q1/convert", nil)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Contains(t, body["error"], "already converted")
}

func TestSubmitQuoteInvalidBody(t *testing.T) {
	app := newTestApp(&stubLedger{}, &stubOrders{}, &stubPresence{})

	status, _ := doJSON(t, app, "POST", "/api/v1/rfqs/rfq-1/quotes", map[string]any{
		"vendor_id": "",
	})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
}

func TestHeartbeatUnknownVendor(t *testing.T) {
	p := &stubPresence{heartbeatErr: fmt.Errorf("vendor ghost: %w", model.ErrNotFound)}
	app := newTestApp(&stubLedger{}, &stubOrders{}, p)

	status, _ := doJSON(t, app, "POST", "/api/v1/presence/ghost/heartbeat", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestPresenceCount(t *testing.T) {
	app := newTestApp(&stubLedger{}, &stubOrders{}, &stubPresence{online: 3})

	status, body := doJSON(t, app, "GET", "/api/v1/presence/count", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(3), body["online_vendors"])
}
