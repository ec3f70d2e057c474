// Package payments authorizes payment for freshly converted orders
// against the external payment partner. Authorization is advisory at
// conversion time: a declined or unreachable gateway leaves the order
// pending and is retried out of band.
package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/freshhhy/rfq-engine/internal/httpclient"
	"github.com/freshhhy/rfq-engine/internal/rate"
	"github.com/freshhhy/rfq-engine/pkg/model"
)

// Gateway calls the payment partner's authorization endpoint. It
// satisfies orders.Payments.
type Gateway struct {
	exec    *httpclient.Executor
	baseURL string
	apiKey  string
	logger  *zap.Logger
}

// NewGateway builds a payment gateway client with retrying, rate-limited
// HTTP underneath.
func NewGateway(baseURL, apiKey string, logger *zap.Logger) *Gateway {
	limits := rate.NewManager(rate.Config{RequestsPerSecond: 10, Burst: 20})
	exec := httpclient.New(logger, limits, &http.Client{Timeout: 10 * time.Second}, 2, "payments", decodeGatewayError)

	return &Gateway{
		exec:    exec,
		baseURL: baseURL,
		apiKey:  apiKey,
		logger:  logger,
	}
}

type authorizeRequest struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	BuyerID     string `json:"buyer_id"`
	VendorID    string `json:"vendor_id"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
}

type authorizeResponse struct {
	AuthorizationID string `json:"authorization_id"`
	Status          string `json:"status"`
}

// Authorize requests a payment hold for the order's total amount.
func (g *Gateway) Authorize(ctx context.Context, o *model.Order) error {
	payload, err := json.Marshal(authorizeRequest{
		OrderID:     o.ID,
		OrderNumber: o.Number,
		BuyerID:     o.BuyerID,
		VendorID:    o.VendorID,
		Amount:      o.TotalAmount.String(),
		Currency:    "AUD",
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/authorizations", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	var resp authorizeResponse
	if err := g.exec.DoJSON(ctx, req, "authorize:"+o.BuyerID, &resp); err != nil {
		return err
	}
	if resp.Status != "authorized" {
		return fmt.Errorf("payment not authorized: status %q", resp.Status)
	}

	g.logger.Info("payments.authorized",
		zap.String("order_id", o.ID),
		zap.String("authorization_id", resp.AuthorizationID))
	return nil
}

// decodeGatewayError surfaces the partner's error body on 4xx responses.
func decodeGatewayError(status int, body []byte) error {
	var parsed struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		return fmt.Errorf("payment gateway %d %s: %s", status, parsed.Code, parsed.Message)
	}
	return fmt.Errorf("payment gateway returned %d", status)
}
