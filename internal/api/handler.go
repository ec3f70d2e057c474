package api

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/freshhhy/rfq-engine/internal/ledger"
	"github.com/freshhhy/rfq-engine/internal/rate"
	"github.com/freshhhy/rfq-engine/internal/store"
	"github.com/freshhhy/rfq-engine/pkg/model"
)

// LedgerService is the RFQ/quote lifecycle surface used by the handler.
type LedgerService interface {
	CreateRFQ(ctx context.Context, in ledger.CreateRFQInput) (*model.RFQ, []model.VendorMatch, error)
	GetRFQ(ctx context.Context, id string) (*model.RFQ, []model.Quote, error)
	SubmitQuote(ctx context.Context, in ledger.SubmitQuoteInput) (*model.Quote, error)
	AcceptQuote(ctx context.Context, quoteID, buyerID string) (*store.AcceptResult, error)
	CancelRFQ(ctx context.Context, rfqID, buyerID, reason string) (*model.RFQ, error)
}

// OrderService converts accepted quotes to orders.
type OrderService interface {
	Convert(ctx context.Context, quoteID string) (*model.Order, error)
	ByQuote(ctx context.Context, quoteID string) (*model.Order, error)
}

// PresenceService is the vendor presence surface used by the handler.
type PresenceService interface {
	MarkOnline(ctx context.Context, vendorID, sessionToken string, productIDs []string) error
	MarkOffline(ctx context.Context, vendorID, reason string) error
	Heartbeat(ctx context.Context, vendorID string) error
	OnlineVendorCount(ctx context.Context) (int, error)
}

// Handler serves the REST API.
type Handler struct {
	logger   *zap.Logger
	ledger   LedgerService
	orders   OrderService
	presence PresenceService
	limits   *rate.Manager // per-vendor heartbeat throttling
}

func NewHandler(logger *zap.Logger, ledger LedgerService, orders OrderService, presence PresenceService, limits *rate.Manager) *Handler {
	return &Handler{
		logger:   logger,
		ledger:   ledger,
		orders:   orders,
		presence: presence,
		limits:   limits,
	}
}

// CreateRFQ handles POST /api/v1/rfqs.
func (h *Handler) CreateRFQ(c *fiber.Ctx) error {
	var req RFQCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err.Error())
	}
	if err := req.Validate(); err != nil {
		return validationError(c, err)
	}

	rfq, matches, err := h.ledger.CreateRFQ(c.Context(), ledger.CreateRFQInput{
		BuyerID:         req.BuyerID,
		Title:           req.Title,
		Description:     req.Description,
		Items:           req.Items2Model(),
		DeliveryDate:    req.DeliveryDate,
		DeliveryTime:    req.DeliveryTime,
		DeliveryAddress: req.DeliveryAddress,
	})
	if err != nil {
		h.logger.Error("api.create_rfq.failed",
			zap.String("buyer_id", req.BuyerID), zap.Error(err))
		return domainError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"rfq":             rfq,
		"matched_vendors": len(matches),
	})
}

// GetRFQ handles GET /api/v1/rfqs/:id.
func (h *Handler) GetRFQ(c *fiber.Ctx) error {
	rfq, quotes, err := h.ledger.GetRFQ(c.Context(), c.Params("id"))
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(fiber.Map{
		"rfq":    rfq,
		"quotes": quotes,
	})
}

// CancelRFQ handles POST /api/v1/rfqs/:id/cancel.
func (h *Handler) CancelRFQ(c *fiber.Ctx) error {
	var req RFQCancelRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err.Error())
	}
	if err := req.Validate(); err != nil {
		return validationError(c, err)
	}

	rfq, err := h.ledger.CancelRFQ(c.Context(), c.Params("id"), req.BuyerID, req.Reason)
	if err != nil {
		h.logger.Warn("api.cancel_rfq.failed",
			zap.String("rfq_id", c.Params("id")), zap.Error(err))
		return domainError(c, err)
	}
	return c.JSON(fiber.Map{"rfq": rfq})
}

// SubmitQuote handles POST /api/v1/rfqs/:id/quotes.
func (h *Handler) SubmitQuote(c *fiber.Ctx) error {
	var req QuoteSubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err.Error())
	}
	if err := req.Validate(); err != nil {
		return validationError(c, err)
	}

	quote, err := h.ledger.SubmitQuote(c.Context(), ledger.SubmitQuoteInput{
		RFQID:          c.Params("id"),
		VendorID:       req.VendorID,
		Subtotal:       req.Subtotal,
		TaxAmount:      req.TaxAmount,
		DeliveryCharge: req.DeliveryCharge,
		DiscountAmount: req.DiscountAmount,
		LineItems:      req.LineItems2Model(),
		Notes:          req.Notes,
		Attachments:    req.Attachments,
	})
	if err != nil {
		h.logger.Warn("api.submit_quote.failed",
			zap.String("rfq_id", c.Params("id")),
			zap.String("vendor_id", req.VendorID),
			zap.Error(err))
		return domainError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"quote": quote})
}

// AcceptQuote handles POST /api/v1/quotes/:id/accept.
func (h *Handler) AcceptQuote(c *fiber.Ctx) error {
	var req QuoteAcceptRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err.Error())
	}
	if err := req.Validate(); err != nil {
		return validationError(c, err)
	}

	res, err := h.ledger.AcceptQuote(c.Context(), c.Params("id"), req.BuyerID)
	if err != nil {
		h.logger.Warn("api.accept_quote.failed",
			zap.String("quote_id", c.Params("id")),
			zap.String("buyer_id", req.BuyerID),
			zap.Error(err))
		return domainError(c, err)
	}

	return c.JSON(fiber.Map{
		"quote":           res.Winner,
		"rfq":             res.RFQ,
		"rejected_quotes": res.RejectedQuoteIDs,
	})
}

// ConvertQuote handles POST /api/v1/quotes/:id/convert.
func (h *Handler) ConvertQuote(c *fiber.Ctx) error {
	order, err := h.orders.Convert(c.Context(), c.Params("id"))
	if err != nil {
		h.logger.Warn("api.convert_quote.failed",
			zap.String("quote_id", c.Params("id")), zap.Error(err))
		return domainError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"order": order})
}

// GetOrderByQuote handles GET /api/v1/quotes/:id/order.
func (h *Handler) GetOrderByQuote(c *fiber.Ctx) error {
	order, err := h.orders.ByQuote(c.Context(), c.Params("id"))
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(fiber.Map{"order": order})
}

// VendorOnline handles POST /api/v1/presence/:vendorId/online.
func (h *Handler) VendorOnline(c *fiber.Ctx) error {
	var req PresenceOnlineRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err.Error())
	}

	vendorID := c.Params("vendorId")
	if err := h.presence.MarkOnline(c.Context(), vendorID, req.SessionToken, req.ProductIDs); err != nil {
		h.logger.Error("api.vendor_online.failed",
			zap.String("vendor_id", vendorID), zap.Error(err))
		return domainError(c, err)
	}
	return c.JSON(fiber.Map{"status": "online"})
}

// VendorOffline handles POST /api/v1/presence/:vendorId/offline.
func (h *Handler) VendorOffline(c *fiber.Ctx) error {
	vendorID := c.Params("vendorId")
	if err := h.presence.MarkOffline(c.Context(), vendorID, "logout"); err != nil {
		h.logger.Error("api.vendor_offline.failed",
			zap.String("vendor_id", vendorID), zap.Error(err))
		return domainError(c, err)
	}
	return c.JSON(fiber.Map{"status": "offline"})
}

// VendorHeartbeat handles POST /api/v1/presence/:vendorId/heartbeat.
// Heartbeats are throttled per vendor; a client pinging faster than the
// limit gets 429 and keeps its presence unchanged.
func (h *Handler) VendorHeartbeat(c *fiber.Ctx) error {
	vendorID := c.Params("vendorId")

	if h.limits != nil && !h.limits.GetLimiter("heartbeat:"+vendorID).Allow() {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "heartbeat rate exceeded"})
	}

	if err := h.presence.Heartbeat(c.Context(), vendorID); err != nil {
		return domainError(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// PresenceCount handles GET /api/v1/presence/count.
func (h *Handler) PresenceCount(c *fiber.Ctx) error {
	count, err := h.presence.OnlineVendorCount(c.Context())
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(fiber.Map{"online_vendors": count})
}
