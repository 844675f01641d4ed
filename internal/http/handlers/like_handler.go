package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/likefeed/backend/internal/http/dto"
	"github.com/likefeed/backend/internal/models"
	"github.com/likefeed/backend/internal/services"
)

type SettlementService interface {
	IncrementLike(ctx context.Context, req services.LikeRequest) (*services.LikeResult, error)
	Transfer(ctx context.Context, req services.TransferRequest) (*services.TransferResult, error)
}

type LikeHandler struct {
	settlement SettlementService
	log        *zap.Logger
}

func NewLikeHandler(settlement SettlementService, log *zap.Logger) *LikeHandler {
	return &LikeHandler{settlement: settlement, log: log}
}

// Like pays the author and counts the like.
// POST /likes
func (h *LikeHandler) Like(c *fiber.Ctx) error {
	var req dto.LikeRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.Get("Idempotency-Key")
	}

	res, err := h.settlement.IncrementLike(c.UserContext(), services.LikeRequest{
		ContentType:    models.ContentType(strings.ToLower(req.ContentType)),
		ContentID:      req.ContentID,
		ActorAddress:   req.ActorAddress,
		Amount:         string(req.Amount),
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}

	status := fiber.StatusOK
	if res.Reconciling {
		status = fiber.StatusAccepted
	}
	return ok(c, status, res)
}

// Transfer sends tokens from the treasury.
// POST /transfers
func (h *LikeHandler) Transfer(c *fiber.Ctx) error {
	var req dto.TransferRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	res, err := h.settlement.Transfer(c.UserContext(), services.TransferRequest{
		ToAddress: req.ToAddress,
		Amount:    string(req.Amount),
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return ok(c, fiber.StatusOK, res)
}
