package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/likefeed/backend/internal/http/dto"
	"github.com/likefeed/backend/internal/services"
)

type WalletService interface {
	RegisterWallet(ctx context.Context, address, signingKeyHex string) (*services.RegisterWalletResult, error)
}

type WalletHandler struct {
	wallets WalletService
	log     *zap.Logger
}

func NewWalletHandler(wallets WalletService, log *zap.Logger) *WalletHandler {
	return &WalletHandler{wallets: wallets, log: log}
}

// Register stores or rotates a custodial wallet.
// PUT /wallets
func (h *WalletHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterWalletRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	res, err := h.wallets.RegisterWallet(c.UserContext(), req.Address, req.SigningKey)
	if err != nil {
		return respondError(c, h.log, err)
	}

	status := fiber.StatusCreated
	if res.Rotated {
		status = fiber.StatusOK
	}
	return ok(c, status, res)
}
