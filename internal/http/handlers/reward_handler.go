package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/likefeed/backend/internal/apperr"
	"github.com/likefeed/backend/internal/models"
	"github.com/likefeed/backend/internal/repositories"
)

type AttemptReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.RewardAttempt, error)
}

type AuditReader interface {
	GetByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]models.AuditLog, error)
}

type RewardHandler struct {
	attempts AttemptReader
	audit    AuditReader
	log      *zap.Logger
}

func NewRewardHandler(attempts AttemptReader, audit AuditReader, log *zap.Logger) *RewardHandler {
	return &RewardHandler{attempts: attempts, audit: audit, log: log}
}

// GetAttempt lets a caller follow a reconciling like to completion.
// GET /rewards/:id
func (h *RewardHandler) GetAttempt(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return respondError(c, h.log, apperr.New(apperr.KindInvalidArgument, "attempt id must be a uuid"))
	}

	attempt, err := h.attempts.GetByID(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "reward attempt not found"})
		}
		return respondError(c, h.log, err)
	}
	return ok(c, fiber.StatusOK, attempt)
}

// GetAudit
// GET /audit/:entityType/:entityId
func (h *RewardHandler) GetAudit(c *fiber.Ctx) error {
	limit, offset := pageParams(c)
	logs, err := h.audit.GetByEntity(c.UserContext(), c.Params("entityType"), c.Params("entityId"), limit, offset)
	if err != nil {
		return respondError(c, h.log, err)
	}
	if logs == nil {
		logs = []models.AuditLog{}
	}
	return ok(c, fiber.StatusOK, logs)
}
