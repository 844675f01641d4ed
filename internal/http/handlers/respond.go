package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/likefeed/backend/internal/apperr"
	"github.com/likefeed/backend/internal/http/dto"
	"github.com/likefeed/backend/internal/middleware"
)

// respondError maps a classified failure onto its status code. Unclassified
// errors are logged and answered with a generic 500.
func respondError(c *fiber.Ctx, log *zap.Logger, err error) error {
	reqID := middleware.GetRequestID(c)

	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind == apperr.KindInternal {
		log.Error("request failed", zap.String("request_id", reqID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error:     "internal error",
			Kind:      string(apperr.KindInternal),
			RequestID: reqID,
		})
	}

	log.Debug("request rejected", zap.String("request_id", reqID), zap.String("kind", string(appErr.Kind)), zap.Error(err))
	return c.Status(apperr.HTTPStatus(appErr.Kind)).JSON(dto.ErrorResponse{
		Error:          appErr.Error(),
		Kind:           string(appErr.Kind),
		RequestID:      reqID,
		OutcomeUnknown: appErr.OutcomeUnknown,
	})
}

func badBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
		Error:     "invalid request body",
		Kind:      string(apperr.KindInvalidArgument),
		RequestID: middleware.GetRequestID(c),
	})
}

func ok(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(dto.SuccessResponse{OK: true, Data: data})
}
