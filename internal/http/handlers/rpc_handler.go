package handlers

import (
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/likefeed/backend/internal/apperr"
	"github.com/likefeed/backend/internal/gateway"
	"github.com/likefeed/backend/internal/middleware"
	"github.com/likefeed/backend/internal/rbac"
)

type OperationExecutor interface {
	Execute(ctx context.Context, op gateway.Operation) (any, error)
}

type RPCHandler struct {
	executor OperationExecutor
	log      *zap.Logger
}

func NewRPCHandler(executor OperationExecutor, log *zap.Logger) *RPCHandler {
	return &RPCHandler{executor: executor, log: log}
}

// Execute runs one function-call envelope.
// POST /api/v1/rpc, POST /llm/execute
func (h *RPCHandler) Execute(c *fiber.Ctx) error {
	var env gateway.Envelope
	if err := json.Unmarshal(c.Body(), &env); err != nil {
		return badBody(c)
	}

	op, err := gateway.Decode(env)
	if err != nil {
		return respondError(c, h.log, err)
	}

	role := middleware.GetRole(c)
	if !rbac.CanExecute(role, op.Name()) {
		return respondError(c, h.log, apperr.New(apperr.KindForbidden, "role %s may not call %s", role, op.Name()))
	}

	res, err := h.executor.Execute(c.UserContext(), op)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return ok(c, fiber.StatusOK, res)
}
