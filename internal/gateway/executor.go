package gateway

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/likefeed/backend/internal/models"
	"github.com/likefeed/backend/internal/secret"
	"github.com/likefeed/backend/internal/services"
)

type Content interface {
	WritePost(ctx context.Context, req services.WritePostRequest) (*models.Post, error)
	WriteComment(ctx context.Context, req services.WriteCommentRequest) (*models.Comment, error)
	List(ctx context.Context, limit int) (*models.ContentListing, error)
}

type Wallets interface {
	Register(ctx context.Context, address string, key secret.SigningKey) (*services.RegisterWalletResult, error)
}

type Settlement interface {
	IncrementLike(ctx context.Context, req services.LikeRequest) (*services.LikeResult, error)
	Transfer(ctx context.Context, req services.TransferRequest) (*services.TransferResult, error)
}

// Executor dispatches decoded operations to the owning service.
type Executor struct {
	content    Content
	wallets    Wallets
	settlement Settlement
	log        *zap.Logger
}

func NewExecutor(content Content, wallets Wallets, settlement Settlement, log *zap.Logger) *Executor {
	return &Executor{content: content, wallets: wallets, settlement: settlement, log: log}
}

// Execute runs op and returns the service result unchanged.
func (e *Executor) Execute(ctx context.Context, op Operation) (any, error) {
	e.log.Debug("executing operation", zap.String("function", op.Name()))

	switch op := op.(type) {
	case WritePost:
		return e.content.WritePost(ctx, op.Request)
	case WriteComment:
		return e.content.WriteComment(ctx, op.Request)
	case IncrementLike:
		return e.settlement.IncrementLike(ctx, op.Request)
	case RegisterWallet:
		return e.wallets.Register(ctx, op.Address, op.SigningKey)
	case ListContent:
		return e.content.List(ctx, op.Limit)
	case TransferToken:
		return e.settlement.Transfer(ctx, op.Request)
	}
	panic(fmt.Sprintf("gateway: unhandled operation %T", op))
}

// Run decodes env and executes it.
func (e *Executor) Run(ctx context.Context, env Envelope) (any, error) {
	op, err := Decode(env)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, op)
}
