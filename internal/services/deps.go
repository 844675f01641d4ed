package services

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/likefeed/backend/internal/chain"
	"github.com/likefeed/backend/internal/models"
	"github.com/likefeed/backend/internal/secret"
)

// The services depend on these narrow views of the repositories and the chain
// client; *repositories.XRepo and *chain.Client satisfy them.

type WalletStore interface {
	Upsert(ctx context.Context, address string, key secret.SigningKey) (rotated bool, err error)
	GetByAddress(ctx context.Context, address string) (*models.Wallet, error)
	Exists(ctx context.Context, address string) (bool, error)
}

type ContentStore interface {
	CreatePost(ctx context.Context, p *models.Post) error
	CreateComment(ctx context.Context, c *models.Comment) error
	Get(ctx context.Context, ref models.ContentRef) (*models.Content, error)
	ListPosts(ctx context.Context, limit, offset int) ([]models.Post, error)
	ListComments(ctx context.Context, postID *int64, limit, offset int) ([]models.Comment, error)
}

type RewardLedger interface {
	Begin(ctx context.Context, a *models.RewardAttempt) error
	MarkSigned(ctx context.Context, id uuid.UUID, txHash string, nonce uint64) error
	MarkSubmitted(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	MarkUnknown(ctx context.Context, id uuid.UUID, reason string) error
	Settle(ctx context.Context, id uuid.UUID) (int64, error)
}

type AuditLogger interface {
	Log(ctx context.Context, entry models.AuditLog) error
}

type TransferClient interface {
	Prepare(ctx context.Context, key secret.SigningKey, req chain.TransferRequest) (*chain.Quote, error)
	Submit(ctx context.Context, key secret.SigningKey, q *chain.Quote, beforeBroadcast func(*types.Transaction) error) (common.Hash, error)
}
