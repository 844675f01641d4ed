package dto

import "github.com/likefeed/backend/internal/models"

type CreatePostRequest struct {
	AuthorAddress string `json:"author_address"`
	Body          string `json:"body"`
	Hash          string `json:"hash,omitempty"` // client-computed content hash, e.g. an IPFS CID
}

type CreateCommentRequest struct {
	AuthorAddress string `json:"author_address"`
	PostID        int64  `json:"post_id"`
	Body          string `json:"body"`
	Hash          string `json:"hash,omitempty"`
}

// LikeRequest's Amount is a decimal in token units, as a string or a number;
// empty uses the configured reward.
type LikeRequest struct {
	ContentType    string        `json:"content_type"`
	ContentID      int64         `json:"content_id"`
	ActorAddress   string        `json:"actor_address"`
	Amount         models.Amount `json:"amount,omitempty"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
}

type RegisterWalletRequest struct {
	Address    string `json:"address"`
	SigningKey string `json:"signing_key"`
}

type TransferRequest struct {
	ToAddress string        `json:"to_address"`
	Amount    models.Amount `json:"amount"`
}
