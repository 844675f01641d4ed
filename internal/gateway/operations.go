// Package gateway decodes function-call envelopes into a closed set of typed
// operations and executes them against the services.
package gateway

import (
	"github.com/likefeed/backend/internal/secret"
	"github.com/likefeed/backend/internal/services"
)

// Operation names accepted in the envelope's "function" field.
const (
	OpWritePost      = "write_post"
	OpWriteComment   = "write_comment"
	OpIncrementLike  = "increment_like"
	OpRegisterWallet = "register_wallet"
	OpListContent    = "list_content"
	OpTransferToken  = "transfer_token"
)

// Operation is implemented only by the types in this file, so a type switch
// over them is exhaustive.
type Operation interface {
	Name() string
	sealed()
}

type WritePost struct {
	Request services.WritePostRequest
}

type WriteComment struct {
	Request services.WriteCommentRequest
}

type IncrementLike struct {
	Request services.LikeRequest
}

type RegisterWallet struct {
	Address    string
	SigningKey secret.SigningKey
}

type ListContent struct {
	Limit int
}

type TransferToken struct {
	Request services.TransferRequest
}

func (WritePost) Name() string      { return OpWritePost }
func (WriteComment) Name() string   { return OpWriteComment }
func (IncrementLike) Name() string  { return OpIncrementLike }
func (RegisterWallet) Name() string { return OpRegisterWallet }
func (ListContent) Name() string    { return OpListContent }
func (TransferToken) Name() string  { return OpTransferToken }

func (WritePost) sealed()      {}
func (WriteComment) sealed()   {}
func (IncrementLike) sealed()  {}
func (RegisterWallet) sealed() {}
func (ListContent) sealed()    {}
func (TransferToken) sealed()  {}
