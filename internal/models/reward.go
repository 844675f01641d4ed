package models

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Reward attempt statuses
const (
	AttemptStatusPending   = "pending"   // recorded, nothing signed yet
	AttemptStatusSigned    = "signed"    // hash and nonce known, broadcast in progress
	AttemptStatusSubmitted = "submitted" // accepted by the node, counter not yet incremented
	AttemptStatusCounted   = "counted"   // like_count incremented
	AttemptStatusFailed    = "failed"    // definitely not broadcast
	AttemptStatusUnknown   = "unknown"   // broadcast timed out
)

// Receipt statuses recorded by the reconciler once a counted transfer is mined.
const (
	ReceiptStatusSuccess  = "success"
	ReceiptStatusReverted = "reverted"
)

// Valid attempt transitions: from -> []to
var ValidAttemptTransitions = map[string][]string{
	AttemptStatusPending:   {AttemptStatusSigned, AttemptStatusFailed},
	AttemptStatusSigned:    {AttemptStatusSubmitted, AttemptStatusFailed, AttemptStatusUnknown},
	AttemptStatusUnknown:   {AttemptStatusSubmitted, AttemptStatusFailed},
	AttemptStatusSubmitted: {AttemptStatusCounted},
	AttemptStatusCounted:   {},
	AttemptStatusFailed:    {},
}

func IsValidAttemptTransition(from, to string) bool {
	allowed, ok := ValidAttemptTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// RewardTransaction is the logical transfer built for one like event. It is
// never persisted as such; only its hash and outcome feed the attempt row.
type RewardTransaction struct {
	Content          ContentRef
	RewarderAddress  string
	RecipientAddress string
	TokenAddress     string // empty for native transfers
	Amount           *big.Int
	Nonce            uint64
	GasPrice         *big.Int
	GasLimit         uint64
	ChainID          *big.Int
	TxHash           string
}

// RewardAttempt is the persisted audit row for one settlement attempt.
type RewardAttempt struct {
	ID               uuid.UUID   `json:"id"`
	ContentType      ContentType `json:"content_type"`
	ContentID        int64       `json:"content_id"`
	ActorAddress     string      `json:"actor_address"`
	PayerAddress     string      `json:"payer_address"`
	RecipientAddress string      `json:"recipient_address"`
	Amount           string      `json:"amount"`
	AmountBaseUnits  string      `json:"amount_base_units"`
	IdempotencyKey   *string     `json:"idempotency_key,omitempty"`
	Status           string      `json:"status"`
	TxHash           *string     `json:"tx_hash,omitempty"`
	Nonce            *int64      `json:"nonce,omitempty"`
	Error            *string     `json:"error,omitempty"`
	ReceiptStatus    *string     `json:"receipt_status,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

func (a *RewardAttempt) Ref() ContentRef {
	return ContentRef{Type: a.ContentType, ID: a.ContentID}
}
