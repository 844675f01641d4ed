package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/likefeed/backend/internal/apperr"
	"github.com/likefeed/backend/internal/chain"
	"github.com/likefeed/backend/internal/config"
	"github.com/likefeed/backend/internal/events"
	"github.com/likefeed/backend/internal/metrics"
	"github.com/likefeed/backend/internal/models"
	"github.com/likefeed/backend/internal/repositories"
)

// SettlementService turns a like into an on-chain token transfer to the
// content author and, once the node has accepted the transfer, increments the
// content's like counter by exactly one.
type SettlementService struct {
	wallets   *WalletService
	content   *ContentService
	ledger    RewardLedger
	chain     TransferClient
	audit     AuditLogger
	publisher events.Publisher
	metrics   *metrics.Metrics
	cfg       *config.Config
	log       *zap.Logger
}

func NewSettlementService(
	wallets *WalletService,
	content *ContentService,
	ledger RewardLedger,
	chainClient TransferClient,
	audit AuditLogger,
	publisher events.Publisher,
	m *metrics.Metrics,
	cfg *config.Config,
	log *zap.Logger,
) *SettlementService {
	return &SettlementService{
		wallets:   wallets,
		content:   content,
		ledger:    ledger,
		chain:     chainClient,
		audit:     audit,
		publisher: publisher,
		metrics:   m,
		cfg:       cfg,
		log:       log,
	}
}

type LikeRequest struct {
	ContentType    models.ContentType `json:"content_type"`
	ContentID      int64              `json:"content_id"`
	ActorAddress   string             `json:"actor_address"`
	Amount         string             `json:"amount,omitempty"`
	IdempotencyKey string             `json:"idempotency_key,omitempty"`
}

type LikeResult struct {
	AttemptID        uuid.UUID `json:"attempt_id"`
	TxHash           string    `json:"tx_hash"`
	ExplorerURL      string    `json:"explorer_url,omitempty"`
	PayerAddress     string    `json:"payer_address"`
	RecipientAddress string    `json:"recipient_address"`
	Amount           string    `json:"amount"`
	LikeCount        *int64    `json:"like_count,omitempty"`
	// Reconciling is set when the transfer was accepted by the node but the
	// counter increment did not complete; the reconciler finishes it.
	Reconciling bool `json:"reconciling"`
}

// IncrementLike rewards the author of the referenced content on behalf of the
// liking actor. Nothing is written before preflight passes, and the counter
// is never incremented unless the node accepted the transfer.
func (s *SettlementService) IncrementLike(ctx context.Context, req LikeRequest) (res *LikeResult, err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveSettlement(settlementOutcome(res, err), time.Since(start))
	}()

	// validated
	if !models.IsValidContentType(req.ContentType) {
		return nil, apperr.New(apperr.KindInvalidArgument, "content_type must be %q or %q", models.ContentPost, models.ContentComment)
	}
	if req.ContentID <= 0 {
		return nil, apperr.New(apperr.KindInvalidArgument, "content_id must be a positive integer")
	}
	actor, err := normalizeAddress("actor_address", req.ActorAddress)
	if err != nil {
		return nil, err
	}
	amount := strings.TrimSpace(req.Amount)
	if amount == "" {
		amount = s.cfg.RewardAmount
	}
	if err := chain.ValidateAmount(amount); err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidArgument, err, "amount must be a positive decimal")
	}
	idemKey := strings.TrimSpace(req.IdempotencyKey)
	if len(idemKey) > 128 {
		return nil, apperr.New(apperr.KindInvalidArgument, "idempotency_key exceeds 128 bytes")
	}
	ref := models.ContentRef{Type: req.ContentType, ID: req.ContentID}
	log := s.log.With(zap.Stringer("ref", ref), zap.String("actor", actor))

	// wallet resolved
	payerAddr, err := s.payerFor(actor)
	if err != nil {
		return nil, err
	}
	payer, err := s.wallets.Resolve(ctx, payerAddr)
	if err != nil {
		return nil, err
	}

	// content resolved
	content, err := s.content.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	recipient, err := normalizeAddress("author_address", content.AuthorAddress)
	if err != nil {
		return nil, fmt.Errorf("stored author of %s is not an address: %w", ref, err)
	}
	if s.cfg.RequireRecipientWallet {
		ok, err := s.wallets.IsRegistered(ctx, recipient)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperr.New(apperr.KindWalletNotFound, "author %s of %s has no registered wallet", recipient, ref)
		}
	}

	// preflight passed
	quote, err := s.chain.Prepare(ctx, payer.SigningKey, chain.TransferRequest{
		To:     common.HexToAddress(recipient),
		Amount: amount,
	})
	if err != nil {
		log.Info("reward preflight rejected", zap.String("kind", string(apperr.KindOf(err))), zap.Error(err))
		return nil, err
	}
	if !quote.GasEstimated {
		s.metrics.GasFallback()
	}

	attempt := &models.RewardAttempt{
		ContentType:      ref.Type,
		ContentID:        ref.ID,
		ActorAddress:     actor,
		PayerAddress:     payer.Address,
		RecipientAddress: recipient,
		Amount:           amount,
		AmountBaseUnits:  quote.Amount.String(),
	}
	if idemKey != "" {
		attempt.IdempotencyKey = &idemKey
	}
	if err := s.ledger.Begin(ctx, attempt); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, apperr.New(apperr.KindDuplicateRequest, "idempotency_key %q was already used", idemKey)
		}
		return nil, fmt.Errorf("record reward attempt: %w", err)
	}
	log = log.With(zap.String("attempt_id", attempt.ID.String()))

	// submitted
	hash, err := s.chain.Submit(ctx, payer.SigningKey, quote, func(tx *types.Transaction) error {
		return s.ledger.MarkSigned(ctx, attempt.ID, tx.Hash().Hex(), tx.Nonce())
	})
	if err != nil {
		s.recordFailure(ctx, attempt, err, log)
		return nil, err
	}

	res = &LikeResult{
		AttemptID:        attempt.ID,
		TxHash:           hash.Hex(),
		ExplorerURL:      s.explorerLink(hash.Hex()),
		PayerAddress:     payer.Address,
		RecipientAddress: recipient,
		Amount:           amount,
	}

	// counter incremented. The transfer is out; finish even if the caller
	// has gone away.
	bg := context.WithoutCancel(ctx)
	if err := s.ledger.MarkSubmitted(bg, attempt.ID); err != nil {
		log.Error("mark submitted failed, leaving for reconciler", zap.String("tx_hash", res.TxHash), zap.Error(err))
		res.Reconciling = true
		return res, nil
	}
	likes, err := s.ledger.Settle(bg, attempt.ID)
	if err != nil {
		log.Error("settle failed, leaving for reconciler", zap.String("tx_hash", res.TxHash), zap.Error(err))
		res.Reconciling = true
		return res, nil
	}
	res.LikeCount = &likes

	_ = s.publisher.Publish(bg, events.StreamRewards, events.Event{
		Type: events.EventLikeRewarded,
		Payload: map[string]any{
			"attempt_id":   attempt.ID.String(),
			"content_type": ref.Type,
			"content_id":   ref.ID,
			"actor":        actor,
			"recipient":    recipient,
			"amount":       amount,
			"tx_hash":      res.TxHash,
			"like_count":   likes,
		},
	})
	log.Info("like rewarded", zap.String("tx_hash", res.TxHash), zap.Int64("like_count", likes))
	return res, nil
}

// recordFailure moves the attempt out of pending/signed after a failed submit.
func (s *SettlementService) recordFailure(ctx context.Context, attempt *models.RewardAttempt, cause error, log *zap.Logger) {
	bg := context.WithoutCancel(ctx)
	reason := cause.Error()

	var ae *apperr.Error
	var err error
	if errors.As(cause, &ae) && ae.OutcomeUnknown {
		err = s.ledger.MarkUnknown(bg, attempt.ID, reason)
		log.Warn("reward broadcast outcome unknown", zap.Error(cause))
	} else {
		err = s.ledger.MarkFailed(bg, attempt.ID, reason)
		log.Warn("reward broadcast failed", zap.Error(cause))
	}
	if err != nil {
		log.Error("record attempt failure", zap.Error(err))
	}

	_ = s.publisher.Publish(bg, events.StreamRewards, events.Event{
		Type: events.EventRewardFailed,
		Payload: map[string]any{
			"attempt_id":   attempt.ID.String(),
			"content_type": attempt.ContentType,
			"content_id":   attempt.ContentID,
			"kind":         apperr.KindOf(cause),
		},
	})
}

type TransferRequest struct {
	ToAddress string `json:"to_address"`
	Amount    string `json:"amount"`
}

type TransferResult struct {
	TxHash      string `json:"tx_hash"`
	ExplorerURL string `json:"explorer_url,omitempty"`
	From        string `json:"from"`
	To          string `json:"to"`
	Amount      string `json:"amount"`
}

// Transfer sends tokens from the treasury wallet without touching any like
// counter.
func (s *SettlementService) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	to, err := normalizeAddress("to_address", req.ToAddress)
	if err != nil {
		return nil, err
	}
	amount := strings.TrimSpace(req.Amount)
	if err := chain.ValidateAmount(amount); err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidArgument, err, "amount must be a positive decimal")
	}
	if s.cfg.TreasuryAddress == "" {
		return nil, apperr.New(apperr.KindWalletNotFound, "no treasury wallet configured")
	}
	treasury, err := s.wallets.Resolve(ctx, s.cfg.TreasuryAddress)
	if err != nil {
		return nil, err
	}

	quote, err := s.chain.Prepare(ctx, treasury.SigningKey, chain.TransferRequest{To: common.HexToAddress(to), Amount: amount})
	if err != nil {
		return nil, err
	}
	hash, err := s.chain.Submit(ctx, treasury.SigningKey, quote, nil)
	if err != nil {
		s.log.Warn("transfer failed", zap.String("to", to), zap.Error(err))
		return nil, err
	}

	res := &TransferResult{
		TxHash:      hash.Hex(),
		ExplorerURL: s.explorerLink(hash.Hex()),
		From:        treasury.Address,
		To:          to,
		Amount:      amount,
	}
	bg := context.WithoutCancel(ctx)
	_ = s.audit.Log(bg, models.AuditLog{
		Actor:      treasury.Address,
		ActorType:  "operator",
		Action:     "transfer_submitted",
		EntityType: "transfer",
		EntityID:   res.TxHash,
		Meta:       map[string]any{"to": to, "amount": amount},
	})
	_ = s.publisher.Publish(bg, events.StreamRewards, events.Event{
		Type:    events.EventTransferSubmitted,
		Payload: map[string]any{"tx_hash": res.TxHash, "from": res.From, "to": to, "amount": amount},
	})
	s.log.Info("transfer submitted", zap.String("tx_hash", res.TxHash), zap.String("to", to))
	return res, nil
}

func (s *SettlementService) payerFor(actor string) (string, error) {
	if s.cfg.RewardPayer == config.PayerActor {
		return actor, nil
	}
	if s.cfg.TreasuryAddress == "" {
		return "", apperr.New(apperr.KindWalletNotFound, "no treasury wallet configured")
	}
	return s.cfg.TreasuryAddress, nil
}

func (s *SettlementService) explorerLink(hash string) string {
	return ExplorerLink(s.cfg.ExplorerTxURL, hash)
}

// ExplorerLink renders a block explorer URL for hash. template may contain a
// single %s; otherwise the hash is appended as a path segment.
func ExplorerLink(template, hash string) string {
	if template == "" {
		return ""
	}
	if strings.Contains(template, "%s") {
		return fmt.Sprintf(template, hash)
	}
	return strings.TrimRight(template, "/") + "/" + hash
}

func settlementOutcome(res *LikeResult, err error) string {
	if err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) && ae.OutcomeUnknown {
			return "outcome_unknown"
		}
		return string(apperr.KindOf(err))
	}
	if res != nil && res.Reconciling {
		return "reconciling"
	}
	return "counted"
}
