package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/likefeed/backend/internal/apperr"
	"github.com/likefeed/backend/internal/chain"
	"github.com/likefeed/backend/internal/events"
	"github.com/likefeed/backend/internal/models"
	"github.com/likefeed/backend/internal/repositories"
	"github.com/likefeed/backend/internal/secret"
)

// WalletService is the custodial wallet directory.
type WalletService struct {
	wallets   WalletStore
	audit     AuditLogger
	publisher events.Publisher
	log       *zap.Logger
}

func NewWalletService(
	wallets WalletStore,
	audit AuditLogger,
	publisher events.Publisher,
	log *zap.Logger,
) *WalletService {
	return &WalletService{
		wallets:   wallets,
		audit:     audit,
		publisher: publisher,
		log:       log,
	}
}

type RegisterWalletResult struct {
	Address string `json:"address"`
	Rotated bool   `json:"rotated"`
}

// RegisterWallet stores signingKeyHex as the custodial key of address. The key
// must control the address. Registering an existing address replaces its key.
func (s *WalletService) RegisterWallet(ctx context.Context, address, signingKeyHex string) (*RegisterWalletResult, error) {
	key, err := ParseSigningKey(signingKeyHex)
	if err != nil {
		return nil, err
	}
	return s.Register(ctx, address, key)
}

// ParseSigningKey is secret.ParseSigningKey with the failure classified as
// InvalidCredential.
func ParseSigningKey(signingKeyHex string) (secret.SigningKey, error) {
	key, err := secret.ParseSigningKey(signingKeyHex)
	if err != nil {
		return secret.SigningKey{}, apperr.New(apperr.KindInvalidCredential, "signing key must be %d bytes of hex", secret.SigningKeyLen)
	}
	return key, nil
}

// Register is RegisterWallet for an already parsed key.
func (s *WalletService) Register(ctx context.Context, address string, key secret.SigningKey) (*RegisterWalletResult, error) {
	addr, err := normalizeAddress("address", address)
	if err != nil {
		return nil, err
	}
	derived, err := chain.AddressOf(key)
	if err != nil {
		return nil, err
	}
	if derived.Hex() != addr {
		return nil, apperr.New(apperr.KindInvalidCredential, "signing key does not control %s", addr)
	}

	rotated, err := s.wallets.Upsert(ctx, addr, key)
	if err != nil {
		return nil, fmt.Errorf("store wallet: %w", err)
	}

	action := "wallet_registered"
	if rotated {
		action = "wallet_rotated"
	}
	_ = s.audit.Log(ctx, models.AuditLog{
		Actor:      addr,
		ActorType:  "agent",
		Action:     action,
		EntityType: "wallet",
		EntityID:   addr,
	})
	_ = s.publisher.Publish(ctx, events.StreamRewards, events.Event{
		Type:    events.EventWalletRegistered,
		Payload: map[string]any{"address": addr, "rotated": rotated},
	})

	s.log.Info("wallet registered", zap.String("address", addr), zap.Bool("rotated", rotated))
	return &RegisterWalletResult{Address: addr, Rotated: rotated}, nil
}

// Resolve returns the wallet for address with a signing key that passed the
// format check. It fails with WalletNotFound or InvalidCredential.
func (s *WalletService) Resolve(ctx context.Context, address string) (*models.Wallet, error) {
	addr, err := normalizeAddress("address", address)
	if err != nil {
		return nil, err
	}
	w, err := s.wallets.GetByAddress(ctx, addr)
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		return nil, apperr.New(apperr.KindWalletNotFound, "no wallet registered for %s", addr)
	case errors.Is(err, secret.ErrSealedKeyCorrupt):
		return nil, apperr.Wrap(apperr.KindInvalidCredential, err, "stored signing key for %s is unreadable", addr)
	case err != nil:
		return nil, fmt.Errorf("load wallet: %w", err)
	}
	if err := w.SigningKey.Validate(); err != nil {
		return nil, apperr.New(apperr.KindInvalidCredential, "stored signing key for %s is malformed", addr)
	}
	return w, nil
}

func (s *WalletService) IsRegistered(ctx context.Context, address string) (bool, error) {
	addr, err := normalizeAddress("address", address)
	if err != nil {
		return false, err
	}
	ok, err := s.wallets.Exists(ctx, addr)
	if err != nil {
		return false, fmt.Errorf("lookup wallet: %w", err)
	}
	return ok, nil
}
