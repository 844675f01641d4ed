package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/likefeed/backend/internal/models"
	"github.com/likefeed/backend/internal/secret"
)

// WalletRepo stores custodial wallets. Keys are sealed before they reach the
// database and only opened on the way out.
type WalletRepo struct {
	pool   *pgxpool.Pool
	sealer *secret.Sealer
}

func NewWalletRepo(pool *pgxpool.Pool, sealer *secret.Sealer) *WalletRepo {
	return &WalletRepo{pool: pool, sealer: sealer}
}

// Upsert inserts the wallet or replaces the key of an existing one. rotated
// reports whether a row for address already existed.
func (r *WalletRepo) Upsert(ctx context.Context, address string, key secret.SigningKey) (rotated bool, err error) {
	sealed, err := r.sealer.Seal(key, address)
	if err != nil {
		return false, fmt.Errorf("seal key: %w", err)
	}
	err = r.pool.QueryRow(ctx, `
		INSERT INTO wallets (address, sealed_key)
		VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE SET
			sealed_key = EXCLUDED.sealed_key,
			updated_at = now()
		RETURNING (xmax::text <> '0')
	`, address, sealed).Scan(&rotated)
	return rotated, err
}

func (r *WalletRepo) GetByAddress(ctx context.Context, address string) (*models.Wallet, error) {
	var (
		w      models.Wallet
		sealed []byte
	)
	err := r.pool.QueryRow(ctx, `
		SELECT address, sealed_key, created_at, updated_at
		FROM wallets WHERE address = $1
	`, address).Scan(&w.Address, &sealed, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	w.SigningKey, err = r.sealer.Open(sealed, w.Address)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *WalletRepo) Exists(ctx context.Context, address string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM wallets WHERE address = $1)`, address).Scan(&exists)
	return exists, err
}
