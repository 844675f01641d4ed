package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/likefeed/backend/internal/db"
	"github.com/likefeed/backend/internal/models"
)

// RewardRepo is the reward attempt ledger. Every status change is a
// compare-and-set on the current status, so two writers can never both move
// the same attempt.
type RewardRepo struct {
	pool *pgxpool.Pool
}

func NewRewardRepo(pool *pgxpool.Pool) *RewardRepo {
	return &RewardRepo{pool: pool}
}

const attemptColumns = `
	id, content_type, content_id, actor_address, payer_address, recipient_address,
	amount, amount_base_units::text, idempotency_key, status, tx_hash, nonce, error,
	receipt_status, created_at, updated_at`

func scanAttempt(row pgx.Row) (*models.RewardAttempt, error) {
	var a models.RewardAttempt
	err := row.Scan(&a.ID, &a.ContentType, &a.ContentID, &a.ActorAddress, &a.PayerAddress, &a.RecipientAddress,
		&a.Amount, &a.AmountBaseUnits, &a.IdempotencyKey, &a.Status, &a.TxHash, &a.Nonce, &a.Error,
		&a.ReceiptStatus, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Begin records a new pending attempt. A reused idempotency key yields
// ErrDuplicate.
func (r *RewardRepo) Begin(ctx context.Context, a *models.RewardAttempt) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.Status = models.AttemptStatusPending
	err := r.pool.QueryRow(ctx, `
		INSERT INTO reward_attempts (
			id, content_type, content_id, actor_address, payer_address, recipient_address,
			amount, amount_base_units, idempotency_key, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9, $10)
		RETURNING created_at, updated_at
	`, a.ID, a.ContentType, a.ContentID, a.ActorAddress, a.PayerAddress, a.RecipientAddress,
		a.Amount, a.AmountBaseUnits, a.IdempotencyKey, a.Status,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *RewardRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.RewardAttempt, error) {
	a, err := scanAttempt(r.pool.QueryRow(ctx, `SELECT `+attemptColumns+` FROM reward_attempts WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

func (r *RewardRepo) GetByIdempotencyKey(ctx context.Context, key string) (*models.RewardAttempt, error) {
	a, err := scanAttempt(r.pool.QueryRow(ctx, `SELECT `+attemptColumns+` FROM reward_attempts WHERE idempotency_key = $1`, key))
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

// MarkSigned stores the hash and nonce of the signed transaction. It runs
// before broadcast so a crash afterwards still leaves the hash on record.
func (r *RewardRepo) MarkSigned(ctx context.Context, id uuid.UUID, txHash string, nonce uint64) error {
	return r.transition(ctx, r.pool, id, []string{models.AttemptStatusPending}, models.AttemptStatusSigned,
		`tx_hash = $4, nonce = $5`, txHash, int64(nonce))
}

func (r *RewardRepo) MarkSubmitted(ctx context.Context, id uuid.UUID) error {
	return r.transition(ctx, r.pool, id,
		[]string{models.AttemptStatusSigned, models.AttemptStatusUnknown}, models.AttemptStatusSubmitted, "")
}

func (r *RewardRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	return r.transition(ctx, r.pool, id,
		[]string{models.AttemptStatusPending, models.AttemptStatusSigned, models.AttemptStatusUnknown},
		models.AttemptStatusFailed, `error = $4`, reason)
}

func (r *RewardRepo) MarkUnknown(ctx context.Context, id uuid.UUID, reason string) error {
	return r.transition(ctx, r.pool, id, []string{models.AttemptStatusSigned}, models.AttemptStatusUnknown,
		`error = $4`, reason)
}

// Settle moves a submitted attempt to counted and increments the content's
// like counter in the same transaction, returning the new counter value.
func (r *RewardRepo) Settle(ctx context.Context, id uuid.UUID) (int64, error) {
	var likes int64
	err := db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		var ref models.ContentRef
		err := tx.QueryRow(ctx, `
			UPDATE reward_attempts SET status = $2, updated_at = now()
			WHERE id = $1 AND status = $3
			RETURNING content_type, content_id
		`, id, models.AttemptStatusCounted, models.AttemptStatusSubmitted).Scan(&ref.Type, &ref.ID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrStaleTransition
			}
			return err
		}
		likes, err = incrementLike(ctx, tx, ref)
		return err
	})
	return likes, err
}

// SetReceiptStatus records the mined outcome of a counted attempt.
func (r *RewardRepo) SetReceiptStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE reward_attempts SET receipt_status = $2, updated_at = now()
		WHERE id = $1 AND status = $3 AND receipt_status IS NULL
	`, id, status, models.AttemptStatusCounted)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleTransition
	}
	return nil
}

// ListStale returns attempts in one of statuses whose last update is older
// than olderThan, oldest first.
func (r *RewardRepo) ListStale(ctx context.Context, statuses []string, olderThan time.Duration, limit int) ([]models.RewardAttempt, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT `+attemptColumns+`
		FROM reward_attempts
		WHERE status = ANY($1) AND updated_at < now() - make_interval(secs => $2)
		ORDER BY updated_at ASC LIMIT $3
	`, statuses, olderThan.Seconds(), limit)
	if err != nil {
		return nil, err
	}
	return collectAttempts(rows)
}

// ListUnconfirmed returns counted attempts whose receipt has not been seen.
func (r *RewardRepo) ListUnconfirmed(ctx context.Context, limit int) ([]models.RewardAttempt, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT `+attemptColumns+`
		FROM reward_attempts
		WHERE status = $1 AND receipt_status IS NULL AND tx_hash IS NOT NULL
		ORDER BY updated_at ASC LIMIT $2
	`, models.AttemptStatusCounted, limit)
	if err != nil {
		return nil, err
	}
	return collectAttempts(rows)
}

// CountByStatus feeds the ledger gauges.
func (r *RewardRepo) CountByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, count(*) FROM reward_attempts GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

func collectAttempts(rows pgx.Rows) ([]models.RewardAttempt, error) {
	defer rows.Close()
	var out []models.RewardAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// transition moves id from one of from to `to`, applying the extra SET
// clause (whose placeholders start at $4) in the same statement.
func (r *RewardRepo) transition(ctx context.Context, q dbtx, id uuid.UUID, from []string, to, set string, args ...any) error {
	for _, f := range from {
		if !models.IsValidAttemptTransition(f, to) {
			return fmt.Errorf("invalid attempt transition %s -> %s", f, to)
		}
	}
	if set != "" {
		set = ", " + set
	}
	tag, err := q.Exec(ctx, `
		UPDATE reward_attempts SET status = $2, updated_at = now()`+set+`
		WHERE id = $1 AND status = ANY($3)
	`, append([]any{id, to, from}, args...)...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleTransition
	}
	return nil
}
