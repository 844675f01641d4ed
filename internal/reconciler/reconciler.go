// Package reconciler finishes reward attempts the request path could not:
// transfers the node accepted but that were never counted, broadcasts whose
// outcome was unknown, and receipts of counted transfers.
package reconciler

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/likefeed/backend/internal/chain"
	"github.com/likefeed/backend/internal/events"
	"github.com/likefeed/backend/internal/metrics"
	"github.com/likefeed/backend/internal/models"
	"github.com/likefeed/backend/internal/repositories"
)

// Reconciler actions, used as metric labels.
const (
	ActionSettled   = "settled"
	ActionRecovered = "recovered"
	ActionAbandoned = "abandoned"
	ActionReverted  = "reverted"
	ActionConfirmed = "confirmed"
)

type Ledger interface {
	ListStale(ctx context.Context, statuses []string, olderThan time.Duration, limit int) ([]models.RewardAttempt, error)
	ListUnconfirmed(ctx context.Context, limit int) ([]models.RewardAttempt, error)
	MarkSubmitted(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	Settle(ctx context.Context, id uuid.UUID) (int64, error)
	SetReceiptStatus(ctx context.Context, id uuid.UUID, status string) error
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

type Receipts interface {
	Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

type Options struct {
	Interval     time.Duration
	Grace        time.Duration // minimum age before an attempt is touched
	AbandonAfter time.Duration // in-flight attempts with no receipt after this are failed
	BatchSize    int
}

type Reconciler struct {
	ledger    Ledger
	receipts  Receipts
	publisher events.Publisher
	metrics   *metrics.Metrics
	opts      Options
	log       *zap.Logger
	now       func() time.Time
}

func New(ledger Ledger, receipts Receipts, publisher events.Publisher, m *metrics.Metrics, opts Options, log *zap.Logger) *Reconciler {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Reconciler{
		ledger:    ledger,
		receipts:  receipts,
		publisher: publisher,
		metrics:   m,
		opts:      opts,
		log:       log,
		now:       time.Now,
	}
}

// Run reconciles once immediately and then on every interval until ctx ends.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	r.RunOnce(ctx)
	for {
		select {
		case <-ticker.C:
			r.RunOnce(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *Reconciler) RunOnce(ctx context.Context) {
	r.SettleSubmitted(ctx)
	r.ResolveInFlight(ctx)
	r.ExpirePending(ctx)
	r.ConfirmReceipts(ctx)
	r.RefreshGauges(ctx)
}

// SettleSubmitted counts attempts the node accepted but whose counter
// increment never committed.
func (r *Reconciler) SettleSubmitted(ctx context.Context) int {
	attempts, err := r.ledger.ListStale(ctx, []string{models.AttemptStatusSubmitted}, r.opts.Grace, r.opts.BatchSize)
	if err != nil {
		r.log.Error("failed to list submitted attempts", zap.Error(err))
		return 0
	}

	settled := 0
	for i := range attempts {
		if r.settle(ctx, &attempts[i]) {
			settled++
		}
	}
	return settled
}

// ResolveInFlight looks up the receipt of every signed or unknown attempt.
// A mined transfer is counted; one that never appears is failed once it is
// older than AbandonAfter.
func (r *Reconciler) ResolveInFlight(ctx context.Context) int {
	attempts, err := r.ledger.ListStale(ctx,
		[]string{models.AttemptStatusSigned, models.AttemptStatusUnknown}, r.opts.Grace, r.opts.BatchSize)
	if err != nil {
		r.log.Error("failed to list in-flight attempts", zap.Error(err))
		return 0
	}

	resolved := 0
	for i := range attempts {
		a := &attempts[i]
		log := r.log.With(zap.String("attempt_id", a.ID.String()), zap.String("status", a.Status))

		if a.TxHash == nil {
			r.abandon(ctx, a, "no transaction hash recorded", log)
			resolved++
			continue
		}

		receipt, err := r.receipts.Receipt(ctx, common.HexToHash(*a.TxHash))
		switch {
		case errors.Is(err, chain.ErrReceiptNotFound):
			if r.now().Sub(a.UpdatedAt) >= r.opts.AbandonAfter {
				r.abandon(ctx, a, "transaction not mined", log)
				resolved++
			}
			continue
		case err != nil:
			log.Warn("receipt lookup failed", zap.Error(err))
			continue
		}

		if receipt.Status != types.ReceiptStatusSuccessful {
			if err := r.ledger.MarkFailed(ctx, a.ID, "transaction reverted on chain"); err != nil {
				log.Error("failed to mark reverted attempt", zap.Error(err))
				continue
			}
			r.metrics.ReconcilerAction(ActionReverted)
			r.publish(ctx, events.EventRewardFailed, a, map[string]any{"reason": "reverted"})
			resolved++
			continue
		}

		if err := r.ledger.MarkSubmitted(ctx, a.ID); err != nil {
			log.Error("failed to mark mined attempt submitted", zap.Error(err))
			continue
		}
		r.metrics.ReconcilerAction(ActionRecovered)
		if r.settle(ctx, a) {
			if err := r.ledger.SetReceiptStatus(ctx, a.ID, models.ReceiptStatusSuccess); err != nil {
				log.Warn("failed to record receipt", zap.Error(err))
			}
			resolved++
		}
	}
	return resolved
}

// ExpirePending fails attempts that never reached signing. Broadcast requires
// the signed transition first, so these were never sent.
func (r *Reconciler) ExpirePending(ctx context.Context) int {
	attempts, err := r.ledger.ListStale(ctx, []string{models.AttemptStatusPending}, r.opts.Grace, r.opts.BatchSize)
	if err != nil {
		r.log.Error("failed to list pending attempts", zap.Error(err))
		return 0
	}
	for i := range attempts {
		r.abandon(ctx, &attempts[i], "abandoned before signing", r.log.With(zap.String("attempt_id", attempts[i].ID.String())))
	}
	return len(attempts)
}

// ConfirmReceipts records the mined outcome of counted transfers. A reverted
// transfer that was already counted is reported, not undone.
func (r *Reconciler) ConfirmReceipts(ctx context.Context) int {
	attempts, err := r.ledger.ListUnconfirmed(ctx, r.opts.BatchSize)
	if err != nil {
		r.log.Error("failed to list unconfirmed attempts", zap.Error(err))
		return 0
	}

	confirmed := 0
	for i := range attempts {
		a := &attempts[i]
		receipt, err := r.receipts.Receipt(ctx, common.HexToHash(*a.TxHash))
		if err != nil {
			if !errors.Is(err, chain.ErrReceiptNotFound) {
				r.log.Warn("receipt lookup failed", zap.String("attempt_id", a.ID.String()), zap.Error(err))
			}
			continue
		}

		status := models.ReceiptStatusSuccess
		if receipt.Status != types.ReceiptStatusSuccessful {
			status = models.ReceiptStatusReverted
			r.log.Warn("counted reward reverted on chain",
				zap.String("attempt_id", a.ID.String()),
				zap.String("tx_hash", *a.TxHash),
				zap.String("content", a.Ref().String()),
			)
		}
		if err := r.ledger.SetReceiptStatus(ctx, a.ID, status); err != nil {
			r.log.Error("failed to record receipt", zap.String("attempt_id", a.ID.String()), zap.Error(err))
			continue
		}
		if status == models.ReceiptStatusReverted {
			r.metrics.ReconcilerAction(ActionReverted)
		} else {
			r.metrics.ReconcilerAction(ActionConfirmed)
		}
		confirmed++
	}
	return confirmed
}

func (r *Reconciler) RefreshGauges(ctx context.Context) {
	counts, err := r.ledger.CountByStatus(ctx)
	if err != nil {
		r.log.Warn("failed to count attempts", zap.Error(err))
		return
	}
	r.metrics.SetLedger(counts)
}

func (r *Reconciler) settle(ctx context.Context, a *models.RewardAttempt) bool {
	likes, err := r.ledger.Settle(ctx, a.ID)
	if err != nil {
		if errors.Is(err, repositories.ErrStaleTransition) {
			// the request path settled it first
			return false
		}
		r.log.Error("failed to settle attempt", zap.String("attempt_id", a.ID.String()), zap.Error(err))
		return false
	}

	r.metrics.ReconcilerAction(ActionSettled)
	r.log.Info("reward settled by reconciler",
		zap.String("attempt_id", a.ID.String()),
		zap.String("content", a.Ref().String()),
		zap.Int64("like_count", likes),
	)
	r.publish(ctx, events.EventRewardReconciled, a, map[string]any{"like_count": likes})
	return true
}

func (r *Reconciler) abandon(ctx context.Context, a *models.RewardAttempt, reason string, log *zap.Logger) {
	if err := r.ledger.MarkFailed(ctx, a.ID, reason); err != nil {
		if !errors.Is(err, repositories.ErrStaleTransition) {
			log.Error("failed to abandon attempt", zap.Error(err))
		}
		return
	}
	log.Warn("reward attempt abandoned", zap.String("reason", reason))
	r.metrics.ReconcilerAction(ActionAbandoned)
	r.publish(ctx, events.EventRewardFailed, a, map[string]any{"reason": reason})
}

func (r *Reconciler) publish(ctx context.Context, typ string, a *models.RewardAttempt, extra map[string]any) {
	payload := map[string]any{
		"attempt_id":   a.ID.String(),
		"content_type": a.ContentType,
		"content_id":   a.ContentID,
		"recipient":    a.RecipientAddress,
	}
	if a.TxHash != nil {
		payload["tx_hash"] = *a.TxHash
	}
	for k, v := range extra {
		payload[k] = v
	}
	if err := r.publisher.Publish(ctx, events.StreamRewards, events.Event{Type: typ, Payload: payload}); err != nil {
		r.log.Warn("failed to publish event", zap.String("type", typ), zap.Error(err))
	}
}
