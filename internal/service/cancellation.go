package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/musicsupplies/promo-service/internal/models"
)

// Canceller reverses a redemption when its order is canceled. The
// operation is idempotent: reversing twice, or reversing an order that
// never redeemed a code, is success and a no-op.
type Canceller struct {
	store Store
}

func NewCanceller(store Store) *Canceller {
	return &Canceller{store: store}
}

// Reverse flags the active record for the order and restores the
// global counter. The ledger entry stays behind for the audit trail.
func (c *Canceller) Reverse(ctx context.Context, orderID string, now time.Time) (models.ReversalResult, error) {
	rec, err := c.store.MarkReversed(ctx, orderID, now)
	if err != nil {
		// The order cancellation itself must not be blocked by this;
		// the caller logs and retries or reconciles manually.
		log.Error().Err(err).Str("order_id", orderID).Msg("promo reversal failed, needs reconciliation")
		return models.ReversalResult{}, fmt.Errorf("mark reversed for order %s: %w", orderID, err)
	}
	if rec == nil {
		return models.ReversalResult{}, nil
	}
	log.Debug().Str("order_id", orderID).Str("promo_id", rec.PromoCodeID.String()).Msg("promo redemption reversed")
	return models.ReversalResult{Reversed: true, Record: rec}, nil
}
