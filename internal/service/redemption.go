package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/musicsupplies/promo-service/internal/models"
)

// Redeemer applies a validated redemption at order placement. The
// decisive checks run inside the store's atomic InsertUsage, never
// against an earlier validation: limits may have moved concurrently.
type Redeemer struct {
	store     Store
	validator *Validator
}

func NewRedeemer(store Store) *Redeemer {
	return &Redeemer{
		store:     store,
		validator: NewValidator(store, store),
	}
}

// Redeem consumes one use of the code for the order. Retried calls with
// the same orderID return the original accepted record without a second
// ledger entry or counter decrement.
func (r *Redeemer) Redeem(ctx context.Context, code, account, orderID string, orderValue decimal.Decimal, now time.Time) (models.RedemptionResult, error) {
	vr, err := r.validator.Validate(ctx, code, account, orderValue, now)
	if err != nil {
		return models.RedemptionResult{}, err
	}
	if !vr.Valid {
		// A duplicate retry can trip the pre-check (the first attempt
		// already consumed the account's last slot), so look for our
		// own record before rejecting.
		if vr.Reason == models.ReasonAccountLimitReached || vr.Reason == models.ReasonNoUsesRemaining {
			existing, err := r.store.GetActiveUsageByOrder(ctx, orderID)
			if err != nil {
				return models.RedemptionResult{}, fmt.Errorf("check existing usage for order %s: %w", orderID, err)
			}
			if existing != nil {
				return acceptedRedemption(existing), nil
			}
		}
		return models.RedemptionResult{Reason: vr.Reason, Message: vr.Message}, nil
	}

	rec := &models.UsageRecord{
		ID:             uuid.New(),
		PromoCodeID:    vr.Promo.ID,
		AccountNumber:  account,
		OrderID:        orderID,
		DiscountAmount: vr.DiscountAmount,
		RedeemedAt:     now,
	}
	limits := UsageLimits{
		MaxPerAccount: vr.Promo.MaxUsesPerAccount,
		Tracked:       vr.Promo.Tracked(),
	}

	outcome, err := r.store.InsertUsage(ctx, rec, limits)
	if err != nil {
		return models.RedemptionResult{}, fmt.Errorf("insert usage for order %s: %w", orderID, err)
	}

	switch outcome {
	case OutcomeInserted:
		log.Debug().Str("code", vr.Promo.Code).Str("order_id", orderID).
			Str("discount", rec.DiscountAmount.StringFixed(2)).Msg("promo redeemed")
		return acceptedRedemption(rec), nil
	case OutcomeDuplicateOrder:
		existing, err := r.store.GetActiveUsageByOrder(ctx, orderID)
		if err != nil {
			return models.RedemptionResult{}, fmt.Errorf("load existing usage for order %s: %w", orderID, err)
		}
		if existing == nil {
			// The duplicate was reversed between the two calls; the
			// caller should retry against current state.
			return models.RedemptionResult{}, fmt.Errorf("usage for order %s vanished during redeem: %w", orderID, ErrStoreUnavailable)
		}
		return acceptedRedemption(existing), nil
	case OutcomeAccountLimit:
		return rejectedRedemption(models.ReasonAccountLimitReached), nil
	default:
		return rejectedRedemption(models.ReasonNoUsesRemaining), nil
	}
}

func acceptedRedemption(rec *models.UsageRecord) models.RedemptionResult {
	return models.RedemptionResult{
		Accepted: true,
		Message:  "promo_redeemed",
		Record:   rec,
	}
}

func rejectedRedemption(reason models.RejectReason) models.RedemptionResult {
	return models.RedemptionResult{Reason: reason, Message: reason.Message()}
}
