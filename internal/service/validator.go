package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/musicsupplies/promo-service/internal/models"
)

var percentBase = decimal.NewFromInt(100)

// Validator decides accept/reject and the discount amount for a code
// without mutating anything. It is safe to call repeatedly: the "test
// this code" tooling and the redemption pre-check share it.
type Validator struct {
	promos PromoReader
	usage  Store
}

func NewValidator(promos PromoReader, usage Store) *Validator {
	return &Validator{promos: promos, usage: usage}
}

// Validate runs the full rule chain against the state visible at now.
// Business rejections come back in the result; only store failures are
// returned as errors.
func (v *Validator) Validate(ctx context.Context, code, account string, orderValue decimal.Decimal, now time.Time) (models.ValidationResult, error) {
	promo, err := v.promos.GetByCode(ctx, code)
	if err != nil {
		return models.ValidationResult{}, fmt.Errorf("get promo %q: %w", code, err)
	}
	if promo == nil {
		return models.Rejected(models.ReasonCodeNotFound), nil
	}
	return v.check(ctx, promo, account, orderValue, now)
}

// check evaluates an already-loaded promo. The redeem path reuses it so
// the in-transaction re-validation sees the locked row, not the cache.
func (v *Validator) check(ctx context.Context, promo *models.PromoCode, account string, orderValue decimal.Decimal, now time.Time) (models.ValidationResult, error) {
	if !promo.Active {
		return models.Rejected(models.ReasonInactive), nil
	}
	if !promo.Window.Contains(now) {
		return models.Rejected(models.ReasonOutOfWindow), nil
	}
	if orderValue.LessThan(promo.MinOrderValue) {
		return models.BelowMinimumFor(promo.MinOrderValue), nil
	}
	if promo.Tracked() && *promo.UsesRemaining <= 0 {
		return models.Rejected(models.ReasonNoUsesRemaining), nil
	}
	if promo.MaxUsesPerAccount != nil {
		count, err := v.usage.CountActiveUsage(ctx, promo.ID, account)
		if err != nil {
			return models.ValidationResult{}, fmt.Errorf("count usage for %q: %w", promo.Code, err)
		}
		if count >= *promo.MaxUsesPerAccount {
			return models.Rejected(models.ReasonAccountLimitReached), nil
		}
	}
	return models.Accepted(promo, Discount(promo, orderValue)), nil
}

// Discount computes the discount a code yields on an order value.
// Percent discounts round to the cent half-to-even; amount discounts
// never exceed the order total.
func Discount(promo *models.PromoCode, orderValue decimal.Decimal) decimal.Decimal {
	switch promo.Kind {
	case models.PercentOff:
		return orderValue.Mul(promo.Value).Div(percentBase).RoundBank(2)
	default:
		if promo.Value.GreaterThan(orderValue) {
			return orderValue
		}
		return promo.Value
	}
}
