package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RejectReason enumerates the expected business rejections. These are
// result values, never errors: an invalid code is a normal outcome.
type RejectReason string

const (
	ReasonCodeNotFound        RejectReason = "code_not_found"
	ReasonInactive            RejectReason = "inactive"
	ReasonOutOfWindow         RejectReason = "out_of_window"
	ReasonBelowMinimum        RejectReason = "below_minimum"
	ReasonAccountLimitReached RejectReason = "account_limit_reached"
	ReasonNoUsesRemaining     RejectReason = "no_uses_remaining"
)

// Message renders the user-facing text shown when order submission is
// blocked by the rejection.
func (r RejectReason) Message() string {
	switch r {
	case ReasonCodeNotFound:
		return "Invalid promo code."
	case ReasonInactive, ReasonOutOfWindow:
		return "Invalid or expired promo code."
	case ReasonBelowMinimum:
		return "Order value does not meet the minimum requirement."
	case ReasonAccountLimitReached:
		return "You have already used this promo code the maximum number of times."
	case ReasonNoUsesRemaining:
		return "This promo code has reached its usage limit."
	}
	return "Promo code cannot be applied."
}

type ValidationResult struct {
	Valid          bool
	Reason         RejectReason
	Message        string
	DiscountAmount decimal.Decimal
	Promo          *PromoCode
}

func Accepted(p *PromoCode, discount decimal.Decimal) ValidationResult {
	return ValidationResult{
		Valid:          true,
		Message:        fmt.Sprintf("Promo code applied successfully: %s", p.Name),
		DiscountAmount: discount,
		Promo:          p,
	}
}

func Rejected(reason RejectReason) ValidationResult {
	return ValidationResult{Reason: reason, Message: reason.Message()}
}

// BelowMinimumFor keeps the original behavior of naming the threshold in
// the rejection message.
func BelowMinimumFor(min decimal.Decimal) ValidationResult {
	return ValidationResult{
		Reason:  ReasonBelowMinimum,
		Message: fmt.Sprintf("Order value does not meet minimum requirement of $%s", min.StringFixed(2)),
	}
}

type RedemptionResult struct {
	Accepted bool
	Reason   RejectReason
	Message  string
	Record   *UsageRecord
}

type ReversalResult struct {
	// Reversed is false when the cancel was a no-op: the order had no
	// active redemption, or it was already reversed.
	Reversed bool
	Record   *UsageRecord
}
