package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UsageRecord is one redemption event. Records are never deleted; a
// canceled redemption gets ReversedAt set and stays in the ledger.
type UsageRecord struct {
	ID             uuid.UUID
	PromoCodeID    uuid.UUID
	AccountNumber  string
	OrderID        string
	DiscountAmount decimal.Decimal
	RedeemedAt     time.Time
	ReversedAt     *time.Time
}

func (u *UsageRecord) Reversed() bool {
	return u.ReversedAt != nil
}
