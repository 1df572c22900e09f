package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DiscountKind string

const (
	PercentOff DiscountKind = "percent_off"
	AmountOff  DiscountKind = "dollars_off"
)

// TimeWindow bounds when a code may be redeemed. A nil bound is open on
// that side.
type TimeWindow struct {
	Start *time.Time
	End   *time.Time
}

func (w TimeWindow) Contains(t time.Time) bool {
	if w.Start != nil && t.Before(*w.Start) {
		return false
	}
	if w.End != nil && t.After(*w.End) {
		return false
	}
	return true
}

type PromoCode struct {
	ID            uuid.UUID
	Code          string
	Name          string
	Kind          DiscountKind
	Value         decimal.Decimal
	MinOrderValue decimal.Decimal
	Window        TimeWindow
	Active        bool

	// MaxUses / UsesRemaining track a global redemption budget. Both nil
	// means the code is not globally limited.
	MaxUses       *int
	UsesRemaining *int

	// MaxUsesPerAccount nil means unlimited per account.
	MaxUsesPerAccount *int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Tracked reports whether the code carries a global uses_remaining counter.
func (p *PromoCode) Tracked() bool {
	return p.UsesRemaining != nil
}
