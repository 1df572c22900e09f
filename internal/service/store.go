package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/musicsupplies/promo-service/internal/models"
)

// ErrStoreUnavailable marks infrastructure failure, distinct from every
// business rejection. Callers must treat it as "unable to determine", not
// as "code invalid".
var ErrStoreUnavailable = errors.New("promo store unavailable")

// InsertOutcome is the result of the single atomic redemption write.
type InsertOutcome int

const (
	OutcomeInserted InsertOutcome = iota
	// OutcomeDuplicateOrder: an active record already exists for the
	// orderId. The retried redeem returns that record unchanged.
	OutcomeDuplicateOrder
	OutcomeAccountLimit
	OutcomeExhausted
)

// UsageLimits carries the constraints InsertUsage enforces inside its
// critical section.
type UsageLimits struct {
	MaxPerAccount *int
	// Tracked: decrement uses_remaining, failing with OutcomeExhausted
	// if it would go negative.
	Tracked bool
}

// PromoReader is the read side used by the validator. The redis cache
// decorates this interface.
type PromoReader interface {
	// GetByCode resolves a code case-insensitively. Returns (nil, nil)
	// when no such code exists.
	GetByCode(ctx context.Context, code string) (*models.PromoCode, error)
}

// Store is the persistence contract for promo codes and the usage ledger.
// Implementations must make InsertUsage and MarkReversed atomic: the
// count checks and the writes happen in one critical section, never as a
// read-then-write pair across calls.
type Store interface {
	PromoReader

	CountActiveUsage(ctx context.Context, promoID uuid.UUID, account string) (int, error)

	// InsertUsage appends a redemption to the ledger after re-checking
	// the per-order uniqueness, the per-account limit and the global
	// counter, all under one lock/transaction.
	InsertUsage(ctx context.Context, rec *models.UsageRecord, limits UsageLimits) (InsertOutcome, error)

	// GetActiveUsageByOrder returns the non-reversed record for an
	// order, or (nil, nil).
	GetActiveUsageByOrder(ctx context.Context, orderID string) (*models.UsageRecord, error)

	// MarkReversed sets reversed_at on the active record for the order
	// and restores the global counter (capped at max_uses) in the same
	// transaction. Returns (nil, nil) when no record was active.
	MarkReversed(ctx context.Context, orderID string, now time.Time) (*models.UsageRecord, error)
}

// AdminStore is the administrative surface on top of Store. Codes are
// soft-disabled, never deleted, while ledger entries reference them.
type AdminStore interface {
	Store

	Create(ctx context.Context, p *models.PromoCode) error
	Update(ctx context.Context, p *models.PromoCode) error
	UpdateActive(ctx context.Context, code string, active bool) (*models.PromoCode, error)
	ListActive(ctx context.Context) ([]*models.PromoCode, error)
	ListUsage(ctx context.Context, promoID uuid.UUID, account string) ([]*models.UsageRecord, error)
}
