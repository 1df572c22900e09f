package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/musicsupplies/promo-service/internal/models"
	"github.com/musicsupplies/promo-service/internal/service"
)

// MemoryStore is a mutex-guarded in-memory implementation of the store
// contract. It backs the unit tests and keeps the coordinators runnable
// without a live database; every conditional write happens in one
// critical section, mirroring what the postgres store does in a
// transaction.
type MemoryStore struct {
	mu     sync.Mutex
	promos map[uuid.UUID]*models.PromoCode
	byCode map[string]uuid.UUID
	usage  []*models.UsageRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		promos: make(map[uuid.UUID]*models.PromoCode),
		byCode: make(map[string]uuid.UUID),
	}
}

func (m *MemoryStore) GetByCode(_ context.Context, code string) (*models.PromoCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byCode[strings.ToUpper(code)]
	if !ok {
		return nil, nil
	}
	return clonePromo(m.promos[id]), nil
}

func (m *MemoryStore) CountActiveUsage(_ context.Context, promoID uuid.UUID, account string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countActiveLocked(promoID, account), nil
}

func (m *MemoryStore) InsertUsage(_ context.Context, rec *models.UsageRecord, limits service.UsageLimits) (service.InsertOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.activeByOrderLocked(rec.OrderID) != nil {
		return service.OutcomeDuplicateOrder, nil
	}
	if limits.MaxPerAccount != nil &&
		m.countActiveLocked(rec.PromoCodeID, rec.AccountNumber) >= *limits.MaxPerAccount {
		return service.OutcomeAccountLimit, nil
	}
	promo := m.promos[rec.PromoCodeID]
	if limits.Tracked {
		if promo == nil || promo.UsesRemaining == nil || *promo.UsesRemaining <= 0 {
			return service.OutcomeExhausted, nil
		}
		*promo.UsesRemaining--
	}
	m.usage = append(m.usage, cloneUsage(rec))
	return service.OutcomeInserted, nil
}

func (m *MemoryStore) GetActiveUsageByOrder(_ context.Context, orderID string) (*models.UsageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec := m.activeByOrderLocked(orderID); rec != nil {
		return cloneUsage(rec), nil
	}
	return nil, nil
}

func (m *MemoryStore) MarkReversed(_ context.Context, orderID string, now time.Time) (*models.UsageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.activeByOrderLocked(orderID)
	if rec == nil {
		return nil, nil
	}
	ts := now
	rec.ReversedAt = &ts

	if promo := m.promos[rec.PromoCodeID]; promo != nil && promo.UsesRemaining != nil {
		*promo.UsesRemaining++
		if promo.MaxUses != nil && *promo.UsesRemaining > *promo.MaxUses {
			*promo.UsesRemaining = *promo.MaxUses
		}
	}
	return cloneUsage(rec), nil
}

func (m *MemoryStore) Create(_ context.Context, p *models.PromoCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	m.promos[p.ID] = clonePromo(p)
	m.byCode[strings.ToUpper(p.Code)] = p.ID
	return nil
}

func (m *MemoryStore) Update(_ context.Context, p *models.PromoCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promos[p.ID] = clonePromo(p)
	m.byCode[strings.ToUpper(p.Code)] = p.ID
	return nil
}

func (m *MemoryStore) UpdateActive(_ context.Context, code string, active bool) (*models.PromoCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byCode[strings.ToUpper(code)]
	if !ok {
		return nil, nil
	}
	m.promos[id].Active = active
	return clonePromo(m.promos[id]), nil
}

func (m *MemoryStore) ListActive(_ context.Context) ([]*models.PromoCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.PromoCode
	for _, p := range m.promos {
		if p.Active {
			out = append(out, clonePromo(p))
		}
	}
	return out, nil
}

func (m *MemoryStore) ListUsage(_ context.Context, promoID uuid.UUID, account string) ([]*models.UsageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.UsageRecord
	for _, rec := range m.usage {
		if rec.PromoCodeID != promoID {
			continue
		}
		if account != "" && rec.AccountNumber != account {
			continue
		}
		out = append(out, cloneUsage(rec))
	}
	return out, nil
}

func (m *MemoryStore) activeByOrderLocked(orderID string) *models.UsageRecord {
	for _, rec := range m.usage {
		if rec.OrderID == orderID && rec.ReversedAt == nil {
			return rec
		}
	}
	return nil
}

func (m *MemoryStore) countActiveLocked(promoID uuid.UUID, account string) int {
	n := 0
	for _, rec := range m.usage {
		if rec.PromoCodeID == promoID && rec.AccountNumber == account && rec.ReversedAt == nil {
			n++
		}
	}
	return n
}

func clonePromo(p *models.PromoCode) *models.PromoCode {
	cp := *p
	cp.MaxUses = cloneInt(p.MaxUses)
	cp.UsesRemaining = cloneInt(p.UsesRemaining)
	cp.MaxUsesPerAccount = cloneInt(p.MaxUsesPerAccount)
	cp.Window.Start = cloneTime(p.Window.Start)
	cp.Window.End = cloneTime(p.Window.End)
	return &cp
}

func cloneUsage(u *models.UsageRecord) *models.UsageRecord {
	cu := *u
	cu.ReversedAt = cloneTime(u.ReversedAt)
	return &cu
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	t := *v
	return &t
}
