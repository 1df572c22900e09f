package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/musicsupplies/promo-service/internal/models"
)

// AvailablePromo is one entry of the "which codes can I use" listing
// shown at checkout.
type AvailablePromo struct {
	Code                    string
	Name                    string
	Description             string
	Kind                    models.DiscountKind
	Value                   decimal.Decimal
	MinOrderValue           decimal.Decimal
	DiscountAmount          decimal.Decimal
	IsBest                  bool
	UsesRemainingForAccount *int
}

// Lister assembles the available-promo view for an account and order
// value. Usage counts are read per code, fanned out with a bounded
// errgroup since each is an independent store round-trip.
type Lister struct {
	store AdminStore
}

func NewLister(store AdminStore) *Lister {
	return &Lister{store: store}
}

func (l *Lister) Available(ctx context.Context, account string, orderValue decimal.Decimal, now time.Time) ([]AvailablePromo, error) {
	promos, err := l.store.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active promos: %w", err)
	}

	var mu sync.Mutex
	out := make([]AvailablePromo, 0, len(promos))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, promo := range promos {
		promo := promo
		g.Go(func() error {
			if !promo.Window.Contains(now) {
				return nil
			}
			if promo.Tracked() && *promo.UsesRemaining <= 0 {
				return nil
			}

			var remaining *int
			if promo.MaxUsesPerAccount != nil {
				count, err := l.store.CountActiveUsage(gctx, promo.ID, account)
				if err != nil {
					return fmt.Errorf("count usage for %q: %w", promo.Code, err)
				}
				if count >= *promo.MaxUsesPerAccount {
					return nil
				}
				left := *promo.MaxUsesPerAccount - count
				remaining = &left
			}

			entry := AvailablePromo{
				Code:                    promo.Code,
				Name:                    promo.Name,
				Description:             describe(promo),
				Kind:                    promo.Kind,
				Value:                   promo.Value,
				MinOrderValue:           promo.MinOrderValue,
				UsesRemainingForAccount: remaining,
			}
			if orderValue.GreaterThanOrEqual(promo.MinOrderValue) {
				entry.DiscountAmount = Discount(promo, orderValue)
			}

			mu.Lock()
			out = append(out, entry)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	markBest(out)
	return out, nil
}

// markBest flags the qualifying code with the largest discount for this
// order value.
func markBest(promos []AvailablePromo) {
	best := -1
	for i, p := range promos {
		if p.DiscountAmount.IsZero() {
			continue
		}
		if best == -1 || p.DiscountAmount.GreaterThan(promos[best].DiscountAmount) {
			best = i
		}
	}
	if best >= 0 {
		promos[best].IsBest = true
	}
}

func describe(p *models.PromoCode) string {
	var amount string
	if p.Kind == models.PercentOff {
		amount = p.Value.String() + "%"
	} else {
		amount = "$" + p.Value.StringFixed(2)
	}
	desc := "Save " + amount
	if p.MinOrderValue.IsPositive() {
		desc += " on orders over $" + p.MinOrderValue.StringFixed(2)
	}
	if p.MaxUses != nil {
		desc += " (Limited time offer)"
	}
	return desc
}
