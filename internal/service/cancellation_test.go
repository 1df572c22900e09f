package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/musicsupplies/promo-service/internal/service"
)

func TestReverseRestoresCounterAndFlagsRecord(t *testing.T) {
	promo := percentPromo("BACK", "10")
	promo.MaxUses = intp(5)
	promo.UsesRemaining = intp(5)
	store := newStore(t, promo)
	redeemer := service.NewRedeemer(store)
	canceller := service.NewCanceller(store)
	now := time.Now().UTC()

	if _, err := redeemer.Redeem(context.Background(), "BACK", "101", "order-1", dec("100"), now); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	stored, _ := store.GetByCode(context.Background(), "BACK")
	if *stored.UsesRemaining != 4 {
		t.Fatalf("uses_remaining after redeem = %d, want 4", *stored.UsesRemaining)
	}

	res, err := canceller.Reverse(context.Background(), "order-1", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if !res.Reversed {
		t.Fatal("expected reversal, got no-op")
	}
	if res.Record.ReversedAt == nil {
		t.Error("reversed record has no reversed_at")
	}

	stored, _ = store.GetByCode(context.Background(), "BACK")
	if *stored.UsesRemaining != 5 {
		t.Errorf("uses_remaining after reverse = %d, want 5", *stored.UsesRemaining)
	}

	// audit trail survives
	usage, err := store.ListUsage(context.Background(), promo.ID, "101")
	if err != nil {
		t.Fatalf("list usage: %v", err)
	}
	if len(usage) != 1 || !usage[0].Reversed() {
		t.Errorf("ledger entry missing or not flagged: %+v", usage)
	}
}

func TestReverseIsIdempotent(t *testing.T) {
	promo := percentPromo("BACK", "10")
	promo.MaxUses = intp(5)
	promo.UsesRemaining = intp(5)
	store := newStore(t, promo)
	redeemer := service.NewRedeemer(store)
	canceller := service.NewCanceller(store)
	now := time.Now().UTC()

	if _, err := redeemer.Redeem(context.Background(), "BACK", "101", "order-1", dec("100"), now); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if _, err := canceller.Reverse(context.Background(), "order-1", now); err != nil {
		t.Fatalf("first reverse: %v", err)
	}

	res, err := canceller.Reverse(context.Background(), "order-1", now.Add(time.Hour))
	if err != nil {
		t.Fatalf("second reverse: %v", err)
	}
	if res.Reversed {
		t.Error("second reverse was not a no-op")
	}

	// counter incremented once, capped at max
	stored, _ := store.GetByCode(context.Background(), "BACK")
	if *stored.UsesRemaining != 5 {
		t.Errorf("uses_remaining = %d, want 5", *stored.UsesRemaining)
	}
}

func TestReverseWithoutRedemptionIsNoOp(t *testing.T) {
	store := newStore(t, percentPromo("ANY", "10"))
	canceller := service.NewCanceller(store)

	res, err := canceller.Reverse(context.Background(), "never-redeemed", time.Now().UTC())
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if res.Reversed {
		t.Error("reverse of unknown order reported a reversal")
	}
}

func TestReversalFreesAccountSlot(t *testing.T) {
	promo := percentPromo("ONCE", "10")
	promo.MaxUsesPerAccount = intp(1)
	store := newStore(t, promo)
	redeemer := service.NewRedeemer(store)
	canceller := service.NewCanceller(store)
	now := time.Now().UTC()

	if res, err := redeemer.Redeem(context.Background(), "ONCE", "101", "order-1", dec("100"), now); err != nil || !res.Accepted {
		t.Fatalf("first redeem: err=%v reason=%s", err, res.Reason)
	}
	if _, err := canceller.Reverse(context.Background(), "order-1", now); err != nil {
		t.Fatalf("reverse: %v", err)
	}

	res, err := redeemer.Redeem(context.Background(), "ONCE", "101", "order-2", dec("100"), now)
	if err != nil {
		t.Fatalf("second redeem: %v", err)
	}
	if !res.Accepted {
		t.Errorf("redeem after reversal rejected with %s; reversal should free the slot", res.Reason)
	}
}
