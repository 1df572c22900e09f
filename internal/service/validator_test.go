package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/musicsupplies/promo-service/internal/models"
	"github.com/musicsupplies/promo-service/internal/repository"
	"github.com/musicsupplies/promo-service/internal/service"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func intp(v int) *int { return &v }

func timep(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func percentPromo(code, value string) *models.PromoCode {
	return &models.PromoCode{
		Code:   code,
		Name:   code,
		Kind:   models.PercentOff,
		Value:  dec(value),
		Active: true,
	}
}

func amountPromo(code, value string) *models.PromoCode {
	return &models.PromoCode{
		Code:   code,
		Name:   code,
		Kind:   models.AmountOff,
		Value:  dec(value),
		Active: true,
	}
}

func newStore(t *testing.T, promos ...*models.PromoCode) *repository.MemoryStore {
	t.Helper()
	store := repository.NewMemoryStore()
	for _, p := range promos {
		if err := store.Create(context.Background(), p); err != nil {
			t.Fatalf("seed promo %s: %v", p.Code, err)
		}
	}
	return store
}

func TestValidateSave10Scenario(t *testing.T) {
	promo := percentPromo("SAVE10", "10")
	promo.MinOrderValue = dec("50")
	promo.MaxUsesPerAccount = intp(1)
	store := newStore(t, promo)
	v := service.NewValidator(store, store)
	now := time.Now().UTC()

	res, err := v.Validate(context.Background(), "SAVE10", "101", dec("100"), now)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !res.Valid {
		t.Fatalf("expected accepted, got %s", res.Reason)
	}
	if !res.DiscountAmount.Equal(dec("10.00")) {
		t.Errorf("discount = %s, want 10.00", res.DiscountAmount)
	}

	res, err = v.Validate(context.Background(), "SAVE10", "101", dec("40"), now)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if res.Valid || res.Reason != models.ReasonBelowMinimum {
		t.Errorf("got (%v, %s), want below_minimum rejection", res.Valid, res.Reason)
	}
}

func TestValidateAmountOffCappedAtOrderValue(t *testing.T) {
	store := newStore(t, amountPromo("FLAT5", "5"))
	v := service.NewValidator(store, store)

	res, err := v.Validate(context.Background(), "FLAT5", "101", dec("3"), time.Now().UTC())
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !res.Valid {
		t.Fatalf("expected accepted, got %s", res.Reason)
	}
	if !res.DiscountAmount.Equal(dec("3")) {
		t.Errorf("discount = %s, want 3 (capped at order value)", res.DiscountAmount)
	}
}

func TestValidatePercentRoundsHalfToEven(t *testing.T) {
	cases := []struct {
		orderValue string
		want       string
	}{
		{"101.25", "10.12"}, // 10.125 rounds down to even
		{"101.75", "10.18"}, // 10.175 rounds up to even
		{"100.00", "10.00"},
		{"0.01", "0.00"}, // 0.001 rounds to zero
	}
	store := newStore(t, percentPromo("TEN", "10"))
	v := service.NewValidator(store, store)
	now := time.Now().UTC()

	for _, tc := range cases {
		res, err := v.Validate(context.Background(), "TEN", "101", dec(tc.orderValue), now)
		if err != nil {
			t.Fatalf("validate(%s): %v", tc.orderValue, err)
		}
		if !res.DiscountAmount.Equal(dec(tc.want)) {
			t.Errorf("discount(%s) = %s, want %s", tc.orderValue, res.DiscountAmount, tc.want)
		}
		if res.DiscountAmount.GreaterThan(dec(tc.orderValue)) {
			t.Errorf("discount %s exceeds order value %s", res.DiscountAmount, tc.orderValue)
		}
	}
}

func TestValidateRejections(t *testing.T) {
	inactive := percentPromo("GONE", "10")
	inactive.Active = false

	windowed := percentPromo("JAN24", "15")
	windowed.Window = models.TimeWindow{
		Start: timep("2024-01-01T00:00:00Z"),
		End:   timep("2024-01-31T23:59:59Z"),
	}

	exhausted := amountPromo("DRAINED", "5")
	exhausted.MaxUses = intp(10)
	exhausted.UsesRemaining = intp(0)

	store := newStore(t, inactive, windowed, exhausted)
	v := service.NewValidator(store, store)

	cases := []struct {
		name string
		code string
		now  time.Time
		want models.RejectReason
	}{
		{"unknown code", "NOPE", time.Now().UTC(), models.ReasonCodeNotFound},
		{"case-insensitive lookup hits inactive", "gone", time.Now().UTC(), models.ReasonInactive},
		{"after window", "JAN24", *timep("2024-02-01T00:00:00Z"), models.ReasonOutOfWindow},
		{"before window", "JAN24", *timep("2023-12-31T00:00:00Z"), models.ReasonOutOfWindow},
		{"global counter exhausted", "DRAINED", time.Now().UTC(), models.ReasonNoUsesRemaining},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := v.Validate(context.Background(), tc.code, "101", dec("100"), tc.now)
			if err != nil {
				t.Fatalf("validate: %v", err)
			}
			if res.Valid || res.Reason != tc.want {
				t.Errorf("got (%v, %s), want rejection %s", res.Valid, res.Reason, tc.want)
			}
			if res.Message == "" {
				t.Error("rejection carries no message")
			}
		})
	}
}

func TestValidateInWindowAccepts(t *testing.T) {
	windowed := percentPromo("JAN24", "15")
	windowed.Window = models.TimeWindow{
		Start: timep("2024-01-01T00:00:00Z"),
		End:   timep("2024-01-31T23:59:59Z"),
	}
	store := newStore(t, windowed)
	v := service.NewValidator(store, store)

	res, err := v.Validate(context.Background(), "JAN24", "101", dec("100"), *timep("2024-01-15T12:00:00Z"))
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !res.Valid {
		t.Fatalf("expected accepted inside window, got %s", res.Reason)
	}
}

func TestValidateAccountLimit(t *testing.T) {
	promo := percentPromo("ONCE", "10")
	promo.MaxUsesPerAccount = intp(1)
	store := newStore(t, promo)
	redeemer := service.NewRedeemer(store)
	v := service.NewValidator(store, store)
	now := time.Now().UTC()

	if _, err := redeemer.Redeem(context.Background(), "ONCE", "101", "order-1", dec("100"), now); err != nil {
		t.Fatalf("redeem: %v", err)
	}

	res, err := v.Validate(context.Background(), "ONCE", "101", dec("100"), now)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if res.Valid || res.Reason != models.ReasonAccountLimitReached {
		t.Errorf("got (%v, %s), want account_limit_reached", res.Valid, res.Reason)
	}

	// a different account is unaffected
	res, err = v.Validate(context.Background(), "ONCE", "202", dec("100"), now)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !res.Valid {
		t.Errorf("other account rejected with %s", res.Reason)
	}
}

func TestValidateHasNoSideEffects(t *testing.T) {
	promo := percentPromo("PURE", "10")
	promo.MaxUses = intp(3)
	promo.UsesRemaining = intp(3)
	promo.MaxUsesPerAccount = intp(1)
	store := newStore(t, promo)
	v := service.NewValidator(store, store)
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		res, err := v.Validate(context.Background(), "PURE", "101", dec("100"), now)
		if err != nil {
			t.Fatalf("validate #%d: %v", i, err)
		}
		if !res.Valid {
			t.Fatalf("validate #%d rejected with %s", i, res.Reason)
		}
	}

	stored, err := store.GetByCode(context.Background(), "PURE")
	if err != nil {
		t.Fatalf("get promo: %v", err)
	}
	if *stored.UsesRemaining != 3 {
		t.Errorf("uses_remaining = %d after validate-only calls, want 3", *stored.UsesRemaining)
	}
}
