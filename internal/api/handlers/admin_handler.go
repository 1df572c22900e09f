package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/musicsupplies/promo-service/internal/models"
	"github.com/musicsupplies/promo-service/internal/service"
)

type CreatePromoRequest struct {
	Code              string          `json:"code"`
	Name              string          `json:"name"`
	Type              string          `json:"type"` // percent_off | dollars_off
	Value             decimal.Decimal `json:"value"`
	MinOrderValue     decimal.Decimal `json:"min_order_value"`
	StartDate         string          `json:"start_date,omitempty"` // RFC3339
	EndDate           string          `json:"end_date,omitempty"`
	MaxUses           *int            `json:"max_uses,omitempty"`
	MaxUsesPerAccount *int            `json:"max_uses_per_account,omitempty"`
}

// UpdatePromoRequest carries only the fields being changed.
type UpdatePromoRequest struct {
	Name              *string          `json:"name,omitempty"`
	Value             *decimal.Decimal `json:"value,omitempty"`
	MinOrderValue     *decimal.Decimal `json:"min_order_value,omitempty"`
	StartDate         *string          `json:"start_date,omitempty"`
	EndDate           *string          `json:"end_date,omitempty"`
	MaxUsesPerAccount *int             `json:"max_uses_per_account,omitempty"`
	Active            *bool            `json:"active,omitempty"`
}

// CacheInvalidator lets admin mutations evict the cached code definition.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, code string)
}

type AdminHandler struct {
	store service.AdminStore
	cache CacheInvalidator
}

func NewAdminHandler(store service.AdminStore, cache CacheInvalidator) *AdminHandler {
	return &AdminHandler{store: store, cache: cache}
}

// Create handles POST /admin/promo-codes.
func (h *AdminHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePromoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_body"})
		return
	}

	promo, errMsg := buildPromo(&req)
	if errMsg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": errMsg})
		return
	}

	if existing, err := h.store.GetByCode(r.Context(), promo.Code); err != nil {
		writeStoreFailure(w, "admin_create")
		return
	} else if existing != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "code_already_exists"})
		return
	}

	if err := h.store.Create(r.Context(), promo); err != nil {
		writeStoreFailure(w, "admin_create")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":  "promo_created",
		"promo_id": promo.ID,
	})
}

// Update handles PATCH /admin/promo-codes/{code}.
func (h *AdminHandler) Update(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	var req UpdatePromoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_body"})
		return
	}

	promo, err := h.store.GetByCode(r.Context(), code)
	if err != nil {
		writeStoreFailure(w, "admin_update")
		return
	}
	if promo == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "code_not_found"})
		return
	}

	if errMsg := applyUpdate(promo, &req); errMsg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": errMsg})
		return
	}
	if err := h.store.Update(r.Context(), promo); err != nil {
		writeStoreFailure(w, "admin_update")
		return
	}
	h.cache.Invalidate(r.Context(), promo.Code)
	writeJSON(w, http.StatusOK, map[string]string{"message": "promo_updated"})
}

// Deactivate handles POST /admin/promo-codes/{code}/deactivate.
// Codes are soft-disabled, never deleted: the ledger keeps referencing
// them.
func (h *AdminHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	promo, err := h.store.UpdateActive(r.Context(), code, false)
	if err != nil {
		writeStoreFailure(w, "admin_deactivate")
		return
	}
	if promo == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "code_not_found"})
		return
	}
	h.cache.Invalidate(r.Context(), promo.Code)
	writeJSON(w, http.StatusOK, map[string]string{"message": "promo_deactivated"})
}

// Usage handles GET /admin/promo-codes/{code}/usage?account=...
func (h *AdminHandler) Usage(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	promo, err := h.store.GetByCode(r.Context(), code)
	if err != nil {
		writeStoreFailure(w, "admin_usage")
		return
	}
	if promo == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "code_not_found"})
		return
	}

	records, err := h.store.ListUsage(r.Context(), promo.ID, r.URL.Query().Get("account"))
	if err != nil {
		writeStoreFailure(w, "admin_usage")
		return
	}

	type usageEntry struct {
		OrderID        string          `json:"order_id"`
		AccountNumber  string          `json:"account_number"`
		DiscountAmount decimal.Decimal `json:"discount_amount"`
		RedeemedAt     time.Time       `json:"redeemed_at"`
		ReversedAt     *time.Time      `json:"reversed_at,omitempty"`
	}
	entries := make([]usageEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, usageEntry{
			OrderID:        rec.OrderID,
			AccountNumber:  rec.AccountNumber,
			DiscountAmount: rec.DiscountAmount,
			RedeemedAt:     rec.RedeemedAt,
			ReversedAt:     rec.ReversedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"code": promo.Code, "usage": entries})
}

// --- validation helpers ---

func buildPromo(req *CreatePromoRequest) (*models.PromoCode, string) {
	if strings.TrimSpace(req.Code) == "" {
		return nil, "code required"
	}
	kind := models.DiscountKind(req.Type)
	if kind != models.PercentOff && kind != models.AmountOff {
		return nil, "type must be percent_off or dollars_off"
	}
	if msg := checkValue(kind, req.Value); msg != "" {
		return nil, msg
	}
	if req.MinOrderValue.IsNegative() {
		return nil, "min_order_value must not be negative"
	}
	if req.MaxUses != nil && *req.MaxUses <= 0 {
		return nil, "max_uses must be positive"
	}
	if req.MaxUsesPerAccount != nil && *req.MaxUsesPerAccount <= 0 {
		return nil, "max_uses_per_account must be positive"
	}

	window, msg := parseWindow(req.StartDate, req.EndDate)
	if msg != "" {
		return nil, msg
	}

	promo := &models.PromoCode{
		Code:              strings.ToUpper(strings.TrimSpace(req.Code)),
		Name:              req.Name,
		Kind:              kind,
		Value:             req.Value,
		MinOrderValue:     req.MinOrderValue,
		Window:            window,
		Active:            true,
		MaxUses:           req.MaxUses,
		MaxUsesPerAccount: req.MaxUsesPerAccount,
	}
	if req.MaxUses != nil {
		remaining := *req.MaxUses
		promo.UsesRemaining = &remaining
	}
	return promo, ""
}

func applyUpdate(promo *models.PromoCode, req *UpdatePromoRequest) string {
	if req.Name != nil {
		promo.Name = *req.Name
	}
	if req.Value != nil {
		if msg := checkValue(promo.Kind, *req.Value); msg != "" {
			return msg
		}
		promo.Value = *req.Value
	}
	if req.MinOrderValue != nil {
		if req.MinOrderValue.IsNegative() {
			return "min_order_value must not be negative"
		}
		promo.MinOrderValue = *req.MinOrderValue
	}
	if req.StartDate != nil || req.EndDate != nil {
		start := formatBound(req.StartDate, promo.Window.Start)
		end := formatBound(req.EndDate, promo.Window.End)
		window, msg := parseWindow(start, end)
		if msg != "" {
			return msg
		}
		promo.Window = window
	}
	if req.MaxUsesPerAccount != nil {
		if *req.MaxUsesPerAccount <= 0 {
			return "max_uses_per_account must be positive"
		}
		promo.MaxUsesPerAccount = req.MaxUsesPerAccount
	}
	if req.Active != nil {
		promo.Active = *req.Active
	}
	return ""
}

func checkValue(kind models.DiscountKind, value decimal.Decimal) string {
	switch kind {
	case models.PercentOff:
		if !value.IsPositive() || value.GreaterThan(decimal.NewFromInt(100)) {
			return "percent value must be in (0, 100]"
		}
	default:
		if !value.IsPositive() {
			return "dollar value must be positive"
		}
	}
	return ""
}

func parseWindow(start, end string) (models.TimeWindow, string) {
	var window models.TimeWindow
	if strings.TrimSpace(start) != "" {
		t, err := time.Parse(time.RFC3339, start)
		if err != nil {
			return window, "invalid start_date; use RFC3339"
		}
		window.Start = &t
	}
	if strings.TrimSpace(end) != "" {
		t, err := time.Parse(time.RFC3339, end)
		if err != nil {
			return window, "invalid end_date; use RFC3339"
		}
		window.End = &t
	}
	if window.Start != nil && window.End != nil && window.End.Before(*window.Start) {
		return window, "end_date before start_date"
	}
	return window, ""
}

// formatBound resolves a patched window bound against the stored one.
// An explicit empty string clears the bound.
func formatBound(patch *string, current *time.Time) string {
	if patch != nil {
		return *patch
	}
	if current != nil {
		return current.Format(time.RFC3339)
	}
	return ""
}
