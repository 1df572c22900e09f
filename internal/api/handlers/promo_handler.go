package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/musicsupplies/promo-service/internal/metrics"
	"github.com/musicsupplies/promo-service/internal/service"
)

// --- Request / Response DTOs ---

type ValidateRequest struct {
	Code          string          `json:"code"`
	AccountNumber string          `json:"account_number"`
	OrderValue    decimal.Decimal `json:"order_value"`
	Timestamp     string          `json:"timestamp,omitempty"` // optional, RFC3339
}

type ValidateResponse struct {
	IsValid        bool             `json:"is_valid"`
	DiscountAmount *decimal.Decimal `json:"discount_amount,omitempty"`
	Message        string           `json:"message"`
}

type RedeemRequest struct {
	Code          string          `json:"code"`
	AccountNumber string          `json:"account_number"`
	OrderID       string          `json:"order_id"`
	OrderValue    decimal.Decimal `json:"order_value"`
}

type RedeemResponse struct {
	Success        bool             `json:"success"`
	DiscountAmount *decimal.Decimal `json:"discount_amount,omitempty"`
	Message        string           `json:"message"`
}

type CancelRequest struct {
	OrderID string `json:"order_id"`
}

type CancelResponse struct {
	Success  bool `json:"success"`
	Reversed bool `json:"reversed"`
}

type AvailablePromoEntry struct {
	Code                    string           `json:"code"`
	Name                    string           `json:"name"`
	Description             string           `json:"description"`
	Type                    string           `json:"type"`
	Value                   decimal.Decimal  `json:"value"`
	MinOrderValue           decimal.Decimal  `json:"min_order_value"`
	DiscountAmount          *decimal.Decimal `json:"discount_amount,omitempty"`
	IsBest                  bool             `json:"is_best"`
	UsesRemainingForAccount *int             `json:"uses_remaining_for_account,omitempty"`
}

// --- Handler struct & constructor ---

type PromoHandler struct {
	validator *service.Validator
	redeemer  *service.Redeemer
	canceller *service.Canceller
	lister    *service.Lister
}

// NewPromoHandler wires the coordinators. promos is the (possibly
// cached) read path used by the standalone validate endpoint; the
// redemption path always goes through the store directly.
func NewPromoHandler(store service.AdminStore, promos service.PromoReader) *PromoHandler {
	return &PromoHandler{
		validator: service.NewValidator(promos, store),
		redeemer:  service.NewRedeemer(store),
		canceller: service.NewCanceller(store),
		lister:    service.NewLister(store),
	}
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeStoreFailure(w http.ResponseWriter, op string) {
	metrics.StoreFailures.WithLabelValues(op).Inc()
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "store_unavailable"})
}

func requestTime(raw string) time.Time {
	if strings.TrimSpace(raw) != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}

// --- Handlers ---

// Validate handles POST /promo/validate. Side-effect free: safe for the
// "test this code" tooling to call repeatedly.
func (h *PromoHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_body"})
		return
	}
	if req.Code == "" || req.AccountNumber == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "code and account_number required"})
		return
	}

	result, err := h.validator.Validate(r.Context(), req.Code, req.AccountNumber, req.OrderValue, requestTime(req.Timestamp))
	if err != nil {
		writeStoreFailure(w, "validate")
		return
	}

	if !result.Valid {
		metrics.Validations.WithLabelValues(string(result.Reason)).Inc()
		writeJSON(w, http.StatusOK, ValidateResponse{IsValid: false, Message: result.Message})
		return
	}
	metrics.Validations.WithLabelValues(metrics.OutcomeAccepted).Inc()
	writeJSON(w, http.StatusOK, ValidateResponse{
		IsValid:        true,
		DiscountAmount: &result.DiscountAmount,
		Message:        result.Message,
	})
}

// Redeem handles POST /promo/redeem, called from order placement.
func (h *PromoHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_body"})
		return
	}
	if req.Code == "" || req.AccountNumber == "" || req.OrderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "code, account_number and order_id required"})
		return
	}

	result, err := h.redeemer.Redeem(r.Context(), req.Code, req.AccountNumber, req.OrderID, req.OrderValue, time.Now().UTC())
	if err != nil {
		writeStoreFailure(w, "redeem")
		return
	}

	if !result.Accepted {
		metrics.Redemptions.WithLabelValues(string(result.Reason)).Inc()
		writeJSON(w, http.StatusOK, RedeemResponse{Success: false, Message: result.Message})
		return
	}
	metrics.Redemptions.WithLabelValues(metrics.OutcomeAccepted).Inc()
	writeJSON(w, http.StatusOK, RedeemResponse{
		Success:        true,
		DiscountAmount: &result.Record.DiscountAmount,
		Message:        result.Message,
	})
}

// Cancel handles POST /promo/cancel, called from order cancellation.
// Idempotent; only a store failure is reported as non-success.
func (h *PromoHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_body"})
		return
	}
	if req.OrderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "order_id required"})
		return
	}

	result, err := h.canceller.Reverse(r.Context(), req.OrderID, time.Now().UTC())
	if err != nil {
		writeStoreFailure(w, "cancel")
		return
	}
	if result.Reversed {
		metrics.Reversals.Inc()
	}
	writeJSON(w, http.StatusOK, CancelResponse{Success: true, Reversed: result.Reversed})
}

// Available handles GET /promo/available?account=...&order_value=...
func (h *PromoHandler) Available(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("account")
	if account == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "account required"})
		return
	}
	orderValue := decimal.Zero
	if raw := r.URL.Query().Get("order_value"); raw != "" {
		v, err := decimal.NewFromString(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order_value"})
			return
		}
		orderValue = v
	}

	promos, err := h.lister.Available(r.Context(), account, orderValue, requestTime(r.URL.Query().Get("timestamp")))
	if err != nil {
		writeStoreFailure(w, "available")
		return
	}

	entries := make([]AvailablePromoEntry, 0, len(promos))
	for _, p := range promos {
		entry := AvailablePromoEntry{
			Code:                    p.Code,
			Name:                    p.Name,
			Description:             p.Description,
			Type:                    string(p.Kind),
			Value:                   p.Value,
			MinOrderValue:           p.MinOrderValue,
			IsBest:                  p.IsBest,
			UsesRemainingForAccount: p.UsesRemainingForAccount,
		}
		if !p.DiscountAmount.IsZero() {
			d := p.DiscountAmount
			entry.DiscountAmount = &d
		}
		entries = append(entries, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{"available_promos": entries})
}
