package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/musicsupplies/promo-service/internal/api/handlers"
	"github.com/musicsupplies/promo-service/internal/service"
)

// NewRouter builds the HTTP router for the promo-service. promos is the
// read path the validator uses (the redis cache in production, the
// store itself in tests).
func NewRouter(store service.AdminStore, promos service.PromoReader, cache handlers.CacheInvalidator) http.Handler {
	r := chi.NewRouter()

	promoHandler := handlers.NewPromoHandler(store, promos)
	adminHandler := handlers.NewAdminHandler(store, cache)

	// Order-workflow endpoints
	r.Route("/promo", func(r chi.Router) {
		r.Post("/validate", promoHandler.Validate)
		r.Post("/redeem", promoHandler.Redeem)
		r.Post("/cancel", promoHandler.Cancel)
		r.Get("/available", promoHandler.Available)
	})

	// Admin endpoints
	r.Route("/admin/promo-codes", func(r chi.Router) {
		r.Post("/", adminHandler.Create)
		r.Patch("/{code}", adminHandler.Update)
		r.Post("/{code}/deactivate", adminHandler.Deactivate)
		r.Get("/{code}/usage", adminHandler.Usage)
	})

	r.Handle("/metrics", promhttp.Handler())

	// health
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return r
}
