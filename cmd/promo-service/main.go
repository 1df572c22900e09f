package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/musicsupplies/promo-service/internal/api"
	"github.com/musicsupplies/promo-service/internal/api/middleware"
	"github.com/musicsupplies/promo-service/internal/cache"
	"github.com/musicsupplies/promo-service/internal/repository"
	"github.com/musicsupplies/promo-service/pkg/db"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if level, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info")); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// money fields go out as JSON numbers, not strings
	decimal.MarshalJSONWithoutQuotes = true

	cfg, err := db.LoadPostgresConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("load db config")
	}

	conn, err := db.NewPostgresConnection(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer conn.Close()

	store := repository.NewPostgresStore(conn)

	rdb := redis.NewClient(&redis.Options{Addr: getEnv("REDIS_ADDR", "localhost:6379")})
	promoCache := cache.NewPromoCache(store, rdb, 30*time.Second)

	handler := api.NewRouter(store, promoCache, promoCache)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Mount("/", handler)

	addr := getEnv("HTTP_ADDR", ":8080")
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// graceful shutdown
	idleConnsClosed := make(chan struct{})
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("http server shutdown")
		}
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("redis close")
		}
		close(idleConnsClosed)
	}()

	log.Info().Str("addr", addr).Msg("starting promo-service")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("listen")
	}

	<-idleConnsClosed
	log.Info().Msg("server stopped")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
