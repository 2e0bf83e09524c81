package main

import (
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"publishelf/internal/app"
	"publishelf/internal/bidtoken"
	"publishelf/internal/config"
	"publishelf/internal/ratelimit"
	"publishelf/internal/server"
	"publishelf/internal/util"
	"publishelf/pkg/pricecache"
	"publishelf/pkg/store"
)

func main() {
	path := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	minIncrement, err := config.ParseMinIncrement(cfg.MinIncrement)
	if err != nil {
		log.Fatalf("failed to parse min increment: %v", err)
	}
	minWindow, err := config.ParseMinAuctionWindow(cfg.MinAuctionWindow)
	if err != nil {
		log.Fatalf("failed to parse min auction window: %v", err)
	}

	var dataStore store.Store
	if cfg.DatabaseURL != "" {
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to init postgres store: %v", err)
		}
	} else {
		slog.Warn("no databaseURL configured, using in-memory store")
		dataStore = store.NewMemoryStore()
	}

	var cache *pricecache.Cache
	var limiter *ratelimit.BidLimiter
	if cfg.RedisAddr != "" {
		cache = pricecache.New(cfg.RedisAddr, cfg.RedisPassword)
		if cfg.BidRateLimit > 0 {
			rateWindow, err := config.ParseBidRateWindow(cfg.BidRateWindow)
			if err != nil {
				log.Fatalf("failed to parse bid rate window: %v", err)
			}
			limiter, err = ratelimit.NewBidLimiter(cfg.RedisAddr, cfg.RedisPassword, cfg.BidRateLimit, rateWindow)
			if err != nil {
				log.Fatalf("failed to init bid limiter: %v", err)
			}
		}
	} else {
		slog.Warn("no redisAddr configured, idempotency and rate limiting disabled")
	}

	appCore, err := app.New(app.Config{
		Store:            dataStore,
		Cache:            cache,
		MinIncrement:     minIncrement,
		MinAuctionWindow: minWindow,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	verifier, err := bidtoken.NewVerifier(bidtoken.Config{
		Secret:   cfg.BuyerJWTSecret,
		Issuer:   cfg.BuyerJWTIssuer,
		Audience: cfg.BuyerJWTAudience,
	})
	if err != nil {
		log.Fatalf("failed to init token verifier: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:           appCore,
		TokenVerifier: verifier,
		Limiter:       limiter,
		InternalToken: cfg.InternalToken,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("auction server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
