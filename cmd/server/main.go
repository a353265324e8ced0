package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"craftly/marketplace/internal/config"
	"craftly/marketplace/internal/db"
	internalhttp "craftly/marketplace/internal/http"
	"craftly/marketplace/internal/jobs"
	"craftly/marketplace/internal/payments"
	"craftly/marketplace/internal/repository"
	"craftly/marketplace/internal/roles"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connection failed: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	store := repository.NewStore(pool)

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("redis unavailable, role cache disabled: %v", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	resolver := roles.NewResolver(store, redisClient, cfg.RoleCacheTTL)
	intents := payments.NewStripeProvider(cfg.StripeSecretKey)
	server := internalhttp.NewServer(cfg, store, resolver, intents)

	if cfg.ReconcileJobEnabled {
		jobs.StartReconcileJob(ctx, store, cfg.ReconcileJobInterval, cfg.ReconcileJobTimeout)
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("marketplace listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
