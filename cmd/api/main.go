package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jhbizops/builder.contractors-sub000/internal/api"
	"github.com/jhbizops/builder.contractors-sub000/internal/attachments"
	"github.com/jhbizops/builder.contractors-sub000/internal/config"
	"github.com/jhbizops/builder.contractors-sub000/internal/engine"
	"github.com/jhbizops/builder.contractors-sub000/internal/ledger"
	"github.com/jhbizops/builder.contractors-sub000/internal/ratelimit"
	"github.com/jhbizops/builder.contractors-sub000/internal/store"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt)
		<-ch
		cancel()
	}()

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	lg := ledger.New(st.Pool())
	eng := engine.New(st, lg)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	limiter := ratelimit.NewTokenBucket(redisClient, cfg.RateLimitCapacity, cfg.RateLimitRefill, cfg.RateLimitTTL)

	archiver, err := attachments.New(ctx, cfg)
	if err != nil {
		log.Fatalf("attachment archiver: %v", err)
	}

	server := api.New(cfg, eng, limiter, archiver)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	log.Printf("api listening on :%s", cfg.HTTPPort)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
}
