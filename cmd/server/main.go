package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/david/grantmatch/internal/ai"
	"github.com/david/grantmatch/internal/api"
	"github.com/david/grantmatch/internal/config"
	"github.com/david/grantmatch/internal/db"
)

func main() {
	cfg := config.Load()

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	provider, err := ai.New(cfg.AI)
	if err != nil {
		// /api/v1/match answers 500 until a provider is configured
		log.Printf("[ai] provider %q unavailable: %v", cfg.AI.Provider, err)
	}

	srv, err := api.NewServer(cfg, pool, provider)
	if err != nil {
		log.Fatalf("Failed to build server: %v", err)
	}

	go func() {
		log.Printf("Server starting on port %s...", cfg.Port)
		if err := srv.Start(cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
