package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Inkbound/server/internal/config"
	"Inkbound/server/internal/dialogue"
	"Inkbound/server/internal/interfaces"
	"Inkbound/server/internal/narrative"
	"Inkbound/server/internal/session"
	"Inkbound/server/internal/storage"
	"Inkbound/server/internal/web"
)

func main() {
	// Load configuration
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize storage connections. Both are optional: the core runs
	// memory-only when neither backend is reachable.
	var store interfaces.ProgressStore
	mysqlStore, err := storage.NewMySQLStore(cfg.Database.MySQL)
	if err != nil {
		log.Printf("Warning: Failed to connect to MySQL: %v", err)
	} else {
		defer mysqlStore.Close()
		store = mysqlStore
		log.Println("MySQL connected successfully")
	}

	var cache interfaces.ProgressCache
	redisStore, err := storage.NewRedisStore(cfg.Database.Redis)
	if err != nil {
		log.Printf("Warning: Failed to connect to Redis: %v", err)
	} else {
		defer redisStore.Close()
		cache = redisStore
		log.Println("Redis connected successfully")
	}

	// Load the declarative narrative catalogs. LoadCatalog degrades to an
	// empty catalog on error, so a missing file means no story, not no
	// server.
	catalog := narrative.LoadCatalog(cfg.Catalogs.RulesPath, cfg.Catalogs.BlurbsPath)
	evaluator := narrative.NewEvaluator(catalog)
	log.Printf("Catalog loaded: %d rules, %d blurbs", len(catalog.Rules), len(catalog.Blurbs))

	// Start notification hub
	hub := web.NewNotificationHub()
	go hub.Run()

	svc := session.NewService(evaluator, store, cache, hub, dialogueTimings(cfg.Dialogue))

	// Create router
	r := web.NewRouter(cfg, svc, hub)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout(),
		WriteTimeout: cfg.Server.WriteTimeout(),
	}

	// Start server in background
	go func() {
		log.Printf("Server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}

// dialogueTimings converts the configured millisecond values, falling
// back to the stock timings when the section is absent.
func dialogueTimings(dc config.DialogueConfig) dialogue.Timings {
	if dc.EnterMS == 0 && dc.ShiftMS == 0 && dc.ExitMS == 0 && dc.StaggerMS == 0 {
		return dialogue.DefaultTimings()
	}
	return dialogue.Timings{
		Enter:   time.Duration(dc.EnterMS) * time.Millisecond,
		Shift:   time.Duration(dc.ShiftMS) * time.Millisecond,
		Exit:    time.Duration(dc.ExitMS) * time.Millisecond,
		Stagger: time.Duration(dc.StaggerMS) * time.Millisecond,
	}
}
