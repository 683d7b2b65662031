package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"qr-attendance-bot/bot"
	"qr-attendance-bot/config"
	"qr-attendance-bot/internal/handlers"
	"qr-attendance-bot/internal/repository"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Println("Config loaded successfully")

	// Create application context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Shutdown signal received, initiating graceful shutdown...")
		cancel()
	}()

	// Local session store
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.StoreDriver, err)
	}
	defer closeStore()

	// Initialize Telegram Bot
	backend := repository.NewAttendanceRESTClient(cfg.APIBaseURL, cfg.ScanTimeout)
	tg, err := bot.NewTelegramAPI(cfg.TelegramBotToken)
	if err != nil {
		log.Fatalf("Failed to init Telegram Bot: %v", err)
	}
	app := bot.New(tg, store, backend, bot.Options{
		QRWindow:       cfg.QRWindowSeconds,
		ScanDebounce:   cfg.ScanDebounce,
		FeedbackDelay:  cfg.FeedbackDelay,
		LocationMaxAge: cfg.LocationMaxAge,
	})
	app.StartPolling(ctx, tg)
	log.Println("Telegram Bot Initialized")

	// Setup HTTP server
	router := mux.NewRouter()
	if cfg.WebhookSecret == "" {
		log.Printf("⚠️  WEBHOOK_SECRET not set, /api accepts unauthenticated requests on %s", cfg.HTTPAddr)
	}
	handlers.NewScanHandler(app, cfg.WebhookSecret).Register(router)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	app.Shutdown()

	log.Println("Server stopped gracefully")
}

// openStore opens the configured KV store and returns its closer
func openStore(ctx context.Context, cfg *config.Config) (repository.KVStore, func(), error) {
	switch cfg.StoreDriver {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, err
		}
		log.Printf("🗄️  Using Redis store at %s", cfg.RedisAddr)
		return repository.NewRedisKVStore(client), func() { client.Close() }, nil
	default:
		store, err := repository.OpenSQLiteKVStore(cfg.StorePath)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("🗄️  Using SQLite store at %s", cfg.StorePath)
		return store, func() { store.Close() }, nil
	}
}
