package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Attendance backend
	APIBaseURL string // Backend base URL (e.g., http://192.168.0.103:8080)

	// Telegram Bot
	TelegramBotToken string

	// Scanner webhook listen address and optional shared secret
	HTTPAddr      string
	WebhookSecret string

	// Local key-value store
	StoreDriver string // "sqlite" or "redis"
	StorePath   string // sqlite file path
	RedisAddr   string

	// Client-side timings
	QRWindowSeconds int
	ScanDebounce    time.Duration
	FeedbackDelay   time.Duration
	ScanTimeout     time.Duration
	LocationMaxAge  time.Duration
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("godotenv.Load() error: %v", err)
	}

	// Backend URL (required in production, defaults to the dev host)
	apiURL := os.Getenv("API_BASE_URL")
	if apiURL == "" {
		apiURL = "http://192.168.0.103:8080"
	}

	return &Config{
		APIBaseURL:       apiURL,
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		HTTPAddr:         getEnv("HTTP_ADDR", "127.0.0.1:8080"),
		WebhookSecret:    os.Getenv("WEBHOOK_SECRET"),
		StoreDriver:      getEnv("STORE_DRIVER", "sqlite"),
		StorePath:        getEnv("STORE_PATH", "attendance.db"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		QRWindowSeconds:  getEnvInt("QR_WINDOW_SECONDS", 10),
		ScanDebounce:     getEnvDuration("SCAN_DEBOUNCE", 2*time.Second),
		FeedbackDelay:    getEnvDuration("FEEDBACK_DELAY", 3*time.Second),
		ScanTimeout:      getEnvDuration("SCAN_TIMEOUT", 5*time.Second),
		LocationMaxAge:   getEnvDuration("LOCATION_MAX_AGE", 2*time.Minute),
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		log.Printf("Invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("Invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
