package config

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"API_BASE_URL", "HTTP_ADDR", "WEBHOOK_SECRET", "STORE_DRIVER", "QR_WINDOW_SECONDS", "SCAN_DEBOUNCE"} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.APIBaseURL != "http://192.168.0.103:8080" {
		t.Errorf("APIBaseURL = %v", cfg.APIBaseURL)
	}
	if cfg.HTTPAddr != "127.0.0.1:8080" {
		t.Errorf("HTTPAddr = %v, want loopback only", cfg.HTTPAddr)
	}
	if cfg.WebhookSecret != "" {
		t.Errorf("WebhookSecret = %q, want empty", cfg.WebhookSecret)
	}
	if cfg.StoreDriver != "sqlite" {
		t.Errorf("StoreDriver = %v, want sqlite", cfg.StoreDriver)
	}
	if cfg.QRWindowSeconds != 10 {
		t.Errorf("QRWindowSeconds = %v, want 10", cfg.QRWindowSeconds)
	}
	if cfg.ScanDebounce != 2*time.Second {
		t.Errorf("ScanDebounce = %v, want 2s", cfg.ScanDebounce)
	}
	if cfg.FeedbackDelay != 3*time.Second || cfg.ScanTimeout != 5*time.Second {
		t.Errorf("FeedbackDelay = %v, ScanTimeout = %v", cfg.FeedbackDelay, cfg.ScanTimeout)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://attendance.example.com")
	t.Setenv("QR_WINDOW_SECONDS", "15")
	t.Setenv("SCAN_DEBOUNCE", "500ms")
	t.Setenv("FEEDBACK_DELAY", "not-a-duration")
	t.Setenv("WEBHOOK_SECRET", "s3cret")

	cfg, _ := LoadConfig()
	if cfg.APIBaseURL != "https://attendance.example.com" {
		t.Errorf("APIBaseURL = %v", cfg.APIBaseURL)
	}
	if cfg.QRWindowSeconds != 15 {
		t.Errorf("QRWindowSeconds = %v, want 15", cfg.QRWindowSeconds)
	}
	if cfg.ScanDebounce != 500*time.Millisecond {
		t.Errorf("ScanDebounce = %v, want 500ms", cfg.ScanDebounce)
	}
	if cfg.FeedbackDelay != 3*time.Second {
		t.Errorf("FeedbackDelay = %v, want fallback 3s", cfg.FeedbackDelay)
	}
	if cfg.WebhookSecret != "s3cret" {
		t.Errorf("WebhookSecret = %q", cfg.WebhookSecret)
	}
}
