// Package handlers provides HTTP handlers for the scanner webhook
package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"qr-attendance-bot/internal/models"
	"qr-attendance-bot/internal/services"
)

// ScanRouter delivers webhook input to the chat it belongs to
type ScanRouter interface {
	// HandleScan feeds one decoded payload to the chat's scan flow
	HandleScan(ctx context.Context, chatID int64, payload string) (bool, error)
	// UpdateLocation grants location for the chat and records a fresh fix
	UpdateLocation(ctx context.Context, chatID int64, lat, lon float64) error
}

// SecretHeader carries the shared webhook secret
const SecretHeader = "X-Webhook-Secret"

// ScanHandler handles camera decode and location webhooks
type ScanHandler struct {
	router ScanRouter
	secret string
}

// NewScanHandler creates a new scan handler. A non-empty secret must be
// sent in SecretHeader on every /api request.
func NewScanHandler(router ScanRouter, secret string) *ScanHandler {
	return &ScanHandler{router: router, secret: secret}
}

// Register mounts the webhook routes on r
func (h *ScanHandler) Register(r *mux.Router) {
	r.Handle("/api/scan", h.requireSecret(http.HandlerFunc(h.HandleScan))).Methods(http.MethodPost)
	r.Handle("/api/location", h.requireSecret(http.HandlerFunc(h.HandleLocation))).Methods(http.MethodPost)
	r.HandleFunc("/health", h.HandleHealth).Methods(http.MethodGet)
}

func (h *ScanHandler) requireSecret(next http.Handler) http.Handler {
	if h.secret == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(SecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			log.Printf("⚠️  Rejected %s %s from %s: bad webhook secret", r.Method, r.URL.Path, r.RemoteAddr)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HandleScan processes one decoded camera frame
func (h *ScanHandler) HandleScan(w http.ResponseWriter, r *http.Request) {
	var req models.ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ChatID == 0 {
		http.Error(w, "chat_id is required", http.StatusBadRequest)
		return
	}

	accepted, err := h.router.HandleScan(r.Context(), req.ChatID, req.Payload)
	if err != nil {
		if errors.Is(err, services.ErrNotScanning) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		log.Printf("Error processing scan for chat %d: %v", req.ChatID, err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	if accepted {
		log.Printf("📷 [Chat %d] Decoded schedule code accepted", req.ChatID)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"accepted": accepted})
}

// HandleLocation records the device location of a chat
func (h *ScanHandler) HandleLocation(w http.ResponseWriter, r *http.Request) {
	var req models.LocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ChatID == 0 || !req.Valid() {
		http.Error(w, "chat_id and valid coordinates are required", http.StatusBadRequest)
		return
	}

	if err := h.router.UpdateLocation(r.Context(), req.ChatID, req.Latitude, req.Longitude); err != nil {
		log.Printf("Error updating location for chat %d: %v", req.ChatID, err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// HandleHealth is the liveness probe
func (h *ScanHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
