package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"qr-attendance-bot/internal/models"
	"qr-attendance-bot/internal/repository"
)

// Fixed local store keys, cleared together on logout
const (
	keyIsAuthenticated = "isAuthenticated"
	keyUser            = "user"
	keyAccessToken     = "accessToken"
)

const minPasswordLength = 6

// SessionReader is the read side of the session handed to screens
type SessionReader interface {
	Current() (models.Session, bool)
	// Token returns the access token, ErrNoSession or ErrSessionExpired
	Token() (string, error)
	// Invalidate clears the session after the backend answered 401
	Invalidate(ctx context.Context)
}

// SessionManager owns one session; Login, Logout and Invalidate are the only mutations
type SessionManager struct {
	store repository.KVStore
	auth  repository.AuthAPI
	now   func() time.Time

	mu        sync.RWMutex
	session   models.Session
	listeners []func()
}

var _ SessionReader = (*SessionManager)(nil)

// NewSessionManager creates an anonymous session backed by store
func NewSessionManager(store repository.KVStore, auth repository.AuthAPI) *SessionManager {
	return &SessionManager{store: store, auth: auth, now: time.Now}
}

// OnInvalidate registers fn to run after a forced session clear
func (m *SessionManager) OnInvalidate(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Restore loads a persisted session; a missing session is not an error
func (m *SessionManager) Restore(ctx context.Context) error {
	flag, err := m.store.Get(ctx, keyIsAuthenticated)
	if errors.Is(err, repository.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if flag != "true" {
		return nil
	}

	raw, err := m.store.Get(ctx, keyUser)
	if errors.Is(err, repository.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	var user models.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return fmt.Errorf("restore session: decode user: %w", err)
	}
	if token, err := m.store.Get(ctx, keyAccessToken); err == nil && token != "" {
		user.AccessToken = token
	}

	m.mu.Lock()
	m.session = models.Session{Authenticated: true, User: user}
	m.mu.Unlock()
	log.Printf("🔑 Restored session for user ID %d", user.ID)
	return nil
}

// Login validates the form, signs in and persists the session
func (m *SessionManager) Login(ctx context.Context, email, password string) (models.Session, error) {
	email = strings.TrimSpace(email)
	if !strings.Contains(email, "@") {
		return models.Session{}, ErrInvalidEmail
	}
	if len([]rune(password)) < minPasswordLength {
		return models.Session{}, ErrPasswordTooShort
	}

	user, err := m.auth.SignIn(ctx, email, password)
	if err != nil {
		return models.Session{}, err
	}

	data, err := json.Marshal(user)
	if err != nil {
		return models.Session{}, fmt.Errorf("encode user: %w", err)
	}
	if err := m.store.Set(ctx, keyAccessToken, user.AccessToken); err != nil {
		return models.Session{}, err
	}
	if err := m.store.Set(ctx, keyUser, string(data)); err != nil {
		return models.Session{}, err
	}
	if err := m.store.Set(ctx, keyIsAuthenticated, "true"); err != nil {
		return models.Session{}, err
	}

	session := models.Session{Authenticated: true, User: *user}
	m.mu.Lock()
	m.session = session
	m.mu.Unlock()
	return session, nil
}

// Logout signs out remotely (best effort) and clears the local session
func (m *SessionManager) Logout(ctx context.Context) error {
	m.mu.RLock()
	token := m.session.AccessToken()
	m.mu.RUnlock()

	if token != "" {
		if err := m.auth.SignOut(ctx, token); err != nil {
			log.Printf("⚠️  Remote logout failed: %v", err)
		}
	}
	return m.clear(ctx)
}

// Invalidate clears the session without calling the backend and notifies listeners
func (m *SessionManager) Invalidate(ctx context.Context) {
	m.mu.RLock()
	wasAuthenticated := m.session.Authenticated
	m.mu.RUnlock()

	if err := m.clear(ctx); err != nil {
		log.Printf("⚠️  Failed to clear invalidated session: %v", err)
	}
	if !wasAuthenticated {
		return
	}

	log.Println("🔒 Session invalidated")
	m.mu.RLock()
	listeners := append([]func(){}, m.listeners...)
	m.mu.RUnlock()
	for _, fn := range listeners {
		fn()
	}
}

func (m *SessionManager) clear(ctx context.Context) error {
	m.mu.Lock()
	m.session = models.Session{}
	m.mu.Unlock()

	if err := m.store.Set(ctx, keyIsAuthenticated, "false"); err != nil {
		return err
	}
	return m.store.Delete(ctx, keyUser, keyAccessToken)
}

// Current returns the session and whether it is authenticated
func (m *SessionManager) Current() (models.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session, m.session.Authenticated
}

func (m *SessionManager) Token() (string, error) {
	m.mu.RLock()
	token := m.session.AccessToken()
	m.mu.RUnlock()

	if token == "" {
		return "", ErrNoSession
	}
	if tokenExpired(token, m.now()) {
		m.Invalidate(context.Background())
		return "", ErrSessionExpired
	}
	return token, nil
}

// tokenExpired reads the exp claim of JWT tokens without verifying them.
// Opaque tokens are never considered expired locally.
func tokenExpired(token string, now time.Time) bool {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return now.After(exp.Time)
}
