package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"qr-attendance-bot/internal/models"
	"qr-attendance-bot/internal/repository"
)

// memStore is an in-memory KVStore
type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]string)}
}

func (s *memStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return "", repository.ErrKeyNotFound
	}
	return v, nil
}

func (s *memStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *memStore) Delete(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

// mockSession is a fixed SessionReader
type mockSession struct {
	mu          sync.Mutex
	session     models.Session
	tokenErr    error
	invalidated int
}

func newTeacherSession(token string) *mockSession {
	return &mockSession{session: models.Session{
		Authenticated: true,
		User:          models.User{ID: 7, Name: "Teacher", Roles: models.RoleSet{models.RoleTeacher}, AccessToken: token},
	}}
}

func newStudentSession(token string, groupID int64) *mockSession {
	return &mockSession{session: models.Session{
		Authenticated: true,
		User:          models.User{ID: 3, Name: "Student", Roles: models.RoleSet{models.RoleStudent}, GroupID: &groupID, AccessToken: token},
	}}
}

func (m *mockSession) Current() (models.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session, m.session.Authenticated
}

func (m *mockSession) Token() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokenErr != nil {
		return "", m.tokenErr
	}
	if m.session.AccessToken() == "" {
		return "", ErrNoSession
	}
	return m.session.AccessToken(), nil
}

func (m *mockSession) Invalidate(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated++
	m.session = models.Session{}
}

func (m *mockSession) invalidations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.invalidated
}

var _ SessionReader = (*mockSession)(nil)

// mockTicketAPI answers GenerateTicket; block, when set, holds every call until released
type mockTicketAPI struct {
	mu     sync.Mutex
	calls  int
	tokens []string
	code   string
	err    error
	block  chan struct{}
}

func (m *mockTicketAPI) GenerateTicket(ctx context.Context, token string, scheduleID int64) (string, error) {
	m.mu.Lock()
	m.calls++
	m.tokens = append(m.tokens, token)
	block, code, err := m.block, m.code, m.err
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return code, err
}

func (m *mockTicketAPI) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var _ repository.TicketAPI = (*mockTicketAPI)(nil)

// mockScanAPI records submitted events
type mockScanAPI struct {
	mu     sync.Mutex
	events []models.ScanEvent
	msg    string
	err    error
	block  chan struct{}
}

func (m *mockScanAPI) SubmitScan(ctx context.Context, token string, event models.ScanEvent) (string, error) {
	m.mu.Lock()
	m.events = append(m.events, event)
	block, msg, err := m.block, m.msg, m.err
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return msg, err
}

func (m *mockScanAPI) submitted() []models.ScanEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ScanEvent(nil), m.events...)
}

var _ repository.ScanAPI = (*mockScanAPI)(nil)

// mockLocation is a LocationProvider with a fixed fix
type mockLocation struct {
	granted bool
	loc     models.Location
	err     error
	reads   int
}

func (m *mockLocation) LocationGranted() bool { return m.granted }

func (m *mockLocation) CurrentLocation(ctx context.Context) (models.Location, error) {
	m.reads++
	return m.loc, m.err
}

var _ LocationProvider = (*mockLocation)(nil)

// manualTicker fires only when the test calls tick
type manualTicker struct {
	c       chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (t *manualTicker) Chan() <-chan time.Time { return t.c }

func (t *manualTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *manualTicker) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// tickerFactory hands out manual tickers and remembers them
type tickerFactory struct {
	mu      sync.Mutex
	tickers []*manualTicker
}

func (f *tickerFactory) New(time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &manualTicker{c: make(chan time.Time)}
	f.tickers = append(f.tickers, t)
	return t
}

func (f *tickerFactory) current(t *testing.T) *manualTicker {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.tickers) == 0 {
		t.Fatal("no ticker created")
	}
	return f.tickers[len(f.tickers)-1]
}

func (f *tickerFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tickers)
}

// tick delivers one tick to the loop's run goroutine
func tick(t *testing.T, mt *manualTicker) {
	t.Helper()
	select {
	case mt.c <- time.Now():
	case <-time.After(time.Second):
		t.Fatal("tick not consumed")
	}
}

// eventually polls cond until it holds or a second passes
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}

// recordingTicketView collects TicketView callbacks
type recordingTicketView struct {
	mu         sync.Mutex
	tickets    []models.QrTicket
	errs       []error
	countdowns []int
}

func (v *recordingTicketView) ShowTicket(ticket models.QrTicket) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tickets = append(v.tickets, ticket)
}

func (v *recordingTicketView) ShowTicketError(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.errs = append(v.errs, err)
}

func (v *recordingTicketView) ShowCountdown(state LoopState, secondsRemaining int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.countdowns = append(v.countdowns, secondsRemaining)
}

func (v *recordingTicketView) snapshot() (tickets, errs, countdowns int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.tickets), len(v.errs), len(v.countdowns)
}

var _ TicketView = (*recordingTicketView)(nil)

// recordingScanView collects ScanView callbacks
type recordingScanView struct {
	mu        sync.Mutex
	pending   []int64
	feedback  []string
	kinds     []FeedbackKind
	errs      []error
	scanning  int
	submitted int
}

func (v *recordingScanView) ShowScanning() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.scanning++
}

func (v *recordingScanView) ShowPendingConfirmation(scheduleID int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pending = append(v.pending, scheduleID)
}

func (v *recordingScanView) ShowSubmitting(scheduleID int64, scanType models.ScanType) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.submitted++
}

func (v *recordingScanView) ShowFeedback(message string, kind FeedbackKind) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.feedback = append(v.feedback, message)
	v.kinds = append(v.kinds, kind)
}

func (v *recordingScanView) ShowScanError(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.errs = append(v.errs, err)
}

var _ ScanView = (*recordingScanView)(nil)

// fakeClock is a settable clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 9, 2, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// manualTimers captures AfterFunc callbacks so tests can fire them
type manualTimers struct {
	mu    sync.Mutex
	funcs []func()
	delay []time.Duration
}

func (m *manualTimers) AfterFunc(d time.Duration, f func()) func() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funcs = append(m.funcs, f)
	m.delay = append(m.delay, d)
	return func() bool { return true }
}

func (m *manualTimers) fireLast(t *testing.T) {
	t.Helper()
	m.mu.Lock()
	if len(m.funcs) == 0 {
		m.mu.Unlock()
		t.Fatal("no timer scheduled")
	}
	f := m.funcs[len(m.funcs)-1]
	m.mu.Unlock()
	f()
}
