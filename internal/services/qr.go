package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"qr-attendance-bot/internal/models"
	"qr-attendance-bot/internal/repository"
)

// LoopState is the state of a QR refresh loop
type LoopState int

const (
	LoopIdle LoopState = iota
	LoopRunning
	LoopPaused
	LoopClosed
)

func (s LoopState) String() string {
	switch s {
	case LoopIdle:
		return "idle"
	case LoopRunning:
		return "running"
	case LoopPaused:
		return "paused"
	case LoopClosed:
		return "closed"
	}
	return fmt.Sprintf("LoopState(%d)", int(s))
}

// Ticker is the part of time.Ticker the loop uses
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

type stdTicker struct{ *time.Ticker }

func (t stdTicker) Chan() <-chan time.Time { return t.C }

// NewStdTicker wraps time.NewTicker
func NewStdTicker(d time.Duration) Ticker {
	return stdTicker{time.NewTicker(d)}
}

// TicketView renders the refresh screen
type TicketView interface {
	ShowTicket(ticket models.QrTicket)
	ShowTicketError(err error)
	ShowCountdown(state LoopState, secondsRemaining int)
}

// RefreshOptions tunes a RefreshLoop; zero values fall back to defaults
type RefreshOptions struct {
	Window    int           // seconds per cycle, default 10
	Interval  time.Duration // tick length, default 1s
	NewTicker func(time.Duration) Ticker
	Now       func() time.Time
}

// RefreshLoop keeps a one-time QR ticket fresh for one schedule.
// It owns at most one ticker; Close tears it down and silences the view.
type RefreshLoop struct {
	id        string
	schedule  models.ScheduleItem
	session   SessionReader
	api       repository.TicketAPI
	view      TicketView
	window    int
	interval  time.Duration
	newTicker func(time.Duration) Ticker
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	state     LoopState
	remaining int
	inFlight  bool
	ticker    Ticker
	tickDone  chan struct{}
	ticket    *models.QrTicket
	fetches   int
}

// NewRefreshLoop creates an idle loop; call Start when the screen mounts
func NewRefreshLoop(schedule models.ScheduleItem, session SessionReader, api repository.TicketAPI, view TicketView, opts RefreshOptions) *RefreshLoop {
	if opts.Window < 1 {
		opts.Window = 10
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.NewTicker == nil {
		opts.NewTicker = NewStdTicker
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &RefreshLoop{
		id:        uuid.NewString(),
		schedule:  schedule,
		session:   session,
		api:       api,
		view:      view,
		window:    opts.Window,
		interval:  opts.Interval,
		newTicker: opts.NewTicker,
		now:       opts.Now,
		ctx:       ctx,
		cancel:    cancel,
		state:     LoopIdle,
		remaining: opts.Window,
	}
}

// ID identifies the loop instance in logs
func (l *RefreshLoop) ID() string { return l.id }

// Schedule returns the schedule the loop was created for
func (l *RefreshLoop) Schedule() models.ScheduleItem { return l.schedule }

// State returns the current state and countdown
func (l *RefreshLoop) State() (LoopState, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state, l.remaining
}

// Ticket returns the last successfully fetched ticket
func (l *RefreshLoop) Ticket() (models.QrTicket, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ticket == nil {
		return models.QrTicket{}, false
	}
	return *l.ticket, true
}

// Start enters Running with a full window and fetches immediately
func (l *RefreshLoop) Start() bool {
	l.mu.Lock()
	if l.state != LoopIdle {
		l.mu.Unlock()
		return false
	}
	l.state = LoopRunning
	l.remaining = l.window
	l.startTickerLocked()
	l.requestFetchLocked("start")
	rem := l.remaining
	l.mu.Unlock()

	log.Printf("▶️  QR loop %s started for schedule %d", l.id, l.schedule.ID)
	l.view.ShowCountdown(LoopRunning, rem)
	return true
}

// Pause stops the ticker; the countdown resets to a full window
func (l *RefreshLoop) Pause() bool {
	l.mu.Lock()
	if l.state != LoopRunning {
		l.mu.Unlock()
		return false
	}
	l.state = LoopPaused
	l.stopTickerLocked()
	l.remaining = l.window
	rem := l.remaining
	l.mu.Unlock()

	log.Printf("⏸️  QR loop %s paused", l.id)
	l.view.ShowCountdown(LoopPaused, rem)
	return true
}

// Resume fetches immediately and restarts the ticker
func (l *RefreshLoop) Resume() bool {
	l.mu.Lock()
	if l.state != LoopPaused {
		l.mu.Unlock()
		return false
	}
	l.state = LoopRunning
	l.remaining = l.window
	l.startTickerLocked()
	l.requestFetchLocked("resume")
	rem := l.remaining
	l.mu.Unlock()

	log.Printf("▶️  QR loop %s resumed", l.id)
	l.view.ShowCountdown(LoopRunning, rem)
	return true
}

// Retry re-fetches after a failure without touching the countdown
func (l *RefreshLoop) Retry() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == LoopClosed || l.state == LoopIdle {
		return false
	}
	return l.requestFetchLocked("retry")
}

// Close tears the loop down and waits for the ticker and any fetch to
// finish; no view callback runs after it returns. It must not be called
// from inside a TicketView callback.
func (l *RefreshLoop) Close() {
	l.mu.Lock()
	if l.state == LoopClosed {
		l.mu.Unlock()
		return
	}
	l.state = LoopClosed
	l.stopTickerLocked()
	l.cancel()
	l.mu.Unlock()

	l.wg.Wait()
	log.Printf("⏹️  QR loop %s closed", l.id)
}

func (l *RefreshLoop) startTickerLocked() {
	l.stopTickerLocked()
	t := l.newTicker(l.interval)
	done := make(chan struct{})
	l.ticker = t
	l.tickDone = done

	l.wg.Add(1)
	go l.run(t, done)
}

func (l *RefreshLoop) stopTickerLocked() {
	if l.ticker == nil {
		return
	}
	l.ticker.Stop()
	close(l.tickDone)
	l.ticker = nil
	l.tickDone = nil
}

func (l *RefreshLoop) run(t Ticker, done chan struct{}) {
	defer l.wg.Done()
	for {
		select {
		case <-done:
			return
		case <-t.Chan():
			l.tick(done)
		}
	}
}

func (l *RefreshLoop) tick(done chan struct{}) {
	l.mu.Lock()
	select {
	case <-done:
		// ticker was replaced or stopped while this tick was pending
		l.mu.Unlock()
		return
	default:
	}
	if l.state != LoopRunning {
		l.mu.Unlock()
		return
	}
	if l.remaining <= 1 {
		l.remaining = l.window
		l.requestFetchLocked("rollover")
	} else {
		l.remaining--
	}
	rem := l.remaining
	l.mu.Unlock()

	l.view.ShowCountdown(LoopRunning, rem)
}

// requestFetchLocked starts a fetch unless one is already in flight
func (l *RefreshLoop) requestFetchLocked(reason string) bool {
	if l.inFlight {
		log.Printf("⏭️  QR loop %s: %s fetch skipped, previous still in flight", l.id, reason)
		return false
	}
	l.inFlight = true
	l.fetches++
	l.wg.Add(1)
	go l.fetch()
	return true
}

func (l *RefreshLoop) fetch() {
	defer l.wg.Done()
	token, err := l.session.Token()
	if err != nil {
		l.finishFetch(nil, err)
		return
	}

	code, err := l.api.GenerateTicket(l.ctx, token, l.schedule.ID)
	if err != nil {
		if errors.Is(err, repository.ErrUnauthorized) {
			l.session.Invalidate(context.Background())
			err = fmt.Errorf("%w: %v", ErrSessionExpired, err)
		}
		l.finishFetch(nil, err)
		return
	}

	ticket := NormalizeTicket(code, l.now(), l.window)
	l.finishFetch(&ticket, nil)
}

func (l *RefreshLoop) finishFetch(ticket *models.QrTicket, err error) {
	l.mu.Lock()
	l.inFlight = false
	closed := l.state == LoopClosed
	if ticket != nil && !closed {
		l.ticket = ticket
	}
	l.mu.Unlock()

	if closed {
		return
	}
	if err != nil {
		log.Printf("❌ QR loop %s: ticket fetch failed: %v", l.id, err)
		l.view.ShowTicketError(err)
		return
	}
	l.view.ShowTicket(*ticket)
}
