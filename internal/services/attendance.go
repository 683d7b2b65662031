package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"qr-attendance-bot/internal/models"
	"qr-attendance-bot/internal/repository"
)

// ScanState is the state of the attendance scan flow
type ScanState int

const (
	ScanScanning ScanState = iota
	ScanPendingConfirmation
	ScanSubmitting
	ScanFeedback
	ScanClosed
)

func (s ScanState) String() string {
	switch s {
	case ScanScanning:
		return "scanning"
	case ScanPendingConfirmation:
		return "pending-confirmation"
	case ScanSubmitting:
		return "submitting"
	case ScanFeedback:
		return "feedback"
	case ScanClosed:
		return "closed"
	}
	return fmt.Sprintf("ScanState(%d)", int(s))
}

// FeedbackKind distinguishes success from failure messages
type FeedbackKind int

const (
	FeedbackSuccess FeedbackKind = iota
	FeedbackFailure
)

func (k FeedbackKind) String() string {
	if k == FeedbackSuccess {
		return "success"
	}
	return "failure"
}

var scheduleCodePattern = regexp.MustCompile(`^\d+$`)

// LocationProvider reads device geolocation
type LocationProvider interface {
	LocationGranted() bool
	// CurrentLocation returns a fresh fix; it is called once per submission
	CurrentLocation(ctx context.Context) (models.Location, error)
}

// ScanView renders the scan screen
type ScanView interface {
	ShowScanning()
	ShowPendingConfirmation(scheduleID int64)
	ShowSubmitting(scheduleID int64, scanType models.ScanType)
	ShowFeedback(message string, kind FeedbackKind)
	// ShowScanError reports a transient problem, e.g. a malformed code
	ShowScanError(err error)
}

// ScanSnapshot is a read-only copy of the flow state
type ScanSnapshot struct {
	State      ScanState
	ScheduleID int64
	ScanType   models.ScanType
	Message    string
	Kind       FeedbackKind
	AttemptID  string
}

// ScanOptions tunes a ScanFlow; zero values fall back to defaults
type ScanOptions struct {
	Debounce      time.Duration // default 2s
	FeedbackDelay time.Duration // default 3s
	Now           func() time.Time
	// AfterFunc schedules f and returns its stop function
	AfterFunc func(d time.Duration, f func()) (stop func() bool)
}

// ScanFlow turns decoded camera payloads into at most one confirmed scan at a time
type ScanFlow struct {
	session   SessionReader
	api       repository.ScanAPI
	location  LocationProvider
	view      ScanView
	debounce  time.Duration
	delay     time.Duration
	now       func() time.Time
	afterFunc func(time.Duration, func()) func() bool

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	snap         ScanSnapshot
	lastAccepted time.Time
	lastRejected time.Time
	feedbackGen  int
	stopClear    func() bool
}

// NewScanFlow creates a flow in Scanning
func NewScanFlow(session SessionReader, api repository.ScanAPI, location LocationProvider, view ScanView, opts ScanOptions) *ScanFlow {
	if opts.Debounce <= 0 {
		opts.Debounce = 2 * time.Second
	}
	if opts.FeedbackDelay <= 0 {
		opts.FeedbackDelay = 3 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ScanFlow{
		session:   session,
		api:       api,
		location:  location,
		view:      view,
		debounce:  opts.Debounce,
		delay:     opts.FeedbackDelay,
		now:       opts.Now,
		afterFunc: opts.AfterFunc,
		ctx:       ctx,
		cancel:    cancel,
		snap:      ScanSnapshot{State: ScanScanning},
	}
}

// Snapshot returns the current state
func (f *ScanFlow) Snapshot() ScanSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

// HandleDecode is the camera callback. It reports whether the payload
// moved the flow to PendingConfirmation.
func (f *ScanFlow) HandleDecode(payload string) bool {
	now := f.now()

	f.mu.Lock()
	if f.snap.State != ScanScanning {
		f.mu.Unlock()
		return false
	}
	if !f.lastAccepted.IsZero() && now.Sub(f.lastAccepted) < f.debounce {
		f.mu.Unlock()
		return false
	}

	code := strings.TrimSpace(payload)
	id, err := strconv.ParseInt(code, 10, 64)
	if !scheduleCodePattern.MatchString(code) || err != nil {
		// one message per debounce window for bursts of bad frames
		if !f.lastRejected.IsZero() && now.Sub(f.lastRejected) < f.debounce {
			f.mu.Unlock()
			return false
		}
		f.lastRejected = now
		f.mu.Unlock()
		f.view.ShowScanError(ErrInvalidPayload)
		return false
	}

	f.lastAccepted = now
	f.snap = ScanSnapshot{
		State:      ScanPendingConfirmation,
		ScheduleID: id,
		AttemptID:  uuid.NewString(),
	}
	attempt := f.snap.AttemptID
	f.mu.Unlock()

	log.Printf("📷 Scan attempt %s: schedule %d awaiting confirmation", attempt, id)
	f.view.ShowPendingConfirmation(id)
	return true
}

// Cancel discards the pending payload
func (f *ScanFlow) Cancel() error {
	f.mu.Lock()
	if f.snap.State != ScanPendingConfirmation {
		f.mu.Unlock()
		return ErrNoPendingScan
	}
	f.snap = ScanSnapshot{State: ScanScanning}
	f.mu.Unlock()

	f.view.ShowScanning()
	return nil
}

// Confirm submits the pending scan with the chosen direction. Missing
// session or location permission short-circuit to Feedback without any
// network call. The returned error mirrors the failure feedback.
func (f *ScanFlow) Confirm(ctx context.Context, scanType models.ScanType) error {
	if !scanType.Valid() {
		return models.ErrInvalidScanType
	}

	f.mu.Lock()
	switch f.snap.State {
	case ScanPendingConfirmation:
	case ScanSubmitting:
		f.mu.Unlock()
		return ErrSubmissionInFlight
	case ScanClosed:
		f.mu.Unlock()
		return ErrClosed
	default:
		f.mu.Unlock()
		return ErrNoPendingScan
	}
	scheduleID := f.snap.ScheduleID
	attempt := f.snap.AttemptID
	f.mu.Unlock()

	// Token may invalidate the session and run listeners, so no lock here
	token, err := f.session.Token()
	if err != nil {
		f.finish(attempt, "", err)
		return err
	}
	if !f.location.LocationGranted() {
		f.finish(attempt, "", ErrLocationDenied)
		return ErrLocationDenied
	}

	f.mu.Lock()
	if f.snap.State != ScanPendingConfirmation || f.snap.AttemptID != attempt {
		state := f.snap.State
		f.mu.Unlock()
		if state == ScanSubmitting {
			return ErrSubmissionInFlight
		}
		return ErrNoPendingScan
	}
	f.snap.State = ScanSubmitting
	f.snap.ScanType = scanType
	f.mu.Unlock()
	f.view.ShowSubmitting(scheduleID, scanType)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(f.ctx, cancel)
	defer stop()

	loc, err := f.location.CurrentLocation(ctx)
	if err != nil {
		err = fmt.Errorf("read location: %w", err)
		f.finish(attempt, "", err)
		return err
	}

	session, _ := f.session.Current()
	event := models.ScanEvent{
		UserID:     session.User.ID,
		ScheduleID: scheduleID,
		ScanType:   scanType,
		Latitude:   loc.Latitude,
		Longitude:  loc.Longitude,
	}
	msg, err := f.api.SubmitScan(ctx, token, event)
	if errors.Is(err, repository.ErrUnauthorized) {
		f.session.Invalidate(context.Background())
		err = ErrSessionExpired
	}
	f.finish(attempt, msg, err)
	return err
}

// finish moves to Feedback and schedules the return to Scanning
func (f *ScanFlow) finish(attempt, msg string, err error) {
	kind := FeedbackSuccess
	if err != nil {
		kind = FeedbackFailure
		msg = UserMessage(err)
		log.Printf("❌ Scan attempt %s failed: %v", attempt, err)
	} else {
		if msg == "" {
			msg = "Attendance recorded"
		}
		log.Printf("✅ Scan attempt %s recorded", attempt)
	}

	f.mu.Lock()
	if f.snap.State == ScanClosed || f.snap.State == ScanFeedback || f.snap.AttemptID != attempt {
		f.mu.Unlock()
		return
	}
	f.snap.State = ScanFeedback
	f.snap.Message = msg
	f.snap.Kind = kind
	f.feedbackGen++
	gen := f.feedbackGen
	f.stopClear = f.afterFunc(f.delay, func() { f.clearFeedback(gen) })
	f.mu.Unlock()

	f.view.ShowFeedback(msg, kind)
}

func (f *ScanFlow) clearFeedback(gen int) {
	f.mu.Lock()
	if f.snap.State != ScanFeedback || f.feedbackGen != gen {
		f.mu.Unlock()
		return
	}
	f.snap = ScanSnapshot{State: ScanScanning}
	f.stopClear = nil
	f.mu.Unlock()

	f.view.ShowScanning()
}

// Close ends the flow; in-flight submissions are cancelled and their result ignored
func (f *ScanFlow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snap.State == ScanClosed {
		return
	}
	f.snap.State = ScanClosed
	if f.stopClear != nil {
		f.stopClear()
		f.stopClear = nil
	}
	f.cancel()
}

// UserMessage turns an error into text fit for the user
func UserMessage(err error) string {
	var apiErr *repository.APIError
	switch {
	case errors.Is(err, ErrSessionExpired), errors.Is(err, repository.ErrUnauthorized):
		return ErrSessionExpired.Error()
	case errors.As(err, &apiErr) && apiErr.Message != "":
		return apiErr.Message
	case errors.Is(err, context.DeadlineExceeded):
		return "the server did not answer in time, please try again"
	}
	return err.Error()
}
