package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"qr-attendance-bot/internal/models"
	"qr-attendance-bot/internal/repository"
)

type scanFixture struct {
	flow    *ScanFlow
	session *mockSession
	api     *mockScanAPI
	loc     *mockLocation
	view    *recordingScanView
	clock   *fakeClock
	timers  *manualTimers
}

func newScanFixture() *scanFixture {
	fx := &scanFixture{
		session: newStudentSession("tok", 5),
		api:     &mockScanAPI{msg: "Scan recorded"},
		loc:     &mockLocation{granted: true, loc: models.Location{Latitude: 51.1, Longitude: 71.4}},
		view:    &recordingScanView{},
		clock:   newFakeClock(),
		timers:  &manualTimers{},
	}
	fx.flow = NewScanFlow(fx.session, fx.api, fx.loc, fx.view, ScanOptions{
		Now:       fx.clock.Now,
		AfterFunc: fx.timers.AfterFunc,
	})
	return fx
}

func TestHandleDecode(t *testing.T) {
	tests := []struct {
		name        string
		payload     string
		wantAccept  bool
		wantID      int64
		wantErrView bool
	}{
		{name: "Numeric code", payload: "42", wantAccept: true, wantID: 42},
		{name: "Surrounding space", payload: " 17\n", wantAccept: true, wantID: 17},
		{name: "Letters", payload: "abc", wantErrView: true},
		{name: "Mixed", payload: "12a", wantErrView: true},
		{name: "Negative", payload: "-3", wantErrView: true},
		{name: "Empty", payload: "", wantErrView: true},
		{name: "Overflow", payload: "99999999999999999999", wantErrView: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newScanFixture()
			defer fx.flow.Close()

			if got := fx.flow.HandleDecode(tt.payload); got != tt.wantAccept {
				t.Fatalf("HandleDecode(%q) = %v, want %v", tt.payload, got, tt.wantAccept)
			}
			snap := fx.flow.Snapshot()
			if tt.wantAccept {
				if snap.State != ScanPendingConfirmation || snap.ScheduleID != tt.wantID {
					t.Errorf("snapshot = %+v, want pending %d", snap, tt.wantID)
				}
				if snap.AttemptID == "" {
					t.Error("attempt ID not set")
				}
			} else if snap.State != ScanScanning {
				t.Errorf("state = %v, want scanning", snap.State)
			}
			if gotErr := len(fx.view.errs) == 1; gotErr != tt.wantErrView {
				t.Errorf("error shown = %v, want %v", gotErr, tt.wantErrView)
			}
			if tt.wantErrView && !errors.Is(fx.view.errs[0], ErrInvalidPayload) {
				t.Errorf("error = %v, want ErrInvalidPayload", fx.view.errs[0])
			}
		})
	}
}

func TestHandleDecodeDebounce(t *testing.T) {
	fx := newScanFixture()
	defer fx.flow.Close()

	if !fx.flow.HandleDecode("7") {
		t.Fatal("first decode rejected")
	}
	if err := fx.flow.Cancel(); err != nil {
		t.Fatalf("Cancel() = %v", err)
	}

	fx.clock.Advance(500 * time.Millisecond)
	if fx.flow.HandleDecode("7") {
		t.Error("decode 500ms after the previous one should be dropped")
	}
	if len(fx.view.pending) != 1 {
		t.Errorf("pending transitions = %d, want 1", len(fx.view.pending))
	}

	fx.clock.Advance(1600 * time.Millisecond)
	if !fx.flow.HandleDecode("7") {
		t.Error("decode after the window should be accepted")
	}
}

func TestHandleDecodeIgnoredOutsideScanning(t *testing.T) {
	fx := newScanFixture()
	defer fx.flow.Close()

	fx.flow.HandleDecode("1")
	fx.clock.Advance(5 * time.Second)
	if fx.flow.HandleDecode("2") {
		t.Error("decode while pending should be ignored")
	}
	if snap := fx.flow.Snapshot(); snap.ScheduleID != 1 {
		t.Errorf("pending schedule = %d, want 1", snap.ScheduleID)
	}
}

func TestInvalidPayloadMessagesThrottled(t *testing.T) {
	fx := newScanFixture()
	defer fx.flow.Close()

	fx.flow.HandleDecode("x")
	fx.flow.HandleDecode("y")
	fx.clock.Advance(3 * time.Second)
	fx.flow.HandleDecode("z")

	if got := len(fx.view.errs); got != 2 {
		t.Errorf("error messages = %d, want 2", got)
	}
}

func TestConfirmSubmitsExactlyOneEvent(t *testing.T) {
	fx := newScanFixture()
	defer fx.flow.Close()

	fx.flow.HandleDecode("42")
	if err := fx.flow.Confirm(context.Background(), models.ScanOut); err != nil {
		t.Fatalf("Confirm() = %v", err)
	}

	events := fx.api.submitted()
	if len(events) != 1 {
		t.Fatalf("submitted %d events, want 1", len(events))
	}
	want := models.ScanEvent{UserID: 3, ScheduleID: 42, ScanType: models.ScanOut, Latitude: 51.1, Longitude: 71.4}
	if events[0] != want {
		t.Errorf("event = %+v, want %+v", events[0], want)
	}
	if fx.loc.reads != 1 {
		t.Errorf("location reads = %d, want 1", fx.loc.reads)
	}

	snap := fx.flow.Snapshot()
	if snap.State != ScanFeedback || snap.Kind != FeedbackSuccess || snap.Message != "Scan recorded" {
		t.Errorf("snapshot = %+v, want success feedback", snap)
	}
	if fx.view.submitted != 1 {
		t.Errorf("submitting shown %d times", fx.view.submitted)
	}

	fx.timers.mu.Lock()
	delay := fx.timers.delay[0]
	fx.timers.mu.Unlock()
	if delay != 3*time.Second {
		t.Errorf("feedback delay = %v, want 3s", delay)
	}
	fx.timers.fireLast(t)
	if snap := fx.flow.Snapshot(); snap.State != ScanScanning {
		t.Errorf("state after feedback = %v, want scanning", snap.State)
	}
	if fx.view.scanning != 1 {
		t.Errorf("scanning shown %d times, want 1", fx.view.scanning)
	}
}

func TestConfirmRejectsInvalidScanType(t *testing.T) {
	fx := newScanFixture()
	defer fx.flow.Close()

	fx.flow.HandleDecode("42")
	for _, st := range []models.ScanType{"", "in", "BOTH"} {
		if err := fx.flow.Confirm(context.Background(), st); !errors.Is(err, models.ErrInvalidScanType) {
			t.Errorf("Confirm(%q) = %v, want ErrInvalidScanType", st, err)
		}
	}
	if snap := fx.flow.Snapshot(); snap.State != ScanPendingConfirmation {
		t.Errorf("state = %v, want pending", snap.State)
	}
	if len(fx.api.submitted()) != 0 {
		t.Error("invalid scan type reached the network")
	}
}

func TestConfirmPreconditions(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(fx *scanFixture)
		wantErr error
	}{
		{
			name:    "No session",
			setup:   func(fx *scanFixture) { fx.session.session = models.Session{} },
			wantErr: ErrNoSession,
		},
		{
			name:    "Location denied",
			setup:   func(fx *scanFixture) { fx.loc.granted = false },
			wantErr: ErrLocationDenied,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newScanFixture()
			defer fx.flow.Close()
			tt.setup(fx)

			fx.flow.HandleDecode("42")
			err := fx.flow.Confirm(context.Background(), models.ScanIn)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Confirm() = %v, want %v", err, tt.wantErr)
			}
			if len(fx.api.submitted()) != 0 {
				t.Error("network call made despite failed precondition")
			}
			if fx.loc.reads != 0 {
				t.Error("location read despite failed precondition")
			}
			snap := fx.flow.Snapshot()
			if snap.State != ScanFeedback || snap.Kind != FeedbackFailure {
				t.Errorf("snapshot = %+v, want failure feedback", snap)
			}
		})
	}
}

func TestConfirmUnauthorizedInvalidatesSession(t *testing.T) {
	fx := newScanFixture()
	defer fx.flow.Close()
	fx.api.err = &repository.APIError{StatusCode: 401}

	fx.flow.HandleDecode("42")
	err := fx.flow.Confirm(context.Background(), models.ScanIn)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("Confirm() = %v, want ErrSessionExpired", err)
	}
	if fx.session.invalidations() != 1 {
		t.Errorf("invalidations = %d, want 1", fx.session.invalidations())
	}
	if snap := fx.flow.Snapshot(); snap.Message != ErrSessionExpired.Error() {
		t.Errorf("feedback = %q", snap.Message)
	}
}

func TestConfirmServerMessageOnFailure(t *testing.T) {
	fx := newScanFixture()
	defer fx.flow.Close()
	fx.api.err = &repository.APIError{StatusCode: 400, Message: "Too far from the classroom"}

	fx.flow.HandleDecode("42")
	fx.flow.Confirm(context.Background(), models.ScanIn)

	snap := fx.flow.Snapshot()
	if snap.Kind != FeedbackFailure || snap.Message != "Too far from the classroom" {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestConfirmWhileSubmitting(t *testing.T) {
	fx := newScanFixture()
	defer fx.flow.Close()
	release := make(chan struct{})
	fx.api.block = release

	fx.flow.HandleDecode("42")
	done := make(chan error, 1)
	go func() { done <- fx.flow.Confirm(context.Background(), models.ScanIn) }()

	eventually(t, func() bool { return fx.flow.Snapshot().State == ScanSubmitting }, "submitting")
	if err := fx.flow.Confirm(context.Background(), models.ScanOut); !errors.Is(err, ErrSubmissionInFlight) {
		t.Errorf("second Confirm() = %v, want ErrSubmissionInFlight", err)
	}
	if err := fx.flow.Cancel(); !errors.Is(err, ErrNoPendingScan) {
		t.Errorf("Cancel() while submitting = %v, want ErrNoPendingScan", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Confirm() = %v", err)
	}
	if got := len(fx.api.submitted()); got != 1 {
		t.Errorf("submitted %d events, want 1", got)
	}
}

func TestCloseDuringSubmission(t *testing.T) {
	fx := newScanFixture()
	release := make(chan struct{})
	defer close(release)
	fx.api.block = release

	fx.flow.HandleDecode("42")
	done := make(chan error, 1)
	go func() { done <- fx.flow.Confirm(context.Background(), models.ScanIn) }()

	eventually(t, func() bool { return fx.flow.Snapshot().State == ScanSubmitting }, "submitting")
	fx.flow.Close()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Confirm() = %v, want context.Canceled", err)
	}
	if snap := fx.flow.Snapshot(); snap.State != ScanClosed {
		t.Errorf("state = %v, want closed", snap.State)
	}
	fx.view.mu.Lock()
	defer fx.view.mu.Unlock()
	if len(fx.view.feedback) != 0 {
		t.Errorf("feedback shown after close: %v", fx.view.feedback)
	}
}

func TestCancelOutsidePending(t *testing.T) {
	fx := newScanFixture()
	defer fx.flow.Close()

	if err := fx.flow.Cancel(); !errors.Is(err, ErrNoPendingScan) {
		t.Errorf("Cancel() = %v, want ErrNoPendingScan", err)
	}
	if err := fx.flow.Confirm(context.Background(), models.ScanIn); !errors.Is(err, ErrNoPendingScan) {
		t.Errorf("Confirm() = %v, want ErrNoPendingScan", err)
	}
}
