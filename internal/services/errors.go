// Package services implements the client-side flows of the attendance app
package services

import "errors"

var (
	// ErrNoSession is returned when a flow needs an access token and there is none
	ErrNoSession = errors.New("not signed in")
	// ErrSessionExpired is returned after the backend rejected the token
	ErrSessionExpired = errors.New("session expired, please sign in again")
	// ErrInvalidEmail is a client-side login validation failure
	ErrInvalidEmail = errors.New("email must contain @")
	// ErrPasswordTooShort is a client-side login validation failure
	ErrPasswordTooShort = errors.New("password must be at least 6 characters")
	// ErrInvalidPayload is returned for camera payloads that are not a schedule id
	ErrInvalidPayload = errors.New("scanned code is not a valid schedule code")
	// ErrLocationDenied is returned when location permission was not granted
	ErrLocationDenied = errors.New("location permission is required to record attendance")
	// ErrNoPendingScan is returned by Confirm/Cancel outside PendingConfirmation
	ErrNoPendingScan = errors.New("no scan is waiting for confirmation")
	// ErrSubmissionInFlight is returned when a scan is already being submitted
	ErrSubmissionInFlight = errors.New("scan submission already in progress")
	// ErrClosed is returned by flows after their screen was closed
	ErrClosed = errors.New("screen closed")
	// ErrMissingFields is returned when a form is incomplete
	ErrMissingFields = errors.New("all fields are required")
	// ErrWrongRole is returned when a flow needs another role
	ErrWrongRole = errors.New("this action is not available for your role")
	// ErrNotScanning is returned when a decoded frame arrives for a chat without an open scan screen
	ErrNotScanning = errors.New("no scan screen is open for this chat")
)
