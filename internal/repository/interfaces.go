// Package repository defines repository interfaces for data access
package repository

import (
	"context"
	"errors"

	"qr-attendance-bot/internal/models"
)

// ErrKeyNotFound is returned by KVStore.Get for missing keys
var ErrKeyNotFound = errors.New("key not found")

// KVStore is the flat local store for session state
type KVStore interface {
	// Get returns the value for key or ErrKeyNotFound
	Get(ctx context.Context, key string) (string, error)
	// Set creates or replaces key
	Set(ctx context.Context, key, value string) error
	// Delete removes keys; missing keys are not an error
	Delete(ctx context.Context, keys ...string) error
}

// AuthAPI covers the backend sign-in endpoints
type AuthAPI interface {
	SignIn(ctx context.Context, email, password string) (*models.User, error)
	SignOut(ctx context.Context, token string) error
}

// TicketAPI issues one-time QR tickets
type TicketAPI interface {
	// GenerateTicket returns the raw qrCode payload for a schedule
	GenerateTicket(ctx context.Context, token string, scheduleID int64) (string, error)
}

// ScanAPI records attendance scans
type ScanAPI interface {
	// SubmitScan posts one scan event and returns the server message
	SubmitScan(ctx context.Context, token string, event models.ScanEvent) (string, error)
}

// ScheduleAPI covers schedule, statistics and journal reads
type ScheduleAPI interface {
	ScheduleByGroup(ctx context.Context, token string, groupID int64) ([]models.ScheduleItem, error)
	ScheduleByLecturer(ctx context.Context, token string, teacherID int64) ([]models.ScheduleItem, error)
	ScheduleStats(ctx context.Context, token string, scheduleID int64) (*models.AttendanceStats, error)
	Subjects(ctx context.Context, token string) ([]models.Subject, error)
	Groups(ctx context.Context, token string) ([]models.Group, error)
	CreateSchedule(ctx context.Context, token string, req models.CreateScheduleRequest) (string, error)
	Journal(ctx context.Context, token string, groupID, subjectID int64) ([]models.JournalEntry, error)
}
