// Package models contains data structures for the application
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ScanType is the direction of an attendance scan
type ScanType string

const (
	ScanIn  ScanType = "IN"
	ScanOut ScanType = "OUT"
)

// ErrInvalidScanType is returned for anything other than IN or OUT
var ErrInvalidScanType = errors.New("scan type must be IN or OUT")

// ParseScanType accepts "in"/"out" in any case
func ParseScanType(s string) (ScanType, error) {
	switch ScanType(strings.ToUpper(strings.TrimSpace(s))) {
	case ScanIn:
		return ScanIn, nil
	case ScanOut:
		return ScanOut, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidScanType, s)
}

// Valid reports whether t is exactly one of IN or OUT
func (t ScanType) Valid() bool {
	return t == ScanIn || t == ScanOut
}

// User is the profile returned by sign-in
type User struct {
	ID          int64   `json:"id"`
	Email       string  `json:"email"`
	Name        string  `json:"name"`
	PhoneNumber string  `json:"phoneNumber"`
	DateOfBirth string  `json:"dateOfBirth"`
	Roles       RoleSet `json:"roles"`
	GroupID     *int64  `json:"groupId,omitempty"`
	GroupName   string  `json:"groupName"`
	AccessToken string  `json:"accessToken"`
}

// Session is the authenticated identity carried across screens
type Session struct {
	Authenticated bool
	User          User
}

// Role returns the primary role of the session user
func (s Session) Role() Role {
	return s.User.Roles.Primary()
}

// AccessToken returns the token or "" for anonymous sessions
func (s Session) AccessToken() string {
	if !s.Authenticated {
		return ""
	}
	return s.User.AccessToken
}

// ScheduleItem is one lesson occurrence
type ScheduleItem struct {
	ID          int64     `json:"id"`
	Subject     string    `json:"subject"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	GroupID     int64     `json:"groupId"`
	TeacherID   int64     `json:"teacherId"`
	TeacherName string    `json:"teacherName"`
	GroupName   string    `json:"groupName"`
}

// TimeRange formats the lesson as "08:00–08:50" in local time
func (s ScheduleItem) TimeRange() string {
	return fmt.Sprintf("%s–%s", s.StartTime.Local().Format("15:04"), s.EndTime.Local().Format("15:04"))
}

// QrTicket is the short-lived code a teacher displays
type QrTicket struct {
	Code            string // payload as returned by the backend
	Image           string // displayable data URI
	IssuedAt        time.Time
	ValidForSeconds int
}

// ScanEvent is a student-submitted attendance record
type ScanEvent struct {
	UserID     int64    `json:"userId"`
	ScheduleID int64    `json:"scheduleId"`
	ScanType   ScanType `json:"scanType"`
	Latitude   float64  `json:"latitude"`
	Longitude  float64  `json:"longitude"`
}

// Location is a device geolocation fix
type Location struct {
	Latitude  float64
	Longitude float64
	TakenAt   time.Time
}

// StudentAttendance is one row of the per-schedule statistics
type StudentAttendance struct {
	UserID    int64      `json:"userId"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	EntryTime *time.Time `json:"entryTime,omitempty"`
	ExitTime  *time.Time `json:"exitTime,omitempty"`
	Duration  string     `json:"duration,omitempty"`
}

// AttendanceStats is the server-computed aggregate for a schedule
type AttendanceStats struct {
	ScheduleID   int64               `json:"scheduleId"`
	Subject      string              `json:"subject"`
	TotalCount   int                 `json:"totalCount"`
	PresentCount int                 `json:"presentCount"`
	Statistic    float64             `json:"statistic"`
	Message      string              `json:"message"`
	Students     []StudentAttendance `json:"students,omitempty"`
}

// AttendedPercent is presentCount/totalCount for display; 0 when empty
func (s AttendanceStats) AttendedPercent() float64 {
	if s.TotalCount <= 0 {
		return 0
	}
	return float64(s.PresentCount) / float64(s.TotalCount) * 100
}

// Subject taught by a teacher
type Subject struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Group of students
type Group struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// JournalEntry is one assessment row of the teacher journal
type JournalEntry struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"userId"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Assessment string    `json:"assessment"`
	DateCreate time.Time `json:"dateCreate"`
}

// CreateScheduleRequest is the teacher's new lesson payload
type CreateScheduleRequest struct {
	SubjectID  int64     `json:"subjectId"`
	StartTime  time.Time `json:"startTime"`
	EndTime    time.Time `json:"endTime"`
	GroupID    int64     `json:"groupId"`
	LecturerID int64     `json:"lecturerId"`
}

// ScanRequest is the scanner webhook body: one decoded camera frame for a chat
type ScanRequest struct {
	ChatID  int64  `json:"chat_id"`
	Payload string `json:"payload"`
}

// LocationRequest is the location webhook body
type LocationRequest struct {
	ChatID    int64   `json:"chat_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the coordinates are on the globe
func (r LocationRequest) Valid() bool {
	return r.Latitude >= -90 && r.Latitude <= 90 && r.Longitude >= -180 && r.Longitude <= 180
}
