// Package repository provides the attendance backend REST client and local stores
package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"qr-attendance-bot/internal/models"
)

// ErrUnauthorized matches any APIError with HTTP 401
var ErrUnauthorized = errors.New("unauthorized")

// APIError is a non-2xx backend response
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
}

// Is lets errors.Is(err, ErrUnauthorized) match 401 responses
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

const (
	pathStudent = "/api/v1/student/"
	pathTeacher = "/api/v1/teacher/"
	pathAuth    = "/api/v1/auth/"
)

// AttendanceRESTClient implements AuthAPI, TicketAPI, ScanAPI and ScheduleAPI
type AttendanceRESTClient struct {
	baseURL     string
	httpClient  *http.Client
	scanTimeout time.Duration
}

// NewAttendanceRESTClient creates the backend client
func NewAttendanceRESTClient(baseURL string, scanTimeout time.Duration) *AttendanceRESTClient {
	if scanTimeout <= 0 {
		scanTimeout = 5 * time.Second
	}
	return &AttendanceRESTClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		scanTimeout: scanTimeout,
	}
}

var (
	_ AuthAPI     = (*AttendanceRESTClient)(nil)
	_ TicketAPI   = (*AttendanceRESTClient)(nil)
	_ ScanAPI     = (*AttendanceRESTClient)(nil)
	_ ScheduleAPI = (*AttendanceRESTClient)(nil)
)

func (c *AttendanceRESTClient) SignIn(ctx context.Context, email, password string) (*models.User, error) {
	payload := map[string]string{"email": email, "password": password}

	var user models.User
	if _, err := c.do(ctx, http.MethodPost, pathAuth+"sign-in", "", payload, &user); err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}
	if user.AccessToken == "" {
		return nil, fmt.Errorf("sign in: response has no access token")
	}
	log.Printf("🔑 Signed in user ID %d (%s)", user.ID, user.Roles.Primary())
	return &user, nil
}

func (c *AttendanceRESTClient) SignOut(ctx context.Context, token string) error {
	path := pathAuth + "logout?token=" + url.QueryEscape(token)
	if _, err := c.do(ctx, http.MethodPost, path, token, nil, nil); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

func (c *AttendanceRESTClient) GenerateTicket(ctx context.Context, token string, scheduleID int64) (string, error) {
	var body struct {
		QRCode string `json:"qrCode"`
	}
	path := fmt.Sprintf("%sqr/generate/%d", pathTeacher, scheduleID)
	if _, err := c.do(ctx, http.MethodPost, path, token, struct{}{}, &body); err != nil {
		return "", fmt.Errorf("generate ticket: %w", err)
	}
	if body.QRCode == "" {
		return "", fmt.Errorf("generate ticket: empty qrCode")
	}
	return body.QRCode, nil
}

func (c *AttendanceRESTClient) SubmitScan(ctx context.Context, token string, event models.ScanEvent) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.scanTimeout)
	defer cancel()

	log.Printf("📷 Submitting %s scan for schedule %d", event.ScanType, event.ScheduleID)
	msg, err := c.do(ctx, http.MethodPost, pathStudent+"attendance/scan", token, event, nil)
	if err != nil {
		return "", fmt.Errorf("submit scan: %w", err)
	}
	return msg, nil
}

func (c *AttendanceRESTClient) ScheduleByGroup(ctx context.Context, token string, groupID int64) ([]models.ScheduleItem, error) {
	return c.schedules(ctx, token, fmt.Sprintf("%sschedule/group/%d", pathStudent, groupID))
}

func (c *AttendanceRESTClient) ScheduleByLecturer(ctx context.Context, token string, teacherID int64) ([]models.ScheduleItem, error) {
	return c.schedules(ctx, token, fmt.Sprintf("%sschedule/lecturer/%d", pathTeacher, teacherID))
}

func (c *AttendanceRESTClient) schedules(ctx context.Context, token, path string) ([]models.ScheduleItem, error) {
	var items []wireScheduleItem
	if _, err := c.do(ctx, http.MethodGet, path, token, nil, &items); err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}

	out := make([]models.ScheduleItem, 0, len(items))
	for _, item := range items {
		s, err := item.toModel()
		if err != nil {
			return nil, fmt.Errorf("get schedule: item %d: %w", item.ID, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func (c *AttendanceRESTClient) ScheduleStats(ctx context.Context, token string, scheduleID int64) (*models.AttendanceStats, error) {
	var body wireStats
	path := fmt.Sprintf("%sschedule/%d", pathTeacher, scheduleID)
	if _, err := c.do(ctx, http.MethodGet, path, token, nil, &body); err != nil {
		return nil, fmt.Errorf("get statistics: %w", err)
	}

	stats := &models.AttendanceStats{
		ScheduleID:   scheduleID,
		Subject:      body.Subject,
		TotalCount:   body.TotalCount,
		PresentCount: body.PresentCount,
		Statistic:    body.Statistic,
		Message:      body.Message,
	}
	for _, st := range body.Students {
		row := models.StudentAttendance{UserID: st.UserID, Name: st.Name, Email: st.Email, Duration: st.Duration}
		if t, err := parseOptionalTime(st.EntryTime); err == nil {
			row.EntryTime = t
		}
		if t, err := parseOptionalTime(st.ExitTime); err == nil {
			row.ExitTime = t
		}
		stats.Students = append(stats.Students, row)
	}
	return stats, nil
}

func (c *AttendanceRESTClient) Subjects(ctx context.Context, token string) ([]models.Subject, error) {
	var subjects []models.Subject
	if _, err := c.do(ctx, http.MethodGet, pathTeacher+"subject", token, nil, &subjects); err != nil {
		return nil, fmt.Errorf("get subjects: %w", err)
	}
	return subjects, nil
}

func (c *AttendanceRESTClient) Groups(ctx context.Context, token string) ([]models.Group, error) {
	var groups []models.Group
	if _, err := c.do(ctx, http.MethodGet, pathTeacher+"group", token, nil, &groups); err != nil {
		return nil, fmt.Errorf("get groups: %w", err)
	}
	return groups, nil
}

func (c *AttendanceRESTClient) CreateSchedule(ctx context.Context, token string, req models.CreateScheduleRequest) (string, error) {
	msg, err := c.do(ctx, http.MethodPost, pathTeacher+"schedule/create", token, req, nil)
	if err != nil {
		return "", fmt.Errorf("create schedule: %w", err)
	}
	return msg, nil
}

func (c *AttendanceRESTClient) Journal(ctx context.Context, token string, groupID, subjectID int64) ([]models.JournalEntry, error) {
	var rows []wireJournalEntry
	path := fmt.Sprintf("%sjournal/%d?subjectId=%d", pathTeacher, groupID, subjectID)
	if _, err := c.do(ctx, http.MethodGet, path, token, nil, &rows); err != nil {
		return nil, fmt.Errorf("get journal: %w", err)
	}

	entries := make([]models.JournalEntry, 0, len(rows))
	for _, r := range rows {
		created, err := parseTime(r.DateCreate)
		if err != nil {
			return nil, fmt.Errorf("get journal: entry %d: %w", r.ID, err)
		}
		entries = append(entries, models.JournalEntry{
			ID:         r.ID,
			UserID:     r.UserID,
			Email:      r.Email,
			Name:       r.Name,
			Assessment: r.Assessment,
			DateCreate: created,
		})
	}
	return entries, nil
}

// do sends a JSON request and decodes the response body into out.
// It returns the envelope message, if any.
func (c *AttendanceRESTClient) do(ctx context.Context, method, path, token string, payload, out interface{}) (string, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Auth-token", token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("❌ HTTP error %s %s: %v", method, stripQuery(path), err)
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("❌ %s %s -> %d", method, stripQuery(path), resp.StatusCode)
		msg, _ := decodeEnvelope(data, nil)
		return "", &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	msg, err := decodeEnvelope(data, out)
	if err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return msg, nil
}

// decodeEnvelope handles both {"body": ..., "message": ...} and bare JSON
func decodeEnvelope(data []byte, out interface{}) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return "", nil
	}

	var fields map[string]json.RawMessage
	if data[0] == '{' && json.Unmarshal(data, &fields) == nil {
		var msg string
		if raw, ok := fields["message"]; ok {
			_ = json.Unmarshal(raw, &msg)
		}
		if raw, ok := fields["body"]; ok {
			if out != nil && !isJSONNull(raw) {
				if err := json.Unmarshal(raw, out); err != nil {
					return msg, err
				}
			}
			return msg, nil
		}
		if out == nil {
			return msg, nil
		}
	}

	if out == nil {
		return "", nil
	}
	return "", json.Unmarshal(data, out)
}

func isJSONNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

func stripQuery(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i]
	}
	return path
}

// Wire types: the backend sends local date-times without a zone.

type wireScheduleItem struct {
	ID          int64  `json:"id"`
	Subject     string `json:"subject"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
	GroupID     int64  `json:"groupId"`
	TeacherID   int64  `json:"teacherId"`
	TeacherName string `json:"teacherName"`
	GroupName   string `json:"groupName"`
}

func (w wireScheduleItem) toModel() (models.ScheduleItem, error) {
	start, err := parseTime(w.StartTime)
	if err != nil {
		return models.ScheduleItem{}, fmt.Errorf("startTime: %w", err)
	}
	end, err := parseTime(w.EndTime)
	if err != nil {
		return models.ScheduleItem{}, fmt.Errorf("endTime: %w", err)
	}
	return models.ScheduleItem{
		ID:          w.ID,
		Subject:     w.Subject,
		StartTime:   start,
		EndTime:     end,
		GroupID:     w.GroupID,
		TeacherID:   w.TeacherID,
		TeacherName: w.TeacherName,
		GroupName:   w.GroupName,
	}, nil
}

type wireStats struct {
	Subject      string  `json:"subject"`
	TotalCount   int     `json:"totalCount"`
	PresentCount int     `json:"presentCount"`
	Statistic    float64 `json:"statistic"`
	Message      string  `json:"message"`
	Students     []struct {
		UserID    int64  `json:"userId"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		EntryTime string `json:"entryTime"`
		ExitTime  string `json:"exitTime"`
		Duration  string `json:"duration"`
	} `json:"students"`
}

type wireJournalEntry struct {
	ID         int64  `json:"id"`
	UserID     int64  `json:"userId"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Assessment string `json:"assessment"`
	DateCreate string `json:"dateCreate"`
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

func parseOptionalTime(s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := parseTime(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
