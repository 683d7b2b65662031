package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"qr-attendance-bot/internal/models"
	"qr-attendance-bot/internal/repository"
)

// ScheduleService wraps the schedule, statistics and journal endpoints
type ScheduleService struct {
	api repository.ScheduleAPI
}

// NewScheduleService creates a new schedule service
func NewScheduleService(api repository.ScheduleAPI) *ScheduleService {
	return &ScheduleService{api: api}
}

// ForSession returns the lessons relevant to the session user:
// the group schedule for students, the lecturer schedule for teachers.
func (s *ScheduleService) ForSession(ctx context.Context, session SessionReader) ([]models.ScheduleItem, error) {
	current, ok := session.Current()
	if !ok {
		return nil, ErrNoSession
	}
	token, err := session.Token()
	if err != nil {
		return nil, err
	}

	var items []models.ScheduleItem
	switch current.Role() {
	case models.RoleTeacher:
		items, err = s.api.ScheduleByLecturer(ctx, token, current.User.ID)
	default:
		if current.User.GroupID == nil {
			return nil, errors.New("your account is not assigned to a group")
		}
		items, err = s.api.ScheduleByGroup(ctx, token, *current.User.GroupID)
	}
	if err != nil {
		return nil, invalidateOn401(ctx, session, err)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].StartTime.Before(items[j].StartTime)
	})
	return items, nil
}

// Stats returns attendance statistics of one schedule (teachers only)
func (s *ScheduleService) Stats(ctx context.Context, session SessionReader, scheduleID int64) (*models.AttendanceStats, error) {
	token, err := teacherToken(session)
	if err != nil {
		return nil, err
	}
	stats, err := s.api.ScheduleStats(ctx, token, scheduleID)
	if err != nil {
		return nil, invalidateOn401(ctx, session, err)
	}
	return stats, nil
}

// Subjects lists the teacher's subjects
func (s *ScheduleService) Subjects(ctx context.Context, session SessionReader) ([]models.Subject, error) {
	token, err := teacherToken(session)
	if err != nil {
		return nil, err
	}
	subjects, err := s.api.Subjects(ctx, token)
	if err != nil {
		return nil, invalidateOn401(ctx, session, err)
	}
	return subjects, nil
}

// Groups lists the groups a teacher can schedule
func (s *ScheduleService) Groups(ctx context.Context, session SessionReader) ([]models.Group, error) {
	token, err := teacherToken(session)
	if err != nil {
		return nil, err
	}
	groups, err := s.api.Groups(ctx, token)
	if err != nil {
		return nil, invalidateOn401(ctx, session, err)
	}
	return groups, nil
}

// CreateSchedule validates and creates a lesson for the session teacher
func (s *ScheduleService) CreateSchedule(ctx context.Context, session SessionReader, subjectID, groupID int64, start, end time.Time) (string, error) {
	token, err := teacherToken(session)
	if err != nil {
		return "", err
	}
	if subjectID <= 0 || groupID <= 0 || start.IsZero() || end.IsZero() {
		return "", ErrMissingFields
	}
	if !end.After(start) {
		return "", errors.New("end time must be after start time")
	}

	current, _ := session.Current()
	req := models.CreateScheduleRequest{
		SubjectID:  subjectID,
		GroupID:    groupID,
		LecturerID: current.User.ID,
		StartTime:  start,
		EndTime:    end,
	}
	msg, err := s.api.CreateSchedule(ctx, token, req)
	if err != nil {
		return "", invalidateOn401(ctx, session, err)
	}
	if msg == "" {
		msg = "Schedule created"
	}
	return msg, nil
}

// Journal returns the raw assessment rows for a group and subject
func (s *ScheduleService) Journal(ctx context.Context, session SessionReader, groupID, subjectID int64) ([]models.JournalEntry, error) {
	token, err := teacherToken(session)
	if err != nil {
		return nil, err
	}
	entries, err := s.api.Journal(ctx, token, groupID, subjectID)
	if err != nil {
		return nil, invalidateOn401(ctx, session, err)
	}
	return entries, nil
}

// JournalMatrix is the students x dates view of a journal
type JournalMatrix struct {
	Dates    []string
	Students []JournalRow
}

// JournalRow holds one student's marks, aligned with JournalMatrix.Dates
type JournalRow struct {
	UserID int64
	Name   string
	Marks  []string
}

const journalDateLayout = "02.01.2006"

// BuildJournalMatrix groups entries by student and day; missing cells are "-"
func BuildJournalMatrix(entries []models.JournalEntry) JournalMatrix {
	days := make(map[string]time.Time)
	rows := make(map[int64]*JournalRow)
	marks := make(map[int64]map[string]string)

	for _, e := range entries {
		day := e.DateCreate.Local().Format(journalDateLayout)
		if _, ok := days[day]; !ok {
			days[day] = e.DateCreate.Local()
		}
		if _, ok := rows[e.UserID]; !ok {
			name := e.Name
			if name == "" {
				name = e.Email
			}
			rows[e.UserID] = &JournalRow{UserID: e.UserID, Name: name}
			marks[e.UserID] = make(map[string]string)
		}
		marks[e.UserID][day] = e.Assessment
	}

	m := JournalMatrix{Dates: make([]string, 0, len(days))}
	for day := range days {
		m.Dates = append(m.Dates, day)
	}
	sort.Slice(m.Dates, func(i, j int) bool {
		return days[m.Dates[i]].Before(days[m.Dates[j]])
	})

	for id, row := range rows {
		row.Marks = make([]string, len(m.Dates))
		for i, day := range m.Dates {
			mark, ok := marks[id][day]
			if !ok || mark == "" {
				mark = "-"
			}
			row.Marks[i] = mark
		}
		m.Students = append(m.Students, *row)
	}
	sort.Slice(m.Students, func(i, j int) bool {
		if m.Students[i].Name != m.Students[j].Name {
			return m.Students[i].Name < m.Students[j].Name
		}
		return m.Students[i].UserID < m.Students[j].UserID
	})
	return m
}

func teacherToken(session SessionReader) (string, error) {
	current, ok := session.Current()
	if !ok {
		return "", ErrNoSession
	}
	if current.Role() != models.RoleTeacher {
		return "", ErrWrongRole
	}
	return session.Token()
}

func invalidateOn401(ctx context.Context, session SessionReader, err error) error {
	if errors.Is(err, repository.ErrUnauthorized) {
		session.Invalidate(ctx)
		return fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}
	return err
}
