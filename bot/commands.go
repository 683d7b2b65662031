package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"qr-attendance-bot/internal/models"
	"qr-attendance-bot/internal/services"
)

const helpText = "🎓 QR Attendance\n\n" +
	"Account:\n" +
	"/login <email> <password> - sign in\n" +
	"/logout - sign out\n" +
	"/me - my profile\n" +
	"/schedule - my lessons\n\n" +
	"Students:\n" +
	"/scan - record attendance from a lesson QR code\n\n" +
	"Teachers:\n" +
	"/qr <scheduleId> - show the refreshing QR code\n" +
	"/stats <scheduleId> - attendance statistics\n" +
	"/subjects, /groups - reference lists\n" +
	"/journal <groupId> <subjectId> - assessment journal\n" +
	"/newschedule <subjectId> <groupId> <start> <end> - create a lesson (RFC3339 times)\n\n" +
	"/close - close the open QR or scan screen"

func (b *Bot) cmdStart(chat *chatState) string {
	if session, ok := chat.session.Current(); ok {
		return fmt.Sprintf("%s\n\nSigned in as %s (%s)", helpText, displayName(session.User), session.Role())
	}
	return helpText + "\n\nYou are not signed in."
}

func (b *Bot) cmdLogin(ctx context.Context, chat *chatState, message *tgbotapi.Message, args []string) string {
	// the password should not stay in the chat history
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chat.id, message.MessageID)); err != nil {
		log.Printf("⚠️  [Chat %d] could not delete login message: %v", chat.id, err)
	}

	if len(args) != 2 {
		return "Usage: /login <email> <password>"
	}

	session, err := chat.session.Login(ctx, args[0], args[1])
	if err != nil {
		log.Printf("❌ [Chat %d] login failed: %v", chat.id, err)
		return "❌ Sign-in failed: " + services.UserMessage(err)
	}

	log.Printf("✅ [Chat %d] signed in as user ID %d", chat.id, session.User.ID)
	return fmt.Sprintf("✅ Welcome, %s!\nRole: %s\nUse /schedule to see your lessons.", displayName(session.User), session.Role())
}

func (b *Bot) cmdLogout(ctx context.Context, chat *chatState) string {
	if _, ok := chat.session.Current(); !ok {
		return "You are not signed in."
	}
	chat.closeScreens()
	if err := chat.session.Logout(ctx); err != nil {
		return "❌ Logout failed: " + err.Error()
	}
	return "👋 Signed out."
}

func (b *Bot) cmdMe(chat *chatState) string {
	session, ok := chat.session.Current()
	if !ok {
		return "❌ Not signed in. Use /login"
	}

	u := session.User
	var sb strings.Builder
	fmt.Fprintf(&sb, "👤 %s\n", displayName(u))
	fmt.Fprintf(&sb, "Email: %s\n", u.Email)
	fmt.Fprintf(&sb, "Role: %s\n", session.Role())
	if u.PhoneNumber != "" {
		fmt.Fprintf(&sb, "Phone: %s\n", u.PhoneNumber)
	}
	if u.DateOfBirth != "" {
		fmt.Fprintf(&sb, "Date of birth: %s\n", u.DateOfBirth)
	}
	if u.GroupName != "" {
		fmt.Fprintf(&sb, "Group: %s\n", u.GroupName)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *Bot) cmdSchedule(ctx context.Context, chat *chatState) string {
	items, err := b.schedules.ForSession(ctx, chat.session)
	if err != nil {
		return b.failure(chat, "load schedule", err)
	}
	if len(items) == 0 {
		return "📅 No lessons scheduled."
	}

	session, _ := chat.session.Current()
	teacher := session.Role() == models.RoleTeacher

	var sb strings.Builder
	sb.WriteString("📅 Schedule\n")
	day := ""
	for _, item := range items {
		if d := item.StartTime.Local().Format("Mon 02.01"); d != day {
			day = d
			fmt.Fprintf(&sb, "\n%s\n", day)
		}
		fmt.Fprintf(&sb, "#%d %s %s", item.ID, item.TimeRange(), item.Subject)
		if teacher && item.GroupName != "" {
			fmt.Fprintf(&sb, " (%s)", item.GroupName)
		} else if !teacher && item.TeacherName != "" {
			fmt.Fprintf(&sb, " (%s)", item.TeacherName)
		}
		sb.WriteString("\n")
	}
	if teacher {
		sb.WriteString("\n/qr <id> shows the QR code, /stats <id> the attendance.")
	} else {
		sb.WriteString("\nUse /scan in class to record attendance.")
	}
	return sb.String()
}

func (b *Bot) cmdQR(ctx context.Context, chat *chatState, args []string) string {
	session, ok := chat.session.Current()
	if !ok {
		return "❌ Not signed in. Use /login"
	}
	if session.Role() != models.RoleTeacher {
		return "❌ " + services.ErrWrongRole.Error()
	}
	if len(args) != 1 {
		return "Usage: /qr <scheduleId>"
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return "❌ Schedule ID must be a positive number"
	}

	schedule := models.ScheduleItem{ID: id}
	if items, err := b.schedules.ForSession(ctx, chat.session); err == nil {
		for _, item := range items {
			if item.ID == id {
				schedule = item
				break
			}
		}
	} else if errors.Is(err, services.ErrSessionExpired) {
		return ""
	}

	window := b.opts.QRWindow
	if window < 1 {
		window = 10
	}
	view := newTicketView(b, chat.id, schedule, window)
	loop := services.NewRefreshLoop(schedule, chat.session, b.backend, view, services.RefreshOptions{
		Window:    window,
		NewTicker: b.opts.NewTicker,
	})
	chat.closeFlow()
	chat.replaceLoop(loop)
	loop.Start()
	return ""
}

func (b *Bot) cmdStats(ctx context.Context, chat *chatState, args []string) string {
	if len(args) != 1 {
		return "Usage: /stats <scheduleId>"
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return "❌ Schedule ID must be a number"
	}

	stats, err := b.schedules.Stats(ctx, chat.session, id)
	if err != nil {
		return b.failure(chat, "load statistics", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 Attendance for schedule #%d", id)
	if stats.Subject != "" {
		fmt.Fprintf(&sb, " (%s)", stats.Subject)
	}
	fmt.Fprintf(&sb, "\nPresent: %d of %d (%.0f%%)\n", stats.PresentCount, stats.TotalCount, stats.AttendedPercent())
	if stats.Message != "" {
		fmt.Fprintf(&sb, "%s\n", stats.Message)
	}
	for _, s := range stats.Students {
		in, out := "-", "-"
		if s.EntryTime != nil {
			in = s.EntryTime.Local().Format("15:04")
		}
		if s.ExitTime != nil {
			out = s.ExitTime.Local().Format("15:04")
		}
		fmt.Fprintf(&sb, "• %s  IN %s  OUT %s", s.Name, in, out)
		if s.Duration != "" {
			fmt.Fprintf(&sb, "  (%s)", s.Duration)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *Bot) cmdScan(chat *chatState) string {
	session, ok := chat.session.Current()
	if !ok {
		return "❌ Not signed in. Use /login"
	}
	if session.Role() != models.RoleStudent {
		return "❌ " + services.ErrWrongRole.Error()
	}

	view := newScanView(b, chat.id)
	flow := services.NewScanFlow(chat.session, b.backend, chat.location, view, services.ScanOptions{
		Debounce:      b.opts.ScanDebounce,
		FeedbackDelay: b.opts.FeedbackDelay,
	})
	chat.closeLoop()
	chat.replaceFlow(flow)

	msg := tgbotapi.NewMessage(chat.id, "📷 Scanning. Point the scanner at the lesson QR code or type the code here.\n"+
		"Share your location first: attendance is only recorded with it.")
	msg.ReplyMarkup = tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButtonLocation("📍 Share location")),
	)
	b.send(msg)
	return ""
}

func (b *Bot) cmdClose(chat *chatState) string {
	if chat.refreshLoop() == nil && chat.scanFlow() == nil {
		return "Nothing to close."
	}
	chat.closeScreens()
	msg := tgbotapi.NewMessage(chat.id, "⏹ Screen closed")
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(false)
	b.send(msg)
	return ""
}

func (b *Bot) cmdSubjects(ctx context.Context, chat *chatState) string {
	subjects, err := b.schedules.Subjects(ctx, chat.session)
	if err != nil {
		return b.failure(chat, "load subjects", err)
	}
	if len(subjects) == 0 {
		return "📚 No subjects."
	}
	lines := make([]string, 0, len(subjects)+1)
	lines = append(lines, "📚 Subjects")
	for _, s := range subjects {
		lines = append(lines, fmt.Sprintf("#%d %s", s.ID, s.Name))
	}
	return strings.Join(lines, "\n")
}

func (b *Bot) cmdGroups(ctx context.Context, chat *chatState) string {
	groups, err := b.schedules.Groups(ctx, chat.session)
	if err != nil {
		return b.failure(chat, "load groups", err)
	}
	if len(groups) == 0 {
		return "👥 No groups."
	}
	lines := make([]string, 0, len(groups)+1)
	lines = append(lines, "👥 Groups")
	for _, g := range groups {
		lines = append(lines, fmt.Sprintf("#%d %s", g.ID, g.Name))
	}
	return strings.Join(lines, "\n")
}

func (b *Bot) cmdJournal(ctx context.Context, chat *chatState, args []string) string {
	if len(args) != 2 {
		return "Usage: /journal <groupId> <subjectId>"
	}
	groupID, err1 := strconv.ParseInt(args[0], 10, 64)
	subjectID, err2 := strconv.ParseInt(args[1], 10, 64)
	if err1 != nil || err2 != nil {
		return "❌ Group and subject IDs must be numbers"
	}

	entries, err := b.schedules.Journal(ctx, chat.session, groupID, subjectID)
	if err != nil {
		return b.failure(chat, "load journal", err)
	}

	m := services.BuildJournalMatrix(entries)
	if len(m.Students) == 0 {
		return "📒 The journal is empty."
	}

	var sb strings.Builder
	sb.WriteString("📒 Journal\n")
	fmt.Fprintf(&sb, "Student | %s\n", strings.Join(m.Dates, " | "))
	for _, row := range m.Students {
		fmt.Fprintf(&sb, "%s | %s\n", row.Name, strings.Join(row.Marks, " | "))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *Bot) cmdNewSchedule(ctx context.Context, chat *chatState, args []string) string {
	const usage = "Usage: /newschedule <subjectId> <groupId> <start> <end>\nTimes are RFC3339, e.g. 2024-09-02T08:00:00+05:00"
	if len(args) != 4 {
		return usage
	}
	subjectID, err1 := strconv.ParseInt(args[0], 10, 64)
	groupID, err2 := strconv.ParseInt(args[1], 10, 64)
	start, err3 := time.Parse(time.RFC3339, args[2])
	end, err4 := time.Parse(time.RFC3339, args[3])
	if err := errors.Join(err1, err2, err3, err4); err != nil {
		return "❌ " + usage
	}

	msg, err := b.schedules.CreateSchedule(ctx, chat.session, subjectID, groupID, start, end)
	if err != nil {
		return b.failure(chat, "create schedule", err)
	}
	return "✅ " + msg
}

// failure renders err for the chat; expired sessions are reported by the invalidate listener
func (b *Bot) failure(chat *chatState, action string, err error) string {
	if errors.Is(err, services.ErrSessionExpired) {
		return ""
	}
	log.Printf("❌ [Chat %d] %s: %v", chat.id, action, err)
	if errors.Is(err, services.ErrNoSession) {
		return "❌ Not signed in. Use /login"
	}
	return fmt.Sprintf("❌ Could not %s: %s", action, services.UserMessage(err))
}

func displayName(u models.User) string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}
