package bot

import (
	"errors"
	"fmt"
	"log"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"qr-attendance-bot/internal/models"
	"qr-attendance-bot/internal/services"
)

// send delivers c and logs failures; the message ID is 0 on error
func (b *Bot) send(c tgbotapi.Chattable) int {
	m, err := b.api.Send(c)
	if err != nil {
		log.Printf("Bot send error: %v", err)
		return 0
	}
	return m.MessageID
}

// reply sends a plain text message to chatID
func (b *Bot) reply(chatID int64, text string) int {
	return b.send(tgbotapi.NewMessage(chatID, text))
}

// ticketView renders a RefreshLoop as one photo message whose image and
// caption are edited in place.
type ticketView struct {
	b        *Bot
	chatID   int64
	schedule models.ScheduleItem

	mu        sync.Mutex
	messageID int
	state     services.LoopState
	remaining int
	lastErr   string
	caption   string
}

func newTicketView(b *Bot, chatID int64, schedule models.ScheduleItem, window int) *ticketView {
	return &ticketView{b: b, chatID: chatID, schedule: schedule, state: services.LoopRunning, remaining: window}
}

func (v *ticketView) ShowTicket(ticket models.QrTicket) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lastErr = ""

	data, err := services.TicketImage(ticket)
	if err != nil {
		// codes that are not images are shown as text
		v.b.reply(v.chatID, "🎫 Ticket: "+ticket.Code)
		v.updateCaptionLocked()
		return
	}
	file := tgbotapi.FileBytes{Name: fmt.Sprintf("qr-%d.png", v.schedule.ID), Bytes: data}
	caption := v.captionLocked()
	keyboard := v.keyboardLocked()

	if v.messageID == 0 {
		photo := tgbotapi.NewPhoto(v.chatID, file)
		photo.Caption = caption
		photo.ReplyMarkup = keyboard
		v.messageID = v.b.send(photo)
		v.caption = caption
		return
	}

	media := tgbotapi.NewInputMediaPhoto(file)
	media.Caption = caption
	edit := tgbotapi.EditMessageMediaConfig{
		BaseEdit: tgbotapi.BaseEdit{
			ChatID:      v.chatID,
			MessageID:   v.messageID,
			ReplyMarkup: &keyboard,
		},
		Media: media,
	}
	v.b.send(edit)
	v.caption = caption
}

func (v *ticketView) ShowTicketError(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lastErr = services.UserMessage(err)

	if errors.Is(err, services.ErrSessionExpired) || errors.Is(err, services.ErrNoSession) {
		// the session listener tells the user to sign in
		return
	}
	if v.messageID == 0 {
		msg := tgbotapi.NewMessage(v.chatID, "❌ Could not load the QR code: "+v.lastErr)
		msg.ReplyMarkup = v.keyboardLocked()
		v.b.send(msg)
		return
	}
	v.updateCaptionLocked()
}

func (v *ticketView) ShowCountdown(state services.LoopState, secondsRemaining int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state = state
	v.remaining = secondsRemaining
	if v.messageID != 0 {
		v.updateCaptionLocked()
	}
}

func (v *ticketView) updateCaptionLocked() {
	if v.messageID == 0 {
		return
	}
	caption := v.captionLocked()
	if caption == v.caption {
		return
	}
	edit := tgbotapi.NewEditMessageCaption(v.chatID, v.messageID, caption)
	keyboard := v.keyboardLocked()
	edit.ReplyMarkup = &keyboard
	v.b.send(edit)
	v.caption = caption
}

func (v *ticketView) captionLocked() string {
	title := v.schedule.Subject
	if title == "" {
		title = fmt.Sprintf("Schedule #%d", v.schedule.ID)
	}
	if !v.schedule.StartTime.IsZero() {
		title += " " + v.schedule.TimeRange()
	}

	status := fmt.Sprintf("⏱ New code in %ds", v.remaining)
	if v.state == services.LoopPaused {
		status = "⏸ Paused"
	}
	caption := fmt.Sprintf("📚 %s\n%s", title, status)
	if v.lastErr != "" {
		caption += "\n⚠️ " + v.lastErr
	}
	return caption
}

func (v *ticketView) keyboardLocked() tgbotapi.InlineKeyboardMarkup {
	toggle := tgbotapi.NewInlineKeyboardButtonData("⏸ Pause", "qr:pause")
	if v.state == services.LoopPaused {
		toggle = tgbotapi.NewInlineKeyboardButtonData("▶️ Resume", "qr:resume")
	}
	row := tgbotapi.NewInlineKeyboardRow(toggle, tgbotapi.NewInlineKeyboardButtonData("⏹ Close", "qr:close"))
	if v.lastErr != "" {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("🔄 Retry", "qr:retry"))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

var _ services.TicketView = (*ticketView)(nil)

// scanView renders a ScanFlow as a sequence of chat messages
type scanView struct {
	b      *Bot
	chatID int64

	mu        sync.Mutex
	pendingID int
}

func newScanView(b *Bot, chatID int64) *scanView {
	return &scanView{b: b, chatID: chatID}
}

func (v *scanView) ShowScanning() {
	v.mu.Lock()
	id := v.pendingID
	v.pendingID = 0
	v.mu.Unlock()

	if id != 0 {
		v.b.send(tgbotapi.NewEditMessageText(v.chatID, id, "✖️ Cancelled"))
	}
	v.b.reply(v.chatID, "📷 Ready for the next code")
}

func (v *scanView) ShowPendingConfirmation(scheduleID int64) {
	msg := tgbotapi.NewMessage(v.chatID, fmt.Sprintf("🎯 Lesson #%d detected. Record entry or exit?", scheduleID))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("➡️ IN", "scan:in"),
			tgbotapi.NewInlineKeyboardButtonData("⬅️ OUT", "scan:out"),
		),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("✖️ Cancel", "scan:cancel")),
	)
	id := v.b.send(msg)

	v.mu.Lock()
	v.pendingID = id
	v.mu.Unlock()
}

func (v *scanView) ShowSubmitting(scheduleID int64, scanType models.ScanType) {
	text := fmt.Sprintf("⏳ Recording %s for lesson #%d...", scanType, scheduleID)

	v.mu.Lock()
	id := v.pendingID
	v.pendingID = 0
	v.mu.Unlock()

	if id == 0 {
		v.b.reply(v.chatID, text)
		return
	}
	// editing without markup drops the IN/OUT buttons
	v.b.send(tgbotapi.NewEditMessageText(v.chatID, id, text))
}

func (v *scanView) ShowFeedback(message string, kind services.FeedbackKind) {
	v.mu.Lock()
	id := v.pendingID
	v.pendingID = 0
	v.mu.Unlock()

	prefix := "✅ "
	if kind == services.FeedbackFailure {
		prefix = "❌ "
	}
	if id != 0 {
		v.b.send(tgbotapi.NewEditMessageText(v.chatID, id, prefix+message))
		return
	}
	v.b.reply(v.chatID, prefix+message)
}

func (v *scanView) ShowScanError(err error) {
	v.b.reply(v.chatID, "⚠️ "+err.Error())
}

var _ services.ScanView = (*scanView)(nil)
