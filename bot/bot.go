// Package bot is the Telegram front end: each chat acts as one client device
package bot

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"qr-attendance-bot/internal/models"
	"qr-attendance-bot/internal/repository"
	"qr-attendance-bot/internal/services"
)

// Sender is the part of tgbotapi.BotAPI the bot needs
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Backend is the remote attendance API
type Backend interface {
	repository.AuthAPI
	repository.TicketAPI
	repository.ScanAPI
	repository.ScheduleAPI
}

// Options tunes the per-chat flows
type Options struct {
	QRWindow       int
	ScanDebounce   time.Duration
	FeedbackDelay  time.Duration
	LocationMaxAge time.Duration
	// NewTicker overrides the QR countdown ticker
	NewTicker func(time.Duration) services.Ticker
}

// Bot routes Telegram updates and webhook input to per-chat state
type Bot struct {
	api       Sender
	store     repository.KVStore
	backend   Backend
	schedules *services.ScheduleService
	opts      Options

	mu    sync.Mutex
	chats map[int64]*chatState

	queueMu sync.Mutex
	queues  map[int64]*chatQueue
}

// chatQueue holds the updates of one chat that are waiting for its worker
type chatQueue struct {
	pending []tgbotapi.Update
	running bool
}

// chatState is everything one device owns: a session, at most one
// QR refresh loop and at most one scan flow.
type chatState struct {
	id       int64
	session  *services.SessionManager
	location *chatLocation

	mu   sync.Mutex
	loop *services.RefreshLoop
	flow *services.ScanFlow
}

// New creates the bot; store keeps each chat's session under "chat:<id>:"
func New(api Sender, store repository.KVStore, backend Backend, opts Options) *Bot {
	if opts.LocationMaxAge <= 0 {
		opts.LocationMaxAge = 2 * time.Minute
	}
	return &Bot{
		api:       api,
		store:     store,
		backend:   backend,
		schedules: services.NewScheduleService(backend),
		opts:      opts,
		chats:     make(map[int64]*chatState),
		queues:    make(map[int64]*chatQueue),
	}
}

// NewTelegramAPI connects to Telegram
func NewTelegramAPI(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	api.Debug = false
	log.Printf("Authorized on account %s", api.Self.UserName)
	return api, nil
}

// StartPolling consumes updates until ctx is done
func (b *Bot) StartPolling(ctx context.Context, api *tgbotapi.BotAPI) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)

	go func() {
		<-ctx.Done()
		api.StopReceivingUpdates()
	}()

	go b.Run(ctx, updates)
}

// Run handles updates until the channel closes or ctx is done. Each chat
// gets its own worker, so updates of one chat keep their order and a slow
// chat never holds up another.
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) {
	var workers sync.WaitGroup
	defer workers.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.enqueue(ctx, &workers, update)
		}
	}
}

func (b *Bot) enqueue(ctx context.Context, workers *sync.WaitGroup, update tgbotapi.Update) {
	chatID, ok := updateChatID(update)
	if !ok {
		return
	}

	b.queueMu.Lock()
	q := b.queues[chatID]
	if q == nil {
		q = &chatQueue{}
		b.queues[chatID] = q
	}
	q.pending = append(q.pending, update)
	if q.running {
		b.queueMu.Unlock()
		return
	}
	q.running = true
	b.queueMu.Unlock()

	workers.Add(1)
	go func() {
		defer workers.Done()
		b.drain(ctx, chatID, q)
	}()
}

// drain handles q in order and exits once it is empty
func (b *Bot) drain(ctx context.Context, chatID int64, q *chatQueue) {
	for {
		b.queueMu.Lock()
		if len(q.pending) == 0 || ctx.Err() != nil {
			delete(b.queues, chatID)
			b.queueMu.Unlock()
			return
		}
		update := q.pending[0]
		q.pending = q.pending[1:]
		b.queueMu.Unlock()

		b.HandleUpdate(ctx, update)
	}
}

func updateChatID(update tgbotapi.Update) (int64, bool) {
	switch {
	case update.CallbackQuery != nil:
		if m := update.CallbackQuery.Message; m != nil && m.Chat != nil {
			return m.Chat.ID, true
		}
	case update.Message != nil && update.Message.Chat != nil:
		return update.Message.Chat.ID, true
	}
	return 0, false
}

// HandleUpdate dispatches one Telegram update
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.Chat != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	chat := b.chat(ctx, message.Chat.ID)

	if message.Location != nil {
		chat.location.Update(message.Location.Latitude, message.Location.Longitude)
		b.reply(chat.id, "📍 Location saved. It will be attached to your next scan.")
		return
	}

	if !message.IsCommand() {
		// plain text while scanning is a decoded payload typed by hand
		if flow := chat.scanFlow(); flow != nil {
			flow.HandleDecode(message.Text)
			return
		}
		b.reply(chat.id, "Unknown input. Use /start")
		return
	}

	args := strings.Fields(message.CommandArguments())
	var text string
	switch message.Command() {
	case "start", "help":
		text = b.cmdStart(chat)
	case "login":
		text = b.cmdLogin(ctx, chat, message, args)
	case "logout":
		text = b.cmdLogout(ctx, chat)
	case "me":
		text = b.cmdMe(chat)
	case "schedule":
		text = b.cmdSchedule(ctx, chat)
	case "qr":
		text = b.cmdQR(ctx, chat, args)
	case "stats":
		text = b.cmdStats(ctx, chat, args)
	case "scan":
		text = b.cmdScan(chat)
	case "close":
		text = b.cmdClose(chat)
	case "subjects":
		text = b.cmdSubjects(ctx, chat)
	case "groups":
		text = b.cmdGroups(ctx, chat)
	case "journal":
		text = b.cmdJournal(ctx, chat, args)
	case "newschedule":
		text = b.cmdNewSchedule(ctx, chat, args)
	default:
		text = "Unknown command. Use /start"
	}

	if text != "" {
		b.reply(chat.id, text)
	}
}

func (b *Bot) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	answer := "OK"
	defer func() {
		if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, answer)); err != nil {
			log.Printf("Callback answer error: %v", err)
		}
	}()

	if query.Message == nil || query.Message.Chat == nil {
		return
	}
	chat := b.chat(ctx, query.Message.Chat.ID)

	scope, action, _ := strings.Cut(query.Data, ":")
	switch scope {
	case "qr":
		answer = b.handleQRAction(chat, action)
	case "scan":
		answer = b.handleScanAction(ctx, chat, action)
	default:
		answer = "Unknown action"
	}
}

func (b *Bot) handleQRAction(chat *chatState, action string) string {
	loop := chat.refreshLoop()
	if loop == nil {
		return "This QR screen is closed"
	}

	var ok bool
	switch action {
	case "pause":
		ok = loop.Pause()
	case "resume":
		ok = loop.Resume()
	case "retry":
		ok = loop.Retry()
	case "close":
		chat.closeLoop()
		b.reply(chat.id, "⏹ QR screen closed")
		return "Closed"
	default:
		return "Unknown action"
	}
	if !ok {
		return "Not available right now"
	}
	return "OK"
}

func (b *Bot) handleScanAction(ctx context.Context, chat *chatState, action string) string {
	flow := chat.scanFlow()
	if flow == nil {
		return "This scan screen is closed"
	}

	if action == "cancel" {
		if err := flow.Cancel(); err != nil {
			return err.Error()
		}
		return "Cancelled"
	}

	scanType, err := models.ParseScanType(action)
	if err != nil {
		return "Unknown action"
	}
	switch flow.Snapshot().State {
	case services.ScanSubmitting:
		return services.ErrSubmissionInFlight.Error()
	case services.ScanPendingConfirmation:
	default:
		return services.ErrNoPendingScan.Error()
	}

	// the submission can take seconds; its outcome is shown by the scan view
	go func() {
		if err := flow.Confirm(ctx, scanType); err != nil {
			log.Printf("⚠️  [Chat %d] %s scan not recorded: %v", chat.id, scanType, err)
		}
	}()
	return "Recording..."
}

// chat returns the state of chatID, restoring a persisted session on first use
func (b *Bot) chat(ctx context.Context, chatID int64) *chatState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if chat, ok := b.chats[chatID]; ok {
		return chat
	}

	store := repository.Namespace(b.store, fmt.Sprintf("chat:%d", chatID))
	chat := &chatState{
		id:       chatID,
		session:  services.NewSessionManager(store, b.backend),
		location: newChatLocation(b.opts.LocationMaxAge),
	}
	if err := chat.session.Restore(ctx); err != nil {
		log.Printf("⚠️  [Chat %d] %v", chatID, err)
	}
	chat.session.OnInvalidate(func() {
		// listeners may run inside a flow, so screens are closed elsewhere
		go b.onSessionExpired(chat)
	})

	b.chats[chatID] = chat
	return chat
}

func (b *Bot) onSessionExpired(chat *chatState) {
	chat.closeScreens()
	b.reply(chat.id, "🔒 Your session has expired. Please sign in again:\n/login <email> <password>")
}

// HandleScan feeds a decoded camera payload to the chat's scan flow
func (b *Bot) HandleScan(ctx context.Context, chatID int64, payload string) (bool, error) {
	flow := b.chat(ctx, chatID).scanFlow()
	if flow == nil {
		return false, services.ErrNotScanning
	}
	return flow.HandleDecode(payload), nil
}

// UpdateLocation grants location permission for the chat and stores a fresh fix
func (b *Bot) UpdateLocation(ctx context.Context, chatID int64, lat, lon float64) error {
	b.chat(ctx, chatID).location.Update(lat, lon)
	return nil
}

// Shutdown closes every open screen
func (b *Bot) Shutdown() {
	b.mu.Lock()
	chats := make([]*chatState, 0, len(b.chats))
	for _, chat := range b.chats {
		chats = append(chats, chat)
	}
	b.mu.Unlock()

	for _, chat := range chats {
		chat.closeScreens()
	}
}

func (c *chatState) refreshLoop() *services.RefreshLoop {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loop
}

func (c *chatState) scanFlow() *services.ScanFlow {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flow
}

// replaceLoop installs loop, closing the previous one
func (c *chatState) replaceLoop(loop *services.RefreshLoop) {
	c.mu.Lock()
	old := c.loop
	c.loop = loop
	c.mu.Unlock()
	if old != nil {
		old.Close()
	}
}

// replaceFlow installs flow, closing the previous one
func (c *chatState) replaceFlow(flow *services.ScanFlow) {
	c.mu.Lock()
	old := c.flow
	c.flow = flow
	c.mu.Unlock()
	if old != nil {
		old.Close()
	}
}

func (c *chatState) closeLoop() { c.replaceLoop(nil) }

func (c *chatState) closeFlow() { c.replaceFlow(nil) }

func (c *chatState) closeScreens() {
	c.closeLoop()
	c.closeFlow()
}

// chatLocation is the LocationProvider of one chat. Sharing a location
// grants the permission; fixes older than maxAge are refused.
type chatLocation struct {
	maxAge time.Duration
	now    func() time.Time

	mu      sync.Mutex
	granted bool
	fix     models.Location
}

func newChatLocation(maxAge time.Duration) *chatLocation {
	return &chatLocation{maxAge: maxAge, now: time.Now}
}

func (l *chatLocation) Update(lat, lon float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.granted = true
	l.fix = models.Location{Latitude: lat, Longitude: lon, TakenAt: l.now()}
}

func (l *chatLocation) LocationGranted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.granted
}

func (l *chatLocation) CurrentLocation(ctx context.Context) (models.Location, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.granted {
		return models.Location{}, services.ErrLocationDenied
	}
	if age := l.now().Sub(l.fix.TakenAt); age > l.maxAge {
		return models.Location{}, fmt.Errorf("last location is %s old, share your location again", age.Round(time.Second))
	}
	return l.fix, nil
}

var _ services.LocationProvider = (*chatLocation)(nil)
