package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"smart-todos/internal/service"
	"smart-todos/internal/session"
	"smart-todos/internal/view"
)

type conversationStage int

const (
	stageNone conversationStage = iota
	stageTitle
	stageDescription
	stagePriority
	stageDue
)

type conversationState struct {
	stage conversationStage
	input service.TodoInput
}

var errNotLinked = errors.New("chat is not linked to an account")

// Bot serves linked Telegram chats. Each chat drives its own session.
type Bot struct {
	api           *tgbotapi.BotAPI
	auth          *service.AuthService
	backend       *session.LocalBackend
	reminders     *service.ReminderService
	now           func() time.Time
	sessions      map[int64]*session.Session
	conversations map[int64]*conversationState
	confirmations map[int64]uint
	mu            sync.Mutex
}

func New(token string, authSvc *service.AuthService, backend *session.LocalBackend, reminders *service.ReminderService) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return NewWithAPI(api, authSvc, backend, reminders), nil
}

// NewWithAPI builds a bot around an already authorized client.
func NewWithAPI(api *tgbotapi.BotAPI, authSvc *service.AuthService, backend *session.LocalBackend, reminders *service.ReminderService) *Bot {
	log.Printf("[info] bot authorized on account %s", api.Self.UserName)

	return &Bot{
		api:           api,
		auth:          authSvc,
		backend:       backend,
		reminders:     reminders,
		now:           time.Now,
		sessions:      make(map[int64]*session.Session),
		conversations: make(map[int64]*conversationState),
		confirmations: make(map[int64]uint),
	}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	log.Println("[info] start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				log.Printf("handle callback: %v", err)
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				log.Printf("handle message: %v", err)
			}
		}
	}

	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}
	chatID := msg.Chat.ID

	if !msg.IsCommand() && isCancelDialogInput(msg.Text) {
		b.clearConversation(chatID)
		b.clearConfirmation(chatID)
		return b.sendText(chatID, "⏪ Input cancelled.")
	}

	if msg.IsCommand() {
		log.Printf("[info] command from %d: /%s", chatID, msg.Command())
		return b.handleCommand(ctx, msg)
	}

	if id, ok := b.getConfirmation(chatID); ok {
		return b.handleConfirmationResponse(ctx, msg, id)
	}

	if b.hasConversation(chatID) {
		return b.handleConversation(ctx, msg)
	}

	if handled, err := b.handleMenuAlias(ctx, msg); handled {
		return err
	}

	return b.sendText(chatID, "I did not get that. Try /newtask to add a todo or /help for the command list.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	chatID := msg.Chat.ID
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.handleHelp(chatID)
	case "link":
		return b.handleLink(ctx, msg)
	case "unlink":
		return b.handleUnlink(ctx, chatID)
	case "cancel":
		b.clearConversation(chatID)
		b.clearConfirmation(chatID)
		return b.sendText(chatID, "⏪ Input cancelled.")
	}

	s, err := b.sessionFor(ctx, chatID)
	if err != nil {
		return b.replyNotLinked(chatID, err)
	}

	switch msg.Command() {
	case "tasks":
		return b.handleListTasks(ctx, chatID, s, args)
	case "search":
		s.SetSearch(args)
		return b.sendTaskList(chatID, s)
	case "newtask":
		b.setConversation(chatID, &conversationState{stage: stageTitle})
		return b.sendWithReplyMarkup(chatID, "🆕 New todo.\n<b>Step 1:</b> what is the title?", cancelKeyboard())
	case "done":
		return b.withTaskID(chatID, args, "/done 12", func(id uint) error {
			_, err := s.ToggleComplete(ctx, id)
			return b.afterChange(chatID, s, err)
		})
	case "star":
		return b.withTaskID(chatID, args, "/star 12", func(id uint) error {
			_, err := s.ToggleStarred(ctx, id)
			return b.afterChange(chatID, s, err)
		})
	case "archive":
		return b.withTaskID(chatID, args, "/archive 12", func(id uint) error {
			_, err := s.Archive(ctx, id)
			return b.afterChange(chatID, s, err)
		})
	case "delete":
		return b.withTaskID(chatID, args, "/delete 12", func(id uint) error {
			return b.askDeleteConfirmation(chatID, s, id)
		})
	case "report":
		return b.handleReport(ctx, chatID, s)
	default:
		return b.sendText(chatID, "Unknown command. See /help.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "there"
	}

	text := fmt.Sprintf("👋 Hi, %s!\n<b>I keep your Smart Todos at hand.</b>\n\n", escape(name))
	if _, err := b.sessionFor(ctx, msg.Chat.ID); err != nil {
		text += "Link your account first: /link &lt;email&gt; &lt;password&gt;\n\n"
	}
	text += "See /help for everything I can do."
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleHelp(chatID int64) error {
	text := "ℹ️ <b>Commands</b>\n" +
		"• /link &lt;email&gt; &lt;password&gt; — connect this chat to your account\n" +
		"• /unlink — disconnect this chat\n" +
		"• /tasks [all|active|completed|archived|overdue] — show todos\n" +
		"• /search &lt;text&gt; — filter the list, empty to reset\n" +
		"• /newtask — add a todo step by step\n" +
		"• /done &lt;id&gt; — toggle completion\n" +
		"• /star &lt;id&gt; — toggle the star\n" +
		"• /archive &lt;id&gt; — archive a todo\n" +
		"• /delete &lt;id&gt; — delete a todo\n" +
		"• /report — overdue and due-soon digest\n" +
		"• /cancel — stop the current input"
	return b.sendText(chatID, text)
}

func (b *Bot) handleLink(ctx context.Context, msg *tgbotapi.Message) error {
	chatID := msg.Chat.ID
	// The message carries a password.
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, msg.MessageID)); err != nil {
		log.Printf("delete link message: %v", err)
	}

	fields := strings.Fields(msg.CommandArguments())
	email, password := "", ""
	if len(fields) == 2 {
		email, password = fields[0], fields[1]
	}

	s, err := session.New(b.backend, b.now)
	if err != nil {
		return err
	}
	if err := s.Login(ctx, email, password); err != nil {
		if st := s.Snapshot(b.now()); st.Error != "" && len(st.Toasts) == 0 {
			return b.sendText(chatID, "⚠️ "+escape(st.Error)+"\nUsage: /link &lt;email&gt; &lt;password&gt;")
		}
		return b.deliverToasts(chatID, s)
	}

	user := s.Snapshot(b.now()).User
	if err := b.auth.LinkChat(ctx, user, chatID); err != nil {
		return b.sendText(chatID, fmt.Sprintf("Could not link this chat: %s", escape(service.PublicMessage(err))))
	}

	b.mu.Lock()
	b.sessions[chatID] = s
	b.mu.Unlock()

	log.Printf("[info] chat %d linked to user=%d", chatID, user.ID)
	if err := b.deliverToasts(chatID, s); err != nil {
		return err
	}
	return b.sendTaskList(chatID, s)
}

func (b *Bot) handleUnlink(ctx context.Context, chatID int64) error {
	if err := b.auth.UnlinkChat(ctx, chatID); err != nil {
		return b.sendText(chatID, fmt.Sprintf("Could not unlink this chat: %s", escape(service.PublicMessage(err))))
	}
	b.mu.Lock()
	if s, ok := b.sessions[chatID]; ok {
		s.Logout()
		delete(b.sessions, chatID)
	}
	delete(b.conversations, chatID)
	delete(b.confirmations, chatID)
	b.mu.Unlock()

	log.Printf("[info] chat %d unlinked", chatID)
	return b.sendText(chatID, "🔌 This chat is no longer linked.")
}

func (b *Bot) handleListTasks(ctx context.Context, chatID int64, s *session.Session, args string) error {
	var tab view.Filter
	if args != "" {
		f, err := view.ParseFilter(strings.ToLower(args))
		if err != nil {
			return b.sendText(chatID, "Unknown tab. Use all, active, completed, archived or overdue.")
		}
		tab = f
	}
	if err := s.Fetch(ctx); err != nil {
		b.dropIfSignedOut(chatID, s)
		return b.deliverToasts(chatID, s)
	}
	if tab != "" {
		s.SetFilter(tab)
	}
	return b.sendTaskList(chatID, s)
}

func (b *Bot) handleReport(ctx context.Context, chatID int64, s *session.Session) error {
	st := s.Snapshot(b.now())
	if !st.SignedIn() {
		return b.replyNotLinked(chatID, errNotLinked)
	}
	text, err := b.reminders.OverdueDigest(ctx, *st.User, b.now())
	if err != nil {
		return b.sendText(chatID, fmt.Sprintf("Could not build the digest: %s", escape(service.PublicMessage(err))))
	}
	if text == "" {
		text = "Nothing overdue or due soon. 🎉"
	}
	return b.sendText(chatID, text)
}

func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message) error {
	chatID := msg.Chat.ID
	state := b.getConversation(chatID)
	if state == nil {
		return nil
	}

	text := strings.TrimSpace(msg.Text)
	switch state.stage {
	case stageTitle:
		if text == "" {
			return b.sendWithReplyMarkup(chatID, "The title cannot be empty.", cancelKeyboard())
		}
		state.input.Title = text
		state.stage = stageDescription
		return b.sendWithReplyMarkup(chatID, "✏️ Add a short description (or skip).", skipKeyboard())
	case stageDescription:
		if !isSkipInput(text) {
			state.input.Description = text
		}
		state.stage = stagePriority
		return b.sendWithReplyMarkup(chatID, "🚦 Pick a priority (medium when skipped).", priorityKeyboard())
	case stagePriority:
		if !isSkipInput(text) {
			p, ok := parsePriority(text)
			if !ok {
				return b.sendWithReplyMarkup(chatID, "Pick one of low, medium, high or urgent.", priorityKeyboard())
			}
			state.input.Priority = p
		}
		state.stage = stageDue
		return b.sendWithReplyMarkup(chatID, "⏰ Due date as <code>2025-11-30</code> or <code>2025-11-30T18:00</code> (or skip).", skipKeyboard())
	case stageDue:
		if !isSkipInput(text) {
			due, ok := parseDueInput(text)
			if !ok {
				return b.sendWithReplyMarkup(chatID, "I cannot read that date. Use <code>2025-11-30</code> or skip.", skipKeyboard())
			}
			state.input.DueDate = &due
		}
		b.clearConversation(chatID)
		return b.finishTaskCreation(ctx, chatID, state.input)
	default:
		b.clearConversation(chatID)
		return b.sendText(chatID, "Input reset. Start again with /newtask.")
	}
}

func (b *Bot) finishTaskCreation(ctx context.Context, chatID int64, input service.TodoInput) error {
	s, err := b.sessionFor(ctx, chatID)
	if err != nil {
		return b.replyNotLinked(chatID, err)
	}
	task, err := s.Create(ctx, input)
	if err != nil {
		return b.afterChange(chatID, s, err)
	}
	log.Printf("[info] todo created id=%d chat=%d", task.ID, chatID)
	return b.afterChange(chatID, s, nil)
}

func (b *Bot) askDeleteConfirmation(chatID int64, s *session.Session, id uint) error {
	for _, task := range s.Snapshot(b.now()).Visible {
		if task.ID == id {
			b.setConfirmation(chatID, id)
			return b.sendWithReplyMarkup(chatID, fmt.Sprintf("Delete \"%s\" (#%d)?", escape(shortTitle(task.Title, 60)), id), confirmKeyboard())
		}
	}
	b.setConfirmation(chatID, id)
	return b.sendWithReplyMarkup(chatID, fmt.Sprintf("Delete todo #%d?", id), confirmKeyboard())
}

func (b *Bot) handleConfirmationResponse(ctx context.Context, msg *tgbotapi.Message, id uint) error {
	chatID := msg.Chat.ID
	switch {
	case isConfirmInput(msg.Text):
		b.clearConfirmation(chatID)
		s, err := b.sessionFor(ctx, chatID)
		if err != nil {
			return b.replyNotLinked(chatID, err)
		}
		err = s.Delete(ctx, id)
		if err == nil {
			log.Printf("[info] todo deleted id=%d chat=%d", id, chatID)
		}
		return b.afterChange(chatID, s, err)
	case isCancelInput(msg.Text):
		b.clearConfirmation(chatID)
		return b.sendText(chatID, "Kept it.")
	default:
		return b.sendWithReplyMarkup(chatID, "Confirm or cancel the deletion.", confirmKeyboard())
	}
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	chatID := msg.Chat.ID
	switch strings.TrimSpace(msg.Text) {
	case menuHelp:
		return true, b.handleHelp(chatID)
	case menuNewTask, menuTasks, menuOverdue:
	default:
		return false, nil
	}

	s, err := b.sessionFor(ctx, chatID)
	if err != nil {
		return true, b.replyNotLinked(chatID, err)
	}
	switch strings.TrimSpace(msg.Text) {
	case menuNewTask:
		b.setConversation(chatID, &conversationState{stage: stageTitle})
		return true, b.sendWithReplyMarkup(chatID, "🆕 New todo.\n<b>Step 1:</b> what is the title?", cancelKeyboard())
	case menuOverdue:
		return true, b.handleListTasks(ctx, chatID, s, string(view.FilterOverdue))
	default:
		return true, b.handleListTasks(ctx, chatID, s, "")
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil {
		return nil
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		log.Printf("callback ack: %v", err)
	}

	chatID := cb.Message.Chat.ID
	s, err := b.sessionFor(ctx, chatID)
	if err != nil {
		return b.replyNotLinked(chatID, err)
	}

	switch {
	case strings.HasPrefix(cb.Data, cbFilterPrefix):
		f, err := view.ParseFilter(strings.TrimPrefix(cb.Data, cbFilterPrefix))
		if err != nil {
			return nil
		}
		s.SetFilter(f)
		return b.editTaskList(chatID, cb.Message.MessageID, s)
	case strings.HasPrefix(cb.Data, cbTogglePrefix):
		id, err := parseTaskID(strings.TrimPrefix(cb.Data, cbTogglePrefix))
		if err != nil {
			return nil
		}
		log.Printf("[info] callback toggle chat=%d todo=%d", chatID, id)
		if _, err := s.ToggleComplete(ctx, id); err != nil {
			b.dropIfSignedOut(chatID, s)
			return b.deliverToasts(chatID, s)
		}
		return b.editTaskList(chatID, cb.Message.MessageID, s)
	default:
		return nil
	}
}

// SendOverdueDigests sends a digest to every linked chat that has something
// overdue or due soon.
func (b *Bot) SendOverdueDigests(ctx context.Context) error {
	users, err := b.auth.LinkedUsers(ctx)
	if err != nil {
		return err
	}
	now := b.now()
	for _, user := range users {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if user.TelegramChatID == nil {
			continue
		}
		text, err := b.reminders.OverdueDigest(ctx, user, now)
		if err != nil {
			log.Printf("build digest for user %d: %v", user.ID, err)
			continue
		}
		if text == "" {
			continue
		}
		if err := b.sendText(*user.TelegramChatID, text); err != nil {
			log.Printf("send digest to %d: %v", *user.TelegramChatID, err)
		}
	}
	return nil
}

// SweepSessions expires toasts and errors and forgets signed-out sessions.
func (b *Bot) SweepSessions(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	swept := 0
	for chatID, s := range b.sessions {
		swept += s.Sweep(now)
		if !s.Snapshot(now).SignedIn() {
			delete(b.sessions, chatID)
		}
	}
	return swept
}

// sessionFor returns the chat's session. The first use resumes it from the
// linked account; a cached session whose token no longer authenticates is
// renewed with a fresh token for the same account.
func (b *Bot) sessionFor(ctx context.Context, chatID int64) (*session.Session, error) {
	b.mu.Lock()
	cached, ok := b.sessions[chatID]
	b.mu.Unlock()
	if ok {
		if _, err := b.auth.Authenticate(ctx, cached.Token()); err == nil {
			return cached, nil
		}
	}

	user, err := b.auth.UserByChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, service.ErrUnauthorized) {
			if ok {
				b.forget(chatID, cached)
			}
			return nil, errNotLinked
		}
		return nil, err
	}
	creds, err := b.backend.IssueFor(user)
	if err != nil {
		return nil, err
	}

	if ok {
		if err := cached.Renew(ctx, creds.Token); err != nil {
			b.forget(chatID, cached)
			return nil, fmt.Errorf("renew session: %w", err)
		}
		log.Printf("[info] renewed session for chat %d", chatID)
		return cached, nil
	}

	s, err := session.New(b.backend, b.now)
	if err != nil {
		return nil, err
	}
	if err := s.Resume(ctx, creds.Token); err != nil {
		return nil, fmt.Errorf("resume session: %w", err)
	}

	b.mu.Lock()
	if existing, ok := b.sessions[chatID]; ok {
		s = existing
	} else {
		b.sessions[chatID] = s
	}
	b.mu.Unlock()
	return s, nil
}

func (b *Bot) forget(chatID int64, s *session.Session) {
	b.mu.Lock()
	if b.sessions[chatID] == s {
		delete(b.sessions, chatID)
	}
	b.mu.Unlock()
}

func (b *Bot) dropIfSignedOut(chatID int64, s *session.Session) {
	if !s.Snapshot(b.now()).SignedIn() {
		b.forget(chatID, s)
	}
}

// afterChange reports the outcome of a mutating session call and shows the
// refreshed list when it succeeded.
func (b *Bot) afterChange(chatID int64, s *session.Session, err error) error {
	if err != nil {
		b.dropIfSignedOut(chatID, s)
		return b.deliverToasts(chatID, s)
	}
	if err := b.deliverToasts(chatID, s); err != nil {
		return err
	}
	return b.sendTaskList(chatID, s)
}

func (b *Bot) deliverToasts(chatID int64, s *session.Session) error {
	for _, n := range s.DrainToasts(b.now()) {
		if err := b.sendText(chatID, noticeText(n)); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) replyNotLinked(chatID int64, err error) error {
	if errors.Is(err, errNotLinked) {
		return b.sendText(chatID, "This chat is not linked yet. Use /link &lt;email&gt; &lt;password&gt;.")
	}
	log.Printf("open session for chat %d: %v", chatID, err)
	return b.sendText(chatID, "⚠️ Could not reach your todos right now. Try again later.")
}

func (b *Bot) withTaskID(chatID int64, args, example string, fn func(uint) error) error {
	if args == "" {
		return b.sendText(chatID, "Give the todo id: "+example)
	}
	id, err := parseTaskID(args)
	if err != nil {
		return b.sendText(chatID, "The todo id must be a positive number.")
	}
	return fn(id)
}

func (b *Bot) sendTaskList(chatID int64, s *session.Session) error {
	now := b.now()
	text, markup := renderTaskList(s.Snapshot(now), now)
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) editTaskList(chatID int64, messageID int, s *session.Session) error {
	now := b.now()
	text, markup := renderTaskList(s.Snapshot(now), now)
	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, markup)
	edit.ParseMode = tgbotapi.ModeHTML
	_, err := b.api.Send(edit)
	return err
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) getConfirmation(chatID int64) (uint, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.confirmations[chatID]
	return id, ok
}

func (b *Bot) setConfirmation(chatID int64, id uint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.confirmations[chatID] = id
}

func (b *Bot) clearConfirmation(chatID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.confirmations, chatID)
}

func (b *Bot) setConversation(chatID int64, state *conversationState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conversations[chatID] = state
}

func (b *Bot) getConversation(chatID int64) *conversationState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conversations[chatID]
}

func (b *Bot) hasConversation(chatID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.conversations[chatID]
	return ok
}

func (b *Bot) clearConversation(chatID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conversations, chatID)
}
