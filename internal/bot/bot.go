package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"taskhub/internal/apperr"
	"taskhub/internal/config"
	"taskhub/internal/model"
	"taskhub/internal/repository"
	"taskhub/internal/service"
)

type conversationStage int

const (
	stageNone conversationStage = iota
	stageTitle
	stageDescription
	stageDeadline
	stageRecurrence
)

// Callback actions. Data is "<action>:<task id>", which stays under the
// 64 byte Telegram limit for uuid ids.
const (
	cbDone    = "done"
	cbDelete  = "del"
	cbKeep    = "keep"
	cbJoin    = "join"
	cbDecline = "decline"
)

type conversationState struct {
	stage conversationStage
	input service.TaskInput
}

// API is the part of the Telegram client the bot uses. *tgbotapi.BotAPI
// implements it.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Recorder receives bot level outcomes. Implemented by metrics.Collector.
type Recorder interface {
	ObserveCommand(command, result string)
	ObserveDigest(result string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveCommand(string, string) {}
func (nopRecorder) ObserveDigest(string)          {}

// Services groups the core operations exposed over Telegram.
type Services struct {
	Tasks     *service.TaskService
	Relations *service.RelationService
	Users     *service.UserService
	Digests   *service.DigestService
}

// Bot aggregates Telegram API with services.
type Bot struct {
	api     API
	svc     Services
	log     logrus.FieldLogger
	metrics Recorder
	admins  map[int64]bool
	now     func() time.Time

	ratePerSecond rate.Limit
	rateBurst     int

	mu            sync.Mutex
	conversations map[int64]*conversationState
	limiters      map[int64]*rate.Limiter
}

func New(token string, svc Services, cfg config.Config, log logrus.FieldLogger, rec Recorder) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	b, err := newBot(api, svc, cfg, log, rec)
	if err != nil {
		return nil, err
	}
	b.log.WithField("account", api.Self.UserName).Info("bot authorized")
	return b, nil
}

func newBot(api API, svc Services, cfg config.Config, log logrus.FieldLogger, rec Recorder) (*Bot, error) {
	admins, err := cfg.AdminTelegramIDs()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.New()
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	perSecond := cfg.RatePerSecond
	if perSecond <= 0 {
		perSecond = 1
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 5
	}
	return &Bot{
		api:           api,
		svc:           svc,
		log:           log.WithField("component", "bot"),
		metrics:       rec,
		admins:        admins,
		now:           time.Now,
		ratePerSecond: rate.Limit(perSecond),
		rateBurst:     burst,
		conversations: make(map[int64]*conversationState),
		limiters:      make(map[int64]*rate.Limiter),
	}, nil
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.log.Info("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		b.handleUpdate(ctx, update)
	}
	return nil
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
			b.log.WithError(err).Warn("handle callback")
		}
	case update.Message != nil:
		if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
			return
		}
		if err := b.handleMessage(ctx, update.Message); err != nil {
			b.log.WithError(err).Warn("handle message")
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	name := "text"
	if msg.IsCommand() {
		name = msg.Command()
	}
	if !b.allow(msg.From.ID) {
		b.metrics.ObserveCommand(name, "throttled")
		b.log.WithFields(logrus.Fields{"telegram_id": msg.From.ID, "command": name}).Debug("throttled")
		return nil
	}

	if !msg.IsCommand() && isCancelDialogInput(msg.Text) {
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Input cancelled.")
	}

	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		b.metrics.ObserveCommand(name, "error")
		return fmt.Errorf("ensure user: %w", err)
	}

	if !msg.IsCommand() {
		if cmd, ok := menuAliases[strings.TrimSpace(msg.Text)]; ok {
			return b.runCommand(ctx, cmd, msg, user, "")
		}
	}

	if msg.IsCommand() {
		b.log.WithFields(logrus.Fields{"telegram_id": msg.From.ID, "command": name}).Info("command received")
		return b.runCommand(ctx, name, msg, user, strings.TrimSpace(msg.CommandArguments()))
	}

	if b.hasConversation(msg.From.ID) {
		err := b.handleConversation(ctx, msg, user)
		return b.finish("dialog", msg.Chat.ID, err)
	}

	return b.sendText(msg.Chat.ID, "I did not get that. Send /newtask to add a task or /help for the command list.")
}

type commandHandler func(b *Bot, ctx context.Context, msg *tgbotapi.Message, user *model.User, args string) error

var commands map[string]commandHandler

func init() {
	commands = map[string]commandHandler{
		"start":        (*Bot).handleStart,
		"help":         (*Bot).handleHelp,
		"cancel":       (*Bot).handleCancel,
		"email":        (*Bot).handleEmail,
		"newtask":      (*Bot).handleNewTask,
		"subtask":      (*Bot).handleSubtask,
		"tasks":        (*Bot).handleTasks,
		"task":         (*Bot).handleTask,
		"done":         (*Bot).handleDone,
		"reopen":       (*Bot).handleReopen,
		"delete":       (*Bot).handleDelete,
		"clone":        (*Bot).handleClone,
		"public":       (*Bot).handlePublic,
		"deadline":     (*Bot).handleDeadline,
		"repeat":       (*Bot).handleRepeat,
		"apply":        (*Bot).handleApply,
		"applications": (*Bot).handleApplications,
		"acceptapp":    (*Bot).handleAcceptApplication,
		"rejectapp":    (*Bot).handleRejectApplication,
		"invite":       (*Bot).handleInvite,
		"invites":      (*Bot).handleInvites,
		"join":         (*Bot).handleJoin,
		"decline":      (*Bot).handleDecline,
		"assign":       (*Bot).handleAssign,
		"unlink":       (*Bot).handleUnlink,
		"members":      (*Bot).handleMembers,
		"digest":       (*Bot).handleDigest,
		"stats":        (*Bot).handleStats,
		"user":         (*Bot).handleUser,
		"users":        (*Bot).handleUsers,
		"deluser":      (*Bot).handleDeleteUser,
	}
}

var menuAliases = map[string]string{
	menuLabelNewTask: "newtask",
	menuLabelTasks:   "tasks",
	menuLabelInvites: "invites",
	menuLabelHelp:    "help",
}

func (b *Bot) runCommand(ctx context.Context, name string, msg *tgbotapi.Message, user *model.User, args string) error {
	handler, ok := commands[name]
	if !ok {
		b.metrics.ObserveCommand("unknown", "error")
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
	return b.finish(name, msg.Chat.ID, handler(b, ctx, msg, user, args))
}

// finish counts the command and reports a classified failure to the chat.
// Transport failures are returned to the caller.
func (b *Bot) finish(name string, chatID int64, err error) error {
	if err == nil {
		b.metrics.ObserveCommand(name, "ok")
		return nil
	}
	b.metrics.ObserveCommand(name, "error")
	var classified *apperr.Error
	if !errors.As(err, &classified) {
		return err
	}
	if classified.Kind == apperr.KindInternal {
		b.log.WithError(err).WithField("command", name).Error("command failed")
	}
	return b.sendText(chatID, errorText(err))
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil || cb.Message.Chat == nil || !cb.Message.Chat.IsPrivate() {
		return nil
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.WithError(err).Warn("callback ack")
	}

	action, taskID, _, ok := decodeCallback(cb.Data)
	if !ok {
		return nil
	}
	name := "cb_" + action
	if !b.allow(cb.From.ID) {
		b.metrics.ObserveCommand(name, "throttled")
		return nil
	}
	b.log.WithFields(logrus.Fields{"telegram_id": cb.From.ID, "action": action, "task_id": taskID}).Info("callback received")

	user, err := b.ensureUser(ctx, cb.From)
	if err != nil {
		b.metrics.ObserveCommand(name, "error")
		return fmt.Errorf("ensure user: %w", err)
	}

	chatID := cb.Message.Chat.ID
	switch action {
	case cbDone:
		err = b.completeTask(ctx, chatID, user, taskID)
	case cbDelete:
		err = b.deleteTask(ctx, chatID, user, taskID)
	case cbKeep:
		err = b.sendText(chatID, "↩️ Kept.")
	case cbJoin:
		err = b.joinTask(ctx, chatID, user, taskID)
	case cbDecline:
		err = b.declineTask(ctx, chatID, user, taskID)
	default:
		return nil
	}
	return b.finish(name, chatID, err)
}

// SendDigests delivers the periodic summary to every Telegram user that has
// something pending.
func (b *Bot) SendDigests(ctx context.Context) error {
	users, err := b.svc.Digests.Recipients(ctx)
	if err != nil {
		return err
	}

	var errs []error
	var sent int
	for _, user := range users {
		if user.TelegramID == nil {
			continue
		}
		text, ok, err := b.svc.Digests.Summary(ctx, user)
		if err != nil {
			b.metrics.ObserveDigest("failed")
			b.log.WithError(err).WithField("user_id", user.ID).Warn("build digest")
			errs = append(errs, err)
			continue
		}
		if !ok {
			b.metrics.ObserveDigest("skipped")
			continue
		}
		if err := b.sendText(*user.TelegramID, text); err != nil {
			b.metrics.ObserveDigest("failed")
			b.log.WithError(err).WithField("user_id", user.ID).Warn("send digest")
			errs = append(errs, fmt.Errorf("send digest to %s: %w", user.ID, err))
			continue
		}
		b.metrics.ObserveDigest("sent")
		sent++
	}
	b.log.WithFields(logrus.Fields{"recipients": len(users), "sent": sent}).Info("digests delivered")
	return errors.Join(errs...)
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (*model.User, error) {
	return b.svc.Users.Register(ctx, repository.TelegramProfile{
		TelegramID: from.ID,
		Name:       strings.TrimSpace(from.FirstName + " " + from.LastName),
		Username:   from.UserName,
		Admin:      b.admins[from.ID],
	})
}

func (b *Bot) allow(userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	limiter, ok := b.limiters[userID]
	if !ok {
		limiter = rate.NewLimiter(b.ratePerSecond, b.rateBurst)
		b.limiters[userID] = limiter
	}
	return limiter.Allow()
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

func (b *Bot) setConversation(userID int64, state *conversationState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conversations[userID] = state
}

func (b *Bot) getConversation(userID int64) *conversationState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conversations[userID]
}

func (b *Bot) hasConversation(userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.conversations[userID]
	return ok
}

func (b *Bot) clearConversation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conversations, userID)
}
