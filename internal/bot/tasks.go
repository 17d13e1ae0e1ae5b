package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"taskhub/internal/apperr"
	"taskhub/internal/model"
	"taskhub/internal/service"
)

const taskListLimit = 15

func usage(command, args string) error {
	return apperr.Invalid(command, "usage: /%s %s", command, args)
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message, user *model.User, _ string) error {
	name := strings.TrimSpace(user.Name)
	if name == "" {
		name = "there"
	}
	text := fmt.Sprintf(
		"👋 Hi, %s!\n<b>I keep shared task trees: subtasks, collaborators and repeating work.</b>\n\n"+
			"Start with /newtask, set your email with /email so others can invite you, and see /help for everything else.",
		escape(name),
	)
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleHelp(_ context.Context, msg *tgbotapi.Message, _ *model.User, _ string) error {
	text := "ℹ️ <b>Tasks</b>\n" +
		"• /newtask [title] — add a task, step by step without a title\n" +
		"• /subtask &lt;parent id&gt; &lt;title&gt; — add a subtask\n" +
		"• /tasks — your tasks\n" +
		"• /task &lt;id&gt; — details and subtasks\n" +
		"• /done &lt;id&gt;, /reopen &lt;id&gt; — complete or reopen\n" +
		"• /delete &lt;id&gt; — delete with all subtasks\n" +
		"• /clone &lt;id&gt; [parent id] — deep copy\n" +
		"• /public &lt;id&gt; on|off — visibility\n" +
		"• /deadline &lt;id&gt; &lt;YYYY-MM-DD [HH:MM]&gt;|none\n" +
		"• /repeat &lt;id&gt; daily|weekly|monthly|parent [N | until YYYY-MM-DD] or off\n\n" +
		"👥 <b>Sharing</b>\n" +
		"• /apply &lt;id&gt; — ask to join a task\n" +
		"• /applications &lt;id&gt;, /acceptapp &lt;id&gt; &lt;user&gt;, /rejectapp &lt;id&gt; &lt;user&gt;\n" +
		"• /invite &lt;id&gt; &lt;email&gt; — invite by email\n" +
		"• /invites, /join &lt;id&gt;, /decline &lt;id&gt; — your invitations\n" +
		"• /assign &lt;id&gt; &lt;user&gt; assignee|viewer, /unlink &lt;id&gt; &lt;user&gt;\n" +
		"• /members &lt;id&gt; — collaborators\n\n" +
		"👤 <b>Account</b>\n" +
		"• /email &lt;address&gt;, /stats, /digest, /user &lt;id&gt;\n" +
		"• /cancel — stop the current input"
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleCancel(_ context.Context, msg *tgbotapi.Message, _ *model.User, _ string) error {
	b.clearConversation(msg.From.ID)
	return b.sendText(msg.Chat.ID, "⏪ Input cancelled.")
}

func (b *Bot) handleNewTask(ctx context.Context, msg *tgbotapi.Message, user *model.User, args string) error {
	if args != "" {
		return b.finishTaskCreation(ctx, msg.Chat.ID, user, service.TaskInput{Title: args})
	}
	b.log.WithField("telegram_id", msg.From.ID).Debug("start new task conversation")
	b.setConversation(msg.From.ID, &conversationState{stage: stageTitle})
	return b.sendWithReplyMarkup(msg.Chat.ID, "🆕 New task.\n<b>Step 1:</b> what should it be called?", cancelKeyboard())
}

func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message, user *model.User) error {
	state := b.getConversation(msg.From.ID)
	if state == nil {
		return nil
	}

	text := strings.TrimSpace(msg.Text)
	switch state.stage {
	case stageTitle:
		if text == "" {
			return b.sendWithReplyMarkup(msg.Chat.ID, "The title cannot be empty.", cancelKeyboard())
		}
		state.input.Title = text
		state.stage = stageDescription
		return b.sendWithReplyMarkup(msg.Chat.ID, "✏️ Add a short description (or press Skip).", skipKeyboard())
	case stageDescription:
		if !isSkipInput(text) {
			state.input.Description = text
		}
		state.stage = stageDeadline
		return b.sendWithReplyMarkup(msg.Chat.ID, "⏰ Deadline as <code>2026-11-30</code> or <code>2026-11-30 18:00</code> (or Skip).", skipKeyboard())
	case stageDeadline:
		if !isSkipInput(text) {
			deadline, err := parseDeadline(text, b.now().Location())
			if err != nil {
				return b.sendWithReplyMarkup(msg.Chat.ID, escape(capitalize(err.Error()))+".", skipKeyboard())
			}
			state.input.Deadline = &deadline
		}
		state.stage = stageRecurrence
		return b.sendWithReplyMarkup(msg.Chat.ID, "🔁 Repeat it? <code>weekly</code>, <code>daily 3</code>, <code>monthly until 2026-12-31</code> (or Skip).", recurrenceKeyboard())
	case stageRecurrence:
		if !isSkipInput(text) {
			spec, err := parseRecurrence(text, b.now().Location())
			if err != nil {
				return b.sendWithReplyMarkup(msg.Chat.ID, escape(capitalize(err.Error()))+".", recurrenceKeyboard())
			}
			state.input.RecurrenceType = &spec.Type
			state.input.Recurrences = spec.Count
			state.input.RecurrenceExpiresAt = spec.ExpiresAt
		}
		b.clearConversation(msg.From.ID)
		return b.finishTaskCreation(ctx, msg.Chat.ID, user, state.input)
	default:
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "Input reset. Try /newtask again.")
	}
}

func (b *Bot) finishTaskCreation(ctx context.Context, chatID int64, user *model.User, input service.TaskInput) error {
	task, err := b.svc.Tasks.CreateTask(ctx, user, input)
	if err != nil {
		return err
	}
	b.log.WithFields(logrus.Fields{"task_id": task.ID, "user_id": user.ID}).Info("task created via bot")
	return b.sendText(chatID, "✅ <b>Task saved</b>\n"+formatTaskDetails(*task, b.now()))
}

func (b *Bot) handleSubtask(ctx context.Context, msg *tgbotapi.Message, user *model.User, args string) error {
	head, title, ok := splitArgs(args, 1)
	if !ok || title == "" {
		return usage("subtask", "<parent id> <title>")
	}
	parentID := head[0]
	return b.finishTaskCreation(ctx, msg.Chat.ID, user, service.TaskInput{Title: title, ParentID: &parentID})
}

func (b *Bot) handleTasks(ctx context.Context, msg *tgbotapi.Message, user *model.User, _ string) error {
	owned, err := b.svc.Tasks.OwnedTasks(ctx, user)
	if err != nil {
		return err
	}
	assigned, err := b.svc.Tasks.AssignedTasks(ctx, user)
	if err != nil {
		return err
	}
	subscribed, err := b.svc.Tasks.SubscribedTasks(ctx, user)
	if err != nil {
		return err
	}

	now := b.now()
	var sb strings.Builder
	var rows [][]tgbotapi.InlineKeyboardButton

	section := func(title string, tasks []model.Task, buttons bool) {
		sb.WriteString(fmt.Sprintf("\n<b>%s</b>\n", title))
		open := 0
		for _, task := range tasks {
			if task.IsDone() {
				continue
			}
			open++
			if open > taskListLimit {
				continue
			}
			sb.WriteString(service.FormatTaskLine(task, now))
			if buttons {
				rows = append(rows, tgbotapi.NewInlineKeyboardRow(
					tgbotapi.NewInlineKeyboardButtonData("✅ "+shortTitle(task.Title, 28), encodeCallback(cbDone, task.ID)),
				))
			}
		}
		switch {
		case open == 0:
			sb.WriteString("— nothing open\n")
		case open > taskListLimit:
			sb.WriteString(fmt.Sprintf("… and %d more\n", open-taskListLimit))
		}
	}
	section("📌 Mine", owned, true)
	section("🛠 Assigned to me", assigned, true)
	section("👀 Following", subscribed, false)

	text := "📋 <b>Tasks</b>\n" + strings.TrimSpace(sb.String())
	if len(rows) == 0 {
		return b.sendText(msg.Chat.ID, text)
	}
	return b.sendWithReplyMarkup(msg.Chat.ID, text, tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) handleTask(ctx context.Context, msg *tgbotapi.Message, user *model.User, args string) error {
	if args == "" {
		return usage("task", "<task id>")
	}
	view, err := b.svc.Tasks.GetTask(ctx, user, args)
	if err != nil {
		return err
	}
	if !view.Full() {
		text := fmt.Sprintf("🔒 <b>%s</b>\n🆔 <code>%s</code>\nYou cannot see this task. Send <code>/apply %s</code> to ask for access.",
			escape(capitalize(view.Summary.Title)), view.Summary.ID, view.Summary.ID)
		return b.sendText(msg.Chat.ID, text)
	}

	subtasks, err := b.svc.Tasks.Subtasks(ctx, user, args)
	if err != nil {
		return err
	}
	now := b.now()
	var sb strings.Builder
	sb.WriteString(formatTaskDetails(*view.Task, now))
	if len(subtasks) > 0 {
		sb.WriteString("\n\n<b>Subtasks</b>\n")
		for _, sub := range subtasks {
			sb.WriteString(service.FormatTaskLine(sub, now))
		}
	}
	return b.sendText(msg.Chat.ID, strings.TrimSpace(sb.String()))
}

func (b *Bot) handleDone(ctx context.Context, msg *tgbotapi.Message, user *model.User, args string) error {
	if args == "" {
		return usage("done", "<task id>")
	}
	return b.completeTask(ctx, msg.Chat.ID, user, args)
}

func (b *Bot) completeTask(ctx context.Context, chatID int64, user *model.User, taskID string) error {
	completion, err := b.svc.Tasks.MarkCompleted(ctx, user, taskID)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("✅ Done: <b>%s</b>", escape(capitalize(completion.Task.Title)))
	if next := completion.Successor; next != nil {
		text += fmt.Sprintf("\n♻️ Next one: <code>%s</code>", next.ID)
		if next.Deadline != nil {
			text += fmt.Sprintf(" due %s", next.Deadline.In(b.now().Location()).Format(dateTimeLayout))
		}
	}
	return b.sendText(chatID, text)
}

func (b *Bot) handleReopen(ctx context.Context, msg *tgbotapi.Message, user *model.User, args string) error {
	if args == "" {
		return usage("reopen", "<task id>")
	}
	task, err := b.svc.Tasks.Reopen(ctx, user, args)
	if err != nil {
		return err
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🔄 Reopened: <b>%s</b>", escape(capitalize(task.Title))))
}

func (b *Bot) handleDelete(ctx context.Context, msg *tgbotapi.Message, user *model.User, args string) error {
	if args == "" {
		return usage("delete", "<task id>")
	}
	view, err := b.svc.Tasks.GetTask(ctx, user, args)
	if err != nil {
		return err
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🗑 Delete", encodeCallback(cbDelete, view.Summary.ID)),
			tgbotapi.NewInlineKeyboardButtonData("↩️ Keep", encodeCallback(cbKeep, view.Summary.ID)),
		),
	)
	text := fmt.Sprintf("Delete <b>%s</b> and all of its subtasks?", escape(capitalize(view.Summary.Title)))
	return b.sendWithReplyMarkup(msg.Chat.ID, text, markup)
}

func (b *Bot) deleteTask(ctx context.Context, chatID int64, user *model.User, taskID string) error {
	n, err := b.svc.Tasks.DeleteTask(ctx, user, taskID)
	if err != nil {
		return err
	}
	return b.sendText(chatID, fmt.Sprintf("🗑 Deleted %d task(s).", n))
}

func (b *Bot) handleClone(ctx context.Context, msg *tgbotapi.Message, user *model.User, args string) error {
	head, rest, ok := splitArgs(args, 1)
	if !ok {
		return usage("clone", "<task id> [parent id]")
	}
	var parentID *string
	if rest != "" {
		parentID = &rest
	}
	clone, err := b.svc.Tasks.CloneTask(ctx, user, head[0], parentID)
	if err != nil {
		return err
	}
	return b.sendText(msg.Chat.ID, "📑 <b>Copy created</b>\n"+formatTaskDetails(*clone, b.now()))
}

func (b *Bot) handlePublic(ctx context.Context, msg *tgbotapi.Message, user *model.User, args string) error {
	head, rest, ok := splitArgs(args, 1)
	if !ok || rest == "" {
		return usage("public", "<task id> on|off")
	}
	public, err := parseOnOff(rest)
	if err != nil {
		return usage("public", "<task id> on|off")
	}
	task, err := b.svc.Tasks.UpdateTask(ctx, user, head[0], service.TaskPatch{IsPublic: &public})
	if err != nil {
		return err
	}
	state := "private"
	if task.IsPublic {
		state = "public"
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🌐 <b>%s</b> is now %s.", escape(capitalize(task.Title)), state))
}

func (b *Bot) handleDeadline(ctx context.Context, msg *tgbotapi.Message, user *model.User, args string) error {
	head, rest, ok := splitArgs(args, 1)
	if !ok || rest == "" {
		return usage("deadline", "<task id> <YYYY-MM-DD [HH:MM]>|none")
	}
	var patch service.TaskPatch
	if strings.EqualFold(rest, "none") {
		patch.ClearDeadline = true
	} else {
		deadline, err := parseDeadline(rest, b.now().Location())
		if err != nil {
			return apperr.Invalid("deadline", "%s", err.Error())
		}
		patch.Deadline = &deadline
	}
	task, err := b.svc.Tasks.UpdateTask(ctx, user, head[0], patch)
	if err != nil {
		return err
	}
	return b.sendText(msg.Chat.ID, "⏰ <b>Deadline updated</b>\n"+formatTaskDetails(*task, b.now()))
}

func (b *Bot) handleRepeat(ctx context.Context, msg *tgbotapi.Message, user *model.User, args string) error {
	head, rest, ok := splitArgs(args, 1)
	if !ok || rest == "" {
		return usage("repeat", "<task id> daily|weekly|monthly|parent [N | until YYYY-MM-DD] or off")
	}
	var patch service.TaskPatch
	if strings.EqualFold(rest, "off") || strings.EqualFold(rest, "none") {
		patch.ClearRecurrence = true
	} else {
		spec, err := parseRecurrence(rest, b.now().Location())
		if err != nil {
			return apperr.Invalid("repeat", "%s", err.Error())
		}
		patch.RecurrenceType = &spec.Type
		patch.Recurrences = spec.Count
		patch.RecurrenceExpiresAt = spec.ExpiresAt
	}
	task, err := b.svc.Tasks.UpdateTask(ctx, user, head[0], patch)
	if err != nil {
		return err
	}
	return b.sendText(msg.Chat.ID, "♻️ <b>Repetition updated</b>\n"+formatTaskDetails(*task, b.now()))
}
