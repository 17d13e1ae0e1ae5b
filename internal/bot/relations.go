package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"taskhub/internal/model"
)

func (b *Bot) handleApply(ctx context.Context, msg *tgbotapi.Message, user *model.User, args string) error {
	if args == "" {
		return usage("apply", "<task id>")
	}
	if err := b.svc.Relations.Apply(ctx, user, args); err != nil {
		return err
	}
	return b.sendText(msg.Chat.ID, "🙋 Application sent. The owner will see it in their digest.")
}

func (b *Bot) handleApplications(ctx context.Context, msg *tgbotapi.Message, user *model.User, args string) error {
	if args == "" {
		return usage("applications", "<task id>")
	}
	apps, err := b.svc.Relations.ListApplications(ctx, user, args)
	if err != nil {
		return err
	}
	if len(apps) == 0 {
		return b.sendText(msg.Chat.ID, "🙋 No pending applications.")
	}
	var sb strings.Builder
	sb.WriteString("🙋 <b>Applications</b>\n")
	for _, app := range apps {
		sb.WriteString(fmt.Sprintf("• <code>%s</code> since %s\n", app.UserID, app.CreatedAt.In(b.now().Location()).Format(dateLayout)))
	}
	sb.WriteString(fmt.Sprintf("\nAccept with <code>/acceptapp %s &lt;user&gt;</code>.", args))
	return b.sendText(msg.Chat.ID, sb.String())
}

func (b *Bot) handleAcceptApplication(ctx context.Context, msg *tgbotapi.Message, user *model.User, args string) error {
	head, _, ok := splitArgs(args, 2)
	if !ok {
		return usage("acceptapp", "<task id> <user id>")
	}
	if err := b.svc.Relations.AcceptApplication(ctx, user, head[0], head[1]); err != nil {
		return err
	}
	return b.sendText(msg.Chat.ID, "👀 Application accepted, the user now follows the task as a viewer.")
}

func (b *Bot) handleRejectApplication(ctx context.Context, msg *tgbotapi.Message, user *model.User, args string) error {
	head, _, ok := splitArgs(args, 2)
	if !ok {
		return usage("rejectapp", "<task id> <user id>")
	}
	if err := b.svc.Relations.RejectApplication(ctx, user, head[0], head[1]); err != nil {
		return err
	}
	return b.sendText(msg.Chat.ID, "🚫 Application rejected.")
}

func (b *Bot) handleInvite(ctx context.Context, msg *tgbotapi.Message, user *model.User, args string) error {
	head, _, ok := splitArgs(args, 2)
	if !ok {
		return usage("invite", "<task id> <email>")
	}
	if _, err := b.svc.Relations.Invite(ctx, user, head[0], head[1]); err != nil {
		return err
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("✉️ Invitation sent to %s.", escape(strings.ToLower(head[1]))))
}

func (b *Bot) handleInvites(ctx context.Context, msg *tgbotapi.Message, user *model.User, _ string) error {
	invites, err := b.svc.Relations.ListInvitations(ctx, user)
	if err != nil {
		return err
	}
	if len(invites) == 0 {
		return b.sendText(msg.Chat.ID, "✉️ No invitations.")
	}
	var sb strings.Builder
	var rows [][]tgbotapi.InlineKeyboardButton
	sb.WriteString("✉️ <b>Invitations</b>\n")
	for _, inv := range invites {
		sb.WriteString(fmt.Sprintf("• %s <code>%s</code>\n", escape(capitalize(inv.TaskTitle)), inv.TaskID))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ "+shortTitle(inv.TaskTitle, 24), encodeCallback(cbJoin, inv.TaskID)),
			tgbotapi.NewInlineKeyboardButtonData("✖️ Decline", encodeCallback(cbDecline, inv.TaskID)),
		))
	}
	return b.sendWithReplyMarkup(msg.Chat.ID, strings.TrimSpace(sb.String()), tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) handleJoin(ctx context.Context, msg *tgbotapi.Message, user *model.User, args string) error {
	if args == "" {
		return usage("join", "<task id>")
	}
	return b.joinTask(ctx, msg.Chat.ID, user, args)
}

func (b *Bot) joinTask(ctx context.Context, chatID int64, user *model.User, taskID string) error {
	if err := b.svc.Relations.AcceptInvitation(ctx, user, taskID); err != nil {
		return err
	}
	return b.sendText(chatID, fmt.Sprintf("🤝 You joined <code>%s</code>.", taskID))
}

func (b *Bot) handleDecline(ctx context.Context, msg *tgbotapi.Message, user *model.User, args string) error {
	if args == "" {
		return usage("decline", "<task id>")
	}
	return b.declineTask(ctx, msg.Chat.ID, user, args)
}

func (b *Bot) declineTask(ctx context.Context, chatID int64, user *model.User, taskID string) error {
	if err := b.svc.Relations.RejectInvitation(ctx, user, taskID); err != nil {
		return err
	}
	return b.sendText(chatID, "✖️ Invitation declined.")
}

func (b *Bot) handleAssign(ctx context.Context, msg *tgbotapi.Message, user *model.User, args string) error {
	head, rest, ok := splitArgs(args, 2)
	if !ok || rest == "" {
		return usage("assign", "<task id> <user id> assignee|viewer")
	}
	role, err := model.ParseRelationRole(rest)
	if err != nil {
		return usage("assign", "<task id> <user id> assignee|viewer")
	}
	if err := b.svc.Relations.Assign(ctx, user, head[0], head[1], role); err != nil {
		return err
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("👥 <code>%s</code> added as %s.", head[1], role))
}

func (b *Bot) handleUnlink(ctx context.Context, msg *tgbotapi.Message, user *model.User, args string) error {
	head, _, ok := splitArgs(args, 2)
	if !ok {
		return usage("unlink", "<task id> <user id>")
	}
	if err := b.svc.Relations.Unlink(ctx, user, head[0], head[1]); err != nil {
		return err
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("👋 <code>%s</code> removed from the task.", head[1]))
}

func (b *Bot) handleMembers(ctx context.Context, msg *tgbotapi.Message, user *model.User, args string) error {
	if args == "" {
		return usage("members", "<task id>")
	}
	members, err := b.svc.Relations.Members(ctx, user, args)
	if err != nil {
		return err
	}
	return b.sendText(msg.Chat.ID, "👥 <b>Collaborators</b>\n"+formatMembers(members))
}

func (b *Bot) handleEmail(ctx context.Context, msg *tgbotapi.Message, user *model.User, args string) error {
	if args == "" {
		return usage("email", "<address>")
	}
	if err := b.svc.Users.UpdateEmail(ctx, user, user.ID, args); err != nil {
		return err
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("📧 Email set to %s.", escape(strings.ToLower(args))))
}

func (b *Bot) handleDigest(ctx context.Context, msg *tgbotapi.Message, user *model.User, _ string) error {
	text, ok, err := b.svc.Digests.Summary(ctx, *user)
	if err != nil {
		return err
	}
	if !ok {
		return b.sendText(msg.Chat.ID, "📋 Nothing pending. Enjoy the quiet.")
	}
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleStats(ctx context.Context, msg *tgbotapi.Message, user *model.User, _ string) error {
	stats, err := b.svc.Users.Stats(ctx, user)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("📊 <b>Stats</b>\n🆔 <code>%s</code>\n• completed: %d\n• still done: %d\n• accepted: %d\n• reviews: %d",
		user.ID, stats.TasksCompleted, stats.CurrentlyDone, stats.TasksAccepted, stats.ReviewsGiven)
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleUser(ctx context.Context, msg *tgbotapi.Message, user *model.User, args string) error {
	if args == "" {
		args = user.ID
	}
	view, err := b.svc.Users.GetUser(ctx, user, args)
	if err != nil {
		return err
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("👤 <b>%s</b>\n🆔 <code>%s</code>\n", escape(view.Profile.Name), view.Profile.ID))
	if view.Profile.Email != "" {
		sb.WriteString(fmt.Sprintf("📧 %s\n", escape(view.Profile.Email)))
	}
	if u := view.User; u != nil {
		sb.WriteString(fmt.Sprintf("🎖 %s\n", strings.ToLower(string(u.Role))))
		if u.Username != "" {
			sb.WriteString(fmt.Sprintf("💬 @%s\n", escape(u.Username)))
		}
		sb.WriteString(fmt.Sprintf("📅 since %s", u.CreatedAt.In(b.now().Location()).Format(dateLayout)))
	}
	return b.sendText(msg.Chat.ID, strings.TrimSpace(sb.String()))
}

func (b *Bot) handleUsers(ctx context.Context, msg *tgbotapi.Message, user *model.User, _ string) error {
	users, err := b.svc.Users.ListUsers(ctx, user)
	if err != nil {
		return err
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("👥 <b>Users</b> (%d)\n", len(users)))
	for _, u := range users {
		sb.WriteString(fmt.Sprintf("• <code>%s</code> %s", u.ID, escape(u.Name)))
		if email := u.EmailAddress(); email != "" {
			sb.WriteString(" · " + escape(email))
		}
		if u.CanManageUsers() {
			sb.WriteString(" · admin")
		}
		sb.WriteByte('\n')
	}
	return b.sendText(msg.Chat.ID, strings.TrimSpace(sb.String()))
}

func (b *Bot) handleDeleteUser(ctx context.Context, msg *tgbotapi.Message, user *model.User, args string) error {
	if args == "" {
		return usage("deluser", "<user id>")
	}
	if err := b.svc.Users.DeleteUser(ctx, user, args); err != nil {
		return err
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🗑 User <code>%s</code> deleted with their tasks.", escape(args)))
}
