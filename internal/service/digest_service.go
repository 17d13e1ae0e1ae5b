package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"taskhub/internal/model"
)

// Digest is the periodic summary for one user.
type Digest struct {
	Invitations  []model.InvitationView
	OpenTasks    []model.Task
	Applications []model.Application
}

// Empty reports whether there is nothing worth sending.
func (d Digest) Empty() bool {
	return len(d.Invitations) == 0 && len(d.OpenTasks) == 0 && len(d.Applications) == 0
}

// DigestService builds human-readable summaries for periodic notifications.
type DigestService struct {
	core
}

func NewDigestService(tx Transactor, opts Options) *DigestService {
	return &DigestService{core: newCore(tx, opts)}
}

// Recipients returns the users that can receive a digest over Telegram.
func (s *DigestService) Recipients(ctx context.Context) ([]model.User, error) {
	var out []model.User
	err := s.tx.InTx(ctx, func(st Stores) error {
		users, err := st.Users.ListAll(ctx)
		if err != nil {
			return storeErr("digest recipients", err)
		}
		for _, u := range users {
			if u.TelegramID != nil {
				out = append(out, u)
			}
		}
		return nil
	})
	return out, err
}

// Collect gathers the digest content for user.
func (s *DigestService) Collect(ctx context.Context, user model.User) (Digest, error) {
	const op = "collect digest"
	var d Digest
	err := s.tx.InTx(ctx, func(st Stores) error {
		var err error
		if d.Invitations, err = st.Relations.ListInvitationsForUser(ctx, user.ID); err != nil {
			return storeErr(op, err)
		}
		if d.OpenTasks, err = st.Tasks.ListOpenByCreator(ctx, user.ID); err != nil {
			return storeErr(op, err)
		}
		if d.Applications, err = st.Relations.ListApplicationsForOwner(ctx, user.ID); err != nil {
			return storeErr(op, err)
		}
		return nil
	})
	return d, err
}

// Summary renders user's digest as Telegram HTML. ok is false when the
// digest is empty.
func (s *DigestService) Summary(ctx context.Context, user model.User) (text string, ok bool, err error) {
	d, err := s.Collect(ctx, user)
	if err != nil || d.Empty() {
		return "", false, err
	}
	return RenderDigest(d, s.now()), true, nil
}

// RenderDigest formats d relative to now.
func RenderDigest(d Digest, now time.Time) string {
	var b strings.Builder
	b.WriteString("📋 <b>Digest</b>\n")
	b.WriteString(fmt.Sprintf("🗓 %s\n", now.Format("2006-01-02")))

	if len(d.Invitations) > 0 {
		b.WriteString("\n✉️ <b>Invitations</b>\n")
		for _, inv := range d.Invitations {
			b.WriteString(fmt.Sprintf("• %s <code>%s</code>\n", html.EscapeString(inv.TaskTitle), inv.TaskID))
		}
	}

	if len(d.Applications) > 0 {
		b.WriteString("\n🙋 <b>Applications waiting</b>\n")
		for _, app := range d.Applications {
			b.WriteString(fmt.Sprintf("• task <code>%s</code> from user <code>%s</code>\n", app.TaskID, app.UserID))
		}
	}

	b.WriteString("\n🔥 <b>Open tasks</b>\n")
	if len(d.OpenTasks) == 0 {
		b.WriteString("— nothing open\n")
	} else {
		for _, task := range d.OpenTasks {
			b.WriteString(FormatTaskLine(task, now))
		}
	}
	return strings.TrimSpace(b.String())
}

// FormatTaskLine renders one task with a deadline hint.
func FormatTaskLine(task model.Task, now time.Time) string {
	var sb strings.Builder

	icon := "🟢"
	switch {
	case task.IsDone():
		icon = "✅"
	case task.Deadline != nil && now.After(*task.Deadline):
		icon = "⚠️"
	case task.Deadline != nil && task.Deadline.Sub(now) <= 48*time.Hour:
		icon = "⏳"
	}
	sb.WriteString(fmt.Sprintf("%s %s <code>%s</code>", icon, html.EscapeString(strings.TrimSpace(task.Title)), task.ID))
	if task.RecurrenceType != nil {
		sb.WriteString(fmt.Sprintf(" ♻️ %s", strings.ToLower(string(*task.RecurrenceType))))
	}

	if task.Deadline != nil && !task.IsDone() {
		d := task.Deadline.In(now.Location())
		if now.After(d) {
			sb.WriteString(fmt.Sprintf("\n   ⏰ due %s, <b>overdue</b>", d.Format("2006-01-02")))
		} else {
			daysLeft := int(d.Sub(now).Hours()/24) + 1
			sb.WriteString(fmt.Sprintf("\n   ⏰ due %s, ≈%d d left", d.Format("2006-01-02"), daysLeft))
		}
	}

	if task.Description != "" {
		sb.WriteString(fmt.Sprintf("\n   📝 %s", html.EscapeString(strings.TrimSpace(task.Description))))
	}

	sb.WriteByte('\n')
	return sb.String()
}
