package bot

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"
	"unicode"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"taskhub/internal/apperr"
	"taskhub/internal/model"
)

const (
	btnSkip         = "⏭️ Skip"
	btnCancelDialog = "⏪ Cancel input"

	menuLabelNewTask = "➕ New task"
	menuLabelTasks   = "📋 Tasks"
	menuLabelInvites = "✉️ Invites"
	menuLabelHelp    = "ℹ️ Help"

	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04"
)

// recurrenceSpec is the parsed form of "weekly", "daily 3" or
// "monthly until 2026-12-31".
type recurrenceSpec struct {
	Type      model.RecurrenceType
	Count     *int
	ExpiresAt *time.Time
}

func parseRecurrence(raw string, loc *time.Location) (recurrenceSpec, error) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(raw)))
	if len(fields) == 0 {
		return recurrenceSpec{}, fmt.Errorf("empty recurrence")
	}
	spec := recurrenceSpec{Type: model.RecurrenceType(strings.ToUpper(fields[0]))}
	if !spec.Type.IsValid() {
		return recurrenceSpec{}, fmt.Errorf("unknown recurrence %q, use daily, weekly, monthly or parent", fields[0])
	}
	switch {
	case len(fields) == 1:
	case len(fields) == 2:
		n, err := strconv.Atoi(strings.TrimPrefix(fields[1], "x"))
		if err != nil || n < 0 {
			return recurrenceSpec{}, fmt.Errorf("occurrence count must be a non-negative number")
		}
		spec.Count = &n
	case len(fields) == 3 && fields[1] == "until":
		until, err := parseDeadline(fields[2], loc)
		if err != nil {
			return recurrenceSpec{}, err
		}
		spec.ExpiresAt = &until
	default:
		return recurrenceSpec{}, fmt.Errorf("expected e.g. \"weekly\", \"daily 3\" or \"monthly until 2026-12-31\"")
	}
	return spec, nil
}

func parseDeadline(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.ParseInLocation(dateTimeLayout, raw, loc); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(dateLayout, raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("date must look like 2026-03-01 or 2026-03-01 18:00")
	}
	// A bare date is due at the end of that day.
	return t.Add(24*time.Hour - time.Minute), nil
}

// splitArgs returns exactly n leading fields and the remainder. ok is false
// when fewer than n fields are present.
func splitArgs(raw string, n int) (head []string, rest string, ok bool) {
	rest = strings.TrimSpace(raw)
	for i := 0; i < n; i++ {
		if rest == "" {
			return nil, "", false
		}
		idx := strings.IndexFunc(rest, unicode.IsSpace)
		if idx < 0 {
			head = append(head, rest)
			rest = ""
			continue
		}
		head = append(head, rest[:idx])
		rest = strings.TrimSpace(rest[idx:])
	}
	return head, rest, true
}

func parseOnOff(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "on", "yes", "true", "public", "1":
		return true, nil
	case "off", "no", "false", "private", "0":
		return false, nil
	default:
		return false, fmt.Errorf("expected on or off")
	}
}

// callback data is "<action>:<task id>[:<extra>]".
func encodeCallback(action, taskID string, extra ...string) string {
	return strings.Join(append([]string{action, taskID}, extra...), ":")
}

func decodeCallback(data string) (action, taskID, extra string, ok bool) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", false
	}
	if len(parts) == 3 {
		extra = parts[2]
	}
	return parts[0], parts[1], extra, true
}

// errorText renders a core error for the chat. Internal details never reach
// the user.
func errorText(err error) string {
	icon := "⚠️"
	switch apperr.KindOf(err) {
	case apperr.KindForbidden, apperr.KindUnauthorized:
		icon = "⛔"
	case apperr.KindNotFound:
		icon = "🔍"
	case apperr.KindConflict:
		icon = "↔️"
	case apperr.KindInternal:
		return "💥 Something went wrong, please try again later."
	}
	return fmt.Sprintf("%s %s", icon, escape(capitalize(apperr.Message(err))))
}

func formatTaskDetails(task model.Task, now time.Time) string {
	var b strings.Builder
	status := "open"
	if task.IsDone() {
		status = "done"
	}
	b.WriteString(fmt.Sprintf("<b>%s</b>\n", escape(capitalize(task.Title))))
	b.WriteString(fmt.Sprintf("🆔 <code>%s</code>\n", task.ID))
	b.WriteString(fmt.Sprintf("📌 Status: %s", status))
	if task.IsPublic {
		b.WriteString(" · 🌐 public")
	}
	b.WriteByte('\n')
	if task.HasParent() {
		b.WriteString(fmt.Sprintf("⤴️ Parent: <code>%s</code>\n", *task.ParentTaskID))
	}
	if task.Deadline != nil {
		b.WriteString(fmt.Sprintf("⏰ Due: %s\n", task.Deadline.In(now.Location()).Format(dateTimeLayout)))
	}
	if task.RecurrenceType != nil {
		b.WriteString(fmt.Sprintf("♻️ Repeats: %s", strings.ToLower(string(*task.RecurrenceType))))
		switch {
		case task.RecurrenceExpiresAt != nil:
			b.WriteString(fmt.Sprintf(" until %s", task.RecurrenceExpiresAt.In(now.Location()).Format(dateLayout)))
		case task.Recurrences != nil:
			b.WriteString(fmt.Sprintf(", %d left", *task.Recurrences))
		}
		b.WriteByte('\n')
	}
	if task.CompletedAt != nil {
		b.WriteString(fmt.Sprintf("✅ Completed: %s\n", task.CompletedAt.In(now.Location()).Format(dateTimeLayout)))
	}
	if task.Description != "" {
		b.WriteString(fmt.Sprintf("📝 %s\n", escape(task.Description)))
	}
	return strings.TrimSpace(b.String())
}

func formatMembers(members []model.Member) string {
	if len(members) == 0 {
		return "— no collaborators"
	}
	var b strings.Builder
	for _, m := range members {
		icon := "👀"
		if m.Role == model.RoleAssignee {
			icon = "🛠"
		}
		b.WriteString(fmt.Sprintf("%s <code>%s</code> %s\n", icon, m.UserID, m.Role))
	}
	return strings.TrimSpace(b.String())
}

func shortTitle(title string, maxLen int) string {
	clean := strings.TrimSpace(strings.ReplaceAll(title, "\n", " "))
	clean = capitalize(clean)
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

func capitalize(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	runes := []rune(value)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func escape(s string) string {
	return html.EscapeString(s)
}

func isSkipInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == "-" || value == strings.ToLower(btnSkip) || value == "skip"
}

func isCancelDialogInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancelDialog) || value == "cancel"
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelNewTask),
			tgbotapi.NewKeyboardButton(menuLabelTasks),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelInvites),
			tgbotapi.NewKeyboardButton(menuLabelHelp),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

func cancelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func skipKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSkip),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func recurrenceKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("daily"),
			tgbotapi.NewKeyboardButton("weekly"),
			tgbotapi.NewKeyboardButton("monthly"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSkip),
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}
