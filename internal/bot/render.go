package bot

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"smart-todos/internal/model"
	"smart-todos/internal/service"
	"smart-todos/internal/session"
	"smart-todos/internal/toast"
	"smart-todos/internal/view"
)

const (
	cbFilterPrefix = "filter:"
	cbTogglePrefix = "toggle:"
)

const (
	btnSkip         = "⏭️ Skip"
	btnConfirm      = "✅ Confirm"
	btnCancel       = "↩️ Cancel"
	btnCancelDialog = "⏪ Stop input"
	menuNewTask     = "➕ New task"
	menuTasks       = "📋 Tasks"
	menuOverdue     = "⚠️ Overdue"
	menuHelp        = "ℹ️ Help"

	maxListed = 30
)

var tabOrder = []view.Filter{view.FilterAll, view.FilterActive, view.FilterOverdue, view.FilterCompleted, view.FilterArchived}

var tabLabels = map[view.Filter]string{
	view.FilterAll:       "All",
	view.FilterActive:    "Active",
	view.FilterOverdue:   "Overdue",
	view.FilterCompleted: "Done",
	view.FilterArchived:  "Archived",
}

// renderTaskList builds the list message for a session snapshot: a header for
// the selected tab, one line per visible todo, the filter tabs and a
// completion button per todo.
func renderTaskList(st session.State, now time.Time) (string, tgbotapi.InlineKeyboardMarkup) {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📋 <b>%s</b> (%d)\n", tabLabels[st.Filter], len(st.Visible)))
	if st.Query != "" {
		b.WriteString(fmt.Sprintf("🔎 <i>%s</i>\n", escape(st.Query)))
	}
	b.WriteByte('\n')

	if len(st.Visible) == 0 {
		b.WriteString(emptyListText(st))
	}

	rows := [][]tgbotapi.InlineKeyboardButton{filterRow(st.Counts, st.Filter)}
	for i, task := range st.Visible {
		if i == maxListed {
			b.WriteString(fmt.Sprintf("… and %d more\n", len(st.Visible)-maxListed))
			break
		}
		b.WriteString(service.FormatTaskLine(task, now))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(toggleLabel(task), fmt.Sprintf("%s%d", cbTogglePrefix, task.ID)),
		))
	}

	return strings.TrimSpace(b.String()), tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func emptyListText(st session.State) string {
	switch {
	case st.Query != "":
		return "Nothing matches your search."
	case st.Filter == view.FilterOverdue:
		return "Nothing is overdue. 🎉"
	case st.Counts.All == 0:
		return "No todos yet. Add one with /newtask."
	default:
		return "This tab is empty."
	}
}

func filterRow(counts view.Counts, active view.Filter) []tgbotapi.InlineKeyboardButton {
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(tabOrder))
	for _, f := range tabOrder {
		label := fmt.Sprintf("%s %d", tabLabels[f], counts.Of(f))
		if f == active {
			label = "• " + label
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, cbFilterPrefix+string(f)))
	}
	return row
}

func toggleLabel(task model.Task) string {
	mark := "⬜"
	if task.Completed {
		mark = "✅"
	}
	return fmt.Sprintf("%s #%d · %s", mark, task.ID, shortTitle(task.Title, 24))
}

// noticeText renders a toast as a chat message.
func noticeText(n toast.Notice) string {
	switch n.Kind {
	case toast.KindError:
		return "⚠️ " + escape(n.Message)
	case toast.KindSuccess:
		return "✅ " + escape(n.Message)
	default:
		return "ℹ️ " + escape(n.Message)
	}
}

func parseTaskID(raw string) (uint, error) {
	value, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimSpace(raw), "#"), 10, 64)
	if err != nil || value == 0 {
		return 0, fmt.Errorf("parse todo id %q: invalid", raw)
	}
	return uint(value), nil
}

func parsePriority(text string) (model.Priority, bool) {
	p := model.Priority(strings.ToLower(strings.TrimSpace(text)))
	return p, p.Valid()
}

func parseDueInput(text string) (string, bool) {
	due, err := view.NormalizeDueDate(text)
	return due, err == nil
}

func shortTitle(title string, maxLen int) string {
	clean := strings.TrimSpace(strings.ReplaceAll(title, "\n", " "))
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

func isSkipInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == "-" || value == strings.ToLower(btnSkip) || value == "skip"
}

func isConfirmInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnConfirm) || value == "confirm" || value == "yes"
}

func isCancelInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancel) || value == "cancel" || value == "no"
}

func isCancelDialogInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancelDialog) || value == "stop"
}

func escape(s string) string {
	return html.EscapeString(s)
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuNewTask),
			tgbotapi.NewKeyboardButton(menuTasks),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuOverdue),
			tgbotapi.NewKeyboardButton(menuHelp),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

func confirmKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnConfirm),
			tgbotapi.NewKeyboardButton(btnCancel),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func cancelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnCancelDialog)),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func skipKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnSkip)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnCancelDialog)),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func priorityKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(string(model.PriorityLow)),
			tgbotapi.NewKeyboardButton(string(model.PriorityMedium)),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(string(model.PriorityHigh)),
			tgbotapi.NewKeyboardButton(string(model.PriorityUrgent)),
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
