package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"smart-todos/internal/model"
	"smart-todos/internal/repository"
	"smart-todos/internal/view"
)

const dueSoonWindow = 48 * time.Hour

// ReminderService builds human-readable digests for chat notifications.
type ReminderService struct {
	taskRepo *repository.TaskRepository
}

func NewReminderService(taskRepo *repository.TaskRepository) *ReminderService {
	return &ReminderService{taskRepo: taskRepo}
}

// OverdueDigest lists overdue todos and todos due within two days. It returns
// "" when there is nothing to report.
func (s *ReminderService) OverdueDigest(ctx context.Context, user model.User, now time.Time) (string, error) {
	tasks, err := s.taskRepo.ListAll(ctx, user.ID)
	if err != nil {
		return "", err
	}

	overdue := view.FilterBy(tasks, view.FilterOverdue, now)
	sortByDue(overdue)

	var soon []model.Task
	for _, task := range view.FilterBy(tasks, view.FilterActive, now) {
		if isDueSoon(task, now) {
			soon = append(soon, task)
		}
	}
	sortByDue(soon)

	if len(overdue) == 0 && len(soon) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("📋 <b>Todo digest</b>\n")
	b.WriteString(fmt.Sprintf("🗓 %s\n", now.Format("2006-01-02")))

	if len(overdue) > 0 {
		b.WriteString(fmt.Sprintf("\n⚠️ <b>Overdue (%d)</b>\n", len(overdue)))
		for _, task := range overdue {
			b.WriteString(FormatTaskLine(task, now))
		}
	}
	if len(soon) > 0 {
		b.WriteString(fmt.Sprintf("\n⏳ <b>Due soon (%d)</b>\n", len(soon)))
		for _, task := range soon {
			b.WriteString(FormatTaskLine(task, now))
		}
	}

	return strings.TrimSpace(b.String()), nil
}

// FormatTaskLine renders one todo as an HTML line with a status icon.
func FormatTaskLine(task model.Task, now time.Time) string {
	var sb strings.Builder

	c := view.Classify(task, now)
	icon := "🟢"
	switch {
	case c.Bucket == view.BucketArchived:
		icon = "🗄"
	case c.Bucket == view.BucketCompleted:
		icon = "✅"
	case c.Overdue:
		icon = "⚠️"
	case isDueSoon(task, now):
		icon = "⏳"
	}

	star := ""
	if task.Starred {
		star = " ⭐"
	}
	sb.WriteString(fmt.Sprintf("%s <b>#%d</b> %s%s", icon, task.ID, html.EscapeString(strings.TrimSpace(task.Title)), star))

	if task.Category != "" {
		sb.WriteString(fmt.Sprintf(" <i>(%s)</i>", html.EscapeString(task.Category)))
	}
	if task.Priority == model.PriorityHigh || task.Priority == model.PriorityUrgent {
		sb.WriteString(fmt.Sprintf(" · %s", task.Priority))
	}
	if label := view.DueLabel(task, now); label != "" && c.Bucket == view.BucketActive {
		sb.WriteString(fmt.Sprintf("\n   ⏰ %s", label))
	}
	if d := strings.TrimSpace(task.Description); d != "" {
		sb.WriteString(fmt.Sprintf("\n   📝 %s", html.EscapeString(d)))
	}

	sb.WriteByte('\n')
	return sb.String()
}

func isDueSoon(task model.Task, now time.Time) bool {
	due, ok := view.ParseDueDate(task.Due())
	return ok && !due.Before(now) && due.Sub(now) <= dueSoonWindow
}
