package view

import (
	"fmt"
	"math"
	"strings"
	"time"

	"smart-todos/internal/model"
)

var dueLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	time.DateOnly,
}

// ParseDueDate reads a stored due date. Date-only values are midnight UTC and
// zone-less date-times are taken as UTC. Text that matches no layout yields
// ok=false and is treated everywhere as "no due date", so such a todo is
// never overdue.
func ParseDueDate(raw string) (due time.Time, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dueLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NormalizeDueDate validates raw and returns the canonical stored form:
// YYYY-MM-DD for date-only input, RFC3339 in UTC otherwise.
func NormalizeDueDate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	t, ok := ParseDueDate(raw)
	if !ok {
		return "", fmt.Errorf("invalid due date %q", raw)
	}
	if len(raw) == len(time.DateOnly) {
		return t.Format(time.DateOnly), nil
	}
	return t.UTC().Format(time.RFC3339), nil
}

// DueLabel describes a todo's due date relative to now, for example
// "Due tomorrow" or "3 days overdue". It returns "" when there is no valid
// due date.
func DueLabel(task model.Task, now time.Time) string {
	due, ok := ParseDueDate(task.Due())
	if !ok {
		return ""
	}
	days := int(math.Ceil(due.Sub(now).Hours() / 24))
	switch {
	case days < 0:
		return fmt.Sprintf("%d days overdue", -days)
	case days == 0:
		return "Due today"
	case days == 1:
		return "Due tomorrow"
	default:
		return fmt.Sprintf("Due in %d days", days)
	}
}
