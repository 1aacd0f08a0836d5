package model

import "time"

// Priority is the urgency level of a todo.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is one of the known priority levels.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Task represents a single todo record owned by a user.
type Task struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Title       string    `gorm:"size:200;not null" json:"title"`
	Description string    `gorm:"size:1000" json:"description,omitempty"`
	Completed   bool      `gorm:"default:false;index" json:"completed"`
	Priority    Priority  `gorm:"size:16;default:medium" json:"priority,omitempty"`
	Category    string    `gorm:"size:50;index" json:"category,omitempty"`
	DueDate     *string   `gorm:"size:40;index" json:"due_date"`
	Starred     bool      `gorm:"default:false" json:"starred"`
	Archived    bool      `gorm:"default:false" json:"archived"`
	UserID      uint      `gorm:"index" json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName keeps the table name stable across model renames.
func (Task) TableName() string {
	return "todos"
}

// Due returns the raw due date text, or "" when unset.
func (t Task) Due() string {
	if t.DueDate == nil {
		return ""
	}
	return *t.DueDate
}
