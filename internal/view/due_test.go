package view

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-todos/internal/model"
)

func TestParseDueDate(t *testing.T) {
	tests := []struct {
		raw    string
		want   time.Time
		wantOK bool
	}{
		{"2024-03-05", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), true},
		{"2024-03-05T10:30:00Z", time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC), true},
		{"2024-03-05T10:30:00", time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC), true},
		{"2024-03-05T10:30", time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC), true},
		{"2024-03-05T10:30:00.250+02:00", time.Date(2024, 3, 5, 8, 30, 0, 250e6, time.UTC), true},
		{"  2024-03-05  ", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), true},
		{"", time.Time{}, false},
		{"not-a-date", time.Time{}, false},
		{"2024-13-40", time.Time{}, false},
		{"05/03/2024", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseDueDate(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.True(t, tt.want.Equal(got), "ParseDueDate(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizeDueDate(t *testing.T) {
	got, err := NormalizeDueDate("2024-03-05")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-05", got)

	got, err = NormalizeDueDate("2024-03-05T10:30:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-05T08:30:00Z", got)

	_, err = NormalizeDueDate("tomorrow")
	assert.Error(t, err)
}

func TestDueLabel(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		due  string
		want string
	}{
		{"2024-06-07", "3 days overdue"},
		{"2024-06-10", "Due today"},
		{"2024-06-11", "Due tomorrow"},
		{"2024-06-15", "Due in 5 days"},
		{"junk", ""},
	}

	for _, tt := range tests {
		t.Run(tt.due, func(t *testing.T) {
			d := tt.due
			assert.Equal(t, tt.want, DueLabel(model.Task{DueDate: &d}, now))
		})
	}

	assert.Empty(t, DueLabel(model.Task{}, now))
}
