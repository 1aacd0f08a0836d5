package view

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-todos/internal/model"
)

func due(s string) *string { return &s }

func ids(tasks []model.Task) []uint {
	out := make([]uint, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}

var now2024 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestClassify(t *testing.T) {
	past := due("2000-01-01")
	future := due("2099-01-01")

	tests := []struct {
		name string
		task model.Task
		want Classification
	}{
		{"archived wins over completed", model.Task{Archived: true, Completed: true, DueDate: past}, Classification{Bucket: BucketArchived}},
		{"archived active with past due is not overdue", model.Task{Archived: true, DueDate: past}, Classification{Bucket: BucketArchived}},
		{"completed with past due is not overdue", model.Task{Completed: true, DueDate: past}, Classification{Bucket: BucketCompleted}},
		{"active with past due is overdue", model.Task{DueDate: past}, Classification{Bucket: BucketActive, Overdue: true}},
		{"active with future due", model.Task{DueDate: future}, Classification{Bucket: BucketActive}},
		{"active without due", model.Task{}, Classification{Bucket: BucketActive}},
		{"active with empty due", model.Task{DueDate: due("")}, Classification{Bucket: BucketActive}},
		{"due exactly now is not overdue", model.Task{DueDate: due("2024-01-01")}, Classification{Bucket: BucketActive}},
		{"timestamp due one second before now", model.Task{DueDate: due("2023-12-31T23:59:59Z")}, Classification{Bucket: BucketActive, Overdue: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.task, now2024))
		})
	}
}

func TestClassifyMalformedDueDateIsNeverOverdue(t *testing.T) {
	for _, completed := range []bool{false, true} {
		for _, archived := range []bool{false, true} {
			task := model.Task{Completed: completed, Archived: archived, DueDate: due("not-a-date")}
			assert.False(t, Classify(task, now2024).Overdue, "completed=%v archived=%v", completed, archived)
			assert.False(t, Matches(task, FilterOverdue, now2024))
		}
	}
}

func TestFilterByScenario(t *testing.T) {
	tasks := []model.Task{
		{ID: 1, DueDate: due("2000-01-01")},
		{ID: 2, Completed: true},
		{ID: 3, Archived: true},
	}

	assert.Equal(t, []uint{1}, ids(FilterBy(tasks, FilterOverdue, now2024)))
	assert.Equal(t, []uint{1, 2}, ids(FilterBy(tasks, FilterAll, now2024)))
	assert.Equal(t, []uint{1}, ids(FilterBy(tasks, FilterActive, now2024)))
	assert.Equal(t, []uint{2}, ids(FilterBy(tasks, FilterCompleted, now2024)))
	assert.Equal(t, []uint{3}, ids(FilterBy(tasks, FilterArchived, now2024)))

	assert.Equal(t, Counts{All: 2, Active: 1, Completed: 1, Archived: 1, Overdue: 1}, CountsByFilter(tasks, now2024))
}

func TestFilterByPreservesOrderAndInput(t *testing.T) {
	tasks := []model.Task{
		{ID: 5}, {ID: 2, Archived: true}, {ID: 9}, {ID: 1, Completed: true}, {ID: 4},
	}
	before := append([]model.Task(nil), tasks...)

	got := FilterBy(tasks, FilterActive, now2024)

	assert.Equal(t, []uint{5, 9, 4}, ids(got))
	assert.Equal(t, before, tasks)
}

func TestArchivedExcludedFromOtherTabs(t *testing.T) {
	tasks := []model.Task{
		{ID: 1, Archived: true, DueDate: due("2000-01-01")},
		{ID: 2, Archived: true, Completed: true},
	}
	for _, f := range []Filter{FilterAll, FilterActive, FilterCompleted, FilterOverdue} {
		assert.Empty(t, FilterBy(tasks, f, now2024), f)
	}
	assert.Len(t, FilterBy(tasks, FilterArchived, now2024), 2)
}

func TestCountsMatchFilterBy(t *testing.T) {
	tasks := []model.Task{
		{ID: 1, DueDate: due("2000-01-01")},
		{ID: 2, DueDate: due("garbage")},
		{ID: 3, Completed: true, DueDate: due("2000-01-01")},
		{ID: 4, Archived: true},
		{ID: 5, Archived: true, Completed: true},
		{ID: 6, DueDate: due("2030-05-05T10:00:00Z")},
		{ID: 7, Completed: true},
	}

	counts := CountsByFilter(tasks, now2024)
	for _, f := range Filters {
		assert.Equal(t, len(FilterBy(tasks, f, now2024)), counts.Of(f), f)
	}
	assert.Equal(t, counts.All, counts.Active+counts.Completed)
	assert.LessOrEqual(t, counts.Overdue, counts.Active)
}

func TestSearchFilter(t *testing.T) {
	tasks := []model.Task{
		{ID: 1, Title: "Buy milk", Category: "Shopping"},
		{ID: 2, Title: "Quarterly report", Description: "Send to the team", Category: "Work"},
		{ID: 3, Title: "Dentist", Description: "annual checkup"},
	}

	t.Run("empty query is identity", func(t *testing.T) {
		assert.Equal(t, tasks, SearchFilter(tasks, ""))
	})
	t.Run("case insensitive category match", func(t *testing.T) {
		assert.Equal(t, []uint{2}, ids(SearchFilter(tasks, "WORK")))
	})
	t.Run("description match", func(t *testing.T) {
		assert.Equal(t, []uint{3}, ids(SearchFilter(tasks, "Checkup")))
	})
	t.Run("title match", func(t *testing.T) {
		assert.Equal(t, []uint{1}, ids(SearchFilter(tasks, "milk")))
	})
	t.Run("no match", func(t *testing.T) {
		assert.Empty(t, SearchFilter(tasks, "zzz"))
	})
}

func TestSearchComposesWithFilter(t *testing.T) {
	tasks := []model.Task{
		{ID: 1, Title: "work out"},
		{ID: 2, Title: "work email", Completed: true},
		{ID: 3, Title: "Work plan"},
		{ID: 4, Title: "groceries"},
	}

	a := SearchFilter(FilterBy(tasks, FilterActive, now2024), "work")
	b := FilterBy(SearchFilter(tasks, "work"), FilterActive, now2024)

	assert.Equal(t, []uint{1, 3}, ids(a))
	assert.Equal(t, ids(a), ids(b))
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter(" Overdue ")
	require.NoError(t, err)
	assert.Equal(t, FilterOverdue, f)

	f, err = ParseFilter("")
	require.NoError(t, err)
	assert.Equal(t, FilterAll, f)

	_, err = ParseFilter("starred")
	assert.Error(t, err)
}
