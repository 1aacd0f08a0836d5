package model

// SuggestedCategories are offered to users when picking a category; any other
// free-form value is accepted too.
var SuggestedCategories = []string{"Work", "Personal", "Shopping", "Health", "Learning"}

// Priorities lists priority levels from least to most urgent.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}
