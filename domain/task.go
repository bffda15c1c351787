package domain

import "time"

// Priority is the user-assigned urgency of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Task is a single to-do item owned by a user.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description *string    `json:"description,omitempty"`
	Priority    *Priority  `json:"priority,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Completed   bool       `json:"completed"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Subtask is an actionable step of a task.
type Subtask struct {
	ID               string    `json:"id"`
	TaskID           string    `json:"task_id"`
	Title            string    `json:"title"`
	Notes            *string   `json:"notes"`
	EstimatedMinutes int       `json:"estimated_minutes"`
	Completed        bool      `json:"completed"`
	CreatedAt        time.Time `json:"created_at,omitempty"`
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
