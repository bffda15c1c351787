package domain

import "errors"

var (
	// ErrTaskNotFound is returned when the task does not exist or is not owned by the caller.
	ErrTaskNotFound = errors.New("task not found")

	// ErrModelNotConfigured indicates the model API key is missing on the server.
	ErrModelNotConfigured = errors.New("model api key not configured")

	// ErrSubtasksNotArray is returned when the model output for subtask
	// generation is not a JSON array.
	ErrSubtasksNotArray = errors.New("model did not return an array")

	// ErrSubtasksUnavailable wraps failures reading the subtasks of a task.
	ErrSubtasksUnavailable = errors.New("subtasks fetch failed")
)
