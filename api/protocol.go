package api

import "todogenie-api/domain"

const requestBodyMaxSize = 64 * 1024 // 64 KiB

const (
	SubtasksRoute  = "/api/ai-generate-subtasks"
	TranslateRoute = "/api/ai-translate"
)

// Error codes returned to clients.
const (
	errEmptyBody            = "Request body was empty. Expected JSON."
	errInvalidBody          = "Invalid request body. Expected JSON."
	errTaskIDRequired       = "taskId is required"
	errTranslateFieldsEmpty = "taskId and language are required"
	errModelNotConfigured   = "API key not configured on server"
	errGenerationFailed     = "generation_failed"
	errTaskNotFound         = "task_not_found"
	errSubtasksFetchFailed  = "subtasks_fetch_failed"
	errTranslationFailed    = "translation_failed"
	errUnauthorized         = "unauthorized"
)

type errorResponse struct {
	Error string `json:"error"`
}

// POST /api/ai-generate-subtasks request body
type generateSubtasksRequest struct {
	TaskID      string `json:"taskId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	Rerun       bool   `json:"rerun"`
}

type generateSubtasksResponse struct {
	Inserted int `json:"inserted"`
}

// POST /api/ai-translate request body
type translateRequest struct {
	TaskID   string `json:"taskId"`
	Language string `json:"language"`
}

type translateResponse struct {
	Cached      bool               `json:"cached"`
	Translation domain.Translation `json:"translation"`
}
