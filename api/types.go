package api

import (
	"context"
	"net/http"

	"todogenie-api/domain"
)

// SubtaskGenerator generates and stores subtasks for a task.
type SubtaskGenerator interface {
	Generate(ctx context.Context, userID string, req domain.GenerateSubtasksRequest) (int, error)
}

// TranslationGateway returns a cached or freshly generated translation.
type TranslationGateway interface {
	GetOrCreate(ctx context.Context, userID, taskID, language string) (domain.TranslationResult, error)
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(http.Header) (string, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps groups the collaborators the HTTP handlers need.
type Deps struct {
	Subtasks     SubtaskGenerator
	Translations TranslationGateway
	Auth         Authenticator
	Store        Pinger
}
