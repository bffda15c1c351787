package domain

import "context"

// Model generates text for a prompt. Failures never surface as errors:
// the subtask path falls back to DefaultSubtaskPayload and the translation
// path returns a string starting with TranslationFailurePrefix.
type Model interface {
	Configured() bool
	GenerateSubtasks(ctx context.Context, prompt Prompt) string
	Translate(ctx context.Context, prompt Prompt) string
}
