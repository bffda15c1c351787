package domain

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bytedance/sonic"
)

// Resolution names the normalizer step that produced a payload.
type Resolution string

const (
	ResolvedDirect    Resolution = "direct"
	ResolvedFenced    Resolution = "fenced"
	ResolvedPlainText Resolution = "plain_text"
	ResolvedEcho      Resolution = "echo"
)

// TranslationFailurePrefix starts every sentinel the model client returns
// instead of an error on the translation path.
const TranslationFailurePrefix = "Translation failed due to"

var jsonFence = regexp.MustCompile("(?is)```\\s*json[ \\t]*\\r?\\n?(.*?)```")

// NormalizeTranslation coerces raw model output into the structured form.
// Steps run in order: direct parse, the first parsable json-fenced block, plain-text
// decomposition, echo of the original content. The result always carries a
// task title and one subtask entry per id it names.
func NormalizeTranslation(raw string, task Task, subtasks []Subtask) (TranslatedTaskData, Resolution) {
	if data, ok := parseStructured(raw, subtasks); ok {
		return data, ResolvedDirect
	}
	for _, m := range jsonFence.FindAllStringSubmatch(raw, -1) {
		if data, ok := parseStructured(m[1], subtasks); ok {
			return data, ResolvedFenced
		}
	}
	if data, ok := decomposePlainText(raw, subtasks); ok {
		return data, ResolvedPlainText
	}
	return EchoTranslation(task, subtasks), ResolvedEcho
}

// EchoTranslation returns the original content marked as untranslated.
func EchoTranslation(task Task, subtasks []Subtask) TranslatedTaskData {
	return TranslatedTaskData{
		Task: TranslatedTask{
			Title:       task.Title,
			Description: nonEmpty(stringOrEmpty(task.Description)),
		},
		Subtasks:    originalSubtasks(subtasks),
		Unavailable: true,
	}
}

// MigratePlainText converts a legacy plain-text payload to the structured form.
func MigratePlainText(text string, task Task, subtasks []Subtask) TranslatedTaskData {
	data, _ := NormalizeTranslation(text, task, subtasks)
	return data
}

func parseStructured(text string, originals []Subtask) (TranslatedTaskData, bool) {
	text = strings.TrimSpace(text)
	if text == "" || text[0] != '{' {
		return TranslatedTaskData{}, false
	}
	var doc map[string]any
	if err := sonic.UnmarshalString(text, &doc); err != nil {
		return TranslatedTaskData{}, false
	}
	taskObj, ok := doc["task"].(map[string]any)
	if !ok {
		return TranslatedTaskData{}, false
	}
	title, ok := taskObj["title"].(string)
	if !ok {
		return TranslatedTaskData{}, false
	}
	description, ok := optionalString(taskObj["description"])
	if !ok {
		return TranslatedTaskData{}, false
	}
	items, ok := doc["subtasks"].([]any)
	if !ok {
		return TranslatedTaskData{}, false
	}

	out := TranslatedTaskData{
		Task:     TranslatedTask{Title: title, Description: description},
		Subtasks: make([]TranslatedSubtask, 0, len(items)),
	}
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return TranslatedTaskData{}, false
		}
		st, ok := structuredSubtask(obj, i, originals)
		if !ok {
			return TranslatedTaskData{}, false
		}
		out.Subtasks = append(out.Subtasks, st)
	}
	if unavailable, ok := doc["translation_unavailable"].(bool); ok {
		out.Unavailable = unavailable
	}
	return out, true
}

func structuredSubtask(obj map[string]any, index int, originals []Subtask) (TranslatedSubtask, bool) {
	title, ok := obj["title"].(string)
	if !ok {
		return TranslatedSubtask{}, false
	}
	description, ok := optionalString(obj["description"])
	if !ok {
		return TranslatedSubtask{}, false
	}

	var id string
	switch v := obj["id"].(type) {
	case string:
		id = v
	case float64:
		id = fmt.Sprintf("%v", v)
	case nil:
	default:
		return TranslatedSubtask{}, false
	}
	if id == "" {
		if index >= len(originals) {
			return TranslatedSubtask{}, false
		}
		id = originals[index].ID
	}
	return TranslatedSubtask{ID: id, Title: title, Description: description}, true
}

// optionalString accepts a missing value, null or a string.
func optionalString(v any) (*string, bool) {
	switch s := v.(type) {
	case nil:
		return nil, true
	case string:
		return &s, true
	default:
		return nil, false
	}
}

func decomposePlainText(raw string, originals []Subtask) (TranslatedTaskData, bool) {
	text := strings.TrimSpace(strings.ReplaceAll(raw, "\r\n", "\n"))
	if !usablePlainText(text) {
		return TranslatedTaskData{}, false
	}

	// The first line is the title; the rest, paragraph breaks included, is the description.
	title, description, _ := strings.Cut(text, "\n")
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)
	if title == "" {
		return TranslatedTaskData{}, false
	}

	return TranslatedTaskData{
		Task:     TranslatedTask{Title: title, Description: nonEmpty(description)},
		Subtasks: originalSubtasks(originals),
	}, true
}

// usablePlainText rejects sentinels and text that looks like broken JSON.
func usablePlainText(text string) bool {
	switch {
	case text == "":
		return false
	case strings.HasPrefix(text, TranslationFailurePrefix):
		return false
	case strings.HasPrefix(text, "{"), strings.HasPrefix(text, "["), strings.HasPrefix(text, "```"):
		return false
	}
	return true
}

func originalSubtasks(subtasks []Subtask) []TranslatedSubtask {
	out := make([]TranslatedSubtask, 0, len(subtasks))
	for _, st := range subtasks {
		out = append(out, TranslatedSubtask{
			ID:          st.ID,
			Title:       st.Title,
			Description: nonEmpty(stringOrEmpty(st.Notes)),
		})
	}
	return out
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
