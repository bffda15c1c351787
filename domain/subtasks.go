package domain

import (
	"math"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

const (
	// MaxGeneratedSubtasks caps one generation batch.
	MaxGeneratedSubtasks = 7
	// DefaultEstimatedMinutes replaces missing or invalid estimates.
	DefaultEstimatedMinutes = 30

	untitledSubtask        = "Untitled"
	placeholderSubtaskName = "Outline the work"
	placeholderSubtaskNote = "No subtasks generated, please check task details."
)

// DefaultSubtaskPayload is returned by the model client once every attempt failed.
const DefaultSubtaskPayload = `[{"title":"Outline the work","notes":"Break down the task into steps","estimated_minutes":30,"completed":false}]`

// GeneratedSubtask is a coerced subtask ready to be stored.
type GeneratedSubtask struct {
	Title            string  `json:"title"`
	Notes            *string `json:"notes"`
	EstimatedMinutes int     `json:"estimated_minutes"`
	Completed        bool    `json:"completed"`
}

// ParseSubtaskArray decodes model output that must be a JSON array.
func ParseSubtaskArray(raw string) ([]any, error) {
	var items []any
	if err := sonic.UnmarshalString(strings.TrimSpace(raw), &items); err != nil {
		return nil, ErrSubtasksNotArray
	}
	if items == nil {
		return nil, ErrSubtasksNotArray
	}
	return items, nil
}

// IsSubtaskArray reports whether raw is a JSON array.
func IsSubtaskArray(raw string) bool {
	_, err := ParseSubtaskArray(raw)
	return err == nil
}

// CoerceSubtasks truncates and normalises model items. It never returns an
// empty slice: a single placeholder stands in when nothing usable remains.
func CoerceSubtasks(items []any) []GeneratedSubtask {
	if len(items) > MaxGeneratedSubtasks {
		items = items[:MaxGeneratedSubtasks]
	}
	out := make([]GeneratedSubtask, 0, len(items))
	for _, item := range items {
		obj, _ := item.(map[string]any)
		out = append(out, coerceSubtask(obj))
	}
	if len(out) == 0 {
		note := placeholderSubtaskNote
		out = append(out, GeneratedSubtask{
			Title:            placeholderSubtaskName,
			Notes:            &note,
			EstimatedMinutes: DefaultEstimatedMinutes,
		})
	}
	return out
}

func coerceSubtask(obj map[string]any) GeneratedSubtask {
	st := GeneratedSubtask{Title: untitledSubtask, EstimatedMinutes: DefaultEstimatedMinutes}
	if obj == nil {
		return st
	}
	if title, ok := obj["title"].(string); ok && strings.TrimSpace(title) != "" {
		st.Title = strings.TrimSpace(title)
	}
	if notes, ok := obj["notes"].(string); ok && strings.TrimSpace(notes) != "" {
		st.Notes = &notes
	}
	if v, present := obj["estimated_minutes"]; present && v == nil {
		// An explicit null counts as zero minutes; only a missing or invalid value takes the default.
		st.EstimatedMinutes = 0
	} else if minutes, ok := estimatedMinutes(v); ok {
		st.EstimatedMinutes = minutes
	}
	return st
}

func estimatedMinutes(v any) (int, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f > math.MaxInt32 {
		return 0, false
	}
	return int(math.Round(f)), true
}
