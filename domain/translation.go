package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

// PayloadKind discriminates the two historical shapes of a stored translation.
type PayloadKind string

const (
	PayloadStructured PayloadKind = "structured"
	PayloadPlainText  PayloadKind = "plain_text"
)

// TranslatedTask holds the translated parent task text.
type TranslatedTask struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
}

// TranslatedSubtask holds the translated text of one subtask, keyed by the
// original subtask identifier.
type TranslatedSubtask struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
}

// TranslatedTaskData is the structured form of a translation payload.
type TranslatedTaskData struct {
	Task     TranslatedTask      `json:"task"`
	Subtasks []TranslatedSubtask `json:"subtasks"`
	// Unavailable marks an echo of the original, untranslated content.
	Unavailable bool `json:"translation_unavailable,omitempty"`
}

// TranslatedPayload is either the structured form or a legacy plain string.
type TranslatedPayload struct {
	Kind       PayloadKind
	Structured *TranslatedTaskData
	Text       string
}

// StructuredPayload wraps structured translation data.
func StructuredPayload(data TranslatedTaskData) TranslatedPayload {
	if data.Subtasks == nil {
		data.Subtasks = []TranslatedSubtask{}
	}
	return TranslatedPayload{Kind: PayloadStructured, Structured: &data}
}

// PlainTextPayload wraps a legacy plain-text translation.
func PlainTextPayload(text string) TranslatedPayload {
	return TranslatedPayload{Kind: PayloadPlainText, Text: text}
}

// IsPlainText reports whether the payload still carries the legacy shape.
func (p TranslatedPayload) IsPlainText() bool {
	return p.Kind == PayloadPlainText
}

// MarshalJSON encodes the structured form as an object and the plain form as a string.
func (p TranslatedPayload) MarshalJSON() ([]byte, error) {
	switch p.Kind {
	case PayloadStructured:
		if p.Structured == nil {
			return nil, fmt.Errorf("structured payload without data")
		}
		return sonic.Marshal(p.Structured)
	case PayloadPlainText:
		return sonic.Marshal(p.Text)
	default:
		return nil, fmt.Errorf("unknown payload kind %q", p.Kind)
	}
}

// DecodeTranslatedPayload decodes a stored translated_text value using its
// stored discriminant. Rows written before the discriminant existed carry an
// empty kind and are classified once here.
func DecodeTranslatedPayload(kind PayloadKind, raw []byte) (TranslatedPayload, error) {
	switch kind {
	case PayloadStructured:
		var data TranslatedTaskData
		if err := sonic.ConfigStd.Unmarshal(raw, &data); err != nil {
			return TranslatedPayload{}, fmt.Errorf("decode structured payload: %w", err)
		}
		return StructuredPayload(data), nil
	case PayloadPlainText:
		var text string
		if err := sonic.ConfigStd.Unmarshal(raw, &text); err != nil {
			return TranslatedPayload{}, fmt.Errorf("decode plain payload: %w", err)
		}
		return PlainTextPayload(text), nil
	case "":
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) > 0 && trimmed[0] == '"' {
			return DecodeTranslatedPayload(PayloadPlainText, trimmed)
		}
		if data, ok := parseStructured(string(trimmed), nil); ok {
			return StructuredPayload(data), nil
		}
		return PlainTextPayload(string(trimmed)), nil
	default:
		return TranslatedPayload{}, fmt.Errorf("unknown payload kind %q", kind)
	}
}

// Translation is a cached translation of one task and its subtasks.
type Translation struct {
	ID        string
	TaskID    string
	Language  string
	Payload   TranslatedPayload
	CreatedAt time.Time
}

type translationWire struct {
	ID             string          `json:"id"`
	TaskID         string          `json:"task_id"`
	Language       string          `json:"language"`
	Kind           PayloadKind     `json:"payload_kind"`
	TranslatedText json.RawMessage `json:"translated_text"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (t Translation) MarshalJSON() ([]byte, error) {
	text, err := t.Payload.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return sonic.Marshal(translationWire{
		ID:             t.ID,
		TaskID:         t.TaskID,
		Language:       t.Language,
		Kind:           t.Payload.Kind,
		TranslatedText: text,
		CreatedAt:      t.CreatedAt,
	})
}

func (t *Translation) UnmarshalJSON(data []byte) error {
	var w translationWire
	if err := sonic.ConfigStd.Unmarshal(data, &w); err != nil {
		return err
	}
	payload, err := DecodeTranslatedPayload(w.Kind, w.TranslatedText)
	if err != nil {
		return err
	}
	*t = Translation{
		ID:        w.ID,
		TaskID:    w.TaskID,
		Language:  w.Language,
		Payload:   payload,
		CreatedAt: w.CreatedAt,
	}
	return nil
}
