package domain

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// Prompt is one system/user exchange with fixed generation parameters.
type Prompt struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

const (
	subtaskSystemPrompt = "You are an expert project manager. Your role is to break down tasks into smaller, " +
		"actionable subtasks. You must output a JSON array of subtask objects, and nothing else."

	translationSystemPrompt = "You are a highly accurate translation assistant. You receive a JSON document " +
		"describing a task and its subtasks. Translate only the string values of \"title\" and \"description\" " +
		"into the requested language. Never translate or rename keys, never change \"id\" values, and keep " +
		"the same number and order of subtasks. Return only the JSON object, with no commentary or markdown."
)

// SubtaskPrompt builds the generation prompt for a task.
func SubtaskPrompt(title, description, priority string) Prompt {
	if title == "" {
		title = "Untitled Task"
	}
	if description == "" {
		description = "N/A"
	}
	if priority == "" {
		priority = "Normal"
	}
	user := fmt.Sprintf(`Based on the following task, generate between 3 and 7 subtasks.
Task details:
- Title: %s
- Description: %s
- Priority: %s

Each subtask object in the JSON array must have the following keys:
- "title": A concise and clear title for the subtask.
- "notes": A brief description of the subtask.
- "estimated_minutes": An integer representing the estimated time in minutes to complete the subtask.
- "completed": A boolean, which should always be false initially.

Example output for a task about "Prepare quarterly report":
[
  { "title": "Gather sales data", "notes": "Export Q3 sales data from CRM.", "estimated_minutes": 45, "completed": false },
  { "title": "Analyze marketing spend", "notes": "Review ad campaign performance and costs.", "estimated_minutes": 60, "completed": false }
]

Now, generate the subtasks for the provided task.`, title, description, priority)

	return Prompt{System: subtaskSystemPrompt, User: user, Temperature: 0.2, MaxTokens: 1024}
}

type translationSource struct {
	Task     TranslatedTask      `json:"task"`
	Subtasks []TranslatedSubtask `json:"subtasks"`
}

// TranslationPrompt builds the translation prompt for a task and its subtasks.
func TranslationPrompt(language string, task Task, subtasks []Subtask) (Prompt, error) {
	doc, err := sonic.ConfigStd.MarshalIndent(translationSource{
		Task: TranslatedTask{
			Title:       task.Title,
			Description: nonEmpty(stringOrEmpty(task.Description)),
		},
		Subtasks: originalSubtasks(subtasks),
	}, "", "  ")
	if err != nil {
		return Prompt{}, fmt.Errorf("encode translation source: %w", err)
	}
	user := fmt.Sprintf("Translate the following JSON document into %s:\n\n%s", language, doc)
	return Prompt{System: translationSystemPrompt, User: user, Temperature: 0.1, MaxTokens: 1024}, nil
}
