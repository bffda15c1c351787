package domain

import (
	"math/rand"
	"reflect"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
)

func strPtr(s string) *string { return &s }

func sampleTask() (Task, []Subtask) {
	task := Task{ID: "t1", Title: "Plan launch", Description: strPtr("Prepare the product launch")}
	subtasks := []Subtask{
		{ID: "s1", TaskID: "t1", Title: "Draft plan", EstimatedMinutes: 45},
		{ID: "s2", TaskID: "t1", Title: "Review", Notes: strPtr("with team"), EstimatedMinutes: 30},
	}
	return task, subtasks
}

var randomAlphabet = []rune("abcdefghijklmnopqrstuvwxyz ABCXYZ0123456789ñüé漢字\"\\/\n\t{}[]:,")

func randomString(r *rand.Rand, max int) string {
	n := r.Intn(max)
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteRune(randomAlphabet[r.Intn(len(randomAlphabet))])
	}
	return b.String()
}

func randomPayload(r *rand.Rand) TranslatedTaskData {
	data := TranslatedTaskData{
		Task:     TranslatedTask{Title: randomString(r, 40)},
		Subtasks: make([]TranslatedSubtask, r.Intn(6)),
	}
	if r.Intn(2) == 0 {
		data.Task.Description = strPtr(randomString(r, 80))
	}
	for i := range data.Subtasks {
		data.Subtasks[i] = TranslatedSubtask{ID: "id-" + randomString(r, 8), Title: randomString(r, 30)}
		if r.Intn(2) == 0 {
			data.Subtasks[i].Description = strPtr(randomString(r, 50))
		}
	}
	return data
}

func TestNormalizeTranslationDirectParseIsIdentity(t *testing.T) {
	task, subtasks := sampleTask()
	r := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		want := randomPayload(r)
		raw, err := sonic.MarshalString(want)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}

		got, resolution := NormalizeTranslation(raw, task, subtasks)
		if resolution != ResolvedDirect {
			t.Fatalf("case %d: expected direct resolution, got %s for %s", i, resolution, raw)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("case %d: payload changed\nwant %+v\ngot  %+v", i, want, got)
		}
	}
}

func TestNormalizeTranslationFencedMatchesUnfenced(t *testing.T) {
	task, subtasks := sampleTask()
	r := rand.New(rand.NewSource(11))

	for i := 0; i < 100; i++ {
		payload := randomPayload(r)
		raw, err := sonic.MarshalString(payload)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		direct, _ := NormalizeTranslation(raw, task, subtasks)

		label := "json"
		if i%2 == 1 {
			label = "JSON"
		}
		fenced := "Here is the translation:\n```" + label + "\n" + raw + "\n```\nLet me know if you need more."
		got, resolution := NormalizeTranslation(fenced, task, subtasks)
		if resolution != ResolvedFenced {
			t.Fatalf("case %d: expected fenced resolution, got %s", i, resolution)
		}
		if !reflect.DeepEqual(got, direct) {
			t.Fatalf("case %d: fenced payload differs\nwant %+v\ngot  %+v", i, direct, got)
		}
	}
}

func TestNormalizeTranslationSkipsMalformedFence(t *testing.T) {
	task, subtasks := sampleTask()
	raw := "First try:\n```json\n{\"task\": {\"title\": \"Plan de\n```\n" +
		"Corrected:\n```json\n{\"task\": {\"title\": \"Plan de lanzamiento\"}, \"subtasks\": [{\"id\": \"s1\", \"title\": \"Redactar plan\"}]}\n```"

	got, resolution := NormalizeTranslation(raw, task, subtasks)
	if resolution != ResolvedFenced {
		t.Fatalf("expected fenced resolution, got %s", resolution)
	}
	if got.Task.Title != "Plan de lanzamiento" {
		t.Fatalf("expected title from the second block, got %q", got.Task.Title)
	}
	if len(got.Subtasks) != 1 || got.Subtasks[0].Title != "Redactar plan" {
		t.Fatalf("unexpected subtasks %+v", got.Subtasks)
	}
}

func TestNormalizeTranslationPlainProse(t *testing.T) {
	task, subtasks := sampleTask()

	got, resolution := NormalizeTranslation("Plan de lanzamiento\n\nDetalles del plan", task, subtasks)
	if resolution != ResolvedPlainText {
		t.Fatalf("expected plain_text resolution, got %s", resolution)
	}
	if got.Task.Title != "Plan de lanzamiento" {
		t.Fatalf("unexpected title %q", got.Task.Title)
	}
	if got.Task.Description == nil || *got.Task.Description != "Detalles del plan" {
		t.Fatalf("unexpected description %v", got.Task.Description)
	}
	if got.Unavailable {
		t.Fatalf("plain text translation must not be marked unavailable")
	}
	want := []TranslatedSubtask{
		{ID: "s1", Title: "Draft plan"},
		{ID: "s2", Title: "Review", Description: strPtr("with team")},
	}
	if !reflect.DeepEqual(got.Subtasks, want) {
		t.Fatalf("subtasks should be the originals, got %+v", got.Subtasks)
	}
}

func TestNormalizeTranslationProseKeepsOriginalSubtasks(t *testing.T) {
	task, subtasks := sampleTask()
	inputs := []string{
		"Lancement du plan",
		"  Titel\r\n\r\nBeschreibung\r\nmit zwei Zeilen",
		"Título\nsegunda línea\n\n\nMás detalles\n\ny más",
		"计划发布",
	}

	for _, raw := range inputs {
		got, resolution := NormalizeTranslation(raw, task, subtasks)
		if resolution != ResolvedPlainText {
			t.Fatalf("%q: expected plain_text resolution, got %s", raw, resolution)
		}
		if len(got.Subtasks) != len(subtasks) {
			t.Fatalf("%q: expected %d subtasks, got %d", raw, len(subtasks), len(got.Subtasks))
		}
		for i, st := range got.Subtasks {
			if st.ID != subtasks[i].ID || st.Title != subtasks[i].Title {
				t.Fatalf("%q: subtask %d = %+v, want id %s title %s", raw, i, st, subtasks[i].ID, subtasks[i].Title)
			}
		}
	}
}

func TestNormalizeTranslationPlainTextSplit(t *testing.T) {
	task, subtasks := sampleTask()
	cases := []struct {
		name        string
		raw         string
		title       string
		description *string
	}{
		{name: "single line", raw: "Planifier le lancement", title: "Planifier le lancement"},
		{name: "crlf", raw: "Titel\r\n\r\nBeschreibung", title: "Titel", description: strPtr("Beschreibung")},
		{name: "multi line head", raw: "Título\nsegunda\n\nresto", title: "Título", description: strPtr("segunda\n\nresto")},
		{name: "no blank line", raw: "Plan de lanzamiento\nDetalles del plan", title: "Plan de lanzamiento", description: strPtr("Detalles del plan")},
		{name: "paragraphs kept", raw: "Plan de lanzamiento\nDetalles\n\nMás", title: "Plan de lanzamiento", description: strPtr("Detalles\n\nMás")},
		{name: "whitespace blank line", raw: "Titre\n  \nCorps", title: "Titre", description: strPtr("Corps")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, _ := NormalizeTranslation(tc.raw, task, subtasks)
			if got.Task.Title != tc.title {
				t.Fatalf("expected title %q, got %q", tc.title, got.Task.Title)
			}
			if !reflect.DeepEqual(got.Task.Description, tc.description) {
				t.Fatalf("expected description %v, got %v", tc.description, got.Task.Description)
			}
		})
	}
}

func TestNormalizeTranslationEchoFallback(t *testing.T) {
	task, subtasks := sampleTask()
	cases := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: ""},
		{name: "whitespace", raw: " \n\t "},
		{name: "api sentinel", raw: "Translation failed due to API error."},
		{name: "network sentinel", raw: "Translation failed due to a network or other error."},
		{name: "malformed json", raw: `{"task": {"title": "Plan de`},
		{name: "translated keys", raw: `{"tarea": {"titulo": "Plan"}, "subtareas": []}`},
		{name: "subtasks not array", raw: `{"task": {"title": "Plan"}, "subtasks": {"id": "s1"}}`},
		{name: "array", raw: `[{"title": "Plan"}]`},
		{name: "unlabelled fence", raw: "```\n{\"task\": {\"title\": \"Plan\"}, \"subtasks\": []}\n```"},
		{name: "numeric title", raw: `{"task": {"title": 3}, "subtasks": []}`},
	}

	want := TranslatedTaskData{
		Task: TranslatedTask{Title: "Plan launch", Description: strPtr("Prepare the product launch")},
		Subtasks: []TranslatedSubtask{
			{ID: "s1", Title: "Draft plan"},
			{ID: "s2", Title: "Review", Description: strPtr("with team")},
		},
		Unavailable: true,
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, resolution := NormalizeTranslation(tc.raw, task, subtasks)
			if resolution != ResolvedEcho {
				t.Fatalf("expected echo resolution, got %s", resolution)
			}
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("unexpected echo payload %+v", got)
			}
		})
	}
}

func TestNormalizeTranslationFillsMissingSubtaskIDs(t *testing.T) {
	task, subtasks := sampleTask()

	raw := `{"task":{"title":"Plan de lanzamiento"},"subtasks":[{"title":"Redactar plan"},{"id":"s2","title":"Revisar"}]}`
	got, resolution := NormalizeTranslation(raw, task, subtasks)
	if resolution != ResolvedDirect {
		t.Fatalf("expected direct resolution, got %s", resolution)
	}
	if got.Subtasks[0].ID != "s1" || got.Subtasks[1].ID != "s2" {
		t.Fatalf("unexpected ids %+v", got.Subtasks)
	}

	extra := `{"task":{"title":"Plan"},"subtasks":[{"title":"a"},{"title":"b"},{"title":"c"}]}`
	if _, resolution := NormalizeTranslation(extra, task, subtasks); resolution != ResolvedEcho {
		t.Fatalf("subtasks without ids beyond the originals should not resolve directly, got %s", resolution)
	}
}

func TestNormalizeTranslationNoSubtasks(t *testing.T) {
	task := Task{ID: "t1", Title: "Plan launch"}

	got, resolution := NormalizeTranslation("Translation failed due to API error.", task, nil)
	if resolution != ResolvedEcho {
		t.Fatalf("expected echo resolution, got %s", resolution)
	}
	if got.Subtasks == nil || len(got.Subtasks) != 0 {
		t.Fatalf("expected empty non-nil subtasks, got %#v", got.Subtasks)
	}
	if got.Task.Description != nil {
		t.Fatalf("expected no description, got %v", *got.Task.Description)
	}
}
