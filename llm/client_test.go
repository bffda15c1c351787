package llm

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"todogenie-api/domain"
)

func quietLogger() *log.Logger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger
}

func candidateBody(text string) string {
	body, _ := sonic.MarshalString(map[string]any{
		"candidates": []any{
			map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": text}}}},
		},
	})
	return body
}

type fakeGemini struct {
	calls     atomic.Int32
	responses []func(w http.ResponseWriter)
	lastBody  []byte
	lastKey   string
	lastPath  string
}

func (f *fakeGemini) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := int(f.calls.Add(1)) - 1
	f.lastBody, _ = io.ReadAll(r.Body)
	f.lastKey = r.Header.Get("x-goog-api-key")
	f.lastPath = r.URL.Path
	respond := f.responses[len(f.responses)-1]
	if n < len(f.responses) {
		respond = f.responses[n]
	}
	respond(w)
}

func ok(text string) func(http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, candidateBody(text))
	}
}

func status(code int) func(http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = io.WriteString(w, `{"error":{"message":"nope"}}`)
	}
}

func newTestClient(t *testing.T, fake *fakeGemini) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return New(Config{
		APIKey:  "key-123",
		BaseURL: srv.URL,
		Model:   "gemini-test",
		Timeout: 2 * time.Second,
		Backoff: time.Millisecond,
	}, quietLogger())
}

func TestGenerateSubtasksRetriesServerErrors(t *testing.T) {
	fake := &fakeGemini{responses: []func(http.ResponseWriter){
		status(http.StatusInternalServerError),
		status(http.StatusServiceUnavailable),
		ok(`[{"title":"a"}]`),
	}}
	c := newTestClient(t, fake)

	got := c.GenerateSubtasks(context.Background(), domain.SubtaskPrompt("Plan", "", ""))
	if got != `[{"title":"a"}]` {
		t.Fatalf("unexpected text %q", got)
	}
	if fake.calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", fake.calls.Load())
	}
}

func TestGenerateSubtasksExhaustionReturnsDefault(t *testing.T) {
	fake := &fakeGemini{responses: []func(http.ResponseWriter){status(http.StatusBadGateway)}}
	c := newTestClient(t, fake)

	got := c.GenerateSubtasks(context.Background(), domain.SubtaskPrompt("Plan", "", ""))
	if got != domain.DefaultSubtaskPayload {
		t.Fatalf("expected default payload, got %q", got)
	}
	if fake.calls.Load() != subtaskAttempts {
		t.Fatalf("expected %d attempts, got %d", subtaskAttempts, fake.calls.Load())
	}
}

func TestGenerateSubtasksRetriesNonArrayOutput(t *testing.T) {
	fake := &fakeGemini{responses: []func(http.ResponseWriter){
		ok(`{"subtasks":[]}`),
		ok(`[{"title":"b"}]`),
	}}
	c := newTestClient(t, fake)

	if got := c.GenerateSubtasks(context.Background(), domain.SubtaskPrompt("Plan", "", "")); got != `[{"title":"b"}]` {
		t.Fatalf("unexpected text %q", got)
	}
	if fake.calls.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", fake.calls.Load())
	}
}

func TestGenerateSubtasksDoesNotRetryClientErrors(t *testing.T) {
	cases := []struct {
		code  int
		calls int32
	}{
		{code: http.StatusBadRequest, calls: 1},
		{code: http.StatusForbidden, calls: 1},
		{code: http.StatusTooManyRequests, calls: 3},
		{code: http.StatusRequestTimeout, calls: 3},
	}

	for _, tc := range cases {
		fake := &fakeGemini{responses: []func(http.ResponseWriter){status(tc.code)}}
		c := newTestClient(t, fake)

		if got := c.GenerateSubtasks(context.Background(), domain.SubtaskPrompt("Plan", "", "")); got != domain.DefaultSubtaskPayload {
			t.Fatalf("%d: expected default payload, got %q", tc.code, got)
		}
		if fake.calls.Load() != tc.calls {
			t.Fatalf("%d: expected %d attempts, got %d", tc.code, tc.calls, fake.calls.Load())
		}
	}
}

func TestGenerateSubtasksStopsOnCancelledContext(t *testing.T) {
	fake := &fakeGemini{responses: []func(http.ResponseWriter){status(http.StatusInternalServerError)}}
	c := newTestClient(t, fake)
	c.cfg.Backoff = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	started := time.Now()
	if got := c.GenerateSubtasks(ctx, domain.SubtaskPrompt("Plan", "", "")); got != domain.DefaultSubtaskPayload {
		t.Fatalf("expected default payload, got %q", got)
	}
	if time.Since(started) > 5*time.Second {
		t.Fatalf("backoff did not honour cancellation")
	}
	if fake.calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", fake.calls.Load())
	}
}

func TestTranslateSingleAttemptSentinels(t *testing.T) {
	fake := &fakeGemini{responses: []func(http.ResponseWriter){status(http.StatusInternalServerError)}}
	c := newTestClient(t, fake)

	if got := c.Translate(context.Background(), domain.Prompt{System: "s", User: "u"}); got != TranslationAPIError {
		t.Fatalf("expected API sentinel, got %q", got)
	}
	if fake.calls.Load() != 1 {
		t.Fatalf("translation must not retry, got %d calls", fake.calls.Load())
	}

	down := New(Config{APIKey: "k", BaseURL: "http://127.0.0.1:1", Timeout: time.Second}, quietLogger())
	if got := down.Translate(context.Background(), domain.Prompt{}); got != TranslationNetworkError {
		t.Fatalf("expected network sentinel, got %q", got)
	}
}

func TestTranslateReturnsModelText(t *testing.T) {
	fake := &fakeGemini{responses: []func(http.ResponseWriter){ok("Plan de lanzamiento")}}
	c := newTestClient(t, fake)

	if got := c.Translate(context.Background(), domain.Prompt{}); got != "Plan de lanzamiento" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestRequestShape(t *testing.T) {
	fake := &fakeGemini{responses: []func(http.ResponseWriter){ok("x")}}
	c := newTestClient(t, fake)

	c.Translate(context.Background(), domain.Prompt{System: "sys", User: "usr", Temperature: 0.1, MaxTokens: 1024})

	if fake.lastKey != "key-123" {
		t.Fatalf("expected api key header, got %q", fake.lastKey)
	}
	if fake.lastPath != "/v1beta/models/gemini-test:generateContent" {
		t.Fatalf("unexpected path %s", fake.lastPath)
	}

	var body generateRequest
	if err := sonic.Unmarshal(fake.lastBody, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.SystemInstruction.Parts[0].Text != "sys" {
		t.Fatalf("unexpected system instruction %+v", body.SystemInstruction)
	}
	if len(body.Contents) != 1 || body.Contents[0].Role != "user" || body.Contents[0].Parts[0].Text != "usr" {
		t.Fatalf("unexpected contents %+v", body.Contents)
	}
	if body.GenerationConfig.Temperature != 0.1 || body.GenerationConfig.MaxOutputTokens != 1024 || body.GenerationConfig.ResponseMimeType != "application/json" {
		t.Fatalf("unexpected generation config %+v", body.GenerationConfig)
	}
	if len(body.SafetySettings) != 4 {
		t.Fatalf("expected 4 safety settings, got %d", len(body.SafetySettings))
	}
	for _, s := range body.SafetySettings {
		if s.Threshold != "BLOCK_NONE" {
			t.Fatalf("unexpected threshold %+v", s)
		}
	}
}

func TestMissingCandidatesFallsBack(t *testing.T) {
	fake := &fakeGemini{responses: []func(http.ResponseWriter){func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[]}`)
	}}}
	c := newTestClient(t, fake)

	if got := c.Translate(context.Background(), domain.Prompt{}); got != TranslationNetworkError {
		t.Fatalf("expected network sentinel, got %q", got)
	}
}

func TestConfigured(t *testing.T) {
	if New(Config{}, quietLogger()).Configured() {
		t.Fatalf("client without key must not be configured")
	}
	if !New(Config{APIKey: "k"}, quietLogger()).Configured() {
		t.Fatalf("client with key should be configured")
	}
}
