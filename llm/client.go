package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"todogenie-api/domain"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-2.0-flash"

	subtaskAttempts = 3

	// TranslationAPIError is returned by Translate when the endpoint answers with an error status.
	TranslationAPIError = domain.TranslationFailurePrefix + " API error."
	// TranslationNetworkError is returned by Translate for transport and decoding failures.
	TranslationNetworkError = domain.TranslationFailurePrefix + " a network or other error."
)

var safetyCategories = []string{
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
}

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// Timeout bounds one HTTP attempt.
	Timeout time.Duration
	// Backoff is the base delay between subtask attempts.
	Backoff time.Duration
}

// Client talks to the Gemini generateContent endpoint.
type Client struct {
	cfg    Config
	http   *resty.Client
	logger *log.Logger
	tracer trace.Tracer
}

func New(cfg Config, logger *log.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	httpClient := resty.New().
		SetTimeout(cfg.Timeout).
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)
	return &Client{
		cfg:    cfg,
		http:   httpClient,
		logger: logger,
		tracer: otel.Tracer("todogenie/llm"),
	}
}

func (c *Client) Configured() bool {
	return c.cfg.APIKey != ""
}

// GenerateSubtasks makes up to three attempts to obtain a JSON array and
// falls back to domain.DefaultSubtaskPayload.
func (c *Client) GenerateSubtasks(ctx context.Context, prompt domain.Prompt) string {
	for attempt := 0; attempt < subtaskAttempts; attempt++ {
		if attempt > 0 {
			if err := c.wait(ctx, attempt-1); err != nil {
				break
			}
		}

		text, err := c.generate(ctx, "subtasks", attempt+1, prompt)
		if err == nil {
			if domain.IsSubtaskArray(text) {
				return text
			}
			err = errNotArray
			c.logger.Debugf("non-array model output: %s", text)
		}

		c.logger.WithError(err).WithField("attempt", attempt+1).Warn("subtask generation attempt failed")
		if ctx.Err() != nil || !retryable(err) {
			break
		}
	}
	c.logger.Warn("subtask generation exhausted, using default payload")
	return domain.DefaultSubtaskPayload
}

// Translate makes one attempt and returns a failure sentinel instead of an error.
func (c *Client) Translate(ctx context.Context, prompt domain.Prompt) string {
	text, err := c.generate(ctx, "translation", 1, prompt)
	if err == nil {
		return text
	}
	c.logger.WithError(err).Warn("translation request failed")
	var se *statusError
	if errors.As(err, &se) {
		return TranslationAPIError
	}
	return TranslationNetworkError
}

var errNotArray = errors.New("model output is not a JSON array")

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("model endpoint returned %d: %s", e.code, abbreviate(e.body, 500))
}

// retryable treats client errors other than timeouts and throttling as final.
func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		if se.code == http.StatusRequestTimeout || se.code == http.StatusTooManyRequests {
			return true
		}
		return se.code >= 500
	}
	return true
}

// wait sleeps a full-jitter exponential delay for the given retry index.
func (c *Client) wait(ctx context.Context, retry int) error {
	if c.cfg.Backoff <= 0 {
		return ctx.Err()
	}
	ceiling := c.cfg.Backoff << retry
	delay := time.Duration(rand.Int64N(int64(ceiling) + 1))
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	ResponseMimeType string  `json:"responseMimeType"`
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
}

type safetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type generateRequest struct {
	SystemInstruction content          `json:"systemInstruction"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
	SafetySettings    []safetySetting  `json:"safetySettings"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

func newGenerateRequest(prompt domain.Prompt) generateRequest {
	req := generateRequest{
		SystemInstruction: content{Parts: []part{{Text: prompt.System}}},
		Contents:          []content{{Role: "user", Parts: []part{{Text: prompt.User}}}},
		GenerationConfig: generationConfig{
			ResponseMimeType: "application/json",
			Temperature:      prompt.Temperature,
			MaxOutputTokens:  prompt.MaxTokens,
		},
	}
	for _, category := range safetyCategories {
		req.SafetySettings = append(req.SafetySettings, safetySetting{Category: category, Threshold: "BLOCK_NONE"})
	}
	return req
}

func (c *Client) endpoint() string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/v1beta/models/" + c.cfg.Model + ":generateContent"
}

func (c *Client) generate(ctx context.Context, path string, attempt int, prompt domain.Prompt) (text string, err error) {
	ctx, span := c.tracer.Start(ctx, "llm.generate", trace.WithAttributes(
		attribute.String("llm.model", c.cfg.Model),
		attribute.String("llm.path", path),
		attribute.Int("llm.attempt", attempt),
	))
	started := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
		c.logger.WithFields(log.Fields{
			"path":       path,
			"attempt":    attempt,
			"durationMs": time.Since(started).Milliseconds(),
		}).Debug("model call finished")
	}()

	var resp generateResponse
	r, err := c.http.R().
		SetContext(ctx).
		SetHeader("x-goog-api-key", c.cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetBody(newGenerateRequest(prompt)).
		SetResult(&resp).
		Post(c.endpoint())
	if err != nil {
		return "", err
	}
	span.SetAttributes(attribute.Int("http.status_code", r.StatusCode()))
	if r.IsError() {
		return "", &statusError{code: r.StatusCode(), body: r.String()}
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("model response has no candidates")
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}

func abbreviate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
