package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	requestSpanName    = "todogenie.ai.request"
	requestEventDomain = "todogenie.ai"
	observabilityEvent = "observability.event"
	attributePrefix    = "todogenie.ai."

	subtasksEventName  = "ai.subtasks.request"
	translateEventName = "ai.translate.request"
)

type requestMetrics struct {
	logger          *log.Logger
	span            trace.Span
	route           string
	eventName       string
	start           time.Time
	authDuration    time.Duration
	serviceDuration time.Duration
	encodeDuration  time.Duration
	errorStage      string
	cause           error
	attrs           map[string]any
}

func newRequestMetrics(ctx context.Context, logger *log.Logger, route, eventName string) (*requestMetrics, context.Context) {
	ctx, span := otel.Tracer("todogenie/api").Start(ctx, requestSpanName,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("http.route", route)),
	)
	return &requestMetrics{
		logger:    logger,
		span:      span,
		route:     route,
		eventName: eventName,
		start:     time.Now(),
		attrs:     map[string]any{},
	}, ctx
}

func (m *requestMetrics) ObserveAuth(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.authDuration = duration
}

func (m *requestMetrics) ObserveService(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.serviceDuration = duration
}

func (m *requestMetrics) ObserveEncode(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.encodeDuration = duration
}

// Set records a request attribute under the todogenie.ai. prefix.
func (m *requestMetrics) Set(key string, value any) {
	m.attrs[attributePrefix+key] = value
}

// Fail records the stage and cause of a failed request.
func (m *requestMetrics) Fail(stage string, err error) {
	if stage != "" {
		m.errorStage = stage
	}
	if err != nil {
		m.cause = err
	}
}

func (m *requestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	if err == nil {
		err = m.cause
	}

	attrs := map[string]any{
		"http.route":       m.route,
		"http.status_code": status,
	}
	attrs[attributePrefix+"total_ms"] = durationToMillis(time.Since(m.start))
	attrs[attributePrefix+"error_stage"] = m.errorStage
	if m.authDuration > 0 {
		attrs[attributePrefix+"auth_ms"] = durationToMillis(m.authDuration)
	}
	if m.serviceDuration > 0 {
		attrs[attributePrefix+"service_ms"] = durationToMillis(m.serviceDuration)
	}
	if m.encodeDuration > 0 {
		attrs[attributePrefix+"encode_ms"] = durationToMillis(m.encodeDuration)
	}
	for k, v := range m.attrs {
		attrs[k] = v
	}
	severityText, severityNumber := severityForStatus(status, err)

	if m.span != nil {
		kvs := make([]attribute.KeyValue, 0, len(attrs)+4)
		for k, v := range attrs {
			kvs = append(kvs, toAttribute(k, v))
		}
		m.span.SetAttributes(kvs...)

		eventAttrs := append(kvs,
			attribute.String("event.name", m.eventName),
			attribute.String("event.domain", requestEventDomain),
			attribute.String("severity_text", severityText),
			attribute.Int("severity_number", severityNumber),
		)
		if err != nil {
			eventAttrs = append(eventAttrs, attribute.String("error.message", err.Error()))
		}
		m.span.AddEvent(observabilityEvent, trace.WithAttributes(eventAttrs...))

		if err != nil || status >= http.StatusInternalServerError {
			desc := http.StatusText(status)
			if err != nil {
				desc = err.Error()
			}
			m.span.SetStatus(codes.Error, desc)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"event.name":      m.eventName,
		"event.domain":    requestEventDomain,
		"attributes":      attrs,
		"severity_text":   severityText,
		"severity_number": severityNumber,
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
			fields["span_id"] = sc.SpanID().String()
		}
	}
	entry := m.logger.WithFields(fields)
	if err != nil {
		entry = entry.WithError(err)
	}
	switch severityText {
	case "ERROR":
		entry.Error(observabilityEvent)
	case "WARN":
		entry.Warn(observabilityEvent)
	default:
		entry.Info(observabilityEvent)
	}
}

// severityForStatus maps a response to OpenTelemetry severity text and number.
func severityForStatus(status int, err error) (string, int) {
	switch {
	case status >= http.StatusInternalServerError || (status == 0 && err != nil):
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func toAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case string:
		return attribute.String(key, v)
	case fmt.Stringer:
		return attribute.String(key, v.String())
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
