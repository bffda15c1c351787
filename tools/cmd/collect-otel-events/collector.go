package main

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

const (
	translateEventName = "ai.translate.request"
	requestEventDomain = "todogenie.ai"

	attrHTTPStatusCode = "http.status_code"
	attrPrefix         = "todogenie.ai."
	attrErrorStage     = attrPrefix + "error_stage"
	attrCached         = attrPrefix + "translate.cached"
	attrResolution     = attrPrefix + "translate.resolution"
	attrInserted       = attrPrefix + "subtasks.inserted"
	attrRerun          = attrPrefix + "subtasks.rerun"
)

// durationAttrs maps summary keys to the millisecond attributes they aggregate.
var durationAttrs = map[string]string{
	"total":   attrPrefix + "total_ms",
	"auth":    attrPrefix + "auth_ms",
	"service": attrPrefix + "service_ms",
	"encode":  attrPrefix + "encode_ms",
}

var recordDecoder = sonic.Config{UseNumber: true}.Froze()

type logRecord struct {
	EventName      string         `json:"event.name"`
	EventDomain    string         `json:"event.domain"`
	SeverityText   string         `json:"severity_text"`
	SeverityNumber int            `json:"severity_number"`
	Attributes     map[string]any `json:"attributes"`
}

type collector struct {
	eventName   string
	eventDomain string
	stats       metricsSummary
	skipped     int
}

type metricsSummary struct {
	Count          int
	SeverityCounts map[string]int
	StatusCounts   map[int]int
	Durations      map[string]*numericStats
	Inserted       *numericStats
	Cached         boolCounts
	Rerun          boolCounts
	Resolutions    map[string]int
	ErrorStages    map[string]int
	ErrorEvents    int
	WarnEvents     int
}

type numericStats struct {
	Count int
	Sum   float64
	Min   float64
	Max   float64
}

type numericSummary struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
}

type boolCounts struct {
	True  int `json:"true"`
	False int `json:"false"`
}

func (b *boolCounts) add(v bool) {
	if v {
		b.True++
	} else {
		b.False++
	}
}

type summaryOutput struct {
	EventName        string                    `json:"event_name"`
	EventDomain      string                    `json:"event_domain"`
	TotalEvents      int                       `json:"total_events"`
	SeverityCounts   map[string]int            `json:"severity_counts"`
	StatusCounts     map[string]int            `json:"status_counts"`
	DurationMs       map[string]numericSummary `json:"duration_ms"`
	SubtasksInserted numericSummary            `json:"subtasks_inserted"`
	Cached           boolCounts                `json:"cached"`
	Rerun            boolCounts                `json:"rerun"`
	Resolutions      map[string]int            `json:"resolutions,omitempty"`
	ErrorStages      map[string]int            `json:"error_stages,omitempty"`
	ErrorEvents      int                       `json:"error_events"`
	WarnEvents       int                       `json:"warn_events"`
	SkippedLines     int                       `json:"skipped_lines"`
}

func newCollector(eventName, eventDomain string) *collector {
	return &collector{
		eventName:   eventName,
		eventDomain: eventDomain,
		stats: metricsSummary{
			SeverityCounts: make(map[string]int),
			StatusCounts:   make(map[int]int),
			Durations:      make(map[string]*numericStats),
			Resolutions:    make(map[string]int),
			ErrorStages:    make(map[string]int),
		},
	}
}

func (c *collector) ingest(line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}
	// docker compose prefixes lines with "service |"
	if pipe := strings.Index(trimmed, "|"); pipe >= 0 && !strings.HasPrefix(trimmed, "{") {
		trimmed = strings.TrimSpace(trimmed[pipe+1:])
	}

	var rec logRecord
	if err := recordDecoder.UnmarshalFromString(trimmed, &rec); err != nil {
		c.skipped++
		return
	}
	if rec.EventName != c.eventName {
		return
	}
	if c.eventDomain != "" && rec.EventDomain != c.eventDomain {
		return
	}
	c.addRecord(rec)
}

func (c *collector) addRecord(rec logRecord) {
	c.stats.Count++

	severity := strings.ToUpper(strings.TrimSpace(rec.SeverityText))
	if severity == "" {
		severity = "UNSPECIFIED"
	}
	c.stats.SeverityCounts[severity]++
	switch severity {
	case "ERROR":
		c.stats.ErrorEvents++
	case "WARN", "WARNING":
		c.stats.WarnEvents++
	}

	attrs := rec.Attributes
	if attrs == nil {
		return
	}
	if status, ok := asInt(attrs[attrHTTPStatusCode]); ok {
		c.stats.StatusCounts[status]++
	}
	for key, attr := range durationAttrs {
		if v, ok := asFloat(attrs[attr]); ok {
			c.stats.addDuration(key, v)
		}
	}
	if v, ok := asFloat(attrs[attrInserted]); ok {
		if c.stats.Inserted == nil {
			c.stats.Inserted = newNumericStats()
		}
		c.stats.Inserted.add(v)
	}
	if b, ok := asBool(attrs[attrCached]); ok {
		c.stats.Cached.add(b)
	}
	if b, ok := asBool(attrs[attrRerun]); ok {
		c.stats.Rerun.add(b)
	}
	if r, ok := asString(attrs[attrResolution]); ok && r != "" {
		c.stats.Resolutions[r]++
	}
	if stage, ok := asString(attrs[attrErrorStage]); ok && stage != "" {
		c.stats.ErrorStages[stage]++
	}
}

func (s *metricsSummary) addDuration(key string, value float64) {
	stat, ok := s.Durations[key]
	if !ok {
		stat = newNumericStats()
		s.Durations[key] = stat
	}
	stat.add(value)
}

func newNumericStats() *numericStats {
	return &numericStats{Min: math.MaxFloat64}
}

func (n *numericStats) add(value float64) {
	n.Count++
	n.Sum += value
	if value < n.Min {
		n.Min = value
	}
	if value > n.Max {
		n.Max = value
	}
}

func (n *numericStats) toSummary() numericSummary {
	if n == nil || n.Count == 0 {
		return numericSummary{}
	}
	return numericSummary{
		Count: n.Count,
		Min:   n.Min,
		Max:   n.Max,
		Avg:   n.Sum / float64(n.Count),
	}
}

func (c *collector) summary() summaryOutput {
	durations := make(map[string]numericSummary, len(c.stats.Durations))
	for key, stat := range c.stats.Durations {
		durations[key] = stat.toSummary()
	}
	statusCounts := make(map[string]int, len(c.stats.StatusCounts))
	for status, count := range c.stats.StatusCounts {
		statusCounts[strconv.Itoa(status)] = count
	}

	return summaryOutput{
		EventName:        c.eventName,
		EventDomain:      c.eventDomain,
		TotalEvents:      c.stats.Count,
		SeverityCounts:   c.stats.SeverityCounts,
		StatusCounts:     statusCounts,
		DurationMs:       durations,
		SubtasksInserted: c.stats.Inserted.toSummary(),
		Cached:           c.stats.Cached,
		Rerun:            c.stats.Rerun,
		Resolutions:      nilIfEmpty(c.stats.Resolutions),
		ErrorStages:      nilIfEmpty(c.stats.ErrorStages),
		ErrorEvents:      c.stats.ErrorEvents,
		WarnEvents:       c.stats.WarnEvents,
		SkippedLines:     c.skipped,
	}
}

func nilIfEmpty(in map[string]int) map[string]int {
	if len(in) == 0 {
		return nil
	}
	return in
}

func (s summaryOutput) ShortString() string {
	total := s.DurationMs["total"]
	return strings.Join([]string{
		"event=" + s.EventName,
		"domain=" + s.EventDomain,
		"total=" + strconv.Itoa(s.TotalEvents),
		"info=" + strconv.Itoa(s.SeverityCounts["INFO"]),
		"warn=" + strconv.Itoa(s.WarnEvents),
		"error=" + strconv.Itoa(s.ErrorEvents),
		"cached=" + strconv.Itoa(s.Cached.True),
		"avg_total_ms=" + formatFloat(total.Avg),
		"max_total_ms=" + formatFloat(total.Max),
	}, " ")
}

func formatFloat(v float64) string {
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func asInt(value any) (int, bool) {
	switch v := value.(type) {
	case float64:
		return int(v), true
	case json.Number:
		i, err := v.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(v)
		return i, err == nil
	default:
		return 0, false
	}
}

func asBool(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(v)
		return b, err == nil
	default:
		return false, false
	}
}

func asString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	default:
		return "", false
	}
}
