package agents

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/custodia-labs/autorfp/internal/core/domain"
	"github.com/custodia-labs/autorfp/internal/core/ports/driven"
)

// Confidence levels assigned by result recovery.
const (
	// ParsedConfidence is used when a parsed reply states no confidence.
	ParsedConfidence = 0.8

	// PatternConfidence marks outputs recovered by text patterns.
	PatternConfidence = 0.3
)

// Record is the output of the default processor: a ParsedResult or a FallbackResult.
type Record interface {
	Confidence() float64
	IsFallback() bool
	isRecord()
}

// ParsedResult is a reply that parsed as a JSON object.
// A top-level array is stored under the "items" key.
type ParsedResult struct {
	Fields     map[string]any
	Provenance domain.Provenance
}

// Confidence returns the parse confidence.
func (r ParsedResult) Confidence() float64 { return r.Provenance.Confidence }

// IsFallback returns false.
func (r ParsedResult) IsFallback() bool { return false }

func (ParsedResult) isRecord() {}

// FallbackResult keeps a reply that did not parse.
type FallbackResult struct {
	Raw        string
	Agent      string
	Timestamp  time.Time
	Provenance domain.Provenance
}

// Confidence returns zero; nothing was understood.
func (r FallbackResult) Confidence() float64 { return r.Provenance.Confidence }

// IsFallback returns true.
func (r FallbackResult) IsFallback() bool { return true }

func (FallbackResult) isRecord() {}

// RecordProcessor is the default processor: strict JSON parse of the whole
// reply, else the raw text wrapped with a timestamp and the agent name.
func RecordProcessor(agent string, now func() time.Time) Processor[Record] {
	if now == nil {
		now = time.Now
	}
	return func(raw string) (Record, domain.Provenance) {
		ts := now()
		if fields, ok := parseObject(raw); ok {
			prov := domain.Provenance{
				Agent:      agent,
				Source:     domain.SourceParsed,
				Confidence: statedConfidence(fields, ParsedConfidence),
				Timestamp:  ts,
			}
			return ParsedResult{Fields: fields, Provenance: prov}, prov
		}
		prov := domain.Provenance{
			Agent:     agent,
			Source:    domain.SourceRaw,
			Fallback:  true,
			Timestamp: ts,
		}
		return FallbackResult{Raw: raw, Agent: agent, Timestamp: ts, Provenance: prov}, prov
	}
}

// newRecordExecutor creates an executor that returns untyped records.
func newRecordExecutor(name, instruction string, model driven.ModelClient, opts ...Option) *Executor[Record] {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	return NewExecutor(name, "", instruction, model, RecordProcessor(name, s.now), opts...)
}

// parseObject strictly parses text as a JSON object or array.
func parseObject(text string) (map[string]any, bool) {
	var v any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &v); err != nil {
		return nil, false
	}
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case []any:
		return map[string]any{"items": t}, true
	default:
		return nil, false
	}
}

// statedConfidence reads a "confidence" field in [0,1], else def.
func statedConfidence(fields map[string]any, def float64) float64 {
	if c, ok := number(fields, "confidence"); ok {
		return clamp01(c)
	}
	return def
}
