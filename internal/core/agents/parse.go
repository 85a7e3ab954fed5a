package agents

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/custodia-labs/autorfp/internal/core/domain"
	"github.com/custodia-labs/autorfp/internal/logger"
)

var fencedBlock = regexp.MustCompile("(?s)```[a-zA-Z]*[ \t]*\r?\n(.*?)```")

// ExtractJSONBlock finds structured data inside a larger reply: the first
// fenced block holding valid JSON, else the first balanced top-level object.
func ExtractJSONBlock(text string) (string, bool) {
	for _, m := range fencedBlock.FindAllStringSubmatch(text, -1) {
		body := strings.TrimSpace(m[1])
		if json.Valid([]byte(body)) {
			return body, true
		}
	}

	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end := balancedEnd(text, start); end > 0 {
			candidate := text[start:end]
			if json.Valid([]byte(candidate)) {
				return candidate, true
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

// balancedEnd returns the index after the brace closing the one at start,
// skipping braces inside JSON strings. Returns -1 if unbalanced.
func balancedEnd(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

// decodeReply recovers structured fields from a model reply. The default
// record processor is tried first, then embedded block extraction.
func decodeReply(agent, raw string, now func() time.Time) (map[string]any, domain.Provenance, bool) {
	rec, prov := RecordProcessor(agent, now)(raw)
	if parsed, ok := rec.(ParsedResult); ok {
		return parsed.Fields, prov, true
	}

	block, ok := ExtractJSONBlock(raw)
	if !ok {
		return nil, prov, false
	}
	fields, ok := parseObject(block)
	if !ok {
		return nil, prov, false
	}
	return fields, domain.Provenance{
		Agent:      agent,
		Source:     domain.SourceParsed,
		Confidence: statedConfidence(fields, ParsedConfidence),
		Timestamp:  prov.Timestamp,
	}, true
}

// patternProvenance tags an output recovered from text patterns.
func patternProvenance(agent string, ts time.Time, warnings ...string) domain.Provenance {
	return domain.Provenance{
		Agent:      agent,
		Source:     domain.SourcePattern,
		Confidence: PatternConfidence,
		Fallback:   true,
		Warnings:   warnings,
		Timestamp:  ts,
	}
}

// ensureLists normalises list fields: a lone string becomes a one-item
// list, anything else that is not a list becomes empty.
func ensureLists(fields map[string]any, keys ...string) {
	for _, k := range keys {
		switch v := fields[k].(type) {
		case []any:
		case string:
			if strings.TrimSpace(v) != "" {
				fields[k] = []any{v}
			} else {
				fields[k] = []any{}
			}
		default:
			fields[k] = []any{}
		}
	}
}

// warnMissing logs absent scalar fields and returns them as provenance warnings.
func warnMissing(agent string, fields map[string]any, keys ...string) []string {
	var warnings []string
	for _, k := range keys {
		v, ok := fields[k]
		if !ok || v == nil {
			msg := fmt.Sprintf("missing field %q", k)
			logger.Warn("%s: %s", agent, msg)
			warnings = append(warnings, msg)
		}
	}
	return warnings
}

// listOf returns fields[key] (or fields["items"]) as a list of objects.
func listOf(fields map[string]any, key string) []map[string]any {
	raw, ok := fields[key].([]any)
	if !ok || len(raw) == 0 {
		raw, _ = fields["items"].([]any)
	}
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func str(fields map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := fields[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return fmt.Sprintf("%g", v)
		}
	}
	return ""
}

func strList(fields map[string]any, key string) []string {
	switch v := fields[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			switch s := item.(type) {
			case string:
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			case map[string]any:
				if t := str(s, "text", "description", "name", "value"); t != "" {
					out = append(out, t)
				}
			}
		}
		return out
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return []string{s}
		}
	}
	return nil
}

func number(fields map[string]any, key string) (float64, bool) {
	switch v := fields[key].(type) {
	case float64:
		return v, true
	case string:
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSuffix(strings.TrimSpace(v), "%"), "%g", &f); err == nil {
			if strings.HasSuffix(strings.TrimSpace(v), "%") {
				f /= 100
			}
			return f, true
		}
	}
	return 0, false
}

func boolean(fields map[string]any, key string) bool {
	switch v := fields[key].(type) {
	case bool:
		return v
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		return s == "true" || s == "yes" || s == "mandatory"
	}
	return false
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

var (
	bulletPrefix = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)]|[a-zA-Z][.)])\s+`)
	sentenceEnd  = regexp.MustCompile(`[.!?]\s+`)
)

// bulletLines returns list-item lines of text with their markers removed.
func bulletLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if loc := bulletPrefix.FindStringIndex(line); loc != nil {
			if item := strings.TrimSpace(line[loc[1]:]); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

// stripBullet removes a leading list marker.
func stripBullet(line string) string {
	if loc := bulletPrefix.FindStringIndex(line); loc != nil {
		return strings.TrimSpace(line[loc[1]:])
	}
	return strings.TrimSpace(line)
}

// sentences splits text into trimmed sentences.
func sentences(text string) []string {
	flat := strings.Join(strings.Fields(text), " ")
	var out []string
	last := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(flat, -1) {
		if s := strings.TrimSpace(flat[last:loc[0]+1]); s != "" {
			out = append(out, s)
		}
		last = loc[1]
	}
	if s := strings.TrimSpace(flat[last:]); s != "" {
		out = append(out, s)
	}
	return out
}
