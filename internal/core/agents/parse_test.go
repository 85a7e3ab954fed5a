package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSONBlock(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   string
		wantOK bool
	}{
		{
			name:   "fenced json block",
			text:   "Sure, here it is:\n```json\n{\"a\": 1}\n```\nAnything else?",
			want:   `{"a": 1}`,
			wantOK: true,
		},
		{
			name:   "fenced block without language",
			text:   "```\n{\"b\": [1, 2]}\n```",
			want:   `{"b": [1, 2]}`,
			wantOK: true,
		},
		{
			name:   "first valid fenced block wins",
			text:   "```python\nprint('x')\n```\n```json\n{\"c\": true}\n```",
			want:   `{"c": true}`,
			wantOK: true,
		},
		{
			name:   "balanced object in prose",
			text:   `The result is {"d": {"e": "f"}} as requested.`,
			want:   `{"d": {"e": "f"}}`,
			wantOK: true,
		},
		{
			name:   "braces inside strings are ignored",
			text:   `Output: {"text": "use {curly} braces", "n": 2} done`,
			want:   `{"text": "use {curly} braces", "n": 2}`,
			wantOK: true,
		},
		{
			name:   "escaped quotes inside strings",
			text:   `{"quote": "he said \"hi}\""}`,
			want:   `{"quote": "he said \"hi}\""}`,
			wantOK: true,
		},
		{
			name:   "invalid object skipped for later valid one",
			text:   `{not json} then {"ok": 1}`,
			want:   `{"ok": 1}`,
			wantOK: true,
		},
		{
			name:   "no structure",
			text:   "Just some prose without any data.",
			wantOK: false,
		},
		{
			name:   "unbalanced",
			text:   `{"open": [1, 2`,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSONBlock(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestDecodeReply(t *testing.T) {
	fields, prov, ok := decodeReply("a", "Here:\n```json\n{\"x\": \"y\", \"confidence\": 0.9}\n```", nil)
	assert.True(t, ok)
	assert.Equal(t, "y", fields["x"])
	assert.InDelta(t, 0.9, prov.Confidence, 1e-9)
	assert.False(t, prov.Fallback)

	_, prov, ok = decodeReply("a", "no data here", nil)
	assert.False(t, ok)
	assert.True(t, prov.Fallback)
}

func TestFieldHelpers(t *testing.T) {
	fields := map[string]any{
		"name":      "  Acme  ",
		"count":     float64(3),
		"pct":       "85%",
		"plain":     "0.4",
		"list":      []any{"a", " ", map[string]any{"text": "b"}, float64(1)},
		"single":    "only",
		"flag":      true,
		"flagWord":  "Mandatory",
		"wrongList": float64(7),
		"lone":      "just one",
	}

	assert.Equal(t, "Acme", str(fields, "missing", "name"))
	assert.Equal(t, "3", str(fields, "count"))
	assert.Equal(t, []string{"a", "b"}, strList(fields, "list"))
	assert.Equal(t, []string{"only"}, strList(fields, "single"))
	assert.Nil(t, strList(fields, "missing"))

	n, ok := number(fields, "pct")
	assert.True(t, ok)
	assert.InDelta(t, 0.85, n, 1e-9)
	n, ok = number(fields, "plain")
	assert.True(t, ok)
	assert.InDelta(t, 0.4, n, 1e-9)
	_, ok = number(fields, "name")
	assert.False(t, ok)

	assert.True(t, boolean(fields, "flag"))
	assert.True(t, boolean(fields, "flagWord"))
	assert.False(t, boolean(fields, "missing"))

	ensureLists(fields, "wrongList", "absent", "list", "lone")
	assert.Equal(t, []any{}, fields["wrongList"])
	assert.Equal(t, []any{"just one"}, fields["lone"])
	assert.Equal(t, []any{}, fields["absent"])
	assert.Len(t, fields["list"], 4)

	warnings := warnMissing("a", fields, "name", "summary")
	assert.Equal(t, []string{`missing field "summary"`}, warnings)
}

func TestTextHelpers(t *testing.T) {
	text := "Intro line\n- first item\n* second item\n2. third item\nb) fourth item\nplain"
	assert.Equal(t, []string{"first item", "second item", "third item", "fourth item"}, bulletLines(text))
	assert.Equal(t, "x", stripBullet("  - x"))

	assert.Equal(t, []string{"One.", "Two!", "Three?", "Four"}, sentences("One.  Two!\nThree? Four"))
}
