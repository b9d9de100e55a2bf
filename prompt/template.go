package prompt

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Placeholders are {{word}} where word is letters, digits, or underscore.
var placeholderPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Template is a parsed prompt template. Parsing splits the raw text into
// literal and placeholder segments once, so rendering is a single
// left-to-right pass: substituted values are never re-scanned.
type Template struct {
	raw      string
	segments []segment
}

// segment is either a literal run of text or a placeholder key
type segment struct {
	literal bool
	content string
}

// ParseTemplate parses template text. Any text is a valid template;
// placeholders with no matching data key render verbatim.
func ParseTemplate(raw string) *Template {
	t := &Template{raw: raw}

	matches := placeholderPattern.FindAllStringSubmatchIndex(raw, -1)
	if len(matches) == 0 {
		t.segments = []segment{{literal: true, content: raw}}
		return t
	}

	var segments []segment
	lastEnd := 0
	for _, match := range matches {
		start, end := match[0], match[1]
		key := raw[match[2]:match[3]]

		if start > lastEnd {
			segments = append(segments, segment{literal: true, content: raw[lastEnd:start]})
		}
		segments = append(segments, segment{content: key})
		lastEnd = end
	}
	if lastEnd < len(raw) {
		segments = append(segments, segment{literal: true, content: raw[lastEnd:]})
	}

	t.segments = segments
	return t
}

// Render substitutes data values for placeholders. Keys absent from data
// leave their placeholder in place; a nil or empty mapping returns the
// template unchanged.
func (t *Template) Render(data map[string]interface{}) string {
	if len(data) == 0 {
		return t.raw
	}

	var result strings.Builder
	result.Grow(len(t.raw) * 2)

	for _, seg := range t.segments {
		if seg.literal {
			result.WriteString(seg.content)
			continue
		}
		value, ok := data[seg.content]
		if !ok {
			result.WriteString("{{" + seg.content + "}}")
			continue
		}
		result.WriteString(valueToString(value))
	}

	return result.String()
}

// Placeholders returns the distinct placeholder keys in first-appearance order.
func (t *Template) Placeholders() []string {
	seen := make(map[string]bool)
	var keys []string
	for _, seg := range t.segments {
		if seg.literal || seen[seg.content] {
			continue
		}
		seen[seg.content] = true
		keys = append(keys, seg.content)
	}
	return keys
}

// Raw returns the original template string
func (t *Template) Raw() string {
	return t.raw
}

// Render is a convenience for one-shot rendering.
func Render(template string, data map[string]interface{}) string {
	return ParseTemplate(template).Render(data)
}

// valueToString converts a data value to its rendered form. Structured
// values (maps, arrays) render as compact JSON.
func valueToString(v interface{}) string {
	if v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		// JSON numbers decode as float64; render integers without a decimal point
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case json.Number:
		return val.String()
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}
