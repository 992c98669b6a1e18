package dispatch

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

var placeholderRE = regexp.MustCompile(`\{\{\s*payload\.([A-Za-z0-9_][A-Za-z0-9_.-]*)\s*\}\}`)

// Interpolate replaces {{payload.path}} placeholders with payload values
// looked up by dotted path. A path that cannot be resolved leaves the
// placeholder in place literally.
func Interpolate(s string, payload map[string]any) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	return placeholderRE.ReplaceAllStringFunc(s, func(m string) string {
		path := placeholderRE.FindStringSubmatch(m)[1]
		v, ok := lookupPath(payload, path)
		if !ok {
			return m
		}
		return formatValue(v)
	})
}

// lookupPath descends nested maps segment by segment. A null leaf counts as
// unresolved, same as the validator's treatment of null required fields.
func lookupPath(payload map[string]any, path string) (any, bool) {
	cur := any(payload)
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
