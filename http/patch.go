// server/http/patch.go
package http

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/ViniZap4/tasks-server/domain"
)

// decodePatch reads a loosely typed update body. completed is coerced by
// truthiness; a falsy title is treated as absent and any other title is
// converted to text. An empty body is an empty patch.
func decodePatch(body []byte) (domain.TaskPatch, error) {
	var patch domain.TaskPatch
	if len(body) == 0 {
		return patch, nil
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return patch, err
	}

	if v, ok := raw["completed"]; ok {
		completed := truthy(v)
		patch.Completed = &completed
	}
	if v, ok := raw["title"]; ok && truthy(v) {
		title := stringify(v)
		patch.Title = &title
	}
	return patch, nil
}

func truthy(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		return v != ""
	default:
		return true
	}
}

func stringify(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []any:
		parts := make([]string, len(v))
		for i, e := range v {
			if e != nil {
				parts[i] = stringify(e)
			}
		}
		return strings.Join(parts, ",")
	default:
		return "[object Object]"
	}
}

// parseID accepts a leading integer and ignores trailing text, so "12abc"
// is 12 and "abc" is invalid.
func parseID(s string) (int, bool) {
	s = strings.TrimLeft(s, " \t\n\r")
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	id, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return id, true
}
