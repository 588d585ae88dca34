package jobs

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// ValidationError carries per-field messages for a rejected submission.
type ValidationError struct {
	Details map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return "invalid request"
	}
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Details[k])
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

type fieldErrors map[string]string

func (f fieldErrors) add(field, format string, args ...any) {
	if _, exists := f[field]; !exists {
		f[field] = fmt.Sprintf(format, args...)
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return &ValidationError{Details: map[string]string(f)}
}

func paramString(params map[string]any, key string) string {
	switch v := params[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	}
	return ""
}

// paramInt returns the integer value of key, whether it was decoded from JSON
// as a number or sent as a numeric string.
func paramInt(params map[string]any, key string) (int, bool, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case int:
		return v, true, nil
	case int64:
		return int(v), true, nil
	case float64:
		if v != float64(int(v)) {
			return 0, true, fmt.Errorf("must be a whole number")
		}
		return int(v), true, nil
	case json.Number:
		n, err := strconv.Atoi(v.String())
		if err != nil {
			return 0, true, fmt.Errorf("must be a whole number")
		}
		return n, true, nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, true, fmt.Errorf("must be a whole number")
		}
		return n, true, nil
	}
	return 0, true, fmt.Errorf("must be a number")
}

// paramStrings returns the string elements of a list parameter. JSON decodes
// arrays as []any, so both shapes are accepted. ok is false when the value is
// present but not a list of strings.
func paramStrings(params map[string]any, key string) (values []string, ok bool) {
	switch v := params[key].(type) {
	case nil:
		return nil, true
	case []string:
		for _, s := range v {
			if s = strings.TrimSpace(s); s != "" {
				values = append(values, s)
			}
		}
		return values, true
	case []any:
		for _, item := range v {
			s, isString := item.(string)
			if !isString {
				return nil, false
			}
			if s = strings.TrimSpace(s); s != "" {
				values = append(values, s)
			}
		}
		return values, true
	}
	return nil, false
}

func paramBool(params map[string]any, key string) bool {
	switch v := params[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

func oneOf(value string, allowed []string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

// isMediaReference accepts http(s) URLs and inline data.
func isMediaReference(v string) bool {
	return strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://") || isInlineData(v)
}

// canonicalParams rewrites camelCase keys ("aspectRatio", "videoURL") to the
// snake_case form used in storage and provider requests. Existing snake_case
// keys win over their camelCase duplicates.
func canonicalParams(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		if snake := toSnake(k); snake != k {
			if _, exists := params[snake]; exists {
				continue
			}
			out[snake] = v
			continue
		}
		out[k] = v
	}
	return out
}

func toSnake(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			prevLower := i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]))
			nextLower := i > 0 && i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1])
			if prevLower || nextLower {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
