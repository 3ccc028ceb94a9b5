package automation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Resolve traverses a record following a dotted path such as
// "user.profile.country". It returns the resolved value and true when every
// segment exists, or (nil, false) when any segment is missing, the traversal
// hits a non-map value, or the path is malformed (empty string, empty
// segment from a leading/trailing/double dot). Resolve never panics.
func Resolve(record Record, path string) (any, bool) {
	if path == "" {
		return nil, false
	}

	segments := strings.Split(path, ".")
	var current any = map[string]any(record)
	for _, seg := range segments {
		if seg == "" {
			return nil, false
		}
		m, ok := current.(map[string]any)
		if !ok {
			// Records arrive both as plain map literals and as nested
			// Record values from callers composing them by hand.
			if r, isRecord := current.(Record); isRecord {
				m = map[string]any(r)
			} else {
				return nil, false
			}
		}
		val, exists := m[seg]
		if !exists {
			return nil, false
		}
		current = val
	}
	return current, true
}

// placeholderPattern matches a single non-greedy {{path}} token. Nested or
// malformed braces are not parsed recursively.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Substitute replaces every {{field.path}} token in template with the string
// form of the value resolved from the record. Tokens whose path does not
// resolve are left verbatim so authors can spot unresolved placeholders in
// delivered output.
func Substitute(template string, record Record) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(token string) string {
		path := placeholderPattern.FindStringSubmatch(token)[1]
		val, ok := Resolve(record, path)
		if !ok {
			return token
		}
		return stringify(val)
	})
}

// stringify renders a resolved value for placeholder output and string
// comparisons. Floats that carry no fractional part print without an
// exponent or trailing zeros, so an order value of 200.0 substitutes as
// "200" rather than "2e+02".
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
