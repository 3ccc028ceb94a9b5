package automation

import (
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

// EvaluateCondition evaluates a single condition against a record and
// returns the match outcome together with the resolved field value for
// diagnostics. Malformed input (unknown operator, invalid regex, IN with a
// non-list value) degrades to Met=false; the evaluator never returns an
// error and never panics.
func EvaluateCondition(cond Condition, record Record) ConditionResult {
	actual, _ := Resolve(record, cond.Field)

	result := ConditionResult{
		Field:    cond.Field,
		Operator: cond.Operator,
		Value:    cond.Value,
		Actual:   actual,
	}
	result.Met = compare(cond.Operator, actual, cond.Value)
	return result
}

// compare applies the operator to the resolved field value and the
// condition's literal. Function-based dispatch over a closed operator set;
// unknown operators compare as false.
func compare(op Operator, actual, expected any) bool {
	switch op {
	case OpEquals:
		return looseEqual(actual, expected)
	case OpNotEquals:
		return !looseEqual(actual, expected)
	case OpGreaterThan:
		return compareNumeric(actual, expected) == cmpGreater
	case OpLessThan:
		return compareNumeric(actual, expected) == cmpLess
	case OpGreaterThanOrEqual:
		c := compareNumeric(actual, expected)
		return c == cmpGreater || c == cmpEqual
	case OpLessThanOrEqual:
		c := compareNumeric(actual, expected)
		return c == cmpLess || c == cmpEqual
	case OpContains:
		return strings.Contains(stringify(actual), stringify(expected))
	case OpNotContains:
		return !strings.Contains(stringify(actual), stringify(expected))
	case OpIn:
		return memberOf(actual, expected)
	case OpNotIn:
		// Fail-closed: a non-list value makes both IN and NOT_IN false
		// rather than letting NOT_IN match everything.
		list, ok := toSlice(expected)
		if !ok {
			return false
		}
		return !memberOfList(actual, list)
	case OpRegex:
		re, err := regexp.Compile(stringify(expected))
		if err != nil {
			return false
		}
		return re.MatchString(stringify(actual))
	case OpIsEmpty:
		return isEmpty(actual)
	case OpIsNotEmpty:
		return !isEmpty(actual)
	case OpBetween:
		return between(actual, expected)
	default:
		return false
	}
}

// looseEqual is strict about types except across numeric kinds, where an
// int 100 and a float64 100 compare equal. Records round-trip through JSON
// so the same logical number can surface as either kind. Strings are never
// coerced: 150 and "150" are distinct values under EQUALS and IN; parsing
// numeric strings belongs to the ordering operators only.
func looseEqual(a, b any) bool {
	if na, aOK := numericValue(a); aOK {
		if nb, bOK := numericValue(b); bOK {
			return na == nb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// numericValue converts actual numeric kinds to float64, excluding strings.
func numericValue(v any) (float64, bool) {
	if _, isString := v.(string); isString {
		return 0, false
	}
	return toNumber(v)
}

const (
	cmpLess = iota - 1
	cmpEqual
	cmpGreater
	cmpIncomparable
)

// compareNumeric is a three-way comparison over values coerced to float64.
// Either side failing coercion yields cmpIncomparable, which makes every
// ordering operator false (the NaN-comparison rule).
func compareNumeric(a, b any) int {
	na, aOK := toNumber(a)
	nb, bOK := toNumber(b)
	if !aOK || !bOK {
		return cmpIncomparable
	}
	switch {
	case na < nb:
		return cmpLess
	case na > nb:
		return cmpGreater
	default:
		return cmpEqual
	}
}

// toNumber coerces a value to float64. Numeric kinds convert directly;
// strings parse when they hold a valid number. Everything else, including
// nil, fails coercion.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// toSlice normalizes the condition literal of IN/NOT_IN/BETWEEN to []any.
// JSON-decoded values arrive as []any already; reflection covers typed
// slices built in code.
func toSlice(v any) ([]any, bool) {
	if list, ok := v.([]any); ok {
		return list, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func memberOf(value, set any) bool {
	list, ok := toSlice(set)
	if !ok {
		return false
	}
	return memberOfList(value, list)
}

func memberOfList(value any, list []any) bool {
	for _, elem := range list {
		if looseEqual(value, elem) {
			return true
		}
	}
	return false
}

// isEmpty treats nil, the empty string, false and numeric zero as empty,
// mirroring the truthiness semantics historical rules were authored
// against.
func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	default:
		if n, ok := toNumber(v); ok {
			return n == 0
		}
		return false
	}
}

// between checks an inclusive [min, max] range. The literal must be a
// two-element list of numbers and the field value must coerce to a number.
func between(actual, bounds any) bool {
	list, ok := toSlice(bounds)
	if !ok || len(list) != 2 {
		return false
	}
	val, vOK := toNumber(actual)
	min, minOK := toNumber(list[0])
	max, maxOK := toNumber(list[1])
	if !vOK || !minOK || !maxOK {
		return false
	}
	return val >= min && val <= max
}
