package dispatch

import (
	"encoding/json"
	"strings"

	"dawin/internal/catalog"
)

// Eval reports whether every condition holds against the payload, in order,
// with AND semantics. Evaluation stops at the first failing condition.
func Eval(conds []catalog.Condition, payload map[string]any) bool {
	for _, c := range conds {
		if !evalCondition(c, payload) {
			return false
		}
	}
	return true
}

// evalCondition applies one predicate. Fields are flat payload keys; a null
// value counts as absent. Every operator except exists fails on a missing
// field rather than erroring.
func evalCondition(c catalog.Condition, payload map[string]any) bool {
	v, present := payload[c.Field]
	if v == nil {
		present = false
	}
	if c.Operator == catalog.OpExists {
		want := true
		if b, ok := c.Value.(bool); ok {
			want = b
		}
		return present == want
	}
	if !present {
		return false
	}
	switch c.Operator {
	case catalog.OpEq:
		return equal(v, c.Value)
	case catalog.OpGt:
		cmp, ok := compare(v, c.Value)
		return ok && cmp > 0
	case catalog.OpGte:
		cmp, ok := compare(v, c.Value)
		return ok && cmp >= 0
	case catalog.OpLt:
		cmp, ok := compare(v, c.Value)
		return ok && cmp < 0
	case catalog.OpLte:
		cmp, ok := compare(v, c.Value)
		return ok && cmp <= 0
	case catalog.OpIn:
		items, ok := c.Value.([]any)
		if !ok {
			return false
		}
		for _, item := range items {
			if equal(v, item) {
				return true
			}
		}
		return false
	}
	return false
}

// equal compares scalars: numbers numerically regardless of the concrete Go
// type the decoder produced, strings and bools literally. Composite values
// never compare equal.
func equal(a, b any) bool {
	if na, ok := numeric(a); ok {
		nb, ok := numeric(b)
		return ok && na == nb
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return false
}

// compare orders two values: numerically when both are numbers, lexically
// when both are strings. Anything else does not order.
func compare(a, b any) (int, bool) {
	if na, ok := numeric(a); ok {
		if nb, ok := numeric(b); ok {
			switch {
			case na < nb:
				return -1, true
			case na > nb:
				return 1, true
			}
			return 0, true
		}
		return 0, false
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs), true
	}
	return 0, false
}

// numeric normalizes every numeric type JSON or YAML decoding can produce.
func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
