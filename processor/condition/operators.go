package condition

import (
	"math"
	"regexp"
	"strings"
)

// Operator represents a comparison operator.
type Operator string

const (
	OpEq       Operator = "=="
	OpNeq      Operator = "!="
	OpGt       Operator = ">"
	OpGte      Operator = ">="
	OpLt       Operator = "<"
	OpLte      Operator = "<="
	OpContains Operator = "contains"
	OpMatches  Operator = "matches"
)

func (op Operator) valid() bool {
	switch op {
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpContains, OpMatches:
		return true
	}
	return false
}

// toFloat64 coerces a resolved operand to float64. Booleans coerce so that
// numeric comparison against 0/1 behaves.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// compare applies a binary comparison operator to two resolved operands.
// Incomparable operand types yield Unknown, not an error: a malformed
// comparison must never fail the scan.
func compare(op Operator, left, right any) Verdict {
	switch op {
	case OpEq:
		return equal(left, right)
	case OpNeq:
		return equal(left, right).negate()
	case OpGt, OpGte, OpLt, OpLte:
		return numericCompare(op, left, right)
	case OpContains:
		return containsOp(left, right)
	case OpMatches:
		return matchesOp(left, right)
	default:
		return VerdictUnknown
	}
}

// equal compares by numeric value where both sides coerce, with an epsilon
// for float noise, falling back to exact string or bool comparison.
func equal(left, right any) Verdict {
	lf, lok := toFloat64(left)
	rf, rok := toFloat64(right)
	if lok && rok {
		return verdictOf(math.Abs(lf-rf) < 1e-9)
	}
	if ls, ok := left.(string); ok {
		if rs, ok := right.(string); ok {
			return verdictOf(ls == rs)
		}
	}
	return VerdictUnknown
}

func numericCompare(op Operator, left, right any) Verdict {
	lf, lok := toFloat64(left)
	rf, rok := toFloat64(right)
	if !lok || !rok {
		return VerdictUnknown
	}
	switch op {
	case OpGt:
		return verdictOf(lf > rf)
	case OpGte:
		return verdictOf(lf >= rf)
	case OpLt:
		return verdictOf(lf < rf)
	case OpLte:
		return verdictOf(lf <= rf)
	}
	return VerdictUnknown
}

// containsOp: string containment for string operands, element containment
// when the left side resolved to a sequence.
func containsOp(left, right any) Verdict {
	if items, ok := left.([]any); ok {
		for _, item := range items {
			if equal(item, right) == VerdictTrue {
				return VerdictTrue
			}
		}
		return VerdictFalse
	}
	ls, ok := left.(string)
	if !ok {
		return VerdictUnknown
	}
	rs, ok := right.(string)
	if !ok {
		return VerdictUnknown
	}
	return verdictOf(strings.Contains(ls, rs))
}

func matchesOp(left, right any) Verdict {
	ls, ok := left.(string)
	if !ok {
		return VerdictUnknown
	}
	pattern, ok := right.(string)
	if !ok {
		return VerdictUnknown
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return VerdictUnknown
	}
	return verdictOf(re.MatchString(ls))
}

func verdictOf(b bool) Verdict {
	if b {
		return VerdictTrue
	}
	return VerdictFalse
}
