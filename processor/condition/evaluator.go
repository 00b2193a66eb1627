package condition

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/c360/grepbag/errors"
	"github.com/c360/grepbag/message"
)

// Verdict is the three-valued outcome of a condition: a reference to a topic
// that has not produced a record yet makes the condition Unknown rather than
// false or an error. The scan loop treats anything but VerdictTrue as a
// closed gate.
type Verdict int

const (
	// VerdictUnknown means at least one reference could not be resolved.
	VerdictUnknown Verdict = iota
	// VerdictFalse means the condition definitely does not hold.
	VerdictFalse
	// VerdictTrue means the condition definitely holds.
	VerdictTrue
)

// String returns the string representation of the verdict.
func (v Verdict) String() string {
	switch v {
	case VerdictTrue:
		return "true"
	case VerdictFalse:
		return "false"
	default:
		return "unknown"
	}
}

func (v Verdict) negate() Verdict {
	switch v {
	case VerdictTrue:
		return VerdictFalse
	case VerdictFalse:
		return VerdictTrue
	default:
		return VerdictUnknown
	}
}

func andVerdict(a, b Verdict) Verdict {
	if a == VerdictFalse || b == VerdictFalse {
		return VerdictFalse
	}
	if a == VerdictUnknown || b == VerdictUnknown {
		return VerdictUnknown
	}
	return VerdictTrue
}

func orVerdict(a, b Verdict) Verdict {
	if a == VerdictTrue || b == VerdictTrue {
		return VerdictTrue
	}
	if a == VerdictUnknown || b == VerdictUnknown {
		return VerdictUnknown
	}
	return VerdictFalse
}

// Evaluator holds parsed condition expressions and the per-topic latest
// record cache they read from. The cache is updated by Observe on every
// pulled record regardless of match outcome, so conditions see stream state,
// not just matching records.
//
// Evaluator is not safe for concurrent use; the scan loop owns it.
type Evaluator struct {
	exprs  []Expr
	latest map[string]message.Record
	topics map[string]bool
}

// Parse compiles condition expressions into an Evaluator. Multiple
// expressions AND together. Syntax errors are invalid-classified and abort
// before any record is pulled.
func Parse(exprs []string) (*Evaluator, error) {
	e := &Evaluator{
		latest: make(map[string]message.Record),
		topics: make(map[string]bool),
	}
	for i, src := range exprs {
		node, err := parse(src)
		if err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidCondition, err),
				"ConditionEvaluator", "Parse", fmt.Sprintf("condition %d", i+1))
		}
		if err := validate(node); err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidCondition, err),
				"ConditionEvaluator", "Parse", fmt.Sprintf("condition %d", i+1))
		}
		collectTopics(node, e.topics)
		e.exprs = append(e.exprs, node)
	}
	return e, nil
}

// validate rejects statically detectable problems, notably bad regex
// literals on a matches operator. Runtime resolution failures degrade to
// Unknown instead.
func validate(node Expr) error {
	switch n := node.(type) {
	case *BinaryExpr:
		if err := validate(n.Left); err != nil {
			return err
		}
		return validate(n.Right)
	case *NotExpr:
		return validate(n.Expr)
	case *ComparisonExpr:
		if n.Op != OpMatches {
			return nil
		}
		lit, ok := n.Right.(*LiteralOperand)
		if !ok {
			return nil
		}
		pattern, ok := lit.Value.(string)
		if !ok {
			return fmt.Errorf("matches needs a string pattern, got %T", lit.Value)
		}
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("invalid regex %q: %v", pattern, err)
		}
		return nil
	default:
		return nil
	}
}

func collectTopics(node Expr, topics map[string]bool) {
	switch n := node.(type) {
	case *BinaryExpr:
		collectTopics(n.Left, topics)
		collectTopics(n.Right, topics)
	case *NotExpr:
		collectTopics(n.Expr, topics)
	case *ComparisonExpr:
		for _, operand := range []Operand{n.Left, n.Right} {
			if ref, ok := operand.(*TopicOperand); ok {
				topics[ref.Topic] = true
			}
		}
	}
}

// Empty reports whether any conditions are configured at all.
func (e *Evaluator) Empty() bool {
	return len(e.exprs) == 0
}

// Topics returns the topics the conditions reference, sorted. Callers use it
// to make sure referenced topics are actually read, even when they are not
// searched.
func (e *Evaluator) Topics() []string {
	out := make([]string, 0, len(e.topics))
	for t := range e.topics {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Observe updates the latest-record cache. Called for every pulled record;
// only referenced topics are retained.
func (e *Evaluator) Observe(rec message.Record) {
	if e.topics[rec.Topic] {
		e.latest[rec.Topic] = rec
	}
}

// Eval evaluates all conditions against the current cache. No conditions
// means VerdictTrue: the gate is open.
func (e *Evaluator) Eval() Verdict {
	verdict := VerdictTrue
	for _, node := range e.exprs {
		verdict = andVerdict(verdict, e.evalExpr(node))
		if verdict == VerdictFalse {
			return VerdictFalse
		}
	}
	return verdict
}

func (e *Evaluator) evalExpr(node Expr) Verdict {
	switch n := node.(type) {
	case *BinaryExpr:
		left := e.evalExpr(n.Left)
		right := e.evalExpr(n.Right)
		if n.Op == "AND" {
			return andVerdict(left, right)
		}
		return orVerdict(left, right)
	case *NotExpr:
		return e.evalExpr(n.Expr).negate()
	case *ComparisonExpr:
		left, lok := e.resolve(n.Left)
		right, rok := e.resolve(n.Right)
		if !lok || !rok {
			return VerdictUnknown
		}
		return compare(n.Op, left, right)
	default:
		return VerdictUnknown
	}
}

// resolve turns an operand into a comparable Go value. Topic references
// resolve against the cache; a missing topic or field leaves the operand
// unresolved.
func (e *Evaluator) resolve(operand Operand) (any, bool) {
	switch o := operand.(type) {
	case *LiteralOperand:
		return o.Value, true
	case *TopicOperand:
		rec, ok := e.latest[o.Topic]
		if !ok {
			return nil, false
		}
		v := rec.Data
		for _, seg := range o.Path {
			v, ok = v.FieldByName(seg)
			if !ok {
				return nil, false
			}
		}
		return valueOperand(v)
	default:
		return nil, false
	}
}

// valueOperand converts a record value to the operand domain: scalars map to
// Go scalars, sequences of scalars to []any for contains, anything else is
// unresolved.
func valueOperand(v message.Value) (any, bool) {
	switch v.Kind() {
	case message.KindBool:
		return v.BoolValue(), true
	case message.KindInt:
		return v.IntValue(), true
	case message.KindUint:
		return v.UintValue(), true
	case message.KindFloat:
		return v.FloatValue(), true
	case message.KindString:
		return v.StringValue(), true
	case message.KindList:
		items := make([]any, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			item, ok := valueOperand(v.Index(i))
			if !ok {
				return nil, false
			}
			items = append(items, item)
		}
		return items, true
	default:
		return nil, false
	}
}
