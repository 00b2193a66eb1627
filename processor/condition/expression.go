// Package condition evaluates boolean gate expressions over the latest record
// seen per topic. Expressions reference live state as
// topic("/name").field.path and combine comparisons with AND, OR, NOT, and
// parentheses:
//
//	topic("/cmd_vel").linear.x > 0 AND NOT topic("/estop").engaged == true
//
// Evaluation is three-valued: a reference to a topic that has produced no
// record yet is Unknown, and a record only passes the gate on a definite True.
package condition

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// -----------------------------------------------------------------------
// AST nodes
// -----------------------------------------------------------------------

// Expr is the common interface for all AST nodes.
type Expr interface {
	exprNode()
}

// BinaryExpr represents AND / OR.
type BinaryExpr struct {
	Op    string // "AND" | "OR"
	Left  Expr
	Right Expr
}

func (*BinaryExpr) exprNode() {}

// NotExpr represents NOT <expr>.
type NotExpr struct {
	Expr Expr
}

func (*NotExpr) exprNode() {}

// ComparisonExpr represents <operand> <operator> <operand>.
type ComparisonExpr struct {
	Left  Operand
	Op    Operator
	Right Operand
}

func (*ComparisonExpr) exprNode() {}

// -----------------------------------------------------------------------
// Operands
// -----------------------------------------------------------------------

// Operand is either a literal value or a topic field reference.
type Operand interface {
	operandNode()
}

// LiteralOperand holds a pre-parsed constant.
type LiteralOperand struct {
	Value any
}

func (*LiteralOperand) operandNode() {}

// TopicOperand references a field of the latest record on a topic, like
// topic("/cmd_vel").linear.x. An empty Path refers to the whole record body.
type TopicOperand struct {
	Topic string
	Path  []string
}

func (*TopicOperand) operandNode() {}

// -----------------------------------------------------------------------
// Tokenizer
// -----------------------------------------------------------------------

type tokenKind int

const (
	tokWord   tokenKind = iota // identifier or keyword
	tokOp                      // ==, !=, >=, <=, >, <
	tokString                  // "…" or '…'
	tokNumber                  // 42 | 3.14
	tokBool                    // true | false
	tokRef                     // topic("/name").field.path
	tokLParen
	tokRParen
	tokEOF
)

type token struct {
	kind tokenKind
	val  string
	path string // tokRef only: the dotted field path, possibly empty
}

func tokenize(expr string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(expr) {
		ch := expr[i]
		// Skip whitespace.
		if unicode.IsSpace(rune(ch)) {
			i++
			continue
		}
		// Topic references.
		if strings.HasPrefix(expr[i:], "topic(") {
			ref, next, err := scanTopicRef(expr, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, ref)
			i = next
			continue
		}
		// Parentheses.
		if ch == '(' {
			tokens = append(tokens, token{kind: tokLParen, val: "("})
			i++
			continue
		}
		if ch == ')' {
			tokens = append(tokens, token{kind: tokRParen, val: ")"})
			i++
			continue
		}
		// Operators.
		if ch == '=' || ch == '!' || ch == '<' || ch == '>' {
			if i+1 < len(expr) && expr[i+1] == '=' {
				tokens = append(tokens, token{kind: tokOp, val: expr[i : i+2]})
				i += 2
			} else {
				tokens = append(tokens, token{kind: tokOp, val: string(ch)})
				i++
			}
			continue
		}
		// String literals.
		if ch == '"' || ch == '\'' {
			quote := ch
			j := i + 1
			for j < len(expr) && expr[j] != quote {
				if expr[j] == '\\' {
					j++ // skip escaped char
				}
				j++
			}
			if j >= len(expr) {
				return nil, fmt.Errorf("unterminated string starting at position %d", i)
			}
			inner := expr[i+1 : j]
			inner = strings.ReplaceAll(inner, `\"`, `"`)
			inner = strings.ReplaceAll(inner, `\'`, `'`)
			inner = strings.ReplaceAll(inner, `\\`, `\`)
			tokens = append(tokens, token{kind: tokString, val: inner})
			i = j + 1
			continue
		}
		// Numbers.
		if unicode.IsDigit(rune(ch)) || (ch == '-' && i+1 < len(expr) && unicode.IsDigit(rune(expr[i+1]))) {
			j := i
			if expr[j] == '-' {
				j++
			}
			for j < len(expr) && (unicode.IsDigit(rune(expr[j])) || expr[j] == '.') {
				j++
			}
			tokens = append(tokens, token{kind: tokNumber, val: expr[i:j]})
			i = j
			continue
		}
		// Words: keywords and the contains/matches operators.
		if unicode.IsLetter(rune(ch)) || ch == '_' {
			j := i
			for j < len(expr) && (unicode.IsLetter(rune(expr[j])) || unicode.IsDigit(rune(expr[j])) || expr[j] == '_') {
				j++
			}
			word := expr[i:j]
			switch strings.ToLower(word) {
			case "true", "false":
				tokens = append(tokens, token{kind: tokBool, val: strings.ToLower(word)})
			default:
				tokens = append(tokens, token{kind: tokWord, val: word})
			}
			i = j
			continue
		}
		return nil, fmt.Errorf("unexpected character %q at position %d", ch, i)
	}
	tokens = append(tokens, token{kind: tokEOF})
	return tokens, nil
}

// scanTopicRef consumes topic("<name>") plus an optional trailing .field.path
// starting at position i, which must point at "topic(".
func scanTopicRef(expr string, i int) (token, int, error) {
	j := i + len("topic(")
	if j >= len(expr) || (expr[j] != '"' && expr[j] != '\'') {
		return token{}, 0, fmt.Errorf("topic reference at position %d needs a quoted name", i)
	}
	quote := expr[j]
	j++
	start := j
	for j < len(expr) && expr[j] != quote {
		j++
	}
	if j >= len(expr) {
		return token{}, 0, fmt.Errorf("unterminated topic name at position %d", start)
	}
	name := expr[start:j]
	j++
	if j >= len(expr) || expr[j] != ')' {
		return token{}, 0, fmt.Errorf("topic reference at position %d missing closing parenthesis", i)
	}
	j++
	var path string
	if j < len(expr) && expr[j] == '.' {
		k := j + 1
		for k < len(expr) && (unicode.IsLetter(rune(expr[k])) || unicode.IsDigit(rune(expr[k])) ||
			expr[k] == '_' || expr[k] == '.') {
			k++
		}
		path = expr[j+1 : k]
		if path == "" || strings.HasPrefix(path, ".") || strings.HasSuffix(path, ".") {
			return token{}, 0, fmt.Errorf("malformed field path after topic(%q)", name)
		}
		j = k
	}
	if name == "" {
		return token{}, 0, fmt.Errorf("empty topic name at position %d", i)
	}
	return token{kind: tokRef, val: name, path: path}, j, nil
}

// -----------------------------------------------------------------------
// Recursive-descent parser
// -----------------------------------------------------------------------

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) consume() token {
	t := p.tokens[p.pos]
	p.pos++
	return t
}

func (p *parser) expect(kind tokenKind, val string) error {
	t := p.peek()
	if t.kind != kind || (val != "" && t.val != val) {
		return fmt.Errorf("expected %q but got %q", val, t.val)
	}
	p.consume()
	return nil
}

// parse parses an expression string into an AST.
func parse(expr string) (Expr, error) {
	tokens, err := tokenize(expr)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("unexpected token %q after expression", p.peek().val)
	}
	return node, nil
}

// or_expr = and_expr ( "OR" and_expr )*
func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokWord && strings.ToUpper(p.peek().val) == "OR" {
		p.consume()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "OR", Left: left, Right: right}
	}
	return left, nil
}

// and_expr = not_expr ( "AND" not_expr )*
func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokWord && strings.ToUpper(p.peek().val) == "AND" {
		p.consume()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "AND", Left: left, Right: right}
	}
	return left, nil
}

// not_expr = [ "NOT" ] not_expr | "(" or_expr ")" | comparison
func (p *parser) parseNot() (Expr, error) {
	if p.peek().kind == tokWord && strings.ToUpper(p.peek().val) == "NOT" {
		p.consume()
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &NotExpr{Expr: inner}, nil
	}
	if p.peek().kind == tokLParen {
		p.consume()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokRParen, ")"); err != nil {
			return nil, err
		}
		return inner, nil
	}
	return p.parseComparison()
}

// comparison = operand operator operand
func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	t := p.peek()
	var op Operator
	switch {
	case t.kind == tokOp:
		op = Operator(t.val)
		if !op.valid() {
			return nil, fmt.Errorf("unknown operator %q", t.val)
		}
		p.consume()
	case t.kind == tokWord && strings.ToLower(t.val) == "contains":
		op = OpContains
		p.consume()
	case t.kind == tokWord && strings.ToLower(t.val) == "matches":
		op = OpMatches
		p.consume()
	default:
		return nil, fmt.Errorf("expected comparison operator, got %q", t.val)
	}

	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return &ComparisonExpr{Left: left, Op: op, Right: right}, nil
}

// operand = topic_ref | literal
func (p *parser) parseOperand() (Operand, error) {
	t := p.peek()
	switch t.kind {
	case tokRef:
		p.consume()
		var path []string
		if t.path != "" {
			path = strings.Split(t.path, ".")
		}
		return &TopicOperand{Topic: t.val, Path: path}, nil
	case tokString:
		p.consume()
		return &LiteralOperand{Value: t.val}, nil
	case tokNumber:
		p.consume()
		f, err := strconv.ParseFloat(t.val, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", t.val)
		}
		return &LiteralOperand{Value: f}, nil
	case tokBool:
		p.consume()
		return &LiteralOperand{Value: t.val == "true"}, nil
	default:
		return nil, fmt.Errorf("expected operand, got %q", t.val)
	}
}
