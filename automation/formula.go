package automation

import (
	"fmt"
	"strconv"
	"strings"
)

// FormulaError is returned when a CUSTOM payout formula cannot be evaluated.
// It is the only error class this package raises during evaluation: a bad
// formula silently producing 0 would mask an authoring bug with financial
// consequences, so it must surface to the caller.
type FormulaError struct {
	Formula string
	Pos     int
	Reason  string
}

func (e *FormulaError) Error() string {
	return fmt.Sprintf("invalid payout formula at position %d: %s", e.Pos, e.Reason)
}

// EvalFormula evaluates a substituted payout formula as plain arithmetic.
// The accepted grammar is digits, decimal points, + - * /, parentheses and
// whitespace. Anything else is rejected before parsing begins; custom
// formulas are user-authored, so the evaluator is a small recursive-descent
// parser rather than a general-purpose expression engine.
func EvalFormula(formula string) (float64, error) {
	for i, r := range formula {
		if !isAllowedRune(r) {
			return 0, &FormulaError{Formula: formula, Pos: i, Reason: fmt.Sprintf("character %q is not allowed", r)}
		}
	}

	p := &formulaParser{src: formula}
	p.skipSpace()
	if p.eof() {
		return 0, &FormulaError{Formula: formula, Pos: p.pos, Reason: "empty formula"}
	}

	val, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if !p.eof() {
		return 0, &FormulaError{Formula: formula, Pos: p.pos, Reason: fmt.Sprintf("unexpected %q", p.src[p.pos])}
	}
	return val, nil
}

func isAllowedRune(r rune) bool {
	switch {
	case r >= '0' && r <= '9':
		return true
	case r == '+' || r == '-' || r == '*' || r == '/':
		return true
	case r == '(' || r == ')' || r == '.':
		return true
	case r == ' ' || r == '\t' || r == '\n' || r == '\r':
		return true
	}
	return false
}

// formulaParser is a recursive-descent parser with the usual precedence:
// expr handles + and -, term handles * and /, factor handles numbers,
// parentheses and unary sign.
type formulaParser struct {
	src string
	pos int
}

func (p *formulaParser) eof() bool { return p.pos >= len(p.src) }

func (p *formulaParser) peek() byte { return p.src[p.pos] }

func (p *formulaParser) skipSpace() {
	for !p.eof() {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *formulaParser) errorf(format string, args ...any) error {
	return &FormulaError{Formula: p.src, Pos: p.pos, Reason: fmt.Sprintf(format, args...)}
}

func (p *formulaParser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		if p.eof() {
			return left, nil
		}
		switch p.peek() {
		case '+':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left += right
		case '-':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left -= right
		default:
			return left, nil
		}
	}
}

func (p *formulaParser) parseTerm() (float64, error) {
	left, err := p.parseFactor()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		if p.eof() {
			return left, nil
		}
		switch p.peek() {
		case '*':
			p.pos++
			right, err := p.parseFactor()
			if err != nil {
				return 0, err
			}
			left *= right
		case '/':
			p.pos++
			right, err := p.parseFactor()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, p.errorf("division by zero")
			}
			left /= right
		default:
			return left, nil
		}
	}
}

func (p *formulaParser) parseFactor() (float64, error) {
	p.skipSpace()
	if p.eof() {
		return 0, p.errorf("unexpected end of formula")
	}

	switch p.peek() {
	case '+':
		p.pos++
		return p.parseFactor()
	case '-':
		p.pos++
		val, err := p.parseFactor()
		if err != nil {
			return 0, err
		}
		return -val, nil
	case '(':
		p.pos++
		val, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		p.skipSpace()
		if p.eof() || p.peek() != ')' {
			return 0, p.errorf("missing closing parenthesis")
		}
		p.pos++
		return val, nil
	}
	return p.parseNumber()
}

func (p *formulaParser) parseNumber() (float64, error) {
	start := p.pos
	seenDot := false
	for !p.eof() {
		c := p.peek()
		if c >= '0' && c <= '9' {
			p.pos++
			continue
		}
		if c == '.' {
			if seenDot {
				return 0, p.errorf("malformed number")
			}
			seenDot = true
			p.pos++
			continue
		}
		break
	}
	lit := p.src[start:p.pos]
	if lit == "" || lit == "." {
		p.pos = start
		return 0, p.errorf("expected a number")
	}
	val, err := strconv.ParseFloat(strings.TrimSuffix(lit, "."), 64)
	if err != nil {
		return 0, &FormulaError{Formula: p.src, Pos: start, Reason: "malformed number"}
	}
	return val, nil
}
