package formula

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// evalArithmetic evaluates a plain arithmetic expression over + - * / and
// parentheses using precedence climbing. The grammar is deliberately
// small; anything it cannot parse fails evaluation.
func evalArithmetic(expr string) (float64, error) {
	p := &arithParser{input: expr}
	v, err := p.parseExpr(0)
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos != len(p.input) {
		return 0, fmt.Errorf("%w: unexpected %q", ErrEvaluation, p.input[p.pos:])
	}
	return v, nil
}

type arithParser struct {
	input string
	pos   int
}

var precedence = map[byte]int{'+': 1, '-': 1, '*': 2, '/': 2}

func (p *arithParser) parseExpr(minPrec int) (float64, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		if p.pos >= len(p.input) {
			return left, nil
		}
		op := p.input[p.pos]
		prec, ok := precedence[op]
		if !ok || prec < minPrec {
			return left, nil
		}
		p.pos++
		right, err := p.parseExpr(prec + 1)
		if err != nil {
			return 0, err
		}
		switch op {
		case '+':
			left += right
		case '-':
			left -= right
		case '*':
			left *= right
		case '/':
			if right == 0 {
				return 0, fmt.Errorf("%w: division by zero", ErrEvaluation)
			}
			left /= right
		}
	}
}

func (p *arithParser) parsePrimary() (float64, error) {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return 0, fmt.Errorf("%w: unexpected end of expression", ErrEvaluation)
	}

	switch p.input[p.pos] {
	case '(':
		p.pos++
		v, err := p.parseExpr(0)
		if err != nil {
			return 0, err
		}
		p.skipSpace()
		if p.pos >= len(p.input) || p.input[p.pos] != ')' {
			return 0, fmt.Errorf("%w: missing closing parenthesis", ErrEvaluation)
		}
		p.pos++
		return v, nil
	case '-':
		p.pos++
		v, err := p.parsePrimary()
		if err != nil {
			return 0, err
		}
		return -v, nil
	case '+':
		p.pos++
		return p.parsePrimary()
	}

	start := p.pos
	for p.pos < len(p.input) {
		ch := rune(p.input[p.pos])
		if unicode.IsDigit(ch) || ch == '.' {
			p.pos++
			continue
		}
		break
	}
	if p.pos == start {
		return 0, fmt.Errorf("%w: expected number at %q", ErrEvaluation, p.input[start:])
	}
	v, err := strconv.ParseFloat(p.input[start:p.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad number %q", ErrEvaluation, p.input[start:p.pos])
	}
	return v, nil
}

func (p *arithParser) skipSpace() {
	for p.pos < len(p.input) && strings.ContainsRune(" \t", rune(p.input[p.pos])) {
		p.pos++
	}
}
