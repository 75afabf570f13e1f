package modelio

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jonsalaz/n2a/internal/model"
)

// ParsedEquation is one equation alternative lowered from source text of
// the form "[condition@]expression[;unit][?hint]", with an optional
// combiner prefix on expression ("+=", "*=", "/=", "<<=", ">>=").
type ParsedEquation struct {
	Condition  model.Expr
	Expression model.Expr
	Assignment model.Assignment
	Unit       string
	Hint       string
}

// ParseEquationText parses one equation source string.
func ParseEquationText(text string) (*ParsedEquation, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty equation text")
	}

	var hint string
	if idx := strings.LastIndex(text, "?"); idx >= 0 {
		hint = strings.TrimSpace(text[idx+1:])
		text = strings.TrimSpace(text[:idx])
	}

	var unit string
	if idx := strings.LastIndex(text, ";"); idx >= 0 {
		unit = strings.TrimSpace(text[idx+1:])
		text = strings.TrimSpace(text[:idx])
	}

	var conditionText, exprText string
	if idx := strings.Index(text, "@"); idx >= 0 {
		conditionText = strings.TrimSpace(text[:idx])
		exprText = strings.TrimSpace(text[idx+1:])
	} else {
		exprText = text
	}

	assignment, exprText := stripCombiner(exprText)

	expr, err := ParseExpr(exprText)
	if err != nil {
		return nil, fmt.Errorf("expression %q: %w", exprText, err)
	}

	var condExpr model.Expr
	if conditionText != "" {
		condExpr, err = ParseExpr(conditionText)
		if err != nil {
			return nil, fmt.Errorf("condition %q: %w", conditionText, err)
		}
	}

	return &ParsedEquation{
		Condition:  condExpr,
		Expression: expr,
		Assignment: assignment,
		Unit:       unit,
		Hint:       hint,
	}, nil
}

func stripCombiner(expr string) (model.Assignment, string) {
	switch {
	case strings.HasPrefix(expr, "<<="):
		return model.MIN, strings.TrimSpace(expr[3:])
	case strings.HasPrefix(expr, ">>="):
		return model.MAX, strings.TrimSpace(expr[3:])
	case strings.HasPrefix(expr, "+="):
		return model.ADD, strings.TrimSpace(expr[2:])
	case strings.HasPrefix(expr, "*="):
		return model.MULTIPLY, strings.TrimSpace(expr[2:])
	case strings.HasPrefix(expr, "/="):
		return model.DIVIDE, strings.TrimSpace(expr[2:])
	default:
		return model.REPLACE, expr
	}
}

// ParseExpr parses a single N2A expression into a model.Expr tree using a
// small precedence-climbing parser (||, &&, relational, +-, */, unary,
// power, primary).
func ParseExpr(src string) (model.Expr, error) {
	p := &exprParser{toks: tokenize(src), src: src}
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, fmt.Errorf("unexpected token %q", p.toks[p.pos].text)
	}
	return e, nil
}

type tokKind int

const (
	tokNumber tokKind = iota
	tokIdent
	tokString
	tokOp
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
	tokSemi
)

type token struct {
	kind tokKind
	text string
}

func tokenize(src string) []token {
	var toks []token
	i := 0
	n := len(src)
	for i < n {
		c := src[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case c == '[':
			toks = append(toks, token{tokLBracket, "["})
			i++
		case c == ']':
			toks = append(toks, token{tokRBracket, "]"})
			i++
		case c == ',':
			toks = append(toks, token{tokComma, ","})
			i++
		case c == ';':
			toks = append(toks, token{tokSemi, ";"})
			i++
		case c == '"':
			j := i + 1
			for j < n && src[j] != '"' {
				j++
			}
			toks = append(toks, token{tokString, src[i+1 : j]})
			i = j + 1
		case isDigit(c) || (c == '.' && i+1 < n && isDigit(src[i+1])):
			j := i
			for j < n && (isDigit(src[j]) || src[j] == '.' || src[j] == 'e' || src[j] == 'E') {
				j++
			}
			toks = append(toks, token{tokNumber, src[i:j]})
			i = j
		case isIdentStart(c):
			j := i
			for j < n && (isIdentPart(src[j])) {
				j++
			}
			// allow trailing $-specials like $t'
			for j < n && src[j] == '\'' {
				j++
			}
			toks = append(toks, token{tokIdent, src[i:j]})
			i = j
		default:
			// multi-char operators first
			two := ""
			if i+1 < n {
				two = src[i : i+2]
			}
			switch two {
			case "<=", ">=", "==", "!=", "&&", "||":
				toks = append(toks, token{tokOp, two})
				i += 2
				continue
			}
			toks = append(toks, token{tokOp, string(c)})
			i++
		}
	}
	return toks
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isIdentStart(c byte) bool {
	return c == '$' || c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c) || c == '.'
}

type exprParser struct {
	toks []token
	pos  int
	src  string
}

func (p *exprParser) peek() token {
	if p.pos >= len(p.toks) {
		return token{tokOp, ""}
	}
	return p.toks[p.pos]
}

func (p *exprParser) next() token {
	t := p.peek()
	p.pos++
	return t
}

func (p *exprParser) parseOr() (model.Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOp && p.peek().text == "||" {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &model.BinaryOp{Op: model.OpOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *exprParser) parseAnd() (model.Expr, error) {
	left, err := p.parseRel()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOp && p.peek().text == "&&" {
		p.next()
		right, err := p.parseRel()
		if err != nil {
			return nil, err
		}
		left = &model.BinaryOp{Op: model.OpAnd, Left: left, Right: right}
	}
	return left, nil
}

var relOps = map[string]model.OpKind{
	"==": model.OpEQ, "!=": model.OpNE, ">": model.OpGT,
	">=": model.OpGE, "<": model.OpLT, "<=": model.OpLE,
}

func (p *exprParser) parseRel() (model.Expr, error) {
	left, err := p.parseAdd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOp {
		if op, ok := relOps[p.peek().text]; ok {
			p.next()
			right, err := p.parseAdd()
			if err != nil {
				return nil, err
			}
			left = &model.BinaryOp{Op: op, Left: left, Right: right}
			continue
		}
		break
	}
	return left, nil
}

func (p *exprParser) parseAdd() (model.Expr, error) {
	left, err := p.parseMul()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOp && (p.peek().text == "+" || p.peek().text == "-") {
		op := model.OpAdd
		if p.peek().text == "-" {
			op = model.OpSub
		}
		p.next()
		right, err := p.parseMul()
		if err != nil {
			return nil, err
		}
		left = &model.BinaryOp{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *exprParser) parseMul() (model.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOp && (p.peek().text == "*" || p.peek().text == "/" || p.peek().text == "%") {
		var op model.OpKind
		switch p.peek().text {
		case "*":
			op = model.OpMul
		case "/":
			op = model.OpDiv
		case "%":
			op = model.OpMod
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &model.BinaryOp{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *exprParser) parseUnary() (model.Expr, error) {
	if p.peek().kind == tokOp && p.peek().text == "-" {
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &model.UnaryOp{Op: model.OpNeg, Operand: operand}, nil
	}
	if p.peek().kind == tokOp && p.peek().text == "!" {
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &model.UnaryOp{Op: model.OpNot, Operand: operand}, nil
	}
	return p.parsePow()
}

func (p *exprParser) parsePow() (model.Expr, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if p.peek().kind == tokOp && p.peek().text == "^" {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &model.BinaryOp{Op: model.OpPow, Left: left, Right: right}, nil
	}
	return left, nil
}

func (p *exprParser) parsePrimary() (model.Expr, error) {
	t := p.peek()
	switch t.kind {
	case tokNumber:
		p.next()
		v, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q: %w", t.text, err)
		}
		return &model.Constant{Kind: model.Scalar, Value: v}, nil
	case tokString:
		p.next()
		return &model.Constant{Kind: model.Text, Text: t.text}, nil
	case tokLParen:
		p.next()
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, fmt.Errorf("expected ')'")
		}
		p.next()
		return e, nil
	case tokLBracket:
		return p.parseMatrixLiteral()
	case tokIdent:
		p.next()
		if p.peek().kind == tokLParen {
			return p.parseCall(t.text)
		}
		return &model.AccessVariable{Name: t.text}, nil
	default:
		return nil, fmt.Errorf("unexpected token %q in expression %q", t.text, p.src)
	}
}

func (p *exprParser) parseCall(name string) (model.Expr, error) {
	p.next() // consume '('
	var args []model.Expr
	for p.peek().kind != tokRParen {
		arg, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.peek().kind == tokComma {
			p.next()
			continue
		}
		break
	}
	if p.peek().kind != tokRParen {
		return nil, fmt.Errorf("expected ')' closing call to %s", name)
	}
	p.next()
	fc := &model.FunctionCall{Name: name, Args: args}
	if len(args) > 0 {
		if _, ok := args[0].(*model.Constant); !ok {
			fc.DynamicFileName = isFileFunction(name)
		}
	}
	return fc, nil
}

func isFileFunction(name string) bool {
	switch name {
	case "input", "output", "mfile", "readMatrix":
		return true
	default:
		return false
	}
}

// parseMatrixLiteral parses "[a,b;c,d]"-style literal matrices.
func (p *exprParser) parseMatrixLiteral() (model.Expr, error) {
	p.next() // consume '['
	var rows [][]model.Expr
	row := []model.Expr{}
	for p.peek().kind != tokRBracket {
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		row = append(row, e)
		switch p.peek().kind {
		case tokComma:
			p.next()
		case tokSemi:
			p.next()
			rows = append(rows, row)
			row = []model.Expr{}
		case tokRBracket:
		default:
			return nil, fmt.Errorf("unexpected token %q in matrix literal", p.peek().text)
		}
	}
	if len(row) > 0 || len(rows) == 0 {
		rows = append(rows, row)
	}
	p.next() // consume ']'
	return &model.BuildMatrix{Rows: rows}, nil
}
