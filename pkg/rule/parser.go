package rule

import (
	"math"
	"strconv"
)

// Rule is a parsed rule source. Trigger is empty when the source was a bare
// condition without the "<event> AFTER" prefix.
type Rule struct {
	Trigger   string
	Condition Condition
}

// Parse compiles src into a Condition. src may be either a bare condition
// or a full contract of the form "<event> AFTER <condition>", in which case
// the trigger is dropped.
func Parse(src string) (Condition, error) {
	r, err := ParseRule(src)
	if err != nil {
		return nil, err
	}
	return r.Condition, nil
}

// ParseRule compiles src, keeping the trigger event when present.
func ParseRule(src string) (*Rule, error) {
	n, err := ParseAST(src)
	if err != nil {
		return nil, err
	}
	return compileRoot(n)
}

// ParseContract compiles src and requires the "<event> AFTER <condition>"
// form.
func ParseContract(src string) (*Rule, error) {
	toks, err := Tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: toks}
	n, err := p.parseContract()
	if err != nil {
		return nil, err
	}
	if err := p.expectEOF(); err != nil {
		return nil, err
	}
	return compileRoot(n)
}

// ParseAST parses src into its syntax tree. The root is a CONTRACT node when
// src starts with "<event> AFTER", otherwise the condition itself.
func ParseAST(src string) (*Node, error) {
	toks, err := Tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: toks}

	var n *Node
	if p.peek().Kind == TokenEventName && p.peekAt(1).Kind == TokenAfter {
		n, err = p.parseContract()
	} else {
		n, err = p.parseCondition()
	}
	if err != nil {
		return nil, err
	}
	if err := p.expectEOF(); err != nil {
		return nil, err
	}
	return n, nil
}

func compileRoot(n *Node) (*Rule, error) {
	r := &Rule{}
	if n.Kind == NodeContract {
		r.Trigger = n.Children[0].Name
		n = n.Children[1]
	}
	c, err := Compile(n)
	if err != nil {
		return nil, err
	}
	r.Condition = c
	return r, nil
}

// parser is a recursive-descent parser over a token slice that always ends
// in TokenEOF. AND binds tighter than OR; operators of equal precedence are
// left-associative.
type parser struct {
	tokens []Token
	pos    int
}

func (p *parser) peek() Token {
	return p.peekAt(0)
}

func (p *parser) peekAt(off int) Token {
	if i := p.pos + off; i < len(p.tokens) {
		return p.tokens[i]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *parser) next() Token {
	t := p.peek()
	if t.Kind != TokenEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind TokenKind) (Token, error) {
	t := p.peek()
	if t.Kind != kind {
		return t, &ParseError{Pos: t.Pos, Found: t, Expected: kind.String()}
	}
	return p.next(), nil
}

func (p *parser) expectEOF() error {
	if t := p.peek(); t.Kind != TokenEOF {
		return &ParseError{Pos: t.Pos, Found: t}
	}
	return nil
}

func (p *parser) parseContract() (*Node, error) {
	trigger, err := p.parseEvent()
	if err != nil {
		return nil, err
	}
	at, err := p.expect(TokenAfter)
	if err != nil {
		return nil, err
	}
	cond, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	return &Node{Kind: NodeContract, Pos: at.Pos, Children: []*Node{trigger, cond}}, nil
}

func (p *parser) parseCondition() (*Node, error) {
	left, err := p.parseConjunction()
	if err != nil {
		return nil, err
	}
	for t := p.peek(); t.Kind == TokenLogicalOp && t.Text == "OR"; t = p.peek() {
		p.next()
		right, err := p.parseConjunction()
		if err != nil {
			return nil, err
		}
		left = &Node{Kind: NodeOr, Pos: t.Pos, Children: []*Node{left, right}}
	}
	return left, nil
}

func (p *parser) parseConjunction() (*Node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for t := p.peek(); t.Kind == TokenLogicalOp && t.Text == "AND"; t = p.peek() {
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &Node{Kind: NodeAnd, Pos: t.Pos, Children: []*Node{left, right}}
	}
	return left, nil
}

func (p *parser) parseTerm() (*Node, error) {
	t := p.peek()
	switch t.Kind {
	case TokenLParen:
		p.next()
		inner, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return inner, nil
	case TokenNot:
		p.next()
		term, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		return &Node{Kind: NodeNot, Pos: t.Pos, Children: []*Node{term}}, nil
	case TokenClock:
		return p.parseClock()
	case TokenNumber, TokenClockValue, TokenEventName:
		return p.parseTemporal()
	default:
		return nil, &ParseError{Pos: t.Pos, Found: t, Expected: "condition"}
	}
}

func (p *parser) parseEvent() (*Node, error) {
	t, err := p.expect(TokenEventName)
	if err != nil {
		return nil, err
	}
	return &Node{Kind: NodeEvent, Pos: t.Pos, Name: t.Text}, nil
}

func (p *parser) parseTemporal() (*Node, error) {
	start := p.peek()

	var node *Node
	if start.Kind == TokenNumber || start.Kind == TokenClockValue {
		count, err := p.parseInt(math.MaxInt32)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenMultiplier); err != nil {
			return nil, err
		}
		ev, err := p.parseEvent()
		if err != nil {
			return nil, err
		}
		node = &Node{Kind: NodeCountedEvent, Pos: start.Pos, Count: int(count), Children: []*Node{ev}}
	} else {
		ev, err := p.parseEvent()
		if err != nil {
			return nil, err
		}
		node = ev
	}

	switch t := p.peek(); t.Kind {
	case TokenSince:
		if node.Kind == NodeCountedEvent {
			return nil, &ParseError{Pos: t.Pos, Found: t, Msg: "SINCE cannot follow a counted event"}
		}
		p.next()
		since, err := p.parseEvent()
		if err != nil {
			return nil, err
		}
		return &Node{Kind: NodeSince, Pos: t.Pos, Children: []*Node{node, since}}, nil
	case TokenWithin:
		p.next()
		amount, err := p.parseInt(math.MaxInt64 / UnitHours.Millis())
		if err != nil {
			return nil, err
		}
		unitTok, err := p.expect(TokenTimeUnit)
		if err != nil {
			return nil, err
		}
		return &Node{
			Kind:     NodeTemporal,
			Pos:      t.Pos,
			Amount:   amount,
			Unit:     TimeUnit(unitTok.Text),
			Children: []*Node{node},
		}, nil
	}
	return node, nil
}

func (p *parser) parseClock() (*Node, error) {
	start, _ := p.expect(TokenClock)
	t1, err := p.parseClockArg()
	if err != nil {
		return nil, err
	}
	n := &Node{Kind: NodeClock, Pos: start.Pos, ClockOp: ClockAfter, Time1: t1}

	switch p.peek().Kind {
	case TokenAfter:
		p.next()
	case TokenBefore:
		p.next()
		n.ClockOp = ClockBefore
	case TokenBetween:
		p.next()
		if _, err := p.expect(TokenClock); err != nil {
			return nil, err
		}
		t2, err := p.parseClockArg()
		if err != nil {
			return nil, err
		}
		n.ClockOp = ClockBetween
		n.Time2 = t2
	}
	return n, nil
}

func (p *parser) parseClockArg() (HHMM, error) {
	if _, err := p.expect(TokenLParen); err != nil {
		return 0, err
	}
	t, err := p.expect(TokenClockValue)
	if err != nil {
		return 0, err
	}
	v, _ := strconv.Atoi(t.Text)
	hhmm := HHMM(v)
	if !hhmm.Valid() {
		return 0, &ParseError{Pos: t.Pos, Found: t, Msg: "clock value " + t.Text + " is not a valid HHMM time"}
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return 0, err
	}
	return hhmm, nil
}

// parseInt consumes a NUMBER or CLOCK_VALUE token and checks it against max.
func (p *parser) parseInt(max int64) (int64, error) {
	t := p.peek()
	if t.Kind != TokenNumber && t.Kind != TokenClockValue {
		return 0, &ParseError{Pos: t.Pos, Found: t, Expected: TokenNumber.String()}
	}
	v, err := strconv.ParseInt(t.Text, 10, 64)
	if err != nil || v > max {
		return 0, &ParseError{Pos: t.Pos, Found: t, Msg: "number " + t.Text + " is out of range"}
	}
	p.next()
	return v, nil
}
