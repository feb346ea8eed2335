package rule

import "fmt"

// TokenKind classifies a lexeme of the rule language.
type TokenKind int

const (
	TokenEOF TokenKind = iota
	TokenNot
	TokenWithin
	TokenSince
	TokenTimeUnit
	TokenClockValue
	TokenNumber
	TokenMultiplier
	TokenLogicalOp
	// TokenAfter is both the contract-level trigger separator and the clock
	// suffix. Which one it is depends on where the parser meets it.
	TokenAfter
	TokenBefore
	TokenClock
	TokenBetween
	TokenLParen
	TokenRParen
	TokenComma
	TokenEventName
)

var tokenNames = map[TokenKind]string{
	TokenEOF:        "end of input",
	TokenNot:        "NOT",
	TokenWithin:     "WITHIN",
	TokenSince:      "SINCE",
	TokenTimeUnit:   "time unit",
	TokenClockValue: "clock value",
	TokenNumber:     "number",
	TokenMultiplier: "'x'",
	TokenLogicalOp:  "AND/OR",
	TokenAfter:      "AFTER",
	TokenBefore:     "BEFORE",
	TokenClock:      "CLOCK",
	TokenBetween:    "BETWEEN",
	TokenLParen:     "'('",
	TokenRParen:     "')'",
	TokenComma:      "','",
	TokenEventName:  "event name",
}

func (k TokenKind) String() string {
	if s, ok := tokenNames[k]; ok {
		return s
	}
	return fmt.Sprintf("TokenKind(%d)", int(k))
}

// Token is a single lexeme. Pos is the byte offset of its first character.
type Token struct {
	Kind TokenKind
	Text string
	Pos  int
}

func (t Token) String() string {
	if t.Kind == TokenEOF {
		return t.Kind.String()
	}
	return fmt.Sprintf("%s %q", t.Kind, t.Text)
}

var keywords = map[string]TokenKind{
	"NOT":     TokenNot,
	"WITHIN":  TokenWithin,
	"SINCE":   TokenSince,
	"AND":     TokenLogicalOp,
	"OR":      TokenLogicalOp,
	"AFTER":   TokenAfter,
	"BEFORE":  TokenBefore,
	"CLOCK":   TokenClock,
	"BETWEEN": TokenBetween,
	"x":       TokenMultiplier,
	"s":       TokenTimeUnit,
	"m":       TokenTimeUnit,
	"h":       TokenTimeUnit,
}
