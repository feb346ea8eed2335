package rule

import (
	"errors"
	"fmt"
)

var (
	// ErrSyntax is wrapped by every lexing and parsing failure.
	ErrSyntax = errors.New("rule: syntax error")

	// ErrInvalidCondition is returned by Validate and Compile for condition
	// trees that break the structural invariants.
	ErrInvalidCondition = errors.New("rule: invalid condition")
)

// LexError reports a byte that no token pattern matches.
type LexError struct {
	Pos  int
	Char byte
}

func (e *LexError) Error() string {
	return fmt.Sprintf("rule: unexpected character %q at position %d", e.Char, e.Pos)
}

func (e *LexError) Unwrap() error { return ErrSyntax }

// ParseError reports an unexpected or missing token, or a token whose value
// is out of range (Msg).
type ParseError struct {
	Pos      int
	Found    Token
	Expected string
	Msg      string
}

func (e *ParseError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("rule: %s at position %d", e.Msg, e.Pos)
	}
	if e.Expected == "" {
		return fmt.Sprintf("rule: unexpected %s at position %d", e.Found, e.Pos)
	}
	return fmt.Sprintf("rule: expected %s at position %d, got %s", e.Expected, e.Pos, e.Found)
}

func (e *ParseError) Unwrap() error { return ErrSyntax }
