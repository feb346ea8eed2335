package rule

import (
	"errors"
	"testing"
)

func kinds(toks []Token) []TokenKind {
	out := make([]TokenKind, len(toks))
	for i, t := range toks {
		out[i] = t.Kind
	}
	return out
}

func TestTokenize_ContractWithCountsAndWindows(t *testing.T) {
	toks, err := Tokenize("gaming:league_of_legends AFTER 2x exercise WITHIN 1h AND laundry:loaded WITHIN 30m")
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}

	want := []TokenKind{
		TokenEventName, TokenAfter,
		TokenNumber, TokenMultiplier, TokenEventName, TokenWithin, TokenNumber, TokenTimeUnit,
		TokenLogicalOp,
		TokenEventName, TokenWithin, TokenNumber, TokenTimeUnit,
		TokenEOF,
	}
	got := kinds(toks)
	if len(got) != len(want) {
		t.Fatalf("expected %d tokens, got %d: %v", len(want), len(got), toks)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d: expected %s, got %s", i, want[i], toks[i])
		}
	}
	if toks[0].Text != "gaming:league_of_legends" {
		t.Fatalf("unexpected event text %q", toks[0].Text)
	}
}

func TestTokenize_WordsAreNotSplitOnUnitLetters(t *testing.T) {
	toks, err := Tokenize("sleep SINCE meditation")
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}
	if toks[0].Kind != TokenEventName || toks[0].Text != "sleep" {
		t.Fatalf("expected event 'sleep', got %s", toks[0])
	}
	if toks[1].Kind != TokenSince {
		t.Fatalf("expected SINCE, got %s", toks[1])
	}
	if toks[2].Kind != TokenEventName || toks[2].Text != "meditation" {
		t.Fatalf("expected event 'meditation', got %s", toks[2])
	}
}

func TestTokenize_ClockValueVersusNumber(t *testing.T) {
	toks, err := Tokenize("CLOCK(2200) BETWEEN CLOCK(0600) 12 123 12345")
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}
	want := []TokenKind{
		TokenClock, TokenLParen, TokenClockValue, TokenRParen,
		TokenBetween, TokenClock, TokenLParen, TokenClockValue, TokenRParen,
		TokenNumber, TokenNumber, TokenNumber, TokenEOF,
	}
	got := kinds(toks)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d: expected %s, got %s", i, want[i], toks[i])
		}
	}
}

func TestTokenize_PositionsAndWhitespace(t *testing.T) {
	toks, err := Tokenize("  a\tAND\n b ")
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}
	if toks[0].Pos != 2 || toks[1].Pos != 4 || toks[2].Pos != 9 {
		t.Fatalf("unexpected positions: %v", toks)
	}
	if last := toks[len(toks)-1]; last.Kind != TokenEOF || last.Pos != 11 {
		t.Fatalf("expected EOF at 11, got %+v", last)
	}
}

func TestTokenize_KeywordsAreCaseSensitive(t *testing.T) {
	toks, err := Tokenize("and")
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}
	if toks[0].Kind != TokenEventName {
		t.Fatalf("expected lowercase 'and' to be an event name, got %s", toks[0])
	}
}

func TestTokenize_UnknownCharacter(t *testing.T) {
	_, err := Tokenize("exercise WITHIN 1h & gaming")
	if err == nil {
		t.Fatalf("expected lex error")
	}
	var lexErr *LexError
	if !errors.As(err, &lexErr) {
		t.Fatalf("expected *LexError, got %T", err)
	}
	if lexErr.Pos != 19 || lexErr.Char != '&' {
		t.Fatalf("unexpected lex error: %+v", lexErr)
	}
	if !errors.Is(err, ErrSyntax) {
		t.Fatalf("expected error to wrap ErrSyntax")
	}
}
