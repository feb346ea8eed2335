package rule

// Tokenize splits src into tokens. Whitespace is discarded and the returned
// slice always ends with a TokenEOF.
//
// Words are read with maximal munch over [A-Za-z_:] and then classified, so
// an event named "sleep" is never split into a time unit and a remainder.
// Keywords are case-sensitive. A run of exactly four digits is a clock value;
// any other run of digits is a number.
func Tokenize(src string) ([]Token, error) {
	var toks []Token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case isSpace(c):
			i++
		case c == '(':
			toks = append(toks, Token{Kind: TokenLParen, Text: "(", Pos: i})
			i++
		case c == ')':
			toks = append(toks, Token{Kind: TokenRParen, Text: ")", Pos: i})
			i++
		case c == ',':
			toks = append(toks, Token{Kind: TokenComma, Text: ",", Pos: i})
			i++
		case isDigit(c):
			j := i
			for j < len(src) && isDigit(src[j]) {
				j++
			}
			kind := TokenNumber
			if j-i == 4 {
				kind = TokenClockValue
			}
			toks = append(toks, Token{Kind: kind, Text: src[i:j], Pos: i})
			i = j
		case isWordByte(c):
			j := i
			for j < len(src) && isWordByte(src[j]) {
				j++
			}
			word := src[i:j]
			kind, ok := keywords[word]
			if !ok {
				kind = TokenEventName
			}
			toks = append(toks, Token{Kind: kind, Text: word, Pos: i})
			i = j
		default:
			return nil, &LexError{Pos: i, Char: c}
		}
	}
	toks = append(toks, Token{Kind: TokenEOF, Pos: len(src)})
	return toks, nil
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isWordByte(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_' || c == ':'
}
