package query

// Lexer tokenizes query strings
type Lexer struct {
	input   string
	pos     int  // current position
	readPos int  // next read position
	ch      byte // current character
}

// NewLexer creates a new lexer for the given input
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()
	return l
}

// readChar advances to the next character
func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
}

// NextToken returns the next token from the input
func (l *Lexer) NextToken() Token {
	var tok Token

	l.skipWhitespace()

	tok.Pos = l.pos

	switch l.ch {
	case '=':
		tok = Token{Type: TokenEqual, Literal: string(l.ch), Pos: l.pos}
	case '|':
		tok = Token{Type: TokenPipe, Literal: string(l.ch), Pos: l.pos}
	case '*':
		tok = Token{Type: TokenStar, Literal: string(l.ch), Pos: l.pos}
	case '"':
		tok.Type = TokenString
		tok.Literal = l.readString()
		if l.ch != '"' {
			tok.Type = TokenIllegal
		}
	case '/':
		tok.Type = TokenRegex
		tok.Literal = l.readRegex()
		if l.ch != '/' {
			tok.Type = TokenIllegal
		}
	case 0:
		tok = Token{Type: TokenEOF, Literal: "", Pos: l.pos}
	default:
		tok.Literal = l.readWord()
		tok.Type = TokenWord
		return tok
	}

	l.readChar()
	return tok
}

// skipWhitespace skips whitespace between clauses
func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		l.readChar()
	}
}

// readWord reads a bare term or field name, up to whitespace or a
// structural character
func (l *Lexer) readWord() string {
	pos := l.pos
	for l.ch != 0 && l.ch != ' ' && l.ch != '\t' && l.ch != '\n' && l.ch != '\r' &&
		l.ch != '=' && l.ch != '|' {
		l.readChar()
	}
	return l.input[pos:l.pos]
}

// readString reads a double-quoted literal, handling escape sequences
func (l *Lexer) readString() string {
	var out []byte
	for {
		l.readChar()
		if l.ch == '"' || l.ch == 0 {
			break
		}
		if l.ch == '\\' {
			l.readChar()
			if l.ch == 0 {
				break
			}
		}
		out = append(out, l.ch)
	}
	return string(out)
}

// readRegex reads a slash-delimited pattern; backslash escapes a slash
func (l *Lexer) readRegex() string {
	var out []byte
	for {
		l.readChar()
		if l.ch == '/' || l.ch == 0 {
			break
		}
		if l.ch == '\\' && l.peekChar() == '/' {
			l.readChar()
		}
		out = append(out, l.ch)
	}
	return string(out)
}

// peekChar looks at the next character without advancing
func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}
