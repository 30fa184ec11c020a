package compiler

import (
	"fmt"
	"unicode"
)

// keywords maps source text to its keyword TokenType.
var keywords = map[string]TokenType{
	"var":    VAR,
	"func":   FUNC,
	"int":    INT,
	"byte":   BYTE,
	"bool":   BOOL,
	"if":     IF,
	"else":   ELSE,
	"while":  WHILE,
	"return": RETURN,
	"true":   TRUE,
	"false":  FALSE,
}

// Lexer holds all mutable state for a single scanning pass over src.
// Tokens are produced on demand by Next; the sequence ends with EOF and can
// be restarted with Reset.
type Lexer struct {
	src  []rune
	pos  int // index of the next rune to consume
	line int // current 1-based source line
	col  int // 1-based column of the next rune
}

func NewLexer(src string) *Lexer {
	return &Lexer{src: []rune(src), pos: 0, line: 1, col: 1}
}

// Reset rewinds the lexer to the start of its source.
func (l *Lexer) Reset() {
	l.pos, l.line, l.col = 0, 1, 1
}

// peek returns the rune at the current position without advancing.
func (l *Lexer) peek() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

// peek2 returns the rune one position ahead of the current position.
func (l *Lexer) peek2() rune {
	if l.pos+1 >= len(l.src) {
		return 0
	}
	return l.src[l.pos+1]
}

// advance consumes one rune and returns it.
func (l *Lexer) advance() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	r := l.src[l.pos]
	l.pos++
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.src) && unicode.IsSpace(l.peek()) {
		l.advance()
	}
}

// skipLineComment discards everything from the current position to end-of-line.
// The opening "//" must already have been consumed.
func (l *Lexer) skipLineComment() {
	for l.pos < len(l.src) && l.peek() != '\n' {
		l.advance()
	}
}

// skipBlockComment discards everything up to and including the closing "*/".
// The opening "/*" must already have been consumed.
func (l *Lexer) skipBlockComment() bool {
	for l.pos < len(l.src) {
		if l.peek() == '*' && l.peek2() == '/' {
			l.advance() // *
			l.advance() // /
			return true
		}
		l.advance()
	}
	return false
}

// scanIdent collects a full identifier or keyword token.
// The first character (letter or '_') must still be at l.peek().
func (l *Lexer) scanIdent(line, col int) Token {
	start := l.pos
	for l.pos < len(l.src) {
		r := l.peek()
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			break
		}
		l.advance()
	}
	lexeme := string(l.src[start:l.pos])
	tt := IDENTIFIER
	if kw, ok := keywords[lexeme]; ok {
		tt = kw
	}
	return Token{Type: tt, Lexeme: lexeme, Line: line, Column: col}
}

// scanInt collects a decimal or hex integer literal.
// The first digit must still be at l.peek().
func (l *Lexer) scanInt(line, col int) Token {
	start := l.pos

	if l.peek() == '0' && (l.peek2() == 'x' || l.peek2() == 'X') {
		l.advance() // consume '0'
		l.advance() // consume 'x'
		for l.pos < len(l.src) {
			r := l.peek()
			if unicode.IsDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F') {
				l.advance()
			} else {
				break
			}
		}
	} else {
		for l.pos < len(l.src) && unicode.IsDigit(l.peek()) {
			l.advance()
		}
	}

	return Token{Type: INTEGER, Lexeme: string(l.src[start:l.pos]), Line: line, Column: col}
}

// scanChar collects a character literal 'c'. Malformed literals come back
// as ILLEGAL tokens holding the text consumed so far.
func (l *Lexer) scanChar(line, col int) Token {
	start := l.pos
	l.advance() // consume opening '

	illegal := func() Token {
		return Token{Type: ILLEGAL, Lexeme: string(l.src[start:l.pos]), Line: line, Column: col}
	}

	r := l.peek()
	var val rune
	switch {
	case r == '\'':
		l.advance() // empty literal ''
		return illegal()
	case r == '\n' || l.pos >= len(l.src):
		return illegal()
	case r == '\\':
		l.advance() // consume backslash
		switch l.peek() {
		case 'n':
			val = '\n'
		case 't':
			val = '\t'
		case '0':
			val = 0
		case '\\':
			val = '\\'
		case '\'':
			val = '\''
		default:
			if l.peek() != '\n' && l.pos < len(l.src) {
				l.advance()
			}
			return illegal()
		}
		l.advance()
	case r > 0xFF:
		// Character literals are bytes.
		l.advance()
		if l.peek() == '\'' {
			l.advance()
		}
		return illegal()
	default:
		val = r
		l.advance()
	}

	if l.peek() != '\'' {
		return illegal()
	}
	l.advance() // consume closing '

	return Token{Type: CHARACTER, Lexeme: fmt.Sprintf("%d", val), Line: line, Column: col}
}

// Next skips whitespace/comments and returns the next Token. Once the input
// is exhausted every call returns EOF.
func (l *Lexer) Next() Token {
	for {
		l.skipWhitespace()
		if l.pos >= len(l.src) {
			return Token{Type: EOF, Lexeme: "", Line: l.line, Column: l.col}
		}
		if l.peek() == '/' && l.peek2() == '/' {
			l.advance()
			l.advance()
			l.skipLineComment()
			continue
		}
		if l.peek() == '/' && l.peek2() == '*' {
			line, col := l.line, l.col
			l.advance()
			l.advance()
			if !l.skipBlockComment() {
				return Token{Type: ILLEGAL, Lexeme: "/*", Line: line, Column: col}
			}
			continue
		}
		break
	}

	ch := l.peek()
	line, col := l.line, l.col
	tok := func(tt TokenType, lexeme string) Token {
		return Token{Type: tt, Lexeme: lexeme, Line: line, Column: col}
	}

	if unicode.IsLetter(ch) || ch == '_' {
		return l.scanIdent(line, col)
	}
	if unicode.IsDigit(ch) {
		return l.scanInt(line, col)
	}
	if ch == '\'' {
		return l.scanChar(line, col)
	}

	l.advance() // consume the character before the switch
	switch ch {
	case '{':
		return tok(LBRACE, "{")
	case '}':
		return tok(RBRACE, "}")
	case '(':
		return tok(LPAREN, "(")
	case ')':
		return tok(RPAREN, ")")
	case ';':
		return tok(SEMICOLON, ";")
	case ',':
		return tok(COMMA, ",")
	case ':':
		return tok(COLON, ":")
	case '+':
		return tok(PLUS, "+")
	case '-':
		return tok(MINUS, "-")
	case '*':
		return tok(STAR, "*")
	case '/':
		return tok(SLASH, "/")
	case '%':
		return tok(PERCENT, "%")
	case '^':
		return tok(CARET, "^")
	case '&':
		if l.peek() == '&' {
			l.advance()
			return tok(AND_LOGICAL, "&&")
		}
		return tok(AND, "&")
	case '|':
		if l.peek() == '|' {
			l.advance()
			return tok(OR_LOGICAL, "||")
		}
		return tok(PIPE, "|")
	case '!':
		if l.peek() == '=' {
			l.advance()
			return tok(NOT_EQ, "!=")
		}
		return tok(NOT, "!")
	case '<':
		if l.peek() == '=' {
			l.advance()
			return tok(LESS_EQ, "<=")
		}
		if l.peek() == '<' {
			l.advance()
			return tok(SHL_OP, "<<")
		}
		return tok(LESS, "<")
	case '>':
		if l.peek() == '=' {
			l.advance()
			return tok(GREATER_EQ, ">=")
		}
		if l.peek() == '>' {
			l.advance()
			return tok(SHR_OP, ">>")
		}
		return tok(GREATER, ">")
	case '=':
		if l.peek() == '=' { // lookahead: distinguish = vs ==
			l.advance()
			return tok(EQUALS, "==")
		}
		return tok(ASSIGN, "=")
	default:
		return tok(ILLEGAL, string(ch))
	}
}

// Lex tokenises src and returns all tokens including the final EOF token.
func Lex(src string) []Token {
	l := NewLexer(src)
	var tokens []Token
	for {
		tok := l.Next()
		tokens = append(tokens, tok)
		if tok.Type == EOF {
			return tokens
		}
	}
}
