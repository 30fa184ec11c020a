package compiler

import "fmt"

// TokenType identifies the category of a lexed token.
type TokenType int

const (
	EOF     TokenType = iota // sentinel: end of input
	ILLEGAL                  // lexical error; Lexeme holds the offending text

	// Literals
	IDENTIFIER // variable / function name
	INTEGER    // decimal or hex integer literal
	CHARACTER  // character literal 'c'; Lexeme holds its decimal value

	// Keywords
	VAR    // "var"
	FUNC   // "func"
	INT    // "int"
	BYTE   // "byte"
	BOOL   // "bool"
	IF     // "if"
	ELSE   // "else"
	WHILE  // "while"
	RETURN // "return"
	TRUE   // "true"
	FALSE  // "false"

	// Paired delimiters
	LBRACE // {
	RBRACE // }
	LPAREN // (
	RPAREN // )

	// Punctuation
	SEMICOLON // ;
	COMMA     // ,
	COLON     // :

	// Operators
	PLUS        // +
	MINUS       // -
	STAR        // *
	SLASH       // /
	PERCENT     // %
	AND         // &
	PIPE        // |
	CARET       // ^
	SHL_OP      // <<
	SHR_OP      // >>
	AND_LOGICAL // &&
	OR_LOGICAL  // ||
	NOT         // !

	// Assignment / comparison  (order matters: ASSIGN before EQUALS)
	ASSIGN     // =
	EQUALS     // ==
	NOT_EQ     // !=
	LESS       // <
	GREATER    // >
	LESS_EQ    // <=
	GREATER_EQ // >=
)

// tokenNames is indexed by TokenType.
var tokenNames = [...]string{
	EOF:         "EOF",
	ILLEGAL:     "ILLEGAL",
	IDENTIFIER:  "IDENTIFIER",
	INTEGER:     "INTEGER",
	CHARACTER:   "CHARACTER",
	VAR:         "VAR",
	FUNC:        "FUNC",
	INT:         "INT",
	BYTE:        "BYTE",
	BOOL:        "BOOL",
	IF:          "IF",
	ELSE:        "ELSE",
	WHILE:       "WHILE",
	RETURN:      "RETURN",
	TRUE:        "TRUE",
	FALSE:       "FALSE",
	LBRACE:      "LBRACE",
	RBRACE:      "RBRACE",
	LPAREN:      "LPAREN",
	RPAREN:      "RPAREN",
	SEMICOLON:   "SEMICOLON",
	COMMA:       "COMMA",
	COLON:       "COLON",
	PLUS:        "PLUS",
	MINUS:       "MINUS",
	STAR:        "STAR",
	SLASH:       "SLASH",
	PERCENT:     "PERCENT",
	AND:         "AND",
	PIPE:        "PIPE",
	CARET:       "CARET",
	SHL_OP:      "SHL_OP",
	SHR_OP:      "SHR_OP",
	AND_LOGICAL: "AND_LOGICAL",
	OR_LOGICAL:  "OR_LOGICAL",
	NOT:         "NOT",
	ASSIGN:      "ASSIGN",
	EQUALS:      "EQUALS",
	NOT_EQ:      "NOT_EQ",
	LESS:        "LESS",
	GREATER:     "GREATER",
	LESS_EQ:     "LESS_EQ",
	GREATER_EQ:  "GREATER_EQ",
}

func (tt TokenType) String() string {
	if int(tt) >= 0 && int(tt) < len(tokenNames) {
		return tokenNames[tt]
	}
	return fmt.Sprintf("TokenType(%d)", int(tt))
}

// isTypeKeyword reports whether tt names one of the built-in types.
func (tt TokenType) isTypeKeyword() bool {
	return tt == INT || tt == BYTE || tt == BOOL
}

// Pos is a 1-based source position.
type Pos struct {
	Line   int
	Column int
}

func (p Pos) String() string { return fmt.Sprintf("%d:%d", p.Line, p.Column) }

// Token is a single lexical unit produced by the Lexer.
type Token struct {
	Type   TokenType
	Lexeme string // the exact source text that was matched
	Line   int    // 1-based source line
	Column int    // 1-based column of the first rune
}

func (t Token) Pos() Pos { return Pos{Line: t.Line, Column: t.Column} }

func (t Token) String() string {
	return fmt.Sprintf("%-10s %-14q  line %d col %d", t.Type, t.Lexeme, t.Line, t.Column)
}
