package compiler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"sprig/pkg/config"
)

// Parser pulls tokens from a Lexer on demand and builds a Tree.
//
// Grammar:
//
//	program    = { decl } EOF
//	decl       = varDecl | funcDecl
//	varDecl    = "var" IDENTIFIER ":" type [ "=" expression ] ";"
//	funcDecl   = "func" IDENTIFIER "(" [ param { "," param } ] ")" [ ":" type ] block
//	param      = IDENTIFIER ":" type
//	type       = "int" | "byte" | "bool"
//	block      = "{" { statement } "}"
//	statement  = varDecl | block | ifStmt | whileStmt | returnStmt
//	           | IDENTIFIER "=" expression ";" | expression ";"
//	ifStmt     = "if" "(" expression ")" block [ "else" ( block | ifStmt ) ]
//	whileStmt  = "while" "(" expression ")" block
//	returnStmt = "return" [ expression ] ";"
//	expression = unary { binop unary }        (precedence climbing, see binaryPrec)
//	unary      = ( "-" | "!" ) unary | primary
//	primary    = INTEGER | CHARACTER | "true" | "false"
//	           | IDENTIFIER [ "(" [ expression { "," expression } ] ")" ]
//	           | "(" expression ")"
//
// A malformed declaration or statement is reported once, replaced by a
// KindError node and skipped up to the next boundary; parsing always
// reaches EOF.
type Parser struct {
	lex      *Lexer
	buf      []Token // lookahead, filled lazily
	consumed int     // tokens consumed so far; recovery uses it to guarantee progress
	tree     *Tree
	diags    *Diagnostics
}

func NewParser(src string, diags *Diagnostics) *Parser {
	return &Parser{lex: NewLexer(src), tree: newTree(), diags: diags}
}

// syntaxError aborts the production that raised it; the nearest
// declaration or statement boundary reports it and recovers.
type syntaxError struct {
	class Class
	tok   Token
	msg   string
}

func (e *syntaxError) Error() string {
	return fmt.Sprintf("line %d: %s: %s", e.tok.Line, e.class, e.msg)
}

// errorf builds a syntaxError at tok. An ILLEGAL token always produces the
// generic lexical message instead of the context-specific one.
func (p *Parser) errorf(class Class, tok Token, format string, args ...any) error {
	if tok.Type == ILLEGAL {
		text := tok.Lexeme
		if strings.ContainsAny(text, "\r\n") {
			text = strconv.Quote(text)
		}
		return &syntaxError{class: SyntaxError, tok: tok, msg: "Unrecognized character " + text}
	}
	return &syntaxError{class: class, tok: tok, msg: fmt.Sprintf(format, args...)}
}

// peek returns the current token without consuming it.
func (p *Parser) peek() Token {
	return p.peekAt(0)
}

// peekAt returns the token at the given offset from the current position.
func (p *Parser) peekAt(offset int) Token {
	for len(p.buf) <= offset {
		p.buf = append(p.buf, p.lex.Next())
	}
	return p.buf[offset]
}

// advance consumes and returns the current token. EOF is never consumed.
func (p *Parser) advance() Token {
	tok := p.peek()
	if tok.Type != EOF {
		p.buf = p.buf[1:]
		p.consumed++
	}
	return tok
}

// expect consumes the current token if it matches tt, otherwise it returns
// a syntax error carrying msg.
func (p *Parser) expect(tt TokenType, class Class, msg string) (Token, error) {
	tok := p.peek()
	if tok.Type != tt {
		return tok, p.errorf(class, tok, "%s", msg)
	}
	return p.advance(), nil
}

// recover reports err, synthesises an Error node and resynchronises.
// mark is the consumed-token count when the failed production started.
func (p *Parser) recover(err error, mark int, sync func()) NodeID {
	var se *syntaxError
	if !errors.As(err, &se) {
		se = &syntaxError{class: SyntaxError, tok: p.peek(), msg: err.Error()}
	}
	p.diags.Report(se.class, se.tok.Pos(), "%s", se.msg)
	id := p.tree.add(Node{Kind: KindError, Pos: se.tok.Pos()})
	sync()
	if p.consumed == mark {
		p.advance()
	}
	return id
}

// syncStatement skips to the end of the current statement: past the next
// ';' at brace depth zero, past a skipped '{...}' group, or up to (not
// including) a token that starts a new declaration or statement.
func (p *Parser) syncStatement() {
	depth := 0
	for {
		tok := p.peek()
		switch tok.Type {
		case EOF:
			return
		case LBRACE:
			depth++
		case RBRACE:
			if depth == 0 {
				return
			}
			depth--
			if depth == 0 {
				p.advance()
				return
			}
		case SEMICOLON:
			if depth == 0 {
				p.advance()
				return
			}
		case VAR, FUNC, IF, WHILE, RETURN:
			if depth == 0 {
				return
			}
		}
		p.advance()
	}
}

// syncTopLevel skips to the next top-level "var" or "func".
func (p *Parser) syncTopLevel() {
	depth := 0
	for {
		tok := p.peek()
		switch tok.Type {
		case EOF:
			return
		case FUNC:
			return
		case VAR:
			if depth == 0 {
				return
			}
		case LBRACE:
			depth++
		case RBRACE:
			if depth > 0 {
				depth--
			}
		}
		p.advance()
	}
}

// parseType consumes a type keyword.
func (p *Parser) parseType(class Class, msg string) (TokenType, error) {
	tok := p.peek()
	if !tok.Type.isTypeKeyword() {
		return EOF, p.errorf(class, tok, "%s", msg)
	}
	p.advance()
	return tok.Type, nil
}

// parseVarDecl parses var NAME : TYPE [= expr] ;
func (p *Parser) parseVarDecl() (NodeID, error) {
	varTok := p.advance() // var

	nameTok, err := p.expect(IDENTIFIER, VarError, "The var keyword should be followed by an identifier")
	if err != nil {
		return NoNode, err
	}
	if _, err := p.expect(COLON, VarError, "Missing : between a variable and its type"); err != nil {
		return NoNode, err
	}
	typ, err := p.parseType(VarError, "Missing type from variable declaration")
	if err != nil {
		return NoNode, err
	}

	var children []NodeID
	if p.peek().Type == ASSIGN {
		p.advance()
		init, err := p.parseExpression()
		if err != nil {
			return NoNode, err
		}
		children = append(children, init)
	}

	if _, err := p.expect(SEMICOLON, SyntaxError, "Expected a ;"); err != nil {
		return NoNode, err
	}
	return p.tree.add(Node{
		Kind:     KindVarDecl,
		Pos:      varTok.Pos(),
		Name:     nameTok.Lexeme,
		TypeName: typ,
		Children: children,
	}), nil
}

// parseFunctionDecl parses func NAME ( params ) [: TYPE] block
func (p *Parser) parseFunctionDecl() (NodeID, error) {
	funcTok := p.advance() // func

	nameTok, err := p.expect(IDENTIFIER, SyntaxError, "The func keyword should be followed by an identifier")
	if err != nil {
		return NoNode, err
	}
	if _, err := p.expect(LPAREN, SyntaxError, "Expected ( after the function name"); err != nil {
		return NoNode, err
	}

	var children []NodeID
	if p.peek().Type != RPAREN {
		for {
			paramTok, err := p.expect(IDENTIFIER, SyntaxError, "Malformed parameter list")
			if err != nil {
				return NoNode, err
			}
			if _, err := p.expect(COLON, SyntaxError, "Malformed parameter list"); err != nil {
				return NoNode, err
			}
			typ, err := p.parseType(SyntaxError, "Malformed parameter list")
			if err != nil {
				return NoNode, err
			}
			children = append(children, p.tree.add(Node{
				Kind:     KindParam,
				Pos:      paramTok.Pos(),
				Name:     paramTok.Lexeme,
				TypeName: typ,
			}))
			if p.peek().Type != COMMA {
				break
			}
			p.advance()
		}
	}
	if _, err := p.expect(RPAREN, SyntaxError, "Malformed parameter list"); err != nil {
		return NoNode, err
	}

	retType := EOF
	if p.peek().Type == COLON {
		p.advance()
		retType, err = p.parseType(SyntaxError, "Expected a return type")
		if err != nil {
			return NoNode, err
		}
	}

	if p.peek().Type != LBRACE {
		return NoNode, p.errorf(SyntaxError, p.peek(), "Expected a function body")
	}
	body, err := p.parseBlock()
	if err != nil {
		return NoNode, err
	}
	children = append(children, body)

	return p.tree.add(Node{
		Kind:     KindFunctionDecl,
		Pos:      funcTok.Pos(),
		Name:     nameTok.Lexeme,
		TypeName: retType,
		Children: children,
	}), nil
}

// parseBlock parses { statement* }. Malformed statements inside the block
// are recovered here; only a missing closing brace escapes.
func (p *Parser) parseBlock() (NodeID, error) {
	lbrace := p.advance() // {
	var stmts []NodeID
	for p.peek().Type != RBRACE && p.peek().Type != EOF {
		mark := p.consumed
		stmt, err := p.parseStatement()
		if err != nil {
			stmt = p.recover(err, mark, p.syncStatement)
		}
		stmts = append(stmts, stmt)
	}
	if _, err := p.expect(RBRACE, SyntaxError, "Expected a }"); err != nil {
		return NoNode, err
	}
	return p.tree.add(Node{Kind: KindBlock, Pos: lbrace.Pos(), Children: stmts}), nil
}

func (p *Parser) parseStatement() (NodeID, error) {
	tok := p.peek()
	switch tok.Type {
	case VAR:
		return p.parseVarDecl()
	case LBRACE:
		return p.parseBlock()
	case IF:
		return p.parseIf()
	case WHILE:
		return p.parseWhile()
	case RETURN:
		return p.parseReturn()
	case FUNC:
		// Reported once; the nested declaration is parsed only to skip it.
		p.diags.Report(SyntaxError, tok.Pos(), "Functions may only be declared at the top level")
		if _, err := p.parseFunctionDecl(); err != nil {
			p.syncStatement()
		}
		return p.tree.add(Node{Kind: KindError, Pos: tok.Pos()}), nil
	}

	expr, err := p.parseExpression()
	if err != nil {
		return NoNode, err
	}

	if p.peek().Type == ASSIGN {
		assignTok := p.advance()
		if p.tree.Node(expr).Kind != KindIdent {
			return NoNode, p.errorf(SyntaxError, assignTok, "Invalid assignment target")
		}
		value, err := p.parseExpression()
		if err != nil {
			return NoNode, err
		}
		if _, err := p.expect(SEMICOLON, SyntaxError, "Expected a ;"); err != nil {
			return NoNode, err
		}
		return p.tree.add(Node{Kind: KindAssign, Pos: tok.Pos(), Children: []NodeID{expr, value}}), nil
	}

	if _, err := p.expect(SEMICOLON, SyntaxError, "Expected a ;"); err != nil {
		return NoNode, err
	}
	return p.tree.add(Node{Kind: KindExprStmt, Pos: tok.Pos(), Children: []NodeID{expr}}), nil
}

// parseCondition parses ( expression ) after if/while.
func (p *Parser) parseCondition(keyword string) (NodeID, error) {
	if _, err := p.expect(LPAREN, SyntaxError, "Expected ( after "+keyword); err != nil {
		return NoNode, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return NoNode, err
	}
	if _, err := p.expect(RPAREN, SyntaxError, "Expected a )"); err != nil {
		return NoNode, err
	}
	if p.peek().Type != LBRACE {
		return NoNode, p.errorf(SyntaxError, p.peek(), "Expected a { after the %s condition", keyword)
	}
	return cond, nil
}

// parseIf parses if ( cond ) block [ else ( block | if ) ]
func (p *Parser) parseIf() (NodeID, error) {
	ifTok := p.advance() // if
	cond, err := p.parseCondition("if")
	if err != nil {
		return NoNode, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return NoNode, err
	}
	children := []NodeID{cond, body}

	if p.peek().Type == ELSE {
		p.advance()
		var elseBody NodeID
		switch p.peek().Type {
		case IF:
			elseBody, err = p.parseIf()
		case LBRACE:
			elseBody, err = p.parseBlock()
		default:
			err = p.errorf(SyntaxError, p.peek(), "Expected a { after else")
		}
		if err != nil {
			return NoNode, err
		}
		children = append(children, elseBody)
	}
	return p.tree.add(Node{Kind: KindIf, Pos: ifTok.Pos(), Children: children}), nil
}

// parseWhile parses while ( cond ) block
func (p *Parser) parseWhile() (NodeID, error) {
	whileTok := p.advance() // while
	cond, err := p.parseCondition("while")
	if err != nil {
		return NoNode, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return NoNode, err
	}
	return p.tree.add(Node{Kind: KindWhile, Pos: whileTok.Pos(), Children: []NodeID{cond, body}}), nil
}

// parseReturn parses return [expr] ;
func (p *Parser) parseReturn() (NodeID, error) {
	retTok := p.advance() // return
	var children []NodeID
	if p.peek().Type != SEMICOLON {
		value, err := p.parseExpression()
		if err != nil {
			return NoNode, err
		}
		children = append(children, value)
	}
	if _, err := p.expect(SEMICOLON, SyntaxError, "Expected a ;"); err != nil {
		return NoNode, err
	}
	return p.tree.add(Node{Kind: KindReturn, Pos: retTok.Pos(), Children: children}), nil
}

// binaryPrec gives the binding power of each binary operator; higher binds
// tighter.
var binaryPrec = map[TokenType]int{
	OR_LOGICAL:  1,
	AND_LOGICAL: 2,
	PIPE:        3,
	CARET:       4,
	AND:         5,
	EQUALS:      6,
	NOT_EQ:      6,
	LESS:        7,
	LESS_EQ:     7,
	GREATER:     7,
	GREATER_EQ:  7,
	SHL_OP:      8,
	SHR_OP:      8,
	PLUS:        9,
	MINUS:       9,
	STAR:        10,
	SLASH:       10,
	PERCENT:     10,
}

// parseExpression is the entry point for expression parsing.
func (p *Parser) parseExpression() (NodeID, error) {
	return p.parseBinary(1)
}

// parseBinary climbs precedence levels starting at minPrec. All binary
// operators are left-associative.
func (p *Parser) parseBinary(minPrec int) (NodeID, error) {
	left, err := p.parseUnary()
	if err != nil {
		return NoNode, err
	}
	for {
		opTok := p.peek()
		prec, ok := binaryPrec[opTok.Type]
		if !ok || prec < minPrec {
			return left, nil
		}
		p.advance()
		right, err := p.parseBinary(prec + 1)
		if err != nil {
			return NoNode, err
		}
		left = p.tree.add(Node{Kind: KindBinary, Pos: opTok.Pos(), Op: opTok.Type, Children: []NodeID{left, right}})
	}
}

// parseUnary handles prefix - and !
func (p *Parser) parseUnary() (NodeID, error) {
	tok := p.peek()
	if tok.Type == MINUS || tok.Type == NOT {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return NoNode, err
		}
		return p.tree.add(Node{Kind: KindUnary, Pos: tok.Pos(), Op: tok.Type, Children: []NodeID{operand}}), nil
	}
	return p.parsePrimary()
}

// parsePrimary handles literals, identifiers, calls and parenthesised
// expressions.
func (p *Parser) parsePrimary() (NodeID, error) {
	tok := p.peek()
	switch tok.Type {
	case INTEGER:
		p.advance()
		val, err := parseIntLiteral(tok.Lexeme)
		if err != nil {
			return NoNode, p.errorf(SyntaxError, tok, "Integer literal out of range")
		}
		return p.tree.add(Node{Kind: KindIntLit, Pos: tok.Pos(), Value: int64(val)}), nil

	case CHARACTER:
		p.advance()
		val, _ := strconv.ParseInt(tok.Lexeme, 10, 32)
		return p.tree.add(Node{Kind: KindCharLit, Pos: tok.Pos(), Value: val}), nil

	case TRUE, FALSE:
		p.advance()
		var val int64
		if tok.Type == TRUE {
			val = 1
		}
		return p.tree.add(Node{Kind: KindBoolLit, Pos: tok.Pos(), Value: val}), nil

	case IDENTIFIER:
		p.advance()
		if p.peek().Type == LPAREN {
			p.advance() // (
			args, err := p.parseCallArgs()
			if err != nil {
				return NoNode, err
			}
			return p.tree.add(Node{Kind: KindCall, Pos: tok.Pos(), Name: tok.Lexeme, Children: args}), nil
		}
		return p.tree.add(Node{Kind: KindIdent, Pos: tok.Pos(), Name: tok.Lexeme}), nil

	case LPAREN:
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return NoNode, err
		}
		if _, err := p.expect(RPAREN, SyntaxError, "Expected a )"); err != nil {
			return NoNode, err
		}
		return expr, nil
	}
	return NoNode, p.errorf(SyntaxError, tok, "Expected an expression")
}

// parseIntLiteral reads a decimal or 0x-prefixed hex literal into 16 bits.
// A leading zero does not make a literal octal.
func parseIntLiteral(lexeme string) (uint64, error) {
	if len(lexeme) > 2 && lexeme[0] == '0' && (lexeme[1] == 'x' || lexeme[1] == 'X') {
		return strconv.ParseUint(lexeme[2:], 16, 16)
	}
	return strconv.ParseUint(lexeme, 10, 16)
}

func (p *Parser) parseCallArgs() ([]NodeID, error) {
	var args []NodeID
	if p.peek().Type != RPAREN {
		for {
			arg, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)

			if p.peek().Type != COMMA {
				break
			}
			p.advance()
		}
	}
	if _, err := p.expect(RPAREN, SyntaxError, "Expected a )"); err != nil {
		return nil, err
	}
	return args, nil
}

// parseProgram parses declarations until EOF.
func (p *Parser) parseProgram() *Tree {
	root := p.tree.Root
	for p.peek().Type != EOF {
		mark := p.consumed
		var (
			decl NodeID
			err  error
			sync = p.syncTopLevel
		)
		switch tok := p.peek(); tok.Type {
		case VAR:
			decl, err = p.parseVarDecl()
			sync = p.syncStatement
		case FUNC:
			decl, err = p.parseFunctionDecl()
		default:
			err = p.errorf(SyntaxError, tok, "Expected a declaration")
		}
		if err != nil {
			decl = p.recover(err, mark, sync)
		}
		p.tree.Nodes[root].Children = append(p.tree.Nodes[root].Children, decl)
	}
	return p.tree
}

// Parse parses src into a tree, reporting syntax errors to diags. It always
// returns a tree.
func Parse(src string, diags *Diagnostics) *Tree {
	return NewParser(src, diags).parseProgram()
}

// ParseProgram reads and parses the source file at path using the default
// source extension.
func ParseProgram(path string, diags *Diagnostics) (*Tree, error) {
	return ParseProgramExt(path, config.DefaultExtension, diags)
}

// ParseProgramExt is ParseProgram with an explicit source extension. A nil
// tree is returned, with a FILE ERROR diagnostic, when path has the wrong
// extension or cannot be read.
func ParseProgramExt(path, ext string, diags *Diagnostics) (*Tree, error) {
	if filepath.Ext(path) != ext {
		diags.Report(FileError, Pos{}, "Wrong file type")
		return nil, fmt.Errorf("%w: %s", ErrWrongFileType, path)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		diags.Report(FileError, Pos{}, "Problem opening the specified file")
		return nil, fmt.Errorf("%w: %v", ErrOpenFile, err)
	}
	return Parse(string(src), diags), nil
}
