package compiler

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nalgeon/be"
)

func parseString(t *testing.T, src string) (*Tree, *Diagnostics) {
	t.Helper()
	diags := NewDiagnostics(nil)
	return Parse(src, diags), diags
}

func TestParseWellFormed(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			"empty program",
			"",
			"(ProgramDecl)",
		},
		{
			"globals",
			"var x: int = 1; var b: bool; var c: byte = 'A';",
			"(ProgramDecl (VarDecl x int (IntLit 1)) (VarDecl b bool) (VarDecl c byte (CharLit 65)))",
		},
		{
			"function with params and result",
			"func add(a: int, b: int): int { return a + b * 2; }",
			"(ProgramDecl (FunctionDecl add int (Param a int) (Param b int) (Block (Return (Binary PLUS (Ident a) (Binary STAR (Ident b) (IntLit 2)))))))",
		},
		{
			"left associativity",
			"var x: int = 1 - 2 - 3;",
			"(ProgramDecl (VarDecl x int (Binary MINUS (Binary MINUS (IntLit 1) (IntLit 2)) (IntLit 3))))",
		},
		{
			"logical precedence",
			"var x: bool = a || b && c == d;",
			"(ProgramDecl (VarDecl x bool (Binary OR_LOGICAL (Ident a) (Binary AND_LOGICAL (Ident b) (Binary EQUALS (Ident c) (Ident d))))))",
		},
		{
			"shift binds looser than addition",
			"var x: int = 1 << 2 + 3 < 4;",
			"(ProgramDecl (VarDecl x int (Binary LESS (Binary SHL_OP (IntLit 1) (Binary PLUS (IntLit 2) (IntLit 3))) (IntLit 4))))",
		},
		{
			"unary and parentheses",
			"var x: int = -(1 + 2); var y: bool = !true;",
			"(ProgramDecl (VarDecl x int (Unary MINUS (Binary PLUS (IntLit 1) (IntLit 2)))) (VarDecl y bool (Unary NOT (BoolLit true))))",
		},
		{
			"statements",
			"func main() { var i: int = 0; while (i < 3) { i = i + 1; } if (i == 3) { f(i, 2); } else if (false) { } else { return; } }",
			"(ProgramDecl (FunctionDecl main (Block (VarDecl i int (IntLit 0)) " +
				"(While (Binary LESS (Ident i) (IntLit 3)) (Block (Assign (Ident i) (Binary PLUS (Ident i) (IntLit 1))))) " +
				"(If (Binary EQUALS (Ident i) (IntLit 3)) (Block (ExprStmt (Call f (Ident i) (IntLit 2)))) " +
				"(If (BoolLit false) (Block) (Block (Return)))))))",
		},
		{
			"hex literal",
			"var x: int = 0xFFFF;",
			"(ProgramDecl (VarDecl x int (IntLit 65535)))",
		},
		{
			"upper-case hex prefix",
			"var x: int = 0X1f;",
			"(ProgramDecl (VarDecl x int (IntLit 31)))",
		},
		{
			"leading zero is still decimal",
			"var x: int = 010; var y: int = 09;",
			"(ProgramDecl (VarDecl x int (IntLit 10)) (VarDecl y int (IntLit 9)))",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, diags := parseString(t, tt.input)
			be.Equal(t, diags.Len(), 0)
			be.Equal(t, tree.Count(KindError), 0)
			be.Equal(t, tree.String(), tt.want)
		})
	}
}

func TestParseVarDeclErrors(t *testing.T) {
	src := `var : int;
var b int;
var c: ;
var d: int
var : byte;
var f byte;
var g: bool
var h: int;
`
	tree, diags := parseString(t, src)

	want := []string{
		"VAR ERROR: The var keyword should be followed by an identifier",
		"VAR ERROR: Missing : between a variable and its type",
		"VAR ERROR: Missing type from variable declaration",
		"ERROR: Expected a ;",
		"VAR ERROR: The var keyword should be followed by an identifier",
		"VAR ERROR: Missing : between a variable and its type",
		"ERROR: Expected a ;",
	}
	be.Equal(t, diags.Lines(), want)
	be.Equal(t, tree.Count(KindError), 7)

	// The trailing well-formed declaration survives.
	kids := tree.Children(tree.Root)
	be.Equal(t, len(kids), 8)
	last := tree.Node(kids[7])
	be.Equal(t, last.Kind, KindVarDecl)
	be.Equal(t, last.Name, "h")
}

func TestParseVarDeclErrorsGrouped(t *testing.T) {
	src := "var : int;\nvar : byte;\nvar b int;\nvar c bool;\nvar d: ;\nvar e: int\nvar f: int\n"
	tree, diags := parseString(t, src)

	want := []string{
		"VAR ERROR: The var keyword should be followed by an identifier",
		"VAR ERROR: The var keyword should be followed by an identifier",
		"VAR ERROR: Missing : between a variable and its type",
		"VAR ERROR: Missing : between a variable and its type",
		"VAR ERROR: Missing type from variable declaration",
		"ERROR: Expected a ;",
		"ERROR: Expected a ;",
	}
	be.Equal(t, diags.Lines(), want)

	kids := tree.Children(tree.Root)
	be.Equal(t, len(kids), 7)
	for _, id := range kids {
		be.Equal(t, tree.Node(id).Kind, KindError)
	}
}

func TestParseRecovery(t *testing.T) {
	tests := []struct {
		name  string
		input string
		diags []string
		tree  string
	}{
		{
			"missing expressions inside a body",
			"func main() {\n  var x: int = ;\n  x = 1;\n  y + ;\n}",
			[]string{"ERROR: Expected an expression", "ERROR: Expected an expression"},
			"(ProgramDecl (FunctionDecl main (Block (ERROR) (Assign (Ident x) (IntLit 1)) (ERROR))))",
		},
		{
			"junk at top level",
			"42; func main() {}",
			[]string{"ERROR: Expected a declaration"},
			"(ProgramDecl (ERROR) (FunctionDecl main (Block)))",
		},
		{
			"unrecognized character",
			"var x: int = 5 @ 3; var y: int;",
			[]string{"ERROR: Unrecognized character @"},
			"(ProgramDecl (ERROR) (VarDecl y int))",
		},
		{
			"missing close paren",
			"func main() { if (x { } var y: int; }",
			[]string{"ERROR: Expected a )"},
			"(ProgramDecl (FunctionDecl main (Block (ERROR) (VarDecl y int))))",
		},
		{
			"missing function name",
			"func (a: int) {} var z: int;",
			[]string{"ERROR: The func keyword should be followed by an identifier"},
			"(ProgramDecl (ERROR) (VarDecl z int))",
		},
		{
			"malformed parameter list",
			"func f(a int) {} func g() {}",
			[]string{"ERROR: Malformed parameter list"},
			"(ProgramDecl (ERROR) (FunctionDecl g (Block)))",
		},
		{
			"missing function body",
			"func f() var x: int;",
			[]string{"ERROR: Expected a function body"},
			"(ProgramDecl (ERROR) (VarDecl x int))",
		},
		{
			"else without block",
			"func f() { if (true) {} else x = 1; }",
			[]string{"ERROR: Expected a { after else"},
			"(ProgramDecl (FunctionDecl f (Block (ERROR))))",
		},
		{
			"nested function",
			"func f() { func g() { } var a: int; }",
			[]string{"ERROR: Functions may only be declared at the top level"},
			"(ProgramDecl (FunctionDecl f (Block (ERROR) (VarDecl a int))))",
		},
		{
			"invalid assignment target",
			"func f() { 1 = 2; }",
			[]string{"ERROR: Invalid assignment target"},
			"(ProgramDecl (FunctionDecl f (Block (ERROR))))",
		},
		{
			"integer out of range",
			"var x: int = 70000;",
			[]string{"ERROR: Integer literal out of range"},
			"(ProgramDecl (ERROR))",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, diags := parseString(t, tt.input)
			be.Equal(t, diags.Lines(), tt.diags)
			be.Equal(t, tree.String(), tt.tree)
			be.Equal(t, tree.Count(KindError), len(tt.diags))
		})
	}
}

func TestUnrecognizedCharacterSingleLine(t *testing.T) {
	err := (&Parser{}).errorf(SyntaxError, Token{Type: ILLEGAL, Lexeme: "'\\\n"}, "unused")
	var se *syntaxError
	be.True(t, errors.As(err, &se))
	be.Equal(t, se.msg, `Unrecognized character "'\\\n"`)
}

func TestParseAlwaysTerminates(t *testing.T) {
	inputs := []string{
		"}}}}",
		"func",
		"var",
		"func f(",
		"func f() {",
		"func f() { if",
		"((((((",
		"var x: int = (1 + ;",
		"while (true) { }",
		"'",
	}
	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			tree, diags := parseString(t, input)
			be.True(t, diags.Len() > 0)
			be.True(t, tree.Count(KindError) > 0)
		})
	}
}

func TestParseProgramFileErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("wrong extension", func(t *testing.T) {
		path := filepath.Join(dir, "prog.c")
		if err := os.WriteFile(path, []byte("func main() {}"), 0o644); err != nil {
			t.Fatal(err)
		}
		var out strings.Builder
		diags := NewDiagnostics(&out)
		tree, err := ParseProgram(path, diags)
		be.True(t, tree == nil)
		be.True(t, errors.Is(err, ErrWrongFileType))
		be.Equal(t, diags.Lines(), []string{"FILE ERROR: Wrong file type"})
		be.Equal(t, out.String(), "FILE ERROR: Wrong file type\n")
	})

	t.Run("missing file", func(t *testing.T) {
		diags := NewDiagnostics(nil)
		tree, err := ParseProgram(filepath.Join(dir, "missing.sprig"), diags)
		be.True(t, tree == nil)
		be.True(t, errors.Is(err, ErrOpenFile))
		be.Equal(t, diags.Lines(), []string{"FILE ERROR: Problem opening the specified file"})
	})

	t.Run("readable file", func(t *testing.T) {
		path := filepath.Join(dir, "ok.sprig")
		if err := os.WriteFile(path, []byte("var x: int = 3;\nfunc main() { x = x + 1; }\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		diags := NewDiagnostics(nil)
		tree, err := ParseProgram(path, diags)
		be.Err(t, err, nil)
		be.Equal(t, diags.Len(), 0)
		be.Equal(t, len(tree.Children(tree.Root)), 2)
	})
}

func TestParsePositions(t *testing.T) {
	tree, _ := parseString(t, "var a: int;\nfunc main() {\n  a = 1;\n}")
	kids := tree.Children(tree.Root)
	be.Equal(t, tree.Node(kids[0]).Pos, Pos{1, 1})
	be.Equal(t, tree.Node(kids[1]).Pos, Pos{2, 1})
	assign := tree.Children(tree.Body(kids[1]))[0]
	be.Equal(t, tree.Node(assign).Pos, Pos{3, 3})
}
