package casebook

import (
	"testing"

	"github.com/nalgeon/be"
)

const fence = "```"

func TestExtract(t *testing.T) {
	markdown := `# Globals

Some prose that is ignored.

## Test: one global
` + fence + `sprig
var x: int = 1;
` + fence + `
` + fence + `ast
(ProgramDecl (VarDecl x int (IntLit 1)))
` + fence + `

## Test: bad literal
` + fence + `sprig
var b: bool = 3;
` + fence + `
` + fence + `diagnostics
TYPE ERROR: Trying to instantiate variable with a literal of the wrong type
` + fence + `
` + fence + `ast
(ProgramDecl (VarDecl b bool (IntLit 3)))
` + fence

	cases, err := Extract(markdown)
	be.Err(t, err, nil)
	be.Equal(t, len(cases), 2)

	be.Equal(t, cases[0].Name, "one global")
	be.Equal(t, cases[0].Input, "var x: int = 1;")
	be.Equal(t, len(cases[0].Expectations), 1)
	be.Equal(t, cases[0].Expectations[0].Type, ExpectAST)
	be.Equal(t, cases[0].Expectations[0].Content, "(ProgramDecl (VarDecl x int (IntLit 1)))")

	be.Equal(t, cases[1].Name, "bad literal")
	be.Equal(t, len(cases[1].Expectations), 2)
	be.Equal(t, cases[1].Expectations[0].Type, ExpectDiagnostics)
	be.Equal(t, cases[1].Expectations[1].Type, ExpectAST)
}

func TestExtractErrors(t *testing.T) {
	tests := []struct {
		name     string
		markdown string
	}{
		{
			"fence outside a case",
			fence + "sprig\nvar x: int;\n" + fence,
		},
		{
			"no input",
			"## Test: empty\n" + fence + "ast\n(ProgramDecl)\n" + fence,
		},
		{
			"no expectation",
			"## Test: lonely\n" + fence + "sprig\nvar x: int;\n" + fence,
		},
		{
			"unknown fence",
			"## Test: odd\n" + fence + "sprig\nvar x: int;\n" + fence + "\n" + fence + "listing\nHLT\n" + fence,
		},
		{
			"two inputs",
			"## Test: twice\n" + fence + "sprig\nvar x: int;\n" + fence + "\n" + fence + "sprig\nvar y: int;\n" + fence,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Extract(tc.markdown)
			be.True(t, err != nil)
		})
	}
}

func TestExtractIgnoresPlainFences(t *testing.T) {
	markdown := "Intro\n\n" + fence + "\nnot a test\n" + fence + "\n\n## Test: ok\n" +
		fence + "sprig\nfunc main() {}\n" + fence + "\n" + fence + "diagnostics\n" + fence
	cases, err := Extract(markdown)
	be.Err(t, err, nil)
	be.Equal(t, len(cases), 1)
	be.Equal(t, cases[0].Expectations[0].Content, "")
}
