// Package casebook extracts compiler test cases from Markdown documents.
//
// A case starts at a heading "Test: <name>" and holds exactly one ```sprig
// fence with the program plus one or more expectation fences:
//
//	```ast          the tree as an s-expression
//	```diagnostics  the reported lines, in order
//	```frames       the activation record dump
package casebook

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

const InputFence = "sprig"

// ExpectationType names an expectation fence.
type ExpectationType string

const (
	ExpectAST         ExpectationType = "ast"
	ExpectDiagnostics ExpectationType = "diagnostics"
	ExpectFrames      ExpectationType = "frames"
)

type Expectation struct {
	Type    ExpectationType
	Content string
	Line    int
}

type Case struct {
	Name         string
	Input        string
	Line         int // line of the heading
	Expectations []Expectation
}

// Extract parses a Markdown document and returns its cases in order.
func Extract(markdown string) ([]Case, error) {
	source := []byte(markdown)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var cases []Case
	var current *Case
	finish := func() error {
		if current == nil {
			return nil
		}
		if err := validate(current); err != nil {
			return err
		}
		cases = append(cases, *current)
		return nil
	}

	err := ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch n := node.(type) {
		case *ast.Heading:
			heading := nodeText(n, source)
			if !strings.HasPrefix(heading, "Test: ") {
				return ast.WalkContinue, nil
			}
			if err := finish(); err != nil {
				return ast.WalkStop, err
			}
			current = &Case{Name: strings.TrimPrefix(heading, "Test: "), Line: lineOf(n, source)}

		case *ast.FencedCodeBlock:
			language := string(n.Language(source))
			line := lineOf(n, source)
			if language == "" {
				return ast.WalkContinue, nil
			}
			if current == nil {
				return ast.WalkStop, fmt.Errorf("line %d: %s fence outside of a test case", line, language)
			}
			content := strings.TrimRight(fenceContent(n, source), "\n")

			switch {
			case language == InputFence:
				if current.Input != "" {
					return ast.WalkStop, fmt.Errorf("line %d: multiple input fences in test '%s'", line, current.Name)
				}
				current.Input = content
			case isExpectation(language):
				current.Expectations = append(current.Expectations, Expectation{
					Type:    ExpectationType(language),
					Content: content,
					Line:    line,
				})
			default:
				return ast.WalkStop, fmt.Errorf("line %d: unknown fence language '%s' in test '%s'", line, language, current.Name)
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking markdown AST: %w", err)
	}
	if err := finish(); err != nil {
		return nil, err
	}
	return cases, nil
}

func isExpectation(language string) bool {
	switch ExpectationType(language) {
	case ExpectAST, ExpectDiagnostics, ExpectFrames:
		return true
	}
	return false
}

func validate(c *Case) error {
	if c.Input == "" {
		return fmt.Errorf("test '%s' has no %s fence", c.Name, InputFence)
	}
	if len(c.Expectations) == 0 {
		return fmt.Errorf("test '%s' has no expectation fences", c.Name)
	}
	return nil
}

func nodeText(node ast.Node, source []byte) string {
	var buf bytes.Buffer
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if t, ok := n.(*ast.Text); ok && entering {
			buf.Write(t.Segment.Value(source))
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

func fenceContent(block *ast.FencedCodeBlock, source []byte) string {
	var buf bytes.Buffer
	for i := 0; i < block.Lines().Len(); i++ {
		line := block.Lines().At(i)
		buf.Write(line.Value(source))
	}
	return buf.String()
}

// lineOf returns the 1-based line a block node starts on.
func lineOf(node ast.Node, source []byte) int {
	if node.Lines().Len() == 0 {
		return 1
	}
	start := node.Lines().At(0).Start
	return 1 + bytes.Count(source[:min(start, len(source))], []byte{'\n'})
}
