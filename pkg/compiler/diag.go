package compiler

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// Class is the prefix that identifies which stage raised a diagnostic.
type Class string

const (
	FileError   Class = "FILE ERROR"
	VarError    Class = "VAR ERROR"
	TypeError   Class = "TYPE ERROR"
	SyntaxError Class = "ERROR"
)

// Diagnostic is one user-facing, single-line compiler message.
type Diagnostic struct {
	Class Class
	Msg   string
	Pos   Pos
}

func (d Diagnostic) String() string { return string(d.Class) + ": " + d.Msg }

// Diagnostics is the sink every pass reports through. Each compilation unit
// owns one; lines are written to w in the order they are reported.
type Diagnostics struct {
	w     io.Writer
	color bool
	list  []Diagnostic
}

// NewDiagnostics returns a sink writing to w. Colour is enabled when w is a
// terminal. A nil w only records.
func NewDiagnostics(w io.Writer) *Diagnostics {
	d := &Diagnostics{w: w}
	if f, ok := w.(*os.File); ok {
		d.color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return d
}

// SetColor overrides terminal detection.
func (d *Diagnostics) SetColor(on bool) { d.color = on }

// Report records a diagnostic and writes it out immediately.
func (d *Diagnostics) Report(class Class, pos Pos, format string, args ...any) {
	diag := Diagnostic{Class: class, Msg: fmt.Sprintf(format, args...), Pos: pos}
	d.list = append(d.list, diag)
	if d.w == nil {
		return
	}
	if d.color {
		fmt.Fprintf(d.w, "\x1b[1;31m%s:\x1b[0m %s\n", diag.Class, diag.Msg)
		return
	}
	fmt.Fprintln(d.w, diag.String())
}

// Len returns the number of diagnostics reported so far.
func (d *Diagnostics) Len() int { return len(d.list) }

// List returns the diagnostics in report order.
func (d *Diagnostics) List() []Diagnostic { return d.list }

// Lines renders every diagnostic as its output line.
func (d *Diagnostics) Lines() []string {
	lines := make([]string, len(d.list))
	for i, diag := range d.list {
		lines[i] = diag.String()
	}
	return lines
}

// CountClass returns how many diagnostics of the given class were reported
// since index from.
func (d *Diagnostics) CountClass(class Class, from int) int {
	n := 0
	for _, diag := range d.list[from:] {
		if diag.Class == class {
			n++
		}
	}
	return n
}
