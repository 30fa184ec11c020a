package compiler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"

	"golang.org/x/sync/errgroup"

	"sprig/pkg/config"
	"sprig/pkg/isa"
)

var (
	ErrWrongFileType  = errors.New("wrong file type")
	ErrOpenFile       = errors.New("cannot open source file")
	ErrSyntax         = errors.New("syntax errors")
	ErrCollision      = errors.New("redeclaration")
	ErrType           = errors.New("type errors")
	ErrDuplicateFrame = errors.New("duplicate activation record")
	ErrInternal       = errors.New("internal compiler error")
	ErrEntryParams    = errors.New("entry function takes parameters")
)

// Unit is everything produced for one source file. Fields are filled as far
// as the pipeline got; Program is nil unless compilation succeeded.
type Unit struct {
	Path    string
	Tree    *Tree
	Symbols *SymbolTable
	Frames  *Frames
	Program *isa.Program
	Diags   *Diagnostics
}

func newDiagnostics(w io.Writer, cfg *config.Config) *Diagnostics {
	d := NewDiagnostics(w)
	switch cfg.Color {
	case config.ColorAlways:
		d.SetColor(true)
	case config.ColorNever:
		d.SetColor(false)
	}
	return d
}

// Compile runs the whole pipeline on the file at path. Diagnostics are
// written to w as they are found; w may be nil. A nil cfg means defaults.
func Compile(path string, cfg *config.Config, w io.Writer) (*Unit, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	u := &Unit{Path: path, Diags: newDiagnostics(w, cfg)}
	tree, err := ParseProgramExt(path, cfg.Extension, u.Diags)
	if err != nil {
		return u, err
	}
	u.Tree = tree
	return u, u.check(cfg.Entry)
}

// CompileSource is Compile for in-memory source text.
func CompileSource(src string, cfg *config.Config, w io.Writer) (*Unit, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	u := &Unit{Diags: newDiagnostics(w, cfg)}
	u.Tree = Parse(src, u.Diags)
	return u, u.check(cfg.Entry)
}

// check runs every pass after parsing. The analysis passes always run so
// all diagnostics are reported; selection runs only on a clean tree.
func (u *Unit) check(entry string) error {
	var errs []error
	if n := u.Tree.Count(KindError); n > 0 {
		errs = append(errs, fmt.Errorf("%w: %d error(s)", ErrSyntax, n))
	}

	syms, collisions := Collect(u.Tree)
	u.Symbols = syms
	for _, c := range collisions {
		u.Diags.Report(SyntaxError, c.Pos, "Redeclaration of %s", c.Name)
	}
	if len(collisions) > 0 {
		errs = append(errs, fmt.Errorf("%w: %d name(s)", ErrCollision, len(collisions)))
	}

	if err := TypeCheck(u.Tree, syms, u.Diags); err != nil {
		errs = append(errs, err)
	}
	if fn, ok := entryDecl(u.Tree, entry); ok && len(u.Tree.Params(fn)) > 0 {
		u.Diags.Report(SyntaxError, u.Tree.Node(fn).Pos, "Entry function %s must not take parameters", entry)
		errs = append(errs, fmt.Errorf("%w: %s", ErrEntryParams, entry))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	frames, err := BuildFrames(u.Tree, syms)
	if err != nil {
		return err
	}
	u.Frames = frames

	prog, err := ExecuteEntry(u.Tree, syms, frames, entry)
	if err != nil {
		return err
	}
	u.Program = prog
	return nil
}

// CompileAll compiles each file independently and concurrently. Each unit
// owns its diagnostics; once all are done their lines are written to w in
// input order. The returned units are in input order too, and the error
// joins every unit's failure.
func CompileAll(ctx context.Context, paths []string, cfg *config.Config, w io.Writer) ([]*Unit, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	units := make([]*Unit, len(paths))
	errs := make([]error, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			u, err := Compile(path, cfg, nil)
			units[i] = u
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", path, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return units, err
	}

	if w != nil {
		for _, u := range units {
			for _, line := range u.Diags.Lines() {
				fmt.Fprintln(w, line)
			}
		}
	}
	return units, errors.Join(errs...)
}
