// Command sprigc compiles sprig source files into GoCPU binaries.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"sprig/pkg/asm"
	"sprig/pkg/compiler"
	"sprig/pkg/config"
	"sprig/pkg/utils"
)

func main() {
	outPath := flag.String("out", "", "output binary file path (default: input with .bin extension; single input only)")
	listing := flag.Bool("S", false, "also write an assembly listing next to each binary")
	configPath := flag.String("config", "", "config file (default: sprig.yaml next to the first input, if present)")
	watch := flag.Bool("watch", false, "recompile whenever an input file changes")
	flag.Parse()

	paths := flag.Args()
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "nothing to do: provide one or more source files")
		flag.Usage()
		os.Exit(2)
	}
	if *outPath != "" && len(paths) > 1 {
		fmt.Fprintln(os.Stderr, "-out needs exactly one input file")
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath, paths[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	b := &builder{cfg: cfg, out: *outPath, listing: *listing}
	if *watch {
		if err := watchAndBuild(ctx, paths, b); err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "watch failed: %v\n", err)
			os.Exit(1)
		}
		return
	}
	if err := b.build(ctx, paths); err != nil {
		fmt.Fprintf(os.Stderr, "compilation failed: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(explicit, firstInput string) (*config.Config, error) {
	if explicit != "" {
		return config.Load(explicit)
	}
	path, err := utils.Sibling(firstInput, config.DefaultFileName)
	if err != nil {
		return nil, err
	}
	return config.LoadOptional(path)
}

type builder struct {
	cfg     *config.Config
	out     string
	listing bool
}

// build compiles every path, writing a binary for each that succeeds.
// Diagnostics go to stderr in input order.
func (b *builder) build(ctx context.Context, paths []string) error {
	units, err := compiler.CompileAll(ctx, paths, b.cfg, os.Stderr)
	for _, u := range units {
		if u == nil || u.Program == nil {
			continue
		}
		if werr := b.write(u); werr != nil {
			err = errors.Join(err, werr)
		}
	}
	return err
}

func (b *builder) write(u *compiler.Unit) error {
	code, _, err := asm.Assemble(u.Program)
	if err != nil {
		return fmt.Errorf("%s: %w", u.Path, err)
	}

	output := b.out
	if output == "" {
		output = utils.ReplaceExt(u.Path, ".bin")
	}
	if err := writeBinary(output, code); err != nil {
		return fmt.Errorf("failed to write binary file %q: %w", output, err)
	}
	fmt.Printf("compiled %d bytes -> %s\n", len(code), output)

	if b.listing {
		lst := utils.ReplaceExt(output, ".s")
		if err := os.WriteFile(lst, []byte(asm.Listing(u.Program)), 0o644); err != nil {
			return fmt.Errorf("failed to write listing %q: %w", lst, err)
		}
	}
	return nil
}

func writeBinary(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}
