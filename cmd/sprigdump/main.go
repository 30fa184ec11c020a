// Command sprigdump prints every stage of compiling one sprig file: tokens,
// tree, symbols, activation records and the instruction listing.
package main

import (
	"fmt"
	"os"

	"sprig/pkg/asm"
	"sprig/pkg/compiler"
	"sprig/pkg/config"
)

const testSource = `var x: int = 10;
var y: byte = 20;

func main() {
  x = x + y;
}
`

func main() {
	src := testSource
	if len(os.Args) > 1 {
		data, err := os.ReadFile(os.Args[1])
		if err != nil {
			fmt.Fprintln(os.Stderr, "read error:", err)
			os.Exit(1)
		}
		src = string(data)
	}

	fmt.Printf("Source:\n%s\n", src)

	tokens := compiler.Lex(src)
	fmt.Printf("Tokens (%d)\n", len(tokens))
	for _, tok := range tokens {
		fmt.Println(" ", tok)
	}
	fmt.Println()

	u, err := compiler.CompileSource(src, config.Default(), os.Stderr)

	fmt.Println("Tree")
	fmt.Println(" ", u.Tree)
	fmt.Println()

	if u.Symbols != nil {
		fmt.Println("Symbols")
		fmt.Print(u.Symbols)
		fmt.Println()
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "compile error:", err)
		os.Exit(1)
	}

	fmt.Println("Activation records")
	fmt.Print(u.Frames)
	fmt.Println()

	fmt.Println("Listing")
	fmt.Print(asm.Listing(u.Program))
}
