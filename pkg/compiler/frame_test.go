package compiler

import (
	"errors"
	"testing"

	"github.com/nalgeon/be"
)

func frames(t *testing.T, src string) (*Tree, *Frames) {
	t.Helper()
	tree, _, err := check(t, src)
	be.Err(t, err, nil)
	syms, _ := Collect(tree)
	fr, err := BuildFrames(tree, syms)
	be.Err(t, err, nil)
	return tree, fr
}

func TestBuildFramesOffsets(t *testing.T) {
	src := `func f(a: int, b: byte, c: int): int {
  var x: byte = 1;
  if (a > 0) {
    var y: int = 2;
  }
  var z: bool = true;
  return a;
}
func main() {}
`
	_, fr := frames(t, src)
	be.Equal(t, fr.Len(), 2)

	ar, ok := fr.Lookup("f")
	be.True(t, ok)
	be.Equal(t, ar.ArgsSize, 5)
	be.Equal(t, ar.LocalsSize, 4)
	be.Equal(t, ar.FrameSize(), 9)

	var params, locals []int
	for _, id := range ar.Params {
		params = append(params, ar.Offsets[id])
	}
	for _, id := range ar.Locals {
		locals = append(locals, ar.Offsets[id])
	}
	be.Equal(t, params, []int{0, 2, 3})
	be.Equal(t, locals, []int{5, 6, 8})

	main, ok := fr.Lookup("main")
	be.True(t, ok)
	be.Equal(t, main.FrameSize(), 0)
	be.Equal(t, len(main.Offsets), 0)
}

func TestBuildFramesString(t *testing.T) {
	_, fr := frames(t, "func f(n: int) { var b: byte; }")
	want := "f: args 2 locals 1 frame 3\n" +
		"  param n            +0\n" +
		"  local b            +2\n"
	be.Equal(t, fr.String(), want)
}

func TestBuildFramesDeterministic(t *testing.T) {
	src := "func g(a: byte, b: byte) { var c: int; { var d: int; } } func h() { var e: bool; }"
	_, first := frames(t, src)
	_, second := frames(t, src)
	be.Equal(t, second.String(), first.String())

	var names []string
	for _, ar := range first.All() {
		names = append(names, ar.Function)
	}
	be.Equal(t, names, []string{"g", "h"})
}

func TestBuildFramesDuplicate(t *testing.T) {
	tree, _ := parseString(t, "func f() {} func f() {}")
	syms, _ := Collect(tree)
	_, err := BuildFrames(tree, syms)
	be.True(t, errors.Is(err, ErrDuplicateFrame))
}
