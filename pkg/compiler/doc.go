// Package compiler turns sprig source into a program for the GoCPU 16-bit
// machine.
//
// Pipeline: source → Lex → Parse (with recovery) → Collect → TypeCheck →
// BuildFrames → Execute → isa.Program
package compiler
