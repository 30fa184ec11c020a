package asm

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"sprig/pkg/isa"
)

func reg(r isa.Reg) isa.Operand { return isa.RegOp(r) }

// loopProgram is a tiny startup block, one function with a loop and a
// global counter, in the shape the instruction selector produces.
func loopProgram() *isa.Program {
	return &isa.Program{
		Code: []isa.Instruction{
			{Op: isa.OpCALL, Args: []isa.Operand{{Kind: isa.KindTarget, Value: 2, Name: "count"}}}, // 0
			{Op: isa.OpHLT}, // 1
			{Op: isa.OpLDI, Args: []isa.Operand{reg(isa.R1), isa.Global(0, "n")}},  // 2 count
			{Op: isa.OpLD, Args: []isa.Operand{reg(isa.R0), reg(isa.R1)}},          // 3
			{Op: isa.OpJZ, Args: []isa.Operand{isa.Target(8)}},                     // 4
			{Op: isa.OpLDI, Args: []isa.Operand{reg(isa.R3), isa.Imm(1)}},          // 5
			{Op: isa.OpSUB, Args: []isa.Operand{reg(isa.R0), reg(isa.R3)}},         // 6
			{Op: isa.OpJMP, Args: []isa.Operand{isa.Target(4)}},                    // 7
			{Op: isa.OpLDI, Args: []isa.Operand{reg(isa.R1), isa.Global(2, "done")}}, // 8
			{Op: isa.OpSTB, Args: []isa.Operand{reg(isa.R1), reg(isa.R0)}},         // 9
			{Op: isa.OpRET}, // 10
		},
		Data: []byte{3, 0, 0},
		Globals: []isa.GlobalSlot{
			{Name: "n", Offset: 0, Size: 2},
			{Name: "done", Offset: 2, Size: 1},
		},
		Funcs: []isa.FuncEntry{{Name: "count", Index: 2}},
	}
}

func TestAssembleProgram(t *testing.T) {
	got, _, err := Assemble(loopProgram())
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	// Addresses: 0 CALL, 4 HLT, 6 LDI, 10 LD, 12 JZ, 16 LDI, 20 SUB,
	// 22 JMP, 26 LDI, 30 STB, 32 RET; data at 34.
	want := encodeWords(
		isa.EncodeInstruction(isa.OpCALL, 0, 0, 0), 6,
		isa.EncodeInstruction(isa.OpHLT, 0, 0, 0),
		isa.EncodeInstruction(isa.OpLDI, 1, 0, 0), 34,
		isa.EncodeInstruction(isa.OpLD, 0, 1, 0),
		isa.EncodeInstruction(isa.OpJZ, 0, 0, 0), 26,
		isa.EncodeInstruction(isa.OpLDI, 3, 0, 0), 1,
		isa.EncodeInstruction(isa.OpSUB, 0, 3, 0),
		isa.EncodeInstruction(isa.OpJMP, 0, 0, 0), 12,
		isa.EncodeInstruction(isa.OpLDI, 1, 0, 0), 36,
		isa.EncodeInstruction(isa.OpSTB, 1, 0, 0),
		isa.EncodeInstruction(isa.OpRET, 0, 0, 0),
	)
	want = append(want, 3, 0, 0)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Assemble() =\n%v\nwant\n%v", got, want)
	}
}

func TestAssembleProgramTargetPastEnd(t *testing.T) {
	// A branch to len(Code) lands on the first data byte.
	prog := &isa.Program{
		Code: []isa.Instruction{
			{Op: isa.OpJMP, Args: []isa.Operand{isa.Target(1)}},
		},
		Data: []byte{9},
	}
	got, _, err := Assemble(prog)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	want := append(encodeWords(isa.EncodeInstruction(isa.OpJMP, 0, 0, 0), 4), 9)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Assemble() = %v, want %v", got, want)
	}
}

func TestAssembleProgramErrors(t *testing.T) {
	tests := []struct {
		name string
		in   isa.Instruction
	}{
		{"unpatched target", isa.Instruction{Op: isa.OpJMP, Args: []isa.Operand{isa.Target(-1)}}},
		{"target out of range", isa.Instruction{Op: isa.OpJZ, Args: []isa.Operand{isa.Target(5)}}},
		{"global outside data", isa.Instruction{Op: isa.OpLDI, Args: []isa.Operand{reg(isa.R1), isa.Global(4, "g")}}},
		{"missing operand", isa.Instruction{Op: isa.OpADD, Args: []isa.Operand{reg(isa.R0)}}},
		{"immediate where register expected", isa.Instruction{Op: isa.OpMOV, Args: []isa.Operand{reg(isa.R0), isa.Imm(1)}}},
		{"register where immediate expected", isa.Instruction{Op: isa.OpLDI, Args: []isa.Operand{reg(isa.R0), reg(isa.R1)}}},
		{"unknown opcode", isa.Instruction{Op: isa.Opcode(0x3F)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			prog := &isa.Program{Code: []isa.Instruction{tc.in}, Data: []byte{0, 0}}
			if _, _, err := Assemble(prog); err == nil {
				t.Errorf("Assemble() succeeded, want error")
			}
		})
	}
}

func TestAssembleProgramTooLarge(t *testing.T) {
	prog := &isa.Program{
		Code: []isa.Instruction{{Op: isa.OpHLT}},
		Data: make([]byte, 0x10000),
	}
	_, _, err := Assemble(prog)
	if !errors.Is(err, ErrProgramTooLarge) {
		t.Errorf("Assemble() error = %v, want ErrProgramTooLarge", err)
	}
}

func TestListing(t *testing.T) {
	got := Listing(loopProgram())
	want := `; 11 instructions, 3 bytes of data
    CALL count
    HLT

count:
    LDI R1, .G.n
    LD R0, [R1]
.L4:
    JZ .L8
    LDI R3, 1
    SUB R0, R3
    JMP .L4
.L8:
    LDI R1, .G.done
    STB [R1], R0
    RET

; data
.G.n:
    .WORD 3
.G.done:
    .BYTE 0
`
	if got != want {
		t.Errorf("Listing() =\n%s\nwant\n%s", got, want)
	}
}

func TestListingRoundTrip(t *testing.T) {
	prog := loopProgram()
	direct, _, err := Assemble(prog)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	text, _, err := AssembleText(Listing(prog))
	if err != nil {
		t.Fatalf("AssembleText failed: %v", err)
	}
	if !reflect.DeepEqual(text, direct) {
		t.Errorf("listing assembles to %v, want %v", text, direct)
	}
}

func TestListingWithoutData(t *testing.T) {
	prog := &isa.Program{Code: []isa.Instruction{{Op: isa.OpHLT}}}
	got := Listing(prog)
	if strings.Contains(got, "; data") {
		t.Errorf("Listing() has a data section:\n%s", got)
	}
	if got != "; 1 instructions, 0 bytes of data\n    HLT\n" {
		t.Errorf("Listing() = %q", got)
	}
}
