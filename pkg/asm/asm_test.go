package asm

import (
	"reflect"
	"testing"

	"sprig/pkg/isa"
)

// encodeWords converts a slice of uint16 to little-endian bytes.
func encodeWords(words ...uint16) []byte {
	out := make([]byte, len(words)*2)
	for i, w := range words {
		out[i*2] = byte(w & 0xFF)
		out[i*2+1] = byte(w >> 8)
	}
	return out
}

func TestHelperFunctions(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"abc", true},
		{"_abc", true},
		{"abc1", true},
		{".L12", true},
		{".G.count", true},
		{"1abc", false},
		{"", false},
		{"ab-c", false},
	}
	for _, tc := range tests {
		if got := isLabel(tc.input); got != tc.want {
			t.Errorf("isLabel(%q) = %v; want %v", tc.input, got, tc.want)
		}
	}

	lenTests := []struct {
		mnemonic string
		wantLen  uint16
		wantOk   bool
	}{
		{"HLT", 2, true},
		{"ldsp", 2, true},
		{"LDI", 4, true},
		{"JC", 4, true},
		{"CALL", 4, true},
		{"FILL", 0, false},
		{"INVALID", 0, false},
	}
	for _, tc := range lenTests {
		gotLen, gotOk := instructionLength(tc.mnemonic)
		if gotLen != tc.wantLen || gotOk != tc.wantOk {
			t.Errorf("instructionLength(%q) = %d, %v; want %d, %v", tc.mnemonic, gotLen, gotOk, tc.wantLen, tc.wantOk)
		}
	}
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line    string
		want    parsedLine
		wantErr bool
	}{
		{
			"LDI R0, 5",
			parsedLine{lineNo: 1, mnemonic: "LDI", operands: []string{"R0", "5"}},
			false,
		},
		{
			"  MOV R0, R1  ; comment",
			parsedLine{lineNo: 1, mnemonic: "MOV", operands: []string{"R0", "R1"}},
			false,
		},
		{
			"    LD R0, [R1]",
			parsedLine{lineNo: 1, mnemonic: "LD", operands: []string{"R0", "R1"}},
			false,
		},
		{
			"main: push r2",
			parsedLine{lineNo: 1, labels: []string{"main"}, mnemonic: "PUSH", operands: []string{"r2"}},
			false,
		},
		{
			".L4: .L9: HLT",
			parsedLine{lineNo: 1, labels: []string{".L4", ".L9"}, mnemonic: "HLT"},
			false,
		},
		{
			".G.total:",
			parsedLine{lineNo: 1, labels: []string{".G.total"}},
			false,
		},
		{
			"    .WORD 65535",
			parsedLine{lineNo: 1, mnemonic: ".WORD", operands: []string{"65535"}},
			false,
		},
		{
			"1LABEL: NOP",
			parsedLine{lineNo: 1},
			true,
		},
	}

	for _, tc := range tests {
		got, err := parseLine(tc.line, 1)
		if (err != nil) != tc.wantErr {
			t.Errorf("parseLine(%q) error = %v, wantErr %v", tc.line, err, tc.wantErr)
			continue
		}
		if tc.wantErr {
			continue
		}
		if got.mnemonic != tc.want.mnemonic {
			t.Errorf("parseLine(%q) mnemonic = %q, want %q", tc.line, got.mnemonic, tc.want.mnemonic)
		}
		if !reflect.DeepEqual(got.labels, tc.want.labels) && !(len(got.labels) == 0 && len(tc.want.labels) == 0) {
			t.Errorf("parseLine(%q) labels = %v, want %v", tc.line, got.labels, tc.want.labels)
		}
		if !reflect.DeepEqual(got.operands, tc.want.operands) && !(len(got.operands) == 0 && len(tc.want.operands) == 0) {
			t.Errorf("parseLine(%q) operands = %v, want %v", tc.line, got.operands, tc.want.operands)
		}
	}
}

func TestAssembleText(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		want    []byte
		wantErr bool
	}{
		{
			"basic instructions",
			`
			LDI R0, 10
			ADD R0, R1
			HLT
			`,
			encodeWords(
				isa.EncodeInstruction(isa.OpLDI, 0, 0, 0), 10,
				isa.EncodeInstruction(isa.OpADD, 0, 1, 0),
				isa.EncodeInstruction(isa.OpHLT, 0, 0, 0),
			),
			false,
		},
		{
			"labels and jumps",
			// LDI at 0-3, loop at 4, SUB 4-5, JNZ 6-9, HLT 10-11.
			`
			LDI R0, 5
			loop:
			SUB R0, R1
			JNZ loop
			HLT
			`,
			encodeWords(
				isa.EncodeInstruction(isa.OpLDI, 0, 0, 0), 5,
				isa.EncodeInstruction(isa.OpSUB, 0, 1, 0),
				isa.EncodeInstruction(isa.OpJNZ, 0, 0, 0), 4,
				isa.EncodeInstruction(isa.OpHLT, 0, 0, 0),
			),
			false,
		},
		{
			"labels are case sensitive",
			`
			Loop: NOP
			loop: JMP Loop
			`,
			encodeWords(
				isa.EncodeInstruction(isa.OpNOP, 0, 0, 0),
				isa.EncodeInstruction(isa.OpJMP, 0, 0, 0), 0,
			),
			false,
		},
		{
			"forward reference to data",
			`
			LDI R1, .G.x
			LD R0, [R1]
			HLT
			.G.x: .WORD 0x1234
			`,
			append(encodeWords(
				isa.EncodeInstruction(isa.OpLDI, 1, 0, 0), 8,
				isa.EncodeInstruction(isa.OpLD, 0, 1, 0),
				isa.EncodeInstruction(isa.OpHLT, 0, 0, 0),
			), 0x34, 0x12),
			false,
		},
		{
			".BYTE",
			`
			.BYTE 7
			.BYTE 0xFF
			`,
			[]byte{7, 0xFF},
			false,
		},
		{
			"stack and frame instructions",
			`
			PUSH R2
			LDSP R3
			STSP R3
			MOV R2, R3
			POP R2
			RET
			`,
			encodeWords(
				isa.EncodeInstruction(isa.OpPUSH, 2, 0, 0),
				isa.EncodeInstruction(isa.OpLDSP, 3, 0, 0),
				isa.EncodeInstruction(isa.OpSTSP, 3, 0, 0),
				isa.EncodeInstruction(isa.OpMOV, 2, 3, 0),
				isa.EncodeInstruction(isa.OpPOP, 2, 0, 0),
				isa.EncodeInstruction(isa.OpRET, 0, 0, 0),
			),
			false,
		},
		{
			"byte memory access",
			`
			LDB R0, [R1]
			STB [R1], R0
			`,
			encodeWords(
				isa.EncodeInstruction(isa.OpLDB, 0, 1, 0),
				isa.EncodeInstruction(isa.OpSTB, 1, 0, 0),
			),
			false,
		},
		{
			"comments",
			`
			; Comment
			LDI R0, 1 // Comment
			`,
			encodeWords(isa.EncodeInstruction(isa.OpLDI, 0, 0, 0), 1),
			false,
		},
		{"unknown instruction", `FOOBAR R0`, nil, true},
		{"duplicate label", "L: HLT\nL: NOP", nil, true},
		{"invalid register", `ADD R0, R9`, nil, true},
		{"invalid operand count", `ADD R0`, nil, true},
		{"undefined label", `JMP nowhere`, nil, true},
		{"byte out of range", `.BYTE 256`, nil, true},
		{"immediate out of range", `LDI R0, 70000`, nil, true},
		{"directive without operand", `.WORD`, nil, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, _, err := AssembleText(tc.code)
			if (err != nil) != tc.wantErr {
				t.Errorf("AssembleText() error = %v, wantErr %v", err, tc.wantErr)
				return
			}
			if !tc.wantErr && !reflect.DeepEqual(got, tc.want) {
				t.Errorf("AssembleText() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestStripComments(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"LDI R0, 1", "LDI R0, 1"},
		{"LDI R0, 1 ; comment", "LDI R0, 1 "},
		{"LDI R0, 1 // comment", "LDI R0, 1 "},
		{"// comment", ""},
		{"; comment", ""},
		{"LDI R0, 1 ; first // second", "LDI R0, 1 "},
	}
	for _, tc := range tests {
		if got := stripComments(tc.input); got != tc.want {
			t.Errorf("stripComments(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}
