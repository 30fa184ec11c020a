// Package isa describes the GoCPU 16-bit instruction set as data: opcodes,
// registers, operands and the flat Program produced by instruction
// selection.
package isa

import (
	"fmt"
	"strings"
)

// Opcode is the 6-bit operation field of an encoded instruction.
type Opcode uint16

const (
	OpHLT  Opcode = 0x00
	OpNOP  Opcode = 0x01
	OpLDI  Opcode = 0x02
	OpMOV  Opcode = 0x03
	OpLD   Opcode = 0x04
	OpST   Opcode = 0x05
	OpADD  Opcode = 0x06
	OpSUB  Opcode = 0x07
	OpAND  Opcode = 0x08
	OpOR   Opcode = 0x09
	OpXOR  Opcode = 0x0A
	OpNOT  Opcode = 0x0B
	OpSHL  Opcode = 0x0C
	OpSHR  Opcode = 0x0D
	OpJMP  Opcode = 0x0E
	OpJZ   Opcode = 0x0F
	OpJNZ  Opcode = 0x10
	OpJN   Opcode = 0x11
	OpPUSH Opcode = 0x12
	OpPOP  Opcode = 0x13
	OpCALL Opcode = 0x14
	OpRET  Opcode = 0x15
	OpLDSP Opcode = 0x1A
	OpSTSP Opcode = 0x1B
	OpMUL  Opcode = 0x1C
	OpDIV  Opcode = 0x1D
	OpLDB  Opcode = 0x20
	OpSTB  Opcode = 0x21
	OpIDIV Opcode = 0x22
	OpJC   Opcode = 0x23
	OpJNC  Opcode = 0x24
)

var opNames = map[Opcode]string{
	OpHLT:  "HLT",
	OpNOP:  "NOP",
	OpLDI:  "LDI",
	OpMOV:  "MOV",
	OpLD:   "LD",
	OpST:   "ST",
	OpADD:  "ADD",
	OpSUB:  "SUB",
	OpAND:  "AND",
	OpOR:   "OR",
	OpXOR:  "XOR",
	OpNOT:  "NOT",
	OpSHL:  "SHL",
	OpSHR:  "SHR",
	OpJMP:  "JMP",
	OpJZ:   "JZ",
	OpJNZ:  "JNZ",
	OpJN:   "JN",
	OpPUSH: "PUSH",
	OpPOP:  "POP",
	OpCALL: "CALL",
	OpRET:  "RET",
	OpLDSP: "LDSP",
	OpSTSP: "STSP",
	OpMUL:  "MUL",
	OpDIV:  "DIV",
	OpLDB:  "LDB",
	OpSTB:  "STB",
	OpIDIV: "IDIV",
	OpJC:   "JC",
	OpJNC:  "JNC",
}

func (op Opcode) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return fmt.Sprintf("Opcode(0x%02X)", uint16(op))
}

// HasImmediate reports whether the encoded form carries a trailing 16-bit
// word (LDI and every jump/call).
func (op Opcode) HasImmediate() bool {
	switch op {
	case OpLDI, OpJMP, OpJZ, OpJNZ, OpJN, OpJC, OpJNC, OpCALL:
		return true
	}
	return false
}

// Size returns the encoded length in bytes.
func (op Opcode) Size() int {
	if op.HasImmediate() {
		return 4
	}
	return 2
}

// Reg names one of the eight general-purpose registers.
type Reg uint8

const (
	R0 Reg = iota // accumulator
	R1            // address
	R2            // frame pointer
	R3            // scratch
	R4
	R5
	R6
	R7
)

func (r Reg) String() string { return fmt.Sprintf("R%d", uint8(r)) }

// OperandKind tells how an operand's Value is interpreted.
type OperandKind uint8

const (
	KindReg    OperandKind = iota // Value is a Reg
	KindImm                       // Value is a literal 16-bit word
	KindTarget                    // Value is an instruction index in Program.Code
	KindGlobal                    // Value is a byte offset into the data segment
)

// Operand is one argument of an Instruction.
type Operand struct {
	Kind  OperandKind
	Value int
	// Name is informational only (the global or function a target refers to).
	Name string
}

func RegOp(r Reg) Operand      { return Operand{Kind: KindReg, Value: int(r)} }
func Imm(v int) Operand        { return Operand{Kind: KindImm, Value: v} }
func Target(index int) Operand { return Operand{Kind: KindTarget, Value: index} }

func Global(offset int, name string) Operand {
	return Operand{Kind: KindGlobal, Value: offset, Name: name}
}

func (o Operand) String() string {
	switch o.Kind {
	case KindReg:
		return Reg(o.Value).String()
	case KindImm:
		return fmt.Sprintf("%d", uint16(o.Value))
	case KindTarget:
		if o.Name != "" {
			return o.Name
		}
		return fmt.Sprintf("@%d", o.Value)
	case KindGlobal:
		return fmt.Sprintf("%s(+%d)", o.Name, o.Value)
	}
	return "?"
}

// Instruction is an opcode with its operands, in assembler order.
type Instruction struct {
	Op   Opcode
	Args []Operand
}

func (in Instruction) String() string {
	if len(in.Args) == 0 {
		return in.Op.String()
	}
	parts := make([]string, len(in.Args))
	for i, a := range in.Args {
		parts[i] = a.String()
		if (in.Op == OpLD || in.Op == OpLDB) && i == 1 ||
			(in.Op == OpST || in.Op == OpSTB) && i == 0 {
			parts[i] = "[" + parts[i] + "]"
		}
	}
	return fmt.Sprintf("%-4s %s", in.Op, strings.Join(parts, ", "))
}

// GlobalSlot is the layout of one global variable in the data segment.
type GlobalSlot struct {
	Name   string
	Offset int
	Size   int
}

// FuncEntry records where a function's code starts.
type FuncEntry struct {
	Name  string
	Index int
}

// Program is the complete output of instruction selection.
type Program struct {
	Code    []Instruction
	Data    []byte // initial image of the data segment
	Globals []GlobalSlot
	Funcs   []FuncEntry
}

// EncodeInstruction packs an opcode and up to three register fields into
// one 16-bit word.
func EncodeInstruction(opcode Opcode, regA, regB, regC uint16) uint16 {
	return (uint16(opcode) << 10) | ((regA & 0x07) << 7) | ((regB & 0x07) << 4) | ((regC & 0x07) << 1)
}
