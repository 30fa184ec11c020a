// Package asm turns GoCPU programs into machine code. Assemble encodes an
// isa.Program directly; AssembleText accepts the textual form produced by
// Listing.
package asm

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"sprig/pkg/isa"
)

// format describes the operands an opcode takes: a number of register
// fields, optionally followed by one 16-bit immediate.
type format struct {
	regs int
	imm  bool
}

var mnemonics = map[string]isa.Opcode{}

var formats = map[isa.Opcode]format{
	isa.OpHLT: {0, false},
	isa.OpNOP: {0, false},
	isa.OpRET: {0, false},

	isa.OpNOT:  {1, false},
	isa.OpPUSH: {1, false},
	isa.OpPOP:  {1, false},
	isa.OpLDSP: {1, false},
	isa.OpSTSP: {1, false},

	isa.OpMOV:  {2, false},
	isa.OpLD:   {2, false},
	isa.OpST:   {2, false},
	isa.OpADD:  {2, false},
	isa.OpSUB:  {2, false},
	isa.OpAND:  {2, false},
	isa.OpOR:   {2, false},
	isa.OpXOR:  {2, false},
	isa.OpMUL:  {2, false},
	isa.OpDIV:  {2, false},
	isa.OpIDIV: {2, false},
	isa.OpSHL:  {2, false},
	isa.OpSHR:  {2, false},
	isa.OpLDB:  {2, false},
	isa.OpSTB:  {2, false},

	isa.OpLDI: {1, true},

	isa.OpJMP:  {0, true},
	isa.OpJZ:   {0, true},
	isa.OpJNZ:  {0, true},
	isa.OpJN:   {0, true},
	isa.OpJC:   {0, true},
	isa.OpJNC:  {0, true},
	isa.OpCALL: {0, true},
}

func init() {
	for op := range formats {
		mnemonics[op.String()] = op
	}
}

// Assembler holds the label table of one text assembly.
type Assembler struct {
	labels map[string]uint16
}

type parsedLine struct {
	lineNo   int
	labels   []string
	mnemonic string
	operands []string
}

func NewAssembler() *Assembler {
	return &Assembler{
		labels: make(map[string]uint16),
	}
}

// AssembleText assembles source text. The source map relates each emitted
// byte address to its 1-based source line.
func AssembleText(code string) ([]byte, map[uint16]int, error) {
	return NewAssembler().Assemble(code)
}

func (a *Assembler) Assemble(code string) ([]byte, map[uint16]int, error) {
	lines := strings.Split(code, "\n")

	if err := a.pass1(lines); err != nil {
		return nil, nil, err
	}

	return a.pass2(lines)
}

func (a *Assembler) pass1(lines []string) error {
	var address uint32

	for i, raw := range lines {
		lineNo := i + 1
		p, err := parseLine(raw, lineNo)
		if err != nil {
			return err
		}

		for _, lbl := range p.labels {
			if address > 0xFFFF {
				return fmt.Errorf("label '%s' on line %d points past addressable memory", lbl, lineNo)
			}
			if _, exists := a.labels[lbl]; exists {
				return fmt.Errorf("duplicate label '%s' on line %d", lbl, lineNo)
			}
			a.labels[lbl] = uint16(address)
		}

		if p.mnemonic == "" {
			continue
		}

		length, ok := directiveLength(p.mnemonic)
		if ok {
			if len(p.operands) != 1 {
				return fmt.Errorf("%s expects exactly one operand on line %d", p.mnemonic, lineNo)
			}
		} else if length, ok = instructionLength(p.mnemonic); !ok {
			return fmt.Errorf("unknown instruction on line %d: %s", lineNo, p.mnemonic)
		}

		if address+uint32(length) > 65536 {
			return fmt.Errorf("program too large near line %d", lineNo)
		}
		address += uint32(length)
	}

	return nil
}

func (a *Assembler) pass2(lines []string) ([]byte, map[uint16]int, error) {
	program := make([]byte, 0)
	sourceMap := make(map[uint16]int)

	for i, raw := range lines {
		lineNo := i + 1
		p, err := parseLine(raw, lineNo)
		if err != nil {
			return nil, nil, err
		}

		if p.mnemonic == "" {
			continue
		}

		sourceMap[uint16(len(program))] = lineNo
		mnemonic, ops := p.mnemonic, p.operands

		switch mnemonic {
		case ".WORD":
			val, err := a.parseImmediate(ops[0], lineNo)
			if err != nil {
				return nil, nil, err
			}
			program = append(program, byte(val&0xFF), byte(val>>8))
			continue

		case ".BYTE":
			val, err := a.parseImmediate(ops[0], lineNo)
			if err != nil {
				return nil, nil, err
			}
			if val > 0xFF {
				return nil, nil, fmt.Errorf(".BYTE value out of range on line %d: %s", lineNo, ops[0])
			}
			program = append(program, byte(val))
			continue
		}

		opcode, ok := mnemonics[mnemonic]
		if !ok {
			return nil, nil, fmt.Errorf("unknown instruction on line %d: %s", lineNo, mnemonic)
		}
		f := formats[opcode]
		want := f.regs
		if f.imm {
			want++
		}
		if len(ops) != want {
			return nil, nil, fmt.Errorf("%s expects %d operand(s) on line %d", mnemonic, want, lineNo)
		}

		var regs [3]uint16
		for r := 0; r < f.regs; r++ {
			if regs[r], err = parseRegister(ops[r], lineNo); err != nil {
				return nil, nil, err
			}
		}
		instr := isa.EncodeInstruction(opcode, regs[0], regs[1], regs[2])
		program = append(program, byte(instr&0xFF), byte(instr>>8))

		if f.imm {
			imm, err := a.parseImmediate(ops[f.regs], lineNo)
			if err != nil {
				return nil, nil, err
			}
			program = append(program, byte(imm&0xFF), byte(imm>>8))
		}
	}

	return program, sourceMap, nil
}

func parseLine(raw string, lineNo int) (parsedLine, error) {
	p := parsedLine{lineNo: lineNo}

	line := strings.TrimSpace(stripComments(raw))
	if line == "" {
		return p, nil
	}

	for {
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			break
		}

		beforeColon := strings.TrimSpace(line[:colon])
		if strings.ContainsAny(beforeColon, " \t") {
			break
		}

		if !isLabel(beforeColon) {
			return p, fmt.Errorf("invalid label '%s' on line %d", beforeColon, lineNo)
		}

		p.labels = append(p.labels, beforeColon)
		line = strings.TrimSpace(line[colon+1:])
		if line == "" {
			return p, nil
		}
	}

	fields := strings.Fields(normalizeInstructionText(line))
	if len(fields) == 0 {
		return p, nil
	}

	p.mnemonic = strings.ToUpper(fields[0])
	if len(fields) > 1 {
		p.operands = fields[1:]
	}
	return p, nil
}

func stripComments(line string) string {
	semicolon := strings.Index(line, ";")
	doubleSlash := strings.Index(line, "//")

	cut := -1
	if semicolon >= 0 {
		cut = semicolon
	}
	if doubleSlash >= 0 && (cut == -1 || doubleSlash < cut) {
		cut = doubleSlash
	}
	if cut >= 0 {
		return line[:cut]
	}
	return line
}

func normalizeInstructionText(line string) string {
	replacer := strings.NewReplacer(",", " ", "[", " ", "]", " ")
	return replacer.Replace(line)
}

func parseRegister(token string, lineNo int) (uint16, error) {
	t := strings.ToUpper(token)
	if len(t) == 2 && t[0] == 'R' && t[1] >= '0' && t[1] <= '7' {
		return uint16(t[1] - '0'), nil
	}
	return 0, fmt.Errorf("invalid register '%s' on line %d", token, lineNo)
}

func (a *Assembler) parseImmediate(token string, lineNo int) (uint16, error) {
	if value, err := strconv.ParseUint(token, 0, 32); err == nil {
		if value > 0xFFFF {
			return 0, fmt.Errorf("immediate out of range on line %d: %s", lineNo, token)
		}
		return uint16(value), nil
	}

	if addr, ok := a.labels[token]; ok {
		return addr, nil
	}

	if isLabel(token) {
		return 0, fmt.Errorf("undefined label '%s' on line %d", token, lineNo)
	}

	return 0, fmt.Errorf("invalid immediate '%s' on line %d", token, lineNo)
}

func directiveLength(mnemonic string) (uint16, bool) {
	switch mnemonic {
	case ".WORD":
		return 2, true
	case ".BYTE":
		return 1, true
	}
	return 0, false
}

// instructionLength returns the byte length of an instruction.
// All instructions are 2 bytes; instructions with an immediate are 4 bytes.
func instructionLength(mnemonic string) (uint16, bool) {
	op, ok := mnemonics[strings.ToUpper(mnemonic)]
	if !ok {
		return 0, false
	}
	return uint16(op.Size()), true
}

// isLabel accepts identifiers plus dotted names such as ".L12" or ".G.count",
// which cannot clash with source-level function names.
func isLabel(s string) bool {
	if s == "" {
		return false
	}

	for i, r := range s {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' && r != '.' {
				return false
			}
			continue
		}

		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '.' {
			return false
		}
	}

	return true
}
