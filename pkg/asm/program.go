package asm

import (
	"errors"
	"fmt"
	"strings"

	"sprig/pkg/isa"
)

var ErrProgramTooLarge = errors.New("program too large")

// Assemble encodes prog. Code starts at address 0 and the data image
// follows it directly; global operands resolve to addresses in that image.
// The source map relates each instruction's address to its index in
// prog.Code.
func Assemble(prog *isa.Program) ([]byte, map[uint16]int, error) {
	// Pass 1: instruction addresses. addrs[len(Code)] is the end of code.
	addrs := make([]int, len(prog.Code)+1)
	address := 0
	for i, in := range prog.Code {
		addrs[i] = address
		address += in.Op.Size()
	}
	addrs[len(prog.Code)] = address
	dataBase := address
	if dataBase+len(prog.Data) > 0x10000 {
		return nil, nil, fmt.Errorf("%w: %d bytes", ErrProgramTooLarge, dataBase+len(prog.Data))
	}

	// Pass 2: encoding.
	out := make([]byte, 0, dataBase+len(prog.Data))
	sourceMap := make(map[uint16]int, len(prog.Code))
	for i, in := range prog.Code {
		sourceMap[uint16(addrs[i])] = i

		f, ok := formats[in.Op]
		if !ok {
			return nil, nil, fmt.Errorf("instruction %d: unsupported opcode %s", i, in.Op)
		}
		want := f.regs
		if f.imm {
			want++
		}
		if len(in.Args) != want {
			return nil, nil, fmt.Errorf("instruction %d: %s expects %d operand(s), got %d", i, in.Op, want, len(in.Args))
		}

		var regs [3]uint16
		for r := 0; r < f.regs; r++ {
			arg := in.Args[r]
			if arg.Kind != isa.KindReg || arg.Value < 0 || arg.Value > 7 {
				return nil, nil, fmt.Errorf("instruction %d: operand %d of %s is not a register", i, r+1, in.Op)
			}
			regs[r] = uint16(arg.Value)
		}
		word := isa.EncodeInstruction(in.Op, regs[0], regs[1], regs[2])
		out = append(out, byte(word&0xFF), byte(word>>8))

		if !f.imm {
			continue
		}
		imm, err := resolve(in.Args[f.regs], addrs, dataBase, len(prog.Data))
		if err != nil {
			return nil, nil, fmt.Errorf("instruction %d: %s: %w", i, in.Op, err)
		}
		out = append(out, byte(imm&0xFF), byte(imm>>8))
	}

	out = append(out, prog.Data...)
	return out, sourceMap, nil
}

func resolve(o isa.Operand, addrs []int, dataBase, dataLen int) (uint16, error) {
	switch o.Kind {
	case isa.KindImm:
		return uint16(o.Value), nil
	case isa.KindTarget:
		if o.Value < 0 || o.Value >= len(addrs) {
			return 0, fmt.Errorf("branch target %d out of range", o.Value)
		}
		return uint16(addrs[o.Value]), nil
	case isa.KindGlobal:
		if o.Value < 0 || o.Value > dataLen {
			return 0, fmt.Errorf("global %s at offset %d outside the data image", o.Name, o.Value)
		}
		return uint16(dataBase + o.Value), nil
	}
	return 0, fmt.Errorf("operand %s is not an immediate", o)
}

// Listing renders prog as assembly text that AssembleText turns into the
// same bytes Assemble produces. Function entries are labelled with their
// names, other branch targets with .L<index>, globals with .G.<name>.
func Listing(prog *isa.Program) string {
	labels := make(map[int]string)
	for _, in := range prog.Code {
		for _, a := range in.Args {
			if a.Kind == isa.KindTarget {
				labels[a.Value] = fmt.Sprintf(".L%d", a.Value)
			}
		}
	}
	for _, fn := range prog.Funcs {
		labels[fn.Index] = fn.Name
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "; %d instructions, %d bytes of data\n", len(prog.Code), len(prog.Data))
	for i, in := range prog.Code {
		if label, ok := labels[i]; ok {
			if i > 0 && isFunc(prog, i) {
				sb.WriteByte('\n')
			}
			fmt.Fprintf(&sb, "%s:\n", label)
		}
		sb.WriteString("    ")
		sb.WriteString(in.Op.String())
		for j, a := range in.Args {
			if j == 0 {
				sb.WriteByte(' ')
			} else {
				sb.WriteString(", ")
			}
			sb.WriteString(listOperand(in.Op, j, a, labels))
		}
		sb.WriteByte('\n')
	}
	if label, ok := labels[len(prog.Code)]; ok {
		fmt.Fprintf(&sb, "%s:\n", label)
	}

	if len(prog.Data) == 0 {
		return sb.String()
	}
	sb.WriteString("\n; data\n")
	next := 0
	for _, g := range prog.Globals {
		if g.Offset != next || g.Offset+g.Size > len(prog.Data) {
			break
		}
		fmt.Fprintf(&sb, ".G.%s:\n", g.Name)
		switch g.Size {
		case 2:
			fmt.Fprintf(&sb, "    .WORD %d\n", uint16(prog.Data[g.Offset])|uint16(prog.Data[g.Offset+1])<<8)
		default:
			for _, b := range prog.Data[g.Offset : g.Offset+g.Size] {
				fmt.Fprintf(&sb, "    .BYTE %d\n", b)
			}
		}
		next = g.Offset + g.Size
	}
	for _, b := range prog.Data[next:] {
		fmt.Fprintf(&sb, "    .BYTE %d\n", b)
	}
	return sb.String()
}

func isFunc(prog *isa.Program, index int) bool {
	for _, fn := range prog.Funcs {
		if fn.Index == index {
			return true
		}
	}
	return false
}

func listOperand(op isa.Opcode, pos int, a isa.Operand, labels map[int]string) string {
	var s string
	switch a.Kind {
	case isa.KindTarget:
		s = labels[a.Value]
	case isa.KindGlobal:
		s = ".G." + a.Name
	default:
		s = a.String()
	}
	if (op == isa.OpLD || op == isa.OpLDB) && pos == 1 || (op == isa.OpST || op == isa.OpSTB) && pos == 0 {
		s = "[" + s + "]"
	}
	return s
}
