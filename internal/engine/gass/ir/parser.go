package ir

import (
	"math"
	"strconv"
	"strings"

	"github.com/nikandfor/errors"
)

// Parse reads a function in the textual GASS form:
//
//	func saxpy
//	entry:
//		S2R R0, SR_TID.X
//		LDG R2, [R0+0x10]
//		@P0 BRA exit
//	body:
//		STG [R4], R2
//	exit:
//		EXIT
//
// Comments start with '#', "//" or ';'. An optional control field in the form printed by
// Function.Format may precede each instruction and is ignored. The CFG is derived from the
// branches: a block falls through to the next one unless it ends with an unconditional BRA or EXIT.
func Parse(src string) (*Function, error) {
	type line struct {
		no   int
		text string
	}

	var name string
	var lines []line
	for i, raw := range strings.Split(src, "\n") {
		text := stripComment(raw)
		if text == "" {
			continue
		}
		if rest, ok := cutPrefixWord(text, "func"); ok && name == "" && len(lines) == 0 {
			name = rest
			continue
		}
		lines = append(lines, line{no: i + 1, text: text})
	}
	if name == "" {
		name = "main"
	}

	f := NewFunction(name)
	labels := map[string]BlockID{}
	for _, l := range lines {
		if label, ok := parseLabel(l.text); ok {
			if _, dup := labels[label]; dup {
				return nil, errors.New("line %d: duplicate label %q", l.no, label)
			}
			labels[label] = f.AllocateBlock(label).ID
		}
	}

	var cur *Block
	blockIndex := 0
	for _, l := range lines {
		if _, ok := parseLabel(l.text); ok {
			cur = f.Blocks[blockIndex]
			blockIndex++
			continue
		}
		if cur == nil {
			return nil, errors.New("line %d: instruction outside of a block", l.no)
		}
		if err := parseInstr(f, cur, labels, l.text); err != nil {
			return nil, errors.Wrap(err, "line %d", l.no)
		}
	}

	buildCFG(f)
	return f, nil
}

// MustParse is like Parse but panics on error. It is intended for tests and static fixtures.
func MustParse(src string) *Function {
	f, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return f
}

func buildCFG(f *Function) {
	for _, b := range f.Blocks {
		falls := true
		if last := f.LastInstr(b); last != nil {
			switch last.Op {
			case OpcodeBra:
				for k := range last.Operands {
					if o := &last.Operands[k]; o.Kind == OperandKindLabel {
						f.AddEdge(b.ID, o.Target)
					}
				}
				falls = last.Guarded()
			case OpcodeExit:
				falls = last.Guarded()
			}
		}
		if next := int(b.ID) + 1; falls && next < len(f.Blocks) {
			f.AddEdge(b.ID, BlockID(next))
		}
	}
}

func stripComment(s string) string {
	for _, marker := range []string{"#", "//", ";"} {
		if i := strings.Index(s, marker); i >= 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}

func cutPrefixWord(s, word string) (string, bool) {
	if !strings.HasPrefix(s, word+" ") && !strings.HasPrefix(s, word+"\t") {
		return "", false
	}
	return strings.TrimSpace(s[len(word):]), true
}

func parseLabel(s string) (string, bool) {
	if !strings.HasSuffix(s, ":") {
		return "", false
	}
	label := strings.TrimSuffix(s, ":")
	if label == "" || strings.ContainsAny(label, " \t,[]") {
		return "", false
	}
	return label, true
}

func parseInstr(f *Function, b *Block, labels map[string]BlockID, text string) error {
	if last := f.LastInstr(b); last != nil && last.IsTerminator() {
		return errors.New("instruction after %s", last.Op)
	}

	// Skip the control field, e.g. "B------:R-:W-:S01".
	if fields := strings.Fields(text); len(fields) > 1 && strings.HasPrefix(fields[0], "B") && strings.Contains(fields[0], ":S") {
		text = strings.TrimSpace(text[len(fields[0]):])
	}

	guard, guardNeg := PT, false
	if strings.HasPrefix(text, "@") {
		fields := strings.Fields(text)
		g := strings.TrimPrefix(fields[0], "@")
		if strings.HasPrefix(g, "!") {
			guardNeg = true
			g = g[1:]
		}
		r, ok := parseReg(g)
		if !ok || r.Class != RegClassPredicate {
			return errors.New("invalid guard %q", fields[0])
		}
		guard = r
		text = strings.TrimSpace(text[len(fields[0]):])
	}

	mnemonic, rest := text, ""
	if i := strings.IndexAny(text, " \t"); i >= 0 {
		mnemonic, rest = text[:i], strings.TrimSpace(text[i:])
	}
	op, ok := OpcodeByName(strings.ToUpper(mnemonic))
	if !ok {
		return errors.New("unknown opcode %q", mnemonic)
	}

	var operands []Operand
	if rest != "" {
		for k, tok := range strings.Split(rest, ",") {
			o, err := parseOperand(strings.TrimSpace(tok), labels)
			if err != nil {
				return errors.Wrap(err, "%s operand %d", op, k)
			}
			operands = append(operands, o)
		}
	}
	if op.HasDef() {
		if len(operands) == 0 || operands[0].Kind != OperandKindReg || operands[0].Addr {
			return errors.New("%s needs a destination register", op)
		}
		operands[0].Def = true
	}
	if op.IsBranch() {
		if len(operands) != 1 || operands[0].Kind != OperandKindLabel {
			return errors.New("%s needs a single label", op)
		}
	}

	i := f.Append(b, op, operands...)
	i.Guard, i.GuardNeg = guard, guardNeg
	return nil
}

func parseOperand(tok string, labels map[string]BlockID) (Operand, error) {
	switch {
	case tok == "":
		return Operand{}, errors.New("empty operand")
	case strings.HasPrefix(tok, "["):
		return parseAddr(tok)
	case strings.HasPrefix(tok, "c["):
		parts := strings.Split(strings.TrimPrefix(tok, "c["), "][")
		if len(parts) != 2 || !strings.HasSuffix(parts[1], "]") {
			return Operand{}, errors.New("invalid constant operand %q", tok)
		}
		bank, err := strconv.ParseUint(parts[0], 0, 8)
		if err != nil {
			return Operand{}, errors.Wrap(err, "constant bank")
		}
		offset, err := strconv.ParseInt(strings.TrimSuffix(parts[1], "]"), 0, 64)
		if err != nil {
			return Operand{}, errors.Wrap(err, "constant offset")
		}
		return ConstOperand(uint8(bank), offset), nil
	case strings.HasPrefix(tok, "SR_"):
		return Operand{Kind: OperandKindSpecial, Name: tok}, nil
	}
	if r, ok := parseReg(tok); ok {
		return RegOperand(r), nil
	}
	if v, err := strconv.ParseInt(tok, 0, 64); err == nil {
		return ImmOperand(v), nil
	}
	if v, err := strconv.ParseFloat(tok, 32); err == nil {
		return ImmOperand(int64(math.Float32bits(float32(v)))), nil
	}
	if b, ok := labels[tok]; ok {
		return LabelOperand(b), nil
	}
	return Operand{}, errors.New("invalid operand %q", tok)
}

func parseAddr(tok string) (Operand, error) {
	if !strings.HasSuffix(tok, "]") {
		return Operand{}, errors.New("unterminated address %q", tok)
	}
	inner := strings.TrimSpace(tok[1 : len(tok)-1])
	base, offsetStr, sign := inner, "", int64(1)
	if i := strings.IndexAny(inner, "+-"); i > 0 {
		base, offsetStr = strings.TrimSpace(inner[:i]), strings.TrimSpace(inner[i+1:])
		if inner[i] == '-' {
			sign = -1
		}
	}
	r, ok := parseReg(base)
	if !ok {
		// Absolute address.
		v, err := strconv.ParseInt(inner, 0, 64)
		if err != nil {
			return Operand{}, errors.New("invalid address %q", tok)
		}
		return AddrOperand(RZ, v), nil
	}
	var offset int64
	if offsetStr != "" {
		v, err := strconv.ParseInt(offsetStr, 0, 64)
		if err != nil {
			return Operand{}, errors.Wrap(err, "address offset")
		}
		offset = sign * v
	}
	return AddrOperand(r, offset), nil
}

func parseReg(tok string) (Reg, bool) {
	switch tok {
	case "RZ":
		return RZ, true
	case "PT":
		return PT, true
	}
	if len(tok) < 2 {
		return Reg{}, false
	}
	var class RegClass
	switch tok[0] {
	case 'R':
		class = RegClassGeneral
	case 'P':
		class = RegClassPredicate
	default:
		return Reg{}, false
	}
	num, suffix := tok[1:], ""
	if i := strings.IndexByte(num, '.'); i >= 0 {
		num, suffix = num[:i], num[i+1:]
	}
	n, err := strconv.ParseUint(num, 10, 16)
	if err != nil {
		return Reg{}, false
	}
	width := uint8(1)
	switch suffix {
	case "", "32":
	case "64":
		width = 2
	case "128":
		width = 4
	default:
		return Reg{}, false
	}
	if class == RegClassPredicate && (width != 1 || n >= regIndexTruePredicate) {
		return Reg{}, false
	}
	if class == RegClassGeneral && int(n)+int(width) > regIndexZeroGeneral {
		return Reg{}, false
	}
	return Reg{Class: class, Index: uint16(n), Width: width}, true
}
