package bsdl

import (
	"fmt"
	"strconv"
	"strings"
)

// Standard register names from the REGISTER_ACCESS attribute.
const (
	RegisterBypass   = "BYPASS"
	RegisterDeviceID = "DEVICE_ID"
	RegisterBoundary = "BOUNDARY"
)

// Instruction is one entry of the instruction table. Opcode is MSB first,
// as written in the file with X bits resolved to 0; when a file lists
// several opcodes for a name the first one is used.
type Instruction struct {
	Name     string
	Opcode   string
	Register string
}

// Register is a data register and its length in bits.
type Register struct {
	Name   string
	Length int
}

// Description is what a chain needs to drive a part: its instruction table
// and the data registers those instructions select.
type Description struct {
	Entity         string
	IRLength       int
	IRCapture      string
	IDCode         string // may contain X wildcards
	IDValue        uint32
	IDMask         uint32
	BoundaryLength int
	MaxFrequency   float64 // Hertz, from TAP_SCAN_CLOCK; 0 when absent
	Instructions   []Instruction
	Registers      []Register
	Cells          []Cell // boundary cells sorted by number
}

// Instruction returns the named instruction, ignoring case.
func (d *Description) Instruction(name string) (Instruction, bool) {
	for _, in := range d.Instructions {
		if strings.EqualFold(in.Name, name) {
			return in, true
		}
	}
	return Instruction{}, false
}

// Describe extracts the part description from the entity attributes.
func (f *File) Describe() (*Description, error) {
	if f == nil || f.Entity == nil {
		return nil, fmt.Errorf("bsdl: no entity")
	}
	e := f.Entity
	d := &Description{Entity: e.Name}

	a := e.Attribute("INSTRUCTION_LENGTH")
	if a == nil {
		return nil, fmt.Errorf("bsdl: %s: missing INSTRUCTION_LENGTH", e.Name)
	}
	n, ok := a.Value.Int()
	if !ok || n < 2 {
		return nil, fmt.Errorf("bsdl: %s: invalid INSTRUCTION_LENGTH", e.Name)
	}
	d.IRLength = n

	if a := e.Attribute("INSTRUCTION_CAPTURE"); a != nil {
		d.IRCapture = strings.TrimSpace(a.Value.Text())
		if _, _, w := ParsePattern(d.IRCapture); w != d.IRLength {
			return nil, fmt.Errorf("bsdl: %s: INSTRUCTION_CAPTURE %q is not %d bits", e.Name, d.IRCapture, d.IRLength)
		}
	}
	if a := e.Attribute("IDCODE_REGISTER"); a != nil {
		d.IDCode = strings.TrimSpace(a.Value.Text())
		v, m, w := ParsePattern(d.IDCode)
		if w != 32 {
			return nil, fmt.Errorf("bsdl: %s: IDCODE_REGISTER %q is not 32 bits", e.Name, d.IDCode)
		}
		d.IDValue, d.IDMask = v, m
	}
	if a := e.Attribute("BOUNDARY_LENGTH"); a != nil {
		d.BoundaryLength, _ = a.Value.Int()
	}
	if a := e.Attribute("BOUNDARY_REGISTER"); a != nil {
		if d.BoundaryLength <= 0 {
			return nil, fmt.Errorf("bsdl: %s: BOUNDARY_REGISTER without BOUNDARY_LENGTH", e.Name)
		}
		cells, err := parseCells(a.Value.Text(), d.BoundaryLength)
		if err != nil {
			return nil, fmt.Errorf("bsdl: %s: BOUNDARY_REGISTER: %w", e.Name, err)
		}
		d.Cells = cells
	}
	if a := e.Attribute("TAP_SCAN_CLOCK"); a != nil {
		d.MaxFrequency = scanClock(a.Value)
	}

	a = e.Attribute("INSTRUCTION_OPCODE")
	if a == nil {
		return nil, fmt.Errorf("bsdl: %s: missing INSTRUCTION_OPCODE", e.Name)
	}
	opcodes, err := parseGroups(a.Value.Text())
	if err != nil {
		return nil, fmt.Errorf("bsdl: %s: INSTRUCTION_OPCODE: %w", e.Name, err)
	}

	access := make(map[string]string)
	lengths := map[string]int{
		RegisterBypass:   1,
		RegisterDeviceID: 32,
	}
	if d.BoundaryLength > 0 {
		lengths[RegisterBoundary] = d.BoundaryLength
	}
	if a := e.Attribute("REGISTER_ACCESS"); a != nil {
		groups, err := parseGroups(a.Value.Text())
		if err != nil {
			return nil, fmt.Errorf("bsdl: %s: REGISTER_ACCESS: %w", e.Name, err)
		}
		for _, g := range groups {
			name, length, err := registerName(g.name)
			if err != nil {
				return nil, fmt.Errorf("bsdl: %s: REGISTER_ACCESS: %w", e.Name, err)
			}
			if length > 0 {
				lengths[name] = length
			}
			for _, instr := range g.items {
				access[strings.ToUpper(instr)] = name
			}
		}
	}

	used := make(map[string]bool)
	for _, g := range opcodes {
		if len(g.items) == 0 {
			return nil, fmt.Errorf("bsdl: %s: instruction %s has no opcode", e.Name, g.name)
		}
		op := g.items[0]
		if len(op) != d.IRLength || strings.Trim(op, "01xX") != "" {
			return nil, fmt.Errorf("bsdl: %s: instruction %s opcode %q does not fit a %d-bit IR", e.Name, g.name, op, d.IRLength)
		}
		// Don't-care opcode bits are shifted as 0.
		op = strings.Map(func(r rune) rune {
			if r == 'x' || r == 'X' {
				return '0'
			}
			return r
		}, op)
		reg, ok := access[strings.ToUpper(g.name)]
		if !ok {
			reg = defaultRegister(g.name)
		}
		if _, ok := lengths[reg]; !ok {
			return nil, fmt.Errorf("bsdl: %s: instruction %s selects %s of unknown length", e.Name, g.name, reg)
		}
		d.Instructions = append(d.Instructions, Instruction{Name: g.name, Opcode: op, Register: reg})
		if !used[reg] {
			used[reg] = true
			d.Registers = append(d.Registers, Register{Name: reg, Length: lengths[reg]})
		}
	}
	return d, nil
}

// defaultRegister applies the IEEE 1149.1 register mapping for instructions
// REGISTER_ACCESS does not mention.
func defaultRegister(instr string) string {
	switch strings.ToUpper(instr) {
	case "EXTEST", "SAMPLE", "PRELOAD", "INTEST", "RUNBIST":
		return RegisterBoundary
	case "IDCODE", "USERCODE":
		return RegisterDeviceID
	}
	return RegisterBypass
}

// registerName splits "USER1[8]" into its name and declared length.
func registerName(s string) (string, int, error) {
	open := strings.IndexByte(s, '[')
	if open < 0 {
		return strings.ToUpper(s), 0, nil
	}
	end := strings.IndexByte(s, ']')
	if end < open {
		return "", 0, fmt.Errorf("malformed register %q", s)
	}
	n, err := strconv.Atoi(strings.TrimSpace(s[open+1 : end]))
	if err != nil || n <= 0 {
		return "", 0, fmt.Errorf("malformed register length in %q", s)
	}
	return strings.ToUpper(strings.TrimSpace(s[:open])), n, nil
}

type group struct {
	name  string
	items []string
}

// parseGroups reads "NAME (a, b), OTHER (c)" lists. Items may hold their
// own parentheses, as in "2 (BC_1, D(3), output3, X)".
func parseGroups(s string) ([]group, error) {
	var out []group
	rest := s
	for {
		rest = strings.TrimLeft(rest, " \t\r\n,")
		if rest == "" {
			return out, nil
		}
		open := strings.IndexByte(rest, '(')
		if open <= 0 {
			return nil, fmt.Errorf("expected NAME (...) at %q", rest)
		}
		g := group{name: strings.TrimSpace(rest[:open])}
		depth, start, end := 0, open+1, -1
	scan:
		for i := open + 1; i < len(rest); i++ {
			switch rest[i] {
			case '(':
				depth++
			case ')':
				if depth == 0 {
					end = i
					break scan
				}
				depth--
			case ',':
				if depth == 0 {
					g.add(rest[start:i])
					start = i + 1
				}
			}
		}
		if end < 0 {
			return nil, fmt.Errorf("unterminated list after %q", rest[:open])
		}
		g.add(rest[start:end])
		out = append(out, g)
		rest = rest[end+1:]
	}
}

func (g *group) add(item string) {
	if item = strings.TrimSpace(item); item != "" {
		g.items = append(g.items, item)
	}
}

// ParsePattern reads an MSB-first binary pattern where X marks a don't-care
// bit. mask has a 1 for every defined bit; width counts all digits.
// Characters other than 0, 1 and X are ignored.
func ParsePattern(s string) (value, mask uint32, width int) {
	for _, ch := range s {
		switch ch {
		case '0', '1':
			value = value<<1 | uint32(ch-'0')
			mask = mask<<1 | 1
		case 'X', 'x':
			value <<= 1
			mask <<= 1
		default:
			continue
		}
		width++
	}
	return value, mask, width
}

func scanClock(e *Expression) float64 {
	if e == nil || len(e.Terms) == 0 || e.Terms[0].Tuple == nil {
		return 0
	}
	vals := e.Terms[0].Tuple.Values
	if len(vals) == 0 || len(vals[0].Terms) == 0 {
		return 0
	}
	t := vals[0].Terms[0]
	switch {
	case t.Real != nil:
		return *t.Real
	case t.Integer != nil:
		return float64(*t.Integer)
	}
	return 0
}
