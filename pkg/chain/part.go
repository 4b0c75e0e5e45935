package chain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/OpenTraceLab/jtagchain/pkg/bsdl"
	"github.com/OpenTraceLab/jtagchain/pkg/idcode"
	"github.com/OpenTraceLab/jtagchain/pkg/register"
)

// Well-known instruction and register names.
const (
	InstructionBypass = "BYPASS"
	InstructionIDCode = "IDCODE"

	RegisterBypass   = bsdl.RegisterBypass
	RegisterDeviceID = bsdl.RegisterDeviceID
	RegisterBoundary = bsdl.RegisterBoundary
)

// DataRegister is one data register of a part. In is shifted in by the
// next ShiftDR; Out holds what the last ShiftDR captured.
type DataRegister struct {
	Name string
	In   *register.Register
	Out  *register.Register
}

func newDataRegister(name string, length int) *DataRegister {
	return &DataRegister{
		Name: name,
		In:   register.New(length),
		Out:  register.New(length),
	}
}

func (r *DataRegister) Len() int { return r.In.Len() }

// Instruction is an opcode and the data register it places between TDI and
// TDO. Opcode is nil for the IDCODE a part loads itself on reset when its
// opcode is not known.
type Instruction struct {
	Name     string
	Opcode   *register.Register
	Register *DataRegister
}

// Part is one TAP on the chain.
type Part struct {
	index        int
	id           idcode.IDCode
	irLength     int
	desc         *bsdl.Description
	instructions map[string]*Instruction
	registers    map[string]*DataRegister
	active       *Instruction
	irOut        *register.Register
}

func newPart(index int, id idcode.IDCode, irLength int) *Part {
	p := &Part{
		index:        index,
		id:           id,
		irLength:     irLength,
		instructions: make(map[string]*Instruction),
		registers:    make(map[string]*DataRegister),
		irOut:        register.New(irLength),
	}
	bypass := newDataRegister(RegisterBypass, 1)
	p.registers[RegisterBypass] = bypass
	p.instructions[InstructionBypass] = &Instruction{
		Name:     InstructionBypass,
		Opcode:   register.New(irLength).Fill(true),
		Register: bypass,
	}
	if id.Valid() {
		p.registers[RegisterDeviceID] = newDataRegister(RegisterDeviceID, 32)
	}
	p.active = p.powerOn()
	return p
}

// applyDescription loads the instruction table of a BSDL description. The
// IR length must already agree with it.
func (p *Part) applyDescription(d *bsdl.Description) error {
	if d.IRLength != p.irLength {
		return fmt.Errorf("chain: part %d: %s has a %d-bit IR, chain has %d", p.index, d.Entity, d.IRLength, p.irLength)
	}
	for _, r := range d.Registers {
		if _, ok := p.registers[r.Name]; !ok {
			p.registers[r.Name] = newDataRegister(r.Name, r.Length)
		}
	}
	for _, in := range d.Instructions {
		op, err := register.Parse(in.Opcode)
		if err != nil {
			return fmt.Errorf("chain: part %d: %s: %w", p.index, in.Name, err)
		}
		p.instructions[strings.ToUpper(in.Name)] = &Instruction{
			Name:     in.Name,
			Opcode:   op,
			Register: p.registers[in.Register],
		}
	}
	p.desc = d
	p.active = p.powerOn()
	return nil
}

// powerOn returns the instruction the part holds after Test-Logic-Reset.
func (p *Part) powerOn() *Instruction {
	if in, ok := p.instructions[InstructionIDCode]; ok {
		return in
	}
	if dir, ok := p.registers[RegisterDeviceID]; ok {
		return &Instruction{Name: InstructionIDCode, Register: dir}
	}
	return p.instructions[InstructionBypass]
}

func (p *Part) Index() int { return p.index }
func (p *Part) IDCode() idcode.IDCode { return p.id }
func (p *Part) IRLength() int { return p.irLength }
func (p *Part) ActiveInstruction() *Instruction { return p.active }

// Description returns the BSDL description the part was built from, or nil.
func (p *Part) Description() *bsdl.Description { return p.desc }

// Entity returns the BSDL entity name, or "" for parts without a description.
func (p *Part) Entity() string {
	if p.desc == nil {
		return ""
	}
	return p.desc.Entity
}

// CapturedIR returns the bits the last ShiftIR captured from this part.
func (p *Part) CapturedIR() *register.Register { return p.irOut.Clone() }

// Instruction looks up an instruction by name, ignoring case.
func (p *Part) Instruction(name string) (*Instruction, bool) {
	in, ok := p.instructions[strings.ToUpper(name)]
	return in, ok
}

// Instructions returns the instruction names, sorted.
func (p *Part) Instructions() []string {
	names := make([]string, 0, len(p.instructions))
	for _, in := range p.instructions {
		names = append(names, in.Name)
	}
	sort.Strings(names)
	return names
}

// Register looks up a data register by name.
func (p *Part) Register(name string) (*DataRegister, bool) {
	r, ok := p.registers[strings.ToUpper(name)]
	return r, ok
}

// Registers returns the data register names, sorted.
func (p *Part) Registers() []string {
	names := make([]string, 0, len(p.registers))
	for name := range p.registers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p *Part) addRegister(name string, length int) error {
	key := strings.ToUpper(name)
	if key == "" || length <= 0 {
		return fmt.Errorf("chain: invalid register %q of %d bits", name, length)
	}
	if _, ok := p.registers[key]; ok {
		return fmt.Errorf("chain: part %d already has register %s", p.index, key)
	}
	p.registers[key] = newDataRegister(key, length)
	return nil
}

func (p *Part) addInstruction(name, opcode, reg string) error {
	key := strings.ToUpper(name)
	if key == "" {
		return fmt.Errorf("chain: empty instruction name")
	}
	op, err := register.Parse(opcode)
	if err != nil {
		return fmt.Errorf("chain: instruction %s: %w", name, err)
	}
	if op.Len() != p.irLength {
		return fmt.Errorf("chain: instruction %s: opcode has %d bits, IR has %d", name, op.Len(), p.irLength)
	}
	dr, ok := p.Register(reg)
	if !ok {
		return fmt.Errorf("%w: %s on part %d", ErrUnknownRegister, reg, p.index)
	}
	p.instructions[key] = &Instruction{Name: key, Opcode: op, Register: dr}
	return nil
}

func (p *Part) String() string {
	s := fmt.Sprintf("part %d: ", p.index)
	if p.id.Valid() {
		s += p.id.String()
	} else {
		s += "no IDCODE"
	}
	s += fmt.Sprintf(", IR %d bits", p.irLength)
	if e := p.Entity(); e != "" {
		s += ", " + e
	}
	return s
}
