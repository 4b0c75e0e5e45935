// Package chain manages the parts on a JTAG chain: detection, instruction
// selection and chain-wide register shifts on top of a cable.
//
// Part 0 is the part nearest TDO. Its bits are the first to come out of the
// chain and the last to go in, so chain-wide registers are the concatenation
// of the part registers in index order, LSB first.
package chain

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/jtagchain/pkg/cable"
	"github.com/OpenTraceLab/jtagchain/pkg/register"
	"github.com/OpenTraceLab/jtagchain/pkg/scan"
	"github.com/OpenTraceLab/jtagchain/pkg/tap"
)

// AllParts addresses every part at once in SelectPart.
const AllParts = -1

// Limits bound the scans Detect uses to size the chain.
type Limits struct {
	MaxParts    int
	MaxIRLength int // total over all parts
}

// DefaultLimits matches common JTAG tools.
var DefaultLimits = Limits{MaxParts: 32, MaxIRLength: 1024}

// Chain is a cable and the parts found behind it. It is not safe for
// concurrent use.
type Chain struct {
	cable   cable.Cable
	shifter *scan.Shifter
	repo    Repository
	log     *logrus.Entry
	parts   []*Part
	active  int
	limits  Limits
	freq    int
}

// Open opens a cable from registry (the built-in drivers when nil) and
// wraps it in a chain. repo may be nil.
func Open(registry *cable.Registry, name string, params cable.Params, repo Repository) (*Chain, error) {
	if registry == nil {
		registry = cable.Default()
	}
	c, err := registry.Open(name, params)
	if err != nil {
		return nil, err
	}
	return New(c, repo), nil
}

// New wraps an open cable. The chain takes ownership of it. No signals are
// touched; call Reset or Detect before shifting.
func New(c cable.Cable, repo Repository) *Chain {
	log := logger.WithField("cable", c.Info().Driver)
	return &Chain{
		cable:   c,
		shifter: scan.New(c, log),
		repo:    repo,
		log:     log,
		active:  AllParts,
		limits:  DefaultLimits,
		freq:    c.Frequency(),
	}
}

// Cable returns the underlying cable, or nil after Disconnect.
func (c *Chain) Cable() cable.Cable { return c.cable }

// SetLimits changes the detection limits.
func (c *Chain) SetLimits(l Limits) error {
	if l.MaxParts <= 0 || l.MaxIRLength <= 0 {
		return fmt.Errorf("chain: invalid limits %+v", l)
	}
	c.limits = l
	return nil
}

func (c *Chain) Limits() Limits { return c.limits }

// TestCable checks the link to the adapter when the cable can do so.
func (c *Chain) TestCable() error {
	if c.cable == nil {
		return ErrNoCable
	}
	if t, ok := c.cable.(cable.Tester); ok {
		return t.Test()
	}
	return nil
}

// Disconnect closes the cable and forgets the parts.
func (c *Chain) Disconnect() error {
	if c.cable == nil {
		return ErrNoCable
	}
	err := c.cable.Close()
	c.cable = nil
	c.shifter = nil
	c.parts = nil
	c.active = AllParts
	c.freq = 0
	return err
}

// State returns the tracked TAP state.
func (c *Chain) State() tap.State {
	if c.shifter == nil {
		return tap.StateTestLogicReset
	}
	return c.shifter.State()
}

// GoTo walks the TAP to s. Passing through an Update state latches the
// registers as they stand.
func (c *Chain) GoTo(s tap.State) error {
	if c.cable == nil {
		return ErrNoCable
	}
	return c.shifter.GoTo(s)
}

// Reset pulses TRST when the cable has it, then clocks the TAP into
// Test-Logic-Reset. Every part falls back to its power-on instruction.
func (c *Chain) Reset() error {
	if c.cable == nil {
		return ErrNoCable
	}
	if c.cable.Info().Supports(cable.SignalTRST) {
		if _, err := c.SetSignal(cable.SignalTRST, 0); err != nil {
			return err
		}
		if _, err := c.SetSignal(cable.SignalTRST, cable.SignalTRST); err != nil {
			return err
		}
	}
	if err := c.shifter.Reset(); err != nil {
		return err
	}
	c.resetInstructions()
	return nil
}

// ResetBypass resets the chain and loads BYPASS into every part, leaving the
// TAP in Run-Test/Idle.
func (c *Chain) ResetBypass() error {
	if err := c.Reset(); err != nil {
		return err
	}
	if len(c.parts) == 0 {
		return nil
	}
	for _, p := range c.parts {
		p.active = p.instructions[InstructionBypass]
	}
	return c.ShiftIR()
}

func (c *Chain) resetInstructions() {
	for _, p := range c.parts {
		p.active = p.powerOn()
	}
}

// Len returns the number of parts.
func (c *Chain) Len() int { return len(c.parts) }

// Parts returns the parts in chain order.
func (c *Chain) Parts() []*Part {
	out := make([]*Part, len(c.parts))
	copy(out, c.parts)
	return out
}

// Part returns part i.
func (c *Chain) Part(i int) (*Part, error) {
	if i < 0 || i >= len(c.parts) {
		return nil, fmt.Errorf("%w: part %d of %d", ErrIndexOutOfRange, i, len(c.parts))
	}
	return c.parts[i], nil
}

// PartID returns the IDCODE of part i, 0 when it has none.
func (c *Chain) PartID(i int) (uint32, error) {
	p, err := c.Part(i)
	if err != nil {
		return 0, err
	}
	return uint32(p.id), nil
}

// SelectPart directs SetInstruction and the data register accessors at part
// i, or at the whole chain for AllParts.
func (c *Chain) SelectPart(i int) error {
	if i != AllParts {
		if _, err := c.Part(i); err != nil {
			return err
		}
	}
	c.active = i
	return nil
}

// ActivePart returns the selected part index or AllParts.
func (c *Chain) ActivePart() int { return c.active }

// AddPart appends a part of irLength bits for chains that cannot be
// detected, selects it, and loads BYPASS into every part. The chain is left
// as it was if the IR scan fails.
func (c *Chain) AddPart(irLength int) (*Part, error) {
	if c.cable == nil {
		return nil, ErrNoCable
	}
	if irLength <= 0 || irLength > c.limits.MaxIRLength {
		return nil, fmt.Errorf("chain: invalid IR length %d", irLength)
	}
	prevParts, prevActive := c.parts, c.active
	prevInstrs := make([]*Instruction, len(c.parts))
	for i, p := range c.parts {
		prevInstrs[i] = p.active
	}

	p := newPart(len(c.parts), 0, irLength)
	c.parts = append(c.parts[:len(c.parts):len(c.parts)], p)
	c.active = p.index
	for _, p := range c.parts {
		p.active = p.instructions[InstructionBypass]
	}
	if err := c.ShiftIR(); err != nil {
		c.parts, c.active = prevParts, prevActive
		for i, p := range prevParts {
			p.active = prevInstrs[i]
		}
		return nil, err
	}
	return p, nil
}

// AddRegister defines a data register on the selected part.
func (c *Chain) AddRegister(name string, length int) error {
	p, err := c.selected()
	if err != nil {
		return err
	}
	return p.addRegister(name, length)
}

// AddInstruction defines an instruction on the selected part. opcode is an
// MSB-first binary string as long as the part's IR.
func (c *Chain) AddInstruction(name, opcode, reg string) error {
	p, err := c.selected()
	if err != nil {
		return err
	}
	return p.addInstruction(name, opcode, reg)
}

// selected returns the addressed part. With the whole chain addressed it
// only succeeds for a single-part chain.
func (c *Chain) selected() (*Part, error) {
	switch {
	case len(c.parts) == 0:
		return nil, ErrNoParts
	case c.active != AllParts:
		return c.Part(c.active)
	case len(c.parts) == 1:
		return c.parts[0], nil
	}
	return nil, ErrNoPartSelected
}

// targets returns the addressed parts: the selected one or all of them.
func (c *Chain) targets() ([]*Part, error) {
	if len(c.parts) == 0 {
		return nil, ErrNoParts
	}
	if c.active == AllParts {
		return c.parts, nil
	}
	p, err := c.Part(c.active)
	if err != nil {
		return nil, err
	}
	return []*Part{p}, nil
}

// SetInstruction makes name the active instruction of the addressed parts.
// Nothing changes unless every addressed part knows the name. The new
// instruction takes effect with the next ShiftIR.
func (c *Chain) SetInstruction(name string) error {
	parts, err := c.targets()
	if err != nil {
		return err
	}
	instrs := make([]*Instruction, len(parts))
	for i, p := range parts {
		in, ok := p.Instruction(name)
		if !ok || in.Opcode == nil {
			return fmt.Errorf("%w: %s on part %d", ErrUnknownInstruction, name, p.index)
		}
		instrs[i] = in
	}
	for i, p := range parts {
		p.active = instrs[i]
	}
	return nil
}

// ShiftIR shifts every part's active opcode and stores the captured IR bits
// per part. Parts whose active instruction has no known opcode are sent
// BYPASS.
func (c *Chain) ShiftIR() error {
	if c.cable == nil {
		return ErrNoCable
	}
	if len(c.parts) == 0 {
		return ErrNoParts
	}
	ops := make([]*register.Register, len(c.parts))
	for i, p := range c.parts {
		if p.active.Opcode == nil {
			p.active = p.instructions[InstructionBypass]
		}
		ops[i] = p.active.Opcode
	}
	out, err := c.shifter.ShiftIR(register.Concat(ops...), scan.ExitIdle)
	if err != nil {
		return err
	}
	return splitInto(out, c.parts, func(p *Part) *register.Register { return p.irOut })
}

// ShiftDR shifts the In register of every part's active data register and
// stores the captured bits in the matching Out registers.
func (c *Chain) ShiftDR() error {
	if c.cable == nil {
		return ErrNoCable
	}
	if len(c.parts) == 0 {
		return ErrNoParts
	}
	ins := make([]*register.Register, len(c.parts))
	for i, p := range c.parts {
		ins[i] = p.active.Register.In
	}
	out, err := c.shifter.ShiftDR(register.Concat(ins...), scan.ExitIdle)
	if err != nil {
		return err
	}
	return splitInto(out, c.parts, activeOut)
}

// splitInto copies consecutive slices of r into the register dst picks for
// each part, in chain order.
func splitInto(r *register.Register, parts []*Part, dst func(*Part) *register.Register) error {
	pos := 0
	for _, p := range parts {
		d := dst(p)
		s, err := r.Slice(pos, d.Len())
		if err != nil {
			return err
		}
		if err := d.Copy(s); err != nil {
			return err
		}
		pos += d.Len()
	}
	if pos != r.Len() {
		return fmt.Errorf("chain: %d bits left over after splitting %d", r.Len()-pos, r.Len())
	}
	return nil
}

func activeIn(p *Part) *register.Register { return p.active.Register.In }
func activeOut(p *Part) *register.Register { return p.active.Register.Out }

// GetDRIn returns a copy of the data register that the next ShiftDR sends:
// the selected part's, or the whole chain's.
func (c *Chain) GetDRIn() (*register.Register, error) {
	return c.collect(activeIn)
}

// GetDROut returns a copy of the bits the last ShiftDR captured.
func (c *Chain) GetDROut() (*register.Register, error) {
	return c.collect(activeOut)
}

func (c *Chain) collect(src func(*Part) *register.Register) (*register.Register, error) {
	parts, err := c.targets()
	if err != nil {
		return nil, err
	}
	regs := make([]*register.Register, len(parts))
	for i, p := range parts {
		regs[i] = src(p)
	}
	return register.Concat(regs...), nil
}

// GetDRInRange returns bits msb..lsb of GetDRIn as an integer.
func (c *Chain) GetDRInRange(msb, lsb int) (uint64, error) {
	return c.rangeOf(activeIn, msb, lsb)
}

// GetDROutRange returns bits msb..lsb of GetDROut as an integer.
func (c *Chain) GetDROutRange(msb, lsb int) (uint64, error) {
	return c.rangeOf(activeOut, msb, lsb)
}

func (c *Chain) rangeOf(src func(*Part) *register.Register, msb, lsb int) (uint64, error) {
	r, err := c.collect(src)
	if err != nil {
		return 0, err
	}
	v, err := r.Range(msb, lsb)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIndexOutOfRange, err)
	}
	return v, nil
}

// SetDRIn loads value into the addressed data register. Bits beyond the
// register width are dropped.
func (c *Chain) SetDRIn(value uint64) error {
	r, err := c.collect(activeIn)
	if err != nil {
		return err
	}
	return c.store(register.FromUint(value, r.Len()))
}

// SetDRInString loads an MSB-first binary string, which must be exactly as
// wide as the addressed data register.
func (c *Chain) SetDRInString(bits string) error {
	v, err := register.Parse(bits)
	if err != nil {
		return err
	}
	return c.store(v)
}

// SetDRInRange stores value into bits msb..lsb of the addressed data
// register, leaving the other bits alone.
func (c *Chain) SetDRInRange(value uint64, msb, lsb int) error {
	r, err := c.collect(activeIn)
	if err != nil {
		return err
	}
	if err := r.SetRange(value, msb, lsb); err != nil {
		return fmt.Errorf("%w: %v", ErrIndexOutOfRange, err)
	}
	return c.store(r)
}

func (c *Chain) store(v *register.Register) error {
	parts, err := c.targets()
	if err != nil {
		return err
	}
	width := 0
	for _, p := range parts {
		width += activeIn(p).Len()
	}
	if v.Len() != width {
		return fmt.Errorf("chain: %d bits given for a %d-bit data register", v.Len(), width)
	}
	return splitInto(v, parts, activeIn)
}
