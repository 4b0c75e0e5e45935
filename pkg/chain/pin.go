package chain

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/OpenTraceLab/jtagchain/pkg/bsdl"
	"github.com/OpenTraceLab/jtagchain/pkg/register"
)

// Boundary-scan instruction names.
const (
	InstructionSample  = "SAMPLE"
	InstructionPreload = "PRELOAD"
	InstructionExtest  = "EXTEST"
)

// Level is what a batch does with a pin.
type Level int

const (
	Low Level = iota
	High
	// HighZ turns the pin driver off through its control cell.
	HighZ
)

func (l Level) String() string {
	switch l {
	case Low:
		return "0"
	case High:
		return "1"
	case HighZ:
		return "Z"
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// ParseLevel reads 0/1/Z and their low/high/hiz spellings.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "0", "low":
		return Low, nil
	case "1", "high":
		return High, nil
	case "z", "hiz":
		return HighZ, nil
	}
	return 0, fmt.Errorf("chain: invalid pin level %q", s)
}

// boundary holds the instructions a part needs for pin access.
type boundary struct {
	desc    *bsdl.Description
	sample  *Instruction
	preload *Instruction
	extest  *Instruction
}

func (c *Chain) boundaryOf(i int) (*Part, *boundary, error) {
	p, err := c.Part(i)
	if err != nil {
		return nil, nil, err
	}
	if p.desc == nil || len(p.desc.Cells) == 0 {
		return nil, nil, fmt.Errorf("%w: part %d has no boundary cells", ErrNoBoundaryScan, i)
	}
	b := &boundary{desc: p.desc}
	lookup := func(names ...string) *Instruction {
		for _, n := range names {
			if in, ok := p.instructions[n]; ok && in.Opcode != nil && in.Register != nil && in.Register.Name == RegisterBoundary {
				return in
			}
		}
		return nil
	}
	b.sample = lookup(InstructionSample, InstructionPreload)
	b.preload = lookup(InstructionPreload, InstructionSample)
	b.extest = lookup(InstructionExtest)
	if b.sample == nil || b.extest == nil {
		return nil, nil, fmt.Errorf("%w: part %d lacks SAMPLE or EXTEST", ErrNoBoundaryScan, i)
	}
	if n := b.extest.Register.Len(); n != p.desc.BoundaryLength {
		return nil, nil, fmt.Errorf("%w: part %d boundary register is %d bits, description has %d", ErrNoBoundaryScan, i, n, p.desc.BoundaryLength)
	}
	return p, b, nil
}

// safeVector loads every cell with its safe value; X cells get 0.
func (b *boundary) safeVector() *register.Register {
	v := register.New(b.desc.BoundaryLength)
	for _, cell := range b.desc.Cells {
		if cell.Safe == "1" {
			_ = v.SetBit(cell.Number, true)
		}
	}
	return v
}

func (b *boundary) apply(v *register.Register, pin string, l Level) error {
	out, ok := b.desc.OutputCell(pin)
	if !ok {
		return fmt.Errorf("%w: %s has no output cell", ErrUnknownPin, pin)
	}
	if l == HighZ {
		if out.Control < 0 {
			return fmt.Errorf("%w: %s has no control cell", ErrUnknownPin, pin)
		}
		return v.SetBit(out.Control, out.Disable == 1)
	}
	if err := v.SetBit(out.Number, l == High); err != nil {
		return err
	}
	if out.Control >= 0 {
		return v.SetBit(out.Control, out.Disable == 0)
	}
	return nil
}

// Batch queues pin writes and reads on several parts. Execute loads the
// new output values with SAMPLE/PRELOAD, then switches the writing parts to
// EXTEST and captures every queued part in the same DR scan. Parts that are
// already in EXTEST skip the preload and keep their other pins as driven.
type Batch struct {
	chain *Chain
	ops   map[int]*batchPart
}

type batchPart struct {
	pins    map[string]Level
	capture bool
}

// NewBatch returns an empty batch on the chain.
func (c *Chain) NewBatch() *Batch {
	return &Batch{chain: c, ops: make(map[int]*batchPart)}
}

func (b *Batch) entry(part int) *batchPart {
	op, ok := b.ops[part]
	if !ok {
		op = &batchPart{pins: make(map[string]Level)}
		b.ops[part] = op
	}
	return op
}

// SetPin queues pin of part to be driven to l. A later call for the same pin
// replaces the earlier one.
func (b *Batch) SetPin(part int, pin string, l Level) error {
	_, bs, err := b.chain.boundaryOf(part)
	if err != nil {
		return err
	}
	if err := bs.apply(bs.safeVector(), pin, l); err != nil {
		return err
	}
	out, _ := bs.desc.OutputCell(pin)
	b.entry(part).pins[out.Port] = l
	return nil
}

// Capture queues a read of the boundary register of part.
func (b *Batch) Capture(part int) error {
	if _, _, err := b.chain.boundaryOf(part); err != nil {
		return err
	}
	b.entry(part).capture = true
	return nil
}

// BatchResult holds the boundary registers a batch captured.
type BatchResult struct {
	chain *Chain
	regs  map[int]*register.Register
}

// Register returns the captured boundary register of part, cell 0 in bit 0.
func (r *BatchResult) Register(part int) (*register.Register, bool) {
	reg, ok := r.regs[part]
	if !ok {
		return nil, false
	}
	return reg.Clone(), true
}

// Pin returns the level the input cell of pin captured.
func (r *BatchResult) Pin(part int, pin string) (bool, error) {
	reg, ok := r.regs[part]
	if !ok {
		return false, fmt.Errorf("chain: part %d was not captured", part)
	}
	_, bs, err := r.chain.boundaryOf(part)
	if err != nil {
		return false, err
	}
	in, ok := bs.desc.InputCell(pin)
	if !ok {
		return false, fmt.Errorf("%w: %s has no input cell", ErrUnknownPin, pin)
	}
	return reg.Bit(in.Number), nil
}

type batchPlan struct {
	part  *Part
	bs    *boundary
	op    *batchPart
	drive *register.Register // nil when the part is only captured
}

// Execute runs the queued operations. Parts outside the batch keep their
// active instruction and data.
func (b *Batch) Execute() (*BatchResult, error) {
	c := b.chain
	if c.cable == nil {
		return nil, ErrNoCable
	}
	if len(b.ops) == 0 {
		return nil, errors.New("chain: empty batch")
	}
	indices := make([]int, 0, len(b.ops))
	for i := range b.ops {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	plans := make([]batchPlan, 0, len(indices))
	preload := false
	for _, i := range indices {
		p, bs, err := c.boundaryOf(i)
		if err != nil {
			return nil, err
		}
		plan := batchPlan{part: p, bs: bs, op: b.ops[i]}
		if len(plan.op.pins) > 0 {
			if p.active == bs.extest {
				plan.drive = p.active.Register.In.Clone()
			} else {
				plan.drive = bs.safeVector()
				preload = true
			}
			for pin, l := range plan.op.pins {
				if err := bs.apply(plan.drive, pin, l); err != nil {
					return nil, err
				}
			}
		}
		plans = append(plans, plan)
	}

	if preload {
		for _, pl := range plans {
			switch {
			case pl.part.active == pl.bs.extest:
			case pl.drive != nil:
				pl.part.active = pl.bs.preload
				_ = pl.part.active.Register.In.Copy(pl.drive)
			default:
				pl.part.active = pl.bs.sample
			}
		}
		if err := c.scanBoundary(); err != nil {
			return nil, err
		}
	}
	for _, pl := range plans {
		switch {
		case pl.drive != nil:
			pl.part.active = pl.bs.extest
			_ = pl.part.active.Register.In.Copy(pl.drive)
		case pl.part.active != pl.bs.extest:
			pl.part.active = pl.bs.sample
		}
	}
	if err := c.scanBoundary(); err != nil {
		return nil, err
	}

	res := &BatchResult{chain: c, regs: make(map[int]*register.Register)}
	for _, pl := range plans {
		if pl.op.capture {
			res.regs[pl.part.index] = pl.part.active.Register.Out.Clone()
		}
	}
	return res, nil
}

func (c *Chain) scanBoundary() error {
	if err := c.ShiftIR(); err != nil {
		return err
	}
	return c.ShiftDR()
}

// SetPin drives pin of part to l through EXTEST.
func (c *Chain) SetPin(part int, pin string, l Level) error {
	if c.cable == nil {
		return ErrNoCable
	}
	b := c.NewBatch()
	if err := b.SetPin(part, pin, l); err != nil {
		return err
	}
	_, err := b.Execute()
	return err
}

// GetPin samples the level on pin of part. A part already in EXTEST stays
// there with its outputs unchanged; any other part is read with SAMPLE.
func (c *Chain) GetPin(part int, pin string) (bool, error) {
	if c.cable == nil {
		return false, ErrNoCable
	}
	_, bs, err := c.boundaryOf(part)
	if err != nil {
		return false, err
	}
	if _, ok := bs.desc.InputCell(pin); !ok {
		return false, fmt.Errorf("%w: %s has no input cell", ErrUnknownPin, pin)
	}
	b := c.NewBatch()
	if err := b.Capture(part); err != nil {
		return false, err
	}
	res, err := b.Execute()
	if err != nil {
		return false, err
	}
	return res.Pin(part, pin)
}

// Pins lists the ports with boundary cells, or nil without a description.
func (p *Part) Pins() []string {
	if p.desc == nil {
		return nil
	}
	return p.desc.Pins()
}
