package cable

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/OpenTraceLab/jtagchain/pkg/tap"
)

// SimPart configures one device of a simulated chain.
type SimPart struct {
	// IDCode is reported after reset; zero means the part has no IDCODE
	// register and powers up in BYPASS.
	IDCode uint32
	// IRLength is the instruction register width, 2 to 64 bits.
	IRLength int
	// IDCodeOpcode selects the IDCODE register. Ignored when IDCode is zero.
	IDCodeOpcode uint64
	// Registers maps extra opcodes to loopback data registers of the given
	// width. What is shifted in during Update-DR is captured back next time.
	Registers map[uint64]int
	// Boundary adds a boundary-scan register.
	Boundary *SimBoundary
}

// SimBoundary configures the boundary-scan register of a simulated part.
// Every cell captures the level of its net. Under EXTEST the update stage of
// each wired cell drives its own net and the nets listed in Wires, the way
// a board trace loops one pin back to another.
type SimBoundary struct {
	Length       int
	SampleOpcode uint64 // SAMPLE/PRELOAD
	ExtestOpcode uint64
	Wires        map[int][]int
}

type simRegister int

const (
	simBypass simRegister = iota
	simIDCode
	simUser
	simBoundary
)

type simPart struct {
	cfg    SimPart
	ir     []bool
	dr     []bool
	opcode uint64
	reg    simRegister
	user   map[uint64][]bool
	latch  []bool // boundary update stage
	nets   []bool // levels the boundary cells capture
}

func (p *simPart) resetInstruction() {
	if p.cfg.IDCode != 0 {
		p.opcode = p.cfg.IDCodeOpcode
		p.reg = simIDCode
		return
	}
	p.opcode = 1<<uint(p.cfg.IRLength) - 1
	p.reg = simBypass
}

func (p *simPart) captureIR() {
	p.ir = make([]bool, p.cfg.IRLength)
	p.ir[0] = true
}

func (p *simPart) captureDR() {
	switch p.reg {
	case simIDCode:
		p.dr = make([]bool, 32)
		for i := range p.dr {
			p.dr[i] = p.cfg.IDCode&(1<<uint(i)) != 0
		}
	case simUser:
		p.dr = append([]bool(nil), p.user[p.opcode]...)
	case simBoundary:
		p.dr = append([]bool(nil), p.nets...)
	default:
		p.dr = []bool{false}
	}
}

func (p *simPart) updateIR() {
	var op uint64
	for i, b := range p.ir {
		if b {
			op |= 1 << uint(i)
		}
	}
	p.opcode = op
	switch {
	case op == 1<<uint(p.cfg.IRLength)-1:
		p.reg = simBypass
	case p.cfg.IDCode != 0 && op == p.cfg.IDCodeOpcode:
		p.reg = simIDCode
	case p.cfg.Boundary != nil && (op == p.cfg.Boundary.SampleOpcode || op == p.cfg.Boundary.ExtestOpcode):
		p.reg = simBoundary
		p.drive()
	default:
		if _, ok := p.user[op]; ok {
			p.reg = simUser
			return
		}
		p.reg = simBypass
	}
}

func (p *simPart) updateDR() {
	switch p.reg {
	case simUser:
		p.user[p.opcode] = append([]bool(nil), p.dr...)
	case simBoundary:
		copy(p.latch, p.dr)
		p.drive()
	}
}

func (p *simPart) extest() bool {
	return p.reg == simBoundary && p.opcode == p.cfg.Boundary.ExtestOpcode
}

// drive puts the update stage on the wired nets while EXTEST is active.
func (p *simPart) drive() {
	if !p.extest() {
		return
	}
	for cell, loads := range p.cfg.Boundary.Wires {
		p.nets[cell] = p.latch[cell]
		for _, in := range loads {
			p.nets[in] = p.latch[cell]
		}
	}
}

// shift moves tdi into the MSB of reg and returns the bit leaving the LSB.
func shiftBits(reg []bool, tdi bool) bool {
	if len(reg) == 0 {
		return tdi
	}
	out := reg[0]
	copy(reg, reg[1:])
	reg[len(reg)-1] = tdi
	return out
}

// SimTarget models a chain of TAP controllers wired TDI to TDO. Part 0 drives
// the TDO line seen by the cable and the last part receives TDI.
type SimTarget struct {
	parts []*simPart
	tap   tap.StateMachine
	trst  bool // true while asserted (held low)
}

// NewSimTarget builds a chain of parts, reset to Test-Logic-Reset.
func NewSimTarget(parts ...SimPart) (*SimTarget, error) {
	t := &SimTarget{}
	for i, cfg := range parts {
		if cfg.IRLength < 2 || cfg.IRLength > 64 {
			return nil, fmt.Errorf("cable: sim part %d: IR length %d out of range", i, cfg.IRLength)
		}
		p := &simPart{cfg: cfg, user: make(map[uint64][]bool)}
		for op, width := range cfg.Registers {
			if width <= 0 {
				return nil, fmt.Errorf("cable: sim part %d: register 0x%X has width %d", i, op, width)
			}
			p.user[op] = make([]bool, width)
		}
		if b := cfg.Boundary; b != nil {
			if err := b.validate(cfg.IRLength); err != nil {
				return nil, fmt.Errorf("cable: sim part %d: %w", i, err)
			}
			p.latch = make([]bool, b.Length)
			p.nets = make([]bool, b.Length)
		}
		p.resetInstruction()
		t.parts = append(t.parts, p)
	}
	return t, nil
}

func (b *SimBoundary) validate(irLength int) error {
	if b.Length <= 0 {
		return fmt.Errorf("boundary length %d", b.Length)
	}
	limit := uint64(1)<<uint(irLength) - 1
	if b.SampleOpcode >= limit || b.ExtestOpcode >= limit || b.SampleOpcode == b.ExtestOpcode {
		return fmt.Errorf("boundary opcodes 0x%X/0x%X do not fit a %d-bit IR", b.SampleOpcode, b.ExtestOpcode, irLength)
	}
	for cell, loads := range b.Wires {
		for _, n := range append([]int{cell}, loads...) {
			if n < 0 || n >= b.Length {
				return fmt.Errorf("wired cell %d outside a %d-cell register", n, b.Length)
			}
		}
	}
	return nil
}

// SetPin forces the net that boundary cell number cell of part i captures.
func (t *SimTarget) SetPin(i, cell int, high bool) {
	t.parts[i].nets[cell] = high
}

// Pin returns the net level that boundary cell number cell of part i captures.
func (t *SimTarget) Pin(i, cell int) bool {
	return t.parts[i].nets[cell]
}

// Latch returns the update stage of boundary cell number cell of part i.
func (t *SimTarget) Latch(i, cell int) bool {
	return t.parts[i].latch[cell]
}

// Driving reports whether part i is in EXTEST.
func (t *SimTarget) Driving(i int) bool {
	return t.parts[i].extest()
}

// Len returns the number of simulated parts.
func (t *SimTarget) Len() int {
	return len(t.parts)
}

// State returns the controller state shared by all parts.
func (t *SimTarget) State() tap.State {
	return t.tap.State()
}

// Instruction returns the opcode latched by part i.
func (t *SimTarget) Instruction(i int) uint64 {
	return t.parts[i].opcode
}

// TDO reports the level presented by part 0.
func (t *SimTarget) TDO() bool {
	if len(t.parts) == 0 {
		return true
	}
	p := t.parts[0]
	switch t.tap.State() {
	case tap.StateShiftIR:
		return p.ir[0]
	case tap.StateShiftDR:
		return p.dr[0]
	}
	return true
}

// SetTRST drives the TRST line; a low level holds every part in reset.
func (t *SimTarget) SetTRST(high bool) {
	t.trst = !high
	if t.trst {
		t.enter(tap.StateTestLogicReset)
	}
}

// Clock applies one rising TCK edge with the given TMS and TDI levels and
// returns the TDO level sampled before the edge.
func (t *SimTarget) Clock(tms, tdi bool) bool {
	out := t.TDO()
	if t.trst {
		return out
	}
	switch t.tap.State() {
	case tap.StateCaptureIR:
		for _, p := range t.parts {
			p.captureIR()
		}
	case tap.StateCaptureDR:
		for _, p := range t.parts {
			p.captureDR()
		}
	case tap.StateShiftIR, tap.StateShiftDR:
		in := tdi
		ir := t.tap.State() == tap.StateShiftIR
		for i := len(t.parts) - 1; i >= 0; i-- {
			if ir {
				in = shiftBits(t.parts[i].ir, in)
			} else {
				in = shiftBits(t.parts[i].dr, in)
			}
		}
	}
	prev := t.tap.State()
	t.tap.Clock(tms)
	if next := t.tap.State(); next != prev {
		t.enter(next)
	}
	return out
}

func (t *SimTarget) enter(s tap.State) {
	if t.tap.State() != s {
		_ = t.tap.Force(s)
	}
	switch s {
	case tap.StateTestLogicReset:
		for _, p := range t.parts {
			p.resetInstruction()
		}
	case tap.StateUpdateIR:
		for _, p := range t.parts {
			p.updateIR()
		}
	case tap.StateUpdateDR:
		for _, p := range t.parts {
			p.updateDR()
		}
	}
}

// simPins adapts a SimTarget to the bit-bang PinDriver.
type simPins struct {
	target *SimTarget
	tms    bool
	tdi    bool
	tck    bool
}

func (s *simPins) Write(sig Signal, high bool) error {
	switch sig {
	case SignalTMS:
		s.tms = high
	case SignalTDI:
		s.tdi = high
	case SignalTCK:
		if high && !s.tck {
			s.target.Clock(s.tms, s.tdi)
		}
		s.tck = high
	case SignalTRST:
		s.target.SetTRST(high)
	}
	return nil
}

func (s *simPins) ReadTDO() (bool, error) {
	return s.target.TDO(), nil
}

func (s *simPins) Lines() Signal {
	return SignalTCK | SignalTMS | SignalTDI | SignalTDO | SignalTRST | SignalSRST
}

func (s *simPins) Close() error {
	return nil
}

// simFrequencies lists the rates the simulator pretends to support.
var simFrequencies = []int{
	100_000,
	500_000,
	1_000_000,
	5_000_000,
	10_000_000,
	25_000_000,
}

// NewSimCable wraps target in a cable. The clock is not paced.
func NewSimCable(target *SimTarget) (*Bitbang, error) {
	info := Info{
		Driver:       "sim",
		Name:         "sim",
		Vendor:       "OpenTraceLab",
		Model:        fmt.Sprintf("simulator (%d parts)", target.Len()),
		MinFrequency: simFrequencies[0],
		MaxFrequency: simFrequencies[len(simFrequencies)-1],
		Frequencies:  simFrequencies,
	}
	return newBitbang(info, &simPins{target: target}, false)
}

// DefaultSimPart is used by the sim driver when no parts are given.
var DefaultSimPart = SimPart{IDCode: 0x149511C3, IRLength: 6, IDCodeOpcode: 0x09}

func openSim(p Params) (Cable, error) {
	parts, err := ParseSimParts(p.String("parts", ""))
	if err != nil {
		return nil, err
	}
	target, err := NewSimTarget(parts...)
	if err != nil {
		return nil, err
	}
	return NewSimCable(target)
}

// ParseSimParts parses a part list such as "0x149511C3/6/0x09,bypass/4". Each
// entry is <idcode>/<irlen>[/<idcode opcode>]; "bypass" stands for a part
// without IDCODE. The opcode defaults to 1. An empty list yields
// DefaultSimPart.
func ParseSimParts(list string) ([]SimPart, error) {
	list = strings.TrimSpace(list)
	if list == "" {
		return []SimPart{DefaultSimPart}, nil
	}
	var parts []SimPart
	for _, entry := range strings.FieldsFunc(list, func(r rune) bool { return r == ',' || r == ';' || r == ' ' }) {
		fields := strings.Split(entry, "/")
		if len(fields) < 2 || len(fields) > 4 {
			return nil, fmt.Errorf("cable: sim part %q: want <idcode>/<irlen>[/<opcode>[/<boundary>]]", entry)
		}
		var part SimPart
		if !strings.EqualFold(fields[0], "bypass") {
			id, err := strconv.ParseUint(fields[0], 0, 32)
			if err != nil {
				return nil, fmt.Errorf("cable: sim part %q: %w", entry, err)
			}
			part.IDCode = uint32(id)
			part.IDCodeOpcode = 1
		}
		irlen, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("cable: sim part %q: %w", entry, err)
		}
		part.IRLength = irlen
		if len(fields) >= 3 {
			op, err := strconv.ParseUint(fields[2], 0, 64)
			if err != nil {
				return nil, fmt.Errorf("cable: sim part %q: %w", entry, err)
			}
			part.IDCodeOpcode = op
		}
		if len(fields) == 4 {
			if part.Boundary, err = parseSimBoundary(fields[3]); err != nil {
				return nil, fmt.Errorf("cable: sim part %q: %w", entry, err)
			}
		}
		parts = append(parts, part)
	}
	return parts, nil
}

// parseSimBoundary reads <length>:<sample>:<extest>[:<cell>><cell>...], for
// example "8:2:0:2>0" for an 8-cell register whose cell 2 drives the net of
// cell 0.
func parseSimBoundary(s string) (*SimBoundary, error) {
	fields := strings.Split(s, ":")
	if len(fields) < 3 {
		return nil, fmt.Errorf("boundary %q: want <length>:<sample>:<extest>", s)
	}
	var vals [3]uint64
	for i := range vals {
		v, err := strconv.ParseUint(fields[i], 0, 64)
		if err != nil {
			return nil, fmt.Errorf("boundary %q: %w", s, err)
		}
		vals[i] = v
	}
	b := &SimBoundary{Length: int(vals[0]), SampleOpcode: vals[1], ExtestOpcode: vals[2]}
	for _, w := range fields[3:] {
		from, to, ok := strings.Cut(w, ">")
		if !ok {
			return nil, fmt.Errorf("boundary wire %q: want <cell>><cell>", w)
		}
		out, err := strconv.Atoi(from)
		if err != nil {
			return nil, fmt.Errorf("boundary wire %q: %w", w, err)
		}
		in, err := strconv.Atoi(to)
		if err != nil {
			return nil, fmt.Errorf("boundary wire %q: %w", w, err)
		}
		if b.Wires == nil {
			b.Wires = make(map[int][]int)
		}
		b.Wires[out] = append(b.Wires[out], in)
	}
	return b, nil
}
