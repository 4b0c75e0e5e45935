package chain

import (
	"errors"
	"testing"

	"github.com/OpenTraceLab/jtagchain/pkg/cable"
	"github.com/OpenTraceLab/jtagchain/pkg/idcode"
	"github.com/OpenTraceLab/jtagchain/pkg/register"
	"github.com/OpenTraceLab/jtagchain/pkg/tap"
)

const armDP = 0x4BA00477

var (
	bypassPart = cable.SimPart{IRLength: 4}
	userPart   = cable.SimPart{IRLength: 4, Registers: map[uint64]int{0x5: 8}}
	dpPart     = cable.SimPart{IDCode: armDP, IRLength: 4, IDCodeOpcode: 0xE}
)

func newSimChain(t *testing.T, repo Repository, parts ...cable.SimPart) (*cable.SimTarget, *Chain) {
	t.Helper()
	target, err := cable.NewSimTarget(parts...)
	if err != nil {
		t.Fatalf("NewSimTarget: %v", err)
	}
	c, err := cable.NewSimCable(target)
	if err != nil {
		t.Fatalf("NewSimCable: %v", err)
	}
	return target, New(c, repo)
}

func detect(t *testing.T, ch *Chain) []*Part {
	t.Helper()
	parts, err := ch.Detect()
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	return parts
}

func TestDetectSinglePart(t *testing.T) {
	target, ch := newSimChain(t, nil, cable.DefaultSimPart)
	detect(t, ch)
	if ch.Len() != 1 {
		t.Fatalf("Len = %d", ch.Len())
	}
	id, err := ch.PartID(0)
	if err != nil || id != 0x149511C3 {
		t.Fatalf("PartID(0) = 0x%08X, %v", id, err)
	}
	p, _ := ch.Part(0)
	if p.IRLength() != 6 {
		t.Fatalf("IR length = %d", p.IRLength())
	}
	if target.Instruction(0) != 0x3F || p.ActiveInstruction().Name != InstructionBypass {
		t.Fatalf("part left with opcode 0x%X / %s", target.Instruction(0), p.ActiveInstruction().Name)
	}
	if ch.State() != tap.StateRunTestIdle || target.State() != tap.StateRunTestIdle {
		t.Fatalf("state: tracked %v, target %v", ch.State(), target.State())
	}
}

func TestDetectMixedChain(t *testing.T) {
	_, ch := newSimChain(t, nil, cable.DefaultSimPart, bypassPart, dpPart)
	parts := detect(t, ch)
	want := []struct {
		id uint32
		ir int
	}{
		{0x149511C3, 6},
		{0, 4},
		{armDP, 4},
	}
	if len(parts) != len(want) {
		t.Fatalf("detected %d parts", len(parts))
	}
	for i, w := range want {
		if uint32(parts[i].IDCode()) != w.id || parts[i].IRLength() != w.ir {
			t.Fatalf("part %d = %s", i, parts[i])
		}
	}
	if _, ok := parts[1].Register(RegisterDeviceID); ok {
		t.Fatal("BYPASS-only part has a DEVICE_ID register")
	}
}

func TestDetectEmptyChain(t *testing.T) {
	_, ch := newSimChain(t, nil)
	if _, err := ch.Detect(); !errors.Is(err, ErrNoPartsDetected) {
		t.Fatalf("Detect err = %v", err)
	}
	if ch.Len() != 0 {
		t.Fatalf("Len = %d", ch.Len())
	}
}

func TestDetectLimits(t *testing.T) {
	_, ch := newSimChain(t, nil, cable.DefaultSimPart, cable.DefaultSimPart)
	if err := ch.SetLimits(Limits{MaxParts: 1, MaxIRLength: 1024}); err != nil {
		t.Fatalf("SetLimits: %v", err)
	}
	if _, err := ch.Detect(); !errors.Is(err, ErrChainLengthUndetectable) {
		t.Fatalf("Detect past MaxParts err = %v", err)
	}
	if err := ch.SetLimits(Limits{MaxParts: 8, MaxIRLength: 8}); err != nil {
		t.Fatalf("SetLimits: %v", err)
	}
	if _, err := ch.Detect(); !errors.Is(err, ErrChainLengthUndetectable) {
		t.Fatalf("Detect past MaxIRLength err = %v", err)
	}
	if ch.Len() != 0 {
		t.Fatalf("Len = %d after failed detect", ch.Len())
	}
	if err := ch.SetLimits(Limits{}); err == nil {
		t.Fatal("zero limits accepted")
	}
}

// stuckLowCable reads TDO as 0 whatever the target does.
type stuckLowCable struct {
	cable.Cable
}

func (c stuckLowCable) Transfer(tms, tdi []byte, bits int) ([]byte, error) {
	if _, err := c.Cable.Transfer(tms, tdi, bits); err != nil {
		return nil, err
	}
	return make([]byte, (bits+7)/8), nil
}

func TestDetectTDOStuckLow(t *testing.T) {
	target, err := cable.NewSimTarget(cable.DefaultSimPart)
	if err != nil {
		t.Fatalf("NewSimTarget: %v", err)
	}
	sim, err := cable.NewSimCable(target)
	if err != nil {
		t.Fatalf("NewSimCable: %v", err)
	}
	ch := New(stuckLowCable{sim}, nil)
	if _, err := ch.Detect(); !errors.Is(err, ErrNoPartsDetected) {
		t.Fatalf("Detect err = %v", err)
	}
}

func TestResetRestoresPowerOnInstruction(t *testing.T) {
	target, ch := newSimChain(t, nil, cable.DefaultSimPart, bypassPart)
	detect(t, ch)
	for i := 0; i < 2; i++ {
		if err := ch.Reset(); err != nil {
			t.Fatalf("Reset: %v", err)
		}
		if ch.State() != tap.StateTestLogicReset || target.State() != tap.StateTestLogicReset {
			t.Fatalf("after reset %d: tracked %v, target %v", i, ch.State(), target.State())
		}
	}
	parts := ch.Parts()
	if parts[0].ActiveInstruction().Name != InstructionIDCode || parts[1].ActiveInstruction().Name != InstructionBypass {
		t.Fatalf("power-on instructions %s, %s", parts[0].ActiveInstruction().Name, parts[1].ActiveInstruction().Name)
	}

	// Without touching the IR, a DR scan reads the IDCODE.
	if err := ch.ShiftDR(); err != nil {
		t.Fatalf("ShiftDR: %v", err)
	}
	if err := ch.SelectPart(0); err != nil {
		t.Fatalf("SelectPart: %v", err)
	}
	out, err := ch.GetDROut()
	if err != nil || out.Uint() != 0x149511C3 {
		t.Fatalf("IDCODE = %v, %v", out, err)
	}
}

func TestResetBypass(t *testing.T) {
	target, ch := newSimChain(t, nil, cable.DefaultSimPart, bypassPart)
	detect(t, ch)
	if err := ch.ResetBypass(); err != nil {
		t.Fatalf("ResetBypass: %v", err)
	}
	if target.Instruction(0) != 0x3F || target.Instruction(1) != 0xF {
		t.Fatalf("opcodes 0x%X 0x%X", target.Instruction(0), target.Instruction(1))
	}
	if ch.State() != tap.StateRunTestIdle {
		t.Fatalf("state %v", ch.State())
	}
}

func TestShiftIRUnknownOpcodeSendsBypass(t *testing.T) {
	target, ch := newSimChain(t, nil, cable.DefaultSimPart)
	detect(t, ch)
	if err := ch.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if err := ch.ShiftIR(); err != nil {
		t.Fatalf("ShiftIR: %v", err)
	}
	p, _ := ch.Part(0)
	if p.ActiveInstruction().Name != InstructionBypass || target.Instruction(0) != 0x3F {
		t.Fatalf("active %s, opcode 0x%X", p.ActiveInstruction().Name, target.Instruction(0))
	}
	if got := p.CapturedIR().String(); got != "000001" {
		t.Fatalf("captured IR = %s", got)
	}
}

func defineUser(t *testing.T, ch *Chain) {
	t.Helper()
	if err := ch.AddRegister("USER", 8); err != nil {
		t.Fatalf("AddRegister: %v", err)
	}
	if err := ch.AddInstruction("USER", "0101", "USER"); err != nil {
		t.Fatalf("AddInstruction: %v", err)
	}
}

func TestUserRegisterLoopback(t *testing.T) {
	target, ch := newSimChain(t, nil, userPart, cable.DefaultSimPart)
	detect(t, ch)
	if err := ch.SelectPart(0); err != nil {
		t.Fatalf("SelectPart: %v", err)
	}
	defineUser(t, ch)
	if err := ch.SetInstruction("user"); err != nil {
		t.Fatalf("SetInstruction: %v", err)
	}
	if err := ch.ShiftIR(); err != nil {
		t.Fatalf("ShiftIR: %v", err)
	}
	if target.Instruction(0) != 0x5 || target.Instruction(1) != 0x3F {
		t.Fatalf("opcodes 0x%X 0x%X", target.Instruction(0), target.Instruction(1))
	}

	for _, v := range []uint64{0xA5, 0x3C} {
		if err := ch.SetDRIn(v); err != nil {
			t.Fatalf("SetDRIn: %v", err)
		}
		if err := ch.ShiftDR(); err != nil {
			t.Fatalf("ShiftDR: %v", err)
		}
		if err := ch.ShiftDR(); err != nil {
			t.Fatalf("ShiftDR: %v", err)
		}
		out, err := ch.GetDROut()
		if err != nil {
			t.Fatalf("GetDROut: %v", err)
		}
		if out.Uint() != v {
			t.Fatalf("loopback = 0x%X, want 0x%X", out.Uint(), v)
		}
	}

	if err := ch.SelectPart(AllParts); err != nil {
		t.Fatalf("SelectPart: %v", err)
	}
	in, err := ch.GetDRIn()
	if err != nil || in.Len() != 9 {
		t.Fatalf("chain DR in = %v, %v", in, err)
	}
	if in.Bit(8) || in.Uint()&0xFF != 0x3C {
		t.Fatalf("chain DR in = %s", in)
	}
}

func TestDRRanges(t *testing.T) {
	_, ch := newSimChain(t, nil, userPart)
	detect(t, ch)
	defineUser(t, ch)
	if err := ch.SetInstruction("USER"); err != nil {
		t.Fatalf("SetInstruction: %v", err)
	}
	if err := ch.SetDRInString("1010_0101"); err != nil {
		t.Fatalf("SetDRInString: %v", err)
	}
	if err := ch.SetDRInRange(0x3, 7, 6); err != nil {
		t.Fatalf("SetDRInRange: %v", err)
	}
	if v, err := ch.GetDRInRange(7, 4); err != nil || v != 0xE {
		t.Fatalf("GetDRInRange = 0x%X, %v", v, err)
	}
	if _, err := ch.GetDROutRange(8, 0); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("range past the end err = %v", err)
	}
	if err := ch.SetDRInString("101"); err == nil {
		t.Fatal("3 bits accepted for an 8-bit register")
	}
	if err := ch.SetDRInRange(1, 9, 9); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("SetDRInRange past the end err = %v", err)
	}
}

func TestSetInstructionErrors(t *testing.T) {
	_, ch := newSimChain(t, nil, userPart, bypassPart)
	if err := ch.SetInstruction("BYPASS"); !errors.Is(err, ErrNoParts) {
		t.Fatalf("empty chain err = %v", err)
	}
	detect(t, ch)
	if err := ch.SetInstruction("EXTEST"); !errors.Is(err, ErrUnknownInstruction) {
		t.Fatalf("unknown instruction err = %v", err)
	}
	if err := ch.AddRegister("USER", 8); !errors.Is(err, ErrNoPartSelected) {
		t.Fatalf("AddRegister with all parts addressed err = %v", err)
	}
	if err := ch.SelectPart(0); err != nil {
		t.Fatalf("SelectPart: %v", err)
	}
	defineUser(t, ch)
	if err := ch.AddInstruction("OTHER", "0110", "MISSING"); !errors.Is(err, ErrUnknownRegister) {
		t.Fatalf("AddInstruction err = %v", err)
	}
	if err := ch.AddInstruction("SHORT", "01", "USER"); err == nil {
		t.Fatal("2-bit opcode accepted for a 4-bit IR")
	}

	// Part 1 has no USER instruction, so nothing changes chain-wide.
	_ = ch.SelectPart(AllParts)
	if err := ch.SetInstruction("USER"); !errors.Is(err, ErrUnknownInstruction) {
		t.Fatalf("chain-wide USER err = %v", err)
	}
	p, _ := ch.Part(0)
	if p.ActiveInstruction().Name != InstructionBypass {
		t.Fatalf("part 0 changed to %s", p.ActiveInstruction().Name)
	}
}

func TestIndexOutOfRange(t *testing.T) {
	_, ch := newSimChain(t, nil, cable.DefaultSimPart)
	detect(t, ch)
	for _, i := range []int{-2, 1, 5} {
		if _, err := ch.PartID(i); !errors.Is(err, ErrIndexOutOfRange) {
			t.Fatalf("PartID(%d) err = %v", i, err)
		}
		if err := ch.SelectPart(i); !errors.Is(err, ErrIndexOutOfRange) {
			t.Fatalf("SelectPart(%d) err = %v", i, err)
		}
	}
	if ch.ActivePart() != AllParts {
		t.Fatalf("active part = %d", ch.ActivePart())
	}
}

func TestAddPart(t *testing.T) {
	target, ch := newSimChain(t, nil, userPart, bypassPart)
	for i := 0; i < 2; i++ {
		p, err := ch.AddPart(4)
		if err != nil {
			t.Fatalf("AddPart: %v", err)
		}
		if p.Index() != i || ch.ActivePart() != i {
			t.Fatalf("added part %d, active %d", p.Index(), ch.ActivePart())
		}
	}
	if target.Instruction(0) != 0xF || target.Instruction(1) != 0xF {
		t.Fatalf("opcodes 0x%X 0x%X", target.Instruction(0), target.Instruction(1))
	}
	if err := ch.SelectPart(0); err != nil {
		t.Fatalf("SelectPart: %v", err)
	}
	defineUser(t, ch)
	if err := ch.SetInstruction("USER"); err != nil {
		t.Fatalf("SetInstruction: %v", err)
	}
	if err := ch.ShiftIR(); err != nil {
		t.Fatalf("ShiftIR: %v", err)
	}
	if target.Instruction(0) != 0x5 {
		t.Fatalf("opcode 0x%X", target.Instruction(0))
	}
	if _, err := ch.AddPart(0); err == nil {
		t.Fatal("zero IR length accepted")
	}
}

// brokenCable fails every transfer once broken is set.
type brokenCable struct {
	cable.Cable
	broken bool
}

func (c *brokenCable) Transfer(tms, tdi []byte, bits int) ([]byte, error) {
	if c.broken {
		return nil, &cable.TransportError{Cable: "broken", Op: "transfer", Err: errors.New("unplugged")}
	}
	return c.Cable.Transfer(tms, tdi, bits)
}

func TestAddPartRollsBackOnScanFailure(t *testing.T) {
	target, err := cable.NewSimTarget(userPart, bypassPart)
	if err != nil {
		t.Fatalf("NewSimTarget: %v", err)
	}
	sim, err := cable.NewSimCable(target)
	if err != nil {
		t.Fatalf("NewSimCable: %v", err)
	}
	bc := &brokenCable{Cable: sim}
	ch := New(bc, nil)
	if _, err := ch.AddPart(4); err != nil {
		t.Fatalf("AddPart: %v", err)
	}
	defineUser(t, ch)
	if err := ch.SetInstruction("USER"); err != nil {
		t.Fatalf("SetInstruction: %v", err)
	}
	if err := ch.SelectPart(AllParts); err != nil {
		t.Fatalf("SelectPart: %v", err)
	}

	bc.broken = true
	if _, err := ch.AddPart(4); !errors.Is(err, cable.ErrTransport) {
		t.Fatalf("AddPart err = %v", err)
	}
	if ch.Len() != 1 || ch.ActivePart() != AllParts {
		t.Fatalf("after failed AddPart: %d parts, active %d", ch.Len(), ch.ActivePart())
	}
	if p, _ := ch.Part(0); p.ActiveInstruction().Name != "USER" {
		t.Fatalf("active instruction %s", p.ActiveInstruction().Name)
	}
}

func TestSignals(t *testing.T) {
	_, ch := newSimChain(t, nil, cable.DefaultSimPart)
	for _, level := range []cable.Signal{0, cable.SignalSRST, 0} {
		if _, err := ch.SetSignal(cable.SignalSRST, level); err != nil {
			t.Fatalf("SetSignal: %v", err)
		}
		got, err := ch.GetSignal(cable.SignalSRST)
		if err != nil || got != level {
			t.Fatalf("GetSignal(SRST) = %v, %v, want %v", got, err, level)
		}
	}
	old, err := ch.SetSignal(cable.SignalSRST, cable.SignalSRST)
	if err != nil || old&cable.SignalSRST != 0 {
		t.Fatalf("previous levels = %v, %v", old, err)
	}
}

func TestTRSTForcesReset(t *testing.T) {
	target, ch := newSimChain(t, nil, cable.DefaultSimPart)
	detect(t, ch)
	if ch.State() != tap.StateRunTestIdle {
		t.Fatalf("state %v", ch.State())
	}
	if err := ch.SetTRST(false); err != nil {
		t.Fatalf("SetTRST: %v", err)
	}
	if high, err := ch.GetTRST(); err != nil || high {
		t.Fatalf("GetTRST = %v, %v", high, err)
	}
	if ch.State() != tap.StateTestLogicReset || target.State() != tap.StateTestLogicReset {
		t.Fatalf("tracked %v, target %v", ch.State(), target.State())
	}
	p, _ := ch.Part(0)
	if p.ActiveInstruction().Name != InstructionIDCode {
		t.Fatalf("active %s", p.ActiveInstruction().Name)
	}
	if err := ch.SetTRST(true); err != nil {
		t.Fatalf("SetTRST: %v", err)
	}
	if high, _ := ch.GetTRST(); !high || ch.State() != tap.StateTestLogicReset {
		t.Fatalf("after release: trst %v, state %v", high, ch.State())
	}
}

// maskedCable hides lines of the cable it wraps, the way an adapter without
// those pins behaves.
type maskedCable struct {
	cable.Cable
	hide cable.Signal
}

func (c maskedCable) Info() cable.Info {
	info := c.Cable.Info()
	info.Signals &^= c.hide
	return info
}

func (c maskedCable) SetSignal(mask, value cable.Signal) (cable.Signal, error) {
	return c.Cable.SetSignal(mask&^c.hide, value)
}

func TestTRSTIgnoredWithoutLine(t *testing.T) {
	target, err := cable.NewSimTarget(cable.DefaultSimPart)
	if err != nil {
		t.Fatalf("NewSimTarget: %v", err)
	}
	sim, err := cable.NewSimCable(target)
	if err != nil {
		t.Fatalf("NewSimCable: %v", err)
	}
	ch := New(maskedCable{sim, cable.SignalTRST}, nil)
	detect(t, ch)
	if err := ch.SetInstruction(InstructionBypass); err != nil {
		t.Fatalf("SetInstruction: %v", err)
	}
	if err := ch.ShiftIR(); err != nil {
		t.Fatalf("ShiftIR: %v", err)
	}
	if err := ch.SetTRST(false); err != nil {
		t.Fatalf("SetTRST: %v", err)
	}
	if ch.State() != tap.StateRunTestIdle || target.State() != tap.StateRunTestIdle {
		t.Fatalf("tracked %v, target %v", ch.State(), target.State())
	}
	p, _ := ch.Part(0)
	if p.ActiveInstruction().Name != InstructionBypass {
		t.Fatalf("active %s", p.ActiveInstruction().Name)
	}
	if err := ch.SetDRIn(1); err != nil {
		t.Fatalf("SetDRIn: %v", err)
	}
	if err := ch.ShiftDR(); err != nil {
		t.Fatalf("ShiftDR: %v", err)
	}
	out, err := ch.GetDROut()
	if err != nil || out.Len() != 1 || out.Uint() != 0 {
		t.Fatalf("BYPASS out = %v, %v", out, err)
	}
}

func TestTRSTResetsOnFallingEdgeOnly(t *testing.T) {
	target, ch := newSimChain(t, nil, cable.DefaultSimPart)
	detect(t, ch)
	if err := ch.SetTRST(false); err != nil {
		t.Fatalf("SetTRST: %v", err)
	}
	if ch.State() != tap.StateTestLogicReset {
		t.Fatalf("state %v", ch.State())
	}
	// Held low, the line is already asserted: driving it low again is not a
	// new reset and must leave the part instructions alone.
	if err := ch.SetInstruction(InstructionBypass); err != nil {
		t.Fatalf("SetInstruction: %v", err)
	}
	if err := ch.SetTRST(false); err != nil {
		t.Fatalf("SetTRST: %v", err)
	}
	if p, _ := ch.Part(0); p.ActiveInstruction().Name != InstructionBypass {
		t.Fatalf("active %s after repeated assert", p.ActiveInstruction().Name)
	}
	if target.State() != tap.StateTestLogicReset {
		t.Fatalf("target %v", target.State())
	}
}

func TestFrequency(t *testing.T) {
	_, ch := newSimChain(t, nil, cable.DefaultSimPart)
	tests := []struct{ req, want int }{
		{3_000_000, 1_000_000},
		{50, 100_000},
		{0, 25_000_000},
	}
	for _, tt := range tests {
		got, err := ch.SetFrequency(tt.req)
		if err != nil || got != tt.want {
			t.Fatalf("SetFrequency(%d) = %d, %v", tt.req, got, err)
		}
		if ch.GetFrequency() != tt.want {
			t.Fatalf("GetFrequency = %d after SetFrequency(%d)", ch.GetFrequency(), tt.req)
		}
	}
}

func TestDisconnect(t *testing.T) {
	_, ch := newSimChain(t, nil, cable.DefaultSimPart)
	detect(t, ch)
	if err := ch.TestCable(); err != nil {
		t.Fatalf("TestCable: %v", err)
	}
	if err := ch.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if ch.Len() != 0 || ch.Cable() != nil {
		t.Fatal("parts or cable kept after disconnect")
	}
	checks := map[string]error{
		"TestCable":   ch.TestCable(),
		"Reset":       ch.Reset(),
		"ShiftIR":     ch.ShiftIR(),
		"Disconnect":  ch.Disconnect(),
		"GoTo":        ch.GoTo(tap.StateRunTestIdle),
		"SetPin":      ch.SetPin(0, "PA0", High),
		"ResetTarget": ch.ResetTarget(),
	}
	_, checks["Detect"] = ch.Detect()
	_, checks["SetFrequency"] = ch.SetFrequency(1000)
	_, checks["GetSignal"] = ch.GetSignal(cable.SignalSRST)
	for name, err := range checks {
		if !errors.Is(err, ErrNoCable) {
			t.Fatalf("%s err = %v", name, err)
		}
	}
}

func TestGoTo(t *testing.T) {
	target, ch := newSimChain(t, nil, cable.DefaultSimPart)
	detect(t, ch)
	for _, s := range []tap.State{tap.StatePauseDR, tap.StatePauseIR, tap.StateTestLogicReset, tap.StateRunTestIdle} {
		if err := ch.GoTo(s); err != nil {
			t.Fatalf("GoTo(%v): %v", s, err)
		}
		if ch.State() != s || target.State() != s {
			t.Fatalf("GoTo(%v): tracked %v, target %v", s, ch.State(), target.State())
		}
	}
}

func TestOpen(t *testing.T) {
	ch, err := Open(nil, "sim", cable.Params{"parts": "bypass/5,0x4BA00477/4/0xE"}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ch.Disconnect()
	detect(t, ch)
	if id, _ := ch.PartID(1); id != armDP {
		t.Fatalf("PartID(1) = 0x%08X", id)
	}
	if _, err := Open(nil, "nope", nil, nil); !errors.Is(err, cable.ErrCableNotFound) {
		t.Fatalf("Open(nope) err = %v", err)
	}
}

func TestFillIRLengths(t *testing.T) {
	tests := []struct {
		name    string
		lengths []int
		capture string // MSB first, part 0 on the right
		want    []int
		wantErr bool
	}{
		{"single unknown", []int{0}, "000001", []int{6}, false},
		{"known sum", []int{4, 5}, "00001" + "0001", []int{4, 5}, false},
		{"known mismatch", []int{4, 4}, "00001" + "0001", nil, true},
		{"split two", []int{0, 0}, "0001" + "000001", []int{6, 4}, false},
		{"unknown between known", []int{4, 0, 3}, "001" + "01" + "0001", []int{4, 2, 3}, false},
		{"three unknown", []int{0, 0, 0}, "01" + "001" + "00001", []int{5, 3, 2}, false},
		{"no boundary", []int{0, 0}, "0000000001", nil, true},
	}
	ch := &Chain{log: logger.WithField("test", true)}
	for _, tt := range tests {
		lengths := append([]int(nil), tt.lengths...)
		capture := register.MustParse(tt.capture)
		err := ch.fillIRLengths(lengths, capture.Len(), capture)
		if (err != nil) != tt.wantErr {
			t.Fatalf("%s: err = %v", tt.name, err)
		}
		if tt.wantErr {
			continue
		}
		for i := range tt.want {
			if lengths[i] != tt.want[i] {
				t.Fatalf("%s: lengths = %v, want %v", tt.name, lengths, tt.want)
			}
		}
	}
}

func TestDetectUsesKnownPartTable(t *testing.T) {
	// An ARM DP behind two BYPASS parts: its IR length comes from the
	// IDCODE table, so only the first two lengths are guessed.
	_, ch := newSimChain(t, nil, bypassPart, cable.SimPart{IRLength: 3}, dpPart)
	parts := detect(t, ch)
	if known, ok := idcode.LookupPart(armDP); !ok || parts[2].IRLength() != known.IRLength {
		t.Fatalf("part 2 = %s", parts[2])
	}
	if parts[0].IRLength() != 4 || parts[1].IRLength() != 3 {
		t.Fatalf("guessed lengths %d, %d", parts[0].IRLength(), parts[1].IRLength())
	}
}

// dapLikeCable records the layout Detect hands to it and answers IDCODE
// reads from a table.
type dapLikeCable struct {
	cable.Cable
	lengths []int
	ids     map[int]uint32
	reads   []int
	resets  int
}

func (c *dapLikeCable) ConfigureChain(irLengths []int) error {
	c.lengths = append([]int(nil), irLengths...)
	return nil
}

func (c *dapLikeCable) ReadIDCode(index int) (uint32, error) {
	c.reads = append(c.reads, index)
	return c.ids[index], nil
}

func (c *dapLikeCable) ResetTarget() error {
	c.resets++
	return nil
}

func TestDetectConfiguresCable(t *testing.T) {
	target, err := cable.NewSimTarget(cable.DefaultSimPart, bypassPart, dpPart)
	if err != nil {
		t.Fatalf("NewSimTarget: %v", err)
	}
	sim, err := cable.NewSimCable(target)
	if err != nil {
		t.Fatalf("NewSimCable: %v", err)
	}
	dap := &dapLikeCable{Cable: sim, ids: map[int]uint32{0: 0x149511C3, 2: 0x12345679}}
	ch := New(dap, nil)
	detect(t, ch)
	if len(dap.lengths) != 3 || dap.lengths[0] != 6 || dap.lengths[1] != 4 || dap.lengths[2] != 4 {
		t.Fatalf("configured lengths %v", dap.lengths)
	}
	if len(dap.reads) != 2 || dap.reads[0] != 0 || dap.reads[1] != 2 {
		t.Fatalf("IDCODE reads %v", dap.reads)
	}
	// A mismatch is only reported; the scanned IDCODE stands.
	if id, _ := ch.PartID(2); id != armDP {
		t.Fatalf("part 2 IDCODE 0x%08X", id)
	}

	if err := ch.ResetTarget(); err != nil || dap.resets != 1 {
		t.Fatalf("ResetTarget = %v, %d resets", err, dap.resets)
	}
}

// signalLog records SetSignal calls.
type signalLog struct {
	cable.Cable
	calls []cable.Signal
}

func (c *signalLog) SetSignal(mask, value cable.Signal) (cable.Signal, error) {
	c.calls = append(c.calls, mask, value)
	return c.Cable.SetSignal(mask, value)
}

func TestResetTargetPulsesSRST(t *testing.T) {
	target, err := cable.NewSimTarget(cable.DefaultSimPart)
	if err != nil {
		t.Fatalf("NewSimTarget: %v", err)
	}
	sim, err := cable.NewSimCable(target)
	if err != nil {
		t.Fatalf("NewSimCable: %v", err)
	}
	rec := &signalLog{Cable: sim}
	ch := New(rec, nil)
	detect(t, ch)
	state := ch.State()
	rec.calls = nil
	if err := ch.ResetTarget(); err != nil {
		t.Fatalf("ResetTarget: %v", err)
	}
	want := []cable.Signal{cable.SignalSRST, 0, cable.SignalSRST, cable.SignalSRST}
	if len(rec.calls) != len(want) {
		t.Fatalf("SetSignal calls %v", rec.calls)
	}
	for i := range want {
		if rec.calls[i] != want[i] {
			t.Fatalf("SetSignal calls %v", rec.calls)
		}
	}
	if ch.State() != state {
		t.Fatalf("state moved to %v", ch.State())
	}

	if err := New(maskedCable{sim, cable.SignalSRST}, nil).ResetTarget(); err == nil {
		t.Fatal("ResetTarget without SRST succeeded")
	}
}
