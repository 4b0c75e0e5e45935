package scan

import (
	"errors"
	"testing"

	"github.com/OpenTraceLab/jtagchain/pkg/cable"
	"github.com/OpenTraceLab/jtagchain/pkg/register"
	"github.com/OpenTraceLab/jtagchain/pkg/tap"
)

func newSimShifter(t *testing.T, parts ...cable.SimPart) (*cable.SimTarget, *Shifter) {
	t.Helper()
	target, err := cable.NewSimTarget(parts...)
	if err != nil {
		t.Fatalf("NewSimTarget: %v", err)
	}
	c, err := cable.NewSimCable(target)
	if err != nil {
		t.Fatalf("NewSimCable: %v", err)
	}
	s := New(c, nil)
	if err := s.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	return target, s
}

func TestResetTwice(t *testing.T) {
	target, s := newSimShifter(t, cable.DefaultSimPart)
	for i := 0; i < 2; i++ {
		if err := s.Reset(); err != nil {
			t.Fatalf("Reset: %v", err)
		}
		if s.State() != tap.StateTestLogicReset || target.State() != tap.StateTestLogicReset {
			t.Fatalf("after reset %d: tracked %v, target %v", i, s.State(), target.State())
		}
	}
}

func TestGoToAllStates(t *testing.T) {
	target, s := newSimShifter(t, cable.DefaultSimPart)
	for _, from := range tap.States() {
		for _, to := range tap.States() {
			if err := s.GoTo(from); err != nil {
				t.Fatalf("GoTo(%v): %v", from, err)
			}
			if err := s.GoTo(to); err != nil {
				t.Fatalf("GoTo(%v): %v", to, err)
			}
			if s.State() != to || target.State() != to {
				t.Fatalf("%v -> %v: tracked %v, target %v", from, to, s.State(), target.State())
			}
		}
	}
}

func TestShiftDRReadsIDCode(t *testing.T) {
	_, s := newSimShifter(t, cable.DefaultSimPart)
	out, err := s.ShiftDR(register.New(32), ExitIdle)
	if err != nil {
		t.Fatalf("ShiftDR: %v", err)
	}
	if out.Uint() != uint64(cable.DefaultSimPart.IDCode) {
		t.Fatalf("IDCODE = 0x%X", out.Uint())
	}
	if s.State() != tap.StateRunTestIdle {
		t.Fatalf("state = %v", s.State())
	}
}

func TestBypassEchoDelayedByOneBit(t *testing.T) {
	_, s := newSimShifter(t, cable.SimPart{IRLength: 4})
	in := register.MustParse("0110_1011_0010_1101")
	padded := register.Concat(in, register.New(1))
	out, err := s.ShiftDR(padded, ExitIdle)
	if err != nil {
		t.Fatalf("ShiftDR: %v", err)
	}
	if out.Bit(0) {
		t.Fatal("first bit out of BYPASS should be the captured 0")
	}
	echo, err := out.Slice(1, in.Len())
	if err != nil {
		t.Fatalf("Slice: %v", err)
	}
	if !echo.Equal(in) {
		t.Fatalf("echo = %s, want %s", echo, in)
	}
}

func TestShiftIRLoadsInstruction(t *testing.T) {
	target, s := newSimShifter(t, cable.SimPart{IDCode: 0x1, IRLength: 5, IDCodeOpcode: 0x1}, cable.SimPart{IRLength: 3})
	// Part 0 occupies the low five bits.
	in := register.Concat(register.FromUint(0x1F, 5), register.FromUint(0x2, 3))
	out, err := s.ShiftIR(in, ExitIdle)
	if err != nil {
		t.Fatalf("ShiftIR: %v", err)
	}
	if out.String() != "00100001" {
		t.Fatalf("captured IR = %s", out)
	}
	if target.Instruction(0) != 0x1F || target.Instruction(1) != 0x2 {
		t.Fatalf("instructions = 0x%X, 0x%X", target.Instruction(0), target.Instruction(1))
	}
}

func TestExitModes(t *testing.T) {
	tests := []struct {
		exit ExitMode
		ir   bool
		want tap.State
	}{
		{ExitIdle, false, tap.StateRunTestIdle},
		{ExitUpdate, false, tap.StateUpdateDR},
		{ExitExit1, false, tap.StateExit1DR},
		{ExitShift, false, tap.StateShiftDR},
		{ExitUpdate, true, tap.StateUpdateIR},
		{ExitExit1, true, tap.StateExit1IR},
	}
	for _, tt := range tests {
		target, s := newSimShifter(t, cable.DefaultSimPart)
		var err error
		if tt.ir {
			_, err = s.ShiftIR(register.New(6), tt.exit)
		} else {
			_, err = s.ShiftDR(register.New(8), tt.exit)
		}
		if err != nil {
			t.Fatalf("%v: %v", tt.exit, err)
		}
		if s.State() != tt.want || target.State() != tt.want {
			t.Fatalf("%v (ir=%v): tracked %v, target %v, want %v", tt.exit, tt.ir, s.State(), target.State(), tt.want)
		}
	}
}

func TestExitShiftContinuesScan(t *testing.T) {
	_, s := newSimShifter(t, cable.DefaultSimPart)
	lo, err := s.ShiftDR(register.New(16), ExitShift)
	if err != nil {
		t.Fatalf("ShiftDR: %v", err)
	}
	hi, err := s.ShiftDR(register.New(16), ExitIdle)
	if err != nil {
		t.Fatalf("ShiftDR: %v", err)
	}
	if got := hi.Uint()<<16 | lo.Uint(); got != uint64(cable.DefaultSimPart.IDCode) {
		t.Fatalf("split IDCODE = 0x%X", got)
	}
}

func TestIdleClocks(t *testing.T) {
	target, s := newSimShifter(t, cable.DefaultSimPart)
	if err := s.Idle(10); err != nil {
		t.Fatalf("Idle: %v", err)
	}
	if s.State() != tap.StateRunTestIdle || target.State() != tap.StateRunTestIdle {
		t.Fatalf("tracked %v, target %v", s.State(), target.State())
	}
}

func TestShiftRejectsEmptyRegister(t *testing.T) {
	_, s := newSimShifter(t, cable.DefaultSimPart)
	if _, err := s.ShiftDR(register.New(0), ExitIdle); err == nil {
		t.Fatal("empty shift accepted")
	}
	if _, err := s.ShiftIR(nil, ExitIdle); err == nil {
		t.Fatal("nil shift accepted")
	}
}

func TestShiftRejectsNonShiftState(t *testing.T) {
	_, s := newSimShifter(t, cable.DefaultSimPart)
	if _, err := s.shift(tap.StatePauseDR, register.New(1), ExitIdle); err == nil {
		t.Fatal("shift through Pause-DR accepted")
	}
	if s.State() != tap.StateTestLogicReset {
		t.Fatalf("state moved to %v", s.State())
	}
}

type failingCable struct {
	cable.Cable
}

func (failingCable) Transfer([]byte, []byte, int) ([]byte, error) {
	return nil, &cable.TransportError{Cable: "broken", Op: "transfer", Err: errors.New("unplugged")}
}

func TestTransportErrorKeepsState(t *testing.T) {
	s := New(failingCable{}, nil)
	if err := s.GoTo(tap.StateRunTestIdle); !errors.Is(err, cable.ErrTransport) {
		t.Fatalf("GoTo err = %v", err)
	}
	if s.State() != tap.StateTestLogicReset {
		t.Fatalf("state moved on failure: %v", s.State())
	}
	if err := s.Reset(); !errors.Is(err, cable.ErrTransport) {
		t.Fatalf("Reset err = %v", err)
	}
	if _, err := s.ShiftDR(register.New(1), ExitIdle); !errors.Is(err, cable.ErrTransport) {
		t.Fatalf("ShiftDR err = %v", err)
	}
	if s.State() != tap.StateTestLogicReset {
		t.Fatalf("state moved on failure: %v", s.State())
	}
}
