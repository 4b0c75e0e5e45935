// Package scan shifts registers through a cable while tracking the TAP
// controller state.
package scan

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/jtagchain/pkg/cable"
	"github.com/OpenTraceLab/jtagchain/pkg/register"
	"github.com/OpenTraceLab/jtagchain/pkg/tap"
)

// ExitMode selects where a shift leaves the TAP controller.
type ExitMode int

const (
	// ExitIdle passes through Exit1 and Update and parks in Run-Test/Idle.
	ExitIdle ExitMode = iota
	// ExitUpdate stops in Update-IR/Update-DR.
	ExitUpdate
	// ExitExit1 stops in Exit1-IR/Exit1-DR without updating.
	ExitExit1
	// ExitShift stays in Shift-IR/Shift-DR so the next shift continues the
	// same scan.
	ExitShift
)

func (m ExitMode) String() string {
	switch m {
	case ExitIdle:
		return "idle"
	case ExitUpdate:
		return "update"
	case ExitExit1:
		return "exit1"
	case ExitShift:
		return "shift"
	}
	return fmt.Sprintf("ExitMode(%d)", int(m))
}

// Shifter drives one cable and owns the TAP state tracked for it.
type Shifter struct {
	cable cable.Cable
	tap   *tap.StateMachine
	log   logrus.FieldLogger
}

// New returns a shifter on c. The TAP state is assumed unknown until the
// first Reset, so callers should reset before shifting.
func New(c cable.Cable, log logrus.FieldLogger) *Shifter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Shifter{cable: c, tap: tap.NewStateMachine(), log: log}
}

// State returns the tracked TAP state.
func (s *Shifter) State() tap.State {
	return s.tap.State()
}

// ForceState overrides the tracked state, e.g. after TRST.
func (s *Shifter) ForceState(st tap.State) error {
	return s.tap.Force(st)
}

// Reset clocks five TMS=1 cycles.
func (s *Shifter) Reset() error {
	before := s.tap.State()
	seq := s.tap.Reset()
	if err := s.clockTMS(seq.TMS); err != nil {
		_ = s.tap.Force(before)
		return err
	}
	return nil
}

// GoTo walks the shortest TMS path to target.
func (s *Shifter) GoTo(target tap.State) error {
	path, err := tap.Path(s.tap.State(), target)
	if err != nil {
		return err
	}
	if len(path.TMS) == 0 {
		return nil
	}
	if err := s.clockTMS(path.TMS); err != nil {
		return err
	}
	for _, b := range path.TMS {
		s.tap.Clock(b)
	}
	return nil
}

// Idle parks in Run-Test/Idle and clocks n extra cycles there.
func (s *Shifter) Idle(n int) error {
	if err := s.GoTo(tap.StateRunTestIdle); err != nil {
		return err
	}
	if n <= 0 {
		return nil
	}
	return s.clockTMS(make([]bool, n))
}

// ShiftIR shifts in through the instruction register and returns the bits
// captured from TDO.
func (s *Shifter) ShiftIR(in *register.Register, exit ExitMode) (*register.Register, error) {
	return s.shift(tap.StateShiftIR, in, exit)
}

// ShiftDR shifts in through the data register path and returns the bits
// captured from TDO.
func (s *Shifter) ShiftDR(in *register.Register, exit ExitMode) (*register.Register, error) {
	return s.shift(tap.StateShiftDR, in, exit)
}

func (s *Shifter) shift(shiftState tap.State, in *register.Register, exit ExitMode) (*register.Register, error) {
	if !shiftState.IsShift() {
		return nil, fmt.Errorf("scan: %v is not a shift state", shiftState)
	}
	if in == nil || in.Len() == 0 {
		return nil, fmt.Errorf("scan: empty register")
	}
	exit1 := tap.StateExit1DR
	update := tap.StateUpdateDR
	if shiftState.IsIR() {
		exit1, update = tap.StateExit1IR, tap.StateUpdateIR
	}

	// Entry path, data bits and the exit path go out in one transfer.
	var tms []bool
	var tdi []bool
	entry, err := tap.Path(s.tap.State(), shiftState)
	if err != nil {
		return nil, err
	}
	tms = append(tms, entry.TMS...)
	tdi = append(tdi, make([]bool, len(entry.TMS))...)
	start := len(tms)

	n := in.Len()
	for i := 0; i < n; i++ {
		tms = append(tms, exit != ExitShift && i == n-1)
		tdi = append(tdi, in.Bit(i))
	}

	final := shiftState
	switch exit {
	case ExitShift:
	case ExitExit1:
		final = exit1
	case ExitUpdate:
		tms = append(tms, true)
		tdi = append(tdi, false)
		final = update
	case ExitIdle:
		tms = append(tms, true, false)
		tdi = append(tdi, false, false)
		final = tap.StateRunTestIdle
	default:
		return nil, fmt.Errorf("scan: unknown exit mode %v", exit)
	}

	tdo, err := s.transfer(tms, tdi)
	if err != nil {
		return nil, err
	}
	_ = s.tap.Force(final)

	out, err := register.FromBytes(tdo, start+n).Slice(start, n)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"state": shiftState.String(),
		"bits":  n,
		"exit":  exit.String(),
	}).Tracef("in=%s out=%s", in, out)
	return out, nil
}

func (s *Shifter) clockTMS(tms []bool) error {
	_, err := s.transfer(tms, nil)
	return err
}

func (s *Shifter) transfer(tms, tdi []bool) ([]byte, error) {
	if len(tms) == 0 {
		return nil, nil
	}
	var tdiBuf []byte
	if tdi != nil {
		tdiBuf = register.FromBools(tdi).Bytes()
	}
	return s.cable.Transfer(register.FromBools(tms).Bytes(), tdiBuf, len(tms))
}
