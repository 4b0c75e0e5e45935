package tap

import (
	"fmt"
	"strings"
)

// State represents one of the 16 defined IEEE 1149.1 TAP controller states.
type State uint8

const (
	StateTestLogicReset State = iota
	StateRunTestIdle
	StateSelectDRScan
	StateCaptureDR
	StateShiftDR
	StateExit1DR
	StatePauseDR
	StateExit2DR
	StateUpdateDR
	StateSelectIRScan
	StateCaptureIR
	StateShiftIR
	StateExit1IR
	StatePauseIR
	StateExit2IR
	StateUpdateIR

	numStates
)

var stateNames = [numStates]string{
	StateTestLogicReset: "Test-Logic-Reset",
	StateRunTestIdle:    "Run-Test/Idle",
	StateSelectDRScan:   "Select-DR-Scan",
	StateCaptureDR:      "Capture-DR",
	StateShiftDR:        "Shift-DR",
	StateExit1DR:        "Exit1-DR",
	StatePauseDR:        "Pause-DR",
	StateExit2DR:        "Exit2-DR",
	StateUpdateDR:       "Update-DR",
	StateSelectIRScan:   "Select-IR-Scan",
	StateCaptureIR:      "Capture-IR",
	StateShiftIR:        "Shift-IR",
	StateExit1IR:        "Exit1-IR",
	StatePauseIR:        "Pause-IR",
	StateExit2IR:        "Exit2-IR",
	StateUpdateIR:       "Update-IR",
}

func (s State) String() string {
	if s.Valid() {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", s)
}

// Valid reports whether s is one of the 16 TAP states.
func (s State) Valid() bool {
	return s < numStates
}

// IsIR reports whether the state belongs to the instruction register column
// of the state diagram.
func (s State) IsIR() bool {
	return s >= StateSelectIRScan && s <= StateUpdateIR
}

// IsShift reports whether TDI/TDO are connected to a register in this state.
func (s State) IsShift() bool {
	return s == StateShiftDR || s == StateShiftIR
}

// States returns all TAP states in diagram order.
func States() []State {
	out := make([]State, 0, numStates)
	for s := State(0); s < numStates; s++ {
		out = append(out, s)
	}
	return out
}

// ParseState resolves a state by name. Matching ignores case and the
// punctuation used in the standard names, so "shiftdr", "Shift-DR" and
// "SHIFT_DR" are equivalent. "idle" and "reset" are accepted as shorthands.
func ParseState(name string) (State, error) {
	key := normalizeName(name)
	switch key {
	case "idle":
		return StateRunTestIdle, nil
	case "reset", "tlr":
		return StateTestLogicReset, nil
	}
	for s := State(0); s < numStates; s++ {
		if normalizeName(stateNames[s]) == key {
			return s, nil
		}
	}
	return 0, fmt.Errorf("tap: unknown state %q", name)
}

func normalizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch r {
		case '-', '_', '/', ' ':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Sequence captures the TMS drive pattern and the sequence of states that result
// from applying that pattern to the TAP controller.
type Sequence struct {
	TMS    []bool
	States []State
}

// Final returns the state reached after the whole sequence.
func (s Sequence) Final() State {
	return s.States[len(s.States)-1]
}

// transitions[state][tms] is the next state.
var transitions = [numStates][2]State{
	StateTestLogicReset: {StateRunTestIdle, StateTestLogicReset},
	StateRunTestIdle:    {StateRunTestIdle, StateSelectDRScan},
	StateSelectDRScan:   {StateCaptureDR, StateSelectIRScan},
	StateCaptureDR:      {StateShiftDR, StateExit1DR},
	StateShiftDR:        {StateShiftDR, StateExit1DR},
	StateExit1DR:        {StatePauseDR, StateUpdateDR},
	StatePauseDR:        {StatePauseDR, StateExit2DR},
	StateExit2DR:        {StateShiftDR, StateUpdateDR},
	StateUpdateDR:       {StateRunTestIdle, StateSelectDRScan},
	StateSelectIRScan:   {StateCaptureIR, StateTestLogicReset},
	StateCaptureIR:      {StateShiftIR, StateExit1IR},
	StateShiftIR:        {StateShiftIR, StateExit1IR},
	StateExit1IR:        {StatePauseIR, StateUpdateIR},
	StatePauseIR:        {StatePauseIR, StateExit2IR},
	StateExit2IR:        {StateShiftIR, StateUpdateIR},
	StateUpdateIR:       {StateRunTestIdle, StateSelectDRScan},
}

// ResetClocks is the number of TMS=1 clocks that reach Test-Logic-Reset from
// any state.
const ResetClocks = 5

// NextState returns the next TAP state after clocking TCK with the provided TMS
// value. It panics if an invalid state is supplied, which should never happen
// when interacting through the exported API.
func NextState(current State, tms bool) State {
	if !current.Valid() {
		panic(fmt.Sprintf("tap: unhandled state %d", current))
	}
	if tms {
		return transitions[current][1]
	}
	return transitions[current][0]
}

// StateMachine tracks the TAP controller state locally. It does not perform any
// I/O; instead it produces the sequences of TMS bits needed so a cable can be
// driven separately.
type StateMachine struct {
	state State
}

// NewStateMachine creates a TAP state machine initialized to Test-Logic-Reset.
func NewStateMachine() *StateMachine {
	return &StateMachine{state: StateTestLogicReset}
}

// State reports the current TAP state tracked by the machine.
func (m *StateMachine) State() State {
	return m.state
}

// Clock advances the machine one TCK cycle with the provided TMS bit and
// returns the new state.
func (m *StateMachine) Clock(tms bool) State {
	m.state = NextState(m.state, tms)
	return m.state
}

// Force overrides the tracked state without clocking. It mirrors an
// asynchronous TRST assertion, which puts every TAP into Test-Logic-Reset.
func (m *StateMachine) Force(s State) error {
	if !s.Valid() {
		return fmt.Errorf("tap: invalid state %d", s)
	}
	m.state = s
	return nil
}

// Reset clocks five consecutive TMS=1 cycles and returns the sequence so it
// can be forwarded to a cable.
func (m *StateMachine) Reset() Sequence {
	seq := Sequence{
		TMS:    make([]bool, ResetClocks),
		States: make([]State, ResetClocks+1),
	}
	seq.States[0] = m.state
	for i := 0; i < ResetClocks; i++ {
		seq.TMS[i] = true
		seq.States[i+1] = m.Clock(true)
	}
	return seq
}

// GoTo computes the minimal sequence of TMS values needed to reach the target
// state from the current state. It updates the machine as a side effect and
// returns the generated sequence.
func (m *StateMachine) GoTo(target State) (Sequence, error) {
	path, err := Path(m.state, target)
	if err != nil {
		return Sequence{}, err
	}
	for _, bit := range path.TMS {
		m.Clock(bit)
	}
	return path, nil
}

// Path uses BFS across the TAP state diagram to find the shortest set of
// transitions between two states. TMS=0 edges are explored first, so equal
// length alternatives resolve to the path through Select-DR-Scan and
// Select-IR-Scan. Going from Test-Logic-Reset to itself yields an empty path.
func Path(from, to State) (Sequence, error) {
	if !from.Valid() {
		return Sequence{}, fmt.Errorf("tap: invalid start state %d", from)
	}
	if !to.Valid() {
		return Sequence{}, fmt.Errorf("tap: invalid target state %d", to)
	}
	if from == to {
		return Sequence{States: []State{from}}, nil
	}

	nodes := []pathNode{{state: from, prev: -1}}
	visited := [numStates]bool{}
	visited[from] = true

	for head := 0; head < len(nodes); head++ {
		current := nodes[head]
		for _, bit := range [2]bool{false, true} {
			next := NextState(current.state, bit)
			if visited[next] {
				continue
			}
			visited[next] = true
			nodes = append(nodes, pathNode{state: next, prev: head, tms: bit})
			if next == to {
				return unwind(nodes, len(nodes)-1), nil
			}
		}
	}

	return Sequence{}, fmt.Errorf("tap: no path from %s to %s", from, to)
}

type pathNode struct {
	state State
	prev  int
	tms   bool
}

func unwind(nodes []pathNode, idx int) Sequence {
	var seq Sequence
	for i := idx; i >= 0; i = nodes[i].prev {
		seq.States = append(seq.States, nodes[i].state)
		if nodes[i].prev >= 0 {
			seq.TMS = append(seq.TMS, nodes[i].tms)
		}
	}
	for i, j := 0, len(seq.TMS)-1; i < j; i, j = i+1, j-1 {
		seq.TMS[i], seq.TMS[j] = seq.TMS[j], seq.TMS[i]
	}
	for i, j := 0, len(seq.States)-1; i < j; i, j = i+1, j-1 {
		seq.States[i], seq.States[j] = seq.States[j], seq.States[i]
	}
	return seq
}
