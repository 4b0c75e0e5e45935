package chain

import "errors"

var (
	// ErrUnknownInstruction is returned when an instruction name is not in
	// the part's table.
	ErrUnknownInstruction = errors.New("chain: unknown instruction")
	// ErrUnknownRegister is returned when a data register is not defined on
	// the part.
	ErrUnknownRegister = errors.New("chain: unknown data register")
	// ErrIndexOutOfRange covers part indices and register bit ranges.
	ErrIndexOutOfRange = errors.New("chain: index out of range")
	// ErrNoPartsDetected is returned by Detect when the chain resolves to
	// zero parts.
	ErrNoPartsDetected = errors.New("chain: no parts detected")
	// ErrChainLengthUndetectable is returned by Detect when the IR or DR path
	// is longer than the configured limits allow it to measure.
	ErrChainLengthUndetectable = errors.New("chain: chain length undetectable")
	// ErrNoCable is returned after Disconnect.
	ErrNoCable = errors.New("chain: no cable connected")
	// ErrNoParts is returned by part scoped operations on an empty chain.
	ErrNoParts = errors.New("chain: no parts")
	// ErrNoBoundaryScan is returned by pin operations on a part without a
	// boundary register description or the instructions to drive it.
	ErrNoBoundaryScan = errors.New("chain: no boundary scan")
	// ErrUnknownPin is returned for pins without the boundary cell an
	// operation needs.
	ErrUnknownPin = errors.New("chain: unknown pin")
	// ErrNoPartSelected is returned by operations that need one part while
	// the whole chain is addressed.
	ErrNoPartSelected = errors.New("chain: no part selected")
)
