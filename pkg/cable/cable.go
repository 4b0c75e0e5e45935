package cable

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Signal is a bit mask over the lines a cable can drive or sample. The low
// byte follows the conventional POD signal layout shared by JTAG pods; TDO is
// kept above it because it can only be read.
type Signal uint16

const (
	SignalTDI  Signal = 0x01
	SignalTCK  Signal = 0x02
	SignalTMS  Signal = 0x04
	SignalTRST Signal = 0x08 // active low
	SignalSRST Signal = 0x10 // active low, "RESET" on most pods
	SignalSCK  Signal = 0x20
	SignalSDA  Signal = 0x40
	SignalSS   Signal = 0x80

	SignalTDO Signal = 0x100

	// SignalPOD covers every line that can be written through SetSignal.
	SignalPOD Signal = 0xFF
)

var signalNames = []struct {
	sig  Signal
	name string
}{
	{SignalTDI, "TDI"},
	{SignalTCK, "TCK"},
	{SignalTMS, "TMS"},
	{SignalTRST, "TRST"},
	{SignalSRST, "SRST"},
	{SignalSCK, "SCK"},
	{SignalSDA, "SDA"},
	{SignalSS, "SS"},
	{SignalTDO, "TDO"},
}

func (s Signal) String() string {
	if s == 0 {
		return "none"
	}
	var parts []string
	rest := s
	for _, entry := range signalNames {
		if s&entry.sig != 0 {
			parts = append(parts, entry.name)
			rest &^= entry.sig
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%X", uint16(rest)))
	}
	return strings.Join(parts, "|")
}

// ParseSignal resolves a line name ("TRST", "srst", "RESET") or a numeric
// mask ("0x10").
func ParseSignal(name string) (Signal, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	if upper == "RESET" {
		return SignalSRST, nil
	}
	for _, entry := range signalNames {
		if entry.name == upper {
			return entry.sig, nil
		}
	}
	if mask, err := strconv.ParseUint(strings.TrimSpace(name), 0, 16); err == nil && mask != 0 {
		return Signal(mask), nil
	}
	return 0, fmt.Errorf("cable: unknown signal %q", name)
}

// Info describes a cable and the capabilities the chain layer relies on.
type Info struct {
	Driver       string
	Name         string
	Vendor       string
	Model        string
	SerialNumber string
	Firmware     string
	MinFrequency int   // Hertz
	MaxFrequency int   // Hertz
	Frequencies  []int // discrete supported rates, ascending; empty when divisor based
	Signals      Signal
	Notes        string
}

// Supports reports whether every line in mask is wired on this cable.
func (i Info) Supports(mask Signal) bool {
	return i.Signals&mask == mask
}

// Cable abstracts a physical or virtual JTAG adapter. All calls block until
// the lines reflect the request; nothing is buffered across calls.
type Cable interface {
	Info() Info

	// Frequency reports the effective TCK rate in Hertz.
	Frequency() int
	// SetFrequency selects the closest rate the cable supports and returns it.
	SetFrequency(hz int) (int, error)

	// GetSignal returns the current level of the lines in mask.
	GetSignal(mask Signal) (Signal, error)
	// SetSignal drives the lines in mask to the levels in value and returns
	// the levels of all lines before the change.
	SetSignal(mask, value Signal) (Signal, error)

	// Transfer clocks bits TCK cycles. TMS and TDI are packed LSB-first; the
	// returned TDO uses the same packing and is sampled before each rising
	// edge. A nil tms holds TMS low and a nil tdi holds TDI low.
	Transfer(tms, tdi []byte, bits int) ([]byte, error)

	Close() error
}

// Tester is implemented by cables that can verify the link to the adapter
// without touching the target.
type Tester interface {
	Test() error
}

// ChainConfigurer is implemented by cables that run JTAG sequences of their
// own and must be told the IR length of every part first, nearest TDO first.
type ChainConfigurer interface {
	ConfigureChain(irLengths []int) error
	// ReadIDCode reads the IDCODE of part index with the cable's own
	// sequence, leaving the TAP in Run-Test/Idle.
	ReadIDCode(index int) (uint32, error)
}

// TargetResetter is implemented by cables with a target reset sequence of
// their own.
type TargetResetter interface {
	ResetTarget() error
}

var (
	// ErrCableNotFound is returned when a driver is unknown or the adapter it
	// names cannot be reached.
	ErrCableNotFound = errors.New("cable: not found")
	// ErrTransport marks I/O failures in the middle of an operation.
	ErrTransport = errors.New("cable: transport error")
	// ErrClosed is returned by operations on a closed cable.
	ErrClosed = errors.New("cable: closed")
)

// TransportError wraps a low level failure with the cable and operation that
// hit it. It matches ErrTransport with errors.Is.
type TransportError struct {
	Cable string
	Op    string
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("cable %s: %s: %v", e.Cable, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

func transportError(cable, op string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Cable: cable, Op: op, Err: err}
}

// ValidateTransfer checks that tms/tdi cover bits and returns the number of
// bytes a packed buffer of that length needs.
func ValidateTransfer(tms, tdi []byte, bits int) (int, error) {
	if bits <= 0 {
		return 0, fmt.Errorf("cable: bits must be positive, got %d", bits)
	}
	required := (bits + 7) / 8
	if tms != nil && len(tms) < required {
		return 0, fmt.Errorf("cable: tms buffer too short, need %d bytes", required)
	}
	if tdi != nil && len(tdi) < required {
		return 0, fmt.Errorf("cable: tdi buffer too short, need %d bytes", required)
	}
	return required, nil
}

func bitAt(buf []byte, i int) bool {
	if buf == nil {
		return false
	}
	return buf[i/8]&(1<<(uint(i)%8)) != 0
}

func setBit(buf []byte, i int, v bool) {
	if v {
		buf[i/8] |= 1 << (uint(i) % 8)
	} else {
		buf[i/8] &^= 1 << (uint(i) % 8)
	}
}
