package cable

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/physic"
)

// PinDriver is the line-level backend of a bit-banged cable. Write drives one
// output line; ReadTDO samples TDO.
type PinDriver interface {
	Write(sig Signal, high bool) error
	ReadTDO() (bool, error)
	// Lines reports the wired lines, SignalTDO included.
	Lines() Signal
	Close() error
}

// Bitbang turns a PinDriver into a Cable by toggling TCK in software.
type Bitbang struct {
	info   Info
	pins   PinDriver
	levels Signal
	freq   int
	half   time.Duration
	paced  bool
	closed bool
}

// idle levels: TCK low, every other output high (TRST/SRST released).
const bitbangIdle = SignalPOD &^ SignalTCK

func newBitbang(info Info, pins PinDriver, paced bool) (*Bitbang, error) {
	if pins.Lines()&(SignalTCK|SignalTMS|SignalTDI|SignalTDO) != SignalTCK|SignalTMS|SignalTDI|SignalTDO {
		return nil, fmt.Errorf("cable: %s needs TCK, TMS, TDI and TDO wired", info.Name)
	}
	info.Signals = pins.Lines()
	b := &Bitbang{info: info, pins: pins, paced: paced}
	for _, sig := range []Signal{SignalTCK, SignalTMS, SignalTDI, SignalTRST, SignalSRST} {
		if info.Signals&sig == 0 {
			continue
		}
		high := bitbangIdle&sig != 0
		if err := pins.Write(sig, high); err != nil {
			return nil, transportError(info.Name, "init", err)
		}
		if high {
			b.levels |= sig
		}
	}
	if _, err := b.SetFrequency(0); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Bitbang) Info() Info {
	return b.info
}

func (b *Bitbang) Frequency() int {
	return b.freq
}

// SetFrequency picks from the cable's rate table when it has one, otherwise
// divides the maximum rate.
func (b *Bitbang) SetFrequency(hz int) (int, error) {
	if b.closed {
		return 0, ErrClosed
	}
	var f int
	if len(b.info.Frequencies) > 0 {
		f = MatchFrequency(b.info.Frequencies, hz)
	} else {
		f = DivideFrequency(b.info.MaxFrequency, hz)
	}
	if f <= 0 {
		return 0, fmt.Errorf("cable: %s has no usable frequency", b.info.Name)
	}
	b.freq = f
	b.half = (physic.Frequency(f) * physic.Hertz).Period() / 2
	logger.Debugf("cable %s: TCK %d Hz (requested %d Hz)", b.info.Name, f, hz)
	return f, nil
}

func (b *Bitbang) GetSignal(mask Signal) (Signal, error) {
	if b.closed {
		return 0, ErrClosed
	}
	levels := b.levels
	if mask&SignalTDO != 0 && b.info.Signals&SignalTDO != 0 {
		tdo, err := b.pins.ReadTDO()
		if err != nil {
			return 0, transportError(b.info.Name, "read TDO", err)
		}
		if tdo {
			levels |= SignalTDO
		}
	}
	return levels & mask & b.info.Signals, nil
}

func (b *Bitbang) SetSignal(mask, value Signal) (Signal, error) {
	if b.closed {
		return 0, ErrClosed
	}
	old := b.levels
	mask &= b.info.Signals & SignalPOD
	for _, entry := range signalNames {
		sig := entry.sig
		if mask&sig == 0 {
			continue
		}
		if err := b.drive(sig, value&sig != 0); err != nil {
			return old, err
		}
	}
	return old, nil
}

func (b *Bitbang) drive(sig Signal, high bool) error {
	if (b.levels&sig != 0) == high {
		return nil
	}
	if err := b.pins.Write(sig, high); err != nil {
		return transportError(b.info.Name, "write "+sig.String(), err)
	}
	if high {
		b.levels |= sig
	} else {
		b.levels &^= sig
	}
	return nil
}

func (b *Bitbang) Transfer(tms, tdi []byte, bits int) ([]byte, error) {
	if b.closed {
		return nil, ErrClosed
	}
	n, err := ValidateTransfer(tms, tdi, bits)
	if err != nil {
		return nil, err
	}
	tdo := make([]byte, n)
	for i := 0; i < bits; i++ {
		if err := b.drive(SignalTMS, bitAt(tms, i)); err != nil {
			return nil, err
		}
		if err := b.drive(SignalTDI, bitAt(tdi, i)); err != nil {
			return nil, err
		}
		out, err := b.pins.ReadTDO()
		if err != nil {
			return nil, transportError(b.info.Name, "read TDO", err)
		}
		setBit(tdo, i, out)
		if err := b.drive(SignalTCK, true); err != nil {
			return nil, err
		}
		b.wait()
		if err := b.drive(SignalTCK, false); err != nil {
			return nil, err
		}
		b.wait()
	}
	logger.Tracef("cable %s: clocked %d bits", b.info.Name, bits)
	return tdo, nil
}

func (b *Bitbang) wait() {
	if b.paced && b.half > 0 {
		time.Sleep(b.half)
	}
}

func (b *Bitbang) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	return b.pins.Close()
}
