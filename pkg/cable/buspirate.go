package cable

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Bus Pirate OpenOCD binary mode commands.
const (
	bpCmdPortMode  = 0x01
	bpCmdFeature   = 0x02
	bpCmdTapShift  = 0x05
	bpCmdUARTSpeed = 0x07

	bpModeJTAG = 0x01

	bpFeatureTRST = 0x04
	bpFeatureSRST = 0x08

	bpSpeedNormal = 0x00
	bpSpeedFast   = 0x01

	bpMaxShiftBits = 0x2000

	bpEnterBinary = 0x00
	bpEnterOOCD   = 0x06
)

const (
	bpBaudNormal = 115200
	bpBaudFast   = 1000000

	// bpFrequency is the nominal TCK rate of the OOCD firmware; it cannot be
	// changed from the host.
	bpFrequency = 100_000

	bpReadTimeout = 100 * time.Millisecond
	bpEnterTries  = 25
)

// serialPort is the part of serial.Port the Bus Pirate driver uses.
type serialPort interface {
	io.ReadWriter
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
	Close() error
}

// BusPirate drives a Bus Pirate running the OpenOCD binary protocol.
type BusPirate struct {
	mu     sync.Mutex
	port   serialPort
	info   Info
	levels Signal
	// reopen switches the host side baud rate; nil in tests.
	reopen func(baud int) error
}

func openBusPirate(p Params) (Cable, error) {
	name := p.String("port", "")
	if name == "" {
		return nil, fmt.Errorf("buspirate: parameter port= is required")
	}
	port, err := serial.Open(name, &serial.Mode{BaudRate: bpBaudNormal})
	if err != nil {
		return nil, fmt.Errorf("buspirate: open %s: %w", name, err)
	}
	fast := false
	switch speed := p.String("speed", "normal"); speed {
	case "normal":
	case "fast":
		fast = true
	default:
		port.Close()
		return nil, fmt.Errorf("buspirate: unknown speed %q", speed)
	}
	reopen := func(baud int) error {
		return port.SetMode(&serial.Mode{BaudRate: baud})
	}
	bp, err := newBusPirate(port, name, fast, reopen)
	if err != nil {
		port.Close()
		return nil, err
	}
	return bp, nil
}

func newBusPirate(port serialPort, name string, fast bool, reopen func(int) error) (*BusPirate, error) {
	bp := &BusPirate{
		port:   port,
		reopen: reopen,
		levels: SignalTRST | SignalSRST,
		info: Info{
			Driver:       "buspirate",
			Name:         "buspirate",
			Vendor:       "Dangerous Prototypes",
			Model:        "Bus Pirate (" + name + ")",
			MinFrequency: bpFrequency,
			MaxFrequency: bpFrequency,
			Frequencies:  []int{bpFrequency},
			Signals:      SignalTCK | SignalTMS | SignalTDI | SignalTDO | SignalTRST | SignalSRST,
		},
	}
	if err := port.SetReadTimeout(bpReadTimeout); err != nil {
		return nil, transportError(bp.info.Name, "set timeout", err)
	}
	if err := bp.enter(); err != nil {
		return nil, err
	}
	if fast {
		if err := bp.setFast(); err != nil {
			return nil, err
		}
	}
	if err := bp.write(bpCmdPortMode, bpModeJTAG); err != nil {
		return nil, err
	}
	for _, f := range []byte{bpFeatureTRST, bpFeatureSRST} {
		if err := bp.write(bpCmdFeature, f, 1); err != nil {
			return nil, err
		}
	}
	return bp, nil
}

// enter resets the firmware into binary mode and then into OOCD mode.
func (bp *BusPirate) enter() error {
	if err := bp.port.ResetInputBuffer(); err != nil {
		return transportError(bp.info.Name, "flush", err)
	}
	var seen []byte
	buf := make([]byte, 16)
	for i := 0; i < bpEnterTries; i++ {
		if err := bp.write(bpEnterBinary); err != nil {
			return err
		}
		n, err := bp.port.Read(buf)
		if err != nil {
			return transportError(bp.info.Name, "enter binary mode", err)
		}
		seen = append(seen, buf[:n]...)
		if bytes.Contains(seen, []byte("BBIO1")) {
			return bp.expect([]byte{bpEnterOOCD}, "OCD1")
		}
	}
	return fmt.Errorf("buspirate: no BBIO1 after %d tries", bpEnterTries)
}

func (bp *BusPirate) setFast() error {
	if err := bp.write(bpCmdUARTSpeed, bpSpeedFast); err != nil {
		return err
	}
	if bp.reopen != nil {
		if err := bp.reopen(bpBaudFast); err != nil {
			return transportError(bp.info.Name, "set baud", err)
		}
	}
	ack := make([]byte, 2)
	if err := bp.read(ack); err != nil {
		return err
	}
	if ack[0] != bpCmdUARTSpeed || ack[1] != bpSpeedFast {
		return fmt.Errorf("buspirate: unexpected speed ack % X", ack)
	}
	return nil
}

func (bp *BusPirate) expect(cmd []byte, reply string) error {
	if err := bp.write(cmd...); err != nil {
		return err
	}
	got := make([]byte, len(reply))
	if err := bp.read(got); err != nil {
		return err
	}
	if string(got) != reply {
		return fmt.Errorf("buspirate: expected %q, got %q", reply, got)
	}
	return nil
}

func (bp *BusPirate) write(b ...byte) error {
	if _, err := bp.port.Write(b); err != nil {
		return transportError(bp.info.Name, "write", err)
	}
	return nil
}

// read fills buf; a read that times out without data is an error.
func (bp *BusPirate) read(buf []byte) error {
	for off := 0; off < len(buf); {
		n, err := bp.port.Read(buf[off:])
		if err != nil {
			return transportError(bp.info.Name, "read", err)
		}
		if n == 0 {
			return transportError(bp.info.Name, "read", fmt.Errorf("timeout after %d of %d bytes", off, len(buf)))
		}
		off += n
	}
	return nil
}

func (bp *BusPirate) Info() Info {
	return bp.info
}

func (bp *BusPirate) Frequency() int {
	return bpFrequency
}

func (bp *BusPirate) SetFrequency(hz int) (int, error) {
	if hz > 0 && hz != bpFrequency {
		logger.Debugf("buspirate: TCK is fixed at %d Hz, ignoring %d Hz", bpFrequency, hz)
	}
	return bpFrequency, nil
}

// GetSignal reports the last levels driven; the OOCD protocol cannot read
// lines back.
func (bp *BusPirate) GetSignal(mask Signal) (Signal, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if bp.port == nil {
		return 0, ErrClosed
	}
	return bp.levels & mask, nil
}

func (bp *BusPirate) SetSignal(mask, value Signal) (Signal, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if bp.port == nil {
		return 0, ErrClosed
	}
	old := bp.levels
	for _, f := range []struct {
		sig     Signal
		feature byte
	}{
		{SignalTRST, bpFeatureTRST},
		{SignalSRST, bpFeatureSRST},
	} {
		if mask&f.sig == 0 {
			continue
		}
		var action byte
		if value&f.sig != 0 {
			action = 1
		}
		if err := bp.write(bpCmdFeature, f.feature, action); err != nil {
			return old, err
		}
		if action == 1 {
			bp.levels |= f.sig
		} else {
			bp.levels &^= f.sig
		}
	}
	return old, nil
}

// Transfer sends TAP_SHIFT commands of at most 0x2000 clocks each.
func (bp *BusPirate) Transfer(tms, tdi []byte, bits int) ([]byte, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if bp.port == nil {
		return nil, ErrClosed
	}
	n, err := ValidateTransfer(tms, tdi, bits)
	if err != nil {
		return nil, err
	}
	tdo := make([]byte, n)
	for start := 0; start < bits; start += bpMaxShiftBits {
		count := bits - start
		if count > bpMaxShiftBits {
			count = bpMaxShiftBits
		}
		out, err := bp.shift(tms, tdi, start, count)
		if err != nil {
			return nil, err
		}
		for i := 0; i < count; i++ {
			setBit(tdo, start+i, bitAt(out, i))
		}
	}
	return tdo, nil
}

func (bp *BusPirate) shift(tms, tdi []byte, start, count int) ([]byte, error) {
	nbytes := (count + 7) / 8
	cmd := make([]byte, 3, 3+2*nbytes)
	cmd[0] = bpCmdTapShift
	cmd[1] = byte(count >> 8)
	cmd[2] = byte(count)
	for b := 0; b < nbytes; b++ {
		var di, ms byte
		for i := 0; i < 8 && b*8+i < count; i++ {
			if bitAt(tdi, start+b*8+i) {
				di |= 1 << uint(i)
			}
			if bitAt(tms, start+b*8+i) {
				ms |= 1 << uint(i)
			}
		}
		cmd = append(cmd, di, ms)
	}
	if err := bp.write(cmd...); err != nil {
		return nil, err
	}
	resp := make([]byte, 3+nbytes)
	if err := bp.read(resp); err != nil {
		return nil, err
	}
	if resp[0] != bpCmdTapShift || int(resp[1])<<8|int(resp[2]) != count {
		return nil, transportError(bp.info.Name, "tap shift", fmt.Errorf("bad reply header % X", resp[:3]))
	}
	return resp[3:], nil
}

func (bp *BusPirate) Close() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if bp.port == nil {
		return nil
	}
	// Leave OOCD mode and return the firmware to its terminal.
	if err := bp.write(bpEnterBinary, 0x0F); err != nil {
		logger.Warnf("buspirate: reset to terminal: %v", err)
	}
	err := bp.port.Close()
	bp.port = nil
	return err
}
