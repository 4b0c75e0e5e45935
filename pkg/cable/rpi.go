package cable

import (
	"fmt"

	"github.com/stianeikeland/go-rpio/v4"
)

// Default BCM pin numbers, matching the usual Raspberry Pi JTAG header
// wiring on the SPI0 pins.
const (
	rpiDefaultTCK  = 11
	rpiDefaultTMS  = 25
	rpiDefaultTDI  = 10
	rpiDefaultTDO  = 9
	rpiDefaultTRST = 7
)

type rpiPinConfig struct {
	out map[Signal]rpio.Pin
	tdo rpio.Pin
}

// parseRPiPins reads BCM numbers from tck=, tms=, tdi=, tdo=, trst= and
// srst=. A negative number leaves an optional line unwired.
func parseRPiPins(p Params) (rpiPinConfig, error) {
	cfg := rpiPinConfig{out: make(map[Signal]rpio.Pin)}
	defs := []struct {
		key string
		sig Signal
		def int
	}{
		{"tck", SignalTCK, rpiDefaultTCK},
		{"tms", SignalTMS, rpiDefaultTMS},
		{"tdi", SignalTDI, rpiDefaultTDI},
		{"tdo", SignalTDO, rpiDefaultTDO},
		{"trst", SignalTRST, rpiDefaultTRST},
		{"srst", SignalSRST, -1},
	}
	used := make(map[int]string)
	for _, d := range defs {
		n, err := p.Int(d.key, d.def)
		if err != nil {
			return cfg, err
		}
		if n < 0 {
			if d.sig&(SignalTCK|SignalTMS|SignalTDI|SignalTDO) != 0 {
				return cfg, fmt.Errorf("rpi: %s is required", d.key)
			}
			continue
		}
		if n > 27 {
			return cfg, fmt.Errorf("rpi: %s=%d is not a header GPIO", d.key, n)
		}
		if other, dup := used[n]; dup {
			return cfg, fmt.Errorf("rpi: GPIO%d assigned to both %s and %s", n, other, d.key)
		}
		used[n] = d.key
		if d.sig == SignalTDO {
			cfg.tdo = rpio.Pin(n)
			continue
		}
		cfg.out[d.sig] = rpio.Pin(n)
	}
	return cfg, nil
}

type rpiDriver struct {
	cfg rpiPinConfig
}

func (d *rpiDriver) Write(sig Signal, high bool) error {
	pin, ok := d.cfg.out[sig]
	if !ok {
		return fmt.Errorf("rpi: %v not wired", sig)
	}
	if high {
		rpio.WritePin(pin, rpio.High)
	} else {
		rpio.WritePin(pin, rpio.Low)
	}
	return nil
}

func (d *rpiDriver) ReadTDO() (bool, error) {
	return rpio.ReadPin(d.cfg.tdo) == rpio.High, nil
}

func (d *rpiDriver) Lines() Signal {
	lines := SignalTDO
	for sig := range d.cfg.out {
		lines |= sig
	}
	return lines
}

func (d *rpiDriver) Close() error {
	for _, pin := range d.cfg.out {
		rpio.PinMode(pin, rpio.Input)
		rpio.PullMode(pin, rpio.PullOff)
	}
	rpio.PullMode(d.cfg.tdo, rpio.PullOff)
	return rpio.Close()
}

func openRPi(p Params) (Cable, error) {
	cfg, err := parseRPiPins(p)
	if err != nil {
		return nil, err
	}
	max, err := maxFrequencyParam(p)
	if err != nil {
		return nil, err
	}
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("rpi: open GPIO memory: %w", err)
	}
	for _, pin := range cfg.out {
		rpio.PinMode(pin, rpio.Output)
	}
	rpio.PinMode(cfg.tdo, rpio.Input)
	rpio.PullMode(cfg.tdo, rpio.PullUp)

	info := Info{
		Driver:       "rpi",
		Name:         "rpi",
		Vendor:       "Raspberry Pi",
		Model:        fmt.Sprintf("BCM TCK=%d TMS=%d TDI=%d TDO=%d", cfg.out[SignalTCK], cfg.out[SignalTMS], cfg.out[SignalTDI], cfg.tdo),
		MinFrequency: 1,
		MaxFrequency: max,
	}
	c, err := newBitbang(info, &rpiDriver{cfg: cfg}, true)
	if err != nil {
		rpio.Close()
		return nil, err
	}
	return c, nil
}
