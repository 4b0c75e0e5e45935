package cable

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// GPIOPins names the host pins of a bit-banged cable. TRST and SRST are
// optional.
type GPIOPins struct {
	TCK, TMS, TDI, TDO gpio.PinIO
	TRST, SRST         gpio.PinIO

	// MaxFrequency caps the TCK rate; the default is 500 kHz.
	MaxFrequency int
}

const gpioDefaultMaxFrequency = 500_000

type gpioDriver struct {
	out map[Signal]gpio.PinIO
	tdo gpio.PinIO
}

func (d *gpioDriver) Write(sig Signal, high bool) error {
	p, ok := d.out[sig]
	if !ok {
		return fmt.Errorf("gpio: %v not wired", sig)
	}
	return p.Out(gpio.Level(high))
}

func (d *gpioDriver) ReadTDO() (bool, error) {
	return d.tdo.Read() == gpio.High, nil
}

func (d *gpioDriver) Lines() Signal {
	lines := SignalTDO
	for sig := range d.out {
		lines |= sig
	}
	return lines
}

func (d *gpioDriver) Close() error {
	var first error
	for sig, p := range d.out {
		if err := p.In(gpio.PullNoChange, gpio.NoEdge); err != nil && first == nil {
			first = fmt.Errorf("gpio: release %v: %w", sig, err)
		}
	}
	return first
}

// NewGPIOCable builds a paced bit-bang cable on periph.io pins.
func NewGPIOCable(pins GPIOPins) (*Bitbang, error) {
	if pins.TCK == nil || pins.TMS == nil || pins.TDI == nil || pins.TDO == nil {
		return nil, fmt.Errorf("gpio: TCK, TMS, TDI and TDO are required")
	}
	d := &gpioDriver{
		out: map[Signal]gpio.PinIO{
			SignalTCK: pins.TCK,
			SignalTMS: pins.TMS,
			SignalTDI: pins.TDI,
		},
		tdo: pins.TDO,
	}
	if pins.TRST != nil {
		d.out[SignalTRST] = pins.TRST
	}
	if pins.SRST != nil {
		d.out[SignalSRST] = pins.SRST
	}
	if err := pins.TDO.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("gpio: TDO %s: %w", pins.TDO, err)
	}
	max := pins.MaxFrequency
	if max <= 0 {
		max = gpioDefaultMaxFrequency
	}
	info := Info{
		Driver:       "gpio",
		Name:         "gpio",
		Model:        fmt.Sprintf("TCK=%s TMS=%s TDI=%s TDO=%s", pins.TCK, pins.TMS, pins.TDI, pins.TDO),
		MinFrequency: 1,
		MaxFrequency: max,
	}
	return newBitbang(info, d, true)
}

func openGPIO(p Params) (Cable, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("gpio: host init: %w", err)
	}
	lookup := func(key string, required bool) (gpio.PinIO, error) {
		name := p.String(key, "")
		if name == "" {
			if required {
				return nil, fmt.Errorf("gpio: parameter %s= is required", key)
			}
			return nil, nil
		}
		pin := gpioreg.ByName(name)
		if pin == nil {
			return nil, fmt.Errorf("gpio: no pin named %q", name)
		}
		return pin, nil
	}

	var pins GPIOPins
	var err error
	for _, f := range []struct {
		key      string
		dst      *gpio.PinIO
		required bool
	}{
		{"tck", &pins.TCK, true},
		{"tms", &pins.TMS, true},
		{"tdi", &pins.TDI, true},
		{"tdo", &pins.TDO, true},
		{"trst", &pins.TRST, false},
		{"srst", &pins.SRST, false},
	} {
		if *f.dst, err = lookup(f.key, f.required); err != nil {
			return nil, err
		}
	}
	if pins.MaxFrequency, err = maxFrequencyParam(p); err != nil {
		return nil, err
	}
	return NewGPIOCable(pins)
}

// maxFrequencyParam reads the max= rate cap of the bit-banged drivers. Zero
// or a negative value selects the default.
func maxFrequencyParam(p Params) (int, error) {
	max, err := p.Int("max", gpioDefaultMaxFrequency)
	if err != nil {
		return 0, err
	}
	if max <= 0 {
		max = gpioDefaultMaxFrequency
	}
	return max, nil
}
