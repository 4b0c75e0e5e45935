package cable

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// OpenFunc opens a cable from its parameters.
type OpenFunc func(p Params) (Cable, error)

// Driver describes one cable type known to a Registry.
type Driver struct {
	Name        string
	Aliases     []string
	Description string
	Open        OpenFunc
}

// Registry maps driver names to drivers. It is immutable once built and can
// be shared between chains.
type Registry struct {
	drivers []Driver
	byName  map[string]int
}

// NewRegistry builds a registry from drivers. Names and aliases must be
// unique (case-insensitive).
func NewRegistry(drivers ...Driver) (*Registry, error) {
	r := &Registry{
		drivers: make([]Driver, 0, len(drivers)),
		byName:  make(map[string]int),
	}
	for _, d := range drivers {
		if d.Name == "" || d.Open == nil {
			return nil, fmt.Errorf("cable: driver %q is incomplete", d.Name)
		}
		idx := len(r.drivers)
		for _, name := range append([]string{d.Name}, d.Aliases...) {
			key := strings.ToLower(name)
			if _, dup := r.byName[key]; dup {
				return nil, fmt.Errorf("cable: duplicate driver name %q", name)
			}
			r.byName[key] = idx
		}
		r.drivers = append(r.drivers, d)
	}
	return r, nil
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the registry of built-in drivers. It is built on first use
// and never changes afterwards.
func Default() *Registry {
	defaultOnce.Do(func() {
		r, err := NewRegistry(builtinDrivers()...)
		if err != nil {
			panic(err)
		}
		defaultRegistry = r
	})
	return defaultRegistry
}

func builtinDrivers() []Driver {
	return []Driver{
		{
			Name:        "sim",
			Aliases:     []string{"simulator"},
			Description: "In-memory target chain (parts=<idcode>/<irlen>[/<opcode>],bypass/<irlen>)",
			Open:        openSim,
		},
		{
			Name:        "cmsisdap",
			Aliases:     []string{"cmsis-dap", "picoprobe"},
			Description: "CMSIS-DAP adapter over USB (vid=, pid=, serial=)",
			Open:        openCMSISDAP,
		},
		{
			Name:        "gpio",
			Description: "Bit-banged JTAG on host GPIO via periph.io (tck=, tms=, tdi=, tdo=, trst=, srst=)",
			Open:        openGPIO,
		},
		{
			Name:        "rpi",
			Aliases:     []string{"raspberrypi"},
			Description: "Bit-banged JTAG on Raspberry Pi BCM GPIO numbers (tck=, tms=, tdi=, tdo=, trst=, srst=)",
			Open:        openRPi,
		},
		{
			Name:        "buspirate",
			Aliases:     []string{"bus-pirate"},
			Description: "Bus Pirate in OpenOCD binary mode (port=, speed=normal|fast)",
			Open:        openBusPirate,
		},
	}
}

// Lookup returns the driver registered under name or one of its aliases.
func (r *Registry) Lookup(name string) (Driver, bool) {
	idx, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Driver{}, false
	}
	return r.drivers[idx], true
}

// Names returns the primary driver names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.drivers))
	for _, d := range r.drivers {
		names = append(names, d.Name)
	}
	sort.Strings(names)
	return names
}

// Drivers returns a copy of the registered drivers in registration order.
func (r *Registry) Drivers() []Driver {
	out := make([]Driver, len(r.drivers))
	copy(out, r.drivers)
	return out
}

// Open resolves name and opens the cable. Unknown names and adapters that
// cannot be reached both report ErrCableNotFound.
func (r *Registry) Open(name string, p Params) (Cable, error) {
	d, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: unknown driver %q (have %s)", ErrCableNotFound, name, strings.Join(r.Names(), ", "))
	}
	if p == nil {
		p = Params{}
	}
	c, err := d.Open(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCableNotFound, d.Name, err)
	}
	logger.Debugf("cable %s opened (%s)", d.Name, strings.Join(p.Strings(), " "))
	return c, nil
}
