package chain

import (
	"fmt"
	"time"

	"github.com/OpenTraceLab/jtagchain/pkg/cable"
	"github.com/OpenTraceLab/jtagchain/pkg/tap"
)

// srstPulse is how long ResetTarget holds SRST low.
var srstPulse = 10 * time.Millisecond

// GetSignal returns the levels of the lines in mask.
func (c *Chain) GetSignal(mask cable.Signal) (cable.Signal, error) {
	if c.cable == nil {
		return 0, ErrNoCable
	}
	return c.cable.GetSignal(mask)
}

// SetSignal drives the lines in mask to value and returns the previous
// levels. Pulling a wired TRST from high to low resets the TAP, so the
// tracked state and the part instructions follow.
func (c *Chain) SetSignal(mask, value cable.Signal) (cable.Signal, error) {
	if c.cable == nil {
		return 0, ErrNoCable
	}
	old, err := c.cable.SetSignal(mask, value)
	if err != nil {
		return 0, err
	}
	if c.trstFalling(mask, value, old) {
		c.log.Debug("TRST asserted")
		if err := c.shifter.ForceState(tap.StateTestLogicReset); err != nil {
			return old, err
		}
		c.resetInstructions()
	}
	return old, nil
}

// trstFalling reports whether a SetSignal call took TRST from high to low
// on a cable that actually wires it.
func (c *Chain) trstFalling(mask, value, old cable.Signal) bool {
	if mask&cable.SignalTRST == 0 || !c.cable.Info().Supports(cable.SignalTRST) {
		return false
	}
	return old&cable.SignalTRST != 0 && value&cable.SignalTRST == 0
}

// GetTRST reports whether TRST is high (released).
func (c *Chain) GetTRST() (bool, error) {
	v, err := c.GetSignal(cable.SignalTRST)
	if err != nil {
		return false, err
	}
	return v&cable.SignalTRST != 0, nil
}

// SetTRST drives TRST high (released) or low (asserted).
func (c *Chain) SetTRST(high bool) error {
	var v cable.Signal
	if high {
		v = cable.SignalTRST
	}
	_, err := c.SetSignal(cable.SignalTRST, v)
	return err
}

// ResetTarget resets the system behind the chain, with the cable's own
// sequence when it has one and by pulsing SRST otherwise. The TAP state is
// not touched.
func (c *Chain) ResetTarget() error {
	if c.cable == nil {
		return ErrNoCable
	}
	if r, ok := c.cable.(cable.TargetResetter); ok {
		c.log.Debug("target reset by cable")
		return r.ResetTarget()
	}
	info := c.cable.Info()
	if !info.Supports(cable.SignalSRST) {
		return fmt.Errorf("chain: cable %s cannot reset the target", info.Driver)
	}
	if _, err := c.cable.SetSignal(cable.SignalSRST, 0); err != nil {
		return err
	}
	time.Sleep(srstPulse)
	_, err := c.cable.SetSignal(cable.SignalSRST, cable.SignalSRST)
	return err
}

// GetFrequency returns the effective TCK rate in Hertz.
func (c *Chain) GetFrequency() int { return c.freq }

// SetFrequency asks the cable for hz and returns the rate it settled on,
// which may be lower.
func (c *Chain) SetFrequency(hz int) (int, error) {
	if c.cable == nil {
		return 0, ErrNoCable
	}
	f, err := c.cable.SetFrequency(hz)
	if err != nil {
		return 0, err
	}
	if f != hz {
		c.log.Debugf("requested %d Hz, cable runs at %d Hz", hz, f)
	}
	c.freq = f
	return f, nil
}
