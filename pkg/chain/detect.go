package chain

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/jtagchain/pkg/bsdl"
	"github.com/OpenTraceLab/jtagchain/pkg/cable"
	"github.com/OpenTraceLab/jtagchain/pkg/idcode"
	"github.com/OpenTraceLab/jtagchain/pkg/register"
	"github.com/OpenTraceLab/jtagchain/pkg/scan"
	"github.com/OpenTraceLab/jtagchain/pkg/tap"
)

// Detect sizes the chain, reads every part's IDCODE and builds the part
// list. Parts with a description in the repository get its instruction
// table; the others only know BYPASS. Every part is left in BYPASS.
func (c *Chain) Detect() ([]*Part, error) {
	if c.cable == nil {
		return nil, ErrNoCable
	}
	c.parts = nil
	c.active = AllParts
	if err := c.Reset(); err != nil {
		return nil, err
	}

	irTotal, capture, err := c.measure(c.shifter.ShiftIR, c.limits.MaxIRLength, "IR", false)
	if err != nil {
		return nil, err
	}
	capture, err = capture.Slice(0, irTotal)
	if err != nil {
		return nil, err
	}
	c.log.Debugf("IR chain length %d bits, capture %s", irTotal, capture)

	// The IR scan above left every part in BYPASS.
	count, _, err := c.measure(c.shifter.ShiftDR, c.limits.MaxParts, "DR", true)
	if err != nil {
		return nil, err
	}
	c.log.Debugf("chain length %d parts", count)

	if err := c.Reset(); err != nil {
		return nil, err
	}
	ids, err := c.readIDCodes(count)
	if err != nil {
		return nil, err
	}

	descs := make([]*bsdl.Description, len(ids))
	lengths := make([]int, len(ids))
	for i, id := range ids {
		if !id.Valid() {
			continue
		}
		if c.repo != nil {
			if d, ok := c.repo.Lookup(uint32(id)); ok {
				descs[i] = d
				lengths[i] = d.IRLength
				continue
			}
		}
		if p, ok := idcode.LookupPart(id); ok {
			lengths[i] = p.IRLength
		}
	}
	if err := c.fillIRLengths(lengths, irTotal, capture); err != nil {
		return nil, err
	}

	parts := make([]*Part, len(ids))
	for i, id := range ids {
		p := newPart(i, id, lengths[i])
		if d := descs[i]; d != nil {
			if err := p.applyDescription(d); err != nil {
				return nil, err
			}
			if d.MaxFrequency > 0 && float64(c.freq) > d.MaxFrequency {
				c.log.Warnf("part %d (%s) is rated for %.0f Hz, TCK runs at %d Hz", i, d.Entity, d.MaxFrequency, c.freq)
			}
		}
		c.log.WithFields(logrus.Fields{
			"part":   i,
			"idcode": id.String(),
			"ir":     p.irLength,
			"entity": p.Entity(),
		}).Debug("part detected")
		parts[i] = p
	}
	c.parts = parts

	if cc, ok := c.cable.(cable.ChainConfigurer); ok {
		if err := c.configureCable(cc); err != nil {
			return nil, err
		}
	}
	for _, p := range c.parts {
		p.active = p.instructions[InstructionBypass]
	}
	if err := c.ShiftIR(); err != nil {
		return nil, err
	}
	c.log.Infof("detected %d parts, %d IR bits", len(parts), irTotal)
	return c.Parts(), nil
}

// measure finds the length of the register path shift selects by pushing max
// zeros followed by max ones and looking for the first one to come out after
// the zeros. It leaves the path filled with ones. A path that never returns
// a one is too long when TDO is known to toggle, either from an earlier scan
// (tdoLive) or from captured bits seen in this one; otherwise TDO is stuck.
func (c *Chain) measure(shift func(*register.Register, scan.ExitMode) (*register.Register, error), max int, what string, tdoLive bool) (int, *register.Register, error) {
	in := register.New(2 * max)
	for i := max; i < 2*max; i++ {
		_ = in.SetBit(i, true)
	}
	out, err := shift(in, scan.ExitIdle)
	if err != nil {
		return 0, nil, err
	}
	for i := max; i < out.Len(); i++ {
		if !out.Bit(i) {
			continue
		}
		n := i - max
		if n == 0 {
			c.log.Warnf("%s scan: TDO stuck at 1", what)
			return 0, nil, ErrNoPartsDetected
		}
		return n, out, nil
	}
	if tdoLive || !allZero(out) {
		c.log.Warnf("%s scan: path longer than %d bits", what, max)
		return 0, nil, fmt.Errorf("%w: %s path longer than %d bits", ErrChainLengthUndetectable, what, max)
	}
	c.log.Warnf("%s scan: TDO stuck at 0", what)
	return 0, nil, ErrNoPartsDetected
}

func allZero(r *register.Register) bool {
	for i := 0; i < r.Len(); i++ {
		if r.Bit(i) {
			return false
		}
	}
	return true
}

// configureCable hands the part layout to a cable that addresses parts on
// its own, then has it read back every IDCODE as a cross-check.
func (c *Chain) configureCable(cc cable.ChainConfigurer) error {
	lengths := make([]int, len(c.parts))
	for i, p := range c.parts {
		lengths[i] = p.irLength
	}
	if err := cc.ConfigureChain(lengths); err != nil {
		return fmt.Errorf("chain: configure cable: %w", err)
	}
	for i, p := range c.parts {
		if !p.id.Valid() {
			continue
		}
		id, err := cc.ReadIDCode(i)
		if err != nil {
			return fmt.Errorf("chain: cable IDCODE of part %d: %w", i, err)
		}
		if idcode.IDCode(id) != p.id {
			c.log.Warnf("part %d: cable reads IDCODE 0x%08X, scan read %s", i, id, p.id)
		}
	}
	return nil
}

// readIDCodes walks the DR path after reset. A part with an IDCODE shifts
// out a 1 first, a BYPASS part a 0.
func (c *Chain) readIDCodes(count int) ([]idcode.IDCode, error) {
	one := register.New(1).Fill(true)
	rest := register.New(31).Fill(true)
	var ids []idcode.IDCode
	for len(ids) < count {
		b, err := c.shifter.ShiftDR(one, scan.ExitShift)
		if err != nil {
			return nil, err
		}
		if !b.Bit(0) {
			ids = append(ids, 0)
			continue
		}
		hi, err := c.shifter.ShiftDR(rest, scan.ExitShift)
		if err != nil {
			return nil, err
		}
		if hi.AllOnes() {
			c.log.Warnf("all-ones IDCODE after %d of %d parts, stopping", len(ids), count)
			break
		}
		ids = append(ids, idcode.IDCode(hi.Uint()<<1|1))
	}
	if err := c.shifter.GoTo(tap.StateRunTestIdle); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrNoPartsDetected
	}
	return ids, nil
}

// fillIRLengths resolves the zero entries of lengths so that they add up
// to total. The last unknown part gets whatever is left; earlier ones are
// split where the capture pattern shows the "01" every IR captures in its
// two low bits.
func (c *Chain) fillIRLengths(lengths []int, total int, capture *register.Register) error {
	unknown := 0
	known := 0
	for _, n := range lengths {
		if n == 0 {
			unknown++
		}
		known += n
	}
	if unknown == 0 {
		if known != total {
			return fmt.Errorf("chain: part IR lengths add up to %d bits, chain has %d", known, total)
		}
		return nil
	}

	pos := 0
	for i := range lengths {
		if lengths[i] > 0 {
			pos += lengths[i]
			continue
		}
		unknown--
		knownAfter := 0
		for _, n := range lengths[i+1:] {
			knownAfter += n
		}
		if unknown == 0 {
			lengths[i] = total - pos - knownAfter
			if lengths[i] < 1 {
				return fmt.Errorf("chain: no IR bits left for part %d", i)
			}
			pos += lengths[i]
			continue
		}
		next := -1
		for p := pos + 2; p <= total-knownAfter-2*unknown; p++ {
			if capture.Bit(p) && !capture.Bit(p+1) {
				next = p
				break
			}
		}
		if next < 0 {
			return fmt.Errorf("chain: cannot find the IR of part %d in capture %s", i, capture)
		}
		lengths[i] = next - pos
		c.log.Warnf("part %d: IR length %d guessed from the capture pattern", i, lengths[i])
		pos = next
	}
	return nil
}
