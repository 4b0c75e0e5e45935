package cable

import (
	"fmt"
	"sync"
)

// Well known CMSIS-DAP adapters.
const (
	VendorRaspberryPi = 0x2E8A
	ProductDebugProbe = 0x000C
)

const (
	dapMinFrequency = 1_000
	dapMaxFrequency = 10_000_000
)

// CMSISDAP drives a CMSIS-DAP adapter in JTAG mode.
type CMSISDAP struct {
	mu        sync.Mutex
	transport dapTransport
	info      Info
	freq      int
	connected bool
}

func openCMSISDAP(p Params) (Cable, error) {
	vid, err := p.Uint16("vid", VendorRaspberryPi)
	if err != nil {
		return nil, err
	}
	pid, err := p.Uint16("pid", ProductDebugProbe)
	if err != nil {
		return nil, err
	}
	t, err := openUSBTransport(vid, pid, p.String("serial", ""))
	if err != nil {
		return nil, err
	}
	c, err := newCMSISDAP(t)
	if err != nil {
		t.Close()
		return nil, err
	}
	return c, nil
}

// newCMSISDAP queries the adapter, connects the JTAG port and sets the
// default clock.
func newCMSISDAP(t dapTransport) (*CMSISDAP, error) {
	c := &CMSISDAP{transport: t}
	if err := c.queryInfo(); err != nil {
		return nil, err
	}
	resp, err := t.WriteRead(encodeDAPConnect(dapPortJTAG))
	if err != nil {
		return nil, transportError(c.info.Name, "connect", err)
	}
	port, err := decodeDAPConnect(resp)
	if err != nil {
		return nil, err
	}
	if port != dapPortJTAG {
		return nil, fmt.Errorf("cmsis-dap: adapter connected port %d, not JTAG", port)
	}
	c.connected = true
	if _, err := c.SetFrequency(1_000_000); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *CMSISDAP) queryInfo() error {
	c.info = Info{
		Driver:       "cmsisdap",
		Name:         "cmsisdap",
		MinFrequency: dapMinFrequency,
		MaxFrequency: dapMaxFrequency,
		Signals:      SignalTCK | SignalTMS | SignalTDI | SignalTDO | SignalTRST | SignalSRST,
	}
	resp, err := c.transport.WriteRead(encodeDAPInfo(dapInfoPacketSize))
	if err != nil {
		return transportError(c.info.Name, "info", err)
	}
	if n, err := decodeDAPPacketSize(resp); err == nil && n > 0 {
		c.transport.SetPacketSize(n)
	}
	fields := []struct {
		id  byte
		dst *string
	}{
		{dapInfoVendor, &c.info.Vendor},
		{dapInfoProduct, &c.info.Model},
		{dapInfoSerial, &c.info.SerialNumber},
		{dapInfoFirmware, &c.info.Firmware},
	}
	for _, f := range fields {
		resp, err := c.transport.WriteRead(encodeDAPInfo(f.id))
		if err != nil {
			return transportError(c.info.Name, "info", err)
		}
		// Adapters answer unsupported IDs with an empty string.
		if s, err := decodeDAPInfoString(resp); err == nil {
			*f.dst = s
		}
	}
	logger.Debugf("cmsis-dap: %s %s serial=%s fw=%s packet=%d",
		c.info.Vendor, c.info.Model, c.info.SerialNumber, c.info.Firmware, c.transport.PacketSize())
	return nil
}

func (c *CMSISDAP) Info() Info {
	return c.info
}

func (c *CMSISDAP) Frequency() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.freq
}

func (c *CMSISDAP) SetFrequency(hz int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transport == nil {
		return 0, ErrClosed
	}
	f := ClampFrequency(dapMinFrequency, dapMaxFrequency, hz)
	resp, err := c.transport.WriteRead(encodeDAPSetClock(uint32(f)))
	if err != nil {
		return 0, transportError(c.info.Name, "set clock", err)
	}
	if err := checkDAPStatus(resp, dapCmdSWJClock); err != nil {
		return 0, err
	}
	c.freq = f
	return f, nil
}

// pins reads back all SWJ pins without driving any.
func (c *CMSISDAP) pins(out, sel byte) (Signal, error) {
	resp, err := c.transport.WriteRead(encodeDAPSWJPins(out, sel, 0))
	if err != nil {
		return 0, transportError(c.info.Name, "swj pins", err)
	}
	pins, err := decodeDAPSWJPins(resp)
	if err != nil {
		return 0, err
	}
	return dapPinsToSignals(pins), nil
}

func (c *CMSISDAP) GetSignal(mask Signal) (Signal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transport == nil {
		return 0, ErrClosed
	}
	levels, err := c.pins(0, 0)
	if err != nil {
		return 0, err
	}
	return levels & mask & c.info.Signals, nil
}

func (c *CMSISDAP) SetSignal(mask, value Signal) (Signal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transport == nil {
		return 0, ErrClosed
	}
	old, err := c.pins(0, 0)
	if err != nil {
		return 0, err
	}
	mask &= c.info.Signals & SignalPOD
	if mask == 0 {
		return old, nil
	}
	if _, err := c.pins(signalsToDAPPins(value&mask), signalsToDAPPins(mask)); err != nil {
		return old, err
	}
	return old, nil
}

func (c *CMSISDAP) Transfer(tms, tdi []byte, bits int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transport == nil {
		return nil, ErrClosed
	}
	n, err := ValidateTransfer(tms, tdi, bits)
	if err != nil {
		return nil, err
	}
	tdo := make([]byte, n)
	pos := 0
	for _, batch := range batchSequences(splitSequences(tms, tdi, bits), c.transport.PacketSize()) {
		resp, err := c.transport.WriteRead(encodeDAPJTAGSequence(batch))
		if err != nil {
			return nil, transportError(c.info.Name, "jtag sequence", err)
		}
		out, err := decodeDAPJTAGSequence(resp, batch)
		if err != nil {
			return nil, transportError(c.info.Name, "jtag sequence", err)
		}
		for _, b := range out {
			setBit(tdo, pos, b)
			pos++
		}
	}
	return tdo, nil
}

// Test checks that the adapter still answers.
func (c *CMSISDAP) Test() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transport == nil {
		return ErrClosed
	}
	resp, err := c.transport.WriteRead(encodeDAPInfo(dapInfoVendor))
	if err != nil {
		return transportError(c.info.Name, "test", err)
	}
	_, err = decodeDAPInfo(resp)
	return err
}

var (
	_ ChainConfigurer = (*CMSISDAP)(nil)
	_ TargetResetter  = (*CMSISDAP)(nil)
)

// ResetTarget asks the adapter to run its target specific reset sequence.
func (c *CMSISDAP) ResetTarget() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transport == nil {
		return ErrClosed
	}
	resp, err := c.transport.WriteRead(encodeDAPResetTarget())
	if err != nil {
		return transportError(c.info.Name, "reset target", err)
	}
	return checkDAPStatus(resp, dapCmdResetTarget)
}

// ConfigureChain tells the adapter the IR length of every part, which it needs
// for ReadIDCode.
func (c *CMSISDAP) ConfigureChain(irLengths []int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transport == nil {
		return ErrClosed
	}
	lengths := make([]byte, len(irLengths))
	for i, n := range irLengths {
		if n <= 0 || n > 255 {
			return fmt.Errorf("cmsis-dap: IR length %d of part %d out of range", n, i)
		}
		lengths[i] = byte(n)
	}
	resp, err := c.transport.WriteRead(encodeDAPJTAGConfigure(lengths))
	if err != nil {
		return transportError(c.info.Name, "jtag configure", err)
	}
	return checkDAPStatus(resp, dapCmdJTAGConfigure)
}

// ReadIDCode reads the IDCODE of part index using the adapter's own sequence.
func (c *CMSISDAP) ReadIDCode(index int) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transport == nil {
		return 0, ErrClosed
	}
	resp, err := c.transport.WriteRead(encodeDAPJTAGIDCode(byte(index)))
	if err != nil {
		return 0, transportError(c.info.Name, "jtag idcode", err)
	}
	return decodeDAPJTAGIDCode(resp)
}

func (c *CMSISDAP) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transport == nil {
		return nil
	}
	if c.connected {
		if _, err := c.transport.WriteRead(encodeDAPDisconnect()); err != nil {
			logger.Warnf("cmsis-dap: disconnect: %v", err)
		}
		c.connected = false
	}
	err := c.transport.Close()
	c.transport = nil
	return err
}
