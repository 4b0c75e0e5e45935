package cable

import (
	"encoding/binary"
	"fmt"
)

// CMSIS-DAP command IDs.
const (
	dapCmdInfo          = 0x00
	dapCmdConnect       = 0x02
	dapCmdDisconnect    = 0x03
	dapCmdResetTarget   = 0x0A
	dapCmdSWJPins       = 0x10
	dapCmdSWJClock      = 0x11
	dapCmdJTAGSequence  = 0x14
	dapCmdJTAGConfigure = 0x15
	dapCmdJTAGIDCode    = 0x16
)

// DAP_Info IDs.
const (
	dapInfoVendor     = 0x01
	dapInfoProduct    = 0x02
	dapInfoSerial     = 0x03
	dapInfoFirmware   = 0x04
	dapInfoPacketSize = 0xFF
)

const (
	dapPortJTAG = 2

	dapStatusOK = 0x00
)

// DAP_SWJ_Pins bit layout.
const (
	dapPinTCK    = 1 << 0
	dapPinTMS    = 1 << 1
	dapPinTDI    = 1 << 2
	dapPinTDO    = 1 << 3
	dapPinNTRST  = 1 << 5
	dapPinNRESET = 1 << 7
)

var dapPinMap = []struct {
	sig Signal
	pin byte
}{
	{SignalTCK, dapPinTCK},
	{SignalTMS, dapPinTMS},
	{SignalTDI, dapPinTDI},
	{SignalTDO, dapPinTDO},
	{SignalTRST, dapPinNTRST},
	{SignalSRST, dapPinNRESET},
}

func signalsToDAPPins(s Signal) byte {
	var pins byte
	for _, m := range dapPinMap {
		if s&m.sig != 0 {
			pins |= m.pin
		}
	}
	return pins
}

func dapPinsToSignals(pins byte) Signal {
	var s Signal
	for _, m := range dapPinMap {
		if pins&m.pin != 0 {
			s |= m.sig
		}
	}
	return s
}

// DAP_JTAG_Sequence info byte.
const (
	dapSeqTCKMask = 0x3F // 0 encodes 64 clocks
	dapSeqTMS     = 0x40
	dapSeqTDO     = 0x80

	dapSeqMaxBits = 64
)

// dapSequence is one DAP_JTAG_Sequence entry: up to 64 clocks at a fixed TMS.
type dapSequence struct {
	info byte
	tdi  []byte
}

func newDAPSequence(bits int, tms, capture bool, tdi []byte) dapSequence {
	info := byte(bits & dapSeqTCKMask)
	if tms {
		info |= dapSeqTMS
	}
	if capture {
		info |= dapSeqTDO
	}
	return dapSequence{info: info, tdi: tdi}
}

func (s dapSequence) bits() int {
	if n := int(s.info & dapSeqTCKMask); n != 0 {
		return n
	}
	return dapSeqMaxBits
}

func (s dapSequence) tms() bool     { return s.info&dapSeqTMS != 0 }
func (s dapSequence) capture() bool { return s.info&dapSeqTDO != 0 }

// requestSize and responseSize count the bytes the entry adds to a packet.
func (s dapSequence) requestSize() int { return 1 + len(s.tdi) }

func (s dapSequence) responseSize() int {
	if s.capture() {
		return len(s.tdi)
	}
	return 0
}

// splitSequences cuts a per-bit TMS/TDI stream into entries with constant
// TMS and at most 64 clocks. TDO is captured for every entry.
func splitSequences(tms, tdi []byte, bits int) []dapSequence {
	var seqs []dapSequence
	for pos := 0; pos < bits; {
		level := bitAt(tms, pos)
		n := 1
		for pos+n < bits && n < dapSeqMaxBits && bitAt(tms, pos+n) == level {
			n++
		}
		chunk := make([]byte, (n+7)/8)
		for i := 0; i < n; i++ {
			setBit(chunk, i, bitAt(tdi, pos+i))
		}
		seqs = append(seqs, newDAPSequence(n, level, true, chunk))
		pos += n
	}
	return seqs
}

// batchSequences groups entries so that each DAP_JTAG_Sequence request and
// its response fit in one packet.
func batchSequences(seqs []dapSequence, packetSize int) [][]dapSequence {
	var batches [][]dapSequence
	var cur []dapSequence
	req, resp := 2, 2
	for _, s := range seqs {
		if len(cur) > 0 && (len(cur) == 255 || req+s.requestSize() > packetSize || resp+s.responseSize() > packetSize) {
			batches = append(batches, cur)
			cur, req, resp = nil, 2, 2
		}
		cur = append(cur, s)
		req += s.requestSize()
		resp += s.responseSize()
	}
	if len(cur) > 0 {
		batches = append(batches, cur)
	}
	return batches
}

func encodeDAPInfo(id byte) []byte {
	return []byte{dapCmdInfo, id}
}

func decodeDAPInfo(resp []byte) ([]byte, error) {
	if err := checkDAPHeader(resp, dapCmdInfo, 2); err != nil {
		return nil, err
	}
	n := int(resp[1])
	if len(resp) < 2+n {
		return nil, fmt.Errorf("cmsis-dap: info truncated (%d of %d bytes)", len(resp)-2, n)
	}
	return resp[2 : 2+n], nil
}

func decodeDAPInfoString(resp []byte) (string, error) {
	b, err := decodeDAPInfo(resp)
	if err != nil {
		return "", err
	}
	for len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return string(b), nil
}

func decodeDAPPacketSize(resp []byte) (int, error) {
	b, err := decodeDAPInfo(resp)
	if err != nil {
		return 0, err
	}
	if len(b) != 2 {
		return 0, fmt.Errorf("cmsis-dap: packet size has %d bytes", len(b))
	}
	return int(binary.LittleEndian.Uint16(b)), nil
}

func encodeDAPConnect(port byte) []byte {
	return []byte{dapCmdConnect, port}
}

func decodeDAPConnect(resp []byte) (byte, error) {
	if err := checkDAPHeader(resp, dapCmdConnect, 2); err != nil {
		return 0, err
	}
	if resp[1] == 0 {
		return 0, fmt.Errorf("cmsis-dap: connect refused")
	}
	return resp[1], nil
}

func encodeDAPDisconnect() []byte {
	return []byte{dapCmdDisconnect}
}

func encodeDAPResetTarget() []byte {
	return []byte{dapCmdResetTarget}
}

func encodeDAPSetClock(hz uint32) []byte {
	cmd := make([]byte, 5)
	cmd[0] = dapCmdSWJClock
	binary.LittleEndian.PutUint32(cmd[1:], hz)
	return cmd
}

// encodeDAPSWJPins drives the pins in sel to out and waits up to waitUS
// microseconds for them to settle.
func encodeDAPSWJPins(out, sel byte, waitUS uint32) []byte {
	cmd := make([]byte, 7)
	cmd[0] = dapCmdSWJPins
	cmd[1] = out
	cmd[2] = sel
	binary.LittleEndian.PutUint32(cmd[3:], waitUS)
	return cmd
}

func decodeDAPSWJPins(resp []byte) (byte, error) {
	if err := checkDAPHeader(resp, dapCmdSWJPins, 2); err != nil {
		return 0, err
	}
	return resp[1], nil
}

func encodeDAPJTAGConfigure(irLengths []byte) []byte {
	cmd := make([]byte, 2+len(irLengths))
	cmd[0] = dapCmdJTAGConfigure
	cmd[1] = byte(len(irLengths))
	copy(cmd[2:], irLengths)
	return cmd
}

func encodeDAPJTAGIDCode(index byte) []byte {
	return []byte{dapCmdJTAGIDCode, index}
}

func decodeDAPJTAGIDCode(resp []byte) (uint32, error) {
	if err := checkDAPStatus(resp, dapCmdJTAGIDCode); err != nil {
		return 0, err
	}
	if len(resp) < 6 {
		return 0, fmt.Errorf("cmsis-dap: IDCODE response too short")
	}
	return binary.LittleEndian.Uint32(resp[2:6]), nil
}

func encodeDAPJTAGSequence(seqs []dapSequence) []byte {
	size := 2
	for _, s := range seqs {
		size += s.requestSize()
	}
	cmd := make([]byte, 0, size)
	cmd = append(cmd, dapCmdJTAGSequence, byte(len(seqs)))
	for _, s := range seqs {
		cmd = append(cmd, s.info)
		cmd = append(cmd, s.tdi...)
	}
	return cmd
}

// decodeDAPJTAGSequence returns the captured TDO bits of seqs, packed
// LSB-first in sequence order.
func decodeDAPJTAGSequence(resp []byte, seqs []dapSequence) ([]bool, error) {
	if err := checkDAPStatus(resp, dapCmdJTAGSequence); err != nil {
		return nil, err
	}
	var out []bool
	offset := 2
	for _, s := range seqs {
		if !s.capture() {
			continue
		}
		n := s.responseSize()
		if offset+n > len(resp) {
			return nil, fmt.Errorf("cmsis-dap: TDO data truncated")
		}
		chunk := resp[offset : offset+n]
		for i := 0; i < s.bits(); i++ {
			out = append(out, bitAt(chunk, i))
		}
		offset += n
	}
	return out, nil
}

func checkDAPHeader(resp []byte, cmd byte, min int) error {
	if len(resp) < min {
		return fmt.Errorf("cmsis-dap: response to 0x%02X too short", cmd)
	}
	if resp[0] != cmd {
		return fmt.Errorf("cmsis-dap: response 0x%02X does not match command 0x%02X", resp[0], cmd)
	}
	return nil
}

// checkDAPStatus validates the common [cmd, status] reply.
func checkDAPStatus(resp []byte, cmd byte) error {
	if err := checkDAPHeader(resp, cmd, 2); err != nil {
		return err
	}
	if resp[1] != dapStatusOK {
		return fmt.Errorf("cmsis-dap: command 0x%02X failed with status 0x%02X", cmd, resp[1])
	}
	return nil
}
