// Package idcode decodes IEEE 1149.1 device identification codes.
package idcode

import (
	"fmt"
	"strconv"
	"strings"
)

// IDCode is a 32-bit device identification register value:
//
//	[31:28] version  [27:12] part number  [11:1] manufacturer  [0] 1
type IDCode uint32

// Parse reads a hex ("0x4BA00477", "4ba00477") or binary ("0b...") IDCODE.
func Parse(s string) (IDCode, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, "_", ""))
	base := 16
	switch {
	case strings.HasPrefix(s, "0x"), strings.HasPrefix(s, "0X"):
		s = s[2:]
	case strings.HasPrefix(s, "0b"), strings.HasPrefix(s, "0B"):
		s, base = s[2:], 2
	}
	v, err := strconv.ParseUint(s, base, 32)
	if err != nil {
		return 0, fmt.Errorf("idcode: %q: %w", s, err)
	}
	return IDCode(v), nil
}

func (id IDCode) Version() uint8 { return uint8(id >> 28) }

func (id IDCode) PartNumber() uint16 { return uint16(id >> 12) }

// ManufacturerCode returns the 11-bit JEP106 field: the continuation bank in
// the top four bits and the parity-stripped identity code below.
func (id IDCode) ManufacturerCode() uint16 { return uint16(id>>1) & 0x7FF }

// Valid reports whether bit 0 is set. Devices without an IDCODE register
// shift out the 0 captured by BYPASS instead.
func (id IDCode) Valid() bool { return id&1 == 1 }

// Manufacturer resolves the JEP106 field.
func (id IDCode) Manufacturer() (Manufacturer, bool) {
	return LookupManufacturer(id.ManufacturerCode())
}

func (id IDCode) String() string {
	return fmt.Sprintf("0x%08X", uint32(id))
}

// Describe returns a one-line human summary.
func (id IDCode) Describe() string {
	if !id.Valid() {
		return fmt.Sprintf("%s (no IDCODE)", id)
	}
	m, _ := id.Manufacturer()
	s := fmt.Sprintf("%s version %d part 0x%04X manufacturer %s", id, id.Version(), id.PartNumber(), m.Name)
	if p, ok := LookupPart(id); ok {
		s += " (" + p.Name + ")"
	}
	return s
}
