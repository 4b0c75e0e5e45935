package idcode

import "fmt"

// Manufacturer is a JEP106 entry.
type Manufacturer struct {
	Bank uint8 // continuation code count
	ID   uint8 // identity code without parity
	Name string
}

// Code returns the 11-bit form used in IDCODE registers.
func (m Manufacturer) Code() uint16 {
	return uint16(m.Bank)<<7 | uint16(m.ID)
}

func jep(bank, id uint8, name string) Manufacturer {
	return Manufacturer{Bank: bank, ID: id, Name: name}
}

var manufacturers = map[uint16]Manufacturer{}

func init() {
	for _, m := range []Manufacturer{
		jep(0, 0x01, "AMD"),
		jep(0, 0x02, "AMI"),
		jep(0, 0x03, "Fairchild"),
		jep(0, 0x04, "Fujitsu"),
		jep(0, 0x05, "GTE"),
		jep(0, 0x06, "Harris"),
		jep(0, 0x07, "Hitachi"),
		jep(0, 0x08, "Inmos"),
		jep(0, 0x09, "Intel"),
		jep(0, 0x0A, "I.T.T."),
		jep(0, 0x0B, "Intersil"),
		jep(0, 0x0C, "Monolithic Memories"),
		jep(0, 0x0D, "Mostek"),
		jep(0, 0x0E, "Freescale (Motorola)"),
		jep(0, 0x0F, "National"),
		jep(0, 0x10, "NEC"),
		jep(0, 0x11, "RCA"),
		jep(0, 0x12, "Raytheon"),
		jep(0, 0x13, "Conexant (Rockwell)"),
		jep(0, 0x14, "Seeq"),
		jep(0, 0x15, "NXP (Philips)"),
		jep(0, 0x16, "Synertek"),
		jep(0, 0x17, "Texas Instruments"),
		jep(0, 0x18, "Toshiba"),
		jep(0, 0x19, "Xicor"),
		jep(0, 0x1A, "Zilog"),
		jep(0, 0x1B, "Eurotechnique"),
		jep(0, 0x1C, "Mitsubishi"),
		jep(0, 0x1D, "Lucent (AT&T)"),
		jep(0, 0x1E, "Exel"),
		jep(0, 0x1F, "Atmel"),
		jep(0, 0x20, "STMicroelectronics"),
		jep(0, 0x21, "Lattice Semiconductor"),
		jep(0, 0x24, "IBM"),
		jep(0, 0x29, "Microchip Technology"),
		jep(0, 0x2C, "Micron Technology"),
		jep(0, 0x2F, "Actel"),
		jep(0, 0x34, "Cypress"),
		jep(0, 0x41, "Infineon (Siemens)"),
		jep(0, 0x42, "Macronix"),
		jep(0, 0x49, "Xilinx"),
		jep(0, 0x4E, "Samsung"),
		jep(0, 0x6E, "Altera"),
		jep(4, 0x3B, "ARM"),
	} {
		manufacturers[m.Code()] = m
	}
}

// LookupManufacturer resolves an 11-bit manufacturer field. Unknown codes
// return a placeholder entry and false.
func LookupManufacturer(code uint16) (Manufacturer, bool) {
	code &= 0x7FF
	if m, ok := manufacturers[code]; ok {
		return m, true
	}
	return Manufacturer{
		Bank: uint8(code >> 7),
		ID:   uint8(code & 0x7F),
		Name: fmt.Sprintf("unknown (bank %d, 0x%02X)", code>>7, code&0x7F),
	}, false
}
