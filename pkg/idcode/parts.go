package idcode

// Part is a known device. IRLength lets detection split a chain when no
// BSDL file is available for the part.
type Part struct {
	Name     string
	Family   string
	IRLength int
}

type partKey struct {
	manufacturer uint16
	part         uint16
}

var parts = map[partKey]Part{
	{0x020, 0x6410}: {Name: "STM32F10x medium density", Family: "STM32F1", IRLength: 5},
	{0x020, 0x6414}: {Name: "STM32F10x high density", Family: "STM32F1", IRLength: 5},
	{0x020, 0x6413}: {Name: "STM32F405/407/415/417", Family: "STM32F4", IRLength: 5},
	{0x020, 0x6419}: {Name: "STM32F42x/43x", Family: "STM32F4", IRLength: 5},
	{0x23B, 0xBA00}: {Name: "CoreSight JTAG-DP", Family: "ARM Debug", IRLength: 4},
	{0x23B, 0xB900}: {Name: "ARM7TDMI / ARM9 EmbeddedICE", Family: "ARM Debug", IRLength: 4},
	{0x049, 0x1414}: {Name: "XC3S200", Family: "Spartan-3", IRLength: 6},
	{0x049, 0x362D}: {Name: "XC7A35T", Family: "Artix-7", IRLength: 6},
	{0x021, 0x1111}: {Name: "LFE5U-25F", Family: "ECP5", IRLength: 8},
	{0x06E, 0x20F3}: {Name: "EP4CE6/EP4CE10", Family: "Cyclone IV E", IRLength: 10},
}

// LookupPart matches the manufacturer and part number fields; the version
// field is ignored.
func LookupPart(id IDCode) (Part, bool) {
	if !id.Valid() {
		return Part{}, false
	}
	p, ok := parts[partKey{id.ManufacturerCode(), id.PartNumber()}]
	return p, ok
}
