package cable

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/gousb"
	"go.bug.st/serial/enumerator"
)

// Interface describes an adapter found on the host, with the driver and
// parameters that open it.
type Interface struct {
	Driver      string
	Description string
	VendorID    uint16
	ProductID   uint16
	Serial      string
	Port        string
}

// Params returns the driver parameters selecting this interface.
func (i Interface) Params() Params {
	p := Params{}
	switch i.Driver {
	case "cmsisdap":
		p["vid"] = fmt.Sprintf("0x%04X", i.VendorID)
		p["pid"] = fmt.Sprintf("0x%04X", i.ProductID)
		if i.Serial != "" {
			p["serial"] = i.Serial
		}
	case "buspirate":
		p["port"] = i.Port
	}
	return p
}

// Label returns a one-line description.
func (i Interface) Label() string {
	var b strings.Builder
	b.WriteString(i.Driver)
	if i.Description != "" {
		b.WriteString(": " + i.Description)
	}
	if i.VendorID != 0 || i.ProductID != 0 {
		fmt.Fprintf(&b, " (%04X:%04X)", i.VendorID, i.ProductID)
	}
	if i.Serial != "" {
		b.WriteString(" serial " + i.Serial)
	}
	if i.Port != "" {
		b.WriteString(" on " + i.Port)
	}
	return b.String()
}

type knownUSBDevice struct {
	driver      string
	vendorID    uint16
	productID   uint16
	description string
}

var knownUSBDevices = []knownUSBDevice{
	{"cmsisdap", VendorRaspberryPi, ProductDebugProbe, "Raspberry Pi Debug Probe (CMSIS-DAP)"},
	{"cmsisdap", 0x0D28, 0x0204, "DAPLink CMSIS-DAP"},
	{"cmsisdap", 0x1366, 0x0101, "SEGGER J-Link CMSIS-DAP"},
}

var knownSerialDevices = []knownUSBDevice{
	{"buspirate", 0x0403, 0x6001, "Bus Pirate v3 (FT232R)"},
	{"buspirate", 0x04D8, 0xFB00, "Bus Pirate v4"},
}

func classifyUSB(vid, pid uint16, table []knownUSBDevice) (knownUSBDevice, bool) {
	for _, k := range table {
		if k.vendorID == vid && k.productID == pid {
			return k, true
		}
	}
	return knownUSBDevice{}, false
}

// DiscoverInterfaces lists known USB debug adapters and serial adapters. The
// simulator is always listed last so there is something to open without
// hardware. Enumeration errors are logged, not returned, unless ctx is done.
func DiscoverInterfaces(ctx context.Context) ([]Interface, error) {
	var found []Interface

	usb := gousb.NewContext()
	devs, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if ctx.Err() != nil {
			return false
		}
		_, ok := classifyUSB(uint16(desc.Vendor), uint16(desc.Product), knownUSBDevices)
		return ok
	})
	if err != nil && !errors.Is(err, gousb.ErrorAccess) {
		logger.Debugf("usb enumeration: %v", err)
	}
	for _, d := range devs {
		k, _ := classifyUSB(uint16(d.Desc.Vendor), uint16(d.Desc.Product), knownUSBDevices)
		sn, _ := d.SerialNumber()
		found = append(found, Interface{
			Driver:      k.driver,
			Description: k.description,
			VendorID:    k.vendorID,
			ProductID:   k.productID,
			Serial:      sn,
		})
		d.Close()
	}
	usb.Close()

	if err := ctx.Err(); err != nil {
		return found, err
	}

	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		logger.Debugf("serial enumeration: %v", err)
	}
	for _, port := range ports {
		if !port.IsUSB {
			continue
		}
		vid, _ := strconv.ParseUint(port.VID, 16, 16)
		pid, _ := strconv.ParseUint(port.PID, 16, 16)
		k, ok := classifyUSB(uint16(vid), uint16(pid), knownSerialDevices)
		if !ok {
			continue
		}
		found = append(found, Interface{
			Driver:      k.driver,
			Description: k.description,
			VendorID:    k.vendorID,
			ProductID:   k.productID,
			Serial:      port.SerialNumber,
			Port:        port.Name,
		})
	}

	found = append(found, Interface{
		Driver:      "sim",
		Description: "Simulator (no hardware)",
	})
	return found, nil
}
