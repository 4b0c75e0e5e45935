package cable

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gousb"
)

// dapTransport exchanges one command packet for one response packet.
type dapTransport interface {
	WriteRead(cmd []byte) ([]byte, error)
	PacketSize() int
	SetPacketSize(n int)
	Close() error
}

const (
	dapDefaultPacketSize = 64
	dapUSBTimeout        = 5 * time.Second
)

// usbTransport talks to the vendor bulk interface of a CMSIS-DAP v2 adapter.
type usbTransport struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface

	out *gousb.OutEndpoint
	in  *gousb.InEndpoint

	packetSize int
}

// openUSBTransport opens the first adapter matching vid:pid, and serial when
// it is not empty.
func openUSBTransport(vid, pid uint16, serial string) (*usbTransport, error) {
	ctx := gousb.NewContext()
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return uint16(desc.Vendor) == vid && uint16(desc.Product) == pid
	})
	if err != nil && len(devs) == 0 {
		ctx.Close()
		return nil, fmt.Errorf("usb %04X:%04X: %w", vid, pid, err)
	}

	var dev *gousb.Device
	for _, d := range devs {
		if dev == nil && serial != "" {
			if sn, _ := d.SerialNumber(); sn != serial {
				d.Close()
				continue
			}
		}
		if dev == nil {
			dev = d
			continue
		}
		d.Close()
	}
	if dev == nil {
		ctx.Close()
		if serial != "" {
			return nil, fmt.Errorf("usb %04X:%04X serial %q not present", vid, pid, serial)
		}
		return nil, fmt.Errorf("usb %04X:%04X not present", vid, pid)
	}

	if err := dev.SetAutoDetach(true); err != nil {
		logger.Debugf("cmsis-dap: auto-detach unavailable: %v", err)
	}

	t := &usbTransport{ctx: ctx, dev: dev, packetSize: dapDefaultPacketSize}
	if err := t.claim(); err != nil {
		t.Close()
		return nil, err
	}
	return t, nil
}

// claim selects the first vendor-class interface with a bulk endpoint pair.
func (t *usbTransport) claim() error {
	num, err := t.dev.ActiveConfigNum()
	if err != nil {
		num = 1
	}
	cfg, err := t.dev.Config(num)
	if err != nil {
		return fmt.Errorf("usb config %d: %w", num, err)
	}
	t.cfg = cfg

	for _, desc := range cfg.Desc.Interfaces {
		if len(desc.AltSettings) == 0 || desc.AltSettings[0].Class != gousb.ClassVendorSpec {
			continue
		}
		var outNum, inNum, inSize int
		for _, ep := range desc.AltSettings[0].Endpoints {
			if ep.TransferType != gousb.TransferTypeBulk {
				continue
			}
			switch {
			case ep.Direction == gousb.EndpointDirectionOut && outNum == 0:
				outNum = ep.Number
			case ep.Direction == gousb.EndpointDirectionIn && inNum == 0:
				inNum = ep.Number
				inSize = ep.MaxPacketSize
			}
		}
		if outNum == 0 || inNum == 0 {
			continue
		}
		intf, err := cfg.Interface(desc.Number, 0)
		if err != nil {
			return fmt.Errorf("usb claim interface %d: %w", desc.Number, err)
		}
		t.intf = intf
		if t.out, err = intf.OutEndpoint(outNum); err != nil {
			return fmt.Errorf("usb OUT endpoint %d: %w", outNum, err)
		}
		if t.in, err = intf.InEndpoint(inNum); err != nil {
			return fmt.Errorf("usb IN endpoint %d: %w", inNum, err)
		}
		if inSize > 0 {
			t.packetSize = inSize
		}
		return nil
	}
	return fmt.Errorf("usb: no CMSIS-DAP bulk interface found")
}

func (t *usbTransport) WriteRead(cmd []byte) ([]byte, error) {
	if len(cmd) > t.packetSize {
		return nil, fmt.Errorf("cmsis-dap: command of %d bytes exceeds packet size %d", len(cmd), t.packetSize)
	}
	ctx, cancel := context.WithTimeout(context.Background(), dapUSBTimeout)
	defer cancel()

	if _, err := t.out.WriteContext(ctx, cmd); err != nil {
		return nil, fmt.Errorf("usb write: %w", err)
	}
	resp := make([]byte, t.packetSize)
	n, err := t.in.ReadContext(ctx, resp)
	if err != nil {
		return nil, fmt.Errorf("usb read: %w", err)
	}
	return resp[:n], nil
}

func (t *usbTransport) PacketSize() int {
	return t.packetSize
}

func (t *usbTransport) SetPacketSize(n int) {
	if n > 0 {
		t.packetSize = n
	}
}

func (t *usbTransport) Close() error {
	if t.intf != nil {
		t.intf.Close()
		t.intf = nil
	}
	if t.cfg != nil {
		t.cfg.Close()
		t.cfg = nil
	}
	if t.dev != nil {
		t.dev.Close()
		t.dev = nil
	}
	if t.ctx != nil {
		t.ctx.Close()
		t.ctx = nil
	}
	return nil
}
