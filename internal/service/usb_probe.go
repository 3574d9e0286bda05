// internal/service/usb_probe.go
package service

import (
	"fmt"

	"github.com/google/gousb"
	"go.uber.org/zap"
)

// USBProbe reports whether a keyboard-wedge barcode scanner appears to
// be attached. It only enumerates descriptors and logs what it finds;
// discovery and setup stay manual.
type USBProbe struct {
	logger *zap.Logger
}

// NewUSBProbe creates a new USB probe
func NewUSBProbe(logger *zap.Logger) *USBProbe {
	return &USBProbe{
		logger: logger.With(zap.String("service", "usb-probe")),
	}
}

// LogAttachedInputDevices enumerates the USB bus and logs every HID
// class device. The scanner presents itself as a HID keyboard, so an
// empty result usually means it is not plugged in.
func (p *USBProbe) LogAttachedInputDevices() {
	usbCtx := gousb.NewContext()
	defer func() {
		if err := usbCtx.Close(); err != nil {
			p.logger.Warn("Failed to close USB context", zap.Error(err))
		}
	}()

	hidCount := 0
	_, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if p.isHID(desc) {
			hidCount++
			p.logger.Info("HID device attached",
				zap.String("vendor_id", fmt.Sprintf("%04x", uint16(desc.Vendor))),
				zap.String("product_id", fmt.Sprintf("%04x", uint16(desc.Product))),
				zap.Int("bus", desc.Bus),
				zap.Int("address", desc.Address),
			)
		}
		// Never open; this is a passive inventory pass
		return false
	})
	if err != nil {
		p.logger.Warn("USB enumeration failed", zap.Error(err))
		return
	}

	if hidCount == 0 {
		p.logger.Warn("No HID devices attached, is the barcode scanner plugged in?")
	}
}

// isHID checks the device and interface classes for HID
func (p *USBProbe) isHID(desc *gousb.DeviceDesc) bool {
	if desc.Class == gousb.ClassHID {
		return true
	}
	for _, cfg := range desc.Configs {
		for _, intf := range cfg.Interfaces {
			for _, alt := range intf.AltSettings {
				if alt.Class == gousb.ClassHID {
					return true
				}
			}
		}
	}
	return false
}
