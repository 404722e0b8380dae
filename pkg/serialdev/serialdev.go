// Package serialdev enumerates serial ports and describes them for the device panel.
package serialdev

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/open-teleop/groundstation/pkg/state"
)

const (
	notAvailable        = "N/A"
	unknownManufacturer = "Unknown"
)

// Enumerator lists ports with USB details where the OS provides them.
type Enumerator struct {
	Detailed func() ([]*enumerator.PortDetails, error)
	Names    func() ([]string, error)
}

// NewEnumerator uses the go.bug.st/serial system enumerators.
func NewEnumerator() *Enumerator {
	return &Enumerator{
		Detailed: enumerator.GetDetailedPortsList,
		Names:    serial.GetPortsList,
	}
}

// List returns one descriptor per port, sorted by port name.
// When detailed enumeration fails, plain port names are used instead.
func (e *Enumerator) List() ([]state.SerialDevice, error) {
	details, err := e.Detailed()
	if err != nil {
		names, nameErr := e.Names()
		if nameErr != nil {
			return nil, fmt.Errorf("enumerate serial ports: %w", err)
		}
		details = make([]*enumerator.PortDetails, 0, len(names))
		for _, name := range names {
			details = append(details, &enumerator.PortDetails{Name: name})
		}
	}

	devices := make([]state.SerialDevice, 0, len(details))
	for _, d := range details {
		if d == nil || d.Name == "" {
			continue
		}
		devices = append(devices, Describe(d))
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Port < devices[j].Port })
	return devices, nil
}

// Describe converts enumerator details into a device descriptor with the
// panel's fallbacks for missing fields.
func Describe(d *enumerator.PortDetails) state.SerialDevice {
	dev := state.SerialDevice{
		Port:         d.Name,
		Name:         filepath.Base(d.Name),
		Description:  orDefault(d.Product, notAvailable),
		Manufacturer: unknownManufacturer,
		Product:      d.Product,
		VID:          formatID(d.VID),
		PID:          formatID(d.PID),
		SerialNumber: orDefault(d.SerialNumber, notAvailable),
	}
	if d.IsUSB {
		dev.HWID = fmt.Sprintf("USB VID:PID=%s:%s SER=%s", strings.ToUpper(d.VID), strings.ToUpper(d.PID), d.SerialNumber)
	} else {
		dev.HWID = notAvailable
	}
	return dev
}

// formatID renders a hex VID/PID string as 0x%04x, or N/A.
func formatID(raw string) string {
	raw = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(raw)), "0x")
	if raw == "" {
		return notAvailable
	}
	var v uint16
	if _, err := fmt.Sscanf(raw, "%x", &v); err != nil {
		return notAvailable
	}
	return fmt.Sprintf("0x%04x", v)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
