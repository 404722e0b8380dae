package serialdev

import (
	"errors"
	"testing"

	"go.bug.st/serial/enumerator"
)

func TestDescribeUSBPort(t *testing.T) {
	dev := Describe(&enumerator.PortDetails{
		Name:         "/dev/ttyUSB0",
		IsUSB:        true,
		VID:          "10C4",
		PID:          "ea60",
		SerialNumber: "0001",
		Product:      "CP2102 USB to UART Bridge",
	})

	if dev.Port != "/dev/ttyUSB0" || dev.Name != "ttyUSB0" {
		t.Errorf("Unexpected port naming: %+v", dev)
	}
	if dev.VID != "0x10c4" || dev.PID != "0xea60" {
		t.Errorf("Expected formatted vid/pid, got %s/%s", dev.VID, dev.PID)
	}
	if dev.Description != "CP2102 USB to UART Bridge" {
		t.Errorf("Expected product as description, got %s", dev.Description)
	}
	if dev.Manufacturer != "Unknown" {
		t.Errorf("Expected Unknown manufacturer, got %s", dev.Manufacturer)
	}
}

func TestDescribeFallbacks(t *testing.T) {
	dev := Describe(&enumerator.PortDetails{Name: "/dev/ttyS0"})
	if dev.Description != "N/A" || dev.VID != "N/A" || dev.PID != "N/A" || dev.SerialNumber != "N/A" {
		t.Errorf("Expected N/A fallbacks, got %+v", dev)
	}
}

func TestFormatIDPadding(t *testing.T) {
	if got := formatID("2a"); got != "0x002a" {
		t.Errorf("Expected 0x002a, got %s", got)
	}
	if got := formatID("zz"); got != "N/A" {
		t.Errorf("Expected N/A for garbage, got %s", got)
	}
}

func TestListSortsAndFallsBackToNames(t *testing.T) {
	e := &Enumerator{
		Detailed: func() ([]*enumerator.PortDetails, error) { return nil, errors.New("no udev") },
		Names:    func() ([]string, error) { return []string{"/dev/ttyUSB1", "/dev/ttyACM0"}, nil },
	}

	devices, err := e.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("Expected 2 devices, got %d", len(devices))
	}
	if devices[0].Port != "/dev/ttyACM0" {
		t.Errorf("Expected sorted ports, got %s first", devices[0].Port)
	}
}

func TestListBothEnumeratorsFail(t *testing.T) {
	e := &Enumerator{
		Detailed: func() ([]*enumerator.PortDetails, error) { return nil, errors.New("no udev") },
		Names:    func() ([]string, error) { return nil, errors.New("no /dev") },
	}
	if _, err := e.List(); err == nil {
		t.Errorf("Expected error when enumeration fails")
	}
}
