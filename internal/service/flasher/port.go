package flasher

import (
	"errors"
	"fmt"
	"strings"

	"go.bug.st/serial/enumerator"
)

// Port is a serial device found on the host.
type Port struct {
	Name    string
	Product string
	IsUSB   bool
	VID     string
	PID     string
}

// PortLister enumerates serial ports.
type PortLister interface {
	Ports() ([]Port, error)
}

// ErrNoSerialPort is returned when no suitable device is connected.
var ErrNoSerialPort = errors.New("no serial port found")

// portPatterns match USB-serial bridges and native USB boards.
//
//nolint:gochecknoglobals // Read-only lookup table.
var portPatterns = []string{
	"cp210", "silicon", "usb", "esp32", "ch340", "ch910", "cdc",
	"arduino", "caterina", "atmega32u4", "atm32u4", "ftdi",
}

// SystemPorts lists ports through the OS serial enumerator.
type SystemPorts struct{}

// Ports implements PortLister.
func (SystemPorts) Ports() ([]Port, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}

	ports := make([]Port, 0, len(details))
	for _, d := range details {
		ports = append(ports, Port{
			Name:    d.Name,
			Product: d.Product,
			IsUSB:   d.IsUSB,
			VID:     d.VID,
			PID:     d.PID,
		})
	}

	return ports, nil
}

// DetectPort returns the first port that looks like a development board.
func DetectPort(lister PortLister) (Port, error) {
	ports, err := lister.Ports()
	if err != nil {
		return Port{}, err
	}

	for _, port := range ports {
		if matchesBoard(port) {
			return port, nil
		}
	}

	return Port{}, ErrNoSerialPort
}

func matchesBoard(port Port) bool {
	if port.IsUSB {
		return true
	}

	haystack := strings.ToLower(port.Product + " " + port.Name)
	for _, pattern := range portPatterns {
		if strings.Contains(haystack, pattern) {
			return true
		}
	}

	// ttyS* and COM1 style ports are motherboard UARTs.
	return false
}
