// Package flasher writes a collected artifact set to a connected board.
//
// It finds the serial port, warns about (or terminates) serial monitors that
// would keep the port busy, and runs esptool for ESP32 families or
// arduino-cli upload for AVR boards. Tool failures are reported as they are;
// the package never retries on its own.
package flasher
