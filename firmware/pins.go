//go:build tinygo

package main

import "machine"

const (
	// Serial configuration
	// Longest exchange is "R10\n" answered by "1,1234567890123456\n", ~25 bytes.
	// At 115200 baud one read round trip takes ~2ms, longer than the echo of
	// a near object, so echoes are timed on the MCU by the P command.
	UART_BAUD_RATE = 115200

	// Longest accepted command line, e.g. "P10,10,100,500000"
	LINE_BUFFER_SIZE = 24

	// Pulse limits in microseconds
	defaultPulseWidth = 10
	maxPulseWidth     = 1000
	maxEchoTimeout    = 500000
)

// Bridge pin numbers index this table.
var pins = [...]machine.Pin{
	machine.D0, machine.D1, machine.D2, machine.D3, machine.D4, machine.D5,
	machine.D6, machine.D7, machine.D8, machine.D9, machine.D10,
}
