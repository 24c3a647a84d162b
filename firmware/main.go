//go:build tinygo

//go:generate tinygo flash -target=xiao

// Command firmware exposes the digital pins of a microcontroller over the
// serial line so that the serial gpio backend can drive an ultrasonic sensor.
package main

import (
	"machine"
	"time"
)

var (
	uart = machine.Serial

	// Pin ownership: 0 = free, 'i' = input, 'o' = output
	modes [len(pins)]byte

	// Serial buffer for reading lines
	serialBuffer [LINE_BUFFER_SIZE]byte
	serialPos    int
	overflow     bool
)

func main() {
	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	for {
		processSerial()
		// Small delay to prevent tight loop
		time.Sleep(10 * time.Microsecond)
	}
}

func processSerial() {
	for uart.Buffered() > 0 {
		data, err := uart.ReadByte()
		if err != nil {
			break
		}

		if data == '\n' || data == '\r' {
			if overflow {
				reply("ERR line too long")
			} else if serialPos > 0 {
				handleCommand(serialBuffer[:serialPos])
			}
			serialPos = 0
			overflow = false
			continue
		}

		// Ignore whitespace
		if data == ' ' || data == '\t' {
			continue
		}

		if serialPos < len(serialBuffer) {
			serialBuffer[serialPos] = data
			serialPos++
		} else {
			overflow = true
		}
	}
}

// handleCommand executes one of M<pin>,<i|o> W<pin>,<0|1> R<pin> F<pin> and
// P<trig>,<echo>,<width>,<timeout>.
func handleCommand(line []byte) {
	pin, rest, ok := parsePin(line[1:])
	if !ok {
		reply("ERR bad pin")
		return
	}

	switch line[0] {
	case 'M':
		if len(rest) != 2 || rest[0] != ',' {
			reply("ERR bad mode")
			return
		}
		switch rest[1] {
		case 'i':
			pins[pin].Configure(machine.PinConfig{Mode: machine.PinInputPulldown})
		case 'o':
			pins[pin].Configure(machine.PinConfig{Mode: machine.PinOutput})
			pins[pin].Low()
		default:
			reply("ERR bad mode")
			return
		}
		modes[pin] = rest[1]
		reply("OK")

	case 'W':
		if modes[pin] != 'o' {
			reply("ERR not an output")
			return
		}
		if len(rest) != 2 || rest[0] != ',' || (rest[1] != '0' && rest[1] != '1') {
			reply("ERR bad level")
			return
		}
		pins[pin].Set(rest[1] == '1')
		reply("OK")

	case 'R':
		if modes[pin] == 0 {
			reply("ERR not configured")
			return
		}
		level := pins[pin].Get()
		// Timestamp in unix microseconds, taken right after the read
		micros := time.Now().UnixNano() / 1000
		if level {
			print("1")
		} else {
			print("0")
		}
		print(",")
		print(micros)
		print("\n")

	case 'F':
		pins[pin].Configure(machine.PinConfig{Mode: machine.PinInput})
		modes[pin] = 0
		reply("OK")

	case 'P':
		pulse(pin, rest)

	default:
		reply("ERR unknown command")
	}
}

// pulse drives trig high for width microseconds and answers with the
// microsecond timestamps of the echo edges. Each edge is awaited for at most
// timeout microseconds.
func pulse(trig int, rest []byte) {
	if len(rest) == 0 || rest[0] != ',' {
		reply("ERR bad pulse")
		return
	}
	echo, rest, ok := parsePin(rest[1:])
	if !ok || len(rest) == 0 || rest[0] != ',' {
		reply("ERR bad pin")
		return
	}
	width, rest, ok := parseNumber(rest[1:])
	if !ok || len(rest) == 0 || rest[0] != ',' {
		reply("ERR bad width")
		return
	}
	timeout, rest, ok := parseNumber(rest[1:])
	if !ok || len(rest) != 0 {
		reply("ERR bad timeout")
		return
	}
	if modes[trig] != 'o' || modes[echo] != 'i' {
		reply("ERR not configured")
		return
	}
	if width == 0 || width > maxPulseWidth {
		width = defaultPulseWidth
	}
	if timeout == 0 || timeout > maxEchoTimeout {
		timeout = maxEchoTimeout
	}

	out, in := pins[trig], pins[echo]
	out.High()
	busyWait(time.Duration(width) * time.Microsecond)
	out.Low()

	rise, ok := waitLevel(in, true, time.Duration(timeout)*time.Microsecond)
	if !ok {
		reply("ERR no rise")
		return
	}
	fall, ok := waitLevel(in, false, time.Duration(timeout)*time.Microsecond)
	if !ok {
		reply("ERR no fall")
		return
	}

	print(rise.UnixNano() / 1000)
	print(",")
	print(fall.UnixNano() / 1000)
	print("\n")
}

// waitLevel spins until pin reads level and returns the time it did.
func waitLevel(pin machine.Pin, level bool, timeout time.Duration) (time.Time, bool) {
	start := time.Now()
	for {
		now := time.Now()
		if pin.Get() == level {
			return now, true
		}
		if now.Sub(start) > timeout {
			return time.Time{}, false
		}
	}
}

func busyWait(d time.Duration) {
	start := time.Now()
	for time.Since(start) < d {
	}
}

// parseNumber parses the leading decimal number of b.
func parseNumber(b []byte) (uint32, []byte, bool) {
	var n uint32
	i := 0
	for ; i < len(b) && b[i] >= '0' && b[i] <= '9'; i++ {
		if i >= 9 {
			return 0, nil, false
		}
		n = n*10 + uint32(b[i]-'0')
	}
	if i == 0 {
		return 0, nil, false
	}
	return n, b[i:], true
}

// parsePin parses the leading decimal pin number of b.
func parsePin(b []byte) (int, []byte, bool) {
	n, i := 0, 0
	for ; i < len(b) && b[i] >= '0' && b[i] <= '9'; i++ {
		n = n*10 + int(b[i]-'0')
		if n >= len(pins) {
			return 0, nil, false
		}
	}
	if i == 0 {
		return 0, nil, false
	}
	return n, b[i:], true
}

func reply(s string) {
	print(s)
	print("\n")
}
