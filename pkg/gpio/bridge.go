package gpio

import (
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the bridge firmware UART speed.
	DefaultBaudRate = 115200
	// DefaultReadTimeout bounds the wait for one reply line.
	DefaultReadTimeout = time.Second

	serialPoll = 100 * time.Millisecond
)

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{
			Name:        name,
			Description: name,
		})
	}
	return result, nil
}

// Bridge drives the pins of a microcontroller running the bridge firmware
// over a serial line. Each command is one line:
//
//	M<pin>,<i|o>                       configure
//	W<pin>,<0|1>                       write
//	R<pin>                             read, answered with <0|1>,<micros>
//	F<pin>                             free
//	P<trig>,<echo>,<width>,<timeout>   pulse, answered with <rise>,<fall>
//
// Every other command is answered with OK or ERR <message>. Reads and pulses
// carry the MCU microsecond clock so that echo timing does not depend on
// serial latency. Pulse widths and timeouts are given in microseconds.
type Bridge struct {
	reg *registry

	// Reply wait for one command, on top of any time the command itself
	// takes on the MCU.
	timeout time.Duration

	lines chan string
	quit  chan struct{}

	mu     sync.Mutex
	conn   io.ReadWriteCloser
	closed bool
}

// Ensure Bridge implements DigitalIO.
var _ DigitalIO = (*Bridge)(nil)

// OpenSerial opens the bridge on a serial port.
func OpenSerial(port string, baudRate int) (*Bridge, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}

	p, err := serial.Open(port, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", port, err)
	}
	// Reads return empty on timeout, which lets the reader notice Close.
	if err := p.SetReadTimeout(serialPoll); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", port, err)
	}

	return NewBridge(p), nil
}

// NewBridge creates a bridge on an already open connection and starts reading
// reply lines from it.
func NewBridge(conn io.ReadWriteCloser) *Bridge {
	b := &Bridge{
		reg:     newRegistry(),
		timeout: DefaultReadTimeout,
		lines:   make(chan string, 16),
		quit:    make(chan struct{}),
		conn:    conn,
	}
	go b.readLines()
	return b
}

// Acquire implements DigitalIO.
func (b *Bridge) Acquire(pins ...PinSpec) (Handle, error) {
	h, err := acquire(b.reg, b, pins)
	if err != nil {
		return nil, err
	}
	return &bridgeHandle{handle: h, b: b}, nil
}

// Close closes the serial connection and stops the reader.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	close(b.quit)

	if err := b.conn.Close(); err != nil {
		log.Printf("Error closing serial port: %v", err)
		return err
	}
	return nil
}

// readLines splits the serial stream into trimmed lines until the connection
// fails or the bridge is closed.
func (b *Bridge) readLines() {
	defer close(b.lines)

	buf := make([]byte, 64)
	var line []byte
	for {
		select {
		case <-b.quit:
			return
		default:
		}

		// A serial read timeout returns no data and no error
		n, err := b.conn.Read(buf)
		for _, c := range buf[:n] {
			if c != '\n' {
				line = append(line, c)
				continue
			}
			s := strings.TrimSpace(string(line))
			line = line[:0]
			if s == "" {
				continue
			}
			select {
			case b.lines <- s:
			case <-b.quit:
				return
			}
		}

		if err != nil {
			select {
			case <-b.quit:
			default:
				if err != io.EOF {
					log.Printf("Error reading from serial port: %v", err)
				}
			}
			return
		}
	}
}

// command sends one line and returns the trimmed reply. The reply is awaited
// for the bridge timeout plus extra.
func (b *Bridge) command(extra time.Duration, format string, args ...any) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return "", ErrNotConnected
	}

	// Drop replies that arrived after an earlier command stopped waiting
	for stale := true; stale; {
		select {
		case _, ok := <-b.lines:
			if !ok {
				return "", ErrNotConnected
			}
		default:
			stale = false
		}
	}

	cmd := fmt.Sprintf(format, args...)
	if _, err := io.WriteString(b.conn, cmd+"\n"); err != nil {
		return "", fmt.Errorf("failed to send %q: %w", cmd, err)
	}

	wait := b.timeout + extra
	timer := time.NewTimer(wait)
	defer timer.Stop()

	var line string
	select {
	case l, ok := <-b.lines:
		if !ok {
			return "", fmt.Errorf("failed to read reply to %q: %w", cmd, ErrNotConnected)
		}
		line = l
	case <-timer.C:
		return "", fmt.Errorf("%w to %q within %s", ErrNoReply, cmd, wait)
	}

	if msg, ok := strings.CutPrefix(line, "ERR"); ok {
		return "", fmt.Errorf("bridge rejected %q: %w", cmd, remoteError(strings.TrimSpace(msg)))
	}
	return line, nil
}

// remoteError maps firmware error messages to the errors callers test for.
func remoteError(msg string) error {
	switch msg {
	case "no rise":
		return ErrEchoRise
	case "no fall":
		return ErrEchoFall
	}
	return Error(msg)
}

func (b *Bridge) expectOK(format string, args ...any) error {
	reply, err := b.command(0, format, args...)
	if err != nil {
		return err
	}
	if reply != "OK" {
		return fmt.Errorf("%w: %q", ErrInvalidResponse, reply)
	}
	return nil
}

func (b *Bridge) setup(p PinSpec) error {
	mode := 'i'
	if p.Direction == Output {
		mode = 'o'
	}
	return b.expectOK("M%d,%c", p.ID, mode)
}

func (b *Bridge) write(pin int, level Level) error {
	v := 0
	if level == High {
		v = 1
	}
	return b.expectOK("W%d,%d", pin, v)
}

func (b *Bridge) read(pin int) (Level, error) {
	level, _, err := b.readStamped(pin)
	return level, err
}

func (b *Bridge) readStamped(pin int) (Level, time.Time, error) {
	reply, err := b.command(0, "R%d", pin)
	if err != nil {
		return Low, time.Time{}, err
	}
	return parseReading(reply)
}

func (b *Bridge) free(pin int) error {
	return b.expectOK("F%d", pin)
}

func (b *Bridge) pulse(trig, echo int, width, timeout time.Duration) (time.Time, time.Time, error) {
	// The MCU may spend the timeout on each edge before it answers
	reply, err := b.command(width+2*timeout, "P%d,%d,%d,%d",
		trig, echo, width.Microseconds(), timeout.Microseconds())
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return parsePulse(reply)
}

// parseReading parses a read reply.
// Format: level,unix_micros
// Example: 1,1234567890
func parseReading(line string) (Level, time.Time, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 2 {
		return Low, time.Time{}, fmt.Errorf("%w: expected 2 comma-separated values, got %d", ErrInvalidResponse, len(parts))
	}

	var level Level
	switch parts[0] {
	case "0":
		level = Low
	case "1":
		level = High
	default:
		return Low, time.Time{}, fmt.Errorf("%w: invalid level %q", ErrInvalidResponse, parts[0])
	}

	micros, err := strconv.ParseUint(parts[1], 10, 63)
	if err != nil {
		return Low, time.Time{}, fmt.Errorf("%w: invalid timestamp: %v", ErrInvalidResponse, err)
	}

	return level, time.UnixMicro(int64(micros)), nil
}

// parsePulse parses a pulse reply.
// Format: rise_micros,fall_micros
// Example: 1000450,1003365
func parsePulse(line string) (time.Time, time.Time, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 2 {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: expected 2 comma-separated values, got %d", ErrInvalidResponse, len(parts))
	}

	var stamps [2]time.Time
	for i, p := range parts {
		micros, err := strconv.ParseUint(p, 10, 63)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: invalid timestamp: %v", ErrInvalidResponse, err)
		}
		stamps[i] = time.UnixMicro(int64(micros))
	}
	if stamps[1].Before(stamps[0]) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: echo falls before it rises", ErrInvalidResponse)
	}
	return stamps[0], stamps[1], nil
}

// bridgeHandle adds MCU timestamped reads to the shared handle.
type bridgeHandle struct {
	*handle
	b *Bridge
}

// Ensure bridgeHandle implements StampedReader and Pulser.
var (
	_ StampedReader = (*bridgeHandle)(nil)
	_ Pulser        = (*bridgeHandle)(nil)
)

func (h *bridgeHandle) ReadStamped(pin int) (Level, time.Time, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.check(pin, false); err != nil {
		return Low, time.Time{}, err
	}
	return h.b.readStamped(pin)
}

func (h *bridgeHandle) Pulse(trig, echo int, width, timeout time.Duration) (time.Time, time.Time, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.check(trig, true); err != nil {
		return time.Time{}, time.Time{}, err
	}
	if err := h.check(echo, false); err != nil {
		return time.Time{}, time.Time{}, err
	}
	return h.b.pulse(trig, echo, width, timeout)
}
