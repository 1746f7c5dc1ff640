// Package serialproto implements the framed 6-byte command protocol spoken
// to a programmed FPGA: one opcode byte, four big-endian payload bytes, and
// a trailing 0xA5 sentinel, with echo-confirm on every command.
//
// Grounded on original_source/crates/fpga/src/interface.rs.
package serialproto

import (
	"errors"
	"fmt"
	"time"
)

// Op is a protocol opcode.
type Op byte

const (
	OpReset      Op = 0xC0
	OpPing       Op = 0xC1
	OpGetOutputs Op = 0xC2
	OpCapture    Op = 0xC3
	OpSetInputs  Op = 0xC4
	OpSetRTPS    Op = 0xC5
	OpLoadROM    Op = 0xC6
	OpDebugLED   Op = 0xC7
	OpFailAck    Op = 0xC8
)

// frameLen is the fixed command size: opcode, four payload bytes, sentinel.
const frameLen = 6

// sentinel is the trailing byte every frame ends with.
const sentinel = 0xA5

// DefaultReadTimeout is the per-frame read bound spec.md calls for.
const DefaultReadTimeout = 20 * time.Millisecond

// ErrEchoMismatch is returned when the device's echo does not match the
// command that was sent.
var ErrEchoMismatch = errors.New("serialproto: echo mismatch")

// ErrShortRead is returned when fewer than the requested bytes come back
// before the read timeout.
var ErrShortRead = errors.New("serialproto: short read")

// PortConn is the minimal transport this package needs, small enough to be
// faked in tests without standing up a real serial device.
type PortConn interface {
	Write(data []byte) (int, error)
	ReadTimeout(data []byte, timeout time.Duration) (int, error)
	Flush() error
}

// Conn wraps a PortConn with the framing and echo-confirm discipline.
type Conn struct {
	port    PortConn
	timeout time.Duration
}

// New wraps port with the default read timeout.
func New(port PortConn) *Conn {
	return &Conn{port: port, timeout: DefaultReadTimeout}
}

// SetReadTimeout overrides the per-frame read bound.
func (c *Conn) SetReadTimeout(d time.Duration) {
	c.timeout = d
}

func frame(op Op, payload [4]byte) [frameLen]byte {
	return [frameLen]byte{byte(op), payload[0], payload[1], payload[2], payload[3], sentinel}
}

// readExact reads exactly len(buf) bytes before the conn's timeout elapses,
// since a short UART read is not itself an error worth surfacing as one —
// only a flat-out timeout or mismatch is.
func (c *Conn) readExact(buf []byte) error {
	got := 0
	for got < len(buf) {
		n, err := c.port.ReadTimeout(buf[got:], c.timeout)
		if n > 0 {
			got += n
		}
		if err != nil {
			if got < len(buf) {
				return fmt.Errorf("%w: %v", ErrShortRead, err)
			}
			break
		}
		if n == 0 {
			return ErrShortRead
		}
	}
	return nil
}

// SendCommand clears the receive buffer, writes the 6-byte frame for op and
// payload, reads the 6-byte echo back, and confirms it matches exactly. It
// returns the raw echoed frame on success.
func (c *Conn) SendCommand(op Op, payload [4]byte) ([frameLen]byte, error) {
	var echo [frameLen]byte

	if err := c.port.Flush(); err != nil {
		return echo, fmt.Errorf("serialproto: flush: %w", err)
	}

	out := frame(op, payload)
	if _, err := c.port.Write(out[:]); err != nil {
		return echo, fmt.Errorf("serialproto: write: %w", err)
	}

	if err := c.readExact(echo[:]); err != nil {
		return echo, fmt.Errorf("serialproto: read echo: %w", err)
	}
	if echo != out {
		return echo, fmt.Errorf("%w: sent % X, got % X", ErrEchoMismatch, out, echo)
	}
	return echo, nil
}

// GetOutputs sends the GetOutputs command, confirms its echo, then reads
// outputBytes of data following it.
func (c *Conn) GetOutputs(outputBytes int) ([]byte, error) {
	if _, err := c.SendCommand(OpGetOutputs, [4]byte{}); err != nil {
		return nil, err
	}
	data := make([]byte, outputBytes)
	if outputBytes == 0 {
		return data, nil
	}
	if err := c.readExact(data); err != nil {
		return nil, fmt.Errorf("serialproto: read outputs: %w", err)
	}
	return data, nil
}

// Capture latches the device's current outputs for a subsequent
// GetOutputs read.
func (c *Conn) Capture() error {
	_, err := c.SendCommand(OpCapture, [4]byte{})
	return err
}

// Reset restarts the device's sequencing logic.
func (c *Conn) Reset() error {
	_, err := c.SendCommand(OpReset, [4]byte{})
	return err
}

// Ping is a liveness check.
func (c *Conn) Ping() error {
	_, err := c.SendCommand(OpPing, [4]byte{})
	return err
}

// SetInputs sets input id (a 24-bit offset) to the given kind/state pair,
// packed as (ty<<7)|(state&0x0F) in the low payload byte.
func (c *Conn) SetInputs(id uint32, ty uint8, state uint8) error {
	payload := [4]byte{
		byte(id >> 16),
		byte(id >> 8),
		byte(id),
		(ty << 7) | (state & 0x0F),
	}
	_, err := c.SendCommand(OpSetInputs, payload)
	return err
}

// SetRTPS sets the device's redstone-ticks-per-second rate.
func (c *Conn) SetRTPS(rtps uint32) error {
	payload := [4]byte{byte(rtps >> 24), byte(rtps >> 16), byte(rtps >> 8), byte(rtps)}
	_, err := c.SendCommand(OpSetRTPS, payload)
	return err
}

// LoadROM writes one byte of ROM data at a 24-bit address.
func (c *Conn) LoadROM(addr uint32, data byte) error {
	payload := [4]byte{byte(addr >> 16), byte(addr >> 8), byte(addr), data}
	_, err := c.SendCommand(OpLoadROM, payload)
	return err
}

// DebugLED toggles the device's debug indicator.
func (c *Conn) DebugLED() error {
	_, err := c.SendCommand(OpDebugLED, [4]byte{})
	return err
}

// FailAck acknowledges a device-reported failure so it clears its latch.
func (c *Conn) FailAck() error {
	_, err := c.SendCommand(OpFailAck, [4]byte{})
	return err
}
