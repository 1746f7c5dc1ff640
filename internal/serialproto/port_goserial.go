//go:build linux

// Production serial transport, grounded on
// original_source/crates/fpga/src/interface.rs's SerialConnection::start:
// open the port, switch it to raw mode, and configure an explicit baud
// with an 8-N-1 frame and a read timeout.
package serialproto

import (
	"fmt"
	"time"

	serial "github.com/daedaluz/goserial"
)

// GoserialPort adapts a github.com/daedaluz/goserial Port to PortConn. Its
// Write and ReadTimeout methods satisfy PortConn directly; only Flush needs
// an adapter, since the underlying Flush takes a queue selector this
// package never needs to vary.
type GoserialPort struct {
	port *serial.Port
}

// OpenPort opens name (e.g. "/dev/ttyUSB0") in raw mode at baud, matching
// the original's 8-N-1 configuration with no flow control.
func OpenPort(name string, baud uint32, readTimeout time.Duration) (*GoserialPort, error) {
	opts := serial.NewOptions().SetReadTimeout(readTimeout)
	p, err := serial.Open(name, opts)
	if err != nil {
		return nil, fmt.Errorf("serialproto: open %s: %w", name, err)
	}
	if err := p.MakeRaw(); err != nil {
		p.Close()
		return nil, fmt.Errorf("serialproto: make raw %s: %w", name, err)
	}
	attrs, err := p.GetAttr2()
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("serialproto: get attrs %s: %w", name, err)
	}
	attrs.MakeRaw()
	attrs.SetCustomSpeed(baud)
	if err := p.SetAttr2(serial.TCSANOW, attrs); err != nil {
		p.Close()
		return nil, fmt.Errorf("serialproto: set attrs %s: %w", name, err)
	}
	return &GoserialPort{port: p}, nil
}

func (g *GoserialPort) Write(data []byte) (int, error) {
	return g.port.Write(data)
}

func (g *GoserialPort) ReadTimeout(data []byte, timeout time.Duration) (int, error) {
	return g.port.ReadTimeout(data, timeout)
}

func (g *GoserialPort) Flush() error {
	return g.port.Flush(serial.TCIFLUSH)
}

// Close releases the underlying file descriptor.
func (g *GoserialPort) Close() error {
	return g.port.Close()
}
