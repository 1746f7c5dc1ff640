package serialproto

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

// fakePort is an in-memory PortConn: writes append to sent, reads are
// served from a queue of canned responses, one per expected read call.
type fakePort struct {
	sent      [][]byte
	responses [][]byte
	flushes   int
	readErr   error
}

func (f *fakePort) Write(data []byte) (int, error) {
	cp := append([]byte(nil), data...)
	f.sent = append(f.sent, cp)
	return len(data), nil
}

func (f *fakePort) ReadTimeout(data []byte, _ time.Duration) (int, error) {
	if f.readErr != nil {
		return 0, f.readErr
	}
	if len(f.responses) == 0 {
		return 0, errors.New("fakePort: no more responses queued")
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	n := copy(data, resp)
	return n, nil
}

func (f *fakePort) Flush() error {
	f.flushes++
	return nil
}

func TestSendCommandFramesAndConfirmsEcho(t *testing.T) {
	port := &fakePort{}
	// Ping's frame is [0xC1, 0, 0, 0, 0, 0xA5]; queue it back as the echo.
	port.responses = [][]byte{{0xC1, 0, 0, 0, 0, 0xA5}}

	c := New(port)
	if err := c.Ping(); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if port.flushes != 1 {
		t.Fatalf("flushes = %d, want 1", port.flushes)
	}
	want := []byte{0xC1, 0, 0, 0, 0, 0xA5}
	if len(port.sent) != 1 || !bytes.Equal(port.sent[0], want) {
		t.Fatalf("sent = %v, want [%v]", port.sent, want)
	}
}

// Scenario F — echo mismatch is a command failure.
func TestSendCommandEchoMismatchFails(t *testing.T) {
	port := &fakePort{
		responses: [][]byte{{0xC1, 0, 0, 0, 1, 0xA5}}, // byte 4 differs
	}
	c := New(port)

	err := c.Ping()
	if !errors.Is(err, ErrEchoMismatch) {
		t.Fatalf("err = %v, want ErrEchoMismatch", err)
	}
}

func TestSendCommandShortReadFails(t *testing.T) {
	port := &fakePort{readErr: errors.New("timeout")}
	c := New(port)

	err := c.Reset()
	if !errors.Is(err, ErrShortRead) {
		t.Fatalf("err = %v, want ErrShortRead", err)
	}
}

func TestGetOutputsReadsEchoThenPayload(t *testing.T) {
	port := &fakePort{
		responses: [][]byte{
			{0xC2, 0, 0, 0, 0, 0xA5},
			{0x5A, 0x01},
		},
	}
	c := New(port)

	data, err := c.GetOutputs(2)
	if err != nil {
		t.Fatalf("GetOutputs: %v", err)
	}
	want := []byte{0x5A, 0x01}
	if !bytes.Equal(data, want) {
		t.Fatalf("data = %v, want %v", data, want)
	}
}

func TestSetInputsPacksTypeAndState(t *testing.T) {
	port := &fakePort{
		responses: [][]byte{{0xC4, 0, 0x01, 0x02, (1 << 7) | 0x03, 0xA5}},
	}
	c := New(port)

	if err := c.SetInputs(0x0102, 1, 0x03); err != nil {
		t.Fatalf("SetInputs: %v", err)
	}
	want := []byte{0xC4, 0, 0x01, 0x02, (1 << 7) | 0x03, 0xA5}
	if !bytes.Equal(port.sent[0], want) {
		t.Fatalf("sent = %v, want %v", port.sent[0], want)
	}
}

func TestSetRTPSPacksBigEndian(t *testing.T) {
	port := &fakePort{
		responses: [][]byte{{0xC5, 0x00, 0x00, 0x01, 0x00, 0xA5}},
	}
	c := New(port)

	if err := c.SetRTPS(256); err != nil {
		t.Fatalf("SetRTPS: %v", err)
	}
	want := []byte{0xC5, 0x00, 0x00, 0x01, 0x00, 0xA5}
	if !bytes.Equal(port.sent[0], want) {
		t.Fatalf("sent = %v, want %v", port.sent[0], want)
	}
}
