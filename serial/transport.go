// Package serial wraps a half-duplex RS-485 tty as the gateway's C7
// Transport: fixed 8N1 framing, configurable baud, RS-485 turnaround
// programmed via TIOCSRS485, and the mandatory post-write quiet-time that
// lets the bus settle before the pump replies or the next command goes
// out.
package serial

import (
	"errors"
	"fmt"
	"time"

	goserial "github.com/daedaluz/goserial"
)

// GuardQuietTime is the pause enforced after every outbound write, per the
// half-duplex send discipline. The pump's response and the gateway's next
// write would otherwise collide on the bus during DE/RE turnaround.
const GuardQuietTime = 50 * time.Millisecond

// ErrAlreadyOpen names the already-attached condition. Open does not
// return it: a redundant Open call on an attached transport is a no-op.
var ErrAlreadyOpen = errors.New("serial: already open")

// ErrNotOpen reports an operation attempted before Open or after Close.
var ErrNotOpen = errors.New("serial: not open")

// ErrUnsupportedBaud reports a baud rate outside the fixed selectable set.
var ErrUnsupportedBaud = errors.New("serial: unsupported baud rate")

// baudFlags maps the selectable rates to the termios CBAUD constants
// goserial exposes for Linux.
var baudFlags = map[int]goserial.CFlag{
	9600:   goserial.B9600,
	19200:  goserial.B19200,
	38400:  goserial.B38400,
	57600:  goserial.B57600,
	115200: goserial.B115200,
}

// Config holds the parameters a Transport is opened with.
type Config struct {
	Device string
	Baud   int
}

// Transport owns one RS-485 serial device. It is not safe for concurrent
// use, except that Read may run alongside WriteFrame: the protocol engine
// calls Read from its reader goroutine and every other method from its
// event loop.
type Transport struct {
	cfg  Config
	port *goserial.Port
}

// New returns a Transport bound to cfg but not yet opened.
func New(cfg Config) *Transport {
	return &Transport{cfg: cfg}
}

// Config reports the parameters this transport was constructed with.
func (t *Transport) Config() Config { return t.cfg }

// IsOpen reports whether the device is currently attached.
func (t *Transport) IsOpen() bool { return t.port != nil }

// Open attaches the device, configuring 8N1 at the requested baud and
// programming RS-485 half-duplex turnaround. A call on an already-open
// transport is a no-op, per the C7 contract.
func (t *Transport) Open() error {
	if t.port != nil {
		return nil
	}
	baud, ok := baudFlags[t.cfg.Baud]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnsupportedBaud, t.cfg.Baud)
	}

	port, err := goserial.Open(t.cfg.Device, goserial.NewOptions().SetReadTimeout(200*time.Millisecond))
	if err != nil {
		return fmt.Errorf("serial: open %s: %w", t.cfg.Device, err)
	}

	attrs, err := port.GetAttr()
	if err != nil {
		port.Close()
		return fmt.Errorf("serial: get attrs: %w", err)
	}
	attrs.MakeRaw()
	attrs.Cflag &^= goserial.CBAUD | goserial.CSIZE | goserial.PARENB | goserial.CSTOPB
	attrs.Cflag |= baud | goserial.CS8 | goserial.CREAD | goserial.CLOCAL
	if err := port.SetAttr(goserial.TCSANOW, attrs); err != nil {
		port.Close()
		return fmt.Errorf("serial: set attrs: %w", err)
	}

	if err := port.SetRS485(&goserial.RS485{
		Flags: goserial.RS485Enabled | goserial.RS485RTSOnSend,
	}); err != nil {
		port.Close()
		return fmt.Errorf("serial: set rs485: %w", err)
	}

	t.port = port
	return nil
}

// Close detaches the device, flushing both queues first. Safe to call when
// already closed.
func (t *Transport) Close() error {
	if t.port == nil {
		return nil
	}
	_ = t.port.Flush(goserial.TCIOFLUSH)
	err := t.port.Close()
	t.port = nil
	if err != nil {
		return fmt.Errorf("serial: close: %w", err)
	}
	return nil
}

// WriteFrame writes frame in full, drains until the kernel TX buffer is
// empty, then sleeps GuardQuietTime before returning. Callers must not
// issue another write, nor expect a pump response, before this returns.
func (t *Transport) WriteFrame(frame []byte) error {
	if t.port == nil {
		return ErrNotOpen
	}
	if err := writeAll(t.port, frame); err != nil {
		return fmt.Errorf("serial: write: %w", err)
	}
	if err := t.port.Drain(); err != nil {
		return fmt.Errorf("serial: drain: %w", err)
	}
	time.Sleep(GuardQuietTime)
	return nil
}

func writeAll(port *goserial.Port, data []byte) error {
	for len(data) > 0 {
		n, err := port.Write(data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

// Read performs one blocking read into buf, bounded by the port's read
// timeout so the caller's loop can still observe cancellation. It returns
// (0, nil) on a read-timeout with nothing available, matching the
// reassembly loop's expectation that a zero-length read is not an error.
func (t *Transport) Read(buf []byte) (int, error) {
	if t.port == nil {
		return 0, ErrNotOpen
	}
	n, err := t.port.Read(buf)
	if err != nil {
		if isTimeout(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("serial: read: %w", err)
	}
	return n, nil
}

func isTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	te, ok := err.(timeout)
	return ok && te.Timeout()
}
