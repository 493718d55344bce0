// Package serialio is the byte-level duplex serial endpoint used by the
// mkr5 Transport. It is adapted from daedaluz/goserial's termios/ioctl Port
// (raw mode, custom-speed Termios2, RS-485 transceiver control) and narrowed
// to the operations an RS-485 multi-drop line driver needs: open, write,
// deadline-bounded read, close.
package serialio

import (
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"github.com/daedaluz/fdev/poll"
	ioctl "github.com/daedaluz/goioctl"
)

// Config describes the line parameters for Open, matching spec.md §6's
// configuration fields (serial_port is the path argument to Open itself).
type Config struct {
	BaudRate int
	Parity   Parity
	DataBits int // always 8 for MKR-5/DART; kept explicit for clarity
	StopBits int
	RS485    bool // enable RS485 transceiver control via TIOCSRS485
}

// rs485Flags mirrors struct serial_rs485 from linux/serial.h.
type rs485Flags struct {
	flags              uint32
	delayRTSBeforeSend uint32
	delayRTSAfterSend  uint32
	padding            [5]uint32
}

const rs485Enabled = 1 << 0

// Port is a termios-backed RS-485 serial line.
type Port struct {
	fd     int
	closed atomic.Bool
}

// Open opens the device node at path and applies cfg: raw mode, the
// requested baud/parity/stop-bits, and (if cfg.RS485 is set) RS-485
// transceiver control so the kernel toggles the driver enable line around
// each write instead of relying on electrical half-duplex behavior alone.
func Open(path string, cfg Config) (*Port, error) {
	fd, err := syscall.Open(path, syscall.O_RDWR|syscall.O_NOCTTY, 0)
	if err != nil {
		return nil, wrapErr("open", err)
	}
	p := &Port{fd: fd}

	attrs, err := p.getAttr()
	if err != nil {
		p.forceClose()
		return nil, wrapErr("get attr", err)
	}
	attrs.makeRaw()
	attrs.setParity(cfg.Parity)
	attrs.setBaud(cfg.BaudRate)
	attrs.setStopBits(cfg.StopBits)
	if err := p.setAttr(attrs); err != nil {
		p.forceClose()
		return nil, wrapErr("set attr", err)
	}

	if cfg.RS485 {
		if err := p.setRS485(true); err != nil {
			p.forceClose()
			return nil, wrapErr("set rs485", err)
		}
	}

	return p, nil
}

func (p *Port) getAttr() (*Termios2, error) {
	attrs := &Termios2{}
	if err := ioctl.Ioctl(uintptr(p.fd), tcgets2, uintptr(unsafe.Pointer(attrs))); err != nil {
		return nil, err
	}
	return attrs, nil
}

func (p *Port) setAttr(attrs *Termios2) error {
	return ioctl.Ioctl(uintptr(p.fd), tcsets2, uintptr(unsafe.Pointer(attrs)))
}

func (p *Port) setRS485(enable bool) error {
	cfg := &rs485Flags{}
	if err := ioctl.Ioctl(uintptr(p.fd), tiocgrs485, uintptr(unsafe.Pointer(cfg))); err != nil {
		return err
	}
	if enable {
		cfg.flags |= rs485Enabled
	} else {
		cfg.flags &^= rs485Enabled
	}
	return ioctl.Ioctl(uintptr(p.fd), tiocsrs485, uintptr(unsafe.Pointer(cfg)))
}

// WriteAll blocks until every byte of data has been written or an error
// occurs. Transport relies on this never returning a short write silently.
func (p *Port) WriteAll(data []byte) error {
	if p.closed.Load() {
		return ErrClosed
	}
	for len(data) > 0 {
		n, err := syscall.Write(p.fd, data)
		if err != nil {
			return wrapErr("write", err)
		}
		data = data[n:]
	}
	return nil
}

// Read blocks until at least one byte is available or deadline passes, then
// returns whatever is currently readable without blocking further. A zero
// deadline means read with no timeout.
func (p *Port) Read(deadline time.Time) ([]byte, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	var timeout time.Duration = -1
	if !deadline.IsZero() {
		timeout = time.Until(deadline)
		if timeout < 0 {
			timeout = 0
		}
	}
	if err := poll.WaitInput(p.fd, timeout); err != nil {
		// No data became ready within the deadline; this is the normal
		// IoTimeout path, not a fatal condition (spec.md §7).
		return nil, nil
	}
	buf := make([]byte, 512)
	n, err := syscall.Read(p.fd, buf)
	if err != nil {
		return nil, wrapErr("read", err)
	}
	return buf[:n], nil
}

func (p *Port) forceClose() {
	fd := p.fd
	p.fd = -1
	syscall.Close(fd)
}

// Close closes the underlying file descriptor. Safe to call once; a second
// call returns ErrClosed, matching the teacher's Port.Close idiom.
func (p *Port) Close() error {
	if !p.closed.Swap(true) {
		fd := p.fd
		p.fd = -1
		return syscall.Close(fd)
	}
	return ErrClosed
}

// Fd exposes the raw descriptor; -1 once closed.
func (p *Port) Fd() int {
	if p.closed.Load() {
		return -1
	}
	return p.fd
}
