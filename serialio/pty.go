package serialio

import (
	"fmt"
	"syscall"
	"unsafe"

	ioctl "github.com/daedaluz/goioctl"
)

// OpenLoopback allocates a pseudoterminal pair and returns the master and
// slave ends as Ports, configured with cfg. Tests use this in place of a
// real RS-485 adapter when they want genuine file-descriptor-level I/O
// (short reads, partial frames, real echo) instead of the in-memory mock
// endpoint. Adapted from daedaluz/goserial's OpenPTY, which referenced
// SetLockPT/GetPTPeer/SetWinSize helpers that package never actually
// defined; this version implements the unlock + peer-open sequence itself
// via TIOCSPTLCK/TIOCGPTN.
func OpenLoopback(cfg Config) (master *Port, slave *Port, err error) {
	fd, err := syscall.Open("/dev/ptmx", syscall.O_RDWR|syscall.O_NOCTTY, 0)
	if err != nil {
		return nil, nil, wrapErr("open ptmx", err)
	}
	master = &Port{fd: fd}

	var lock int32
	if err := ioctl.Ioctl(uintptr(master.fd), tiocsptlck, uintptr(unsafe.Pointer(&lock))); err != nil {
		master.forceClose()
		return nil, nil, wrapErr("unlock pty", err)
	}

	var ptyNum uint32
	if err := ioctl.Ioctl(uintptr(master.fd), tiocgptn, uintptr(unsafe.Pointer(&ptyNum))); err != nil {
		master.forceClose()
		return nil, nil, wrapErr("get pty number", err)
	}

	slavePath := fmt.Sprintf("/dev/pts/%d", ptyNum)
	slaveFd, err := syscall.Open(slavePath, syscall.O_RDWR|syscall.O_NOCTTY, 0)
	if err != nil {
		master.forceClose()
		return nil, nil, wrapErr("open pty slave", err)
	}
	slave = &Port{fd: slaveFd}

	for _, p := range [2]*Port{master, slave} {
		attrs, err := p.getAttr()
		if err != nil {
			master.forceClose()
			slave.forceClose()
			return nil, nil, wrapErr("get attr", err)
		}
		attrs.makeRaw()
		attrs.setParity(cfg.Parity)
		attrs.setBaud(cfg.BaudRate)
		attrs.setStopBits(cfg.StopBits)
		if err := p.setAttr(attrs); err != nil {
			master.forceClose()
			slave.forceClose()
			return nil, nil, wrapErr("set attr", err)
		}
	}

	return master, slave, nil
}
