package serialio

import (
	"unsafe"

	ioctl "github.com/daedaluz/goioctl"
)

// ioctl request numbers used by Port. Trimmed from the full termios/tty
// ioctl surface down to what an RS-485 line driver needs: attribute
// get/set (classic and the extended Termios2 form for custom baud rates),
// RS-485 transceiver control, and pseudo-terminal allocation for the
// loopback test helper in pty.go.
var (
	tcgets = uintptr(0x5401)
	tcsets = uintptr(0x5402)

	tcgets2 = ioctl.IOR('T', 0x2A, unsafe.Sizeof(Termios2{}))
	tcsets2 = ioctl.IOW('T', 0x2B, unsafe.Sizeof(Termios2{}))

	tiocgrs485 = uintptr(0x542E)
	tiocsrs485 = uintptr(0x542F)

	tiocgptn   = ioctl.IOR('T', 0x30, unsafe.Sizeof(uint32(0)))
	tiocsptlck = ioctl.IOW('T', 0x31, unsafe.Sizeof(int32(0)))
)
