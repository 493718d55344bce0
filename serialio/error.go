package serialio

// Error wraps a low-level syscall/ioctl failure with the operation that
// triggered it, matching daedaluz/goserial's Error shape.
type Error struct {
	msg string
	err error
}

func (e Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e Error) Unwrap() error {
	return e.err
}

func wrapErr(msg string, e error) error {
	if e == nil {
		return nil
	}
	return Error{msg: msg, err: e}
}

// ErrClosed is returned by Port methods once Close has been called.
var ErrClosed = Error{msg: "serialio: port already closed"}
