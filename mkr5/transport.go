package mkr5

import (
	"bytes"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Endpoint is the byte-oriented serial line Transport drives. serialio.Port
// implements this; tests use an in-memory mock (see mock_test.go).
type Endpoint interface {
	WriteAll(data []byte) error
	Read(deadline time.Time) ([]byte, error)
	Close() error
}

// Default timing constants (spec.md §5).
const (
	DefaultTransactTimeout = time.Second
	DefaultGap             = 20 * time.Millisecond
	ConservativeGap        = 50 * time.Millisecond
)

// Transport owns the serial endpoint, the outbound sequence bit, and a
// mutex gating one in-flight transaction at a time (spec.md §4.2).
type Transport struct {
	endpoint Endpoint
	log      *logrus.Entry

	mu  sync.Mutex
	seq byte
	gap time.Duration

	dead bool
}

// NewTransport wraps endpoint. gap is the inter-frame silence used to mark
// end-of-burst when reading; pass 0 for DefaultGap.
func NewTransport(endpoint Endpoint, gap time.Duration, log *logrus.Entry) *Transport {
	if gap <= 0 {
		gap = DefaultGap
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Transport{endpoint: endpoint, gap: gap, log: log.WithField("component", "transport")}
}

// Transact builds a frame for addr+blocks, writes it, then reads until the
// read buffer ends ETX,SF and stays silent for at least Gap, or timeout
// elapses. A timeout with zero bytes read is not an error (spec.md §4.2).
func (t *Transport) Transact(addr PumpAddress, blocks [][]byte, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = DefaultTransactTimeout
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dead {
		return nil, newError(KindSerialFatal, "transport dead", nil)
	}

	frame := BuildFrame(addr, t.seq, blocks)
	t.seq ^= 0x80

	if err := t.endpoint.WriteAll(frame); err != nil {
		t.dead = true
		return nil, newError(KindSerialFatal, "write", err)
	}

	deadline := time.Now().Add(timeout)
	var buf bytes.Buffer
	lastByteAt := time.Now()

	for time.Now().Before(deadline) {
		// Once the buffer already looks like a complete frame, there is no
		// reason to wait out the full transact deadline for the next Read:
		// bound it by the GAP instead, so a silent line past GAP is noticed
		// almost immediately instead of only at the outer timeout.
		readDeadline := deadline
		if b := buf.Bytes(); len(b) >= 2 && b[len(b)-1] == sfByte && b[len(b)-2] == etxByte {
			if gapDeadline := lastByteAt.Add(t.gap); gapDeadline.Before(readDeadline) {
				readDeadline = gapDeadline
			}
		}

		chunk, err := t.endpoint.Read(readDeadline)
		if err != nil {
			t.dead = true
			return nil, newError(KindSerialFatal, "read", err)
		}
		if len(chunk) > 0 {
			buf.Write(chunk)
			lastByteAt = time.Now()
			stripEcho(&buf, frame)
		}

		b := buf.Bytes()
		if len(b) >= 2 && b[len(b)-1] == sfByte && b[len(b)-2] == etxByte {
			if time.Since(lastByteAt) >= t.gap {
				return append([]byte(nil), b...), nil
			}
		}
	}

	t.log.WithField("addr", addr).Debug("transact timeout")
	return append([]byte(nil), buf.Bytes()...), nil
}

// Send is fire-and-forget: it builds and writes a frame but does not wait
// for a reply. Used for AUTHORIZE/RESET/STOP/SWITCH_OFF.
func (t *Transport) Send(addr PumpAddress, blocks [][]byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dead {
		return newError(KindSerialFatal, "transport dead", nil)
	}

	frame := BuildFrame(addr, t.seq, blocks)
	t.seq ^= 0x80
	if err := t.endpoint.WriteAll(frame); err != nil {
		t.dead = true
		return newError(KindSerialFatal, "write", err)
	}
	return nil
}

// CD1 builds and sends a single CD1 command block [0x01, 0x01, dcc] to
// 0x50+pumpID, then waits for and returns the raw reply bytes.
func (t *Transport) CD1(pumpID int, dcc byte, timeout time.Duration) ([]byte, error) {
	addr := PumpAddress(0x50 + pumpID)
	return t.Transact(addr, [][]byte{{cd1Command, 0x01, dcc}}, timeout)
}

// Dead reports whether the transport has hit a fatal I/O error.
func (t *Transport) Dead() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dead
}

// Close releases the underlying endpoint.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dead = true
	return t.endpoint.Close()
}

// stripEcho removes a leading echo of sent (the exact bytes just written)
// from buf, since RS-485 half-duplex lines often loop transmitted bytes
// back into the receive path (spec.md §4.2, §9).
func stripEcho(buf *bytes.Buffer, sent []byte) {
	b := buf.Bytes()
	if len(b) >= len(sent) && bytes.Equal(b[:len(sent)], sent) {
		remaining := append([]byte(nil), b[len(sent):]...)
		buf.Reset()
		buf.Write(remaining)
	}
}
