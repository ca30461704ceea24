package filink

import (
	"errors"
	"io"
	"os"
	"time"
)

// ByteChannel is the thin, blocking, timed byte source/sink the
// protocol core consumes. Implementations hide the underlying serial
// port (or any other transport) and are pluggable for tests.
type ByteChannel interface {
	// ReadByte blocks for at most timeoutMS milliseconds and returns
	// either the next byte, or a *Error of type ErrTimeout.
	ReadByte(timeoutMS int) (byte, error)
	// WriteByte transmits one byte, blocking momentarily if the
	// underlying device is not yet ready to accept it.
	WriteByte(b byte) error
	// WriteBytes transmits buf in order. When perByteDelayMS is
	// non-zero, the channel sleeps that long between successive
	// bytes; 0 is the fast path with no delay.
	WriteBytes(buf []byte, perByteDelayMS int) error
	// Flush ensures any buffered output actually reaches the device.
	Flush() error
}

// ReaderWithTimeout is the minimal capability a transport must offer
// to back a ByteChannel: ordinary io.Reader semantics, plus the
// ability to bound the next read with a deadline.
type ReaderWithTimeout interface {
	io.Reader
	SetReadDeadline(t time.Time) error
}

// timedChannel is the default ByteChannel implementation, built over
// a ReaderWithTimeout and an io.Writer. Transports (serial, SSH) only
// need to satisfy these two small interfaces.
type timedChannel struct {
	r ReaderWithTimeout
	w io.Writer
	f flusher
}

type flusher interface {
	Flush() error
}

type noopFlusher struct{}

func (noopFlusher) Flush() error { return nil }

// NewChannel wraps r and w into a ByteChannel. If w also implements
// Flush() error, it is used for Flush; otherwise Flush is a no-op.
func NewChannel(r ReaderWithTimeout, w io.Writer) ByteChannel {
	tc := &timedChannel{r: r, w: w}
	if fl, ok := w.(flusher); ok {
		tc.f = fl
	} else {
		tc.f = noopFlusher{}
	}
	return tc
}

func (c *timedChannel) ReadByte(timeoutMS int) (byte, error) {
	if err := c.r.SetReadDeadline(time.Now().Add(time.Duration(timeoutMS) * time.Millisecond)); err != nil {
		return 0, WrapError(ErrIO, "", err)
	}

	var buf [1]byte
	for {
		n, err := c.r.Read(buf[:])
		if n == 1 {
			return buf[0], nil
		}
		if err == nil {
			continue
		}
		if isTimeoutErr(err) {
			return 0, NewError(ErrTimeout, "", "timed out waiting for a byte")
		}
		return 0, WrapError(ErrIO, "", err)
	}
}

func (c *timedChannel) WriteByte(b byte) error {
	if _, err := c.w.Write([]byte{b}); err != nil {
		return WrapError(ErrIO, "", err)
	}
	return nil
}

func (c *timedChannel) WriteBytes(buf []byte, perByteDelayMS int) error {
	if perByteDelayMS == 0 {
		if _, err := c.w.Write(buf); err != nil {
			return WrapError(ErrIO, "", err)
		}
		return nil
	}
	delay := time.Duration(perByteDelayMS) * time.Millisecond
	for i, b := range buf {
		if _, err := c.w.Write([]byte{b}); err != nil {
			return WrapError(ErrIO, "", err)
		}
		if i != len(buf)-1 {
			time.Sleep(delay)
		}
	}
	return nil
}

func (c *timedChannel) Flush() error {
	if err := c.f.Flush(); err != nil {
		return WrapError(ErrIO, "", err)
	}
	return nil
}

// timeouter matches net.Error's Timeout method without importing net,
// so any deadline-aware reader (serial port, TCP conn, pipe wrapper)
// is recognized without a hard dependency on a specific package.
type timeouter interface {
	Timeout() bool
}

func isTimeoutErr(err error) bool {
	var t timeouter
	if errors.As(err, &t) {
		return t.Timeout()
	}
	return errors.Is(err, os.ErrDeadlineExceeded)
}
