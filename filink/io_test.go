package filink

import (
	"bytes"
	"os"
	"testing"
	"time"
)

type fakeTimedReader struct {
	data     []byte
	pos      int
	deadline time.Time
}

func (f *fakeTimedReader) SetReadDeadline(t time.Time) error {
	f.deadline = t
	return nil
}

func (f *fakeTimedReader) Read(p []byte) (int, error) {
	if !f.deadline.IsZero() && time.Now().After(f.deadline) {
		return 0, os.ErrDeadlineExceeded
	}
	if f.pos >= len(f.data) {
		return 0, os.ErrDeadlineExceeded
	}
	n := copy(p, f.data[f.pos:])
	f.pos += n
	return n, nil
}

func TestTimedChannelReadByte(t *testing.T) {
	r := &fakeTimedReader{data: []byte{0x41, 0x42}}
	var w bytes.Buffer
	ch := NewChannel(r, &w)

	b, err := ch.ReadByte(1000)
	if err != nil || b != 0x41 {
		t.Fatalf("ReadByte = (0x%02x, %v), want (0x41, nil)", b, err)
	}
	b, err = ch.ReadByte(1000)
	if err != nil || b != 0x42 {
		t.Fatalf("ReadByte = (0x%02x, %v), want (0x42, nil)", b, err)
	}
}

func TestTimedChannelReadByteTimeout(t *testing.T) {
	r := &fakeTimedReader{}
	var w bytes.Buffer
	ch := NewChannel(r, &w)

	_, err := ch.ReadByte(10)
	if !IsTimeout(err) {
		t.Fatalf("ReadByte err = %v, want timeout", err)
	}
}

func TestTimedChannelWriteBytesNoDelay(t *testing.T) {
	r := &fakeTimedReader{}
	var w bytes.Buffer
	ch := NewChannel(r, &w)

	if err := ch.WriteBytes([]byte("hello"), 0); err != nil {
		t.Fatalf("WriteBytes: %v", err)
	}
	if w.String() != "hello" {
		t.Errorf("wrote %q, want hello", w.String())
	}
}

type countingFlushWriter struct {
	bytes.Buffer
	flushes int
}

func (c *countingFlushWriter) Flush() error {
	c.flushes++
	return nil
}

func TestTimedChannelFlushDelegates(t *testing.T) {
	r := &fakeTimedReader{}
	w := &countingFlushWriter{}
	ch := NewChannel(r, w)

	if err := ch.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if w.flushes != 1 {
		t.Errorf("flushes = %d, want 1", w.flushes)
	}
}

func TestTimedChannelFlushNoOpWithoutFlusher(t *testing.T) {
	r := &fakeTimedReader{}
	var w bytes.Buffer
	ch := NewChannel(r, &w)

	if err := ch.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}
