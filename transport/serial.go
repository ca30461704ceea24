// Package transport provides ByteChannel-compatible adapters over
// real transports: a serial port and an SSH session.
package transport

import (
	"fmt"
	"time"

	"go.bug.st/serial"

	"github.com/brianjohnson/filink/filink"
)

// SerialParity mirrors the CLI's --parity choices.
type SerialParity string

const (
	ParityNone SerialParity = "none"
	ParityOdd  SerialParity = "odd"
	ParityEven SerialParity = "even"
)

// SerialConfig carries the connection parameters the CLI collects and
// hands to the serial adapter; the core protocol never sees these.
type SerialConfig struct {
	Port      string
	BaudRate  int
	DataBits  int
	Parity    SerialParity
	StopBits  int
}

func (c SerialConfig) mode() (*serial.Mode, error) {
	m := &serial.Mode{
		BaudRate: c.BaudRate,
		DataBits: c.DataBits,
	}
	switch c.Parity {
	case ParityNone, "":
		m.Parity = serial.NoParity
	case ParityOdd:
		m.Parity = serial.OddParity
	case ParityEven:
		m.Parity = serial.EvenParity
	default:
		return nil, fmt.Errorf("unknown parity %q", c.Parity)
	}
	switch c.StopBits {
	case 0, 1:
		m.StopBits = serial.OneStopBit
	case 2:
		m.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("unknown stop bits %d", c.StopBits)
	}
	return m, nil
}

// SerialChannel is a filink.ByteChannel backed by a real serial port.
type SerialChannel struct {
	port serial.Port
}

// OpenSerial opens cfg.Port with the given parameters and wraps it as
// a filink.ByteChannel.
func OpenSerial(cfg SerialConfig) (*SerialChannel, error) {
	mode, err := cfg.mode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("opening serial port %s: %w", cfg.Port, err)
	}
	return &SerialChannel{port: port}, nil
}

func (s *SerialChannel) ReadByte(timeoutMS int) (byte, error) {
	if err := s.port.SetReadTimeout(time.Duration(timeoutMS) * time.Millisecond); err != nil {
		return 0, filink.WrapError(filink.ErrIO, "", err)
	}
	var buf [1]byte
	n, err := s.port.Read(buf[:])
	if err != nil {
		return 0, filink.WrapError(filink.ErrIO, "", err)
	}
	if n == 0 {
		return 0, filink.NewError(filink.ErrTimeout, "", "timed out waiting for a byte")
	}
	return buf[0], nil
}

func (s *SerialChannel) WriteByte(b byte) error {
	if _, err := s.port.Write([]byte{b}); err != nil {
		return filink.WrapError(filink.ErrIO, "", err)
	}
	return nil
}

func (s *SerialChannel) WriteBytes(buf []byte, perByteDelayMS int) error {
	if perByteDelayMS == 0 {
		if _, err := s.port.Write(buf); err != nil {
			return filink.WrapError(filink.ErrIO, "", err)
		}
		return nil
	}
	delay := time.Duration(perByteDelayMS) * time.Millisecond
	for i, b := range buf {
		if _, err := s.port.Write([]byte{b}); err != nil {
			return filink.WrapError(filink.ErrIO, "", err)
		}
		if i != len(buf)-1 {
			time.Sleep(delay)
		}
	}
	return nil
}

func (s *SerialChannel) Flush() error {
	if err := s.port.Drain(); err != nil {
		return filink.WrapError(filink.ErrIO, "", err)
	}
	return nil
}

// Close releases the underlying serial port.
func (s *SerialChannel) Close() error {
	return s.port.Close()
}
