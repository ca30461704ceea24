package filink

import (
	"context"
	"io"
)

// ReceiverConfig tunes optional receiver behavior.
type ReceiverConfig struct {
	// MaxRetries bounds how many bad blocks the receiver will reject
	// with 'B' before aborting. 0 means unbounded.
	MaxRetries int
	// HandshakeTimeoutMS and ByteTimeoutMS override the protocol's
	// normative 5000ms/2000ms bounds when non-zero.
	HandshakeTimeoutMS int
	ByteTimeoutMS      int
}

// DefaultReceiverConfig returns the protocol's basic-profile default:
// unbounded retries.
func DefaultReceiverConfig() ReceiverConfig {
	return ReceiverConfig{MaxRetries: 0}
}

// Receiver drives the eight-state receiver protocol (R1-R8) over a
// ByteChannel, writing each incoming file through an io.WriteCloser
// obtained from Callbacks.OnFileCreate.
type Receiver struct {
	ch     ByteChannel
	cfg    ReceiverConfig
	logger Logger
	cb     *Callbacks
	ctx    context.Context
}

// NewReceiver builds a Receiver. logger, cb, and ctx may all be nil.
func NewReceiver(ch ByteChannel, cfg ReceiverConfig, logger Logger, cb *Callbacks, ctx context.Context) *Receiver {
	if logger == nil {
		logger = NoopLogger{}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &Receiver{ch: ch, cfg: cfg, logger: logger, cb: mergeCallbacks(cb), ctx: ctx}
}

func (r *Receiver) cancelled() error {
	select {
	case <-r.ctx.Done():
		return NewError(ErrCancelled, "", "session cancelled")
	default:
		return nil
	}
}

func (r *Receiver) trace(state, msg string) {
	r.logger.Debug(msg, map[string]interface{}{"state": state})
}

func (r *Receiver) handshakeTimeout() int {
	if r.cfg.HandshakeTimeoutMS > 0 {
		return r.cfg.HandshakeTimeoutMS
	}
	return HandshakeTimeoutMS
}

func (r *Receiver) byteTimeout() int {
	if r.cfg.ByteTimeoutMS > 0 {
		return r.cfg.ByteTimeoutMS
	}
	return ByteTimeoutMS
}

// Handshake runs R1 then R2: awaits 'R' (within the 5s handshake
// bound, ignoring anything else while still within it), sends 'S',
// then awaits 'G'.
func (r *Receiver) Handshake() error {
	if err := r.cancelled(); err != nil {
		return err
	}
	r.trace("R1", "awaiting R")
	for {
		b, err := r.ch.ReadByte(r.handshakeTimeout())
		if err != nil {
			if IsTimeout(err) {
				return NewError(ErrTimeout, "R1", "Sender not ready")
			}
			return err
		}
		if b == ChSenderReady {
			break
		}
		// ignore, keep waiting within the timeout
	}
	r.trace("R1", "sending S")
	if err := r.ch.WriteByte(ChReceiverReady); err != nil {
		return err
	}

	r.trace("R2", "awaiting G")
	b, err := r.ch.ReadByte(r.byteTimeout())
	if err != nil {
		if IsTimeout(err) {
			return NewError(ErrTimeout, "R2", "Sender not responding")
		}
		return err
	}
	if b != ChGood {
		return NewError(ErrProtocol, "R2", "Sender not responding")
	}
	return nil
}

// awaitNextFile runs R3: waits for EOT (a file is coming) or XOFF
// (session complete). Any other byte is rejected with 'X' and R3 is
// retried, per the spec's local-recovery rule.
func (r *Receiver) awaitNextFile() (more bool, err error) {
	for {
		r.trace("R3", "awaiting EOT or XOFF")
		b, err := r.ch.ReadByte(r.byteTimeout())
		if err != nil {
			if IsTimeout(err) {
				return false, NewError(ErrTimeout, "R3", "Sender not responding")
			}
			return false, err
		}
		switch b {
		case EOT:
			if err := r.ch.WriteByte(BS); err != nil {
				return false, err
			}
			return true, nil
		case XOFF:
			return false, nil
		default:
			if err := r.ch.WriteByte(ChReject); err != nil {
				return false, err
			}
		}
	}
}

// receiveFilename runs R4: echoes each incoming byte back to the
// sender, building the 11-byte wire filename. An invalid character
// (outside printable ASCII) is rejected with 'X' and the caller must
// return to R3.
func (r *Receiver) receiveFilename() (wire [11]byte, ok bool, err error) {
	r.trace("R4", "receiving filename")
	for i := 0; i < len(wire); i++ {
		b, err := r.ch.ReadByte(r.byteTimeout())
		if err != nil {
			if IsTimeout(err) {
				return wire, false, NewError(ErrTimeout, "R4", "Sender not responding")
			}
			return wire, false, err
		}
		if !isValidFilenameByte(b) {
			if werr := r.ch.WriteByte(ChReject); werr != nil {
				return wire, false, werr
			}
			return wire, false, nil
		}
		if err := r.ch.WriteByte(b); err != nil {
			return wire, false, err
		}
		wire[i] = b
	}
	return wire, true, nil
}

func isValidFilenameByte(b byte) bool {
	return b >= 0x20 && b < 0x7f
}

// openFile runs R5: awaits ENQ, opens the destination file, and
// replies TAB. On open failure or any other byte, it sends 'X' and
// signals the caller to return to R3.
func (r *Receiver) openFile(wire [11]byte) (w io.WriteCloser, logical string, ok bool, err error) {
	r.trace("R5", "awaiting ENQ")
	b, err := r.ch.ReadByte(r.byteTimeout())
	if err != nil {
		if IsTimeout(err) {
			return nil, "", false, NewError(ErrTimeout, "R5", "Sender not responding")
		}
		return nil, "", false, err
	}
	if b != ENQ {
		if werr := r.ch.WriteByte(ChReject); werr != nil {
			return nil, "", false, werr
		}
		return nil, "", false, nil
	}

	logical = FromWire(wire)
	if r.cb.OnFileCreate == nil {
		return nil, "", false, NewError(ErrFileOpen, "R5", "no file sink configured")
	}
	w, err = r.cb.OnFileCreate(logical)
	if err != nil {
		if r.cb.OnError != nil {
			r.cb.OnError(WrapError(ErrFileOpen, "R5", err), "R5")
		}
		if werr := r.ch.WriteByte(ChReject); werr != nil {
			return nil, "", false, werr
		}
		return nil, "", false, nil
	}

	if err := r.ch.WriteByte(TAB); err != nil {
		w.Close()
		return nil, "", false, err
	}
	return w, logical, true, nil
}

// receiveBlocks runs the R6/R7/R8 loop until ETX closes the file.
func (r *Receiver) receiveBlocks(w io.WriteCloser, logical string) error {
	var received int64
	for {
		if err := r.cancelled(); err != nil {
			return err
		}
		r.trace("R6", "awaiting STX or ETX")
		b, err := r.ch.ReadByte(r.byteTimeout())
		if err != nil {
			if IsTimeout(err) {
				return NewError(ErrTimeout, "R6", "Sender not responding")
			}
			return err
		}
		switch b {
		case ETX:
			r.trace("R6", "ETX, closing file")
			if r.cb.OnFileComplete != nil {
				r.cb.OnFileComplete(logical, received)
			}
			return nil
		case STX:
			if err := r.ch.WriteByte(ChProceed); err != nil {
				return err
			}
			if err := r.receiveOneBlock(w, logical, &received); err != nil {
				return err
			}
		default:
			if err := r.ch.WriteByte(ChNak); err != nil {
				return err
			}
		}
	}
}

// receiveOneBlock runs R7 (accumulate 128 payload bytes plus XOR) and
// R8 (verify checksum). On mismatch it sends 'B' and returns: the
// sender restarts the block from S6, so control goes back to R6 to
// await the resent STX rather than re-reading 128 bytes here.
func (r *Receiver) receiveOneBlock(w io.WriteCloser, logical string, received *int64) error {
	r.trace("R7", "receiving 128 payload bytes")
	var block [BlockSize]byte
	var xor byte
	for i := 0; i < BlockSize; i++ {
		b, err := r.ch.ReadByte(r.byteTimeout())
		if err != nil {
			if IsTimeout(err) {
				return NewError(ErrTimeout, "R7", "Sender not responding")
			}
			return err
		}
		block[i] = b
		xor ^= b
	}

	r.trace("R8", "verifying checksum")
	chk, err := r.ch.ReadByte(r.byteTimeout())
	if err != nil {
		if IsTimeout(err) {
			return NewError(ErrTimeout, "R8", "Sender not responding")
		}
		return err
	}

	if chk == xor {
		if _, werr := w.Write(block[:]); werr != nil {
			return WrapError(ErrIO, "R8", werr)
		}
		*received += int64(BlockSize)
		if r.cb.OnProgress != nil {
			r.cb.OnProgress(logical, int64(BlockSize), -1, 0)
		}
		return r.ch.WriteByte(ChGood)
	}

	if r.cb.OnError != nil {
		r.cb.OnError(NewError(ErrChecksum, "R8", "checksum mismatch, requesting retransmit"), "R8")
	}
	if r.cb.OnEvent != nil {
		r.cb.OnEvent(Event{Type: EventChecksumRetry, Filename: logical})
	}
	return r.ch.WriteByte(ChBad)
}

// ReceiveFile runs R3 through R8 for exactly one file. It returns
// more=false and no error once XOFF is observed, meaning the session
// is complete and the caller must not call ReceiveFile again.
func (r *Receiver) ReceiveFile() (more bool, err error) {
	for {
		if err := r.cancelled(); err != nil {
			return false, err
		}
		more, err = r.awaitNextFile()
		if err != nil || !more {
			return more, err
		}

		wire, ok, err := r.receiveFilename()
		if err != nil {
			return false, err
		}
		if !ok {
			continue // returned to R3 by receiveFilename's 'X'
		}

		w, logical, ok, err := r.openFile(wire)
		if err != nil {
			return false, err
		}
		if !ok {
			continue // returned to R3 by openFile's 'X'
		}

		if r.cb.OnFileStart != nil {
			r.cb.OnFileStart(logical, -1)
		}

		err = r.receiveBlocks(w, logical)
		closeErr := w.Close()
		if err != nil {
			return false, err
		}
		if closeErr != nil {
			return false, WrapError(ErrIO, "R6", closeErr)
		}
		return true, nil
	}
}
