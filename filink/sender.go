package filink

import (
	"context"
	"io"
)

// SenderConfig tunes optional sender behavior: payload pacing, a
// retry bound, and overrides of the protocol's timeouts.
type SenderConfig struct {
	// ByteDelayMS is applied between successive payload bytes in S7
	// only, never to control bytes. 0 is the fast path.
	ByteDelayMS int
	// MaxRetries bounds how many times a single block may be resent
	// after a 'B' before the sender aborts. 0 means unbounded, the
	// protocol's own basic-profile default.
	MaxRetries int
	// HandshakeTimeoutMS and ByteTimeoutMS override the protocol's
	// normative 5000ms/2000ms bounds when non-zero. Present for links
	// that need more slack than the reference values; the defaults
	// match §4.4 exactly.
	HandshakeTimeoutMS int
	ByteTimeoutMS      int
}

// DefaultSenderConfig returns the protocol's basic-profile defaults:
// no per-byte delay, unbounded retries.
func DefaultSenderConfig() SenderConfig {
	return SenderConfig{ByteDelayMS: 0, MaxRetries: 0}
}

// Sender drives the nine-state sender protocol (S1-S9) over a
// ByteChannel. One Sender transfers one session's worth of files.
type Sender struct {
	ch     ByteChannel
	cfg    SenderConfig
	logger Logger
	cb     *Callbacks
	ctx    context.Context
}

// NewSender builds a Sender. logger, cb, and ctx may all be nil.
func NewSender(ch ByteChannel, cfg SenderConfig, logger Logger, cb *Callbacks, ctx context.Context) *Sender {
	if logger == nil {
		logger = NoopLogger{}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &Sender{ch: ch, cfg: cfg, logger: logger, cb: mergeCallbacks(cb), ctx: ctx}
}

func (s *Sender) cancelled() error {
	select {
	case <-s.ctx.Done():
		return NewError(ErrCancelled, "", "session cancelled")
	default:
		return nil
	}
}

func (s *Sender) trace(state, msg string) {
	s.logger.Debug(msg, map[string]interface{}{"state": state})
}

func (s *Sender) handshakeTimeout() int {
	if s.cfg.HandshakeTimeoutMS > 0 {
		return s.cfg.HandshakeTimeoutMS
	}
	return HandshakeTimeoutMS
}

func (s *Sender) byteTimeout() int {
	if s.cfg.ByteTimeoutMS > 0 {
		return s.cfg.ByteTimeoutMS
	}
	return ByteTimeoutMS
}

// Handshake runs S1 then S2: sends 'R' until the receiver echoes 'S'
// (within the 5s handshake bound), then sends 'G'.
func (s *Sender) Handshake() error {
	if err := s.cancelled(); err != nil {
		return err
	}
	s.trace("S1", "sending R, awaiting S")
	if err := s.ch.WriteByte(ChSenderReady); err != nil {
		return err
	}
	for {
		b, err := s.ch.ReadByte(s.handshakeTimeout())
		if err != nil {
			if IsTimeout(err) {
				return NewError(ErrTimeout, "S1", "Receiver not ready")
			}
			return err
		}
		if b == ChReceiverReady {
			break
		}
		if err := s.ch.WriteByte(ChSenderReady); err != nil {
			return err
		}
	}
	s.trace("S2", "sending G")
	return s.ch.WriteByte(ChGood)
}

// beginFile runs S3 (send EOT, await BS). SendFile calls it again to
// restart from S3 whenever S4's filename echo mismatches or S5 gets a
// byte other than TAB.
func (s *Sender) beginFile() error {
	s.trace("S3", "sending EOT, awaiting BS")
	if err := s.ch.WriteByte(EOT); err != nil {
		return err
	}
	b, err := s.ch.ReadByte(s.byteTimeout())
	if err != nil {
		if IsTimeout(err) {
			return NewError(ErrTimeout, "S3", "Receiver not responding")
		}
		return err
	}
	if b != BS {
		return NewError(ErrProtocol, "S3", "Receiver not responding")
	}
	return nil
}

// sendFilename runs S4: sends each wire filename byte and verifies
// its echo. Returns ok=false on a single mismatched byte, meaning the
// caller must restart from S3.
func (s *Sender) sendFilename(wire [11]byte) (ok bool, err error) {
	s.trace("S4", "sending filename, verifying echo")
	for i, want := range wire {
		if err := s.cancelled(); err != nil {
			return false, err
		}
		if err := s.ch.WriteByte(want); err != nil {
			return false, err
		}
		got, err := s.ch.ReadByte(s.byteTimeout())
		if err != nil {
			if IsTimeout(err) {
				return false, NewError(ErrTimeout, "S4", "Receiver not responding")
			}
			return false, err
		}
		if got != want {
			s.logger.Debug("filename echo mismatch", map[string]interface{}{
				"state": "S4", "index": i, "want": ByteName(want), "got": ByteName(got),
			})
			return false, nil
		}
	}
	return true, nil
}

// SendFile transfers one file's payload: S3 through S6/S9's ETX. It
// does not send XOFF; that is a session-level decision made once all
// files are exhausted.
//
// S4's filename-echo mismatch and S5's non-TAB byte are both recovered
// locally by restarting from S3 (resending EOT) rather than aborting
// the session.
func (s *Sender) SendFile(logical string, r io.Reader) error {
	if err := s.cancelled(); err != nil {
		return err
	}

	wire := ToWire(logical)
	if err := s.beginFile(); err != nil {
		return err
	}

	for {
		ok, err := s.sendFilename(wire)
		if err != nil {
			return err
		}
		if !ok {
			if err := s.beginFile(); err != nil {
				return err
			}
			continue
		}

		s.trace("S5", "sending ENQ, awaiting TAB")
		if err := s.ch.WriteByte(ENQ); err != nil {
			return err
		}
		b, err := s.ch.ReadByte(s.byteTimeout())
		if err != nil {
			if IsTimeout(err) {
				return NewError(ErrTimeout, "S5", "Receiver not responding")
			}
			return err
		}
		if b != TAB {
			s.logger.Debug("unexpected byte awaiting TAB, restarting from S3", map[string]interface{}{
				"state": "S5", "got": ByteName(b),
			})
			if err := s.beginFile(); err != nil {
				return err
			}
			continue
		}

		return s.streamBlocks(logical, r)
	}
}

// streamBlocks runs the S6/S7/S8 loop until the file source is
// exhausted, then sends ETX.
func (s *Sender) streamBlocks(logical string, r io.Reader) error {
	var block [BlockSize]byte
	for {
		if err := s.cancelled(); err != nil {
			return err
		}
		n, _, rerr := readBlock(r, &block)
		if rerr != nil {
			return WrapError(ErrIO, "S6", rerr)
		}
		if n == 0 {
			s.trace("S6", "sending ETX")
			return s.ch.WriteByte(ETX)
		}

		chk := XORChecksum(block)
		retries := 0
		for accepted := false; !accepted; {
			s.trace("S6", "sending STX, awaiting P")
			if err := s.ch.WriteByte(STX); err != nil {
				return err
			}
			b, err := s.ch.ReadByte(s.byteTimeout())
			if err != nil {
				if IsTimeout(err) {
					return NewError(ErrTimeout, "S6", "Receiver not responding")
				}
				return err
			}
			if b != ChProceed {
				return NewError(ErrProtocol, "S6", "Receiver not responding")
			}

			if err := s.ch.WriteBytes(block[:], s.cfg.ByteDelayMS); err != nil {
				return err
			}

			s.trace("S8", "sending checksum, awaiting G or B")
			if err := s.ch.WriteByte(chk); err != nil {
				return err
			}
			ack, err := s.ch.ReadByte(s.byteTimeout())
			if err != nil {
				if IsTimeout(err) {
					return NewError(ErrTimeout, "S8", "Receiver not responding")
				}
				return err
			}
			switch ack {
			case ChGood:
				if s.cb.OnProgress != nil {
					s.cb.OnProgress(logical, int64(n), -1, 0)
				}
				accepted = true
			case ChBad:
				retries++
				if s.cfg.MaxRetries > 0 && retries > s.cfg.MaxRetries {
					return NewError(ErrChecksum, "S8", "checksum retry limit exceeded")
				}
				if s.cb.OnError != nil {
					s.cb.OnError(NewError(ErrChecksum, "S8", "checksum mismatch, retransmitting"), "S8")
				}
				if s.cb.OnEvent != nil {
					s.cb.OnEvent(Event{Type: EventChecksumRetry, Filename: logical})
				}
			default:
				return NewError(ErrProtocol, "S8", "Receiver not responding")
			}
		}
	}
}
