package filink

import (
	"context"
	"io"
	"os"
	"path/filepath"
)

// Config bundles the tunables of both state machines for a Session.
type Config struct {
	Sender   SenderConfig
	Receiver ReceiverConfig
}

// DefaultConfig returns the protocol's basic-profile defaults.
func DefaultConfig() Config {
	return Config{Sender: DefaultSenderConfig(), Receiver: DefaultReceiverConfig()}
}

// Option configures a Session at construction time.
type Option func(*Session)

// WithConfig overrides the default Config.
func WithConfig(cfg Config) Option {
	return func(s *Session) { s.cfg = cfg }
}

// WithCallbacks installs transfer progress/lifecycle hooks.
func WithCallbacks(cb *Callbacks) Option {
	return func(s *Session) { s.cb = cb }
}

// WithLogger installs a Logger for debug tracing.
func WithLogger(logger Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithContext threads a context for cancellation.
func WithContext(ctx context.Context) Option {
	return func(s *Session) { s.ctx = ctx }
}

// Session wraps a ByteChannel with the session-level driving logic:
// running the sender across a file list, or the receiver until XOFF.
type Session struct {
	ch     ByteChannel
	cfg    Config
	cb     *Callbacks
	logger Logger
	ctx    context.Context
}

// NewSession builds a Session over ch with the given options applied.
func NewSession(ch ByteChannel, opts ...Option) *Session {
	s := &Session{
		ch:     ch,
		cfg:    DefaultConfig(),
		cb:     defaultCallbacks(),
		logger: NoopLogger{},
		ctx:    context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendFiles runs S1->S2 once, then loops S3->S9 across files, and
// finally emits XOFF. Any abort kills the session and returns the
// underlying *Error.
func (s *Session) SendFiles(ctx context.Context, files []string) error {
	if ctx != nil {
		s.ctx = ctx
	}
	tracker := &ProgressTracker{}
	sender := NewSender(s.ch, s.cfg.Sender, s.logger, withTrackedProgress(s.cb, tracker), s.ctx)

	if s.cb.OnEvent != nil {
		s.cb.OnEvent(Event{Type: EventHandshake})
	}
	if err := sender.Handshake(); err != nil {
		return err
	}

	for _, name := range files {
		r, size, err := s.openSourceFile(name)
		if err != nil {
			return err
		}
		tracker.Start(name, size)

		if s.cb.OnFileStart != nil {
			s.cb.OnFileStart(name, size)
		}
		if s.cb.OnEvent != nil {
			s.cb.OnEvent(Event{Type: EventFileStart, Filename: name})
		}

		err = sender.SendFile(filepath.Base(name), r)
		if closer, ok := r.(interface{ Close() error }); ok {
			closer.Close()
		}
		if err != nil {
			return err
		}
		elapsed := tracker.Complete()
		s.logger.Debug("file sent", map[string]interface{}{"filename": name, "elapsed_ms": elapsed.Milliseconds()})

		if s.cb.OnFileComplete != nil {
			s.cb.OnFileComplete(name, size)
		}
		if s.cb.OnEvent != nil {
			s.cb.OnEvent(Event{Type: EventFileComplete, Filename: name})
		}
	}

	if err := s.ch.WriteByte(XOFF); err != nil {
		return err
	}
	if s.cb.OnEvent != nil {
		s.cb.OnEvent(Event{Type: EventSessionComplete})
	}
	return nil
}

func (s *Session) openSourceFile(name string) (io.Reader, int64, error) {
	if s.cb.OnFileOpen != nil {
		r, info, err := s.cb.OnFileOpen(name)
		if err != nil {
			return nil, 0, WrapError(ErrFileSkipped, "S3", err)
		}
		var size int64 = -1
		if info != nil {
			size = info.Size()
		}
		return r, size, nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, 0, WrapError(ErrFileSkipped, "S3", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, WrapError(ErrFileSkipped, "S3", err)
	}
	return f, info.Size(), nil
}

// ReceiveFiles runs R1->R2 once, then loops R3 until XOFF, writing
// each incoming file into outputDir under its decoded logical name.
func (s *Session) ReceiveFiles(ctx context.Context, outputDir string) error {
	if ctx != nil {
		s.ctx = ctx
	}
	if s.cb.OnFileCreate == nil {
		dir := outputDir
		s.cb.OnFileCreate = func(logical string) (io.WriteCloser, error) {
			return os.Create(filepath.Join(dir, logical))
		}
	}

	tracker := &ProgressTracker{}
	cb := withTrackedProgress(withTrackedFileStart(s.cb, tracker), tracker)
	receiver := NewReceiver(s.ch, s.cfg.Receiver, s.logger, cb, s.ctx)

	if s.cb.OnEvent != nil {
		s.cb.OnEvent(Event{Type: EventHandshake})
	}
	if err := receiver.Handshake(); err != nil {
		return err
	}

	for {
		more, err := receiver.ReceiveFile()
		if err != nil {
			return err
		}
		if !more {
			if s.cb.OnEvent != nil {
				s.cb.OnEvent(Event{Type: EventSessionComplete})
			}
			return nil
		}
		elapsed := tracker.Complete()
		s.logger.Debug("file received", map[string]interface{}{"elapsed_ms": elapsed.Milliseconds()})
	}
}
