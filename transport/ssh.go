package transport

import (
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/term"

	"github.com/brianjohnson/filink/filink"
)

// SSHConfig carries what's needed to dial a remote host and open a
// shell whose stdin/stdout carry the FILINK byte stream.
type SSHConfig struct {
	Addr     string // host:port
	User     string
	Password string // used only when no signer is supplied
	Signer   ssh.Signer
	Command  string // remote command to run, e.g. "filink receive"
}

// SSHChannel is a filink.ByteChannel riding an SSH session's
// stdin/stdout pipes, grounded on the same pty-tunnel shape used to
// carry a terminal session across a network link.
type SSHChannel struct {
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader
}

// DialSSH connects to cfg.Addr, opens a session, and starts cfg.Command
// with its stdio wired to the returned SSHChannel.
func DialSSH(cfg SSHConfig) (*SSHChannel, error) {
	auth := []ssh.AuthMethod{}
	if cfg.Signer != nil {
		auth = append(auth, ssh.PublicKeys(cfg.Signer))
	} else {
		auth = append(auth, ssh.Password(cfg.Password))
	}

	clientCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	}

	client, err := ssh.Dial("tcp", cfg.Addr, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", cfg.Addr, err)
	}

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("opening session: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, err
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, err
	}

	if err := session.Start(cfg.Command); err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("starting %q: %w", cfg.Command, err)
	}

	return &SSHChannel{client: client, session: session, stdin: stdin, stdout: stdout}, nil
}

// MakeLocalRaw puts the local terminal (fd) into raw mode for the
// duration of the session, returning a restore function. Used only
// when the CLI's own stdio is the near end of the tunnel.
func MakeLocalRaw(fd int) (restore func() error, err error) {
	old, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	return func() error { return term.Restore(fd, old) }, nil
}

func (s *SSHChannel) ReadByte(timeoutMS int) (byte, error) {
	deadline := time.After(time.Duration(timeoutMS) * time.Millisecond)
	type result struct {
		b   byte
		err error
	}
	ch := make(chan result, 1)
	go func() {
		var buf [1]byte
		n, err := s.stdout.Read(buf[:])
		if n == 1 {
			ch <- result{buf[0], nil}
			return
		}
		ch <- result{0, err}
	}()
	select {
	case res := <-ch:
		if res.err != nil {
			return 0, filink.WrapError(filink.ErrIO, "", res.err)
		}
		return res.b, nil
	case <-deadline:
		return 0, filink.NewError(filink.ErrTimeout, "", "timed out waiting for a byte")
	}
}

func (s *SSHChannel) WriteByte(b byte) error {
	if _, err := s.stdin.Write([]byte{b}); err != nil {
		return filink.WrapError(filink.ErrIO, "", err)
	}
	return nil
}

func (s *SSHChannel) WriteBytes(buf []byte, perByteDelayMS int) error {
	if perByteDelayMS == 0 {
		if _, err := s.stdin.Write(buf); err != nil {
			return filink.WrapError(filink.ErrIO, "", err)
		}
		return nil
	}
	delay := time.Duration(perByteDelayMS) * time.Millisecond
	for i, b := range buf {
		if _, err := s.stdin.Write([]byte{b}); err != nil {
			return filink.WrapError(filink.ErrIO, "", err)
		}
		if i != len(buf)-1 {
			time.Sleep(delay)
		}
	}
	return nil
}

func (s *SSHChannel) Flush() error { return nil }

// Close closes the session's stdin, waits for the remote command, and
// tears down the SSH connection.
func (s *SSHChannel) Close() error {
	s.stdin.Close()
	waitErr := s.session.Wait()
	s.session.Close()
	closeErr := s.client.Close()
	if waitErr != nil {
		return waitErr
	}
	return closeErr
}
