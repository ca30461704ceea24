// Command filink sends and receives files with the FILINK protocol,
// over a serial port or an SSH tunnel.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/brianjohnson/filink/filink"
	"github.com/brianjohnson/filink/transport"
)

type cliConfig struct {
	Port      string
	SSH       string
	Baud      int
	DataBits  int
	Parity    string
	StopBits  int
	ByteDelay int
	TimeoutMS int
	Debug     bool
}

func defaultCLIConfig() cliConfig {
	return cliConfig{
		Baud:     9600,
		DataBits: 8,
		Parity:   "none",
		StopBits: 1,
	}
}

func main() {
	cfg := defaultCLIConfig()

	fs := flag.NewFlagSet("filink", flag.ExitOnError)
	fs.StringVar(&cfg.Port, "port", cfg.Port, "serial device path")
	fs.StringVar(&cfg.SSH, "ssh", cfg.SSH, "user@host[:port] to tunnel over SSH instead of a serial port")
	fs.IntVar(&cfg.Baud, "baud", cfg.Baud, "baud rate")
	fs.IntVar(&cfg.DataBits, "data-bits", cfg.DataBits, "data bits (5-8)")
	fs.StringVar(&cfg.Parity, "parity", cfg.Parity, "parity: none, odd, even")
	fs.IntVar(&cfg.StopBits, "stop-bits", cfg.StopBits, "stop bits (1-2)")
	fs.IntVar(&cfg.ByteDelay, "byte-delay", cfg.ByteDelay, "delay in ms between payload bytes")
	fs.IntVar(&cfg.TimeoutMS, "timeout-ms", cfg.TimeoutMS, "override the protocol's per-byte timeout")
	configPath := fs.String("config", "", "TOML config file overlaying these defaults")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "trace every state transition")

	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		showUsage(fs, 1)
	}
	subcommand := fs.Arg(0)
	subArgs := fs.Args()[1:]

	if *configPath != "" {
		if err := loadFileConfig(*configPath, &cfg); err != nil {
			fmt.Fprintf(os.Stderr, "filink: reading config %s: %v\n", *configPath, err)
			os.Exit(1)
		}
		// Parse again so that flags given on the command line take
		// precedence over values from the config file.
		fs.Parse(os.Args[1:])
	}

	ctx, cancel := signalContext()
	defer cancel()

	var logger filink.Logger = filink.NoopLogger{}
	if cfg.Debug {
		logger = filink.NewZerologLogger(os.Stderr, subcommand)
	}

	var err error
	switch subcommand {
	case "send":
		err = runSend(ctx, cfg, logger, subArgs)
	case "receive":
		err = runReceive(ctx, cfg, logger, subArgs)
	default:
		fmt.Fprintf(os.Stderr, "filink: unknown subcommand %q\n", subcommand)
		showUsage(fs, 1)
	}

	if err != nil {
		if fe, ok := err.(*filink.Error); ok {
			fmt.Fprintf(os.Stderr, "filink: %s\n", fe.Error())
		} else {
			fmt.Fprintf(os.Stderr, "filink: %v\n", err)
		}
		os.Exit(1)
	}
}

func runSend(ctx context.Context, cfg cliConfig, logger filink.Logger, files []string) error {
	if len(files) == 0 {
		return fmt.Errorf("send requires at least one file")
	}
	ch, closeCh, err := openChannel(cfg, "filink receive")
	if err != nil {
		return err
	}
	defer closeCh()

	names := make([]string, 0, len(files))
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", f, err)
		}
		names = append(names, abs)
	}

	session := filink.NewSession(ch,
		filink.WithConfig(sessionConfig(cfg)),
		filink.WithLogger(logger),
		filink.WithContext(ctx),
	)
	return session.SendFiles(ctx, names)
}

func runReceive(ctx context.Context, cfg cliConfig, logger filink.Logger, args []string) error {
	var outputDir string
	rfs := flag.NewFlagSet("receive", flag.ContinueOnError)
	rfs.StringVar(&outputDir, "output-dir", ".", "directory to write received files into")
	if err := rfs.Parse(args); err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("creating output dir %s: %w", outputDir, err)
	}

	ch, closeCh, err := openChannel(cfg, "filink send")
	if err != nil {
		return err
	}
	defer closeCh()

	session := filink.NewSession(ch,
		filink.WithConfig(sessionConfig(cfg)),
		filink.WithLogger(logger),
		filink.WithContext(ctx),
	)
	return session.ReceiveFiles(ctx, outputDir)
}

func sessionConfig(cfg cliConfig) filink.Config {
	c := filink.DefaultConfig()
	c.Sender.ByteDelayMS = cfg.ByteDelay
	c.Sender.ByteTimeoutMS = cfg.TimeoutMS
	c.Receiver.ByteTimeoutMS = cfg.TimeoutMS
	return c
}

func openChannel(cfg cliConfig, remoteCommand string) (filink.ByteChannel, func(), error) {
	if cfg.SSH != "" {
		user, addr, err := splitUserHost(cfg.SSH)
		if err != nil {
			return nil, nil, err
		}
		sshCfg := transport.SSHConfig{
			Addr:     addr,
			User:     user,
			Password: os.Getenv("FILINK_SSH_PASSWORD"),
			Command:  remoteCommand,
		}
		sc, err := transport.DialSSH(sshCfg)
		if err != nil {
			return nil, nil, err
		}
		return sc, func() { sc.Close() }, nil
	}

	if cfg.Port == "" {
		return nil, nil, fmt.Errorf("either --port or --ssh is required")
	}
	serialCfg := transport.SerialConfig{
		Port:     cfg.Port,
		BaudRate: cfg.Baud,
		DataBits: cfg.DataBits,
		Parity:   transport.SerialParity(cfg.Parity),
		StopBits: cfg.StopBits,
	}
	sc, err := transport.OpenSerial(serialCfg)
	if err != nil {
		return nil, nil, err
	}
	return sc, func() { sc.Close() }, nil
}

// splitUserHost parses "user@host[:port]", defaulting to port 22.
func splitUserHost(spec string) (user, addr string, err error) {
	at := strings.IndexByte(spec, '@')
	if at < 0 {
		return "", "", fmt.Errorf("--ssh must be user@host[:port], got %q", spec)
	}
	user = spec[:at]
	addr = spec[at+1:]
	if !strings.Contains(addr, ":") {
		addr += ":22"
	}
	return user, addr, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}

func showUsage(fs *flag.FlagSet, exitCode int) {
	fmt.Fprintf(os.Stderr, `filink - transfer files with the FILINK protocol

Usage:
  filink [flags] send <file>...
  filink [flags] receive [--output-dir <dir>]

Flags:
`)
	fs.PrintDefaults()
	os.Exit(exitCode)
}
