// Package app ties the pieces of telsync together: configuration, the
// Telnet shell session, the FTP client and change detection.
//
// A Model connects lazily. Operations that need the shell or FTP connect on
// first use and report progress through a Notifier.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/smnsjas/telsync/config"
	"github.com/smnsjas/telsync/monitor"
	"github.com/smnsjas/telsync/remote"
	"github.com/smnsjas/telsync/session"
)

var (
	// ErrNoRemotePath is returned by transfers when the host has no remote_path.
	ErrNoRemotePath = errors.New("host has no remote_path; file transfer is disabled")
	// ErrNotMerged is returned when the difftool left the remote copy unchanged.
	ErrNotMerged = errors.New("left file must be edited")
	// ErrUnknownKind is returned for a transfer kind other than added,
	// updated, deleted or all.
	ErrUnknownKind = errors.New("unknown transfer kind")
)

// Shell is the remote shell the model drives.
type Shell interface {
	Connect(ctx context.Context, host string, port int) error
	Login(ctx context.Context, user, password string) error
	ExecuteInitialScript(ctx context.Context, script string) error
	Run(ctx context.Context, line string, opts ...session.CommandOption) (session.Result, error)
	IsConnected() bool
	Home() string
	Pwd() string
	Close() error
}

// FileStore is the remote file system the model syncs to.
type FileStore interface {
	WorkingDir() string
	Upload(localPath, remotePath string) error
	Download(remotePath, localDir string) (string, error)
	Delete(remotePath string) error
	Alive() bool
	Close() error
}

// FTPDialer opens a FileStore for host.
type FTPDialer func(ctx context.Context, host config.Host) (FileStore, error)

// sessionShell adapts *session.Session to Shell.
type sessionShell struct {
	*session.Session
}

func (s sessionShell) Run(ctx context.Context, line string, opts ...session.CommandOption) (session.Result, error) {
	return s.ExecuteCommand(ctx, line, opts...).Wait(ctx)
}

// NewShell wraps a session.
func NewShell(s *session.Session) Shell {
	return sessionShell{s}
}

// Option configures a Model.
type Option func(*Model)

// WithShell replaces the Telnet session.
func WithShell(s Shell) Option {
	return func(m *Model) {
		m.shell = s
	}
}

// WithFTPDialer replaces the FTP dialer.
func WithFTPDialer(d FTPDialer) Option {
	return func(m *Model) {
		m.dialFTP = d
	}
}

// WithNotifier sets where progress messages go.
func WithNotifier(n Notifier) Option {
	return func(m *Model) {
		if n != nil {
			m.notify = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Model) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithEcho copies the output of interactive commands to w.
func WithEcho(w io.Writer) Option {
	return func(m *Model) {
		m.echo = w
	}
}

// WithHost selects a host other than the configured default.
func WithHost(name string) Option {
	return func(m *Model) {
		m.hostName = name
	}
}

// WithTempDir sets where remote files are downloaded for merging.
func WithTempDir(dir string) Option {
	return func(m *Model) {
		m.tempDir = dir
	}
}

// WithStrategy overrides the change detection strategy chosen by the config.
func WithStrategy(s monitor.Strategy) Option {
	return func(m *Model) {
		m.strategy = s
	}
}

// WithDifftool replaces the external merge tool runner.
func WithDifftool(run func(ctx context.Context, left, right string) error) Option {
	return func(m *Model) {
		m.difftool = run
	}
}

// Model is the application state.
type Model struct {
	cfg      *config.Config
	hostName string

	shell    Shell
	ftp      FileStore
	dialFTP  FTPDialer
	strategy monitor.Strategy
	monitor  *monitor.Monitor
	difftool func(ctx context.Context, left, right string) error

	notify  Notifier
	echo    io.Writer
	tempDir string
	logger  *slog.Logger
}

// New builds a model for cfg.
func New(cfg *config.Config, opts ...Option) (*Model, error) {
	m := &Model{
		cfg:     cfg,
		notify:  NopNotifier{},
		tempDir: "temp",
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(m)
	}

	if _, err := m.host(); err != nil {
		return nil, err
	}

	if m.shell == nil {
		m.shell = NewShell(session.New(session.WithLogger(m.logger)))
	}
	if m.dialFTP == nil {
		m.dialFTP = func(ctx context.Context, h config.Host) (FileStore, error) {
			c, err := remote.Dial(ctx, h.Name, h.Username, h.Password, remote.WithLogger(m.logger))
			if err != nil {
				return nil, err
			}
			return c, nil
		}
	}
	if m.difftool == nil {
		m.difftool = m.runDifftool
	}
	if m.strategy == nil {
		s, err := strategyFor(cfg)
		if err != nil {
			return nil, err
		}
		m.strategy = s
	}
	m.monitor = monitor.New(cfg.LocalPath, m.strategy)
	return m, nil
}

func strategyFor(cfg *config.Config) (monitor.Strategy, error) {
	switch cfg.Monitor {
	case config.MonitorSnapshot, "":
		return monitor.NewSnapshotStrategy(cfg.SnapshotFile()), nil
	case config.MonitorGit:
		return monitor.GitStrategy{}, nil
	case config.MonitorGitBranch:
		return monitor.GitBranchStrategy{Base: cfg.CompareBranch}, nil
	default:
		return nil, fmt.Errorf("%w: unknown monitor %q", config.ErrInvalid, cfg.Monitor)
	}
}

// Config returns the loaded configuration.
func (m *Model) Config() *config.Config {
	return m.cfg
}

// Monitor returns the change monitor.
func (m *Model) Monitor() *monitor.Monitor {
	return m.monitor
}

// Host returns the selected host entry.
func (m *Model) Host() (config.Host, error) {
	return m.host()
}

func (m *Model) host() (config.Host, error) {
	if m.hostName == "" {
		return m.cfg.CurrentHost()
	}
	h, ok := m.cfg.Host(m.hostName)
	if !ok {
		return config.Host{}, fmt.Errorf("%w: %q", config.ErrHostNotFound, m.hostName)
	}
	return h, nil
}

// ConnectTelnet connects, logs in and runs the host's initial script.
func (m *Model) ConnectTelnet(ctx context.Context) error {
	h, err := m.host()
	if err != nil {
		return err
	}

	m.notify.Info("Connecting to telnet " + h.Name + "...")
	if err := m.shell.Connect(ctx, h.Name, m.cfg.Port); err != nil {
		m.notify.Bad("Error: unable to connect via telnet to: " + h.Name)
		return err
	}
	if err := m.shell.Login(ctx, h.Username, h.Password); err != nil {
		m.notify.Bad("Error: wrong credentials when connecting via telnet to: " + h.Name)
		_ = m.shell.Close()
		return err
	}
	if h.Script != "" {
		if err := m.shell.ExecuteInitialScript(ctx, h.Script); err != nil {
			m.notify.Bad("Error: when executing initial script: " + h.Script)
			_ = m.shell.Close()
			return err
		}
	}
	m.notify.Good("Success: connected via telnet to: " + h.Name)
	return nil
}

// ConnectFTP opens the FTP session.
func (m *Model) ConnectFTP(ctx context.Context) error {
	h, err := m.host()
	if err != nil {
		return err
	}

	fs, err := m.dialFTP(ctx, h)
	if err != nil {
		m.notify.Bad("Error: unable to connect via FTP to: " + h.Name)
		return err
	}
	if m.ftp != nil {
		_ = m.ftp.Close()
	}
	m.ftp = fs
	m.notify.Good("Success: connected via FTP to: " + h.Name)
	return nil
}

func (m *Model) ensureTelnet(ctx context.Context) error {
	if m.shell.IsConnected() {
		return nil
	}
	return m.ConnectTelnet(ctx)
}

func (m *Model) ensureFTP(ctx context.Context) error {
	if m.ftp != nil && m.ftp.Alive() {
		return nil
	}
	return m.ConnectFTP(ctx)
}

// RemotePath maps a file relative to the local root onto the server. With a
// remote_path the file lives under the FTP login directory; without one it
// lives under the shell's home directory.
func (m *Model) RemotePath(file string) (string, error) {
	h, err := m.host()
	if err != nil {
		return "", err
	}
	if h.RemotePath == "" {
		return m.shell.Home() + "/" + file, nil
	}

	wd := ""
	if m.ftp != nil {
		wd = m.ftp.WorkingDir()
	}
	base := wd + h.RemotePath
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + file, nil
}

// Close drops both connections.
func (m *Model) Close() error {
	var errs []error
	if err := m.shell.Close(); err != nil {
		errs = append(errs, err)
	}
	if m.ftp != nil {
		if err := m.ftp.Close(); err != nil {
			errs = append(errs, err)
		}
		m.ftp = nil
	}
	return errors.Join(errs...)
}

// remoteFile is the shell-side path of a file created in the shell's
// working directory.
func (m *Model) remoteFile(name string) (string, error) {
	if pwd := m.shell.Pwd(); pwd != "" {
		return path.Join(pwd, name), nil
	}
	return m.RemotePath(name)
}
