// Package remote moves files to and from the application server over FTP.
//
// Remote paths are always slash-separated. Transfers use ASCII mode by
// default because the server holds source files with its own line endings.
package remote

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
)

const (
	// DefaultPort is the FTP control port.
	DefaultPort = 21
	// DefaultTimeout bounds the dial and each control exchange.
	DefaultTimeout = 10 * time.Second
)

// conn is the part of *ftp.ServerConn the client uses.
type conn interface {
	Login(user, password string) error
	CurrentDir() (string, error)
	ChangeDir(path string) error
	Type(transferType ftp.TransferType) error
	Stor(path string, r io.Reader) error
	Retr(path string) (*ftp.Response, error)
	Delete(path string) error
	NoOp() error
	Quit() error
}

// retriever opens a remote file for reading. It is split from conn so tests
// do not need an *ftp.Response.
type retriever func(c conn, path string) (io.ReadCloser, error)

func retr(c conn, p string) (io.ReadCloser, error) {
	return c.Retr(p)
}

// Option configures Dial.
type Option func(*options)

type options struct {
	port     int
	timeout  time.Duration
	binary   bool
	logger   *slog.Logger
	dialConn func(ctx context.Context, addr string, timeout time.Duration) (conn, error)
}

// WithPort overrides the FTP port.
func WithPort(port int) Option {
	return func(o *options) {
		if port > 0 {
			o.port = port
		}
	}
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithBinary switches transfers to binary mode.
func WithBinary() Option {
	return func(o *options) {
		o.binary = true
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func dialFTP(ctx context.Context, addr string, timeout time.Duration) (conn, error) {
	c, err := ftp.Dial(addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(timeout))
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Client is a logged-in FTP session.
type Client struct {
	conn       conn
	retr       retriever
	host       string
	workingDir string
	logger     *slog.Logger
}

// Dial connects to host, logs in and records the login directory.
func Dial(ctx context.Context, host, user, password string, opts ...Option) (*Client, error) {
	o := options{
		port:     DefaultPort,
		timeout:  DefaultTimeout,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		dialConn: dialFTP,
	}
	for _, opt := range opts {
		opt(&o)
	}

	addr := net.JoinHostPort(host, strconv.Itoa(o.port))
	c, err := o.dialConn(ctx, addr, o.timeout)
	if err != nil {
		return nil, fmt.Errorf("ftp dial %s: %w", addr, err)
	}
	return login(c, host, user, password, o)
}

func login(c conn, host, user, password string, o options) (*Client, error) {
	if err := c.Login(user, password); err != nil {
		_ = c.Quit()
		return nil, fmt.Errorf("ftp login %s@%s: %w", user, host, err)
	}

	mode := ftp.TransferTypeASCII
	if o.binary {
		mode = ftp.TransferTypeBinary
	}
	if err := c.Type(mode); err != nil {
		_ = c.Quit()
		return nil, fmt.Errorf("ftp set transfer type: %w", err)
	}

	wd, err := c.CurrentDir()
	if err != nil {
		_ = c.Quit()
		return nil, fmt.Errorf("ftp working directory: %w", err)
	}
	if !strings.HasSuffix(wd, "/") {
		wd += "/"
	}

	o.logger.Info("ftp connected", "host", host, "working_dir", wd)
	return &Client{conn: c, retr: retr, host: host, workingDir: wd, logger: o.logger}, nil
}

// WorkingDir returns the login directory, always ending in "/".
func (c *Client) WorkingDir() string {
	return c.workingDir
}

// Upload stores the local file at remotePath.
func (c *Client) Upload(localPath, remotePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("upload %s: %w", localPath, err)
	}
	defer f.Close()

	dir, name := path.Split(remotePath)
	if dir != "" {
		if err := c.conn.ChangeDir(dir); err != nil {
			return fmt.Errorf("upload %s: change directory to %s: %w", localPath, dir, err)
		}
	}
	if err := c.conn.Stor(name, f); err != nil {
		return fmt.Errorf("upload %s to %s: %w", localPath, remotePath, err)
	}
	c.logger.Debug("uploaded", "local", localPath, "remote", remotePath)
	return nil
}

// Download copies remotePath into localDir and returns the local file path.
func (c *Client) Download(remotePath, localDir string) (string, error) {
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return "", fmt.Errorf("download %s: %w", remotePath, err)
	}

	r, err := c.retr(c.conn, remotePath)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", remotePath, err)
	}
	defer r.Close()

	local := filepath.Join(localDir, path.Base(remotePath))
	f, err := os.Create(local)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", remotePath, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		_ = os.Remove(local)
		return "", fmt.Errorf("download %s: %w", remotePath, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("download %s: %w", remotePath, err)
	}

	c.logger.Debug("downloaded", "remote", remotePath, "local", local)
	return local, nil
}

// Delete removes remotePath.
func (c *Client) Delete(remotePath string) error {
	if err := c.conn.Delete(remotePath); err != nil {
		return fmt.Errorf("delete %s: %w", remotePath, err)
	}
	c.logger.Debug("deleted", "remote", remotePath)
	return nil
}

// Alive reports whether the control connection still answers.
func (c *Client) Alive() bool {
	return c.conn.NoOp() == nil
}

// Close logs out.
func (c *Client) Close() error {
	if err := c.conn.Quit(); err != nil {
		return fmt.Errorf("ftp quit: %w", err)
	}
	return nil
}
