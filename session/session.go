package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smnsjas/telsync/prompt"
	"github.com/smnsjas/telsync/telnet"
	"github.com/smnsjas/telsync/transport"
	"github.com/smnsjas/telsync/trigger"
)

var (
	// ErrNotConnected is returned when an operation needs an open connection.
	ErrNotConnected = errors.New("session not connected")
	// ErrAlreadyConnected is returned when Connect is called on a live session.
	ErrAlreadyConnected = errors.New("session already connected")
	// ErrAuthTimeout is returned when the login handshake did not reach the
	// shell prompt in time.
	ErrAuthTimeout = errors.New("login timed out")
	// ErrNotAuthenticated is returned when a command is issued before Login.
	ErrNotAuthenticated = errors.New("session not authenticated")
	// ErrClosed is returned when the session was closed during an operation.
	ErrClosed = errors.New("session closed")
)

// Login handshake triggers.
const (
	LoginTrigger    = "login:"
	PasswordTrigger = "Password:"
)

// readBufferSize is the largest chunk taken from the transport in one read.
const readBufferSize = 4096

// Session is a Telnet shell session.
// All methods are safe for concurrent use.
type Session struct {
	mu sync.RWMutex

	state     State
	transport Transport
	home      string
	pwd       string
	source    string

	// Background reader
	cancelReader context.CancelFunc
	readerDone   chan struct{}

	// exclusive is held by whoever reads the transport: the background
	// reader takes it only when free, a command waits for it.
	exclusive    chan struct{}
	suspended    atomic.Bool
	lastActivity atomic.Int64 // unix nanoseconds of the last receive or keep-alive

	decoder  *telnet.Decoder // guarded by exclusive
	triggers *trigger.Registry

	// Configuration
	dialer   Dialer
	detector prompt.Detector
	timeouts Timeouts
	output   io.Writer
	logger   *slog.Logger
}

// New creates a disconnected Session.
func New(opts ...Option) *Session {
	s := &Session{
		state:     StateDisconnected,
		exclusive: make(chan struct{}, 1),
		decoder:   telnet.NewDecoder(),
		triggers:  trigger.New(),
		detector:  prompt.Default(),
		timeouts:  DefaultTimeouts(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dialer == nil {
		s.dialer = DialerFunc(func(ctx context.Context, host string, port int) (Transport, error) {
			return transport.Dial(ctx, host, port, s.timeouts.Connect)
		})
	}
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsConnected reports whether the TCP link is up.
func (s *Session) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transport != nil
}

// Home returns the login working directory, or "" before the initial script.
func (s *Session) Home() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.home
}

// Pwd returns the working directory seen at the last prompt.
func (s *Session) Pwd() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pwd
}

// Source returns the source root discovered by the initial script.
// Once found it is kept for the life of the Session.
func (s *Session) Source() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

// Connect dials host:port and starts the background reader.
// A failed connect leaves the session disconnected and may be retried.
func (s *Session) Connect(ctx context.Context, host string, port int) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.state = StateConnecting
	prev := s.readerDone
	s.readerDone = nil
	s.mu.Unlock()

	// A reader that stopped on a peer disconnect may still be returning.
	if prev != nil {
		<-prev
	}

	s.logger.Debug("connecting", "host", host, "port", port)
	t, err := s.dialer.Dial(ctx, host, port)
	if err != nil {
		s.mu.Lock()
		if s.state == StateConnecting {
			s.state = StateDisconnected
		}
		s.mu.Unlock()
		return fmt.Errorf("connect %s:%d: %w", host, port, err)
	}

	// A command from the previous connection may still be draining its
	// closed transport; the decoder is reset only once it has let go.
	release, err := s.acquireReader(ctx)
	if err != nil {
		s.mu.Lock()
		if s.state == StateConnecting {
			s.state = StateDisconnected
		}
		s.mu.Unlock()
		_ = t.Close()
		return fmt.Errorf("connect %s:%d: %w", host, port, err)
	}
	s.decoder.Reset()
	release()

	readerCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	if s.state != StateConnecting {
		// Close ran while dialing.
		s.mu.Unlock()
		cancel()
		_ = t.Close()
		return ErrClosed
	}
	s.transport = t
	s.cancelReader = cancel
	s.readerDone = done
	s.state = StateConnected
	s.mu.Unlock()

	s.triggers.Clear()
	s.touch()

	go s.readLoop(readerCtx, t, done)

	s.logger.Info("connected", "host", host, "port", port)
	return nil
}

// Login drives the login handshake: the username is sent at the login
// prompt, the password at the password prompt, and the session is
// authenticated once the shell prompt appears. The background reader does
// the triggering; Login only waits, up to the login timeout.
func (s *Session) Login(ctx context.Context, username, password string) error {
	s.mu.RLock()
	state, t, done := s.state, s.transport, s.readerDone
	s.mu.RUnlock()

	switch {
	case t == nil:
		return ErrNotConnected
	case state == StateAuthenticated || state == StateExecuting:
		return nil
	}

	authenticated := make(chan struct{})
	var once sync.Once

	s.triggers.Register(LoginTrigger, func() {
		s.logger.Debug("sending username")
		s.send(t, []byte(username))
	})
	s.triggers.Register(PasswordTrigger, func() {
		s.logger.Debug("sending password")
		s.send(t, []byte(password))
	})
	s.triggers.Register(prompt.Char, func() {
		once.Do(func() { close(authenticated) })
	})

	// The login prompt may have arrived before the triggers existed.
	if m, ok := s.triggers.Feed(""); ok {
		s.fire(t, m)
	}

	timer := time.NewTimer(s.timeouts.Login)
	defer timer.Stop()

	select {
	case <-authenticated:
	case <-timer.C:
		s.triggers.Clear()
		s.logger.Warn("login timed out", "timeout", s.timeouts.Login)
		return ErrAuthTimeout
	case <-ctx.Done():
		s.triggers.Clear()
		return ctx.Err()
	case <-done:
		s.triggers.Clear()
		return ErrClosed
	}

	if err := sleepCtx(ctx, s.timeouts.LoginSettle); err != nil {
		s.triggers.Clear()
		return err
	}
	// Drop whatever is left of the banner along with any unfired trigger.
	s.triggers.Clear()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transport != t {
		return ErrClosed
	}
	s.state = StateAuthenticated
	s.logger.Info("authenticated", "user", username)
	return nil
}

// ExecuteInitialScript sources script in the remote shell and records the
// resulting directory as both home and pwd. The source root is taken from
// the same output the first time it appears.
func (s *Session) ExecuteInitialScript(ctx context.Context, script string) error {
	res, err := s.ExecuteCommand(ctx, ". "+script).Wait(ctx)
	if err != nil {
		return fmt.Errorf("initial script %s: %w", script, err)
	}

	dir := prompt.ParsePwd(res.Text)
	if dir == "" {
		return fmt.Errorf("initial script %s: no working directory in output", script)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.home = dir
	s.pwd = dir
	if s.source == "" {
		s.source = prompt.ParseSource(res.Text)
	}
	s.logger.Debug("initial script done", "home", s.home, "source", s.source)
	return nil
}

// CdHome changes the remote directory back to home when pwd differs. The
// change is assumed to succeed: pwd is set to home without reading the
// shell's reply.
func (s *Session) CdHome() {
	s.mu.RLock()
	home, pwd := s.home, s.pwd
	s.mu.RUnlock()

	if home == "" || home == pwd {
		return
	}

	ctx := context.Background()
	if _, err := s.ExecuteCommand(ctx, "cd "+home, FireAndForget()).Wait(ctx); err != nil {
		s.logger.Warn("cd home failed", "home", home, "error", err)
		return
	}

	s.mu.Lock()
	s.pwd = home
	s.mu.Unlock()
}

// Write sends raw bytes to the remote end.
func (s *Session) Write(p []byte) error {
	s.mu.RLock()
	t := s.transport
	s.mu.RUnlock()

	if t == nil {
		return ErrNotConnected
	}
	return t.Send(p)
}

// WriteString sends text to the remote end.
func (s *Session) WriteString(text string) error {
	return s.Write([]byte(text))
}

// Close drops the connection and joins the background reader. It is safe
// to call at any time and more than once.
func (s *Session) Close() error {
	err := s.teardown()

	s.mu.Lock()
	done := s.readerDone
	s.readerDone = nil
	s.mu.Unlock()

	if done != nil {
		<-done
	}
	return err
}

// teardown releases the transport and resets per-connection state. It does
// not wait for the reader, which calls it on a peer disconnect.
func (s *Session) teardown() error {
	s.mu.Lock()
	t, cancel := s.transport, s.cancelReader
	s.transport = nil
	s.cancelReader = nil
	s.state = StateDisconnected
	s.home = ""
	s.pwd = ""
	s.mu.Unlock()

	s.triggers.Clear()
	if cancel != nil {
		cancel()
	}
	if t == nil {
		return nil
	}

	s.logger.Info("disconnected")
	if err := t.Close(); err != nil {
		return fmt.Errorf("close transport: %w", err)
	}
	return nil
}

// acquireReader takes exclusive read access from the background reader.
// The returned release func must be called exactly once, normally deferred.
func (s *Session) acquireReader(ctx context.Context) (func(), error) {
	select {
	case s.exclusive <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	s.suspended.Store(true)

	return func() {
		s.suspended.Store(false)
		<-s.exclusive
	}, nil
}

// fire runs a matched trigger and presses Enter.
func (s *Session) fire(t Transport, m trigger.Match) {
	s.logger.Debug("trigger fired", "trigger", m.Trigger)
	m.Action()
	s.send(t, []byte("\n"))
}

func (s *Session) send(t Transport, p []byte) {
	if err := t.Send(p); err != nil {
		s.logger.Warn("send failed", "error", err)
	}
}

func (s *Session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

func (s *Session) idleFor() time.Duration {
	return time.Since(time.Unix(0, s.lastActivity.Load()))
}

func (s *Session) setPwd(dir string) {
	s.mu.Lock()
	s.pwd = dir
	s.mu.Unlock()
}

// sleepCtx sleeps for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
