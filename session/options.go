package session

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/smnsjas/telsync/prompt"
	"github.com/smnsjas/telsync/transport"
)

// Transport is the byte stream a Session runs over. *transport.TCP
// implements it.
type Transport interface {
	Send(p []byte) error
	Receive(p []byte, timeout time.Duration) (int, error)
	SetBlocking(blocking bool)
	Blocking() bool
	Close() error
}

// Dialer opens a Transport to host:port.
type Dialer interface {
	Dial(ctx context.Context, host string, port int) (Transport, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, host string, port int) (Transport, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, host string, port int) (Transport, error) {
	return f(ctx, host, port)
}

// Timeouts bounds every wait in a Session. Zero fields take the default.
type Timeouts struct {
	// Connect bounds name resolution plus the TCP handshake.
	Connect time.Duration
	// Login bounds the wait for the shell prompt after the login triggers
	// are registered.
	Login time.Duration
	// LoginSettle is slept after a successful login so the banner is drained
	// before the first command.
	LoginSettle time.Duration
	// Idle ends a command that produced no output for this long.
	Idle time.Duration
	// BuildIdle replaces Idle once build output is seen.
	BuildIdle time.Duration
	// CommandCeiling bounds a single command regardless of output.
	CommandCeiling time.Duration
	// KeepAlive is the idle period after which a single space is sent.
	KeepAlive time.Duration
	// Poll is the background reader's receive timeout.
	Poll time.Duration
	// CommandPoll is slept between empty reads inside a command.
	CommandPoll time.Duration
}

// DefaultTimeouts returns the values used against the supported remote shells.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Connect:        transport.DefaultConnectTimeout,
		Login:          10 * time.Second,
		LoginSettle:    500 * time.Millisecond,
		Idle:           20 * time.Second,
		BuildIdle:      60 * time.Second,
		CommandCeiling: 30 * time.Minute,
		KeepAlive:      4 * time.Minute,
		Poll:           250 * time.Millisecond,
		CommandPoll:    50 * time.Millisecond,
	}
}

func (t Timeouts) withDefaults() Timeouts {
	d := DefaultTimeouts()
	fill := func(v *time.Duration, def time.Duration) {
		if *v <= 0 {
			*v = def
		}
	}
	fill(&t.Connect, d.Connect)
	fill(&t.Login, d.Login)
	fill(&t.LoginSettle, d.LoginSettle)
	fill(&t.Idle, d.Idle)
	fill(&t.BuildIdle, d.BuildIdle)
	fill(&t.CommandCeiling, d.CommandCeiling)
	fill(&t.KeepAlive, d.KeepAlive)
	fill(&t.Poll, d.Poll)
	fill(&t.CommandPoll, d.CommandPoll)
	return t
}

// Option configures a Session.
type Option func(*Session)

// WithDialer replaces the TCP dialer.
func WithDialer(d Dialer) Option {
	return func(s *Session) {
		if d != nil {
			s.dialer = d
		}
	}
}

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithOutput copies every piece of text the background reader decodes to w.
func WithOutput(w io.Writer) Option {
	return func(s *Session) {
		s.output = w
	}
}

// WithDetector replaces the prompt heuristic used to end commands.
func WithDetector(d prompt.Detector) Option {
	return func(s *Session) {
		if d != nil {
			s.detector = d
		}
	}
}

// WithTimeouts overrides the default timeouts. Zero fields keep their default.
func WithTimeouts(t Timeouts) Option {
	return func(s *Session) {
		s.timeouts = t.withDefaults()
	}
}
