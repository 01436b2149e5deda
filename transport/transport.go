package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

var (
	// ErrDisconnected is returned when the peer closed or reset the connection.
	ErrDisconnected = errors.New("transport disconnected")
	// ErrWouldBlock is returned by Receive when no data arrived before the deadline.
	ErrWouldBlock = errors.New("no data available")
	// ErrClosed is returned when an operation is attempted on a closed transport.
	ErrClosed = errors.New("transport closed")
)

const (
	// DefaultPort is the classic Telnet port.
	DefaultPort = 23

	// DefaultConnectTimeout bounds name resolution plus the TCP handshake.
	DefaultConnectTimeout = 250 * time.Millisecond

	// nonBlockingPoll is the read deadline used in non-blocking mode. A deadline
	// that has already passed makes the runtime fail the read without looking at
	// the socket, so a small positive window is used instead.
	nonBlockingPoll = 10 * time.Millisecond
)

// TCP is a duplex byte stream over a TCP connection.
type TCP struct {
	conn net.Conn

	writeMu sync.Mutex // Protects conn writes
	readMu  sync.Mutex // Protects deadline + read pairs

	blocking atomic.Bool
	closed   atomic.Bool
}

// Dial resolves host and connects to host:port within timeout.
// A failed resolve or connect is returned as an error; it is never fatal.
func Dial(ctx context.Context, host string, port int, timeout time.Duration) (*TCP, error) {
	if port == 0 {
		port = DefaultPort
	}
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return New(conn), nil
}

// New wraps an established connection. The transport starts in blocking mode.
func New(conn net.Conn) *TCP {
	t := &TCP{conn: conn}
	t.blocking.Store(true)
	return t
}

// Send writes all of p to the connection.
func (t *TCP) Send(p []byte) error {
	if t.closed.Load() {
		return ErrClosed
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := t.conn.Write(p); err != nil {
		if IsExpectedCloseError(err) {
			return fmt.Errorf("%w: %v", ErrDisconnected, err)
		}
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// SendString writes text to the connection.
func (t *TCP) SendString(text string) error {
	return t.Send([]byte(text))
}

// Receive reads at most len(p) bytes. In blocking mode it waits up to timeout;
// in non-blocking mode it only picks up data that is already buffered.
//
// It returns ErrWouldBlock when nothing arrived and ErrDisconnected when the
// peer closed the connection.
func (t *TCP) Receive(p []byte, timeout time.Duration) (int, error) {
	if t.closed.Load() {
		return 0, ErrClosed
	}

	if !t.blocking.Load() || timeout <= 0 {
		timeout = nonBlockingPoll
	}

	t.readMu.Lock()
	defer t.readMu.Unlock()

	if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		if t.closed.Load() || IsExpectedCloseError(err) {
			return 0, ErrClosed
		}
		return 0, fmt.Errorf("set read deadline: %w", err)
	}

	n, err := t.conn.Read(p)
	if n > 0 {
		// Data first: a read can return bytes together with EOF.
		return n, nil
	}
	if err == nil {
		return 0, ErrWouldBlock
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return 0, ErrWouldBlock
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return 0, ErrWouldBlock
	}
	if t.closed.Load() {
		return 0, ErrClosed
	}
	if IsExpectedCloseError(err) {
		return 0, fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	return 0, fmt.Errorf("receive: %w", err)
}

// SetBlocking toggles between blocking and non-blocking receive.
func (t *TCP) SetBlocking(blocking bool) {
	t.blocking.Store(blocking)
}

// Blocking reports whether the transport is in blocking mode.
func (t *TCP) Blocking() bool {
	return t.blocking.Load()
}

// RemoteAddr returns the address of the peer.
func (t *TCP) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}

// Close closes the connection. It is safe to call more than once.
func (t *TCP) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := t.conn.Close(); err != nil && !IsExpectedCloseError(err) {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

// IsExpectedCloseError reports whether err is a normal connection termination:
// EOF, closed connection, broken pipe or connection reset.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}
