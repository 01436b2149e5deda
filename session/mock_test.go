package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/smnsjas/telsync/transport"
)

// mockTransport is a scripted remote shell. Every complete line sent to it
// is passed to respond, and the reply is queued for Receive.
type mockTransport struct {
	mu sync.Mutex

	inbound []byte
	dataCh  chan struct{}

	sent    bytes.Buffer
	partial bytes.Buffer
	lines   []string
	respond func(line string) string

	blocking       bool
	nonBlockingErr error
	closed         bool
	hungUp         bool
	closedCh       chan struct{}
}

func newMockTransport(respond func(line string) string) *mockTransport {
	return &mockTransport{
		dataCh:   make(chan struct{}, 1),
		respond:  respond,
		blocking: true,
		closedCh: make(chan struct{}),
	}
}

// push queues data as if the server had sent it.
func (m *mockTransport) push(data string) {
	m.mu.Lock()
	m.inbound = append(m.inbound, data...)
	m.mu.Unlock()
	m.signal()
}

// hangup makes the next Receive report a peer disconnect.
func (m *mockTransport) hangup() {
	m.mu.Lock()
	m.hungUp = true
	m.mu.Unlock()
	m.signal()
}

// failNonBlocking makes the next non-blocking Receive fail with err.
func (m *mockTransport) failNonBlocking(err error) {
	m.mu.Lock()
	m.nonBlockingErr = err
	m.mu.Unlock()
}

func (m *mockTransport) signal() {
	select {
	case m.dataCh <- struct{}{}:
	default:
	}
}

func (m *mockTransport) sentBytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.sent.Bytes()...)
}

func (m *mockTransport) sentLines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.lines...)
}

func (m *mockTransport) Send(p []byte) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return transport.ErrClosed
	}
	m.sent.Write(p)

	var replies []string
	for _, b := range p {
		switch {
		case b == '\n':
			line := m.partial.String()
			m.partial.Reset()
			m.lines = append(m.lines, line)
			if m.respond != nil {
				if r := m.respond(line); r != "" {
					replies = append(replies, r)
				}
			}
		case b < 0x80:
			m.partial.WriteByte(b)
		}
	}
	m.mu.Unlock()

	for _, r := range replies {
		m.push(r)
	}
	return nil
}

func (m *mockTransport) Receive(p []byte, timeout time.Duration) (int, error) {
	if !m.Blocking() || timeout <= 0 {
		timeout = time.Millisecond
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		m.mu.Lock()
		switch {
		case m.closed:
			m.mu.Unlock()
			return 0, transport.ErrClosed
		case m.hungUp:
			m.mu.Unlock()
			return 0, fmt.Errorf("%w: %v", transport.ErrDisconnected, io.EOF)
		case m.nonBlockingErr != nil && !m.blocking:
			err := m.nonBlockingErr
			m.nonBlockingErr = nil
			m.mu.Unlock()
			return 0, err
		case len(m.inbound) > 0:
			n := copy(p, m.inbound)
			m.inbound = m.inbound[n:]
			m.mu.Unlock()
			return n, nil
		}
		m.mu.Unlock()

		select {
		case <-m.dataCh:
		case <-m.closedCh:
		case <-deadline.C:
			return 0, transport.ErrWouldBlock
		}
	}
}

func (m *mockTransport) SetBlocking(blocking bool) {
	m.mu.Lock()
	m.blocking = blocking
	m.mu.Unlock()
}

func (m *mockTransport) Blocking() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blocking
}

func (m *mockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.closedCh)
	}
	return nil
}

func (m *mockTransport) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// shell answers the login handshake and any extra command lines.
func shell(extra map[string]string) func(string) string {
	return func(line string) string {
		switch line {
		case "user":
			return "Password: "
		case "secret":
			return "Welcome back\r\n/home/user> "
		}
		return extra[line]
	}
}

// syncBuffer is a bytes.Buffer safe for use by the reader and the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testTimeouts() Timeouts {
	return Timeouts{
		Login:          500 * time.Millisecond,
		LoginSettle:    10 * time.Millisecond,
		Idle:           150 * time.Millisecond,
		BuildIdle:      400 * time.Millisecond,
		CommandCeiling: 5 * time.Second,
		KeepAlive:      time.Hour,
		Poll:           10 * time.Millisecond,
		CommandPoll:    5 * time.Millisecond,
	}
}

func mockDialer(m *mockTransport) Dialer {
	return DialerFunc(func(context.Context, string, int) (Transport, error) {
		return m, nil
	})
}

// newTestSession returns a disconnected session that dials m.
func newTestSession(t *testing.T, m *mockTransport, opts ...Option) *Session {
	t.Helper()
	base := []Option{WithDialer(mockDialer(m)), WithTimeouts(testTimeouts())}
	s := New(append(base, opts...)...)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// connectSession returns a connected, not yet authenticated session.
func connectSession(t *testing.T, m *mockTransport, opts ...Option) *Session {
	t.Helper()
	s := newTestSession(t, m, opts...)
	if err := s.Connect(context.Background(), "devbox", 23); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return s
}

// loginSession returns an authenticated session.
func loginSession(t *testing.T, m *mockTransport, opts ...Option) *Session {
	t.Helper()
	s := connectSession(t, m, opts...)
	m.push("Welcome\r\nlogin: ")
	if err := s.Login(context.Background(), "user", "secret"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	return s
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
