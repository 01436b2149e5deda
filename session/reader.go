package session

import (
	"context"
	"errors"
	"time"

	"github.com/smnsjas/telsync/transport"
)

// keepAliveProbe is sent after a long idle period.
var keepAliveProbe = []byte(" ")

// readLoop drains the transport for the lifetime of a connection. It yields
// to any command holding exclusive access, answers option negotiation,
// feeds decoded text to the trigger registry and sends keep-alive probes.
// A peer disconnect closes the session.
func (s *Session) readLoop(ctx context.Context, t Transport, done chan struct{}) {
	defer close(done)

	buf := make([]byte, readBufferSize)
	for {
		if ctx.Err() != nil {
			s.logger.Debug("reader exiting: closed")
			return
		}

		if s.suspended.Load() || !s.tryAcquire() {
			if sleepCtx(ctx, s.timeouts.Poll) != nil {
				return
			}
			continue
		}

		err := s.readOnce(t, buf)
		<-s.exclusive

		switch {
		case err == nil:
		case errors.Is(err, transport.ErrDisconnected):
			s.logger.Warn("peer disconnected", "error", err)
			_ = s.teardown()
			return
		case errors.Is(err, transport.ErrClosed):
			return
		default:
			s.logger.Warn("receive failed", "error", err)
			if sleepCtx(ctx, s.timeouts.Poll) != nil {
				return
			}
		}
	}
}

// readOnce performs one receive while the reader holds exclusive access.
func (s *Session) readOnce(t Transport, buf []byte) error {
	n, err := t.Receive(buf, s.timeouts.Poll)
	if errors.Is(err, transport.ErrWouldBlock) || (err == nil && n == 0) {
		s.keepAlive(t)
		return nil
	}
	if err != nil {
		return err
	}
	s.touch()

	text, reply := s.decoder.Decode(buf[:n])
	if len(reply) > 0 {
		s.send(t, reply)
	}
	if len(text) == 0 {
		return nil
	}

	if s.output != nil {
		if _, werr := s.output.Write(text); werr != nil {
			s.logger.Debug("output write failed", "error", werr)
		}
	}

	if m, ok := s.triggers.Feed(string(text)); ok {
		s.fire(t, m)
	}
	return nil
}

// keepAlive sends a single space once the link has been idle for the
// keep-alive interval. It only runs in blocking mode, never inside a command.
func (s *Session) keepAlive(t Transport) {
	if !t.Blocking() || s.idleFor() < s.timeouts.KeepAlive {
		return
	}
	s.logger.Debug("sending keep-alive", "idle", s.idleFor().Round(time.Second))
	s.send(t, keepAliveProbe)
	s.touch()
}

func (s *Session) tryAcquire() bool {
	select {
	case s.exclusive <- struct{}{}:
		return true
	default:
		return false
	}
}
