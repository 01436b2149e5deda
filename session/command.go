package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/smnsjas/telsync/prompt"
	"github.com/smnsjas/telsync/transport"
)

// TimeoutWarning is appended to the output of a command that went quiet
// before its prompt was seen.
const TimeoutWarning = "\n[telsync] no response from remote host, output may be incomplete\n"

// Result is the output of a finished command.
type Result struct {
	// Text is everything received after the command was sent.
	Text string
	// TimedOut is set when the command ended on a timeout rather than a
	// prompt. Text then ends with TimeoutWarning.
	TimedOut bool
}

// CommandOption configures a single command.
type CommandOption func(*commandConfig)

type commandConfig struct {
	echo          io.Writer
	fireAndForget bool
}

// WithEcho copies output to w as it arrives.
func WithEcho(w io.Writer) CommandOption {
	return func(c *commandConfig) {
		c.echo = w
	}
}

// FireAndForget resolves the command as soon as it has been sent. Use it for
// control characters and other input that gets no reply.
func FireAndForget() CommandOption {
	return func(c *commandConfig) {
		c.fireAndForget = true
	}
}

// Command is a handle to a command running in the background.
// It resolves exactly once.
type Command struct {
	id     uuid.UUID
	line   string
	ctx    context.Context
	cancel context.CancelFunc
	doneCh chan struct{}

	result Result
	err    error
}

func newCommand(ctx context.Context, line string) *Command {
	cctx, cancel := context.WithCancel(ctx)
	return &Command{
		id:     uuid.New(),
		line:   line,
		ctx:    cctx,
		cancel: cancel,
		doneCh: make(chan struct{}),
	}
}

// ID returns the identifier used to correlate the command in logs.
func (c *Command) ID() uuid.UUID {
	return c.id
}

// Line returns the command line as sent, without the trailing newline.
func (c *Command) Line() string {
	return c.line
}

// Done returns a channel closed when the command has resolved.
func (c *Command) Done() <-chan struct{} {
	return c.doneCh
}

// Wait blocks until the command resolves or ctx is done.
// On a command error the partial result is still returned.
func (c *Command) Wait(ctx context.Context) (Result, error) {
	select {
	case <-c.doneCh:
		return c.result, c.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Cancel stops the command. Output received so far is kept.
func (c *Command) Cancel() {
	c.cancel()
}

func (c *Command) resolve(res Result, err error) {
	c.result = res
	c.err = err
	c.cancel()
	close(c.doneCh)
}

// ExecuteCommand sends line to the remote shell and collects its output in
// the background until the prompt comes back, the command goes idle, or the
// command is cancelled. Commands run one at a time.
func (s *Session) ExecuteCommand(ctx context.Context, line string, opts ...CommandOption) *Command {
	var cfg commandConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	cmd := newCommand(ctx, line)

	s.mu.RLock()
	state, t := s.state, s.transport
	s.mu.RUnlock()

	switch {
	case t == nil:
		cmd.resolve(Result{}, ErrNotConnected)
		return cmd
	case state != StateAuthenticated && state != StateExecuting:
		cmd.resolve(Result{}, ErrNotAuthenticated)
		return cmd
	}

	go func() {
		res, err := s.runCommand(cmd, t, cfg)
		cmd.resolve(res, err)
	}()
	return cmd
}

func (s *Session) runCommand(cmd *Command, t Transport, cfg commandConfig) (Result, error) {
	log := s.logger.With("cmd_id", cmd.id)

	release, err := s.acquireReader(cmd.ctx)
	if err != nil {
		return Result{}, err
	}
	defer release()

	if !s.beginExecuting(t) {
		return Result{}, ErrClosed
	}
	defer s.endExecuting(t)

	log.Debug("sending command", "line", cmd.line)
	if err := t.Send([]byte(cmd.line + "\n")); err != nil {
		return Result{}, fmt.Errorf("send command: %w", err)
	}
	if cfg.fireAndForget {
		return Result{}, nil
	}

	t.SetBlocking(false)
	defer t.SetBlocking(true)

	res, err := s.collect(cmd.ctx, t, cfg.echo)
	switch {
	case err != nil:
		log.Warn("command failed", "error", err)
	case res.TimedOut:
		log.Warn("command timed out", "line", cmd.line)
	default:
		log.Debug("command complete", "bytes", len(res.Text))
	}
	return res, err
}

// collect reads command output until the detector sees the end of it.
func (s *Session) collect(ctx context.Context, t Transport, echo io.Writer) (Result, error) {
	var out strings.Builder
	buf := make([]byte, readBufferSize)

	idle := s.timeouts.Idle
	start := time.Now()
	lastData := start

	for {
		if err := ctx.Err(); err != nil {
			return Result{Text: out.String()}, err
		}
		if time.Since(start) > s.timeouts.CommandCeiling {
			out.WriteString(TimeoutWarning)
			return Result{Text: out.String(), TimedOut: true}, nil
		}

		n, err := t.Receive(buf, 0)
		if err != nil && !errors.Is(err, transport.ErrWouldBlock) {
			return Result{Text: out.String()}, fmt.Errorf("receive: %w", err)
		}

		if n == 0 {
			if time.Since(lastData) > idle {
				out.WriteString(TimeoutWarning)
				return Result{Text: out.String(), TimedOut: true}, nil
			}
			if err := sleepCtx(ctx, s.timeouts.CommandPoll); err != nil {
				return Result{Text: out.String()}, err
			}
			continue
		}

		lastData = time.Now()
		s.touch()

		text, reply := s.decoder.Decode(buf[:n])
		if len(reply) > 0 {
			s.send(t, reply)
		}
		chunk := string(text)
		out.WriteString(chunk)
		if echo != nil && chunk != "" {
			_, _ = io.WriteString(echo, chunk)
		}

		if s.detector.Complete(chunk) {
			if dir := prompt.ParsePwd(out.String()); dir != "" {
				s.setPwd(dir)
			}
			return Result{Text: out.String()}, nil
		}
		if idle < s.timeouts.BuildIdle && s.detector.LongRunning(chunk) {
			idle = s.timeouts.BuildIdle
		}
	}
}

// beginExecuting moves an idle authenticated session to Executing. It fails
// if the connection that started the command is gone.
func (s *Session) beginExecuting(t Transport) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transport != t {
		return false
	}
	if s.state == StateAuthenticated {
		s.state = StateExecuting
	}
	return true
}

func (s *Session) endExecuting(t Transport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transport == t && s.state == StateExecuting {
		s.state = StateAuthenticated
	}
}
