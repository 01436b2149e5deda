// Package session runs an interactive shell over Telnet.
//
// A Session owns one connection and one background reader goroutine. The
// reader drains the socket for as long as the connection lives: it refuses
// every option negotiation, scripts the login through string triggers and
// sends a keep-alive space when the link has been idle for minutes. While a
// command runs the reader steps aside, so only the command sees the
// command's output.
//
// # State Machine
//
//	Disconnected → Connecting → Connected → Authenticated ⇄ Executing
//	      ↑                                       │
//	      └──────────── Close / peer hangup ──────┘
//
// # Command Completion
//
// The remote shell has no framing. A command is complete when a chunk of its
// output contains the prompt character (and not the escape marker that some
// remote scripts wrap around prompt-like text). A command that stays silent
// longer than the idle timeout ends with TimeoutWarning appended; build
// output extends the idle timeout for that command. The heuristic lives
// behind prompt.Detector.
//
// # Usage
//
//	s := session.New(session.WithLogger(logger))
//	if err := s.Connect(ctx, "devbox", 23); err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	if err := s.Login(ctx, "user", "secret"); err != nil {
//	    return err
//	}
//	if err := s.ExecuteInitialScript(ctx, "setenv.sh"); err != nil {
//	    return err
//	}
//
//	res, err := s.ExecuteCommand(ctx, "ls -l").Wait(ctx)
package session
