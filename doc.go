// Package telsync keeps a local source tree in sync with a remote
// application server and drives the server's shell over Telnet.
//
// The module is organized into layers:
//
//   - transport: raw TCP connection with a blocking toggle and receive timeouts
//   - telnet: stateful IAC decoder and negotiation refusals
//   - trigger: text triggers fired by incoming output
//   - prompt: prompt detection and working directory parsing
//   - session: the Telnet session (reader goroutine, login, commands)
//   - config: TOML configuration with host entries
//   - monitor: local change detection (snapshot, git status, git branch diff)
//   - remote: FTP transfers
//   - app: the application model tying the above together
//
// The telsync command in cmd/telsync is the user-facing entry point.
//
// # Basic Usage
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
//
//	res, err := s.ExecuteCommand(ctx, "make all").Wait(ctx)
//	if err != nil {
//	    return err
//	}
//	fmt.Print(res.Text)
//
// # Command Completion
//
// The remote shell has no framing. A command is complete when a chunk of its
// output contains the shell prompt character and not the escape marker that
// some remote scripts wrap around prompt-like text. Build output does not
// end a command; it only extends the idle timeout. A command that stays
// silent past its idle timeout returns the output collected so far with a
// warning appended.
package telsync
