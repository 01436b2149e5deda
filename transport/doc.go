// Package transport implements the raw TCP byte stream used by the Telnet
// session engine.
//
// The transport has no protocol knowledge. It dials, sends, receives with a
// timeout and closes. It also emulates the blocking/non-blocking socket
// toggle the session engine relies on:
//
//   - Blocking mode: Receive waits up to the caller-provided timeout.
//   - Non-blocking mode: Receive polls with a very short deadline and
//     returns ErrWouldBlock when nothing is buffered.
//
// # Usage
//
//	conn, err := transport.Dial(ctx, "devbox", 23, 250*time.Millisecond)
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
//
//	buf := make([]byte, 4096)
//	n, err := conn.Receive(buf, time.Second)
//	switch {
//	case errors.Is(err, transport.ErrWouldBlock):
//	    // nothing yet
//	case errors.Is(err, transport.ErrDisconnected):
//	    // peer went away
//	}
package transport
