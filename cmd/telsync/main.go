// telsync keeps a local source tree in sync with a remote application
// server over FTP and drives the server's shell over Telnet.
package main

import (
	"context"
	"os"
	"os/signal"
)

func main() {
	// Trap Ctrl+C for clean shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	code := execute(ctx, newCLI(os.Stdin, os.Stdout, os.Stderr), os.Args[1:])
	cancel()
	os.Exit(code)
}
