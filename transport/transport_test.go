package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

// listen starts a loopback listener and returns it with its port.
func listen(t *testing.T) (net.Listener, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	return ln, ln.Addr().(*net.TCPAddr).Port
}

// dialPair returns a connected client transport and the server side conn.
func dialPair(t *testing.T) (*TCP, net.Conn) {
	t.Helper()
	ln, port := listen(t)

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- conn
	}()

	client, err := Dial(context.Background(), "127.0.0.1", port, time.Second)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })

	server, ok := <-accepted
	if !ok {
		t.Fatal("accept failed")
	}
	t.Cleanup(func() { server.Close() })
	return client, server
}

func TestDial_Refused(t *testing.T) {
	ln, port := listen(t)
	ln.Close()

	_, err := Dial(context.Background(), "127.0.0.1", port, 200*time.Millisecond)
	if err == nil {
		t.Fatal("expected error dialing closed port")
	}
}

func TestDial_BadHost(t *testing.T) {
	_, err := Dial(context.Background(), "host.invalid", 23, 200*time.Millisecond)
	if err == nil {
		t.Fatal("expected error resolving invalid host")
	}
}

func TestSendReceive(t *testing.T) {
	client, server := dialPair(t)

	if err := client.SendString("echo hi\n"); err != nil {
		t.Fatalf("SendString() error = %v", err)
	}

	buf := make([]byte, 64)
	_ = server.SetReadDeadline(time.Now().Add(time.Second))
	n, err := server.Read(buf)
	if err != nil {
		t.Fatalf("server read: %v", err)
	}
	if got := string(buf[:n]); got != "echo hi\n" {
		t.Errorf("server got %q, want %q", got, "echo hi\n")
	}

	if _, err := server.Write([]byte("hi\n/home/user>")); err != nil {
		t.Fatalf("server write: %v", err)
	}

	n, err = client.Receive(buf, time.Second)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if got := string(buf[:n]); got != "hi\n/home/user>" {
		t.Errorf("Receive() = %q", got)
	}
}

func TestReceive_WouldBlock(t *testing.T) {
	tests := []struct {
		name     string
		blocking bool
		timeout  time.Duration
		maxWait  time.Duration
	}{
		{name: "blocking", blocking: true, timeout: 50 * time.Millisecond, maxWait: time.Second},
		{name: "non-blocking", blocking: false, timeout: 10 * time.Second, maxWait: time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := dialPair(t)
			client.SetBlocking(tt.blocking)
			if client.Blocking() != tt.blocking {
				t.Fatalf("Blocking() = %v, want %v", client.Blocking(), tt.blocking)
			}

			start := time.Now()
			_, err := client.Receive(make([]byte, 16), tt.timeout)
			if !errors.Is(err, ErrWouldBlock) {
				t.Fatalf("Receive() error = %v, want ErrWouldBlock", err)
			}
			if elapsed := time.Since(start); elapsed > tt.maxWait {
				t.Errorf("Receive() took %v, want < %v", elapsed, tt.maxWait)
			}
		})
	}
}

func TestReceive_PeerClosed(t *testing.T) {
	client, server := dialPair(t)
	server.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, err := client.Receive(make([]byte, 16), 100*time.Millisecond)
		if errors.Is(err, ErrWouldBlock) {
			continue
		}
		if !errors.Is(err, ErrDisconnected) {
			t.Fatalf("Receive() error = %v, want ErrDisconnected", err)
		}
		return
	}
	t.Fatal("peer close never observed")
}

func TestClose_Idempotent(t *testing.T) {
	client, _ := dialPair(t)

	if err := client.Close(); err != nil {
		t.Fatalf("first Close() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if err := client.Send([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Send() after Close error = %v, want ErrClosed", err)
	}
	if _, err := client.Receive(make([]byte, 1), time.Millisecond); !errors.Is(err, ErrClosed) {
		t.Errorf("Receive() after Close error = %v, want ErrClosed", err)
	}
}

func TestIsExpectedCloseError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"eof", io.EOF, true},
		{"wrapped eof", errors.Join(errors.New("read"), io.EOF), true},
		{"net closed", net.ErrClosed, true},
		{"closed pipe", io.ErrClosedPipe, true},
		{"other", errors.New("boom"), false},
		{"deadline", &net.OpError{Op: "read", Err: errors.New("i/o timeout")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsExpectedCloseError(tt.err); got != tt.want {
				t.Errorf("IsExpectedCloseError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
