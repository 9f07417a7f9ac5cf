package fedchat

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/Zereker/fedchat/wire"
)

// relayTarget is a bare TCP listener standing in for a remote host.
type relayTarget struct {
	ln    net.Listener
	port  int
	conns chan net.Conn
}

func newRelayTarget(t *testing.T) *relayTarget {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	rt := &relayTarget{
		ln:    ln,
		port:  ln.Addr().(*net.TCPAddr).Port,
		conns: make(chan net.Conn, 4),
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			rt.conns <- conn
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return rt
}

func (rt *relayTarget) accept(t *testing.T) *Stream {
	t.Helper()

	select {
	case conn := <-rt.conns:
		s, err := NewStream(conn)
		if err != nil {
			t.Fatalf("NewStream failed: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("relay never connected")
		return nil
	}
}

func testChat(contents string) *wire.ChatMessage {
	return &wire.ChatMessage{
		Sender:   wire.Identity{Name: "alice", Host: "alpha"},
		To:       wire.Identity{Name: "bob", Host: "127.0.0.1"},
		Contents: contents,
	}
}

func TestRelay_Forward(t *testing.T) {
	rt := newRelayTarget(t)
	r := NewRelay(rt.port, time.Second)
	defer r.Close()

	msg := testChat("one")
	if err := r.Forward(context.Background(), "127.0.0.1", msg); err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	remote := rt.accept(t)
	if got := receiveChat(t, remote); *got != *msg {
		t.Errorf("got %v, want %v", got, msg)
	}

	// the connection is reused
	if err := r.Forward(context.Background(), "127.0.0.1", testChat("two")); err != nil {
		t.Fatalf("second Forward failed: %v", err)
	}
	if got := receiveChat(t, remote); got.Contents != "two" {
		t.Errorf("got %q, want two", got.Contents)
	}
	if r.Connections() != 1 {
		t.Errorf("Connections = %d, want 1", r.Connections())
	}
}

func TestRelay_Reconnect(t *testing.T) {
	rt := newRelayTarget(t)
	r := NewRelay(rt.port, time.Second)
	defer r.Close()

	if err := r.Forward(context.Background(), "127.0.0.1", testChat("one")); err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	first := rt.accept(t)
	receiveChat(t, first)

	first.Close()
	time.Sleep(50 * time.Millisecond)

	if err := r.Forward(context.Background(), "127.0.0.1", testChat("two")); err != nil {
		t.Fatalf("Forward after peer close failed: %v", err)
	}
	second := rt.accept(t)
	if got := receiveChat(t, second); got.Contents != "two" {
		t.Errorf("got %q, want two", got.Contents)
	}
	if r.Connections() != 1 {
		t.Errorf("Connections = %d, want 1", r.Connections())
	}
}

func TestRelay_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	ln.Close()

	r := NewRelay(port, time.Second)
	defer r.Close()

	if err := r.Forward(context.Background(), "127.0.0.1", testChat("lost")); err == nil {
		t.Error("expected error forwarding to a closed port")
	}
	if r.Connections() != 0 {
		t.Errorf("Connections = %d, want 0", r.Connections())
	}
}

func TestRelay_Close(t *testing.T) {
	rt := newRelayTarget(t)
	r := NewRelay(rt.port, time.Second)

	if err := r.Forward(context.Background(), "127.0.0.1", testChat("one")); err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	remote := rt.accept(t)

	if err := r.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if r.Connections() != 0 {
		t.Errorf("Connections = %d, want 0", r.Connections())
	}

	receiveChat(t, remote)
	if _, err := receiveMessage(t, remote); err == nil {
		t.Error("remote should see the relay hang up")
	}
}
