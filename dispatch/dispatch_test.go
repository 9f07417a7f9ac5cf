package dispatch

import (
	"errors"
	"testing"

	"github.com/Zereker/fedchat/wire"
)

type origin struct {
	name string
}

func TestDispatch_Order(t *testing.T) {
	d := New[*origin]()
	var calls []int

	for i := 0; i < 3; i++ {
		i := i
		d.Bind(wire.ShapeSignIn, func(msg wire.Message, o *origin) (Action, error) {
			calls = append(calls, i)
			return Continue, nil
		})
	}

	handled, err := d.Dispatch(wire.SignIn{Name: "alice"}, &origin{name: "s1"})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if !handled {
		t.Error("expected handled")
	}
	if len(calls) != 3 || calls[0] != 0 || calls[1] != 1 || calls[2] != 2 {
		t.Errorf("calls = %v, want [0 1 2]", calls)
	}
}

func TestDispatch_StopShortCircuits(t *testing.T) {
	d := New[*origin]()
	var first, second, third bool

	d.Bind(wire.ShapeChatMessage, func(wire.Message, *origin) (Action, error) {
		first = true
		return Continue, nil
	})
	d.Bind(wire.ShapeChatMessage, func(wire.Message, *origin) (Action, error) {
		second = true
		return Stop, nil
	})
	d.Bind(wire.ShapeChatMessage, func(wire.Message, *origin) (Action, error) {
		third = true
		return Continue, nil
	})

	if _, err := d.Dispatch(wire.ChatMessage{}, nil); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if !first || !second {
		t.Error("handlers before Stop did not run")
	}
	if third {
		t.Error("handler after Stop ran")
	}
}

func TestDispatch_StopIsPerMessage(t *testing.T) {
	d := New[*origin]()
	var later int

	d.Bind(wire.ShapeChatMessage, func(msg wire.Message, _ *origin) (Action, error) {
		if msg.(wire.ChatMessage).Contents == "stop" {
			return Stop, nil
		}
		return Continue, nil
	})
	d.Bind(wire.ShapeChatMessage, func(wire.Message, *origin) (Action, error) {
		later++
		return Continue, nil
	})

	d.Dispatch(wire.ChatMessage{Contents: "stop"}, nil)
	d.Dispatch(wire.ChatMessage{Contents: "go"}, nil)

	if later != 1 {
		t.Errorf("later handler ran %d times, want 1", later)
	}
}

func TestDispatch_PassesOrigin(t *testing.T) {
	d := New[*origin]()
	want := &origin{name: "s1"}
	var got *origin

	d.Bind(wire.ShapeSignIn, func(_ wire.Message, o *origin) (Action, error) {
		got = o
		return Stop, nil
	})
	d.Dispatch(wire.SignIn{}, want)

	if got != want {
		t.Errorf("origin = %v, want %v", got, want)
	}
}

func TestDispatch_Unbound(t *testing.T) {
	d := New[*origin]()
	d.Bind(wire.ShapeSignIn, func(wire.Message, *origin) (Action, error) {
		t.Error("wrong chain ran")
		return Continue, nil
	})

	handled, err := d.Dispatch(wire.ServerIdentity{Hostname: "A"}, nil)
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if handled {
		t.Error("expected unhandled")
	}
}

func TestDispatch_ErrorEndsChain(t *testing.T) {
	d := New[*origin]()
	boom := errors.New("boom")
	var after bool

	d.Bind(wire.ShapeSignIn, func(wire.Message, *origin) (Action, error) {
		return Continue, boom
	})
	d.Bind(wire.ShapeSignIn, func(wire.Message, *origin) (Action, error) {
		after = true
		return Continue, nil
	})

	_, err := d.Dispatch(wire.SignIn{}, nil)
	if !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
	if after {
		t.Error("handler after error ran")
	}
}

func TestHandlers(t *testing.T) {
	d := New[int]()
	if d.Handlers(wire.ShapeSignIn) != 0 {
		t.Error("expected empty chain")
	}
	d.Bind(wire.ShapeSignIn, func(wire.Message, int) (Action, error) { return Continue, nil })
	d.Bind(wire.ShapeSignIn, func(wire.Message, int) (Action, error) { return Continue, nil })
	if n := d.Handlers(wire.ShapeSignIn); n != 2 {
		t.Errorf("Handlers = %d, want 2", n)
	}
}
