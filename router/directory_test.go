package router

import (
	"testing"

	"github.com/Zereker/fedchat/wire"
)

func TestDirectory_AddRemove(t *testing.T) {
	d := NewDirectory()
	a, b := &mockSession{}, &mockSession{}

	d.Add("bob", a)
	d.Add("bob", b)
	d.Add("bob", a)

	if n := len(d.Sessions("bob")); n != 2 {
		t.Fatalf("sessions = %d, want 2", n)
	}

	name, ok := d.Remove(a)
	if !ok || name != "bob" {
		t.Errorf("Remove = %q, %v", name, ok)
	}
	if got := d.Sessions("bob"); len(got) != 1 || got[0] != Session(b) {
		t.Errorf("sessions after remove = %v", got)
	}

	if _, ok := d.Remove(a); ok {
		t.Error("second Remove reported success")
	}
	d.Remove(b)
	if d.Online("bob") {
		t.Error("bob still online")
	}
	if len(d.Users()) != 0 {
		t.Errorf("Users = %v", d.Users())
	}
}

func TestDirectory_RenameMovesSession(t *testing.T) {
	d := NewDirectory()
	s := &mockSession{}

	d.Add("alice", s)
	d.Add("bob", s)

	if d.Online("alice") {
		t.Error("alice still online")
	}
	if owner, _ := d.Owner(s); owner != "bob" {
		t.Errorf("owner = %q, want bob", owner)
	}
	if d.Len() != 1 {
		t.Errorf("Len = %d, want 1", d.Len())
	}
}

func TestDirectory_RemoveLastSession(t *testing.T) {
	d := NewDirectory()
	phone, laptop := &mockSession{}, &mockSession{}
	d.Add("alice", phone)
	d.Add("alice", laptop)
	d.Add("bob", &mockSession{})

	if name, ok := d.Remove(phone); !ok || name != "alice" {
		t.Errorf("Remove = %q, %v, want alice, true", name, ok)
	}
	if !d.Online("alice") {
		t.Error("alice should still be online on her laptop")
	}
	d.Remove(laptop)
	if d.Online("alice") {
		t.Error("alice should be offline")
	}
	if _, ok := d.Remove(laptop); ok {
		t.Error("second Remove should report false")
	}
	users := d.Users()
	if len(users) != 1 || users[0] != "bob" {
		t.Errorf("Users = %v, want [bob]", users)
	}
}

func TestDirectory_SessionsIsCopy(t *testing.T) {
	d := NewDirectory()
	d.Add("bob", &mockSession{})

	got := d.Sessions("bob")
	got[0] = nil

	if d.Sessions("bob")[0] == nil {
		t.Error("Sessions exposed internal slice")
	}
}

func TestMailbox_FIFO(t *testing.T) {
	b := NewMailbox(0)
	for _, text := range []string{"a", "b", "c"} {
		b.Append("bob", &wire.ChatMessage{Contents: text})
	}

	q := b.Drain("bob")
	if len(q) != 3 || q[0].Contents != "a" || q[2].Contents != "c" {
		t.Errorf("Drain = %v", q)
	}
	if b.Pending("bob") != 0 || len(b.Drain("bob")) != 0 {
		t.Error("mailbox not empty after drain")
	}
}

func TestMailbox_AppendCopies(t *testing.T) {
	b := NewMailbox(0)
	m := &wire.ChatMessage{Contents: "original"}
	b.Append("bob", m)
	m.Contents = "changed"

	if got := b.Drain("bob")[0].Contents; got != "original" {
		t.Errorf("stored %q, want original", got)
	}
}

func TestMailbox_Limit(t *testing.T) {
	b := NewMailbox(2)
	b.Append("bob", &wire.ChatMessage{Contents: "1"})
	b.Append("bob", &wire.ChatMessage{Contents: "2"})
	if dropped := b.Append("bob", &wire.ChatMessage{Contents: "3"}); dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
	if b.Len() != 2 {
		t.Errorf("Len = %d, want 2", b.Len())
	}
}

func TestMailbox_Requeue(t *testing.T) {
	b := NewMailbox(0)
	b.Append("bob", &wire.ChatMessage{Contents: "new"})
	b.Requeue("bob", []*wire.ChatMessage{{Contents: "old1"}, {Contents: "old2"}})

	q := b.Drain("bob")
	if len(q) != 3 || q[0].Contents != "old1" || q[1].Contents != "old2" || q[2].Contents != "new" {
		t.Errorf("queue = %v", q)
	}
}
