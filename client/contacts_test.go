package client

import (
	"testing"

	"github.com/Zereker/fedchat/wire"
)

func TestContacts_Record(t *testing.T) {
	alice := wire.Identity{Name: "alice", Host: "alpha"}
	bob := wire.Identity{Name: "bob", Host: "beta"}
	carol := wire.Identity{Name: "carol", Host: "alpha"}
	c := NewContacts(alice)

	if peer := c.Record(&wire.ChatMessage{Sender: alice, To: bob, Contents: "hi"}); peer != bob {
		t.Errorf("peer = %v, want %v", peer, bob)
	}
	if peer := c.Record(&wire.ChatMessage{Sender: bob, To: alice, Contents: "hey"}); peer != bob {
		t.Errorf("peer = %v, want %v", peer, bob)
	}
	c.Record(&wire.ChatMessage{Sender: carol, To: alice, Contents: "yo"})

	list := c.List()
	if len(list) != 2 || list[0] != bob || list[1] != carol {
		t.Fatalf("List = %v, want [bob carol]", list)
	}
	if c.Count(bob) != 2 {
		t.Errorf("Count(bob) = %d, want 2", c.Count(bob))
	}

	msgs := c.Messages(bob)
	if len(msgs) != 2 || msgs[0].Contents != "hi" || msgs[1].Contents != "hey" {
		t.Errorf("Messages(bob) = %v", msgs)
	}
}

func TestContacts_Add(t *testing.T) {
	alice := wire.Identity{Name: "alice", Host: "alpha"}
	bob := wire.Identity{Name: "bob", Host: "beta"}
	c := NewContacts(alice)

	c.Add(bob)
	c.Add(bob)

	if list := c.List(); len(list) != 1 {
		t.Errorf("List = %v, want one contact", list)
	}
	if c.Count(bob) != 0 {
		t.Errorf("Count = %d, want 0", c.Count(bob))
	}
}

func TestContacts_SelfConversation(t *testing.T) {
	alice := wire.Identity{Name: "alice", Host: "alpha"}
	c := NewContacts(alice)

	if peer := c.Record(&wire.ChatMessage{Sender: alice, To: alice, Contents: "note"}); peer != alice {
		t.Errorf("peer = %v, want %v", peer, alice)
	}
}

func TestContacts_CopiesResults(t *testing.T) {
	alice := wire.Identity{Name: "alice", Host: "alpha"}
	bob := wire.Identity{Name: "bob", Host: "beta"}
	c := NewContacts(alice)
	c.Record(&wire.ChatMessage{Sender: bob, To: alice, Contents: "hi"})

	c.Messages(bob)[0].Contents = "changed"
	c.List()[0] = alice

	if c.Messages(bob)[0].Contents != "hi" {
		t.Error("Messages exposed the log")
	}
	if c.List()[0] != bob {
		t.Error("List exposed the order")
	}
}
