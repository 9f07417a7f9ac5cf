package client

import "github.com/Zereker/fedchat/wire"

// Contacts is a per-peer message log. It is not safe for concurrent use;
// the goroutine that reads Client.Messages owns it.
type Contacts struct {
	self  wire.Identity
	order []wire.Identity
	logs  map[wire.Identity][]wire.ChatMessage
}

// NewContacts returns an empty log for self.
func NewContacts(self wire.Identity) *Contacts {
	return &Contacts{
		self: self,
		logs: make(map[wire.Identity][]wire.ChatMessage),
	}
}

// Add makes sure id is listed, even without messages.
func (c *Contacts) Add(id wire.Identity) {
	if _, ok := c.logs[id]; ok {
		return
	}
	c.logs[id] = nil
	c.order = append(c.order, id)
}

// Record files m under the peer it was exchanged with and returns that peer.
func (c *Contacts) Record(m *wire.ChatMessage) wire.Identity {
	peer := m.Sender
	if m.Sender == c.self {
		peer = m.To
	}
	c.Add(peer)
	c.logs[peer] = append(c.logs[peer], *m)
	return peer
}

// List returns the contacts in the order they were first seen.
func (c *Contacts) List() []wire.Identity {
	return append([]wire.Identity(nil), c.order...)
}

// Messages returns the conversation with id, oldest first.
func (c *Contacts) Messages(id wire.Identity) []wire.ChatMessage {
	return append([]wire.ChatMessage(nil), c.logs[id]...)
}

// Count returns the number of messages exchanged with id.
func (c *Contacts) Count(id wire.Identity) int {
	return len(c.logs[id])
}
