package router

import "github.com/Zereker/fedchat/wire"

// Mailbox queues chat messages for users that could not be reached. Each
// queue is FIFO. A non-zero limit caps every queue; the oldest message is
// dropped to make room.
type Mailbox struct {
	limit  int
	queues map[string][]*wire.ChatMessage
}

// NewMailbox returns an empty mailbox. limit <= 0 means unbounded.
func NewMailbox(limit int) *Mailbox {
	return &Mailbox{
		limit:  limit,
		queues: make(map[string][]*wire.ChatMessage),
	}
}

// Append queues a copy of m for name. It reports how many old messages
// were dropped to respect the limit.
func (b *Mailbox) Append(name string, m *wire.ChatMessage) int {
	stored := *m
	q := append(b.queues[name], &stored)
	dropped := 0
	if b.limit > 0 && len(q) > b.limit {
		dropped = len(q) - b.limit
		q = append([]*wire.ChatMessage(nil), q[dropped:]...)
	}
	b.queues[name] = q
	return dropped
}

// Drain returns name's queue in arrival order and empties it.
func (b *Mailbox) Drain(name string) []*wire.ChatMessage {
	q := b.queues[name]
	delete(b.queues, name)
	return q
}

// Requeue puts messages back at the front of name's queue, ahead of
// anything appended since they were drained.
func (b *Mailbox) Requeue(name string, messages []*wire.ChatMessage) {
	if len(messages) == 0 {
		return
	}
	q := append(append([]*wire.ChatMessage(nil), messages...), b.queues[name]...)
	if b.limit > 0 && len(q) > b.limit {
		q = q[len(q)-b.limit:]
	}
	b.queues[name] = q
}

// Pending returns how many messages wait for name.
func (b *Mailbox) Pending(name string) int {
	return len(b.queues[name])
}

// Len returns the number of queued messages across all users.
func (b *Mailbox) Len() int {
	n := 0
	for _, q := range b.queues {
		n += len(q)
	}
	return n
}
