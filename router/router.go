// Package router holds a host's business logic: the directory of signed-in
// users, the mailbox of messages waiting for offline users, local delivery
// and single-hop federation forwarding.
//
// The router is not safe for concurrent use. A host drives it from its
// single event loop.
package router

import (
	"context"

	"github.com/pkg/errors"

	"github.com/Zereker/fedchat/dispatch"
	"github.com/Zereker/fedchat/wire"
)

// ErrUnexpectedMessage is returned when a handler is given a message of a
// shape it was not bound for.
var ErrUnexpectedMessage = errors.New("unexpected message")

// Session is a live client or peer connection.
type Session interface {
	SendMessage(wire.Message) error
	Closed() bool
}

// Forwarder relays a message to the host that owns its destination.
type Forwarder interface {
	Forward(ctx context.Context, host string, msg *wire.ChatMessage) error
}

// Stats is a point-in-time snapshot of router state.
type Stats struct {
	Users    int
	Sessions int
	Queued   int
}

// Router routes chat messages for one host.
type Router struct {
	hostname  string
	directory *Directory
	mailbox   *Mailbox
	forwarder Forwarder
	opts      options
}

// New returns a router for hostname. forwarder may be nil, in which case
// messages for other hosts are logged and dropped.
func New(hostname string, forwarder Forwarder, opt ...Option) *Router {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	return &Router{
		hostname:  hostname,
		directory: NewDirectory(),
		mailbox:   NewMailbox(opts.mailboxLimit),
		forwarder: forwarder,
		opts:      opts,
	}
}

// Bind registers the router's handlers. ChatMessage gets local delivery
// first; it stops the chain for local recipients, so remote forwarding only
// sees messages for other hosts.
func (r *Router) Bind(d *dispatch.Dispatcher[Session]) {
	d.Bind(wire.ShapeSignIn, r.HandleSignIn)
	d.Bind(wire.ShapeChatMessage, r.DeliverLocal)
	d.Bind(wire.ShapeChatMessage, r.ForwardRemote)
}

// Hostname returns the name the router considers local.
func (r *Router) Hostname() string {
	return r.hostname
}

// Directory exposes the user directory.
func (r *Router) Directory() *Directory {
	return r.directory
}

// Mailbox exposes the pending-message store.
func (r *Router) Mailbox() *Mailbox {
	return r.mailbox
}

// HandleSignIn signs the session in, replies with the host's identity and
// flushes the user's mailbox to it in arrival order.
func (r *Router) HandleSignIn(msg wire.Message, s Session) (dispatch.Action, error) {
	var in wire.SignIn
	switch m := msg.(type) {
	case *wire.SignIn:
		in = *m
	case wire.SignIn:
		in = m
	default:
		return dispatch.Stop, errors.Wrapf(ErrUnexpectedMessage, "%T", msg)
	}

	r.directory.Add(in.Name, s)
	r.opts.logger.Info("user signed in", "user", in.Name, "sessions", len(r.directory.Sessions(in.Name)))

	if err := s.SendMessage(wire.ServerIdentity{Hostname: r.hostname}); err != nil {
		r.opts.logger.Warn("identity reply failed", "user", in.Name, "error", err)
		r.directory.Remove(s)
		return dispatch.Stop, nil
	}

	queued := r.mailbox.Drain(in.Name)
	for i, m := range queued {
		if err := s.SendMessage(*m); err != nil {
			r.opts.logger.Warn("mailbox flush failed", "user", in.Name, "remaining", len(queued)-i, "error", err)
			r.mailbox.Requeue(in.Name, queued[i:])
			return dispatch.Stop, nil
		}
	}
	if len(queued) > 0 {
		r.opts.logger.Debug("mailbox flushed", "user", in.Name, "messages", len(queued))
	}
	return dispatch.Stop, nil
}

// DeliverLocal delivers messages addressed to this host and stops the
// chain. Messages for other hosts pass through untouched.
func (r *Router) DeliverLocal(msg wire.Message, _ Session) (dispatch.Action, error) {
	chat, err := chatMessage(msg)
	if err != nil {
		return dispatch.Stop, err
	}
	if chat.To.Host != r.hostname {
		return dispatch.Continue, nil
	}
	r.Deliver(chat)
	return dispatch.Stop, nil
}

// Deliver sends chat to every live session of its recipient and returns
// the number of successful sends. With no success the message is queued
// in the recipient's mailbox.
func (r *Router) Deliver(chat *wire.ChatMessage) int {
	delivered := 0
	for _, s := range r.directory.Sessions(chat.To.Name) {
		if s.Closed() {
			continue
		}
		if err := s.SendMessage(*chat); err != nil {
			r.opts.logger.Debug("delivery failed", "to", chat.To.String(), "error", err)
			continue
		}
		delivered++
	}

	if delivered == 0 {
		if dropped := r.mailbox.Append(chat.To.Name, chat); dropped > 0 {
			r.opts.logger.Warn("mailbox full, dropped oldest", "user", chat.To.Name, "dropped", dropped)
		}
		r.opts.logger.Debug("message queued", "to", chat.To.String(), "pending", r.mailbox.Pending(chat.To.Name))
	}
	return delivered
}

// ForwardRemote relays messages for other hosts, once, without waiting
// for any acknowledgement. Failures are logged and the message dropped.
func (r *Router) ForwardRemote(msg wire.Message, _ Session) (dispatch.Action, error) {
	chat, err := chatMessage(msg)
	if err != nil {
		return dispatch.Stop, err
	}
	if chat.To.Host == r.hostname {
		return dispatch.Continue, nil
	}

	if r.forwarder == nil {
		r.opts.logger.Warn("no forwarder, message dropped", "to", chat.To.String())
		return dispatch.Stop, nil
	}

	ctx := context.Background()
	if r.opts.forwardTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.forwardTimeout)
		defer cancel()
	}
	if err := r.forwarder.Forward(ctx, chat.To.Host, chat); err != nil {
		r.opts.logger.Warn("forward failed, message dropped", "to", chat.To.String(), "error", err)
		return dispatch.Stop, nil
	}
	r.opts.logger.Debug("message forwarded", "from", chat.Sender.String(), "to", chat.To.String())
	return dispatch.Stop, nil
}

// Disconnect forgets a session.
func (r *Router) Disconnect(s Session) {
	if name, ok := r.directory.Remove(s); ok {
		r.opts.logger.Info("user signed out", "user", name)
	}
}

// Stats returns a snapshot of the router's state.
func (r *Router) Stats() Stats {
	return Stats{
		Users:    len(r.directory.Users()),
		Sessions: r.directory.Len(),
		Queued:   r.mailbox.Len(),
	}
}

func chatMessage(msg wire.Message) (*wire.ChatMessage, error) {
	switch m := msg.(type) {
	case *wire.ChatMessage:
		return m, nil
	case wire.ChatMessage:
		return &m, nil
	default:
		return nil, errors.Wrapf(ErrUnexpectedMessage, "%T", msg)
	}
}
