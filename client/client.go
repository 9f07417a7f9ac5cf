// Package client signs a user in to a chat host and exchanges messages
// with it.
//
// A Client runs one receiver goroutine that polls the connection and hands
// chat messages over a channel. The goroutine reading that channel owns
// whatever state it builds from them, typically a Contacts log, so nothing
// is shared between the two.
package client

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/Zereker/fedchat"
	"github.com/Zereker/fedchat/wire"
)

// Errors returned by Connect.
var (
	// ErrUnexpectedMessage is returned when the host answers a sign-in with
	// something other than its identity.
	ErrUnexpectedMessage = errors.New("unexpected message")
	// ErrHandshakeTimeout is returned when the host does not identify
	// itself in time.
	ErrHandshakeTimeout = errors.New("handshake timeout")
)

// Client is a signed-in user.
type Client struct {
	stream *fedchat.Stream
	self   wire.Identity
	logger fedchat.Logger
	opts   options

	messages chan *wire.ChatMessage
	cancel   context.CancelFunc
	group    *errgroup.Group

	closeOnce sync.Once
	err       error
}

// Connect dials address, signs in as username and waits for the host to
// identify itself. The host's name becomes the client's own host.
func Connect(ctx context.Context, address, username string, opt ...Option) (*Client, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	checkOptions(&opts)

	stream, err := fedchat.Dial(ctx, opts.network, address,
		fedchat.CodecOption(opts.registry),
		fedchat.LoggerOption(opts.logger),
	)
	if err != nil {
		return nil, err
	}

	if err := stream.SendMessage(wire.SignIn{Name: username}); err != nil {
		stream.Close()
		return nil, errors.Wrap(err, "sign in")
	}
	hostname, err := awaitIdentity(ctx, stream, opts)
	if err != nil {
		stream.Close()
		return nil, err
	}
	opts.logger.Info("signed in", "user", username, "host", hostname, "addr", address)

	receiveCtx, cancel := context.WithCancel(context.Background())
	group, groupCtx := errgroup.WithContext(receiveCtx)
	c := &Client{
		stream:   stream,
		self:     wire.Identity{Name: username, Host: hostname},
		logger:   opts.logger,
		opts:     opts,
		messages: make(chan *wire.ChatMessage, opts.bufferSize),
		cancel:   cancel,
		group:    group,
	}
	group.Go(func() error {
		return c.receiveLoop(groupCtx)
	})
	return c, nil
}

// awaitIdentity waits for the ServerIdentity reply to a sign-in.
func awaitIdentity(ctx context.Context, stream *fedchat.Stream, opts options) (string, error) {
	mux, err := fedchat.NewMultiplexer(
		fedchat.MuxTimeoutOption(opts.pollInterval),
		fedchat.MuxLoggerOption(opts.logger),
	)
	if err != nil {
		return "", err
	}
	defer mux.Close()

	deadline := time.Now().Add(opts.handshakeTimeout)
	streams := []*fedchat.Stream{stream}
	for {
		msg, err := stream.ReceiveMessage()
		if err != nil {
			return "", errors.Wrap(err, "handshake")
		}
		if msg != nil {
			id, ok := msg.(*wire.ServerIdentity)
			if !ok {
				return "", errors.Wrapf(ErrUnexpectedMessage, "got %s", msg.Shape())
			}
			return id.Hostname, nil
		}

		if err := ctx.Err(); err != nil {
			return "", err
		}
		if time.Now().After(deadline) {
			return "", errors.Wrapf(ErrHandshakeTimeout, "after %s", opts.handshakeTimeout)
		}
		if _, err := mux.AwaitEvent(streams, nil); err != nil {
			return "", err
		}
	}
}

// receiveLoop polls the stream every interval and forwards chat messages.
// It closes the messages channel on return.
func (c *Client) receiveLoop(ctx context.Context) error {
	defer close(c.messages)

	ticker := time.NewTicker(c.opts.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		for {
			msg, err := c.stream.ReceiveMessage()
			if err != nil {
				c.logger.Info("connection lost", "addr", c.stream.Addr(), "error", err)
				return err
			}
			if msg == nil {
				break
			}

			chat, ok := msg.(*wire.ChatMessage)
			if !ok {
				c.logger.Debug("ignoring message", "shape", msg.Shape())
				continue
			}
			select {
			case c.messages <- chat:
			case <-ctx.Done():
				c.logger.Warn("message dropped on shutdown", "from", chat.Sender.String())
				return nil
			}
		}
	}
}

// Messages returns the channel chat messages arrive on. It is closed when
// the receiver stops, after Close or when the connection is lost.
func (c *Client) Messages() <-chan *wire.ChatMessage {
	return c.messages
}

// Self returns the client's own identity.
func (c *Client) Self() wire.Identity {
	return c.self
}

// Send addresses contents to user@host and sends it through the client's
// host. Delivery is best effort; there is no receipt.
func (c *Client) Send(host, user, contents string) (*wire.ChatMessage, error) {
	msg := &wire.ChatMessage{
		Sender:   c.self,
		To:       wire.Identity{Name: user, Host: host},
		Contents: contents,
	}
	if err := c.stream.SendMessage(*msg); err != nil {
		return nil, errors.Wrapf(err, "send to %s", msg.To)
	}
	return msg, nil
}

// Echo sends every incoming message back to its sender until ctx is done
// or the connection is lost.
func (c *Client) Echo(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-c.messages:
			if !ok {
				return c.Wait()
			}
			reply := wire.ChatMessage{Sender: msg.To, To: msg.Sender, Contents: msg.Contents}
			if err := c.stream.SendMessage(reply); err != nil {
				return errors.Wrapf(err, "echo to %s", reply.To)
			}
			c.logger.Debug("echoed", "to", reply.To.String())
		}
	}
}

// Wait blocks until the receiver stops and returns why it stopped. A
// receiver stopped by Close reports nil.
func (c *Client) Wait() error {
	return c.group.Wait()
}

// Close stops the receiver, waits for it and closes the connection. Safe
// to call multiple times.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		err := c.group.Wait()
		if err != nil && !errors.Is(err, fedchat.ErrSocketClosed) {
			c.err = err
		}
		if cerr := c.stream.Close(); c.err == nil {
			c.err = cerr
		}
	})
	return c.err
}
