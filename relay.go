package fedchat

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/Zereker/fedchat/router"
	"github.com/Zereker/fedchat/wire"
)

var _ router.Forwarder = (*Relay)(nil)

// Relay forwards chat messages to the hosts that own their recipients. It
// dials every host on the same well-known port and keeps one outbound
// stream per host. There is no acknowledgement and no retry.
//
// A Relay is driven by its host's event loop and is not safe for
// concurrent use.
type Relay struct {
	port        int
	dialTimeout time.Duration
	opts        []Option
	logger      Logger

	streams map[string]*Stream
}

// NewRelay returns a relay dialing port on remote hosts. dialTimeout of
// zero leaves only the forward context to bound a dial. opt configures
// the outbound streams.
func NewRelay(port int, dialTimeout time.Duration, opt ...Option) *Relay {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	checkOptions(&opts)

	return &Relay{
		port:        port,
		dialTimeout: dialTimeout,
		opts:        opt,
		logger:      opts.logger,
		streams:     make(map[string]*Stream),
	}
}

// Forward sends msg, unmodified, to host.
func (r *Relay) Forward(ctx context.Context, host string, msg *wire.ChatMessage) error {
	s, err := r.stream(ctx, host)
	if err != nil {
		return err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = s.SetWriteDeadline(deadline)
		defer s.SetWriteDeadline(time.Time{})
	}
	if err := s.SendMessage(*msg); err != nil {
		s.Close()
		delete(r.streams, host)
		return errors.Wrapf(err, "forward to %s", host)
	}
	return nil
}

// stream returns a live outbound stream to host, dialing if needed.
func (r *Relay) stream(ctx context.Context, host string) (*Stream, error) {
	if s, ok := r.streams[host]; ok {
		// Remote hosts never write on relay connections, so a read only
		// tells us whether the peer is still there.
		if _, err := s.Read(); err == nil {
			return s, nil
		}
		r.logger.Debug("relay connection lost", "host", host)
		s.Close()
		delete(r.streams, host)
	}

	if r.dialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.dialTimeout)
		defer cancel()
	}
	address := net.JoinHostPort(host, strconv.Itoa(r.port))
	s, err := Dial(ctx, "tcp", address, r.opts...)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("relay connected", "host", host, "addr", address)
	r.streams[host] = s
	return s, nil
}

// Connections returns the number of cached outbound streams.
func (r *Relay) Connections() int {
	return len(r.streams)
}

// Close closes every outbound stream.
func (r *Relay) Close() error {
	for host, s := range r.streams {
		s.Close()
		delete(r.streams, host)
	}
	return nil
}
