package fedchat

import (
	"context"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/Zereker/fedchat/dispatch"
	"github.com/Zereker/fedchat/router"
	"github.com/Zereker/fedchat/wire"
)

// ErrNoListeners is returned by NewHost without any listener.
var ErrNoListeners = errors.New("no listeners")

// framesPerTurn caps how many frames one session may dispatch per loop
// iteration. Leftovers stay pending and are picked up next iteration
// without waiting on the socket.
const framesPerTurn = 64

// DefaultForwardTimeout bounds a forward when ForwardTimeoutOption is not
// given. The loop is blocked while a forward dials.
const DefaultForwardTimeout = 5 * time.Second

type hostOptions struct {
	logger         Logger
	registry       *wire.Registry
	forwarder      router.Forwarder
	federationPort int
	forwardTimeout time.Duration
	pollTimeout    time.Duration
	writeTimeout   time.Duration
	mailboxLimit   int
}

// HostOption configures a Host.
type HostOption func(*hostOptions)

// HostLoggerOption sets the logger for the host and everything it owns.
func HostLoggerOption(logger Logger) HostOption {
	return func(o *hostOptions) {
		o.logger = logger
	}
}

// HostRegistryOption sets the message registry. Defaults to wire.Standard().
func HostRegistryOption(registry *wire.Registry) HostOption {
	return func(o *hostOptions) {
		o.registry = registry
	}
}

// HostForwarderOption replaces the built-in Relay.
func HostForwarderOption(forwarder router.Forwarder) HostOption {
	return func(o *hostOptions) {
		o.forwarder = forwarder
	}
}

// FederationPortOption sets the port the built-in Relay dials. Defaults
// to DefaultPort.
func FederationPortOption(port int) HostOption {
	return func(o *hostOptions) {
		o.federationPort = port
	}
}

// ForwardTimeoutOption bounds dialing and writing to a remote host.
// Defaults to DefaultForwardTimeout.
func ForwardTimeoutOption(timeout time.Duration) HostOption {
	return func(o *hostOptions) {
		o.forwardTimeout = timeout
	}
}

// HostPollTimeoutOption bounds each wait of the event loop.
func HostPollTimeoutOption(timeout time.Duration) HostOption {
	return func(o *hostOptions) {
		o.pollTimeout = timeout
	}
}

// HostWriteTimeoutOption bounds writes to client sessions. A session whose
// write times out is treated as unreachable for that message.
func HostWriteTimeoutOption(timeout time.Duration) HostOption {
	return func(o *hostOptions) {
		o.writeTimeout = timeout
	}
}

// HostMailboxLimitOption caps each user's mailbox.
func HostMailboxLimitOption(limit int) HostOption {
	return func(o *hostOptions) {
		o.mailboxLimit = limit
	}
}

// Host is a chat server. One goroutine runs its loop and owns all of its
// state: sessions, directory and mailbox are never touched concurrently.
type Host struct {
	hostname   string
	listeners  []*Listener
	sessions   []*Stream
	mux        *Multiplexer
	dispatcher *dispatch.Dispatcher[router.Session]
	router     *router.Router
	relay      *Relay
	logger     Logger
	opts       hostOptions
}

// NewHost builds a host named hostname serving listeners. An empty
// hostname falls back to the machine's hostname.
func NewHost(hostname string, listeners []*Listener, opt ...HostOption) (*Host, error) {
	if len(listeners) == 0 {
		return nil, ErrNoListeners
	}

	var opts hostOptions
	for _, o := range opt {
		o(&opts)
	}
	if opts.logger == nil {
		opts.logger = defaultLogger()
	}
	if opts.registry == nil {
		opts.registry = wire.Standard()
	}
	if opts.federationPort <= 0 {
		opts.federationPort = DefaultPort
	}
	if opts.forwardTimeout <= 0 {
		opts.forwardTimeout = DefaultForwardTimeout
	}

	if hostname == "" {
		name, err := os.Hostname()
		if err != nil {
			return nil, errors.Wrap(err, "hostname")
		}
		hostname = name
	}

	mux, err := NewMultiplexer(MuxTimeoutOption(opts.pollTimeout), MuxLoggerOption(opts.logger))
	if err != nil {
		return nil, err
	}

	h := &Host{
		hostname:   hostname,
		listeners:  listeners,
		mux:        mux,
		dispatcher: dispatch.New[router.Session](),
		logger:     opts.logger,
		opts:       opts,
	}

	forwarder := opts.forwarder
	if forwarder == nil {
		h.relay = NewRelay(opts.federationPort, opts.forwardTimeout,
			CodecOption(opts.registry),
			LoggerOption(opts.logger),
			WriteTimeoutOption(opts.forwardTimeout),
		)
		forwarder = h.relay
	}

	h.router = router.New(hostname, forwarder,
		router.LoggerOption(opts.logger),
		router.MailboxLimitOption(opts.mailboxLimit),
		router.ForwardTimeoutOption(opts.forwardTimeout),
	)
	h.router.Bind(h.dispatcher)
	return h, nil
}

// Serve runs the event loop until ctx is canceled, then returns ctx.Err().
func (h *Host) Serve(ctx context.Context) error {
	for _, l := range h.listeners {
		h.logger.Info("host listening", "hostname", h.hostname, "network", l.Network(), "addr", l.Addr())
	}

	stop := context.AfterFunc(ctx, h.mux.Wake)
	defer stop()

	for {
		if err := ctx.Err(); err != nil {
			h.logger.Info("host stopped", "hostname", h.hostname)
			return err
		}
		if err := h.Step(); err != nil {
			h.logger.Error("event loop failed", "error", err)
			return err
		}
	}
}

// Step runs one iteration of the event loop: wait, accept, receive and
// dispatch, prune. Only listener failures are returned.
func (h *Host) Step() error {
	_, err := h.mux.AwaitEvent(h.sessions, h.listeners)
	var sockErr *SocketError
	switch {
	case errors.As(err, &sockErr) && sockErr.Stream != nil:
		h.logger.Warn("dropping session", "addr", sockErr.Stream.Addr(), "error", err)
		sockErr.Stream.Close()
	case err != nil:
		return err
	}

	for _, l := range h.listeners {
		streams, err := l.AcceptPending()
		for _, s := range streams {
			h.adopt(s)
		}
		if err != nil {
			return errors.Wrapf(err, "accept on %s", l.Addr())
		}
	}

	for _, s := range h.sessions {
		h.receive(s)
	}
	h.prune()
	return nil
}

// adopt makes an accepted stream a session, speaking the host's registry
// and honoring its write timeout.
func (h *Host) adopt(s *Stream) {
	s.opts.codec = h.opts.registry
	if h.opts.writeTimeout > 0 {
		s.opts.writeTimeout = h.opts.writeTimeout
	}
	h.sessions = append(h.sessions, s)
	h.logger.Debug("session opened", "addr", s.Addr(), "sessions", len(h.sessions))
}

// receive dispatches the frames s has available. Undecodable input closes
// s; other sessions are unaffected. A closed stream is drained completely,
// since prune forgets it right after.
func (h *Host) receive(s *Stream) {
	for i := 0; i < framesPerTurn || s.Closed(); i++ {
		msg, err := s.ReceiveMessage()
		if err != nil {
			if !errors.Is(err, ErrSocketClosed) {
				h.logger.Warn("dropping session", "addr", s.Addr(), "error", err)
			}
			s.Close()
			return
		}
		if msg == nil {
			return
		}

		handled, err := h.dispatcher.Dispatch(msg, s)
		if err != nil {
			h.logger.Warn("handler failed", "addr", s.Addr(), "shape", msg.Shape(), "error", err)
			continue
		}
		if !handled {
			h.logger.Debug("unhandled message", "addr", s.Addr(), "shape", msg.Shape())
		}
	}
}

func (h *Host) prune() {
	live := h.sessions[:0]
	for _, s := range h.sessions {
		if s.Closed() {
			h.router.Disconnect(s)
			h.logger.Debug("session closed", "addr", s.Addr())
			continue
		}
		live = append(live, s)
	}
	for i := len(live); i < len(h.sessions); i++ {
		h.sessions[i] = nil
	}
	h.sessions = live
}

// Hostname returns the name the host answers to.
func (h *Host) Hostname() string {
	return h.hostname
}

// Router exposes the host's router.
func (h *Host) Router() *router.Router {
	return h.router
}

// Sessions returns the number of open sessions.
func (h *Host) Sessions() int {
	return len(h.sessions)
}

// Close closes listeners, sessions and outbound relay connections. Call it
// after Serve has returned.
func (h *Host) Close() error {
	var first error
	for _, l := range h.listeners {
		if err := l.Close(); err != nil && first == nil {
			first = err
		}
	}
	for _, s := range h.sessions {
		s.Close()
	}
	h.sessions = nil
	if h.relay != nil {
		h.relay.Close()
	}
	if err := h.mux.Close(); err != nil && first == nil {
		first = err
	}
	return first
}
