package fedchat

import (
	"net"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// DefaultPort is the well-known port every host listens on and every host
// dials when forwarding.
const DefaultPort = 3333

// ErrUnsupportedNetwork is returned by Listen for networks other than TCP
// and Unix stream sockets.
var ErrUnsupportedNetwork = errors.New("unsupported network")

// acceptTimeout bounds a single Accept after poll reported the listener
// readable, in case the pending connection vanished in between.
const acceptTimeout = 50 * time.Millisecond

// Listener accepts inbound connections without blocking. Accepted streams
// are configured with the listener's options.
type Listener struct {
	listener net.Listener
	network  string
	fd       int
	logger   Logger
	opts     []Option
}

// Listen opens a listener on network ("tcp", "tcp4", "tcp6" or "unix").
func Listen(network, address string, opt ...Option) (*Listener, error) {
	switch network {
	case "tcp", "tcp4", "tcp6", "unix":
	default:
		return nil, errors.Wrapf(ErrUnsupportedNetwork, "%q", network)
	}

	ln, err := net.Listen(network, address)
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s %s", network, address)
	}

	sc, ok := ln.(syscall.Conn)
	if !ok {
		ln.Close()
		return nil, errors.Wrapf(ErrUnsupportedConn, "%T", ln)
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		ln.Close()
		return nil, errors.Wrap(err, "syscall conn")
	}
	fd := -1
	if err := raw.Control(func(f uintptr) { fd = int(f) }); err != nil {
		ln.Close()
		return nil, errors.Wrap(err, "file descriptor")
	}

	var opts options
	for _, o := range opt {
		o(&opts)
	}
	checkOptions(&opts)

	return &Listener{
		listener: ln,
		network:  network,
		fd:       fd,
		logger:   opts.logger,
		opts:     opt,
	}, nil
}

// AcceptPending accepts every connection currently waiting and returns
// them as streams. It returns an empty slice when none are waiting.
func (l *Listener) AcceptPending() ([]*Stream, error) {
	var streams []*Stream
	dl, _ := l.listener.(interface{ SetDeadline(time.Time) error })

	for {
		ready, err := pollReadable(l.fd)
		if err != nil {
			return streams, err
		}
		if !ready {
			return streams, nil
		}

		if dl != nil {
			_ = dl.SetDeadline(time.Now().Add(acceptTimeout))
		}
		conn, err := l.listener.Accept()
		if dl != nil {
			_ = dl.SetDeadline(time.Time{})
		}
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return streams, nil
			}
			if errors.Is(err, net.ErrClosed) {
				return streams, errors.Wrap(ErrSocketClosed, "listener")
			}
			return streams, errors.Wrap(err, "accept")
		}

		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.SetNoDelay(true)
		}
		s, err := NewStream(conn, l.opts...)
		if err != nil {
			l.logger.Warn("rejecting connection", "remote_addr", conn.RemoteAddr(), "error", err)
			conn.Close()
			continue
		}
		l.logger.Debug("accepted connection", "network", l.network, "remote_addr", conn.RemoteAddr())
		streams = append(streams, s)
	}
}

// Close stops the listener. Unix socket files are removed.
func (l *Listener) Close() error {
	return l.listener.Close()
}

// Addr returns the listener's network address.
func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

// Network returns the network the listener was opened on.
func (l *Listener) Network() string {
	return l.network
}

// Fd returns the descriptor used for readiness polling.
func (l *Listener) Fd() int {
	return l.fd
}

// pollReadable reports whether fd is readable right now.
func pollReadable(fd int) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, 0)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, errors.Wrap(err, "poll")
		}
		if fds[0].Revents&unix.POLLNVAL != 0 {
			return false, errors.Wrap(ErrSocketClosed, "invalid descriptor")
		}
		return n > 0 && fds[0].Revents&unix.POLLIN != 0, nil
	}
}
