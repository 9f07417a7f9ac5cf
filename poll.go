package fedchat

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ErrSocketError matches every *SocketError.
var ErrSocketError = errors.New("socket error")

// SocketError reports a handle poll(2) flagged as invalid or failed.
// Exactly one of Stream and Listener is set.
type SocketError struct {
	Stream   *Stream
	Listener *Listener
	Revents  int16
}

func (e *SocketError) Error() string {
	what := "stream"
	fd := -1
	if e.Stream != nil {
		fd = e.Stream.Fd()
	}
	if e.Listener != nil {
		what = "listener"
		fd = e.Listener.Fd()
	}
	return fmt.Sprintf("socket error on %s fd %d (revents %#x)", what, fd, e.Revents)
}

func (e *SocketError) Unwrap() error {
	return ErrSocketError
}

// Event describes why AwaitEvent returned.
type Event struct {
	// Pending is set when a stream already buffered bytes that may hold a
	// frame; no poll happened.
	Pending bool
	// Readable counts handles poll reported ready.
	Readable int
	// TimedOut is set when the configured timeout elapsed.
	TimedOut bool
	// Woken is set when Wake interrupted the wait.
	Woken bool
}

type muxOptions struct {
	timeout time.Duration
	logger  Logger
}

// MuxOption configures a Multiplexer.
type MuxOption func(*muxOptions)

// MuxTimeoutOption bounds each wait. Zero, the default, waits until a
// handle is ready or Wake is called.
func MuxTimeoutOption(timeout time.Duration) MuxOption {
	return func(o *muxOptions) {
		o.timeout = timeout
	}
}

// MuxLoggerOption sets the logger.
func MuxLoggerOption(logger Logger) MuxOption {
	return func(o *muxOptions) {
		o.logger = logger
	}
}

// Multiplexer waits for readiness across any set of streams and
// listeners, whatever transport each of them uses.
type Multiplexer struct {
	opts muxOptions

	// self-pipe used by Wake
	wakeRead  int
	wakeWrite int

	mu     sync.Mutex
	closed bool
}

// NewMultiplexer returns a multiplexer. Call Close to release its pipe.
func NewMultiplexer(opt ...MuxOption) (*Multiplexer, error) {
	var opts muxOptions
	for _, o := range opt {
		o(&opts)
	}
	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		return nil, errors.Wrap(err, "wake pipe")
	}
	for _, fd := range p {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(p[0])
			unix.Close(p[1])
			return nil, errors.Wrap(err, "wake pipe")
		}
	}

	return &Multiplexer{opts: opts, wakeRead: p[0], wakeWrite: p[1]}, nil
}

// AwaitEvent blocks until a stream has pending bytes, a handle becomes
// readable, the timeout elapses, or Wake is called. Closed streams are
// not polled, though their pending bytes still count.
//
// Hang-ups and errors on a stream count as readable: the next read
// reports them. An invalid descriptor is returned as a *SocketError.
func (m *Multiplexer) AwaitEvent(streams []*Stream, listeners []*Listener) (Event, error) {
	for _, s := range streams {
		if s.HasPending() {
			return Event{Pending: true}, nil
		}
	}

	fds := make([]unix.PollFd, 0, 1+len(listeners)+len(streams))
	fds = append(fds, unix.PollFd{Fd: int32(m.wakeRead), Events: unix.POLLIN})
	for _, l := range listeners {
		fds = append(fds, unix.PollFd{Fd: int32(l.Fd()), Events: unix.POLLIN})
	}
	polled := make([]*Stream, 0, len(streams))
	for _, s := range streams {
		if s.Closed() {
			continue
		}
		fds = append(fds, unix.PollFd{Fd: int32(s.Fd()), Events: unix.POLLIN})
		polled = append(polled, s)
	}

	timeout := -1
	if m.opts.timeout > 0 {
		timeout = int(m.opts.timeout / time.Millisecond)
		if timeout == 0 {
			timeout = 1
		}
	}

	for {
		n, err := unix.Poll(fds, timeout)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return Event{}, errors.Wrap(err, "poll")
		}
		if n == 0 {
			return Event{TimedOut: true}, nil
		}
		break
	}

	var ev Event
	if fds[0].Revents != 0 {
		m.drainWake()
		ev.Woken = true
	}

	offset := 1
	for i, l := range listeners {
		re := fds[offset+i].Revents
		if re&(unix.POLLNVAL|unix.POLLERR) != 0 {
			return ev, &SocketError{Listener: l, Revents: re}
		}
		if re&unix.POLLIN != 0 {
			ev.Readable++
		}
	}

	offset += len(listeners)
	for i, s := range polled {
		re := fds[offset+i].Revents
		if re&unix.POLLNVAL != 0 {
			return ev, &SocketError{Stream: s, Revents: re}
		}
		if re&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
			ev.Readable++
		}
	}
	return ev, nil
}

// Wake interrupts a concurrent AwaitEvent. Safe to call from any goroutine.
func (m *Multiplexer) Wake() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	if _, err := unix.Write(m.wakeWrite, []byte{1}); err != nil && err != unix.EAGAIN {
		m.opts.logger.Debug("wake failed", "error", err)
	}
}

func (m *Multiplexer) drainWake() {
	var buf [64]byte
	for {
		n, err := unix.Read(m.wakeRead, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

// Close releases the wake pipe.
func (m *Multiplexer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	err := unix.Close(m.wakeWrite)
	if rerr := unix.Close(m.wakeRead); err == nil {
		err = rerr
	}
	return err
}
