// Package fedchat provides the transport and event loop of a federated chat
// host: framed streams over TCP and Unix sockets, readiness polling across
// any mix of them, and the single-threaded Host that ties streams to the
// router.
package fedchat

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/Zereker/fedchat/wire"
)

// Errors returned by stream operations.
var (
	// ErrSocketClosed is returned when operating on a stream whose peer
	// went away or which was closed locally.
	ErrSocketClosed = errors.New("socket closed")
	// ErrShortWrite is returned when a connection failed part way through
	// a frame. The stream is closed since its framing is lost.
	ErrShortWrite = errors.New("short write")
	// ErrMessageTooLarge is returned when the reassembly buffer outgrows
	// the configured maximum.
	ErrMessageTooLarge = errors.New("message too large")
	// ErrUnsupportedConn is returned for connections without access to
	// their file descriptor.
	ErrUnsupportedConn = errors.New("connection does not expose a file descriptor")
)

// Stream is one framed connection. Reads never block; writes block until
// the whole frame is on the wire.
//
// Read and ReceiveMessage must be called from a single goroutine. Write and
// SendMessage may be called concurrently with them and with each other.
type Stream struct {
	rawConn net.Conn
	sysConn syscall.RawConn
	fd      int
	logger  Logger

	opts options

	// reassembly buffer; buf[head:] is read but not yet decoded
	buf     []byte
	head    int
	pending bool

	writeMu sync.Mutex
	closed  atomic.Bool
}

// NewStream wraps conn, which must implement syscall.Conn (TCP and Unix
// connections do).
func NewStream(conn net.Conn, opt ...Option) (*Stream, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	checkOptions(&opts)

	sc, ok := conn.(syscall.Conn)
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedConn, "%T", conn)
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return nil, errors.Wrap(err, "syscall conn")
	}
	fd := -1
	if err := raw.Control(func(f uintptr) { fd = int(f) }); err != nil {
		return nil, errors.Wrap(err, "file descriptor")
	}

	return &Stream{
		rawConn: conn,
		sysConn: raw,
		fd:      fd,
		logger:  opts.logger,
		opts:    opts,
	}, nil
}

// Dial connects to address and wraps the connection in a Stream.
func Dial(ctx context.Context, network, address string, opt ...Option) (*Stream, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s %s", network, address)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}

	s, err := NewStream(conn, opt...)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Read makes one non-blocking attempt to read from the connection. It
// returns nil, nil when no data is available.
//
// Once the stream is closed Read returns ErrSocketClosed. That includes the
// call that observes the peer's shutdown, which also closes the stream.
func (s *Stream) Read() ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrSocketClosed
	}

	buf := make([]byte, s.opts.readSize)
	var n int
	var readErr error
	err := s.sysConn.Read(func(fd uintptr) bool {
		n, readErr = unix.Read(int(fd), buf)
		// one attempt only; never park on the netpoller
		return true
	})
	if err == nil {
		err = readErr
	}

	switch {
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EWOULDBLOCK), errors.Is(err, unix.EINTR):
		return nil, nil
	case err != nil:
		s.logger.Debug("read error", "addr", s.Addr(), "error", err)
		s.Close()
		return nil, errors.Wrap(ErrSocketClosed, err.Error())
	case n == 0:
		s.logger.Debug("peer closed", "addr", s.Addr())
		s.Close()
		return nil, ErrSocketClosed
	}
	return buf[:n], nil
}

// Write pushes all of p to the connection.
func (s *Stream) Write(p []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed.Load() {
		return ErrSocketClosed
	}
	if s.opts.writeTimeout > 0 {
		_ = s.rawConn.SetWriteDeadline(time.Now().Add(s.opts.writeTimeout))
	}

	written := 0
	for written < len(p) {
		n, err := s.rawConn.Write(p[written:])
		written += n
		if err == nil && n == 0 {
			err = errors.New("no progress")
		}
		if err == nil {
			continue
		}

		s.logger.Debug("write error", "addr", s.Addr(), "written", written, "size", len(p), "error", err)
		var netErr net.Error
		if written == 0 && errors.As(err, &netErr) && netErr.Timeout() {
			return errors.Wrap(err, "write timeout")
		}
		s.Close()
		if written > 0 {
			return errors.Wrapf(ErrShortWrite, "%d of %d bytes: %v", written, len(p), err)
		}
		return errors.Wrap(ErrSocketClosed, err.Error())
	}
	return nil
}

// SetWriteDeadline bounds the next writes. The zero time removes the bound.
func (s *Stream) SetWriteDeadline(t time.Time) error {
	return s.rawConn.SetWriteDeadline(t)
}

// ReceiveMessage decodes at most one message. It decodes what is already
// buffered first and reads from the connection only when the buffer holds
// no complete frame. It returns nil, nil when no complete frame is
// available yet; a partial frame stays buffered for the next call.
//
// Complete frames buffered before the stream closed are still returned;
// ErrSocketClosed follows once the buffer is exhausted. Any other error
// means the byte stream cannot be decoded and the stream should be dropped.
func (s *Stream) ReceiveMessage() (wire.Message, error) {
	if msg, err := s.decode(); msg != nil || err != nil {
		return msg, err
	}

	if !s.closed.Load() {
		if data, _ := s.Read(); len(data) > 0 {
			s.compact()
			s.buf = append(s.buf, data...)
			if msg, err := s.decode(); msg != nil || err != nil {
				return msg, err
			}
		}
	}

	s.pending = false
	if !s.closed.Load() {
		return nil, nil
	}
	if dropped := s.Buffered(); dropped > 0 {
		s.buf, s.head = nil, 0
		return nil, errors.Wrapf(ErrSocketClosed, "%d bytes of truncated frame dropped", dropped)
	}
	return nil, ErrSocketClosed
}

// decode takes one frame off the front of the buffer. It returns nil, nil
// when the buffer is empty or ends in a partial frame. Only that partial
// frame counts against the buffer cap.
func (s *Stream) decode() (wire.Message, error) {
	rest := s.buf[s.head:]
	if len(rest) == 0 {
		return nil, nil
	}

	msg, n, err := s.opts.codec.Decode(rest)
	if errors.Is(err, wire.ErrIncompleteFrame) {
		if len(rest) > s.opts.maxBufferSize {
			s.pending = false
			s.Close()
			return nil, errors.Wrapf(ErrMessageTooLarge, "%d bytes of one frame buffered", len(rest))
		}
		return nil, nil
	}
	if err != nil {
		s.pending = false
		return nil, err
	}

	s.head += n
	if s.head == len(s.buf) {
		s.buf, s.head = s.buf[:0], 0
	}
	s.pending = s.head < len(s.buf)
	return msg, nil
}

// compact moves the unread tail to the front of the buffer. It runs only
// before a read, when the tail is at most one partial frame.
func (s *Stream) compact() {
	if s.head == 0 {
		return
	}
	n := copy(s.buf, s.buf[s.head:])
	s.buf, s.head = s.buf[:n], 0
}

// SendMessage encodes m and writes the frame.
func (s *Stream) SendMessage(m wire.Message) error {
	frame, err := s.opts.codec.Encode(m)
	if err != nil {
		return err
	}
	return s.Write(frame)
}

// HasPending reports whether bytes left over from the last decode may
// already hold another frame, in which case waiting on the socket would
// stall it.
func (s *Stream) HasPending() bool {
	return s.pending
}

// Buffered returns the number of bytes in the reassembly buffer.
func (s *Stream) Buffered() int {
	return len(s.buf) - s.head
}

// Close closes the stream. Safe to call multiple times.
func (s *Stream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.rawConn.Close()
}

// Closed reports whether the stream has been closed.
func (s *Stream) Closed() bool {
	return s.closed.Load()
}

// Addr returns the remote address of the connection.
func (s *Stream) Addr() net.Addr {
	return s.rawConn.RemoteAddr()
}

// Fd returns the descriptor used for readiness polling.
func (s *Stream) Fd() int {
	return s.fd
}
