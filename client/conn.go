package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/luma/resplite/protocol"
)

var (
	ErrEmptyCommand = errors.New("command is empty")
	ErrClosed       = errors.New("connection is closed")

	// ErrBroken is returned by every call after a request could not be
	// written or its reply could not be read. The stream is no longer in
	// step with the server, so nothing more is sent on it.
	ErrBroken = errors.New("connection is broken")
)

type Options struct {
	// Trace logs every request and reply at debug level. Only useful when
	// debugging locally.
	Trace bool

	// Timeout bounds a whole round trip. It is applied as a deadline on the
	// connection, so it only has an effect when the stream supports
	// SetDeadline. Zero means no timeout.
	Timeout time.Duration

	// ReadBufferSize is the number of bytes requested per read.
	ReadBufferSize int

	// MaxFrameSize bounds the size of a single reply.
	MaxFrameSize int

	Log *zap.Logger
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

// Conn sends commands over a single stream and waits for their replies.
//
// Only one command is in flight at a time, concurrent calls to Do are
// serialised, so replies always match the command that was sent.
type Conn struct {
	mu     sync.Mutex
	rw     io.ReadWriter
	frames *protocol.FrameReader
	closed bool

	// broken is the failure that made the stream unusable
	broken error

	trace   bool
	timeout time.Duration

	log *zap.Logger
}

// New wraps an already established stream.
func New(rw io.ReadWriter, opts Options) *Conn {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	frameOpts := []protocol.FrameOption{}
	if opts.ReadBufferSize > 0 {
		frameOpts = append(frameOpts, protocol.WithReadBufferSize(opts.ReadBufferSize))
	}
	if opts.MaxFrameSize != 0 {
		frameOpts = append(frameOpts, protocol.WithMaxFrameSize(opts.MaxFrameSize))
	}

	return &Conn{
		rw:      rw,
		frames:  protocol.NewFrameReader(rw, frameOpts...),
		trace:   opts.Trace,
		timeout: opts.Timeout,
		log:     log,
	}
}

// Dial connects to the server at addr over TCP.
func Dial(ctx context.Context, addr string, opts Options) (*Conn, error) {
	var dialer net.Dialer

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", protocol.ErrConnection, err)
	}

	c := New(conn, opts)
	c.log = c.log.With(zap.String("addr", addr))

	return c, nil
}

// Close closes the underlying stream if it can be closed. Calling Close more
// than once is fine.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if closer, ok := c.rw.(io.Closer); ok {
		return closer.Close()
	}

	return nil
}

// Do sends a command and returns its reply.
//
// The command and arguments are joined into one line and split on
// whitespace, see protocol.EncodeCommand. Use DoArgs to send arguments that
// contain whitespace.
//
// Errors wrap protocol.ErrConnection or protocol.ErrProtocol, or are a
// *protocol.ServerError when the server replied with an error. An error
// reply leaves the Conn usable. Any other failure breaks it, and later calls
// return ErrBroken without writing anything.
func (c *Conn) Do(cmd string, args ...interface{}) (protocol.Reply, error) {
	tokens := protocol.Tokenize(cmd, args...)
	if len(tokens) == 0 {
		return protocol.Reply{}, ErrEmptyCommand
	}

	return c.roundTrip(protocol.EncodeArgs(tokens...))
}

// DoArgs sends one bulk string per argument, without splitting them.
func (c *Conn) DoArgs(args ...[]byte) (protocol.Reply, error) {
	if len(args) == 0 {
		return protocol.Reply{}, ErrEmptyCommand
	}

	return c.roundTrip(protocol.EncodeArgs(args...))
}

func (c *Conn) roundTrip(req []byte) (protocol.Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return protocol.Reply{}, ErrClosed
	}

	if c.broken != nil {
		return protocol.Reply{}, fmt.Errorf("%w: %w: %w", protocol.ErrConnection, ErrBroken, c.broken)
	}

	if c.timeout > 0 {
		if d, ok := c.rw.(deadliner); ok {
			if err := d.SetDeadline(time.Now().Add(c.timeout)); err != nil {
				return protocol.Reply{}, fmt.Errorf("%w: %w", protocol.ErrConnection, err)
			}
			defer d.SetDeadline(time.Time{}) // nolint:errcheck
		}
	}

	if c.trace {
		c.log.Debug("Sending request", zap.ByteString("request", req))
	}

	n, err := c.rw.Write(req)
	if n == 0 {
		if err == nil {
			err = io.ErrShortWrite
		}
		c.broken = fmt.Errorf("%w: no bytes written: %w", protocol.ErrConnection, err)
		return protocol.Reply{}, c.broken
	}

	if err != nil {
		c.broken = fmt.Errorf("%w: wrote %d of %d bytes: %w",
			protocol.ErrConnection, n, len(req), err)
		return protocol.Reply{}, c.broken
	}

	frame, err := c.frames.ReadFrame()
	if err != nil {
		c.log.Warn("Failed to read reply", zap.Error(err))
		c.broken = err
		return protocol.Reply{}, err
	}

	if c.trace {
		c.log.Debug("Received reply", zap.ByteString("reply", frame))
	}

	reply, _, err := protocol.Decode(frame, 0)
	if err != nil {
		return protocol.Reply{}, err
	}

	return reply, nil
}
