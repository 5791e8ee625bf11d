package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime"
	"strconv"
	"strings"
	"sync"

	reuseport "github.com/kavu/go_reuseport"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/resplite/protocol"
	"github.com/luma/resplite/storage"
)

const (
	WriteQueueSize = 127
)

// TCP is a small RESP server. It answers the handful of commands the client
// helpers use, which makes it a loopback peer for exercising the client.
type TCP struct {
	cancel     context.CancelFunc
	stopWaiter sync.WaitGroup

	addr      string
	reuseport bool

	numListeners int
	listeners    []*TCPListener

	store        storage.Store
	maxFrameSize int

	log   *zap.Logger
	trace bool
}

func NewTCP(options Options) *TCP {
	numListeners := options.NumListeners

	if numListeners < 1 {
		numListeners = runtime.NumCPU()
	}

	if !options.Reuseport {
		numListeners = 1
	}

	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &TCP{
		addr:         net.JoinHostPort(options.Host, strconv.Itoa(options.Port)),
		reuseport:    options.Reuseport,
		numListeners: numListeners,
		listeners:    make([]*TCPListener, 0, numListeners),
		trace:        options.Trace,
		store:        options.Store,
		maxFrameSize: options.MaxFrameSize,
		log:          log,
	}
}

// Start binds all listeners and starts accepting connections in the
// background. When Start returns without error the server is reachable.
func (w *TCP) Start(parentCtx context.Context) error {
	ctx, cancel := context.WithCancel(parentCtx)
	w.cancel = cancel

	w.log.Info("Starting tcp listeners", zap.Int("count", w.numListeners))

	addr := w.addr
	for i := 0; i < w.numListeners; i++ {
		listener, err := w.startListener(ctx, addr)
		if err != nil {
			cancel()
			return multierr.Append(err, w.closeListeners())
		}

		// With port 0 the first listener picks the port, the rest share it.
		addr = listener.Addr().String()
	}

	return nil
}

func (t *TCP) Store() storage.Store {
	return t.store
}

// Addr returns the address the server listens on, or nil before Start.
func (t *TCP) Addr() net.Addr {
	if len(t.listeners) == 0 {
		return nil
	}

	return t.listeners[0].Addr()
}

func (w *TCP) startListener(ctx context.Context, addr string) (*TCPListener, error) {
	var (
		ln  net.Listener
		err error
	)

	if w.reuseport {
		ln, err = reuseport.Listen("tcp", addr)
	} else {
		ln, err = net.Listen("tcp", addr)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	listener := NewTCPListener(
		ctx,
		ln,
		w.store,
		w.log.Named("listener").With(zap.Int("listener", len(w.listeners))),
	)
	listener.trace = w.trace
	listener.maxFrameSize = w.maxFrameSize

	w.listeners = append(w.listeners, listener)

	w.stopWaiter.Add(1)
	go func() {
		defer w.stopWaiter.Done()

		if err := listener.Serve(); err != nil {
			w.log.Error("Listener stopped", zap.Error(err))
		}
	}()

	return listener, nil
}

// Close immediately closes all listeners and connections and waits for
// their goroutines to exit.
func (w *TCP) Close() error {
	w.log.Info("Stopping TCP server")
	if w.cancel != nil {
		w.cancel()
	}

	err := w.closeListeners()

	w.stopWaiter.Wait()
	w.log.Info("TCP server stopped")

	return err
}

func (w *TCP) closeListeners() (err error) {
	for _, listener := range w.listeners {
		err = multierr.Append(err, listener.Close())
	}

	return err
}

type TCPListener struct {
	ctx context.Context

	listener net.Listener
	log      *zap.Logger

	mu          sync.Mutex
	activeConns map[*TCPConn]struct{}
	closed      bool

	store        storage.Store
	maxFrameSize int
	trace        bool
}

func NewTCPListener(
	ctx context.Context,
	listener net.Listener,
	store storage.Store,
	log *zap.Logger,
) *TCPListener {
	return &TCPListener{
		ctx:         ctx,
		listener:    listener,
		activeConns: make(map[*TCPConn]struct{}),
		store:       store,
		log:         log,
	}
}

func (t *TCPListener) Addr() net.Addr {
	return t.listener.Addr()
}

// Close stops accepting and closes every active connection.
func (t *TCPListener) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true

	conns := make([]*TCPConn, 0, len(t.activeConns))
	for conn := range t.activeConns {
		conns = append(conns, conn)
	}
	t.mu.Unlock()

	err := t.listener.Close()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}

	for _, conn := range conns {
		err = multierr.Append(err, conn.Close())
	}

	return err
}

// Serve accepts connections until the listener is closed.
func (t *TCPListener) Serve() error {
	var loopWaiter sync.WaitGroup
	defer func() {
		t.log.Info("Waiting for connections to stop")
		loopWaiter.Wait()
		t.log.Info("Listener stopped")
	}()

	for {
		conn, err := t.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				// Closed while we were waiting for new connections,
				// that's fine.
				return nil
			}

			return err
		}

		tcpConn := NewTCPConn(t.ctx, conn, t.store, t.log.Named("conn"))
		tcpConn.trace = t.trace
		tcpConn.maxFrameSize = t.maxFrameSize

		if !t.addConn(tcpConn) {
			conn.Close()
			return nil
		}

		loopWaiter.Add(1)
		go func() {
			defer loopWaiter.Done()
			defer t.removeConn(tcpConn)

			tcpConn.Start()

			if err := tcpConn.Close(); err != nil {
				t.log.Warn("Connection did not close cleanly", zap.Error(err))
			}
		}()
	}
}

func (t *TCPListener) addConn(conn *TCPConn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}

	t.activeConns[conn] = struct{}{}
	return true
}

func (t *TCPListener) removeConn(conn *TCPConn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.activeConns, conn)
}

type TCPConn struct {
	ctx        context.Context
	cancel     context.CancelFunc
	loopWaiter sync.WaitGroup
	closeOnce  sync.Once

	conn  net.Conn
	store storage.Store

	writeQueue chan []byte

	maxFrameSize int
	trace        bool

	log *zap.Logger
}

func NewTCPConn(
	parentCtx context.Context,
	conn net.Conn,
	store storage.Store,
	log *zap.Logger,
) *TCPConn {
	ctx, cancel := context.WithCancel(parentCtx)

	return &TCPConn{
		ctx:        ctx,
		cancel:     cancel,
		conn:       conn,
		store:      store,
		writeQueue: make(chan []byte, WriteQueueSize),
		log:        log.With(zap.Stringer("remote", conn.RemoteAddr())),
	}
}

// Close cancels the connection and closes the socket, which unblocks the
// read loop.
func (t *TCPConn) Close() (err error) {
	t.closeOnce.Do(func() {
		t.cancel()
		err = t.conn.Close()
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
	})

	return err
}

// Start runs the read and write loops and returns once both have exited.
func (t *TCPConn) Start() {
	t.loopWaiter.Add(2)

	go func() {
		defer t.loopWaiter.Done()
		// The read loop is the only sender, closing the queue tells the
		// write loop to drain and stop.
		defer close(t.writeQueue)
		t.ReadLoop()
	}()

	go func() {
		defer t.loopWaiter.Done()
		t.WriteLoop()
	}()

	t.loopWaiter.Wait()
}

func (t *TCPConn) ReadLoop() {
	log := t.log.Named("readLoop")
	defer log.Debug("Read loop exited")

	var frameOpts []protocol.FrameOption
	if t.maxFrameSize != 0 {
		frameOpts = append(frameOpts, protocol.WithMaxFrameSize(t.maxFrameSize))
	}
	frames := protocol.NewFrameReader(t.conn, frameOpts...)

	for {
		select {
		case <-t.ctx.Done():
			log.Debug("Context cancelled, exiting...")
			return

		default:
		}

		frame, err := frames.ReadFrame()
		if err != nil {
			if errors.Is(err, protocol.ErrProtocol) {
				log.Warn("Malformed request", zap.Error(err))
				t.writeError(protocolError(err))
				return
			}

			if t.isRunning() && !errors.Is(err, io.EOF) && !isClosedConn(err) {
				log.Warn("Failed to read client request", zap.Error(err))
			}
			return
		}

		if t.trace {
			log.Debug("Request", zap.ByteString("frame", frame))
		}

		args, err := decodeRequest(frame)
		if err != nil {
			log.Warn("Invalid request", zap.Error(err))
			t.writeError(err)
			return
		}

		reply, quit, err := dispatch(t.ctx, t.store, args)
		if err != nil {
			t.writeError(err)
			continue
		}

		t.write(protocol.AppendReply(nil, reply))

		if quit {
			log.Debug("Client QUIT, exiting...")
			return
		}
	}
}

func (t *TCPConn) WriteLoop() {
	log := t.log.Named("writeLoop")

	defer func() {
		if tcp, ok := t.conn.(*net.TCPConn); ok {
			err := tcp.CloseWrite()
			if err != nil && !isClosedConn(err) {
				log.Warn("Failed to close writes on connection cleanly", zap.Error(err))
			}
		}

		log.Debug("Write loop exited")
	}()

	// Replies from the read loop, until it closes the queue
	for data := range t.writeQueue {
		if t.trace {
			log.Debug("Reply", zap.ByteString("data", data))
		}

		if _, err := t.conn.Write(data); err != nil {
			if !isClosedConn(err) {
				log.Error("Failed to write reply", zap.Error(err))
			}
			t.cancel()
			return
		}
	}
}

func (t *TCPConn) write(data []byte) {
	select {
	case t.writeQueue <- data:
	case <-t.ctx.Done():
	}
}

func (t *TCPConn) writeError(err error) {
	var cmdErr commandError
	if !errors.As(err, &cmdErr) {
		t.log.Error("Command failed", zap.Error(err))
		cmdErr = commandError("ERR " + err.Error())
	}

	var b strings.Builder
	if werr := protocol.WriteError(&b, string(cmdErr)); werr != nil {
		return
	}

	t.write([]byte(b.String()))
}

// isRunning returns true if Close has not been called
func (t *TCPConn) isRunning() bool {
	select {
	case <-t.ctx.Done():
		// if we can read on this channel then it's been closed
		return false

	default:
		return true
	}
}

func decodeRequest(frame []byte) ([][]byte, error) {
	req, err := protocol.DecodeReply(frame)
	if err != nil {
		return nil, protocolError(err)
	}

	return requestArgs(req)
}

// protocolError turns a decoding error into the reply sent to the client.
// The text of ErrProtocol is dropped from the front of the message.
func protocolError(err error) commandError {
	msg := strings.TrimPrefix(err.Error(), protocol.ErrProtocol.Error()+": ")
	return commandError("ERR Protocol error: " + msg)
}

func isClosedConn(err error) bool {
	return errors.Is(err, net.ErrClosed) ||
		strings.Contains(err.Error(), "transport endpoint is not connected") ||
		strings.Contains(err.Error(), "connection reset by peer")
}
