package transport

import (
	"github.com/luma/resplite/storage"
	"go.uber.org/zap"
)

type Options struct {
	// Host to listen on
	Host string

	// Port to listen on. Zero picks a free port, use TCP.Addr to find it.
	Port int

	// Reuseport controls setting SO_REUSEPORT so several listeners can share
	// one port. Without it NumListeners is forced to 1.
	Reuseport bool

	// Trace logs every request and reply. This is only useful in local debugging
	Trace bool

	NumListeners int

	// MaxFrameSize bounds the size of a single request.
	MaxFrameSize int

	Store storage.Store

	Log *zap.Logger
}
