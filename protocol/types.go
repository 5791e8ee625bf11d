package protocol

import (
	"errors"
	"fmt"
)

// Type is the single prefix byte that starts every RESP value.
type Type byte

const (
	TypeStatus    Type = '+'
	TypeError     Type = '-'
	TypeInteger   Type = ':'
	TypeBulk      Type = '$'
	TypeMultiBulk Type = '*'
)

func (t Type) String() string {
	return string(t)
}

func (t Type) valid() bool {
	switch t {
	case TypeStatus, TypeError, TypeInteger, TypeBulk, TypeMultiBulk:
		return true
	}
	return false
}

var (
	// ErrConnection is returned when a request could not be written or the
	// stream ended before a complete reply was read.
	ErrConnection = errors.New("connection error")

	// ErrProtocol is returned for malformed replies: bad length or integer
	// fields, unknown type bytes, or lengths that don't match the data.
	ErrProtocol = errors.New("protocol error")

	// ErrIncomplete means the buffer ends before the value it holds does.
	// FrameLength returns it bare; Decode wraps it in ErrProtocol.
	ErrIncomplete = errors.New("incomplete reply")

	Terminal = []byte("\r\n")

	nilBulk      = []byte("$-1\r\n")
	nilMultiBulk = []byte("*-1\r\n")
)

// ServerError is an error reply sent by the server. Message holds the text
// after the '-' exactly as it was sent, e.g. "ERR unknown command".
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return e.Message
}

func protocolErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrProtocol, fmt.Sprintf(format, args...))
}

var _ error = (*ServerError)(nil)
