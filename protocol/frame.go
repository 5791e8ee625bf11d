package protocol

import (
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	DefaultReadBufferSize = 4096
	DefaultMaxFrameSize   = 512 << 20

	// io.Reader implementations may return 0, nil. After this many in a row
	// we assume the reader is broken. Same limit as bufio.
	maxConsecutiveEmptyReads = 100
)

type FrameOption func(*FrameReader)

// WithReadBufferSize sets how many bytes are requested per Read call.
func WithReadBufferSize(n int) FrameOption {
	return func(fr *FrameReader) {
		if n > 0 {
			fr.chunk = make([]byte, n)
		}
	}
}

// WithMaxFrameSize bounds the size of a single reply. Zero or less disables
// the limit.
func WithMaxFrameSize(n int) FrameOption {
	return func(fr *FrameReader) {
		fr.maxFrameSize = n
	}
}

// FrameReader turns a stream that hands out replies in arbitrary chunks into
// whole replies, one per ReadFrame call.
//
// Whether a frame is complete is decided by measuring the buffered bytes
// with FrameLength, never by the size of the last chunk, so replies split
// at any byte boundary are framed correctly.
type FrameReader struct {
	r     io.Reader
	buf   []byte
	chunk []byte
	err   error

	maxFrameSize int
}

func NewFrameReader(r io.Reader, opts ...FrameOption) *FrameReader {
	fr := &FrameReader{
		r:            r,
		maxFrameSize: DefaultMaxFrameSize,
	}

	for _, opt := range opts {
		opt(fr)
	}

	if fr.chunk == nil {
		fr.chunk = make([]byte, DefaultReadBufferSize)
	}

	return fr
}

// Buffered returns the number of bytes read from the stream that are not
// part of any frame returned so far.
func (fr *FrameReader) Buffered() int {
	return len(fr.buf)
}

// ReadFrame returns the exact bytes of the next reply on the stream. Bytes
// that follow the reply stay buffered for the next call.
//
// If the stream ends or fails before a whole reply arrived the error wraps
// ErrConnection. Malformed replies return an error wrapping ErrProtocol.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	emptyReads := 0

	for {
		if len(fr.buf) > 0 {
			n, err := frameLength(fr.buf, fr.maxFrameSize)
			if err == nil {
				frame := fr.buf[:n:n]
				fr.buf = fr.buf[n:]
				if len(fr.buf) == 0 {
					fr.buf = nil
				}
				return frame, nil
			}

			if !errors.Is(err, ErrIncomplete) {
				return nil, err
			}

			if fr.maxFrameSize > 0 && len(fr.buf) > fr.maxFrameSize {
				return nil, protocolErrorf("reply exceeds the %d byte frame limit", fr.maxFrameSize)
			}
		}

		if fr.err != nil {
			return nil, fr.connectionError()
		}

		n, err := fr.r.Read(fr.chunk)
		if n > 0 {
			fr.buf = append(fr.buf, fr.chunk[:n]...)
			emptyReads = 0
		}

		if err != nil {
			fr.err = err
			continue
		}

		if n == 0 {
			emptyReads++
			if emptyReads >= maxConsecutiveEmptyReads {
				fr.err = io.ErrNoProgress
			}
		}
	}
}

func (fr *FrameReader) connectionError() error {
	if len(fr.buf) == 0 {
		return fmt.Errorf("%w: no reply received: %w", ErrConnection, fr.err)
	}

	return fmt.Errorf("%w: stream ended after %d bytes of an incomplete reply: %w",
		ErrConnection, len(fr.buf), fr.err)
}

// FrameLength returns the length of the value at the start of buf, or
// ErrIncomplete if buf ends before the value does.
//
// Unlike Decode it doesn't stop at error replies nested in a multibulk, a
// frame always spans the whole top level value.
func FrameLength(buf []byte) (int, error) {
	return frameLength(buf, 0)
}

func frameLength(buf []byte, max int) (int, error) {
	off := 0

	// Number of values still to be measured. Multibulk headers add their
	// element count, so nesting needs no recursion.
	pending := int64(1)

	for pending > 0 {
		if off >= len(buf) {
			return 0, ErrIncomplete
		}

		t := Type(buf[off])
		if !t.valid() {
			return 0, protocolErrorf("unrecognized reply type %q", byte(t))
		}

		line, next, err := readLine(buf, off+1)
		if err != nil {
			return 0, err
		}

		pending--

		switch t {
		case TypeInteger:
			if _, err := parseInt(line); err != nil {
				return 0, err
			}

		case TypeBulk:
			n, err := parseLength(line, t)
			if err != nil {
				return 0, err
			}

			if n >= 0 {
				if max > 0 && n > int64(max-next) {
					return 0, protocolErrorf("bulk of %d bytes exceeds the %d byte frame limit", n, max)
				}

				if next, err = bulkEnd(buf, next, n); err != nil {
					return 0, err
				}
			}

		case TypeMultiBulk:
			n, err := parseLength(line, t)
			if err != nil {
				return 0, err
			}

			if n > math.MaxInt64-pending {
				return 0, protocolErrorf("multibulk of %d elements is too large", n)
			}

			if n > 0 {
				pending += n
			}
		}

		off = next
	}

	return off, nil
}
