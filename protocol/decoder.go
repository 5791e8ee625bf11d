package protocol

import (
	"errors"
	"fmt"
	"strconv"
)

// Decode decodes the value that starts at buf[offset] and returns it along
// with the number of bytes it occupies, so the caller can move on to
// whatever follows it.
//
// An error reply ('-') is returned as a *ServerError, whether it is the
// value itself or nested anywhere inside a multibulk. Malformed input and
// input that ends too early are returned as errors wrapping ErrProtocol; in
// the latter case the error also wraps ErrIncomplete.
//
// Bulk payloads are copied, the returned Reply does not share memory with buf.
func Decode(buf []byte, offset int) (Reply, int, error) {
	if offset < 0 || offset > len(buf) {
		return Reply{}, 0, protocolErrorf("offset %d out of range for %d bytes", offset, len(buf))
	}

	reply, next, err := decodeAt(buf, offset)
	if err != nil {
		if errors.Is(err, ErrIncomplete) {
			err = fmt.Errorf("%w: %w", ErrProtocol, ErrIncomplete)
		}
		return Reply{}, 0, err
	}

	return reply, next - offset, nil
}

// DecodeReply decodes a buffer that holds exactly one reply.
func DecodeReply(buf []byte) (Reply, error) {
	reply, n, err := Decode(buf, 0)
	if err != nil {
		return Reply{}, err
	}

	if n != len(buf) {
		return Reply{}, protocolErrorf("%d trailing bytes after reply", len(buf)-n)
	}

	return reply, nil
}

// decodeAt returns the offset just past the decoded value. Truncation is
// reported as the bare ErrIncomplete.
func decodeAt(buf []byte, off int) (Reply, int, error) {
	if off >= len(buf) {
		return Reply{}, 0, ErrIncomplete
	}

	t := Type(buf[off])
	if !t.valid() {
		return Reply{}, 0, protocolErrorf("unrecognized reply type %q", byte(t))
	}

	line, next, err := readLine(buf, off+1)
	if err != nil {
		return Reply{}, 0, err
	}

	switch t {
	case TypeStatus:
		return Reply{kind: KindStatus, str: copyBytes(line)}, next, nil

	case TypeError:
		return Reply{}, 0, &ServerError{Message: string(line)}

	case TypeInteger:
		n, err := parseInt(line)
		if err != nil {
			return Reply{}, 0, err
		}
		return Integer(n), next, nil

	case TypeBulk:
		n, err := parseLength(line, t)
		if err != nil {
			return Reply{}, 0, err
		}
		if n == -1 {
			return NilBulk(), next, nil
		}

		end, err := bulkEnd(buf, next, n)
		if err != nil {
			return Reply{}, 0, err
		}

		return Reply{kind: KindBulk, str: copyBytes(buf[next : next+int(n)])}, end, nil

	case TypeMultiBulk:
		n, err := parseLength(line, t)
		if err != nil {
			return Reply{}, 0, err
		}
		if n == -1 {
			return NilMultiBulk(), next, nil
		}

		// Every element takes at least 3 bytes, don't trust the count further
		// than the buffer can back it up.
		capHint := n
		if remaining := int64(len(buf)-next) / 3; capHint > remaining {
			capHint = remaining
		}

		elems := make([]Reply, 0, capHint)
		for i := int64(0); i < n; i++ {
			var elem Reply
			elem, next, err = decodeAt(buf, next)
			if err != nil {
				return Reply{}, 0, err
			}
			elems = append(elems, elem)
		}

		return Reply{kind: KindMultiBulk, elems: elems}, next, nil
	}

	panic("unreachable")
}

// readLine returns the bytes from off up to the next CR, and the offset just
// past the CRLF that ends the line.
func readLine(buf []byte, off int) ([]byte, int, error) {
	for i := off; i < len(buf); i++ {
		if buf[i] != '\r' {
			continue
		}

		if i+1 >= len(buf) {
			return nil, 0, ErrIncomplete
		}

		if buf[i+1] != '\n' {
			return nil, 0, protocolErrorf("expected LF after CR at offset %d", i)
		}

		return buf[off:i], i + 2, nil
	}

	return nil, 0, ErrIncomplete
}

// bulkEnd returns the offset just past a bulk payload of n bytes starting at
// off, checking the CRLF that must follow it.
func bulkEnd(buf []byte, off int, n int64) (int, error) {
	if n > int64(len(buf)-off) {
		return 0, ErrIncomplete
	}

	end := off + int(n)
	if end+2 > len(buf) {
		return 0, ErrIncomplete
	}

	if buf[end] != '\r' || buf[end+1] != '\n' {
		return 0, protocolErrorf("bulk payload of %d bytes is not followed by CRLF", n)
	}

	return end + 2, nil
}

// parseInt only accepts the canonical form: an optional '-' followed by
// digits without leading zeros. "-0" is rejected too.
func parseInt(line []byte) (int64, error) {
	digits := line
	if len(digits) > 0 && digits[0] == '-' {
		digits = digits[1:]
	}

	switch {
	case len(digits) == 0,
		digits[0] < '0' || digits[0] > '9',
		digits[0] == '0' && len(line) > 1:
		return 0, protocolErrorf("invalid integer %q", line)
	}

	n, err := strconv.ParseInt(string(line), 10, 64)
	if err != nil {
		return 0, protocolErrorf("invalid integer %q", line)
	}

	return n, nil
}

func parseLength(line []byte, t Type) (int64, error) {
	n, err := parseInt(line)
	if err != nil {
		return 0, err
	}

	if n < -1 {
		return 0, protocolErrorf("invalid %s length %d", t, n)
	}

	return n, nil
}

func copyBytes(b []byte) []byte {
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
