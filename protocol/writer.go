package protocol

import (
	"io"
)

var (
	OkTerminal = []byte("+OK\r\n")
)

// AppendReply appends the wire encoding of r to b.
func AppendReply(b []byte, r Reply) []byte {
	switch r.kind {
	case KindStatus:
		b = append(b, byte(TypeStatus))
		b = append(b, r.str...)
		return append(b, Terminal...)

	case KindInteger:
		return appendHeader(b, TypeInteger, r.int)

	case KindBulk:
		if r.isNil {
			return append(b, nilBulk...)
		}
		b = appendHeader(b, TypeBulk, int64(len(r.str)))
		b = append(b, r.str...)
		return append(b, Terminal...)

	case KindMultiBulk:
		if r.isNil {
			return append(b, nilMultiBulk...)
		}
		b = appendHeader(b, TypeMultiBulk, int64(len(r.elems)))
		for _, e := range r.elems {
			b = AppendReply(b, e)
		}
		return b
	}

	panic("protocol: AppendReply called with a zero Reply")
}

func WriteReply(w io.Writer, r Reply) error {
	_, err := w.Write(AppendReply(nil, r))
	return err
}

func WriteOk(w io.Writer) error {
	_, err := w.Write(OkTerminal)
	return err
}

// WriteError writes an error reply. Line breaks in msg are replaced with
// spaces as they would end the reply early.
func WriteError(w io.Writer, msg string) error {
	b := make([]byte, 0, len(msg)+3)
	b = append(b, byte(TypeError))
	for i := 0; i < len(msg); i++ {
		c := msg[i]
		if c == '\r' || c == '\n' {
			c = ' '
		}
		b = append(b, c)
	}
	b = append(b, Terminal...)

	_, err := w.Write(b)
	return err
}
