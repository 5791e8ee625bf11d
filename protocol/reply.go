package protocol

import (
	"errors"
	"fmt"
	"strconv"
)

// Kind identifies which variant a Reply holds.
type Kind uint8

const (
	KindStatus Kind = iota + 1
	KindInteger
	KindBulk
	KindMultiBulk
)

func (k Kind) String() string {
	switch k {
	case KindStatus:
		return "status"
	case KindInteger:
		return "integer"
	case KindBulk:
		return "bulk"
	case KindMultiBulk:
		return "multibulk"
	default:
		return "invalid"
	}
}

var (
	ErrWrongKind = errors.New("reply is of the wrong kind")
	ErrNilReply  = errors.New("reply is nil")
)

// Reply is a decoded RESP value. Error replies never become a Reply, the
// decoder returns them as *ServerError instead.
//
// A Reply is immutable. Constructors copy the slices they are given and
// accessors return copies, so neither side can change a Reply after the fact.
type Reply struct {
	kind  Kind
	str   []byte
	int   int64
	elems []Reply
	isNil bool
}

func Status(text string) Reply {
	return Reply{kind: KindStatus, str: []byte(text)}
}

func Integer(n int64) Reply {
	return Reply{kind: KindInteger, int: n}
}

func Bulk(b []byte) Reply {
	return Reply{kind: KindBulk, str: copyBytes(b)}
}

func BulkString(s string) Reply {
	return Bulk([]byte(s))
}

func NilBulk() Reply {
	return Reply{kind: KindBulk, isNil: true}
}

func MultiBulk(elems ...Reply) Reply {
	return Reply{kind: KindMultiBulk, elems: append([]Reply{}, elems...)}
}

func NilMultiBulk() Reply {
	return Reply{kind: KindMultiBulk, isNil: true}
}

func (r Reply) Kind() Kind {
	return r.kind
}

// IsNil reports whether r is the nil bulk ($-1) or nil multibulk (*-1).
func (r Reply) IsNil() bool {
	return r.isNil
}

// Bytes returns the payload of a status or bulk reply.
func (r Reply) Bytes() ([]byte, error) {
	if r.kind != KindStatus && r.kind != KindBulk {
		return nil, fmt.Errorf("%w: %s has no bytes", ErrWrongKind, r.kind)
	}
	if r.isNil {
		return nil, ErrNilReply
	}
	return copyBytes(r.str), nil
}

// Str is Bytes as a string.
func (r Reply) Str() (string, error) {
	if r.kind != KindStatus && r.kind != KindBulk {
		return "", fmt.Errorf("%w: %s has no bytes", ErrWrongKind, r.kind)
	}
	if r.isNil {
		return "", ErrNilReply
	}
	return string(r.str), nil
}

// Int64 returns the value of an integer reply. Bulk replies holding a
// base-10 number are converted, as servers return numbers that way for
// commands like INCRBYFLOAT and CONFIG GET.
func (r Reply) Int64() (int64, error) {
	switch r.kind {
	case KindInteger:
		return r.int, nil
	case KindBulk:
		if r.isNil {
			return 0, ErrNilReply
		}
		n, err := strconv.ParseInt(string(r.str), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: bulk %q is not an integer", ErrWrongKind, r.str)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: %s has no integer", ErrWrongKind, r.kind)
	}
}

// Elems returns the elements of a multibulk reply in wire order.
func (r Reply) Elems() ([]Reply, error) {
	if r.kind != KindMultiBulk {
		return nil, fmt.Errorf("%w: %s has no elements", ErrWrongKind, r.kind)
	}
	if r.isNil {
		return nil, ErrNilReply
	}
	return append([]Reply{}, r.elems...), nil
}

// Len is the element count of a multibulk reply or the byte length of a
// status or bulk reply. Nil replies and integers have length 0.
func (r Reply) Len() int {
	if r.kind == KindMultiBulk {
		return len(r.elems)
	}
	return len(r.str)
}

// String renders the reply for humans. It is not the wire encoding, see
// AppendReply for that.
func (r Reply) String() string {
	switch r.kind {
	case KindStatus:
		return string(r.str)
	case KindInteger:
		return strconv.FormatInt(r.int, 10)
	case KindBulk:
		if r.isNil {
			return "<nil>"
		}
		return strconv.Quote(string(r.str))
	case KindMultiBulk:
		if r.isNil {
			return "<nil>"
		}
		return fmt.Sprint(r.elems)
	default:
		return "<invalid>"
	}
}
