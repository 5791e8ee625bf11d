package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// EncodeCommand builds a multibulk request from a command and its arguments.
//
// The arguments are rendered as text and joined to the command with spaces,
// then the whole line is split on whitespace and every token becomes one bulk
// string. An argument that contains whitespace is therefore sent as several
// arguments, use EncodeArgs when values may contain spaces or binary data.
//
// EncodeCommand panics if the request has no tokens.
func EncodeCommand(cmd string, args ...interface{}) []byte {
	tokens := Tokenize(cmd, args...)
	if len(tokens) == 0 {
		panic("protocol: EncodeCommand called with an empty command")
	}

	return EncodeArgs(tokens...)
}

// Tokenize returns the tokens EncodeCommand would send for cmd and args.
func Tokenize(cmd string, args ...interface{}) [][]byte {
	var sb strings.Builder
	sb.WriteString(cmd)

	for _, arg := range args {
		sb.WriteByte(' ')
		sb.WriteString(FormatArg(arg))
	}

	fields := strings.Fields(sb.String())
	tokens := make([][]byte, len(fields))
	for i, f := range fields {
		tokens[i] = []byte(f)
	}

	return tokens
}

// EncodeArgs builds a multibulk request with one bulk string per argument.
// Arguments are sent as is, so they may hold any bytes.
//
// EncodeArgs panics if args is empty.
func EncodeArgs(args ...[]byte) []byte {
	if len(args) == 0 {
		panic("protocol: EncodeArgs called without arguments")
	}

	size := 1 + 20 + 2
	for _, arg := range args {
		size += 1 + 20 + 2 + len(arg) + 2
	}

	b := make([]byte, 0, size)
	b = appendHeader(b, TypeMultiBulk, int64(len(args)))
	for _, arg := range args {
		b = appendHeader(b, TypeBulk, int64(len(arg)))
		b = append(b, arg...)
		b = append(b, Terminal...)
	}

	return b
}

// FormatArg returns the textual form of a command argument.
func FormatArg(arg interface{}) string {
	switch v := arg.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case int:
		return strconv.Itoa(v)
	case int8:
		return strconv.FormatInt(int64(v), 10)
	case int16:
		return strconv.FormatInt(int64(v), 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint8:
		return strconv.FormatUint(uint64(v), 10)
	case uint16:
		return strconv.FormatUint(uint64(v), 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "1"
		}
		return "0"
	case nil:
		return ""
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func appendHeader(b []byte, t Type, n int64) []byte {
	b = append(b, byte(t))
	b = strconv.AppendInt(b, n, 10)
	return append(b, Terminal...)
}
