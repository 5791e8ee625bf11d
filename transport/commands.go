package transport

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/luma/resplite/protocol"
	"github.com/luma/resplite/storage"
)

// commandError is sent to the client as an error reply.
type commandError string

func (e commandError) Error() string {
	return string(e)
}

func wrongArgs(name []byte) error {
	return commandError(fmt.Sprintf("ERR wrong number of arguments for '%s' command", bytes.ToLower(name)))
}

const storeTimeout = 3 * time.Second

var (
	pongReply = protocol.Status("PONG")
	okReply   = protocol.Status("OK")
)

// dispatch runs one request. quit is true when the client asked for the
// connection to be closed after the reply.
func dispatch(ctx context.Context, store storage.Store, args [][]byte) (reply protocol.Reply, quit bool, err error) {
	storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	name := bytes.ToUpper(args[0])
	args = args[1:]

	switch string(name) {
	case "PING":
		switch len(args) {
		case 0:
			return pongReply, false, nil
		case 1:
			return protocol.Bulk(args[0]), false, nil
		}
		return protocol.Reply{}, false, wrongArgs(name)

	case "ECHO":
		if len(args) != 1 {
			return protocol.Reply{}, false, wrongArgs(name)
		}
		return protocol.Bulk(args[0]), false, nil

	case "QUIT":
		return okReply, true, nil

	case "SET":
		if len(args) != 2 {
			return protocol.Reply{}, false, wrongArgs(name)
		}
		if err := store.Set(storeCtx, args[0], args[1]); err != nil {
			return protocol.Reply{}, false, err
		}
		return okReply, false, nil

	case "GET":
		if len(args) != 1 {
			return protocol.Reply{}, false, wrongArgs(name)
		}
		value, found, err := store.Get(storeCtx, args[0])
		if err != nil {
			return protocol.Reply{}, false, err
		}
		if !found {
			return protocol.NilBulk(), false, nil
		}
		return protocol.Bulk(value), false, nil

	case "MGET":
		if len(args) == 0 {
			return protocol.Reply{}, false, wrongArgs(name)
		}
		values := make([]protocol.Reply, 0, len(args))
		for _, key := range args {
			value, found, err := store.Get(storeCtx, key)
			if err != nil {
				return protocol.Reply{}, false, err
			}
			if !found {
				values = append(values, protocol.NilBulk())
				continue
			}
			values = append(values, protocol.Bulk(value))
		}
		return protocol.MultiBulk(values...), false, nil

	case "DEL":
		if len(args) == 0 {
			return protocol.Reply{}, false, wrongArgs(name)
		}
		n, err := store.Delete(storeCtx, args...)
		if err != nil {
			return protocol.Reply{}, false, err
		}
		return protocol.Integer(int64(n)), false, nil

	case "EXISTS":
		if len(args) == 0 {
			return protocol.Reply{}, false, wrongArgs(name)
		}
		var n int64
		for _, key := range args {
			found, err := store.Exists(storeCtx, key)
			if err != nil {
				return protocol.Reply{}, false, err
			}
			if found {
				n++
			}
		}
		return protocol.Integer(n), false, nil

	case "DBSIZE":
		if len(args) != 0 {
			return protocol.Reply{}, false, wrongArgs(name)
		}
		n, err := store.Len(storeCtx)
		if err != nil {
			return protocol.Reply{}, false, err
		}
		return protocol.Integer(int64(n)), false, nil
	}

	return protocol.Reply{}, false, commandError(fmt.Sprintf("ERR unknown command '%s'", truncate(name)))
}

func truncate(name []byte) string {
	if len(name) > 64 {
		return string(name[:64]) + "..."
	}
	return string(name)
}

// requestArgs extracts the arguments of a request, which must be a non
// empty multibulk of bulk strings.
func requestArgs(req protocol.Reply) ([][]byte, error) {
	elems, err := req.Elems()
	if err != nil || len(elems) == 0 {
		return nil, commandError("ERR Protocol error: expected a non empty multibulk request")
	}

	args := make([][]byte, len(elems))
	for i, elem := range elems {
		if elem.Kind() != protocol.KindBulk || elem.IsNil() {
			return nil, commandError("ERR Protocol error: expected bulk string arguments")
		}
		args[i], _ = elem.Bytes()
	}

	return args, nil
}
