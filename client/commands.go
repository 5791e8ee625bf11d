package client

import (
	"fmt"

	"github.com/luma/resplite/protocol"
)

var (
	pingCmd   = []byte("PING")
	echoCmd   = []byte("ECHO")
	getCmd    = []byte("GET")
	setCmd    = []byte("SET")
	delCmd    = []byte("DEL")
	existsCmd = []byte("EXISTS")
	quitCmd   = []byte("QUIT")
)

// UnexpectedReplyError is returned by the typed helpers when the server sent
// a well formed reply of a kind the command never returns.
type UnexpectedReplyError struct {
	Command string
	Reply   protocol.Reply
}

func (e *UnexpectedReplyError) Error() string {
	return fmt.Sprintf("unexpected %s reply to %s: %s", e.Reply.Kind(), e.Command, e.Reply)
}

func (c *Conn) Ping() error {
	reply, err := c.DoArgs(pingCmd)
	if err != nil {
		return err
	}

	return expectStatus("PING", reply, "PONG")
}

func (c *Conn) Echo(msg []byte) ([]byte, error) {
	reply, err := c.DoArgs(echoCmd, msg)
	if err != nil {
		return nil, err
	}

	b, err := reply.Bytes()
	if err != nil {
		return nil, &UnexpectedReplyError{Command: "ECHO", Reply: reply}
	}

	return b, nil
}

// Get returns the value of key. ok is false if the key does not exist.
func (c *Conn) Get(key string) (value []byte, ok bool, err error) {
	reply, err := c.DoArgs(getCmd, []byte(key))
	if err != nil {
		return nil, false, err
	}

	if reply.Kind() != protocol.KindBulk {
		return nil, false, &UnexpectedReplyError{Command: "GET", Reply: reply}
	}

	if reply.IsNil() {
		return nil, false, nil
	}

	value, _ = reply.Bytes()
	return value, true, nil
}

func (c *Conn) Set(key string, value []byte) error {
	reply, err := c.DoArgs(setCmd, []byte(key), value)
	if err != nil {
		return err
	}

	return expectStatus("SET", reply, "OK")
}

// Del removes keys and returns how many of them existed.
func (c *Conn) Del(keys ...string) (int64, error) {
	return c.intCommand("DEL", delCmd, keys)
}

func (c *Conn) Exists(key string) (bool, error) {
	n, err := c.intCommand("EXISTS", existsCmd, []string{key})
	return n > 0, err
}

// Quit asks the server to close the connection, then closes it locally.
func (c *Conn) Quit() error {
	reply, err := c.DoArgs(quitCmd)
	if err != nil {
		return err
	}

	if err := expectStatus("QUIT", reply, "OK"); err != nil {
		return err
	}

	return c.Close()
}

func (c *Conn) intCommand(name string, cmd []byte, keys []string) (int64, error) {
	args := make([][]byte, 0, len(keys)+1)
	args = append(args, cmd)
	for _, k := range keys {
		args = append(args, []byte(k))
	}

	reply, err := c.DoArgs(args...)
	if err != nil {
		return 0, err
	}

	if reply.Kind() != protocol.KindInteger {
		return 0, &UnexpectedReplyError{Command: name, Reply: reply}
	}

	return reply.Int64()
}

func expectStatus(cmd string, reply protocol.Reply, status string) error {
	if reply.Kind() != protocol.KindStatus {
		return &UnexpectedReplyError{Command: cmd, Reply: reply}
	}

	if s, _ := reply.Str(); s != status {
		return &UnexpectedReplyError{Command: cmd, Reply: reply}
	}

	return nil
}
