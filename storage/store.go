package storage

import (
	"context"
	"errors"
)

var ErrClosed = errors.New("store is closed")

// Store holds the keys served by the loopback server. Keys and values are
// arbitrary bytes.
type Store interface {
	Set(ctx context.Context, key, value []byte) error
	Get(ctx context.Context, key []byte) (value []byte, ok bool, err error)
	Delete(ctx context.Context, keys ...[]byte) (int, error)
	Exists(ctx context.Context, key []byte) (bool, error)
	Len(ctx context.Context) (int, error)

	Restore(values []byte) error
	Backup() ([]byte, error)

	Close() error
}
