package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var ErrInvalidBackup = errors.New("backup is not a JSON object")

// InmemoryStore keeps every key in a single JSON object, which doubles as
// its backup format.
//
// Keys are stored base64url encoded behind a "k" prefix so that no key can
// be mistaken for gjson/sjson path syntax. Values are standard base64 so
// binary values survive the JSON round trip.
type InmemoryStore struct {
	mu     sync.RWMutex
	values []byte

	// stop will be closed when Close() is called
	stop chan struct{}
	once sync.Once
}

func NewInmemoryStore() *InmemoryStore {
	return &InmemoryStore{
		values: []byte("{}"),
		stop:   make(chan struct{}),
	}
}

func (i *InmemoryStore) Close() error {
	i.once.Do(func() {
		close(i.stop)
	})

	return nil
}

func (i *InmemoryStore) Set(ctx context.Context, key, value []byte) (err error) {
	if !i.isRunning() {
		return ErrClosed
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	values, err := sjson.SetBytes(i.values, encodeKey(key), base64.StdEncoding.EncodeToString(value))
	if err != nil {
		return fmt.Errorf("failed to set %q: %w", key, err)
	}

	i.values = values
	return nil
}

func (i *InmemoryStore) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	if !i.isRunning() {
		return nil, false, ErrClosed
	}

	i.mu.RLock()
	result := gjson.GetBytes(i.values, encodeKey(key))
	i.mu.RUnlock()

	if !result.Exists() {
		return nil, false, nil
	}

	value, err := base64.StdEncoding.DecodeString(result.String())
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode value of %q: %w", key, err)
	}

	return value, true, nil
}

// Delete removes keys and returns how many of them existed.
func (i *InmemoryStore) Delete(ctx context.Context, keys ...[]byte) (int, error) {
	if !i.isRunning() {
		return 0, ErrClosed
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	deleted := 0
	for _, key := range keys {
		path := encodeKey(key)
		if !gjson.GetBytes(i.values, path).Exists() {
			continue
		}

		values, err := sjson.DeleteBytes(i.values, path)
		if err != nil {
			return deleted, fmt.Errorf("failed to delete %q: %w", key, err)
		}

		i.values = values
		deleted++
	}

	return deleted, nil
}

func (i *InmemoryStore) Exists(ctx context.Context, key []byte) (bool, error) {
	if !i.isRunning() {
		return false, ErrClosed
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	return gjson.GetBytes(i.values, encodeKey(key)).Exists(), nil
}

func (i *InmemoryStore) Len(ctx context.Context) (int, error) {
	if !i.isRunning() {
		return 0, ErrClosed
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	n := 0
	gjson.ParseBytes(i.values).ForEach(func(_, _ gjson.Result) bool {
		n++
		return true
	})

	return n, nil
}

// Restore replaces every key with the contents of a backup. The backup must
// have been written by Backup: a JSON object of encoded keys and values.
func (i *InmemoryStore) Restore(values []byte) error {
	if !gjson.ValidBytes(values) || !gjson.ParseBytes(values).IsObject() {
		return ErrInvalidBackup
	}

	var err error
	gjson.ParseBytes(values).ForEach(func(key, value gjson.Result) bool {
		err = validateEntry(key.String(), value)
		return err == nil
	})
	if err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	i.values = append([]byte(nil), values...)
	return nil
}

func (i *InmemoryStore) Backup() ([]byte, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return append([]byte(nil), i.values...), nil
}

// isRunning returns true if Close has not been called
func (i *InmemoryStore) isRunning() bool {
	select {
	case <-i.stop:
		return false

	default:
		return true
	}
}

func validateEntry(key string, value gjson.Result) error {
	if !strings.HasPrefix(key, "k") {
		return fmt.Errorf("%w: key %q is not an encoded key", ErrInvalidBackup, key)
	}

	if _, err := base64.RawURLEncoding.DecodeString(key[1:]); err != nil {
		return fmt.Errorf("%w: key %q is not an encoded key: %v", ErrInvalidBackup, key, err)
	}

	if value.Type != gjson.String {
		return fmt.Errorf("%w: value of %q is not a string", ErrInvalidBackup, key)
	}

	if _, err := base64.StdEncoding.DecodeString(value.String()); err != nil {
		return fmt.Errorf("%w: value of %q is not base64: %v", ErrInvalidBackup, key, err)
	}

	return nil
}

func encodeKey(key []byte) string {
	return "k" + base64.RawURLEncoding.EncodeToString(key)
}

var _ Store = (*InmemoryStore)(nil)
