package driver

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound returned by KeyValueDB.Get when the key is absent or expired
var ErrKeyNotFound = errors.New("key not found")

// ErrClosed returned when the store has been closed
var ErrClosed = errors.New("kv store closed")

// KeyValueDB define a key-value storage interface
//
// an expiration of zero means the value never expires
type KeyValueDB interface {
	Set(ctx context.Context, key string, value string, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}
