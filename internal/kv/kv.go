// Package kv is the flat, namespaced key-value backing behind the account,
// session, profile and document stores. Values are opaque bytes (JSON in
// practice) carrying a monotonically increasing version per key.
package kv

import (
	"context"
	"errors"
)

var (
	ErrNotFound        = errors.New("kv: not found")
	ErrVersionConflict = errors.New("kv: version conflict")
)

// AnyVersion disables the version check on Put.
const AnyVersion int64 = -1

type Entry struct {
	Key     string
	Value   []byte
	Version int64
}

type Backend interface {
	Get(ctx context.Context, ns, key string) (Entry, error)
	// List returns every entry of ns ordered by key.
	List(ctx context.Context, ns string) ([]Entry, error)
	// Put stores value and returns the new version. expect is AnyVersion,
	// 0 for "must not exist", or the version the caller last read.
	Put(ctx context.Context, ns, key string, value []byte, expect int64) (int64, error)
	Delete(ctx context.Context, ns, key string) error
	Ping(ctx context.Context) error
	Close() error
}
