// Package store keeps accounts, sessions, profiles and document collections
// as JSON records in flat namespaces of a kv.Backend.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"betclever/internal/auth"
	"betclever/internal/blob"
	"betclever/internal/kv"
	"betclever/internal/logging"
	"betclever/internal/status"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrTermsNotAccepted   = errors.New("terms not accepted")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnknownBucket      = errors.New("unknown document bucket")
	ErrIndexOutOfRange    = errors.New("document index out of range")
	ErrInvalidBirthDate   = errors.New("invalid birth date")
)

const (
	nsAccounts  = "accounts"
	nsEmails    = "emails"
	nsSessions  = "sessions"
	nsProfiles  = "profiles"
	nsDocuments = "documents"
)

// mutateAttempts bounds the optimistic read-modify-write loop.
const mutateAttempts = 3

// BootstrapAdmin is materialized when the account namespace is found empty.
type BootstrapAdmin struct {
	ID       string
	Email    string
	Password string
}

var DefaultBootstrapAdmin = BootstrapAdmin{ID: "1", Email: "admin@betclever.de", Password: "Ver4Wittert!Ver4Wittert!"}

type options struct {
	admin       BootstrapAdmin
	hash        auth.Params
	policy      status.Policy
	now         func() time.Time
	blobs       blob.Store
	log         logging.Logger
	sessionAbs  time.Duration
	sessionIdle time.Duration
	maxFileSize int64
}

type Option func(*options)

func WithBootstrapAdmin(a BootstrapAdmin) Option { return func(o *options) { o.admin = a } }

// WithPasswordParams overrides the Argon2id cost; tests use auth.FastParams.
func WithPasswordParams(p auth.Params) Option { return func(o *options) { o.hash = p } }

func WithPolicy(p status.Policy) Option { return func(o *options) { o.policy = p } }

func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

func WithBlobStore(b blob.Store) Option { return func(o *options) { o.blobs = b } }

func WithLogger(l logging.Logger) Option { return func(o *options) { o.log = l } }

func WithSessionTTL(absolute, idle time.Duration) Option {
	return func(o *options) {
		o.sessionAbs = absolute
		o.sessionIdle = idle
	}
}

func WithMaxFileSize(n int64) Option { return func(o *options) { o.maxFileSize = n } }

// Store bundles the four repositories over one backend.
type Store struct {
	kv        kv.Backend
	Accounts  *Accounts
	Sessions  *Sessions
	Profiles  *Profiles
	Documents *Documents
}

func New(backend kv.Backend, opts ...Option) *Store {
	o := options{
		admin:       DefaultBootstrapAdmin,
		hash:        auth.DefaultParams,
		policy:      status.Permissive{},
		now:         time.Now,
		blobs:       blob.Inline{},
		log:         logging.Nop(),
		sessionAbs:  7 * 24 * time.Hour,
		sessionIdle: 24 * time.Hour,
		maxFileSize: 10 << 20,
	}
	for _, fn := range opts {
		fn(&o)
	}
	return &Store{
		kv:        backend,
		Accounts:  &Accounts{kv: backend, admin: o.admin, hash: o.hash, now: o.now},
		Sessions:  &Sessions{kv: backend, now: o.now, absolute: o.sessionAbs, idle: o.sessionIdle},
		Profiles:  &Profiles{kv: backend, policy: o.policy},
		Documents: &Documents{kv: backend, blobs: o.blobs, now: o.now, log: o.log, maxFileSize: o.maxFileSize},
	}
}

func (s *Store) Ping(ctx context.Context) error { return s.kv.Ping(ctx) }

func (s *Store) Close() error { return s.kv.Close() }

func getJSON[T any](ctx context.Context, b kv.Backend, ns, key string) (T, int64, error) {
	var v T
	e, err := b.Get(ctx, ns, key)
	if errors.Is(err, kv.ErrNotFound) {
		return v, 0, ErrNotFound
	}
	if err != nil {
		return v, 0, err
	}
	if err := json.Unmarshal(e.Value, &v); err != nil {
		return v, 0, fmt.Errorf("decode %s/%s: %w", ns, key, err)
	}
	return v, e.Version, nil
}

func putJSON(ctx context.Context, b kv.Backend, ns, key string, v any, expect int64) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", ns, key, err)
	}
	_, err = b.Put(ctx, ns, key, buf, expect)
	return err
}

type record[T any] struct {
	Key   string
	Value T
}

func listJSON[T any](ctx context.Context, b kv.Backend, ns string) ([]record[T], error) {
	entries, err := b.List(ctx, ns)
	if err != nil {
		return nil, err
	}
	out := make([]record[T], 0, len(entries))
	for _, e := range entries {
		var v T
		if err := json.Unmarshal(e.Value, &v); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", ns, e.Key, err)
		}
		out = append(out, record[T]{Key: e.Key, Value: v})
	}
	return out, nil
}

// mutate applies fn to the stored record and writes it back guarded by the
// version read. Lost races are retried; ErrConflict is returned once the
// attempts are exhausted. Errors from fn abort without writing.
func mutate[T any](ctx context.Context, b kv.Backend, ns, key string, fn func(*T) error) (T, error) {
	var zero T
	for attempt := 0; attempt < mutateAttempts; attempt++ {
		v, version, err := getJSON[T](ctx, b, ns, key)
		if err != nil {
			return zero, err
		}
		if err := fn(&v); err != nil {
			return zero, err
		}
		err = putJSON(ctx, b, ns, key, v, version)
		if errors.Is(err, kv.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return zero, err
		}
		return v, nil
	}
	return zero, ErrConflict
}

func deleteKey(ctx context.Context, b kv.Backend, ns, key string) error {
	err := b.Delete(ctx, ns, key)
	if errors.Is(err, kv.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
