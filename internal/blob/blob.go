// Package blob holds document bytes. Stored documents carry a content string
// that is either an inline data URL or a reference into an object store.
package blob

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrBadRef      = errors.New("blob: malformed content reference")
	ErrUnsupported = errors.New("blob: reference not served by this store")
)

type Store interface {
	// Put stores data and returns the content string to persist with the document.
	Put(ctx context.Context, owner, fileName, contentType string, data []byte) (string, error)
	// Get returns the bytes and content type behind ref.
	Get(ctx context.Context, ref string) ([]byte, string, error)
	Delete(ctx context.Context, ref string) error
}

// IsInline reports whether ref carries its bytes itself.
func IsInline(ref string) bool { return strings.HasPrefix(ref, "data:") }

// Inline keeps content inside the document record as a base64 data URL.
type Inline struct{}

func (Inline) Put(_ context.Context, _, _, contentType string, data []byte) (string, error) {
	return EncodeDataURL(contentType, data), nil
}

func (Inline) Get(_ context.Context, ref string) ([]byte, string, error) {
	if !IsInline(ref) {
		return nil, "", ErrUnsupported
	}
	return DecodeDataURL(ref)
}

func (Inline) Delete(context.Context, string) error { return nil }

func EncodeDataURL(contentType string, data []byte) string {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func DecodeDataURL(ref string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(ref, "data:")
	if !ok {
		return nil, "", ErrBadRef
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", ErrBadRef
	}
	contentType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return []byte(payload), contentType, nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrBadRef, err)
	}
	return data, contentType, nil
}

// Resolve reads ref through store, falling back to inline decoding so that
// documents saved before an object store was configured stay readable.
func Resolve(ctx context.Context, store Store, ref string) ([]byte, string, error) {
	if IsInline(ref) {
		return DecodeDataURL(ref)
	}
	if store == nil {
		return nil, "", ErrUnsupported
	}
	return store.Get(ctx, ref)
}
