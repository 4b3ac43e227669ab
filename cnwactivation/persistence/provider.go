// Package persistence provides durable key/value storage for activation state.
//
// Keys handed to a Provider are already one-way hashes; providers store them
// verbatim and never need to interpret them. Values are opaque strings.
package persistence

import (
	"context"
	"errors"
)

// ErrClosed is returned by providers used after Close.
var ErrClosed = errors.New("persistence provider closed")

// Provider stores opaque string values under opaque keys.
type Provider interface {
	// Store creates or replaces the value for key.
	Store(ctx context.Context, key, value string) error

	// Read returns the value for key. ok is false when no value was ever
	// stored; an empty string with ok=true is a stored empty value.
	Read(ctx context.Context, key string) (value string, ok bool, err error)

	// Close releases any resources held by the provider.
	Close(ctx context.Context) error
}
