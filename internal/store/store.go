package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrInvalidCache is returned when a document cannot be written to the cache target.
var ErrInvalidCache = errors.New("invalid cache")

// Kind identifies a cache strategy.
type Kind string

const (
	KindNone     Kind = "none"
	KindFile     Kind = "file"
	KindCallback Kind = "callback"
	KindMemory   Kind = "memory"
	KindRedis    Kind = "redis"
)

// ParseKind maps a configuration value onto a Kind.
func ParseKind(value string) (Kind, error) {
	switch Kind(value) {
	case "", KindNone:
		return KindNone, nil
	case KindFile, KindCallback, KindMemory, KindRedis:
		return Kind(value), nil
	default:
		return "", fmt.Errorf("unknown cache backend %q", value)
	}
}

// Store holds the last known raw rate document.
//
// Read reports false when nothing usable is stored. Write replaces the stored
// document; failures wrap ErrInvalidCache and must leave prior content in place.
type Store interface {
	Kind() Kind
	Read(ctx context.Context) ([]byte, bool)
	Write(ctx context.Context, raw []byte) error
}

// NullStore keeps nothing.
type NullStore struct{}

func (NullStore) Kind() Kind { return KindNone }

func (NullStore) Read(ctx context.Context) ([]byte, bool) { return nil, false }

func (NullStore) Write(ctx context.Context, raw []byte) error { return nil }

func invalidCache(target string, cause error) error {
	return fmt.Errorf("%w: %s: %v", ErrInvalidCache, target, cause)
}
