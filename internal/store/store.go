// Package store provides the durable key/value JSON persistence layer.
//
// A single Store interface backs every record kind (runs, events, artifacts,
// hitl packets, locks). The backend is selected once at startup and injected
// everywhere; callers never branch on storage type.
package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when no value exists for the key.
var ErrNotFound = errors.New("store: key not found")

// Store is the uniform contract for all backends. Put must be an atomic
// replace: readers never observe a partially written value.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// Backend names accepted by Open.
const (
	BackendFS       = "fs"
	BackendS3       = "s3"
	BackendPostgres = "postgres"
)

// Options selects and configures a backend.
type Options struct {
	Backend string

	// fs
	DataDir string

	// s3
	S3Bucket     string
	S3Prefix     string
	S3Region     string
	S3Endpoint   string
	S3PathStyle  bool

	// postgres
	DatabaseURL string

	// CacheSize bounds the read-through LRU in entries. Zero disables caching.
	CacheSize int
}

// Open constructs the configured backend, wrapping it in the read-through
// cache when CacheSize is positive.
func Open(ctx context.Context, opts Options) (Store, error) {
	var (
		s   Store
		err error
	)
	switch opts.Backend {
	case BackendFS, "":
		s, err = NewFSStore(opts.DataDir)
	case BackendS3:
		s, err = NewS3Store(ctx, S3Options{
			Bucket:       opts.S3Bucket,
			Prefix:       opts.S3Prefix,
			Region:       opts.S3Region,
			Endpoint:     opts.S3Endpoint,
			UsePathStyle: opts.S3PathStyle,
		})
	case BackendPostgres:
		s, err = NewPGStore(ctx, opts.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
	if err != nil {
		return nil, err
	}
	if opts.CacheSize > 0 {
		return NewCached(s, opts.CacheSize)
	}
	return s, nil
}
