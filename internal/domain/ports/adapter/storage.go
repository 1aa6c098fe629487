package adapter

import (
	"context"
	"io"
	"time"
)

type StoredObject struct {
	Key  string
	Size int64
	ETag string
}

// ObjectStorage holds rendered documents.
type ObjectStorage interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) (*StoredObject, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}
