package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"net/url"
	"strconv"
	"sync"
	"time"

	"formative-compliance/internal/domain"
	"formative-compliance/internal/domain/ports/adapter"
)

var _ adapter.ObjectStorage = (*MemoryStorage)(nil)

// MemoryStorage is an in-process ObjectStorage for development and tests. Presigned URLs
// point at baseURL and are only meaningful to callers that read Object directly.
type MemoryStorage struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string]memObject
}

type memObject struct {
	contentType string
	data        []byte
}

func NewMemoryStorage(baseURL string) *MemoryStorage {
	return &MemoryStorage{baseURL: baseURL, objects: map[string]memObject{}}
}

func (m *MemoryStorage) Put(ctx context.Context, key, contentType string, body io.Reader) (*adapter.StoredObject, error) {
	b, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	sum := md5.Sum(b)
	m.mu.Lock()
	m.objects[key] = memObject{contentType: contentType, data: b}
	m.mu.Unlock()
	return &adapter.StoredObject{Key: key, Size: int64(len(b)), ETag: hex.EncodeToString(sum[:])}, nil
}

func (m *MemoryStorage) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	m.mu.RLock()
	_, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return "", domain.ErrNotFound
	}
	exp := time.Now().Add(ttl).Unix()
	return m.baseURL + "/" + url.PathEscape(key) + "?expires=" + strconv.FormatInt(exp, 10), nil
}

func (m *MemoryStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

// Object returns the stored bytes and content type for key.
func (m *MemoryStorage) Object(key string) ([]byte, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.objects[key]
	return o.data, o.contentType, ok
}
