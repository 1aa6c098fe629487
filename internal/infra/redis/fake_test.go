//go:build !integration

package redis

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// fakeClient is an in-memory RedisClient with a controllable clock.
type fakeClient struct {
	mu      sync.Mutex
	now     time.Time
	values  map[string]string
	expires map[string]time.Time
	failSet bool
}

var _ RedisClient = (*fakeClient)(nil)

func newFakeClient() *fakeClient {
	return &fakeClient{
		now:     time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
		values:  map[string]string{},
		expires: map[string]time.Time{},
	}
}

func (f *fakeClient) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fakeClient) evict(key string) {
	if exp, ok := f.expires[key]; ok && !f.now.Before(exp) {
		delete(f.values, key)
		delete(f.expires, key)
	}
}

func (f *fakeClient) Ping(ctx context.Context) error { return nil }

func (f *fakeClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = fmt.Sprint(value)
	if expiration > 0 {
		f.expires[key] = f.now.Add(expiration)
	}
	return nil
}

func (f *fakeClient) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evict(key)
	v, ok := f.values[key]
	if !ok {
		return "", Nil
	}
	return v, nil
}

func (f *fakeClient) Incr(ctx context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evict(key)
	var n int64
	fmt.Sscan(f.values[key], &n)
	n++
	f.values[key] = fmt.Sprint(n)
	return n, nil
}

func (f *fakeClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expires[key] = f.now.Add(expiration)
	return nil
}

func (f *fakeClient) TTL(ctx context.Context, key string) (time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evict(key)
	if _, ok := f.values[key]; !ok {
		return -2, nil
	}
	exp, ok := f.expires[key]
	if !ok {
		return -1, nil
	}
	return exp.Sub(f.now), nil
}

func (f *fakeClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSet {
		return false, fmt.Errorf("connection refused")
	}
	f.evict(key)
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = fmt.Sprint(value)
	if expiration > 0 {
		f.expires[key] = f.now.Add(expiration)
	}
	return true, nil
}

func (f *fakeClient) DelIfEquals(ctx context.Context, key, value string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.values[key] != value {
		return false, nil
	}
	delete(f.values, key)
	delete(f.expires, key)
	return true, nil
}

func (f *fakeClient) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.values, k)
		delete(f.expires, k)
	}
	return nil
}

func (f *fakeClient) Close() error { return nil }
