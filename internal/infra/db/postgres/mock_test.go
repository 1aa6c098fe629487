//go:build !integration

package postgres

import (
	"context"
	"time"

	"formative-compliance/internal/domain/model"
	"formative-compliance/internal/domain/ports/repository"
	red "formative-compliance/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

// mockInnerEntitlementRepo mocks the database repository that the decorator wraps.
type mockInnerEntitlementRepo struct {
	GrantFunc              func(ctx context.Context, tx repository.Tx, e *model.Entitlement) error
	RevokeByAccessTypeFunc func(ctx context.Context, tx repository.Tx, userID string, accessType model.AccessType, at time.Time) (int, error)
	FindValidByUserFunc    func(ctx context.Context, tx repository.Tx, userID string, now time.Time) ([]*model.Entitlement, error)
	FindValidByProductFunc func(ctx context.Context, tx repository.Tx, userID, productName string, now time.Time) (*model.Entitlement, error)
	ListByUserFunc         func(ctx context.Context, tx repository.Tx, userID string) ([]*model.Entitlement, error)
}

func (m *mockInnerEntitlementRepo) Grant(ctx context.Context, tx repository.Tx, e *model.Entitlement) error {
	return m.GrantFunc(ctx, tx, e)
}
func (m *mockInnerEntitlementRepo) RevokeByAccessType(ctx context.Context, tx repository.Tx, userID string, accessType model.AccessType, at time.Time) (int, error) {
	return m.RevokeByAccessTypeFunc(ctx, tx, userID, accessType, at)
}
func (m *mockInnerEntitlementRepo) FindValidByUser(ctx context.Context, tx repository.Tx, userID string, now time.Time) ([]*model.Entitlement, error) {
	return m.FindValidByUserFunc(ctx, tx, userID, now)
}
func (m *mockInnerEntitlementRepo) FindValidByProduct(ctx context.Context, tx repository.Tx, userID, productName string, now time.Time) (*model.Entitlement, error) {
	return m.FindValidByProductFunc(ctx, tx, userID, productName, now)
}
func (m *mockInnerEntitlementRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Entitlement, error) {
	return m.ListByUserFunc(ctx, tx, userID)
}

// mockRedisClient mocks our Redis client wrapper.
type mockRedisClient struct {
	GetFunc         func(ctx context.Context, key string) (string, error)
	SetFunc         func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc         func(ctx context.Context, keys ...string) error
	PingFunc        func(ctx context.Context) error
	IncrFunc        func(ctx context.Context, key string) (int64, error)
	ExpireFunc      func(ctx context.Context, key string, expiration time.Duration) error
	TTLFunc         func(ctx context.Context, key string) (time.Duration, error)
	SetNXFunc       func(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	DelIfEqualsFunc func(ctx context.Context, key, value string) (bool, error)
	CloseFunc       func() error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc == nil {
		return "", red.Nil
	}
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc == nil {
		return nil
	}
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	if m.DelFunc == nil {
		return nil
	}
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error { return m.PingFunc(ctx) }
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return m.IncrFunc(ctx, key)
}
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return m.ExpireFunc(ctx, key, expiration)
}
func (m *mockRedisClient) TTL(ctx context.Context, key string) (time.Duration, error) {
	return m.TTLFunc(ctx, key)
}
func (m *mockRedisClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return m.SetNXFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) DelIfEquals(ctx context.Context, key, value string) (bool, error) {
	return m.DelIfEqualsFunc(ctx, key, value)
}
func (m *mockRedisClient) Close() error { return m.CloseFunc() }
