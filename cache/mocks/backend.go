package mocks

import (
	"context"
	"errors"
	"time"
)

// MockBackend is a function-based mock of cache.Backend.
type MockBackend struct {
	GetFunc    func(ctx context.Context, key string, dest any) error
	SetFunc    func(ctx context.Context, key string, value any, expiration time.Duration) error
	DeleteFunc func(ctx context.Context, key string) error
}

// Get implements cache.Backend. Without GetFunc every lookup misses.
func (m *MockBackend) Get(ctx context.Context, key string, dest any) error {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key, dest)
	}
	return errors.New("cache miss")
}

// Set implements cache.Backend.
func (m *MockBackend) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value, expiration)
	}
	return nil
}

// Delete implements cache.Backend.
func (m *MockBackend) Delete(ctx context.Context, key string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, key)
	}
	return nil
}
