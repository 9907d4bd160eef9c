package storage

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockBackend is a testify mock of Backend.
type MockBackend struct {
	mock.Mock
}

// Exists is the mock implementation of Backend.Exists.
func (m *MockBackend) Exists(ctx context.Context, path string) (bool, error) {
	args := m.Called(ctx, path)
	return args.Bool(0), args.Error(1) //nolint:wrapcheck
}

// Read is the mock implementation of Backend.Read.
func (m *MockBackend) Read(ctx context.Context, path string) ([]byte, error) {
	args := m.Called(ctx, path)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1) //nolint:wrapcheck
}

// Write is the mock implementation of Backend.Write.
func (m *MockBackend) Write(ctx context.Context, path string, data []byte) (int64, error) {
	args := m.Called(ctx, path, data)
	return args.Get(0).(int64), args.Error(1) //nolint:wrapcheck
}

// Delete is the mock implementation of Backend.Delete.
func (m *MockBackend) Delete(ctx context.Context, path string) error {
	args := m.Called(ctx, path)
	return args.Error(0) //nolint:wrapcheck
}

// Move is the mock implementation of Backend.Move.
func (m *MockBackend) Move(ctx context.Context, src, dst string) error {
	args := m.Called(ctx, src, dst)
	return args.Error(0) //nolint:wrapcheck
}

// List is the mock implementation of Backend.List.
func (m *MockBackend) List(ctx context.Context, prefix string) ([]string, error) {
	args := m.Called(ctx, prefix)
	paths, _ := args.Get(0).([]string)
	return paths, args.Error(1) //nolint:wrapcheck
}

// Size is the mock implementation of Backend.Size.
func (m *MockBackend) Size(ctx context.Context, path string) (int64, error) {
	args := m.Called(ctx, path)
	return args.Get(0).(int64), args.Error(1) //nolint:wrapcheck
}
