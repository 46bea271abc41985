package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
)

// MockObjectStorage is a mock implementation of port.ObjectStorage.
type MockObjectStorage struct {
	mock.Mock
}

func (m *MockObjectStorage) Upload(ctx context.Context, key string, body io.Reader, contentType string) error {
	args := m.Called(ctx, key, body, contentType)
	return args.Error(0)
}

func (m *MockObjectStorage) GetPresignedURL(ctx context.Context, key string, expirySeconds int64) (string, error) {
	args := m.Called(ctx, key, expirySeconds)
	return args.String(0), args.Error(1)
}
