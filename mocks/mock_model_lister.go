package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockModelLister is a mock implementation of port.ModelLister.
type MockModelLister struct {
	mock.Mock
}

func (m *MockModelLister) ListModels(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}
