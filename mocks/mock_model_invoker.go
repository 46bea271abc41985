package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"bistrobooks/internal/port"
)

// MockModelInvoker is a mock implementation of port.ModelInvoker.
type MockModelInvoker struct {
	mock.Mock
}

func (m *MockModelInvoker) Invoke(ctx context.Context, req *port.InvokeRequest) (*port.InvokeResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*port.InvokeResult), args.Error(1)
}
