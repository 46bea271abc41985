package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"bistrobooks/internal/port"
)

// MockListingInvoker is a mock backend implementing both port.ModelInvoker
// and port.ModelLister, like the LM Studio adapter does.
type MockListingInvoker struct {
	mock.Mock
}

func (m *MockListingInvoker) Invoke(ctx context.Context, req *port.InvokeRequest) (*port.InvokeResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*port.InvokeResult), args.Error(1)
}

func (m *MockListingInvoker) ListModels(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}
