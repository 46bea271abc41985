package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"bistrobooks/internal/domain"
	"bistrobooks/internal/port"
	"bistrobooks/internal/service"
)

// MockTransactionService is a mock implementation of service.TransactionService.
type MockTransactionService struct {
	mock.Mock
}

func (m *MockTransactionService) ProcessText(ctx context.Context, input *service.ProcessTextInput) (*domain.TransactionRecord, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TransactionRecord), args.Error(1)
}

func (m *MockTransactionService) ProcessReceipt(ctx context.Context, input *service.ProcessReceiptInput) (*domain.TransactionRecord, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TransactionRecord), args.Error(1)
}

func (m *MockTransactionService) GetByID(ctx context.Context, id uuid.UUID) (*domain.TransactionRecord, string, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.String(1), args.Error(2)
	}
	return args.Get(0).(*domain.TransactionRecord), args.String(1), args.Error(2)
}

func (m *MockTransactionService) List(ctx context.Context, filter port.LedgerFilter, offset, limit int) ([]domain.TransactionRecord, int, error) {
	args := m.Called(ctx, filter, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.TransactionRecord), args.Int(1), args.Error(2)
}
