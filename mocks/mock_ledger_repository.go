package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"bistrobooks/internal/domain"
	"bistrobooks/internal/port"
)

// MockLedgerRepository is a mock implementation of port.LedgerRepository.
type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) Create(ctx context.Context, rec *domain.TransactionRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockLedgerRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.TransactionRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TransactionRecord), args.Error(1)
}

func (m *MockLedgerRepository) List(ctx context.Context, filter port.LedgerFilter, offset, limit int) ([]domain.TransactionRecord, int, error) {
	args := m.Called(ctx, filter, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.TransactionRecord), args.Int(1), args.Error(2)
}

func (m *MockLedgerRepository) ListBetween(ctx context.Context, from, to domain.Date) ([]domain.TransactionRecord, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.TransactionRecord), args.Error(1)
}

func (m *MockLedgerRepository) MarkSettledDue(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}
