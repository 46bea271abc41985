package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"bistrobooks/internal/domain"
)

// MockEmailSender is a mock implementation of port.EmailSender.
type MockEmailSender struct {
	mock.Mock
}

func (m *MockEmailSender) SendReviewAlert(ctx context.Context, toEmail string, rec *domain.TransactionRecord, reasons []string) error {
	args := m.Called(ctx, toEmail, rec, reasons)
	return args.Error(0)
}

func (m *MockEmailSender) SendDailyDigest(ctx context.Context, toEmail string, digest *domain.DailyDigest) error {
	args := m.Called(ctx, toEmail, digest)
	return args.Error(0)
}
