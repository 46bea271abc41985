package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"bistrobooks/internal/domain"
)

// MockReportService is a mock implementation of service.ReportService.
type MockReportService struct {
	mock.Mock
}

func (m *MockReportService) WriteLedgerXLSX(ctx context.Context, from, to domain.Date, w io.Writer) error {
	args := m.Called(ctx, from, to, w)
	return args.Error(0)
}

func (m *MockReportService) BuildDailyDigest(ctx context.Context, day domain.Date) (*domain.DailyDigest, error) {
	args := m.Called(ctx, day)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DailyDigest), args.Error(1)
}

func (m *MockReportService) SendDailyDigest(ctx context.Context, day domain.Date) error {
	args := m.Called(ctx, day)
	return args.Error(0)
}
