package port

import (
	"context"

	"bistrobooks/internal/domain"
)

// EmailSender defines the contract for operator notifications.
type EmailSender interface {
	// SendReviewAlert notifies the operator that a record was flagged for
	// manual review, with the reasons it tripped.
	SendReviewAlert(ctx context.Context, toEmail string, rec *domain.TransactionRecord, reasons []string) error
	// SendDailyDigest delivers the previous day's ledger summary.
	SendDailyDigest(ctx context.Context, toEmail string, digest *domain.DailyDigest) error
}
