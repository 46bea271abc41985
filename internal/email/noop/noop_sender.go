package noop

import (
	"context"
	"log"
	"strings"

	"bistrobooks/internal/domain"
	"bistrobooks/internal/port"
)

type noopSender struct{}

// NewNoopSender creates a no-op EmailSender that logs a short summary to
// stdout. Record notes are not logged; they can contain receipt text.
func NewNoopSender() port.EmailSender {
	return &noopSender{}
}

func (s *noopSender) SendReviewAlert(_ context.Context, toEmail string, rec *domain.TransactionRecord, reasons []string) error {
	log.Printf("[NOOP EMAIL] Review alert for %s: record=%s %s/%s %.2f %s confidence=%s reasons=%s",
		toEmail, rec.ID, rec.Type, rec.SourceOrCategory, rec.Amount, rec.Currency,
		rec.Confidence, strings.Join(reasons, "; "))
	return nil
}

func (s *noopSender) SendDailyDigest(_ context.Context, toEmail string, digest *domain.DailyDigest) error {
	log.Printf("[NOOP EMAIL] Daily digest for %s: day=%s revenue=%.2f expenses=%.2f records=%d flagged=%d",
		toEmail, digest.Day, digest.RevenueTotal, digest.ExpenseTotal, digest.Count, digest.NeedsReview)
	return nil
}
