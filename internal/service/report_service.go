package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/xuri/excelize/v2"

	"bistrobooks/internal/domain"
	"bistrobooks/internal/port"
)

const ledgerSheet = "Ledger"

// ReportService builds ledger exports and the daily digest email.
type ReportService interface {
	// WriteLedgerXLSX streams an XLSX workbook of all records in [from, to]
	// into w, one row per record plus revenue/expense totals.
	WriteLedgerXLSX(ctx context.Context, from, to domain.Date, w io.Writer) error
	// BuildDailyDigest summarizes one calendar day of the ledger.
	BuildDailyDigest(ctx context.Context, day domain.Date) (*domain.DailyDigest, error)
	// SendDailyDigest builds and emails the digest for the given day.
	SendDailyDigest(ctx context.Context, day domain.Date) error
}

type reportService struct {
	ledger      port.LedgerRepository
	email       port.EmailSender // optional
	notifyEmail string
	currency    string
}

// NewReportService creates a new ReportService implementation.
func NewReportService(ledger port.LedgerRepository, email port.EmailSender, notifyEmail, currency string) ReportService {
	return &reportService{
		ledger:      ledger,
		email:       email,
		notifyEmail: notifyEmail,
		currency:    currency,
	}
}

var ledgerHeaders = []string{
	"Date", "Type", "Category", "Amount", "Currency", "Confidence",
	"Modality", "Settlement", "Settles At", "Needs Review", "Note", "Record ID",
}

func (s *reportService) WriteLedgerXLSX(ctx context.Context, from, to domain.Date, w io.Writer) error {
	recs, err := s.ledger.ListBetween(ctx, from, to)
	if err != nil {
		return fmt.Errorf("reportService.WriteLedgerXLSX: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", ledgerSheet); err != nil {
		return fmt.Errorf("reportService.WriteLedgerXLSX: %w", err)
	}

	for col, header := range ledgerHeaders {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("reportService.WriteLedgerXLSX: %w", err)
		}
		if err := f.SetCellValue(ledgerSheet, cell, header); err != nil {
			return fmt.Errorf("reportService.WriteLedgerXLSX: %w", err)
		}
	}
	if styleID, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetCellStyle(ledgerSheet, "A1", "L1", styleID)
	}

	var revenueTotal, expenseTotal float64
	for i, rec := range recs {
		settlesAt := ""
		if rec.SettlesAt != nil {
			settlesAt = rec.SettlesAt.String()
		}
		values := []interface{}{
			rec.Date.String(), string(rec.Type), rec.SourceOrCategory, rec.Amount,
			rec.Currency, string(rec.Confidence), string(rec.Modality),
			string(rec.SettlementStatus), settlesAt, rec.NeedsReview, rec.Note,
			rec.ID.String(),
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return fmt.Errorf("reportService.WriteLedgerXLSX: %w", err)
			}
			if err := f.SetCellValue(ledgerSheet, cell, v); err != nil {
				return fmt.Errorf("reportService.WriteLedgerXLSX: %w", err)
			}
		}

		if rec.Type == domain.TypeRevenue {
			revenueTotal += rec.Amount
		} else {
			expenseTotal += rec.Amount
		}
	}

	totalsRow := len(recs) + 3
	totals := []struct {
		label string
		value float64
	}{
		{"Revenue total", revenueTotal},
		{"Expense total", expenseTotal},
		{"Net", revenueTotal - expenseTotal},
	}
	for i, t := range totals {
		row := totalsRow + i
		if err := f.SetCellValue(ledgerSheet, fmt.Sprintf("C%d", row), t.label); err != nil {
			return fmt.Errorf("reportService.WriteLedgerXLSX: %w", err)
		}
		if err := f.SetCellValue(ledgerSheet, fmt.Sprintf("D%d", row), t.value); err != nil {
			return fmt.Errorf("reportService.WriteLedgerXLSX: %w", err)
		}
	}

	_ = f.SetColWidth(ledgerSheet, "A", "L", 16)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("reportService.WriteLedgerXLSX: %w", err)
	}
	return nil
}

func (s *reportService) BuildDailyDigest(ctx context.Context, day domain.Date) (*domain.DailyDigest, error) {
	recs, err := s.ledger.ListBetween(ctx, day, day)
	if err != nil {
		return nil, fmt.Errorf("reportService.BuildDailyDigest: %w", err)
	}

	digest := &domain.DailyDigest{
		Day:        day,
		ByCategory: make(map[string]float64),
		Currency:   s.currency,
	}
	for _, rec := range recs {
		digest.Count++
		if rec.NeedsReview {
			digest.NeedsReview++
		}
		if rec.Type == domain.TypeRevenue {
			digest.RevenueTotal += rec.Amount
		} else {
			digest.ExpenseTotal += rec.Amount
		}
		// Both taxonomies contain "other", so keys carry the type.
		digest.ByCategory[fmt.Sprintf("%s/%s", rec.Type, rec.SourceOrCategory)] += rec.Amount
	}
	return digest, nil
}

func (s *reportService) SendDailyDigest(ctx context.Context, day domain.Date) error {
	if s.email == nil || s.notifyEmail == "" {
		return nil
	}
	digest, err := s.BuildDailyDigest(ctx, day)
	if err != nil {
		return err
	}
	if err := s.email.SendDailyDigest(ctx, s.notifyEmail, digest); err != nil {
		return fmt.Errorf("reportService.SendDailyDigest: %w", err)
	}
	log.Printf("reportService.SendDailyDigest: sent digest for %s (%d records)", day, digest.Count)
	return nil
}

// Yesterday returns the previous calendar day relative to now; the daily
// digest cron reports on the day that just closed.
func Yesterday(now time.Time) domain.Date {
	return domain.NewDate(now.AddDate(0, 0, -1))
}
