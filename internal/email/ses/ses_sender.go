package ses

import (
	"context"
	"fmt"
	"sort"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"bistrobooks/internal/domain"
	"bistrobooks/internal/port"
)

type sesSender struct {
	client      *sesv2.Client
	fromAddress string
	fromName    string
}

// NewSESSender creates a new SES-backed EmailSender.
func NewSESSender(region, fromAddress, fromName string) (port.EmailSender, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config for SES: %w", err)
	}
	client := sesv2.NewFromConfig(cfg)
	return &sesSender{
		client:      client,
		fromAddress: fromAddress,
		fromName:    fromName,
	}, nil
}

func (s *sesSender) SendReviewAlert(ctx context.Context, toEmail string, rec *domain.TransactionRecord, reasons []string) error {
	subject := fmt.Sprintf("Transaction flagged for review: %.2f %s %s", rec.Amount, rec.Currency, rec.SourceOrCategory)
	htmlBody := buildReviewAlertHTML(rec, reasons)
	textBody := fmt.Sprintf(
		"A transaction was flagged for manual review.\n\nRecord: %s\nType: %s\nCategory: %s\nAmount: %.2f %s\nDate: %s\nConfidence: %s\n\nReasons:\n- %s\n\nBistroBooks",
		rec.ID, rec.Type, rec.SourceOrCategory, rec.Amount, rec.Currency, rec.Date,
		rec.Confidence, strings.Join(reasons, "\n- "))

	return s.send(ctx, toEmail, subject, htmlBody, textBody)
}

func (s *sesSender) SendDailyDigest(ctx context.Context, toEmail string, digest *domain.DailyDigest) error {
	subject := fmt.Sprintf("Daily ledger digest for %s", digest.Day)
	htmlBody := buildDigestHTML(digest)

	var text strings.Builder
	fmt.Fprintf(&text, "Ledger summary for %s\n\n", digest.Day)
	fmt.Fprintf(&text, "Revenue:  %.2f %s\n", digest.RevenueTotal, digest.Currency)
	fmt.Fprintf(&text, "Expenses: %.2f %s\n", digest.ExpenseTotal, digest.Currency)
	fmt.Fprintf(&text, "Net:      %.2f %s\n", digest.RevenueTotal-digest.ExpenseTotal, digest.Currency)
	fmt.Fprintf(&text, "Records:  %d (%d flagged for review)\n\n", digest.Count, digest.NeedsReview)
	for _, cat := range sortedCategories(digest.ByCategory) {
		fmt.Fprintf(&text, "%-20s %.2f\n", cat, digest.ByCategory[cat])
	}
	text.WriteString("\nBistroBooks")

	return s.send(ctx, toEmail, subject, htmlBody, text.String())
}

func (s *sesSender) send(ctx context.Context, toEmail, subject, htmlBody, textBody string) error {
	from := fmt.Sprintf("%s <%s>", s.fromName, s.fromAddress)

	_, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: &from,
		Destination: &types.Destination{
			ToAddresses: []string{toEmail},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: &subject},
				Body: &types.Body{
					Html: &types.Content{Data: &htmlBody},
					Text: &types.Content{Data: &textBody},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("SES SendEmail: %w", err)
	}
	return nil
}

func sortedCategories(byCategory map[string]float64) []string {
	cats := make([]string, 0, len(byCategory))
	for cat := range byCategory {
		cats = append(cats, cat)
	}
	sort.Strings(cats)
	return cats
}

func buildReviewAlertHTML(rec *domain.TransactionRecord, reasons []string) string {
	var items strings.Builder
	for _, reason := range reasons {
		fmt.Fprintf(&items, "<li>%s</li>", reason)
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h2 style="color: #333;">Transaction flagged for review</h2>
  <table style="border-collapse: collapse; width: 100%%;">
    <tr><td style="padding: 6px; color: #666;">Record</td><td style="padding: 6px;">%s</td></tr>
    <tr><td style="padding: 6px; color: #666;">Type</td><td style="padding: 6px;">%s</td></tr>
    <tr><td style="padding: 6px; color: #666;">Category</td><td style="padding: 6px;">%s</td></tr>
    <tr><td style="padding: 6px; color: #666;">Amount</td><td style="padding: 6px;">%.2f %s</td></tr>
    <tr><td style="padding: 6px; color: #666;">Date</td><td style="padding: 6px;">%s</td></tr>
    <tr><td style="padding: 6px; color: #666;">Confidence</td><td style="padding: 6px;">%s</td></tr>
  </table>
  <h3 style="color: #333;">Reasons</h3>
  <ul>%s</ul>
  <hr style="border: none; border-top: 1px solid #eee; margin: 20px 0;">
  <p style="color: #999; font-size: 12px;">BistroBooks - Restaurant Bookkeeping</p>
</body>
</html>`, rec.ID, rec.Type, rec.SourceOrCategory, rec.Amount, rec.Currency, rec.Date, rec.Confidence, items.String())
}

func buildDigestHTML(digest *domain.DailyDigest) string {
	var rows strings.Builder
	for _, cat := range sortedCategories(digest.ByCategory) {
		fmt.Fprintf(&rows, `<tr><td style="padding: 6px;">%s</td><td style="padding: 6px; text-align: right;">%.2f</td></tr>`,
			cat, digest.ByCategory[cat])
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h2 style="color: #333;">Ledger summary for %s</h2>
  <table style="border-collapse: collapse; width: 100%%;">
    <tr><td style="padding: 6px; color: #666;">Revenue</td><td style="padding: 6px; text-align: right;">%.2f %s</td></tr>
    <tr><td style="padding: 6px; color: #666;">Expenses</td><td style="padding: 6px; text-align: right;">%.2f %s</td></tr>
    <tr><td style="padding: 6px; color: #666;">Net</td><td style="padding: 6px; text-align: right;">%.2f %s</td></tr>
    <tr><td style="padding: 6px; color: #666;">Records</td><td style="padding: 6px; text-align: right;">%d (%d flagged)</td></tr>
  </table>
  <h3 style="color: #333;">By category</h3>
  <table style="border-collapse: collapse; width: 100%%;">%s</table>
  <hr style="border: none; border-top: 1px solid #eee; margin: 20px 0;">
  <p style="color: #999; font-size: 12px;">BistroBooks - Restaurant Bookkeeping</p>
</body>
</html>`, digest.Day,
		digest.RevenueTotal, digest.Currency,
		digest.ExpenseTotal, digest.Currency,
		digest.RevenueTotal-digest.ExpenseTotal, digest.Currency,
		digest.Count, digest.NeedsReview, rows.String())
}
