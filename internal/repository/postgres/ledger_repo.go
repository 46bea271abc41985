package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"bistrobooks/internal/domain"
	"bistrobooks/internal/port"
)

type ledgerRepo struct {
	db *sqlx.DB
}

// NewLedgerRepo creates a new PostgreSQL-backed LedgerRepository.
func NewLedgerRepo(db *sqlx.DB) port.LedgerRepository {
	return &ledgerRepo{db: db}
}

func (r *ledgerRepo) Create(ctx context.Context, rec *domain.TransactionRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO transactions
		(id, type, source_or_category, amount, currency, date, confidence, modality,
		 note, raw_model_output, model_used, latency_ms, needs_review, review_reasons,
		 settlement_status, settles_at, receipt_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.Type, rec.SourceOrCategory, rec.Amount, rec.Currency, rec.Date,
		rec.Confidence, rec.Modality, rec.Note, rec.RawModelOutput, rec.ModelUsed,
		rec.LatencyMS, rec.NeedsReview, rec.ReviewReasons, rec.SettlementStatus,
		rec.SettlesAt, rec.ReceiptKey, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("ledgerRepo.Create: %w", err)
	}
	return nil
}

func (r *ledgerRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.TransactionRecord, error) {
	var rec domain.TransactionRecord
	err := r.db.GetContext(ctx, &rec, "SELECT * FROM transactions WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("ledgerRepo.GetByID: %w", err)
	}
	return &rec, nil
}

// buildLedgerWhere constructs a dynamic WHERE clause for transaction queries.
// It returns the clause string (empty when the filter is empty) and the
// positional arguments.
func buildLedgerWhere(filter port.LedgerFilter) (clause string, args []interface{}) {
	argN := 1

	if filter.Type != "" {
		clause += fmt.Sprintf(" AND type = $%d", argN)
		args = append(args, filter.Type)
		argN++
	}
	if !filter.From.IsZero() {
		clause += fmt.Sprintf(" AND date >= $%d", argN)
		args = append(args, filter.From)
		argN++
	}
	if !filter.To.IsZero() {
		clause += fmt.Sprintf(" AND date <= $%d", argN)
		args = append(args, filter.To)
		argN++
	}
	if filter.NeedsReview != nil {
		clause += fmt.Sprintf(" AND needs_review = $%d", argN)
		args = append(args, *filter.NeedsReview)
		argN++ //nolint:ineffassign // argN kept incremented for consistency
	}

	if clause != "" {
		clause = "WHERE " + strings.TrimPrefix(clause, " AND ")
	}
	return clause, args
}

func (r *ledgerRepo) List(ctx context.Context, filter port.LedgerFilter, offset, limit int) ([]domain.TransactionRecord, int, error) {
	whereClause, args := buildLedgerWhere(filter)

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM transactions %s", whereClause)
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("ledgerRepo.List count: %w", err)
	}

	dataQuery := fmt.Sprintf(`SELECT * FROM transactions %s
		 ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		whereClause, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	var recs []domain.TransactionRecord
	if err := r.db.SelectContext(ctx, &recs, dataQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("ledgerRepo.List: %w", err)
	}
	return recs, total, nil
}

func (r *ledgerRepo) ListBetween(ctx context.Context, from, to domain.Date) ([]domain.TransactionRecord, error) {
	var recs []domain.TransactionRecord
	err := r.db.SelectContext(ctx, &recs,
		`SELECT * FROM transactions
		 WHERE date >= $1 AND date <= $2
		 ORDER BY date ASC, created_at ASC`,
		from, to)
	if err != nil {
		return nil, fmt.Errorf("ledgerRepo.ListBetween: %w", err)
	}
	return recs, nil
}

func (r *ledgerRepo) MarkSettledDue(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"UPDATE transactions SET settlement_status = $1 WHERE settlement_status = $2 AND settles_at <= $3",
		domain.SettlementSettled, domain.SettlementPending, domain.NewDate(now))
	if err != nil {
		return 0, fmt.Errorf("ledgerRepo.MarkSettledDue: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("ledgerRepo.MarkSettledDue rows: %w", err)
	}
	return rows, nil
}
