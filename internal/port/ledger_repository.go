package port

import (
	"context"
	"time"

	"github.com/google/uuid"

	"bistrobooks/internal/domain"
)

// LedgerFilter narrows List queries. Zero values mean "no constraint".
type LedgerFilter struct {
	Type        domain.TransactionType
	From        domain.Date
	To          domain.Date
	NeedsReview *bool
}

// LedgerRepository persists completed transaction records. The pipeline core
// never reads prior records; queries exist for the API, reports, and the
// settlement sweeper.
type LedgerRepository interface {
	Create(ctx context.Context, rec *domain.TransactionRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.TransactionRecord, error)
	List(ctx context.Context, filter LedgerFilter, offset, limit int) ([]domain.TransactionRecord, int, error)
	ListBetween(ctx context.Context, from, to domain.Date) ([]domain.TransactionRecord, error)
	// MarkSettledDue flips pending records whose settles_at has passed and
	// returns how many rows changed.
	MarkSettledDue(ctx context.Context, now time.Time) (int64, error)
}
