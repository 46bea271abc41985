package service

import (
	"context"
	"log"
	"time"

	"bistrobooks/internal/port"
)

// SettlementWorker periodically flips pending records whose settlement date
// has arrived. Delivery-platform and card revenue is recorded as pending at
// ingest time; this worker is what eventually marks it settled.
type SettlementWorker struct {
	ledger   port.LedgerRepository
	interval time.Duration
	nowFn    func() time.Time
}

// NewSettlementWorker creates a new SettlementWorker.
func NewSettlementWorker(ledger port.LedgerRepository, interval time.Duration) *SettlementWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	return &SettlementWorker{
		ledger:   ledger,
		interval: interval,
		nowFn:    time.Now,
	}
}

// Start runs the sweep loop until ctx is canceled. One sweep runs
// immediately so a restart never delays matured records.
func (w *SettlementWorker) Start(ctx context.Context) {
	log.Printf("settlementWorker: started (interval=%s)", w.interval)

	w.sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("settlementWorker: shutdown complete")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *SettlementWorker) sweep(ctx context.Context) {
	n, err := w.ledger.MarkSettledDue(ctx, w.nowFn())
	if err != nil {
		if ctx.Err() != nil {
			// Context canceled during sweep — exit gracefully
			return
		}
		log.Printf("settlementWorker: MarkSettledDue error: %v", err)
		return
	}
	if n > 0 {
		log.Printf("settlementWorker: marked %d records settled", n)
	}
}
