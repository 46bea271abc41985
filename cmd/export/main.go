// Command export writes the ledger for a date range to an XLSX file.
//
// Usage:
//
//	export -from 2025-03-01 -to 2025-03-31 -out march.xlsx
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"bistrobooks/internal/config"
	"bistrobooks/internal/domain"
	"bistrobooks/internal/repository/postgres"
	"bistrobooks/internal/service"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	var (
		fromArg = flag.String("from", "", "start date (YYYY-MM-DD, inclusive)")
		toArg   = flag.String("to", "", "end date (YYYY-MM-DD, inclusive)")
		out     = flag.String("out", "ledger.xlsx", "output file path")
	)
	flag.Parse()

	if *fromArg == "" || *toArg == "" {
		flag.Usage()
		return fmt.Errorf("-from and -to are required")
	}
	from, err := domain.ParseDate(*fromArg)
	if err != nil {
		return fmt.Errorf("parsing -from: %w", err)
	}
	to, err := domain.ParseDate(*toArg)
	if err != nil {
		return fmt.Errorf("parsing -to: %w", err)
	}
	if to.Before(from.Time) {
		return fmt.Errorf("-to must not be before -from")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := postgres.NewDB(&cfg.DB)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer func() { _ = db.Close() }()

	reportSvc := service.NewReportService(postgres.NewLedgerRepo(db), nil, "", cfg.Classify.Currency)

	f, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	if err := reportSvc.WriteLedgerXLSX(context.Background(), from, to, f); err != nil {
		_ = f.Close()
		_ = os.Remove(*out)
		return fmt.Errorf("writing ledger: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing output file: %w", err)
	}

	log.Printf("wrote ledger %s..%s to %s", from.Format("2006-01-02"), to.Format("2006-01-02"), *out)
	return nil
}
