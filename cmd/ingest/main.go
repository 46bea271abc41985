// Command ingest runs the inference pipeline once from the command line.
//
// Usage:
//
//	ingest -text "昨天 UberEats 收入八千二"
//	ingest -image receipt.jpg -caption "市場採買"
//
// The resulting record is printed as JSON. By default nothing is saved;
// -save persists the record through the configured database and archives
// the receipt when S3 is configured.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	"bistrobooks/internal/classify"
	"bistrobooks/internal/config"
	"bistrobooks/internal/model"
	"bistrobooks/internal/port"
	"bistrobooks/internal/prompt"
	"bistrobooks/internal/repository/postgres"
	"bistrobooks/internal/review"
	"bistrobooks/internal/service"
	"bistrobooks/internal/settlement"
	s3storage "bistrobooks/internal/storage/s3"

	_ "bistrobooks/internal/model/anthropic"
	_ "bistrobooks/internal/model/lmstudio"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	var (
		text    = flag.String("text", "", "free-text transaction description")
		image   = flag.String("image", "", "path to a receipt image (JPEG, PNG or WebP)")
		caption = flag.String("caption", "", "optional caption for the receipt image")
		locale  = flag.String("locale", "", "BCP 47 locale override")
		save    = flag.Bool("save", false, "persist the record to the configured database")
	)
	flag.Parse()

	if (*text == "") == (*image == "") {
		flag.Usage()
		return fmt.Errorf("exactly one of -text or -image is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	prompts, err := prompt.NewStore(cfg.Prompts.File)
	if err != nil {
		return fmt.Errorf("loading prompt templates: %w", err)
	}

	textInv, visionInv, err := buildInvokers(&cfg.Backends)
	if err != nil {
		return err
	}

	classifier := classify.New(cfg.Classify.FuzzyThreshold)

	overrides, err := settlement.ParseOverrides(cfg.Settlement.DelayOverrides)
	if err != nil {
		return fmt.Errorf("parsing settlement overrides: %w", err)
	}
	settler := settlement.NewResolver(overrides)

	rules, err := review.ParseRules(cfg.Review.Rules)
	if err != nil {
		return fmt.Errorf("parsing review rules: %w", err)
	}
	reviewer, err := review.NewEngine(rules)
	if err != nil {
		return fmt.Errorf("compiling review rules: %w", err)
	}

	// A dry run wires no repository, storage or email: the pipeline then
	// only prints what it would have recorded.
	var ledger port.LedgerRepository
	var store port.ObjectStorage
	if *save {
		db, err := postgres.NewDB(&cfg.DB)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer func() { _ = db.Close() }()
		ledger = postgres.NewLedgerRepo(db)

		if cfg.S3.Bucket != "" {
			store, err = s3storage.NewS3Client(&cfg.S3)
			if err != nil {
				return fmt.Errorf("initializing S3 client: %w", err)
			}
		}
	}

	svc := service.NewTransactionService(
		prompts, textInv, visionInv, classifier, settler, reviewer,
		ledger, store, nil,
		service.PipelineOptions{
			RetryBound:    cfg.Pipeline.RetryBound,
			MaxConcurrent: cfg.Pipeline.MaxConcurrent,
			Currency:      cfg.Classify.Currency,
			Locale:        cfg.Classify.Locale,
			TextParams:    generationParams(&cfg.Backends.Text),
			VisionParams:  generationParams(&cfg.Backends.Vision),
		},
	)

	ctx := context.Background()
	var rec interface{}
	if *text != "" {
		rec, err = svc.ProcessText(ctx, &service.ProcessTextInput{Text: *text, Locale: *locale})
	} else {
		data, rerr := os.ReadFile(*image)
		if rerr != nil {
			return fmt.Errorf("reading image: %w", rerr)
		}
		rec, err = svc.ProcessReceipt(ctx, &service.ProcessReceiptInput{
			Image:     data,
			ImageMIME: http.DetectContentType(data),
			Caption:   *caption,
			Locale:    *locale,
		})
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}

func buildInvokers(backends *config.BackendsConfig) (text, vision port.ModelInvoker, err error) {
	text, err = model.New(&backends.Text)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing text backend: %w", err)
	}
	vision, err = model.New(&backends.Vision)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing vision backend: %w", err)
	}
	if remote := backends.RemoteConfig(); remote != nil {
		remoteInv, rerr := model.New(remote)
		if rerr != nil {
			return nil, nil, fmt.Errorf("initializing remote backend: %w", rerr)
		}
		text = model.NewFailoverInvoker(
			[]port.ModelInvoker{text, remoteInv},
			[]string{backends.Text.Provider, remote.Provider},
		)
		vision = model.NewFailoverInvoker(
			[]port.ModelInvoker{vision, remoteInv},
			[]string{backends.Vision.Provider, remote.Provider},
		)
	}
	return text, vision, nil
}

func generationParams(cfg *config.BackendConfig) port.GenerationParams {
	return port.GenerationParams{
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Stop:        cfg.Stop,
	}
}
