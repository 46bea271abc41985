package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"bistrobooks/internal/classify"
	"bistrobooks/internal/config"
	"bistrobooks/internal/email/noop"
	"bistrobooks/internal/email/ses"
	"bistrobooks/internal/handler"
	"bistrobooks/internal/model"
	"bistrobooks/internal/port"
	"bistrobooks/internal/prompt"
	"bistrobooks/internal/repository/postgres"
	"bistrobooks/internal/review"
	"bistrobooks/internal/router"
	"bistrobooks/internal/service"
	"bistrobooks/internal/settlement"
	s3storage "bistrobooks/internal/storage/s3"

	_ "bistrobooks/docs"
	_ "bistrobooks/internal/model/anthropic"
	_ "bistrobooks/internal/model/lmstudio"
)

// @title BistroBooks API
// @version 1.0
// @description Restaurant bookkeeping pipeline: turns free-text descriptions and photographed receipts into structured ledger records.
// @BasePath /api/v1
func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := postgres.NewDB(&cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	// Initialize repositories
	ledgerRepo := postgres.NewLedgerRepo(db)

	// Initialize storage (optional: empty bucket disables receipt archival)
	var store port.ObjectStorage
	if cfg.S3.Bucket != "" {
		store, err = s3storage.NewS3Client(&cfg.S3)
		if err != nil {
			return fmt.Errorf("failed to initialize S3 client: %w", err)
		}
	} else {
		log.Printf("receipt archival disabled: no S3 bucket configured")
	}

	// Initialize email sender
	var emailSender port.EmailSender
	switch cfg.Email.Provider {
	case "ses":
		emailSender, err = ses.NewSESSender(cfg.Email.Region, cfg.Email.FromAddress, cfg.Email.FromName)
		if err != nil {
			return fmt.Errorf("failed to initialize SES sender: %w", err)
		}
	default:
		emailSender = noop.NewNoopSender()
	}

	// Initialize prompt templates
	prompts, err := prompt.NewStore(cfg.Prompts.File)
	if err != nil {
		return fmt.Errorf("failed to load prompt templates: %w", err)
	}

	// Initialize model backends; the optional remote backend becomes a
	// failover target for both local models.
	textPrimary, err := model.New(&cfg.Backends.Text)
	if err != nil {
		return fmt.Errorf("failed to initialize text backend: %w", err)
	}
	visionPrimary, err := model.New(&cfg.Backends.Vision)
	if err != nil {
		return fmt.Errorf("failed to initialize vision backend: %w", err)
	}
	var textInv, visionInv port.ModelInvoker = textPrimary, visionPrimary

	probes := []handler.BackendProbe{
		{Role: "text", Config: &cfg.Backends.Text, Invoker: textPrimary},
		{Role: "vision", Config: &cfg.Backends.Vision, Invoker: visionPrimary},
	}
	if remote := cfg.Backends.RemoteConfig(); remote != nil {
		remoteInv, err := model.New(remote)
		if err != nil {
			return fmt.Errorf("failed to initialize remote backend: %w", err)
		}
		textInv = model.NewFailoverInvoker(
			[]port.ModelInvoker{textPrimary, remoteInv},
			[]string{cfg.Backends.Text.Provider, remote.Provider},
		)
		visionInv = model.NewFailoverInvoker(
			[]port.ModelInvoker{visionPrimary, remoteInv},
			[]string{cfg.Backends.Vision.Provider, remote.Provider},
		)
		probes = append(probes, handler.BackendProbe{Role: "remote", Config: remote, Invoker: remoteInv})
	}

	// Classification, settlement, review
	classifier := classify.New(cfg.Classify.FuzzyThreshold)

	overrides, err := settlement.ParseOverrides(cfg.Settlement.DelayOverrides)
	if err != nil {
		return fmt.Errorf("failed to parse settlement overrides: %w", err)
	}
	settler := settlement.NewResolver(overrides)

	rules, err := review.ParseRules(cfg.Review.Rules)
	if err != nil {
		return fmt.Errorf("failed to parse review rules: %w", err)
	}
	reviewer, err := review.NewEngine(rules)
	if err != nil {
		return fmt.Errorf("failed to compile review rules: %w", err)
	}

	// Initialize services
	txnSvc := service.NewTransactionService(
		prompts, textInv, visionInv, classifier, settler, reviewer,
		ledgerRepo, store, emailSender,
		service.PipelineOptions{
			RetryBound:    cfg.Pipeline.RetryBound,
			MaxConcurrent: cfg.Pipeline.MaxConcurrent,
			Currency:      cfg.Classify.Currency,
			Locale:        cfg.Classify.Locale,
			NotifyEmail:   cfg.Review.NotifyEmail,
			PresignExpiry: cfg.S3.PresignExpiry,
			TextParams:    generationParams(&cfg.Backends.Text),
			VisionParams:  generationParams(&cfg.Backends.Vision),
		},
	)
	reportSvc := service.NewReportService(ledgerRepo, emailSender, cfg.Review.NotifyEmail, cfg.Classify.Currency)

	// Background settlement sweeper
	sweeper := service.NewSettlementWorker(ledgerRepo, time.Duration(cfg.Settlement.SweepIntervalSecs)*time.Second)
	go sweeper.Start(context.Background())

	// Daily digest cron
	if cfg.Report.DailyCron != "" {
		cr := cron.New()
		if _, err := cr.AddFunc(cfg.Report.DailyCron, func() {
			day := service.Yesterday(time.Now())
			if err := reportSvc.SendDailyDigest(context.Background(), day); err != nil {
				log.Printf("daily digest failed for %s: %v", day, err)
			}
		}); err != nil {
			return fmt.Errorf("failed to schedule daily digest: %w", err)
		}
		cr.Start()
		defer cr.Stop()
	}

	// Initialize handlers
	txnH := handler.NewTransactionHandler(txnSvc, cfg.S3.MaxImageSizeMB)
	reportH := handler.NewReportHandler(reportSvc)
	adminH := handler.NewAdminHandler(prompts, probes)
	textLister, _ := textPrimary.(port.ModelLister)
	healthH := handler.NewHealthHandler(db, textLister)

	// Setup router
	r := router.Setup(&cfg.CORS, txnH, reportH, adminH, healthH)

	log.Printf("Server starting on %s", cfg.Server.Port)
	if err := r.Run(cfg.Server.Port); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

func generationParams(cfg *config.BackendConfig) port.GenerationParams {
	return port.GenerationParams{
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Stop:        cfg.Stop,
	}
}
