package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"bistrobooks/internal/classify"
	"bistrobooks/internal/domain"
	"bistrobooks/internal/extract"
	"bistrobooks/internal/model"
	"bistrobooks/internal/port"
	"bistrobooks/internal/prompt"
	"bistrobooks/internal/review"
	"bistrobooks/internal/settlement"
)

// ProcessTextInput is the DTO for a free-text transaction description.
type ProcessTextInput struct {
	Text   string
	Locale string
}

// ProcessReceiptInput is the DTO for a photographed receipt.
type ProcessReceiptInput struct {
	Image     []byte
	ImageMIME string
	Caption   string
	Locale    string
}

// PipelineOptions carries the orchestration knobs from config.
type PipelineOptions struct {
	// RetryBound is how many extra invocations a timeout or malformed
	// output may trigger; total attempts = 1 + RetryBound.
	RetryBound    int
	MaxConcurrent int
	Currency      string
	Locale        string
	NotifyEmail   string
	PresignExpiry int64
	TextParams    port.GenerationParams
	VisionParams  port.GenerationParams
	// Clock supplies "today" when the model reports no date. Defaults to
	// time.Now.
	Clock func() time.Time
}

// TransactionService runs the inference pipeline and owns ledger access.
type TransactionService interface {
	ProcessText(ctx context.Context, input *ProcessTextInput) (*domain.TransactionRecord, error)
	ProcessReceipt(ctx context.Context, input *ProcessReceiptInput) (*domain.TransactionRecord, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.TransactionRecord, string, error)
	List(ctx context.Context, filter port.LedgerFilter, offset, limit int) ([]domain.TransactionRecord, int, error)
}

type transactionService struct {
	prompts     *prompt.Store
	textModel   port.ModelInvoker
	visionModel port.ModelInvoker
	classifier  *classify.Classifier
	settler     *settlement.Resolver
	reviewer    *review.Engine        // optional
	ledger      port.LedgerRepository // optional: nil skips persistence
	storage     port.ObjectStorage    // optional: nil disables archival
	email       port.EmailSender      // optional
	opts        PipelineOptions
	sem         chan struct{}
	nowFn       func() time.Time
}

// NewTransactionService creates the pipeline orchestrator. The reviewer,
// ledger, storage and email collaborators may be nil; the pipeline then
// skips rule evaluation, persistence, receipt archival or notifications
// respectively.
func NewTransactionService(
	prompts *prompt.Store,
	textModel, visionModel port.ModelInvoker,
	classifier *classify.Classifier,
	settler *settlement.Resolver,
	reviewer *review.Engine,
	ledger port.LedgerRepository,
	storage port.ObjectStorage,
	email port.EmailSender,
	opts PipelineOptions,
) TransactionService {
	if opts.RetryBound < 0 {
		opts.RetryBound = 0
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	nowFn := opts.Clock
	if nowFn == nil {
		nowFn = time.Now
	}
	return &transactionService{
		prompts:     prompts,
		textModel:   textModel,
		visionModel: visionModel,
		classifier:  classifier,
		settler:     settler,
		reviewer:    reviewer,
		ledger:      ledger,
		storage:     storage,
		email:       email,
		opts:        opts,
		sem:         make(chan struct{}, opts.MaxConcurrent),
		nowFn:       nowFn,
	}
}

func (s *transactionService) ProcessText(ctx context.Context, input *ProcessTextInput) (*domain.TransactionRecord, error) {
	if strings.TrimSpace(input.Text) == "" {
		return nil, newPipelineError(StageReceived, domain.ModalityText, "",
			fmt.Errorf("empty text input: %w", domain.ErrInvalidInput))
	}

	tmpl, err := s.prompts.Get(domain.ModalityText, prompt.TaskTransaction)
	if err != nil {
		return nil, newPipelineError(StageTemplateSelected, domain.ModalityText, "", err)
	}
	rendered, err := tmpl.Render(map[string]string{
		"input_text": input.Text,
		"locale":     s.locale(input.Locale),
		"currency":   s.opts.Currency,
	})
	if err != nil {
		return nil, newPipelineError(StageTemplateSelected, domain.ModalityText, "", err)
	}

	req := &port.InvokeRequest{
		Modality: domain.ModalityText,
		Prompt:   rendered,
		Params:   s.opts.TextParams,
	}
	return s.execute(ctx, s.textModel, req, "")
}

func (s *transactionService) ProcessReceipt(ctx context.Context, input *ProcessReceiptInput) (*domain.TransactionRecord, error) {
	if err := model.ValidateImage(input.Image, input.ImageMIME); err != nil {
		return nil, newPipelineError(StageReceived, domain.ModalityImage, "", err)
	}

	tmpl, err := s.prompts.Get(domain.ModalityImage, prompt.TaskTransaction)
	if err != nil {
		return nil, newPipelineError(StageTemplateSelected, domain.ModalityImage, "", err)
	}
	rendered, err := tmpl.Render(map[string]string{
		"caption":  input.Caption,
		"locale":   s.locale(input.Locale),
		"currency": s.opts.Currency,
	})
	if err != nil {
		return nil, newPipelineError(StageTemplateSelected, domain.ModalityImage, "", err)
	}

	req := &port.InvokeRequest{
		Modality:  domain.ModalityImage,
		Prompt:    rendered,
		Image:     input.Image,
		ImageMIME: input.ImageMIME,
		Params:    s.opts.VisionParams,
	}
	return s.execute(ctx, s.visionModel, req, input.Caption)
}

// execute runs the shared pipeline tail: invoke (with retries), parse,
// classify, assemble, settle, review, archive, persist, notify.
func (s *transactionService) execute(ctx context.Context, invoker port.ModelInvoker, req *port.InvokeRequest, caption string) (*domain.TransactionRecord, error) {
	res, payload, stage, err := s.invokeAndParse(ctx, invoker, req)
	if err != nil {
		return nil, newPipelineError(stage, req.Modality, rawOutput(res), err)
	}

	result, err := s.classifier.Classify(payload)
	if err != nil {
		return nil, newPipelineError(StageClassified, req.Modality, res.RawOutput, err)
	}

	rec := s.assemble(req.Modality, payload, result, res, caption)

	status, settlesAt := s.settler.Resolve(rec.Type, rec.SourceOrCategory, rec.Date)
	rec.SettlementStatus = status
	rec.SettlesAt = settlesAt

	reasons := s.reviewReasons(rec)
	rec.NeedsReview = len(reasons) > 0
	rec.ReviewReasons = strings.Join(reasons, ",")

	if req.Modality == domain.ModalityImage {
		s.archiveReceipt(ctx, rec, req.Image, req.ImageMIME)
	}

	if s.ledger != nil {
		if err := s.ledger.Create(ctx, rec); err != nil {
			return nil, fmt.Errorf("transactionService: saving record: %w", err)
		}
	}

	if rec.NeedsReview {
		s.notifyReview(ctx, rec, reasons)
	}

	log.Printf("transactionService: record %s %s/%s amount=%.2f confidence=%s model=%s latency=%dms",
		rec.ID, rec.Type, rec.SourceOrCategory, rec.Amount, rec.Confidence, rec.ModelUsed, rec.LatencyMS)
	return rec, nil
}

// invokeAndParse runs the model call and response parsing under the retry
// policy: only a backend timeout or malformed output consumes a retry, and
// every retry re-sends the identical prompt. Schema violations and
// unavailable backends fail immediately. The returned stage is where the
// error arose.
func (s *transactionService) invokeAndParse(ctx context.Context, invoker port.ModelInvoker, req *port.InvokeRequest) (*port.InvokeResult, *domain.StructuredPayload, Stage, error) {
	total := 1 + s.opts.RetryBound

	for attempt := 1; ; attempt++ {
		res, err := s.invoke(ctx, invoker, req)
		if err != nil {
			if errors.Is(err, domain.ErrBackendTimeout) && attempt < total {
				log.Printf("transactionService: %s %s, retrying (attempt %d/%d): %v",
					req.Modality, StageModelInvoked, attempt+1, total, err)
				continue
			}
			return nil, nil, StageModelInvoked, err
		}

		payload, err := extract.Parse(res.RawOutput, req.Modality)
		if err != nil {
			if errors.Is(err, domain.ErrMalformedOutput) && attempt < total {
				log.Printf("transactionService: %s %s, retrying (attempt %d/%d): %v",
					req.Modality, StageParseRetry, attempt+1, total, err)
				continue
			}
			return res, nil, StageParsed, err
		}
		return res, payload, StageParsed, nil
	}
}

// invoke acquires a semaphore slot before the model call so in-flight
// invocations stay within pipeline.max_concurrent across all requests.
func (s *transactionService) invoke(ctx context.Context, invoker port.ModelInvoker, req *port.InvokeRequest) (*port.InvokeResult, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for invocation slot: %w", ctx.Err())
	}
	defer func() { <-s.sem }()

	return invoker.Invoke(ctx, req)
}

func (s *transactionService) assemble(modality domain.Modality, payload *domain.StructuredPayload, result *classify.Result, res *port.InvokeResult, caption string) *domain.TransactionRecord {
	date := domain.NewDate(s.nowFn())
	if payload.Date != "" {
		if parsed, err := domain.ParseDate(payload.Date); err == nil {
			date = parsed
		}
	}

	note := payload.Note
	if note == "" {
		note = caption
	}

	return &domain.TransactionRecord{
		ID:               uuid.New(),
		Type:             result.Type,
		SourceOrCategory: result.SourceOrCategory,
		Amount:           payload.Amount,
		Currency:         s.opts.Currency,
		Date:             date,
		Confidence:       result.Confidence,
		Modality:         modality,
		Note:             note,
		RawModelOutput:   res.RawOutput,
		ModelUsed:        res.ModelUsed,
		LatencyMS:        res.Latency.Milliseconds(),
		CreatedAt:        s.nowFn().UTC(),
	}
}

const reasonLowConfidence = "low_confidence"

func (s *transactionService) reviewReasons(rec *domain.TransactionRecord) []string {
	var reasons []string
	if rec.Confidence == domain.ConfidenceLow {
		reasons = append(reasons, reasonLowConfidence)
	}
	if s.reviewer != nil {
		reasons = append(reasons, s.reviewer.Evaluate(rec)...)
	}
	return reasons
}

// archiveReceipt uploads the original image behind a persisted record.
// Best effort: a failed upload logs a warning and the record saves without
// a receipt key.
func (s *transactionService) archiveReceipt(ctx context.Context, rec *domain.TransactionRecord, image []byte, mimeType string) {
	if s.storage == nil {
		return
	}
	key := fmt.Sprintf("receipts/%04d/%02d/%s%s",
		rec.Date.Year(), int(rec.Date.Month()), rec.ID, domain.AllowedImageTypes[mimeType])
	if err := s.storage.Upload(ctx, key, bytes.NewReader(image), mimeType); err != nil {
		log.Printf("transactionService.archiveReceipt: upload failed for %s: %v", rec.ID, err)
		return
	}
	rec.ReceiptKey = key
}

func (s *transactionService) notifyReview(ctx context.Context, rec *domain.TransactionRecord, reasons []string) {
	if s.email == nil || s.opts.NotifyEmail == "" {
		return
	}
	if err := s.email.SendReviewAlert(ctx, s.opts.NotifyEmail, rec, reasons); err != nil {
		log.Printf("transactionService.notifyReview: %v", err)
	}
}

// GetByID returns a record plus a presigned receipt URL when the receipt
// was archived and storage is configured.
func (s *transactionService) GetByID(ctx context.Context, id uuid.UUID) (*domain.TransactionRecord, string, error) {
	rec, err := s.ledger.GetByID(ctx, id)
	if err != nil {
		return nil, "", err
	}

	receiptURL := ""
	if rec.ReceiptKey != "" && s.storage != nil {
		url, err := s.storage.GetPresignedURL(ctx, rec.ReceiptKey, s.opts.PresignExpiry)
		if err != nil {
			log.Printf("transactionService.GetByID: presign failed for %s: %v", rec.ID, err)
		} else {
			receiptURL = url
		}
	}
	return rec, receiptURL, nil
}

func (s *transactionService) List(ctx context.Context, filter port.LedgerFilter, offset, limit int) ([]domain.TransactionRecord, int, error) {
	return s.ledger.List(ctx, filter, offset, limit)
}

func (s *transactionService) locale(override string) string {
	if override != "" {
		return override
	}
	return s.opts.Locale
}

func rawOutput(res *port.InvokeResult) string {
	if res == nil {
		return ""
	}
	return res.RawOutput
}
