package service_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"bistrobooks/internal/classify"
	"bistrobooks/internal/domain"
	"bistrobooks/internal/port"
	"bistrobooks/internal/prompt"
	"bistrobooks/internal/review"
	"bistrobooks/internal/service"
	"bistrobooks/internal/settlement"
	"bistrobooks/mocks"
)

var fixedNow = time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)

const (
	uberRaw    = `{"type": "收入", "category": "uber", "amount": 8200, "date": "2025-03-09", "note": "UberEats 週結"}`
	groceryRaw = `{"type": "支出", "category": "食材", "amount": 2400, "date": "2025-03-10", "note": "菜市場進貨"}`
)

func invokeResult(raw string) *port.InvokeResult {
	return &port.InvokeResult{
		RawOutput: raw,
		ModelUsed: "google/gemma-3-1b",
		Latency:   80 * time.Millisecond,
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// newPipeline wires a real prompt store, classifier, settlement resolver and
// review engine around the mocked collaborators.
func newPipeline(t *testing.T, textModel, visionModel port.ModelInvoker, ledger port.LedgerRepository, storage port.ObjectStorage, email port.EmailSender, opts service.PipelineOptions) service.TransactionService {
	t.Helper()

	store, err := prompt.NewStore("")
	require.NoError(t, err)

	rules, err := review.ParseRules("large_amount=amount >= 100000.0;fallback_category=category == 'other'")
	require.NoError(t, err)
	reviewer, err := review.NewEngine(rules)
	require.NoError(t, err)

	if opts.Currency == "" {
		opts.Currency = "TWD"
	}
	if opts.Locale == "" {
		opts.Locale = "zh-TW"
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return fixedNow }
	}

	return service.NewTransactionService(
		store, textModel, visionModel,
		classify.New(0.90), settlement.NewResolver(nil), reviewer,
		ledger, storage, email, opts)
}

func TestProcessText_UberEatsRevenue(t *testing.T) {
	textModel := new(mocks.MockModelInvoker)
	textModel.On("Invoke", mock.Anything, mock.Anything).Return(invokeResult(uberRaw), nil).Once()
	ledger := new(mocks.MockLedgerRepository)
	ledger.On("Create", mock.Anything, mock.AnythingOfType("*domain.TransactionRecord")).Return(nil).Once()

	svc := newPipeline(t, textModel, nil, ledger, nil, nil, service.PipelineOptions{RetryBound: 1})

	rec, err := svc.ProcessText(context.Background(), &service.ProcessTextInput{Text: "昨天 UberEats 收入八千二"})
	require.NoError(t, err)

	assert.Equal(t, domain.TypeRevenue, rec.Type)
	assert.Equal(t, domain.SourceUberEats, rec.SourceOrCategory)
	assert.Equal(t, domain.ConfidenceMedium, rec.Confidence)
	assert.Equal(t, 8200.0, rec.Amount)
	assert.Equal(t, "TWD", rec.Currency)
	assert.Equal(t, "2025-03-09", rec.Date.String())
	assert.Equal(t, domain.ModalityText, rec.Modality)
	assert.Equal(t, uberRaw, rec.RawModelOutput)
	assert.Equal(t, "google/gemma-3-1b", rec.ModelUsed)
	assert.Equal(t, int64(80), rec.LatencyMS)
	assert.False(t, rec.NeedsReview)

	// UberEats settles seven days after the transaction date.
	assert.Equal(t, domain.SettlementPending, rec.SettlementStatus)
	require.NotNil(t, rec.SettlesAt)
	assert.Equal(t, "2025-03-16", rec.SettlesAt.String())

	textModel.AssertExpectations(t)
	ledger.AssertExpectations(t)
}

func TestProcessText_PromptCarriesInputAndLocale(t *testing.T) {
	var prompts []string
	textModel := new(mocks.MockModelInvoker)
	textModel.On("Invoke", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		req := args.Get(1).(*port.InvokeRequest)
		prompts = append(prompts, req.Prompt)
	}).Return(invokeResult(uberRaw), nil)
	ledger := new(mocks.MockLedgerRepository)
	ledger.On("Create", mock.Anything, mock.Anything).Return(nil)

	svc := newPipeline(t, textModel, nil, ledger, nil, nil, service.PipelineOptions{})

	_, err := svc.ProcessText(context.Background(), &service.ProcessTextInput{Text: "昨天 UberEats 收入八千二", Locale: "en-US"})
	require.NoError(t, err)

	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "昨天 UberEats 收入八千二")
	assert.Contains(t, prompts[0], "en-US")
	assert.Contains(t, prompts[0], "TWD")
}

func TestProcessText_EmptyInput_NoInvocation(t *testing.T) {
	textModel := new(mocks.MockModelInvoker)
	svc := newPipeline(t, textModel, nil, nil, nil, nil, service.PipelineOptions{})

	for _, text := range []string{"", "   \n\t "} {
		_, err := svc.ProcessText(context.Background(), &service.ProcessTextInput{Text: text})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)

		var pe *service.PipelineError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, service.StageReceived, pe.Stage)
	}

	textModel.AssertNotCalled(t, "Invoke", mock.Anything, mock.Anything)
}

func TestProcessText_TimeoutRetriesConsumeBound(t *testing.T) {
	timeoutErr := fmt.Errorf("lmstudio: context deadline exceeded: %w", domain.ErrBackendTimeout)

	textModel := new(mocks.MockModelInvoker)
	textModel.On("Invoke", mock.Anything, mock.Anything).Return(nil, timeoutErr)

	svc := newPipeline(t, textModel, nil, nil, nil, nil, service.PipelineOptions{RetryBound: 2})

	_, err := svc.ProcessText(context.Background(), &service.ProcessTextInput{Text: "現金收入三千"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBackendTimeout)

	var pe *service.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, service.StageModelInvoked, pe.Stage)

	// retry_bound 2 means exactly three attempts, never more.
	textModel.AssertNumberOfCalls(t, "Invoke", 3)
}

func TestProcessText_MalformedThenValid(t *testing.T) {
	textModel := new(mocks.MockModelInvoker)
	textModel.On("Invoke", mock.Anything, mock.Anything).Return(invokeResult("I could not find any JSON here"), nil).Once()
	textModel.On("Invoke", mock.Anything, mock.Anything).Return(invokeResult(groceryRaw), nil).Once()
	ledger := new(mocks.MockLedgerRepository)
	ledger.On("Create", mock.Anything, mock.Anything).Return(nil).Once()

	svc := newPipeline(t, textModel, nil, ledger, nil, nil, service.PipelineOptions{RetryBound: 1})

	rec, err := svc.ProcessText(context.Background(), &service.ProcessTextInput{Text: "菜市場買菜兩千四"})
	require.NoError(t, err)

	assert.Equal(t, domain.TypeExpense, rec.Type)
	assert.Equal(t, domain.CategoryIngredients, rec.SourceOrCategory)
	assert.Equal(t, 2400.0, rec.Amount)
	textModel.AssertNumberOfCalls(t, "Invoke", 2)

	// The retry re-sends the identical prompt.
	first := textModel.Calls[0].Arguments.Get(1).(*port.InvokeRequest)
	second := textModel.Calls[1].Arguments.Get(1).(*port.InvokeRequest)
	assert.Equal(t, first.Prompt, second.Prompt)
}

func TestProcessText_MalformedExhaustsRetries(t *testing.T) {
	textModel := new(mocks.MockModelInvoker)
	textModel.On("Invoke", mock.Anything, mock.Anything).Return(invokeResult("still not json"), nil)

	svc := newPipeline(t, textModel, nil, nil, nil, nil, service.PipelineOptions{RetryBound: 1})

	_, err := svc.ProcessText(context.Background(), &service.ProcessTextInput{Text: "今天收現金"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMalformedOutput)

	var pe *service.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, service.StageParsed, pe.Stage)
	assert.Equal(t, "still not json", pe.RawOutput)

	textModel.AssertNumberOfCalls(t, "Invoke", 2)
}

func TestProcessText_SchemaViolationNeverRetries(t *testing.T) {
	raw := `{"type": "expense", "category": "rent", "amount": -50}`
	textModel := new(mocks.MockModelInvoker)
	textModel.On("Invoke", mock.Anything, mock.Anything).Return(invokeResult(raw), nil)

	svc := newPipeline(t, textModel, nil, nil, nil, nil, service.PipelineOptions{RetryBound: 3})

	_, err := svc.ProcessText(context.Background(), &service.ProcessTextInput{Text: "房租退款"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSchemaViolation)

	var pe *service.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, service.StageParsed, pe.Stage)
	assert.Equal(t, raw, pe.RawOutput)

	textModel.AssertNumberOfCalls(t, "Invoke", 1)
}

func TestProcessText_BackendUnavailableNeverRetries(t *testing.T) {
	unavailable := fmt.Errorf("lmstudio: connection refused: %w", domain.ErrBackendUnavailable)
	textModel := new(mocks.MockModelInvoker)
	textModel.On("Invoke", mock.Anything, mock.Anything).Return(nil, unavailable)

	svc := newPipeline(t, textModel, nil, nil, nil, nil, service.PipelineOptions{RetryBound: 3})

	_, err := svc.ProcessText(context.Background(), &service.ProcessTextInput{Text: "現金收入"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
	textModel.AssertNumberOfCalls(t, "Invoke", 1)
}

func TestProcessText_StaffMealAmbiguous(t *testing.T) {
	raw := `{"category": "員工餐", "amount": 450}`
	textModel := new(mocks.MockModelInvoker)
	textModel.On("Invoke", mock.Anything, mock.Anything).Return(invokeResult(raw), nil)
	ledger := new(mocks.MockLedgerRepository)

	svc := newPipeline(t, textModel, nil, ledger, nil, nil, service.PipelineOptions{})

	_, err := svc.ProcessText(context.Background(), &service.ProcessTextInput{Text: "員工餐 450"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAmbiguousType)

	var pe *service.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, service.StageClassified, pe.Stage)
	assert.Equal(t, raw, pe.RawOutput)

	ledger.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestProcessText_DateDefaultsToClock(t *testing.T) {
	raw := `{"type": "收入", "category": "cash", "amount": 3600}`
	textModel := new(mocks.MockModelInvoker)
	textModel.On("Invoke", mock.Anything, mock.Anything).Return(invokeResult(raw), nil)
	ledger := new(mocks.MockLedgerRepository)
	ledger.On("Create", mock.Anything, mock.Anything).Return(nil)

	svc := newPipeline(t, textModel, nil, ledger, nil, nil, service.PipelineOptions{})

	rec, err := svc.ProcessText(context.Background(), &service.ProcessTextInput{Text: "今天現金收入三千六"})
	require.NoError(t, err)
	assert.Equal(t, "2025-03-10", rec.Date.String())
	assert.Equal(t, domain.ConfidenceHigh, rec.Confidence)
	assert.Equal(t, domain.SettlementSettled, rec.SettlementStatus)
	assert.Nil(t, rec.SettlesAt)
}

func TestProcessText_Idempotence(t *testing.T) {
	textModel := new(mocks.MockModelInvoker)
	textModel.On("Invoke", mock.Anything, mock.Anything).Return(invokeResult(uberRaw), nil).Twice()
	ledger := new(mocks.MockLedgerRepository)
	ledger.On("Create", mock.Anything, mock.Anything).Return(nil).Twice()

	svc := newPipeline(t, textModel, nil, ledger, nil, nil, service.PipelineOptions{})
	input := &service.ProcessTextInput{Text: "昨天 UberEats 收入八千二"}

	first, err := svc.ProcessText(context.Background(), input)
	require.NoError(t, err)
	second, err := svc.ProcessText(context.Background(), input)
	require.NoError(t, err)

	// Same semantic fields, fresh identity.
	assert.Equal(t, first.Type, second.Type)
	assert.Equal(t, first.SourceOrCategory, second.SourceOrCategory)
	assert.Equal(t, first.Amount, second.Amount)
	assert.Equal(t, first.Date, second.Date)
	assert.Equal(t, first.Confidence, second.Confidence)
	assert.Equal(t, first.SettlementStatus, second.SettlementStatus)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestProcessText_LowConfidenceFlagsAndNotifies(t *testing.T) {
	raw := `{"type": "支出", "category": "隨便寫的", "amount": 450}`
	textModel := new(mocks.MockModelInvoker)
	textModel.On("Invoke", mock.Anything, mock.Anything).Return(invokeResult(raw), nil)
	ledger := new(mocks.MockLedgerRepository)
	ledger.On("Create", mock.Anything, mock.Anything).Return(nil)
	email := new(mocks.MockEmailSender)
	email.On("SendReviewAlert", mock.Anything, "ops@example.com", mock.Anything,
		[]string{"low_confidence", "fallback_category"}).Return(nil).Once()

	svc := newPipeline(t, textModel, nil, ledger, nil, email, service.PipelineOptions{NotifyEmail: "ops@example.com"})

	rec, err := svc.ProcessText(context.Background(), &service.ProcessTextInput{Text: "買了一些東西"})
	require.NoError(t, err)

	assert.Equal(t, domain.CategoryOther, rec.SourceOrCategory)
	assert.Equal(t, domain.ConfidenceLow, rec.Confidence)
	assert.True(t, rec.NeedsReview)
	assert.Equal(t, "low_confidence,fallback_category", rec.ReviewReasons)
	email.AssertExpectations(t)
}

func TestProcessText_LargeAmountRuleFlags(t *testing.T) {
	raw := `{"type": "收入", "category": "cash", "amount": 150000, "date": "2025-03-10"}`
	textModel := new(mocks.MockModelInvoker)
	textModel.On("Invoke", mock.Anything, mock.Anything).Return(invokeResult(raw), nil)
	ledger := new(mocks.MockLedgerRepository)
	ledger.On("Create", mock.Anything, mock.Anything).Return(nil)

	svc := newPipeline(t, textModel, nil, ledger, nil, nil, service.PipelineOptions{})

	rec, err := svc.ProcessText(context.Background(), &service.ProcessTextInput{Text: "現金收入十五萬"})
	require.NoError(t, err)

	assert.Equal(t, domain.ConfidenceHigh, rec.Confidence)
	assert.True(t, rec.NeedsReview)
	assert.Equal(t, "large_amount", rec.ReviewReasons)
}

func TestProcessText_PersistFailure(t *testing.T) {
	textModel := new(mocks.MockModelInvoker)
	textModel.On("Invoke", mock.Anything, mock.Anything).Return(invokeResult(uberRaw), nil)
	ledger := new(mocks.MockLedgerRepository)
	ledger.On("Create", mock.Anything, mock.Anything).Return(errors.New("connection reset"))

	svc := newPipeline(t, textModel, nil, ledger, nil, nil, service.PipelineOptions{})

	_, err := svc.ProcessText(context.Background(), &service.ProcessTextInput{Text: "UberEats 收入"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "saving record")
}

func TestProcessReceipt_CorruptImage_NoInvocation(t *testing.T) {
	visionModel := new(mocks.MockModelInvoker)
	svc := newPipeline(t, nil, visionModel, nil, nil, nil, service.PipelineOptions{})

	_, err := svc.ProcessReceipt(context.Background(), &service.ProcessReceiptInput{
		Image:     []byte("definitely not an image"),
		ImageMIME: "image/jpeg",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	var pe *service.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, service.StageReceived, pe.Stage)
	assert.Equal(t, domain.ModalityImage, pe.Modality)

	visionModel.AssertNotCalled(t, "Invoke", mock.Anything, mock.Anything)
}

func TestProcessReceipt_ArchivesReceipt(t *testing.T) {
	img := pngBytes(t)
	visionModel := new(mocks.MockModelInvoker)
	visionModel.On("Invoke", mock.Anything, mock.Anything).Return(&port.InvokeResult{
		RawOutput: groceryRaw,
		ModelUsed: "qwen/qwen2.5-vl-3b",
		Latency:   340 * time.Millisecond,
	}, nil)
	ledger := new(mocks.MockLedgerRepository)
	ledger.On("Create", mock.Anything, mock.Anything).Return(nil)
	storage := new(mocks.MockObjectStorage)
	storage.On("Upload", mock.Anything, mock.MatchedBy(func(key string) bool {
		return strings.HasPrefix(key, "receipts/2025/03/") && strings.HasSuffix(key, ".png")
	}), mock.Anything, "image/png").Return(nil).Once()

	svc := newPipeline(t, nil, visionModel, ledger, storage, nil, service.PipelineOptions{})

	rec, err := svc.ProcessReceipt(context.Background(), &service.ProcessReceiptInput{
		Image:     img,
		ImageMIME: "image/png",
		Caption:   "市場收據",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.ModalityImage, rec.Modality)
	assert.Equal(t, domain.CategoryIngredients, rec.SourceOrCategory)
	assert.Equal(t, "qwen/qwen2.5-vl-3b", rec.ModelUsed)
	assert.True(t, strings.HasPrefix(rec.ReceiptKey, "receipts/2025/03/"))
	assert.True(t, strings.HasSuffix(rec.ReceiptKey, ".png"))
	storage.AssertExpectations(t)
}

func TestProcessReceipt_UploadFailureIsBestEffort(t *testing.T) {
	visionModel := new(mocks.MockModelInvoker)
	visionModel.On("Invoke", mock.Anything, mock.Anything).Return(invokeResult(groceryRaw), nil)
	ledger := new(mocks.MockLedgerRepository)
	ledger.On("Create", mock.Anything, mock.Anything).Return(nil)
	storage := new(mocks.MockObjectStorage)
	storage.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("bucket gone"))

	svc := newPipeline(t, nil, visionModel, ledger, storage, nil, service.PipelineOptions{})

	rec, err := svc.ProcessReceipt(context.Background(), &service.ProcessReceiptInput{
		Image:     pngBytes(t),
		ImageMIME: "image/png",
	})
	require.NoError(t, err)
	assert.Empty(t, rec.ReceiptKey)
}

func TestProcessReceipt_NoteFallsBackToCaption(t *testing.T) {
	raw := `{"type": "支出", "category": "食材", "amount": 980}`
	visionModel := new(mocks.MockModelInvoker)
	visionModel.On("Invoke", mock.Anything, mock.Anything).Return(invokeResult(raw), nil)

	svc := newPipeline(t, nil, visionModel, nil, nil, nil, service.PipelineOptions{})

	rec, err := svc.ProcessReceipt(context.Background(), &service.ProcessReceiptInput{
		Image:     pngBytes(t),
		ImageMIME: "image/png",
		Caption:   "超市收據",
	})
	require.NoError(t, err)
	assert.Equal(t, "超市收據", rec.Note)
}

func TestProcessText_ConcurrencyCeiling(t *testing.T) {
	var inFlight, maxSeen atomic.Int32

	textModel := new(mocks.MockModelInvoker)
	textModel.On("Invoke", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		n := inFlight.Add(1)
		for {
			m := maxSeen.Load()
			if n <= m || maxSeen.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		inFlight.Add(-1)
	}).Return(invokeResult(uberRaw), nil)

	svc := newPipeline(t, textModel, nil, nil, nil, nil, service.PipelineOptions{MaxConcurrent: 1})

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ProcessText(context.Background(), &service.ProcessTextInput{Text: "UberEats 收入八千二"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen.Load())
	textModel.AssertNumberOfCalls(t, "Invoke", 3)
}

func TestGetByID_PresignsArchivedReceipt(t *testing.T) {
	rec := &domain.TransactionRecord{ReceiptKey: "receipts/2025/03/abc.png"}
	ledger := new(mocks.MockLedgerRepository)
	ledger.On("GetByID", mock.Anything, mock.Anything).Return(rec, nil)
	storage := new(mocks.MockObjectStorage)
	storage.On("GetPresignedURL", mock.Anything, "receipts/2025/03/abc.png", int64(3600)).
		Return("https://bucket.example/abc.png?sig=x", nil)

	svc := newPipeline(t, nil, nil, ledger, storage, nil, service.PipelineOptions{PresignExpiry: 3600})

	got, url, err := svc.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
	assert.Equal(t, "https://bucket.example/abc.png?sig=x", url)
}

func TestGetByID_NotFound(t *testing.T) {
	ledger := new(mocks.MockLedgerRepository)
	ledger.On("GetByID", mock.Anything, mock.Anything).Return(nil, domain.ErrRecordNotFound)

	svc := newPipeline(t, nil, nil, ledger, nil, nil, service.PipelineOptions{})

	_, _, err := svc.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}
