package documents

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/hopl-labs/hopl-backend/internal/ledger"
	"github.com/hopl-labs/hopl-backend/internal/scans"
	"github.com/hopl-labs/hopl-backend/internal/scoring"
	"github.com/hopl-labs/hopl-backend/pkg/config"
	"github.com/hopl-labs/hopl-backend/pkg/db/dbtest"
	"github.com/hopl-labs/hopl-backend/pkg/db/models"
	"github.com/hopl-labs/hopl-backend/pkg/enums"
	pkgerrors "github.com/hopl-labs/hopl-backend/pkg/errors"
	"github.com/hopl-labs/hopl-backend/pkg/logger"
	"github.com/hopl-labs/hopl-backend/pkg/outbox"
	pkgpagination "github.com/hopl-labs/hopl-backend/pkg/pagination"
)

type generatorFunc func(ctx context.Context, prompt Prompt) (string, error)

func (f generatorFunc) Name() string { return "stub" }

func (f generatorFunc) Generate(ctx context.Context, prompt Prompt) (string, error) {
	return f(ctx, prompt)
}

type stubScans struct {
	results map[uuid.UUID]*scans.ResultDTO
}

func (s stubScans) Get(_ context.Context, id uuid.UUID) (*scans.ResultDTO, error) {
	if r, ok := s.results[id]; ok {
		return r, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "scan not found")
}

type harness struct {
	svc    *Service
	ledger *ledger.Service
	gdb    *gorm.DB
	user   uuid.UUID
}

func newHarness(t *testing.T, plan enums.PlanType, credits int, gen Generator, scanResults map[uuid.UUID]*scans.ResultDTO) harness {
	t.Helper()
	client := dbtest.Client(t)
	gdb := client.DB()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	events := outbox.NewService(outbox.NewRepository(gdb), logg)

	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		DB:            client,
		Repo:          ledger.NewRepository(gdb),
		Outbox:        events,
		Logger:        logg,
		EventsEnabled: true,
	})
	require.NoError(t, err)

	store, err := DefaultStore()
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		DB:            client,
		Repo:          NewRepository(gdb),
		Templates:     store,
		Generator:     gen,
		Ledger:        ledgerSvc,
		Scans:         stubScans{results: scanResults},
		Outbox:        events,
		Logger:        logg,
		Config:        config.GenerationConfig{Timeout: 50 * time.Millisecond},
		EventsEnabled: true,
	})
	require.NoError(t, err)

	user := models.User{
		ID:           uuid.New(),
		Email:        "owner@example.com",
		Name:         "Owner",
		PasswordHash: "x",
		Plan:         plan,
		Credits:      credits,
	}
	require.NoError(t, gdb.Create(&user).Error)
	return harness{svc: svc, ledger: ledgerSvc, gdb: gdb, user: user.ID}
}

func (h harness) credits(t *testing.T) int {
	t.Helper()
	var user models.User
	require.NoError(t, h.gdb.First(&user, "id = ?", h.user).Error)
	return user.Credits
}

func (h harness) documentCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.gdb.Model(&models.GeneratedDocument{}).Count(&n).Error)
	return n
}

func (h harness) onlyAttempt(t *testing.T) models.GenerationAttempt {
	t.Helper()
	var attempts []models.GenerationAttempt
	require.NoError(t, h.gdb.Find(&attempts).Error)
	require.Len(t, attempts, 1)
	return attempts[0]
}

func validRequest() GenerateRequest {
	return GenerateRequest{
		DocumentType: "PRIVACY_POLICY",
		BusinessName: "Acme",
		WebsiteURL:   "https://acme.test",
		Jurisdiction: "EU_GDPR",
		Language:     "English",
	}
}

func TestGenerateSucceedsAndCharges(t *testing.T) {
	h := newHarness(t, enums.PlanFree, 2, TemplateGenerator{}, nil)

	doc, err := h.svc.Generate(context.Background(), h.user, validRequest())
	require.NoError(t, err)

	assert.Equal(t, "Privacy Policy - Acme", doc.Title)
	assert.Equal(t, "PRIVACY_POLICY/EU_GDPR/English", doc.TemplateKey)
	assert.Contains(t, doc.Content, "Acme")
	assert.Contains(t, doc.Content, "European Union - GDPR")
	assert.NotContains(t, doc.Content, "{{")
	require.NotNil(t, doc.Charged)
	assert.True(t, *doc.Charged)
	assert.Equal(t, 1, h.credits(t))

	attempt := h.onlyAttempt(t)
	assert.Equal(t, enums.GenerationSucceeded, attempt.Status)
	assert.True(t, attempt.Charged)
	require.NotNil(t, attempt.DocumentID)
	assert.Equal(t, doc.ID, *attempt.DocumentID)

	var events int64
	require.NoError(t, h.gdb.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventDocumentGenerated).Count(&events).Error)
	assert.Equal(t, int64(1), events)
}

func TestGenerateFallsBackToGlobalEnglish(t *testing.T) {
	h := newHarness(t, enums.PlanFree, 1, TemplateGenerator{}, nil)

	req := validRequest()
	req.DocumentType = "NDA"
	req.Jurisdiction = "BR_LGPD"
	req.Language = "Klingon"
	doc, err := h.svc.Generate(context.Background(), h.user, req)
	require.NoError(t, err)

	assert.Equal(t, "NDA/GLOBAL/English", doc.TemplateKey)
	assert.Equal(t, enums.JurisdictionBRLGPD, doc.Jurisdiction)
	assert.Equal(t, "Klingon", doc.Language)
}

func TestGenerateInsufficientCreditsLeavesBalance(t *testing.T) {
	h := newHarness(t, enums.PlanFree, 0, TemplateGenerator{}, nil)

	_, err := h.svc.Generate(context.Background(), h.user, validRequest())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientCredits))
	assert.Equal(t, 0, h.credits(t))
	assert.Zero(t, h.documentCount(t))

	attempt := h.onlyAttempt(t)
	assert.Equal(t, enums.GenerationFailed, attempt.Status)
	assert.False(t, attempt.Charged)
	require.NotNil(t, attempt.FailureCode)
	assert.Equal(t, string(pkgerrors.CodeInsufficientCredits), *attempt.FailureCode)
}

func TestGenerateBackendFailureRefunds(t *testing.T) {
	failing := generatorFunc(func(context.Context, Prompt) (string, error) {
		return "", errors.New("model unavailable")
	})
	h := newHarness(t, enums.PlanFree, 1, failing, nil)

	_, err := h.svc.Generate(context.Background(), h.user, validRequest())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGenerationFailed))
	assert.Equal(t, 1, h.credits(t))
	assert.Zero(t, h.documentCount(t))

	attempt := h.onlyAttempt(t)
	assert.Equal(t, enums.GenerationFailed, attempt.Status)
	assert.True(t, attempt.Charged)
	assert.True(t, attempt.Refunded)

	var refunds int64
	require.NoError(t, h.gdb.Model(&models.LedgerEvent{}).Where("type = ?", enums.LedgerEventTypeRefund).Count(&refunds).Error)
	assert.Equal(t, int64(1), refunds)
}

func TestGenerateTimeoutRefunds(t *testing.T) {
	slow := generatorFunc(func(ctx context.Context, _ Prompt) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	h := newHarness(t, enums.PlanFree, 1, slow, nil)

	_, err := h.svc.Generate(context.Background(), h.user, validRequest())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGenerationFailed))
	assert.Contains(t, err.Error(), "timed out")
	assert.Equal(t, 1, h.credits(t))
}

func TestGenerateUnsupportedInputNeverCharges(t *testing.T) {
	h := newHarness(t, enums.PlanFree, 1, TemplateGenerator{}, nil)

	cases := map[string]GenerateRequest{
		"missing business name": {DocumentType: "NDA"},
		"bad document type":     {DocumentType: "LEASE", BusinessName: "Acme"},
		"bad jurisdiction":      {DocumentType: "NDA", BusinessName: "Acme", Jurisdiction: "MARS"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.svc.Generate(context.Background(), h.user, req)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
		})
	}
	assert.Equal(t, 1, h.credits(t))
}

func TestGenerateMissingScanRefunds(t *testing.T) {
	h := newHarness(t, enums.PlanFree, 1, TemplateGenerator{}, nil)

	req := validRequest()
	missing := uuid.New()
	req.ScanID = &missing
	_, err := h.svc.Generate(context.Background(), h.user, req)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	assert.Equal(t, 1, h.credits(t))
}

func TestGenerateIncludesScanFindings(t *testing.T) {
	scanID := uuid.New()
	results := map[uuid.UUID]*scans.ResultDTO{
		scanID: {ID: scanID, Issues: []scoring.Issue{
			{Code: "MISSING_COOKIE_CONSENT", Title: "No Cookie Consent Banner", Description: "No consent mechanism.", Passed: false},
		}},
	}
	h := newHarness(t, enums.PlanFree, 1, TemplateGenerator{}, results)

	req := validRequest()
	req.ScanID = &scanID
	doc, err := h.svc.Generate(context.Background(), h.user, req)
	require.NoError(t, err)
	assert.Contains(t, doc.Content, "No Cookie Consent Banner")
}

func TestGenerateUnlimitedPlanIsNotCharged(t *testing.T) {
	h := newHarness(t, enums.PlanPro, 0, TemplateGenerator{}, nil)

	doc, err := h.svc.Generate(context.Background(), h.user, validRequest())
	require.NoError(t, err)
	require.NotNil(t, doc.Charged)
	assert.False(t, *doc.Charged)
	assert.Equal(t, 0, h.credits(t))
}

func TestGetIsOwnerOnly(t *testing.T) {
	h := newHarness(t, enums.PlanFree, 1, TemplateGenerator{}, nil)

	doc, err := h.svc.Generate(context.Background(), h.user, validRequest())
	require.NoError(t, err)

	got, err := h.svc.Get(context.Background(), h.user, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.Content, got.Content)

	_, err = h.svc.Get(context.Background(), uuid.New(), doc.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestListPaginatesNewestFirst(t *testing.T) {
	h := newHarness(t, enums.PlanPro, 0, TemplateGenerator{}, nil)
	base := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, h.gdb.Create(&models.GeneratedDocument{
			ID:           uuid.New(),
			UserID:       h.user,
			DocumentType: enums.DocumentNDA,
			Title:        "NDA",
			Content:      "c",
			BusinessName: "Acme",
			Jurisdiction: enums.JurisdictionGlobal,
			Language:     "English",
			TemplateKey:  "NDA/GLOBAL/English",
			CreatedAt:    base.Add(time.Duration(i) * time.Hour),
		}).Error)
	}

	first, err := h.svc.List(context.Background(), ListParams{UserID: h.user, Params: pkgpagination.Params{Limit: 2}})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	assert.True(t, first.Items[0].CreatedAt.After(first.Items[1].CreatedAt))
	require.NotEmpty(t, first.Cursor)

	second, err := h.svc.List(context.Background(), ListParams{UserID: h.user, Params: pkgpagination.Params{Limit: 2, Cursor: first.Cursor}})
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.Empty(t, second.Cursor)
	assert.True(t, second.Items[0].CreatedAt.Equal(base))
}

func TestTypesCatalog(t *testing.T) {
	h := newHarness(t, enums.PlanFree, 0, TemplateGenerator{}, nil)

	types := h.svc.Types()
	require.Len(t, types, 15)
	assert.Equal(t, TypeOption{Value: enums.DocumentPrivacyPolicy, Label: "Privacy Policy"}, types[0])
	assert.Equal(t, TypeOption{Value: enums.DocumentSOP, Label: "Standard Operating Procedure"}, types[14])
}

func (h harness) staleAttempt(t *testing.T, status enums.GenerationStatus, charged bool) models.GenerationAttempt {
	t.Helper()
	old := time.Now().UTC().Add(-time.Hour)
	attempt := models.GenerationAttempt{
		ID:           uuid.New(),
		UserID:       h.user,
		DocumentType: enums.DocumentPrivacyPolicy,
		Status:       status,
		Charged:      charged,
		CreatedAt:    old,
		UpdatedAt:    old,
	}
	require.NoError(t, h.gdb.Create(&attempt).Error)
	return attempt
}

func (h harness) refundEvents(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.gdb.Model(&models.LedgerEvent{}).Where("type = ?", enums.LedgerEventTypeRefund).Count(&n).Error)
	return n
}

func TestRecoverStalledRefundsChargedAttempts(t *testing.T) {
	h := newHarness(t, enums.PlanFree, 1, TemplateGenerator{}, nil)

	stalled := h.staleAttempt(t, enums.GenerationAssembling, true)
	_, err := h.ledger.Authorize(context.Background(), h.user, 1, stalled.ID)
	require.NoError(t, err)
	require.Equal(t, 0, h.credits(t))

	fresh := models.GenerationAttempt{
		ID:           uuid.New(),
		UserID:       h.user,
		DocumentType: enums.DocumentPrivacyPolicy,
		Status:       enums.GenerationAuthorized,
		Charged:      true,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	require.NoError(t, h.gdb.Create(&fresh).Error)

	n, err := h.svc.RecoverStalled(context.Background(), 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, h.credits(t))

	var got models.GenerationAttempt
	require.NoError(t, h.gdb.First(&got, "id = ?", stalled.ID).Error)
	assert.Equal(t, enums.GenerationFailed, got.Status)
	assert.True(t, got.Refunded)
	require.NotNil(t, got.FailureCode)
	assert.Equal(t, string(pkgerrors.CodeGenerationFailed), *got.FailureCode)

	require.NoError(t, h.gdb.First(&got, "id = ?", fresh.ID).Error)
	assert.Equal(t, enums.GenerationAuthorized, got.Status)

	n, err = h.svc.RecoverStalled(context.Background(), 10*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, h.credits(t))
	assert.Equal(t, int64(1), h.refundEvents(t))
}

func TestRecoverStalledRequestedAttemptReturnsItsDebit(t *testing.T) {
	h := newHarness(t, enums.PlanFree, 1, TemplateGenerator{}, nil)

	stalled := h.staleAttempt(t, enums.GenerationRequested, false)
	_, err := h.ledger.Authorize(context.Background(), h.user, 1, stalled.ID)
	require.NoError(t, err)
	require.Equal(t, 0, h.credits(t))

	n, err := h.svc.RecoverStalled(context.Background(), 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, h.credits(t))

	var got models.GenerationAttempt
	require.NoError(t, h.gdb.First(&got, "id = ?", stalled.ID).Error)
	assert.Equal(t, enums.GenerationFailed, got.Status)
	assert.True(t, got.Charged)
	assert.True(t, got.Refunded)
}

func TestRecoverStalledRequestedAttemptWithoutDebit(t *testing.T) {
	h := newHarness(t, enums.PlanFree, 1, TemplateGenerator{}, nil)
	stalled := h.staleAttempt(t, enums.GenerationRequested, false)

	n, err := h.svc.RecoverStalled(context.Background(), 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, h.credits(t))
	assert.Zero(t, h.refundEvents(t))

	var got models.GenerationAttempt
	require.NoError(t, h.gdb.First(&got, "id = ?", stalled.ID).Error)
	assert.Equal(t, enums.GenerationFailed, got.Status)
	assert.False(t, got.Charged)
	assert.False(t, got.Refunded)
}

func TestRecoverStalledChargedFlagWithoutDebitMintsNothing(t *testing.T) {
	h := newHarness(t, enums.PlanFree, 0, TemplateGenerator{}, nil)
	stalled := h.staleAttempt(t, enums.GenerationAuthorized, true)

	n, err := h.svc.RecoverStalled(context.Background(), 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, h.credits(t))
	assert.Zero(t, h.refundEvents(t))

	var got models.GenerationAttempt
	require.NoError(t, h.gdb.First(&got, "id = ?", stalled.ID).Error)
	assert.Equal(t, enums.GenerationFailed, got.Status)
	assert.False(t, got.Refunded)
}

func TestFailSkipsRefundWhenAttemptAlreadyFinished(t *testing.T) {
	h := newHarness(t, enums.PlanFree, 1, TemplateGenerator{}, nil)

	attempt := h.staleAttempt(t, enums.GenerationAssembling, true)
	token, err := h.ledger.Authorize(context.Background(), h.user, 1, attempt.ID)
	require.NoError(t, err)

	// The live request finishes after recovery loaded the attempt.
	require.NoError(t, h.gdb.Model(&models.GenerationAttempt{}).
		Where("id = ?", attempt.ID).
		Update("status", enums.GenerationSucceeded).Error)

	run := &attemptRun{
		attempt: &attempt,
		token:   &token,
		status:  enums.GenerationAssembling,
		started: attempt.CreatedAt,
		docType: attempt.DocumentType,
	}
	cause := pkgerrors.New(pkgerrors.CodeGenerationFailed, "generation stalled")
	assert.Equal(t, cause, h.svc.fail(context.Background(), run, cause))

	assert.Equal(t, 0, h.credits(t))
	assert.Zero(t, h.refundEvents(t))

	var got models.GenerationAttempt
	require.NoError(t, h.gdb.First(&got, "id = ?", attempt.ID).Error)
	assert.Equal(t, enums.GenerationSucceeded, got.Status)
	assert.False(t, got.Refunded)

	var failures int64
	require.NoError(t, h.gdb.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventGenerationFailed).Count(&failures).Error)
	assert.Zero(t, failures)
}
