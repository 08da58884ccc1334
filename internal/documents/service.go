package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hopl-labs/hopl-backend/internal/ledger"
	"github.com/hopl-labs/hopl-backend/internal/scans"
	"github.com/hopl-labs/hopl-backend/internal/scoring"
	"github.com/hopl-labs/hopl-backend/pkg/config"
	"github.com/hopl-labs/hopl-backend/pkg/db"
	"github.com/hopl-labs/hopl-backend/pkg/db/models"
	"github.com/hopl-labs/hopl-backend/pkg/enums"
	pkgerrors "github.com/hopl-labs/hopl-backend/pkg/errors"
	"github.com/hopl-labs/hopl-backend/pkg/logger"
	"github.com/hopl-labs/hopl-backend/pkg/metrics"
	"github.com/hopl-labs/hopl-backend/pkg/outbox"
	"github.com/hopl-labs/hopl-backend/pkg/outbox/payloads"
	pkgpagination "github.com/hopl-labs/hopl-backend/pkg/pagination"
)

const (
	generationCost           = 1
	defaultGenerationTimeout = 60 * time.Second
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type entitlements interface {
	AuthorizeTx(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, cost int, reference uuid.UUID) (ledger.AuthorizationToken, error)
	RefundTx(ctx context.Context, tx *gorm.DB, token ledger.AuthorizationToken) (int, error)
}

var errAttemptMoved = errors.New("generation attempt moved on before it could be failed")

type scanReader interface {
	Get(ctx context.Context, id uuid.UUID) (*scans.ResultDTO, error)
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ServiceParams groups dependencies for the document service.
type ServiceParams struct {
	DB            txRunner
	Repo          *Repository
	Templates     *Store
	Generator     Generator
	Ledger        entitlements
	Scans         scanReader
	Outbox        eventEmitter
	Logger        *logger.Logger
	Metrics       *metrics.GenerationMetrics
	Config        config.GenerationConfig
	EventsEnabled bool
}

// Service assembles documents from templates, charging the ledger for each
// successful generation and refunding every failure after authorization.
type Service struct {
	db            txRunner
	repo          *Repository
	templates     *Store
	generator     Generator
	ledger        entitlements
	scans         scanReader
	outbox        eventEmitter
	logg          *logger.Logger
	metrics       *metrics.GenerationMetrics
	timeout       time.Duration
	eventsEnabled bool
	now           func() time.Time
}

// NewService validates and wires the document service.
func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.DB == nil:
		return nil, fmt.Errorf("documents db required")
	case params.Repo == nil:
		return nil, fmt.Errorf("documents repository required")
	case params.Templates == nil:
		return nil, fmt.Errorf("template store required")
	case params.Generator == nil:
		return nil, fmt.Errorf("generator required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("ledger required")
	case params.Scans == nil:
		return nil, fmt.Errorf("scans reader required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.EventsEnabled && params.Outbox == nil:
		return nil, fmt.Errorf("outbox required when events are enabled")
	}
	timeout := params.Config.Timeout
	if timeout <= 0 {
		timeout = defaultGenerationTimeout
	}
	return &Service{
		db:            params.DB,
		repo:          params.Repo,
		templates:     params.Templates,
		generator:     params.Generator,
		ledger:        params.Ledger,
		scans:         params.Scans,
		outbox:        params.Outbox,
		logg:          params.Logger,
		metrics:       params.Metrics,
		timeout:       timeout,
		eventsEnabled: params.EventsEnabled,
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

// Types returns the document type catalog in display order.
func (s *Service) Types() []TypeOption {
	types := enums.DocumentTypes()
	out := make([]TypeOption, len(types))
	for i, t := range types {
		out[i] = TypeOption{Value: t, Label: t.Label()}
	}
	return out
}

// attemptRun tracks one generation through its states.
type attemptRun struct {
	attempt  *models.GenerationAttempt
	token    *ledger.AuthorizationToken
	status   enums.GenerationStatus
	started  time.Time
	docType  enums.DocumentType
	template Template
}

// Generate runs the generation state machine for accountID.
func (s *Service) Generate(ctx context.Context, accountID uuid.UUID, req GenerateRequest) (*DocumentDTO, error) {
	if accountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	businessName := strings.TrimSpace(req.BusinessName)
	if businessName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "business_name is required")
	}
	docType, err := enums.ParseDocumentType(req.DocumentType)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid document_type")
	}
	jurisdiction, err := enums.ParseJurisdiction(req.Jurisdiction)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid jurisdiction")
	}
	language := normalizeLanguage(req.Language)

	// Resolution happens before the ledger is touched so an unsupported
	// combination never costs a credit.
	tmpl, err := s.templates.Resolve(docType, jurisdiction, language)
	if err != nil {
		return nil, err
	}
	if tmpl.Jurisdiction != jurisdiction || !strings.EqualFold(tmpl.Language, language) {
		s.metrics.IncFallback(fmt.Sprintf("%s/%s", jurisdiction, language), fmt.Sprintf("%s/%s", tmpl.Jurisdiction, tmpl.Language))
	}

	run := &attemptRun{
		attempt: &models.GenerationAttempt{
			UserID:       accountID,
			DocumentType: docType,
			Status:       enums.GenerationRequested,
			CreatedAt:    s.now(),
		},
		status:   enums.GenerationRequested,
		started:  time.Now(),
		docType:  docType,
		template: tmpl,
	}
	if err := s.repo.CreateAttempt(ctx, run.attempt); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record generation attempt")
	}
	ctx = s.logg.WithAttemptID(ctx, run.attempt.ID.String())
	ctx = s.logg.WithUserID(ctx, accountID.String())

	// The debit and the AUTHORIZED row commit together, so no attempt is
	// left charged while still REQUESTED.
	var token ledger.AuthorizationToken
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		token, err = s.ledger.AuthorizeTx(ctx, tx, accountID, generationCost, run.attempt.ID)
		if err != nil {
			return err
		}
		return s.transitionTx(tx, run, enums.GenerationAuthorized, attemptUpdate{charged: &token.Charged})
	})
	if err != nil {
		return nil, s.fail(ctx, run, err)
	}
	run.token = &token
	run.status = enums.GenerationAuthorized
	run.attempt.Charged = token.Charged
	if token.Charged {
		s.metrics.AddCredits("debit", token.Cost)
	}
	if err := s.advance(ctx, run, enums.GenerationAssembling, attemptUpdate{}); err != nil {
		return nil, s.fail(ctx, run, err)
	}

	var findings []scoring.Issue
	if req.ScanID != nil {
		scan, err := s.scans.Get(ctx, *req.ScanID)
		if err != nil {
			return nil, s.fail(ctx, run, err)
		}
		findings = scan.FailedIssues()
	}

	body := Fill(tmpl.Body, FillContext{
		BusinessName:   businessName,
		BusinessType:   req.BusinessType,
		WebsiteURL:     req.WebsiteURL,
		Jurisdiction:   jurisdiction,
		Language:       language,
		AdditionalInfo: req.AdditionalInfo,
		Date:           s.now(),
		Findings:       findings,
	})

	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	content, err := s.generator.Generate(genCtx, Prompt{
		DocumentType: docType,
		Label:        docType.Label(),
		Language:     language,
		Body:         body,
	})
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = pkgerrors.Wrap(pkgerrors.CodeGenerationFailed, err, "document generation timed out")
		} else {
			err = pkgerrors.Wrap(pkgerrors.CodeGenerationFailed, err, "document generation failed")
		}
		return nil, s.fail(ctx, run, err)
	}

	doc := &models.GeneratedDocument{
		ID:           uuid.New(),
		UserID:       accountID,
		DocumentType: docType,
		Title:        fmt.Sprintf("%s - %s", docType.Label(), businessName),
		Content:      content,
		BusinessName: businessName,
		Jurisdiction: jurisdiction,
		Language:     language,
		TemplateKey:  tmpl.Key(),
		ScanID:       req.ScanID,
		CreatedAt:    s.now(),
	}
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.CreateDocumentTx(tx, doc); err != nil {
			return err
		}
		if err := s.transitionTx(tx, run, enums.GenerationSucceeded, attemptUpdate{documentID: &doc.ID}); err != nil {
			return err
		}
		if !s.eventsEnabled {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDocumentGenerated,
			AggregateType: enums.AggregateDocument,
			AggregateID:   doc.ID,
			Actor:         outbox.UserActor(accountID),
			Data: payloads.DocumentGeneratedEvent{
				DocumentID:   doc.ID,
				AttemptID:    run.attempt.ID,
				UserID:       accountID,
				DocumentType: docType,
				Jurisdiction: jurisdiction,
				Language:     language,
				TemplateKey:  doc.TemplateKey,
				Generator:    s.generator.Name(),
				Charged:      token.Charged,
				ScanID:       req.ScanID,
				DurationMS:   time.Since(run.started).Milliseconds(),
			},
		})
	})
	if err != nil {
		return nil, s.fail(ctx, run, pkgerrors.Wrap(pkgerrors.CodeGenerationFailed, err, "store generated document"))
	}
	run.status = enums.GenerationSucceeded

	s.metrics.ObserveAttempt(string(docType), string(enums.GenerationSucceeded), s.generator.Name(), time.Since(run.started))
	s.logg.Info(s.logg.WithField(ctx, "document_id", doc.ID.String()), "document generated")

	dto := toDTO(doc)
	dto.AttemptID = &run.attempt.ID
	charged := token.Charged
	dto.Charged = &charged
	return dto, nil
}

// advance persists a transition in its own transaction.
func (s *Service) advance(ctx context.Context, run *attemptRun, next enums.GenerationStatus, update attemptUpdate) error {
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		return s.transitionTx(tx, run, next, update)
	})
	if err != nil {
		return err
	}
	run.status = next
	return nil
}

func (s *Service) transitionTx(tx *gorm.DB, run *attemptRun, next enums.GenerationStatus, update attemptUpdate) error {
	if !run.status.CanTransitionTo(next) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("illegal transition %s -> %s", run.status, next))
	}
	update.status = next
	rows, err := s.repo.TransitionAttempt(tx, run.attempt.ID, run.status, update)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update generation attempt")
	}
	if rows == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "generation attempt changed concurrently")
	}
	return nil
}

// fail refunds a charged authorization and moves the attempt to FAILED in one
// transaction, then returns cause for the caller to propagate. If the attempt
// already left the state run saw, nothing is refunded. Cleanup runs on a
// context that survives request cancellation.
func (s *Service) fail(ctx context.Context, run *attemptRun, cause error) error {
	cleanupCtx := context.WithoutCancel(ctx)

	code := string(pkgerrors.CodeInternal)
	if typed := pkgerrors.As(cause); typed != nil {
		code = string(typed.Code())
	}

	returned := 0
	err := s.db.WithTx(cleanupCtx, func(tx *gorm.DB) error {
		returned = 0
		if run.status.IsTerminal() {
			return nil
		}
		if run.token != nil && run.token.Charged {
			n, err := s.ledger.RefundTx(cleanupCtx, tx, *run.token)
			if err != nil {
				return err
			}
			returned = n
		}
		refunded := returned > 0
		charged := run.attempt.Charged || refunded
		rows, err := s.repo.TransitionAttempt(tx, run.attempt.ID, run.status, attemptUpdate{
			status:      enums.GenerationFailed,
			charged:     &charged,
			refunded:    &refunded,
			failureCode: &code,
		})
		if err != nil {
			return err
		}
		if rows == 0 {
			return errAttemptMoved
		}
		if !s.eventsEnabled {
			return nil
		}
		return s.outbox.Emit(cleanupCtx, tx, outbox.DomainEvent{
			EventType:     enums.EventGenerationFailed,
			AggregateType: enums.AggregateGeneration,
			AggregateID:   run.attempt.ID,
			Actor:         outbox.UserActor(run.attempt.UserID),
			Data: payloads.GenerationFailedEvent{
				AttemptID:    run.attempt.ID,
				UserID:       run.attempt.UserID,
				DocumentType: run.docType,
				FailureCode:  code,
				Refunded:     refunded,
				DurationMS:   time.Since(run.started).Milliseconds(),
			},
		})
	})
	switch {
	case errors.Is(err, errAttemptMoved):
		returned = 0
		s.logg.Warn(cleanupCtx, "generation attempt changed concurrently; left as is")
	case err != nil:
		returned = 0
		s.logg.Error(cleanupCtx, "record failed generation attempt", err)
	default:
		run.status = enums.GenerationFailed
	}
	refunded := returned > 0
	s.metrics.AddCredits("refund", returned)

	if pkgerrors.IsCode(cause, pkgerrors.CodeInsufficientCredits) {
		s.metrics.ObserveAttempt(string(run.docType), "refused", s.generator.Name(), time.Since(run.started))
	} else {
		s.metrics.ObserveAttempt(string(run.docType), string(enums.GenerationFailed), s.generator.Name(), time.Since(run.started))
		s.logg.Error(s.logg.WithField(cleanupCtx, "refunded", refunded), "document generation failed", cause)
	}
	return cause
}

const stalledBatchSize = 100

// RecoverStalled fails attempts that have sat in REQUESTED, AUTHORIZED or
// ASSEMBLING for longer than olderThan, refunding whatever the ledger debited
// for them. It returns the
// number of attempts recovered.
func (s *Service) RecoverStalled(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		olderThan = s.timeout
	}
	rows, err := s.repo.FindStalledAttempts(ctx, s.now().Add(-olderThan), stalledBatchSize)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load stalled attempts")
	}
	recovered := 0
	for i := range rows {
		attempt := rows[i]
		run := &attemptRun{
			attempt: &attempt,
			token: &ledger.AuthorizationToken{
				AccountID: attempt.UserID,
				Cost:      generationCost,
				// REQUESTED rows may predate their charged flag; the ledger
				// only refunds a DEBIT it holds under the reference.
				Charged:   attempt.Charged || attempt.Status == enums.GenerationRequested,
				Reference: attempt.ID,
				IssuedAt:  attempt.CreatedAt,
			},
			status:  attempt.Status,
			started: attempt.CreatedAt,
			docType: attempt.DocumentType,
		}
		attemptCtx := s.logg.WithAttemptID(ctx, attempt.ID.String())
		_ = s.fail(attemptCtx, run, pkgerrors.New(pkgerrors.CodeGenerationFailed, "generation stalled"))
		recovered++
	}
	return recovered, nil
}

// Get returns a document owned by accountID. Documents of other accounts are
// reported as not found.
func (s *Service) Get(ctx context.Context, accountID, id uuid.UUID) (*DocumentDTO, error) {
	doc, err := s.repo.FindDocument(ctx, accountID, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "document not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load document")
	}
	return toDTO(doc), nil
}

// List pages through the documents of an account, newest first.
func (s *Service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}

	query := listQuery{
		userID: params.UserID,
		limit:  pkgpagination.LimitWithBuffer(params.Limit),
	}
	if params.Cursor != "" {
		cursor, err := pkgpagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.cursor = cursor
	}

	rows, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list documents")
	}

	rows, nextCursor := pkgpagination.Trim(rows, params.Limit, func(d models.GeneratedDocument) pkgpagination.Cursor {
		return pkgpagination.Cursor{CreatedAt: d.CreatedAt, ID: d.ID}
	})

	items := make([]ListItem, len(rows))
	for i, row := range rows {
		items[i] = toListItem(row)
	}
	return &ListResult{Items: items, Cursor: nextCursor}, nil
}
