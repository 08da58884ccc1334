package scans

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"

	"github.com/hopl-labs/hopl-backend/internal/rules"
	"github.com/hopl-labs/hopl-backend/internal/scanner"
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
	"github.com/hopl-labs/hopl-backend/pkg/redis"
)

const (
	cacheScope           = "scan"
	defaultCacheTTL      = 24 * time.Hour
	defaultMaxConcurrent = 8
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type repository interface {
	CreateTx(tx *gorm.DB, result *models.ScanResult) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ScanResult, error)
	LatestSince(ctx context.Context, url string, since time.Time) (*models.ScanResult, error)
}

type siteScanner interface {
	Scan(ctx context.Context, rawURL string) (scanner.Report, error)
	Catalog() *rules.Catalog
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ServiceParams groups dependencies for the scans service.
type ServiceParams struct {
	DB            txRunner
	Repo          repository
	Scanner       siteScanner
	Cache         redis.CacheStore
	Outbox        eventEmitter
	Logger        *logger.Logger
	Metrics       *metrics.ScanMetrics
	Config        config.ScannerConfig
	EventsEnabled bool
}

// Service runs scans, scores them and stores the results.
type Service struct {
	db            txRunner
	repo          repository
	scanner       siteScanner
	cache         redis.CacheStore
	outbox        eventEmitter
	logg          *logger.Logger
	metrics       *metrics.ScanMetrics
	sem           *semaphore.Weighted
	cacheTTL      time.Duration
	eventsEnabled bool
	now           func() time.Time
}

// NewService builds a scans service.
func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, errors.New("db is required")
	}
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Scanner == nil {
		return nil, errors.New("scanner is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.EventsEnabled && params.Outbox == nil {
		return nil, errors.New("outbox is required when events are enabled")
	}
	ttl := params.Config.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	limit := params.Config.MaxConcurrent
	if limit <= 0 {
		limit = defaultMaxConcurrent
	}
	return &Service{
		db:            params.DB,
		repo:          params.Repo,
		scanner:       params.Scanner,
		cache:         params.Cache,
		outbox:        params.Outbox,
		logg:          params.Logger,
		metrics:       params.Metrics,
		sem:           semaphore.NewWeighted(int64(limit)),
		cacheTTL:      ttl,
		eventsEnabled: params.EventsEnabled,
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

// Scan returns a fresh result for rawURL, or the cached one when the URL was
// scanned within the cache TTL. userID is nil for anonymous scans.
func (s *Service) Scan(ctx context.Context, rawURL string, userID *uuid.UUID) (*ResultDTO, error) {
	target, err := scanner.Normalize(rawURL)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithField(ctx, "scan_url", target)

	if cached := s.lookupCached(ctx, target); cached != nil {
		return cached, nil
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "scanner capacity exhausted")
	}
	defer s.sem.Release(1)

	started := time.Now()
	report, err := s.scanner.Scan(ctx, target)
	if err != nil {
		return nil, err
	}

	issues := scoring.IssuesFromVerdicts(s.scanner.Catalog(), report.Verdicts)
	score, risk := scoring.Score(issues)
	jurisdiction := scoring.ResolveJurisdiction(report.JurisdictionHint)

	issuesJSON, err := json.Marshal(issues)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode scan issues")
	}
	recs := report.Recommendations
	if recs == nil {
		recs = []string{}
	}
	result := &models.ScanResult{
		ID:              uuid.New(),
		UserID:          userID,
		URL:             report.URL,
		Score:           score,
		Issues:          issuesJSON,
		Recommendations: pq.StringArray(recs),
		Jurisdiction:    jurisdiction,
		RiskLevel:       risk,
		CatalogVersion:  s.scanner.Catalog().Version(),
		Unreachable:     report.Unreachable,
		CreatedAt:       s.now(),
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.CreateTx(tx, result); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist scan result")
		}
		if !s.eventsEnabled {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventScanCompleted,
			AggregateType: enums.AggregateScan,
			AggregateID:   result.ID,
			Actor:         actorFor(userID),
			Data: payloads.ScanCompletedEvent{
				ScanID:         result.ID,
				UserID:         userID,
				URL:            result.URL,
				Score:          score,
				RiskLevel:      risk,
				Jurisdiction:   jurisdiction,
				FailedChecks:   scoring.FailedCodes(issues),
				Unreachable:    report.Unreachable,
				CatalogVersion: result.CatalogVersion,
				CompletedAt:    result.CreatedAt,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	outcome := "reachable"
	if report.Unreachable {
		outcome = "unreachable"
	} else {
		// A site that was down should be retried on the next request, not served from cache.
		s.storeCached(ctx, target, result.ID)
	}
	s.metrics.ObserveScan(outcome, string(risk), time.Since(started))

	ctx = s.logg.WithScanID(ctx, result.ID.String())
	ctx = s.logg.WithFields(ctx, map[string]any{
		"score":      score,
		"risk_level": risk,
	})
	s.logg.Info(ctx, "scan completed")

	return FromModel(result)
}

// Get loads a stored scan result.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*ResultDTO, error) {
	result, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "scan not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load scan result")
	}
	return FromModel(result)
}

func (s *Service) lookupCached(ctx context.Context, target string) *ResultDTO {
	var (
		result *models.ScanResult
		err    error
	)
	if s.cache != nil {
		var id string
		id, err = s.cache.Get(ctx, s.cache.CacheKey(cacheScope, target))
		switch {
		case err == nil:
			if parsed, parseErr := uuid.Parse(id); parseErr == nil {
				result, err = s.repo.FindByID(ctx, parsed)
			}
		case redis.IsMiss(err):
		default:
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "scan cache unavailable, falling back to database")
			result, err = s.repo.LatestSince(ctx, target, s.now().Add(-s.cacheTTL))
		}
	}
	if err != nil && !db.IsNotFound(err) && !redis.IsMiss(err) {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "scan cache lookup failed")
	}
	if result == nil {
		s.metrics.CacheLookup(false)
		return nil
	}

	s.metrics.CacheLookup(true)
	dto, err := FromModel(result)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "cached scan could not be decoded")
		return nil
	}
	dto.Cached = true
	return dto
}

func (s *Service) storeCached(ctx context.Context, target string, id uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, s.cache.CacheKey(cacheScope, target), id.String(), s.cacheTTL); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "failed to cache scan result")
	}
}

func actorFor(userID *uuid.UUID) *outbox.ActorRef {
	if userID == nil {
		return outbox.UserActor(uuid.Nil)
	}
	return outbox.UserActor(*userID)
}
