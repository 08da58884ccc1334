package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hopl-labs/hopl-backend/pkg/config"
	"github.com/hopl-labs/hopl-backend/pkg/db"
	"github.com/hopl-labs/hopl-backend/pkg/db/models"
	"github.com/hopl-labs/hopl-backend/pkg/enums"
	pkgerrors "github.com/hopl-labs/hopl-backend/pkg/errors"
	"github.com/hopl-labs/hopl-backend/pkg/logger"
	"github.com/hopl-labs/hopl-backend/pkg/metrics"
	"github.com/hopl-labs/hopl-backend/pkg/outbox"
	"github.com/hopl-labs/hopl-backend/pkg/outbox/payloads"
)

const (
	defaultCost                  = 1
	defaultFullComplianceCredits = 15
	defaultAnnualGuardDays       = 365
	defaultProDays               = 30
	historyLimit                 = 50
)

var (
	errAlreadyRefunded   = errors.New("authorization already refunded")
	errDuplicatePurchase = errors.New("checkout session already applied")
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// AuthorizationToken proves a generation was paid for, or covered by an
// unlimited plan when Charged is false.
type AuthorizationToken struct {
	AccountID uuid.UUID `json:"account_id"`
	Cost      int       `json:"cost"`
	Charged   bool      `json:"charged"`
	Reference uuid.UUID `json:"reference"`
	IssuedAt  time.Time `json:"issued_at"`
}

// Grant describes what a credit purchase applied to the account.
type Grant struct {
	AccountID      uuid.UUID      `json:"account_id"`
	PlanType       enums.PlanType `json:"plan_type"`
	CreditsGranted int            `json:"credits_granted"`
	Balance        int            `json:"balance"`
	Plan           enums.PlanType `json:"plan"`
	PlanExpiresAt  *time.Time     `json:"plan_expires_at,omitempty"`
	Duplicate      bool           `json:"duplicate"`
}

// EventDTO is one ledger entry as shown to the account owner.
type EventDTO struct {
	Type         enums.LedgerEventType `json:"type"`
	Amount       int                   `json:"amount"`
	BalanceAfter int                   `json:"balance_after"`
	Reference    string                `json:"reference"`
	CreatedAt    time.Time             `json:"created_at"`
}

// Balance is the read-only entitlement view of an account.
type Balance struct {
	Plan          enums.PlanType `json:"plan"`
	Credits       int            `json:"credits"`
	PlanExpiresAt *time.Time     `json:"plan_expires_at,omitempty"`
	Unlimited     bool           `json:"unlimited"`
}

// ServiceParams groups dependencies for the ledger.
type ServiceParams struct {
	DB            txRunner
	Repo          *Repository
	Outbox        eventEmitter
	Logger        *logger.Logger
	Metrics       *metrics.GenerationMetrics
	Config        config.LedgerConfig
	EventsEnabled bool
}

// Service moves credits and plans. Every balance change is a conditional
// statement paired with an append-only ledger event in the same transaction.
type Service struct {
	db            txRunner
	repo          *Repository
	outbox        eventEmitter
	logg          *logger.Logger
	metrics       *metrics.GenerationMetrics
	cfg           config.LedgerConfig
	eventsEnabled bool
	now           func() time.Time
}

// NewService wires a ledger service.
func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("ledger db required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("ledger logger required")
	}
	if params.EventsEnabled && params.Outbox == nil {
		return nil, fmt.Errorf("ledger outbox required when events are enabled")
	}
	cfg := params.Config
	if cfg.FullComplianceCredits <= 0 {
		cfg.FullComplianceCredits = defaultFullComplianceCredits
	}
	if cfg.AnnualGuardDays <= 0 {
		cfg.AnnualGuardDays = defaultAnnualGuardDays
	}
	if cfg.ProDays <= 0 {
		cfg.ProDays = defaultProDays
	}
	return &Service{
		db:            params.DB,
		repo:          params.Repo,
		outbox:        params.Outbox,
		logg:          params.Logger,
		metrics:       params.Metrics,
		cfg:           cfg,
		eventsEnabled: params.EventsEnabled,
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

// Authorize debits cost credits, or admits the request for free when an
// unlimited plan is active. cost below 1 is treated as 1. reference ties the
// debit to the caller's record; uuid.Nil draws a fresh one. A reference can be
// debited only once.
func (s *Service) Authorize(ctx context.Context, accountID uuid.UUID, cost int, reference uuid.UUID) (AuthorizationToken, error) {
	var token AuthorizationToken
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		token, err = s.AuthorizeTx(ctx, tx, accountID, cost, reference)
		return err
	})
	if err != nil {
		return AuthorizationToken{}, err
	}
	if token.Charged {
		s.metrics.AddCredits("debit", token.Cost)
	}
	return token, nil
}

// AuthorizeTx is Authorize inside the caller's transaction, so the debit
// commits or rolls back together with the caller's own writes. Metrics are
// left to the caller.
func (s *Service) AuthorizeTx(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, cost int, reference uuid.UUID) (AuthorizationToken, error) {
	if accountID == uuid.Nil {
		return AuthorizationToken{}, pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}
	if cost < 1 {
		cost = defaultCost
	}
	if reference == uuid.Nil {
		reference = uuid.New()
	}
	now := s.now()
	token := AuthorizationToken{
		AccountID: accountID,
		Cost:      cost,
		Reference: reference,
		IssuedAt:  now,
	}

	updated, err := s.repo.DebitTx(tx, accountID, cost, now)
	if err != nil {
		return AuthorizationToken{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "debit credits")
	}
	user, err := s.repo.FindUserTx(tx, accountID, false)
	if err != nil {
		if db.IsNotFound(err) {
			return AuthorizationToken{}, pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
		}
		return AuthorizationToken{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load account")
	}
	if updated == 0 {
		if user.HasUnlimitedPlan(now) {
			return token, nil
		}
		s.logg.Info(s.logg.WithUserID(ctx, accountID.String()), "generation refused: insufficient credits")
		return AuthorizationToken{}, insufficientCredits(user.Credits, cost)
	}

	token.Charged = true
	err = s.repo.InsertEventTx(tx, &models.LedgerEvent{
		UserID:       accountID,
		Type:         enums.LedgerEventTypeDebit,
		Amount:       -cost,
		BalanceAfter: user.Credits,
		Reference:    token.Reference.String(),
		CreatedAt:    now,
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return AuthorizationToken{}, pkgerrors.New(pkgerrors.CodeConflict, "reference already debited")
		}
		return AuthorizationToken{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record debit")
	}
	return token, nil
}

// Refund reverses a charged token. Repeated calls with the same token are
// no-ops, as are uncharged tokens and tokens with no matching debit. It
// reports whether credits were returned.
func (s *Service) Refund(ctx context.Context, token AuthorizationToken) (bool, error) {
	var returned int
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		returned, err = s.RefundTx(ctx, tx, token)
		return err
	})
	if errors.Is(err, errAlreadyRefunded) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if returned > 0 {
		s.metrics.AddCredits("refund", returned)
	}
	return returned > 0, nil
}

// RefundTx is Refund inside the caller's transaction. It returns the number of
// credits given back, which is the amount of the DEBIT recorded under the
// token's reference for the same account.
func (s *Service) RefundTx(ctx context.Context, tx *gorm.DB, token AuthorizationToken) (int, error) {
	if !token.Charged {
		return 0, nil
	}
	if token.AccountID == uuid.Nil || token.Reference == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "refund requires account and reference")
	}
	reference := token.Reference.String()
	logCtx := s.logg.WithFields(s.logg.WithUserID(ctx, token.AccountID.String()), map[string]any{"reference": reference})

	// Serializes refunds per account so the lookups below cannot race.
	if _, err := s.repo.FindUserTx(tx, token.AccountID, true); err != nil {
		if db.IsNotFound(err) {
			return 0, pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
		}
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load account")
	}
	debit, err := s.repo.FindEventTx(tx, token.AccountID, enums.LedgerEventTypeDebit, reference)
	if err != nil {
		if db.IsNotFound(err) {
			s.logg.Warn(logCtx, "refund skipped: no matching debit")
			return 0, nil
		}
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load debit")
	}
	if _, err := s.repo.FindEventTx(tx, token.AccountID, enums.LedgerEventTypeRefund, reference); err == nil {
		return 0, nil
	} else if !db.IsNotFound(err) {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load refund")
	}

	amount := -debit.Amount
	if err := s.repo.CreditTx(tx, token.AccountID, amount); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "credit refund")
	}
	user, err := s.repo.FindUserTx(tx, token.AccountID, false)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load account")
	}
	err = s.repo.InsertEventTx(tx, &models.LedgerEvent{
		UserID:       token.AccountID,
		Type:         enums.LedgerEventTypeRefund,
		Amount:       amount,
		BalanceAfter: user.Credits,
		Reference:    reference,
		CreatedAt:    s.now(),
	})
	if err != nil {
		// (type, reference) is unique; a concurrent refund lands here.
		if db.IsUniqueViolation(err, "") {
			return 0, errAlreadyRefunded
		}
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record refund")
	}
	if !s.eventsEnabled {
		return amount, nil
	}
	err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventCreditsRefunded,
		AggregateType: enums.AggregateAccount,
		AggregateID:   token.AccountID,
		Actor:         outbox.UserActor(token.AccountID),
		Data: payloads.CreditsRefundedEvent{
			UserID:       token.AccountID,
			Reference:    reference,
			Amount:       amount,
			BalanceAfter: user.Credits,
		},
	})
	if err != nil {
		return 0, err
	}
	return amount, nil
}

// CreditPurchase applies a paid checkout session to the account. A session is
// applied at most once; replays return a Grant with Duplicate set.
func (s *Service) CreditPurchase(ctx context.Context, accountID uuid.UUID, planType enums.PlanType, providerSessionID string) (Grant, error) {
	if accountID == uuid.Nil {
		return Grant{}, pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}
	if !planType.IsPurchasable() {
		return Grant{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("plan %q cannot be purchased", planType))
	}
	if providerSessionID == "" {
		return Grant{}, pkgerrors.New(pkgerrors.CodeValidation, "provider session id is required")
	}

	now := s.now()
	grant := Grant{AccountID: accountID, PlanType: planType}
	duplicate := false

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		user, err := s.repo.FindUserTx(tx, accountID, true)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load account")
		}

		credits := s.creditsFor(planType)
		err = s.repo.InsertPurchaseTx(tx, &models.CreditPurchase{
			UserID:            accountID,
			PlanType:          planType,
			ProviderSessionID: providerSessionID,
			CreditsGranted:    credits,
			CreatedAt:         now,
		})
		if err != nil {
			if db.IsUniqueViolation(err, "") {
				duplicate = true
				return errDuplicatePurchase
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record purchase")
		}

		event := &models.LedgerEvent{
			UserID:    accountID,
			Reference: providerSessionID,
			CreatedAt: now,
		}
		balance := user.Credits
		plan := user.Plan
		expiresAt := user.PlanExpiresAt

		if credits > 0 {
			if err := s.repo.CreditTx(tx, accountID, credits); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "grant credits")
			}
			balance += credits
			event.Type = enums.LedgerEventTypePurchase
			event.Amount = credits
		} else {
			expiry := s.planExpiry(user, planType, now)
			if err := s.repo.SetPlanTx(tx, accountID, planType, &expiry); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "switch plan")
			}
			plan = planType
			expiresAt = &expiry
			event.Type = enums.LedgerEventTypePlanUpgrade
		}
		event.BalanceAfter = balance
		if err := s.repo.InsertEventTx(tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record purchase event")
		}

		grant.CreditsGranted = credits
		grant.Balance = balance
		grant.Plan = plan
		grant.PlanExpiresAt = expiresAt

		if !s.eventsEnabled {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCreditsPurchased,
			AggregateType: enums.AggregateAccount,
			AggregateID:   accountID,
			Actor:         outbox.UserActor(accountID),
			Data: payloads.CreditsPurchasedEvent{
				UserID:            accountID,
				PlanType:          planType,
				ProviderSessionID: providerSessionID,
				CreditsGranted:    credits,
				Balance:           balance,
				PlanExpiresAt:     expiresAt,
			},
		})
	})
	if duplicate {
		s.logg.Info(s.logg.WithField(ctx, "provider_session_id", providerSessionID), "checkout session already applied")
		current, balanceErr := s.Balance(ctx, accountID)
		if balanceErr != nil {
			return Grant{}, balanceErr
		}
		return Grant{
			AccountID:     accountID,
			PlanType:      planType,
			Balance:       current.Credits,
			Plan:          current.Plan,
			PlanExpiresAt: current.PlanExpiresAt,
			Duplicate:     true,
		}, nil
	}
	if err != nil {
		return Grant{}, err
	}
	s.metrics.AddCredits("purchase", grant.CreditsGranted)
	return grant, nil
}

// Balance returns the account entitlement without modifying it.
func (s *Service) Balance(ctx context.Context, accountID uuid.UUID) (Balance, error) {
	user, err := s.repo.FindUser(ctx, accountID)
	if err != nil {
		if db.IsNotFound(err) {
			return Balance{}, pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
		}
		return Balance{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load account")
	}
	return Balance{
		Plan:          user.Plan,
		Credits:       user.Credits,
		PlanExpiresAt: user.PlanExpiresAt,
		Unlimited:     user.HasUnlimitedPlan(s.now()),
	}, nil
}

// EndPlan returns an account on plan to FREE when its provider subscription
// ends. reference identifies the subscription and is applied once. Accounts
// that have since moved to another plan are left alone. It reports whether the
// plan changed.
func (s *Service) EndPlan(ctx context.Context, accountID uuid.UUID, plan enums.PlanType, reference string) (bool, error) {
	if accountID == uuid.Nil || reference == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "account id and reference are required")
	}
	ended := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		user, err := s.repo.FindUserTx(tx, accountID, true)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load account")
		}
		if user.Plan != plan {
			return nil
		}
		if _, err := s.repo.FindEventTx(tx, accountID, enums.LedgerEventTypePlanEnded, reference); err == nil {
			return nil
		} else if !db.IsNotFound(err) {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load plan events")
		}
		if err := s.repo.SetPlanTx(tx, accountID, enums.PlanFree, nil); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "end plan")
		}
		if err := s.repo.InsertEventTx(tx, &models.LedgerEvent{
			UserID:       accountID,
			Type:         enums.LedgerEventTypePlanEnded,
			BalanceAfter: user.Credits,
			Reference:    reference,
			CreatedAt:    s.now(),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record plan end")
		}
		ended = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if ended {
		s.logg.Info(s.logg.WithFields(s.logg.WithUserID(ctx, accountID.String()), map[string]any{
			"plan":      plan,
			"reference": reference,
		}), "plan ended")
	}
	return ended, nil
}

// History returns the most recent ledger events for the account, newest first.
func (s *Service) History(ctx context.Context, accountID uuid.UUID) ([]EventDTO, error) {
	if accountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	events, err := s.repo.Events(ctx, accountID, historyLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load ledger history")
	}
	out := make([]EventDTO, len(events))
	for i, e := range events {
		out[i] = EventDTO{
			Type:         e.Type,
			Amount:       e.Amount,
			BalanceAfter: e.BalanceAfter,
			Reference:    e.Reference,
			CreatedAt:    e.CreatedAt,
		}
	}
	return out, nil
}

func (s *Service) creditsFor(plan enums.PlanType) int {
	switch plan {
	case enums.PlanQuickFix:
		return 1
	case enums.PlanFullCompliance:
		return s.cfg.FullComplianceCredits
	}
	return 0
}

// planExpiry extends PRO from the later of now and the current expiry; ANNUAL_GUARD
// always runs a fresh term from now.
func (s *Service) planExpiry(user *models.User, plan enums.PlanType, now time.Time) time.Time {
	if plan == enums.PlanAnnualGuard {
		return now.AddDate(0, 0, s.cfg.AnnualGuardDays)
	}
	start := now
	if user.Plan == enums.PlanPro && user.PlanExpiresAt != nil && user.PlanExpiresAt.After(now) {
		start = user.PlanExpiresAt.UTC()
	}
	return start.AddDate(0, 0, s.cfg.ProDays)
}

func insufficientCredits(available, required int) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeInsufficientCredits, "not enough credits to generate a document").
		WithDetails(map[string]any{
			"available": available,
			"required":  required,
			"action":    "buy_credits",
			"plans_url": "/api/v1/payments/plans",
		})
}
