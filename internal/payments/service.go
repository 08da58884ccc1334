package payments

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"

	"github.com/hopl-labs/hopl-backend/pkg/config"
	"github.com/hopl-labs/hopl-backend/pkg/db/models"
	"github.com/hopl-labs/hopl-backend/pkg/enums"
	pkgerrors "github.com/hopl-labs/hopl-backend/pkg/errors"
	"github.com/hopl-labs/hopl-backend/pkg/logger"
)

const (
	MetadataUserID   = "user_id"
	MetadataPlanType = "plan_type"

	sessionPlaceholder = "session_id={CHECKOUT_SESSION_ID}"
)

type checkoutClient interface {
	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type paymentStore interface {
	Create(ctx context.Context, payment *models.Payment) error
}

// CheckoutRequest carries the plan and optional redirect overrides.
type CheckoutRequest struct {
	PlanType   string `json:"plan_type" validate:"required"`
	SuccessURL string `json:"success_url,omitempty"`
	CancelURL  string `json:"cancel_url,omitempty"`
}

// CheckoutResult is returned to the client to redirect into hosted checkout.
type CheckoutResult struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// PlanDTO is the public view of a catalog entry.
type PlanDTO struct {
	PlanType    enums.PlanType `json:"plan_type"`
	Name        string         `json:"name"`
	Price       string         `json:"price"`
	AmountCents int64          `json:"amount_cents"`
	Currency    string         `json:"currency"`
	Mode        string         `json:"mode"`
}

type ServiceParams struct {
	Stripe checkoutClient
	Repo   paymentStore
	Logger *logger.Logger
	Config config.PaymentsConfig
}

type Service struct {
	stripe checkoutClient
	repo   paymentStore
	logg   *logger.Logger
	cfg    config.PaymentsConfig
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("payments logger required")
	}
	cfg := params.Config
	cfg.Currency = strings.ToLower(strings.TrimSpace(cfg.Currency))
	if cfg.Currency == "" {
		cfg.Currency = "eur"
	}
	return &Service{
		stripe: params.Stripe,
		repo:   params.Repo,
		logg:   params.Logger,
		cfg:    cfg,
	}, nil
}

// Plans lists the purchasable catalog with formatted prices.
func (s *Service) Plans() []PlanDTO {
	plans := Plans()
	out := make([]PlanDTO, 0, len(plans))
	for _, plan := range plans {
		out = append(out, PlanDTO{
			PlanType:    plan.Type,
			Name:        plan.Name,
			Price:       plan.Price().StringFixed(2),
			AmountCents: plan.AmountCents,
			Currency:    strings.ToUpper(s.cfg.Currency),
			Mode:        plan.Mode(),
		})
	}
	return out
}

// Checkout opens a hosted checkout session and records a PENDING payment the
// webhook later settles.
func (s *Service) Checkout(ctx context.Context, userID uuid.UUID, req CheckoutRequest) (*CheckoutResult, error) {
	if s.stripe == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUpstreamUnavailable, "payment system not configured")
	}
	planType, err := enums.ParsePlanType(req.PlanType)
	if err != nil || !planType.IsPurchasable() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid plan").
			WithDetails(map[string]any{"plan_type": req.PlanType})
	}
	plan, err := LookupPlan(planType)
	if err != nil {
		return nil, err
	}

	successURL, err := redirectURL(req.SuccessURL, s.cfg.SuccessURL, "success_url")
	if err != nil {
		return nil, err
	}
	cancelURL, err := redirectURL(req.CancelURL, s.cfg.CancelURL, "cancel_url")
	if err != nil {
		return nil, err
	}

	params := s.sessionParams(plan, userID, withSessionPlaceholder(successURL), cancelURL)
	session, err := s.stripe.CreateCheckoutSession(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment processing error")
	}
	if session == nil || session.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment provider returned no session")
	}

	payment := &models.Payment{
		UserID:            userID,
		AmountCents:       plan.AmountCents,
		Currency:          strings.ToUpper(s.cfg.Currency),
		PlanType:          plan.Type,
		ProviderSessionID: session.ID,
		Status:            enums.PaymentStatusPending,
	}
	if err := s.repo.Create(ctx, payment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment")
	}

	logCtx := s.logg.WithFields(s.logg.WithUserID(ctx, userID.String()), map[string]any{
		"plan_type":  plan.Type,
		"session_id": session.ID,
		"amount":     FormatAmount(plan.AmountCents),
	})
	s.logg.Info(logCtx, "checkout session created")

	return &CheckoutResult{SessionID: session.ID, URL: session.URL}, nil
}

func (s *Service) sessionParams(plan Plan, userID uuid.UUID, successURL, cancelURL string) *stripe.CheckoutSessionParams {
	priceData := &stripe.CheckoutSessionLineItemPriceDataParams{
		Currency:   stripe.String(s.cfg.Currency),
		UnitAmount: stripe.Int64(plan.AmountCents),
		ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(plan.Name),
		},
	}
	if plan.Subscription {
		priceData.Recurring = &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
			Interval: stripe.String(string(stripe.PriceRecurringIntervalMonth)),
		}
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(plan.Mode()),
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		ClientReferenceID: stripe.String(userID.String()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{PriceData: priceData, Quantity: stripe.Int64(1)},
		},
	}
	params.AddMetadata(MetadataUserID, userID.String())
	params.AddMetadata(MetadataPlanType, string(plan.Type))
	if plan.Subscription {
		// Subscription events carry their own metadata, not the session's.
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				MetadataUserID:   userID.String(),
				MetadataPlanType: string(plan.Type),
			},
		}
	}
	return params
}

// FormatAmount renders minor units as a fixed two-decimal string.
func FormatAmount(cents int64) string {
	return decimal.NewFromInt(cents).Shift(-2).StringFixed(2)
}

func redirectURL(raw, fallback, field string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		value = strings.TrimSpace(fallback)
	}
	parsed, err := url.Parse(value)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", pkgerrors.New(pkgerrors.CodeValidation, field+" must be an absolute http(s) url")
	}
	return value, nil
}

func withSessionPlaceholder(successURL string) string {
	if strings.Contains(successURL, "?") {
		return successURL + "&" + sessionPlaceholder
	}
	return successURL + "?" + sessionPlaceholder
}
