package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/hopl-labs/hopl-backend/internal/ledger"
	"github.com/hopl-labs/hopl-backend/internal/payments"
	"github.com/hopl-labs/hopl-backend/pkg/db/models"
	"github.com/hopl-labs/hopl-backend/pkg/enums"
	pkgerrors "github.com/hopl-labs/hopl-backend/pkg/errors"
	"github.com/hopl-labs/hopl-backend/pkg/logger"
)

type paymentRepository interface {
	FindBySessionIDTx(tx *gorm.DB, sessionID string) (*models.Payment, error)
	FindBySubscriptionIDTx(tx *gorm.DB, subscriptionID string) (*models.Payment, error)
	MarkStatusTx(tx *gorm.DB, sessionID string, status enums.PaymentStatus, paymentIntent *string) (int64, error)
	AttachSubscriptionTx(tx *gorm.DB, sessionID, subscriptionID string) error
}

type purchaseApplier interface {
	CreditPurchase(ctx context.Context, accountID uuid.UUID, planType enums.PlanType, providerSessionID string) (ledger.Grant, error)
	EndPlan(ctx context.Context, accountID uuid.UUID, plan enums.PlanType, reference string) (bool, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	DB       txRunner
	Payments paymentRepository
	Ledger   purchaseApplier
	Logger   *logger.Logger
}

// Service settles checkout payments and subscription renewals from verified
// provider events.
type Service struct {
	db       txRunner
	payments paymentRepository
	ledger   purchaseApplier
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments repo required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		db:       params.DB,
		payments: params.Payments,
		ledger:   params.Ledger,
		logg:     params.Logger,
	}, nil
}

// HandleEvent applies checkout, invoice and subscription events. Unknown event
// types are acknowledged without side effects.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		session, err := decodeSession(event)
		if err != nil {
			return err
		}
		if session.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
			// delayed methods settle later through async_payment_succeeded
			s.logg.Info(s.logg.WithField(ctx, "session_id", session.ID), "checkout completed with payment pending")
			return nil
		}
		return s.complete(ctx, session)
	case stripe.EventTypeCheckoutSessionExpired,
		stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		session, err := decodeSession(event)
		if err != nil {
			return err
		}
		return s.fail(ctx, session)
	case stripe.EventTypeInvoicePaid:
		return s.renew(ctx, event)
	case stripe.EventTypeCustomerSubscriptionDeleted,
		stripe.EventTypeCustomerSubscriptionUpdated:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode subscription")
		}
		if sub.ID == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "subscription id missing")
		}
		if event.Type == stripe.EventTypeCustomerSubscriptionUpdated && !subscriptionEnded(sub.Status) {
			return nil
		}
		return s.endSubscription(ctx, &sub)
	default:
		return nil
	}
}

func (s *Service) complete(ctx context.Context, session *stripe.CheckoutSession) error {
	var payment *models.Payment
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		found, err := s.payments.FindBySessionIDTx(tx, session.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		payment = found
		return nil
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}

	accountID, planType, err := purchaseTarget(payment, session)
	if err != nil {
		return err
	}

	grant, err := s.ledger.CreditPurchase(ctx, accountID, planType, session.ID)
	if err != nil {
		return err
	}

	intent := paymentIntentID(session)
	if payment != nil {
		if err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
			if _, err := s.payments.MarkStatusTx(tx, session.ID, enums.PaymentStatusCompleted, intent); err != nil {
				return err
			}
			if session.Subscription == nil || session.Subscription.ID == "" {
				return nil
			}
			return s.payments.AttachSubscriptionTx(tx, session.ID, session.Subscription.ID)
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment completed")
		}
	}

	logCtx := s.logg.WithFields(s.logg.WithUserID(ctx, accountID.String()), map[string]any{
		"session_id": session.ID,
		"plan_type":  planType,
		"duplicate":  grant.Duplicate,
		"balance":    grant.Balance,
	})
	if payment != nil {
		logCtx = s.logg.WithField(logCtx, "amount", payments.FormatAmount(payment.AmountCents))
	}
	s.logg.Info(logCtx, "checkout payment completed")
	return nil
}

func (s *Service) fail(ctx context.Context, session *stripe.CheckoutSession) error {
	var rows int64
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		rows, err = s.payments.MarkStatusTx(tx, session.ID, enums.PaymentStatusFailed, nil)
		return err
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment failed")
	}
	if rows > 0 {
		s.logg.Info(s.logg.WithField(ctx, "session_id", session.ID), "checkout payment failed")
	}
	return nil
}

// renew extends PRO for a paid subscription_cycle invoice. The first invoice
// of a subscription is settled by its checkout session instead.
func (s *Service) renew(ctx context.Context, event *stripe.Event) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode invoice")
	}
	if invoice.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "invoice id missing")
	}
	if invoice.BillingReason != stripe.InvoiceBillingReasonSubscriptionCycle {
		return nil
	}

	subscriptionID, metadata := invoiceSubscription(event, &invoice)
	if subscriptionID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "invoice subscription missing")
	}
	accountID, err := s.subscriber(ctx, subscriptionID, metadata)
	if err != nil {
		return err
	}

	grant, err := s.ledger.CreditPurchase(ctx, accountID, enums.PlanPro, invoice.ID)
	if err != nil {
		return err
	}
	s.logg.Info(s.logg.WithFields(s.logg.WithUserID(ctx, accountID.String()), map[string]any{
		"invoice_id":      invoice.ID,
		"subscription_id": subscriptionID,
		"duplicate":       grant.Duplicate,
	}), "subscription renewed")
	return nil
}

func (s *Service) endSubscription(ctx context.Context, sub *stripe.Subscription) error {
	accountID, err := s.subscriber(ctx, sub.ID, sub.Metadata)
	if err != nil {
		return err
	}
	ended, err := s.ledger.EndPlan(ctx, accountID, enums.PlanPro, sub.ID)
	if err != nil {
		return err
	}
	if ended {
		s.logg.Info(s.logg.WithFields(s.logg.WithUserID(ctx, accountID.String()), map[string]any{
			"subscription_id": sub.ID,
			"status":          sub.Status,
		}), "subscription ended")
	}
	return nil
}

// subscriber resolves the account behind a subscription from the checkout
// payment that created it, falling back to the subscription metadata.
func (s *Service) subscriber(ctx context.Context, subscriptionID string, metadata map[string]string) (uuid.UUID, error) {
	var payment *models.Payment
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		found, err := s.payments.FindBySubscriptionIDTx(tx, subscriptionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		payment = found
		return nil
	})
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription payment")
	}
	if payment != nil {
		return payment.UserID, nil
	}
	accountID, err := uuid.Parse(metadata[payments.MetadataUserID])
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "subscription user_id missing")
	}
	return accountID, nil
}

// invoiceSubscription reads the subscription from the invoice parent, or from
// the top-level field older API versions send.
func invoiceSubscription(event *stripe.Event, invoice *stripe.Invoice) (string, map[string]string) {
	if invoice.Parent != nil && invoice.Parent.SubscriptionDetails != nil {
		details := invoice.Parent.SubscriptionDetails
		if details.Subscription != nil && details.Subscription.ID != "" {
			return details.Subscription.ID, details.Metadata
		}
	}
	return event.GetObjectValue("subscription"), nil
}

func subscriptionEnded(status stripe.SubscriptionStatus) bool {
	switch status {
	case stripe.SubscriptionStatusCanceled,
		stripe.SubscriptionStatusUnpaid,
		stripe.SubscriptionStatusIncompleteExpired:
		return true
	}
	return false
}

func decodeSession(event *stripe.Event) (*stripe.CheckoutSession, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
	}
	if session.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout session id missing")
	}
	return &session, nil
}

// purchaseTarget prefers the stored payment row and falls back to the session
// metadata written at checkout.
func purchaseTarget(payment *models.Payment, session *stripe.CheckoutSession) (uuid.UUID, enums.PlanType, error) {
	if payment != nil {
		return payment.UserID, payment.PlanType, nil
	}
	accountID, err := uuid.Parse(session.Metadata[payments.MetadataUserID])
	if err != nil {
		return uuid.Nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "checkout session user_id missing")
	}
	planType, err := enums.ParsePlanType(session.Metadata[payments.MetadataPlanType])
	if err != nil {
		return uuid.Nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "checkout session plan_type missing")
	}
	return accountID, planType, nil
}

func paymentIntentID(session *stripe.CheckoutSession) *string {
	if session.PaymentIntent == nil || session.PaymentIntent.ID == "" {
		return nil
	}
	id := session.PaymentIntent.ID
	return &id
}
