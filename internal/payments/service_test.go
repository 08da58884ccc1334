package payments

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/hopl-labs/hopl-backend/pkg/config"
	"github.com/hopl-labs/hopl-backend/pkg/db/dbtest"
	"github.com/hopl-labs/hopl-backend/pkg/enums"
	pkgerrors "github.com/hopl-labs/hopl-backend/pkg/errors"
	"github.com/hopl-labs/hopl-backend/pkg/logger"
)

type stubCheckout struct {
	params *stripe.CheckoutSessionParams
	err    error
}

func (s *stubCheckout) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	s.params = params
	if s.err != nil {
		return nil, s.err
	}
	return &stripe.CheckoutSession{ID: "cs_test_" + uuid.NewString(), URL: "https://checkout.stripe.com/c/pay"}, nil
}

func newTestService(t *testing.T, client checkoutClient) (*Service, *gorm.DB) {
	t.Helper()
	gdb := dbtest.Open(t)
	svc, err := NewService(ServiceParams{
		Stripe: client,
		Repo:   NewRepository(gdb),
		Logger: logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Config: config.PaymentsConfig{
			SuccessURL: "https://app.hopl.test/dashboard",
			CancelURL:  "https://app.hopl.test/pricing",
			Currency:   "EUR",
		},
	})
	require.NoError(t, err)
	return svc, gdb
}

func TestPlansCatalog(t *testing.T) {
	svc, _ := newTestService(t, &stubCheckout{})

	plans := svc.Plans()
	require.Len(t, plans, 4)
	assert.Equal(t, enums.PlanQuickFix, plans[0].PlanType)
	assert.Equal(t, "4.99", plans[0].Price)
	assert.Equal(t, "EUR", plans[0].Currency)
	assert.Equal(t, "payment", plans[0].Mode)
	assert.Equal(t, "29.99", plans[1].Price)
	assert.Equal(t, "subscription", plans[3].Mode)
	assert.Equal(t, int64(1999), plans[3].AmountCents)
}

func TestCheckoutCreatesPendingPayment(t *testing.T) {
	client := &stubCheckout{}
	svc, gdb := newTestService(t, client)
	userID := uuid.New()

	res, err := svc.Checkout(context.Background(), userID, CheckoutRequest{PlanType: "full_compliance"})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.com/c/pay", res.URL)

	p := client.params
	require.NotNil(t, p)
	assert.Equal(t, "payment", *p.Mode)
	assert.Equal(t, "https://app.hopl.test/dashboard?session_id={CHECKOUT_SESSION_ID}", *p.SuccessURL)
	assert.Equal(t, "https://app.hopl.test/pricing", *p.CancelURL)
	assert.Equal(t, userID.String(), p.Metadata[MetadataUserID])
	assert.Equal(t, "FULL_COMPLIANCE", p.Metadata[MetadataPlanType])
	require.Len(t, p.LineItems, 1)
	assert.Equal(t, int64(2999), *p.LineItems[0].PriceData.UnitAmount)
	assert.Equal(t, "eur", *p.LineItems[0].PriceData.Currency)
	assert.Nil(t, p.LineItems[0].PriceData.Recurring)
	assert.Nil(t, p.SubscriptionData)

	payment, err := NewRepository(gdb).FindBySessionID(context.Background(), res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPending, payment.Status)
	assert.Equal(t, userID, payment.UserID)
	assert.Equal(t, int64(2999), payment.AmountCents)
	assert.Equal(t, "EUR", payment.Currency)
}

func TestCheckoutProIsMonthlySubscription(t *testing.T) {
	client := &stubCheckout{}
	svc, _ := newTestService(t, client)

	userID := uuid.New()
	_, err := svc.Checkout(context.Background(), userID, CheckoutRequest{
		PlanType:   "PRO",
		SuccessURL: "https://agency.example/done?ref=x",
	})
	require.NoError(t, err)
	assert.Equal(t, "subscription", *client.params.Mode)
	assert.Equal(t, "https://agency.example/done?ref=x&session_id={CHECKOUT_SESSION_ID}", *client.params.SuccessURL)
	require.NotNil(t, client.params.LineItems[0].PriceData.Recurring)
	assert.Equal(t, "month", *client.params.LineItems[0].PriceData.Recurring.Interval)
	require.NotNil(t, client.params.SubscriptionData)
	assert.Equal(t, userID.String(), client.params.SubscriptionData.Metadata[MetadataUserID])
	assert.Equal(t, "PRO", client.params.SubscriptionData.Metadata[MetadataPlanType])
}

func TestCheckoutRejectsInvalidInput(t *testing.T) {
	svc, _ := newTestService(t, &stubCheckout{})
	ctx := context.Background()

	_, err := svc.Checkout(ctx, uuid.New(), CheckoutRequest{PlanType: "FREE"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.Checkout(ctx, uuid.New(), CheckoutRequest{PlanType: "AGENCY"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.Checkout(ctx, uuid.New(), CheckoutRequest{PlanType: "QUICK_FIX", CancelURL: "javascript:alert(1)"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestCheckoutProviderFailure(t *testing.T) {
	svc, gdb := newTestService(t, &stubCheckout{err: errors.New("card network down")})

	_, err := svc.Checkout(context.Background(), uuid.New(), CheckoutRequest{PlanType: "QUICK_FIX"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	var count int64
	require.NoError(t, gdb.Table("payments").Count(&count).Error)
	assert.Zero(t, count)
}

func TestCheckoutWithoutProvider(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, err := svc.Checkout(context.Background(), uuid.New(), CheckoutRequest{PlanType: "QUICK_FIX"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUpstreamUnavailable))
}

func TestMarkStatusSettlesOnce(t *testing.T) {
	client := &stubCheckout{}
	svc, gdb := newTestService(t, client)
	res, err := svc.Checkout(context.Background(), uuid.New(), CheckoutRequest{PlanType: "QUICK_FIX"})
	require.NoError(t, err)

	repo := NewRepository(gdb)
	intent := "pi_123"
	rows, err := repo.MarkStatusTx(gdb, res.SessionID, enums.PaymentStatusCompleted, &intent)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	rows, err = repo.MarkStatusTx(gdb, res.SessionID, enums.PaymentStatusFailed, nil)
	require.NoError(t, err)
	assert.Zero(t, rows)

	payment, err := repo.FindBySessionID(context.Background(), res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusCompleted, payment.Status)
	require.NotNil(t, payment.ProviderPaymentIntent)
	assert.Equal(t, "pi_123", *payment.ProviderPaymentIntent)
}

func TestAttachSubscriptionLinksOnce(t *testing.T) {
	client := &stubCheckout{}
	svc, gdb := newTestService(t, client)
	res, err := svc.Checkout(context.Background(), uuid.New(), CheckoutRequest{PlanType: "PRO"})
	require.NoError(t, err)

	repo := NewRepository(gdb)
	require.NoError(t, repo.AttachSubscriptionTx(gdb, res.SessionID, "sub_1"))
	require.NoError(t, repo.AttachSubscriptionTx(gdb, res.SessionID, "sub_other"))

	payment, err := repo.FindBySubscriptionIDTx(gdb, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, res.SessionID, payment.ProviderSessionID)

	_, err = repo.FindBySubscriptionIDTx(gdb, "sub_other")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
