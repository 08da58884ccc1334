package controllers

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/hopl-labs/hopl-backend/internal/payments"
	"github.com/hopl-labs/hopl-backend/internal/users"
	"github.com/hopl-labs/hopl-backend/pkg/enums"
	pkgerrors "github.com/hopl-labs/hopl-backend/pkg/errors"
)

type stubPaymentService struct {
	result *payments.CheckoutResult
	err    error

	lastUser uuid.UUID
	lastReq  payments.CheckoutRequest
}

func (s *stubPaymentService) Plans() []payments.PlanDTO {
	return []payments.PlanDTO{{PlanType: enums.PlanQuickFix, Name: "Quick Fix", Price: "4.99", AmountCents: 499, Currency: "EUR", Mode: "payment"}}
}

func (s *stubPaymentService) Checkout(ctx context.Context, userID uuid.UUID, req payments.CheckoutRequest) (*payments.CheckoutResult, error) {
	s.lastUser = userID
	s.lastReq = req
	return s.result, s.err
}

func TestPaymentPlans(t *testing.T) {
	rec := serve(PaymentPlans(&stubPaymentService{}, nil), jsonRequest(http.MethodGet, "/api/v1/payments/plans", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var plans []payments.PlanDTO
	decodeData(t, rec, &plans)
	if len(plans) != 1 || plans[0].AmountCents != 499 {
		t.Fatalf("unexpected plans %+v", plans)
	}
}

func TestPaymentCheckout(t *testing.T) {
	svc := &stubPaymentService{result: &payments.CheckoutResult{SessionID: "cs_1", URL: "https://checkout.example/cs_1"}}
	account := uuid.New()
	req := asAccount(jsonRequest(http.MethodPost, "/api/v1/payments/checkout", `{"plan_type":"QUICK_FIX"}`), account)

	rec := serve(PaymentCheckout(svc, nil), req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.lastUser != account || svc.lastReq.PlanType != "QUICK_FIX" {
		t.Fatalf("unexpected forwarded checkout %s %+v", svc.lastUser, svc.lastReq)
	}
	var result payments.CheckoutResult
	decodeData(t, rec, &result)
	if result.SessionID != "cs_1" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestPaymentCheckoutErrors(t *testing.T) {
	rec := serve(PaymentCheckout(&stubPaymentService{}, nil), jsonRequest(http.MethodPost, "/api/v1/payments/checkout", `{"plan_type":"QUICK_FIX"}`))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	req := asAccount(jsonRequest(http.MethodPost, "/api/v1/payments/checkout", `{}`), uuid.New())
	if rec := serve(PaymentCheckout(&stubPaymentService{}, nil), req); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without plan, got %d", rec.Code)
	}

	svc := &stubPaymentService{err: pkgerrors.New(pkgerrors.CodeUpstreamUnavailable, "payment system not configured")}
	req = asAccount(jsonRequest(http.MethodPost, "/api/v1/payments/checkout", `{"plan_type":"QUICK_FIX"}`), uuid.New())
	if rec := serve(PaymentCheckout(svc, nil), req); rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 without provider, got %d", rec.Code)
	}
}

type stubUserService struct {
	user *users.UserDTO
	err  error
}

func (s stubUserService) Me(ctx context.Context, id uuid.UUID) (*users.UserDTO, error) {
	return s.user, s.err
}

func TestUserMe(t *testing.T) {
	account := uuid.New()
	svc := stubUserService{user: &users.UserDTO{ID: account, Plan: enums.PlanFree, Credits: 3}}

	rec := serve(UserMe(svc, nil), asAccount(jsonRequest(http.MethodGet, "/api/v1/user/me", ""), account))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body users.UserDTO
	decodeData(t, rec, &body)
	if body.ID != account || body.Credits != 3 {
		t.Fatalf("unexpected user %+v", body)
	}

	if rec := serve(UserMe(svc, nil), jsonRequest(http.MethodGet, "/api/v1/user/me", "")); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 anonymous, got %d", rec.Code)
	}
}
