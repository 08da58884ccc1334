package payments

import (
	"github.com/shopspring/decimal"

	"github.com/hopl-labs/hopl-backend/pkg/enums"
	pkgerrors "github.com/hopl-labs/hopl-backend/pkg/errors"
)

// Plan is a purchasable catalog entry. Prices are stored in minor units.
type Plan struct {
	Type         enums.PlanType
	Name         string
	AmountCents  int64
	Subscription bool
}

// Price returns the plan price in major units.
func (p Plan) Price() decimal.Decimal {
	return decimal.NewFromInt(p.AmountCents).Shift(-2)
}

// Mode is the checkout mode the provider expects for the plan.
func (p Plan) Mode() string {
	if p.Subscription {
		return "subscription"
	}
	return "payment"
}

var catalog = []Plan{
	{Type: enums.PlanQuickFix, Name: "Quick Fix - 1 Document", AmountCents: 499},
	{Type: enums.PlanFullCompliance, Name: "Full Compliance - All Documents", AmountCents: 2999},
	{Type: enums.PlanAnnualGuard, Name: "Annual Guard - Full + Updates", AmountCents: 4999},
	{Type: enums.PlanPro, Name: "Pro Monthly - Unlimited", AmountCents: 1999, Subscription: true},
}

// Plans returns the catalog in display order.
func Plans() []Plan {
	out := make([]Plan, len(catalog))
	copy(out, catalog)
	return out
}

// LookupPlan finds a purchasable plan.
func LookupPlan(planType enums.PlanType) (Plan, error) {
	for _, plan := range catalog {
		if plan.Type == planType {
			return plan, nil
		}
	}
	return Plan{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid plan").
		WithDetails(map[string]any{"plan_type": planType})
}
