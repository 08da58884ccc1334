package enums

import "slices"

// PlanType identifies the entitlement plan an account is on.
type PlanType string

const (
	PlanFree           PlanType = "FREE"
	PlanQuickFix       PlanType = "QUICK_FIX"
	PlanFullCompliance PlanType = "FULL_COMPLIANCE"
	PlanAnnualGuard    PlanType = "ANNUAL_GUARD"
	PlanPro            PlanType = "PRO"
)

var validPlanTypes = []PlanType{
	PlanFree,
	PlanQuickFix,
	PlanFullCompliance,
	PlanAnnualGuard,
	PlanPro,
}

// UnlimitedPlans lists plans that authorize generation without consuming credits.
var UnlimitedPlans = []PlanType{PlanAnnualGuard, PlanPro}

// String implements fmt.Stringer.
func (p PlanType) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PlanType.
func (p PlanType) IsValid() bool {
	return slices.Contains(validPlanTypes, p)
}

// IsUnlimited reports whether the plan skips credit debits while active.
func (p PlanType) IsUnlimited() bool {
	return slices.Contains(UnlimitedPlans, p)
}

// IsPurchasable reports whether the plan can be bought through checkout.
func (p PlanType) IsPurchasable() bool {
	return p.IsValid() && p != PlanFree
}

// ParsePlanType converts raw input into a PlanType. Matching is case-insensitive.
func ParsePlanType(value string) (PlanType, error) {
	return lookupFold(validPlanTypes, value, "plan type")
}
