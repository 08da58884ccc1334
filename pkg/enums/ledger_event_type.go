package enums

import "slices"

// LedgerEventType maps to the ledger_event_type check constraint in Postgres.
type LedgerEventType string

const (
	LedgerEventTypeDebit       LedgerEventType = "DEBIT"
	LedgerEventTypeRefund      LedgerEventType = "REFUND"
	LedgerEventTypePurchase    LedgerEventType = "PURCHASE"
	LedgerEventTypePlanUpgrade LedgerEventType = "PLAN_UPGRADE"
	// LedgerEventTypePlanEnded records a subscription plan cancelled at the provider.
	LedgerEventTypePlanEnded LedgerEventType = "PLAN_ENDED"
)

var validLedgerEventTypes = []LedgerEventType{
	LedgerEventTypeDebit,
	LedgerEventTypeRefund,
	LedgerEventTypePurchase,
	LedgerEventTypePlanUpgrade,
	LedgerEventTypePlanEnded,
}

// IsValid reports whether the value matches the canonical ledger event enum.
func (t LedgerEventType) IsValid() bool {
	return slices.Contains(validLedgerEventTypes, t)
}

// ParseLedgerEventType converts raw input into LedgerEventType.
func ParseLedgerEventType(value string) (LedgerEventType, error) {
	return lookup(validLedgerEventTypes, value, "ledger event type")
}
