package enums

import "slices"

// PaymentStatus tracks a checkout payment from session creation to settlement.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusCompleted,
	PaymentStatusFailed,
}

// String implements fmt.Stringer.
func (p PaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	return slices.Contains(validPaymentStatuses, p)
}

// IsTerminal reports whether no further transitions are expected.
func (p PaymentStatus) IsTerminal() bool {
	return p == PaymentStatusCompleted || p == PaymentStatusFailed
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	return lookup(validPaymentStatuses, value, "payment status")
}
