package enums

// RiskLevel is the tier derived from a compliance score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// String implements fmt.Stringer.
func (r RiskLevel) String() string {
	return string(r)
}

// IsValid reports whether the value is a known RiskLevel.
func (r RiskLevel) IsValid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}
