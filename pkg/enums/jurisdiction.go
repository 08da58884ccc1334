package enums

import "strings"

// Jurisdiction is the closed set of regulatory regimes a scan or document targets.
type Jurisdiction string

const (
	JurisdictionGlobal    Jurisdiction = "GLOBAL"
	JurisdictionEUGDPR    Jurisdiction = "EU_GDPR"
	JurisdictionUSCCPA    Jurisdiction = "US_CCPA"
	JurisdictionUKDPA     Jurisdiction = "UK_DPA"
	JurisdictionBRLGPD    Jurisdiction = "BR_LGPD"
	JurisdictionCAPIPEDA  Jurisdiction = "CA_PIPEDA"
	JurisdictionAUPrivacy Jurisdiction = "AU_PRIVACY"
)

var validJurisdictions = []Jurisdiction{
	JurisdictionGlobal,
	JurisdictionEUGDPR,
	JurisdictionUSCCPA,
	JurisdictionUKDPA,
	JurisdictionBRLGPD,
	JurisdictionCAPIPEDA,
	JurisdictionAUPrivacy,
}

var jurisdictionNames = map[Jurisdiction]string{
	JurisdictionGlobal:    "Global / Multi-jurisdictional",
	JurisdictionEUGDPR:    "European Union - GDPR",
	JurisdictionUSCCPA:    "United States - CCPA",
	JurisdictionUKDPA:     "United Kingdom - UK DPA",
	JurisdictionBRLGPD:    "Brazil - LGPD",
	JurisdictionCAPIPEDA:  "Canada - PIPEDA",
	JurisdictionAUPrivacy: "Australia - Privacy Act",
}

// Jurisdictions returns every supported jurisdiction in declaration order.
func Jurisdictions() []Jurisdiction {
	out := make([]Jurisdiction, len(validJurisdictions))
	copy(out, validJurisdictions)
	return out
}

// String implements fmt.Stringer.
func (j Jurisdiction) String() string {
	return string(j)
}

// DisplayName returns the human readable regime name.
func (j Jurisdiction) DisplayName() string {
	if name, ok := jurisdictionNames[j]; ok {
		return name
	}
	return jurisdictionNames[JurisdictionGlobal]
}

// IsValid reports whether the value is a known Jurisdiction.
func (j Jurisdiction) IsValid() bool {
	_, ok := jurisdictionNames[j]
	return ok
}

// ParseJurisdiction converts raw input into a Jurisdiction. Empty input maps to GLOBAL.
func ParseJurisdiction(value string) (Jurisdiction, error) {
	if strings.TrimSpace(value) == "" {
		return JurisdictionGlobal, nil
	}
	return lookupFold(validJurisdictions, value, "jurisdiction")
}
