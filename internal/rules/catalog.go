package rules

import (
	"fmt"
	"strings"

	"github.com/hopl-labs/hopl-backend/pkg/enums"
)

// DefaultVersion identifies the built-in catalog. Bump it whenever a rule, its
// severity or its applicability changes so persisted scans stay auditable.
const DefaultVersion = "2026.10.1"

// Rule codes of the built-in catalog.
const (
	CodeMissingPrivacyPolicy       = "MISSING_PRIVACY_POLICY"
	CodeMissingTerms               = "MISSING_TERMS"
	CodeMissingCookieConsent       = "MISSING_COOKIE_CONSENT"
	CodeNoContactInfo              = "NO_CONTACT_INFO"
	CodeThirdPartyCookies          = "THIRD_PARTY_COOKIES"
	CodeNoHTTPS                    = "NO_HTTPS"
	CodeMissingCookiePolicy        = "MISSING_COOKIE_POLICY"
	CodeNoDataCollectionDisclosure = "NO_DATA_COLLECTION_DISCLOSURE"
	CodeNoOptOut                   = "NO_OPT_OUT"
	CodeNoAccessibilityBasics      = "NO_ACCESSIBILITY_BASICS"
	CodeSiteUnreachable            = "SITE_UNREACHABLE"
)

// RuleDefinition is one compliance check. An empty Jurisdictions set means the
// rule applies everywhere.
type RuleDefinition struct {
	Code          string
	Title         string
	Description   string
	Severity      int
	Jurisdictions []enums.Jurisdiction
}

// AppliesTo reports whether the rule is evaluated for j.
func (r RuleDefinition) AppliesTo(j enums.Jurisdiction) bool {
	if len(r.Jurisdictions) == 0 {
		return true
	}
	for _, candidate := range r.Jurisdictions {
		if candidate == j {
			return true
		}
	}
	return false
}

// Catalog is an immutable, ordered rule table.
type Catalog struct {
	version string
	rules   []RuleDefinition
	byCode  map[string]int
}

// New validates defs and builds a catalog that keeps their declaration order.
func New(version string, defs ...RuleDefinition) (*Catalog, error) {
	version = strings.TrimSpace(version)
	if version == "" {
		return nil, fmt.Errorf("catalog version is required")
	}
	c := &Catalog{
		version: version,
		rules:   make([]RuleDefinition, 0, len(defs)),
		byCode:  make(map[string]int, len(defs)),
	}
	for _, def := range defs {
		code := strings.TrimSpace(def.Code)
		if code == "" {
			return nil, fmt.Errorf("rule code is required")
		}
		if def.Severity <= 0 {
			return nil, fmt.Errorf("rule %s: severity must be positive", code)
		}
		if _, dup := c.byCode[code]; dup {
			return nil, fmt.Errorf("duplicate rule code %s", code)
		}
		for _, j := range def.Jurisdictions {
			if !j.IsValid() {
				return nil, fmt.Errorf("rule %s: invalid jurisdiction %q", code, j)
			}
		}
		def.Code = code
		def.Jurisdictions = append([]enums.Jurisdiction(nil), def.Jurisdictions...)
		c.byCode[code] = len(c.rules)
		c.rules = append(c.rules, def)
	}
	return c, nil
}

// MustNew is New for package-level catalogs; it panics on invalid input.
func MustNew(version string, defs ...RuleDefinition) *Catalog {
	c, err := New(version, defs...)
	if err != nil {
		panic(err)
	}
	return c
}

var defaultCatalog = MustNew(DefaultVersion, defaultRules...)

// Default returns the built-in catalog.
func Default() *Catalog {
	return defaultCatalog
}

// Version returns the catalog version stamped on every scan.
func (c *Catalog) Version() string {
	return c.version
}

// Rules returns a copy of every rule in declaration order.
func (c *Catalog) Rules() []RuleDefinition {
	out := make([]RuleDefinition, len(c.rules))
	copy(out, c.rules)
	return out
}

// Lookup finds a rule by code.
func (c *Catalog) Lookup(code string) (RuleDefinition, bool) {
	idx, ok := c.byCode[code]
	if !ok {
		return RuleDefinition{}, false
	}
	return c.rules[idx], true
}

// Applicable returns the rules evaluated for j in declaration order. The
// synthetic SITE_UNREACHABLE rule is never part of a regular evaluation.
func (c *Catalog) Applicable(j enums.Jurisdiction) []RuleDefinition {
	out := make([]RuleDefinition, 0, len(c.rules))
	for _, r := range c.rules {
		if r.Code == CodeSiteUnreachable {
			continue
		}
		if r.AppliesTo(j) {
			out = append(out, r)
		}
	}
	return out
}

// Unreachable returns the synthetic rule recorded when a site cannot be fetched.
// Catalogs that do not declare one fall back to the built-in definition.
func (c *Catalog) Unreachable() RuleDefinition {
	if r, ok := c.Lookup(CodeSiteUnreachable); ok {
		return r
	}
	return siteUnreachable
}

// Verdict is the pass/fail outcome of one rule for one scan.
type Verdict struct {
	Code   string `json:"code"`
	Passed bool   `json:"passed"`
}
