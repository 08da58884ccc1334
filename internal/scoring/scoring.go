// Package scoring turns rule verdicts into a compliance score, a risk tier and
// a jurisdiction. Every function is pure.
package scoring

import (
	"github.com/hopl-labs/hopl-backend/internal/rules"
	"github.com/hopl-labs/hopl-backend/pkg/enums"
)

const (
	MaxScore = 100

	lowRiskFloor    = 80
	mediumRiskFloor = 50
)

// Issue is a verdict joined with its rule metadata; it is what a scan result stores.
type Issue struct {
	Code        string `json:"code"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Severity    int    `json:"severity"`
	Passed      bool   `json:"passed"`
}

// Score returns max(0, 100 - sum of failing severities) and its risk tier.
// The result does not depend on the order of issues.
func Score(issues []Issue) (int, enums.RiskLevel) {
	penalty := 0
	for _, issue := range issues {
		if issue.Passed || issue.Severity <= 0 {
			continue
		}
		penalty += issue.Severity
		if penalty >= MaxScore {
			break
		}
	}
	score := clamp(MaxScore - penalty)
	return score, RiskFor(score)
}

// RiskFor maps a score to LOW (>= 80), MEDIUM (50..79) or HIGH (< 50).
func RiskFor(score int) enums.RiskLevel {
	switch {
	case score >= lowRiskFloor:
		return enums.RiskLow
	case score >= mediumRiskFloor:
		return enums.RiskMedium
	default:
		return enums.RiskHigh
	}
}

// ResolveJurisdiction returns hint when it is a known jurisdiction, GLOBAL otherwise.
func ResolveJurisdiction(hint enums.Jurisdiction) enums.Jurisdiction {
	if hint != "" && hint.IsValid() {
		return hint
	}
	return enums.JurisdictionGlobal
}

// IssuesFromVerdicts joins verdicts with catalog metadata in verdict order.
// A verdict whose code is not in the catalog keeps its code and fails closed.
func IssuesFromVerdicts(catalog *rules.Catalog, verdicts []rules.Verdict) []Issue {
	out := make([]Issue, 0, len(verdicts))
	for _, v := range verdicts {
		def, ok := catalog.Lookup(v.Code)
		if !ok && v.Code == rules.CodeSiteUnreachable {
			def, ok = catalog.Unreachable(), true
		}
		if !ok {
			out = append(out, Issue{Code: v.Code, Title: v.Code, Severity: 1, Passed: false})
			continue
		}
		out = append(out, Issue{
			Code:        def.Code,
			Title:       def.Title,
			Description: def.Description,
			Severity:    def.Severity,
			Passed:      v.Passed,
		})
	}
	return out
}

// FailedCodes lists the codes of failing issues in order.
func FailedCodes(issues []Issue) []string {
	out := make([]string, 0, len(issues))
	for _, issue := range issues {
		if !issue.Passed {
			out = append(out, issue.Code)
		}
	}
	return out
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
