package scanner

import (
	"github.com/hopl-labs/hopl-backend/internal/rules"
)

var recommendationByCode = map[string]string{
	rules.CodeMissingPrivacyPolicy: "Generate a Privacy Policy tailored to your website",
	rules.CodeMissingTerms:         "Create Terms of Service to protect your business",
	rules.CodeMissingCookieConsent: "Add a Cookie Consent banner and Cookie Policy",
	rules.CodeNoContactInfo:        "Add visible contact information to your website",
	rules.CodeThirdPartyCookies:    "Disclose third-party tracking in your Privacy Policy",
	rules.CodeNoHTTPS:              "Enable HTTPS/SSL for your website",
	rules.CodeSiteUnreachable:      "Make sure your website is reachable and try again",
}

// Recommend returns one suggestion per failing verdict, in verdict order.
func Recommend(catalog *rules.Catalog, verdicts []rules.Verdict) []string {
	out := make([]string, 0, len(verdicts))
	for _, v := range verdicts {
		if v.Passed {
			continue
		}
		if rec, ok := recommendationByCode[v.Code]; ok {
			out = append(out, rec)
			continue
		}
		title := v.Code
		if def, ok := catalog.Lookup(v.Code); ok && def.Title != "" {
			title = def.Title
		}
		out = append(out, "Address: "+title)
	}
	return out
}
