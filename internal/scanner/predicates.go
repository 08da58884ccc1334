package scanner

import (
	"regexp"
	"strings"

	"github.com/hopl-labs/hopl-backend/internal/rules"
)

var (
	privacyPattern       = regexp.MustCompile(`(?i)(privacy|privacidad|datenschutz|confidentialit|privacidade)`)
	termsPattern         = regexp.MustCompile(`(?i)(terms|condiciones|nutzungsbedingungen|conditions.*utilisation|termos)`)
	cookieConsentPattern = regexp.MustCompile(`(?i)(cookie-consent|cookie-banner|cookie-notice|cookieconsent|cc-window|gdpr|onetrust|cookiebot|quantcast)`)
	contactPattern       = regexp.MustCompile(`(?i)(contact|contacto|kontakt|mailto:)`)
	emailPattern         = regexp.MustCompile(`(?i)[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}`)
	trackerPattern       = regexp.MustCompile(`(?i)(google-analytics|googletagmanager|gtag|fbq|facebook.*pixel|hotjar|mixpanel|segment\.com|analytics\.js)`)
	optOutMarkers        = []string{"unsubscribe", "opt-out", "opt out", "darse de baja"}
)

// Facts are the derived booleans shared by several predicates.
type Facts struct {
	HasPrivacyLink      bool
	HasTermsLink        bool
	HasCookieConsent    bool
	HasContact          bool
	HasTrackers         bool
	HasCookiePolicyLink bool
	HasOptOut           bool
	IsHTTPS             bool
	Forms               int
	Images              int
	ImagesWithAlt       int
}

// Derive computes Facts from page signals.
func Derive(s Signals) Facts {
	f := Facts{
		HasPrivacyLink:   anyLink(s.Links, privacyPattern),
		HasTermsLink:     anyLink(s.Links, termsPattern),
		HasCookieConsent: cookieConsentPattern.MatchString(s.HTML),
		HasContact:       contactPattern.MatchString(s.HTML) || emailPattern.MatchString(s.Text) || anyLink(s.Links, contactPattern),
		IsHTTPS:          s.FinalURL != nil && strings.EqualFold(s.FinalURL.Scheme, "https"),
		Forms:            s.Forms,
		Images:           s.Images,
		ImagesWithAlt:    s.ImagesWithAlt,
	}
	for _, script := range s.Scripts {
		if trackerPattern.MatchString(script) {
			f.HasTrackers = true
			break
		}
	}
	for _, l := range s.Links {
		if mentionsCookiePolicy(l.Href) || mentionsCookiePolicy(l.Text) {
			f.HasCookiePolicyLink = true
			break
		}
	}
	for _, marker := range optOutMarkers {
		if strings.Contains(s.HTML, marker) {
			f.HasOptOut = true
			break
		}
	}
	return f
}

// Predicate decides whether a rule passes for a page.
type Predicate func(Facts) bool

// DefaultPredicates returns the predicate for every built-in rule.
func DefaultPredicates() map[string]Predicate {
	return map[string]Predicate{
		rules.CodeMissingPrivacyPolicy: func(f Facts) bool { return f.HasPrivacyLink },
		rules.CodeMissingTerms:         func(f Facts) bool { return f.HasTermsLink },
		rules.CodeMissingCookieConsent: func(f Facts) bool { return f.HasCookieConsent },
		rules.CodeNoContactInfo:        func(f Facts) bool { return f.HasContact },
		rules.CodeThirdPartyCookies: func(f Facts) bool {
			return !f.HasTrackers || f.HasPrivacyLink || f.HasCookieConsent
		},
		rules.CodeNoHTTPS: func(f Facts) bool { return f.IsHTTPS },
		rules.CodeMissingCookiePolicy: func(f Facts) bool {
			return f.HasCookiePolicyLink || !f.HasTrackers
		},
		rules.CodeNoDataCollectionDisclosure: func(f Facts) bool {
			return f.Forms == 0 || f.HasPrivacyLink
		},
		rules.CodeNoOptOut: func(f Facts) bool {
			return f.HasOptOut || f.Forms == 0
		},
		rules.CodeNoAccessibilityBasics: func(f Facts) bool {
			return f.Images == 0 || float64(f.ImagesWithAlt)/float64(f.Images) > 0.5
		},
	}
}

func anyLink(links []Link, pattern *regexp.Regexp) bool {
	for _, l := range links {
		if pattern.MatchString(l.Href) || pattern.MatchString(l.Text) {
			return true
		}
	}
	return false
}

func mentionsCookiePolicy(v string) bool {
	v = strings.ToLower(v)
	return strings.Contains(v, "cookie") && (strings.Contains(v, "policy") || strings.Contains(v, "politic"))
}
