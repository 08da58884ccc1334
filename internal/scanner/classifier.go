package scanner

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/hopl-labs/hopl-backend/pkg/enums"
)

// Classifier infers the jurisdiction a site most likely falls under.
// ok is false when there is no confident hint.
type Classifier interface {
	Classify(target *url.URL, s Signals) (j enums.Jurisdiction, ok bool)
}

var euTLDs = map[string]struct{}{
	"de": {}, "fr": {}, "es": {}, "it": {}, "nl": {}, "be": {}, "at": {}, "pt": {}, "pl": {},
	"se": {}, "fi": {}, "dk": {}, "ie": {}, "gr": {}, "cz": {}, "ro": {}, "hu": {}, "bg": {},
	"hr": {}, "sk": {}, "si": {}, "lt": {}, "lv": {}, "ee": {}, "cy": {}, "lu": {}, "mt": {},
	"eu": {},
}

var tldJurisdictions = map[string]enums.Jurisdiction{
	"uk": enums.JurisdictionUKDPA,
	"br": enums.JurisdictionBRLGPD,
	"ca": enums.JurisdictionCAPIPEDA,
	"au": enums.JurisdictionAUPrivacy,
}

var keywordJurisdictions = []struct {
	keywords []string
	j        enums.Jurisdiction
}{
	{[]string{"gdpr", "rgpd", "dsgvo"}, enums.JurisdictionEUGDPR},
	// Bare "california" also matches postal addresses on non-US sites.
	{[]string{"ccpa", "california consumer privacy"}, enums.JurisdictionUSCCPA},
	{[]string{"lgpd"}, enums.JurisdictionBRLGPD},
}

// TLDClassifier looks at the country-code suffix first and page keywords second.
type TLDClassifier struct{}

func (TLDClassifier) Classify(target *url.URL, s Signals) (enums.Jurisdiction, bool) {
	if target != nil {
		if j, ok := classifyHost(target.Hostname()); ok {
			return j, true
		}
	}
	for _, entry := range keywordJurisdictions {
		for _, kw := range entry.keywords {
			if strings.Contains(s.HTML, kw) {
				return entry.j, true
			}
		}
	}
	return "", false
}

func classifyHost(host string) (enums.Jurisdiction, bool) {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" {
		return "", false
	}
	suffix, _ := publicsuffix.PublicSuffix(host)
	// co.uk, com.br and friends classify by their last label.
	if idx := strings.LastIndexByte(suffix, '.'); idx >= 0 {
		suffix = suffix[idx+1:]
	}
	if _, ok := euTLDs[suffix]; ok {
		return enums.JurisdictionEUGDPR, true
	}
	j, ok := tldJurisdictions[suffix]
	return j, ok
}
