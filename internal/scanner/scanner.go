// Package scanner fetches a site and evaluates the rule catalog against it.
// It never persists anything and never fails a scan because the site is down.
package scanner

import (
	"context"
	"net/url"

	"github.com/hopl-labs/hopl-backend/internal/rules"
	"github.com/hopl-labs/hopl-backend/pkg/enums"
	pkgerrors "github.com/hopl-labs/hopl-backend/pkg/errors"
	"github.com/hopl-labs/hopl-backend/pkg/logger"
)

// Report is the outcome of one scan, ready for scoring.
type Report struct {
	URL              string
	Verdicts         []rules.Verdict
	JurisdictionHint enums.Jurisdiction
	Recommendations  []string
	Unreachable      bool
	// Upstream carries the UPSTREAM_UNAVAILABLE cause when Unreachable is set.
	Upstream *pkgerrors.Error
}

// Scanner evaluates the catalog against fetched pages.
type Scanner struct {
	catalog    *rules.Catalog
	fetcher    Fetcher
	classifier Classifier
	predicates map[string]Predicate
	logg       *logger.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithClassifier replaces the jurisdiction classifier.
func WithClassifier(c Classifier) Option {
	return func(s *Scanner) {
		if c != nil {
			s.classifier = c
		}
	}
}

// WithPredicate registers or replaces the predicate for a rule code.
func WithPredicate(code string, p Predicate) Option {
	return func(s *Scanner) {
		if p != nil {
			s.predicates[code] = p
		}
	}
}

// New builds a scanner over catalog. A nil catalog means rules.Default().
func New(catalog *rules.Catalog, fetcher Fetcher, logg *logger.Logger, opts ...Option) *Scanner {
	if catalog == nil {
		catalog = rules.Default()
	}
	s := &Scanner{
		catalog:    catalog,
		fetcher:    fetcher,
		classifier: TLDClassifier{},
		predicates: DefaultPredicates(),
		logg:       logg,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Catalog exposes the catalog the scanner evaluates.
func (s *Scanner) Catalog() *rules.Catalog {
	return s.catalog
}

// Scan normalizes rawURL, fetches it and evaluates every applicable rule.
// Only invalid input is returned as an error.
func (s *Scanner) Scan(ctx context.Context, rawURL string) (Report, error) {
	target, err := Normalize(rawURL)
	if err != nil {
		return Report{}, err
	}
	ctx = s.logg.WithField(ctx, "scan_url", target)

	page, err := s.fetcher.Fetch(ctx, target)
	if err != nil {
		return s.unreachable(ctx, target, err), nil
	}
	finalURL := page.FinalURL
	if finalURL == nil {
		finalURL, _ = url.Parse(target)
	}
	signals, err := Extract(finalURL, page.Body)
	if err != nil {
		return s.unreachable(ctx, target, err), nil
	}
	if page.Truncated {
		s.logg.Warn(ctx, "scan body truncated at size limit")
	}

	verdicts := s.Evaluate(ctx, signals)
	report := Report{
		URL:             target,
		Verdicts:        verdicts,
		Recommendations: Recommend(s.catalog, verdicts),
	}
	if j, ok := s.classifier.Classify(finalURL, signals); ok {
		report.JurisdictionHint = j
	}
	return report, nil
}

// Evaluate produces exactly one verdict per applicable rule, in catalog order.
// A rule without a predicate fails closed.
func (s *Scanner) Evaluate(ctx context.Context, signals Signals) []rules.Verdict {
	facts := Derive(signals)
	applicable := s.catalog.Applicable(enums.JurisdictionGlobal)
	verdicts := make([]rules.Verdict, 0, len(applicable))
	for _, rule := range applicable {
		pred, ok := s.predicates[rule.Code]
		if !ok {
			s.logg.Warn(s.logg.WithField(ctx, "rule_code", rule.Code), "no predicate registered for rule, failing closed")
			verdicts = append(verdicts, rules.Verdict{Code: rule.Code, Passed: false})
			continue
		}
		verdicts = append(verdicts, rules.Verdict{Code: rule.Code, Passed: pred(facts)})
	}
	return verdicts
}

func (s *Scanner) unreachable(ctx context.Context, target string, cause error) Report {
	s.logg.Warn(s.logg.WithField(ctx, "error", cause.Error()), "scan target unreachable")
	verdicts := []rules.Verdict{{Code: s.catalog.Unreachable().Code, Passed: false}}
	return Report{
		URL:             target,
		Verdicts:        verdicts,
		Recommendations: Recommend(s.catalog, verdicts),
		Unreachable:     true,
		Upstream:        pkgerrors.Wrap(pkgerrors.CodeUpstreamUnavailable, cause, "website could not be fetched"),
	}
}
