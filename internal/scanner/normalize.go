package scanner

import (
	"net/url"
	"strings"

	pkgerrors "github.com/hopl-labs/hopl-backend/pkg/errors"
)

const maxURLLength = 2048

// Normalize trims the input, defaults the scheme to https and drops trailing
// slashes. The result is the cache and persistence key for a scan.
func Normalize(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "url is required")
	}
	if len(trimmed) > maxURLLength {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "url is too long")
	}

	lower := strings.ToLower(trimmed)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		if strings.Contains(trimmed, "://") {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "url scheme must be http or https")
		}
		trimmed = "https://" + trimmed
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "url is malformed")
	}
	if u.Hostname() == "" || strings.ContainsAny(u.Hostname(), " \t") {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "url host is required")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	return strings.TrimRight(u.String(), "/"), nil
}
