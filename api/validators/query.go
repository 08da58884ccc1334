package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/hopl-labs/hopl-backend/pkg/errors"
)

// ParseQueryInt reads an optional integer query parameter bounded by
// [min, max]; an absent parameter yields def.
func ParseQueryInt(r *http.Request, key string, def, min, max int) (int, error) {
	raw := QueryString(r, key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	switch {
	case err != nil:
		return 0, pkgerrors.New(pkgerrors.CodeValidation, key+" must be an integer").
			WithDetails(map[string]any{"field": key})
	case n < min || n > max:
		return 0, pkgerrors.New(pkgerrors.CodeValidation, key+" is out of range").
			WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return n, nil
}

// QueryString returns the trimmed first value of key.
func QueryString(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}
