package enums

import (
	"fmt"
	"slices"
	"strings"
)

// lookup finds value in set by exact match. Postgres enums are case
// sensitive, so this is what column values go through.
func lookup[T ~string](set []T, value, kind string) (T, error) {
	if i := slices.Index(set, T(value)); i >= 0 {
		return set[i], nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, value)
}

// lookupFold is lookup for client input: surrounding space is dropped and
// the value is upper-cased first.
func lookupFold[T ~string](set []T, value, kind string) (T, error) {
	t, err := lookup(set, strings.ToUpper(strings.TrimSpace(value)), kind)
	if err != nil {
		return t, fmt.Errorf("invalid %s %q", kind, value)
	}
	return t, nil
}
