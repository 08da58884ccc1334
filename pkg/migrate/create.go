package migrate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
	"time"
)

const versionLayout = "20060102150405"

var (
	unsafeNameChars = regexp.MustCompile(`[^a-z0-9]+`)

	sqlSkeleton = template.Must(template.New("migration").Parse(`-- +goose Up
-- +goose StatementBegin
-- {{.Name}}
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- revert {{.Name}}
-- +goose StatementEnd
`))
)

// CreateSQLMigration writes an empty goose migration named
// <dir>/<UTC timestamp>_<slug>.sql and returns its path. It never
// overwrites an existing file.
func CreateSQLMigration(dir, name string) (string, error) {
	if dir == "" {
		return "", errors.New("migration dir is required")
	}
	slug := migrationSlug(name)
	if slug == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}

	path := filepath.Join(dir, time.Now().UTC().Format(versionLayout)+"_"+slug+".sql")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	if err := sqlSkeleton.Execute(f, struct{ Name string }{slug}); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("render %s: %w", path, err)
	}
	return path, f.Close()
}

// migrationSlug lowercases name and collapses every run of other characters
// into one underscore.
func migrationSlug(name string) string {
	slug := unsafeNameChars.ReplaceAllString(strings.ToLower(name), "_")
	return strings.Trim(slug, "_")
}
