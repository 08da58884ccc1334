package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"strings"

	"go.uber.org/multierr"
)

const (
	upMarker   = "-- +goose Up"
	downMarker = "-- +goose Down"
)

var migrationName = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// ValidateDir checks the migration files in an on-disk directory.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("migrate: dir is required")
	}
	return ValidateFS(os.DirFS(dir), ".")
}

// ValidateEmbedded checks the migrations compiled into the binary.
func ValidateEmbedded() error {
	return ValidateFS(Migrations, embeddedDir)
}

// ValidateFS checks naming, version uniqueness and goose markers for every .sql file
// in dir. All problems are reported together.
func ValidateFS(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("migrate: read %q: %w", dir, err)
	}

	var errs error
	versions := make(map[string]string, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || path.Ext(name) != ".sql" {
			continue
		}

		match := migrationName.FindStringSubmatch(name)
		if match == nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: name must look like YYYYMMDDHHMMSS_snake_case.sql", name))
			continue
		}
		if first, dup := versions[match[1]]; dup {
			errs = multierr.Append(errs, fmt.Errorf("%s: version %s already used by %s", name, match[1], first))
			continue
		}
		versions[match[1]] = name

		body, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		errs = multierr.Append(errs, checkMarkers(name, string(body)))
	}
	return errs
}

func checkMarkers(name, body string) error {
	up := strings.Index(body, upMarker)
	down := strings.Index(body, downMarker)
	switch {
	case up < 0:
		return fmt.Errorf("%s: missing %q", name, upMarker)
	case down < 0:
		return fmt.Errorf("%s: missing %q", name, downMarker)
	case down < up:
		return fmt.Errorf("%s: %q must come before %q", name, upMarker, downMarker)
	}
	return nil
}
