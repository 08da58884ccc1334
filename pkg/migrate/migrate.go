package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"github.com/pressly/goose/v3"
)

// DefaultDir is where create and validate look on disk.
const DefaultDir = "pkg/migrate/migrations"

const embeddedDir = "migrations"

// Migrations holds the SQL files compiled into every binary.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// Applied describes one migration that ran (or was rolled back).
type Applied struct {
	Version   int64
	Path      string
	Direction string
	Duration  time.Duration
}

// Status is the state of one embedded migration against the database.
type Status struct {
	Version   int64
	Path      string
	Applied   bool
	AppliedAt time.Time
}

// Runner drives goose against the embedded migrations without touching goose's globals.
type Runner struct {
	provider *goose.Provider
}

// NewRunner builds a Runner for a postgres connection.
func NewRunner(db *sql.DB) (*Runner, error) {
	if db == nil {
		return nil, errors.New("migrate: db is required")
	}
	sub, err := fs.Sub(Migrations, embeddedDir)
	if err != nil {
		return nil, fmt.Errorf("migrate: open embedded dir: %w", err)
	}
	p, err := goose.NewProvider(goose.DialectPostgres, db, sub)
	if err != nil {
		return nil, fmt.Errorf("migrate: new provider: %w", err)
	}
	return &Runner{provider: p}, nil
}

// Up applies every pending migration.
func (r *Runner) Up(ctx context.Context) ([]Applied, error) {
	results, err := r.provider.Up(ctx)
	if err != nil {
		return applied(results), fmt.Errorf("goose up: %w", err)
	}
	return applied(results), nil
}

// Down rolls back the most recent migration.
func (r *Runner) Down(ctx context.Context) ([]Applied, error) {
	res, err := r.provider.Down(ctx)
	if err != nil {
		return nil, fmt.Errorf("goose down: %w", err)
	}
	return applied([]*goose.MigrationResult{res}), nil
}

// Version reports the highest applied version.
func (r *Runner) Version(ctx context.Context) (int64, error) {
	v, err := r.provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("get db version: %w", err)
	}
	return v, nil
}

// Status lists every embedded migration with its applied state.
func (r *Runner) Status(ctx context.Context) ([]Status, error) {
	rows, err := r.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("goose status: %w", err)
	}
	out := make([]Status, 0, len(rows))
	for _, row := range rows {
		if row == nil || row.Source == nil {
			continue
		}
		out = append(out, Status{
			Version:   row.Source.Version,
			Path:      row.Source.Path,
			Applied:   row.State == goose.StateApplied,
			AppliedAt: row.AppliedAt,
		})
	}
	return out, nil
}

// To moves the schema up or down until target is the current version.
func (r *Runner) To(ctx context.Context, target string) ([]Applied, error) {
	version, err := ParseVersion(target)
	if err != nil {
		return nil, err
	}
	current, err := r.Version(ctx)
	if err != nil {
		return nil, err
	}

	var results []*goose.MigrationResult
	switch {
	case version > current:
		results, err = r.provider.UpTo(ctx, version)
	case version < current:
		results, err = r.provider.DownTo(ctx, version)
	default:
		return nil, nil
	}
	if err != nil {
		return applied(results), fmt.Errorf("goose migrate to %d: %w", version, err)
	}
	return applied(results), nil
}

// ParseVersion accepts a YYYYMMDDHHMMSS stamp, or "0" for an empty schema.
func ParseVersion(raw string) (int64, error) {
	if raw == "" {
		return 0, errors.New("migrate: target version is required")
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 || (v != 0 && len(raw) != len(versionLayout)) {
		return 0, fmt.Errorf("migrate: invalid version %q (want YYYYMMDDHHMMSS)", raw)
	}
	return v, nil
}

func applied(results []*goose.MigrationResult) []Applied {
	out := make([]Applied, 0, len(results))
	for _, res := range results {
		if res == nil || res.Source == nil || res.Empty {
			continue
		}
		out = append(out, Applied{
			Version:   res.Source.Version,
			Path:      res.Source.Path,
			Direction: res.Direction,
			Duration:  res.Duration,
		})
	}
	return out
}
