package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// PGDetails carries the server-side fields of a Postgres error, whichever
// driver raised it.
type PGDetails struct {
	Code       string `json:"code"`
	Constraint string `json:"constraint,omitempty"`
	Table      string `json:"table,omitempty"`
	Column     string `json:"column,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Report is the log-side view of an error: the typed code, every wrapped
// layer and any Postgres diagnostics found along the way.
type Report struct {
	Message string     `json:"message"`
	Code    Code       `json:"code,omitempty"`
	Chain   []string   `json:"chain,omitempty"`
	PG      *PGDetails `json:"pg,omitempty"`
}

func Describe(err error) Report {
	if err == nil {
		return Report{}
	}
	r := Report{Message: err.Error(), PG: postgresDetails(err)}
	if typed := As(err); typed != nil {
		r.Code = typed.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		r.Chain = append(r.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	return r
}

// Fields flattens the report for structured logging. Empty values are left
// out so a plain validation error does not log a row of blank pg_* keys.
func (r Report) Fields() map[string]any {
	fields := map[string]any{"error": r.Message}
	if r.Code != "" {
		fields["error_code"] = string(r.Code)
	}
	if len(r.Chain) > 1 {
		fields["error_chain"] = r.Chain
	}
	if r.PG == nil {
		return fields
	}
	for key, value := range map[string]string{
		"pg_code":       r.PG.Code,
		"pg_constraint": r.PG.Constraint,
		"pg_table":      r.PG.Table,
		"pg_column":     r.PG.Column,
		"pg_detail":     r.PG.Detail,
		"pg_message":    r.PG.Message,
	} {
		if value != "" {
			fields[key] = value
		}
	}
	return fields
}

// postgresDetails understands both pgx (gorm, goose) and lib/pq errors.
func postgresDetails(err error) *PGDetails {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &PGDetails{
			Code:       pgErr.Code,
			Constraint: pgErr.ConstraintName,
			Table:      pgErr.TableName,
			Column:     pgErr.ColumnName,
			Detail:     pgErr.Detail,
			Message:    pgErr.Message,
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &PGDetails{
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}
	}
	return nil
}
