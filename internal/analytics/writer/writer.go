package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hopl-labs/hopl-backend/internal/analytics/types"
)

const (
	defaultBatchSize      = 1
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaximumBackoff = 2 * time.Second
)

type Config struct {
	ScanFactsTable   string
	GenerationTable  string
	CreditFactsTable string
	// BatchSize rows are buffered per table before an insert; 1 writes
	// through.
	BatchSize   int
	RetryPolicy RetryPolicy
}

// RetryPolicy bounds inserts that fail with a transient BigQuery error.
// MaxAttempts counts the first try.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = defaultInitialBackoff
	}
	if p.MaximumBackoff < p.InitialBackoff {
		p.MaximumBackoff = max(defaultMaximumBackoff, p.InitialBackoff)
	}
	return p
}

func (p RetryPolicy) backoff() retry.Backoff {
	b := retry.NewExponential(p.InitialBackoff)
	b = retry.WithCappedDuration(p.MaximumBackoff, b)
	return retry.WithMaxRetries(uint64(p.MaxAttempts-1), b)
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// batch holds the pending rows of one table. Rows stay buffered when an
// insert fails so the next flush retries them.
type batch[T any] struct {
	table string
	rows  []T
}

func (b *batch[T]) values() []any {
	out := make([]any, len(b.rows))
	for i := range b.rows {
		out[i] = &b.rows[i]
	}
	return out
}

// BigQueryWriter appends analytics fact rows to their BigQuery tables.
// It is not safe for concurrent use; the worker owns one per process.
type BigQueryWriter struct {
	client    tableInserter
	batchSize int
	retry     RetryPolicy

	scans       batch[types.ScanFactRow]
	generations batch[types.GenerationFactRow]
	credits     batch[types.CreditFactRow]
}

func New(client tableInserter, cfg Config) (*BigQueryWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	tables := map[string]*string{
		"scan facts":       &cfg.ScanFactsTable,
		"generation facts": &cfg.GenerationTable,
		"credit facts":     &cfg.CreditFactsTable,
	}
	for label, table := range tables {
		*table = strings.TrimSpace(*table)
		if *table == "" {
			return nil, fmt.Errorf("%s table is required", label)
		}
	}
	return &BigQueryWriter{
		client:      client,
		batchSize:   max(cfg.BatchSize, defaultBatchSize),
		retry:       cfg.RetryPolicy.withDefaults(),
		scans:       batch[types.ScanFactRow]{table: cfg.ScanFactsTable},
		generations: batch[types.GenerationFactRow]{table: cfg.GenerationTable},
		credits:     batch[types.CreditFactRow]{table: cfg.CreditFactsTable},
	}, nil
}

func (w *BigQueryWriter) InsertScanFact(ctx context.Context, row types.ScanFactRow) error {
	return push(ctx, w, &w.scans, row)
}

func (w *BigQueryWriter) InsertGenerationFact(ctx context.Context, row types.GenerationFactRow) error {
	return push(ctx, w, &w.generations, row)
}

func (w *BigQueryWriter) InsertCreditFact(ctx context.Context, row types.CreditFactRow) error {
	return push(ctx, w, &w.credits, row)
}

// Flush writes whatever is buffered. Every table is attempted even when an
// earlier one fails.
func (w *BigQueryWriter) Flush(ctx context.Context) error {
	return multierr.Combine(
		flush(ctx, w, &w.scans),
		flush(ctx, w, &w.generations),
		flush(ctx, w, &w.credits),
	)
}

func push[T any](ctx context.Context, w *BigQueryWriter, b *batch[T], row T) error {
	b.rows = append(b.rows, row)
	if len(b.rows) < w.batchSize {
		return nil
	}
	return flush(ctx, w, b)
}

func flush[T any](ctx context.Context, w *BigQueryWriter, b *batch[T]) error {
	if len(b.rows) == 0 {
		return nil
	}
	if err := w.insert(ctx, b.table, b.values()); err != nil {
		return err
	}
	b.rows = b.rows[:0]
	return nil
}

func (w *BigQueryWriter) insert(ctx context.Context, table string, rows []any) error {
	err := retry.Do(ctx, w.retry.backoff(), func(ctx context.Context) error {
		err := w.client.InsertRows(ctx, table, rows)
		if err != nil && isRetryableBigQueryError(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("insert %d rows into %s: %w", len(rows), table, err)
	}
	return nil
}

// isRetryableBigQueryError is true only when every underlying failure is
// transient; one bad row makes the whole insert permanent.
func isRetryableBigQueryError(err error) bool {
	var multi cbigquery.MultiError
	if errors.As(err, &multi) {
		return allRetryable(multi)
	}
	var rows cbigquery.PutMultiError
	if errors.As(err, &rows) {
		if len(rows) == 0 {
			return false
		}
		for _, rowErr := range rows {
			if !allRetryable(rowErr.Errors) {
				return false
			}
		}
		return true
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusRequestTimeout, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.OK {
		switch st.Code() {
		case codes.Aborted, codes.DeadlineExceeded, codes.Internal, codes.ResourceExhausted, codes.Unavailable:
			return true
		}
	}
	return false
}

func allRetryable(errs []error) bool {
	if len(errs) == 0 {
		return false
	}
	for _, err := range errs {
		if !isRetryableBigQueryError(err) {
			return false
		}
	}
	return true
}

// EncodeJSON renders payload for a BigQuery JSON column. Empty input maps
// to NULL.
func EncodeJSON(payload any) (cbigquery.NullJSON, error) {
	var raw []byte
	switch v := payload.(type) {
	case nil:
		return cbigquery.NullJSON{}, nil
	case cbigquery.NullJSON:
		return v, nil
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		encoded, err := json.Marshal(payload)
		if err != nil {
			return cbigquery.NullJSON{}, fmt.Errorf("marshal json: %w", err)
		}
		raw = encoded
	}
	if len(raw) == 0 {
		return cbigquery.NullJSON{}, nil
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(raw)}, nil
}
