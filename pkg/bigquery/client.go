package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/googleapi"

	"github.com/hopl-labs/hopl-backend/pkg/config"
	"github.com/hopl-labs/hopl-backend/pkg/gcp"
	"github.com/hopl-labs/hopl-backend/pkg/logger"
)

const metadataCheckTimeout = 10 * time.Second

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errTableNameRequired    = errors.New("bigquery table name is required")
	errClientNotInitialized = errors.New("bigquery client not initialized")
)

// Client is a dataset-scoped BigQuery handle for the analytics fact tables.
// The tables are provisioned out of band; the client only verifies them.
type Client struct {
	bq      *bigquery.Client
	dataset *bigquery.Dataset
	tables  []string
}

// NewClient connects and fails unless the dataset and every configured fact
// table already exist.
func NewClient(ctx context.Context, gcpCfg config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcpCfg.ProjectID)
	dataset := strings.TrimSpace(cfg.Dataset)
	tables := configuredTables(cfg)
	switch {
	case project == "":
		return nil, errProjectIDRequired
	case dataset == "":
		return nil, errDatasetRequired
	case len(tables) == 0:
		return nil, errTableNameRequired
	}

	bq, err := bigquery.NewClient(ctx, project, gcp.ClientOptions(gcpCfg)...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}
	c := &Client{bq: bq, dataset: bq.Dataset(dataset), tables: tables}
	if err := c.Ping(ctx); err != nil {
		_ = bq.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"dataset": dataset,
			"tables":  tables,
		}), "bigquery client initialized")
	}
	return c, nil
}

// configuredTables returns the non-blank fact tables in scan, generation,
// credit order.
func configuredTables(cfg config.BigQueryConfig) []string {
	var tables []string
	for _, name := range []string{cfg.ScanFactsTable, cfg.GenerationTable, cfg.CreditFactsTable} {
		if name = strings.TrimSpace(name); name != "" {
			tables = append(tables, name)
		}
	}
	return tables
}

// Ping checks the dataset and each table's metadata concurrently.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataCheckTimeout)
	defer cancel()

	if _, err := c.dataset.Metadata(ctx); err != nil {
		return describeMetadataErr("dataset", c.dataset.DatasetID, err)
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range c.tables {
		g.Go(func() error {
			if _, err := c.dataset.Table(name).Metadata(gctx); err != nil {
				return describeMetadataErr("table", name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func describeMetadataErr(kind, name string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%s %q does not exist", kind, name)
	}
	return fmt.Errorf("checking %s %q: %w", kind, name, err)
}

// Tables returns the table names verified at startup.
func (c *Client) Tables() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.tables...)
}

// InsertRows streams rows into table. Each row must be a ValueSaver or a
// struct pointer the bigquery package can infer a schema for.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return errTableNameRequired
	}
	if len(rows) == 0 {
		return nil
	}
	return c.dataset.Table(table).Inserter().Put(ctx, rows)
}

func (c *Client) Close() error {
	if c == nil || c.bq == nil {
		return nil
	}
	return c.bq.Close()
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
