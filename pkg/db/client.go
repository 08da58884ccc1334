package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/hopl-labs/hopl-backend/pkg/config"
	"github.com/hopl-labs/hopl-backend/pkg/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	slowQueryThreshold = 250 * time.Millisecond
	connectTimeout     = 5 * time.Second
)

// Client owns the process-wide GORM pool.
type Client struct {
	conn *gorm.DB
}

// Pinger is the readiness surface.
type Pinger interface {
	Ping(ctx context.Context) error
}

// New opens the pool described by cfg and pings it before returning.
func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database DSN is required")
	}
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}
	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 queryLogger{logg: logg, slow: slowQueryThreshold},
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening db connection: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql db handle: %w", err)
	}
	// database/sql treats zero as "no limit" for each of these.
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"driver":         dialector.Name(),
			"max_open_conns": cfg.MaxOpenConns,
		}), "database connection established")
	}
	return &Client{conn: conn}, nil
}

func dialectorFor(cfg config.DBConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "", DriverPostgres:
		// Simple protocol keeps pgbouncer in transaction mode happy.
		return postgres.New(postgres.Config{DSN: cfg.DSN, PreferSimpleProtocol: true}), nil
	case DriverSQLite:
		return sqlite.Open(cfg.DSN), nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
}

// FromGorm wraps a connection opened elsewhere, e.g. by dbtest.
func FromGorm(conn *gorm.DB) *Client {
	return &Client{conn: conn}
}

func (c *Client) DB() *gorm.DB {
	return c.conn
}

func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (c *Client) Close() error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTx runs fn in a transaction bound to ctx. It commits when fn returns
// nil and rolls back on an error or a panic, which is re-raised.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.conn.WithContext(ctx).Transaction(fn)
}

// queryLogger sends GORM's own diagnostics through the service logger:
// unexpected failures at error and slow statements at warn.
type queryLogger struct {
	logg *logger.Logger
	slow time.Duration
}

func (q queryLogger) LogMode(gormlogger.LogLevel) gormlogger.Interface { return q }

func (q queryLogger) Info(context.Context, string, ...any) {}

func (q queryLogger) Warn(ctx context.Context, msg string, args ...any) {
	if q.logg != nil {
		q.logg.Warn(ctx, "gorm: "+fmt.Sprintf(msg, args...))
	}
}

func (q queryLogger) Error(ctx context.Context, msg string, args ...any) {
	if q.logg != nil {
		q.logg.Error(ctx, "gorm", fmt.Errorf(msg, args...))
	}
}

func (q queryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if q.logg == nil {
		return
	}
	elapsed := time.Since(begin)
	// Misses and unique violations are outcomes callers branch on.
	expected := errors.Is(err, gorm.ErrRecordNotFound) || IsUniqueViolation(err, "")
	if (err == nil || expected) && (q.slow <= 0 || elapsed < q.slow) {
		return
	}
	query, rows := fc()
	ctx = q.logg.WithFields(ctx, map[string]any{
		"sql":         query,
		"rows":        rows,
		"duration_ms": elapsed.Milliseconds(),
	})
	if err != nil && !expected {
		q.logg.Error(ctx, "db.query_failed", err)
		return
	}
	q.logg.Warn(ctx, "db.query_slow")
}
