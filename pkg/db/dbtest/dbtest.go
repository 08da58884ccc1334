// Package dbtest opens throwaway SQLite databases carrying the same tables and
// constraints as the Postgres migrations, for repository and ledger tests.
package dbtest

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/hopl-labs/hopl-backend/pkg/db"
)

var seq atomic.Int64

// Postgres enums and arrays become TEXT; CHECK and UNIQUE constraints are kept
// because the ledger relies on them.
var schema = []string{
	`CREATE TABLE users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		name TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		plan TEXT NOT NULL DEFAULT 'FREE',
		credits INTEGER NOT NULL DEFAULT 0 CHECK (credits >= 0),
		plan_expires_at DATETIME,
		last_login_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX idx_users_email ON users (lower(email))`,
	`CREATE TABLE scan_results (
		id TEXT PRIMARY KEY,
		user_id TEXT REFERENCES users(id),
		url TEXT NOT NULL,
		score INTEGER NOT NULL CHECK (score BETWEEN 0 AND 100),
		issues BLOB NOT NULL,
		recommendations TEXT NOT NULL,
		jurisdiction TEXT NOT NULL,
		risk_level TEXT NOT NULL,
		catalog_version TEXT NOT NULL,
		unreachable BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE ledger_events (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		type TEXT NOT NULL,
		amount INTEGER NOT NULL,
		balance_after INTEGER NOT NULL,
		reference TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT ledger_events_type_reference_key UNIQUE (type, reference)
	)`,
	`CREATE TABLE credit_purchases (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		plan_type TEXT NOT NULL,
		provider_session_id TEXT NOT NULL,
		credits_granted INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT credit_purchases_provider_session_id_key UNIQUE (provider_session_id)
	)`,
	`CREATE TABLE generated_documents (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		document_type TEXT NOT NULL,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		business_name TEXT NOT NULL,
		jurisdiction TEXT NOT NULL,
		language TEXT NOT NULL,
		template_key TEXT NOT NULL,
		scan_id TEXT REFERENCES scan_results(id),
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE generation_attempts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		document_type TEXT NOT NULL,
		status TEXT NOT NULL,
		charged BOOLEAN NOT NULL DEFAULT 0,
		refunded BOOLEAN NOT NULL DEFAULT 0,
		document_id TEXT REFERENCES generated_documents(id),
		failure_code TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE payments (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		amount_cents INTEGER NOT NULL,
		currency TEXT NOT NULL,
		plan_type TEXT NOT NULL,
		provider_session_id TEXT NOT NULL,
		provider_payment_intent TEXT,
		provider_subscription_id TEXT,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT payments_provider_session_id_key UNIQUE (provider_session_id)
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload BLOB NOT NULL,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		published_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json BLOB NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
}

// Open returns a private in-memory database with the full schema applied.
// The pool is pinned to one connection so concurrent callers are serialized
// the way row locks would serialize them in Postgres.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, seq.Add(1))
	return open(t, dsn, 1)
}

// OpenFile returns a WAL-mode database file under t.TempDir() served by a
// real connection pool. Transactions begin IMMEDIATE, so concurrent writers
// queue on the busy timeout instead of sharing one connection.
func OpenFile(t testing.TB) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	dsn := "file:" + path + "?_journal_mode=WAL&_busy_timeout=10000&_txlock=immediate"
	return open(t, dsn, 8)
}

func open(t testing.TB, dsn string, maxConns int) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(maxConns)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return conn
}

// Client wraps Open in a *db.Client for services that take one.
func Client(t testing.TB) *db.Client {
	t.Helper()
	return db.FromGorm(Open(t))
}
