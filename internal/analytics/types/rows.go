package types

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// ScanFactRow mirrors the scan_facts BigQuery schema.
type ScanFactRow struct {
	EventID          string             `bigquery:"event_id"`
	OccurredAt       time.Time          `bigquery:"occurred_at"`
	ScanID           string             `bigquery:"scan_id"`
	UserID           *string            `bigquery:"user_id"`
	Host             string             `bigquery:"host"`
	Score            int64              `bigquery:"score"`
	RiskLevel        string             `bigquery:"risk_level"`
	Jurisdiction     string             `bigquery:"jurisdiction"`
	FailedCheckCount int64              `bigquery:"failed_check_count"`
	FailedChecks     []string           `bigquery:"failed_checks"`
	Unreachable      bool               `bigquery:"unreachable"`
	CatalogVersion   string             `bigquery:"catalog_version"`
	Payload          cbigquery.NullJSON `bigquery:"payload"`
}

// GenerationFactRow mirrors the generation_facts BigQuery schema. Successful
// and failed attempts share the table; Outcome tells them apart.
type GenerationFactRow struct {
	EventID      string             `bigquery:"event_id"`
	OccurredAt   time.Time          `bigquery:"occurred_at"`
	AttemptID    string             `bigquery:"attempt_id"`
	DocumentID   *string            `bigquery:"document_id"`
	UserID       string             `bigquery:"user_id"`
	DocumentType string             `bigquery:"document_type"`
	Jurisdiction *string            `bigquery:"jurisdiction"`
	Language     *string            `bigquery:"language"`
	Generator    *string            `bigquery:"generator"`
	Outcome      string             `bigquery:"outcome"`
	FailureCode  *string            `bigquery:"failure_code"`
	Charged      bool               `bigquery:"charged"`
	Refunded     bool               `bigquery:"refunded"`
	ScanID       *string            `bigquery:"scan_id"`
	DurationMS   int64              `bigquery:"duration_ms"`
	Payload      cbigquery.NullJSON `bigquery:"payload"`
}

// CreditFactRow mirrors the credit_facts BigQuery schema. Delta is the number
// of credits the event added to the balance.
type CreditFactRow struct {
	EventID      string             `bigquery:"event_id"`
	OccurredAt   time.Time          `bigquery:"occurred_at"`
	UserID       string             `bigquery:"user_id"`
	Kind         string             `bigquery:"kind"`
	PlanType     *string            `bigquery:"plan_type"`
	Reference    string             `bigquery:"reference"`
	Delta        int64              `bigquery:"delta"`
	BalanceAfter int64              `bigquery:"balance_after"`
	Payload      cbigquery.NullJSON `bigquery:"payload"`
}
