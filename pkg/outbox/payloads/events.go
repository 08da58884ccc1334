package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/hopl-labs/hopl-backend/pkg/enums"
)

// ScanCompletedEvent is emitted once a scan result is persisted.
type ScanCompletedEvent struct {
	ScanID         uuid.UUID          `json:"scan_id"`
	UserID         *uuid.UUID         `json:"user_id,omitempty"`
	URL            string             `json:"url"`
	Score          int                `json:"score"`
	RiskLevel      enums.RiskLevel    `json:"risk_level"`
	Jurisdiction   enums.Jurisdiction `json:"jurisdiction"`
	FailedChecks   []string           `json:"failed_checks"`
	Unreachable    bool               `json:"unreachable"`
	CatalogVersion string             `json:"catalog_version"`
	CompletedAt    time.Time          `json:"completed_at"`
}

// DocumentGeneratedEvent is emitted when an attempt reaches SUCCEEDED.
type DocumentGeneratedEvent struct {
	DocumentID   uuid.UUID          `json:"document_id"`
	AttemptID    uuid.UUID          `json:"attempt_id"`
	UserID       uuid.UUID          `json:"user_id"`
	DocumentType enums.DocumentType `json:"document_type"`
	Jurisdiction enums.Jurisdiction `json:"jurisdiction"`
	Language     string             `json:"language"`
	TemplateKey  string             `json:"template_key"`
	Generator    string             `json:"generator"`
	Charged      bool               `json:"charged"`
	ScanID       *uuid.UUID         `json:"scan_id,omitempty"`
	DurationMS   int64              `json:"duration_ms"`
}

// GenerationFailedEvent is emitted when an attempt reaches FAILED.
type GenerationFailedEvent struct {
	AttemptID    uuid.UUID          `json:"attempt_id"`
	UserID       uuid.UUID          `json:"user_id"`
	DocumentType enums.DocumentType `json:"document_type"`
	FailureCode  string             `json:"failure_code"`
	Refunded     bool               `json:"refunded"`
	DurationMS   int64              `json:"duration_ms"`
}

// CreditsPurchasedEvent is emitted when a checkout session is credited to an account.
type CreditsPurchasedEvent struct {
	UserID            uuid.UUID      `json:"user_id"`
	PlanType          enums.PlanType `json:"plan_type"`
	ProviderSessionID string         `json:"provider_session_id"`
	CreditsGranted    int            `json:"credits_granted"`
	Balance           int            `json:"balance"`
	PlanExpiresAt     *time.Time     `json:"plan_expires_at,omitempty"`
}

// CreditsRefundedEvent is emitted when a charged authorization is reversed.
type CreditsRefundedEvent struct {
	UserID       uuid.UUID `json:"user_id"`
	Reference    string    `json:"reference"`
	Amount       int       `json:"amount"`
	BalanceAfter int       `json:"balance_after"`
}
