package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/hopl-labs/hopl-backend/pkg/enums"
)

// LedgerEvent records an immutable balance mutation on an account.
type LedgerEvent struct {
	ID           uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	UserID       uuid.UUID             `gorm:"column:user_id;type:uuid;not null"`
	Type         enums.LedgerEventType `gorm:"column:type;type:ledger_event_type_enum;not null"`
	Amount       int                   `gorm:"column:amount;not null"`
	BalanceAfter int                   `gorm:"column:balance_after;not null"`
	Reference    string                `gorm:"column:reference;not null"`
	CreatedAt    time.Time             `gorm:"column:created_at;autoCreateTime"`
}

// CreditPurchase dedupes provider checkout sessions before credits are granted.
type CreditPurchase struct {
	ID                uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	UserID            uuid.UUID      `gorm:"column:user_id;type:uuid;not null"`
	PlanType          enums.PlanType `gorm:"column:plan_type;type:plan_type_enum;not null"`
	ProviderSessionID string         `gorm:"column:provider_session_id;not null"`
	CreditsGranted    int            `gorm:"column:credits_granted;not null"`
	CreatedAt         time.Time      `gorm:"column:created_at;autoCreateTime"`
}
