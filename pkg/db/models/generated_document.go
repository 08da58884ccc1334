package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/hopl-labs/hopl-backend/pkg/enums"
)

// GeneratedDocument is an immutable Markdown document owned by one account.
type GeneratedDocument struct {
	ID           uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	UserID       uuid.UUID          `gorm:"column:user_id;type:uuid;not null"`
	DocumentType enums.DocumentType `gorm:"column:document_type;type:document_type_enum;not null"`
	Title        string             `gorm:"column:title;not null"`
	Content      string             `gorm:"column:content;not null"`
	BusinessName string             `gorm:"column:business_name;not null"`
	Jurisdiction enums.Jurisdiction `gorm:"column:jurisdiction;type:jurisdiction_enum;not null"`
	Language     string             `gorm:"column:language;not null"`
	TemplateKey  string             `gorm:"column:template_key;not null"`
	ScanID       *uuid.UUID         `gorm:"column:scan_id;type:uuid"`
	CreatedAt    time.Time          `gorm:"column:created_at;autoCreateTime"`
}

// GenerationAttempt tracks one pass through the generation state machine.
type GenerationAttempt struct {
	ID           uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	UserID       uuid.UUID              `gorm:"column:user_id;type:uuid;not null"`
	DocumentType enums.DocumentType     `gorm:"column:document_type;type:document_type_enum;not null"`
	Status       enums.GenerationStatus `gorm:"column:status;type:generation_status_enum;not null"`
	Charged      bool                   `gorm:"column:charged;not null"`
	Refunded     bool                   `gorm:"column:refunded;not null"`
	DocumentID   *uuid.UUID             `gorm:"column:document_id;type:uuid"`
	FailureCode  *string                `gorm:"column:failure_code"`
	CreatedAt    time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
