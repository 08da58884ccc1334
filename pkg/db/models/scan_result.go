package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hopl-labs/hopl-backend/pkg/enums"
)

// ScanResult is the persisted, immutable outcome of one compliance scan.
type ScanResult struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	UserID          *uuid.UUID         `gorm:"column:user_id;type:uuid"`
	URL             string             `gorm:"column:url;not null"`
	Score           int                `gorm:"column:score;not null"`
	Issues          json.RawMessage    `gorm:"column:issues;type:jsonb;not null"`
	Recommendations pq.StringArray     `gorm:"column:recommendations;type:text[];not null"`
	Jurisdiction    enums.Jurisdiction `gorm:"column:jurisdiction;type:jurisdiction_enum;not null"`
	RiskLevel       enums.RiskLevel    `gorm:"column:risk_level;type:risk_level_enum;not null"`
	CatalogVersion  string             `gorm:"column:catalog_version;not null"`
	Unreachable     bool               `gorm:"column:unreachable;not null"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime"`
}
