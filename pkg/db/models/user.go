package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/hopl-labs/hopl-backend/pkg/enums"
)

// User is the account entity carrying the entitlement plan and credit balance.
type User struct {
	ID            uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	Email         string         `gorm:"column:email;type:text;not null"`
	Name          string         `gorm:"column:name;not null"`
	PasswordHash  string         `gorm:"column:password_hash;not null"`
	Plan          enums.PlanType `gorm:"column:plan;type:plan_type_enum;not null"`
	Credits       int            `gorm:"column:credits;not null"`
	PlanExpiresAt *time.Time     `gorm:"column:plan_expires_at"`
	LastLoginAt   *time.Time     `gorm:"column:last_login_at"`
	CreatedAt     time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

// HasUnlimitedPlan reports whether the account is on an active unlimited plan at now.
func (u User) HasUnlimitedPlan(now time.Time) bool {
	if !u.Plan.IsUnlimited() {
		return false
	}
	return u.PlanExpiresAt == nil || u.PlanExpiresAt.After(now)
}
