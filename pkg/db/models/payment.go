package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/hopl-labs/hopl-backend/pkg/enums"
)

// Payment mirrors a provider checkout session from creation to settlement.
type Payment struct {
	ID                     uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	UserID                 uuid.UUID           `gorm:"column:user_id;type:uuid;not null"`
	AmountCents            int64               `gorm:"column:amount_cents;not null"`
	Currency               string              `gorm:"column:currency;not null"`
	PlanType               enums.PlanType      `gorm:"column:plan_type;type:plan_type_enum;not null"`
	ProviderSessionID      string              `gorm:"column:provider_session_id;not null"`
	ProviderPaymentIntent  *string             `gorm:"column:provider_payment_intent"`
	// ProviderSubscriptionID is set once a subscription checkout completes.
	ProviderSubscriptionID *string             `gorm:"column:provider_subscription_id"`
	Status                 enums.PaymentStatus `gorm:"column:status;type:payment_status_enum;not null"`
	CreatedAt              time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
