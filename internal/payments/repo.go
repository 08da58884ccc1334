package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hopl-labs/hopl-backend/pkg/db/models"
	"github.com/hopl-labs/hopl-backend/pkg/enums"
)

// Repository persists checkout payments.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *Repository) FindBySessionID(ctx context.Context, sessionID string) (*models.Payment, error) {
	return r.findBySessionID(r.db.WithContext(ctx), sessionID)
}

func (r *Repository) FindBySessionIDTx(tx *gorm.DB, sessionID string) (*models.Payment, error) {
	return r.findBySessionID(tx, sessionID)
}

func (r *Repository) findBySessionID(tx *gorm.DB, sessionID string) (*models.Payment, error) {
	var payment models.Payment
	if err := tx.Where("provider_session_id = ?", sessionID).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

// MarkStatusTx settles a PENDING payment. Rows already in a terminal status are
// left alone and the returned count is zero.
func (r *Repository) MarkStatusTx(tx *gorm.DB, sessionID string, status enums.PaymentStatus, paymentIntent *string) (int64, error) {
	values := map[string]any{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	if paymentIntent != nil {
		values["provider_payment_intent"] = *paymentIntent
	}
	res := tx.Model(&models.Payment{}).
		Where("provider_session_id = ? AND status = ?", sessionID, enums.PaymentStatusPending).
		Updates(values)
	return res.RowsAffected, res.Error
}

// AttachSubscriptionTx links the provider subscription created by a checkout
// session to its payment row. An already linked row is left alone.
func (r *Repository) AttachSubscriptionTx(tx *gorm.DB, sessionID, subscriptionID string) error {
	return tx.Model(&models.Payment{}).
		Where("provider_session_id = ? AND provider_subscription_id IS NULL", sessionID).
		Updates(map[string]any{
			"provider_subscription_id": subscriptionID,
			"updated_at":               time.Now().UTC(),
		}).Error
}

// FindBySubscriptionIDTx returns the checkout payment that started subscriptionID.
func (r *Repository) FindBySubscriptionIDTx(tx *gorm.DB, subscriptionID string) (*models.Payment, error) {
	var payment models.Payment
	err := tx.Where("provider_subscription_id = ?", subscriptionID).
		Order("created_at ASC").
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// ExpirePendingBefore fails PENDING payments created before cutoff. Stripe
// checkout sessions expire after a day at most, so such rows can never settle.
func (r *Repository) ExpirePendingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("status = ? AND created_at < ?", enums.PaymentStatusPending, cutoff).
		Updates(map[string]any{
			"status":     enums.PaymentStatusFailed,
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}
