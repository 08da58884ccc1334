package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hopl-labs/hopl-backend/pkg/db/models"
	"github.com/hopl-labs/hopl-backend/pkg/enums"
)

// Repository holds the statements the ledger runs inside its transactions.
type Repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// DebitTx subtracts cost from the account in a single conditional UPDATE. The
// row only changes when the balance covers cost and no unlimited plan is active
// at now. It returns the number of rows updated.
func (r *Repository) DebitTx(tx *gorm.DB, userID uuid.UUID, cost int, now time.Time) (int64, error) {
	res := tx.Model(&models.User{}).
		Where("id = ? AND credits >= ?", userID, cost).
		Where("NOT (plan IN ? AND (plan_expires_at IS NULL OR plan_expires_at > ?))", enums.UnlimitedPlans, now).
		UpdateColumn("credits", gorm.Expr("credits - ?", cost))
	return res.RowsAffected, res.Error
}

// CreditTx adds amount to the account balance.
func (r *Repository) CreditTx(tx *gorm.DB, userID uuid.UUID, amount int) error {
	res := tx.Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("credits", gorm.Expr("credits + ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetPlanTx switches the account plan and its expiry.
func (r *Repository) SetPlanTx(tx *gorm.DB, userID uuid.UUID, plan enums.PlanType, expiresAt *time.Time) error {
	res := tx.Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{"plan": plan, "plan_expires_at": expiresAt})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// FindUserTx loads the account row. With lock set the row is held FOR UPDATE
// on dialects that support it.
func (r *Repository) FindUserTx(tx *gorm.DB, userID uuid.UUID, lock bool) (*models.User, error) {
	q := tx
	if lock && tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var user models.User
	if err := q.First(&user, "id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// InsertEventTx appends a ledger event. (type, reference) is unique.
func (r *Repository) InsertEventTx(tx *gorm.DB, event *models.LedgerEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	return tx.Create(event).Error
}

// FindEventTx loads the event of type recorded for the account under reference.
func (r *Repository) FindEventTx(tx *gorm.DB, userID uuid.UUID, eventType enums.LedgerEventType, reference string) (*models.LedgerEvent, error) {
	var event models.LedgerEvent
	err := tx.Where("user_id = ? AND type = ? AND reference = ?", userID, eventType, reference).
		First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// InsertPurchaseTx records a provider session. provider_session_id is unique.
func (r *Repository) InsertPurchaseTx(tx *gorm.DB, purchase *models.CreditPurchase) error {
	if purchase.ID == uuid.Nil {
		purchase.ID = uuid.New()
	}
	return tx.Create(purchase).Error
}

// FindUser reads the account outside a transaction.
func (r *Repository) FindUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	return r.FindUserTx(r.db.WithContext(ctx), userID, false)
}

// Events lists the ledger history of an account, newest first.
func (r *Repository) Events(ctx context.Context, userID uuid.UUID, limit int) ([]models.LedgerEvent, error) {
	var events []models.LedgerEvent
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}
