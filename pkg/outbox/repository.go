package outbox

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hopl-labs/hopl-backend/pkg/db/models"
)

// errorColumnLimit bounds last_error and error_message.
const errorColumnLimit = 1024

var errNoTx = errors.New("outbox: transaction required")

// Repository reads and writes outbox_events and outbox_dlq.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Insert stores event inside the caller's transaction so it commits with the state change.
func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return errNoTx
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	return tx.Create(&event).Error
}

// FetchUnpublishedForPublish locks up to limit pending rows that still have attempts left.
// Rows held by another publisher are skipped.
func (r *Repository) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errNoTx
	}
	var rows []models.OutboxEvent
	err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("published_at IS NULL AND attempt_count < ?", maxAttempts).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	return r.update(tx, id, map[string]any{"published_at": time.Now().UTC()})
}

// MarkFailedTx records the error and burns one attempt.
func (r *Repository) MarkFailedTx(tx *gorm.DB, id uuid.UUID, cause error) error {
	return r.update(tx, id, map[string]any{
		"last_error":    errorText(cause),
		"attempt_count": gorm.Expr("attempt_count + 1"),
	})
}

// MarkTerminalTx pins attempt_count at the ceiling so the row is never fetched again.
func (r *Repository) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, cause error, terminalAttempts int) error {
	return r.update(tx, id, map[string]any{
		"last_error":    errorText(cause),
		"attempt_count": terminalAttempts,
	})
}

// DeadLetterTx copies a given-up event into outbox_dlq.
func (r *Repository) DeadLetterTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errNoTx
	}
	if !entry.ErrorReason.IsValid() {
		return errors.New("outbox: dead letter reason required")
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.ErrorMessage != nil {
		msg := clip(*entry.ErrorMessage)
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}

// DeleteExpired removes rows published before publishedBefore and dead rows
// (never published, attempt_count at or above maxAttempts) created before
// deadBefore. It returns the number of rows removed.
func (r *Repository) DeleteExpired(ctx context.Context, publishedBefore, deadBefore time.Time, maxAttempts int) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("published_at IS NOT NULL AND published_at < ?", publishedBefore).
		Or("published_at IS NULL AND attempt_count >= ? AND created_at < ?", maxAttempts, deadBefore).
		Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

func (r *Repository) update(tx *gorm.DB, id uuid.UUID, cols map[string]any) error {
	if tx == nil {
		return errNoTx
	}
	return tx.Model(&models.OutboxEvent{}).Where("id = ?", id).Updates(cols).Error
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return clip(err.Error())
}

func clip(s string) string {
	if len(s) <= errorColumnLimit {
		return s
	}
	s = s[:errorColumnLimit]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
