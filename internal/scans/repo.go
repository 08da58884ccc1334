package scans

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hopl-labs/hopl-backend/pkg/db/models"
)

// Repository persists immutable scan results.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreateTx inserts result inside tx, assigning an ID when missing.
func (r *Repository) CreateTx(tx *gorm.DB, result *models.ScanResult) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if result.ID == uuid.Nil {
		result.ID = uuid.New()
	}
	return tx.Create(result).Error
}

// FindByID loads a scan result by id.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ScanResult, error) {
	var result models.ScanResult
	if err := r.db.WithContext(ctx).First(&result, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

// LatestSince returns the newest scan of url created after since. It backs the
// cache when Redis cannot be reached.
func (r *Repository) LatestSince(ctx context.Context, url string, since time.Time) (*models.ScanResult, error) {
	var result models.ScanResult
	err := r.db.WithContext(ctx).
		Where("url = ? AND created_at > ?", url, since).
		Order("created_at DESC").
		First(&result).Error
	if err != nil {
		return nil, err
	}
	return &result, nil
}
