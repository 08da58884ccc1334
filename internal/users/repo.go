package users

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hopl-labs/hopl-backend/pkg/db/models"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create fails with a unique violation (see db.IsUniqueViolation) when the
// email is already registered, in any letter case.
func (r *Repository) Create(ctx context.Context, dto CreateUserDTO) (*models.User, error) {
	user := dto.ToModel()
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// FindByEmail filters on lower(email) so the idx_users_email expression index applies.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.first(ctx, "lower(email) = ?", normalizeEmail(email))
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *Repository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.setColumn(ctx, id, "last_login_at", at.UTC())
}

// UpdatePasswordHash replaces the hash, e.g. after argon2 costs were raised.
func (r *Repository) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	return r.setColumn(ctx, id, "password_hash", hash)
}

func (r *Repository) first(ctx context.Context, query string, arg any) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where(query, arg).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// setColumn skips hooks and updated_at; a missing row is gorm.ErrRecordNotFound.
func (r *Repository) setColumn(ctx context.Context, id uuid.UUID, column string, value any) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).UpdateColumn(column, value)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
