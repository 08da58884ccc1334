package users

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hopl-labs/hopl-backend/pkg/db/models"
	"github.com/hopl-labs/hopl-backend/pkg/enums"
)

// UserDTO is the transport shape that omits credentials.
type UserDTO struct {
	ID            uuid.UUID      `json:"id"`
	Email         string         `json:"email"`
	Name          string         `json:"name"`
	Plan          enums.PlanType `json:"plan"`
	Credits       int            `json:"credits"`
	PlanExpiresAt *time.Time     `json:"plan_expires_at,omitempty"`
	LastLoginAt   *time.Time     `json:"last_login_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// CreateUserDTO holds the data required to persist a new account.
type CreateUserDTO struct {
	Email        string
	Name         string
	PasswordHash string
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		Plan:          u.Plan,
		Credits:       u.Credits,
		PlanExpiresAt: u.PlanExpiresAt,
		LastLoginAt:   u.LastLoginAt,
		CreatedAt:     u.CreatedAt,
	}
}

// ToModel starts every account on FREE with an empty balance.
func (c CreateUserDTO) ToModel() *models.User {
	return &models.User{
		ID:           uuid.New(),
		Email:        normalizeEmail(c.Email),
		Name:         strings.TrimSpace(c.Name),
		PasswordHash: c.PasswordHash,
		Plan:         enums.PlanFree,
		Credits:      0,
	}
}
