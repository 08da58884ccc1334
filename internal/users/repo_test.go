package users

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/hopl-labs/hopl-backend/pkg/db"
	"github.com/hopl-labs/hopl-backend/pkg/db/dbtest"
	"github.com/hopl-labs/hopl-backend/pkg/enums"
	pkgerrors "github.com/hopl-labs/hopl-backend/pkg/errors"
)

func TestCreateStartsOnFreePlan(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()

	user, err := repo.Create(ctx, CreateUserDTO{Email: "  Owner@Example.COM ", Name: " Ana ", PasswordHash: "hash"})
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", user.Email)
	assert.Equal(t, "Ana", user.Name)
	assert.Equal(t, enums.PlanFree, user.Plan)
	assert.Zero(t, user.Credits)

	found, err := repo.FindByEmail(ctx, "OWNER@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	dto := FromModel(found)
	assert.Equal(t, enums.PlanFree, dto.Plan)
	assert.Nil(t, FromModel(nil))
}

func TestCreateRejectsDuplicateEmail(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()

	_, err := repo.Create(ctx, CreateUserDTO{Email: "dup@example.com", Name: "A", PasswordHash: "h"})
	require.NoError(t, err)
	_, err = repo.Create(ctx, CreateUserDTO{Email: "DUP@example.com", Name: "B", PasswordHash: "h"})
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err, ""))
}

func TestUpdateLastLoginAndPassword(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()

	user, err := repo.Create(ctx, CreateUserDTO{Email: "login@example.com", Name: "L", PasswordHash: "old"})
	require.NoError(t, err)

	at := time.Date(2026, 10, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpdateLastLogin(ctx, user.ID, at))
	require.NoError(t, repo.UpdatePasswordHash(ctx, user.ID, "new"))

	found, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, found.LastLoginAt)
	assert.True(t, at.Equal(*found.LastLoginAt))
	assert.Equal(t, "new", found.PasswordHash)

	assert.ErrorIs(t, repo.UpdateLastLogin(ctx, uuid.New(), at), gorm.ErrRecordNotFound)
}

func TestServiceMe(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	svc := NewService(repo)
	ctx := context.Background()

	user, err := repo.Create(ctx, CreateUserDTO{Email: "me@example.com", Name: "Me", PasswordHash: "h"})
	require.NoError(t, err)

	me, err := svc.Me(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "me@example.com", me.Email)
	assert.Equal(t, enums.PlanFree, me.Plan)

	_, err = svc.Me(ctx, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
