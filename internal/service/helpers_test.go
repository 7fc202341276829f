package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/apirest/internal/models"
	"github.com/Skotchmaster/apirest/internal/repo"
	"github.com/Skotchmaster/apirest/pkg/db"
	pkg_hash "github.com/Skotchmaster/apirest/pkg/hash"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, topic, key string, event any) error {
	args := m.Called(ctx, topic, key, event)
	return args.Error(0)
}

func newRepo(t *testing.T) *repo.GormRepo {
	t.Helper()

	gdb, err := db.Open(context.Background(), db.DriverSQLite, "file::memory:")
	require.NoError(t, err)
	r := &repo.GormRepo{DB: gdb}
	require.NoError(t, r.Migrate(context.Background()))
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return r
}

func seedUser(t *testing.T, r *repo.GormRepo, username, password string, roles ...models.Role) *models.Account {
	t.Helper()

	pwHash, err := pkg_hash.HashPassword(password)
	require.NoError(t, err)

	acc := &models.Account{Username: username, PasswordHash: pwHash, Enabled: true}
	for _, role := range roles {
		acc.Roles = append(acc.Roles, models.AccountRole{Role: role})
	}
	require.NoError(t, r.CreateAccount(context.Background(), acc))
	return acc
}
