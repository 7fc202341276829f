package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Skotchmaster/apirest/internal/models"
	"github.com/Skotchmaster/apirest/internal/repo"
	pkg_hash "github.com/Skotchmaster/apirest/pkg/hash"
	"github.com/Skotchmaster/apirest/pkg/logging"
)

// EnsureAdmin creates an enabled ADMIN account when username is not taken.
// An existing account is left untouched, whatever its roles.
func (s *AuthService) EnsureAdmin(ctx context.Context, username, password string) (bool, error) {
	l := logging.FromContext(ctx).With("svc", "auth.bootstrap", "username", username)

	if username == "" || password == "" {
		return false, fmt.Errorf("%w: admin username and password are required", ErrValidation)
	}

	exists, err := s.Repo.ExistsByUsername(ctx, username)
	if err != nil {
		return false, fmt.Errorf("check admin: %w", err)
	}
	if exists {
		l.Info("bootstrap_admin_skipped", "reason", "account exists")
		return false, nil
	}

	pwHash, err := pkg_hash.HashPassword(password)
	if err != nil {
		return false, fmt.Errorf("hash admin password: %w", err)
	}

	acc := &models.Account{
		Username:     username,
		PasswordHash: pwHash,
		Enabled:      true,
		Roles:        []models.AccountRole{{Role: models.RoleAdmin}},
	}
	if err := s.Repo.CreateAccount(ctx, acc); err != nil {
		if errors.Is(err, repo.ErrUserAlreadyExist) {
			return false, nil
		}
		return false, fmt.Errorf("create admin: %w", err)
	}

	l.Info("bootstrap_admin_created")
	return true, nil
}
