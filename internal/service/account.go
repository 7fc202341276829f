package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Skotchmaster/apirest/internal/events"
	"github.com/Skotchmaster/apirest/internal/models"
	"github.com/Skotchmaster/apirest/internal/repo"
	"github.com/Skotchmaster/apirest/internal/util"
	"github.com/Skotchmaster/apirest/pkg/logging"
)

// Page is one slice of a paginated listing.
type Page[T any] struct {
	Items []T
	Total int64
	Page  int
	Size  int
}

type AccountAdminStore interface {
	ListAccounts(ctx context.Context, offset, limit int) (int64, []models.Account, error)
	GetAccount(ctx context.Context, id uint) (*models.Account, error)
	DisableAccount(ctx context.Context, username string) error
}

type AccountService struct {
	Repo        AccountAdminStore
	Events      events.Publisher
	EventsTopic string
}

func (s *AccountService) List(ctx context.Context, page, size int) (*Page[models.Account], error) {
	page, size = util.Normalize(page, size)
	offset, limit := util.Calculate(page, size)

	total, items, err := s.Repo.ListAccounts(ctx, offset, limit)
	if err != nil {
		return nil, err
	}
	return &Page[models.Account]{Items: items, Total: total, Page: page, Size: limit}, nil
}

func (s *AccountService) Get(ctx context.Context, id uint) (*models.Account, error) {
	acc, err := s.Repo.GetAccount(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrAccountNotFound) {
			return nil, fmt.Errorf("%w: account %d", ErrNotFound, id)
		}
		return nil, err
	}
	return acc, nil
}

// Disable soft-deletes the account. Its refresh tokens become stale in the
// same transaction, so the user is logged out everywhere once their access
// tokens expire.
func (s *AccountService) Disable(ctx context.Context, username string) error {
	l := logging.FromContext(ctx).With("svc", "accounts.disable", "username", username)

	if err := s.Repo.DisableAccount(ctx, username); err != nil {
		if errors.Is(err, repo.ErrAccountNotFound) {
			return fmt.Errorf("%w: account %q", ErrNotFound, username)
		}
		l.Error("disable_failed", "error", err)
		return err
	}

	if s.Events != nil {
		topic := s.EventsTopic
		if topic == "" {
			topic = "auth_events"
		}
		event := map[string]any{"type": events.TypeAccountDisabled, "username": username}
		if err := s.Events.Publish(context.WithoutCancel(ctx), topic, username, event); err != nil {
			l.Error("publish_event_failed", "topic", topic, "error", err)
		}
	}
	l.Info("account_disabled")
	return nil
}
