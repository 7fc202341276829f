package repo

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/Skotchmaster/apirest/internal/models"
)

func (r *GormRepo) FindByUsername(ctx context.Context, username string) (*models.Account, error) {
	var acc models.Account
	err := r.DB.WithContext(ctx).
		Preload("Roles", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("username = ?", username).
		First(&acc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	return &acc, nil
}

func (r *GormRepo) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var count int64
	if err := r.DB.WithContext(ctx).Model(&models.Account{}).
		Where("username = ?", username).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("count accounts: %w", err)
	}
	return count > 0, nil
}

// CreateAccount inserts the account together with its roles.
func (r *GormRepo) CreateAccount(ctx context.Context, acc *models.Account) error {
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Account{}).Where("username = ?", acc.Username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrUserAlreadyExist
		}
		return tx.Create(acc).Error
	})
	if err != nil {
		if errors.Is(err, ErrUserAlreadyExist) || errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrUserAlreadyExist
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// IncrementTokenVersion bumps the account epoch atomically and returns the new value.
func (r *GormRepo) IncrementTokenVersion(ctx context.Context, username string) (int, error) {
	var version int
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		version, err = bumpVersion(tx, username)
		return err
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

// DisableAccount soft-deletes the account and invalidates its refresh tokens.
func (r *GormRepo) DisableAccount(ctx context.Context, username string) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := bumpVersion(tx, username); err != nil {
			return err
		}
		if err := tx.Model(&models.Account{}).
			Where("username = ?", username).
			Update("enabled", false).Error; err != nil {
			return fmt.Errorf("disable account: %w", err)
		}
		return nil
	})
}

func bumpVersion(tx *gorm.DB, username string) (int, error) {
	res := tx.Model(&models.Account{}).
		Where("username = ?", username).
		Update("token_version", gorm.Expr("token_version + ?", 1))
	if res.Error != nil {
		return 0, fmt.Errorf("bump token version: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, ErrAccountNotFound
	}

	var acc models.Account
	if err := tx.Select("token_version").Where("username = ?", username).First(&acc).Error; err != nil {
		return 0, fmt.Errorf("read token version: %w", err)
	}
	return acc.TokenVersion, nil
}

func (r *GormRepo) ListAccounts(ctx context.Context, offset, limit int) (int64, []models.Account, error) {
	var total int64
	if err := r.DB.WithContext(ctx).Model(&models.Account{}).Count(&total).Error; err != nil {
		return 0, nil, fmt.Errorf("count accounts: %w", err)
	}

	var items []models.Account
	if err := r.DB.WithContext(ctx).
		Preload("Roles", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Order("id ASC").Offset(offset).Limit(limit).
		Find(&items).Error; err != nil {
		return 0, nil, fmt.Errorf("list accounts: %w", err)
	}
	return total, items, nil
}

func (r *GormRepo) GetAccount(ctx context.Context, id uint) (*models.Account, error) {
	var acc models.Account
	err := r.DB.WithContext(ctx).
		Preload("Roles", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&acc, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &acc, nil
}
