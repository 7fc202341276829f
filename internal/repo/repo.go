package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/Skotchmaster/apirest/internal/models"
)

var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrUserAlreadyExist = errors.New("user already exist")
	ErrProductNotFound  = errors.New("product not found")
	ErrProductConflict  = errors.New("product name already taken")
)

type GormRepo struct {
	DB *gorm.DB
}

func (r *GormRepo) Migrate(ctx context.Context) error {
	return r.DB.WithContext(ctx).AutoMigrate(&models.Account{}, &models.AccountRole{}, &models.Product{})
}
