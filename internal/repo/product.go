package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/Skotchmaster/apirest/internal/models"
)

func (r *GormRepo) GetProduct(ctx context.Context, id uint) (*models.Product, error) {
	var product models.Product
	if err := r.DB.WithContext(ctx).First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &product, nil
}

func (r *GormRepo) ListProducts(ctx context.Context, offset, limit int, activeOnly bool) (int64, []models.Product, error) {
	q := r.DB.WithContext(ctx).Model(&models.Product{})
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return 0, nil, fmt.Errorf("count products: %w", err)
	}

	var items []models.Product
	if err := q.Order("id ASC").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return 0, nil, fmt.Errorf("list products: %w", err)
	}
	return total, items, nil
}

func (r *GormRepo) CreateProduct(ctx context.Context, prod *models.Product) error {
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := nameTaken(tx, prod.Name, 0); err != nil {
			return err
		}
		return tx.Create(prod).Error
	})
	if err != nil {
		if errors.Is(err, ErrProductConflict) || errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrProductConflict
		}
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

func nameTaken(tx *gorm.DB, name string, exceptID uint) error {
	var count int64
	if err := tx.Model(&models.Product{}).
		Where("name = ? AND id <> ?", name, exceptID).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrProductConflict
	}
	return nil
}

// UpdateProduct replaces the editable fields of an existing product.
func (r *GormRepo) UpdateProduct(ctx context.Context, id uint, upd models.Product) (*models.Product, error) {
	var prod models.Product
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&prod, id).Error; err != nil {
			return err
		}
		if err := nameTaken(tx, upd.Name, id); err != nil {
			return err
		}
		prod.Name = upd.Name
		prod.Description = upd.Description
		prod.Stock = upd.Stock
		prod.Price = upd.Price
		return tx.Save(&prod).Error
	})
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return nil, ErrProductNotFound
		case errors.Is(err, ErrProductConflict), errors.Is(err, gorm.ErrDuplicatedKey):
			return nil, ErrProductConflict
		}
		return nil, fmt.Errorf("update product: %w", err)
	}
	return &prod, nil
}

func (r *GormRepo) DeactivateProduct(ctx context.Context, id uint) (*models.Product, error) {
	res := r.DB.WithContext(ctx).Model(&models.Product{}).Where("id = ?", id).Update("active", false)
	if res.Error != nil {
		return nil, fmt.Errorf("deactivate product: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrProductNotFound
	}
	return r.GetProduct(ctx, id)
}

// SearchProducts is the database fallback used when no search index is configured.
func (r *GormRepo) SearchProducts(ctx context.Context, q string, offset, limit int) (int64, []models.Product, error) {
	pattern := "%" + escapeLike(strings.ToLower(q)) + "%"
	where := r.DB.WithContext(ctx).Model(&models.Product{}).
		Where("active = ?", true).
		Where("(LOWER(name) LIKE ? ESCAPE '\\' OR LOWER(description) LIKE ? ESCAPE '\\')", pattern, pattern).
		Session(&gorm.Session{})

	var total int64
	if err := where.Count(&total).Error; err != nil {
		return 0, nil, fmt.Errorf("count search: %w", err)
	}

	var items []models.Product
	if err := where.Order("id ASC").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return 0, nil, fmt.Errorf("search products: %w", err)
	}
	return total, items, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
