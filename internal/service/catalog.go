package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Skotchmaster/apirest/internal/events"
	"github.com/Skotchmaster/apirest/internal/models"
	"github.com/Skotchmaster/apirest/internal/repo"
	"github.com/Skotchmaster/apirest/internal/search"
	"github.com/Skotchmaster/apirest/internal/util"
	"github.com/Skotchmaster/apirest/pkg/logging"
)

type ProductStore interface {
	GetProduct(ctx context.Context, id uint) (*models.Product, error)
	ListProducts(ctx context.Context, offset, limit int, activeOnly bool) (int64, []models.Product, error)
	CreateProduct(ctx context.Context, prod *models.Product) error
	UpdateProduct(ctx context.Context, id uint, upd models.Product) (*models.Product, error)
	DeactivateProduct(ctx context.Context, id uint) (*models.Product, error)
	SearchProducts(ctx context.Context, q string, offset, limit int) (int64, []models.Product, error)
}

// ProductInput carries the editable product fields.
type ProductInput struct {
	Name        string
	Description string
	Stock       int
	Price       float64
}

type CatalogService struct {
	Repo        ProductStore
	Index       search.Index // nil falls back to database search
	Events      events.Publisher
	EventsTopic string
}

func (in ProductInput) validate() error {
	var problems []string
	if strings.TrimSpace(in.Name) == "" {
		problems = append(problems, "name is required")
	}
	if len(in.Name) > 50 {
		problems = append(problems, "name is longer than 50 characters")
	}
	if len(in.Description) > 200 {
		problems = append(problems, "description is longer than 200 characters")
	}
	if in.Stock < 0 {
		problems = append(problems, "stock cannot be negative")
	}
	if in.Price < 0 {
		problems = append(problems, "price cannot be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}

func (s *CatalogService) Create(ctx context.Context, in ProductInput) (*models.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	prod := &models.Product{
		Name:        in.Name,
		Description: in.Description,
		Stock:       in.Stock,
		Price:       in.Price,
		Active:      true,
	}
	if err := s.Repo.CreateProduct(ctx, prod); err != nil {
		return nil, mapProductErr(err)
	}

	s.sync(ctx, prod)
	s.publish(ctx, prod, events.TypeProductCreated)
	return prod, nil
}

func (s *CatalogService) Get(ctx context.Context, id uint) (*models.Product, error) {
	prod, err := s.Repo.GetProduct(ctx, id)
	if err != nil {
		return nil, mapProductErr(err)
	}
	return prod, nil
}

func (s *CatalogService) List(ctx context.Context, page, size int) (*Page[models.Product], error) {
	return s.list(ctx, page, size, false)
}

func (s *CatalogService) ListActive(ctx context.Context, page, size int) (*Page[models.Product], error) {
	return s.list(ctx, page, size, true)
}

func (s *CatalogService) list(ctx context.Context, page, size int, activeOnly bool) (*Page[models.Product], error) {
	page, size = util.Normalize(page, size)
	offset, limit := util.Calculate(page, size)

	total, items, err := s.Repo.ListProducts(ctx, offset, limit, activeOnly)
	if err != nil {
		return nil, err
	}
	return &Page[models.Product]{Items: items, Total: total, Page: page, Size: limit}, nil
}

// Update replaces the editable fields. The active flag is left untouched.
func (s *CatalogService) Update(ctx context.Context, id uint, in ProductInput) (*models.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	prod, err := s.Repo.UpdateProduct(ctx, id, models.Product{
		Name:        in.Name,
		Description: in.Description,
		Stock:       in.Stock,
		Price:       in.Price,
	})
	if err != nil {
		return nil, mapProductErr(err)
	}

	s.sync(ctx, prod)
	s.publish(ctx, prod, events.TypeProductUpdated)
	return prod, nil
}

func (s *CatalogService) Deactivate(ctx context.Context, id uint) (*models.Product, error) {
	prod, err := s.Repo.DeactivateProduct(ctx, id)
	if err != nil {
		return nil, mapProductErr(err)
	}

	s.sync(ctx, prod)
	s.publish(ctx, prod, events.TypeProductDeactivated)
	return prod, nil
}

func (s *CatalogService) Search(ctx context.Context, q string, page, size int) (*Page[models.Product], error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, fmt.Errorf("%w: query is required", ErrValidation)
	}
	page, size = util.Normalize(page, size)
	offset, limit := util.Calculate(page, size)

	var (
		total int64
		items []models.Product
		err   error
	)
	if s.Index != nil {
		total, items, err = s.Index.Search(ctx, q, offset, limit)
	} else {
		total, items, err = s.Repo.SearchProducts(ctx, q, offset, limit)
	}
	if err != nil {
		return nil, err
	}
	return &Page[models.Product]{Items: items, Total: total, Page: page, Size: limit}, nil
}

// sync keeps the search index in step with the database. Failures are logged
// and the index catches up on the next write of the same product.
func (s *CatalogService) sync(ctx context.Context, prod *models.Product) {
	if s.Index == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	var err error
	if prod.Active {
		err = s.Index.IndexProduct(ctx, prod)
	} else {
		err = s.Index.RemoveProduct(ctx, prod.ID)
	}
	if err != nil {
		logging.FromContext(ctx).Error("search_sync_failed", "product_id", prod.ID, "error", err)
	}
}

func (s *CatalogService) publish(ctx context.Context, prod *models.Product, typ string) {
	if s.Events == nil {
		return
	}
	topic := s.EventsTopic
	if topic == "" {
		topic = "product_events"
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	event := map[string]any{
		"type":      typ,
		"productID": prod.ID,
		"name":      prod.Name,
		"price":     prod.Price,
		"stock":     prod.Stock,
		"active":    prod.Active,
	}
	key := strconv.FormatUint(uint64(prod.ID), 10)
	if err := s.Events.Publish(ctx, topic, key, event); err != nil {
		logging.FromContext(ctx).Error("publish_event_failed", "topic", topic, "type", typ, "error", err)
	}
}

func mapProductErr(err error) error {
	switch {
	case errors.Is(err, repo.ErrProductNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, repo.ErrProductConflict):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
