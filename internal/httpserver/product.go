package httpserver

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/apirest/internal/models"
	"github.com/Skotchmaster/apirest/internal/service"
	"github.com/Skotchmaster/apirest/internal/transport"
	"github.com/Skotchmaster/apirest/internal/util"
	"github.com/Skotchmaster/apirest/pkg/logging"
)

type ProductHTTP struct {
	Svc *service.CatalogService
}

func pageParams(c echo.Context) (int, int) {
	page := util.ParseIntDefault(c.QueryParam("page"), 1)
	size := util.ParseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	return page, size
}

func parseID(c echo.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func productPage(p *service.Page[models.Product]) transport.PageResponse[models.Product] {
	return transport.NewPage(p.Items, p.Page, p.Size, p.Total)
}

func (h *ProductHTTP) List(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.list")

	page, size := pageParams(c)
	res, err := h.Svc.List(ctx, page, size)
	if err != nil {
		return toHTTP(l, "list_products_failed", err)
	}
	return c.JSON(http.StatusOK, productPage(res))
}

func (h *ProductHTTP) ListActive(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.list_active")

	page, size := pageParams(c)
	res, err := h.Svc.ListActive(ctx, page, size)
	if err != nil {
		return toHTTP(l, "list_products_failed", err)
	}
	return c.JSON(http.StatusOK, productPage(res))
}

func (h *ProductHTTP) Search(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.search")

	page, size := pageParams(c)
	res, err := h.Svc.Search(ctx, c.QueryParam("q"), page, size)
	if err != nil {
		return toHTTP(l, "search_products_failed", err)
	}
	return c.JSON(http.StatusOK, productPage(res))
}

func (h *ProductHTTP) Get(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.get")

	id, ok := parseID(c)
	if !ok {
		l.Warn("get_product_failed", "status", 400, "reason", "id is not a positive integer")
		return echo.NewHTTPError(http.StatusBadRequest, "id is not a positive integer")
	}

	prod, err := h.Svc.Get(ctx, id)
	if err != nil {
		return toHTTP(l, "get_product_failed", err)
	}
	return c.JSON(http.StatusOK, prod)
}

func (h *ProductHTTP) Create(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.create")

	var req transport.ProductRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("create_product_failed", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return toHTTP(l, "create_product_failed", err)
	}

	prod, err := h.Svc.Create(ctx, productInput(req))
	if err != nil {
		return toHTTP(l, "create_product_failed", err)
	}

	l.Info("create_product_success", "product_id", prod.ID)
	return c.JSON(http.StatusCreated, prod)
}

func (h *ProductHTTP) Update(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.update")

	id, ok := parseID(c)
	if !ok {
		l.Warn("update_product_failed", "status", 400, "reason", "id is not a positive integer")
		return echo.NewHTTPError(http.StatusBadRequest, "id is not a positive integer")
	}

	var req transport.ProductRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("update_product_failed", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return toHTTP(l, "update_product_failed", err)
	}

	prod, err := h.Svc.Update(ctx, id, productInput(req))
	if err != nil {
		return toHTTP(l, "update_product_failed", err)
	}

	l.Info("update_product_success", "product_id", prod.ID)
	return c.JSON(http.StatusOK, prod)
}

// Deactivate is a soft delete: the product stays readable with active=false.
func (h *ProductHTTP) Deactivate(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.deactivate")

	id, ok := parseID(c)
	if !ok {
		l.Warn("deactivate_product_failed", "status", 400, "reason", "id is not a positive integer")
		return echo.NewHTTPError(http.StatusBadRequest, "id is not a positive integer")
	}

	prod, err := h.Svc.Deactivate(ctx, id)
	if err != nil {
		return toHTTP(l, "deactivate_product_failed", err)
	}

	l.Info("deactivate_product_success", "product_id", prod.ID)
	return c.JSON(http.StatusOK, prod)
}

func productInput(req transport.ProductRequest) service.ProductInput {
	return service.ProductInput{
		Name:        req.Name,
		Description: req.Description,
		Stock:       req.Stock,
		Price:       req.Price,
	}
}
