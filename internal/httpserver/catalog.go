package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/pharmacy_shop/internal/backend"
	"github.com/Skotchmaster/pharmacy_shop/internal/search"
	"github.com/Skotchmaster/pharmacy_shop/internal/storefront"
	"github.com/Skotchmaster/pharmacy_shop/pkg/logging"
	"github.com/Skotchmaster/pharmacy_shop/pkg/pagination"
)

// CatalogHTTP serves the public shop pages. Reads go through the visitor's
// client so a signed-in visitor's token reaches the backend too.
type CatalogHTTP struct {
	Search *search.Index
}

func pageOf(c echo.Context) pagination.Page {
	return pagination.Parse(c.QueryParam("page"), c.QueryParam("size"))
}

func (h *CatalogHTTP) Categories(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.categories")

	inst, err := storefront.FromContext(c)
	if err != nil {
		return fail(l, "get_categories_error", err)
	}
	cats, err := inst.Backend().Categories(ctx)
	if err != nil {
		return fail(l, "get_categories_error", err)
	}
	return c.JSON(http.StatusOK, cats)
}

func (h *CatalogHTTP) CategoryMedicines(c echo.Context) error {
	return h.medicines(c, "catalog.category.medicines", c.Param("id"))
}

func (h *CatalogHTTP) Medicines(c echo.Context) error {
	return h.medicines(c, "catalog.medicines", c.QueryParam("category"))
}

func (h *CatalogHTTP) medicines(c echo.Context, handler, category string) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", handler)

	inst, err := storefront.FromContext(c)
	if err != nil {
		return fail(l, "get_medicines_error", err)
	}

	p := pageOf(c)
	res, err := inst.Backend().Medicines(ctx, backend.MedicineFilter{
		Category: category,
		Page:     p.Number,
		Limit:    p.Size,
	})
	if err != nil {
		return fail(l, "get_medicines_error", err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *CatalogHTTP) Medicine(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.medicine")

	inst, err := storefront.FromContext(c)
	if err != nil {
		return fail(l, "get_medicine_error", err)
	}
	m, err := inst.Backend().Medicine(ctx, c.Param("id"))
	if err != nil {
		return fail(l, "get_medicine_error", err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *CatalogHTTP) SearchMedicines(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.search")

	res, err := h.Search.Search(ctx, c.QueryParam("q"), pageOf(c))
	if err != nil {
		return fail(l, "search_error", err)
	}
	return c.JSON(http.StatusOK, res)
}

// Advertisements lists the banners shown on the home page slider.
func (h *CatalogHTTP) Advertisements(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.advertisements")

	inst, err := storefront.FromContext(c)
	if err != nil {
		return fail(l, "get_advertisements_error", err)
	}
	ads, err := inst.Backend().Advertisements(ctx, true)
	if err != nil {
		return fail(l, "get_advertisements_error", err)
	}
	return c.JSON(http.StatusOK, ads)
}
