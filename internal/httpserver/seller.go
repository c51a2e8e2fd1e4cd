package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/pharmacy_shop/internal/backend"
	"github.com/Skotchmaster/pharmacy_shop/internal/search"
	"github.com/Skotchmaster/pharmacy_shop/internal/storefront"
	"github.com/Skotchmaster/pharmacy_shop/pkg/logging"
)

// SellerHTTP backs the seller dashboard. A seller only sees and edits the
// medicines and banners carrying their own email.
type SellerHTTP struct {
	Search *search.Index
}

func (h *SellerHTTP) Medicines(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "seller.medicines")

	inst, err := storefront.FromContext(c)
	if err != nil {
		return fail(l, "list_medicines_error", err)
	}
	p := pageOf(c)
	res, err := inst.Backend().Medicines(ctx, backend.MedicineFilter{
		Seller: inst.Session().Email(),
		Page:   p.Number,
		Limit:  p.Size,
	})
	if err != nil {
		return fail(l, "list_medicines_error", err)
	}
	return c.JSON(http.StatusOK, res)
}

func validMedicine(m backend.Medicine) error {
	switch {
	case strings.TrimSpace(m.Name) == "":
		return fmt.Errorf("%w: name is required", errBadRequest)
	case m.Price < 0:
		return fmt.Errorf("%w: price must not be negative", errBadRequest)
	case m.Discount < 0 || m.Discount > 100:
		return fmt.Errorf("%w: discount must be between 0 and 100", errBadRequest)
	case m.Stock < 0:
		return fmt.Errorf("%w: stock must not be negative", errBadRequest)
	}
	return nil
}

func (h *SellerHTTP) CreateMedicine(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "seller.medicines.create")

	inst, err := storefront.FromContext(c)
	if err != nil {
		return fail(l, "create_medicine_error", err)
	}

	var m backend.Medicine
	if err := c.Bind(&m); err != nil {
		l.Warn("create_medicine_error", "status", http.StatusBadRequest, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := validMedicine(m); err != nil {
		return fail(l, "create_medicine_error", err)
	}
	m.ID = ""
	m.SellerEmail = inst.Session().Email()

	out, err := inst.Backend().CreateMedicine(ctx, m)
	if err != nil {
		return fail(l, "create_medicine_error", err)
	}
	h.index(ctx, l, out)

	l.Info("medicine created", "medicine_id", out.ID)
	return c.JSON(http.StatusCreated, out)
}

// owned loads the medicine and checks it belongs to the signed-in seller.
func (h *SellerHTTP) owned(ctx context.Context, inst *storefront.Instance, id string) (backend.Medicine, error) {
	m, err := inst.Backend().Medicine(ctx, id)
	if err != nil {
		return m, err
	}
	if !strings.EqualFold(m.SellerEmail, inst.Session().Email()) {
		return m, errForbidden
	}
	return m, nil
}

func (h *SellerHTTP) UpdateMedicine(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "seller.medicines.update")

	inst, err := storefront.FromContext(c)
	if err != nil {
		return fail(l, "update_medicine_error", err)
	}

	id := c.Param("id")
	cur, err := h.owned(ctx, inst, id)
	if err != nil {
		return fail(l, "update_medicine_error", err)
	}

	var m backend.Medicine
	if err := c.Bind(&m); err != nil {
		l.Warn("update_medicine_error", "status", http.StatusBadRequest, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := validMedicine(m); err != nil {
		return fail(l, "update_medicine_error", err)
	}
	m.ID = id
	m.SellerEmail = cur.SellerEmail

	out, err := inst.Backend().UpdateMedicine(ctx, id, m)
	if err != nil {
		return fail(l, "update_medicine_error", err)
	}
	if out.ID == "" {
		out.ID = id
	}
	h.index(ctx, l, out)

	return c.JSON(http.StatusOK, out)
}

func (h *SellerHTTP) DeleteMedicine(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "seller.medicines.delete")

	inst, err := storefront.FromContext(c)
	if err != nil {
		return fail(l, "delete_medicine_error", err)
	}

	id := c.Param("id")
	if _, err := h.owned(ctx, inst, id); err != nil {
		return fail(l, "delete_medicine_error", err)
	}
	if err := inst.Backend().DeleteMedicine(ctx, id); err != nil {
		return fail(l, "delete_medicine_error", err)
	}
	if err := h.Search.Remove(ctx, id); err != nil {
		l.Warn("search_remove_error", "medicine_id", id, "error", err)
	}

	return c.NoContent(http.StatusNoContent)
}

// Sales lists the payments that include this seller's medicines.
func (h *SellerHTTP) Sales(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "seller.sales")

	inst, err := storefront.FromContext(c)
	if err != nil {
		return fail(l, "seller_sales_error", err)
	}
	f, err := reportFilter(c)
	if err != nil {
		return fail(l, "seller_sales_error", err)
	}
	f.Seller = inst.Session().Email()

	pays, err := inst.Backend().Payments(ctx, f)
	if err != nil {
		return fail(l, "seller_sales_error", err)
	}
	return c.JSON(http.StatusOK, summarize(f, pays))
}

func (h *SellerHTTP) Advertisements(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "seller.advertisements")

	inst, err := storefront.FromContext(c)
	if err != nil {
		return fail(l, "list_advertisements_error", err)
	}
	ads, err := inst.Backend().Advertisements(ctx, false)
	if err != nil {
		return fail(l, "list_advertisements_error", err)
	}
	me := inst.Session().Email()
	own := []backend.Advertisement{}
	for _, ad := range ads {
		if strings.EqualFold(ad.SellerEmail, me) {
			own = append(own, ad)
		}
	}
	return c.JSON(http.StatusOK, own)
}

// RequestAdvertisement submits a banner; it stays inactive until an admin
// turns it on.
func (h *SellerHTTP) RequestAdvertisement(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "seller.advertisements.request")

	inst, err := storefront.FromContext(c)
	if err != nil {
		return fail(l, "request_advertisement_error", err)
	}

	var ad backend.Advertisement
	if err := c.Bind(&ad); err != nil {
		l.Warn("request_advertisement_error", "status", http.StatusBadRequest, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if strings.TrimSpace(ad.Image) == "" {
		return fail(l, "request_advertisement_error", fmt.Errorf("%w: image is required", errBadRequest))
	}
	ad.ID = ""
	ad.Active = false
	ad.SellerEmail = inst.Session().Email()

	out, err := inst.Backend().CreateAdvertisement(ctx, ad)
	if err != nil {
		return fail(l, "request_advertisement_error", err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *SellerHTTP) index(ctx context.Context, l *slog.Logger, m backend.Medicine) {
	if err := h.Search.Put(ctx, m); err != nil {
		l.Warn("search_index_error", "medicine_id", m.ID, "error", err)
	}
}
