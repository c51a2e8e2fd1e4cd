package httpserver

import (
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/pharmacy_shop/internal/backend"
	"github.com/Skotchmaster/pharmacy_shop/internal/role"
	"github.com/Skotchmaster/pharmacy_shop/internal/storefront"
	"github.com/Skotchmaster/pharmacy_shop/pkg/logging"
)

// AdminHTTP backs the admin dashboard. Every route sits behind
// RequireRole(admin).
type AdminHTTP struct{}

func (h *AdminHTTP) Users(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.users")

	inst, err := storefront.FromContext(c)
	if err != nil {
		return fail(l, "list_users_error", err)
	}
	users, err := inst.Backend().Users(ctx)
	if err != nil {
		return fail(l, "list_users_error", err)
	}
	return c.JSON(http.StatusOK, users)
}

func (h *AdminHTTP) SetUserRole(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.users.role")

	inst, err := storefront.FromContext(c)
	if err != nil {
		return fail(l, "set_user_role_error", err)
	}

	var req struct {
		Role string `json:"role"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("set_user_role_error", "status", http.StatusBadRequest, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	r, err := role.ParseRole(req.Role)
	if err != nil {
		return fail(l, "set_user_role_error", fmt.Errorf("%w: %v", errBadRequest, err))
	}

	if err := inst.Backend().SetUserRole(ctx, c.Param("id"), string(r)); err != nil {
		return fail(l, "set_user_role_error", err)
	}
	l.Info("user role changed", "user_id", c.Param("id"), "role", r)
	return c.NoContent(http.StatusNoContent)
}

func (h *AdminHTTP) CreateCategory(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.categories.create")

	inst, err := storefront.FromContext(c)
	if err != nil {
		return fail(l, "create_category_error", err)
	}

	var cat backend.Category
	if err := c.Bind(&cat); err != nil {
		l.Warn("create_category_error", "status", http.StatusBadRequest, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if strings.TrimSpace(cat.Name) == "" {
		return fail(l, "create_category_error", fmt.Errorf("%w: name is required", errBadRequest))
	}

	out, err := inst.Backend().CreateCategory(ctx, cat)
	if err != nil {
		return fail(l, "create_category_error", err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *AdminHTTP) UpdateCategory(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.categories.update")

	inst, err := storefront.FromContext(c)
	if err != nil {
		return fail(l, "update_category_error", err)
	}

	var cat backend.Category
	if err := c.Bind(&cat); err != nil {
		l.Warn("update_category_error", "status", http.StatusBadRequest, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	out, err := inst.Backend().UpdateCategory(ctx, c.Param("id"), cat)
	if err != nil {
		return fail(l, "update_category_error", err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminHTTP) DeleteCategory(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.categories.delete")

	inst, err := storefront.FromContext(c)
	if err != nil {
		return fail(l, "delete_category_error", err)
	}
	if err := inst.Backend().DeleteCategory(ctx, c.Param("id")); err != nil {
		return fail(l, "delete_category_error", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Advertisements lists every banner, active or not, for moderation.
func (h *AdminHTTP) Advertisements(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.advertisements")

	inst, err := storefront.FromContext(c)
	if err != nil {
		return fail(l, "list_advertisements_error", err)
	}
	ads, err := inst.Backend().Advertisements(ctx, false)
	if err != nil {
		return fail(l, "list_advertisements_error", err)
	}
	return c.JSON(http.StatusOK, ads)
}

func (h *AdminHTTP) CreateAdvertisement(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.advertisements.create")

	inst, err := storefront.FromContext(c)
	if err != nil {
		return fail(l, "create_advertisement_error", err)
	}

	var ad backend.Advertisement
	if err := c.Bind(&ad); err != nil {
		l.Warn("create_advertisement_error", "status", http.StatusBadRequest, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if strings.TrimSpace(ad.Image) == "" {
		return fail(l, "create_advertisement_error", fmt.Errorf("%w: image is required", errBadRequest))
	}
	ad.ID = ""

	out, err := inst.Backend().CreateAdvertisement(ctx, ad)
	if err != nil {
		return fail(l, "create_advertisement_error", err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *AdminHTTP) UpdateAdvertisement(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.advertisements.update")

	inst, err := storefront.FromContext(c)
	if err != nil {
		return fail(l, "update_advertisement_error", err)
	}

	var ad backend.Advertisement
	if err := c.Bind(&ad); err != nil {
		l.Warn("update_advertisement_error", "status", http.StatusBadRequest, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	out, err := inst.Backend().UpdateAdvertisement(ctx, c.Param("id"), ad)
	if err != nil {
		return fail(l, "update_advertisement_error", err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminHTTP) DeleteAdvertisement(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.advertisements.delete")

	inst, err := storefront.FromContext(c)
	if err != nil {
		return fail(l, "delete_advertisement_error", err)
	}
	if err := inst.Backend().DeleteAdvertisement(ctx, c.Param("id")); err != nil {
		return fail(l, "delete_advertisement_error", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AdminHTTP) SetPaymentStatus(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.payments.status")

	inst, err := storefront.FromContext(c)
	if err != nil {
		return fail(l, "set_payment_status_error", err)
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("set_payment_status_error", "status", http.StatusBadRequest, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	switch req.Status {
	case "pending", "paid":
	default:
		return fail(l, "set_payment_status_error", fmt.Errorf("%w: status must be pending or paid", errBadRequest))
	}

	if err := inst.Backend().SetPaymentStatus(ctx, c.Param("id"), req.Status); err != nil {
		return fail(l, "set_payment_status_error", err)
	}
	return c.NoContent(http.StatusNoContent)
}

type salesReport struct {
	From     string            `json:"from,omitempty"`
	To       string            `json:"to,omitempty"`
	Count    int               `json:"count"`
	Revenue  float64           `json:"revenue"`
	Paid     float64           `json:"paid"`
	Pending  float64           `json:"pending"`
	Payments []backend.Payment `json:"payments"`
}

func summarize(f backend.PaymentFilter, pays []backend.Payment) salesReport {
	rep := salesReport{Count: len(pays), Payments: pays}
	if rep.Payments == nil {
		rep.Payments = []backend.Payment{}
	}
	if !f.From.IsZero() {
		rep.From = f.From.Format(time.DateOnly)
	}
	if !f.To.IsZero() {
		rep.To = f.To.Format(time.DateOnly)
	}
	for _, p := range pays {
		rep.Revenue += p.Amount
		if p.Status == "paid" {
			rep.Paid += p.Amount
		} else {
			rep.Pending += p.Amount
		}
	}
	rep.Revenue = cents(rep.Revenue)
	rep.Paid = cents(rep.Paid)
	rep.Pending = cents(rep.Pending)
	return rep
}

func cents(v float64) float64 { return math.Round(v*100) / 100 }

// reportFilter reads the optional from/to dates (YYYY-MM-DD).
func reportFilter(c echo.Context) (backend.PaymentFilter, error) {
	var f backend.PaymentFilter
	for name, dst := range map[string]*time.Time{"from": &f.From, "to": &f.To} {
		v := c.QueryParam(name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return f, fmt.Errorf("%w: %s must be YYYY-MM-DD", errBadRequest, name)
		}
		*dst = t
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return f, fmt.Errorf("%w: to is before from", errBadRequest)
	}
	return f, nil
}

// SalesReport lists payments in the date range with revenue totals.
func (h *AdminHTTP) SalesReport(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.sales.report")

	inst, err := storefront.FromContext(c)
	if err != nil {
		return fail(l, "sales_report_error", err)
	}
	f, err := reportFilter(c)
	if err != nil {
		return fail(l, "sales_report_error", err)
	}
	pays, err := inst.Backend().Payments(ctx, f)
	if err != nil {
		return fail(l, "sales_report_error", err)
	}
	return c.JSON(http.StatusOK, summarize(f, pays))
}
