package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/pharmacy_shop/internal/backend"
	"github.com/Skotchmaster/pharmacy_shop/internal/dashboard"
	"github.com/Skotchmaster/pharmacy_shop/internal/role"
	"github.com/Skotchmaster/pharmacy_shop/internal/storefront"
	"github.com/Skotchmaster/pharmacy_shop/pkg/logging"
)

type DashboardHTTP struct {
	Menu *dashboard.Menu
	// RoleWait bounds how long the menu waits for an in-flight role lookup.
	RoleWait time.Duration
}

// GetMenu returns the sidebar entries for the visitor's resolved role. A role
// still loading after RoleWait yields an empty menu flagged as loading.
func (h *DashboardHTTP) GetMenu(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "dashboard.menu")

	inst, err := storefront.FromContext(c)
	if err != nil {
		return fail(l, "get_menu_error", err)
	}

	st := inst.RoleState()
	if st.IsLoadingRole && h.RoleWait > 0 {
		wctx, cancel := context.WithTimeout(ctx, h.RoleWait)
		st, _ = inst.WaitRole(wctx)
		cancel()
	}

	var r role.Role
	if !st.IsLoadingRole {
		r = st.Role
	}
	return c.JSON(http.StatusOK, map[string]any{
		"role":    r,
		"loading": st.IsLoadingRole,
		"entries": h.Menu.For(r),
	})
}

func (h *DashboardHTTP) MyOrders(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "dashboard.orders")

	inst, err := storefront.FromContext(c)
	if err != nil {
		return fail(l, "get_orders_error", err)
	}
	orders, err := inst.Backend().Orders(ctx, inst.Session().Email())
	if err != nil {
		return fail(l, "get_orders_error", err)
	}
	return c.JSON(http.StatusOK, orders)
}

func (h *DashboardHTTP) MyPayments(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "dashboard.payments")

	inst, err := storefront.FromContext(c)
	if err != nil {
		return fail(l, "get_payments_error", err)
	}
	pays, err := inst.Backend().Payments(ctx, backend.PaymentFilter{Email: inst.Session().Email()})
	if err != nil {
		return fail(l, "get_payments_error", err)
	}
	return c.JSON(http.StatusOK, pays)
}
