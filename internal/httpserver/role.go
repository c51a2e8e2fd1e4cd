package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/pharmacy_shop/internal/role"
	"github.com/Skotchmaster/pharmacy_shop/internal/storefront"
	"github.com/Skotchmaster/pharmacy_shop/pkg/logging"
)

type RoleHTTP struct{}

type roleView struct {
	role.State
	Resolved bool `json:"resolved"`
}

func view(st role.State) roleView {
	return roleView{State: st, Resolved: st.Resolved()}
}

// GetRole reports the tri-state role view without waiting: loading,
// resolved, or unresolved.
func (h *RoleHTTP) GetRole(c echo.Context) error {
	l := logging.FromContext(c.Request().Context()).With("handler", "me.role")

	inst, err := storefront.FromContext(c)
	if err != nil {
		return fail(l, "get_role_error", err)
	}
	return c.JSON(http.StatusOK, view(inst.RoleState()))
}

func (h *RoleHTTP) Refetch(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "me.role.refetch")

	inst, err := storefront.FromContext(c)
	if err != nil {
		return fail(l, "refetch_role_error", err)
	}

	st, err := inst.Roles().Refetch(ctx)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, view(st))
	case role.IsStale(err):
		// The session changed underneath; report whatever is current.
		return c.JSON(http.StatusOK, view(inst.RoleState()))
	}
	return fail(l, "refetch_role_error", err)
}
