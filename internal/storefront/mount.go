package storefront

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/pharmacy_shop/internal/guard"
	"github.com/Skotchmaster/pharmacy_shop/pkg/cookies"
	"github.com/Skotchmaster/pharmacy_shop/pkg/logging"
)

const (
	VisitorCookie = "visitor"
	visitorTTL    = 365 * 24 * time.Hour
	contextKey    = "storefront_instance"
)

// Mount identifies the visitor by cookie, issuing one when missing, and
// puts their instance in the echo context.
func (r *Registry) Mount(secure bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			l := logging.FromContext(c.Request().Context())

			id := ""
			if ck, err := c.Cookie(VisitorCookie); err == nil {
				if u, err := uuid.Parse(ck.Value); err == nil {
					id = u.String()
				}
			}
			if id == "" {
				id = uuid.NewString()
			}
			c.SetCookie(cookies.Create(VisitorCookie, id, "/", time.Now().Add(visitorTTL), secure))

			inst, release, err := r.Hold(c.Request().Context(), id)
			if err != nil {
				l.Error("storefront_mount_error", "status", http.StatusServiceUnavailable, "error", err)
				return echo.NewHTTPError(http.StatusServiceUnavailable, "storefront unavailable")
			}
			defer release()

			c.Set(contextKey, inst)
			c.SetRequest(c.Request().WithContext(
				logging.IntoContext(c.Request().Context(), l.With("visitor", id)),
			))
			return next(c)
		}
	}
}

// FromContext returns the instance Mount attached. Without Mount above the
// handler it fails with ErrNotMounted rather than creating a detached one.
func FromContext(c echo.Context) (*Instance, error) {
	inst, ok := c.Get(contextKey).(*Instance)
	if !ok || inst == nil {
		return nil, ErrNotMounted
	}
	return inst, nil
}

// GuardSource adapts FromContext for guard middleware.
func GuardSource(c echo.Context) (guard.Source, error) {
	inst, err := FromContext(c)
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// WithInstance attaches inst directly; handler tests use it in place of Mount.
func WithInstance(c echo.Context, inst *Instance) {
	c.Set(contextKey, inst)
}
