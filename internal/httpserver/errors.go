package httpserver

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/pharmacy_shop/internal/backend"
	"github.com/Skotchmaster/pharmacy_shop/internal/cart"
	"github.com/Skotchmaster/pharmacy_shop/internal/checkout"
	"github.com/Skotchmaster/pharmacy_shop/internal/identity"
	"github.com/Skotchmaster/pharmacy_shop/internal/payment"
	"github.com/Skotchmaster/pharmacy_shop/internal/role"
	"github.com/Skotchmaster/pharmacy_shop/internal/search"
	"github.com/Skotchmaster/pharmacy_shop/internal/storefront"
)

var (
	errBadRequest = errors.New("bad request")
	errForbidden  = errors.New("not your resource")
)

// statusOf maps domain errors to the status and message the client sees.
func statusOf(err error) (int, string) {
	var he *backend.HTTPError
	switch {
	case errors.Is(err, storefront.ErrNotMounted):
		return http.StatusInternalServerError, "storefront not mounted"
	case errors.Is(err, storefront.ErrClosed), errors.Is(err, role.ErrClosed):
		return http.StatusServiceUnavailable, "shutting down"

	case errors.Is(err, identity.ErrValidation),
		errors.Is(err, cart.ErrValidation),
		errors.Is(err, checkout.ErrValidation),
		errors.Is(err, payment.ErrValidation),
		errors.Is(err, search.ErrEmptyQuery),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, identity.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, identity.ErrNotSignedIn), errors.Is(err, role.ErrNoEmail):
		return http.StatusUnauthorized, "not signed in"
	case errors.Is(err, identity.ErrEmailExists):
		return http.StatusConflict, "email already registered"
	case errors.Is(err, errForbidden):
		return http.StatusForbidden, "forbidden"

	case errors.Is(err, checkout.ErrEmptyCart):
		return http.StatusConflict, "cart is empty"
	case errors.Is(err, cart.ErrCheckoutActive):
		return http.StatusConflict, "checkout already in progress"
	case errors.Is(err, payment.ErrDeclined):
		return http.StatusPaymentRequired, "card declined"
	case errors.Is(err, checkout.ErrRecordFailed):
		return http.StatusBadGateway, err.Error()
	case errors.Is(err, role.ErrUnknownRole):
		return http.StatusBadGateway, "backend returned an unknown role"
	case errors.Is(err, search.ErrDisabled):
		return http.StatusServiceUnavailable, "search is not configured"

	case errors.As(err, &he):
		if he.Status >= 400 && he.Status < 500 {
			return he.Status, http.StatusText(he.Status)
		}
		return http.StatusBadGateway, "backend unavailable"
	}
	return http.StatusInternalServerError, "internal error"
}

// fail logs err under event and returns the matching echo error.
func fail(l *slog.Logger, event string, err error) error {
	status, msg := statusOf(err)
	if status >= http.StatusInternalServerError {
		l.Error(event, "status", status, "error", err)
	} else {
		l.Warn(event, "status", status, "error", err)
	}
	return echo.NewHTTPError(status, msg)
}
