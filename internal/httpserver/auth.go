package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/pharmacy_shop/internal/backend"
	"github.com/Skotchmaster/pharmacy_shop/internal/events"
	"github.com/Skotchmaster/pharmacy_shop/internal/identity"
	"github.com/Skotchmaster/pharmacy_shop/internal/role"
	"github.com/Skotchmaster/pharmacy_shop/internal/storefront"
	"github.com/Skotchmaster/pharmacy_shop/pkg/logging"
)

type AuthHTTP struct {
	Events events.Publisher
}

type credentials struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL"`
}

func (h *AuthHTTP) SignUp(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.signup")

	inst, err := storefront.FromContext(c)
	if err != nil {
		return fail(l, "signup_error", err)
	}

	var req credentials
	if err := c.Bind(&req); err != nil {
		l.Warn("signup_error", "status", http.StatusBadRequest, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	u, err := inst.Auth().CreateUser(ctx, req.Email, req.Password)
	if err != nil {
		return fail(l, "signup_error", err)
	}
	if req.DisplayName != "" || req.PhotoURL != "" {
		prof := identity.Profile{DisplayName: req.DisplayName, PhotoURL: req.PhotoURL}
		if err := inst.Auth().UpdateProfile(ctx, prof); err != nil {
			l.Warn("signup_profile_error", "error", err)
		}
	}

	h.register(ctx, l, inst, backend.UserRecord{
		Email:    u.Email,
		Name:     req.DisplayName,
		PhotoURL: req.PhotoURL,
		Role:     string(role.User),
	})
	h.emit(ctx, l, inst, "signup", u.Email)

	l.Info("user signed up")
	return c.JSON(http.StatusCreated, inst.Session())
}

func (h *AuthHTTP) SignIn(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.signin")

	inst, err := storefront.FromContext(c)
	if err != nil {
		return fail(l, "signin_error", err)
	}

	var req credentials
	if err := c.Bind(&req); err != nil {
		l.Warn("signin_error", "status", http.StatusBadRequest, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	u, err := inst.Auth().SignIn(ctx, req.Email, req.Password)
	if err != nil {
		return fail(l, "signin_error", err)
	}
	h.emit(ctx, l, inst, "signin", u.Email)

	return c.JSON(http.StatusOK, inst.Session())
}

func (h *AuthHTTP) SocialLogin(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.social")

	inst, err := storefront.FromContext(c)
	if err != nil {
		return fail(l, "social_login_error", err)
	}

	var req struct {
		ProviderID string `json:"providerId"`
		IDToken    string `json:"idToken"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("social_login_error", "status", http.StatusBadRequest, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	u, err := inst.Auth().SocialLogin(ctx, req.ProviderID, req.IDToken)
	if err != nil {
		return fail(l, "social_login_error", err)
	}

	// The backend keeps the first record per email, so repeat logins are harmless.
	h.register(ctx, l, inst, backend.UserRecord{
		Email:    u.Email,
		Name:     u.DisplayName,
		PhotoURL: u.PhotoURL,
		Role:     string(role.User),
	})
	h.emit(ctx, l, inst, "social_login", u.Email)

	return c.JSON(http.StatusOK, inst.Session())
}

func (h *AuthHTTP) SignOut(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.signout")

	inst, err := storefront.FromContext(c)
	if err != nil {
		return fail(l, "signout_error", err)
	}

	email := inst.Session().Email()
	if err := inst.Auth().SignOutUser(ctx); err != nil {
		return fail(l, "signout_error", err)
	}
	h.emit(ctx, l, inst, "signout", email)

	return c.JSON(http.StatusOK, inst.Session())
}

func (h *AuthHTTP) ResetPassword(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.reset")

	inst, err := storefront.FromContext(c)
	if err != nil {
		return fail(l, "reset_password_error", err)
	}

	var req struct {
		Email string `json:"email"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("reset_password_error", "status", http.StatusBadRequest, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	if err := inst.Auth().ResetPassword(ctx, req.Email); err != nil {
		return fail(l, "reset_password_error", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AuthHTTP) UpdateProfile(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.profile")

	inst, err := storefront.FromContext(c)
	if err != nil {
		return fail(l, "update_profile_error", err)
	}

	var req identity.Profile
	if err := c.Bind(&req); err != nil {
		l.Warn("update_profile_error", "status", http.StatusBadRequest, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	if err := inst.Auth().UpdateProfile(ctx, req); err != nil {
		return fail(l, "update_profile_error", err)
	}
	return c.JSON(http.StatusOK, inst.Session())
}

func (h *AuthHTTP) GetSession(c echo.Context) error {
	l := logging.FromContext(c.Request().Context()).With("handler", "auth.session")

	inst, err := storefront.FromContext(c)
	if err != nil {
		return fail(l, "get_session_error", err)
	}
	return c.JSON(http.StatusOK, inst.Session())
}

// register saves the user record and re-resolves the role: the lookup the
// new session triggered may have run before the record existed.
func (h *AuthHTTP) register(ctx context.Context, l *slog.Logger, inst *storefront.Instance, u backend.UserRecord) {
	if err := inst.Backend().SaveUser(ctx, u); err != nil {
		l.Warn("save_user_error", "email", u.Email, "error", err)
		return
	}
	rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := inst.Roles().Refetch(rctx); err != nil && !role.IsStale(err) {
		l.Warn("role_refetch_error", "email", u.Email, "error", err)
	}
}

func (h *AuthHTTP) emit(ctx context.Context, l *slog.Logger, inst *storefront.Instance, typ, email string) {
	events.Emit(ctx, h.Events, l, events.TopicAuth, inst.VisitorID(), events.AuthEvent{
		Type:      typ,
		VisitorID: inst.VisitorID(),
		Email:     email,
		At:        time.Now(),
	})
}
