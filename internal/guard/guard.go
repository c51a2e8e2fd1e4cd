package guard

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/pharmacy_shop/internal/role"
	"github.com/Skotchmaster/pharmacy_shop/internal/session"
	"github.com/Skotchmaster/pharmacy_shop/pkg/logging"
)

type State int

const (
	Pending State = iota
	Denied
	Granted
)

func (s State) String() string {
	switch s {
	case Denied:
		return "denied"
	case Granted:
		return "granted"
	}
	return "pending"
}

type Reason string

const (
	ReasonNone      Reason = ""
	ReasonNoSession Reason = "no_session"
	ReasonRole      Reason = "role_mismatch"
)

// Requirement is what a guarded subtree needs. A zero Role means a session
// is enough. Roles compare exactly: admin does not satisfy a seller guard.
type Requirement struct {
	Role role.Role
}

func SessionOnly() Requirement { return Requirement{} }

func Exactly(r role.Role) Requirement { return Requirement{Role: r} }

func (r Requirement) needsRole() bool { return r.Role != "" }

type Decision struct {
	State  State
	Reason Reason
}

// Evaluate is the guard state machine. It leaves Pending only when neither
// the session nor (for role guards) the role is still loading.
func Evaluate(s session.Session, rs role.State, req Requirement) Decision {
	if s.Loading {
		return Decision{State: Pending}
	}
	if s.User == nil {
		return Decision{State: Denied, Reason: ReasonNoSession}
	}
	if !req.needsRole() {
		return Decision{State: Granted}
	}
	if rs.IsLoadingRole || rs.Email != s.Email() {
		return Decision{State: Pending}
	}
	if rs.Role != req.Role {
		return Decision{State: Denied, Reason: ReasonRole}
	}
	return Decision{State: Granted}
}

// Source is the per-visitor state a guard reads.
type Source interface {
	Session() session.Session
	RoleState() role.State
	WaitSession(ctx context.Context) (session.Session, error)
	WaitRole(ctx context.Context) (role.State, error)
}

// Lookup finds the Source for a request.
type Lookup func(c echo.Context) (Source, error)

type Guard struct {
	lookup      Lookup
	pendingWait time.Duration
	loginPath   string
}

func New(lookup Lookup, pendingWait time.Duration) *Guard {
	return &Guard{lookup: lookup, pendingWait: pendingWait, loginPath: "/login"}
}

const ContextKeyDecision = "guard_decision"

func (g *Guard) RequireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return g.requireWith(next, SessionOnly())
}

func (g *Guard) RequireRole(r role.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return g.requireWith(next, Exactly(r))
	}
}

func (g *Guard) requireWith(next echo.HandlerFunc, req Requirement) echo.HandlerFunc {
	return func(c echo.Context) error {
		l := logging.FromContext(c.Request().Context())

		src, err := g.lookup(c)
		if err != nil {
			l.Error("guard_lookup_error", "status", http.StatusInternalServerError, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "storefront not mounted")
		}

		d := Evaluate(src.Session(), src.RoleState(), req)
		if d.State == Pending && g.pendingWait > 0 {
			d = g.await(c.Request().Context(), src, req)
		}

		switch d.State {
		case Pending:
			c.Response().Header().Set("Retry-After", "1")
			return c.JSON(http.StatusAccepted, map[string]any{"state": Pending.String(), "loading": true})
		case Denied:
			l.Info("guard_denied", "reason", string(d.Reason), "path", c.Request().URL.Path)
			return g.deny(c, d)
		}

		c.Set(ContextKeyDecision, d)
		return next(c)
	}
}

func (g *Guard) await(parent context.Context, src Source, req Requirement) Decision {
	ctx, cancel := context.WithTimeout(parent, g.pendingWait)
	defer cancel()

	for {
		s, err := src.WaitSession(ctx)
		if err != nil {
			return Evaluate(s, src.RoleState(), req)
		}
		rs := src.RoleState()
		if req.needsRole() && s.User != nil {
			rs, err = src.WaitRole(ctx)
			if err != nil {
				return Evaluate(src.Session(), rs, req)
			}
		}
		d := Evaluate(src.Session(), rs, req)
		if d.State != Pending {
			return d
		}
		// The resolver may not have seen the new email yet.
		select {
		case <-ctx.Done():
			return d
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// Target is where a denied navigation is sent.
func (g *Guard) Target(c echo.Context, d Decision) string {
	if d.Reason == ReasonNoSession {
		return g.loginPath + "?redirect=" + url.QueryEscape(c.Request().URL.RequestURI())
	}
	return "/"
}

func (g *Guard) deny(c echo.Context, d Decision) error {
	target := g.Target(c, d)
	if isNavigation(c.Request()) {
		return c.Redirect(http.StatusSeeOther, target)
	}
	status := http.StatusForbidden
	if d.Reason == ReasonNoSession {
		status = http.StatusUnauthorized
	}
	return c.JSON(status, map[string]any{
		"state":    Denied.String(),
		"reason":   string(d.Reason),
		"redirect": target,
	})
}

// isNavigation reports whether the request is a browser page load rather
// than an API call.
func isNavigation(r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	accept := r.Header.Get(echo.HeaderAccept)
	return strings.Contains(accept, echo.MIMETextHTML)
}
