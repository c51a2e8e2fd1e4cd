package guard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/pharmacy_shop/internal/identity"
	"github.com/Skotchmaster/pharmacy_shop/internal/role"
	"github.com/Skotchmaster/pharmacy_shop/internal/session"
)

func user(email string) session.Session {
	return session.Session{User: &identity.User{Email: email}}
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		s    session.Session
		rs   role.State
		req  Requirement
		want Decision
	}{
		{
			name: "session loading is pending",
			s:    session.Session{Loading: true},
			req:  SessionOnly(),
			want: Decision{State: Pending},
		},
		{
			name: "session loading with a role guard is pending",
			s:    session.Session{Loading: true, User: &identity.User{Email: "a@x.com"}},
			rs:   role.State{Email: "a@x.com", Role: role.Admin},
			req:  Exactly(role.Admin),
			want: Decision{State: Pending},
		},
		{
			name: "no session is denied",
			s:    session.Session{},
			req:  SessionOnly(),
			want: Decision{State: Denied, Reason: ReasonNoSession},
		},
		{
			name: "no session with role guard is denied",
			s:    session.Session{},
			req:  Exactly(role.User),
			want: Decision{State: Denied, Reason: ReasonNoSession},
		},
		{
			name: "session is enough for a generic guard",
			s:    user("a@x.com"),
			rs:   role.State{Email: "a@x.com", IsLoadingRole: true},
			req:  SessionOnly(),
			want: Decision{State: Granted},
		},
		{
			name: "role loading is pending",
			s:    user("a@x.com"),
			rs:   role.State{Email: "a@x.com", IsLoadingRole: true},
			req:  Exactly(role.Seller),
			want: Decision{State: Pending},
		},
		{
			name: "role for a previous email is pending",
			s:    user("b@x.com"),
			rs:   role.State{Email: "a@x.com", Role: role.Admin},
			req:  Exactly(role.Admin),
			want: Decision{State: Pending},
		},
		{
			name: "exact match is granted",
			s:    user("a@x.com"),
			rs:   role.State{Email: "a@x.com", Role: role.Seller},
			req:  Exactly(role.Seller),
			want: Decision{State: Granted},
		},
		{
			name: "admin does not pass a seller guard",
			s:    user("a@x.com"),
			rs:   role.State{Email: "a@x.com", Role: role.Admin},
			req:  Exactly(role.Seller),
			want: Decision{State: Denied, Reason: ReasonRole},
		},
		{
			name: "unresolved role is denied",
			s:    user("a@x.com"),
			rs:   role.State{Email: "a@x.com", Err: errors.New("down")},
			req:  Exactly(role.User),
			want: Decision{State: Denied, Reason: ReasonRole},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.s, tt.rs, tt.req))
		})
	}
}

type fakeSource struct {
	mu      sync.Mutex
	s       session.Session
	rs      role.State
	changed chan struct{}
}

func newFakeSource(s session.Session, rs role.State) *fakeSource {
	return &fakeSource{s: s, rs: rs, changed: make(chan struct{})}
}

func (f *fakeSource) set(s session.Session, rs role.State) {
	f.mu.Lock()
	f.s, f.rs = s, rs
	close(f.changed)
	f.changed = make(chan struct{})
	f.mu.Unlock()
}

func (f *fakeSource) Session() session.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.s
}

func (f *fakeSource) RoleState() role.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rs
}

func (f *fakeSource) wait(ctx context.Context, done func() bool) error {
	for {
		f.mu.Lock()
		ok := done()
		ch := f.changed
		f.mu.Unlock()
		if ok {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (f *fakeSource) WaitSession(ctx context.Context) (session.Session, error) {
	err := f.wait(ctx, func() bool { return !f.s.Loading })
	return f.Session(), err
}

func (f *fakeSource) WaitRole(ctx context.Context) (role.State, error) {
	err := f.wait(ctx, func() bool { return !f.rs.IsLoadingRole })
	return f.RoleState(), err
}

func serve(t *testing.T, g *Guard, mw echo.MiddlewareFunc, req *http.Request) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	ran := false
	h := mw(func(c echo.Context) error {
		ran = true
		return c.String(http.StatusOK, "guarded")
	})
	err := h(c)
	if err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec, ran
}

func lookupOf(src Source) Lookup {
	return func(echo.Context) (Source, error) { return src, nil }
}

func TestRequireSession_PendingNeverRuns(t *testing.T) {
	t.Parallel()

	src := newFakeSource(session.Session{Loading: true}, role.State{IsLoadingRole: true})
	g := New(lookupOf(src), 20*time.Millisecond)

	rec, ran := serve(t, g, g.RequireSession, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	assert.False(t, ran)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"loading":true`)
}

func TestRequireSession_WaitsForSettle(t *testing.T) {
	t.Parallel()

	src := newFakeSource(session.Session{Loading: true}, role.State{})
	g := New(lookupOf(src), 2*time.Second)

	go func() {
		time.Sleep(20 * time.Millisecond)
		src.set(user("a@x.com"), role.State{Email: "a@x.com"})
	}()

	rec, ran := serve(t, g, g.RequireSession, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	assert.True(t, ran)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireSession_DeniedRedirectsToLogin(t *testing.T) {
	t.Parallel()

	src := newFakeSource(session.Session{}, role.State{})
	g := New(lookupOf(src), 0)

	req := httptest.NewRequest(http.MethodGet, "/dashboard/orders?page=2", nil)
	req.Header.Set(echo.HeaderAccept, "text/html,application/xhtml+xml")
	rec, ran := serve(t, g, g.RequireSession, req)
	assert.False(t, ran)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	loc, err := url.Parse(rec.Header().Get(echo.HeaderLocation))
	require.NoError(t, err)
	assert.Equal(t, "/login", loc.Path)
	assert.Equal(t, "/dashboard/orders?page=2", loc.Query().Get("redirect"))
}

func TestRequireSession_DeniedJSON(t *testing.T) {
	t.Parallel()

	src := newFakeSource(session.Session{}, role.State{})
	g := New(lookupOf(src), 0)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
	req.Header.Set(echo.HeaderAccept, echo.MIMEApplicationJSON)
	rec, ran := serve(t, g, g.RequireSession, req)
	assert.False(t, ran)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"reason":"no_session"`)
	assert.Contains(t, rec.Body.String(), `/login?redirect=`)
}

func TestRequireRole(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		have     role.Role
		need     role.Role
		wantCode int
		wantRan  bool
	}{
		{name: "admin on admin", have: role.Admin, need: role.Admin, wantCode: http.StatusOK, wantRan: true},
		{name: "seller on seller", have: role.Seller, need: role.Seller, wantCode: http.StatusOK, wantRan: true},
		{name: "admin on seller", have: role.Admin, need: role.Seller, wantCode: http.StatusForbidden},
		{name: "user on admin", have: role.User, need: role.Admin, wantCode: http.StatusForbidden},
		{name: "unresolved on user", have: "", need: role.User, wantCode: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newFakeSource(user("a@x.com"), role.State{Email: "a@x.com", Role: tt.have})
			g := New(lookupOf(src), 0)

			rec, ran := serve(t, g, g.RequireRole(tt.need), httptest.NewRequest(http.MethodGet, "/api/v1/admin/users", nil))
			assert.Equal(t, tt.wantRan, ran)
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestRequireRole_WrongRoleNavigationGoesHome(t *testing.T) {
	t.Parallel()

	src := newFakeSource(user("a@x.com"), role.State{Email: "a@x.com", Role: role.User})
	g := New(lookupOf(src), 0)

	req := httptest.NewRequest(http.MethodGet, "/dashboard/admin", nil)
	req.Header.Set(echo.HeaderAccept, "text/html")
	rec, ran := serve(t, g, g.RequireRole(role.Admin), req)
	assert.False(t, ran)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get(echo.HeaderLocation))
}

func TestRequireRole_WaitsForRole(t *testing.T) {
	t.Parallel()

	src := newFakeSource(user("a@x.com"), role.State{Email: "a@x.com", IsLoadingRole: true})
	g := New(lookupOf(src), 2*time.Second)

	go func() {
		time.Sleep(20 * time.Millisecond)
		src.set(user("a@x.com"), role.State{Email: "a@x.com", Role: role.Seller})
	}()

	rec, ran := serve(t, g, g.RequireRole(role.Seller), httptest.NewRequest(http.MethodGet, "/api/v1/seller/medicines", nil))
	assert.True(t, ran)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGuard_LookupFailure(t *testing.T) {
	t.Parallel()

	g := New(func(echo.Context) (Source, error) { return nil, errors.New("not mounted") }, 0)
	rec, ran := serve(t, g, g.RequireSession, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.False(t, ran)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
