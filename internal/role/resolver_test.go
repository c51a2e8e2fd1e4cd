package role

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/pharmacy_shop/internal/identity"
	"github.com/Skotchmaster/pharmacy_shop/internal/session"
)

type fakeSource struct {
	mu   sync.Mutex
	cur  session.Session
	subs map[int]func(session.Session)
	next int
}

func newFakeSource(s session.Session) *fakeSource {
	return &fakeSource{cur: s, subs: map[int]func(session.Session){}}
}

func (f *fakeSource) Snapshot() session.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cur
}

func (f *fakeSource) Subscribe(fn func(session.Session)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.subs[id] = fn
	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

func (f *fakeSource) emit(s session.Session) {
	f.mu.Lock()
	f.cur = s
	subs := make([]func(session.Session), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()
	for _, fn := range subs {
		fn(s)
	}
}

func signedIn(email string) session.Session {
	return session.Session{User: &identity.User{Email: email}}
}

// gatedFetcher answers from roles, optionally holding each lookup until released.
type gatedFetcher struct {
	roles map[string]string
	errs  map[string]error
	gates map[string]chan struct{}
	calls atomic.Int32
}

func (f *gatedFetcher) UserRole(ctx context.Context, email string) (string, error) {
	f.calls.Add(1)
	if g, ok := f.gates[email]; ok {
		select {
		case <-g:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err := f.errs[email]; err != nil {
		return "", err
	}
	return f.roles[email], nil
}

func settle(t *testing.T, r *Resolver) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := r.WaitSettled(ctx)
	require.NoError(t, err)
	return st
}

func TestParseRole(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{in: "user", want: User},
		{in: "seller", want: Seller},
		{in: " admin ", want: Admin},
		{in: "Admin", wantErr: true},
		{in: "superuser", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRole(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownRole)
				assert.Empty(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolver_LoadingWhileSessionLoading(t *testing.T) {
	t.Parallel()

	src := newFakeSource(session.Session{Loading: true})
	f := &gatedFetcher{}
	r := NewResolver(src, f, nil)
	r.Start()
	defer r.Close()

	st := r.State()
	assert.True(t, st.IsLoadingRole)
	assert.Empty(t, st.Role)

	src.emit(session.Session{})
	st = settle(t, r)
	assert.Empty(t, st.Role)
	assert.Equal(t, int32(0), f.calls.Load(), "no lookup without an email")
}

func TestResolver_ResolvesAndCachesPerEmail(t *testing.T) {
	t.Parallel()

	src := newFakeSource(signedIn("admin@x.com"))
	f := &gatedFetcher{roles: map[string]string{"admin@x.com": "admin", "s@x.com": "seller"}}
	r := NewResolver(src, f, nil)
	r.Start()
	defer r.Close()

	st := settle(t, r)
	assert.Equal(t, Admin, st.Role)
	assert.Equal(t, "admin@x.com", st.Email)

	src.emit(signedIn("s@x.com"))
	assert.Equal(t, Seller, settle(t, r).Role)

	src.emit(signedIn("admin@x.com"))
	assert.Equal(t, Admin, settle(t, r).Role)
	assert.Equal(t, int32(2), f.calls.Load(), "second visit to admin@x.com is served from cache")

	src.emit(session.Session{})
	st = settle(t, r)
	assert.Empty(t, st.Role)
	assert.Empty(t, st.Email)
}

func TestResolver_StaleResultDiscarded(t *testing.T) {
	t.Parallel()

	src := newFakeSource(signedIn("user@x.com"))
	gate := make(chan struct{})
	f := &gatedFetcher{
		roles: map[string]string{"user@x.com": "admin", "other@x.com": "user"},
		gates: map[string]chan struct{}{"user@x.com": gate},
	}
	r := NewResolver(src, f, nil)
	r.Start()
	defer r.Close()

	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, r.State().IsLoadingRole)

	src.emit(signedIn("other@x.com"))
	st := settle(t, r)
	assert.Equal(t, "other@x.com", st.Email)
	assert.Equal(t, User, st.Role)

	close(gate)
	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return len(r.inFlight) == 0
	}, time.Second, 5*time.Millisecond)

	st = r.State()
	assert.Equal(t, User, st.Role, "late admin result for user@x.com must not leak into other@x.com")
	assert.False(t, st.IsLoadingRole)
}

func TestResolver_FailureLeavesRoleUnresolved(t *testing.T) {
	t.Parallel()

	src := newFakeSource(signedIn("a@x.com"))
	f := &gatedFetcher{errs: map[string]error{"a@x.com": errors.New("backend down")}}
	r := NewResolver(src, f, nil)
	r.Start()
	defer r.Close()

	st := settle(t, r)
	assert.Empty(t, st.Role)
	assert.False(t, st.Resolved())
	assert.Error(t, st.Err)

	src.emit(signedIn("a@x.com"))
	st = settle(t, r)
	assert.Empty(t, st.Role)
	assert.Equal(t, int32(1), f.calls.Load(), "same email after a failure waits for an explicit refetch")
}

func TestResolver_UnknownRoleIsUnresolved(t *testing.T) {
	t.Parallel()

	src := newFakeSource(signedIn("a@x.com"))
	r := NewResolver(src, &gatedFetcher{roles: map[string]string{"a@x.com": "root"}}, nil)
	r.Start()
	defer r.Close()

	st := settle(t, r)
	assert.Empty(t, st.Role)
	assert.ErrorIs(t, st.Err, ErrUnknownRole)
}

func TestResolver_Refetch(t *testing.T) {
	t.Parallel()

	src := newFakeSource(signedIn("a@x.com"))
	f := &gatedFetcher{roles: map[string]string{"a@x.com": "user"}}
	r := NewResolver(src, f, nil)
	r.Start()
	defer r.Close()

	assert.Equal(t, User, settle(t, r).Role)

	f.roles = map[string]string{"a@x.com": "seller"}
	st, err := r.Refetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Seller, st.Role)
	assert.False(t, st.IsLoadingRole)

	src.emit(session.Session{})
	settle(t, r)
	_, err = r.Refetch(context.Background())
	assert.ErrorIs(t, err, ErrNoEmail)
}

func TestResolver_ConcurrentLookupsCollapsed(t *testing.T) {
	t.Parallel()

	src := newFakeSource(session.Session{})
	gate := make(chan struct{})
	f := &gatedFetcher{
		roles: map[string]string{"a@x.com": "user"},
		gates: map[string]chan struct{}{"a@x.com": gate},
	}
	r := NewResolver(src, f, nil)
	r.Start()
	defer r.Close()

	src.emit(signedIn("a@x.com"))
	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	var wg sync.WaitGroup
	results := make([]Role, 5)
	for i := range results {
		r.mu.Lock()
		r.inFlight["a@x.com"]++
		r.mu.Unlock()
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = r.run(context.Background(), "a@x.com", false)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, User, got)
	}
	assert.Equal(t, User, settle(t, r).Role)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestResolver_CloseDropsLateResult(t *testing.T) {
	t.Parallel()

	src := newFakeSource(signedIn("a@x.com"))
	gate := make(chan struct{})
	f := &gatedFetcher{
		roles: map[string]string{"a@x.com": "admin"},
		gates: map[string]chan struct{}{"a@x.com": gate},
	}
	r := NewResolver(src, f, nil)
	r.Start()
	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	r.Close()
	r.Close()
	close(gate)

	_, err := r.WaitSettled(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.Empty(t, r.State().Role)

	src.mu.Lock()
	assert.Empty(t, src.subs)
	src.mu.Unlock()
}

// scriptedFetcher answers the n-th lookup with steps[n].
type scriptedFetcher struct {
	mu    sync.Mutex
	steps []scriptedStep
	n     int
}

type scriptedStep struct {
	role string
	err  error
	gate chan struct{}
}

func (f *scriptedFetcher) UserRole(ctx context.Context, _ string) (string, error) {
	f.mu.Lock()
	st := f.steps[min(f.n, len(f.steps)-1)]
	f.n++
	f.mu.Unlock()
	if st.gate != nil {
		select {
		case <-st.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return st.role, st.err
}

func (f *scriptedFetcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}

func TestResolver_LateFailureDoesNotOverrideRefetch(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	f := &scriptedFetcher{steps: []scriptedStep{
		{err: errors.New("404 not registered yet"), gate: gate},
		{role: "seller"},
	}}
	src := newFakeSource(session.Session{})
	r := NewResolver(src, f, nil)
	r.Start()
	defer r.Close()

	src.emit(signedIn("new@x.com"))
	require.Eventually(t, func() bool { return f.calls() == 1 }, time.Second, 5*time.Millisecond)

	st, err := r.Refetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Seller, st.Role)

	close(gate)
	got := settle(t, r)
	assert.Equal(t, Seller, got.Role)
	assert.NoError(t, got.Err)
}

func TestResolver_RefetchOutlivesCallerContext(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	f := &scriptedFetcher{steps: []scriptedStep{
		{role: "user"},
		{role: "admin", gate: gate},
	}}
	src := newFakeSource(signedIn("a@x.com"))
	r := NewResolver(src, f, nil)
	r.Start()
	defer r.Close()

	assert.Equal(t, User, settle(t, r).Role)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		assert.Eventually(t, func() bool { return f.calls() == 2 }, time.Second, 5*time.Millisecond)
		cancel()
	}()
	st, err := r.Refetch(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, st.IsLoadingRole)

	close(gate)
	got := settle(t, r)
	assert.Equal(t, Admin, got.Role)
	assert.NoError(t, got.Err)
}
