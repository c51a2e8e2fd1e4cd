package role

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/Skotchmaster/pharmacy_shop/internal/session"
	"github.com/Skotchmaster/pharmacy_shop/pkg/logging"
)

// Fetcher looks up the role string the backend holds for an email.
type Fetcher interface {
	UserRole(ctx context.Context, email string) (string, error)
}

// SessionSource is the part of the session provider the resolver follows.
type SessionSource interface {
	Snapshot() session.Session
	Subscribe(fn func(session.Session)) func()
}

// State is the resolver's view for the current session. An empty Role with
// IsLoadingRole false means unresolved: not authorized for anything.
type State struct {
	Email         string `json:"email,omitempty"`
	Role          Role   `json:"role,omitempty"`
	IsLoadingRole bool   `json:"isLoadingRole"`
	Err           error  `json:"-"`
}

func (s State) Resolved() bool { return s.Role != "" }

// Resolver keeps one visitor's role in step with their session email.
type Resolver struct {
	src   SessionSource
	fetch Fetcher
	log   *slog.Logger
	sfg   singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	email          string
	sessionLoading bool
	cache          map[string]Role
	inFlight       map[string]int
	seq            uint64
	applied        map[string]uint64
	lastErr        error
	started        bool
	closed         bool
	unsubscribe    func()
	changed        chan struct{}
}

func NewResolver(src SessionSource, fetch Fetcher, log *slog.Logger) *Resolver {
	if log == nil {
		log = logging.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Resolver{
		src:            src,
		fetch:          fetch,
		log:            log,
		ctx:            ctx,
		cancel:         cancel,
		sessionLoading: true,
		cache:          map[string]Role{},
		inFlight:       map[string]int{},
		applied:        map[string]uint64{},
		changed:        make(chan struct{}),
	}
}

// Start follows the session. It applies the current snapshot right away.
func (r *Resolver) Start() {
	r.mu.Lock()
	if r.started || r.closed {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	unsub := r.src.Subscribe(r.onSession)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		unsub()
		return
	}
	r.unsubscribe = unsub
	r.mu.Unlock()

	r.onSession(r.src.Snapshot())
}

// Close stops following the session and cancels in-flight lookups; their
// results are dropped.
func (r *Resolver) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	unsub := r.unsubscribe
	r.unsubscribe = nil
	r.broadcastLocked()
	r.mu.Unlock()

	r.cancel()
	if unsub != nil {
		unsub()
	}
}

func (r *Resolver) onSession(s session.Session) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	email := s.Email()
	changed := email != r.email
	r.email = email
	r.sessionLoading = s.Loading
	if changed {
		r.lastErr = nil
	}
	launch := email != "" && r.cache[email] == "" && r.inFlight[email] == 0 && (changed || r.lastErr == nil)
	if launch {
		r.inFlight[email]++
	}
	r.broadcastLocked()
	r.mu.Unlock()

	if launch {
		go func() {
			_, _ = r.run(r.ctx, email, false)
		}()
	}
}

// run performs one lookup for email and applies it if email is still the
// current one. The caller has already counted it in inFlight.
func (r *Resolver) run(ctx context.Context, email string, force bool) (Role, error) {
	r.mu.Lock()
	r.seq++
	seq := r.seq
	r.mu.Unlock()

	if force {
		r.sfg.Forget(email)
	}
	v, err, _ := r.sfg.Do(email, func() (any, error) {
		raw, err := r.fetch.UserRole(ctx, email)
		if err != nil {
			return Role(""), err
		}
		return ParseRole(raw)
	})
	got, _ := v.(Role)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.inFlight[email]--
	if r.inFlight[email] <= 0 {
		delete(r.inFlight, email)
	}
	defer r.broadcastLocked()

	if r.closed {
		return "", ErrClosed
	}
	if email != r.email {
		r.log.Debug("role_stale_result_dropped", "email", email, "current", r.email)
		return "", ErrStale
	}
	// A lookup that started later has already been applied; report its outcome.
	if seq < r.applied[email] {
		r.log.Debug("role_superseded_result_dropped", "email", email)
		if r.lastErr != nil {
			return "", fmt.Errorf("resolve role: %w", r.lastErr)
		}
		return r.cache[email], nil
	}
	r.applied[email] = seq
	if err != nil {
		r.lastErr = err
		delete(r.cache, email)
		r.log.Warn("role_fetch_error", "email", email, "error", err)
		return "", fmt.Errorf("resolve role: %w", err)
	}
	r.lastErr = nil
	r.cache[email] = got
	return got, nil
}

// Refetch drops the cached role for the current email and looks it up again.
// The lookup runs for the resolver's lifetime: if ctx ends first Refetch
// returns ctx.Err() and the result is still applied when it arrives.
func (r *Resolver) Refetch(ctx context.Context) (State, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return State{}, ErrClosed
	}
	email := r.email
	if email == "" {
		st := r.stateLocked()
		r.mu.Unlock()
		return st, ErrNoEmail
	}
	delete(r.cache, email)
	r.inFlight[email]++
	r.broadcastLocked()
	r.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := r.run(r.ctx, email, true)
		done <- err
	}()
	select {
	case err := <-done:
		return r.State(), err
	case <-ctx.Done():
		return r.State(), ctx.Err()
	}
}

func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stateLocked()
}

func (r *Resolver) stateLocked() State {
	return State{
		Email:         r.email,
		Role:          r.cache[r.email],
		IsLoadingRole: r.sessionLoading || r.inFlight[r.email] > 0,
		Err:           r.lastErr,
	}
}

func (r *Resolver) broadcastLocked() {
	close(r.changed)
	r.changed = make(chan struct{})
}

// WaitSettled blocks until IsLoadingRole is false, ctx is done, or the
// resolver is closed.
func (r *Resolver) WaitSettled(ctx context.Context) (State, error) {
	for {
		r.mu.Lock()
		st := r.stateLocked()
		closed := r.closed
		ch := r.changed
		r.mu.Unlock()
		if closed {
			return st, ErrClosed
		}
		if !st.IsLoadingRole {
			return st, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return st, ctx.Err()
		}
	}
}

// IsStale reports whether err came from a lookup whose result was dropped.
func IsStale(err error) bool {
	return errors.Is(err, ErrStale) || errors.Is(err, ErrClosed)
}
