package session

import (
	"context"
	"sync"

	"github.com/Skotchmaster/pharmacy_shop/internal/identity"
)

// Session is a point-in-time view of the auth state.
type Session struct {
	User    *identity.User `json:"user"`
	Loading bool           `json:"loading"`
}

func (s Session) Email() string {
	if s.User == nil {
		return ""
	}
	return s.User.Email
}

// Provider owns one visitor's session. The identity provider's
// notifications are the only thing that publishes a user and clears
// Loading; the operations only raise Loading and delegate.
type Provider struct {
	idp identity.Provider

	mu          sync.Mutex
	state       Session
	started     bool
	closed      bool
	unsubscribe func()
	subs        map[int]func(Session)
	nextSub     int
	settled     chan struct{}
}

func New(idp identity.Provider) *Provider {
	return &Provider{
		idp:     idp,
		state:   Session{Loading: true},
		subs:    map[int]func(Session){},
		settled: make(chan struct{}),
	}
}

// Start subscribes to the identity provider. Calling it again is a no-op.
func (p *Provider) Start() {
	p.mu.Lock()
	if p.started || p.closed {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	unsub := p.idp.OnAuthStateChanged(p.onAuthState)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		unsub()
		return
	}
	p.unsubscribe = unsub
	p.mu.Unlock()
}

// Close unsubscribes from the identity provider; later notifications are dropped.
func (p *Provider) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	unsub := p.unsubscribe
	p.unsubscribe = nil
	p.subs = map[int]func(Session){}
	p.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

func (p *Provider) onAuthState(u *identity.User) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.state = Session{User: u, Loading: false}
	p.markSettled()
	snap, subs := p.snapshotLocked()
	p.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

func (p *Provider) setLoading() {
	p.mu.Lock()
	if p.closed || p.state.Loading {
		p.mu.Unlock()
		return
	}
	p.state.Loading = true
	p.settled = make(chan struct{})
	snap, subs := p.snapshotLocked()
	p.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

func (p *Provider) markSettled() {
	select {
	case <-p.settled:
	default:
		close(p.settled)
	}
}

func (p *Provider) snapshotLocked() (Session, []func(Session)) {
	snap := Session{User: cloneUser(p.state.User), Loading: p.state.Loading}
	subs := make([]func(Session), 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	return snap, subs
}

func (p *Provider) Snapshot() Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap, _ := p.snapshotLocked()
	return snap
}

// Token returns the current access token, or "" without a session.
func (p *Provider) Token() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.User == nil {
		return ""
	}
	return p.state.User.AccessToken
}

// Subscribe registers fn for every session change and returns a cancel func.
func (p *Provider) Subscribe(fn func(Session)) func() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return func() {}
	}
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

// WaitSettled blocks until Loading is false or ctx is done.
func (p *Provider) WaitSettled(ctx context.Context) (Session, error) {
	for {
		p.mu.Lock()
		snap, _ := p.snapshotLocked()
		ch := p.settled
		p.mu.Unlock()
		if !snap.Loading {
			return snap, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

// unsettle clears Loading without touching the user. It runs when a
// delegated operation ends without an auth-state notification (failures,
// password reset), so guards are not left pending forever.
func (p *Provider) unsettle() {
	p.mu.Lock()
	if p.closed || !p.state.Loading {
		p.mu.Unlock()
		return
	}
	p.state.Loading = false
	p.markSettled()
	snap, subs := p.snapshotLocked()
	p.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

func (p *Provider) CreateUser(ctx context.Context, email, password string) (*identity.User, error) {
	p.setLoading()
	u, err := p.idp.CreateUser(ctx, email, password)
	if err != nil {
		p.unsettle()
	}
	return u, err
}

func (p *Provider) SignIn(ctx context.Context, email, password string) (*identity.User, error) {
	p.setLoading()
	u, err := p.idp.SignIn(ctx, email, password)
	if err != nil {
		p.unsettle()
	}
	return u, err
}

func (p *Provider) SocialLogin(ctx context.Context, providerID, idToken string) (*identity.User, error) {
	p.setLoading()
	u, err := p.idp.SocialLogin(ctx, providerID, idToken)
	if err != nil {
		p.unsettle()
	}
	return u, err
}

func (p *Provider) SignOutUser(ctx context.Context) error {
	p.setLoading()
	err := p.idp.SignOut(ctx)
	if err != nil {
		p.unsettle()
	}
	return err
}

func (p *Provider) UpdateProfile(ctx context.Context, prof identity.Profile) error {
	p.setLoading()
	err := p.idp.UpdateProfile(ctx, prof)
	if err != nil {
		p.unsettle()
	}
	return err
}

func (p *Provider) ResetPassword(ctx context.Context, email string) error {
	p.setLoading()
	defer p.unsettle()
	return p.idp.ResetPassword(ctx, email)
}

func cloneUser(u *identity.User) *identity.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
