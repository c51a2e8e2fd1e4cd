package identity

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailExists        = errors.New("email already registered")
	ErrNotSignedIn        = errors.New("not signed in")
	ErrValidation         = errors.New("validation")
)

// User is the identity a provider reports for a signed-in visitor.
type User struct {
	UID          string    `json:"uid"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName,omitempty"`
	PhotoURL     string    `json:"photoURL,omitempty"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

type Profile struct {
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL"`
}

type Listener func(*User)

// Provider is one visitor's handle on the external identity provider.
// State changes are delivered through OnAuthStateChanged; the operation
// results only report success or failure.
type Provider interface {
	CreateUser(ctx context.Context, email, password string) (*User, error)
	SignIn(ctx context.Context, email, password string) (*User, error)
	SocialLogin(ctx context.Context, providerID, idToken string) (*User, error)
	SignOut(ctx context.Context) error
	UpdateProfile(ctx context.Context, p Profile) error
	ResetPassword(ctx context.Context, email string) error
	// OnAuthStateChanged registers l and immediately reports the current
	// state to it. The returned func unsubscribes.
	OnAuthStateChanged(l Listener) (unsubscribe func())
}

// Factory builds a fresh Provider for one visitor.
type Factory func() Provider

const (
	refreshLead    = 5 * time.Minute
	refreshTimeout = 10 * time.Second
)

// RefreshFunc trades u's refresh token for a fresh session.
type RefreshFunc func(ctx context.Context, u *User) (*User, error)

// notifier holds the current user and fans changes out to listeners.
// Before the token expires it renews it through refresh when the user has a
// refresh token; the user is reset only when that is impossible or fails.
type notifier struct {
	// emitMu keeps deliveries in the order the changes happened.
	emitMu    sync.Mutex
	mu        sync.Mutex
	current   *User
	listeners map[int]Listener
	nextID    int
	expiry    *time.Timer
	now       func() time.Time
	refresh   RefreshFunc
}

func newNotifier() *notifier {
	return &notifier{listeners: map[int]Listener{}, now: time.Now}
}

func (n *notifier) user() *User {
	n.mu.Lock()
	defer n.mu.Unlock()
	return cloneUser(n.current)
}

func (n *notifier) set(u *User) {
	n.update(u, nil)
}

// update replaces the current user when cond accepts the current one
// (a nil cond always accepts) and notifies every listener.
func (n *notifier) update(u *User, cond func(cur *User) bool) {
	n.emitMu.Lock()
	defer n.emitMu.Unlock()

	n.mu.Lock()
	if cond != nil && !cond(n.current) {
		n.mu.Unlock()
		return
	}
	if n.expiry != nil {
		n.expiry.Stop()
		n.expiry = nil
	}
	n.current = cloneUser(u)
	if u != nil && !u.ExpiresAt.IsZero() {
		n.schedule(u)
	}
	ls := n.snapshotListeners()
	n.mu.Unlock()

	for _, l := range ls {
		l(cloneUser(u))
	}
}

// schedule arms the renewal or expiry timer for u. Callers hold n.mu.
func (n *notifier) schedule(u *User) {
	d := u.ExpiresAt.Sub(n.now())
	token := u.AccessToken
	if n.refresh == nil || u.RefreshToken == "" || d <= 0 {
		n.expiry = time.AfterFunc(max(d, 0), func() { n.expire(token) })
		return
	}
	n.expiry = time.AfterFunc(d-min(refreshLead, d/2), func() { n.renew(token) })
}

// renew refreshes the session holding token. When the refresh fails the
// session lasts until the token runs out.
func (n *notifier) renew(token string) {
	n.mu.Lock()
	cur := cloneUser(n.current)
	refresh := n.refresh
	n.mu.Unlock()
	if cur == nil || cur.AccessToken != token {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	next, err := refresh(ctx, cur)
	cancel()
	if err != nil || next == nil {
		n.mu.Lock()
		if n.current != nil && n.current.AccessToken == token {
			if n.expiry != nil {
				n.expiry.Stop()
			}
			d := cur.ExpiresAt.Sub(n.now())
			n.expiry = time.AfterFunc(max(d, 0), func() { n.expire(token) })
		}
		n.mu.Unlock()
		return
	}
	n.update(next, func(c *User) bool {
		return c != nil && c.AccessToken == token
	})
}

func (n *notifier) expire(token string) {
	n.update(nil, func(cur *User) bool {
		return cur != nil && cur.AccessToken == token
	})
}

func (n *notifier) subscribe(l Listener) func() {
	n.emitMu.Lock()
	defer n.emitMu.Unlock()

	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.listeners[id] = l
	cur := cloneUser(n.current)
	n.mu.Unlock()

	l(cur)

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.listeners, id)
			n.mu.Unlock()
		})
	}
}

func (n *notifier) snapshotListeners() []Listener {
	out := make([]Listener, 0, len(n.listeners))
	for _, l := range n.listeners {
		out = append(out, l)
	}
	return out
}

func cloneUser(u *User) *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
