package storefront

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Skotchmaster/pharmacy_shop/internal/backend"
	"github.com/Skotchmaster/pharmacy_shop/internal/cart"
	"github.com/Skotchmaster/pharmacy_shop/internal/role"
	"github.com/Skotchmaster/pharmacy_shop/internal/session"
)

// Instance is one visitor's application root: exactly one session, one
// role resolver, one cart and one authenticated backend client.
type Instance struct {
	visitorID string
	auth      *session.Provider
	roles     *role.Resolver
	cart      *cart.Store
	backend   *backend.Client

	lastSeen  atomic.Int64
	closeOnce sync.Once
	// refs counts requests holding the instance; guarded by Registry.mu.
	refs int
}

func (i *Instance) VisitorID() string { return i.visitorID }

func (i *Instance) Auth() *session.Provider { return i.auth }

func (i *Instance) Roles() *role.Resolver { return i.roles }

func (i *Instance) Cart() *cart.Store { return i.cart }

func (i *Instance) Backend() *backend.Client { return i.backend }

func (i *Instance) Session() session.Session { return i.auth.Snapshot() }

func (i *Instance) RoleState() role.State { return i.roles.State() }

func (i *Instance) WaitSession(ctx context.Context) (session.Session, error) {
	return i.auth.WaitSettled(ctx)
}

func (i *Instance) WaitRole(ctx context.Context) (role.State, error) {
	return i.roles.WaitSettled(ctx)
}

func (i *Instance) touch(now time.Time) {
	i.lastSeen.Store(now.UnixNano())
}

func (i *Instance) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, i.lastSeen.Load()))
}

// Close unmounts the instance. Listeners are removed and in-flight role
// lookups are dropped; the cart snapshot stays in storage.
func (i *Instance) Close() {
	i.closeOnce.Do(func() {
		i.roles.Close()
		i.auth.Close()
	})
}
