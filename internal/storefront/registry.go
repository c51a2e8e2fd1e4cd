package storefront

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Skotchmaster/pharmacy_shop/internal/backend"
	"github.com/Skotchmaster/pharmacy_shop/internal/cart"
	"github.com/Skotchmaster/pharmacy_shop/internal/identity"
	"github.com/Skotchmaster/pharmacy_shop/internal/role"
	"github.com/Skotchmaster/pharmacy_shop/internal/session"
	"github.com/Skotchmaster/pharmacy_shop/pkg/logging"
)

var (
	ErrNotMounted = errors.New("storefront instance not mounted")
	ErrClosed     = errors.New("storefront registry closed")
)

type Deps struct {
	Identity identity.Factory
	Storage  cart.Storage
	Backend  *backend.Client
	Log      *slog.Logger
	IdleTTL  time.Duration
}

// Registry keeps exactly one Instance per visitor. Instances are mounted on
// first use and unmounted when idle or on Close.
type Registry struct {
	deps Deps
	log  *slog.Logger
	now  func() time.Time
	sfg  singleflight.Group

	mu        sync.Mutex
	instances map[string]*Instance
	closed    bool
}

func NewRegistry(d Deps) *Registry {
	if d.Log == nil {
		d.Log = logging.Discard()
	}
	if d.IdleTTL <= 0 {
		d.IdleTTL = 30 * time.Minute
	}
	return &Registry{
		deps:      d,
		log:       d.Log.With("component", "storefront.registry"),
		now:       time.Now,
		instances: map[string]*Instance{},
	}
}

// Acquire returns the visitor's instance, mounting it if needed. Concurrent
// first requests for one visitor share a single mount.
func (r *Registry) Acquire(ctx context.Context, visitorID string) (*Instance, error) {
	if visitorID == "" {
		return nil, errors.New("empty visitor id")
	}
	if inst, err := r.lookup(visitorID); inst != nil || err != nil {
		return inst, err
	}

	v, err, _ := r.sfg.Do(visitorID, func() (any, error) {
		if inst, err := r.lookup(visitorID); inst != nil || err != nil {
			return inst, err
		}
		inst, err := r.mount(ctx, visitorID)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			inst.Close()
			return nil, ErrClosed
		}
		r.instances[visitorID] = inst
		r.mu.Unlock()
		return inst, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Instance), nil
}

// Hold acquires the visitor's instance and pins it until release is called.
// Sweep never unmounts a pinned instance, so the cart keeps a single writer.
func (r *Registry) Hold(ctx context.Context, visitorID string) (*Instance, func(), error) {
	for {
		inst, err := r.Acquire(ctx, visitorID)
		if err != nil {
			return nil, nil, err
		}

		r.mu.Lock()
		if r.instances[visitorID] != inst {
			// Swept between Acquire and here; mount again.
			closed := r.closed
			r.mu.Unlock()
			if closed {
				return nil, nil, ErrClosed
			}
			continue
		}
		inst.refs++
		r.mu.Unlock()

		var once sync.Once
		return inst, func() {
			once.Do(func() {
				r.mu.Lock()
				inst.refs--
				inst.touch(r.now())
				r.mu.Unlock()
			})
		}, nil
	}
}

func (r *Registry) lookup(visitorID string) (*Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	inst := r.instances[visitorID]
	if inst != nil {
		inst.touch(r.now())
	}
	return inst, nil
}

func (r *Registry) mount(ctx context.Context, visitorID string) (*Instance, error) {
	l := r.deps.Log.With("visitor", visitorID)
	mctx := logging.IntoContext(context.WithoutCancel(ctx), l)

	store, err := cart.Open(mctx, r.deps.Storage, cart.Key(visitorID))
	if err != nil {
		return nil, fmt.Errorf("mount %s: %w", visitorID, err)
	}

	auth := session.New(r.deps.Identity())
	client := r.deps.Backend.WithTokens(auth)
	inst := &Instance{
		visitorID: visitorID,
		auth:      auth,
		roles:     role.NewResolver(auth, client, l),
		cart:      store,
		backend:   client,
	}
	inst.touch(r.now())

	auth.Start()
	inst.roles.Start()
	l.Debug("storefront_mounted")
	return inst, nil
}

// Len reports how many instances are mounted.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.instances)
}

// Sweep unmounts instances idle for longer than the TTL. Held instances
// are skipped.
func (r *Registry) Sweep() int {
	now := r.now()
	var idle []*Instance

	r.mu.Lock()
	for id, inst := range r.instances {
		if inst.refs == 0 && inst.idleSince(now) > r.deps.IdleTTL {
			idle = append(idle, inst)
			delete(r.instances, id)
		}
	}
	r.mu.Unlock()

	for _, inst := range idle {
		inst.Close()
	}
	if len(idle) > 0 {
		r.log.Info("storefront_swept", "unmounted", len(idle))
	}
	return len(idle)
}

// Run sweeps periodically until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	interval := r.deps.IdleTTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Sweep()
		}
	}
}

// Close unmounts every instance. Later Acquire calls fail with ErrClosed.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	all := r.instances
	r.instances = map[string]*Instance{}
	r.mu.Unlock()

	for _, inst := range all {
		inst.Close()
	}
	r.log.Info("storefront_closed", "unmounted", len(all))
}
