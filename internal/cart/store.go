package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"

	"github.com/Skotchmaster/pharmacy_shop/pkg/logging"
)

// StorageKey is the fixed key the cart snapshot lives under.
const StorageKey = "pharmacy-cart"

var (
	ErrNoSnapshot     = errors.New("no cart snapshot")
	ErrValidation     = errors.New("validation")
	ErrCheckoutActive = errors.New("a checkout is already in progress for this cart")
)

// Storage is durable key-value storage for cart snapshots.
type Storage interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
}

// Key namespaces the cart key for one visitor.
func Key(visitorID string) string {
	return StorageKey + ":" + visitorID
}

// Store is the only owner and the only writer of one visitor's cart.
// Every mutation writes the new snapshot before it returns; if the write
// fails the in-memory cart is left as it was.
type Store struct {
	mu      sync.Mutex
	payMu   sync.Mutex
	storage Storage
	key     string
	items   []CartItem
	log     *slog.Logger
}

// Open loads the snapshot stored under key. A missing or unparseable
// snapshot starts an empty cart. Only storage I/O failures are returned.
func Open(ctx context.Context, storage Storage, key string) (*Store, error) {
	l := logging.FromContext(ctx).With("component", "cart.store", "key", key)
	s := &Store{storage: storage, key: key, items: []CartItem{}, log: l}

	data, err := storage.Load(ctx, key)
	if errors.Is(err, ErrNoSnapshot) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cart snapshot: %w", err)
	}

	items, err := decodeSnapshot(data)
	if err != nil {
		l.Warn("cart_snapshot_unparseable", "error", err)
		return s, nil
	}
	s.items = items
	return s, nil
}

func decodeSnapshot(data []byte) ([]CartItem, error) {
	var items []CartItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	out := make([]CartItem, 0, len(items))
	seen := make(map[string]int, len(items))
	for _, it := range items {
		if it.ID == "" {
			continue
		}
		if it.Quantity < 1 {
			it.Quantity = 1
		}
		if idx, ok := seen[it.ID]; ok {
			out[idx].Quantity += it.Quantity
			continue
		}
		seen[it.ID] = len(out)
		out = append(out, it)
	}
	return out, nil
}

// Items returns a copy of the current cart.
func (s *Store) Items() []CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneItems(s.items)
}

func (s *Store) Totals() Totals {
	return ComputeTotals(s.Items())
}

// AddToCart merges into the existing line for product.ID (quantity+1) or
// appends a new line with quantity 1.
func (s *Store) AddToCart(ctx context.Context, p Product) ([]CartItem, error) {
	if p.ID == "" {
		return nil, fmt.Errorf("product id is required: %w", ErrValidation)
	}
	if p.UnitPrice < 0 {
		return nil, fmt.Errorf("unit price must not be negative: %w", ErrValidation)
	}
	return s.mutate(ctx, func(items []CartItem) []CartItem {
		idx := indexOf(items, p.ID)
		if idx < 0 {
			return append(items, itemFromProduct(p))
		}
		items[idx].Quantity = addQuantity(items[idx].Quantity, 1)
		return items
	})
}

// RemoveItem drops the line for id. Absent ids are a no-op.
func (s *Store) RemoveItem(ctx context.Context, id string) ([]CartItem, error) {
	return s.mutate(ctx, func(items []CartItem) []CartItem {
		return slices.DeleteFunc(items, func(it CartItem) bool { return it.ID == id })
	})
}

// UpdateQuantity sets the line's quantity to max(1, quantity+delta).
// Absent ids are a no-op.
func (s *Store) UpdateQuantity(ctx context.Context, id string, delta int) ([]CartItem, error) {
	return s.mutate(ctx, func(items []CartItem) []CartItem {
		idx := indexOf(items, id)
		if idx < 0 {
			return items
		}
		items[idx].Quantity = max(1, addQuantity(items[idx].Quantity, delta))
		return items
	})
}

// addQuantity adds without wrapping around; out-of-range sums saturate.
func addQuantity(q, delta int) int {
	switch {
	case delta > 0 && q > math.MaxInt-delta:
		return math.MaxInt
	case delta < 0 && q < math.MinInt-delta:
		return math.MinInt
	}
	return q + delta
}

// BeginCheckout reserves the cart for a single checkout. Edits stay allowed
// while the reservation is held; a second checkout fails with
// ErrCheckoutActive until release is called.
func (s *Store) BeginCheckout() (release func(), err error) {
	if !s.payMu.TryLock() {
		return nil, ErrCheckoutActive
	}
	var once sync.Once
	return func() { once.Do(s.payMu.Unlock) }, nil
}

// RemoveCharged takes the charged quantities off their lines and drops lines
// that reach zero. Quantities added after the charge snapshot stay in the cart.
func (s *Store) RemoveCharged(ctx context.Context, charged []CartItem) ([]CartItem, error) {
	return s.mutate(ctx, func(items []CartItem) []CartItem {
		for _, ch := range charged {
			if idx := indexOf(items, ch.ID); idx >= 0 {
				items[idx].Quantity = addQuantity(items[idx].Quantity, -ch.Quantity)
			}
		}
		return slices.DeleteFunc(items, func(it CartItem) bool { return it.Quantity < 1 })
	})
}

func (s *Store) ClearCart(ctx context.Context) ([]CartItem, error) {
	return s.mutate(ctx, func([]CartItem) []CartItem {
		return []CartItem{}
	})
}

func (s *Store) mutate(ctx context.Context, fn func([]CartItem) []CartItem) ([]CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := fn(cloneItems(s.items))
	if next == nil {
		next = []CartItem{}
	}

	data, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("encode cart snapshot: %w", err)
	}
	if err := s.storage.Save(ctx, s.key, data); err != nil {
		s.log.Error("cart_snapshot_save_failed", "error", err)
		return nil, fmt.Errorf("save cart snapshot: %w", err)
	}

	s.items = next
	return cloneItems(next), nil
}

func indexOf(items []CartItem, id string) int {
	return slices.IndexFunc(items, func(it CartItem) bool { return it.ID == id })
}

func cloneItems(items []CartItem) []CartItem {
	out := make([]CartItem, len(items))
	for i, it := range items {
		out[i] = it.clone()
	}
	return out
}
