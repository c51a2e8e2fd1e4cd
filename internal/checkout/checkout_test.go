package checkout

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/pharmacy_shop/internal/backend"
	"github.com/Skotchmaster/pharmacy_shop/internal/cart"
	"github.com/Skotchmaster/pharmacy_shop/internal/events"
	"github.com/Skotchmaster/pharmacy_shop/internal/payment"
	"github.com/Skotchmaster/pharmacy_shop/internal/repo"
)

type fakeBackend struct {
	intentErr  error
	paymentErr error
	amounts    []int64
	payments   []backend.Payment
	orders     []backend.Order
}

func (f *fakeBackend) CreatePaymentIntent(_ context.Context, amount int64) (string, error) {
	if f.intentErr != nil {
		return "", f.intentErr
	}
	f.amounts = append(f.amounts, amount)
	return "secret", nil
}

func (f *fakeBackend) RecordPayment(_ context.Context, p backend.Payment) (backend.Payment, error) {
	if f.paymentErr != nil {
		return backend.Payment{}, f.paymentErr
	}
	p.ID = "pay1"
	f.payments = append(f.payments, p)
	return p, nil
}

func (f *fakeBackend) CreateOrder(_ context.Context, o backend.Order) (backend.Order, error) {
	o.ID = "ord1"
	f.orders = append(f.orders, o)
	return o, nil
}

var card = payment.Card{Number: "4242424242424242", ExpMonth: 1, ExpYear: 2031, CVC: "123"}

func request() Request {
	return Request{
		Email:    "buyer@x.com",
		Card:     card,
		Shipping: backend.Shipping{Name: "Buyer", Address: "1 Main St"},
	}
}

func filledCart(t *testing.T) *cart.Store {
	t.Helper()
	ctx := context.Background()
	st, err := cart.Open(ctx, repo.NewMemorySnapshots(), cart.Key("v1"))
	require.NoError(t, err)
	_, err = st.AddToCart(ctx, cart.Product{ID: "m1", Name: "Napa", UnitPrice: 10, Extra: map[string]any{"sellerEmail": "s1@x.com"}})
	require.NoError(t, err)
	_, err = st.AddToCart(ctx, cart.Product{ID: "m1", Name: "Napa", UnitPrice: 10, Extra: map[string]any{"sellerEmail": "s1@x.com"}})
	require.NoError(t, err)
	_, err = st.AddToCart(ctx, cart.Product{ID: "m2", Name: "Seclo", UnitPrice: 0.15, Extra: map[string]any{"sellerEmail": "s2@x.com"}})
	require.NoError(t, err)
	return st
}

func TestCheckout_Success(t *testing.T) {
	t.Parallel()

	be := &fakeBackend{}
	rec := &events.Recorder{}
	svc := NewService(be, payment.Sandbox{}, rec, nil)
	st := filledCart(t)

	rcpt, err := svc.Checkout(context.Background(), st, request())
	require.NoError(t, err)

	assert.Equal(t, []int64{2015}, be.amounts)
	assert.Equal(t, "ord1", rcpt.OrderID)
	assert.Equal(t, "pay1", rcpt.PaymentID)
	assert.NotEmpty(t, rcpt.TransactionID)
	assert.InDelta(t, 20.15, rcpt.Totals.Subtotal, 1e-9)
	assert.Len(t, rcpt.Items, 2)

	require.Len(t, be.payments, 1)
	assert.Equal(t, []string{"s1@x.com", "s2@x.com"}, be.payments[0].SellerEmails)
	require.Len(t, be.orders, 1)
	assert.Equal(t, 2, be.orders[0].Items[0].Quantity)
	assert.Equal(t, "pay1", be.orders[0].PaymentID)

	assert.Empty(t, st.Items())
	evs := rec.Snapshot()
	require.Len(t, evs, 1)
	assert.Equal(t, events.TopicCheckout, evs[0].Topic)
}

func TestCheckout_FailuresBeforeChargeKeepCart(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		be      *fakeBackend
		proc    payment.Processor
		req     func(Request) Request
		wantErr error
	}{
		{
			name: "intent fails",
			be:   &fakeBackend{intentErr: &backend.HTTPError{Status: 500}},
			proc: payment.Sandbox{},
			req:  func(r Request) Request { return r },
		},
		{
			name:    "declined",
			be:      &fakeBackend{},
			proc:    payment.Sandbox{},
			req:     func(r Request) Request { r.Card.Number = "4000000000000002"; return r },
			wantErr: payment.ErrDeclined,
		},
		{
			name:    "missing shipping",
			be:      &fakeBackend{},
			proc:    payment.Sandbox{},
			req:     func(r Request) Request { r.Shipping = backend.Shipping{}; return r },
			wantErr: ErrValidation,
		},
		{
			name:    "bad card",
			be:      &fakeBackend{},
			proc:    payment.Sandbox{},
			req:     func(r Request) Request { r.Card.CVC = ""; return r },
			wantErr: payment.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := filledCart(t)
			before := st.Items()

			_, err := NewService(tt.be, tt.proc, nil, nil).Checkout(context.Background(), st, tt.req(request()))
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, before, st.Items())
			assert.Empty(t, tt.be.orders)
		})
	}
}

func TestCheckout_EmptyCart(t *testing.T) {
	t.Parallel()

	st, err := cart.Open(context.Background(), repo.NewMemorySnapshots(), cart.Key("v"))
	require.NoError(t, err)

	be := &fakeBackend{}
	_, err = NewService(be, payment.Sandbox{}, nil, nil).Checkout(context.Background(), st, request())
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Empty(t, be.amounts)
}

func TestCheckout_RecordFailureAfterCharge(t *testing.T) {
	t.Parallel()

	be := &fakeBackend{paymentErr: errors.New("db down")}
	st := filledCart(t)

	rcpt, err := NewService(be, payment.Sandbox{}, nil, nil).Checkout(context.Background(), st, request())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRecordFailed)
	assert.NotEmpty(t, rcpt.TransactionID)
	assert.Contains(t, err.Error(), rcpt.TransactionID)
	assert.Empty(t, st.Items(), "a captured charge always empties the cart")
}

// gatedProcessor holds every confirmation until release is closed.
type gatedProcessor struct {
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (p *gatedProcessor) ConfirmCard(ctx context.Context, secret string, card payment.Card, b payment.Billing) (payment.Confirmation, error) {
	p.calls.Add(1)
	p.entered <- struct{}{}
	<-p.release
	return payment.Confirmation{TransactionID: "tx1", Status: "succeeded"}, nil
}

func TestCheckout_ConcurrentCheckoutsChargeOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	be := &fakeBackend{}
	proc := &gatedProcessor{entered: make(chan struct{}, 2), release: make(chan struct{})}
	svc := NewService(be, proc, nil, nil)
	st := filledCart(t)

	type result struct {
		rcpt Receipt
		err  error
	}
	first := make(chan result, 1)
	go func() {
		rcpt, err := svc.Checkout(ctx, st, request())
		first <- result{rcpt, err}
	}()
	<-proc.entered

	_, err := svc.Checkout(ctx, st, request())
	require.ErrorIs(t, err, cart.ErrCheckoutActive)

	_, err = st.AddToCart(ctx, cart.Product{ID: "m9", Name: "Fexo", UnitPrice: 4})
	require.NoError(t, err)

	close(proc.release)
	res := <-first
	require.NoError(t, res.err)

	assert.EqualValues(t, 1, proc.calls.Load())
	assert.Equal(t, []int64{2015}, be.amounts)
	require.Len(t, be.orders, 1)
	assert.Len(t, be.orders[0].Items, 2)

	left := st.Items()
	require.Len(t, left, 1, "items added during checkout are kept")
	assert.Equal(t, "m9", left[0].ID)

	rcpt, err := svc.Checkout(ctx, st, request())
	require.NoError(t, err, "the reservation is released after checkout")
	assert.Len(t, rcpt.Items, 1)
	assert.Equal(t, []int64{2015, 400}, be.amounts)
	assert.Empty(t, st.Items())
}
