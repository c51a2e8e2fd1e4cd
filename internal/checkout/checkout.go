package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/Skotchmaster/pharmacy_shop/internal/backend"
	"github.com/Skotchmaster/pharmacy_shop/internal/cart"
	"github.com/Skotchmaster/pharmacy_shop/internal/events"
	"github.com/Skotchmaster/pharmacy_shop/internal/payment"
	"github.com/Skotchmaster/pharmacy_shop/pkg/logging"
)

var (
	ErrEmptyCart    = errors.New("cart is empty")
	ErrValidation   = errors.New("validation error")
	ErrRecordFailed = errors.New("payment captured but not recorded")
)

type Backend interface {
	CreatePaymentIntent(ctx context.Context, amountMinor int64) (string, error)
	RecordPayment(ctx context.Context, p backend.Payment) (backend.Payment, error)
	CreateOrder(ctx context.Context, o backend.Order) (backend.Order, error)
}

type Cart interface {
	Items() []cart.CartItem
	BeginCheckout() (release func(), err error)
	RemoveCharged(ctx context.Context, charged []cart.CartItem) ([]cart.CartItem, error)
}

type Request struct {
	Email    string           `json:"-"`
	Card     payment.Card     `json:"card"`
	Shipping backend.Shipping `json:"shipping"`
}

func (r Request) validate() error {
	if r.Email == "" {
		return fmt.Errorf("email is required: %w", ErrValidation)
	}
	if strings.TrimSpace(r.Shipping.Name) == "" || strings.TrimSpace(r.Shipping.Address) == "" {
		return fmt.Errorf("shipping name and address are required: %w", ErrValidation)
	}
	return nil
}

type Receipt struct {
	OrderID       string          `json:"orderId,omitempty"`
	PaymentID     string          `json:"paymentId,omitempty"`
	TransactionID string          `json:"transactionId"`
	Totals        cart.Totals     `json:"totals"`
	Items         []cart.CartItem `json:"items"`
	PaidAt        time.Time       `json:"paidAt"`
}

type Service struct {
	backend   Backend
	processor payment.Processor
	events    events.Publisher
	log       *slog.Logger
	now       func() time.Time
}

func NewService(b Backend, p payment.Processor, pub events.Publisher, log *slog.Logger) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Service{backend: b, processor: p, events: pub, log: log, now: time.Now}
}

// Checkout charges the cart and records the order. Only one checkout per cart
// runs at a time. Nothing touches the cart until the processor confirms the
// charge; after that the charged lines are removed even if recording fails,
// so a retry cannot charge twice. Lines added meanwhile stay in the cart.
func (s *Service) Checkout(ctx context.Context, c Cart, req Request) (Receipt, error) {
	if err := req.validate(); err != nil {
		return Receipt{}, err
	}
	if err := req.Card.Validate(); err != nil {
		return Receipt{}, err
	}

	release, err := c.BeginCheckout()
	if err != nil {
		return Receipt{}, err
	}
	defer release()

	items := c.Items()
	if len(items) == 0 {
		return Receipt{}, ErrEmptyCart
	}
	totals := cart.ComputeTotals(items)

	secret, err := s.backend.CreatePaymentIntent(ctx, cart.AmountMinor(totals.Subtotal))
	if err != nil {
		return Receipt{}, fmt.Errorf("create payment intent: %w", err)
	}

	conf, err := s.processor.ConfirmCard(ctx, secret, req.Card, payment.Billing{Name: req.Shipping.Name, Email: req.Email})
	if err != nil {
		return Receipt{}, fmt.Errorf("confirm card: %w", err)
	}

	rcpt := Receipt{
		TransactionID: conf.TransactionID,
		Totals:        totals,
		Items:         items,
		PaidAt:        s.now(),
	}

	if _, err := c.RemoveCharged(context.WithoutCancel(ctx), items); err != nil {
		s.log.Error("checkout_clear_cart_error", "transaction_id", conf.TransactionID, "error", err)
	}

	recErr := s.record(ctx, req, items, totals, &rcpt)
	if recErr != nil {
		s.log.Error("checkout_record_error", "transaction_id", conf.TransactionID, "error", recErr)
	}

	events.Emit(ctx, s.events, s.log, events.TopicCheckout, req.Email, events.CheckoutEvent{
		Type:          "order_placed",
		Email:         req.Email,
		OrderID:       rcpt.OrderID,
		TransactionID: rcpt.TransactionID,
		Amount:        totals.Subtotal,
		Items:         totals.Count,
		At:            rcpt.PaidAt,
	})

	if recErr != nil {
		return rcpt, fmt.Errorf("%w (transaction %s): %v", ErrRecordFailed, conf.TransactionID, recErr)
	}
	return rcpt, nil
}

func (s *Service) record(ctx context.Context, req Request, items []cart.CartItem, totals cart.Totals, rcpt *Receipt) error {
	ctx = context.WithoutCancel(ctx)

	paid, err := s.backend.RecordPayment(ctx, backend.Payment{
		Email:         req.Email,
		Amount:        totals.Subtotal,
		TransactionID: rcpt.TransactionID,
		Status:        "pending",
		SellerEmails:  sellerEmails(items),
		CreatedAt:     rcpt.PaidAt,
	})
	if err != nil {
		return fmt.Errorf("record payment: %w", err)
	}
	rcpt.PaymentID = paid.ID

	order, err := s.backend.CreateOrder(ctx, backend.Order{
		Email:     req.Email,
		Items:     orderItems(items),
		Total:     totals.Subtotal,
		Status:    "paid",
		PaymentID: paid.ID,
		Shipping:  req.Shipping,
		CreatedAt: rcpt.PaidAt,
	})
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	rcpt.OrderID = order.ID
	return nil
}

func sellerOf(it cart.CartItem) string {
	s, _ := it.Extra["sellerEmail"].(string)
	return s
}

func sellerEmails(items []cart.CartItem) []string {
	var out []string
	for _, it := range items {
		if s := sellerOf(it); s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

func orderItems(items []cart.CartItem) []backend.OrderItem {
	out := make([]backend.OrderItem, 0, len(items))
	for _, it := range items {
		out = append(out, backend.OrderItem{
			MedicineID:  it.ID,
			Name:        it.Name,
			UnitPrice:   it.UnitPrice,
			Quantity:    it.Quantity,
			SellerEmail: sellerOf(it),
		})
	}
	return out
}
