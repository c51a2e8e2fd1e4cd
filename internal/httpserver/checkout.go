package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/pharmacy_shop/internal/checkout"
	"github.com/Skotchmaster/pharmacy_shop/internal/events"
	"github.com/Skotchmaster/pharmacy_shop/internal/payment"
	"github.com/Skotchmaster/pharmacy_shop/internal/storefront"
	"github.com/Skotchmaster/pharmacy_shop/pkg/logging"
)

type CheckoutHTTP struct {
	Processor payment.Processor
	Events    events.Publisher
}

func (h *CheckoutHTTP) Checkout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "checkout")

	inst, err := storefront.FromContext(c)
	if err != nil {
		return fail(l, "checkout_error", err)
	}

	var req checkout.Request
	if err := c.Bind(&req); err != nil {
		l.Warn("checkout_error", "status", http.StatusBadRequest, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	req.Email = inst.Session().Email()

	svc := checkout.NewService(inst.Backend(), h.Processor, h.Events, l)
	rcpt, err := svc.Checkout(ctx, inst.Cart(), req)
	if errors.Is(err, checkout.ErrRecordFailed) {
		// The charge went through; hand the receipt back so the buyer keeps
		// the transaction id.
		l.Error("checkout_error", "status", http.StatusAccepted, "transaction_id", rcpt.TransactionID, "error", err)
		return c.JSON(http.StatusAccepted, map[string]any{"receipt": rcpt, "error": err.Error()})
	}
	if err != nil {
		return fail(l, "checkout_error", err)
	}

	l.Info("order placed", "order_id", rcpt.OrderID, "transaction_id", rcpt.TransactionID)
	return c.JSON(http.StatusCreated, rcpt)
}
