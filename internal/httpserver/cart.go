package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/pharmacy_shop/internal/backend"
	"github.com/Skotchmaster/pharmacy_shop/internal/cart"
	"github.com/Skotchmaster/pharmacy_shop/internal/events"
	"github.com/Skotchmaster/pharmacy_shop/internal/storefront"
	"github.com/Skotchmaster/pharmacy_shop/pkg/logging"
)

type CartHTTP struct {
	Events events.Publisher
}

type cartView struct {
	Items  []cart.CartItem `json:"items"`
	Totals cart.Totals     `json:"totals"`
}

func viewCart(items []cart.CartItem) cartView {
	return cartView{Items: items, Totals: cart.ComputeTotals(items)}
}

func (h *CartHTTP) GetCart(c echo.Context) error {
	l := logging.FromContext(c.Request().Context()).With("handler", "get.cart")

	inst, err := storefront.FromContext(c)
	if err != nil {
		return fail(l, "get_cart_error", err)
	}
	return c.JSON(http.StatusOK, viewCart(inst.Cart().Items()))
}

func (h *CartHTTP) AddToCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "add.cart")

	inst, err := storefront.FromContext(c)
	if err != nil {
		return fail(l, "add_to_cart_error", err)
	}

	var p cart.Product
	if err := c.Bind(&p); err != nil {
		l.Warn("add_to_cart_error", "status", http.StatusBadRequest, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if strings.TrimSpace(p.ID) == "" {
		return fail(l, "add_to_cart_error", fmt.Errorf("product id is required: %w", cart.ErrValidation))
	}

	m, err := inst.Backend().Medicine(ctx, p.ID)
	if err != nil {
		return fail(l, "add_to_cart_error", err)
	}
	if m.ID == "" {
		m.ID = p.ID
	}
	p = productFromMedicine(m, p.Extra)

	items, err := inst.Cart().AddToCart(ctx, p)
	if err != nil {
		return fail(l, "add_to_cart_error", err)
	}
	h.publish(ctx, l, inst, "add_cart_item", p.ID, items)

	l.Info("item added to cart", "item_id", p.ID)
	return c.JSON(http.StatusCreated, viewCart(items))
}

// catalogKeys are cart line fields owned by the catalog. Client values for
// them are replaced.
var catalogKeys = []string{"image", "company", "genericName", "category", "massUnit", "stock", "sellerEmail", "discount"}

// productFromMedicine prices a cart line from the catalog record. Only
// display fields the catalog does not own pass through from the client.
func productFromMedicine(m backend.Medicine, extra map[string]any) cart.Product {
	extra = maps.Clone(extra)
	if extra == nil {
		extra = map[string]any{}
	}
	for _, k := range catalogKeys {
		delete(extra, k)
	}
	set := func(k, v string) {
		if v != "" {
			extra[k] = v
		}
	}
	set("image", m.Image)
	set("company", m.Company)
	set("genericName", m.GenericName)
	set("category", m.Category)
	set("massUnit", m.MassUnit)
	set("sellerEmail", m.SellerEmail)
	extra["stock"] = m.Stock
	if m.Discount > 0 {
		extra["discount"] = m.Discount
	}

	p := cart.Product{
		ID:        m.ID,
		Name:      m.Name,
		UnitPrice: cents(m.FinalPrice()),
		Extra:     extra,
	}
	switch {
	case m.Discount > 0:
		orig := m.Price
		p.OriginalPrice = &orig
	case m.OriginalPrice != nil && *m.OriginalPrice > p.UnitPrice:
		orig := *m.OriginalPrice
		p.OriginalPrice = &orig
	}
	return p
}

func (h *CartHTTP) UpdateQuantity(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "update.cart.quantity")

	inst, err := storefront.FromContext(c)
	if err != nil {
		return fail(l, "update_quantity_error", err)
	}

	var req struct {
		Delta int `json:"delta"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("update_quantity_error", "status", http.StatusBadRequest, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	id := c.Param("id")
	items, err := inst.Cart().UpdateQuantity(ctx, id, req.Delta)
	if err != nil {
		return fail(l, "update_quantity_error", err)
	}
	h.publish(ctx, l, inst, "update_cart_quantity", id, items)

	return c.JSON(http.StatusOK, viewCart(items))
}

func (h *CartHTTP) RemoveItem(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "remove.cart.item")

	inst, err := storefront.FromContext(c)
	if err != nil {
		return fail(l, "remove_item_error", err)
	}

	id := c.Param("id")
	items, err := inst.Cart().RemoveItem(ctx, id)
	if err != nil {
		return fail(l, "remove_item_error", err)
	}
	h.publish(ctx, l, inst, "remove_cart_item", id, items)

	return c.JSON(http.StatusOK, viewCart(items))
}

func (h *CartHTTP) ClearCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "clear.cart")

	inst, err := storefront.FromContext(c)
	if err != nil {
		return fail(l, "clear_cart_error", err)
	}

	items, err := inst.Cart().ClearCart(ctx)
	if err != nil {
		return fail(l, "clear_cart_error", err)
	}
	h.publish(ctx, l, inst, "clear_cart", "", items)

	l.Info("cart cleared")
	return c.JSON(http.StatusOK, viewCart(items))
}

func (h *CartHTTP) publish(ctx context.Context, l *slog.Logger, inst *storefront.Instance, typ, itemID string, items []cart.CartItem) {
	ev := events.CartEvent{
		Type:      typ,
		VisitorID: inst.VisitorID(),
		Email:     inst.Session().Email(),
		ItemID:    itemID,
		Lines:     len(items),
		At:        time.Now(),
	}
	for _, it := range items {
		if it.ID == itemID {
			ev.Quantity = it.Quantity
		}
	}
	events.Emit(ctx, h.Events, l, events.TopicCart, inst.VisitorID(), ev)
}
