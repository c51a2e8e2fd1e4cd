package backend

import (
	"context"
	"net/url"
	"strconv"
	"time"
)

// UserRole returns the raw role string the backend stores for email.
func (c *Client) UserRole(ctx context.Context, email string) (string, error) {
	var out struct {
		Role string `json:"role"`
	}
	if err := c.get(ctx, "/users/role/"+seg(email), nil, &out); err != nil {
		return "", err
	}
	return out.Role, nil
}

// SaveUser registers a freshly signed-up user; the backend assigns the role.
func (c *Client) SaveUser(ctx context.Context, u UserRecord) error {
	return c.post(ctx, "/users", u, nil)
}

func (c *Client) Users(ctx context.Context) ([]UserRecord, error) {
	var out []UserRecord
	err := c.get(ctx, "/users", nil, &out)
	return out, err
}

func (c *Client) SetUserRole(ctx context.Context, id, role string) error {
	return c.patch(ctx, "/users/"+seg(id)+"/role", map[string]string{"role": role}, nil)
}

func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	var out []Category
	err := c.get(ctx, "/categories", nil, &out)
	return out, err
}

func (c *Client) CreateCategory(ctx context.Context, cat Category) (Category, error) {
	var out Category
	err := c.post(ctx, "/categories", cat, &out)
	return out, err
}

func (c *Client) UpdateCategory(ctx context.Context, id string, cat Category) (Category, error) {
	var out Category
	err := c.patch(ctx, "/categories/"+seg(id), cat, &out)
	return out, err
}

func (c *Client) DeleteCategory(ctx context.Context, id string) error {
	return c.delete(ctx, "/categories/"+seg(id))
}

func (c *Client) Medicines(ctx context.Context, f MedicineFilter) (MedicinePage, error) {
	q := url.Values{}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.Seller != "" {
		q.Set("seller", f.Seller)
	}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	var out MedicinePage
	err := c.get(ctx, "/medicines", q, &out)
	return out, err
}

func (c *Client) Medicine(ctx context.Context, id string) (Medicine, error) {
	var out Medicine
	err := c.get(ctx, "/medicines/"+seg(id), nil, &out)
	return out, err
}

func (c *Client) CreateMedicine(ctx context.Context, m Medicine) (Medicine, error) {
	var out Medicine
	err := c.post(ctx, "/medicines", m, &out)
	return out, err
}

func (c *Client) UpdateMedicine(ctx context.Context, id string, m Medicine) (Medicine, error) {
	var out Medicine
	err := c.patch(ctx, "/medicines/"+seg(id), m, &out)
	return out, err
}

func (c *Client) DeleteMedicine(ctx context.Context, id string) error {
	return c.delete(ctx, "/medicines/"+seg(id))
}

func (c *Client) Orders(ctx context.Context, email string) ([]Order, error) {
	q := url.Values{}
	if email != "" {
		q.Set("email", email)
	}
	var out []Order
	err := c.get(ctx, "/orders", q, &out)
	return out, err
}

func (c *Client) CreateOrder(ctx context.Context, o Order) (Order, error) {
	var out Order
	err := c.post(ctx, "/orders", o, &out)
	return out, err
}

func (c *Client) Payments(ctx context.Context, f PaymentFilter) ([]Payment, error) {
	q := url.Values{}
	if f.Email != "" {
		q.Set("email", f.Email)
	}
	if f.Seller != "" {
		q.Set("seller", f.Seller)
	}
	if !f.From.IsZero() {
		q.Set("from", f.From.Format(time.DateOnly))
	}
	if !f.To.IsZero() {
		q.Set("to", f.To.Format(time.DateOnly))
	}
	var out []Payment
	err := c.get(ctx, "/payments", q, &out)
	return out, err
}

func (c *Client) RecordPayment(ctx context.Context, p Payment) (Payment, error) {
	var out Payment
	err := c.post(ctx, "/payments", p, &out)
	return out, err
}

func (c *Client) SetPaymentStatus(ctx context.Context, id, status string) error {
	return c.patch(ctx, "/payments/"+seg(id), map[string]string{"status": status}, nil)
}

func (c *Client) Advertisements(ctx context.Context, activeOnly bool) ([]Advertisement, error) {
	q := url.Values{}
	if activeOnly {
		q.Set("active", "true")
	}
	var out []Advertisement
	err := c.get(ctx, "/advertisements", q, &out)
	return out, err
}

func (c *Client) CreateAdvertisement(ctx context.Context, ad Advertisement) (Advertisement, error) {
	var out Advertisement
	err := c.post(ctx, "/advertisements", ad, &out)
	return out, err
}

func (c *Client) UpdateAdvertisement(ctx context.Context, id string, ad Advertisement) (Advertisement, error) {
	var out Advertisement
	err := c.patch(ctx, "/advertisements/"+seg(id), ad, &out)
	return out, err
}

func (c *Client) DeleteAdvertisement(ctx context.Context, id string) error {
	return c.delete(ctx, "/advertisements/"+seg(id))
}

// CreatePaymentIntent asks the backend for a processor intent of amountMinor
// (cents) and returns its client secret.
func (c *Client) CreatePaymentIntent(ctx context.Context, amountMinor int64) (string, error) {
	var out struct {
		ClientSecret string `json:"clientSecret"`
	}
	if err := c.post(ctx, "/create-payment-intent", map[string]int64{"amount": amountMinor}, &out); err != nil {
		return "", err
	}
	return out.ClientSecret, nil
}
