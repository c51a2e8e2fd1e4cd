package cart

import (
	"encoding/json"
	"fmt"
	"maps"
)

// Product is what a shop page hands to AddToCart. Extra carries display
// fields (image, company, stock ceiling, ...) through to the cart line untouched.
type Product struct {
	ID            string
	Name          string
	UnitPrice     float64
	OriginalPrice *float64
	Extra         map[string]any
}

// CartItem is one distinct product line. Quantity is always >= 1.
type CartItem struct {
	ID            string
	Name          string
	UnitPrice     float64
	OriginalPrice *float64
	Quantity      int
	Extra         map[string]any
}

var coreKeys = []string{"id", "name", "unitPrice", "originalPrice", "quantity"}

func itemFromProduct(p Product) CartItem {
	return CartItem{
		ID:            p.ID,
		Name:          p.Name,
		UnitPrice:     p.UnitPrice,
		OriginalPrice: cloneFloat(p.OriginalPrice),
		Quantity:      1,
		Extra:         maps.Clone(p.Extra),
	}
}

func (i CartItem) clone() CartItem {
	i.OriginalPrice = cloneFloat(i.OriginalPrice)
	i.Extra = maps.Clone(i.Extra)
	return i
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// MarshalJSON flattens Extra next to the core fields. Core fields win on
// key collisions.
func (i CartItem) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(i.Extra)+len(coreKeys))
	for k, v := range i.Extra {
		out[k] = v
	}
	out["id"] = i.ID
	out["name"] = i.Name
	out["unitPrice"] = i.UnitPrice
	out["quantity"] = i.Quantity
	if i.OriginalPrice != nil {
		out["originalPrice"] = *i.OriginalPrice
	} else {
		delete(out, "originalPrice")
	}
	return json.Marshal(out)
}

func (i *CartItem) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var item CartItem
	if err := decodeKey(raw, "id", &item.ID); err != nil {
		return err
	}
	if err := decodeKey(raw, "name", &item.Name); err != nil {
		return err
	}
	if err := decodeKey(raw, "unitPrice", &item.UnitPrice); err != nil {
		return err
	}
	if err := decodeKey(raw, "quantity", &item.Quantity); err != nil {
		return err
	}
	if v, ok := raw["originalPrice"]; ok && string(v) != "null" {
		var f float64
		if err := json.Unmarshal(v, &f); err != nil {
			return fmt.Errorf("originalPrice: %w", err)
		}
		item.OriginalPrice = &f
	}

	for _, k := range coreKeys {
		delete(raw, k)
	}
	if len(raw) > 0 {
		item.Extra = make(map[string]any, len(raw))
		for k, v := range raw {
			var val any
			if err := json.Unmarshal(v, &val); err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			item.Extra[k] = val
		}
	}

	*i = item
	return nil
}

// UnmarshalJSON accepts the same flat shape as a cart line; any quantity
// sent by the client is ignored.
func (p *Product) UnmarshalJSON(data []byte) error {
	var item CartItem
	if err := item.UnmarshalJSON(data); err != nil {
		return err
	}
	*p = Product{
		ID:            item.ID,
		Name:          item.Name,
		UnitPrice:     item.UnitPrice,
		OriginalPrice: item.OriginalPrice,
		Extra:         item.Extra,
	}
	return nil
}

func decodeKey(raw map[string]json.RawMessage, key string, dst any) error {
	v, ok := raw[key]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(v, dst); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}
