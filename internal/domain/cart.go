package domain

import "github.com/google/uuid"

// Option is a priced choice attached to a cart line: a variant or an extra.
type Option struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

// CartItem is one line of a table's cart. Amounts are in minor currency units.
type CartItem struct {
	ID         string   `json:"id"`
	MenuItemID string   `json:"menuItemId"`
	Name       string   `json:"name"`
	Price      int64    `json:"price"`
	Quantity   int      `json:"quantity"`
	Variant    *Option  `json:"variant,omitempty"`
	Extras     []Option `json:"extras,omitempty"`
	Notes      string   `json:"notes,omitempty"`
}

// UnitPrice is the variant price when a variant is chosen, otherwise the menu
// item price, plus every extra.
func (i CartItem) UnitPrice() int64 {
	unit := i.Price
	if i.Variant != nil {
		unit = i.Variant.Price
	}
	for _, e := range i.Extras {
		unit += e.Price
	}
	return unit
}

func (i CartItem) LineTotal() int64 {
	return i.UnitPrice() * int64(i.Quantity)
}

// Cart is the ordered item list of one table.
type Cart struct {
	Tenant string     `json:"tenant"`
	Table  int        `json:"table"`
	Items  []CartItem `json:"items"`
}

func (c Cart) IsEmpty() bool { return len(c.Items) == 0 }

func (c Cart) Subtotal() int64 { return Subtotal(c.Items) }

// ItemCount returns the total quantity across all lines.
func (c Cart) ItemCount() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// AddItem appends item as a new line with a fresh opaque ID. Identical
// selections are not merged. A quantity below 1 becomes 1.
func AddItem(items []CartItem, item CartItem) ([]CartItem, CartItem) {
	item.ID = uuid.NewString()
	if item.Quantity < 1 {
		item.Quantity = 1
	}
	out := make([]CartItem, 0, len(items)+1)
	out = append(out, items...)
	return append(out, item), item
}

// UpdateQuantity adds delta to the quantity of line id, clamped at 1.
// Decrementing a quantity of 1 leaves it at 1; removal is RemoveItem's job.
func UpdateQuantity(items []CartItem, id string, delta int) ([]CartItem, bool) {
	idx := FindItem(items, id)
	if idx < 0 {
		return items, false
	}
	out := append([]CartItem(nil), items...)
	q := out[idx].Quantity + delta
	if q < 1 {
		q = 1
	}
	out[idx].Quantity = q
	return out, true
}

// RemoveItem drops line id, preserving the order of the remaining lines.
func RemoveItem(items []CartItem, id string) ([]CartItem, bool) {
	idx := FindItem(items, id)
	if idx < 0 {
		return items, false
	}
	out := make([]CartItem, 0, len(items)-1)
	out = append(out, items[:idx]...)
	return append(out, items[idx+1:]...), true
}

// FindItem returns the index of line id or -1.
func FindItem(items []CartItem, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

func Subtotal(items []CartItem) int64 {
	var total int64
	for _, it := range items {
		total += it.LineTotal()
	}
	return total
}

// CoversLines reports whether every line of snapshot is still in items with
// at least the snapshot quantity.
func CoversLines(items, snapshot []CartItem) bool {
	for _, s := range snapshot {
		idx := FindItem(items, s.ID)
		if idx < 0 || items[idx].Quantity < s.Quantity {
			return false
		}
	}
	return true
}

// SubtractLines takes the ordered quantities off the matching lines of items.
// A line whose quantity reaches zero is dropped; lines and units added after
// the order are kept.
func SubtractLines(items, ordered []CartItem) []CartItem {
	taken := make(map[string]int, len(ordered))
	for _, o := range ordered {
		taken[o.ID] += o.Quantity
	}
	out := make([]CartItem, 0, len(items))
	for _, it := range items {
		it.Quantity -= taken[it.ID]
		if it.Quantity > 0 {
			out = append(out, it)
		}
	}
	return out
}
