package cart

import (
	"fmt"
	"time"

	"github.com/vishnucreator46/SmartTax-Hackthon/internal/domain"
	"github.com/vishnucreator46/SmartTax-Hackthon/internal/tax"
)

var ErrProductNotFound = fmt.Errorf("product %w", domain.ErrNotFound)

// Catalog is a point-in-time copy of the product list. Prices are read from it
// when a line is added and never again.
type Catalog map[string]domain.Product

func NewCatalog(products []domain.Product) Catalog {
	catalog := make(Catalog, len(products))
	for _, p := range products {
		catalog[p.ID] = p
	}
	return catalog
}

// Cart holds the lines of one in-progress sale. It is not safe for concurrent
// use; the owning session serializes access.
type Cart struct {
	policy tax.Policy
	lines  []domain.CartLine
	index  map[string]int
}

func New(policy tax.Policy) *Cart {
	return &Cart{policy: policy, index: make(map[string]int)}
}

// AddItem adds one unit of productID, merging into an existing line.
func (c *Cart) AddItem(catalog Catalog, productID string) error {
	product, ok := catalog[productID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}

	if i, ok := c.index[productID]; ok {
		c.lines[i].Quantity++
		return nil
	}

	c.index[productID] = len(c.lines)
	c.lines = append(c.lines, domain.CartLine{
		ProductID: product.ID,
		Name:      product.Name,
		UnitCost:  product.UnitCost,
		TaxRate:   product.TaxRate,
		Quantity:  1,
	})
	return nil
}

// RemoveItem drops the whole line. Unknown ids are ignored.
func (c *Cart) RemoveItem(productID string) {
	i, ok := c.index[productID]
	if !ok {
		return
	}
	c.lines = append(c.lines[:i], c.lines[i+1:]...)
	c.reindex()
}

func (c *Cart) Clear() {
	c.lines = nil
	c.index = make(map[string]int)
}

func (c *Cart) Empty() bool {
	return len(c.lines) == 0
}

// Lines returns a copy in insertion order.
func (c *Cart) Lines() []domain.CartLine {
	out := make([]domain.CartLine, len(c.lines))
	copy(out, c.lines)
	return out
}

// Breakdown is recomputed on every call.
func (c *Cart) Breakdown() domain.TaxBreakdown {
	return c.policy.Compute(c.lines)
}

func (c *Cart) restore(lines []domain.CartLine) {
	c.lines = make([]domain.CartLine, 0, len(lines))
	for _, l := range lines {
		if l.ProductID == "" || l.Quantity < 1 {
			continue
		}
		c.lines = append(c.lines, l)
	}
	c.reindex()
}

func (c *Cart) reindex() {
	c.index = make(map[string]int, len(c.lines))
	for i, l := range c.lines {
		c.index[l.ProductID] = i
	}
}

// Session binds a cart to one cashier for the lifetime of a checkout session.
type Session struct {
	ID       string
	Cashier  domain.Actor
	OpenedAt time.Time
	Catalog  Catalog
	Cart     *Cart
}

func NewSession(id string, cashier domain.Actor, catalog Catalog, policy tax.Policy, now time.Time) *Session {
	return &Session{
		ID:       id,
		Cashier:  cashier,
		OpenedAt: now,
		Catalog:  catalog,
		Cart:     New(policy),
	}
}

func (s *Session) AddItem(productID string) error {
	return s.Cart.AddItem(s.Catalog, productID)
}

// Snapshot is the serializable form kept in the session cache.
type Snapshot struct {
	ID       string            `json:"id"`
	Cashier  string            `json:"cashier"`
	Role     string            `json:"role"`
	OpenedAt time.Time         `json:"opened_at"`
	Lines    []domain.CartLine `json:"lines"`
	Catalog  []domain.Product  `json:"catalog"`
}

func (s *Session) Snapshot() Snapshot {
	products := make([]domain.Product, 0, len(s.Catalog))
	for _, p := range s.Catalog {
		products = append(products, p)
	}
	return Snapshot{
		ID:       s.ID,
		Cashier:  s.Cashier.Username,
		Role:     s.Cashier.Role,
		OpenedAt: s.OpenedAt,
		Lines:    s.Cart.Lines(),
		Catalog:  products,
	}
}

func Restore(snap Snapshot, policy tax.Policy) *Session {
	s := NewSession(snap.ID, domain.Actor{Username: snap.Cashier, Role: snap.Role}, NewCatalog(snap.Catalog), policy, snap.OpenedAt)
	s.Cart.restore(snap.Lines)
	return s
}
