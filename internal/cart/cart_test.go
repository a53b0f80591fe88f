package cart

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vishnucreator46/SmartTax-Hackthon/internal/domain"
	"github.com/vishnucreator46/SmartTax-Hackthon/internal/tax"
)

func testPolicy(t *testing.T) tax.Policy {
	t.Helper()
	p, err := tax.NewPolicy(tax.Settings{Strategy: domain.TaxStrategyPerItem, Rates: []domain.TaxRate{5, 18}})
	require.NoError(t, err)
	return p
}

func testCatalog() Catalog {
	return NewCatalog([]domain.Product{
		{ID: "rice", Name: "Rice 5kg", UnitCost: decimal.NewFromInt(450), TaxRate: 5, Stock: 10},
		{ID: "phone", Name: "Phone", UnitCost: decimal.NewFromInt(2500), TaxRate: 18, Stock: 3},
	})
}

func TestAddItemMergesRepeatedProduct(t *testing.T) {
	c := New(testPolicy(t))
	catalog := testCatalog()

	require.NoError(t, c.AddItem(catalog, "rice"))
	require.NoError(t, c.AddItem(catalog, "phone"))
	require.NoError(t, c.AddItem(catalog, "rice"))

	lines := c.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "rice", lines[0].ProductID)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.Equal(t, 1, lines[1].Quantity)

	b := c.Breakdown()
	assert.Equal(t, "3895.00", tax.Round(b.GrandTotal).StringFixed(2))
}

func TestAddItemUnknownProduct(t *testing.T) {
	c := New(testPolicy(t))

	err := c.AddItem(testCatalog(), "ghost")
	require.ErrorIs(t, err, ErrProductNotFound)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.True(t, c.Empty())
}

func TestAddItemRejectsProductDroppedFromCatalog(t *testing.T) {
	s := NewSession("sess_1", domain.Actor{Username: "kasir-a", Role: domain.RoleCashier}, testCatalog(), testPolicy(t), time.Now())
	require.NoError(t, s.AddItem("rice"))

	s.Catalog = NewCatalog([]domain.Product{
		{ID: "phone", Name: "Phone", UnitCost: decimal.NewFromInt(2500), TaxRate: 18, Stock: 3},
	})

	err := s.AddItem("rice")
	require.ErrorIs(t, err, ErrProductNotFound)
	lines := s.Cart.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 1, lines[0].Quantity)
}

func TestPriceCapturedAtAddTime(t *testing.T) {
	c := New(testPolicy(t))
	catalog := testCatalog()
	require.NoError(t, c.AddItem(catalog, "rice"))

	repriced := catalog["rice"]
	repriced.UnitCost = decimal.NewFromInt(999)
	catalog["rice"] = repriced
	require.NoError(t, c.AddItem(catalog, "rice"))

	lines := c.Lines()
	assert.True(t, lines[0].UnitCost.Equal(decimal.NewFromInt(450)))
	assert.Equal(t, 2, lines[0].Quantity)
}

func TestRemoveItemDropsWholeLine(t *testing.T) {
	c := New(testPolicy(t))
	catalog := testCatalog()
	require.NoError(t, c.AddItem(catalog, "rice"))
	require.NoError(t, c.AddItem(catalog, "rice"))
	require.NoError(t, c.AddItem(catalog, "phone"))

	c.RemoveItem("rice")
	c.RemoveItem("ghost")

	lines := c.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "phone", lines[0].ProductID)

	require.NoError(t, c.AddItem(catalog, "phone"))
	assert.Equal(t, 2, c.Lines()[0].Quantity)
}

func TestClearEmptiesCart(t *testing.T) {
	c := New(testPolicy(t))
	require.NoError(t, c.AddItem(testCatalog(), "rice"))

	c.Clear()

	assert.True(t, c.Empty())
	assert.True(t, c.Breakdown().GrandTotal.IsZero())
}

func TestBreakdownTracksMutations(t *testing.T) {
	c := New(testPolicy(t))
	catalog := testCatalog()
	require.NoError(t, c.AddItem(catalog, "rice"))
	first := c.Breakdown()
	assert.Equal(t, first, c.Breakdown())

	require.NoError(t, c.AddItem(catalog, "rice"))
	assert.True(t, c.Breakdown().Subtotal.Equal(decimal.NewFromInt(900)))
}

func TestSessionsDoNotShareState(t *testing.T) {
	policy := testPolicy(t)
	catalog := testCatalog()
	a := NewSession("a", domain.Actor{Username: "alice"}, catalog, policy, time.Now())
	b := NewSession("b", domain.Actor{Username: "bob"}, catalog, policy, time.Now())

	require.NoError(t, a.AddItem("rice"))
	assert.True(t, b.Cart.Empty())
}

func TestSnapshotRoundTrip(t *testing.T) {
	policy := testPolicy(t)
	s := NewSession("s1", domain.Actor{Username: "alice", Role: domain.RoleCashier}, testCatalog(), policy, time.Unix(1700000000, 0).UTC())
	require.NoError(t, s.AddItem("phone"))
	require.NoError(t, s.AddItem("rice"))
	require.NoError(t, s.AddItem("rice"))

	restored := Restore(s.Snapshot(), policy)

	assert.Equal(t, s.ID, restored.ID)
	assert.Equal(t, s.Cashier, restored.Cashier)
	assert.Equal(t, s.Cart.Lines(), restored.Cart.Lines())
	assert.Len(t, restored.Catalog, 2)

	require.NoError(t, restored.AddItem("phone"))
	assert.Equal(t, 2, restored.Cart.Lines()[0].Quantity)
}
