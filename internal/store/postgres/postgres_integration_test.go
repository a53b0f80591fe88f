package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vishnucreator46/SmartTax-Hackthon/internal/domain"
	"github.com/vishnucreator46/SmartTax-Hackthon/internal/store"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("SMARTTAX_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set SMARTTAX_TEST_DATABASE_URL to run postgres integration test")
	}

	s, err := New(context.Background(), databaseURL)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	require.NoError(t, s.Migrate())
	return s
}

func TestDecrementStockIsConditional(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	id := fmt.Sprintf("it-product-%d", time.Now().UnixNano())
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	})
	require.NoError(t, s.UpsertProduct(ctx, domain.Product{ID: id, Name: "Integration Soap", UnitCost: decimal.RequireFromString("40.50"), TaxRate: 18, Stock: 3}))

	err := s.DecrementStock(ctx, id, 5)
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	stock, err := s.GetStock(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, stock)

	require.NoError(t, s.DecrementStock(ctx, id, 2))
	stock, err = s.GetStock(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, stock)

	p, err := s.GetProduct(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "40.5", p.UnitCost.String())
	assert.Equal(t, domain.TaxRate(18), p.TaxRate)

	assert.ErrorIs(t, s.DecrementStock(ctx, "it-missing-product", 1), store.ErrNotFound)
}

func TestAppendSaleIdempotencyAndScan(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	key := fmt.Sprintf("it-idem-%d", time.Now().UnixNano())
	now := time.Now().UTC().Truncate(time.Second)
	version := domain.CurrentSaleSchema
	doc := domain.SaleDocument{
		SchemaVersion:  &version,
		TaxStrategy:    string(domain.TaxStrategyPerItem),
		IdempotencyKey: key,
		Items:          []domain.SaleItem{{ProductID: "p1", Name: "Soap", Cost: 100, TaxRate: 18, Quantity: 1}},
		Subtotal:       domain.Float(100),
		GSTAmount:      domain.Float(18),
		Total:          domain.Float(118),
		Cashier:        "cashier@example.com",
		Timestamp:      &now,
	}

	id, err := s.AppendSale(ctx, doc)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id)
	})

	again, err := s.AppendSale(ctx, doc)
	require.ErrorIs(t, err, store.ErrDuplicateSale)
	assert.Equal(t, id, again)

	found, err := s.FindSaleByIdempotencyKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, id, found.ID)
	require.NotNil(t, found.Total)
	assert.InDelta(t, 118, *found.Total, 0.0001)
	require.NotNil(t, found.Timestamp)
	assert.True(t, now.Equal(*found.Timestamp))

	sales, err := s.ScanSales(ctx)
	require.NoError(t, err)
	var seen bool
	for _, sale := range sales {
		if sale.ID == id {
			seen = true
		}
	}
	assert.True(t, seen)
}

func TestScanSalesSkipsUnreadableDocument(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	id := fmt.Sprintf("it-broken-%d", time.Now().UnixNano())
	_, err := s.db.ExecContext(ctx, `INSERT INTO sales (id, document) VALUES ($1, $2)`, id, `{"total": "n/a"}`)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id)
	})

	sales, err := s.ScanSales(ctx)
	require.NoError(t, err)

	var broken *domain.SaleDocument
	for i := range sales {
		if sales[i].ID == id {
			broken = &sales[i]
		}
	}
	require.NotNil(t, broken)
	assert.NotEmpty(t, broken.DecodeError)
}
