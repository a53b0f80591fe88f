package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vishnucreator46/SmartTax-Hackthon/internal/domain"
	"github.com/vishnucreator46/SmartTax-Hackthon/internal/store"
)

func newStore() *Store {
	return New(domain.Product{ID: "p1", Name: "Soap", UnitCost: decimal.NewFromInt(40), TaxRate: 18, Stock: 3})
}

func TestDecrementRejectsInsufficientStock(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	err := s.DecrementStock(ctx, "p1", 5)
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	stock, err := s.GetStock(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, stock)
}

func TestDecrementToZero(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	require.NoError(t, s.DecrementStock(ctx, "p1", 3))
	stock, err := s.GetStock(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, stock)

	assert.ErrorIs(t, s.DecrementStock(ctx, "p1", 1), store.ErrInsufficientStock)
}

func TestDecrementValidation(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	assert.ErrorIs(t, s.DecrementStock(ctx, "p1", 0), store.ErrInvalidQuantity)
	assert.ErrorIs(t, s.DecrementStock(ctx, "ghost", 1), store.ErrNotFound)
	_, err := s.GetStock(ctx, "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestConcurrentDecrementsNeverOversell(t *testing.T) {
	s := New(domain.Product{ID: "p1", Name: "Soap", Stock: 50})
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 80; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.DecrementStock(ctx, "p1", 1); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	stock, err := s.GetStock(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, stock)
	assert.Equal(t, 50, succeeded)
}

func TestAppendSaleDeduplicatesByIdempotencyKey(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	first, err := s.AppendSale(ctx, domain.SaleDocument{IdempotencyKey: "idem-1", Total: domain.Float(47.2)})
	require.NoError(t, err)
	assert.NotEmpty(t, first)

	second, err := s.AppendSale(ctx, domain.SaleDocument{IdempotencyKey: "idem-1", Total: domain.Float(47.2)})
	require.ErrorIs(t, err, store.ErrDuplicateSale)
	assert.Equal(t, first, second)

	found, err := s.FindSaleByIdempotencyKey(ctx, "idem-1")
	require.NoError(t, err)
	assert.Equal(t, first, found.ID)

	sales, err := s.ScanSales(ctx)
	require.NoError(t, err)
	assert.Len(t, sales, 1)

	_, err = s.FindSaleByIdempotencyKey(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAuditLogsNewestFirstFilteredByAction(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	require.NoError(t, s.CreateAuditLog(ctx, domain.AuditLog{Action: domain.AuditActionCheckout, EntityID: "a"}))
	require.NoError(t, s.CreateAuditLog(ctx, domain.AuditLog{Action: domain.AuditActionInventoryAdjustmentFailed, EntityID: "b"}))
	require.NoError(t, s.CreateAuditLog(ctx, domain.AuditLog{Action: domain.AuditActionCheckout, EntityID: "c"}))

	all, err := s.ListAuditLogs(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].EntityID)

	failures, err := s.ListAuditLogs(ctx, domain.AuditActionInventoryAdjustmentFailed, 10)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "b", failures[0].EntityID)
}
