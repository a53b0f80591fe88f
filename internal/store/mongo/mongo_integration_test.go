package mongo

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/vishnucreator46/SmartTax-Hackthon/internal/domain"
	"github.com/vishnucreator46/SmartTax-Hackthon/internal/store"
)

func setupMongoStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping mongo integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate mongo container: %v", err)
		}
	})

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	s, err := Connect(ctx, uri, "smarttax_test")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestMongoStore(t *testing.T) {
	s := setupMongoStore(t)
	ctx := context.Background()

	t.Run("conditional decrement", func(t *testing.T) {
		require.NoError(t, s.UpsertProduct(ctx, domain.Product{ID: "p1", Name: "Soap", UnitCost: decimal.NewFromInt(40), TaxRate: 18, Stock: 3}))

		err := s.DecrementStock(ctx, "p1", 5)
		require.ErrorIs(t, err, store.ErrInsufficientStock)
		stock, err := s.GetStock(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, 3, stock)

		require.NoError(t, s.DecrementStock(ctx, "p1", 3))
		stock, err = s.GetStock(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, 0, stock)

		assert.ErrorIs(t, s.DecrementStock(ctx, "ghost", 1), store.ErrNotFound)
	})

	t.Run("idempotent append", func(t *testing.T) {
		doc := domain.SaleDocument{IdempotencyKey: "idem-1", Total: domain.Float(118), Cashier: "a@example.com"}
		id, err := s.AppendSale(ctx, doc)
		require.NoError(t, err)

		again, err := s.AppendSale(ctx, doc)
		require.ErrorIs(t, err, store.ErrDuplicateSale)
		assert.Equal(t, id, again)
	})

	t.Run("legacy documents decode", func(t *testing.T) {
		ts := time.Date(2023, 3, 1, 10, 0, 0, 0, time.UTC)
		_, err := s.db.Collection(colSales).InsertOne(ctx, bson.M{
			"_id":       "legacy-1",
			"gstRate":   int32(5),
			"total":     int32(105),
			"gstAmount": int32(5),
			"cashier":   "old@example.com",
			"timestamp": ts,
			"items": bson.A{
				bson.M{"id": "p9", "name": "Tea", "cost": int32(100), "taxRate": int32(5), "quantity": int32(1)},
			},
		})
		require.NoError(t, err)

		sales, err := s.ScanSales(ctx)
		require.NoError(t, err)

		var legacy *domain.SaleDocument
		for i := range sales {
			if sales[i].ID == "legacy-1" {
				legacy = &sales[i]
			}
		}
		require.NotNil(t, legacy)
		require.NotNil(t, legacy.GSTRate)
		assert.InDelta(t, 5, *legacy.GSTRate, 0.0001)
		assert.Equal(t, "p9", legacy.Items[0].Product())
		require.NotNil(t, legacy.Timestamp)
		assert.True(t, ts.Equal(*legacy.Timestamp))
	})

	t.Run("driver generated ids and bad records do not abort the scan", func(t *testing.T) {
		res, err := s.db.Collection(colSales).InsertOne(ctx, bson.M{
			"gstRate":   int32(18),
			"total":     int32(118),
			"gstAmount": int32(18),
		})
		require.NoError(t, err)
		oid, ok := res.InsertedID.(bson.ObjectID)
		require.True(t, ok)

		_, err = s.db.Collection(colSales).InsertOne(ctx, bson.M{"_id": "broken-1", "total": "n/a"})
		require.NoError(t, err)

		sales, err := s.ScanSales(ctx)
		require.NoError(t, err)

		byID := make(map[string]domain.SaleDocument, len(sales))
		for _, sale := range sales {
			byID[sale.ID] = sale
		}
		generated, ok := byID[oid.Hex()]
		require.True(t, ok)
		assert.Empty(t, generated.DecodeError)
		assert.NotEmpty(t, byID["broken-1"].DecodeError)
	})

	t.Run("audit logs", func(t *testing.T) {
		require.NoError(t, s.CreateAuditLog(ctx, domain.AuditLog{Action: domain.AuditActionInventoryAdjustmentFailed, EntityType: "sale", EntityID: "s1"}))
		require.NoError(t, s.CreateAuditLog(ctx, domain.AuditLog{Action: domain.AuditActionCheckout, EntityType: "sale", EntityID: "s2"}))

		logs, err := s.ListAuditLogs(ctx, domain.AuditActionInventoryAdjustmentFailed, 10)
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, "s1", logs[0].EntityID)
	})
}
