package store

import (
	"context"
	"errors"

	"github.com/vishnucreator46/SmartTax-Hackthon/internal/domain"
)

var (
	ErrNotFound          = domain.ErrNotFound
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrDuplicateSale     = errors.New("duplicate sale")
)

type Catalog interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

// InventoryStore holds stock counts. Each call is atomic for one product;
// nothing spans several products.
type InventoryStore interface {
	// GetStock returns ErrNotFound for unknown products.
	GetStock(ctx context.Context, productID string) (int, error)
	// DecrementStock removes amount units. It fails with ErrInsufficientStock,
	// leaving the count untouched, when fewer than amount units remain.
	DecrementStock(ctx context.Context, productID string, amount int) error
}

// SaleLedger is append-only.
type SaleLedger interface {
	// AppendSale stores doc and returns its id. When doc carries an idempotency
	// key that is already recorded it returns the existing id and ErrDuplicateSale.
	AppendSale(ctx context.Context, doc domain.SaleDocument) (string, error)
	FindSaleByIdempotencyKey(ctx context.Context, key string) (*domain.SaleDocument, error)
	// ScanSales returns every sale in no particular order.
	ScanSales(ctx context.Context) ([]domain.SaleDocument, error)
}

type AuditLog interface {
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, action string, limit int) ([]domain.AuditLog, error)
}

type Repository interface {
	Catalog
	InventoryStore
	SaleLedger
	AuditLog
}
