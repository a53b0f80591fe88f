package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vishnucreator46/SmartTax-Hackthon/internal/domain"
	"github.com/vishnucreator46/SmartTax-Hackthon/internal/store"
	"github.com/vishnucreator46/SmartTax-Hackthon/internal/xid"
)

var _ store.Repository = (*Store)(nil)

type Store struct {
	mu          sync.RWMutex
	products    map[string]domain.Product
	sales       []domain.SaleDocument
	salesByIdem map[string]string
	auditLogs   []domain.AuditLog
}

func New(products ...domain.Product) *Store {
	s := &Store{
		products:    make(map[string]domain.Product, len(products)),
		salesByIdem: make(map[string]string),
	}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

// NewSeeded returns a store holding the demo catalog used for local runs.
func NewSeeded() *Store {
	return New(
		domain.Product{ID: "rice-5kg", Name: "Basmati Rice 5kg", UnitCost: decimal.NewFromInt(450), TaxRate: 5, Stock: 40},
		domain.Product{ID: "atta-10kg", Name: "Wheat Atta 10kg", UnitCost: decimal.NewFromInt(520), TaxRate: 5, Stock: 30},
		domain.Product{ID: "ghee-1l", Name: "Desi Ghee 1L", UnitCost: decimal.NewFromInt(640), TaxRate: 5, Stock: 25},
		domain.Product{ID: "tea-500g", Name: "Assam Tea 500g", UnitCost: decimal.NewFromInt(260), TaxRate: 5, Stock: 60},
		domain.Product{ID: "shampoo-400ml", Name: "Shampoo 400ml", UnitCost: decimal.NewFromInt(349), TaxRate: 18, Stock: 35},
		domain.Product{ID: "detergent-2kg", Name: "Detergent 2kg", UnitCost: decimal.NewFromInt(399), TaxRate: 18, Stock: 20},
		domain.Product{ID: "earbuds", Name: "Wireless Earbuds", UnitCost: decimal.NewFromInt(2500), TaxRate: 18, Stock: 8},
		domain.Product{ID: "kettle", Name: "Electric Kettle", UnitCost: decimal.NewFromInt(1299), TaxRate: 18, Stock: 12},
	)
}

// Seed appends historical sale documents as-is, bypassing id assignment.
func (s *Store) Seed(docs ...domain.SaleDocument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range docs {
		if doc.ID == "" {
			doc.ID = xid.New("sale")
		}
		s.sales = append(s.sales, doc)
		if doc.IdempotencyKey != "" {
			s.salesByIdem[doc.IdempotencyKey] = doc.ID
		}
	}
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool {
		return strings.ToLower(products[i].Name) < strings.ToLower(products[j].Name)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) GetStock(_ context.Context, productID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[productID]
	if !ok {
		return 0, store.ErrNotFound
	}
	return p.Stock, nil
}

func (s *Store) DecrementStock(_ context.Context, productID string, amount int) error {
	if amount < 1 {
		return store.ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return store.ErrNotFound
	}
	if p.Stock < amount {
		return fmt.Errorf("%w: %s has %d, need %d", store.ErrInsufficientStock, productID, p.Stock, amount)
	}
	p.Stock -= amount
	s.products[productID] = p
	return nil
}

func (s *Store) AppendSale(_ context.Context, doc domain.SaleDocument) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc.IdempotencyKey != "" {
		if existing, ok := s.salesByIdem[doc.IdempotencyKey]; ok {
			return existing, store.ErrDuplicateSale
		}
	}
	if doc.ID == "" {
		doc.ID = xid.New("sale")
	}
	doc.Items = append([]domain.SaleItem(nil), doc.Items...)

	s.sales = append(s.sales, doc)
	if doc.IdempotencyKey != "" {
		s.salesByIdem[doc.IdempotencyKey] = doc.ID
	}
	return doc.ID, nil
}

func (s *Store) FindSaleByIdempotencyKey(_ context.Context, key string) (*domain.SaleDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.salesByIdem[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	for i := range s.sales {
		if s.sales[i].ID == id {
			doc := s.sales[i]
			return &doc, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ScanSales(_ context.Context) ([]domain.SaleDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.SaleDocument, len(s.sales))
	copy(out, s.sales)
	return out, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, action string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0 && len(logs) < limit; i-- {
		entry := s.auditLogs[i]
		if action != "" && entry.Action != action {
			continue
		}
		logs = append(logs, entry)
	}
	return logs, nil
}
