package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/vishnucreator46/SmartTax-Hackthon/internal/domain"
	"github.com/vishnucreator46/SmartTax-Hackthon/internal/store"
	"github.com/vishnucreator46/SmartTax-Hackthon/internal/xid"
)

//go:embed migrations/*.sql
var migrations embed.FS

var _ store.Repository = (*Store)(nil)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate() error {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("could not open migrations: %w", err)
	}
	driver, err := pgxmigrate.WithInstance(s.db, &pgxmigrate.Config{
		MigrationsTable: "smarttax_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, cost, qnty, tax_rate, COALESCE(img, '')
		FROM products
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.UnitCost, &p.Stock, &p.TaxRate, &p.Image); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, cost, qnty, tax_rate, COALESCE(img, '')
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.UnitCost, &p.Stock, &p.TaxRate, &p.Image)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertProduct is used by catalog seeding and tests.
func (s *Store) UpsertProduct(ctx context.Context, p domain.Product) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, cost, qnty, tax_rate, img, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (id)
		DO UPDATE SET name = EXCLUDED.name, cost = EXCLUDED.cost, qnty = EXCLUDED.qnty,
			tax_rate = EXCLUDED.tax_rate, img = EXCLUDED.img, updated_at = now()
	`, p.ID, p.Name, p.UnitCost, p.Stock, int(p.TaxRate), nullIfEmpty(p.Image))
	return err
}

func (s *Store) GetStock(ctx context.Context, productID string) (int, error) {
	var qty int
	err := s.db.QueryRowContext(ctx, `SELECT qnty FROM products WHERE id = $1`, productID).Scan(&qty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return qty, nil
}

// DecrementStock relies on the row lock taken by a single UPDATE; the guard in
// the WHERE clause keeps concurrent sessions from overselling.
func (s *Store) DecrementStock(ctx context.Context, productID string, amount int) error {
	if amount < 1 {
		return store.ErrInvalidQuantity
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET qnty = qnty - $1, updated_at = now()
		WHERE id = $2 AND qnty >= $1
	`, amount, productID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	stock, err := s.GetStock(ctx, productID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s has %d, need %d", store.ErrInsufficientStock, productID, stock, amount)
}

func (s *Store) AppendSale(ctx context.Context, doc domain.SaleDocument) (string, error) {
	if doc.ID == "" {
		doc.ID = xid.New("sale")
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sales (id, idempotency_key, document, recorded_at)
		VALUES ($1, $2, $3, now())
	`, doc.ID, nullIfEmpty(doc.IdempotencyKey), payload)
	if err != nil {
		if isUniqueViolation(err) && doc.IdempotencyKey != "" {
			existing, lookupErr := s.FindSaleByIdempotencyKey(ctx, doc.IdempotencyKey)
			if lookupErr == nil {
				return existing.ID, store.ErrDuplicateSale
			}
		}
		return "", err
	}
	return doc.ID, nil
}

func (s *Store) FindSaleByIdempotencyKey(ctx context.Context, key string) (*domain.SaleDocument, error) {
	var (
		id      string
		payload []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, document FROM sales WHERE idempotency_key = $1
	`, key).Scan(&id, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeSale(id, payload)
}

func (s *Store) ScanSales(ctx context.Context) ([]domain.SaleDocument, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, document FROM sales`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.SaleDocument, 0, 256)
	for rows.Next() {
		var (
			id      string
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		doc, err := decodeSale(id, payload)
		if err != nil {
			sales = append(sales, domain.SaleDocument{ID: id, DecodeError: err.Error()})
			continue
		}
		sales = append(sales, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, action string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE $1 = '' OR action = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, action, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func decodeSale(id string, payload []byte) (*domain.SaleDocument, error) {
	var doc domain.SaleDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode sale %s: %w", id, err)
	}
	doc.ID = id
	return &doc, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
