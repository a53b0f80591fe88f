// Package mongo stores the catalog, the sale ledger and the audit trail in
// MongoDB. Sale documents are kept in the loosely typed shape the cashier
// front end has always written, so older records remain readable as-is.
package mongo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/vishnucreator46/SmartTax-Hackthon/internal/domain"
	"github.com/vishnucreator46/SmartTax-Hackthon/internal/store"
	"github.com/vishnucreator46/SmartTax-Hackthon/internal/xid"
)

const (
	colProducts  = "products"
	colSales     = "sales"
	colAuditLogs = "audit_logs"
)

var _ store.Repository = (*Store)(nil)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// productDocument is the persisted product record.
type productDocument struct {
	ID      string  `bson:"_id"`
	Name    string  `bson:"name"`
	Cost    float64 `bson:"cost"`
	Qnty    int     `bson:"qnty"`
	TaxRate int     `bson:"taxRate"`
	Img     string  `bson:"img,omitempty"`
}

func (d productDocument) toDomain() domain.Product {
	return domain.Product{
		ID:       d.ID,
		Name:     d.Name,
		UnitCost: decimal.NewFromFloat(d.Cost),
		TaxRate:  domain.TaxRate(d.TaxRate),
		Stock:    d.Qnty,
		Image:    d.Img,
	}
}

func Connect(ctx context.Context, uri string, database string) (*Store, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(100).
		SetBSONOptions(&options.BSONOptions{ObjectIDAsHexString: true})

	client, err := mongo.Connect(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &Store{client: client, db: client.Database(database)}, nil
}

// Migrate creates the indexes the store relies on.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		colSales: {
			{
				Keys:    bson.D{{Key: "idempotencyKey", Value: 1}},
				Options: options.Index().SetUnique(true).SetSparse(true),
			},
			{Keys: bson.D{{Key: "timestamp", Value: -1}}},
		},
		colAuditLogs: {
			{Keys: bson.D{{Key: "action", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
	}
	for col, models := range indexes {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	cursor, err := s.db.Collection(colProducts).Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongo: list products: %w", err)
	}
	var docs []productDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo: decode products: %w", err)
	}

	products := make([]domain.Product, 0, len(docs))
	for _, d := range docs {
		products = append(products, d.toDomain())
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var d productDocument
	err := s.db.Collection(colProducts).FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo: get product: %w", err)
	}
	p := d.toDomain()
	return &p, nil
}

// UpsertProduct is used by catalog seeding and tests.
func (s *Store) UpsertProduct(ctx context.Context, p domain.Product) error {
	cost, _ := p.UnitCost.Float64()
	doc := productDocument{ID: p.ID, Name: p.Name, Cost: cost, Qnty: p.Stock, TaxRate: int(p.TaxRate), Img: p.Image}
	_, err := s.db.Collection(colProducts).ReplaceOne(ctx, bson.M{"_id": p.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo: upsert product: %w", err)
	}
	return nil
}

func (s *Store) GetStock(ctx context.Context, productID string) (int, error) {
	p, err := s.GetProduct(ctx, productID)
	if err != nil {
		return 0, err
	}
	return p.Stock, nil
}

// DecrementStock uses a filtered $inc so the check and the write are one
// server-side operation.
func (s *Store) DecrementStock(ctx context.Context, productID string, amount int) error {
	if amount < 1 {
		return store.ErrInvalidQuantity
	}

	res, err := s.db.Collection(colProducts).UpdateOne(ctx,
		bson.M{"_id": productID, "qnty": bson.M{"$gte": amount}},
		bson.M{"$inc": bson.M{"qnty": -amount}},
	)
	if err != nil {
		return fmt.Errorf("mongo: decrement stock: %w", err)
	}
	if res.MatchedCount == 1 {
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
	_, err := s.db.Collection(colSales).InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) && doc.IdempotencyKey != "" {
			existing, lookupErr := s.FindSaleByIdempotencyKey(ctx, doc.IdempotencyKey)
			if lookupErr == nil {
				return existing.ID, store.ErrDuplicateSale
			}
		}
		return "", fmt.Errorf("mongo: append sale: %w", err)
	}
	return doc.ID, nil
}

func (s *Store) FindSaleByIdempotencyKey(ctx context.Context, key string) (*domain.SaleDocument, error) {
	var doc domain.SaleDocument
	err := s.db.Collection(colSales).FindOne(ctx, bson.M{"idempotencyKey": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo: find sale: %w", err)
	}
	return &doc, nil
}

// ScanSales decodes one document at a time. A record that cannot be decoded
// is returned with DecodeError set instead of failing the whole scan.
func (s *Store) ScanSales(ctx context.Context) ([]domain.SaleDocument, error) {
	cursor, err := s.db.Collection(colSales).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("mongo: scan sales: %w", err)
	}
	defer cursor.Close(context.WithoutCancel(ctx))

	sales := make([]domain.SaleDocument, 0, 256)
	for cursor.Next(ctx) {
		sales = append(sales, decodeSale(cursor.Current))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("mongo: scan sales: %w", err)
	}
	return sales, nil
}

// decodeSale reads one raw sale. Driver-generated ObjectID keys are read as
// their hex form.
func decodeSale(raw bson.Raw) domain.SaleDocument {
	dec := bson.NewDecoder(bson.NewDocumentReader(bytes.NewReader(raw)))
	dec.ObjectIDAsHexString()

	var doc domain.SaleDocument
	if err := dec.Decode(&doc); err != nil {
		return domain.SaleDocument{ID: rawID(raw), DecodeError: err.Error()}
	}
	return doc
}

func rawID(raw bson.Raw) string {
	val, err := raw.LookupErr("_id")
	if err != nil {
		return ""
	}
	if oid, ok := val.ObjectIDOK(); ok {
		return oid.Hex()
	}
	if str, ok := val.StringValueOK(); ok {
		return str
	}
	return val.String()
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if _, err := s.db.Collection(colAuditLogs).InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("mongo: create audit log: %w", err)
	}
	return nil
}

func (s *Store) ListAuditLogs(ctx context.Context, action string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	filter := bson.M{}
	if action != "" {
		filter["action"] = action
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.db.Collection(colAuditLogs).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: list audit logs: %w", err)
	}
	logs := make([]domain.AuditLog, 0, limit)
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, fmt.Errorf("mongo: decode audit logs: %w", err)
	}
	for i := range logs {
		logs[i].CreatedAt = logs[i].CreatedAt.UTC()
	}
	return logs, nil
}
