package domain

import "time"

// CurrentSaleSchema tags records written by this service. Older records carry no tag.
const CurrentSaleSchema = 2

// SaleItem is one sold line as stored in a sale document. Historical records
// used "id" instead of "productId"; both are read.
type SaleItem struct {
	ProductID string  `json:"productId,omitempty" bson:"productId,omitempty"`
	LegacyID  string  `json:"id,omitempty" bson:"id,omitempty"`
	Name      string  `json:"name" bson:"name"`
	Cost      float64 `json:"cost" bson:"cost"`
	TaxRate   float64 `json:"taxRate" bson:"taxRate"`
	Quantity  int     `json:"quantity" bson:"quantity"`
}

func (i SaleItem) Product() string {
	if i.ProductID != "" {
		return i.ProductID
	}
	return i.LegacyID
}

// SaleDocument is the persisted, immutable record of a completed checkout.
// Every numeric field other than the item list is optional because the
// record shape changed several times; nil means the field was absent.
type SaleDocument struct {
	ID             string             `json:"id" bson:"_id"`
	SchemaVersion  *int               `json:"schemaVersion,omitempty" bson:"schemaVersion,omitempty"`
	TaxStrategy    string             `json:"taxStrategy,omitempty" bson:"taxStrategy,omitempty"`
	IdempotencyKey string             `json:"idempotencyKey,omitempty" bson:"idempotencyKey,omitempty"`
	Items          []SaleItem         `json:"items,omitempty" bson:"items,omitempty"`
	Subtotal       *float64           `json:"subtotal,omitempty" bson:"subtotal,omitempty"`
	Subtotal5      *float64           `json:"subtotal5,omitempty" bson:"subtotal5,omitempty"`
	Subtotal18     *float64           `json:"subtotal18,omitempty" bson:"subtotal18,omitempty"`
	Tax5Total      *float64           `json:"tax5Total,omitempty" bson:"tax5Total,omitempty"`
	Tax18Total     *float64           `json:"tax18Total,omitempty" bson:"tax18Total,omitempty"`
	SubtotalByRate map[string]float64 `json:"subtotalByRate,omitempty" bson:"subtotalByRate,omitempty"`
	TaxByRate      map[string]float64 `json:"taxByRate,omitempty" bson:"taxByRate,omitempty"`
	GSTAmount      *float64           `json:"gstAmount,omitempty" bson:"gstAmount,omitempty"`
	Total          *float64           `json:"total,omitempty" bson:"total,omitempty"`
	GSTRate        *float64           `json:"gstRate,omitempty" bson:"gstRate,omitempty"`
	AppliedTaxRate *float64           `json:"appliedTaxRate,omitempty" bson:"appliedTaxRate,omitempty"`
	Cashier        string             `json:"cashier" bson:"cashier"`
	Timestamp      *time.Time         `json:"timestamp,omitempty" bson:"timestamp,omitempty"`
	CustomerName   string             `json:"customerName,omitempty" bson:"customerName,omitempty"`
	CustomerPhone  string             `json:"customerPhone,omitempty" bson:"customerPhone,omitempty"`

	// DecodeError is set by a store when the raw record could not be read.
	// Only ID is populated in that case.
	DecodeError string `json:"-" bson:"-"`
}

// Float returns a pointer to v, for building documents with optional fields.
func Float(v float64) *float64 {
	return &v
}
