package report

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vishnucreator46/SmartTax-Hackthon/internal/domain"
)

// Variant is the historical shape a sale record was written in.
type Variant int

const (
	// VariantPerItem records let every line carry its own rate.
	VariantPerItem Variant = iota + 1
	// VariantBracket records apply one sale-level rate chosen by subtotal.
	VariantBracket
	// VariantLegacy records only carry a sale-level gstRate.
	VariantLegacy
)

func (v Variant) String() string {
	switch v {
	case VariantPerItem:
		return "per_item"
	case VariantBracket:
		return "bracket"
	case VariantLegacy:
		return "legacy"
	default:
		return "unknown"
	}
}

// Tier is the source used for the per-rate breakdown of one sale.
type Tier int

const (
	TierNone Tier = iota
	TierItemized
	TierItems
	TierSaleRate
)

func (t Tier) String() string {
	switch t {
	case TierItemized:
		return "itemized"
	case TierItems:
		return "items"
	case TierSaleRate:
		return "sale_rate"
	default:
		return "none"
	}
}

type Bucket struct {
	Taxable decimal.Decimal
	Tax     decimal.Decimal
}

// Normalized is the single canonical shape every sale record is reduced to
// before aggregation.
type Normalized struct {
	ID           string
	Variant      Variant
	Tier         Tier
	HasRevenue   bool
	Revenue      decimal.Decimal
	Tax          decimal.Decimal
	ByRate       map[domain.TaxRate]Bucket
	Timestamp    *time.Time
	ItemCount    int
	Cashier      string
	CustomerName string
}

// AggregationInconsistencyError reports a record from which neither revenue
// nor a rate breakdown can be recovered.
type AggregationInconsistencyError struct {
	SaleID string
	Reason string
}

func (e *AggregationInconsistencyError) Error() string {
	return fmt.Sprintf("sale %s cannot be reconciled: %s", e.SaleID, e.Reason)
}

var one = decimal.NewFromInt(1)

// Classify discriminates the record shape by field presence. Explicit schema
// tags on newer records win over inference.
func Classify(doc domain.SaleDocument) Variant {
	if doc.AppliedTaxRate != nil || doc.TaxStrategy == string(domain.TaxStrategyBracket) {
		return VariantBracket
	}
	if doc.TaxStrategy == string(domain.TaxStrategyPerItem) {
		return VariantPerItem
	}
	if doc.GSTRate != nil && !itemsCarryRates(doc.Items) {
		return VariantLegacy
	}
	return VariantPerItem
}

// Normalize reduces doc to its canonical form. Revenue comes from a non-zero
// total, else from the items. The rate breakdown comes from exactly one tier:
// itemized subtotals, then items, then the sale-level gstRate.
func Normalize(doc domain.SaleDocument) (Normalized, error) {
	if doc.DecodeError != "" {
		return Normalized{ID: doc.ID}, &AggregationInconsistencyError{SaleID: doc.ID, Reason: "unreadable record: " + doc.DecodeError}
	}

	n := Normalized{
		ID:           doc.ID,
		Variant:      Classify(doc),
		ByRate:       make(map[domain.TaxRate]Bucket),
		Timestamp:    doc.Timestamp,
		Cashier:      doc.Cashier,
		CustomerName: doc.CustomerName,
	}
	for _, item := range doc.Items {
		if item.Quantity > 0 {
			n.ItemCount += item.Quantity
		}
	}

	revenueFromTotal := false
	switch {
	case doc.Total != nil && *doc.Total != 0:
		n.Revenue = decimal.NewFromFloat(*doc.Total)
		n.HasRevenue = true
		revenueFromTotal = true
	case hasSoldItems(doc.Items):
		n.Revenue = itemsRevenue(doc, n.Variant)
		n.HasRevenue = true
	}

	switch {
	case fillItemized(doc, n.ByRate):
		n.Tier = TierItemized
	case hasSoldItems(doc.Items):
		fillFromItems(doc, n.Variant, n.ByRate)
		n.Tier = TierItems
	case fillFromSaleRate(doc, n.ByRate):
		n.Tier = TierSaleRate
	}

	if !n.HasRevenue && n.Tier != TierNone {
		// Totals are missing but a breakdown survived; revenue is what it sums to.
		for _, b := range n.ByRate {
			n.Revenue = n.Revenue.Add(b.Taxable).Add(b.Tax)
		}
		n.HasRevenue = !n.Revenue.IsZero()
	}

	switch {
	case revenueFromTotal && doc.GSTAmount != nil:
		n.Tax = decimal.NewFromFloat(*doc.GSTAmount)
	case n.Tier != TierNone:
		for _, b := range n.ByRate {
			n.Tax = n.Tax.Add(b.Tax)
		}
	case doc.GSTAmount != nil:
		n.Tax = decimal.NewFromFloat(*doc.GSTAmount)
	}

	if !n.HasRevenue && n.Tier == TierNone {
		return n, &AggregationInconsistencyError{SaleID: doc.ID, Reason: "no total, items or rate fields"}
	}
	return n, nil
}

func itemsCarryRates(items []domain.SaleItem) bool {
	for _, item := range items {
		if item.TaxRate > 0 {
			return true
		}
	}
	return false
}

func hasSoldItems(items []domain.SaleItem) bool {
	for _, item := range items {
		if item.Quantity > 0 {
			return true
		}
	}
	return false
}

// itemRate is the rate actually charged on item. Bracket records only copy
// the sale-level rate onto lines, so the sale-level value is authoritative.
func itemRate(doc domain.SaleDocument, variant Variant, item domain.SaleItem) domain.TaxRate {
	switch variant {
	case VariantBracket:
		if doc.AppliedTaxRate != nil {
			return toRate(*doc.AppliedTaxRate)
		}
	case VariantLegacy:
		if doc.GSTRate != nil {
			return toRate(*doc.GSTRate)
		}
	}
	return toRate(item.TaxRate)
}

func itemsRevenue(doc domain.SaleDocument, variant Variant) decimal.Decimal {
	revenue := decimal.Zero
	for _, item := range doc.Items {
		if item.Quantity < 1 {
			continue
		}
		taxable := lineAmount(item)
		rate := itemRate(doc, variant, item)
		revenue = revenue.Add(taxable.Mul(one.Add(rate.Fraction())))
	}
	return revenue
}

func fillFromItems(doc domain.SaleDocument, variant Variant, out map[domain.TaxRate]Bucket) {
	for _, item := range doc.Items {
		if item.Quantity < 1 {
			continue
		}
		taxable := lineAmount(item)
		rate := itemRate(doc, variant, item)
		b := out[rate]
		b.Taxable = b.Taxable.Add(taxable)
		b.Tax = b.Tax.Add(taxable.Mul(rate.Fraction()))
		out[rate] = b
	}
}

// fillItemized reads the stored per-rate subtotals. The rate-keyed maps are
// preferred over the fixed 5/18 fields so a record holding both is not counted twice.
func fillItemized(doc domain.SaleDocument, out map[domain.TaxRate]Bucket) bool {
	if anyNonZero(doc.SubtotalByRate) || anyNonZero(doc.TaxByRate) {
		for key, v := range doc.SubtotalByRate {
			if rate, ok := parseRateKey(key); ok {
				b := out[rate]
				b.Taxable = b.Taxable.Add(decimal.NewFromFloat(v))
				out[rate] = b
			}
		}
		for key, v := range doc.TaxByRate {
			if rate, ok := parseRateKey(key); ok {
				b := out[rate]
				b.Tax = b.Tax.Add(decimal.NewFromFloat(v))
				out[rate] = b
			}
		}
		dropEmpty(out)
		return true
	}

	legacy := []struct {
		rate     domain.TaxRate
		subtotal *float64
		tax      *float64
	}{
		{5, doc.Subtotal5, doc.Tax5Total},
		{18, doc.Subtotal18, doc.Tax18Total},
	}
	found := false
	for _, f := range legacy {
		if nonZero(f.subtotal) || nonZero(f.tax) {
			found = true
		}
	}
	if !found {
		return false
	}
	for _, f := range legacy {
		b := Bucket{Taxable: decimal.Zero, Tax: decimal.Zero}
		if f.subtotal != nil {
			b.Taxable = decimal.NewFromFloat(*f.subtotal)
		}
		if f.tax != nil {
			b.Tax = decimal.NewFromFloat(*f.tax)
		}
		out[f.rate] = b
	}
	dropEmpty(out)
	return true
}

func fillFromSaleRate(doc domain.SaleDocument, out map[domain.TaxRate]Bucket) bool {
	if doc.GSTRate == nil {
		return false
	}
	rate := toRate(*doc.GSTRate)

	var taxable, tax decimal.Decimal
	switch {
	case nonZero(doc.Total) && doc.GSTAmount != nil:
		tax = decimal.NewFromFloat(*doc.GSTAmount)
		taxable = decimal.NewFromFloat(*doc.Total).Sub(tax)
	case nonZero(doc.Subtotal):
		taxable = decimal.NewFromFloat(*doc.Subtotal)
		if doc.GSTAmount != nil {
			tax = decimal.NewFromFloat(*doc.GSTAmount)
		} else {
			tax = taxable.Mul(rate.Fraction())
		}
	case nonZero(doc.Total):
		total := decimal.NewFromFloat(*doc.Total)
		taxable = total.Div(one.Add(rate.Fraction()))
		tax = total.Sub(taxable)
	default:
		return false
	}
	out[rate] = Bucket{Taxable: taxable, Tax: tax}
	return true
}

func lineAmount(item domain.SaleItem) decimal.Decimal {
	return decimal.NewFromFloat(item.Cost).Mul(decimal.NewFromInt(int64(item.Quantity)))
}

func toRate(v float64) domain.TaxRate {
	return domain.TaxRate(int(math.Round(v)))
}

func parseRateKey(key string) (domain.TaxRate, bool) {
	v, err := strconv.ParseFloat(key, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return toRate(v), true
}

func anyNonZero(m map[string]float64) bool {
	for _, v := range m {
		if v != 0 {
			return true
		}
	}
	return false
}

func nonZero(v *float64) bool {
	return v != nil && *v != 0
}

func dropEmpty(out map[domain.TaxRate]Bucket) {
	for rate, b := range out {
		if b.Taxable.IsZero() && b.Tax.IsZero() {
			delete(out, rate)
		}
	}
}
