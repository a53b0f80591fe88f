package domain

import (
	"errors"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
)

// TaxRate is a whole-number percentage such as 5 or 18.
type TaxRate int

func (r TaxRate) String() string {
	return strconv.Itoa(int(r)) + "%"
}

// Key is the form used for rate-keyed maps inside persisted documents.
func (r TaxRate) Key() string {
	return strconv.Itoa(int(r))
}

// Fraction returns the rate as a multiplier, e.g. 18 -> 0.18.
func (r TaxRate) Fraction() decimal.Decimal {
	return decimal.NewFromInt(int64(r)).Div(decimal.NewFromInt(100))
}

type TaxStrategy string

const (
	TaxStrategyPerItem TaxStrategy = "per_item"
	TaxStrategyBracket TaxStrategy = "bracket"
)

type Product struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	UnitCost decimal.Decimal `json:"unit_cost"`
	TaxRate  TaxRate         `json:"tax_rate"`
	Stock    int             `json:"stock"`
	Image    string          `json:"image,omitempty"`
}

type CartLine struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	TaxRate   TaxRate         `json:"tax_rate"`
	Quantity  int             `json:"quantity"`
}

// LineTotal is unitCost * quantity, unrounded.
func (l CartLine) LineTotal() decimal.Decimal {
	return l.UnitCost.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type TaxBreakdown struct {
	Strategy       TaxStrategy                 `json:"strategy"`
	AppliedRate    *TaxRate                    `json:"applied_rate,omitempty"`
	Subtotal       decimal.Decimal             `json:"subtotal"`
	SubtotalByRate map[TaxRate]decimal.Decimal `json:"subtotal_by_rate"`
	TaxByRate      map[TaxRate]decimal.Decimal `json:"tax_by_rate"`
	TotalTax       decimal.Decimal             `json:"total_tax"`
	GrandTotal     decimal.Decimal             `json:"grand_total"`
}

// Rounded returns a copy with every amount rounded half-up to currency precision.
func (b TaxBreakdown) Rounded() TaxBreakdown {
	out := b
	out.Subtotal = b.Subtotal.Round(2)
	out.TotalTax = b.TotalTax.Round(2)
	out.GrandTotal = b.GrandTotal.Round(2)
	out.SubtotalByRate = make(map[TaxRate]decimal.Decimal, len(b.SubtotalByRate))
	for rate, amount := range b.SubtotalByRate {
		out.SubtotalByRate[rate] = amount.Round(2)
	}
	out.TaxByRate = make(map[TaxRate]decimal.Decimal, len(b.TaxByRate))
	for rate, amount := range b.TaxByRate {
		out.TaxByRate[rate] = amount.Round(2)
	}
	return out
}

type CustomerInfo struct {
	Name  string `json:"customer_name,omitempty"`
	Phone string `json:"customer_phone,omitempty"`
}

type Actor struct {
	Username string
	Role     string
}

const (
	RoleCashier = "cashier"
	RoleAdmin   = "admin"
)

type AuditLog struct {
	ID            string    `json:"id" bson:"_id"`
	ActorUsername string    `json:"actor_username" bson:"actorUsername"`
	ActorRole     string    `json:"actor_role" bson:"actorRole"`
	Action        string    `json:"action" bson:"action"`
	EntityType    string    `json:"entity_type" bson:"entityType"`
	EntityID      string    `json:"entity_id" bson:"entityId"`
	Detail        string    `json:"detail" bson:"detail"`
	CreatedAt     time.Time `json:"created_at" bson:"createdAt"`
}

const (
	AuditActionCheckout                  = "checkout"
	AuditActionInventoryAdjustmentFailed = "inventory_adjustment_failed"
)
