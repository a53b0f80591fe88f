package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type RateSummary struct {
	Count   int             `json:"count"`
	Revenue decimal.Decimal `json:"revenue"`
	Tax     decimal.Decimal `json:"tax"`
}

type DailyRevenue struct {
	Date    string          `json:"date"`
	Revenue decimal.Decimal `json:"revenue"`
}

// Anomaly marks a sale record that could not be reconciled.
type Anomaly struct {
	SaleID string `json:"sale_id"`
	Reason string `json:"reason"`
}

type SalesSummary struct {
	Count          int                     `json:"count"`
	RevenueCount   int                     `json:"revenue_count"`
	TotalRevenue   decimal.Decimal         `json:"total_revenue"`
	TotalTax       decimal.Decimal         `json:"total_tax"`
	AvgTransaction decimal.Decimal         `json:"avg_transaction"`
	ByRate         map[TaxRate]RateSummary `json:"by_rate"`
	DailySeries    []DailyRevenue          `json:"daily_series"`
	Anomalies      []Anomaly               `json:"anomalies,omitempty"`
	GeneratedAt    time.Time               `json:"generated_at"`
}

type RecentSale struct {
	ID           string          `json:"id"`
	Cashier      string          `json:"cashier"`
	CustomerName string          `json:"customer_name,omitempty"`
	Timestamp    *time.Time      `json:"timestamp,omitempty"`
	ItemCount    int             `json:"item_count"`
	Total        decimal.Decimal `json:"total"`
	Tax          decimal.Decimal `json:"tax"`
	RateLabel    string          `json:"rate_label"`
}
