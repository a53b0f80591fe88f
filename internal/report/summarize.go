package report

import (
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/vishnucreator46/SmartTax-Hackthon/internal/domain"
)

const dateLayout = "2006-01-02"

// Summarize reconciles every record into one summary. Records that cannot be
// reconciled count toward Count only and are listed as anomalies. Daily
// buckets use loc; records without a timestamp are left out of the series.
func Summarize(docs []domain.SaleDocument, loc *time.Location, logger logrus.FieldLogger) domain.SalesSummary {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	summary := domain.SalesSummary{
		Count:          len(docs),
		TotalRevenue:   decimal.Zero,
		TotalTax:       decimal.Zero,
		AvgTransaction: decimal.Zero,
		ByRate:         make(map[domain.TaxRate]domain.RateSummary),
		DailySeries:    []domain.DailyRevenue{},
	}
	daily := make(map[string]decimal.Decimal)

	for _, doc := range docs {
		n, err := Normalize(doc)
		if err != nil {
			var inconsistency *AggregationInconsistencyError
			reason := err.Error()
			if errors.As(err, &inconsistency) {
				reason = inconsistency.Reason
			}
			logger.WithFields(logrus.Fields{"sale_id": doc.ID, "reason": reason}).Warn("sale excluded from revenue")
			summary.Anomalies = append(summary.Anomalies, domain.Anomaly{SaleID: doc.ID, Reason: reason})
			continue
		}

		if n.Tier == TierNone {
			logger.WithField("sale_id", doc.ID).Warn("sale revenue has no rate attribution")
			summary.Anomalies = append(summary.Anomalies, domain.Anomaly{SaleID: doc.ID, Reason: "no rate attribution"})
		}

		if n.HasRevenue {
			summary.RevenueCount++
			summary.TotalRevenue = summary.TotalRevenue.Add(n.Revenue)
			summary.TotalTax = summary.TotalTax.Add(n.Tax)

			if n.Timestamp != nil {
				day := n.Timestamp.In(loc).Format(dateLayout)
				daily[day] = daily[day].Add(n.Revenue)
			} else {
				logger.WithField("sale_id", doc.ID).Debug("sale has no timestamp, skipped from daily series")
			}
		}

		for rate, b := range n.ByRate {
			rs := summary.ByRate[rate]
			rs.Count++
			rs.Revenue = rs.Revenue.Add(b.Taxable)
			rs.Tax = rs.Tax.Add(b.Tax)
			summary.ByRate[rate] = rs
		}
	}

	if summary.RevenueCount > 0 {
		summary.AvgTransaction = summary.TotalRevenue.Div(decimal.NewFromInt(int64(summary.RevenueCount)))
	}

	for day, revenue := range daily {
		summary.DailySeries = append(summary.DailySeries, domain.DailyRevenue{Date: day, Revenue: revenue.Round(2)})
	}
	sort.Slice(summary.DailySeries, func(i, j int) bool {
		return summary.DailySeries[i].Date < summary.DailySeries[j].Date
	})

	summary.TotalRevenue = summary.TotalRevenue.Round(2)
	summary.TotalTax = summary.TotalTax.Round(2)
	summary.AvgTransaction = summary.AvgTransaction.Round(2)
	for rate, rs := range summary.ByRate {
		rs.Revenue = rs.Revenue.Round(2)
		rs.Tax = rs.Tax.Round(2)
		summary.ByRate[rate] = rs
	}
	return summary
}

// Recent returns up to limit sales, newest first. Sales without a timestamp sort last.
func Recent(docs []domain.SaleDocument, limit int) []domain.RecentSale {
	sorted := make([]domain.SaleDocument, len(docs))
	copy(sorted, docs)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Timestamp, sorted[j].Timestamp
		switch {
		case a == nil && b == nil:
			return sorted[i].ID > sorted[j].ID
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}

	out := make([]domain.RecentSale, 0, len(sorted))
	for _, doc := range sorted {
		n, _ := Normalize(doc)
		out = append(out, domain.RecentSale{
			ID:           doc.ID,
			Cashier:      cashierName(doc.Cashier),
			CustomerName: doc.CustomerName,
			Timestamp:    doc.Timestamp,
			ItemCount:    n.ItemCount,
			Total:        n.Revenue.Round(2),
			Tax:          n.Tax.Round(2),
			RateLabel:    RateLabel(n),
		})
	}
	return out
}

// RateLabel is the short rate description shown next to a sale.
func RateLabel(n Normalized) string {
	switch len(n.ByRate) {
	case 0:
		return "N/A"
	case 1:
		for rate := range n.ByRate {
			return rate.String()
		}
	}
	return "Mixed"
}

func cashierName(name string) string {
	if name == "" {
		return "Unknown"
	}
	return name
}
