// Package tax computes sales tax for a set of cart lines.
//
// Two strategies exist and are chosen by deployment configuration:
// per-item applies each product's own rate, bracket applies one rate to the
// whole sale depending on whether the subtotal exceeds a threshold. Both
// return the same breakdown shape so callers never branch on strategy.
// Amounts are left unrounded; use Round at persistence or presentation time.
package tax

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vishnucreator46/SmartTax-Hackthon/internal/domain"
)

var ErrInvalidSettings = errors.New("tax: invalid settings")

type Policy interface {
	Strategy() domain.TaxStrategy
	Compute(lines []domain.CartLine) domain.TaxBreakdown
	// Allows reports whether products may carry the rate.
	Allows(rate domain.TaxRate) bool
}

type Settings struct {
	Strategy  domain.TaxStrategy
	Threshold decimal.Decimal
	LowRate   domain.TaxRate
	HighRate  domain.TaxRate
	Rates     []domain.TaxRate
}

func NewPolicy(s Settings) (Policy, error) {
	rates := make(map[domain.TaxRate]struct{}, len(s.Rates))
	for _, rate := range s.Rates {
		if rate < 0 {
			return nil, fmt.Errorf("%w: negative rate %d", ErrInvalidSettings, rate)
		}
		rates[rate] = struct{}{}
	}

	switch s.Strategy {
	case domain.TaxStrategyPerItem, "":
		return perItem{rates: rates}, nil
	case domain.TaxStrategyBracket:
		if s.LowRate < 0 || s.HighRate < s.LowRate {
			return nil, fmt.Errorf("%w: bracket rates low=%d high=%d", ErrInvalidSettings, s.LowRate, s.HighRate)
		}
		if s.Threshold.IsNegative() {
			return nil, fmt.Errorf("%w: negative threshold %s", ErrInvalidSettings, s.Threshold)
		}
		return bracket{
			threshold: s.Threshold,
			low:       s.LowRate,
			high:      s.HighRate,
			rates:     rates,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", ErrInvalidSettings, s.Strategy)
	}
}

// Round applies currency precision: two places, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

type perItem struct {
	rates map[domain.TaxRate]struct{}
}

func (perItem) Strategy() domain.TaxStrategy { return domain.TaxStrategyPerItem }

func (p perItem) Allows(rate domain.TaxRate) bool { return allows(p.rates, rate) }

func (perItem) Compute(lines []domain.CartLine) domain.TaxBreakdown {
	out := emptyBreakdown(domain.TaxStrategyPerItem)
	for _, line := range lines {
		amount := line.LineTotal()
		lineTax := amount.Mul(line.TaxRate.Fraction())

		out.Subtotal = out.Subtotal.Add(amount)
		out.SubtotalByRate[line.TaxRate] = out.SubtotalByRate[line.TaxRate].Add(amount)
		out.TaxByRate[line.TaxRate] = out.TaxByRate[line.TaxRate].Add(lineTax)
		out.TotalTax = out.TotalTax.Add(lineTax)
	}
	out.GrandTotal = out.Subtotal.Add(out.TotalTax)
	return out
}

type bracket struct {
	threshold decimal.Decimal
	low       domain.TaxRate
	high      domain.TaxRate
	rates     map[domain.TaxRate]struct{}
}

func (bracket) Strategy() domain.TaxStrategy { return domain.TaxStrategyBracket }

func (b bracket) Allows(rate domain.TaxRate) bool { return allows(b.rates, rate) }

// Compute ignores each line's nominal rate.
func (b bracket) Compute(lines []domain.CartLine) domain.TaxBreakdown {
	out := emptyBreakdown(domain.TaxStrategyBracket)
	for _, line := range lines {
		out.Subtotal = out.Subtotal.Add(line.LineTotal())
	}

	applied := b.low
	if out.Subtotal.GreaterThan(b.threshold) {
		applied = b.high
	}
	out.AppliedRate = &applied

	if len(lines) > 0 {
		out.TotalTax = out.Subtotal.Mul(applied.Fraction())
		out.SubtotalByRate[applied] = out.Subtotal
		out.TaxByRate[applied] = out.TotalTax
	}
	out.GrandTotal = out.Subtotal.Add(out.TotalTax)
	return out
}

func emptyBreakdown(strategy domain.TaxStrategy) domain.TaxBreakdown {
	return domain.TaxBreakdown{
		Strategy:       strategy,
		Subtotal:       decimal.Zero,
		SubtotalByRate: make(map[domain.TaxRate]decimal.Decimal),
		TaxByRate:      make(map[domain.TaxRate]decimal.Decimal),
		TotalTax:       decimal.Zero,
		GrandTotal:     decimal.Zero,
	}
}

func allows(rates map[domain.TaxRate]struct{}, rate domain.TaxRate) bool {
	if len(rates) == 0 {
		return true
	}
	_, ok := rates[rate]
	return ok
}
