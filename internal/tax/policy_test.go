package tax

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vishnucreator46/SmartTax-Hackthon/internal/domain"
)

func defaultSettings(strategy domain.TaxStrategy) Settings {
	return Settings{
		Strategy:  strategy,
		Threshold: decimal.NewFromInt(2500),
		LowRate:   5,
		HighRate:  18,
		Rates:     []domain.TaxRate{5, 18},
	}
}

func mustPolicy(t *testing.T, strategy domain.TaxStrategy) Policy {
	t.Helper()
	p, err := NewPolicy(defaultSettings(strategy))
	require.NoError(t, err)
	return p
}

func line(id string, cost string, rate domain.TaxRate, qty int) domain.CartLine {
	return domain.CartLine{ProductID: id, Name: id, UnitCost: decimal.RequireFromString(cost), TaxRate: rate, Quantity: qty}
}

func mixedCart() []domain.CartLine {
	return []domain.CartLine{
		line("p1", "450", 5, 2),
		line("p2", "2500", 18, 1),
	}
}

func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func TestPerItemMixedCart(t *testing.T) {
	b := mustPolicy(t, domain.TaxStrategyPerItem).Compute(mixedCart())

	assertAmount(t, "3400", b.Subtotal)
	assertAmount(t, "900", b.SubtotalByRate[5])
	assertAmount(t, "2500", b.SubtotalByRate[18])
	assertAmount(t, "45", b.TaxByRate[5])
	assertAmount(t, "450", b.TaxByRate[18])
	assertAmount(t, "495", b.TotalTax)
	assert.Equal(t, "3895.00", Round(b.GrandTotal).StringFixed(2))
	assert.Nil(t, b.AppliedRate)
}

func TestBracketMixedCart(t *testing.T) {
	b := mustPolicy(t, domain.TaxStrategyBracket).Compute(mixedCart())

	require.NotNil(t, b.AppliedRate)
	assert.Equal(t, domain.TaxRate(18), *b.AppliedRate)
	assert.Equal(t, "612.00", Round(b.TotalTax).StringFixed(2))
	assert.Equal(t, "4012.00", Round(b.GrandTotal).StringFixed(2))
	assert.Len(t, b.SubtotalByRate, 1)
	assertAmount(t, "3400", b.SubtotalByRate[18])
	assertAmount(t, "612", b.TaxByRate[18])
}

func TestBracketThresholdIsExclusive(t *testing.T) {
	p := mustPolicy(t, domain.TaxStrategyBracket)

	atThreshold := p.Compute([]domain.CartLine{line("p", "2500", 18, 1)})
	require.NotNil(t, atThreshold.AppliedRate)
	assert.Equal(t, domain.TaxRate(5), *atThreshold.AppliedRate)
	assertAmount(t, "125", atThreshold.TotalTax)

	above := p.Compute([]domain.CartLine{line("p", "2500.01", 5, 1)})
	assert.Equal(t, domain.TaxRate(18), *above.AppliedRate)
}

func TestEmptyCartIsAllZero(t *testing.T) {
	for _, strategy := range []domain.TaxStrategy{domain.TaxStrategyPerItem, domain.TaxStrategyBracket} {
		b := mustPolicy(t, strategy).Compute(nil)
		assert.True(t, b.Subtotal.IsZero(), strategy)
		assert.True(t, b.TotalTax.IsZero(), strategy)
		assert.True(t, b.GrandTotal.IsZero(), strategy)
		assert.Empty(t, b.SubtotalByRate, strategy)
		assert.Empty(t, b.TaxByRate, strategy)
	}
}

func TestRandomCartsHoldInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	perItem := mustPolicy(t, domain.TaxStrategyPerItem)
	bracketPolicy := mustPolicy(t, domain.TaxStrategyBracket)
	threshold := decimal.NewFromInt(2500)
	tolerance := decimal.RequireFromString("0.01")

	for i := 0; i < 500; i++ {
		lines := make([]domain.CartLine, 0, 6)
		for j := 0; j < 1+rng.Intn(6); j++ {
			rate := domain.TaxRate(5)
			if rng.Intn(2) == 1 {
				rate = 18
			}
			cost := decimal.New(int64(rng.Intn(200000)), -2)
			lines = append(lines, domain.CartLine{ProductID: "p", UnitCost: cost, TaxRate: rate, Quantity: 1 + rng.Intn(5)})
		}

		pb := perItem.Compute(lines)
		expectedTax := decimal.Zero
		for _, l := range lines {
			expectedTax = expectedTax.Add(l.LineTotal().Mul(l.TaxRate.Fraction()))
		}
		require.True(t, pb.TotalTax.Equal(expectedTax))
		sum := decimal.Zero
		for _, v := range pb.SubtotalByRate {
			sum = sum.Add(v)
		}
		require.True(t, sum.Equal(pb.Subtotal))

		bb := bracketPolicy.Compute(lines)
		require.NotNil(t, bb.AppliedRate)
		if bb.Subtotal.GreaterThan(threshold) {
			require.Equal(t, domain.TaxRate(18), *bb.AppliedRate)
		} else {
			require.Equal(t, domain.TaxRate(5), *bb.AppliedRate)
		}
		want := bb.Subtotal.Add(bb.Subtotal.Mul(bb.AppliedRate.Fraction()))
		require.True(t, Round(bb.GrandTotal).Sub(want).Abs().LessThanOrEqual(tolerance))
	}
}

func TestComputeIsIdempotent(t *testing.T) {
	p := mustPolicy(t, domain.TaxStrategyPerItem)
	lines := mixedCart()
	assert.Equal(t, p.Compute(lines), p.Compute(lines))
}

func TestNewPolicyRejectsBadSettings(t *testing.T) {
	_, err := NewPolicy(Settings{Strategy: "flat"})
	assert.ErrorIs(t, err, ErrInvalidSettings)

	s := defaultSettings(domain.TaxStrategyBracket)
	s.LowRate, s.HighRate = 18, 5
	_, err = NewPolicy(s)
	assert.ErrorIs(t, err, ErrInvalidSettings)
}

func TestAllows(t *testing.T) {
	p := mustPolicy(t, domain.TaxStrategyPerItem)
	assert.True(t, p.Allows(5))
	assert.True(t, p.Allows(18))
	assert.False(t, p.Allows(12))
}

func TestRoundHalfUp(t *testing.T) {
	assert.Equal(t, "2.68", Round(decimal.RequireFromString("2.675")).StringFixed(2))
	assert.Equal(t, "2.67", Round(decimal.RequireFromString("2.6749")).StringFixed(2))
}
