package report

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/vishnucreator46/SmartTax-Hackthon/internal/cache"
	"github.com/vishnucreator46/SmartTax-Hackthon/internal/config"
	"github.com/vishnucreator46/SmartTax-Hackthon/internal/domain"
	"github.com/vishnucreator46/SmartTax-Hackthon/internal/store"
)

const (
	summaryCacheKey   = "all"
	sharedScanTimeout = 30 * time.Second
)

// Engine serves dashboard reports from the sale ledger. Summaries are cached
// and concurrent misses share one ledger scan.
type Engine struct {
	ledger   store.SaleLedger
	cache    cache.SummaryCache
	cacheTTL time.Duration
	loc      *time.Location
	logger   logrus.FieldLogger
	group    singleflight.Group
}

func NewEngine(
	ledger store.SaleLedger,
	summaryCache cache.SummaryCache,
	cacheTTL time.Duration,
	loc *time.Location,
	logger logrus.FieldLogger,
) *Engine {
	if summaryCache == nil {
		summaryCache = cache.Noop{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 20 * time.Second
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Engine{
		ledger:   ledger,
		cache:    summaryCache,
		cacheTTL: cacheTTL,
		loc:      loc,
		logger:   logger,
	}
}

// Summary returns the aggregate over every recorded sale.
func (e *Engine) Summary(ctx context.Context) (domain.SalesSummary, error) {
	if cached, ok, err := e.cache.GetSummary(ctx, summaryCacheKey); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		config.LogError(e.logger, "report", "Summary", "read summary cache", nil, err)
	}

	v, err, _ := e.group.Do(summaryCacheKey, func() (any, error) {
		// The scan is shared by every waiting caller, so one caller going
		// away must not cancel it for the rest.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedScanTimeout)
		defer cancel()

		docs, err := e.ledger.ScanSales(ctx)
		if err != nil {
			return nil, err
		}
		summary := Summarize(docs, e.loc, e.logger)
		summary.GeneratedAt = time.Now().UTC()

		if err := e.cache.SetSummary(ctx, summaryCacheKey, &summary, e.cacheTTL); err != nil {
			config.LogError(e.logger, "report", "Summary", "write summary cache", nil, err)
		}
		return summary, nil
	})
	if err != nil {
		return domain.SalesSummary{}, err
	}
	return v.(domain.SalesSummary), nil
}

// RecentSales lists the newest limit sales.
func (e *Engine) RecentSales(ctx context.Context, limit int) ([]domain.RecentSale, error) {
	docs, err := e.ledger.ScanSales(ctx)
	if err != nil {
		return nil, err
	}
	return Recent(docs, limit), nil
}

// Invalidate drops the cached summary. Failures are logged only; the cache
// entry then expires on its own.
func (e *Engine) Invalidate(ctx context.Context) {
	if err := e.cache.InvalidateSummary(ctx, summaryCacheKey); err != nil {
		config.LogError(e.logger, "report", "Invalidate", "drop summary cache", nil, err)
	}
}
