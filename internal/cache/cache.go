package cache

import (
	"context"
	"time"

	"github.com/vishnucreator46/SmartTax-Hackthon/internal/cart"
	"github.com/vishnucreator46/SmartTax-Hackthon/internal/domain"
)

// SessionCache keeps cart sessions alive across restarts and replicas.
type SessionCache interface {
	GetSession(ctx context.Context, id string) (*cart.Snapshot, bool, error)
	SetSession(ctx context.Context, snap cart.Snapshot, ttl time.Duration) error
	DeleteSession(ctx context.Context, id string) error
}

// SummaryCache holds the last computed dashboard summary.
type SummaryCache interface {
	GetSummary(ctx context.Context, key string) (*domain.SalesSummary, bool, error)
	SetSummary(ctx context.Context, key string, value *domain.SalesSummary, ttl time.Duration) error
	InvalidateSummary(ctx context.Context, key string) error
}

type Noop struct{}

func (Noop) GetSession(_ context.Context, _ string) (*cart.Snapshot, bool, error) {
	return nil, false, nil
}

func (Noop) SetSession(_ context.Context, _ cart.Snapshot, _ time.Duration) error {
	return nil
}

func (Noop) DeleteSession(_ context.Context, _ string) error {
	return nil
}

func (Noop) GetSummary(_ context.Context, _ string) (*domain.SalesSummary, bool, error) {
	return nil, false, nil
}

func (Noop) SetSummary(_ context.Context, _ string, _ *domain.SalesSummary, _ time.Duration) error {
	return nil
}

func (Noop) InvalidateSummary(_ context.Context, _ string) error {
	return nil
}
