package cache

import (
	"context"
	"time"

	"caixa/backend/internal/domain"
)

// ReconciliationCache stores computed reconciliations. Keys embed a
// generation number; Bump invalidates every key built on an older generation.
type ReconciliationCache interface {
	Get(ctx context.Context, key string) (*domain.Reconciliation, bool, error)
	Set(ctx context.Context, key string, value *domain.Reconciliation, ttl time.Duration) error
	Generation(ctx context.Context) (int64, error)
	Bump(ctx context.Context) error
}

type NoopReconciliationCache struct{}

func (NoopReconciliationCache) Get(_ context.Context, _ string) (*domain.Reconciliation, bool, error) {
	return nil, false, nil
}

func (NoopReconciliationCache) Set(_ context.Context, _ string, _ *domain.Reconciliation, _ time.Duration) error {
	return nil
}

func (NoopReconciliationCache) Generation(_ context.Context) (int64, error) {
	return 0, nil
}

func (NoopReconciliationCache) Bump(_ context.Context) error {
	return nil
}
