package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"caixa/backend/internal/domain"
	"caixa/backend/internal/ledger"
)

// Reconcile computes the cash and revenue position of a shift. Results may be
// served from the cache as long as no write happened since they were stored.
func (s *Service) Reconcile(ctx context.Context, shiftID string) (domain.Reconciliation, error) {
	shiftID = strings.TrimSpace(shiftID)
	if shiftID == "" {
		return domain.Reconciliation{}, invalidf("shift id is required")
	}

	key, ok := s.cacheKey(ctx, shiftID)
	if !ok {
		return s.reconcileFresh(ctx, shiftID)
	}

	cached, hit, err := s.cache.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("component", "cache").Str("shift_id", shiftID).Msg("cache read failed")
		return s.reconcileFresh(ctx, shiftID)
	}
	s.metrics.CacheLookup(hit)
	if hit {
		return *cached, nil
	}

	rec, err := s.reconcileFresh(ctx, shiftID)
	if err != nil {
		return domain.Reconciliation{}, err
	}
	if err := s.cache.Set(ctx, key, &rec, s.cacheTTL); err != nil {
		log.Warn().Err(err).Str("component", "cache").Str("shift_id", shiftID).Msg("cache write failed")
	}
	return rec, nil
}

func (s *Service) reconcileFresh(ctx context.Context, shiftID string) (domain.Reconciliation, error) {
	snapshot, err := s.repo.LoadShiftLedger(ctx, shiftID)
	if err != nil {
		return domain.Reconciliation{}, err
	}
	rec := ledger.Reconcile(*snapshot)
	rec.ComputedAt = s.now().UTC()
	return rec, nil
}

// ShiftWithReconciliation reads a shift and reconciles it from the same
// snapshot, so the shift header always matches the figures. It skips the cache.
func (s *Service) ShiftWithReconciliation(ctx context.Context, shiftID string) (domain.Shift, domain.Reconciliation, error) {
	snapshot, err := s.shiftLedger(ctx, shiftID)
	if err != nil {
		return domain.Shift{}, domain.Reconciliation{}, err
	}
	rec := ledger.Reconcile(*snapshot)
	rec.ComputedAt = s.now().UTC()
	return snapshot.Shift, rec, nil
}

// cacheKey embeds the current generation. It reports false when the cache
// must be bypassed.
func (s *Service) cacheKey(ctx context.Context, shiftID string) (string, bool) {
	if s.cacheDirty.Load() {
		if err := s.cache.Bump(ctx); err != nil {
			log.Warn().Err(err).Str("component", "cache").Msg("generation bump retry failed")
			return "", false
		}
		s.cacheDirty.Store(false)
	}
	gen, err := s.cache.Generation(ctx)
	if err != nil {
		log.Warn().Err(err).Str("component", "cache").Msg("generation lookup failed")
		return "", false
	}
	return fmt.Sprintf("caixa:recon:%d:%s", gen, shiftID), true
}

func (s *Service) ListShiftSales(ctx context.Context, shiftID string) ([]domain.Sale, error) {
	snapshot, err := s.shiftLedger(ctx, shiftID)
	if err != nil {
		return nil, err
	}
	return newestFirst(snapshot.Sales, func(e domain.Sale) time.Time { return e.CreatedAt }), nil
}

func (s *Service) ListShiftExpenses(ctx context.Context, shiftID string) ([]domain.Expense, error) {
	snapshot, err := s.shiftLedger(ctx, shiftID)
	if err != nil {
		return nil, err
	}
	return newestFirst(snapshot.Expenses, func(e domain.Expense) time.Time { return e.CreatedAt }), nil
}

func (s *Service) ListShiftWithdrawals(ctx context.Context, shiftID string) ([]domain.Withdrawal, error) {
	snapshot, err := s.shiftLedger(ctx, shiftID)
	if err != nil {
		return nil, err
	}
	return newestFirst(snapshot.Withdrawals, func(e domain.Withdrawal) time.Time { return e.CreatedAt }), nil
}

// newestFirst returns a copy of entries, which the store hands back oldest
// first, ordered most recent first. Entries sharing a timestamp keep reverse
// insertion order.
func newestFirst[T any](entries []T, createdAt func(T) time.Time) []T {
	out := slices.Clone(entries)
	slices.Reverse(out)
	slices.SortStableFunc(out, func(a, b T) int {
		return createdAt(b).Compare(createdAt(a))
	})
	if out == nil {
		out = []T{}
	}
	return out
}

func (s *Service) shiftLedger(ctx context.Context, shiftID string) (*domain.ShiftLedger, error) {
	shiftID = strings.TrimSpace(shiftID)
	if shiftID == "" {
		return nil, invalidf("shift id is required")
	}
	return s.repo.LoadShiftLedger(ctx, shiftID)
}
