package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"caixa/backend/internal/cache"
	"caixa/backend/internal/domain"
	"caixa/backend/internal/ledger"
	"caixa/backend/internal/metrics"
	"caixa/backend/internal/store"
	"caixa/backend/internal/xid"
)

var ErrForbidden = errors.New("forbidden")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	Cache    cache.ReconciliationCache
	CacheTTL time.Duration
	Metrics  *metrics.Metrics
	// Location is the restaurant time zone used for business dates.
	Location *time.Location
	// VerifySupervisorPIN lets an operator reopen a shift on a supervisor's behalf.
	VerifySupervisorPIN func(pin string) bool
	Clock               func() time.Time
}

type Service struct {
	repo       store.Repository
	cache      cache.ReconciliationCache
	cacheTTL   time.Duration
	cacheDirty atomic.Bool
	metrics    *metrics.Metrics
	loc        *time.Location
	verifyPIN  func(pin string) bool
	now        func() time.Time
}

func New(repo store.Repository, opts Options) *Service {
	s := &Service{
		repo:      repo,
		cache:     opts.Cache,
		cacheTTL:  opts.CacheTTL,
		metrics:   opts.Metrics,
		loc:       opts.Location,
		verifyPIN: opts.VerifySupervisorPIN,
		now:       opts.Clock,
	}
	if s.cache == nil {
		s.cache = cache.NoopReconciliationCache{}
	}
	if s.cacheTTL <= 0 {
		s.cacheTTL = 30 * time.Second
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Service) OpenShift(ctx context.Context, req domain.ShiftOpenRequest) (domain.ShiftResponse, error) {
	if err := validateRequest(req); err != nil {
		return domain.ShiftResponse{}, err
	}
	if req.OpeningFloat.IsNegative() {
		return domain.ShiftResponse{}, store.ErrNegativeFloat
	}
	label, err := ledger.NormalizeLabel(req.Label)
	if err != nil {
		return domain.ShiftResponse{}, fmt.Errorf("%w: %w", store.ErrInvalidTransaction, err)
	}

	saved, err := s.repo.OpenShift(ctx, domain.Shift{
		ID:           xid.New("shift"),
		Status:       domain.ShiftStatusOpen,
		Label:        label,
		OpenedBy:     s.actorName(ctx),
		OpenedAt:     s.now().UTC(),
		OpeningFloat: ledger.Round2(req.OpeningFloat),
	})
	if err != nil {
		return domain.ShiftResponse{}, err
	}

	s.invalidate(ctx)
	s.metrics.ShiftTransition("open")
	s.logAudit(ctx, "shift_open", "shift", saved.ID, fmt.Sprintf("label=%s,float=%s", saved.Label, saved.OpeningFloat.StringFixed(2)))
	log.Info().Str("component", "service").Str("shift_id", saved.ID).Str("action", "shift_open").Msg("shift opened")

	return domain.ShiftResponse{Shift: *saved}, nil
}

// CloseShift closes whichever shift is open, optionally recording a final
// withdrawal and the counted drawer, and returns the reconciliation of the
// closed shift.
func (s *Service) CloseShift(ctx context.Context, req domain.ShiftCloseRequest) (domain.ShiftCloseResponse, error) {
	if req.ClosingWithdrawal.IsNegative() {
		return domain.ShiftCloseResponse{}, invalidf("closing withdrawal cannot be negative")
	}
	if req.DeclaredCash != nil && req.DeclaredCash.IsNegative() {
		return domain.ShiftCloseResponse{}, invalidf("declared cash cannot be negative")
	}

	now := s.now().UTC()
	actor := s.actorName(ctx)
	in := store.CloseShiftInput{ClosedBy: actor, ClosedAt: now}
	if amount := ledger.Round2(req.ClosingWithdrawal); amount.IsPositive() {
		in.FinalWithdrawal = &domain.Withdrawal{
			ID:        xid.New("sangria"),
			CreatedAt: now,
			Amount:    amount,
			Note:      ledger.ClosingSangriaNote,
			CreatedBy: actor,
		}
	}
	if req.DeclaredCash != nil {
		declared := ledger.Round2(*req.DeclaredCash)
		in.DeclaredCash = &declared
	}

	snapshot, err := s.repo.CloseOpenShift(ctx, in)
	if err != nil {
		return domain.ShiftCloseResponse{}, err
	}
	s.invalidate(ctx)

	rec := ledger.Reconcile(*snapshot)
	rec.ComputedAt = now

	s.metrics.ShiftTransition("close")
	detail := fmt.Sprintf("expected_cash=%s,withdrawals=%s", rec.ExpectedCashBalance.StringFixed(2), rec.TotalWithdrawals.StringFixed(2))
	if rec.CashDiscrepancy != nil {
		detail += fmt.Sprintf(",discrepancy=%s,level=%s", rec.CashDiscrepancy.StringFixed(2), rec.DiscrepancyLevel)
	}
	s.logAudit(ctx, "shift_close", "shift", snapshot.Shift.ID, detail)

	event := log.Info()
	if rec.DiscrepancyLevel == ledger.DiscrepancyCritical {
		event = log.Warn()
	}
	event.Str("component", "service").Str("shift_id", snapshot.Shift.ID).Str("action", "shift_close").
		Str("expected_cash", rec.ExpectedCashBalance.StringFixed(2)).Msg("shift closed")

	return domain.ShiftCloseResponse{Shift: snapshot.Shift, Reconciliation: rec}, nil
}

func (s *Service) ReopenShift(ctx context.Context, shiftID string, req domain.ShiftReopenRequest) (domain.ShiftResponse, error) {
	if err := s.requireSupervisor(ctx); err != nil {
		pin := strings.TrimSpace(req.SupervisorPIN)
		if pin == "" || s.verifyPIN == nil || !s.verifyPIN(pin) {
			return domain.ShiftResponse{}, err
		}
	}
	shiftID = strings.TrimSpace(shiftID)
	if shiftID == "" {
		return domain.ShiftResponse{}, invalidf("shift id is required")
	}

	reopened, err := s.repo.ReopenShift(ctx, shiftID)
	if err != nil {
		return domain.ShiftResponse{}, err
	}
	s.invalidate(ctx)

	s.metrics.ShiftTransition("reopen")
	s.logAudit(ctx, "shift_reopen", "shift", reopened.ID, "label="+reopened.Label)
	log.Info().Str("component", "service").Str("shift_id", reopened.ID).Str("action", "shift_reopen").Msg("shift reopened")

	return domain.ShiftResponse{Shift: *reopened}, nil
}

func (s *Service) CurrentShift(ctx context.Context) (domain.ShiftResponse, error) {
	shift, err := s.repo.FindOpenShift(ctx)
	if err != nil {
		return domain.ShiftResponse{}, err
	}
	return domain.ShiftResponse{Shift: *shift}, nil
}

func (s *Service) GetShift(ctx context.Context, shiftID string) (domain.ShiftResponse, error) {
	shiftID = strings.TrimSpace(shiftID)
	if shiftID == "" {
		return domain.ShiftResponse{}, invalidf("shift id is required")
	}
	shift, err := s.repo.GetShift(ctx, shiftID)
	if err != nil {
		return domain.ShiftResponse{}, err
	}
	return domain.ShiftResponse{Shift: *shift}, nil
}

// ListShifts returns shift summaries, most recent first. Operators only see
// shifts opened today.
func (s *Service) ListShifts(ctx context.Context, req domain.ShiftListRequest) (domain.ShiftListResponse, error) {
	if err := s.requireSupervisor(ctx); err != nil {
		req.From, req.To = "", ""
	}
	from, to, err := s.dayRange(req.From, req.To)
	if err != nil {
		return domain.ShiftListResponse{}, err
	}

	status := strings.ToUpper(strings.TrimSpace(req.Status))
	switch status {
	case "", "ALL":
		status = ""
	case domain.ShiftStatusOpen, domain.ShiftStatusClosed:
	default:
		return domain.ShiftListResponse{}, invalidf("unknown status %q", req.Status)
	}

	label, err := optionalLabel(req.Label)
	if err != nil {
		return domain.ShiftListResponse{}, err
	}

	shifts, err := s.repo.ListShifts(ctx, store.ShiftFilter{
		From:   from,
		To:     to,
		Status: status,
		Label:  label,
		Limit:  200,
	})
	if err != nil {
		return domain.ShiftListResponse{}, err
	}
	return domain.ShiftListResponse{Shifts: shifts}, nil
}

func (s *Service) requireSupervisor(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleSupervisor {
		return fmt.Errorf("%w: supervisor role required", ErrForbidden)
	}
	return nil
}

func (s *Service) actorName(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok && actor.Username != "" {
		return actor.Username
	}
	return "system"
}

// invalidate moves the cache to a new generation after a write. When that
// fails the cache is bypassed until a later bump succeeds.
func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.cacheDirty.Store(true)
		log.Warn().Err(err).Str("component", "cache").Msg("generation bump failed, bypassing cache")
	}
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now().UTC(),
	}); err != nil {
		log.Warn().Err(err).Str("action", action).Str("entity", entityType+"/"+entityID).Msg("failed to write audit log")
	}
}

func (s *Service) startOfDay(t time.Time) time.Time {
	t = t.In(s.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.loc)
}

// dayRange parses inclusive YYYY-MM-DD bounds in the restaurant zone and
// returns the half-open interval [from, to). Empty bounds default to today.
func (s *Service) dayRange(fromRaw string, toRaw string) (time.Time, time.Time, error) {
	from := s.startOfDay(s.now())
	if v := strings.TrimSpace(fromRaw); v != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, v, s.loc)
		if err != nil {
			return time.Time{}, time.Time{}, invalidf("invalid from date %q", fromRaw)
		}
		from = parsed
	}
	to := from
	if v := strings.TrimSpace(toRaw); v != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, v, s.loc)
		if err != nil {
			return time.Time{}, time.Time{}, invalidf("invalid to date %q", toRaw)
		}
		to = parsed
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, invalidf("date range ends before it starts")
	}
	return from, to.AddDate(0, 0, 1), nil
}

func optionalLabel(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "ALL") {
		return "", nil
	}
	label, err := ledger.NormalizeLabel(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", store.ErrInvalidTransaction, err)
	}
	return label, nil
}
