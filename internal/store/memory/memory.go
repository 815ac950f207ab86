package memory

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"caixa/backend/internal/domain"
	"caixa/backend/internal/ledger"
	"caixa/backend/internal/store"
	"caixa/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	shiftsByID      map[string]domain.Shift
	openShiftID     string
	sales           []domain.Sale
	expenses        []domain.Expense
	withdrawals     []domain.Withdrawal
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Passwords come from SEED_SUPERVISOR_PASSWORD and SEED_OPERATOR_PASSWORD;
// when unset the dev defaults are used and a warning is logged.
func seedUsers() map[string]domain.UserAccount {
	supervisorPwd := envOr("SEED_SUPERVISOR_PASSWORD", "admin123")
	operatorPwd := envOr("SEED_OPERATOR_PASSWORD", "caixa123")
	if os.Getenv("SEED_SUPERVISOR_PASSWORD") == "" || os.Getenv("SEED_OPERATOR_PASSWORD") == "" {
		log.Warn().Str("component", "memory-store").Msg("using default dev credentials; set SEED_SUPERVISOR_PASSWORD and SEED_OPERATOR_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"supervisor", supervisorPwd, domain.RoleSupervisor},
		{"caixa", operatorPwd, domain.RoleOperator},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal().Err(err).Str("username", u.username).Msg("failed to hash seed password")
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	return &Store{
		shiftsByID:      make(map[string]domain.Shift),
		sales:           make([]domain.Sale, 0, 256),
		expenses:        make([]domain.Expense, 0, 64),
		withdrawals:     make([]domain.Withdrawal, 0, 32),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: seedUsers(),
	}
}

func (s *Store) OpenShift(_ context.Context, shift domain.Shift) (*domain.Shift, error) {
	if shift.OpeningFloat.IsNegative() {
		return nil, store.ErrNegativeFloat
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.openShiftID != "" {
		return nil, store.ErrAnotherShiftOpen
	}
	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	if shift.OpenedAt.IsZero() {
		shift.OpenedAt = time.Now().UTC()
	}
	shift.Status = domain.ShiftStatusOpen
	clearClosing(&shift)

	s.shiftsByID[shift.ID] = shift
	s.openShiftID = shift.ID
	copyShift := shift
	return &copyShift, nil
}

func (s *Store) FindOpenShift(_ context.Context) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shift, err := s.openShiftLocked()
	if err != nil {
		return nil, err
	}
	copyShift := shift
	return &copyShift, nil
}

func (s *Store) GetShift(_ context.Context, shiftID string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shift, ok := s.shiftsByID[shiftID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &shift, nil
}

func (s *Store) CloseOpenShift(_ context.Context, in store.CloseShiftInput) (*domain.ShiftLedger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shift, err := s.openShiftLocked()
	if err != nil {
		return nil, err
	}
	closedAt := in.ClosedAt
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}

	if in.FinalWithdrawal != nil {
		w := *in.FinalWithdrawal
		if !w.Amount.IsPositive() {
			return nil, store.ErrInvalidTransaction
		}
		if w.ID == "" {
			w.ID = xid.New("sangria")
		}
		if w.CreatedAt.IsZero() {
			w.CreatedAt = closedAt
		}
		w.ShiftID = shift.ID
		w.ShiftLabel = shift.Label
		s.withdrawals = append(s.withdrawals, w)
	}

	shift.DeclaredCash = in.DeclaredCash
	snapshot := s.ledgerLocked(shift)
	totals := ledger.ComputeCloseTotals(snapshot)

	shift.Status = domain.ShiftStatusClosed
	shift.ClosedBy = in.ClosedBy
	shift.ClosedAt = &closedAt
	shift.NetRevenue = &totals.NetRevenue
	shift.TotalExpenses = &totals.TotalExpenses
	shift.TotalWithdrawals = &totals.TotalWithdrawals
	shift.CashDiscrepancy = nil
	if in.DeclaredCash != nil {
		diff := in.DeclaredCash.Sub(totals.ExpectedCash)
		shift.CashDiscrepancy = &diff
	}

	s.shiftsByID[shift.ID] = shift
	s.openShiftID = ""
	snapshot.Shift = shift
	return &snapshot, nil
}

func (s *Store) ReopenShift(_ context.Context, shiftID string) (*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shift, ok := s.shiftsByID[shiftID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if shift.Status != domain.ShiftStatusClosed {
		return nil, store.ErrNotClosed
	}
	if s.openShiftID != "" {
		return nil, store.ErrAnotherShiftOpen
	}
	shift.Status = domain.ShiftStatusOpen
	clearClosing(&shift)

	s.shiftsByID[shift.ID] = shift
	s.openShiftID = shift.ID
	copyShift := shift
	return &copyShift, nil
}

func (s *Store) ListShifts(_ context.Context, filter store.ShiftFilter) ([]domain.ShiftSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := map[string]*domain.ShiftSummary{}
	result := make([]domain.ShiftSummary, 0, 16)
	for _, shift := range s.shiftsByID {
		if !store.InRange(shift.OpenedAt, filter.From, filter.To) {
			continue
		}
		if filter.Status != "" && shift.Status != filter.Status {
			continue
		}
		if filter.Label != "" && shift.Label != filter.Label {
			continue
		}
		counts[shift.ID] = &domain.ShiftSummary{Shift: shift}
	}
	for _, sale := range s.sales {
		if c, ok := counts[sale.ShiftID]; ok {
			c.Sales++
		}
	}
	for _, e := range s.expenses {
		if c, ok := counts[e.ShiftID]; ok {
			c.Expenses++
		}
	}
	for _, w := range s.withdrawals {
		if c, ok := counts[w.ShiftID]; ok {
			c.Withdrawals++
		}
	}
	for _, c := range counts {
		result = append(result, *c)
	}

	slices.SortFunc(result, func(a, b domain.ShiftSummary) int {
		if a.Shift.OpenedAt.Equal(b.Shift.OpenedAt) {
			return cmpString(b.Shift.ID, a.Shift.ID)
		}
		if a.Shift.OpenedAt.After(b.Shift.OpenedAt) {
			return -1
		}
		return 1
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) InsertSale(_ context.Context, expectedShiftID string, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shift, err := s.attachShiftLocked(expectedShiftID)
	if err != nil {
		return nil, err
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	sale.ShiftID = shift.ID
	sale.ShiftLabel = shift.Label
	sale.Splits = slices.Clone(sale.Splits)

	s.sales = append(s.sales, sale)
	saved := cloneSale(sale)
	return &saved, nil
}

func (s *Store) InsertExpense(_ context.Context, expectedShiftID string, expense domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shift, err := s.attachShiftLocked(expectedShiftID)
	if err != nil {
		return nil, err
	}
	if expense.ID == "" {
		expense.ID = xid.New("saida")
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}
	expense.ShiftID = shift.ID
	expense.ShiftLabel = shift.Label

	s.expenses = append(s.expenses, expense)
	return &expense, nil
}

func (s *Store) InsertWithdrawal(_ context.Context, expectedShiftID string, withdrawal domain.Withdrawal) (*domain.Withdrawal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shift, err := s.attachShiftLocked(expectedShiftID)
	if err != nil {
		return nil, err
	}
	if withdrawal.ID == "" {
		withdrawal.ID = xid.New("sangria")
	}
	if withdrawal.CreatedAt.IsZero() {
		withdrawal.CreatedAt = time.Now().UTC()
	}
	withdrawal.ShiftID = shift.ID
	withdrawal.ShiftLabel = shift.Label

	s.withdrawals = append(s.withdrawals, withdrawal)
	return &withdrawal, nil
}

func (s *Store) LoadShiftLedger(_ context.Context, shiftID string) (*domain.ShiftLedger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shift, ok := s.shiftsByID[shiftID]
	if !ok {
		return nil, store.ErrNotFound
	}
	snapshot := s.ledgerLocked(shift)
	return &snapshot, nil
}

func (s *Store) ListSales(_ context.Context, filter store.SaleFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, 64)
	for _, sale := range s.sales {
		if !store.InRange(sale.CreatedAt, filter.From, filter.To) {
			continue
		}
		if filter.Channel != "" && sale.Channel != filter.Channel {
			continue
		}
		if filter.Label != "" && sale.ShiftLabel != filter.Label {
			continue
		}
		if filter.Courier != "" && sale.Courier != filter.Courier {
			continue
		}
		if filter.Server != "" && sale.Server != filter.Server {
			continue
		}
		result = append(result, cloneSale(sale))
	}
	return result, nil
}

func (s *Store) ListExpenses(_ context.Context, filter store.EntryFilter) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Expense, 0, 32)
	for _, e := range s.expenses {
		if !store.InRange(e.CreatedAt, filter.From, filter.To) {
			continue
		}
		if filter.Label != "" && e.ShiftLabel != filter.Label {
			continue
		}
		result = append(result, e)
	}
	return result, nil
}

func (s *Store) ListWithdrawals(_ context.Context, filter store.EntryFilter) ([]domain.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Withdrawal, 0, 16)
	for _, w := range s.withdrawals {
		if !store.InRange(w.CreatedAt, filter.From, filter.To) {
			continue
		}
		if filter.Label != "" && w.ShiftLabel != filter.Label {
			continue
		}
		result = append(result, w)
	}
	return result, nil
}

func (s *Store) ListPartyNames(_ context.Context) ([]string, []string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	servers := map[string]struct{}{}
	couriers := map[string]struct{}{}
	for _, sale := range s.sales {
		if name := strings.TrimSpace(sale.Server); name != "" && name != domain.NotApplicable {
			servers[name] = struct{}{}
		}
		if name := strings.TrimSpace(sale.Courier); name != "" && name != domain.NotApplicable {
			couriers[name] = struct{}{}
		}
	}
	return sortedKeys(servers), sortedKeys(couriers), nil
}

func (s *Store) ListTableIDs(_ context.Context, from time.Time, to time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, 32)
	for _, sale := range s.sales {
		if store.InRange(sale.CreatedAt, from, to) {
			ids = append(ids, sale.TableID)
		}
	}
	return ids, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidTransaction
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleOperator
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) openShiftLocked() (domain.Shift, error) {
	if s.openShiftID == "" {
		return domain.Shift{}, store.ErrNoOpenShift
	}
	shift, ok := s.shiftsByID[s.openShiftID]
	if !ok || shift.Status != domain.ShiftStatusOpen {
		return domain.Shift{}, store.ErrNoOpenShift
	}
	return shift, nil
}

func (s *Store) attachShiftLocked(expectedShiftID string) (domain.Shift, error) {
	shift, err := s.openShiftLocked()
	if err != nil {
		return domain.Shift{}, err
	}
	if expectedShiftID != "" && expectedShiftID != shift.ID {
		return domain.Shift{}, store.ErrNoOpenShift
	}
	return shift, nil
}

func (s *Store) ledgerLocked(shift domain.Shift) domain.ShiftLedger {
	snapshot := domain.ShiftLedger{
		Shift:       shift,
		Sales:       []domain.Sale{},
		Expenses:    []domain.Expense{},
		Withdrawals: []domain.Withdrawal{},
	}
	for _, sale := range s.sales {
		if sale.ShiftID == shift.ID {
			snapshot.Sales = append(snapshot.Sales, cloneSale(sale))
		}
	}
	for _, e := range s.expenses {
		if e.ShiftID == shift.ID {
			snapshot.Expenses = append(snapshot.Expenses, e)
		}
	}
	for _, w := range s.withdrawals {
		if w.ShiftID == shift.ID {
			snapshot.Withdrawals = append(snapshot.Withdrawals, w)
		}
	}
	return snapshot
}

func clearClosing(shift *domain.Shift) {
	shift.ClosedBy = ""
	shift.ClosedAt = nil
	shift.NetRevenue = nil
	shift.TotalExpenses = nil
	shift.TotalWithdrawals = nil
	shift.DeclaredCash = nil
	shift.CashDiscrepancy = nil
}

func cloneSale(src domain.Sale) domain.Sale {
	dst := src
	dst.Splits = slices.Clone(src.Splits)
	return dst
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func cmpString(a string, b string) int {
	return strings.Compare(a, b)
}
