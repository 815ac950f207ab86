package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"caixa/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrNoOpenShift        = errors.New("no open shift")
	ErrNegativeFloat      = errors.New("opening float cannot be negative")
	ErrNotClosed          = errors.New("shift is not closed")
	ErrAnotherShiftOpen   = errors.New("another shift is already open")
)

// CloseShiftInput describes a close of whatever shift is open when the
// store transaction runs.
type CloseShiftInput struct {
	ClosedBy        string
	ClosedAt        time.Time
	FinalWithdrawal *domain.Withdrawal
	DeclaredCash    *decimal.Decimal
}

// ShiftFilter selects shifts by opening time in [From, To). Zero bounds are open.
type ShiftFilter struct {
	From   time.Time
	To     time.Time
	Status string
	Label  string
	Limit  int
}

// SaleFilter selects sales by creation time in [From, To); empty strings match all.
type SaleFilter struct {
	From    time.Time
	To      time.Time
	Channel string
	Label   string
	Courier string
	Server  string
}

type EntryFilter struct {
	From  time.Time
	To    time.Time
	Label string
}

type Repository interface {
	// Shift lifecycle. Every call is atomic and re-reads the open shift itself.
	OpenShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error)
	FindOpenShift(ctx context.Context) (*domain.Shift, error)
	GetShift(ctx context.Context, shiftID string) (*domain.Shift, error)
	CloseOpenShift(ctx context.Context, in CloseShiftInput) (*domain.ShiftLedger, error)
	ReopenShift(ctx context.Context, shiftID string) (*domain.Shift, error)
	ListShifts(ctx context.Context, filter ShiftFilter) ([]domain.ShiftSummary, error)

	// Entry writes attach to the open shift. A non-empty expectedShiftID must
	// name that shift, otherwise ErrNoOpenShift.
	InsertSale(ctx context.Context, expectedShiftID string, sale domain.Sale) (*domain.Sale, error)
	InsertExpense(ctx context.Context, expectedShiftID string, expense domain.Expense) (*domain.Expense, error)
	InsertWithdrawal(ctx context.Context, expectedShiftID string, withdrawal domain.Withdrawal) (*domain.Withdrawal, error)

	LoadShiftLedger(ctx context.Context, shiftID string) (*domain.ShiftLedger, error)
	ListSales(ctx context.Context, filter SaleFilter) ([]domain.Sale, error)
	ListExpenses(ctx context.Context, filter EntryFilter) ([]domain.Expense, error)
	ListWithdrawals(ctx context.Context, filter EntryFilter) ([]domain.Withdrawal, error)
	ListPartyNames(ctx context.Context) (servers []string, couriers []string, err error)
	ListTableIDs(ctx context.Context, from time.Time, to time.Time) ([]string, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// InRange reports whether t falls in [from, to); zero bounds are unbounded.
func InRange(t time.Time, from time.Time, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}
