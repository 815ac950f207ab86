package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"caixa/backend/internal/domain"
	"caixa/backend/internal/ledger"
	"caixa/backend/internal/store"
	"caixa/backend/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

const maxTxAttempts = 3

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// inTx runs fn in a serializable transaction, retrying serialization failures.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.runTx(ctx, fn)
		if err == nil || !isSerializationFailure(err) {
			return err
		}
		log.Debug().Int("attempt", attempt).Msg("retrying serialization failure")
	}
	return err
}

func (s *Store) runTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// shiftColumns expects the shifts table aliased as s.
const shiftColumns = `s.id, s.status, s.label, s.opened_by, COALESCE(s.closed_by,''), s.opened_at, s.closed_at,
	s.opening_float, s.net_revenue, s.total_expenses, s.total_withdrawals, s.declared_cash, s.cash_discrepancy`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanShift reads shiftColumns followed by any extra destinations.
func scanShift(row rowScanner, extra ...any) (domain.Shift, error) {
	var shift domain.Shift
	var closedAt sql.NullTime
	var netRevenue, totalExpenses, totalWithdrawals, declaredCash, discrepancy decimal.NullDecimal
	dest := []any{
		&shift.ID,
		&shift.Status,
		&shift.Label,
		&shift.OpenedBy,
		&shift.ClosedBy,
		&shift.OpenedAt,
		&closedAt,
		&shift.OpeningFloat,
		&netRevenue,
		&totalExpenses,
		&totalWithdrawals,
		&declaredCash,
		&discrepancy,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return shift, err
	}
	shift.OpenedAt = shift.OpenedAt.UTC()
	if closedAt.Valid {
		at := closedAt.Time.UTC()
		shift.ClosedAt = &at
	}
	shift.NetRevenue = decimalPtr(netRevenue)
	shift.TotalExpenses = decimalPtr(totalExpenses)
	shift.TotalWithdrawals = decimalPtr(totalWithdrawals)
	shift.DeclaredCash = decimalPtr(declaredCash)
	shift.CashDiscrepancy = decimalPtr(discrepancy)
	return shift, nil
}

func (s *Store) OpenShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error) {
	if shift.OpeningFloat.IsNegative() {
		return nil, store.ErrNegativeFloat
	}
	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	if shift.OpenedAt.IsZero() {
		shift.OpenedAt = time.Now().UTC()
	}
	shift.Status = domain.ShiftStatusOpen
	clearClosing(&shift)

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := requireNoOpenShift(ctx, tx); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO shifts (id, status, label, opened_by, opened_at, opening_float)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, shift.ID, shift.Status, shift.Label, shift.OpenedBy, shift.OpenedAt, shift.OpeningFloat)
		if err != nil {
			if isUniqueViolation(err) {
				return store.ErrAnotherShiftOpen
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	saved := shift
	return &saved, nil
}

func (s *Store) FindOpenShift(ctx context.Context) (*domain.Shift, error) {
	shift, err := scanShift(s.db.QueryRowContext(ctx, `
		SELECT `+shiftColumns+`
		FROM shifts s
		WHERE s.status = 'OPEN'
	`))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNoOpenShift
		}
		return nil, err
	}
	return &shift, nil
}

func (s *Store) GetShift(ctx context.Context, shiftID string) (*domain.Shift, error) {
	shift, err := scanShift(s.db.QueryRowContext(ctx, `
		SELECT `+shiftColumns+`
		FROM shifts s
		WHERE s.id = $1
	`, shiftID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &shift, nil
}

func (s *Store) CloseOpenShift(ctx context.Context, in store.CloseShiftInput) (*domain.ShiftLedger, error) {
	closedAt := in.ClosedAt
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}

	var snapshot domain.ShiftLedger
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		shift, err := lockOpenShift(ctx, tx)
		if err != nil {
			return err
		}

		if in.FinalWithdrawal != nil {
			w := *in.FinalWithdrawal
			if !w.Amount.IsPositive() {
				return store.ErrInvalidTransaction
			}
			if w.ID == "" {
				w.ID = xid.New("sangria")
			}
			if w.CreatedAt.IsZero() {
				w.CreatedAt = closedAt
			}
			w.ShiftID = shift.ID
			w.ShiftLabel = shift.Label
			if err := insertWithdrawal(ctx, tx, w); err != nil {
				return err
			}
		}

		snapshot, err = loadLedger(ctx, tx, shift)
		if err != nil {
			return err
		}
		snapshot.Shift.DeclaredCash = in.DeclaredCash
		totals := ledger.ComputeCloseTotals(snapshot)

		shift.Status = domain.ShiftStatusClosed
		shift.ClosedBy = in.ClosedBy
		shift.ClosedAt = &closedAt
		shift.NetRevenue = &totals.NetRevenue
		shift.TotalExpenses = &totals.TotalExpenses
		shift.TotalWithdrawals = &totals.TotalWithdrawals
		shift.DeclaredCash = in.DeclaredCash
		shift.CashDiscrepancy = nil
		if in.DeclaredCash != nil {
			diff := in.DeclaredCash.Sub(totals.ExpectedCash)
			shift.CashDiscrepancy = &diff
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE shifts
			SET status = $2, closed_by = $3, closed_at = $4, net_revenue = $5,
				total_expenses = $6, total_withdrawals = $7, declared_cash = $8, cash_discrepancy = $9
			WHERE id = $1
		`, shift.ID, shift.Status, shift.ClosedBy, closedAt, totals.NetRevenue, totals.TotalExpenses,
			totals.TotalWithdrawals, nullDecimal(shift.DeclaredCash), nullDecimal(shift.CashDiscrepancy))
		if err != nil {
			return err
		}
		snapshot.Shift = shift
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (s *Store) ReopenShift(ctx context.Context, shiftID string) (*domain.Shift, error) {
	var reopened domain.Shift
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		shift, err := scanShift(tx.QueryRowContext(ctx, `
			SELECT `+shiftColumns+`
			FROM shifts s
			WHERE s.id = $1
			FOR UPDATE
		`, shiftID))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}
		if shift.Status != domain.ShiftStatusClosed {
			return store.ErrNotClosed
		}
		if err := requireNoOpenShift(ctx, tx); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE shifts
			SET status = 'OPEN', closed_by = NULL, closed_at = NULL, net_revenue = NULL,
				total_expenses = NULL, total_withdrawals = NULL, declared_cash = NULL, cash_discrepancy = NULL
			WHERE id = $1
		`, shift.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return store.ErrAnotherShiftOpen
			}
			return err
		}
		shift.Status = domain.ShiftStatusOpen
		clearClosing(&shift)
		reopened = shift
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &reopened, nil
}

func (s *Store) ListShifts(ctx context.Context, filter store.ShiftFilter) ([]domain.ShiftSummary, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+shiftColumns+`,
			(SELECT COUNT(*) FROM sales WHERE shift_id = s.id)::int,
			(SELECT COUNT(*) FROM expenses WHERE shift_id = s.id)::int,
			(SELECT COUNT(*) FROM withdrawals WHERE shift_id = s.id)::int
		FROM shifts s
		WHERE ($1::timestamptz IS NULL OR s.opened_at >= $1)
			AND ($2::timestamptz IS NULL OR s.opened_at < $2)
			AND ($3 = '' OR s.status = $3)
			AND ($4 = '' OR s.label = $4)
		ORDER BY s.opened_at DESC, s.id DESC
		LIMIT $5
	`, nullBound(filter.From), nullBound(filter.To), filter.Status, filter.Label, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.ShiftSummary, 0, 16)
	for rows.Next() {
		var summary domain.ShiftSummary
		shift, err := scanShift(rows, &summary.Sales, &summary.Expenses, &summary.Withdrawals)
		if err != nil {
			return nil, err
		}
		summary.Shift = shift
		result = append(result, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) InsertSale(ctx context.Context, expectedShiftID string, sale domain.Sale) (*domain.Sale, error) {
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		shift, err := attachShift(ctx, tx, expectedShiftID)
		if err != nil {
			return err
		}
		sale.ShiftID = shift.ID
		sale.ShiftLabel = shift.Label

		_, err = tx.ExecContext(ctx, `
			INSERT INTO sales (
				id, shift_id, shift_label, created_at, channel, table_id, gross_total, paid_amount,
				instrument, flag, invoice_issued, service_fee_rate, delivery_fee, courier, server,
				note, party_size, change_given, created_by
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		`, sale.ID, sale.ShiftID, sale.ShiftLabel, sale.CreatedAt, sale.Channel, sale.TableID,
			sale.GrossTotal, sale.PaidAmount, sale.Instrument, sale.Flag, sale.InvoiceIssued,
			sale.ServiceFeeRate, sale.DeliveryFee, sale.Courier, sale.Server, sale.Note,
			max(sale.PartySize, 1), sale.ChangeGiven, sale.CreatedBy)
		if err != nil {
			return err
		}

		for i, split := range sale.Splits {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO sale_payments (sale_id, position, instrument, flag, amount)
				VALUES ($1,$2,$3,$4,$5)
			`, sale.ID, i, split.Instrument, split.Flag, split.Amount)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	saved := sale
	return &saved, nil
}

func (s *Store) InsertExpense(ctx context.Context, expectedShiftID string, expense domain.Expense) (*domain.Expense, error) {
	if expense.ID == "" {
		expense.ID = xid.New("saida")
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		shift, err := attachShift(ctx, tx, expectedShiftID)
		if err != nil {
			return err
		}
		expense.ShiftID = shift.ID
		expense.ShiftLabel = shift.Label

		_, err = tx.ExecContext(ctx, `
			INSERT INTO expenses (id, shift_id, shift_label, created_at, category, amount, instrument, note, created_by)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, expense.ID, expense.ShiftID, expense.ShiftLabel, expense.CreatedAt, expense.Category,
			expense.Amount, expense.Instrument, expense.Note, expense.CreatedBy)
		return err
	})
	if err != nil {
		return nil, err
	}
	saved := expense
	return &saved, nil
}

func (s *Store) InsertWithdrawal(ctx context.Context, expectedShiftID string, withdrawal domain.Withdrawal) (*domain.Withdrawal, error) {
	if withdrawal.ID == "" {
		withdrawal.ID = xid.New("sangria")
	}
	if withdrawal.CreatedAt.IsZero() {
		withdrawal.CreatedAt = time.Now().UTC()
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		shift, err := attachShift(ctx, tx, expectedShiftID)
		if err != nil {
			return err
		}
		withdrawal.ShiftID = shift.ID
		withdrawal.ShiftLabel = shift.Label
		return insertWithdrawal(ctx, tx, withdrawal)
	})
	if err != nil {
		return nil, err
	}
	saved := withdrawal
	return &saved, nil
}

func insertWithdrawal(ctx context.Context, tx *sql.Tx, w domain.Withdrawal) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO withdrawals (id, shift_id, shift_label, created_at, amount, note, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, w.ID, w.ShiftID, w.ShiftLabel, w.CreatedAt, w.Amount, w.Note, w.CreatedBy)
	return err
}

// LoadShiftLedger reads the shift and its entries from one snapshot.
func (s *Store) LoadShiftLedger(ctx context.Context, shiftID string) (*domain.ShiftLedger, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	shift, err := scanShift(tx.QueryRowContext(ctx, `
		SELECT `+shiftColumns+`
		FROM shifts s
		WHERE s.id = $1
	`, shiftID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	snapshot, err := loadLedger(ctx, tx, shift)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadLedger(ctx context.Context, q queryer, shift domain.Shift) (domain.ShiftLedger, error) {
	snapshot := domain.ShiftLedger{Shift: shift}

	byShift := `WHERE shift_id = $1 ORDER BY created_at ASC, id ASC`
	sales, err := querySales(ctx, q, byShift, shift.ID)
	if err != nil {
		return snapshot, err
	}
	expenses, err := queryExpenses(ctx, q, byShift, shift.ID)
	if err != nil {
		return snapshot, err
	}
	withdrawals, err := queryWithdrawals(ctx, q, byShift, shift.ID)
	if err != nil {
		return snapshot, err
	}
	snapshot.Sales = sales
	snapshot.Expenses = expenses
	snapshot.Withdrawals = withdrawals
	return snapshot, nil
}

func (s *Store) ListSales(ctx context.Context, filter store.SaleFilter) ([]domain.Sale, error) {
	return querySales(ctx, s.db, `
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
			AND ($2::timestamptz IS NULL OR created_at < $2)
			AND ($3 = '' OR channel = $3)
			AND ($4 = '' OR shift_label = $4)
			AND ($5 = '' OR courier = $5)
			AND ($6 = '' OR server = $6)
		ORDER BY created_at ASC, id ASC
	`, nullBound(filter.From), nullBound(filter.To), filter.Channel, filter.Label, filter.Courier, filter.Server)
}

func (s *Store) ListExpenses(ctx context.Context, filter store.EntryFilter) ([]domain.Expense, error) {
	return queryExpenses(ctx, s.db, `
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
			AND ($2::timestamptz IS NULL OR created_at < $2)
			AND ($3 = '' OR shift_label = $3)
		ORDER BY created_at ASC, id ASC
	`, nullBound(filter.From), nullBound(filter.To), filter.Label)
}

func (s *Store) ListWithdrawals(ctx context.Context, filter store.EntryFilter) ([]domain.Withdrawal, error) {
	return queryWithdrawals(ctx, s.db, `
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
			AND ($2::timestamptz IS NULL OR created_at < $2)
			AND ($3 = '' OR shift_label = $3)
		ORDER BY created_at ASC, id ASC
	`, nullBound(filter.From), nullBound(filter.To), filter.Label)
}

func querySales(ctx context.Context, q queryer, where string, args ...any) ([]domain.Sale, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, shift_id, shift_label, created_at, channel, table_id, gross_total, paid_amount,
			instrument, flag, invoice_issued, service_fee_rate, delivery_fee, courier, server,
			note, party_size, change_given, created_by
		FROM sales
	`+where, args...)
	if err != nil {
		return nil, err
	}

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(
			&sale.ID,
			&sale.ShiftID,
			&sale.ShiftLabel,
			&sale.CreatedAt,
			&sale.Channel,
			&sale.TableID,
			&sale.GrossTotal,
			&sale.PaidAmount,
			&sale.Instrument,
			&sale.Flag,
			&sale.InvoiceIssued,
			&sale.ServiceFeeRate,
			&sale.DeliveryFee,
			&sale.Courier,
			&sale.Server,
			&sale.Note,
			&sale.PartySize,
			&sale.ChangeGiven,
			&sale.CreatedBy,
		); err != nil {
			_ = rows.Close()
			return nil, err
		}
		sale.CreatedAt = sale.CreatedAt.UTC()
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if len(sales) == 0 {
		return sales, nil
	}
	if err := attachSplits(ctx, q, sales); err != nil {
		return nil, err
	}
	return sales, nil
}

func attachSplits(ctx context.Context, q queryer, sales []domain.Sale) error {
	ids := make([]string, 0, len(sales))
	index := make(map[string]int, len(sales))
	for i, sale := range sales {
		ids = append(ids, sale.ID)
		index[sale.ID] = i
	}

	rows, err := q.QueryContext(ctx, `
		SELECT sale_id, instrument, flag, amount
		FROM sale_payments
		WHERE sale_id = ANY($1)
		ORDER BY sale_id, position
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var saleID string
		var split domain.PaymentSplit
		if err := rows.Scan(&saleID, &split.Instrument, &split.Flag, &split.Amount); err != nil {
			return err
		}
		if i, ok := index[saleID]; ok {
			sales[i].Splits = append(sales[i].Splits, split)
		}
	}
	return rows.Err()
}

func queryExpenses(ctx context.Context, q queryer, where string, args ...any) ([]domain.Expense, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, shift_id, shift_label, created_at, category, amount, instrument, note, created_by
		FROM expenses
	`+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0, 32)
	for rows.Next() {
		var e domain.Expense
		if err := rows.Scan(&e.ID, &e.ShiftID, &e.ShiftLabel, &e.CreatedAt, &e.Category, &e.Amount, &e.Instrument, &e.Note, &e.CreatedBy); err != nil {
			return nil, err
		}
		e.CreatedAt = e.CreatedAt.UTC()
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return expenses, nil
}

func queryWithdrawals(ctx context.Context, q queryer, where string, args ...any) ([]domain.Withdrawal, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, shift_id, shift_label, created_at, amount, note, created_by
		FROM withdrawals
	`+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	withdrawals := make([]domain.Withdrawal, 0, 16)
	for rows.Next() {
		var w domain.Withdrawal
		if err := rows.Scan(&w.ID, &w.ShiftID, &w.ShiftLabel, &w.CreatedAt, &w.Amount, &w.Note, &w.CreatedBy); err != nil {
			return nil, err
		}
		w.CreatedAt = w.CreatedAt.UTC()
		withdrawals = append(withdrawals, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return withdrawals, nil
}

func (s *Store) ListPartyNames(ctx context.Context) ([]string, []string, error) {
	servers, err := s.distinctNames(ctx, `
		SELECT DISTINCT server FROM sales
		WHERE server <> '' AND server <> 'N/A'
		ORDER BY server
	`)
	if err != nil {
		return nil, nil, err
	}
	couriers, err := s.distinctNames(ctx, `
		SELECT DISTINCT courier FROM sales
		WHERE courier <> '' AND courier <> 'N/A'
		ORDER BY courier
	`)
	if err != nil {
		return nil, nil, err
	}
	return servers, couriers, nil
}

func (s *Store) distinctNames(ctx context.Context, query string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := make([]string, 0, 16)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, strings.TrimSpace(name))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return names, nil
}

func (s *Store) ListTableIDs(ctx context.Context, from time.Time, to time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT table_id
		FROM sales
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
			AND ($2::timestamptz IS NULL OR created_at < $2)
	`, nullBound(from), nullBound(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0, 32)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1
			AND created_at < $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if user.Role == "" {
		user.Role = domain.RoleOperator
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,true,$4,now())
	`, user.Username, user.Password, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidTransaction
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// lockOpenShift returns the open shift row locked for the rest of tx.
func lockOpenShift(ctx context.Context, tx *sql.Tx) (domain.Shift, error) {
	shift, err := scanShift(tx.QueryRowContext(ctx, `
		SELECT `+shiftColumns+`
		FROM shifts s
		WHERE s.status = 'OPEN'
		FOR UPDATE
	`))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Shift{}, store.ErrNoOpenShift
		}
		return domain.Shift{}, err
	}
	return shift, nil
}

func requireNoOpenShift(ctx context.Context, tx *sql.Tx) error {
	_, err := lockOpenShift(ctx, tx)
	switch {
	case err == nil:
		return store.ErrAnotherShiftOpen
	case errors.Is(err, store.ErrNoOpenShift):
		return nil
	default:
		return err
	}
}

func attachShift(ctx context.Context, tx *sql.Tx, expectedShiftID string) (domain.Shift, error) {
	shift, err := lockOpenShift(ctx, tx)
	if err != nil {
		return domain.Shift{}, err
	}
	if expectedShiftID != "" && expectedShiftID != shift.ID {
		return domain.Shift{}, store.ErrNoOpenShift
	}
	return shift, nil
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

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001"
	}
	return false
}

func decimalPtr(val decimal.NullDecimal) *decimal.Decimal {
	if !val.Valid {
		return nil
	}
	d := val.Decimal
	return &d
}

func nullDecimal(val *decimal.Decimal) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullBound(val time.Time) any {
	if val.IsZero() {
		return nil
	}
	return val
}
