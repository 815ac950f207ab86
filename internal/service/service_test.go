package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"caixa/backend/internal/domain"
	"caixa/backend/internal/ledger"
	"caixa/backend/internal/store"
	"caixa/backend/internal/store/memory"
)

var fixedNow = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestService(opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return fixedNow }
	}
	return New(memory.NewSeeded(), opts)
}

func supervisorCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "supervisor", Role: domain.RoleSupervisor})
}

func operatorCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "caixa", Role: domain.RoleOperator})
}

func openShift(t *testing.T, svc *Service, float string) domain.Shift {
	t.Helper()
	resp, err := svc.OpenShift(operatorCtx(), domain.ShiftOpenRequest{Label: "Manhã", OpeningFloat: dec(float)})
	if err != nil {
		t.Fatalf("open shift failed: %v", err)
	}
	return resp.Shift
}

func TestOpenShiftNormalizesLabelAndRejectsSecondShift(t *testing.T) {
	svc := newTestService(Options{})
	shift := openShift(t, svc, "100")

	if shift.Label != domain.ShiftLabelMorning {
		t.Fatalf("expected MORNING label, got %s", shift.Label)
	}
	if shift.OpenedBy != "caixa" {
		t.Fatalf("expected opener caixa, got %s", shift.OpenedBy)
	}

	_, err := svc.OpenShift(operatorCtx(), domain.ShiftOpenRequest{Label: "NOITE", OpeningFloat: dec("0")})
	if !errors.Is(err, store.ErrAnotherShiftOpen) {
		t.Fatalf("expected ErrAnotherShiftOpen, got %v", err)
	}
}

func TestOpenShiftValidation(t *testing.T) {
	svc := newTestService(Options{})

	_, err := svc.OpenShift(operatorCtx(), domain.ShiftOpenRequest{Label: "NIGHT", OpeningFloat: dec("-1")})
	if !errors.Is(err, store.ErrNegativeFloat) {
		t.Fatalf("expected ErrNegativeFloat, got %v", err)
	}

	_, err = svc.OpenShift(operatorCtx(), domain.ShiftOpenRequest{Label: "tarde", OpeningFloat: dec("0")})
	if !errors.Is(err, store.ErrInvalidTransaction) || !errors.Is(err, ledger.ErrUnknownShiftLabel) {
		t.Fatalf("expected unknown label error, got %v", err)
	}

	_, err = svc.OpenShift(operatorCtx(), domain.ShiftOpenRequest{OpeningFloat: dec("0")})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected missing label to be invalid, got %v", err)
	}
}

func TestEntriesRequireTheOpenShift(t *testing.T) {
	svc := newTestService(Options{})
	ctx := operatorCtx()

	_, err := svc.RegisterWithdrawal(ctx, domain.WithdrawalRequest{Amount: dec("10")})
	if !errors.Is(err, store.ErrNoOpenShift) {
		t.Fatalf("expected ErrNoOpenShift without a shift, got %v", err)
	}

	shift := openShift(t, svc, "50")
	_, err = svc.RegisterExpense(ctx, domain.ExpenseRequest{
		ShiftID:    "shift-stale",
		Category:   "reembolso",
		Amount:     dec("5"),
		Instrument: "dinheiro",
	})
	if !errors.Is(err, store.ErrNoOpenShift) {
		t.Fatalf("expected ErrNoOpenShift for a stale shift id, got %v", err)
	}

	expense, err := svc.RegisterExpense(ctx, domain.ExpenseRequest{
		ShiftID:    shift.ID,
		Category:   "reembolso",
		Amount:     dec("5"),
		Instrument: "dinheiro",
	})
	if err != nil {
		t.Fatalf("register expense failed: %v", err)
	}
	if expense.Category != "REEMBOLSO" || expense.Instrument != domain.InstrumentCash {
		t.Fatalf("expected normalized expense, got %s/%s", expense.Category, expense.Instrument)
	}
	if expense.ShiftLabel != domain.ShiftLabelMorning {
		t.Fatalf("expected expense to carry the shift label, got %s", expense.ShiftLabel)
	}
}

func TestRegisterExpenseRejectsUnsupportedInstrument(t *testing.T) {
	svc := newTestService(Options{})
	openShift(t, svc, "0")

	_, err := svc.RegisterExpense(operatorCtx(), domain.ExpenseRequest{
		Category:   "COMPRA DE INSUMOS",
		Amount:     dec("12"),
		Instrument: "MEAL_VOUCHER",
	})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected ErrInvalidTransaction, got %v", err)
	}
}

func TestDineInSaleComposesTotals(t *testing.T) {
	svc := newTestService(Options{})
	openShift(t, svc, "100")

	resp, err := svc.RegisterDineInSale(operatorCtx(), domain.DineInSaleRequest{
		TableID:    "7",
		BaseAmount: dec("100"),
		Server:     "Ana",
		PartySize:  0,
		Note:       "aniversario",
		Splits: []domain.PaymentSplit{
			{Instrument: "dinheiro", Amount: dec("50")},
			{Instrument: "PIX", Amount: dec("70")},
		},
	})
	if err != nil {
		t.Fatalf("register dine-in sale failed: %v", err)
	}

	sale := resp.Sale
	if !sale.GrossTotal.Equal(dec("110")) {
		t.Fatalf("expected gross 110, got %s", sale.GrossTotal)
	}
	if !sale.ChangeGiven.Equal(dec("10")) || !sale.PaidAmount.Equal(dec("110")) {
		t.Fatalf("expected change 10 and paid 110, got %s/%s", sale.ChangeGiven, sale.PaidAmount)
	}
	if sale.Instrument != domain.InstrumentMultiple || sale.Flag != domain.InstrumentMultiple {
		t.Fatalf("expected MULTIPLE instrument and flag, got %s/%s", sale.Instrument, sale.Flag)
	}
	if sale.PartySize != 1 || sale.Courier != domain.NotApplicable {
		t.Fatalf("expected party size 1 and courier N/A, got %d/%s", sale.PartySize, sale.Courier)
	}
	if !strings.HasPrefix(sale.Note, "aniversario | Formas de Pagamento:") {
		t.Fatalf("unexpected note %q", sale.Note)
	}
	if len(sale.Splits) != 2 {
		t.Fatalf("expected 2 splits, got %d", len(sale.Splits))
	}
}

func TestDineInSaleRejectsChangeWithoutCash(t *testing.T) {
	svc := newTestService(Options{})
	openShift(t, svc, "0")

	_, err := svc.RegisterDineInSale(operatorCtx(), domain.DineInSaleRequest{
		TableID:    "2",
		BaseAmount: dec("100"),
		Server:     "Ana",
		Splits:     []domain.PaymentSplit{{Instrument: "PIX", Amount: dec("120")}},
	})
	if !errors.Is(err, store.ErrInvalidTransaction) || !errors.Is(err, ledger.ErrChangeWithoutCash) {
		t.Fatalf("expected change-without-cash error, got %v", err)
	}

	_, err = svc.RegisterDineInSale(operatorCtx(), domain.DineInSaleRequest{
		TableID:    "2",
		BaseAmount: dec("100"),
		Server:     "Ana",
		Splits:     []domain.PaymentSplit{{Instrument: "CASH", Amount: dec("100")}},
	})
	if !errors.Is(err, ledger.ErrInsufficientPayment) {
		t.Fatalf("expected insufficient payment, got %v", err)
	}
}

func TestDeliverySaleNetsFeeForAppOrders(t *testing.T) {
	svc := newTestService(Options{})
	openShift(t, svc, "0")

	resp, err := svc.RegisterDeliverySale(operatorCtx(), domain.DeliverySaleRequest{
		OrderRef:    "IF-1234",
		Courier:     "app",
		Flag:        "ifood",
		GrossTotal:  dec("60"),
		DeliveryFee: dec("8"),
		Instrument:  "pagamento online",
	})
	if err != nil {
		t.Fatalf("register delivery sale failed: %v", err)
	}
	if !resp.Sale.PaidAmount.Equal(dec("52")) {
		t.Fatalf("expected paid 52, got %s", resp.Sale.PaidAmount)
	}
	if resp.Sale.Courier != ledger.CourierApp || resp.Sale.Server != domain.NotApplicable {
		t.Fatalf("unexpected courier/server %s/%s", resp.Sale.Courier, resp.Sale.Server)
	}

	resp, err = svc.RegisterDeliverySale(operatorCtx(), domain.DeliverySaleRequest{
		OrderRef:    "42",
		Courier:     "proprio",
		GrossTotal:  dec("60"),
		DeliveryFee: dec("8"),
		Instrument:  "CASH",
	})
	if err != nil {
		t.Fatalf("register own-courier sale failed: %v", err)
	}
	if !resp.Sale.PaidAmount.Equal(dec("60")) || resp.Sale.Courier != ledger.CourierOwn {
		t.Fatalf("expected full gross on own courier, got %s/%s", resp.Sale.PaidAmount, resp.Sale.Courier)
	}

	_, err = svc.RegisterDeliverySale(operatorCtx(), domain.DeliverySaleRequest{
		OrderRef:    "43",
		Courier:     "App",
		GrossTotal:  dec("10"),
		DeliveryFee: dec("12"),
		Instrument:  "PIX",
	})
	if !errors.Is(err, ledger.ErrInvalidDeliveryFee) {
		t.Fatalf("expected ErrInvalidDeliveryFee, got %v", err)
	}
}

func TestRegisterSaleChecksSplitsAgainstPaid(t *testing.T) {
	svc := newTestService(Options{})
	openShift(t, svc, "0")

	_, err := svc.RegisterSale(operatorCtx(), domain.SaleRequest{
		Channel:    domain.ChannelDineIn,
		GrossTotal: dec("50"),
		PaidAmount: dec("50"),
		Instrument: "MULTIPLE",
		Splits: []domain.PaymentSplit{
			{Instrument: "CASH", Amount: dec("20")},
			{Instrument: "DEBIT", Amount: dec("20")},
		},
	})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected mismatched splits to be rejected, got %v", err)
	}

	resp, err := svc.RegisterSale(operatorCtx(), domain.SaleRequest{
		Channel:    domain.ChannelDineIn,
		GrossTotal: dec("50"),
		PaidAmount: dec("50"),
		Instrument: "MULTIPLE",
		Splits: []domain.PaymentSplit{
			{Instrument: "CASH", Amount: dec("20")},
			{Instrument: "DEBIT", Flag: "elo", Amount: dec("30")},
		},
	})
	if err != nil {
		t.Fatalf("register sale failed: %v", err)
	}
	if resp.Sale.Splits[1].Flag != "ELO" {
		t.Fatalf("expected normalized flag ELO, got %s", resp.Sale.Splits[1].Flag)
	}
}

func TestCloseShiftReconcilesDrawer(t *testing.T) {
	svc := newTestService(Options{})
	ctx := operatorCtx()
	openShift(t, svc, "100")

	if _, err := svc.RegisterDineInSale(ctx, domain.DineInSaleRequest{
		TableID:    "1",
		BaseAmount: dec("100"),
		Server:     "Ana",
		Splits: []domain.PaymentSplit{
			{Instrument: "CASH", Amount: dec("50")},
			{Instrument: "PIX", Amount: dec("70")},
		},
	}); err != nil {
		t.Fatalf("register sale failed: %v", err)
	}
	if _, err := svc.RegisterExpense(ctx, domain.ExpenseRequest{Category: "REEMBOLSO", Amount: dec("15"), Instrument: "CASH"}); err != nil {
		t.Fatalf("register expense failed: %v", err)
	}
	if _, err := svc.RegisterWithdrawal(ctx, domain.WithdrawalRequest{Amount: dec("20")}); err != nil {
		t.Fatalf("register withdrawal failed: %v", err)
	}

	declared := dec("75")
	resp, err := svc.CloseShift(ctx, domain.ShiftCloseRequest{ClosingWithdrawal: dec("30"), DeclaredCash: &declared})
	if err != nil {
		t.Fatalf("close shift failed: %v", err)
	}

	rec := resp.Reconciliation
	// 100 float + 40 net cash - 15 expense - 20 - 30 withdrawals
	if !rec.ExpectedCashBalance.Equal(dec("75")) {
		t.Fatalf("expected cash balance 75, got %s", rec.ExpectedCashBalance)
	}
	if !rec.TotalWithdrawals.Equal(dec("50")) {
		t.Fatalf("expected withdrawals 50, got %s", rec.TotalWithdrawals)
	}
	if rec.DiscrepancyLevel != ledger.DiscrepancyOK || rec.CashDiscrepancy == nil || !rec.CashDiscrepancy.IsZero() {
		t.Fatalf("expected a balanced drawer, got %v %s", rec.CashDiscrepancy, rec.DiscrepancyLevel)
	}
	if resp.Shift.Status != domain.ShiftStatusClosed || resp.Shift.ClosedBy != "caixa" {
		t.Fatalf("expected closed shift by caixa, got %s/%s", resp.Shift.Status, resp.Shift.ClosedBy)
	}
	if resp.Shift.NetRevenue == nil || !resp.Shift.NetRevenue.Equal(dec("100")) {
		t.Fatalf("expected net revenue 100, got %v", resp.Shift.NetRevenue)
	}

	withdrawals, err := svc.ListShiftWithdrawals(ctx, resp.Shift.ID)
	if err != nil {
		t.Fatalf("list withdrawals failed: %v", err)
	}
	if len(withdrawals) != 2 || withdrawals[0].Note != ledger.ClosingSangriaNote {
		t.Fatalf("expected the closing withdrawal to be recorded, got %+v", withdrawals)
	}

	_, err = svc.CloseShift(ctx, domain.ShiftCloseRequest{})
	if !errors.Is(err, store.ErrNoOpenShift) {
		t.Fatalf("expected ErrNoOpenShift on second close, got %v", err)
	}
}

func TestCloseShiftRejectsNegativeWithdrawal(t *testing.T) {
	svc := newTestService(Options{})
	openShift(t, svc, "10")

	_, err := svc.CloseShift(operatorCtx(), domain.ShiftCloseRequest{ClosingWithdrawal: dec("-5")})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected ErrInvalidTransaction, got %v", err)
	}
	if _, err := svc.CurrentShift(operatorCtx()); err != nil {
		t.Fatalf("expected shift to stay open, got %v", err)
	}
}

func TestReopenShiftNeedsSupervisor(t *testing.T) {
	svc := newTestService(Options{VerifySupervisorPIN: func(pin string) bool { return pin == "482916" }})
	shift := openShift(t, svc, "0")
	if _, err := svc.CloseShift(operatorCtx(), domain.ShiftCloseRequest{}); err != nil {
		t.Fatalf("close shift failed: %v", err)
	}

	_, err := svc.ReopenShift(operatorCtx(), shift.ID, domain.ShiftReopenRequest{})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	_, err = svc.ReopenShift(operatorCtx(), shift.ID, domain.ShiftReopenRequest{SupervisorPIN: "000000"})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for a wrong pin, got %v", err)
	}

	resp, err := svc.ReopenShift(operatorCtx(), shift.ID, domain.ShiftReopenRequest{SupervisorPIN: "482916"})
	if err != nil {
		t.Fatalf("reopen with pin failed: %v", err)
	}
	if resp.Shift.Status != domain.ShiftStatusOpen || resp.Shift.ClosedAt != nil || resp.Shift.NetRevenue != nil {
		t.Fatalf("expected closing fields cleared, got %+v", resp.Shift)
	}

	_, err = svc.ReopenShift(supervisorCtx(), shift.ID, domain.ShiftReopenRequest{})
	if !errors.Is(err, store.ErrNotClosed) {
		t.Fatalf("expected ErrNotClosed, got %v", err)
	}
	_, err = svc.ReopenShift(supervisorCtx(), "shift-missing", domain.ShiftReopenRequest{})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReopenShiftKeepsEntriesAttributed(t *testing.T) {
	svc := newTestService(Options{})
	ctx := operatorCtx()
	shift := openShift(t, svc, "50")

	if _, err := svc.RegisterSale(ctx, domain.SaleRequest{
		Channel: domain.ChannelDineIn, GrossTotal: dec("30"), PaidAmount: dec("30"), Instrument: "CASH",
	}); err != nil {
		t.Fatalf("register sale failed: %v", err)
	}
	if _, err := svc.RegisterExpense(ctx, domain.ExpenseRequest{Category: "REEMBOLSO", Amount: dec("5"), Instrument: "PIX"}); err != nil {
		t.Fatalf("register expense failed: %v", err)
	}
	if _, err := svc.RegisterWithdrawal(ctx, domain.WithdrawalRequest{Amount: dec("10")}); err != nil {
		t.Fatalf("register withdrawal failed: %v", err)
	}
	if _, err := svc.CloseShift(ctx, domain.ShiftCloseRequest{}); err != nil {
		t.Fatalf("close shift failed: %v", err)
	}

	resp, err := svc.ReopenShift(supervisorCtx(), shift.ID, domain.ShiftReopenRequest{})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if resp.Shift.ID != shift.ID || resp.Shift.Status != domain.ShiftStatusOpen {
		t.Fatalf("expected the same shift reopened, got %+v", resp.Shift)
	}

	sales, err := svc.ListShiftSales(ctx, shift.ID)
	if err != nil || len(sales) != 1 || sales[0].ShiftID != shift.ID {
		t.Fatalf("expected 1 sale still attributed, got %+v (%v)", sales, err)
	}
	expenses, err := svc.ListShiftExpenses(ctx, shift.ID)
	if err != nil || len(expenses) != 1 || expenses[0].ShiftID != shift.ID {
		t.Fatalf("expected 1 expense still attributed, got %+v (%v)", expenses, err)
	}
	withdrawals, err := svc.ListShiftWithdrawals(ctx, shift.ID)
	if err != nil || len(withdrawals) != 1 || withdrawals[0].ShiftID != shift.ID {
		t.Fatalf("expected 1 withdrawal still attributed, got %+v (%v)", withdrawals, err)
	}

	rec, err := svc.Reconcile(ctx, shift.ID)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	// 50 float + 30 cash - 10 withdrawal
	if !rec.ExpectedCashBalance.Equal(dec("70")) || rec.SaleCount != 1 {
		t.Fatalf("expected balance 70 over 1 sale, got %s over %d", rec.ExpectedCashBalance, rec.SaleCount)
	}
}

func TestReopenShiftRejectedWhileAnotherIsOpen(t *testing.T) {
	svc := newTestService(Options{})
	first := openShift(t, svc, "0")
	if _, err := svc.RegisterWithdrawal(operatorCtx(), domain.WithdrawalRequest{Amount: dec("10")}); err != nil {
		t.Fatalf("register withdrawal failed: %v", err)
	}
	if _, err := svc.CloseShift(operatorCtx(), domain.ShiftCloseRequest{}); err != nil {
		t.Fatalf("close shift failed: %v", err)
	}
	second := openShift(t, svc, "0")

	_, err := svc.ReopenShift(supervisorCtx(), first.ID, domain.ShiftReopenRequest{})
	if !errors.Is(err, store.ErrAnotherShiftOpen) {
		t.Fatalf("expected ErrAnotherShiftOpen, got %v", err)
	}

	got, err := svc.GetShift(operatorCtx(), first.ID)
	if err != nil || got.Shift.Status != domain.ShiftStatusClosed {
		t.Fatalf("expected first shift to stay closed, got %+v (%v)", got.Shift, err)
	}
	current, err := svc.CurrentShift(operatorCtx())
	if err != nil || current.Shift.ID != second.ID {
		t.Fatalf("expected second shift to stay open, got %+v (%v)", current.Shift, err)
	}
	withdrawals, err := svc.ListShiftWithdrawals(operatorCtx(), first.ID)
	if err != nil || len(withdrawals) != 1 {
		t.Fatalf("expected first shift to keep its withdrawal, got %+v (%v)", withdrawals, err)
	}
}

func TestShiftListingsAreNewestFirst(t *testing.T) {
	tick := fixedNow
	svc := newTestService(Options{Clock: func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	}})
	ctx := operatorCtx()
	shift := openShift(t, svc, "0")

	for _, note := range []string{"first", "second", "third"} {
		if _, err := svc.RegisterSale(ctx, domain.SaleRequest{
			Channel: domain.ChannelDineIn, GrossTotal: dec("10"), PaidAmount: dec("10"), Instrument: "PIX", Note: note,
		}); err != nil {
			t.Fatalf("register sale failed: %v", err)
		}
		if _, err := svc.RegisterExpense(ctx, domain.ExpenseRequest{Category: "REEMBOLSO", Amount: dec("1"), Instrument: "PIX", Note: note}); err != nil {
			t.Fatalf("register expense failed: %v", err)
		}
		if _, err := svc.RegisterWithdrawal(ctx, domain.WithdrawalRequest{Amount: dec("1"), Note: note}); err != nil {
			t.Fatalf("register withdrawal failed: %v", err)
		}
	}

	want := []string{"third", "second", "first"}
	sales, err := svc.ListShiftSales(ctx, shift.ID)
	if err != nil {
		t.Fatalf("list sales failed: %v", err)
	}
	expenses, err := svc.ListShiftExpenses(ctx, shift.ID)
	if err != nil {
		t.Fatalf("list expenses failed: %v", err)
	}
	withdrawals, err := svc.ListShiftWithdrawals(ctx, shift.ID)
	if err != nil {
		t.Fatalf("list withdrawals failed: %v", err)
	}
	if len(sales) != 3 || len(expenses) != 3 || len(withdrawals) != 3 {
		t.Fatalf("expected 3 of each, got %d/%d/%d", len(sales), len(expenses), len(withdrawals))
	}
	for i, note := range want {
		if sales[i].Note != note || expenses[i].Note != note || withdrawals[i].Note != note {
			t.Fatalf("position %d: expected %q, got sale %q expense %q withdrawal %q",
				i, note, sales[i].Note, expenses[i].Note, withdrawals[i].Note)
		}
	}

	// the reconcile snapshot keeps its own order
	rec, err := svc.Reconcile(ctx, shift.ID)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if rec.SaleCount != 3 || !rec.TotalWithdrawals.Equal(dec("3")) {
		t.Fatalf("unexpected reconciliation %+v", rec)
	}
}

func TestRegisterSaleDerivesInstrumentFromSplits(t *testing.T) {
	svc := newTestService(Options{})
	openShift(t, svc, "0")

	resp, err := svc.RegisterSale(operatorCtx(), domain.SaleRequest{
		Channel:    domain.ChannelDineIn,
		GrossTotal: dec("40"),
		PaidAmount: dec("40"),
		Splits: []domain.PaymentSplit{
			{Instrument: "CASH", Amount: dec("15")},
			{Instrument: "PIX", Amount: dec("25")},
		},
	})
	if err != nil {
		t.Fatalf("register sale without instrument failed: %v", err)
	}
	if resp.Sale.Instrument != domain.InstrumentMultiple {
		t.Fatalf("expected MULTIPLE from splits, got %s", resp.Sale.Instrument)
	}

	_, err = svc.RegisterSale(operatorCtx(), domain.SaleRequest{
		Channel:    domain.ChannelDineIn,
		GrossTotal: dec("40"),
		PaidAmount: dec("40"),
	})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected instrument to be required without splits, got %v", err)
	}
}

func TestShiftWithReconciliationReadsOneSnapshot(t *testing.T) {
	svc := newTestService(Options{})
	shift := openShift(t, svc, "20")
	if _, err := svc.RegisterWithdrawal(operatorCtx(), domain.WithdrawalRequest{Amount: dec("5")}); err != nil {
		t.Fatalf("register withdrawal failed: %v", err)
	}
	if _, err := svc.CloseShift(operatorCtx(), domain.ShiftCloseRequest{}); err != nil {
		t.Fatalf("close shift failed: %v", err)
	}

	got, rec, err := svc.ShiftWithReconciliation(operatorCtx(), shift.ID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got.ID != rec.ShiftID || got.Status != rec.Status || got.Status != domain.ShiftStatusClosed {
		t.Fatalf("expected header and figures from the same read, got %+v / %s %s", got, rec.ShiftID, rec.Status)
	}
	if got.TotalWithdrawals == nil || !got.TotalWithdrawals.Equal(rec.TotalWithdrawals) {
		t.Fatalf("expected stored totals to match the reconciliation, got %v vs %s", got.TotalWithdrawals, rec.TotalWithdrawals)
	}
	if _, _, err := svc.ShiftWithReconciliation(operatorCtx(), "shift-missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

type fakeCache struct {
	mu       sync.Mutex
	gen      int64
	entries  map[string]domain.Reconciliation
	hits     int
	failBump bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]domain.Reconciliation{}}
}

func (c *fakeCache) Get(_ context.Context, key string) (*domain.Reconciliation, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	c.hits++
	return &rec, true, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value *domain.Reconciliation, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = *value
	return nil
}

func (c *fakeCache) Generation(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen, nil
}

func (c *fakeCache) Bump(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failBump {
		return errors.New("redis unavailable")
	}
	c.gen++
	return nil
}

func TestReconcileServesCacheUntilNextWrite(t *testing.T) {
	fc := newFakeCache()
	svc := newTestService(Options{Cache: fc})
	shift := openShift(t, svc, "100")

	first, err := svc.Reconcile(operatorCtx(), shift.ID)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if _, err := svc.Reconcile(operatorCtx(), shift.ID); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if fc.hits != 1 {
		t.Fatalf("expected one cache hit, got %d", fc.hits)
	}

	if _, err := svc.RegisterWithdrawal(operatorCtx(), domain.WithdrawalRequest{Amount: dec("30")}); err != nil {
		t.Fatalf("register withdrawal failed: %v", err)
	}
	after, err := svc.Reconcile(operatorCtx(), shift.ID)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if !first.ExpectedCashBalance.Equal(dec("100")) || !after.ExpectedCashBalance.Equal(dec("70")) {
		t.Fatalf("expected 100 then 70, got %s then %s", first.ExpectedCashBalance, after.ExpectedCashBalance)
	}
}

func TestReconcileBypassesCacheWhenInvalidationFails(t *testing.T) {
	fc := newFakeCache()
	svc := newTestService(Options{Cache: fc})
	shift := openShift(t, svc, "100")

	if _, err := svc.Reconcile(operatorCtx(), shift.ID); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	fc.mu.Lock()
	fc.failBump = true
	fc.mu.Unlock()

	if _, err := svc.RegisterWithdrawal(operatorCtx(), domain.WithdrawalRequest{Amount: dec("25")}); err != nil {
		t.Fatalf("register withdrawal failed: %v", err)
	}
	rec, err := svc.Reconcile(operatorCtx(), shift.ID)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if !rec.ExpectedCashBalance.Equal(dec("75")) {
		t.Fatalf("expected fresh balance 75, got %s", rec.ExpectedCashBalance)
	}
	if fc.hits != 0 {
		t.Fatalf("expected no cache hits while invalidation is failing, got %d", fc.hits)
	}
}

func TestNextFreeTable(t *testing.T) {
	svc := newTestService(Options{})
	ctx := operatorCtx()

	next, err := svc.NextFreeTable(ctx)
	if err != nil {
		t.Fatalf("next free table failed: %v", err)
	}
	if next.TableID != "1" {
		t.Fatalf("expected table 1 on an empty day, got %s", next.TableID)
	}

	openShift(t, svc, "0")
	for _, table := range []string{"3", "12", "A5", "-4"} {
		if _, err := svc.RegisterDineInSale(ctx, domain.DineInSaleRequest{
			TableID:    table,
			BaseAmount: dec("10"),
			Server:     "Ana",
			Splits:     []domain.PaymentSplit{{Instrument: "CASH", Amount: dec("11")}},
		}); err != nil {
			t.Fatalf("register sale on table %s failed: %v", table, err)
		}
	}

	next, err = svc.NextFreeTable(ctx)
	if err != nil {
		t.Fatalf("next free table failed: %v", err)
	}
	if next.TableID != "13" {
		t.Fatalf("expected table 13, got %s", next.TableID)
	}
}

func TestListShiftsFilters(t *testing.T) {
	svc := newTestService(Options{})
	openShift(t, svc, "0")

	resp, err := svc.ListShifts(operatorCtx(), domain.ShiftListRequest{From: "2020-01-01", To: "2020-01-02"})
	if err != nil {
		t.Fatalf("list shifts failed: %v", err)
	}
	if len(resp.Shifts) != 1 {
		t.Fatalf("expected operators to see today's shift, got %d", len(resp.Shifts))
	}

	resp, err = svc.ListShifts(supervisorCtx(), domain.ShiftListRequest{From: "2026-03-10", To: "2026-03-10", Status: "CLOSED"})
	if err != nil {
		t.Fatalf("list shifts failed: %v", err)
	}
	if len(resp.Shifts) != 0 {
		t.Fatalf("expected no closed shifts, got %d", len(resp.Shifts))
	}

	_, err = svc.ListShifts(supervisorCtx(), domain.ShiftListRequest{Status: "PAUSED"})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected unknown status to be invalid, got %v", err)
	}
}

func TestPeriodReportIsSupervisorOnly(t *testing.T) {
	svc := newTestService(Options{})
	openShift(t, svc, "0")
	if _, err := svc.RegisterDeliverySale(operatorCtx(), domain.DeliverySaleRequest{
		OrderRef:    "9",
		Courier:     "Próprio",
		GrossTotal:  dec("40"),
		DeliveryFee: dec("5"),
		Instrument:  "PIX",
	}); err != nil {
		t.Fatalf("register delivery sale failed: %v", err)
	}

	_, err := svc.PeriodReport(operatorCtx(), domain.PeriodReportRequest{})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	rep, err := svc.PeriodReport(supervisorCtx(), domain.PeriodReportRequest{From: "2026-03-10", To: "2026-03-10", Channel: "ALL"})
	if err != nil {
		t.Fatalf("period report failed: %v", err)
	}
	if rep.KPIs.OrderCount != 1 || rep.KPIs.DeliveryCount != 1 {
		t.Fatalf("expected one delivery order, got %+v", rep.KPIs)
	}
	if !rep.KPIs.NetRevenue.Equal(dec("35")) || !rep.KPIs.DeliveryFeeTotal.Equal(dec("5")) {
		t.Fatalf("expected net 35 and delivery fee 5, got %s/%s", rep.KPIs.NetRevenue, rep.KPIs.DeliveryFeeTotal)
	}
	if rep.Filters.Channel != "" {
		t.Fatalf("expected ALL channel to clear the filter, got %q", rep.Filters.Channel)
	}
}

func TestMutationsAreAudited(t *testing.T) {
	svc := newTestService(Options{})
	openShift(t, svc, "0")
	if _, err := svc.RegisterWithdrawal(operatorCtx(), domain.WithdrawalRequest{Amount: dec("1")}); err != nil {
		t.Fatalf("register withdrawal failed: %v", err)
	}

	if _, err := svc.ListAuditLogs(operatorCtx(), "", 10); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for operators, got %v", err)
	}
	logs, err := svc.ListAuditLogs(supervisorCtx(), "2026-03-10", 10)
	if err != nil {
		t.Fatalf("list audit logs failed: %v", err)
	}
	actions := map[string]bool{}
	for _, entry := range logs {
		actions[entry.Action] = true
	}
	if !actions["shift_open"] || !actions["withdrawal_create"] {
		t.Fatalf("expected shift_open and withdrawal_create entries, got %v", actions)
	}
}

func TestCatalogIncludesKnownNames(t *testing.T) {
	svc := newTestService(Options{})
	openShift(t, svc, "0")
	if _, err := svc.RegisterDineInSale(operatorCtx(), domain.DineInSaleRequest{
		TableID:    "4",
		BaseAmount: dec("10"),
		Server:     "Bruno",
		Splits:     []domain.PaymentSplit{{Instrument: "CASH", Amount: dec("11")}},
	}); err != nil {
		t.Fatalf("register sale failed: %v", err)
	}

	catalog, err := svc.Catalog(operatorCtx())
	if err != nil {
		t.Fatalf("catalog failed: %v", err)
	}
	if len(catalog.KnownServers) != 1 || catalog.KnownServers[0] != "Bruno" {
		t.Fatalf("expected known server Bruno, got %v", catalog.KnownServers)
	}
	if len(catalog.ExpenseCategories) != 6 || len(catalog.Couriers) != 3 {
		t.Fatalf("unexpected static lists %v %v", catalog.ExpenseCategories, catalog.Couriers)
	}
	if catalog.KnownCouriers == nil {
		t.Fatalf("expected an empty, non-nil courier list")
	}
}
