package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"caixa/backend/internal/domain"
)

// Reconcile derives every cash-drawer and revenue figure of a shift from one
// ledger snapshot. It is pure: calling it twice on the same snapshot yields
// identical results.
func Reconcile(l domain.ShiftLedger) domain.Reconciliation {
	rec := domain.Reconciliation{
		ShiftID:      l.Shift.ID,
		ShiftLabel:   l.Shift.Label,
		Status:       l.Shift.Status,
		OpeningFloat: l.Shift.OpeningFloat,
		SaleCount:    len(l.Sales),
	}

	buckets := map[string]decimal.Decimal{}
	for _, sale := range l.Sales {
		attr := AttributeSale(sale)
		rec.CashCollected = rec.CashCollected.Add(attr.Cash)
		rec.ElectronicCollected = rec.ElectronicCollected.Add(attr.Electronic)
		rec.UnparsableSplitAmounts += attr.Unparsable
		for code, amount := range attr.Buckets {
			buckets[code] = buckets[code].Add(amount)
		}

		rec.GrossCollected = rec.GrossCollected.Add(sale.GrossTotal)
		parts := DecomposeSale(sale)
		rec.NetRevenue = rec.NetRevenue.Add(parts.Net)
		rec.ServiceFeeTotal = rec.ServiceFeeTotal.Add(parts.ServiceFee)
		rec.DeliveryFeeTotal = rec.DeliveryFeeTotal.Add(parts.DeliveryFee)
	}

	for _, expense := range l.Expenses {
		rec.TotalExpenses = rec.TotalExpenses.Add(expense.Amount)
		if NormalizeInstrument(expense.Instrument) == domain.InstrumentCash {
			rec.CashExpenses = rec.CashExpenses.Add(expense.Amount)
		}
	}
	for _, w := range l.Withdrawals {
		rec.TotalWithdrawals = rec.TotalWithdrawals.Add(w.Amount)
	}

	rec.ExpectedCashBalance = l.Shift.OpeningFloat.
		Add(rec.CashCollected).
		Sub(rec.CashExpenses).
		Sub(rec.TotalWithdrawals)
	rec.NetRevenue = Round2(rec.NetRevenue)
	rec.ServiceFeeTotal = Round2(rec.ServiceFeeTotal)
	rec.ByInstrument = orderedBreakdown(buckets)

	if rec.UnparsableSplitAmounts > 0 {
		rec.Warnings = append(rec.Warnings, fmt.Sprintf("%s: %d", WarnUnparsableSplitAmount, rec.UnparsableSplitAmounts))
	}
	if unclassified := buckets[domain.InstrumentUnclassified]; unclassified.IsPositive() {
		rec.Warnings = append(rec.Warnings, fmt.Sprintf("%s: %s", WarnUnclassifiedRemainder, FormatBRL(unclassified)))
	}

	if l.Shift.DeclaredCash != nil {
		declared := *l.Shift.DeclaredCash
		diff := declared.Sub(rec.ExpectedCashBalance)
		rec.DeclaredCash = &declared
		rec.CashDiscrepancy = &diff
		rec.DiscrepancyLevel = ClassifyDiscrepancy(diff, rec.ExpectedCashBalance)
	}
	return rec
}

// Breakdown buckets sales per instrument using the same attribution rules as Reconcile.
func Breakdown(sales []domain.Sale) ([]domain.InstrumentTotal, int) {
	buckets := map[string]decimal.Decimal{}
	unparsable := 0
	for _, sale := range sales {
		attr := AttributeSale(sale)
		unparsable += attr.Unparsable
		for code, amount := range attr.Buckets {
			buckets[code] = buckets[code].Add(amount)
		}
	}
	return orderedBreakdown(buckets), unparsable
}

func orderedBreakdown(buckets map[string]decimal.Decimal) []domain.InstrumentTotal {
	out := make([]domain.InstrumentTotal, 0, len(BreakdownOrder))
	for _, code := range BreakdownOrder {
		out = append(out, domain.InstrumentTotal{
			Instrument: code,
			Label:      InstrumentLabel(code),
			Amount:     Round2(buckets[code]),
		})
	}
	return out
}

// CloseTotals are the figures frozen onto a shift when it closes.
type CloseTotals struct {
	NetRevenue       decimal.Decimal
	TotalExpenses    decimal.Decimal
	TotalWithdrawals decimal.Decimal
	ExpectedCash     decimal.Decimal
}

func ComputeCloseTotals(l domain.ShiftLedger) CloseTotals {
	rec := Reconcile(l)
	return CloseTotals{
		NetRevenue:       rec.NetRevenue,
		TotalExpenses:    rec.TotalExpenses,
		TotalWithdrawals: rec.TotalWithdrawals,
		ExpectedCash:     rec.ExpectedCashBalance,
	}
}

const (
	DiscrepancyOK       = "OK"
	DiscrepancyWarning  = "WARNING"
	DiscrepancyCritical = "CRITICAL"
)

var (
	warningPct  = decimal.NewFromInt(1)
	criticalPct = decimal.NewFromInt(5)
)

// ClassifyDiscrepancy grades a counted-minus-expected difference relative to
// the expected balance: up to 1% is OK, up to 5% a warning, above that critical.
func ClassifyDiscrepancy(diff, expected decimal.Decimal) string {
	if diff.Abs().LessThan(Tolerance) {
		return DiscrepancyOK
	}
	if !expected.IsPositive() {
		return DiscrepancyCritical
	}
	pct := diff.Abs().Div(expected).Mul(hundred)
	switch {
	case pct.LessThanOrEqual(warningPct):
		return DiscrepancyOK
	case pct.LessThanOrEqual(criticalPct):
		return DiscrepancyWarning
	default:
		return DiscrepancyCritical
	}
}
