package report

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"caixa/backend/internal/domain"
	"caixa/backend/internal/ledger"
)

// Input is everything a period report is built from. Sales are expected to be
// pre-filtered; expenses and withdrawals cover the whole period.
type Input struct {
	From         string
	To           string
	Filters      domain.PeriodReportRequest
	Sales        []domain.Sale
	Expenses     []domain.Expense
	Withdrawals  []domain.Withdrawal
	ClosedShifts []domain.Shift
	Location     *time.Location
	GeneratedAt  time.Time
}

type accumulator struct {
	count map[string]int
	total map[string]decimal.Decimal
}

func newAccumulator() *accumulator {
	return &accumulator{count: map[string]int{}, total: map[string]decimal.Decimal{}}
}

func (a *accumulator) add(key string, amount decimal.Decimal) {
	a.count[key]++
	a.total[key] = a.total[key].Add(amount)
}

func (a *accumulator) buckets() []domain.ReportBucket {
	out := make([]domain.ReportBucket, 0, len(a.count))
	for key, count := range a.count {
		out = append(out, domain.ReportBucket{Key: key, Count: count, Total: ledger.Round2(a.total[key])})
	}
	return out
}

// byKey orders buckets chronologically or alphabetically.
func byKey(buckets []domain.ReportBucket) []domain.ReportBucket {
	slices.SortFunc(buckets, func(a, b domain.ReportBucket) int {
		return strings.Compare(a.Key, b.Key)
	})
	return buckets
}

// byTotal orders buckets largest first.
func byTotal(buckets []domain.ReportBucket) []domain.ReportBucket {
	slices.SortFunc(buckets, func(a, b domain.ReportBucket) int {
		if c := b.Total.Cmp(a.Total); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})
	return buckets
}

func named(name string) bool {
	name = strings.TrimSpace(name)
	return name != "" && name != domain.NotApplicable
}

func Build(in Input) domain.PeriodReport {
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}

	var kpis domain.PeriodKPIs
	byDay := newAccumulator()
	byLabel := newAccumulator()
	byServer := newAccumulator()
	byCourier := newAccumulator()

	for _, sale := range in.Sales {
		parts := ledger.DecomposeSale(sale)
		kpis.OrderCount++
		kpis.NetRevenue = kpis.NetRevenue.Add(parts.Net)
		kpis.ServiceFeeTotal = kpis.ServiceFeeTotal.Add(parts.ServiceFee)
		kpis.DeliveryFeeTotal = kpis.DeliveryFeeTotal.Add(parts.DeliveryFee)
		if sale.Channel == domain.ChannelDelivery {
			kpis.DeliveryCount++
		}
		if sale.InvoiceIssued {
			kpis.InvoicedCount++
			kpis.InvoicedNetRevenue = kpis.InvoicedNetRevenue.Add(parts.Net)
		}

		byDay.add(sale.CreatedAt.In(loc).Format(time.DateOnly), parts.Net)
		byLabel.add(sale.ShiftLabel, parts.Net)
		if named(sale.Server) {
			byServer.add(strings.TrimSpace(sale.Server), parts.Net)
		}
		if named(sale.Courier) {
			byCourier.add(strings.TrimSpace(sale.Courier), parts.Net)
		}
	}

	byCategory := newAccumulator()
	for _, e := range in.Expenses {
		kpis.TotalExpenses = kpis.TotalExpenses.Add(e.Amount)
		byCategory.add(e.Category, e.Amount)
	}
	withdrawalsByLabel := newAccumulator()
	for _, w := range in.Withdrawals {
		kpis.TotalWithdrawals = kpis.TotalWithdrawals.Add(w.Amount)
		withdrawalsByLabel.add(w.ShiftLabel, w.Amount)
	}

	kpis.NetRevenue = ledger.Round2(kpis.NetRevenue)
	kpis.ServiceFeeTotal = ledger.Round2(kpis.ServiceFeeTotal)
	kpis.DeliveryFeeTotal = ledger.Round2(kpis.DeliveryFeeTotal)
	kpis.InvoicedNetRevenue = ledger.Round2(kpis.InvoicedNetRevenue)
	kpis.TotalExpenses = ledger.Round2(kpis.TotalExpenses)
	kpis.TotalWithdrawals = ledger.Round2(kpis.TotalWithdrawals)
	kpis.OperatingGrossProfit = kpis.NetRevenue.
		Add(kpis.ServiceFeeTotal).
		Add(kpis.DeliveryFeeTotal).
		Sub(kpis.TotalExpenses)
	if kpis.OrderCount > 0 {
		kpis.AverageTicket = ledger.Round2(kpis.NetRevenue.Div(decimal.NewFromInt(int64(kpis.OrderCount))))
	}

	breakdown, unparsable := ledger.Breakdown(in.Sales)
	kpis.UnparsableSplitAmounts = unparsable

	return domain.PeriodReport{
		From:               in.From,
		To:                 in.To,
		Filters:            in.Filters,
		KPIs:               kpis,
		RevenueByDay:       byKey(byDay.buckets()),
		RevenueByLabel:     byKey(byLabel.buckets()),
		RevenueByServer:    byTotal(byServer.buckets()),
		RevenueByCourier:   byTotal(byCourier.buckets()),
		ExpensesByCategory: byTotal(byCategory.buckets()),
		WithdrawalsByLabel: byKey(withdrawalsByLabel.buckets()),
		PaymentBreakdown:   breakdown,
		Sales:              in.Sales,
		Expenses:           in.Expenses,
		Withdrawals:        in.Withdrawals,
		ClosedShifts:       in.ClosedShifts,
		GeneratedAt:        in.GeneratedAt,
	}
}
