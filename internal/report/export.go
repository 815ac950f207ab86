package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"caixa/backend/internal/domain"
	"caixa/backend/internal/ledger"
)

const (
	SheetSales        = "Vendas"
	SheetExpenses     = "Saídas"
	SheetWithdrawals  = "Sangrias"
	SheetClosedShifts = "Turnos Fechados"
	SheetSummary      = "Resumo"
)

var (
	salesHeader = []any{
		"ID", "Data/Hora", "Turno", "Canal", "Mesa/Pedido", "Total Bruto", "Valor Pago",
		"Forma", "Bandeira", "Taxa Serviço (%)", "Taxa Entrega", "Entregador", "Garçom",
		"Pessoas", "Troco", "Nota Fiscal", "Observação", "Operador",
	}
	expensesHeader    = []any{"ID", "Data/Hora", "Turno", "Categoria", "Valor", "Forma", "Observação", "Operador"}
	withdrawalsHeader = []any{"ID", "Data/Hora", "Turno", "Valor", "Observação", "Operador"}
	shiftsHeader      = []any{
		"ID", "Turno", "Aberto por", "Abertura", "Fechado por", "Fechamento", "Fundo de Troco",
		"Receita Líquida", "Total Saídas", "Total Sangrias", "Dinheiro Contado", "Diferença",
	}
)

// WriteWorkbook renders the report as an xlsx workbook with one sheet per
// entry kind plus a summary sheet.
func WriteWorkbook(w io.Writer, r domain.PeriodReport, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetSales); err != nil {
		return err
	}
	for _, name := range []string{SheetExpenses, SheetWithdrawals, SheetClosedShifts, SheetSummary} {
		if _, err := f.NewSheet(name); err != nil {
			return err
		}
	}
	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	ts := func(t time.Time) string { return t.In(loc).Format("02/01/2006 15:04") }

	salesRows := make([][]any, 0, len(r.Sales))
	for _, s := range r.Sales {
		salesRows = append(salesRows, []any{
			s.ID, ts(s.CreatedAt), s.ShiftLabel, s.Channel, s.TableID, money(s.GrossTotal), money(s.PaidAmount),
			s.Instrument, s.Flag, money(s.ServiceFeeRate.Mul(decimal.NewFromInt(100))), money(s.DeliveryFee),
			s.Courier, s.Server, s.PartySize, money(s.ChangeGiven), yesNo(s.InvoiceIssued), s.Note, s.CreatedBy,
		})
	}
	expenseRows := make([][]any, 0, len(r.Expenses))
	for _, e := range r.Expenses {
		expenseRows = append(expenseRows, []any{
			e.ID, ts(e.CreatedAt), e.ShiftLabel, e.Category, money(e.Amount), e.Instrument, e.Note, e.CreatedBy,
		})
	}
	withdrawalRows := make([][]any, 0, len(r.Withdrawals))
	for _, wd := range r.Withdrawals {
		withdrawalRows = append(withdrawalRows, []any{
			wd.ID, ts(wd.CreatedAt), wd.ShiftLabel, money(wd.Amount), wd.Note, wd.CreatedBy,
		})
	}
	shiftRows := make([][]any, 0, len(r.ClosedShifts))
	for _, sh := range r.ClosedShifts {
		closedAt := ""
		if sh.ClosedAt != nil {
			closedAt = ts(*sh.ClosedAt)
		}
		shiftRows = append(shiftRows, []any{
			sh.ID, sh.Label, sh.OpenedBy, ts(sh.OpenedAt), sh.ClosedBy, closedAt, money(sh.OpeningFloat),
			optMoney(sh.NetRevenue), optMoney(sh.TotalExpenses), optMoney(sh.TotalWithdrawals),
			optMoney(sh.DeclaredCash), optMoney(sh.CashDiscrepancy),
		})
	}

	sheets := []struct {
		name   string
		header []any
		rows   [][]any
	}{
		{SheetSales, salesHeader, salesRows},
		{SheetExpenses, expensesHeader, expenseRows},
		{SheetWithdrawals, withdrawalsHeader, withdrawalRows},
		{SheetClosedShifts, shiftsHeader, shiftRows},
		{SheetSummary, []any{"Seção", "Chave", "Quantidade", "Valor"}, summaryRows(r)},
	}
	for _, sheet := range sheets {
		if err := writeSheet(f, sheet.name, sheet.header, sheet.rows, headerStyle); err != nil {
			return fmt.Errorf("write sheet %s: %w", sheet.name, err)
		}
	}

	idx, err := f.GetSheetIndex(SheetSummary)
	if err != nil {
		return err
	}
	f.SetActiveSheet(idx)
	return f.Write(w)
}

func writeSheet(f *excelize.File, name string, header []any, rows [][]any, headerStyle int) error {
	if err := f.SetSheetRow(name, "A1", &header); err != nil {
		return err
	}
	if err := f.SetRowStyle(name, 1, 1, headerStyle); err != nil {
		return err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(name, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

// summaryRows flattens KPIs and breakdowns into section/key/count/value lines.
func summaryRows(r domain.PeriodReport) [][]any {
	k := r.KPIs
	rows := [][]any{
		{"periodo", "de", "", r.From},
		{"periodo", "ate", "", r.To},
		{"kpi", "pedidos", k.OrderCount, ""},
		{"kpi", "receita_liquida", "", money(k.NetRevenue)},
		{"kpi", "taxa_servico", "", money(k.ServiceFeeTotal)},
		{"kpi", "taxa_entrega", "", money(k.DeliveryFeeTotal)},
		{"kpi", "total_saidas", "", money(k.TotalExpenses)},
		{"kpi", "total_sangrias", "", money(k.TotalWithdrawals)},
		{"kpi", "lucro_bruto_operacional", "", money(k.OperatingGrossProfit)},
		{"kpi", "ticket_medio", "", money(k.AverageTicket)},
		{"kpi", "entregas", k.DeliveryCount, ""},
		{"kpi", "notas_emitidas", k.InvoicedCount, money(k.InvoicedNetRevenue)},
		{"kpi", "valores_ilegiveis", k.UnparsableSplitAmounts, ""},
	}
	sections := []struct {
		name    string
		buckets []domain.ReportBucket
	}{
		{"receita_por_dia", r.RevenueByDay},
		{"receita_por_turno", r.RevenueByLabel},
		{"receita_por_garcom", r.RevenueByServer},
		{"receita_por_entregador", r.RevenueByCourier},
		{"saidas_por_categoria", r.ExpensesByCategory},
		{"sangrias_por_turno", r.WithdrawalsByLabel},
	}
	for _, section := range sections {
		for _, b := range section.buckets {
			rows = append(rows, []any{section.name, b.Key, b.Count, money(b.Total)})
		}
	}
	for _, it := range r.PaymentBreakdown {
		rows = append(rows, []any{"formas_de_pagamento", it.Label, "", money(it.Amount)})
	}
	return rows
}

// WriteCSV renders the summary lines of the report as CSV.
func WriteCSV(w io.Writer, r domain.PeriodReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"secao", "chave", "quantidade", "valor"}); err != nil {
		return err
	}
	for _, row := range summaryRows(r) {
		record := make([]string, len(row))
		for i, v := range row {
			record[i] = csvField(v)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvField(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', 2, 64)
	default:
		return fmt.Sprint(val)
	}
}

func money(d decimal.Decimal) float64 {
	return ledger.Round2(d).InexactFloat64()
}

func optMoney(d *decimal.Decimal) any {
	if d == nil {
		return ""
	}
	return money(*d)
}

func yesNo(b bool) string {
	if b {
		return "SIM"
	}
	return "NÃO"
}
