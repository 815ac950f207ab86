package httpapi

import (
	"bytes"
	"html/template"
	"time"

	"github.com/shopspring/decimal"

	"caixa/backend/internal/domain"
	"caixa/backend/internal/ledger"
)

// closingSlipTmpl renders the printable end-of-shift slip. html/template
// escapes operator-entered fields.
var closingSlipTmpl = template.Must(template.New("closing-slip").Funcs(template.FuncMap{
	"brl": ledger.FormatBRL,
	"brlp": func(d *decimal.Decimal) string {
		if d == nil {
			return "-"
		}
		return ledger.FormatBRL(*d)
	},
}).Parse(`<!doctype html>
<html lang="pt-BR">
<head>
  <meta charset="utf-8" />
  <title>Fechamento de Turno {{.Shift.ID}}</title>
  <style>
    body { font-family: monospace; margin: 16px; max-width: 360px; }
    table { width: 100%; border-collapse: collapse; }
    td { padding: 2px 0; font-size: 13px; }
    td.v { text-align: right; }
    h2 { margin-bottom: 4px; }
    .level-WARNING { color: #b36b00; }
    .level-CRITICAL { color: #b00020; font-weight: bold; }
  </style>
</head>
<body>
  <h2>Fechamento de Turno</h2>
  <p>Turno: {{.Label}} ({{.Shift.Status}})<br />
  Abertura: {{.OpenedAt}} por {{.Shift.OpenedBy}}<br />
  {{if .ClosedAt}}Fechamento: {{.ClosedAt}} por {{.Shift.ClosedBy}}{{else}}Turno em aberto{{end}}</p>

  <table>
    <tr><td>Fundo de troco</td><td class="v">{{brl .Rec.OpeningFloat}}</td></tr>
    <tr><td>Vendas em dinheiro</td><td class="v">{{brl .Rec.CashCollected}}</td></tr>
    <tr><td>Saídas em dinheiro</td><td class="v">{{brl .Rec.CashExpenses}}</td></tr>
    <tr><td>Sangrias</td><td class="v">{{brl .Rec.TotalWithdrawals}}</td></tr>
    <tr><td><b>Saldo esperado</b></td><td class="v"><b>{{brl .Rec.ExpectedCashBalance}}</b></td></tr>
    {{if .Rec.DeclaredCash}}
    <tr><td>Contado na gaveta</td><td class="v">{{brlp .Rec.DeclaredCash}}</td></tr>
    <tr class="level-{{.Rec.DiscrepancyLevel}}"><td>Diferença ({{.Rec.DiscrepancyLevel}})</td><td class="v">{{brlp .Rec.CashDiscrepancy}}</td></tr>
    {{end}}
  </table>

  <h3>Formas de pagamento</h3>
  <table>
    {{range .Rec.ByInstrument}}<tr><td>{{.Label}}</td><td class="v">{{brl .Amount}}</td></tr>
    {{end}}
  </table>

  <h3>Resumo</h3>
  <table>
    <tr><td>Pedidos</td><td class="v">{{.Rec.SaleCount}}</td></tr>
    <tr><td>Receita líquida</td><td class="v">{{brl .Rec.NetRevenue}}</td></tr>
    <tr><td>Taxa de serviço</td><td class="v">{{brl .Rec.ServiceFeeTotal}}</td></tr>
    <tr><td>Taxa de entrega</td><td class="v">{{brl .Rec.DeliveryFeeTotal}}</td></tr>
    <tr><td>Total de saídas</td><td class="v">{{brl .Rec.TotalExpenses}}</td></tr>
  </table>
  {{range .Rec.Warnings}}<p class="level-WARNING">{{.}}</p>{{end}}
  <p>Emitido em {{.PrintedAt}}</p>
</body>
</html>
`))

type closingSlip struct {
	Shift     domain.Shift
	Rec       domain.Reconciliation
	Label     string
	OpenedAt  string
	ClosedAt  string
	PrintedAt string
}

func renderClosingSlip(shift domain.Shift, rec domain.Reconciliation, loc *time.Location) ([]byte, error) {
	if loc == nil {
		loc = time.UTC
	}
	const layout = "02/01/2006 15:04"

	slip := closingSlip{
		Shift:     shift,
		Rec:       rec,
		Label:     "MANHÃ",
		OpenedAt:  shift.OpenedAt.In(loc).Format(layout),
		PrintedAt: rec.ComputedAt.In(loc).Format(layout),
	}
	if shift.Label == domain.ShiftLabelNight {
		slip.Label = "NOITE"
	}
	if shift.ClosedAt != nil {
		slip.ClosedAt = shift.ClosedAt.In(loc).Format(layout)
	}

	var buf bytes.Buffer
	if err := closingSlipTmpl.Execute(&buf, slip); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
