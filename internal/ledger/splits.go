package ledger

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"caixa/backend/internal/domain"
)

// SplitAttribution is how a MULTIPLE sale's paid amount divides across instruments.
type SplitAttribution struct {
	// Cash kept in the drawer: tendered cash minus any change noted.
	Cash decimal.Decimal
	// Remainder is paid minus Cash, the share expected on electronic instruments.
	Remainder  decimal.Decimal
	Electronic map[string]decimal.Decimal
	Unparsable int
}

type segmentPattern struct {
	code string
	re   *regexp.Regexp
}

// Segments look like "PIX (VISA): R$ 20,00"; the suffix may not cross a ";" or "|" separator.
func compileSegment(aliases ...string) *regexp.Regexp {
	return regexp.MustCompile(`\b(?:` + strings.Join(aliases, "|") + `)[^:;|]*:\s*R\$\s*([\d.,]+)`)
}

var (
	cashSegment   = compileSegment("DINHEIRO", "CASH")
	changeSegment = compileSegment("TROCO", "CHANGE")

	electronicSegments = []segmentPattern{
		{domain.InstrumentPix, compileSegment("PIX")},
		{domain.InstrumentDebit, compileSegment("DEBITO", "DEBIT")},
		{domain.InstrumentCredit, compileSegment("CREDITO", "CREDIT")},
		{domain.InstrumentMealVoucher, compileSegment("VALE REFEICAO", "MEAL_VOUCHER", "MEAL VOUCHER")},
		{domain.InstrumentOnlinePayment, compileSegment("PAGAMENTO ONLINE", "ONLINE_PAYMENT", "ONLINE PAYMENT")},
	}
)

// ParseSplitNote recovers the cash and electronic shares of paid from a
// free-text payment note. It never fails: unreadable amounts count as zero
// and are tallied in Unparsable.
func ParseSplitNote(note string, paid decimal.Decimal) SplitAttribution {
	text := strings.ToUpper(FoldAccents(note))
	out := SplitAttribution{Electronic: map[string]decimal.Decimal{}}

	tendered, bad := sumSegments(cashSegment, text)
	out.Unparsable += bad
	change, bad := sumSegments(changeSegment, text)
	out.Unparsable += bad

	out.Cash = tendered.Sub(change)
	out.Remainder = paid.Sub(out.Cash)
	if out.Remainder.LessThanOrEqual(Tolerance) {
		return out
	}

	found := false
	for _, seg := range electronicSegments {
		if !seg.re.MatchString(text) {
			continue
		}
		amount, bad := sumSegments(seg.re, text)
		out.Unparsable += bad
		found = true
		out.Electronic[seg.code] = out.Electronic[seg.code].Add(amount)
	}
	if !found {
		out.Electronic[domain.InstrumentUnclassified] = out.Remainder
	}
	return out
}

func sumSegments(re *regexp.Regexp, text string) (decimal.Decimal, int) {
	total := decimal.Zero
	unparsable := 0
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		amount, err := ParseBRL(strings.TrimRight(m[1], ".,"))
		if err != nil {
			unparsable++
			continue
		}
		total = total.Add(amount)
	}
	return total, unparsable
}

// ComposeSplitNote renders the human-readable payment annotation stored on a
// sale: "Formas de Pagamento: DINHEIRO: R$ 30,00; PIX: R$ 20,00; | Troco: R$ 0,00".
func ComposeSplitNote(extra string, splits []domain.PaymentSplit, change decimal.Decimal) string {
	var b strings.Builder
	b.WriteString("Formas de Pagamento:")
	for _, split := range splits {
		b.WriteByte(' ')
		b.WriteString(InstrumentLabel(split.Instrument))
		if split.Flag != "" && split.Flag != domain.NotApplicable {
			b.WriteString(" (" + split.Flag + ")")
		}
		b.WriteString(": ")
		b.WriteString(FormatBRL(split.Amount))
		b.WriteByte(';')
	}
	b.WriteString(" | Troco: ")
	b.WriteString(FormatBRL(change))

	extra = strings.TrimSpace(extra)
	if extra == "" {
		return b.String()
	}
	return extra + " | " + b.String()
}

// SaleAttribution splits one sale's paid amount between the drawer and electronic instruments.
type SaleAttribution struct {
	Cash       decimal.Decimal
	Electronic decimal.Decimal
	Buckets    map[string]decimal.Decimal
	Unparsable int
}

// AttributeSale applies, in order: structured split rows when present, the
// sale's single instrument, or the note parser for legacy MULTIPLE sales.
func AttributeSale(sale domain.Sale) SaleAttribution {
	out := SaleAttribution{Buckets: map[string]decimal.Decimal{}}
	instrument := NormalizeInstrument(sale.Instrument)

	switch {
	case len(sale.Splits) > 0:
		for _, split := range sale.Splits {
			bucket := bucketOf(NormalizeInstrument(split.Instrument))
			out.Buckets[bucket] = out.Buckets[bucket].Add(split.Amount)
		}
		if !sale.ChangeGiven.IsZero() {
			out.Buckets[domain.InstrumentCash] = out.Buckets[domain.InstrumentCash].Sub(sale.ChangeGiven)
		}
		out.Cash = out.Buckets[domain.InstrumentCash]
		out.Electronic = sale.PaidAmount.Sub(out.Cash)
	case instrument == domain.InstrumentCash:
		out.Cash = sale.PaidAmount
		out.Buckets[domain.InstrumentCash] = sale.PaidAmount
	case instrument == domain.InstrumentMultiple:
		parsed := ParseSplitNote(sale.Note, sale.PaidAmount)
		out.Cash = parsed.Cash
		out.Electronic = parsed.Remainder
		out.Unparsable = parsed.Unparsable
		out.Buckets[domain.InstrumentCash] = parsed.Cash
		for code, amount := range parsed.Electronic {
			out.Buckets[code] = out.Buckets[code].Add(amount)
		}
	default:
		out.Electronic = sale.PaidAmount
		bucket := bucketOf(instrument)
		out.Buckets[bucket] = sale.PaidAmount
	}
	return out
}
