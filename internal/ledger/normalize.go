package ledger

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"caixa/backend/internal/domain"
)

var ErrUnknownShiftLabel = errors.New("unknown shift label")

// FoldAccents strips combining marks so "MANHÃ" compares equal to "MANHA".
func FoldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}

func canonical(s string) string {
	return strings.Join(strings.Fields(strings.ToUpper(FoldAccents(s))), " ")
}

// NormalizeLabel maps localized shift names onto MORNING or NIGHT.
func NormalizeLabel(raw string) (string, error) {
	switch canonical(raw) {
	case "MORNING", "MANHA":
		return domain.ShiftLabelMorning, nil
	case "NIGHT", "NOITE":
		return domain.ShiftLabelNight, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownShiftLabel, raw)
	}
}

var instrumentAliases = map[string]string{
	"CASH":                 domain.InstrumentCash,
	"DINHEIRO":             domain.InstrumentCash,
	"DEBIT":                domain.InstrumentDebit,
	"DEBITO":               domain.InstrumentDebit,
	"CREDIT":               domain.InstrumentCredit,
	"CREDITO":              domain.InstrumentCredit,
	"PIX":                  domain.InstrumentPix,
	"MEAL_VOUCHER":         domain.InstrumentMealVoucher,
	"MEAL VOUCHER":         domain.InstrumentMealVoucher,
	"VALE REFEICAO":        domain.InstrumentMealVoucher,
	"VALE REFEICAO TICKET": domain.InstrumentMealVoucher,
	"ONLINE_PAYMENT":       domain.InstrumentOnlinePayment,
	"ONLINE PAYMENT":       domain.InstrumentOnlinePayment,
	"PAGAMENTO ONLINE":     domain.InstrumentOnlinePayment,
	"MULTIPLE":             domain.InstrumentMultiple,
	"MULTIPLA":             domain.InstrumentMultiple,
}

// NormalizeInstrument returns the canonical instrument code. Unmapped text is
// kept (upper-cased) so it lands in the OTHER bucket during reconciliation.
func NormalizeInstrument(raw string) string {
	key := canonical(raw)
	if code, ok := instrumentAliases[key]; ok {
		return code
	}
	return key
}

// IsExpenseInstrument reports whether an expense may be paid with code.
func IsExpenseInstrument(code string) bool {
	switch code {
	case domain.InstrumentCash, domain.InstrumentPix, domain.InstrumentDebit, domain.InstrumentCredit:
		return true
	}
	return false
}

// IsSplitInstrument reports whether code may appear as one tendered split.
func IsSplitInstrument(code string) bool {
	switch code {
	case domain.InstrumentCash, domain.InstrumentDebit, domain.InstrumentCredit, domain.InstrumentPix,
		domain.InstrumentMealVoucher, domain.InstrumentOnlinePayment:
		return true
	}
	return false
}

func bucketOf(code string) string {
	switch code {
	case domain.InstrumentCash, domain.InstrumentDebit, domain.InstrumentCredit, domain.InstrumentPix,
		domain.InstrumentMealVoucher, domain.InstrumentOnlinePayment, domain.InstrumentUnclassified:
		return code
	}
	return domain.InstrumentOther
}
