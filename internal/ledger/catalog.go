package ledger

import (
	"slices"

	"caixa/backend/internal/domain"
)

// BreakdownOrder is the fixed bucket order of every per-instrument breakdown.
var BreakdownOrder = []string{
	domain.InstrumentCash,
	domain.InstrumentDebit,
	domain.InstrumentCredit,
	domain.InstrumentPix,
	domain.InstrumentMealVoucher,
	domain.InstrumentOnlinePayment,
	domain.InstrumentOther,
	domain.InstrumentUnclassified,
}

var instrumentLabels = map[string]string{
	domain.InstrumentCash:          "DINHEIRO",
	domain.InstrumentDebit:         "DÉBITO",
	domain.InstrumentCredit:        "CRÉDITO",
	domain.InstrumentPix:           "PIX",
	domain.InstrumentMealVoucher:   "VALE REFEIÇÃO TICKET",
	domain.InstrumentOnlinePayment: "PAGAMENTO ONLINE",
	domain.InstrumentMultiple:      "MÚLTIPLA",
	domain.InstrumentOther:         "OUTROS/MÁQUINA MOTOBOY",
	domain.InstrumentUnclassified:  "NÃO CLASSIFICADO",
}

// InstrumentLabel is the display name printed in notes and reports.
func InstrumentLabel(code string) string {
	if label, ok := instrumentLabels[code]; ok {
		return label
	}
	return code
}

var (
	cardFlags    = []string{"VISA", "MASTER", "ELO", "AMEX", "HIPERCARD", "OUTRA"}
	voucherFlags = []string{"SODEXO", "ALELO", "TICKET", "VR", "OUTRO VALE"}
	onlineFlags  = []string{"IFOOD", "UBER EATS", "PROPRIO/SITE", "PAYPAL", "OUTRA PLATAFORMA"}
	noFlags      = []string{domain.NotApplicable}

	DeliveryFlags = []string{"IFOOD", "UBER EATS", "PROPRIO", "PAGAMENTO ONLINE", "MASTER", "VISA", "ELO", "OUTRA", domain.NotApplicable}

	ExpenseCategories = []string{
		"COMPRA DE INSUMOS",
		"DESPESAS DIVERSAS",
		"REEMBOLSO",
		"PAGAMENTO DE FUNCIONÁRIO",
		"SUPRIMENTO DE TROCO",
		"OUTRAS DESPESAS",
	}

	ExpenseInstruments = []string{domain.InstrumentCash, domain.InstrumentPix, domain.InstrumentDebit, domain.InstrumentCredit}
)

const (
	CourierApp         = "App"
	CourierOwn         = "Próprio"
	CourierPickup      = "Cliente Retira"
	ClosingSangriaNote = "Sangria de Fechamento de Turno"
)

var Couriers = []string{CourierApp, CourierOwn, CourierPickup}

// FlagsFor lists the card or platform flags accepted for a split instrument.
func FlagsFor(code string) []string {
	switch code {
	case domain.InstrumentDebit, domain.InstrumentCredit:
		return cardFlags
	case domain.InstrumentMealVoucher:
		return voucherFlags
	case domain.InstrumentOnlinePayment:
		return onlineFlags
	default:
		return noFlags
	}
}

// NormalizeFlag fills the default flag for instruments that require one and
// forces N/A on those that never carry one.
func NormalizeFlag(code string, flag string) string {
	flag = canonical(flag)
	allowed := FlagsFor(code)
	if len(allowed) == 1 && allowed[0] == domain.NotApplicable {
		return domain.NotApplicable
	}
	if flag == "" || flag == domain.NotApplicable {
		return allowed[0]
	}
	return flag
}

// IsKnownFlag reports whether flag is one of the listed options for code.
func IsKnownFlag(code string, flag string) bool {
	return slices.Contains(FlagsFor(code), flag)
}

// FlagOptions returns flags per split instrument for client pickers.
func FlagOptions() map[string][]string {
	out := make(map[string][]string, 6)
	for _, code := range []string{
		domain.InstrumentCash, domain.InstrumentDebit, domain.InstrumentCredit,
		domain.InstrumentPix, domain.InstrumentMealVoucher, domain.InstrumentOnlinePayment,
	} {
		out[code] = slices.Clone(FlagsFor(code))
	}
	return out
}
