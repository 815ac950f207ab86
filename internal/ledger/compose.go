package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"caixa/backend/internal/domain"
)

var (
	ErrNoPayment           = errors.New("no payment tendered")
	ErrInsufficientPayment = errors.New("payment does not cover the order total")
	ErrChangeWithoutCash   = errors.New("change exceeds cash tendered")
	ErrInvalidSplit        = errors.New("invalid payment split")
	ErrInvalidServiceFee   = errors.New("service fee percent must be between 0 and 100")
	ErrInvalidDeliveryFee  = errors.New("delivery fee exceeds order total")
)

// DefaultServiceFeePercent applies when a dine-in order does not state one.
var DefaultServiceFeePercent = decimal.NewFromInt(10)

type DineInTotals struct {
	Gross      decimal.Decimal
	Rate       decimal.Decimal
	Tendered   decimal.Decimal
	Change     decimal.Decimal
	Paid       decimal.Decimal
	Instrument string
	Flag       string
	Splits     []domain.PaymentSplit
}

// ComposeDineIn prices a dine-in order (base plus service-fee markup) and
// settles it against the tendered splits. Change is always returned in cash.
func ComposeDineIn(base, feePercent decimal.Decimal, splits []domain.PaymentSplit) (DineInTotals, error) {
	if feePercent.IsNegative() || feePercent.GreaterThan(hundred) {
		return DineInTotals{}, ErrInvalidServiceFee
	}
	rate := feePercent.Div(hundred)
	out := DineInTotals{
		Gross: Round2(base.Mul(decimal.NewFromInt(1).Add(rate))),
		Rate:  rate,
	}

	cashTendered := decimal.Zero
	for i, split := range splits {
		if split.Amount.IsNegative() {
			return DineInTotals{}, fmt.Errorf("%w: split %d has a negative amount", ErrInvalidSplit, i+1)
		}
		if split.Amount.IsZero() {
			continue
		}
		code := NormalizeInstrument(split.Instrument)
		if !IsSplitInstrument(code) {
			return DineInTotals{}, fmt.Errorf("%w: split %d has unsupported instrument %q", ErrInvalidSplit, i+1, split.Instrument)
		}
		flag := NormalizeFlag(code, split.Flag)
		if !IsKnownFlag(code, flag) {
			return DineInTotals{}, fmt.Errorf("%w: split %d has unknown flag %q", ErrInvalidSplit, i+1, split.Flag)
		}
		amount := Round2(split.Amount)
		out.Splits = append(out.Splits, domain.PaymentSplit{Instrument: code, Flag: flag, Amount: amount})
		out.Tendered = out.Tendered.Add(amount)
		if code == domain.InstrumentCash {
			cashTendered = cashTendered.Add(amount)
		}
	}

	if out.Tendered.LessThan(Tolerance) {
		return DineInTotals{}, ErrNoPayment
	}
	if out.Gross.Sub(out.Tendered).GreaterThan(Tolerance) {
		return DineInTotals{}, fmt.Errorf("%w: total %s, tendered %s", ErrInsufficientPayment, FormatBRL(out.Gross), FormatBRL(out.Tendered))
	}

	out.Change = decimal.Max(decimal.Zero, out.Tendered.Sub(out.Gross))
	if out.Change.GreaterThan(cashTendered) {
		return DineInTotals{}, fmt.Errorf("%w: change %s, cash %s", ErrChangeWithoutCash, FormatBRL(out.Change), FormatBRL(cashTendered))
	}
	out.Paid = out.Tendered.Sub(out.Change)

	if len(out.Splits) == 1 {
		out.Instrument = out.Splits[0].Instrument
		out.Flag = out.Splits[0].Flag
	} else {
		out.Instrument = domain.InstrumentMultiple
		out.Flag = domain.InstrumentMultiple
	}
	return out, nil
}

// DeliveryPaidAmount is what reaches the register for a delivery order.
// Platforms that settle online and dispatch their own courier (or orders the
// customer picks up) net the delivery fee off before paying out.
func DeliveryPaidAmount(gross, fee decimal.Decimal, instrument, courier string) decimal.Decimal {
	if NormalizeInstrument(instrument) != domain.InstrumentOnlinePayment {
		return gross
	}
	switch canonical(courier) {
	case canonical(CourierApp), canonical(CourierPickup):
		return gross.Sub(fee)
	}
	return gross
}

// IsDeliveryInstrument lists the instruments a delivery order may be settled with.
func IsDeliveryInstrument(code string) bool {
	switch code {
	case domain.InstrumentOnlinePayment, domain.InstrumentCash, domain.InstrumentDebit,
		domain.InstrumentCredit, domain.InstrumentPix:
		return true
	}
	return false
}
