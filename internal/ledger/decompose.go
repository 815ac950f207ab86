package ledger

import (
	"github.com/shopspring/decimal"

	"caixa/backend/internal/domain"
)

type Decomposition struct {
	Base        decimal.Decimal
	Net         decimal.Decimal
	ServiceFee  decimal.Decimal
	DeliveryFee decimal.Decimal
}

// Decompose backs the delivery fee and the service-fee markup out of a gross
// total: base = gross - delivery fee, net = base / (1 + rate).
func Decompose(gross, deliveryFee, rate decimal.Decimal) Decomposition {
	base := gross.Sub(deliveryFee)
	net := base
	if rate.IsPositive() {
		net = base.DivRound(decimal.NewFromInt(1).Add(rate), 8)
	}
	return Decomposition{
		Base:        base,
		Net:         net,
		ServiceFee:  base.Mul(rate),
		DeliveryFee: deliveryFee,
	}
}

func DecomposeSale(sale domain.Sale) Decomposition {
	return Decompose(sale.GrossTotal, sale.DeliveryFee, sale.ServiceFeeRate)
}
