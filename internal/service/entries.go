package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"caixa/backend/internal/domain"
	"caixa/backend/internal/ledger"
	"caixa/backend/internal/store"
	"caixa/backend/internal/xid"
)

// RegisterSale records a sale whose totals were computed by the caller.
func (s *Service) RegisterSale(ctx context.Context, req domain.SaleRequest) (domain.SaleResponse, error) {
	if err := validateRequest(req); err != nil {
		return domain.SaleResponse{}, err
	}

	gross := ledger.Round2(req.GrossTotal)
	paid := ledger.Round2(req.PaidAmount)
	change := ledger.Round2(req.ChangeGiven)
	rate := req.ServiceFeeRate
	if rate.GreaterThan(decimal.NewFromInt(1)) {
		return domain.SaleResponse{}, invalidf("service fee rate must be a fraction between 0 and 1")
	}

	sale := domain.Sale{
		ID:             xid.New("sale"),
		CreatedAt:      s.now().UTC(),
		Channel:        req.Channel,
		TableID:        strings.TrimSpace(req.TableID),
		GrossTotal:     gross,
		PaidAmount:     paid,
		InvoiceIssued:  req.InvoiceIssued,
		ServiceFeeRate: rate,
		DeliveryFee:    ledger.Round2(req.DeliveryFee),
		Courier:        orNotApplicable(req.Courier),
		Server:         orNotApplicable(req.Server),
		Note:           strings.TrimSpace(req.Note),
		PartySize:      max(req.PartySize, 1),
		ChangeGiven:    change,
		CreatedBy:      s.actorName(ctx),
	}

	switch req.Channel {
	case domain.ChannelDineIn:
		if !sale.DeliveryFee.IsZero() {
			return domain.SaleResponse{}, invalidf("dine-in sale cannot carry a delivery fee")
		}
		sale.Courier = domain.NotApplicable
	case domain.ChannelDelivery:
		if !rate.IsZero() {
			return domain.SaleResponse{}, invalidf("delivery sale cannot carry a service fee")
		}
		if sale.DeliveryFee.GreaterThan(gross) {
			return domain.SaleResponse{}, fmt.Errorf("%w: %w", store.ErrInvalidTransaction, ledger.ErrInvalidDeliveryFee)
		}
		sale.Server = domain.NotApplicable
		sale.Courier = canonicalCourier(req.Courier)
		sale.PartySize = 1
	}

	if len(req.Splits) == 0 {
		sale.Instrument = ledger.NormalizeInstrument(req.Instrument)
		if sale.Instrument == "" {
			return domain.SaleResponse{}, invalidf("instrument is required")
		}
		if change.IsPositive() && sale.Instrument != domain.InstrumentCash && sale.Instrument != domain.InstrumentMultiple {
			return domain.SaleResponse{}, fmt.Errorf("%w: %w", store.ErrInvalidTransaction, ledger.ErrChangeWithoutCash)
		}
		sale.Flag = ledger.NormalizeFlag(sale.Instrument, req.Flag)
		return s.insertSale(ctx, req.ShiftID, sale)
	}

	splits, tendered, cash, err := normalizeSplits(req.Splits)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	if tendered.Sub(change).Sub(paid).Abs().GreaterThan(ledger.Tolerance) {
		return domain.SaleResponse{}, invalidf("splits total %s minus change %s does not match paid amount %s",
			ledger.FormatBRL(tendered), ledger.FormatBRL(change), ledger.FormatBRL(paid))
	}
	if change.GreaterThan(cash) {
		return domain.SaleResponse{}, fmt.Errorf("%w: %w", store.ErrInvalidTransaction, ledger.ErrChangeWithoutCash)
	}

	sale.Splits = splits
	if len(splits) == 1 {
		sale.Instrument = splits[0].Instrument
		sale.Flag = splits[0].Flag
	} else {
		sale.Instrument = domain.InstrumentMultiple
		sale.Flag = domain.InstrumentMultiple
		sale.Note = ledger.ComposeSplitNote(sale.Note, splits, change)
	}
	return s.insertSale(ctx, req.ShiftID, sale)
}

// RegisterDineInSale prices a table order from its base amount and the
// service-fee percent, then settles it against up to six payment splits.
func (s *Service) RegisterDineInSale(ctx context.Context, req domain.DineInSaleRequest) (domain.SaleResponse, error) {
	if err := validateRequest(req); err != nil {
		return domain.SaleResponse{}, err
	}

	pct := ledger.DefaultServiceFeePercent
	if req.ServiceFeePercent != nil {
		pct = *req.ServiceFeePercent
	}
	totals, err := ledger.ComposeDineIn(ledger.Round2(req.BaseAmount), pct, req.Splits)
	if err != nil {
		return domain.SaleResponse{}, fmt.Errorf("%w: %w", store.ErrInvalidTransaction, err)
	}

	note := strings.TrimSpace(req.Note)
	if len(totals.Splits) > 1 {
		note = ledger.ComposeSplitNote(note, totals.Splits, totals.Change)
	}

	return s.insertSale(ctx, req.ShiftID, domain.Sale{
		ID:             xid.New("sale"),
		CreatedAt:      s.now().UTC(),
		Channel:        domain.ChannelDineIn,
		TableID:        strings.TrimSpace(req.TableID),
		GrossTotal:     totals.Gross,
		PaidAmount:     totals.Paid,
		Instrument:     totals.Instrument,
		Flag:           totals.Flag,
		InvoiceIssued:  req.InvoiceIssued,
		ServiceFeeRate: totals.Rate,
		DeliveryFee:    decimal.Zero,
		Courier:        domain.NotApplicable,
		Server:         strings.TrimSpace(req.Server),
		Note:           note,
		PartySize:      max(req.PartySize, 1),
		ChangeGiven:    totals.Change,
		Splits:         totals.Splits,
		CreatedBy:      s.actorName(ctx),
	})
}

func (s *Service) RegisterDeliverySale(ctx context.Context, req domain.DeliverySaleRequest) (domain.SaleResponse, error) {
	if err := validateRequest(req); err != nil {
		return domain.SaleResponse{}, err
	}

	instrument := ledger.NormalizeInstrument(req.Instrument)
	if !ledger.IsDeliveryInstrument(instrument) {
		return domain.SaleResponse{}, invalidf("instrument %q is not accepted for delivery", req.Instrument)
	}
	gross := ledger.Round2(req.GrossTotal)
	fee := ledger.Round2(req.DeliveryFee)
	if fee.GreaterThan(gross) {
		return domain.SaleResponse{}, fmt.Errorf("%w: %w", store.ErrInvalidTransaction, ledger.ErrInvalidDeliveryFee)
	}
	flag := strings.ToUpper(strings.TrimSpace(ledger.FoldAccents(req.Flag)))
	if flag == "" {
		flag = domain.NotApplicable
	}
	if !slices.Contains(ledger.DeliveryFlags, flag) {
		return domain.SaleResponse{}, invalidf("unknown delivery flag %q", req.Flag)
	}
	courier := canonicalCourier(req.Courier)

	return s.insertSale(ctx, req.ShiftID, domain.Sale{
		ID:             xid.New("sale"),
		CreatedAt:      s.now().UTC(),
		Channel:        domain.ChannelDelivery,
		TableID:        strings.TrimSpace(req.OrderRef),
		GrossTotal:     gross,
		PaidAmount:     ledger.DeliveryPaidAmount(gross, fee, instrument, courier),
		Instrument:     instrument,
		Flag:           flag,
		InvoiceIssued:  req.InvoiceIssued,
		ServiceFeeRate: decimal.Zero,
		DeliveryFee:    fee,
		Courier:        courier,
		Server:         domain.NotApplicable,
		Note:           strings.TrimSpace(req.Note),
		PartySize:      1,
		ChangeGiven:    decimal.Zero,
		CreatedBy:      s.actorName(ctx),
	})
}

func (s *Service) insertSale(ctx context.Context, shiftID string, sale domain.Sale) (domain.SaleResponse, error) {
	saved, err := s.repo.InsertSale(ctx, strings.TrimSpace(shiftID), sale)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	s.invalidate(ctx)

	s.metrics.EntryRecorded("sale")
	s.logAudit(ctx, "sale_create", "sale", saved.ID,
		fmt.Sprintf("channel=%s,instrument=%s,paid=%s", saved.Channel, saved.Instrument, saved.PaidAmount.StringFixed(2)))
	log.Info().Str("component", "service").Str("shift_id", saved.ShiftID).Str("action", "sale_create").
		Str("sale_id", saved.ID).Msg("sale registered")

	return domain.SaleResponse{Sale: *saved}, nil
}

func (s *Service) RegisterExpense(ctx context.Context, req domain.ExpenseRequest) (domain.Expense, error) {
	if err := validateRequest(req); err != nil {
		return domain.Expense{}, err
	}
	instrument := ledger.NormalizeInstrument(req.Instrument)
	if !ledger.IsExpenseInstrument(instrument) {
		return domain.Expense{}, invalidf("instrument %q cannot pay an expense", req.Instrument)
	}
	amount := ledger.Round2(req.Amount)
	if !amount.IsPositive() {
		return domain.Expense{}, invalidf("amount must be positive")
	}
	category := strings.ToUpper(strings.TrimSpace(req.Category))
	if category == "" {
		return domain.Expense{}, invalidf("category is required")
	}

	saved, err := s.repo.InsertExpense(ctx, strings.TrimSpace(req.ShiftID), domain.Expense{
		ID:         xid.New("saida"),
		CreatedAt:  s.now().UTC(),
		Category:   category,
		Amount:     amount,
		Instrument: instrument,
		Note:       strings.TrimSpace(req.Note),
		CreatedBy:  s.actorName(ctx),
	})
	if err != nil {
		return domain.Expense{}, err
	}
	s.invalidate(ctx)

	s.metrics.EntryRecorded("expense")
	s.logAudit(ctx, "expense_create", "expense", saved.ID,
		fmt.Sprintf("category=%s,instrument=%s,amount=%s", saved.Category, saved.Instrument, saved.Amount.StringFixed(2)))
	log.Info().Str("component", "service").Str("shift_id", saved.ShiftID).Str("action", "expense_create").
		Str("expense_id", saved.ID).Msg("expense registered")

	return *saved, nil
}

func (s *Service) RegisterWithdrawal(ctx context.Context, req domain.WithdrawalRequest) (domain.Withdrawal, error) {
	if err := validateRequest(req); err != nil {
		return domain.Withdrawal{}, err
	}
	amount := ledger.Round2(req.Amount)
	if !amount.IsPositive() {
		return domain.Withdrawal{}, invalidf("amount must be positive")
	}

	saved, err := s.repo.InsertWithdrawal(ctx, strings.TrimSpace(req.ShiftID), domain.Withdrawal{
		ID:        xid.New("sangria"),
		CreatedAt: s.now().UTC(),
		Amount:    amount,
		Note:      strings.TrimSpace(req.Note),
		CreatedBy: s.actorName(ctx),
	})
	if err != nil {
		return domain.Withdrawal{}, err
	}
	s.invalidate(ctx)

	s.metrics.EntryRecorded("withdrawal")
	s.logAudit(ctx, "withdrawal_create", "withdrawal", saved.ID, "amount="+saved.Amount.StringFixed(2))
	log.Info().Str("component", "service").Str("shift_id", saved.ShiftID).Str("action", "withdrawal_create").
		Str("withdrawal_id", saved.ID).Msg("withdrawal registered")

	return *saved, nil
}

// normalizeSplits canonicalizes tendered splits, dropping zero rows. It
// returns the cleaned rows, the total tendered and the cash part of it.
func normalizeSplits(raw []domain.PaymentSplit) ([]domain.PaymentSplit, decimal.Decimal, decimal.Decimal, error) {
	splits := make([]domain.PaymentSplit, 0, len(raw))
	tendered := decimal.Zero
	cash := decimal.Zero
	for i, split := range raw {
		if split.Amount.IsNegative() {
			return nil, decimal.Zero, decimal.Zero, fmt.Errorf("%w: %w: split %d has a negative amount", store.ErrInvalidTransaction, ledger.ErrInvalidSplit, i+1)
		}
		amount := ledger.Round2(split.Amount)
		if amount.IsZero() {
			continue
		}
		code := ledger.NormalizeInstrument(split.Instrument)
		if !ledger.IsSplitInstrument(code) {
			return nil, decimal.Zero, decimal.Zero, fmt.Errorf("%w: %w: split %d has unsupported instrument %q", store.ErrInvalidTransaction, ledger.ErrInvalidSplit, i+1, split.Instrument)
		}
		flag := ledger.NormalizeFlag(code, split.Flag)
		if !ledger.IsKnownFlag(code, flag) {
			return nil, decimal.Zero, decimal.Zero, fmt.Errorf("%w: %w: split %d has unknown flag %q", store.ErrInvalidTransaction, ledger.ErrInvalidSplit, i+1, split.Flag)
		}
		splits = append(splits, domain.PaymentSplit{Instrument: code, Flag: flag, Amount: amount})
		tendered = tendered.Add(amount)
		if code == domain.InstrumentCash {
			cash = cash.Add(amount)
		}
	}
	if len(splits) == 0 {
		return nil, decimal.Zero, decimal.Zero, fmt.Errorf("%w: %w", store.ErrInvalidTransaction, ledger.ErrNoPayment)
	}
	return splits, tendered, cash, nil
}

// canonicalCourier maps known courier names onto their catalog spelling and
// keeps free text otherwise.
func canonicalCourier(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.NotApplicable
	}
	folded := ledger.FoldAccents(raw)
	for _, known := range ledger.Couriers {
		if strings.EqualFold(folded, ledger.FoldAccents(known)) {
			return known
		}
	}
	return raw
}

func orNotApplicable(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.NotApplicable
	}
	return raw
}
