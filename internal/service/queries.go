package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"caixa/backend/internal/domain"
	"caixa/backend/internal/ledger"
	"caixa/backend/internal/report"
	"caixa/backend/internal/store"
)

// NextFreeTable suggests the table number after the highest numeric table
// used today.
func (s *Service) NextFreeTable(ctx context.Context) (domain.NextTableResponse, error) {
	start := s.startOfDay(s.now())
	ids, err := s.repo.ListTableIDs(ctx, start, start.AddDate(0, 0, 1))
	if err != nil {
		return domain.NextTableResponse{}, err
	}

	highest := 0
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if !isDigits(id) {
			continue
		}
		n, err := strconv.Atoi(id)
		if err != nil {
			continue
		}
		highest = max(highest, n)
	}
	return domain.NextTableResponse{TableID: strconv.Itoa(highest + 1)}, nil
}

func (s *Service) Catalog(ctx context.Context) (domain.Catalog, error) {
	servers, couriers, err := s.repo.ListPartyNames(ctx)
	if err != nil {
		return domain.Catalog{}, err
	}

	instruments := make([]domain.CatalogOption, 0, 6)
	for _, code := range []string{
		domain.InstrumentCash, domain.InstrumentDebit, domain.InstrumentCredit,
		domain.InstrumentPix, domain.InstrumentMealVoucher, domain.InstrumentOnlinePayment,
	} {
		instruments = append(instruments, domain.CatalogOption{Code: code, Label: ledger.InstrumentLabel(code)})
	}

	return domain.Catalog{
		Instruments:        instruments,
		Flags:              ledger.FlagOptions(),
		DeliveryFlags:      append([]string(nil), ledger.DeliveryFlags...),
		ExpenseCategories:  append([]string(nil), ledger.ExpenseCategories...),
		ExpenseInstruments: append([]string(nil), ledger.ExpenseInstruments...),
		Couriers:           append([]string(nil), ledger.Couriers...),
		ShiftLabels: []domain.CatalogOption{
			{Code: domain.ShiftLabelMorning, Label: "MANHÃ"},
			{Code: domain.ShiftLabelNight, Label: "NOITE"},
		},
		KnownServers:  nonNil(servers),
		KnownCouriers: nonNil(couriers),
	}, nil
}

// PeriodReport aggregates sales, expenses and withdrawals over a date range.
// Channel, label, courier and server filters narrow the sales only.
func (s *Service) PeriodReport(ctx context.Context, req domain.PeriodReportRequest) (domain.PeriodReport, error) {
	if err := s.requireSupervisor(ctx); err != nil {
		return domain.PeriodReport{}, err
	}
	from, to, err := s.dayRange(req.From, req.To)
	if err != nil {
		return domain.PeriodReport{}, err
	}

	channel := strings.ToUpper(strings.TrimSpace(req.Channel))
	switch channel {
	case "", "ALL":
		channel = ""
	case domain.ChannelDineIn, domain.ChannelDelivery:
	default:
		return domain.PeriodReport{}, invalidf("unknown channel %q", req.Channel)
	}
	label, err := optionalLabel(req.Label)
	if err != nil {
		return domain.PeriodReport{}, err
	}

	filters := domain.PeriodReportRequest{
		From:    from.Format(time.DateOnly),
		To:      to.AddDate(0, 0, -1).Format(time.DateOnly),
		Channel: channel,
		Label:   label,
		Courier: optionalName(req.Courier),
		Server:  optionalName(req.Server),
	}

	sales, err := s.repo.ListSales(ctx, store.SaleFilter{
		From:    from,
		To:      to,
		Channel: filters.Channel,
		Label:   filters.Label,
		Courier: filters.Courier,
		Server:  filters.Server,
	})
	if err != nil {
		return domain.PeriodReport{}, err
	}
	expenses, err := s.repo.ListExpenses(ctx, store.EntryFilter{From: from, To: to})
	if err != nil {
		return domain.PeriodReport{}, err
	}
	withdrawals, err := s.repo.ListWithdrawals(ctx, store.EntryFilter{From: from, To: to})
	if err != nil {
		return domain.PeriodReport{}, err
	}
	summaries, err := s.repo.ListShifts(ctx, store.ShiftFilter{From: from, To: to, Status: domain.ShiftStatusClosed, Limit: 1000})
	if err != nil {
		return domain.PeriodReport{}, err
	}
	closed := make([]domain.Shift, 0, len(summaries))
	for _, summary := range summaries {
		closed = append(closed, summary.Shift)
	}

	return report.Build(report.Input{
		From:         filters.From,
		To:           filters.To,
		Filters:      filters,
		Sales:        sales,
		Expenses:     expenses,
		Withdrawals:  withdrawals,
		ClosedShifts: closed,
		Location:     s.loc,
		GeneratedAt:  s.now().UTC(),
	}), nil
}

// Location is the zone report exports render timestamps in.
func (s *Service) Location() *time.Location {
	return s.loc
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if err := s.requireSupervisor(ctx); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = s.now().UTC().Add(-24 * time.Hour)
	} else {
		parsed, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(date), s.loc)
		if err != nil {
			return nil, invalidf("invalid date %q", date)
		}
		from = parsed
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func optionalName(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.EqualFold(raw, "ALL") {
		return ""
	}
	return raw
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
