package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Sale struct {
	ID             string          `json:"id"`
	ShiftID        string          `json:"shift_id"`
	ShiftLabel     string          `json:"shift_label"`
	CreatedAt      time.Time       `json:"created_at"`
	Channel        string          `json:"channel"`
	TableID        string          `json:"table_id"`
	GrossTotal     decimal.Decimal `json:"gross_total"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	Instrument     string          `json:"instrument"`
	Flag           string          `json:"flag"`
	InvoiceIssued  bool            `json:"invoice_issued"`
	ServiceFeeRate decimal.Decimal `json:"service_fee_rate"`
	DeliveryFee    decimal.Decimal `json:"delivery_fee"`
	Courier        string          `json:"courier"`
	Server         string          `json:"server"`
	Note           string          `json:"note"`
	PartySize      int             `json:"party_size"`
	ChangeGiven    decimal.Decimal `json:"change_given"`
	Splits         []PaymentSplit  `json:"splits,omitempty"`
	CreatedBy      string          `json:"created_by"`
}

// PaymentSplit is one tendered instrument of a sale. Amounts are what the
// customer handed over; change is tracked on the sale.
type PaymentSplit struct {
	Instrument string          `json:"instrument"`
	Flag       string          `json:"flag"`
	Amount     decimal.Decimal `json:"amount"`
}

type Expense struct {
	ID         string          `json:"id"`
	ShiftID    string          `json:"shift_id"`
	ShiftLabel string          `json:"shift_label"`
	CreatedAt  time.Time       `json:"created_at"`
	Category   string          `json:"category"`
	Amount     decimal.Decimal `json:"amount"`
	Instrument string          `json:"instrument"`
	Note       string          `json:"note"`
	CreatedBy  string          `json:"created_by"`
}

type Withdrawal struct {
	ID         string          `json:"id"`
	ShiftID    string          `json:"shift_id"`
	ShiftLabel string          `json:"shift_label"`
	CreatedAt  time.Time       `json:"created_at"`
	Amount     decimal.Decimal `json:"amount"`
	Note       string          `json:"note"`
	CreatedBy  string          `json:"created_by"`
}

type Shift struct {
	ID               string           `json:"id"`
	Status           string           `json:"status"`
	Label            string           `json:"label"`
	OpenedBy         string           `json:"opened_by"`
	ClosedBy         string           `json:"closed_by,omitempty"`
	OpenedAt         time.Time        `json:"opened_at"`
	ClosedAt         *time.Time       `json:"closed_at,omitempty"`
	OpeningFloat     decimal.Decimal  `json:"opening_float"`
	NetRevenue       *decimal.Decimal `json:"net_revenue,omitempty"`
	TotalExpenses    *decimal.Decimal `json:"total_expenses,omitempty"`
	TotalWithdrawals *decimal.Decimal `json:"total_withdrawals,omitempty"`
	DeclaredCash     *decimal.Decimal `json:"declared_cash,omitempty"`
	CashDiscrepancy  *decimal.Decimal `json:"cash_discrepancy,omitempty"`
}

// ShiftLedger is a consistent snapshot of one shift and every entry attributed to it.
type ShiftLedger struct {
	Shift       Shift        `json:"shift"`
	Sales       []Sale       `json:"sales"`
	Expenses    []Expense    `json:"expenses"`
	Withdrawals []Withdrawal `json:"withdrawals"`
}

type InstrumentTotal struct {
	Instrument string          `json:"instrument"`
	Label      string          `json:"label"`
	Amount     decimal.Decimal `json:"amount"`
}

type Reconciliation struct {
	ShiftID                string            `json:"shift_id"`
	ShiftLabel             string            `json:"shift_label"`
	Status                 string            `json:"status"`
	OpeningFloat           decimal.Decimal   `json:"opening_float"`
	CashCollected          decimal.Decimal   `json:"cash_collected"`
	ElectronicCollected    decimal.Decimal   `json:"electronic_collected"`
	GrossCollected         decimal.Decimal   `json:"gross_collected"`
	CashExpenses           decimal.Decimal   `json:"cash_expenses"`
	TotalExpenses          decimal.Decimal   `json:"total_expenses"`
	TotalWithdrawals       decimal.Decimal   `json:"total_withdrawals"`
	ExpectedCashBalance    decimal.Decimal   `json:"expected_cash_balance"`
	NetRevenue             decimal.Decimal   `json:"net_revenue"`
	ServiceFeeTotal        decimal.Decimal   `json:"service_fee_total"`
	DeliveryFeeTotal       decimal.Decimal   `json:"delivery_fee_total"`
	SaleCount              int               `json:"sale_count"`
	ByInstrument           []InstrumentTotal `json:"by_instrument"`
	UnparsableSplitAmounts int               `json:"unparsable_split_amounts"`
	Warnings               []string          `json:"warnings,omitempty"`
	DeclaredCash           *decimal.Decimal  `json:"declared_cash,omitempty"`
	CashDiscrepancy        *decimal.Decimal  `json:"cash_discrepancy,omitempty"`
	DiscrepancyLevel       string            `json:"discrepancy_level,omitempty"`
	ComputedAt             time.Time         `json:"computed_at"`
}

type ShiftOpenRequest struct {
	Label        string          `json:"label" validate:"required"`
	OpeningFloat decimal.Decimal `json:"opening_float"`
}

type ShiftCloseRequest struct {
	ClosingWithdrawal decimal.Decimal  `json:"closing_withdrawal"`
	DeclaredCash      *decimal.Decimal `json:"declared_cash,omitempty"`
}

type ShiftReopenRequest struct {
	SupervisorPIN string `json:"supervisor_pin,omitempty"`
}

type ShiftResponse struct {
	Shift Shift `json:"shift"`
}

type ShiftCloseResponse struct {
	Shift          Shift          `json:"shift"`
	Reconciliation Reconciliation `json:"reconciliation"`
}

type ShiftSummary struct {
	Shift       Shift `json:"shift"`
	Sales       int   `json:"sales"`
	Expenses    int   `json:"expenses"`
	Withdrawals int   `json:"withdrawals"`
}

type ShiftListRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Status string `json:"status"`
	Label  string `json:"label"`
}

type ShiftListResponse struct {
	Shifts []ShiftSummary `json:"shifts"`
}

// SaleRequest registers a sale whose totals were already computed by the caller.
type SaleRequest struct {
	ShiftID        string          `json:"shift_id,omitempty"`
	Channel        string          `json:"channel" validate:"required,oneof=DINE_IN DELIVERY"`
	TableID        string          `json:"table_id"`
	GrossTotal     decimal.Decimal `json:"gross_total" validate:"gte=0"`
	PaidAmount     decimal.Decimal `json:"paid_amount" validate:"gte=0"`
	Instrument     string          `json:"instrument" validate:"required_without=Splits"`
	Flag           string          `json:"flag"`
	InvoiceIssued  bool            `json:"invoice_issued"`
	ServiceFeeRate decimal.Decimal `json:"service_fee_rate" validate:"gte=0"`
	DeliveryFee    decimal.Decimal `json:"delivery_fee" validate:"gte=0"`
	Courier        string          `json:"courier"`
	Server         string          `json:"server"`
	Note           string          `json:"note" validate:"max=500"`
	PartySize      int             `json:"party_size" validate:"gte=0"`
	ChangeGiven    decimal.Decimal `json:"change_given" validate:"gte=0"`
	Splits         []PaymentSplit  `json:"splits,omitempty" validate:"max=6"`
}

type DineInSaleRequest struct {
	ShiftID           string           `json:"shift_id,omitempty"`
	TableID           string           `json:"table_id" validate:"required,max=20"`
	BaseAmount        decimal.Decimal  `json:"base_amount" validate:"gt=0"`
	ServiceFeePercent *decimal.Decimal `json:"service_fee_percent,omitempty"`
	Server            string           `json:"server" validate:"required,max=60"`
	PartySize         int              `json:"party_size" validate:"gte=0,lte=200"`
	InvoiceIssued     bool             `json:"invoice_issued"`
	Note              string           `json:"note" validate:"max=300"`
	Splits            []PaymentSplit   `json:"splits" validate:"required,min=1,max=6"`
}

type DeliverySaleRequest struct {
	ShiftID       string          `json:"shift_id,omitempty"`
	OrderRef      string          `json:"order_ref" validate:"required,max=40"`
	Courier       string          `json:"courier" validate:"required,max=60"`
	Flag          string          `json:"flag"`
	GrossTotal    decimal.Decimal `json:"gross_total" validate:"gt=0"`
	DeliveryFee   decimal.Decimal `json:"delivery_fee" validate:"gte=0"`
	Instrument    string          `json:"instrument" validate:"required"`
	InvoiceIssued bool            `json:"invoice_issued"`
	Note          string          `json:"note" validate:"max=300"`
}

type SaleResponse struct {
	Sale Sale `json:"sale"`
}

type ExpenseRequest struct {
	ShiftID    string          `json:"shift_id,omitempty"`
	Category   string          `json:"category" validate:"required,max=60"`
	Amount     decimal.Decimal `json:"amount" validate:"gt=0"`
	Instrument string          `json:"instrument" validate:"required"`
	Note       string          `json:"note" validate:"max=300"`
}

type WithdrawalRequest struct {
	ShiftID string          `json:"shift_id,omitempty"`
	Amount  decimal.Decimal `json:"amount" validate:"gt=0"`
	Note    string          `json:"note" validate:"max=300"`
}

type NextTableResponse struct {
	TableID string `json:"table_id"`
}

type Catalog struct {
	Instruments        []CatalogOption     `json:"instruments"`
	Flags              map[string][]string `json:"flags"`
	DeliveryFlags      []string            `json:"delivery_flags"`
	ExpenseCategories  []string            `json:"expense_categories"`
	ExpenseInstruments []string            `json:"expense_instruments"`
	Couriers           []string            `json:"couriers"`
	ShiftLabels        []CatalogOption     `json:"shift_labels"`
	KnownServers       []string            `json:"known_servers"`
	KnownCouriers      []string            `json:"known_couriers"`
}

type CatalogOption struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

type PeriodReportRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Channel string `json:"channel"`
	Label   string `json:"label"`
	Courier string `json:"courier"`
	Server  string `json:"server"`
}

type PeriodKPIs struct {
	OrderCount             int             `json:"order_count"`
	NetRevenue             decimal.Decimal `json:"net_revenue"`
	ServiceFeeTotal        decimal.Decimal `json:"service_fee_total"`
	DeliveryFeeTotal       decimal.Decimal `json:"delivery_fee_total"`
	TotalExpenses          decimal.Decimal `json:"total_expenses"`
	TotalWithdrawals       decimal.Decimal `json:"total_withdrawals"`
	OperatingGrossProfit   decimal.Decimal `json:"operating_gross_profit"`
	AverageTicket          decimal.Decimal `json:"average_ticket"`
	DeliveryCount          int             `json:"delivery_count"`
	InvoicedCount          int             `json:"invoiced_count"`
	InvoicedNetRevenue     decimal.Decimal `json:"invoiced_net_revenue"`
	UnparsableSplitAmounts int             `json:"unparsable_split_amounts"`
}

type ReportBucket struct {
	Key   string          `json:"key"`
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
}

type PeriodReport struct {
	From               string              `json:"from"`
	To                 string              `json:"to"`
	Filters            PeriodReportRequest `json:"filters"`
	KPIs               PeriodKPIs          `json:"kpis"`
	RevenueByDay       []ReportBucket      `json:"revenue_by_day"`
	RevenueByLabel     []ReportBucket      `json:"revenue_by_label"`
	RevenueByServer    []ReportBucket      `json:"revenue_by_server"`
	RevenueByCourier   []ReportBucket      `json:"revenue_by_courier"`
	ExpensesByCategory []ReportBucket      `json:"expenses_by_category"`
	WithdrawalsByLabel []ReportBucket      `json:"withdrawals_by_label"`
	PaymentBreakdown   []InstrumentTotal   `json:"payment_breakdown"`
	Sales              []Sale              `json:"-"`
	Expenses           []Expense           `json:"-"`
	Withdrawals        []Withdrawal        `json:"-"`
	ClosedShifts       []Shift             `json:"-"`
	GeneratedAt        time.Time           `json:"generated_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type OperatorCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type OperatorUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	RoleSupervisor = "supervisor"
	RoleOperator   = "operator"
)

const (
	ShiftStatusOpen   = "OPEN"
	ShiftStatusClosed = "CLOSED"
)

const (
	ShiftLabelMorning = "MORNING"
	ShiftLabelNight   = "NIGHT"
)

const (
	ChannelDineIn   = "DINE_IN"
	ChannelDelivery = "DELIVERY"
)

const (
	InstrumentCash          = "CASH"
	InstrumentDebit         = "DEBIT"
	InstrumentCredit        = "CREDIT"
	InstrumentPix           = "PIX"
	InstrumentMealVoucher   = "MEAL_VOUCHER"
	InstrumentOnlinePayment = "ONLINE_PAYMENT"
	InstrumentMultiple      = "MULTIPLE"
	InstrumentOther         = "OTHER"
	InstrumentUnclassified  = "UNCLASSIFIED"
)

// NotApplicable fills flag, courier and server fields that do not apply to a sale.
const NotApplicable = "N/A"
