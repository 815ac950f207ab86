package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"caixa/backend/internal/domain"
	"caixa/backend/internal/report"
)

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

func (a *API) handleShiftOpen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.ShiftOpenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.OpenShift(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleShiftClose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.ShiftCloseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.CloseShift(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleShiftCurrent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	resp, err := a.service.CurrentShift(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleShiftList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	q := r.URL.Query()
	resp, err := a.service.ListShifts(r.Context(), domain.ShiftListRequest{
		From:   q.Get("from"),
		To:     q.Get("to"),
		Status: q.Get("status"),
		Label:  q.Get("label"),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if resp.Shifts == nil {
		resp.Shifts = []domain.ShiftSummary{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleShiftActions serves /api/v1/shifts/{id} and its sub-resources.
func (a *API) handleShiftActions(w http.ResponseWriter, r *http.Request) {
	tail := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/shifts/"), "/")
	shiftID, action, _ := strings.Cut(tail, "/")
	if strings.TrimSpace(shiftID) == "" {
		writeError(w, http.StatusBadRequest, errors.New("shift id required"))
		return
	}

	if action == "reopen" {
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		a.handleShiftReopen(w, r, shiftID)
		return
	}

	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	switch action {
	case "":
		resp, err := a.service.GetShift(r.Context(), shiftID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	case "reconciliation":
		a.handleReconciliation(w, r, shiftID)
	case "sales":
		sales, err := a.service.ListShiftSales(r.Context(), shiftID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if sales == nil {
			sales = []domain.Sale{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
	case "expenses":
		expenses, err := a.service.ListShiftExpenses(r.Context(), shiftID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if expenses == nil {
			expenses = []domain.Expense{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"expenses": expenses})
	case "withdrawals":
		withdrawals, err := a.service.ListShiftWithdrawals(r.Context(), shiftID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if withdrawals == nil {
			withdrawals = []domain.Withdrawal{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"withdrawals": withdrawals})
	default:
		writeError(w, http.StatusNotFound, errors.New("unknown shift action"))
	}
}

func (a *API) handleShiftReopen(w http.ResponseWriter, r *http.Request, shiftID string) {
	var req domain.ShiftReopenRequest
	// the body is optional for supervisors
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.SupervisorPIN) != "" && !a.pinLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many supervisor pin attempts"))
		return
	}

	resp, err := a.service.ReopenShift(r.Context(), shiftID, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleReconciliation(w http.ResponseWriter, r *http.Request, shiftID string) {
	if !strings.EqualFold(r.URL.Query().Get("format"), "html") {
		rec, err := a.service.Reconcile(r.Context(), shiftID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
		return
	}

	shift, rec, err := a.service.ShiftWithReconciliation(r.Context(), shiftID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	page, err := renderClosingSlip(shift, rec, a.service.Location())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(page)
}

func (a *API) handleSale(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.SaleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.RegisterSale(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleDineInSale(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.DineInSaleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.RegisterDineInSale(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleDeliverySale(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.DeliverySaleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.RegisterDeliverySale(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleExpense(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.ExpenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	expense, err := a.service.RegisterExpense(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"expense": expense})
}

func (a *API) handleWithdrawal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.WithdrawalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	withdrawal, err := a.service.RegisterWithdrawal(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"withdrawal": withdrawal})
}

func (a *API) handleNextTable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	resp, err := a.service.NextFreeTable(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	catalog, err := a.service.Catalog(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, catalog)
}

func (a *API) handlePeriodReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	q := r.URL.Query()
	rep, err := a.service.PeriodReport(r.Context(), domain.PeriodReportRequest{
		From:    q.Get("from"),
		To:      q.Get("to"),
		Channel: q.Get("channel"),
		Label:   q.Get("label"),
		Courier: q.Get("courier"),
		Server:  q.Get("server"),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	filename := fmt.Sprintf("relatorio_%s_%s", rep.From, rep.To)
	var buf bytes.Buffer
	switch strings.ToLower(strings.TrimSpace(q.Get("format"))) {
	case "", "json":
		writeJSON(w, http.StatusOK, rep)
		return
	case "csv":
		if err := report.WriteCSV(&buf, rep); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		filename += ".csv"
	case "xlsx":
		if err := report.WriteWorkbook(&buf, rep, a.service.Location()); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		filename += ".xlsx"
	default:
		writeError(w, http.StatusBadRequest, errors.New("format must be json, csv or xlsx"))
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
	logs, err := a.service.ListAuditLogs(r.Context(), r.URL.Query().Get("date"), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if logs == nil {
		logs = []domain.AuditLog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (a *API) handleOperators(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"operators": a.auth.ListOperators(r.Context())})
	case http.MethodPost:
		var req domain.OperatorCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		created, err := a.auth.CreateOperator(r.Context(), req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"operator": created})
	default:
		writeMethodNotAllowed(w)
	}
}
