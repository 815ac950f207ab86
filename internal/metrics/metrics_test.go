package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.EntryRecorded("sale")
		m.ShiftTransition("open")
		m.CacheLookup(true)
		m.ObserveHTTP(http.MethodGet, "/health", 200, time.Millisecond)
	})
}

func TestCountersAreExposed(t *testing.T) {
	m := New()
	m.EntryRecorded("sale")
	m.EntryRecorded("sale")
	m.ShiftTransition("close")
	m.CacheLookup(false)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `caixa_ledger_entries_total{kind="sale"} 2`)
	assert.Contains(t, body, `caixa_shift_transitions_total{action="close"} 1`)
	assert.Contains(t, body, `caixa_reconciliation_cache_lookups_total{result="miss"} 1`)
}
