package http

import (
	"context"
	"net/http"
	"time"

	"ledger/internal/log"
	"ledger/internal/services"
)

func owner(r *http.Request) int64 {
	id, _ := OwnerFromContext(r.Context())
	return id
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady reports whether the store answers a ping.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := map[string]any{}

	switch {
	case s.deps.Store == nil:
		checks["store"] = "not_configured"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	default:
		if err := s.deps.Store.Ping(ctx); err != nil {
			s.logger.WarnContext(ctx, "Readiness check failed", log.FieldError, err)
			checks["store"] = "unreachable"
			status, httpStatus = "not_ready", http.StatusServiceUnavailable
		} else {
			checks["store"] = "ok"
		}
	}
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.limiter.ActiveClients(),
		"status":         "ok",
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

func (s *Server) handleMonthlySummary(w http.ResponseWriter, r *http.Request) {
	params, err := ParseMonthParams(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	summary, err := s.deps.Summaries.GetMonthlySummary(r.Context(), owner(r), params.Month, params.Year)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleVerify recomputes every balance of the caller from its
// transactions. Mismatches are reported, not repaired.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Verifier.VerifyBalances(r.Context(), owner(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	mismatches := report.Mismatches
	if mismatches == nil {
		mismatches = []services.Mismatch{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":           report.OK(),
		"accounts":     report.Accounts,
		"credit_cards": report.Cards,
		"transactions": report.Transactions,
		"mismatches":   mismatches,
	})
}
