package httpserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Youngger9765/career-ios-backend-sub001/internal/catalog"
	"github.com/Youngger9765/career-ios-backend-sub001/internal/ledger"
	"github.com/Youngger9765/career-ios-backend-sub001/internal/metrics"
)

type debitRequest struct {
	CounselorID    int64  `json:"counselor_id"`
	ResourceType   string `json:"resource_type"`
	ResourceID     string `json:"resource_id"`
	ElapsedSeconds int64  `json:"elapsed_seconds"`
}

// handleDebit applies an incremental debit for a billable event. The
// elapsed_seconds field is the cumulative elapsed time for the resource,
// so retries and duplicate deliveries are safe.
func (s *Server) handleDebit(w http.ResponseWriter, r *http.Request) {
	var req debitRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	if s.limiter != nil && !s.limiter.Allow(r.Context(), req.CounselorID) {
		if s.metrics != nil {
			s.metrics.RecordRateLimitHit()
		}
		s.respondError(w, http.StatusTooManyRequests, errors.New("rate limit exceeded"))
		return
	}

	result, err := s.service.DebitIncremental(r.Context(), req.CounselorID,
		ledger.ResourceType(req.ResourceType), req.ResourceID, req.ElapsedSeconds)
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

type grantRequest struct {
	CounselorID int64  `json:"counselor_id"`
	Amount      int64  `json:"amount,omitempty"`
	Package     string `json:"package,omitempty"`
	Note        string `json:"note,omitempty"`
}

// handleGrant credits a counselor, either a raw amount or a catalog
// package resolved to its amount and audit note.
func (s *Server) handleGrant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}

	amount := req.Amount
	note := req.Note
	if req.Package != "" {
		if s.catalog == nil {
			s.respondError(w, http.StatusBadRequest, errors.New("no package catalog configured"))
			return
		}
		pkg, ok := s.catalog.Lookup(req.Package)
		if !ok {
			s.respondError(w, http.StatusBadRequest, errors.New("unknown package "+req.Package))
			return
		}
		amount = pkg.Credits
		if note == "" {
			note = pkg.Note
		}
	}

	entry, err := s.service.Credit(r.Context(), req.CounselorID, amount, note)
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"entry": entry})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	counselorID, err := counselorIDParam(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	balance, err := s.service.Balance(r.Context(), counselorID)
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"counselor_id":      counselorID,
		"available_credits": balance,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	counselorID, err := counselorIDParam(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	entries, err := s.service.History(r.Context(), counselorID, limit)
	if err != nil {
		s.respondLedgerError(w, err)
		return
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handlePackages(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		s.respondJSON(w, http.StatusOK, map[string]any{"packages": []catalog.Package{}})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"packages": s.catalog.Packages()})
}

type reconcileRequest struct {
	CounselorID int64 `json:"counselor_id,omitempty"`
	All         bool  `json:"all,omitempty"`
}

// handleReconcile runs the consistency auditor synchronously, for one
// counselor or as a full sweep.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	switch {
	case req.All:
		reports, err := s.auditor.Sweep(r.Context())
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, err)
			return
		}
		s.respondJSON(w, http.StatusOK, map[string]any{"reports": reports})
	case req.CounselorID != 0:
		report, err := s.auditor.Repair(r.Context(), req.CounselorID)
		if err != nil {
			s.respondLedgerError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, map[string]any{"report": report})
	default:
		s.respondError(w, http.StatusBadRequest, errors.New("counselor_id or all required"))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		s.respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
		return
	}
	components, healthy := s.checker.Check(r.Context())
	status := http.StatusOK
	overall := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}
	s.respondJSON(w, status, map[string]any{"status": overall, "components": components})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		http.Error(w, "metrics disabled", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_, _ = w.Write([]byte(metrics.FormatPrometheus(s.metrics.GetSnapshot())))
}

// respondLedgerError maps ledger error taxonomy onto HTTP statuses.
// InsufficientCredits is a billing-stop condition for the caller, Busy is
// retryable with backoff, InvalidEntry needs a fixed request, anything
// else is a storage failure.
func (s *Server) respondLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInsufficientCredits):
		s.respondError(w, http.StatusPaymentRequired, err)
	case errors.Is(err, ledger.ErrBusy):
		w.Header().Set("Retry-After", "1")
		s.respondError(w, http.StatusTooManyRequests, err)
	case errors.Is(err, ledger.ErrInvalidEntry):
		if s.metrics != nil {
			s.metrics.RecordInvalidRequest()
		}
		s.respondError(w, http.StatusBadRequest, err)
	default:
		s.respondError(w, http.StatusInternalServerError, err)
	}
}

func counselorIDParam(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("counselor_id")
	if raw == "" {
		return 0, errors.New("counselor_id required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid counselor_id")
	}
	return id, nil
}
