package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	commonerrors "loan-funnel-workers/internal/common/errors"
	"loan-funnel-workers/internal/emi"
	"loan-funnel-workers/internal/flow"
	"loan-funnel-workers/internal/permission"

	"github.com/go-chi/chi/v5"
)

const readyTimeout = 2 * time.Second

type startRequest struct {
	ApplicationID string `json:"applicationId"`
}

type editRequest struct {
	Fields map[string]interface{} `json:"fields"`
}

type continueRequest struct {
	Fields       map[string]interface{} `json:"fields"`
	ExpectedStep string                 `json:"expectedStep"`
}

type backRequest struct {
	ExpectedStep string `json:"expectedStep"`
}

type verifyRequest struct {
	Code string `json:"code"`
}

type permissionsResponse struct {
	Status   permission.Status                     `json:"status"`
	Statuses map[permission.Kind]permission.Status `json:"statuses"`
	Denied   []string                              `json:"denied,omitempty"`
}

type emiResponse struct {
	emi.Result
	Schedule []emi.Installment `json:"schedule,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	checks := make(map[string]string, len(h.checks))
	ready := true
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}
	status := http.StatusOK
	state := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		state = "not ready"
	}
	writeJSON(w, status, map[string]interface{}{"status": state, "checks": checks})
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	view, err := h.ctrl.Start(r.Context(), chi.URLParam(r, "flow"), req.ApplicationID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *Handler) enter(w http.ResponseWriter, r *http.Request) {
	view, err := h.ctrl.Enter(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) edit(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if !h.decode(w, r, &req) {
		return
	}
	view, err := h.ctrl.Edit(r.Context(), chi.URLParam(r, "id"), req.Fields)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) continueStep(w http.ResponseWriter, r *http.Request) {
	var req continueRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	tr, err := h.ctrl.Continue(r.Context(), id, req.Fields, req.ExpectedStep)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.publish(r.Context(), id, tr)
	writeJSON(w, http.StatusOK, tr)
}

func (h *Handler) back(w http.ResponseWriter, r *http.Request) {
	var req backRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	view, err := h.ctrl.Back(r.Context(), chi.URLParam(r, "id"), req.ExpectedStep)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) issueOTP(w http.ResponseWriter, r *http.Request) {
	out, err := h.verify.Issue(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, out)
}

func (h *Handler) otpStatus(w http.ResponseWriter, r *http.Request) {
	out, err := h.verify.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) verifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, err := h.verify.Verify(r.Context(), chi.URLParam(r, "id"), req.Code)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) reportPermissions(w http.ResponseWriter, r *http.Request) {
	var raw map[string]string
	if !h.decode(w, r, &raw) {
		return
	}
	report, err := h.verify.ReportPermissions(r.Context(), chi.URLParam(r, "id"), raw)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, permissionsResponse{
		Status:   report.Status,
		Statuses: report.Statuses,
		Denied:   report.DeniedNames(),
	})
}

// maxAnnualRate matches the loan.emi.calculate input schema.
const maxAnnualRate = 60

// calculateEMI quotes the free calculator. rate overrides the product rate.
func (h *Handler) calculateEMI(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	terms := h.calculator.DefaultTerms()

	if v := q.Get("principal"); v != "" {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil {
			h.writeErr(w, r, commonerrors.NewInvalidLoanTermsError("principal must be a number"))
			return
		}
		terms.Principal = p
	}
	if v := q.Get("tenure"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			h.writeErr(w, r, commonerrors.NewInvalidLoanTermsError("tenure must be a whole number of months"))
			return
		}
		terms.TenureMonths = n
	}
	if v := q.Get("rate"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil || !(rate > 0 && rate <= maxAnnualRate) {
			h.writeErr(w, r, commonerrors.NewInvalidLoanTermsError("rate must be a number above 0 and at most 60"))
			return
		}
		terms.AnnualRate = rate
	}

	res, err := h.calculator.Quote(terms)
	if err != nil {
		h.writeErr(w, r, commonerrors.NewInvalidLoanTermsError(err.Error()))
		return
	}
	body := emiResponse{Result: res}
	if q.Get("schedule") == "true" {
		body.Schedule = emi.Schedule(res)
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) publish(ctx context.Context, id string, tr *flow.Transition) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.PublishStep(ctx, id, tr); err != nil {
		h.logger.Warn("step publish failed", map[string]interface{}{
			"applicationId": id,
			"from":          tr.From,
			"to":            tr.To,
			"error":         err.Error(),
		})
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "request body is not valid JSON")
		return false
	}
	return true
}

// decodeOptional accepts an empty body.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	return h.decode(w, r, dst)
}
