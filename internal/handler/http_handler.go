package handler

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pesio-ai/be-ops-reports/internal/platform/auth"
	"github.com/pesio-ai/be-ops-reports/internal/platform/errors"
	"github.com/pesio-ai/be-ops-reports/internal/platform/logger"
	"github.com/pesio-ai/be-ops-reports/internal/repository"
	"github.com/pesio-ai/be-ops-reports/internal/service"
)

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	workflow Workflow
	log      *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(workflow Workflow, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		workflow: workflow,
		log:      log,
	}
}

// Router builds the service's HTTP routes. /health and /metrics are
// unauthenticated; everything under /api/v1 requires a bearer token.
func (h *HTTPHandler) Router(verifier *auth.Verifier, requestTimeout time.Duration) http.Handler {
	r := mux.NewRouter()
	r.Use(RequestLogger(h.log.Logger))

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1/reports").Subrouter()
	api.Use(Authenticate(verifier), Timeout(requestTimeout))

	api.HandleFunc("", h.CreateReport).Methods(http.MethodPost)
	api.HandleFunc("", h.ListReports).Methods(http.MethodGet)
	api.HandleFunc("/pending-my-approval", h.PendingApproval).Methods(http.MethodGet)
	api.HandleFunc("/{id}", h.GetReport).Methods(http.MethodGet)
	api.HandleFunc("/{id}", h.EditReport).Methods(http.MethodPut)
	api.HandleFunc("/{id}/submit", h.SubmitReport).Methods(http.MethodPost)
	api.HandleFunc("/{id}/approve", h.ApproveReport).Methods(http.MethodPost)
	api.HandleFunc("/{id}/reject", h.RejectReport).Methods(http.MethodPost)
	api.HandleFunc("/{id}/comments", h.ListComments).Methods(http.MethodGet)
	api.HandleFunc("/{id}/comments", h.AddComment).Methods(http.MethodPost)
	api.HandleFunc("/{id}/approvals", h.ApprovalHistory).Methods(http.MethodGet)
	api.HandleFunc("/{id}/share", h.ShareReport).Methods(http.MethodPost)

	return r
}

// Health reports liveness.
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ── Reports ──────────────────────────────────────────────────────────────────

// CreateReport handles POST /api/v1/reports
func (h *HTTPHandler) CreateReport(w http.ResponseWriter, r *http.Request) {
	var payload repository.Report
	if !decode(w, r, &payload) {
		return
	}

	report, err := h.workflow.Create(r.Context(), payload, PersonID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

// GetReport handles GET /api/v1/reports/{id}
func (h *HTTPHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.workflow.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// EditReport handles PUT /api/v1/reports/{id}
func (h *HTTPHandler) EditReport(w http.ResponseWriter, r *http.Request) {
	var payload repository.Report
	if !decode(w, r, &payload) {
		return
	}
	payload.ID = mux.Vars(r)["id"]

	report, err := h.workflow.Edit(r.Context(), payload, PersonID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ListReports handles GET /api/v1/reports. Filters: state, org, author, q,
// created_since, released_since (RFC 3339), mine, my_org, created_today,
// released_today, page, page_size.
func (h *HTTPHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}

	page, err := h.workflow.List(r.Context(), PersonID(r.Context()), q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func parseListQuery(v url.Values) (service.ListQuery, error) {
	q := service.ListQuery{
		Filter: repository.ReportFilter{
			AuthorID: v.Get("author"),
			State:    repository.ReportState(v.Get("state")),
			OrgID:    v.Get("org"),
			Text:     v.Get("q"),
		},
	}
	q.Page, _ = strconv.Atoi(v.Get("page"))
	q.PageSize, _ = strconv.Atoi(v.Get("page_size"))

	for name, dst := range map[string]**time.Time{
		"created_since":  &q.Filter.CreatedSince,
		"released_since": &q.Filter.ReleasedSince,
	} {
		raw := v.Get(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return q, errors.InvalidInput(name, "expected an RFC 3339 timestamp")
		}
		*dst = &t
	}

	for name, dst := range map[string]*bool{
		"mine":           &q.Mine,
		"my_org":         &q.MyOrg,
		"created_today":  &q.CreatedToday,
		"released_today": &q.ReleasedToday,
	} {
		raw := v.Get(name)
		if raw == "" {
			continue
		}
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return q, errors.InvalidInput(name, "expected a boolean")
		}
		*dst = b
	}
	return q, nil
}

// PendingApproval handles GET /api/v1/reports/pending-my-approval
func (h *HTTPHandler) PendingApproval(w http.ResponseWriter, r *http.Request) {
	reports, err := h.workflow.PendingApproval(r.Context(), PersonID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reports": reports,
		"total":   len(reports),
	})
}

// ── Workflow transitions ─────────────────────────────────────────────────────

// SubmitReport handles POST /api/v1/reports/{id}/submit
func (h *HTTPHandler) SubmitReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.workflow.Submit(r.Context(), mux.Vars(r)["id"], PersonID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type approveRequest struct {
	Comment *string `json:"comment"`
}

// ApproveReport handles POST /api/v1/reports/{id}/approve. The body is optional.
func (h *HTTPHandler) ApproveReport(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !stderrors.Is(err, io.EOF) {
		writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}

	report, err := h.workflow.Approve(r.Context(), mux.Vars(r)["id"], PersonID(r.Context()), req.Comment)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// RejectReport handles POST /api/v1/reports/{id}/reject
func (h *HTTPHandler) RejectReport(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if !decode(w, r, &req) {
		return
	}

	report, err := h.workflow.Reject(r.Context(), mux.Vars(r)["id"], PersonID(r.Context()), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ApprovalHistory handles GET /api/v1/reports/{id}/approvals
func (h *HTTPHandler) ApprovalHistory(w http.ResponseWriter, r *http.Request) {
	actions, err := h.workflow.ApprovalHistory(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"approvals": actions})
}

// ── Comments and sharing ─────────────────────────────────────────────────────

// ListComments handles GET /api/v1/reports/{id}/comments
func (h *HTTPHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.workflow.Comments(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"comments": comments})
}

type commentRequest struct {
	Text string `json:"text"`
}

// AddComment handles POST /api/v1/reports/{id}/comments
func (h *HTTPHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if !decode(w, r, &req) {
		return
	}

	comment, err := h.workflow.AddComment(r.Context(), mux.Vars(r)["id"], PersonID(r.Context()), req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

type shareRequest struct {
	RecipientIDs []string `json:"recipientIds"`
	Message      string   `json:"message"`
}

// ShareReport handles POST /api/v1/reports/{id}/share
func (h *HTTPHandler) ShareReport(w http.ResponseWriter, r *http.Request) {
	var req shareRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.workflow.Share(r.Context(), mux.Vars(r)["id"], PersonID(r.Context()), req.RecipientIDs, req.Message); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, errors.InvalidInput("body", "invalid request body"))
		return false
	}
	return true
}
