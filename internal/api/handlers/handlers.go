// Package handlers implements the HTTP endpoints of the categorization API.
// Pipeline runs are enqueued and processed asynchronously; rule and
// suggestion operations execute inline.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dvloznov/txn-categorizer/internal/api/middleware"
	"github.com/dvloznov/txn-categorizer/internal/domain"
	"github.com/dvloznov/txn-categorizer/internal/jobs"
	"github.com/dvloznov/txn-categorizer/internal/rules"
	"github.com/dvloznov/txn-categorizer/internal/service"
	"github.com/rs/zerolog"
)

// PipelineHandler handles cleanup and categorization endpoints. Both runs
// can take minutes, so the handler enqueues a job and returns 202.
type PipelineHandler struct {
	publisher jobs.Publisher
	log       zerolog.Logger
}

// NewPipelineHandler creates a new pipeline handler.
func NewPipelineHandler(publisher jobs.Publisher, log zerolog.Logger) *PipelineHandler {
	return &PipelineHandler{
		publisher: publisher,
		log:       log,
	}
}

// EnqueueCleanup handles POST /api/cleanup
func (h *PipelineHandler) EnqueueCleanup(w http.ResponseWriter, r *http.Request) {
	h.enqueue(w, r, jobs.JobKindCleanup)
}

// EnqueueCategorization handles POST /api/categorization
func (h *PipelineHandler) EnqueueCategorization(w http.ResponseWriter, r *http.Request) {
	h.enqueue(w, r, jobs.JobKindCategorization)
}

func (h *PipelineHandler) enqueue(w http.ResponseWriter, r *http.Request, kind jobs.JobKind) {
	ctx := r.Context()

	job := &jobs.PipelineJob{Kind: kind}
	if err := h.publisher.Publish(ctx, job); err != nil {
		h.log.Error().Err(err).Str("kind", string(kind)).Msg("Failed to enqueue pipeline job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue pipeline job")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Str("kind", string(kind)).Msg("Pipeline job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"kind":   string(kind),
		"status": string(job.Status),
	})
}

// RulesHandler handles rule and suggestion endpoints.
type RulesHandler struct {
	svc *service.Service
	log zerolog.Logger
}

// NewRulesHandler creates a new rules handler.
func NewRulesHandler(svc *service.Service, log zerolog.Logger) *RulesHandler {
	return &RulesHandler{
		svc: svc,
		log: log,
	}
}

// CreateRule handles POST /api/rules
func (h *RulesHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IdentifierType    string   `json:"identifier_type"`
		Identifier        string   `json:"identifier"`
		TransactionType   string   `json:"transaction_type"`
		PrimaryCategory   string   `json:"primary_category"`
		SecondaryCategory string   `json:"secondary_category"`
		PersonaType       string   `json:"persona_type"`
		ConfidenceScore   *float64 `json:"confidence_score"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.svc.CreateRule(r.Context(), rules.CreateRuleInput{
		IdentifierType:    domain.IdentifierType(req.IdentifierType),
		Identifier:        req.Identifier,
		TransactionType:   domain.TransactionType(req.TransactionType),
		PrimaryCategory:   req.PrimaryCategory,
		SecondaryCategory: req.SecondaryCategory,
		PersonaType:       req.PersonaType,
		ConfidenceScore:   req.ConfidenceScore,
	})
	if err != nil {
		h.writeRuleError(w, err, "Failed to create rule")
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	middleware.WriteJSON(w, status, res)
}

// UpdateRuleStatus handles PATCH /api/rules/{id}/status
func (h *RulesHandler) UpdateRuleStatus(w http.ResponseWriter, r *http.Request, ruleID string) {
	var req struct {
		Status string `json:"status"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.svc.UpdateRuleStatus(r.Context(), ruleID, domain.RuleStatus(req.Status))
	if err != nil {
		h.writeRuleError(w, err, "Failed to update rule status")
		return
	}

	if !res.Updated {
		middleware.WriteJSON(w, http.StatusNotFound, res)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

// SuggestRules handles GET /api/suggestions
func (h *RulesHandler) SuggestRules(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.SuggestNewRules(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to mine rule suggestions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to mine rule suggestions")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, res)
}

// ApproveSuggestions handles POST /api/suggestions/approve
func (h *RulesHandler) ApproveSuggestions(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.BulkCreateRules(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to approve rule suggestions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to approve rule suggestions")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, res)
}

func (h *RulesHandler) writeRuleError(w http.ResponseWriter, err error, fallback string) {
	var conflict *domain.RuleConflictError
	if errors.As(err, &conflict) {
		middleware.WriteJSON(w, http.StatusConflict, map[string]string{
			"error":            conflict.Error(),
			"existing_rule_id": conflict.Existing.RuleID,
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrInvalidCategory),
		errors.Is(err, domain.ErrInvalidIdentifierType),
		errors.Is(err, domain.ErrInvalidTransactionType),
		errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrInvalidConfidence):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error().Err(err).Msg(fallback)
		middleware.WriteError(w, http.StatusInternalServerError, fallback)
	}
}

// AdminHandler handles cancellation, summary, and reset endpoints.
type AdminHandler struct {
	svc *service.Service
	log zerolog.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(svc *service.Service, log zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		svc: svc,
		log: log,
	}
}

// RequestCancellation handles POST /api/cancellation
func (h *AdminHandler) RequestCancellation(w http.ResponseWriter, r *http.Request) {
	msg := h.svc.RequestCancellation()
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"message": msg})
}

// ResetCancellation handles DELETE /api/cancellation
func (h *AdminHandler) ResetCancellation(w http.ResponseWriter, r *http.Request) {
	h.svc.ResetCancellation()
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"message": "Cancellation flag cleared."})
}

// Summarize handles GET /api/summary
func (h *AdminHandler) Summarize(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	now := time.Now()

	var start, end time.Time
	startStr, endStr := query.Get("start_date"), query.Get("end_date")
	if startStr != "" && endStr != "" {
		var err error
		start, err = time.Parse("2006-01-02", startStr)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid start_date format")
			return
		}
		end, err = time.Parse("2006-01-02", endStr)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid end_date format")
			return
		}
	} else {
		start, end = service.ParseDateRange(query.Get("range"), now)
	}

	res, err := h.svc.SummarizeByCategory(r.Context(), start, end)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to summarize transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to summarize transactions")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, res)
}

// ListLabelingRuns handles GET /api/labeling-runs
func (h *AdminHandler) ListLabelingRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil {
			limit = n
		}
	}

	res, err := h.svc.ListLabelingRuns(r.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list labeling runs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list labeling runs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, res)
}

// Reset handles POST /api/admin/reset
func (h *AdminHandler) Reset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Confirmation string `json:"confirmation"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.svc.ResetAllTransactions(r.Context(), req.Confirmation)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to reset derived fields")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to reset derived fields")
		return
	}

	if !res.Confirmed {
		middleware.WriteJSON(w, http.StatusPreconditionRequired, res)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		Kind:   jobs.JobKind(query.Get("kind")),
		Status: jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
