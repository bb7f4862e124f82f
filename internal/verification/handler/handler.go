// Package handler exposes verification, job, duplicate and statistics
// operations over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"trustos/internal/stats"
	"trustos/internal/verification/jobs"
	"trustos/internal/verification/models"
	dErrors "trustos/pkg/domain-errors"
	"trustos/pkg/platform/httputil"
	"trustos/pkg/requestcontext"
)

// Verifier runs synchronous verifications and duplicate checks.
type Verifier interface {
	Verify(ctx context.Context, subject models.Subject) (*models.VerificationResult, error)
	CheckDuplicate(ctx context.Context, posting models.JobPosting) (models.DuplicateCheckResult, error)
}

// JobService is the async job lifecycle.
type JobService interface {
	Submit(ctx context.Context, req models.JobRequest) (*models.JobRecord, error)
	SubmitBatch(ctx context.Context, reqs []models.JobRequest) ([]jobs.BatchItem, error)
	PollStatus(ctx context.Context, id string) (*models.JobRecord, error)
	PollMany(ctx context.Context, ids []string) ([]jobs.StatusItem, error)
	Retry(ctx context.Context, id string) (*models.JobRecord, error)
}

// StatsReader serves the dashboard figures.
type StatsReader interface {
	Stats(ctx context.Context) (*stats.Stats, error)
	DetailedStats(ctx context.Context) (*stats.DetailedStats, error)
}

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Handler handles verification endpoints.
type Handler struct {
	verifier Verifier
	jobs     JobService
	stats    StatsReader
	logger   *slog.Logger
	checks   map[string]HealthCheck
}

type Option func(*Handler)

// WithHealthCheck adds a named dependency probe to /healthz.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(h *Handler) {
		h.checks[name] = check
	}
}

// New creates a verification Handler.
func New(verifier Verifier, jobSvc JobService, statsReader StatsReader, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		verifier: verifier,
		jobs:     jobSvc,
		stats:    statsReader,
		logger:   logger,
		checks:   make(map[string]HealthCheck),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the verification routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/healthz", h.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/verifications/company", h.handleVerifyCompany)
		r.Post("/verifications/jobs", h.handleSubmitJob)
		r.Post("/verifications/jobs/bulk", h.handleSubmitBatch)
		r.Post("/verifications/jobs/status", h.handleBulkStatus)
		r.Get("/verifications/jobs/{jobID}", h.handleJobStatus)
		r.Post("/verifications/jobs/{jobID}/retry", h.handleRetryJob)
		r.Get("/badge/{jobID}", h.handleBadge)
		r.Post("/duplicates/check", h.handleDuplicateCheck)
		r.Get("/stats", h.handleStats)
		r.Get("/stats/detailed", h.handleDetailedStats)
	})
}

func (h *Handler) handleVerifyCompany(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[VerifyCompanyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.verifier.Verify(ctx, req.Subject)
	if err != nil {
		h.writeServiceError(ctx, w, requestID, "verify company", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, err := httputil.Decode[models.JobRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rec, err := h.jobs.Submit(ctx, *req)
	if err != nil {
		h.writeServiceError(ctx, w, requestID, "submit job", err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, SubmitResponse{
		JobID:       rec.ID,
		State:       rec.State,
		SubmittedAt: rec.SubmittedAt,
	})
}

func (h *Handler) handleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[BulkSubmitRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	items, err := h.jobs.SubmitBatch(ctx, req.Items)
	if err != nil {
		h.writeServiceError(ctx, w, requestID, "submit batch", err)
		return
	}
	resp := BulkSubmitResponse{Items: items}
	for _, item := range items {
		if item.Error != nil {
			resp.Rejected++
		} else {
			resp.Accepted++
		}
	}
	httputil.WriteJSON(w, http.StatusAccepted, resp)
}

func (h *Handler) handleBulkStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[BulkStatusRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	items, err := h.jobs.PollMany(ctx, req.JobIDs)
	if err != nil {
		h.writeServiceError(ctx, w, requestID, "poll jobs", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, BulkStatusResponse{Items: items})
}

func (h *Handler) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	rec, err := h.jobs.PollStatus(ctx, chi.URLParam(r, "jobID"))
	if err != nil {
		h.writeServiceError(ctx, w, requestID, "poll job", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleRetryJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	rec, err := h.jobs.Retry(ctx, chi.URLParam(r, "jobID"))
	if err != nil {
		h.writeServiceError(ctx, w, requestID, "retry job", err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, rec)
}

// handleBadge serves the badge of a completed job only.
func (h *Handler) handleBadge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	rec, err := h.jobs.PollStatus(ctx, chi.URLParam(r, "jobID"))
	if err != nil {
		h.writeServiceError(ctx, w, requestID, "load badge", err)
		return
	}
	if rec.State != models.JobCompleted || rec.Result == nil || rec.Result.Verification == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidState, "badge is only available for completed verifications"))
		return
	}

	res := rec.Result.Verification
	company := ""
	switch {
	case rec.Request.Subject != nil:
		company = rec.Request.Subject.Name
	case rec.Request.Posting != nil:
		company = rec.Request.Posting.Company.Name
	}
	httputil.WriteJSON(w, http.StatusOK, BadgeResponse{
		JobID:      rec.ID,
		Company:    company,
		Status:     res.Status,
		TrustScore: res.TrustScore,
		VerifiedAt: res.ComputedAt,
	})
}

func (h *Handler) handleDuplicateCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[DuplicateCheckRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.verifier.CheckDuplicate(ctx, req.JobPosting)
	if err != nil {
		h.writeServiceError(ctx, w, requestID, "check duplicate", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, err := h.stats.Stats(ctx)
	if err != nil {
		h.writeServiceError(ctx, w, requestcontext.RequestID(ctx), "load stats", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, st)
}

func (h *Handler) handleDetailedStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, err := h.stats.DetailedStats(ctx)
	if err != nil {
		h.writeServiceError(ctx, w, requestcontext.RequestID(ctx), "load detailed stats", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, st)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ok"}
	status := http.StatusOK
	if len(h.checks) > 0 {
		resp.Checks = make(map[string]string, len(h.checks))
	}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.WarnContext(ctx, "health check failed", "check", name, "error", err)
			resp.Checks[name] = "unavailable"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	httputil.WriteJSON(w, status, resp)
}

// writeServiceError logs at warn for caller errors and at error for internal
// ones, then writes the mapped response.
func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, requestID, op string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "request failed",
			"op", op,
			"request_id", requestID,
			"error", err,
		)
	} else {
		h.logger.WarnContext(ctx, "request rejected",
			"op", op,
			"request_id", requestID,
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
