// Package jobs wraps the orchestrator in an asynchronous submit/poll/retry
// lifecycle: PENDING -> COMPLETED | FAILED, and FAILED -> PENDING on retry.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"trustos/internal/verification/metrics"
	"trustos/internal/verification/models"
	dErrors "trustos/pkg/domain-errors"
	"trustos/pkg/platform/sentinel"
)

const (
	DefaultRetention    = 7 * 24 * time.Hour
	DefaultMaxBatchSize = 100

	internalFailureMessage = "verification failed due to an internal error"
)

// Verifier runs the verification a job stands for.
type Verifier interface {
	Verify(ctx context.Context, subject models.Subject) (*models.VerificationResult, error)
	VerifyPosting(ctx context.Context, posting models.JobPosting) (*models.Outcome, error)
}

// ItemError is the reason one batch item was rejected.
type ItemError struct {
	Code    dErrors.Code `json:"code"`
	Message string       `json:"message"`
}

// BatchItem reports one entry of a batch submission. Rejected items carry
// Error and no job id.
type BatchItem struct {
	Index int             `json:"index"`
	JobID string          `json:"jobId,omitempty"`
	State models.JobState `json:"state,omitempty"`
	Error *ItemError      `json:"error,omitempty"`
}

// StateNotFound marks an unknown or expired id in a bulk status poll.
const StateNotFound = "NOT_FOUND"

// StatusItem is one entry of a bulk status poll. State is the job's state or
// StateNotFound.
type StatusItem struct {
	JobID string            `json:"jobId"`
	State string            `json:"state"`
	Job   *models.JobRecord `json:"job,omitempty"`
}

// Service owns job state transitions. Jobs run on their own goroutines and
// are not cancelled once PENDING; Wait blocks until in-flight jobs finish.
type Service struct {
	store        Store
	verifier     Verifier
	logger       *slog.Logger
	metrics      *metrics.Metrics
	retention    time.Duration
	maxBatchSize int
	now          func() time.Time

	wg sync.WaitGroup
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithRetention sets how long records live after submission.
func WithRetention(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.retention = d
		}
	}
}

func WithMaxBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxBatchSize = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(store Store, verifier Verifier, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("job store is required")
	}
	if verifier == nil {
		return nil, errors.New("verifier is required")
	}
	s := &Service{
		store:        store,
		verifier:     verifier,
		logger:       slog.New(slog.DiscardHandler),
		retention:    DefaultRetention,
		maxBatchSize: DefaultMaxBatchSize,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Submit validates req synchronously and, when valid, records a PENDING job
// and starts it. Invalid requests never create a record.
func (s *Service) Submit(ctx context.Context, req models.JobRequest) (*models.JobRecord, error) {
	req, err := prepare(req)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	rec := &models.JobRecord{
		ID:          uuid.NewString(),
		State:       models.JobPending,
		Request:     req,
		Attempts:    1,
		SubmittedAt: now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record job")
	}
	s.metrics.IncrementJobTransition(string(models.JobPending))
	s.logger.InfoContext(ctx, "verification job submitted",
		"job_id", rec.ID,
		"kind", req.Kind,
	)

	s.start(ctx, rec.ID, req)
	return rec, nil
}

// SubmitBatch submits each item independently; a rejected item does not
// affect the others.
func (s *Service) SubmitBatch(ctx context.Context, reqs []models.JobRequest) ([]BatchItem, error) {
	if len(reqs) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "batch must contain at least one item")
	}
	if len(reqs) > s.maxBatchSize {
		return nil, dErrors.New(dErrors.CodeBatchTooLarge, fmt.Sprintf("batch must contain at most %d items", s.maxBatchSize))
	}

	items := make([]BatchItem, len(reqs))
	for i, req := range reqs {
		items[i].Index = i
		rec, err := s.Submit(ctx, req)
		if err != nil {
			items[i].Error = &ItemError{Code: dErrors.CodeOf(err), Message: publicMessage(err)}
			continue
		}
		items[i].JobID = rec.ID
		items[i].State = rec.State
	}
	return items, nil
}

// PollStatus sweeps expired records, then returns the job.
func (s *Service) PollStatus(ctx context.Context, id string) (*models.JobRecord, error) {
	s.sweep(ctx)
	return s.get(ctx, id)
}

// PollMany returns one item per id, in order, marking unknown ids.
func (s *Service) PollMany(ctx context.Context, ids []string) ([]StatusItem, error) {
	if len(ids) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "at least one job id is required")
	}
	if len(ids) > s.maxBatchSize {
		return nil, dErrors.New(dErrors.CodeBatchTooLarge, fmt.Sprintf("at most %d job ids per request", s.maxBatchSize))
	}

	s.sweep(ctx)
	items := make([]StatusItem, len(ids))
	for i, id := range ids {
		items[i].JobID = id
		rec, err := s.get(ctx, id)
		switch {
		case err == nil:
			items[i].State = string(rec.State)
			items[i].Job = rec
		case dErrors.HasCode(err, dErrors.CodeNotFound):
			items[i].State = StateNotFound
		default:
			return nil, err
		}
	}
	return items, nil
}

// Retry moves a FAILED job back to PENDING and runs it again. Any other
// state is rejected.
func (s *Service) Retry(ctx context.Context, id string) (*models.JobRecord, error) {
	rec, err := s.store.Update(ctx, id, func(r *models.JobRecord) error {
		if r.State != models.JobFailed {
			return fmt.Errorf("job %s is %s: %w", id, r.State, sentinel.ErrInvalidState)
		}
		r.State = models.JobPending
		r.Error = ""
		r.Result = nil
		r.Attempts++
		r.UpdatedAt = s.now().UTC()
		return nil
	})
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.New(dErrors.CodeNotFound, "job not found")
	case errors.Is(err, sentinel.ErrInvalidState):
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidState, "only failed jobs can be retried")
	case err != nil:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update job")
	}

	s.metrics.IncrementJobTransition(string(models.JobPending))
	s.logger.InfoContext(ctx, "verification job retried",
		"job_id", id,
		"attempt", rec.Attempts,
	)
	s.start(ctx, id, rec.Request)
	return rec, nil
}

// Wait blocks until every started job has reached a terminal state.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Shutdown waits for in-flight jobs or until ctx is done.
func (s *Service) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) start(ctx context.Context, id string, req models.JobRequest) {
	ctx = context.WithoutCancel(ctx)
	s.wg.Go(func() {
		s.run(ctx, id, req)
	})
}

func (s *Service) run(ctx context.Context, id string, req models.JobRequest) {
	outcome, runErr := s.execute(ctx, req)

	rec, err := s.store.Update(ctx, id, func(r *models.JobRecord) error {
		if r.State != models.JobPending {
			return fmt.Errorf("job %s is %s: %w", id, r.State, sentinel.ErrInvalidState)
		}
		r.UpdatedAt = s.now().UTC()
		if runErr != nil {
			r.State = models.JobFailed
			r.Error = publicMessage(runErr)
			return nil
		}
		r.State = models.JobCompleted
		r.Result = outcome
		return nil
	})
	if err != nil {
		s.logger.WarnContext(ctx, "verification job finished but could not be updated",
			"job_id", id,
			"error", err,
		)
		return
	}

	s.metrics.IncrementJobTransition(string(rec.State))
	if runErr != nil {
		s.logger.WarnContext(ctx, "verification job failed",
			"job_id", id,
			"error", runErr,
		)
		return
	}
	s.logger.InfoContext(ctx, "verification job completed",
		"job_id", id,
		"status", outcome.Verification.Status,
	)
}

func (s *Service) execute(ctx context.Context, req models.JobRequest) (out *models.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("verification panicked: %v", r)
		}
	}()

	if req.Kind == models.JobKindPosting {
		return s.verifier.VerifyPosting(ctx, *req.Posting)
	}
	res, err := s.verifier.Verify(ctx, *req.Subject)
	if err != nil {
		return nil, err
	}
	return &models.Outcome{Verification: res}, nil
}

func (s *Service) get(ctx context.Context, id string) (*models.JobRecord, error) {
	rec, err := s.store.Get(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "job not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load job")
	}
	return rec, nil
}

// sweep deletes records past retention. A failed sweep is retried on the
// next read.
func (s *Service) sweep(ctx context.Context) {
	removed, err := s.store.DeleteSubmittedBefore(ctx, s.now().Add(-s.retention))
	if err != nil {
		s.logger.WarnContext(ctx, "job retention sweep failed", "error", err)
		return
	}
	if removed > 0 {
		s.logger.DebugContext(ctx, "expired verification jobs removed", "count", removed)
	}
}

// prepare infers the kind, normalizes and validates the request. A posting
// gets its id here so every attempt of the job reports the same one.
func prepare(req models.JobRequest) (models.JobRequest, error) {
	if req.Kind == "" {
		req.Kind = models.JobKindCompany
		if req.Posting != nil {
			req.Kind = models.JobKindPosting
		}
	}

	switch req.Kind {
	case models.JobKindCompany:
		if req.Subject == nil {
			return req, dErrors.New(dErrors.CodeValidation, "subject is required")
		}
		subject := *req.Subject
		subject.Normalize()
		if err := subject.Validate(); err != nil {
			return req, err
		}
		req.Subject, req.Posting = &subject, nil
	case models.JobKindPosting:
		if req.Posting == nil {
			return req, dErrors.New(dErrors.CodeValidation, "posting is required")
		}
		posting := *req.Posting
		posting.Normalize()
		if err := posting.Validate(); err != nil {
			return req, err
		}
		if posting.ID == "" {
			posting.ID = uuid.NewString()
		}
		req.Posting, req.Subject = &posting, nil
	default:
		return req, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown job kind %q", req.Kind))
	}
	return req, nil
}

// publicMessage is safe to show a poller: the domain message for coded
// errors, a generic message for everything else.
func publicMessage(err error) string {
	if code := dErrors.CodeOf(err); code != dErrors.CodeInternal {
		if msg := dErrors.MessageOf(err); msg != "" {
			return msg
		}
	}
	return internalFailureMessage
}
