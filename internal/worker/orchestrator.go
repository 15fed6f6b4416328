package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ablair264/SplitLease-Backend/internal/config"
	"github.com/ablair264/SplitLease-Backend/internal/executor"
	"github.com/ablair264/SplitLease-Backend/internal/matrix"
	"github.com/ablair264/SplitLease-Backend/internal/models"
	"github.com/ablair264/SplitLease-Backend/internal/provider"
	"github.com/ablair264/SplitLease-Backend/internal/session"
	"github.com/ablair264/SplitLease-Backend/internal/store"
	"github.com/ablair264/SplitLease-Backend/internal/telemetry"
)

// JobStore is the slice of the store the orchestrator needs.
type JobStore interface {
	GetPendingJobs(ctx context.Context, limit int) ([]models.Job, error)
	TransitionToProcessing(ctx context.Context, id string) error
	BulkInsertResults(ctx context.Context, jobID string, results []models.QuoteResult) error
	Finalize(ctx context.Context, id string, p store.FinalizeParams) error
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// ResultExporter delivers a completed job's quotes to an external sink.
type ResultExporter interface {
	Export(ctx context.Context, job models.Job, results []models.QuoteResult) (string, error)
}

// Orchestrator drives the job pipeline: claim pending jobs, walk each job's
// quote matrix against the vendor, persist results, finalize.
type Orchestrator struct {
	cfg      config.Config
	store    JobStore
	client   provider.Client
	sessions *session.Manager
	exec     *executor.Executor
	exporter ResultExporter
	logger   *slog.Logger

	mu      sync.Mutex
	running map[string]struct{}
	wg      sync.WaitGroup
}

func NewOrchestrator(cfg config.Config, st JobStore, client provider.Client, sessions *session.Manager, exec *executor.Executor, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		store:    st,
		client:   client,
		sessions: sessions,
		exec:     exec,
		logger:   logger,
		running:  make(map[string]struct{}),
	}
}

// RegisterExporter turns on best-effort export of collected quotes after a
// job completes. Export problems are logged, never reflected on the job.
func (o *Orchestrator) RegisterExporter(exp ResultExporter) {
	o.exporter = exp
}

// Run polls for pending jobs until the context is cancelled, then waits for
// every claimed job to settle. Claimed jobs run on a detached context so a
// shutdown never abandons a job mid-matrix.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	o.logger.Info("orchestrator started",
		"poll_interval", o.cfg.PollInterval.String(),
		"max_concurrent_jobs", o.cfg.MaxConcurrentJobs,
		"vendor", o.client.Name())

	for {
		o.pollOnce(ctx)

		select {
		case <-ctx.Done():
			o.logger.Info("orchestrator stopping", "running_jobs", o.runningCount())
			o.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// pollOnce claims up to the free slot count of pending jobs and starts a
// goroutine per claim.
func (o *Orchestrator) pollOnce(ctx context.Context) {
	free := o.cfg.MaxConcurrentJobs - o.runningCount()
	if free <= 0 {
		return
	}

	jobs, err := o.store.GetPendingJobs(ctx, free)
	if err != nil {
		o.logger.Error("fetch pending jobs", "error", err)
		return
	}

	for _, job := range jobs {
		if !o.markRunning(job.ID) {
			continue
		}
		if err := o.store.TransitionToProcessing(ctx, job.ID); err != nil {
			o.unmarkRunning(job.ID)
			if errors.Is(err, store.ErrNotPending) {
				// Another worker won the claim.
				continue
			}
			o.logger.Error("claim job", "job_id", job.ID, "error", err)
			continue
		}

		telemetry.JobsClaimed.Inc()
		telemetry.ProcessingGauge.Inc()
		o.wg.Add(1)
		jobCtx := context.WithoutCancel(ctx)
		go func(j models.Job) {
			defer o.wg.Done()
			defer telemetry.ProcessingGauge.Dec()
			defer o.unmarkRunning(j.ID)
			o.processJob(jobCtx, j)
		}(job)
	}

	if counts, err := o.store.CountByStatus(ctx); err == nil {
		telemetry.PendingGauge.Set(float64(counts[models.StatusPending]))
	}
}

// jobOutcome accumulates one job's collection pass.
type jobOutcome struct {
	results       []models.QuoteResult
	success       int
	failure       int
	samples       []models.FailureSample
	totalFailures int
	aborted       bool
	detail        *models.JobError
}

func (out *jobOutcome) addSample(s models.FailureSample) {
	if len(out.samples) < models.MaxFailureSamples {
		out.samples = append(out.samples, s)
	}
}

func (o *Orchestrator) processJob(ctx context.Context, job models.Job) {
	start := time.Now()
	logger := o.logger.With("job_id", job.ID)
	logger.Info("job claimed",
		"vehicles", len(job.Vehicles),
		"requests", len(job.Vehicles)*job.Configuration.RequestsPerVehicle())

	var out jobOutcome
	func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("job panicked", "panic", fmt.Sprint(r))
				out.aborted = true
				out.detail = &models.JobError{
					Stage:         models.StageInternal,
					Message:       fmt.Sprintf("internal error: %v", r),
					Samples:       out.samples,
					TotalFailures: out.totalFailures,
				}
			}
		}()
		o.collect(ctx, job, &out)
	}()

	telemetry.QuotesCollected.Add(float64(out.success))
	telemetry.QuotesFailed.Add(float64(out.failure))
	duration := time.Since(start).Seconds()

	if out.aborted {
		// Collected results are dropped on abort; a reset replays the
		// whole matrix.
		o.finalize(ctx, logger, job.ID, store.FinalizeParams{
			Status:          models.StatusFailed,
			SuccessCount:    out.success,
			FailureCount:    out.failure,
			DurationSeconds: duration,
			ErrorDetail:     out.detail,
		})
		telemetry.JobsFailed.Inc()
		logger.Error("job failed",
			"stage", out.detail.Stage,
			"message", out.detail.Message,
			"success", out.success,
			"failure", out.failure)
		return
	}

	if err := o.store.BulkInsertResults(ctx, job.ID, out.results); err != nil {
		logger.Error("persist results", "error", err, "results", len(out.results))
		o.finalize(ctx, logger, job.ID, store.FinalizeParams{
			Status:          models.StatusFailed,
			SuccessCount:    out.success,
			FailureCount:    out.failure,
			DurationSeconds: time.Since(start).Seconds(),
			ErrorDetail: &models.JobError{
				Stage:         models.StagePersistence,
				Message:       err.Error(),
				Samples:       out.samples,
				TotalFailures: out.totalFailures,
			},
		})
		telemetry.JobsFailed.Inc()
		return
	}

	var detail *models.JobError
	if out.failure > 0 {
		detail = &models.JobError{
			Message:       fmt.Sprintf("%d of %d requests failed", out.failure, out.success+out.failure),
			Samples:       out.samples,
			TotalFailures: out.totalFailures,
		}
	}
	o.finalize(ctx, logger, job.ID, store.FinalizeParams{
		Status:          models.StatusCompleted,
		SuccessCount:    out.success,
		FailureCount:    out.failure,
		DurationSeconds: time.Since(start).Seconds(),
		ErrorDetail:     detail,
	})
	telemetry.JobsCompleted.Inc()
	logger.Info("job completed",
		"success", out.success,
		"failure", out.failure,
		"duration_seconds", fmt.Sprintf("%.2f", duration))

	if o.exporter != nil && len(out.results) > 0 {
		if location, err := o.exporter.Export(ctx, job, out.results); err != nil {
			logger.Error("export results", "error", err)
		} else {
			logger.Info("results exported", "location", location)
		}
	}
}

// collect walks the job's vehicles in order and, per vehicle, the full
// term x mileage matrix. Vehicle-level failures burn that vehicle's request
// budget and move on; auth failures abort the whole job.
func (o *Orchestrator) collect(ctx context.Context, job models.Job, out *jobOutcome) {
	perVehicle := job.Configuration.RequestsPerVehicle()
	out.results = make([]models.QuoteResult, 0, perVehicle*len(job.Vehicles))

	for _, vehicle := range job.Vehicles {
		sess, err := o.sessions.Ensure(ctx)
		if err != nil {
			o.abortAuth(out, err)
			return
		}

		handle, err := o.client.ResolveVehicle(ctx, vehicle)
		if err != nil {
			if provider.IsAuth(err) {
				o.abortAuth(out, err)
				return
			}
			out.failure += perVehicle
			out.totalFailures += perVehicle
			out.addSample(models.FailureSample{
				Vehicle: vehicle.Description(),
				Stage:   models.StageResolution,
				Reason:  err.Error(),
			})
			o.logger.Warn("vehicle resolution failed",
				"job_id", job.ID,
				"vehicle", vehicle.Description(),
				"error", err)
			continue
		}

		for _, req := range matrix.ExpandVehicle(vehicle, job.Configuration) {
			res, err := o.exec.Execute(ctx, sess, handle, req)
			if err != nil {
				if provider.IsAuth(err) {
					o.abortAuth(out, err)
					return
				}
				out.failure++
				out.totalFailures++
				out.addSample(models.FailureSample{
					Vehicle:       vehicle.Description(),
					TermMonths:    req.TermMonths,
					AnnualMileage: req.AnnualMileage,
					Stage:         models.StageQuote,
					Reason:        err.Error(),
				})
				continue
			}
			res.ID = uuid.New().String()
			res.JobID = job.ID
			out.results = append(out.results, res)
			out.success++
		}
	}
}

// abortAuth marks the outcome failed at the authentication stage and drops
// the cached session so the next job logs in fresh.
func (o *Orchestrator) abortAuth(out *jobOutcome, err error) {
	o.sessions.Invalidate()
	out.aborted = true
	out.detail = &models.JobError{
		Stage:         models.StageAuthentication,
		Message:       err.Error(),
		Samples:       out.samples,
		TotalFailures: out.totalFailures,
	}
}

func (o *Orchestrator) finalize(ctx context.Context, logger *slog.Logger, id string, p store.FinalizeParams) {
	if err := o.store.Finalize(ctx, id, p); err != nil {
		logger.Error("finalize job", "status", p.Status, "error", err)
	}
}

func (o *Orchestrator) markRunning(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.running[id]; ok {
		return false
	}
	o.running[id] = struct{}{}
	return true
}

func (o *Orchestrator) unmarkRunning(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.running, id)
}

func (o *Orchestrator) runningCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.running)
}
