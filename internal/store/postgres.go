package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ablair264/SplitLease-Backend/internal/models"
)

var (
	// ErrNotFound is returned when a job id matches no row.
	ErrNotFound = errors.New("job not found")

	// ErrNotPending is returned by TransitionToProcessing when another
	// worker already claimed the job or it is past pending.
	ErrNotPending = errors.New("job is not pending")
)

// Store wraps pgxpool for Postgres persistence.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// CreateJobParams collects inputs required to insert a job.
type CreateJobParams struct {
	Vehicles      []models.Vehicle
	Configuration models.Configuration
}

// CreateJob inserts a pending job and returns it.
func (s *Store) CreateJob(ctx context.Context, p CreateJobParams) (models.Job, error) {
	vehiclesJSON, err := json.Marshal(p.Vehicles)
	if err != nil {
		return models.Job{}, fmt.Errorf("marshal vehicles: %w", err)
	}
	configJSON, err := json.Marshal(p.Configuration)
	if err != nil {
		return models.Job{}, fmt.Errorf("marshal configuration: %w", err)
	}

	id := uuid.New().String()
	now := time.Now().UTC()

	_, err = s.pool.Exec(ctx, `
		INSERT INTO quote_jobs (id, vehicles, configuration, status, success_count, failure_count, created_at)
		VALUES ($1, $2, $3, $4, 0, 0, $5)
	`, id, vehiclesJSON, configJSON, models.StatusPending, now)
	if err != nil {
		return models.Job{}, fmt.Errorf("insert job: %w", err)
	}

	return models.Job{
		ID:            id,
		Vehicles:      p.Vehicles,
		Configuration: p.Configuration,
		Status:        models.StatusPending,
		CreatedAt:     now,
	}, nil
}

const jobColumns = `id, vehicles, configuration, status, success_count, failure_count, duration_seconds, error_detail, created_at, started_at, completed_at`

// GetJob fetches a job by id.
func (s *Store) GetJob(ctx context.Context, id string) (models.Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM quote_jobs WHERE id = $1
	`, id)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return models.Job{}, fmt.Errorf("scan job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs newest first, optionally filtered by status.
func (s *Store) ListJobs(ctx context.Context, status string, limit int) ([]models.Job, error) {
	if limit <= 0 {
		limit = 50
	}

	var (
		rows pgx.Rows
		err  error
	)
	if status != "" {
		rows, err = s.pool.Query(ctx, `
			SELECT `+jobColumns+`
			FROM quote_jobs WHERE status = $1
			ORDER BY created_at DESC LIMIT $2
		`, status, limit)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT `+jobColumns+`
			FROM quote_jobs
			ORDER BY created_at DESC LIMIT $1
		`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// GetPendingJobs returns up to limit pending jobs, oldest first.
func (s *Store) GetPendingJobs(ctx context.Context, limit int) ([]models.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM quote_jobs WHERE status = $1
		ORDER BY created_at ASC LIMIT $2
	`, models.StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// TransitionToProcessing claims a pending job. The status predicate makes the
// claim atomic: of several workers racing the same job exactly one update
// matches, everyone else gets ErrNotPending.
func (s *Store) TransitionToProcessing(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE quote_jobs
		SET status = $2, started_at = NOW()
		WHERE id = $1 AND status = $3
	`, id, models.StatusProcessing, models.StatusPending)
	if err != nil {
		return fmt.Errorf("claim job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotPending
	}
	return nil
}

// BulkInsertResults writes all collected quotes for a job in one batch round trip.
func (s *Store) BulkInsertResults(ctx context.Context, jobID string, results []models.QuoteResult) error {
	if len(results) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range results {
		id := r.ID
		if id == "" {
			id = uuid.New().String()
		}
		batch.Queue(`
			INSERT INTO quote_results (id, job_id, manufacturer, model, variant, term_months, annual_mileage,
				monthly_rental_net, monthly_rental_gross, initial_payment, total_cost, vendor_metadata, fetched_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`, id, jobID, r.Manufacturer, r.Model, r.Variant, r.TermMonths, r.AnnualMileage,
			r.MonthlyRentalNet, r.MonthlyRentalGross, r.InitialPayment, r.TotalCost, nullableJSON(r.VendorMetadata), r.FetchedAt)
	}

	br := s.pool.SendBatch(ctx, batch)
	for range results {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("insert result: %w", err)
		}
	}
	return br.Close()
}

// FinalizeParams carries the terminal state written when a job finishes.
type FinalizeParams struct {
	Status          string
	SuccessCount    int
	FailureCount    int
	DurationSeconds float64
	ErrorDetail     *models.JobError
}

// Finalize records the job outcome and completion time.
func (s *Store) Finalize(ctx context.Context, id string, p FinalizeParams) error {
	var detailJSON []byte
	if p.ErrorDetail != nil {
		var err error
		detailJSON, err = json.Marshal(p.ErrorDetail)
		if err != nil {
			return fmt.Errorf("marshal error detail: %w", err)
		}
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE quote_jobs
		SET status = $2, success_count = $3, failure_count = $4, duration_seconds = $5, error_detail = $6, completed_at = NOW()
		WHERE id = $1
	`, id, p.Status, p.SuccessCount, p.FailureCount, p.DurationSeconds, detailJSON)
	if err != nil {
		return fmt.Errorf("finalize job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// ListResults returns every stored quote for a job in a stable order.
func (s *Store) ListResults(ctx context.Context, jobID string) ([]models.QuoteResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, job_id, manufacturer, model, variant, term_months, annual_mileage,
			monthly_rental_net, monthly_rental_gross, initial_payment, total_cost, vendor_metadata, fetched_at
		FROM quote_results WHERE job_id = $1
		ORDER BY manufacturer, model, variant, term_months, annual_mileage
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var results []models.QuoteResult
	for rows.Next() {
		var r models.QuoteResult
		var meta []byte
		if err := rows.Scan(&r.ID, &r.JobID, &r.Manufacturer, &r.Model, &r.Variant, &r.TermMonths, &r.AnnualMileage,
			&r.MonthlyRentalNet, &r.MonthlyRentalGross, &r.InitialPayment, &r.TotalCost, &meta, &r.FetchedAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.VendorMetadata = json.RawMessage(meta)
		results = append(results, r)
	}
	return results, rows.Err()
}

// ResetJob puts a non-pending job back to pending and deletes its results so
// a worker can pick it up again. The result delete and the status reset
// share a transaction.
func (s *Store) ResetJob(ctx context.Context, id string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // safe no-op on commit

	if _, err := tx.Exec(ctx, `DELETE FROM quote_results WHERE job_id = $1`, id); err != nil {
		return fmt.Errorf("delete results: %w", err)
	}
	tag, err := tx.Exec(ctx, `
		UPDATE quote_jobs
		SET status = $2, success_count = 0, failure_count = 0, duration_seconds = NULL,
			error_detail = NULL, started_at = NULL, completed_at = NULL
		WHERE id = $1 AND status <> $2
	`, id, models.StatusPending)
	if err != nil {
		return fmt.Errorf("reset job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.GetJob(ctx, id); getErr != nil {
			return getErr
		}
		return ErrNotPending
	}

	return tx.Commit(ctx)
}

// CountByStatus reports job counts per status.
func (s *Store) CountByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT status, COUNT(*) FROM quote_jobs GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func collectJobs(rows pgx.Rows) ([]models.Job, error) {
	var jobs []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanJob(row pgx.Row) (models.Job, error) {
	var job models.Job
	var vehiclesJSON, configJSON, detailJSON []byte
	var duration pgtype.Float8
	var startedAt, completedAt pgtype.Timestamptz

	if err := row.Scan(&job.ID, &vehiclesJSON, &configJSON, &job.Status, &job.SuccessCount, &job.FailureCount,
		&duration, &detailJSON, &job.CreatedAt, &startedAt, &completedAt); err != nil {
		return models.Job{}, err
	}

	if err := json.Unmarshal(vehiclesJSON, &job.Vehicles); err != nil {
		return models.Job{}, fmt.Errorf("unmarshal vehicles: %w", err)
	}
	if err := json.Unmarshal(configJSON, &job.Configuration); err != nil {
		return models.Job{}, fmt.Errorf("unmarshal configuration: %w", err)
	}
	if len(detailJSON) > 0 {
		job.ErrorDetail = &models.JobError{}
		if err := json.Unmarshal(detailJSON, job.ErrorDetail); err != nil {
			return models.Job{}, fmt.Errorf("unmarshal error detail: %w", err)
		}
	}
	job.DurationSeconds = float8Ptr(duration)
	job.StartedAt = timePtr(startedAt)
	job.CompletedAt = timePtr(completedAt)
	return job, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func float8Ptr(f pgtype.Float8) *float64 {
	if f.Valid {
		return &f.Float64
	}
	return nil
}

func timePtr(t pgtype.Timestamptz) *time.Time {
	if t.Valid {
		v := t.Time.UTC()
		return &v
	}
	return nil
}
