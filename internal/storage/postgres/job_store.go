package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/observability"
	"solana-trade-engine/internal/storage"
)

// JobStore implements storage.JobStore and storage.JobClaimer on the
// confirmation_jobs table. Any number of processes may open it.
type JobStore struct {
	pool *Pool
}

// NewJobStore creates a new JobStore.
func NewJobStore(pool *Pool) *JobStore {
	return &JobStore{pool: pool}
}

var (
	_ storage.JobStore   = (*JobStore)(nil)
	_ storage.JobClaimer = (*JobStore)(nil)
)

const jobColumns = `id, tx_id, user_id, referral_credit, not_before, attempts, state, delay_ms, backoff_ms, max_attempts`

// Save upserts job. A save in any state but running drops the claim lease.
func (s *JobStore) Save(ctx context.Context, job *domain.ConfirmationJob) (err error) {
	start := time.Now()
	defer func() { observability.RecordDBQuery("postgres", "save_job", time.Since(start).Seconds(), err) }()

	if job == nil || job.ID == "" {
		return storage.ErrInvalidInput
	}
	credit, err := toBigint(job.ReferralCredit)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO confirmation_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			not_before   = EXCLUDED.not_before,
			attempts     = EXCLUDED.attempts,
			state        = EXCLUDED.state,
			delay_ms     = EXCLUDED.delay_ms,
			backoff_ms   = EXCLUDED.backoff_ms,
			max_attempts = EXCLUDED.max_attempts,
			locked_until = CASE WHEN EXCLUDED.state = 'running'
				THEN confirmation_jobs.locked_until ELSE NULL END
	`

	_, err = s.pool.Exec(ctx, query,
		job.ID, job.TxID, job.UserID, credit, job.NotBefore.UTC(), job.Attempts, string(job.State),
		job.Policy.Delay.Milliseconds(), job.Policy.Backoff.Milliseconds(), job.Policy.MaxAttempts,
	)
	if err != nil {
		return fmt.Errorf("save confirmation job: %w", err)
	}
	return nil
}

// Delete removes a job. A missing job is not an error.
func (s *JobStore) Delete(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { observability.RecordDBQuery("postgres", "delete_job", time.Since(start).Seconds(), err) }()

	if _, err = s.pool.Exec(ctx, `DELETE FROM confirmation_jobs WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete confirmation job: %w", err)
	}
	return nil
}

// Get retrieves a job by ID. Returns ErrNotFound if not exists.
func (s *JobStore) Get(ctx context.Context, id string) (*domain.ConfirmationJob, error) {
	query := `SELECT ` + jobColumns + ` FROM confirmation_jobs WHERE id = $1`

	job, err := scanJob(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get confirmation job: %w", err)
	}
	return job, nil
}

// List returns all jobs ordered by not_before ASC.
func (s *JobStore) List(ctx context.Context) ([]*domain.ConfirmationJob, error) {
	query := `SELECT ` + jobColumns + ` FROM confirmation_jobs ORDER BY not_before ASC, id ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list confirmation jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.ConfirmationJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan confirmation job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list confirmation jobs: %w", err)
	}
	return jobs, nil
}

// Claim leases a stored job for lease unless another lease is live. The
// database clock decides expiry.
func (s *JobStore) Claim(ctx context.Context, id string, lease time.Duration) (claimed bool, err error) {
	start := time.Now()
	defer func() { observability.RecordDBQuery("postgres", "claim_job", time.Since(start).Seconds(), err) }()

	query := `
		UPDATE confirmation_jobs
		SET locked_until = now() + $2 * interval '1 millisecond'
		WHERE id = $1 AND (locked_until IS NULL OR locked_until < now())
	`

	tag, err := s.pool.Exec(ctx, query, id, lease.Milliseconds())
	if err != nil {
		return false, fmt.Errorf("claim confirmation job: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanJob(row pgx.Row) (*domain.ConfirmationJob, error) {
	var (
		job       domain.ConfirmationJob
		credit    int64
		state     string
		delayMs   int64
		backoffMs int64
	)
	err := row.Scan(
		&job.ID, &job.TxID, &job.UserID, &credit, &job.NotBefore, &job.Attempts, &state,
		&delayMs, &backoffMs, &job.Policy.MaxAttempts,
	)
	if err != nil {
		return nil, err
	}
	job.ReferralCredit = uint64(credit)
	job.State = domain.JobState(state)
	job.Policy.Delay = time.Duration(delayMs) * time.Millisecond
	job.Policy.Backoff = time.Duration(backoffMs) * time.Millisecond
	return &job, nil
}
