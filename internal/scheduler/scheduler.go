// Package scheduler runs delayed confirmation jobs. Each job checks that a
// trade's on-chain reference landed and then settles the ledger row.
//
// Job states: scheduled -> running -> confirmed, or
// running -> retry-scheduled -> scheduled on a transient failure, ending in
// abandoned once attempts are exhausted. Jobs are persisted through a
// storage.JobStore and recovered by Run, so delivery is at-least-once.
// Every attempt reloads its job from the store first; a store that also
// implements storage.JobClaimer can be shared by schedulers in several
// processes, with RescanInterval picking up jobs enqueued elsewhere.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/observability"
	"solana-trade-engine/internal/storage"
)

// Defaults for confirmation jobs.
const (
	DefaultDelay       = 2 * time.Second
	DefaultBackoff     = 2 * time.Second
	DefaultMaxAttempts = 10
	DefaultWorkers     = 4
	DefaultClaimLease  = time.Minute
)

// rescheduleTolerance is how early a timer may fire relative to the
// stored not-before before the attempt is deferred.
const rescheduleTolerance = 100 * time.Millisecond

// DefaultPolicy is the retry policy applied to jobs without one.
var DefaultPolicy = domain.RetryPolicy{
	Delay:       DefaultDelay,
	Backoff:     DefaultBackoff,
	MaxAttempts: DefaultMaxAttempts,
}

// ErrStopped is returned by Enqueue after Run has returned.
var ErrStopped = errors.New("scheduler stopped")

// Ledger is the settlement surface a job writes to.
type Ledger interface {
	MarkConfirmed(ctx context.Context, txID string) error
	RecordTx(ctx context.Context, txID string, stage domain.TradeStage, detail string)
}

// CreditSink receives the referral credit of a confirmed trade.
type CreditSink interface {
	Credit(ctx context.Context, userID int64, lamports uint64) error
}

// Options configures a Scheduler.
type Options struct {
	Store    storage.JobStore
	Verifier Verifier
	Ledger   Ledger
	Credits  CreditSink // optional
	Workers  int
	Policy   domain.RetryPolicy
	Logger   zerolog.Logger

	// RescanInterval re-lists the store while running; zero lists it only
	// at start.
	RescanInterval time.Duration
	// ClaimLease bounds one attempt on a shared store.
	ClaimLease time.Duration
}

// Scheduler owns the timers and the worker pool.
type Scheduler struct {
	store    storage.JobStore
	verifier Verifier
	ledger   Ledger
	credits  CreditSink
	claimer  storage.JobClaimer
	workers  int
	policy   domain.RetryPolicy
	log      zerolog.Logger
	now      func() time.Time
	rescan   time.Duration
	lease    time.Duration

	due     chan *domain.ConfirmationJob
	stopped chan struct{}

	mu      sync.Mutex
	timers  map[string]*time.Timer // every non-terminal job, by id
	running bool
	closed  bool
}

// New creates a Scheduler. Jobs may be enqueued before Run; they are
// dispatched once workers start.
func New(opts Options) (*Scheduler, error) {
	switch {
	case opts.Store == nil:
		return nil, errors.New("scheduler: job store is required")
	case opts.Verifier == nil:
		return nil, errors.New("scheduler: verifier is required")
	case opts.Ledger == nil:
		return nil, errors.New("scheduler: ledger is required")
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	policy := opts.Policy
	if policy.Delay <= 0 {
		policy.Delay = DefaultPolicy.Delay
	}
	if policy.Backoff <= 0 {
		policy.Backoff = policy.Delay
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultPolicy.MaxAttempts
	}

	lease := opts.ClaimLease
	if lease <= 0 {
		lease = DefaultClaimLease
	}
	claimer, _ := opts.Store.(storage.JobClaimer)

	return &Scheduler{
		store:    opts.Store,
		claimer:  claimer,
		rescan:   opts.RescanInterval,
		lease:    lease,
		verifier: opts.Verifier,
		ledger:   opts.Ledger,
		credits:  opts.Credits,
		workers:  workers,
		policy:   policy,
		log:      opts.Logger.With().Str("component", "scheduler").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
		due:      make(chan *domain.ConfirmationJob),
		stopped:  make(chan struct{}),
		timers:   make(map[string]*time.Timer),
	}, nil
}

// Enqueue persists job and arms its not-before timer. It returns as soon as
// the job is stored. ID, State, Attempts and a zero Policy or NotBefore are
// filled in here.
func (s *Scheduler) Enqueue(ctx context.Context, job domain.ConfirmationJob) error {
	if job.TxID == "" {
		return fmt.Errorf("confirmation job without tx id: %w", domain.ErrInvalidInput)
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrStopped
	}

	job.ID = uuid.NewString()
	job.State = domain.JobScheduled
	job.Attempts = 0
	if job.Policy.MaxAttempts == 0 {
		job.Policy = s.policy
	}
	if job.NotBefore.IsZero() {
		job.NotBefore = s.now().Add(job.Policy.Delay)
	}

	if err := s.store.Save(ctx, &job); err != nil {
		return fmt.Errorf("persist confirmation job: %w", err)
	}

	s.arm(&job)

	s.log.Debug().
		Str("job_id", job.ID).
		Str("tx_id", job.TxID).
		Time("not_before", job.NotBefore).
		Msg("confirmation scheduled")
	return nil
}

// Run recovers persisted jobs, starts the worker pool and blocks until ctx
// is cancelled. Pending timers are stopped on return; their jobs stay
// persisted for the next Run.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running || s.closed {
		s.mu.Unlock()
		return errors.New("scheduler: already started")
	}
	s.running = true
	s.mu.Unlock()

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.work(ctx)
		}()
	}

	if err := s.recover(ctx); err != nil {
		s.log.Error().Err(err).Msg("recover confirmation jobs")
	}

	if s.rescan > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.rescanLoop(ctx)
		}()
	}

	<-ctx.Done()

	s.mu.Lock()
	s.closed = true
	close(s.stopped)
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	wg.Wait()
	observability.SetQueueDepth(0)
	return nil
}

// Drain blocks until every enqueued job reached a terminal state or ctx is
// done.
func (s *Scheduler) Drain(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if s.Pending() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Pending returns the number of non-terminal jobs.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *Scheduler) recover(ctx context.Context) error {
	jobs, err := s.store.List(ctx)
	if err != nil {
		return err
	}

	recovered := 0
	for _, job := range jobs {
		if job.State.Terminal() {
			if err := s.store.Delete(ctx, job.ID); err != nil {
				s.log.Warn().Err(err).Str("job_id", job.ID).Msg("delete terminal job")
			}
			continue
		}
		if s.track(job) {
			recovered++
		}
	}

	if recovered > 0 {
		s.log.Info().Int("jobs", recovered).Msg("recovered confirmation jobs")
	}
	return nil
}

func (s *Scheduler) rescanLoop(ctx context.Context) {
	ticker := time.NewTicker(s.rescan)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.recover(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn().Err(err).Msg("rescan confirmation jobs")
			}
		}
	}
}

// arm starts job's timer, replacing any timer the job already has. The
// job is tracked until finish.
func (s *Scheduler) arm(job *domain.ConfirmationJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armLocked(job)
}

// track arms job unless it is already tracked. The check and the arm
// happen under one lock.
func (s *Scheduler) track(job *domain.ConfirmationJob) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.timers[job.ID]; ok || s.closed {
		return false
	}
	s.armLocked(job)
	return true
}

func (s *Scheduler) armLocked(job *domain.ConfirmationJob) {
	if s.closed {
		delete(s.timers, job.ID)
		return
	}
	if t, ok := s.timers[job.ID]; ok {
		t.Stop()
	}

	delay := job.NotBefore.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	s.timers[job.ID] = time.AfterFunc(delay, func() {
		s.dispatch(job)
	})
	observability.SetQueueDepth(len(s.timers))
}

// untrack forgets a job without touching the store.
func (s *Scheduler) untrack(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.timers, id)
	observability.SetQueueDepth(len(s.timers))
}

func (s *Scheduler) dispatch(job *domain.ConfirmationJob) {
	job.State = domain.JobScheduled
	select {
	case s.due <- job:
	case <-s.stopped:
	}
}

func (s *Scheduler) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.due:
			s.process(ctx, job)
		}
	}
}

func (s *Scheduler) process(ctx context.Context, job *domain.ConfirmationJob) {
	persist := context.WithoutCancel(ctx)

	job, ok := s.claim(persist, job)
	if !ok {
		return
	}

	job.State = domain.JobRunning
	job.Attempts++
	s.save(persist, job)

	log := s.log.With().
		Str("job_id", job.ID).
		Str("tx_id", job.TxID).
		Int("attempt", job.Attempts).
		Logger()

	verdict, err := s.verifier.Verify(ctx, job.TxID)
	if err != nil && ctx.Err() != nil {
		// Shutdown interrupted the attempt; it does not count.
		job.Attempts--
		job.State = domain.JobScheduled
		s.save(persist, job)
		return
	}

	switch {
	case err != nil:
		log.Debug().Err(err).Msg("confirmation lookup failed")
	case verdict == VerdictFailed:
		s.abandon(persist, job, "transaction failed on-chain")
		return
	case verdict == VerdictConfirmed:
		if err = s.ledger.MarkConfirmed(ctx, job.TxID); err == nil {
			s.confirm(persist, job)
			return
		}
		log.Warn().Err(err).Msg("mark trade confirmed")
	}

	if job.Exhausted() {
		s.abandon(persist, job, fmt.Sprintf("not confirmed after %d attempts", job.Attempts))
		return
	}

	job.State = domain.JobRetryScheduled
	job.NotBefore = s.now().Add(job.Policy.Backoff)
	s.save(persist, job)
	observability.RecordConfirmation(string(domain.JobRetryScheduled), job.Attempts)
	s.arm(job)
}

// claim reloads job from the store and, on a shared store, leases it. It
// reports false when the attempt must not run here now: the job finished,
// was rescheduled, or is held by another scheduler.
func (s *Scheduler) claim(ctx context.Context, job *domain.ConfirmationJob) (*domain.ConfirmationJob, bool) {
	current, err := s.store.Get(ctx, job.ID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.untrack(job.ID)
		return nil, false
	case err != nil:
		s.log.Warn().Err(err).Str("job_id", job.ID).Msg("reload confirmation job")
		s.postpone(job)
		return nil, false
	}

	if current.State.Terminal() {
		s.untrack(job.ID)
		return nil, false
	}
	if current.NotBefore.After(s.now().Add(rescheduleTolerance)) {
		s.arm(current)
		return nil, false
	}

	if s.claimer != nil {
		claimed, err := s.claimer.Claim(ctx, job.ID, s.lease)
		if err != nil {
			s.log.Warn().Err(err).Str("job_id", job.ID).Msg("claim confirmation job")
			s.postpone(job)
			return nil, false
		}
		if !claimed {
			// Held elsewhere; a later rescan re-arms it if that holder dies.
			s.untrack(job.ID)
			return nil, false
		}
	}
	return current, true
}

// postpone re-arms job one backoff later without counting an attempt.
func (s *Scheduler) postpone(job *domain.ConfirmationJob) {
	job.NotBefore = s.now().Add(job.Policy.Backoff)
	s.arm(job)
}

func (s *Scheduler) confirm(ctx context.Context, job *domain.ConfirmationJob) {
	job.State = domain.JobConfirmed

	if s.credits != nil && job.ReferralCredit > 0 {
		if err := s.credits.Credit(ctx, job.UserID, job.ReferralCredit); err != nil {
			s.log.Warn().Err(err).
				Str("tx_id", job.TxID).
				Int64("user_id", job.UserID).
				Uint64("lamports", job.ReferralCredit).
				Msg("apply referral credit")
		} else {
			observability.RecordReferralCredit(job.ReferralCredit)
		}
	}

	s.finish(ctx, job)
	s.log.Info().
		Str("tx_id", job.TxID).
		Int("attempts", job.Attempts).
		Msg("trade confirmed")
}

func (s *Scheduler) abandon(ctx context.Context, job *domain.ConfirmationJob, reason string) {
	job.State = domain.JobAbandoned
	s.ledger.RecordTx(ctx, job.TxID, domain.StageAbandoned, reason)
	s.finish(ctx, job)
	s.log.Warn().
		Str("tx_id", job.TxID).
		Int("attempts", job.Attempts).
		Str("reason", reason).
		Msg("confirmation abandoned")
}

func (s *Scheduler) finish(ctx context.Context, job *domain.ConfirmationJob) {
	if err := s.store.Delete(ctx, job.ID); err != nil {
		s.log.Warn().Err(err).Str("job_id", job.ID).Msg("delete finished job")
	}
	observability.RecordConfirmation(string(job.State), job.Attempts)

	s.mu.Lock()
	delete(s.timers, job.ID)
	observability.SetQueueDepth(len(s.timers))
	s.mu.Unlock()
}

func (s *Scheduler) save(ctx context.Context, job *domain.ConfirmationJob) {
	if err := s.store.Save(ctx, job); err != nil {
		s.log.Warn().Err(err).Str("job_id", job.ID).Msg("persist job state")
	}
}
