// Package worker runs queued jobs with bounded retries: a pool of processors
// claims jobs, retries failures with exponential backoff and jitter, and
// dead-letters a job once its attempts are exhausted.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/PortNumber53/fleetrent/backend/internal/models"
)

// Queue is the persistent job queue the worker drains. *store.JobStore
// implements it.
type Queue interface {
	Enqueue(ctx context.Context, job *models.Job) error
	ClaimNextJob(ctx context.Context, workerID string, staleAfter time.Duration) (*models.Job, error)
	MarkCompleted(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, errorMsg string) error
	ScheduleRetry(ctx context.Context, id int64, errorMsg string, retryAfter time.Time) error
	ReleaseJob(ctx context.Context, id int64) error
}

// Handler is a function that processes a job
type Handler func(ctx context.Context, job *models.Job) error

// Handlers maps job types to their handlers
type Handlers map[string]Handler

// Instrumentation provides hooks for monitoring job lifecycle
type Instrumentation struct {
	OnEnqueue    func(job *models.Job)
	OnStart      func(job *models.Job)
	OnComplete   func(job *models.Job, duration time.Duration)
	OnFail       func(job *models.Job, err error, duration time.Duration)
	OnRetry      func(job *models.Job, retryAfter time.Duration)
	OnDeadLetter func(job *models.Job, err error) // after MarkFailed
	OnHeartbeat  func(workerID string, stats Stats)
}

// Stats holds worker statistics
type Stats struct {
	JobsProcessed    int64     `json:"jobs_processed"`
	JobsSucceeded    int64     `json:"jobs_succeeded"`
	JobsFailed       int64     `json:"jobs_failed"`
	JobsRetried      int64     `json:"jobs_retried"`
	JobsDeadLettered int64     `json:"jobs_dead_lettered"`
	ActiveWorkers    int       `json:"active_workers"`
	LastProcessedAt  time.Time `json:"last_processed_at"`
}

// Config holds worker configuration
type Config struct {
	// MaxConcurrent is the maximum number of concurrent job processors
	MaxConcurrent int
	// PollInterval is the time between polling for new jobs
	PollInterval time.Duration
	// RetryBaseDelay is the base delay for exponential backoff
	RetryBaseDelay time.Duration
	// RetryMaxDelay is the maximum delay between retries
	RetryMaxDelay time.Duration
	// RetryBackoffMultiplier is the multiplier for exponential backoff
	RetryBackoffMultiplier float64
	// JobTimeout is the maximum time allowed for a job to run
	JobTimeout time.Duration
	// ShutdownTimeout is the maximum time to wait for jobs to complete during shutdown
	ShutdownTimeout time.Duration
	// HeartbeatInterval is the interval for sending heartbeat metrics
	HeartbeatInterval time.Duration
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:          5,
		PollInterval:           time.Second,
		RetryBaseDelay:         5 * time.Second,
		RetryMaxDelay:          10 * time.Minute,
		RetryBackoffMultiplier: 2.0,
		JobTimeout:             time.Minute,
		ShutdownTimeout:        30 * time.Second,
		HeartbeatInterval:      time.Minute,
	}
}

// Worker is the async job queue processor
type Worker struct {
	config          Config
	queue           Queue
	handlers        Handlers
	instrumentation *Instrumentation

	workerID string
	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopped  bool
	mu       sync.RWMutex

	// activeJobs tracks in-flight job IDs so shutdown can release them.
	activeJobs map[int64]context.CancelFunc

	statsMu          sync.RWMutex
	jobsProcessed    int64
	jobsSucceeded    int64
	jobsFailed       int64
	jobsRetried      int64
	jobsDeadLettered int64
	lastProcessedAt  time.Time

	now    func() time.Time
	jitter func() float64
}

// New creates a new Worker instance
func New(config Config, queue Queue, handlers Handlers) *Worker {
	def := DefaultConfig()
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = def.MaxConcurrent
	}
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.RetryBaseDelay <= 0 {
		config.RetryBaseDelay = def.RetryBaseDelay
	}
	if config.RetryMaxDelay <= 0 {
		config.RetryMaxDelay = def.RetryMaxDelay
	}
	if config.RetryBackoffMultiplier <= 1 {
		config.RetryBackoffMultiplier = def.RetryBackoffMultiplier
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = def.JobTimeout
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = def.ShutdownTimeout
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = def.HeartbeatInterval
	}
	if handlers == nil {
		handlers = Handlers{}
	}

	return &Worker{
		config:          config,
		queue:           queue,
		handlers:        handlers,
		workerID:        generateWorkerID(),
		stopCh:          make(chan struct{}),
		activeJobs:      make(map[int64]context.CancelFunc),
		instrumentation: &Instrumentation{},
		now:             time.Now,
		jitter:          rand.Float64,
	}
}

// RegisterHandler binds a handler to a job type. It must be called before Start.
func (w *Worker) RegisterHandler(jobType string, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = h
}

// SetInstrumentation sets the instrumentation hooks
func (w *Worker) SetInstrumentation(inst *Instrumentation) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.instrumentation = inst
}

// Start begins the worker loop
func (w *Worker) Start(ctx context.Context) {
	log.Info().Str("worker_id", w.workerID).Int("concurrency", w.config.MaxConcurrent).Msg("worker starting")

	if w.instrumentation.OnHeartbeat != nil {
		w.wg.Add(1)
		go w.heartbeat(ctx)
	}

	for i := 0; i < w.config.MaxConcurrent; i++ {
		w.wg.Add(1)
		go w.processor(ctx, i)
	}
}

// Stop gracefully shuts down the worker
func (w *Worker) Stop(ctx context.Context) error {
	log.Info().Str("worker_id", w.workerID).Msg("worker shutting down")

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(ctx, w.config.ShutdownTimeout)
	defer cancel()

	w.releaseActiveJobs(shutdownCtx)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Str("worker_id", w.workerID).Msg("worker stopped")
		return nil
	case <-shutdownCtx.Done():
		return fmt.Errorf("worker: shutdown timeout exceeded")
	}
}

func (w *Worker) processor(ctx context.Context, id int) {
	defer w.wg.Done()

	processorID := fmt.Sprintf("%s-%d", w.workerID, id)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		default:
			if err := w.processNextJob(ctx); err != nil &&
				!errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				log.Error().Err(err).Str("processor", processorID).Msg("job poll failed")
				w.sleep(ctx)
			}
		}
	}
}

// sleep waits one poll interval or until shutdown.
func (w *Worker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-w.stopCh:
	case <-time.After(w.config.PollInterval):
	}
}

// processNextJob claims and runs one job. It waits a poll interval when the
// queue is empty. A job still processing after twice the job timeout was
// stranded by a dead worker and is claimed again.
func (w *Worker) processNextJob(ctx context.Context) error {
	job, err := w.queue.ClaimNextJob(ctx, w.workerID, 2*w.config.JobTimeout)
	if err != nil {
		return err
	}
	if job == nil {
		w.sleep(ctx)
		return ctx.Err()
	}

	w.processJob(ctx, job)
	return nil
}

func (w *Worker) processJob(ctx context.Context, job *models.Job) {
	start := w.now()

	jobCtx, cancel := context.WithTimeout(ctx, w.config.JobTimeout)
	defer cancel()

	w.trackActiveJob(job.ID, cancel)
	defer w.untrackActiveJob(job.ID)

	if w.instrumentation.OnStart != nil {
		w.instrumentation.OnStart(job)
	}

	log.Debug().Int64("job_id", job.ID).Str("type", job.JobType).
		Int("attempt", job.Attempts).Int("max_attempts", job.MaxAttempts).Msg("processing job")

	w.mu.RLock()
	handler, ok := w.handlers[job.JobType]
	w.mu.RUnlock()

	var err error
	if !ok {
		err = fmt.Errorf("no handler registered for job type: %s", job.JobType)
	} else {
		err = handler(jobCtx, job)
	}

	// Bookkeeping must land even when ctx is already cancelled.
	bookCtx := context.WithoutCancel(ctx)

	if err != nil && (w.isStopping() || ctx.Err() != nil) {
		// Interrupted by shutdown: hand the job back without counting the
		// attempt. Stop may release it too, which is a no-op.
		w.releaseJob(bookCtx, job.ID)
		return
	}

	if err != nil {
		w.handleError(bookCtx, job, err, start)
	} else {
		w.handleSuccess(bookCtx, job, start)
	}
}

// RetryDelay is the backoff before the retry following the given attempt,
// with ±20% jitter taken from jitter in [0, 1).
func (w *Worker) RetryDelay(attempt int, jitter float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := float64(w.config.RetryBaseDelay) * math.Pow(w.config.RetryBackoffMultiplier, float64(attempt-1))
	delay := min(base, float64(w.config.RetryMaxDelay))
	return time.Duration(delay * (0.8 + 0.4*jitter))
}

func (w *Worker) handleError(ctx context.Context, job *models.Job, err error, start time.Time) {
	duration := w.now().Sub(start)
	logger := log.With().Int64("job_id", job.ID).Str("type", job.JobType).
		Int("attempt", job.Attempts).Int("max_attempts", job.MaxAttempts).Logger()

	w.statsMu.Lock()
	w.jobsProcessed++
	w.jobsFailed++
	w.lastProcessedAt = w.now()
	w.statsMu.Unlock()

	if w.instrumentation.OnFail != nil {
		w.instrumentation.OnFail(job, err, duration)
	}

	if job.CanRetry() {
		delay := w.RetryDelay(job.Attempts, w.jitter())

		w.statsMu.Lock()
		w.jobsRetried++
		w.statsMu.Unlock()

		if w.instrumentation.OnRetry != nil {
			w.instrumentation.OnRetry(job, delay)
		}

		logger.Warn().Err(err).Dur("retry_in", delay).Msg("job failed; retry scheduled")
		if serr := w.queue.ScheduleRetry(ctx, job.ID, err.Error(), w.now().Add(delay)); serr != nil {
			logger.Error().Err(serr).Msg("failed to schedule retry")
		}
		return
	}

	logger.Error().Err(err).Msg("job exhausted its attempts; dead-lettered")
	if merr := w.queue.MarkFailed(ctx, job.ID, err.Error()); merr != nil {
		logger.Error().Err(merr).Msg("failed to mark job failed")
		return
	}

	w.statsMu.Lock()
	w.jobsDeadLettered++
	w.statsMu.Unlock()

	if w.instrumentation.OnDeadLetter != nil {
		w.instrumentation.OnDeadLetter(job, err)
	}
}

func (w *Worker) handleSuccess(ctx context.Context, job *models.Job, start time.Time) {
	duration := w.now().Sub(start)

	w.statsMu.Lock()
	w.jobsProcessed++
	w.jobsSucceeded++
	w.lastProcessedAt = w.now()
	w.statsMu.Unlock()

	if w.instrumentation.OnComplete != nil {
		w.instrumentation.OnComplete(job, duration)
	}

	log.Debug().Int64("job_id", job.ID).Dur("duration", duration).Msg("job completed")
	if err := w.queue.MarkCompleted(ctx, job.ID); err != nil {
		log.Error().Err(err).Int64("job_id", job.ID).Msg("failed to mark job completed")
	}
}

func (w *Worker) isStopping() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stopped
}

func (w *Worker) trackActiveJob(jobID int64, cancel context.CancelFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.activeJobs[jobID] = cancel
}

func (w *Worker) untrackActiveJob(jobID int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.activeJobs, jobID)
}

// releaseActiveJobs cancels in-flight jobs and returns them to pending
// without spending an attempt.
func (w *Worker) releaseActiveJobs(ctx context.Context) {
	w.mu.Lock()
	jobIDs := make([]int64, 0, len(w.activeJobs))
	for id, cancel := range w.activeJobs {
		jobIDs = append(jobIDs, id)
		cancel()
	}
	w.mu.Unlock()

	for _, id := range jobIDs {
		w.releaseJob(ctx, id)
	}
}

func (w *Worker) releaseJob(ctx context.Context, id int64) {
	if err := w.queue.ReleaseJob(ctx, id); err != nil {
		log.Error().Err(err).Int64("job_id", id).Msg("failed to release job")
		return
	}
	log.Info().Int64("job_id", id).Msg("released job back to pending")
}

func (w *Worker) heartbeat(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.instrumentation.OnHeartbeat(w.workerID, w.GetStats())
		}
	}
}

// GetStats returns current worker statistics
func (w *Worker) GetStats() Stats {
	w.mu.RLock()
	activeWorkers := len(w.activeJobs)
	w.mu.RUnlock()

	w.statsMu.RLock()
	defer w.statsMu.RUnlock()
	return Stats{
		JobsProcessed:    w.jobsProcessed,
		JobsSucceeded:    w.jobsSucceeded,
		JobsFailed:       w.jobsFailed,
		JobsRetried:      w.jobsRetried,
		JobsDeadLettered: w.jobsDeadLettered,
		ActiveWorkers:    activeWorkers,
		LastProcessedAt:  w.lastProcessedAt,
	}
}

// Enqueue creates a new job in the queue
func (w *Worker) Enqueue(ctx context.Context, job *models.Job) error {
	if err := job.IsValid(); err != nil {
		return err
	}
	if err := w.queue.Enqueue(ctx, job); err != nil {
		return err
	}

	if w.instrumentation.OnEnqueue != nil {
		w.instrumentation.OnEnqueue(job)
	}
	log.Debug().Int64("job_id", job.ID).Str("type", job.JobType).Str("priority", string(job.Priority)).Msg("job enqueued")
	return nil
}

func generateWorkerID() string {
	return fmt.Sprintf("worker-%d-%d", time.Now().UnixNano(), rand.Intn(10000))
}
