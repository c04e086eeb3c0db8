package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"youtube-outlier-discovery/internal/config"
	"youtube-outlier-discovery/internal/domain"
	"youtube-outlier-discovery/internal/domain/model"
	"youtube-outlier-discovery/internal/domain/ports/repository"
	"youtube-outlier-discovery/internal/infra/metrics"
	"youtube-outlier-discovery/internal/infra/retry"
)

// Handler processes one job. A returned error counts as a failed attempt.
type Handler func(ctx context.Context, job *model.Job) error

// EnqueueOptions tune one enqueue call; zero values take queue defaults.
type EnqueueOptions struct {
	Priority    int
	Delay       time.Duration
	MaxAttempts int
}

// ReaperLock serializes the stalled-job reaper across processes. The redis
// lock satisfies this; a nil lock means every process reaps (harmless, the
// requeue query is idempotent).
type ReaperLock interface {
	TryAcquire(ctx context.Context, owner string) (bool, error)
}

// Manager owns the logical queues: durable job records via the repository,
// one bounded worker pool per queue, a delayed-job promoter and a
// stalled-job reaper. Deliberately no ambient singleton; construct one and
// pass it where needed.
type Manager struct {
	repo     repository.JobRepository
	cfgs     map[string]config.QueueConfig
	lock     ReaperLock
	log      *zerolog.Logger
	pollTick time.Duration

	mu       sync.Mutex
	handlers map[string]Handler
	paused   map[string]bool

	wg sync.WaitGroup
}

func NewManager(repo repository.JobRepository, cfgs map[string]config.QueueConfig, lock ReaperLock, logger *zerolog.Logger) *Manager {
	compLog := logger.With().Str("component", "queue").Logger()
	return &Manager{
		repo:     repo,
		cfgs:     cfgs,
		lock:     lock,
		log:      &compLog,
		pollTick: 500 * time.Millisecond,
		handlers: make(map[string]Handler),
		paused:   make(map[string]bool),
	}
}

// RegisterHandler binds a job type to its processor. Must be called before Start.
func (m *Manager) RegisterHandler(jobType string, h Handler) {
	m.mu.Lock()
	m.handlers[jobType] = h
	m.mu.Unlock()
}

// Enqueue validates and persists a new job. The same payload enqueued twice
// produces two independent jobs; identity is never config-deduplicated.
func (m *Manager) Enqueue(ctx context.Context, queue, jobType string, payload interface{}, opts EnqueueOptions) (*model.Job, error) {
	qcfg, ok := m.cfgs[queue]
	if !ok {
		return nil, fmt.Errorf("%w: unknown queue %q", domain.ErrInvalidArgument, queue)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", domain.ErrInvalidArgument, err)
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = qcfg.MaxAttempts
	}
	job, err := model.NewJob(uuid.NewString(), queue, jobType, raw, opts.Priority, maxAttempts, opts.Delay)
	if err != nil {
		return nil, err
	}
	if err := m.repo.Save(ctx, nil, job); err != nil {
		return nil, err
	}
	m.log.Debug().Str("queue", queue).Str("job_id", job.ID).Str("type", jobType).
		Int("priority", job.Priority).Msg("job enqueued")
	return job, nil
}

// Status returns the persisted state of one job.
func (m *Manager) Status(ctx context.Context, queue, id string) (*model.Job, error) {
	return m.repo.FindByID(ctx, nil, queue, id)
}

// ListJobs returns jobs of a queue, optionally filtered by state.
func (m *Manager) ListJobs(ctx context.Context, queue string, states []model.JobState, limit int) ([]*model.Job, error) {
	if _, ok := m.cfgs[queue]; !ok {
		return nil, fmt.Errorf("%w: unknown queue %q", domain.ErrInvalidArgument, queue)
	}
	return m.repo.ListByQueue(ctx, nil, queue, states, limit)
}

// Retry puts a failed job back to waiting with a fresh attempt budget.
func (m *Manager) Retry(ctx context.Context, queue, id string) error {
	job, err := m.repo.FindByID(ctx, nil, queue, id)
	if err != nil {
		return err
	}
	if job.State != model.JobStateFailed {
		return domain.ErrJobNotRetryable
	}
	job.State = model.JobStateWaiting
	job.Attempts = 0
	job.StallCount = 0
	job.LastError = ""
	job.RunAfter = time.Now()
	return m.repo.Save(ctx, nil, job)
}

// Remove deletes a job record. Active jobs cannot be removed.
func (m *Manager) Remove(ctx context.Context, queue, id string) error {
	job, err := m.repo.FindByID(ctx, nil, queue, id)
	if err != nil {
		return err
	}
	if job.State == model.JobStateActive {
		return fmt.Errorf("%w: job is active", domain.ErrInvalidArgument)
	}
	return m.repo.Remove(ctx, nil, queue, id)
}

func (m *Manager) Pause(queue string) error {
	if _, ok := m.cfgs[queue]; !ok {
		return fmt.Errorf("%w: unknown queue %q", domain.ErrInvalidArgument, queue)
	}
	m.mu.Lock()
	m.paused[queue] = true
	m.mu.Unlock()
	m.log.Info().Str("queue", queue).Msg("queue paused")
	return nil
}

func (m *Manager) Resume(queue string) error {
	if _, ok := m.cfgs[queue]; !ok {
		return fmt.Errorf("%w: unknown queue %q", domain.ErrInvalidArgument, queue)
	}
	m.mu.Lock()
	m.paused[queue] = false
	m.mu.Unlock()
	m.log.Info().Str("queue", queue).Msg("queue resumed")
	return nil
}

func (m *Manager) isPaused(queue string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused[queue]
}

// QueueInfo is the administrative view of one queue.
type QueueInfo struct {
	Name    string `json:"name"`
	Workers int    `json:"workers"`
	Paused  bool   `json:"paused"`
}

func (m *Manager) Queues() []QueueInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]QueueInfo, 0, len(m.cfgs))
	for name, cfg := range m.cfgs {
		out = append(out, QueueInfo{Name: name, Workers: cfg.Workers, Paused: m.paused[name]})
	}
	return out
}

// Start launches the worker pools and maintenance loops. It returns
// immediately; Stop (or ctx cancellation) winds everything down.
func (m *Manager) Start(ctx context.Context) {
	for name, cfg := range m.cfgs {
		for i := 0; i < cfg.Workers; i++ {
			m.wg.Add(1)
			go func(queue string, qcfg config.QueueConfig, id int) {
				defer m.wg.Done()
				m.workerLoop(ctx, queue, qcfg, id)
			}(name, cfg, i)
		}
		m.wg.Add(1)
		go func(queue string, qcfg config.QueueConfig) {
			defer m.wg.Done()
			m.maintenanceLoop(ctx, queue, qcfg)
		}(name, cfg)
	}
	m.log.Info().Int("queues", len(m.cfgs)).Msg("queue manager started")
}

// Wait blocks until all workers have exited (after ctx cancellation).
func (m *Manager) Wait() { m.wg.Wait() }

func (m *Manager) workerLoop(ctx context.Context, queue string, qcfg config.QueueConfig, workerID int) {
	ticker := time.NewTicker(m.pollTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.isPaused(queue) {
				continue
			}
			m.processOne(ctx, queue, qcfg, workerID)
		}
	}
}

func (m *Manager) processOne(ctx context.Context, queue string, qcfg config.QueueConfig, workerID int) {
	job, err := m.repo.FetchAndMarkActive(ctx, queue)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) && ctx.Err() == nil {
			m.log.Error().Err(err).Str("queue", queue).Msg("failed to fetch job")
		}
		return
	}

	log := m.log.With().Str("queue", queue).Str("job_id", job.ID).
		Str("type", job.Type).Int("worker", workerID).Logger()
	log.Info().Int("attempt", job.Attempts).Msg("processing job")

	m.mu.Lock()
	handler := m.handlers[job.Type]
	m.mu.Unlock()

	start := time.Now()
	var jobErr error
	if handler == nil {
		jobErr = fmt.Errorf("no handler registered for job type %q", job.Type)
	} else {
		jobErr = m.runWithHeartbeat(ctx, job, qcfg, handler)
	}
	latency := time.Since(start)
	metrics.ObserveJobLatency(queue, int(latency/time.Millisecond))

	// Final state write uses a background context: a shutdown must not leave
	// the job active when the handler already finished.
	finCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if jobErr == nil {
		job.State = model.JobStateCompleted
		job.LastError = ""
		metrics.IncJob(queue, "completed")
		log.Info().Dur("duration", latency).Msg("job completed")
	} else if job.Retryable() {
		policy := retry.NewPolicy(job.MaxAttempts, qcfg.BackoffBase, qcfg.BackoffCap)
		delay := policy.Delay(job.Attempts - 1)
		job.State = model.JobStateDelayed
		job.RunAfter = time.Now().Add(delay)
		job.LastError = jobErr.Error()
		metrics.IncJob(queue, "retried")
		log.Warn().Err(jobErr).Dur("backoff", delay).Int("attempt", job.Attempts).
			Msg("job failed; scheduling retry")
	} else {
		job.State = model.JobStateFailed
		job.LastError = jobErr.Error()
		metrics.IncJob(queue, "failed")
		log.Error().Err(jobErr).Int("attempts", job.Attempts).Msg("job failed permanently")
	}

	if err := m.repo.Save(finCtx, nil, job); err != nil {
		log.Error().Err(err).Msg("failed to persist job state")
	}
}

// runWithHeartbeat keeps the job's liveness timestamp fresh while the handler
// runs, so the reaper can tell a slow job from a dead worker.
func (m *Manager) runWithHeartbeat(ctx context.Context, job *model.Job, qcfg config.QueueConfig, handler Handler) error {
	hbInterval := qcfg.StallTimeout / 3
	if hbInterval < time.Second {
		hbInterval = time.Second
	}
	hbCtx, stopHB := context.WithCancel(ctx)
	defer stopHB()
	go func() {
		ticker := time.NewTicker(hbInterval)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				if err := m.repo.Heartbeat(hbCtx, job.Queue, job.ID); err != nil && hbCtx.Err() == nil {
					m.log.Warn().Err(err).Str("job_id", job.ID).Msg("heartbeat failed")
				}
			}
		}
	}()
	return handler(ctx, job)
}

func (m *Manager) maintenanceLoop(ctx context.Context, queue string, qcfg config.QueueConfig) {
	interval := qcfg.StallTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := m.repo.PromoteDelayed(ctx, queue, time.Now()); err != nil {
				if ctx.Err() == nil {
					m.log.Error().Err(err).Str("queue", queue).Msg("promote delayed failed")
				}
			} else if n > 0 {
				m.log.Debug().Str("queue", queue).Int("count", n).Msg("promoted delayed jobs")
			}

			if m.lock != nil {
				held, err := m.lock.TryAcquire(ctx, queue)
				if err != nil || !held {
					continue
				}
			}
			cutoff := time.Now().Add(-qcfg.StallTimeout)
			if n, err := m.repo.RequeueStalled(ctx, queue, cutoff, qcfg.MaxStalls); err != nil {
				if ctx.Err() == nil {
					m.log.Error().Err(err).Str("queue", queue).Msg("stalled reap failed")
				}
			} else if n > 0 {
				metrics.AddStalled(queue, n)
				m.log.Warn().Str("queue", queue).Int("count", n).Msg("requeued stalled jobs")
			}
		}
	}
}

// Prune deletes terminal jobs older than each queue's retention window.
// Registered as the handler of the cleanup lane's prune job.
func (m *Manager) Prune(ctx context.Context) (int, error) {
	total := 0
	for name, cfg := range m.cfgs {
		n, err := m.repo.PruneTerminal(ctx, name, time.Now().Add(-cfg.Retention))
		if err != nil {
			return total, err
		}
		total += n
	}
	if total > 0 {
		m.log.Info().Int("count", total).Msg("pruned terminal jobs")
	}
	return total, nil
}
