package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"youtube-outlier-discovery/internal/domain"
	"youtube-outlier-discovery/internal/domain/model"
	"youtube-outlier-discovery/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*MemoryJobRepo)(nil)

// MemoryJobRepo is a NON-DURABLE JobRepository: every job is lost on process
// exit. It exists for tests and local development only; production wiring
// uses the postgres repository.
type MemoryJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*model.Job // by id
}

func NewMemoryJobRepo() *MemoryJobRepo {
	return &MemoryJobRepo{jobs: make(map[string]*model.Job)}
}

func (r *MemoryJobRepo) Save(ctx context.Context, _ repository.Tx, job *model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	cp.UpdatedAt = time.Now()
	r.jobs[job.ID] = &cp
	job.UpdatedAt = cp.UpdatedAt
	return nil
}

func (r *MemoryJobRepo) FindByID(ctx context.Context, _ repository.Tx, queue, id string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok || j.Queue != queue {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *MemoryJobRepo) ListByQueue(ctx context.Context, _ repository.Tx, queue string, states []model.JobState, limit int) ([]*model.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Job
	for _, j := range r.jobs {
		if j.Queue != queue {
			continue
		}
		if len(states) > 0 && !stateIn(j.State, states) {
			continue
		}
		cp := *j
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].Priority != out[k].Priority {
			return out[i].Priority < out[k].Priority
		}
		return out[i].CreatedAt.Before(out[k].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryJobRepo) Remove(ctx context.Context, _ repository.Tx, queue, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok || j.Queue != queue {
		return domain.ErrNotFound
	}
	delete(r.jobs, id)
	return nil
}

func (r *MemoryJobRepo) FetchAndMarkActive(ctx context.Context, queue string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var best *model.Job
	for _, j := range r.jobs {
		if j.Queue != queue || j.State != model.JobStateWaiting || j.RunAfter.After(now) {
			continue
		}
		if best == nil || j.Priority < best.Priority ||
			(j.Priority == best.Priority && j.CreatedAt.Before(best.CreatedAt)) {
			best = j
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	best.State = model.JobStateActive
	best.Attempts++
	best.HeartbeatAt = now
	best.UpdatedAt = now
	cp := *best
	return &cp, nil
}

func (r *MemoryJobRepo) Heartbeat(ctx context.Context, queue, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok || j.Queue != queue || j.State != model.JobStateActive {
		return domain.ErrNotFound
	}
	j.HeartbeatAt = time.Now()
	return nil
}

func (r *MemoryJobRepo) RequeueStalled(ctx context.Context, queue string, cutoff time.Time, maxStalls int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, j := range r.jobs {
		if j.Queue != queue || j.State != model.JobStateActive || !j.HeartbeatAt.Before(cutoff) {
			continue
		}
		j.StallCount++
		if j.StallCount > maxStalls {
			j.State = model.JobStateFailed
			j.LastError = "stalled too many times"
		} else {
			j.State = model.JobStateWaiting
			j.LastError = "stalled; requeued"
		}
		j.UpdatedAt = time.Now()
		n++
	}
	return n, nil
}

func (r *MemoryJobRepo) PromoteDelayed(ctx context.Context, queue string, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, j := range r.jobs {
		if j.Queue == queue && j.State == model.JobStateDelayed && !j.RunAfter.After(now) {
			j.State = model.JobStateWaiting
			j.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

func (r *MemoryJobRepo) PruneTerminal(ctx context.Context, queue string, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, j := range r.jobs {
		if j.Queue == queue && j.State.Terminal() && j.UpdatedAt.Before(cutoff) {
			delete(r.jobs, id)
			n++
		}
	}
	return n, nil
}

func stateIn(s model.JobState, states []model.JobState) bool {
	for _, st := range states {
		if s == st {
			return true
		}
	}
	return false
}
