package web

import (
	"context"
	"sort"
	"sync"
	"time"

	"youtube-outlier-discovery/internal/domain"
	"youtube-outlier-discovery/internal/domain/model"
	"youtube-outlier-discovery/internal/domain/ports/repository"
)

type mockRunRepo struct {
	mu   sync.Mutex
	runs map[string]*model.AnalysisRun

	// onFind, when set, runs after a successful FindByID returns its copy;
	// tests use it to change state between two reads.
	onFind func(id string)
}

func newMockRunRepo() *mockRunRepo {
	return &mockRunRepo{runs: make(map[string]*model.AnalysisRun)}
}

func (r *mockRunRepo) Save(ctx context.Context, _ repository.Tx, run *model.AnalysisRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *run
	r.runs[run.ID] = &cp
	return nil
}

func (r *mockRunRepo) FindByID(ctx context.Context, _ repository.Tx, id string) (*model.AnalysisRun, error) {
	r.mu.Lock()
	run, ok := r.runs[id]
	if !ok {
		r.mu.Unlock()
		return nil, domain.ErrNotFound
	}
	cp := *run
	hook := r.onFind
	r.mu.Unlock()
	if hook != nil {
		hook(id)
	}
	return &cp, nil
}

func (r *mockRunRepo) ListByOwner(ctx context.Context, _ repository.Tx, ownerID string, limit int) ([]*model.AnalysisRun, error) {
	if limit <= 0 {
		limit = 50
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.AnalysisRun
	for _, run := range r.runs {
		if run.OwnerID == ownerID {
			cp := *run
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *mockRunRepo) UpdateStatus(ctx context.Context, _ repository.Tx, id string, from, to model.RunStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok || run.Status != from {
		return domain.ErrNotFound
	}
	now := time.Now()
	switch to {
	case model.RunStatusProcessing:
		run.StartedAt = &now
	case model.RunStatusCompleted, model.RunStatusFailed, model.RunStatusCancelled:
		run.CompletedAt = &now
	}
	run.Status = to
	return nil
}

var _ repository.AnalysisRunRepository = (*mockRunRepo)(nil)
