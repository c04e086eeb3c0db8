package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"youtube-outlier-discovery/internal/domain"
	"youtube-outlier-discovery/internal/domain/model"
	"youtube-outlier-discovery/internal/domain/ports/repository"
)

// --- in-memory run repository ---

type memRunRepo struct {
	mu   sync.Mutex
	runs map[string]*model.AnalysisRun
}

func newMemRunRepo() *memRunRepo {
	return &memRunRepo{runs: make(map[string]*model.AnalysisRun)}
}

func (r *memRunRepo) Save(ctx context.Context, _ repository.Tx, run *model.AnalysisRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *run
	r.runs[run.ID] = &cp
	return nil
}

func (r *memRunRepo) FindByID(ctx context.Context, _ repository.Tx, id string) (*model.AnalysisRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *run
	return &cp, nil
}

func (r *memRunRepo) ListByOwner(ctx context.Context, _ repository.Tx, ownerID string, limit int) ([]*model.AnalysisRun, error) {
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

// UpdateStatus mirrors the storage-level CAS of the postgres repository.
func (r *memRunRepo) UpdateStatus(ctx context.Context, _ repository.Tx, id string, from, to model.RunStatus) error {
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

var _ repository.AnalysisRunRepository = (*memRunRepo)(nil)

// racingRunRepo flips a pending run to processing right before the first
// cancel CAS lands, mimicking a worker claiming the run concurrently.
type racingRunRepo struct {
	*memRunRepo
	raceMu sync.Mutex
	raced  bool
}

func (r *racingRunRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, from, to model.RunStatus) error {
	r.raceMu.Lock()
	first := !r.raced && from == model.RunStatusPending && to == model.RunStatusCancelled
	if first {
		r.raced = true
	}
	r.raceMu.Unlock()
	if first {
		_ = r.memRunRepo.UpdateStatus(ctx, tx, id, model.RunStatusPending, model.RunStatusProcessing)
	}
	return r.memRunRepo.UpdateStatus(ctx, tx, id, from, to)
}

// --- fake metadata source ---

type fakeYouTube struct {
	mu        sync.Mutex
	search    map[string][]model.CandidateChannel
	searchErr map[string]error
	channels  map[string]*model.CandidateChannel
	videos    map[string][]model.VideoCandidate
	videosErr map[string]error

	// videosGate, when set, blocks FetchChannelVideos until closed; the
	// fetching counter lets tests know scoring is in flight.
	videosGate chan struct{}
	fetching   chan string
}

func newFakeYouTube() *fakeYouTube {
	return &fakeYouTube{
		search:    make(map[string][]model.CandidateChannel),
		searchErr: make(map[string]error),
		channels:  make(map[string]*model.CandidateChannel),
		videos:    make(map[string][]model.VideoCandidate),
		videosErr: make(map[string]error),
	}
}

func (f *fakeYouTube) SearchChannels(ctx context.Context, query string, maxResults int, band model.SubscriberBand) ([]model.CandidateChannel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.searchErr[query]; err != nil {
		return nil, err
	}
	out := append([]model.CandidateChannel(nil), f.search[query]...)
	if band.Min > 0 || band.Max > 0 {
		kept := out[:0]
		for _, ch := range out {
			if ch.SubscriberCount >= band.Min && (band.Max <= 0 || ch.SubscriberCount <= band.Max) {
				kept = append(kept, ch)
			}
		}
		out = kept
	}
	return out, nil
}

func (f *fakeYouTube) FetchChannelInfo(ctx context.Context, channelID string) (*model.CandidateChannel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[channelID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *ch
	return &cp, nil
}

func (f *fakeYouTube) FetchChannelVideos(ctx context.Context, channelID string, maxResults int, publishedAfter time.Time) ([]model.VideoCandidate, error) {
	f.mu.Lock()
	gate := f.videosGate
	fetching := f.fetching
	err := f.videosErr[channelID]
	vids := append([]model.VideoCandidate(nil), f.videos[channelID]...)
	f.mu.Unlock()

	if fetching != nil {
		select {
		case fetching <- channelID:
		default:
		}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if len(vids) > maxResults && maxResults > 0 {
		vids = vids[:maxResults]
	}
	return vids, nil
}

// --- progress capture ---

type captureProgress struct {
	mu     sync.Mutex
	events []model.ProgressEvent
	closed []string
}

func (p *captureProgress) Publish(ev model.ProgressEvent) {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
}

func (p *captureProgress) Close(runID string) {
	p.mu.Lock()
	p.closed = append(p.closed, runID)
	p.mu.Unlock()
}

func (p *captureProgress) snapshot() []model.ProgressEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.ProgressEvent(nil), p.events...)
}

func (p *captureProgress) closedRuns() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.closed...)
}
