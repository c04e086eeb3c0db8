package model

import (
	"time"

	"youtube-outlier-discovery/internal/domain"
)

type RunStatus string

const (
	RunStatusPending    RunStatus = "pending"
	RunStatusProcessing RunStatus = "processing"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
	RunStatusCancelled  RunStatus = "cancelled"
)

// Terminal reports whether a status can never change again.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// SubscriberBand bounds candidate channels by subscriber count.
type SubscriberBand struct {
	Min int64 `json:"min" yaml:"min"`
	Max int64 `json:"max" yaml:"max"`
}

// AnalysisConfig is the caller-supplied configuration of one discovery run.
type AnalysisConfig struct {
	ReferenceChannels []string       `json:"reference_channels"`
	SearchQueries     []string       `json:"search_queries"`
	SubscriberBand    SubscriberBand `json:"subscriber_band"`
	WindowDays        int            `json:"window_days"`
	OutlierThreshold  float64        `json:"outlier_threshold"`
	BrandFitThreshold float64        `json:"brand_fit_threshold"`
	MaxResults        int            `json:"max_results"`
}

// Validate rejects malformed configurations before anything is enqueued.
func (c *AnalysisConfig) Validate() error {
	if len(c.SearchQueries) == 0 {
		return domain.ErrInvalidArgument
	}
	if c.WindowDays <= 0 || c.WindowDays > 365 {
		return domain.ErrInvalidArgument
	}
	if c.SubscriberBand.Min < 0 || (c.SubscriberBand.Max > 0 && c.SubscriberBand.Max < c.SubscriberBand.Min) {
		return domain.ErrInvalidArgument
	}
	if c.OutlierThreshold < 0 || c.MaxResults < 0 {
		return domain.ErrInvalidArgument
	}
	return nil
}

// AnalysisSummary is recorded once a run completes.
type AnalysisSummary struct {
	TotalOutliers      int `json:"total_outliers"`
	ChannelsDiscovered int `json:"channels_discovered"`
	ChannelsAnalyzed   int `json:"channels_analyzed"`
	ExclusionTokens    int `json:"exclusion_tokens"`
}

// AnalysisRun is one discovery request. Status transitions are monotonic:
// pending -> processing -> {completed|failed}; cancelled is reachable from
// pending or processing only. Immutable once terminal.
type AnalysisRun struct {
	ID          string           `json:"id"`
	OwnerID     string           `json:"owner_id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Config      AnalysisConfig   `json:"config"`
	Status      RunStatus        `json:"status"`
	Results     []VideoCandidate `json:"results,omitempty"`
	Summary     *AnalysisSummary `json:"summary,omitempty"`
	FailReason  string           `json:"fail_reason,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// NewAnalysisRun builds a pending run with a validated configuration.
func NewAnalysisRun(id, ownerID, name string, cfg AnalysisConfig) (*AnalysisRun, error) {
	if id == "" || name == "" {
		return nil, domain.ErrInvalidArgument
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &AnalysisRun{
		ID:        id,
		OwnerID:   ownerID,
		Name:      name,
		Config:    cfg,
		Status:    RunStatusPending,
		CreatedAt: time.Now(),
	}, nil
}

var allowedTransitions = map[RunStatus][]RunStatus{
	RunStatusPending:    {RunStatusProcessing, RunStatusCancelled},
	RunStatusProcessing: {RunStatusCompleted, RunStatusFailed, RunStatusCancelled},
}

// Transition moves the run to next, enforcing the monotonic state machine.
func (r *AnalysisRun) Transition(next RunStatus) error {
	if r.Status.Terminal() {
		return domain.ErrRunTerminal
	}
	for _, s := range allowedTransitions[r.Status] {
		if s == next {
			now := time.Now()
			switch next {
			case RunStatusProcessing:
				r.StartedAt = &now
			case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
				r.CompletedAt = &now
			}
			r.Status = next
			return nil
		}
	}
	return domain.ErrInvalidArgument
}
