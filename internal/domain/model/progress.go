package model

// Pipeline stages in execution order. Stage indices are part of the
// progress event contract: subscribers see them non-decreasing per run.
type Stage int

const (
	StageBuildingExclusions Stage = iota
	StageDiscoveringChannels
	StageScoringChannels
	StageRanking
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageBuildingExclusions:
		return "building_exclusions"
	case StageDiscoveringChannels:
		return "discovering_channels"
	case StageScoringChannels:
		return "scoring_channels"
	case StageRanking:
		return "ranking"
	case StageDone:
		return "done"
	}
	return "unknown"
}

// ProgressEvent is ephemeral: published to run subscribers, never persisted.
// Percent is the overall run percentage (0-100), non-decreasing per stage.
type ProgressEvent struct {
	RunID   string      `json:"run_id"`
	Stage   Stage       `json:"stage"`
	Name    string      `json:"stage_name"`
	Percent int         `json:"percent"`
	Message string      `json:"message"`
	Payload interface{} `json:"payload,omitempty"`
}
