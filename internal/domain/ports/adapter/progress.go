package adapter

import "youtube-outlier-discovery/internal/domain/model"

// ProgressPublisher fans progress events out to run subscribers.
// Delivery is best-effort and at-most-once; losing an event never affects
// pipeline correctness, only observability.
type ProgressPublisher interface {
	Publish(event model.ProgressEvent)
	// Close tears the run's channel down once the run is terminal.
	Close(runID string)
}
