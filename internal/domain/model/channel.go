package model

import "time"

// CandidateChannel is a channel found during discovery, enriched with
// statistics from the metadata source. Not persisted beyond the run.
type CandidateChannel struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	SubscriberCount int64  `json:"subscriber_count"`
	VideoCount      int64  `json:"video_count"`
	ViewCount       int64  `json:"view_count"`
	Valid           bool   `json:"valid"`
}

// VideoCandidate is a scored video. Immutable once computed; included in
// AnalysisRun.Results only if it passes thresholds and is not excluded.
type VideoCandidate struct {
	ID           string    `json:"id"`
	ChannelID    string    `json:"channel_id"`
	ChannelTitle string    `json:"channel_title"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	ViewCount    int64     `json:"view_count"`
	PublishedAt  time.Time `json:"published_at"`
	OutlierScore float64   `json:"outlier_score"`
	BrandFit     float64   `json:"brand_fit"`
	Excluded     bool      `json:"excluded"`
}

// OutlierScore scales the view/subscriber ratio to a percentage baseline.
// A channel with zero reported subscribers is treated as having one.
func OutlierScore(views, subscribers int64) float64 {
	if subscribers < 1 {
		subscribers = 1
	}
	return float64(views) / float64(subscribers) * 100
}
