package adapter

import (
	"context"
	"time"

	"youtube-outlier-discovery/internal/domain/model"
)

// YouTubeAdapter is the hex port for the external content-metadata source.
// Implementations are expected to cache aggressively; every method is a
// potential suspension point.
type YouTubeAdapter interface {
	// SearchChannels returns channels matching query, post-filtered by the
	// subscriber band when band.Max > 0 or band.Min > 0.
	SearchChannels(ctx context.Context, query string, maxResults int, band model.SubscriberBand) ([]model.CandidateChannel, error)

	// FetchChannelInfo returns one channel with statistics merged in.
	FetchChannelInfo(ctx context.Context, channelID string) (*model.CandidateChannel, error)

	// FetchChannelVideos returns up to maxResults videos published after the
	// given time (zero time means no lower bound), statistics included.
	FetchChannelVideos(ctx context.Context, channelID string, maxResults int, publishedAfter time.Time) ([]model.VideoCandidate, error)
}
