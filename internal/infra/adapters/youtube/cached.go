package youtube

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"youtube-outlier-discovery/internal/config"
	"youtube-outlier-discovery/internal/domain"
	"youtube-outlier-discovery/internal/domain/model"
	"youtube-outlier-discovery/internal/domain/ports/adapter"
	"youtube-outlier-discovery/internal/infra/metrics"
	red "youtube-outlier-discovery/internal/infra/redis"
	"youtube-outlier-discovery/internal/infra/retry"
)

// Official unit costs per call type; search is two orders of magnitude more
// expensive than everything else, which is why its TTL is the shortest and
// why the daily budget is guarded before every call.
const (
	costSearch = 100
	costList   = 1
)

var _ adapter.YouTubeAdapter = (*CachedAdapter)(nil)

// CachedAdapter wraps the REST client behind the shared redis snapshot cache,
// the daily quota ledger and the bounded retry policy. Cache values are full
// result snapshots, never partial records.
type CachedAdapter struct {
	client     *Client
	cache      *red.APICache
	quota      *red.QuotaLimiter
	policy     retry.Policy
	videosTTL  time.Duration
	channelTTL time.Duration
	searchTTL  time.Duration
	log        *zerolog.Logger
}

func NewCachedAdapter(client *Client, cache *red.APICache, quota *red.QuotaLimiter, cfg *config.YouTubeConfig, logger *zerolog.Logger) *CachedAdapter {
	compLog := logger.With().Str("component", "youtube_cache").Logger()
	return &CachedAdapter{
		client:     client,
		cache:      cache,
		quota:      quota,
		policy:     retry.NewPolicy(cfg.RetryAttempts, cfg.RetryBackoff, 10*time.Second),
		videosTTL:  cfg.VideosTTL,
		channelTTL: cfg.ChannelTTL,
		searchTTL:  cfg.SearchTTL,
		log:        &compLog,
	}
}

func (a *CachedAdapter) spend(ctx context.Context, units int) error {
	ok, err := a.quota.Spend(ctx, units)
	if err != nil {
		// A broken ledger must not take the pipeline down; log and proceed.
		a.log.Warn().Err(err).Msg("quota ledger unavailable")
		return nil
	}
	if !ok {
		metrics.IncQuotaBlocked()
		return fmt.Errorf("%w: %d units requested", domain.ErrQuotaExceeded, units)
	}
	return nil
}

func (a *CachedAdapter) call(ctx context.Context, units int, fn func(ctx context.Context) error) error {
	if err := a.spend(ctx, units); err != nil {
		return err
	}
	return a.policy.Do(ctx, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && !errors.Is(err, domain.ErrUpstream) {
			// Not-found and decode problems won't get better on retry.
			return retry.Permanent(err)
		}
		return err
	})
}

// SearchChannels searches and merges full channel statistics into every hit
// (each through its own cache); search results alone carry no counts, and the
// downstream channel validation needs them. A subscriber band, when given, is
// applied after the merge.
func (a *CachedAdapter) SearchChannels(ctx context.Context, query string, maxResults int, band model.SubscriberBand) ([]model.CandidateChannel, error) {
	key := red.Key("search_channels", query, maxResults, band.Min, band.Max)
	var cached []model.CandidateChannel
	hit, err := a.cache.Get(ctx, key, &cached)
	metrics.IncCacheLookup("search_channels", hit && err == nil)
	if err == nil && hit {
		return cached, nil
	}

	var raw []model.CandidateChannel
	if err := a.call(ctx, costSearch, func(ctx context.Context) error {
		var cerr error
		raw, cerr = a.client.SearchChannels(ctx, query, maxResults)
		return cerr
	}); err != nil {
		return nil, err
	}

	out := make([]model.CandidateChannel, 0, len(raw))
	for _, ch := range raw {
		full, err := a.FetchChannelInfo(ctx, ch.ID)
		if err != nil {
			if errors.Is(err, domain.ErrQuotaExceeded) {
				return nil, err
			}
			// One unreadable channel must not sink the query.
			a.log.Warn().Err(err).Str("channel_id", ch.ID).Msg("skipping search result")
			continue
		}
		if full.SubscriberCount < band.Min {
			continue
		}
		if band.Max > 0 && full.SubscriberCount > band.Max {
			continue
		}
		out = append(out, *full)
	}

	if err := a.cache.Set(ctx, key, out, a.searchTTL); err != nil {
		a.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
	return out, nil
}

func (a *CachedAdapter) FetchChannelInfo(ctx context.Context, channelID string) (*model.CandidateChannel, error) {
	key := red.Key("channel_info", channelID)
	var cached model.CandidateChannel
	hit, err := a.cache.Get(ctx, key, &cached)
	metrics.IncCacheLookup("channel_info", hit && err == nil)
	if err == nil && hit {
		return &cached, nil
	}

	var ch *model.CandidateChannel
	if err := a.call(ctx, costList, func(ctx context.Context) error {
		var cerr error
		ch, _, cerr = a.client.ChannelInfo(ctx, channelID)
		return cerr
	}); err != nil {
		return nil, err
	}

	if err := a.cache.Set(ctx, key, ch, a.channelTTL); err != nil {
		a.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
	return ch, nil
}

func (a *CachedAdapter) FetchChannelVideos(ctx context.Context, channelID string, maxResults int, publishedAfter time.Time) ([]model.VideoCandidate, error) {
	key := red.Key("channel_videos", channelID, maxResults, publishedAfter.Unix())
	var cached []model.VideoCandidate
	hit, err := a.cache.Get(ctx, key, &cached)
	metrics.IncCacheLookup("channel_videos", hit && err == nil)
	if err == nil && hit {
		return cached, nil
	}

	// Paging spends one unit per playlist page plus one per details batch;
	// charge a conservative estimate up front.
	pages := maxResults/pageSize + 1
	var videos []model.VideoCandidate
	if err := a.call(ctx, 2*pages*costList, func(ctx context.Context) error {
		var cerr error
		videos, cerr = a.client.ChannelVideos(ctx, channelID, maxResults, publishedAfter)
		return cerr
	}); err != nil {
		return nil, err
	}

	if err := a.cache.Set(ctx, key, videos, a.videosTTL); err != nil {
		a.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
	return videos, nil
}
