package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"youtube-outlier-discovery/internal/config"
	"youtube-outlier-discovery/internal/domain"
	"youtube-outlier-discovery/internal/domain/model"
	"youtube-outlier-discovery/internal/infra/metrics"
)

const pageSize = 50 // API maximum per page

// Client is a thin typed client for the YouTube Data API v3 REST surface.
// It knows nothing about caching or quota; see CachedAdapter.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *zerolog.Logger
}

func NewClient(cfg *config.YouTubeConfig, logger *zerolog.Logger) *Client {
	compLog := logger.With().Str("component", "youtube").Logger()
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		log:     &compLog,
	}
}

// ---- wire types ----

type searchResponse struct {
	Items []struct {
		ID struct {
			ChannelID string `json:"channelId"`
		} `json:"id"`
		Snippet struct {
			Title       string `json:"title"`
			Description string `json:"description"`
		} `json:"snippet"`
	} `json:"items"`
}

type channelsResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title       string `json:"title"`
			Description string `json:"description"`
		} `json:"snippet"`
		Statistics struct {
			SubscriberCount string `json:"subscriberCount"`
			VideoCount      string `json:"videoCount"`
			ViewCount       string `json:"viewCount"`
		} `json:"statistics"`
		ContentDetails struct {
			RelatedPlaylists struct {
				Uploads string `json:"uploads"`
			} `json:"relatedPlaylists"`
		} `json:"contentDetails"`
	} `json:"items"`
}

type playlistItemsResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		Snippet struct {
			PublishedAt time.Time `json:"publishedAt"`
			ResourceID  struct {
				VideoID string `json:"videoId"`
			} `json:"resourceId"`
		} `json:"snippet"`
	} `json:"items"`
}

type videosResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			ChannelID    string    `json:"channelId"`
			ChannelTitle string    `json:"channelTitle"`
			Title        string    `json:"title"`
			Description  string    `json:"description"`
			PublishedAt  time.Time `json:"publishedAt"`
		} `json:"snippet"`
		Statistics struct {
			ViewCount string `json:"viewCount"`
		} `json:"statistics"`
	} `json:"items"`
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, dest interface{}) error {
	params.Set("key", c.apiKey)
	reqURL := c.baseURL + "/" + endpoint + "?" + params.Encode()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	latency := int(time.Since(start) / time.Millisecond)
	metrics.ObserveYouTubeCall(endpoint, latency, err)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrUpstream, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.log.Warn().Str("endpoint", endpoint).Int("status", resp.StatusCode).
			Str("body", string(body)).Msg("upstream error response")
		return fmt.Errorf("%w: %s returned %d", domain.ErrUpstream, endpoint, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("%w: decode %s: %v", domain.ErrUpstream, endpoint, err)
	}
	return nil
}

// SearchChannels returns channels matching query, snippet only; statistics
// are merged by the caller via ChannelInfo.
func (c *Client) SearchChannels(ctx context.Context, query string, maxResults int) ([]model.CandidateChannel, error) {
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("q", query)
	params.Set("type", "channel")
	params.Set("maxResults", strconv.Itoa(maxResults))

	var resp searchResponse
	if err := c.get(ctx, "search", params, &resp); err != nil {
		return nil, err
	}
	out := make([]model.CandidateChannel, 0, len(resp.Items))
	for _, it := range resp.Items {
		if it.ID.ChannelID == "" {
			continue
		}
		out = append(out, model.CandidateChannel{
			ID:          it.ID.ChannelID,
			Title:       it.Snippet.Title,
			Description: it.Snippet.Description,
		})
	}
	return out, nil
}

// ChannelInfo returns one channel with statistics plus its uploads playlist id.
func (c *Client) ChannelInfo(ctx context.Context, channelID string) (*model.CandidateChannel, string, error) {
	params := url.Values{}
	params.Set("part", "snippet,contentDetails,statistics")
	params.Set("id", channelID)

	var resp channelsResponse
	if err := c.get(ctx, "channels", params, &resp); err != nil {
		return nil, "", err
	}
	if len(resp.Items) == 0 {
		return nil, "", fmt.Errorf("%w: channel %s", domain.ErrNotFound, channelID)
	}
	it := resp.Items[0]
	ch := &model.CandidateChannel{
		ID:              it.ID,
		Title:           it.Snippet.Title,
		Description:     it.Snippet.Description,
		SubscriberCount: parseCount(it.Statistics.SubscriberCount),
		VideoCount:      parseCount(it.Statistics.VideoCount),
		ViewCount:       parseCount(it.Statistics.ViewCount),
	}
	return ch, it.ContentDetails.RelatedPlaylists.Uploads, nil
}

// ChannelVideos pages the uploads playlist and merges in per-video statistics
// (a playlistItems call and a videos call combined by id). publishedAfter is
// enforced client-side; the uploads playlist is reverse-chronological so
// paging stops at the first page past the bound.
func (c *Client) ChannelVideos(ctx context.Context, channelID string, maxResults int, publishedAfter time.Time) ([]model.VideoCandidate, error) {
	_, uploads, err := c.ChannelInfo(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if uploads == "" {
		return nil, nil
	}

	var videos []model.VideoCandidate
	pageToken := ""
	for len(videos) < maxResults {
		params := url.Values{}
		params.Set("part", "snippet")
		params.Set("playlistId", uploads)
		params.Set("maxResults", strconv.Itoa(min(maxResults-len(videos), pageSize)))
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		var page playlistItemsResponse
		if err := c.get(ctx, "playlistItems", params, &page); err != nil {
			return nil, err
		}

		var ids []string
		pastWindow := false
		for _, it := range page.Items {
			if !publishedAfter.IsZero() && it.Snippet.PublishedAt.Before(publishedAfter) {
				pastWindow = true
				continue
			}
			if it.Snippet.ResourceID.VideoID != "" {
				ids = append(ids, it.Snippet.ResourceID.VideoID)
			}
		}
		if len(ids) > 0 {
			batch, err := c.videoDetails(ctx, ids)
			if err != nil {
				return nil, err
			}
			videos = append(videos, batch...)
		}

		pageToken = page.NextPageToken
		if pageToken == "" || pastWindow || len(page.Items) == 0 {
			break
		}
	}
	if len(videos) > maxResults {
		videos = videos[:maxResults]
	}
	return videos, nil
}

func (c *Client) videoDetails(ctx context.Context, ids []string) ([]model.VideoCandidate, error) {
	params := url.Values{}
	params.Set("part", "snippet,statistics")
	params.Set("id", strings.Join(ids, ","))

	var resp videosResponse
	if err := c.get(ctx, "videos", params, &resp); err != nil {
		return nil, err
	}
	out := make([]model.VideoCandidate, 0, len(resp.Items))
	for _, it := range resp.Items {
		out = append(out, model.VideoCandidate{
			ID:           it.ID,
			ChannelID:    it.Snippet.ChannelID,
			ChannelTitle: it.Snippet.ChannelTitle,
			Title:        it.Snippet.Title,
			Description:  it.Snippet.Description,
			ViewCount:    parseCount(it.Statistics.ViewCount),
			PublishedAt:  it.Snippet.PublishedAt,
		})
	}
	return out, nil
}

// The API reports counters as JSON strings.
func parseCount(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
