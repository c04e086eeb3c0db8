package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"youtube-outlier-discovery/internal/config"
	"youtube-outlier-discovery/internal/domain"
	"youtube-outlier-discovery/internal/domain/model"
	"youtube-outlier-discovery/internal/domain/ports/adapter"
)

// ChannelDiscoveryUseCase turns the run's search queries into a deduplicated,
// validated list of candidate channels.
type ChannelDiscoveryUseCase struct {
	yt  adapter.YouTubeAdapter
	cfg config.AnalysisConfig
	log *zerolog.Logger
}

func NewChannelDiscoveryUseCase(yt adapter.YouTubeAdapter, cfg config.AnalysisConfig, logger *zerolog.Logger) *ChannelDiscoveryUseCase {
	compLog := logger.With().Str("component", "channel_discovery").Logger()
	return &ChannelDiscoveryUseCase{yt: yt, cfg: cfg, log: &compLog}
}

// Discover runs every search query, merges the hits by channel id and keeps
// only channels that pass validation. discovered counts unique channels seen
// before validation. A failing query is logged and skipped; a spent quota
// aborts discovery.
func (uc *ChannelDiscoveryUseCase) Discover(ctx context.Context, runCfg model.AnalysisConfig, report func(done, total int)) (valid []model.CandidateChannel, discovered int, err error) {
	seen := make(map[string]struct{})
	total := len(runCfg.SearchQueries)

	for i, query := range runCfg.SearchQueries {
		hits, err := uc.yt.SearchChannels(ctx, query, uc.cfg.SearchPageSize, runCfg.SubscriberBand)
		if err != nil {
			if errors.Is(err, domain.ErrQuotaExceeded) {
				return nil, 0, err
			}
			uc.log.Warn().Err(err).Str("query", query).Msg("search query failed; continuing")
			continue
		}
		for _, ch := range hits {
			if _, dup := seen[ch.ID]; dup {
				continue
			}
			seen[ch.ID] = struct{}{}
			if uc.validate(&ch) {
				valid = append(valid, ch)
			}
		}
		if report != nil {
			report(i+1, total)
		}
	}

	uc.log.Info().Int("discovered", len(seen)).Int("valid", len(valid)).Msg("channel discovery finished")
	return valid, len(seen), nil
}

// validate applies the static channel heuristics: an upload count inside the
// configured bounds and no vetoed keyword in the channel's title or
// description. The subscriber band is already enforced by the search adapter.
func (uc *ChannelDiscoveryUseCase) validate(ch *model.CandidateChannel) bool {
	if ch.VideoCount < uc.cfg.MinChannelVideos || ch.VideoCount > uc.cfg.MaxChannelVideos {
		ch.Valid = false
		return false
	}
	text := strings.ToLower(ch.Title + " " + ch.Description)
	for _, veto := range uc.cfg.ChannelKeywordVeto {
		if strings.Contains(text, strings.ToLower(veto)) {
			ch.Valid = false
			return false
		}
	}
	ch.Valid = true
	return true
}
