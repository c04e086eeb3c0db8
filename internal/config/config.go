package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"youtube-outlier-discovery/internal/domain/model"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"` // bearer token for the admin endpoints
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// YouTubeConfig drives the external fetcher: API access, per-call-type cache
// TTLs and the daily unit quota guarded in redis.
type YouTubeConfig struct {
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url"`
	VideosTTL      time.Duration `yaml:"videos_ttl"`
	ChannelTTL     time.Duration `yaml:"channel_ttl"`
	SearchTTL      time.Duration `yaml:"search_ttl"`
	DailyQuota     int           `yaml:"daily_quota"`
	RetryAttempts  int           `yaml:"retry_attempts"`
	RetryBackoff   time.Duration `yaml:"retry_backoff"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// AnalysisConfig carries the heuristic tuning the pipeline treats as data:
// rule tables, channel validation bounds and the scoring fan-out.
type AnalysisConfig struct {
	BrandFitBase       float64               `yaml:"brand_fit_base"`
	ExclusionRules     []model.ExclusionRule `yaml:"exclusion_rules"`
	BrandRules         []model.BrandRule     `yaml:"brand_rules"`
	ChannelKeywordVeto []string              `yaml:"channel_keyword_veto"`
	MinChannelVideos   int64                 `yaml:"min_channel_videos"`
	MaxChannelVideos   int64                 `yaml:"max_channel_videos"`
	ScoreConcurrency   int                   `yaml:"score_concurrency"`
	SearchPageSize     int                   `yaml:"search_page_size"`
	VideosPerChannel   int                   `yaml:"videos_per_channel"`
	DefaultMaxResults  int                   `yaml:"default_max_results"`
}

// QueueConfig configures one logical queue lane.
type QueueConfig struct {
	Workers      int           `yaml:"workers"`
	MaxAttempts  int           `yaml:"max_attempts"`
	BackoffBase  time.Duration `yaml:"backoff_base"`
	BackoffCap   time.Duration `yaml:"backoff_cap"`
	StallTimeout time.Duration `yaml:"stall_timeout"`
	MaxStalls    int           `yaml:"max_stalls"`
	Retention    time.Duration `yaml:"retention"`
}

type Config struct {
	Server   ServerConfig           `yaml:"server"`
	Log      LogConfig              `yaml:"log"`
	Database DatabaseConfig         `yaml:"database"`
	Redis    RedisConfig            `yaml:"redis"`
	YouTube  YouTubeConfig          `yaml:"youtube"`
	Analysis AnalysisConfig         `yaml:"analysis"`
	Queues   map[string]QueueConfig `yaml:"queues"`

	Runtime RuntimeConfig `yaml:"-"`
}

// Queue names are fixed lanes; analysis runs are deliberately throttled below
// the lightweight lanes because they are externally rate-limited.
const (
	QueueAnalysis = "analysis"
	QueueCleanup  = "cleanup"
	QueueNotify   = "notify"
)

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.YouTube.APIKey == "" && !dev {
		return nil, errors.New("youtube.api_key is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.YouTube.BaseURL == "" {
		cfg.YouTube.BaseURL = "https://www.googleapis.com/youtube/v3"
	}
	if cfg.YouTube.VideosTTL <= 0 {
		cfg.YouTube.VideosTTL = 6 * time.Hour
	}
	if cfg.YouTube.ChannelTTL <= 0 {
		cfg.YouTube.ChannelTTL = 24 * time.Hour
	}
	if cfg.YouTube.SearchTTL <= 0 {
		cfg.YouTube.SearchTTL = 2 * time.Hour
	}
	if cfg.YouTube.DailyQuota <= 0 {
		cfg.YouTube.DailyQuota = 10000
	}
	if cfg.YouTube.RetryAttempts <= 0 {
		cfg.YouTube.RetryAttempts = 3
	}
	if cfg.YouTube.RetryBackoff <= 0 {
		cfg.YouTube.RetryBackoff = 500 * time.Millisecond
	}
	if cfg.YouTube.RequestTimeout <= 0 {
		cfg.YouTube.RequestTimeout = 15 * time.Second
	}

	if cfg.Analysis.BrandFitBase == 0 {
		cfg.Analysis.BrandFitBase = 5
	}
	if cfg.Analysis.MinChannelVideos <= 0 {
		cfg.Analysis.MinChannelVideos = 10
	}
	if cfg.Analysis.MaxChannelVideos <= 0 {
		cfg.Analysis.MaxChannelVideos = 5000
	}
	if cfg.Analysis.ScoreConcurrency <= 0 {
		cfg.Analysis.ScoreConcurrency = 4
	}
	if cfg.Analysis.SearchPageSize <= 0 {
		cfg.Analysis.SearchPageSize = 25
	}
	if cfg.Analysis.VideosPerChannel <= 0 {
		cfg.Analysis.VideosPerChannel = 100
	}
	if cfg.Analysis.DefaultMaxResults <= 0 {
		cfg.Analysis.DefaultMaxResults = 50
	}

	if cfg.Queues == nil {
		cfg.Queues = map[string]QueueConfig{}
	}
	defaults := map[string]QueueConfig{
		QueueAnalysis: {Workers: 2, MaxAttempts: 3, StallTimeout: 5 * time.Minute},
		QueueCleanup:  {Workers: 1, MaxAttempts: 2, StallTimeout: 2 * time.Minute},
		QueueNotify:   {Workers: 4, MaxAttempts: 5, StallTimeout: time.Minute},
	}
	for name, def := range defaults {
		q := cfg.Queues[name]
		if q.Workers <= 0 {
			q.Workers = def.Workers
		}
		if q.MaxAttempts <= 0 {
			q.MaxAttempts = def.MaxAttempts
		}
		if q.BackoffBase <= 0 {
			q.BackoffBase = 2 * time.Second
		}
		if q.BackoffCap <= 0 {
			q.BackoffCap = 5 * time.Minute
		}
		if q.StallTimeout <= 0 {
			q.StallTimeout = def.StallTimeout
		}
		if q.MaxStalls <= 0 {
			q.MaxStalls = 2
		}
		if q.Retention <= 0 {
			q.Retention = 24 * time.Hour
		}
		cfg.Queues[name] = q
	}
}
