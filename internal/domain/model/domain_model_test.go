package model

import (
	"sort"
	"testing"
	"time"

	"youtube-outlier-discovery/internal/domain"
)

func validConfig() AnalysisConfig {
	return AnalysisConfig{
		ReferenceChannels: []string{"ChannelA"},
		SearchQueries:     []string{"roblox gaming"},
		SubscriberBand:    SubscriberBand{Min: 10000, Max: 500000},
		WindowDays:        7,
		OutlierThreshold:  20,
		BrandFitThreshold: 4,
		MaxResults:        50,
	}
}

func TestAnalysisRun_Transitions(t *testing.T) {
	t.Parallel()

	run, err := NewAnalysisRun("run-1", "owner-1", "test", validConfig())
	if err != nil {
		t.Fatalf("NewAnalysisRun: %v", err)
	}
	if run.Status != RunStatusPending {
		t.Fatalf("expected pending, got %s", run.Status)
	}

	if err := run.Transition(RunStatusCompleted); err == nil {
		t.Fatalf("expected pending->completed to be rejected")
	}
	if err := run.Transition(RunStatusProcessing); err != nil {
		t.Fatalf("pending->processing: %v", err)
	}
	if run.StartedAt == nil {
		t.Fatalf("expected StartedAt to be set")
	}
	if err := run.Transition(RunStatusCompleted); err != nil {
		t.Fatalf("processing->completed: %v", err)
	}
	if run.CompletedAt == nil {
		t.Fatalf("expected CompletedAt to be set")
	}

	// terminal states never change again
	if err := run.Transition(RunStatusFailed); err != domain.ErrRunTerminal {
		t.Fatalf("expected ErrRunTerminal, got %v", err)
	}
}

func TestAnalysisRun_CancelFromProcessing(t *testing.T) {
	t.Parallel()

	run, _ := NewAnalysisRun("run-2", "owner-1", "test", validConfig())
	_ = run.Transition(RunStatusProcessing)
	if err := run.Transition(RunStatusCancelled); err != nil {
		t.Fatalf("processing->cancelled: %v", err)
	}
	if !run.Status.Terminal() {
		t.Fatalf("cancelled should be terminal")
	}
}

func TestAnalysisConfig_Validate(t *testing.T) {
	t.Parallel()

	bad := validConfig()
	bad.SearchQueries = nil
	if err := bad.Validate(); err != domain.ErrInvalidArgument {
		t.Fatalf("expected ErrInvalidArgument for empty queries, got %v", err)
	}

	bad = validConfig()
	bad.SubscriberBand = SubscriberBand{Min: 500000, Max: 10000}
	if err := bad.Validate(); err != domain.ErrInvalidArgument {
		t.Fatalf("expected ErrInvalidArgument for inverted band, got %v", err)
	}

	bad = validConfig()
	bad.WindowDays = 0
	if err := bad.Validate(); err != domain.ErrInvalidArgument {
		t.Fatalf("expected ErrInvalidArgument for zero window, got %v", err)
	}
}

func TestOutlierScore(t *testing.T) {
	t.Parallel()

	if got := OutlierScore(500000, 100000); got != 500.0 {
		t.Fatalf("expected 500.0, got %v", got)
	}
	// zero subscribers are treated as one, not a division by zero
	if got := OutlierScore(42, 0); got != 4200.0 {
		t.Fatalf("expected 4200.0, got %v", got)
	}
}

func TestRuleSet_ExtractTokens(t *testing.T) {
	t.Parallel()

	rs, err := CompileRules([]ExclusionRule{
		{Token: "piggy"},
		{Token: "minecraft"},
		{Token: "obby", Pattern: `\bobby\b|\bobbies\b`},
	}, nil)
	if err != nil {
		t.Fatalf("CompileRules: %v", err)
	}

	got := rs.ExtractTokens("Let's play Piggy tonight")
	if len(got) != 1 || got[0] != "piggy" {
		t.Fatalf("expected [piggy], got %v", got)
	}

	got = rs.ExtractTokens("Best OBBIES and Minecraft builds")
	sort.Strings(got)
	if len(got) != 2 || got[0] != "minecraft" || got[1] != "obby" {
		t.Fatalf("expected [minecraft obby], got %v", got)
	}

	if got := rs.ExtractTokens("nothing matching here"); len(got) != 0 {
		t.Fatalf("expected no tokens, got %v", got)
	}
}

func TestRuleSet_BrandFitClamped(t *testing.T) {
	t.Parallel()

	rs, err := CompileRules(nil, []BrandRule{
		{Name: "family", Weight: 1, Keywords: []string{"family friendly", "no swearing"}},
		{Name: "energy", Weight: 1, Keywords: []string{"insane", "crazy"}},
		{Name: "brand", Weight: 2, Keywords: []string{"roblox"}, Unless: []string{"hack"}},
		{Name: "caps-title", Weight: 1, Pattern: `[A-Z]{4,}`},
		{Name: "negative", Weight: -3, Keywords: []string{"violence", "gore", "swear"}},
	})
	if err != nil {
		t.Fatalf("CompileRules: %v", err)
	}

	// suppressed by the unless set
	if got := rs.BrandFit(5, "roblox hack tutorial", ""); got != 5 {
		t.Fatalf("expected unless set to suppress rule, got %v", got)
	}

	// never below zero
	if got := rs.BrandFit(1, "gore and violence and swearing", ""); got != 0 {
		t.Fatalf("expected clamp to 0, got %v", got)
	}

	// never above ten
	if got := rs.BrandFit(9, "INSANE family friendly roblox event", ""); got != 10 {
		t.Fatalf("expected clamp to 10, got %v", got)
	}
}

func TestExclusionSet(t *testing.T) {
	t.Parallel()

	s := NewExclusionSet()
	s.Add("Piggy", " minecraft ", "")
	if s.Len() != 2 {
		t.Fatalf("expected 2 tokens, got %d", s.Len())
	}
	if !s.Matches("Scary PIGGY chapter 12") {
		t.Fatalf("expected substring match to hit")
	}
	if s.Matches("gardening tips") {
		t.Fatalf("unexpected match")
	}

	s.Seal()
	s.Add("fortnite")
	if s.Len() != 2 {
		t.Fatalf("sealed set must not grow")
	}
}

func TestJob_DelayAndRetryable(t *testing.T) {
	t.Parallel()

	j, err := NewJob("job-1", "analysis", "run_analysis", nil, 0, 2, time.Minute)
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	if j.State != JobStateDelayed {
		t.Fatalf("expected delayed state, got %s", j.State)
	}
	if !j.RunAfter.After(time.Now()) {
		t.Fatalf("expected RunAfter in the future")
	}

	j.Attempts = 1
	if !j.Retryable() {
		t.Fatalf("one of two attempts used, should be retryable")
	}
	j.Attempts = 2
	if j.Retryable() {
		t.Fatalf("attempts exhausted, should not be retryable")
	}
}
