//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"

	"youtube-outlier-discovery/internal/domain"
	"youtube-outlier-discovery/internal/domain/model"
)

func testRunConfig() model.AnalysisConfig {
	return model.AnalysisConfig{
		SearchQueries:  []string{"indie game devlog"},
		SubscriberBand: model.SubscriberBand{Min: 10_000, Max: 500_000},
		WindowDays:     90,
		MaxResults:     50,
	}
}

func TestAnalysisRunRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	repo := NewAnalysisRunRepo(testPool)
	ctx := context.Background()

	t.Run("should round-trip a run with results", func(t *testing.T) {
		cleanup(t)

		run, err := model.NewAnalysisRun("01RUNROUNDTRIP", "owner-1", "devlog hunt", testRunConfig())
		if err != nil {
			t.Fatalf("model.NewAnalysisRun() failed: %v", err)
		}
		run.Description = "first pass"
		if err := repo.Save(ctx, nil, run); err != nil {
			t.Fatalf("Failed to save run: %v", err)
		}

		found, err := repo.FindByID(ctx, nil, run.ID)
		if err != nil {
			t.Fatalf("Failed to find run by ID: %v", err)
		}
		if found.Status != model.RunStatusPending {
			t.Errorf("Expected status pending, got %s", found.Status)
		}
		if found.Config.SubscriberBand.Max != 500_000 {
			t.Errorf("Config not round-tripped: %+v", found.Config)
		}
		if found.Results != nil || found.Summary != nil {
			t.Errorf("Fresh run must not carry results or summary")
		}

		// Attach results the way the pipeline does on completion.
		found.Results = []model.VideoCandidate{{
			ID: "vid-1", ChannelID: "UC1", Title: "devlog #12", OutlierScore: 500.0, BrandFit: 8,
		}}
		found.Summary = &model.AnalysisSummary{TotalOutliers: 1, ChannelsAnalyzed: 1}
		if err := repo.Save(ctx, nil, found); err != nil {
			t.Fatalf("Failed to update run: %v", err)
		}

		updated, err := repo.FindByID(ctx, nil, run.ID)
		if err != nil {
			t.Fatalf("Failed to re-read run: %v", err)
		}
		if len(updated.Results) != 1 || updated.Results[0].OutlierScore != 500.0 {
			t.Errorf("Results not round-tripped: %+v", updated.Results)
		}
		if updated.Summary == nil || updated.Summary.TotalOutliers != 1 {
			t.Errorf("Summary not round-tripped: %+v", updated.Summary)
		}
	})

	t.Run("should list runs newest first per owner", func(t *testing.T) {
		cleanup(t)

		// ULIDs sort lexicographically by creation time.
		for _, id := range []string{"01AAA", "01BBB", "01CCC"} {
			run, _ := model.NewAnalysisRun(id, "owner-1", "run "+id, testRunConfig())
			if err := repo.Save(ctx, nil, run); err != nil {
				t.Fatalf("Save %s failed: %v", id, err)
			}
		}
		other, _ := model.NewAnalysisRun("01ZZZ", "owner-2", "foreign", testRunConfig())
		if err := repo.Save(ctx, nil, other); err != nil {
			t.Fatalf("Save foreign run failed: %v", err)
		}

		runs, err := repo.ListByOwner(ctx, nil, "owner-1", 2)
		if err != nil {
			t.Fatalf("ListByOwner failed: %v", err)
		}
		if len(runs) != 2 {
			t.Fatalf("expected 2 runs, got %d", len(runs))
		}
		if runs[0].ID != "01CCC" || runs[1].ID != "01BBB" {
			t.Errorf("expected newest first, got [%s %s]", runs[0].ID, runs[1].ID)
		}
	})

	t.Run("status CAS rejects stale transitions", func(t *testing.T) {
		cleanup(t)

		run, _ := model.NewAnalysisRun("01CASRUN", "owner-1", "cas", testRunConfig())
		if err := repo.Save(ctx, nil, run); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		if err := repo.UpdateStatus(ctx, nil, run.ID, model.RunStatusPending, model.RunStatusProcessing); err != nil {
			t.Fatalf("pending->processing failed: %v", err)
		}
		// A second worker trying the same swap must lose.
		err := repo.UpdateStatus(ctx, nil, run.ID, model.RunStatusPending, model.RunStatusProcessing)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound on stale CAS, got %v", err)
		}

		if err := repo.UpdateStatus(ctx, nil, run.ID, model.RunStatusProcessing, model.RunStatusCancelled); err != nil {
			t.Fatalf("processing->cancelled failed: %v", err)
		}

		found, err := repo.FindByID(ctx, nil, run.ID)
		if err != nil {
			t.Fatalf("FindByID failed: %v", err)
		}
		if found.Status != model.RunStatusCancelled {
			t.Errorf("expected cancelled, got %s", found.Status)
		}
		if found.StartedAt == nil || found.CompletedAt == nil {
			t.Errorf("expected timestamps set by transitions: started=%v completed=%v", found.StartedAt, found.CompletedAt)
		}
	})
}
