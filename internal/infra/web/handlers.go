package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"youtube-outlier-discovery/internal/domain"
	"youtube-outlier-discovery/internal/domain/model"
	"youtube-outlier-discovery/internal/infra/queue"
	"youtube-outlier-discovery/internal/usecase"
)

// The expected JSON request body for submitting a run.
type runCreateRequest struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Config      model.AnalysisConfig `json:"config"`
}

func healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func runCreateHandler(analysisUC *usecase.AnalysisUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req runCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.Name == "" {
			http.Error(w, "Run name is required", http.StatusBadRequest)
			return
		}

		run, err := analysisUC.Submit(ctx, ownerID(r), req.Name, req.Description, req.Config)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidArgument) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, "Failed to submit run", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusAccepted, run)
	}
}

func runListHandler(analysisUC *usecase.AnalysisUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit <= 0 {
			limit = 50
		}

		runs, err := analysisUC.List(ctx, ownerID(r), limit)
		if err != nil {
			http.Error(w, "Failed to list runs", http.StatusInternalServerError)
			return
		}

		response := struct {
			Data  []*model.AnalysisRun `json:"data"`
			Limit int                  `json:"limit"`
		}{Data: runs, Limit: limit}
		writeJSON(w, http.StatusOK, response)
	}
}

func runGetHandler(analysisUC *usecase.AnalysisUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, err := analysisUC.Get(r.Context(), ownerID(r), chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				http.NotFound(w, r)
				return
			}
			http.Error(w, "Failed to get run", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, run)
	}
}

func runCancelHandler(analysisUC *usecase.AnalysisUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, err := analysisUC.Cancel(r.Context(), ownerID(r), chi.URLParam(r, "id"))
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrNotFound):
				http.NotFound(w, r)
			case errors.Is(err, domain.ErrRunTerminal):
				http.Error(w, "Run already finished", http.StatusConflict)
			default:
				http.Error(w, "Failed to cancel run", http.StatusInternalServerError)
			}
			return
		}
		writeJSON(w, http.StatusOK, run)
	}
}

// --- queue admin ---

func queueListHandler(queues *queue.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := struct {
			Data []queue.QueueInfo `json:"data"`
		}{Data: queues.Queues()}
		writeJSON(w, http.StatusOK, response)
	}
}

func jobListHandler(queues *queue.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")

		var states []model.JobState
		if s := r.URL.Query().Get("state"); s != "" {
			states = append(states, model.JobState(s))
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		jobs, err := queues.ListJobs(r.Context(), name, states, limit)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidArgument) {
				http.NotFound(w, r)
				return
			}
			http.Error(w, "Failed to list jobs", http.StatusInternalServerError)
			return
		}

		response := struct {
			Data []*model.Job `json:"data"`
		}{Data: jobs}
		writeJSON(w, http.StatusOK, response)
	}
}

func jobGetHandler(queues *queue.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := queues.Status(r.Context(), chi.URLParam(r, "name"), chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				http.NotFound(w, r)
				return
			}
			http.Error(w, "Failed to get job", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

func jobRetryHandler(queues *queue.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := queues.Retry(r.Context(), chi.URLParam(r, "name"), chi.URLParam(r, "id"))
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrNotFound):
				http.NotFound(w, r)
			case errors.Is(err, domain.ErrJobNotRetryable):
				http.Error(w, "Only failed jobs can be retried", http.StatusConflict)
			default:
				http.Error(w, "Failed to retry job", http.StatusInternalServerError)
			}
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "requeued"})
	}
}

func jobRemoveHandler(queues *queue.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := queues.Remove(r.Context(), chi.URLParam(r, "name"), chi.URLParam(r, "id"))
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrNotFound):
				http.NotFound(w, r)
			case errors.Is(err, domain.ErrInvalidArgument):
				http.Error(w, "Active jobs cannot be removed", http.StatusConflict)
			default:
				http.Error(w, "Failed to remove job", http.StatusInternalServerError)
			}
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func queuePauseHandler(queues *queue.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := queues.Pause(chi.URLParam(r, "name")); err != nil {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
	}
}

func queueResumeHandler(queues *queue.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := queues.Resume(chi.URLParam(r, "name")); err != nil {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
