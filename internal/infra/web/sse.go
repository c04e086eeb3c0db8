package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"youtube-outlier-discovery/internal/domain"
	"youtube-outlier-discovery/internal/infra/progress"
	"youtube-outlier-discovery/internal/usecase"
)

const sseHeartbeatInterval = 15 * time.Second

// runEventsHandler streams a run's progress as server-sent events. The stream
// ends when the run reaches a terminal state (the broker closes the channel)
// or the client disconnects. A run that is already terminal gets a single
// status event.
func runEventsHandler(analysisUC *usecase.AnalysisUseCase, broker *progress.Broker, log *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := chi.URLParam(r, "id")

		run, err := analysisUC.Get(ctx, ownerID(r), id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				http.NotFound(w, r)
				return
			}
			http.Error(w, "Failed to get run", http.StatusInternalServerError)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		if run.Status.Terminal() {
			writeSSE(w, "status", map[string]interface{}{
				"run_id": run.ID,
				"status": run.Status,
			})
			flusher.Flush()
			return
		}

		// Subscribe before re-reading status so no terminal event is missed.
		events, cancel := broker.Subscribe(id)
		defer cancel()

		// The run may have terminated between the first read and the
		// subscription; the broker has already torn that run's channels down,
		// so without this re-read the stream would idle on keepalives forever.
		run, err = analysisUC.Get(ctx, ownerID(r), id)
		if err == nil && run.Status.Terminal() {
			writeSSE(w, "status", map[string]interface{}{
				"run_id": run.ID,
				"status": run.Status,
			})
			flusher.Flush()
			return
		}

		heartbeat := time.NewTicker(sseHeartbeatInterval)
		defer heartbeat.Stop()

		flusher.Flush()
		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				// comment line keeps intermediaries from timing the stream out
				fmt.Fprint(w, ": keepalive\n\n")
				flusher.Flush()
			case ev, open := <-events:
				if !open {
					log.Debug().Str("run_id", id).Msg("event stream ended")
					return
				}
				writeSSE(w, "progress", ev)
				flusher.Flush()
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
